// Package core provides money handling and the billing ledger domain.
//
// This file implements the Strategy Pattern for deriving each slot's amount
// due. The annual declaration, the first month and the carry-forward months
// each have their own rule; Recalculate applies them in month order.

package core

// DueRule derives the amount due for one slot of a ledger.
type DueRule interface {
	AmountDue(l *Ledger, month int) Money
}

// AnnualDeclarationRule fixes slot 13 at the annual fee. It never receives
// carry from month 12.
type AnnualDeclarationRule struct{}

func (AnnualDeclarationRule) AmountDue(l *Ledger, _ int) Money {
	return l.Schedule.AnnualFee
}

// FirstMonthRule fixes January at the monthly fee; nothing carries into it.
type FirstMonthRule struct{}

func (FirstMonthRule) AmountDue(l *Ledger, _ int) Money {
	return l.Schedule.MonthlyFee
}

// CarryForwardRule adds to the monthly fee whatever part of the previous
// month's base fee is still unpaid, provided the previous month has at
// least one transaction. Carry is measured against the previous month's
// base fee, not its amount due, so arrears never chain past one month.
type CarryForwardRule struct{}

func (CarryForwardRule) AmountDue(l *Ledger, month int) Money {
	base := l.Schedule.MonthlyFee
	prev := l.Obligation(month - 1)
	if prev == nil || !prev.HasAnyTransaction() {
		return base
	}
	unpaidBase := l.Schedule.MonthlyFee.Sub(prev.AmountPaid)
	if unpaidBase.IsPositive() {
		return base.Add(unpaidBase)
	}
	return base
}

// DueRuleFor returns the rule governing a slot.
func DueRuleFor(month int) DueRule {
	switch {
	case month == AnnualSlot:
		return AnnualDeclarationRule{}
	case month == 1:
		return FirstMonthRule{}
	default:
		return CarryForwardRule{}
	}
}

// Recalculate derives AmountDue for every slot in ascending month order and
// refreshes the derived fields. It is a full recompute and idempotent.
func (l *Ledger) Recalculate() {
	for month := 1; month <= SlotCount; month++ {
		o := l.Obligation(month)
		if o == nil {
			continue
		}
		o.AmountDue = DueRuleFor(month).AmountDue(l, month)
		o.RecomputeDerived()
	}
}
