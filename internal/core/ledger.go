package core

import (
	"fmt"
	"strings"
	"time"
)

type (
	// FeeSchedule is a client's billing configuration for one fiscal year.
	FeeSchedule struct {
		ID         int64
		ClientID   int64
		Year       int
		AnnualFee  Money
		MonthlyFee Money
		CreatedAt  time.Time
		UpdatedAt  time.Time
	}

	// Obligation is one billing slot: months 1-12 or the annual slot 13.
	// Balance and IsPaid are derived; only RecomputeDerived writes them.
	Obligation struct {
		ID           int64
		Month        int
		AmountDue    Money
		AmountPaid   Money
		Balance      Money
		IsPaid       bool
		PaymentDate  *time.Time
		Notes        string
		Transactions []Transaction // insertion order
		UpdatedAt    time.Time
	}

	// Transaction is an immutable payment applied to one obligation.
	Transaction struct {
		ID           int64
		ObligationID int64
		Month        int
		Amount       Money
		PaymentDate  time.Time
		Method       string
		Reference    string
		Notes        string
		RecordedBy   string
		CreatedAt    time.Time
	}

	// PaymentInput carries the caller-supplied fields of a new payment.
	PaymentInput struct {
		Amount      Money
		PaymentDate time.Time
		Method      string
		Reference   string
		Notes       string
		RecordedBy  string
	}

	// Ledger is the aggregate of one fee schedule and its 13 obligations.
	// All billing mutations go through it.
	Ledger struct {
		Schedule    FeeSchedule
		Obligations []*Obligation // ascending by month
	}
)

// AnnualCap is the most that can be paid across the schedule's 13 slots.
func (s FeeSchedule) AnnualCap() Money {
	return s.MonthlyFee.MulInt(MonthsPerYear).Add(s.AnnualFee)
}

// BaseAmount is the undiscounted fee of a slot: the annual fee for slot 13,
// the monthly fee otherwise.
func (s FeeSchedule) BaseAmount(month int) Money {
	if month == AnnualSlot {
		return s.AnnualFee
	}
	return s.MonthlyFee
}

// RecomputeDerived sets Balance and IsPaid from AmountDue and AmountPaid.
func (o *Obligation) RecomputeDerived() {
	o.Balance = o.AmountDue.Sub(o.AmountPaid)
	o.IsPaid = o.Balance.IsNonPositive()
}

// HasAnyTransaction reports whether a payment was ever registered for the slot.
func (o *Obligation) HasAnyTransaction() bool {
	return len(o.Transactions) > 0
}

// MonthName returns the display label of the slot.
func (o *Obligation) MonthName() string {
	return MonthName(o.Month)
}

func (o *Obligation) append(tx Transaction) {
	o.Transactions = append(o.Transactions, tx)
	o.AmountPaid = o.AmountPaid.Add(tx.Amount)
	date := tx.PaymentDate
	o.PaymentDate = &date
	o.RecomputeDerived()
}

// NewLedger seeds a schedule with its 13 obligations at base amounts and
// runs a full recalculation.
func NewLedger(clientID int64, year int, annualFee, monthlyFee Money) *Ledger {
	l := &Ledger{
		Schedule: FeeSchedule{
			ClientID:   clientID,
			Year:       year,
			AnnualFee:  annualFee,
			MonthlyFee: monthlyFee,
		},
		Obligations: make([]*Obligation, 0, SlotCount),
	}
	for month := 1; month <= SlotCount; month++ {
		l.Obligations = append(l.Obligations, &Obligation{
			Month:     month,
			AmountDue: l.Schedule.BaseAmount(month),
		})
	}
	l.Recalculate()
	return l
}

// Obligation returns the slot for month, or nil when it does not exist.
func (l *Ledger) Obligation(month int) *Obligation {
	for _, o := range l.Obligations {
		if o.Month == month {
			return o
		}
	}
	return nil
}

// TotalPaid sums AmountPaid over every slot.
func (l *Ledger) TotalPaid() Money {
	var total Money
	for _, o := range l.Obligations {
		total = total.Add(o.AmountPaid)
	}
	return total
}

// UpdateFees changes the base fees. A slot's AmountDue is reset to the new
// base only while nothing has been paid on it; partially paid slots keep
// their due amount until the recalculation derives it again.
//
// Fees are rejected with ErrInvalidAmount when negative or above
// 99,999,999.99, and with ErrAnnualCapExceeded when the new cap would fall
// below what has already been collected. On error the ledger is left untouched.
func (l *Ledger) UpdateFees(annualFee, monthlyFee Money) error {
	if annualFee.IsNegative() || monthlyFee.IsNegative() || !annualFee.InRange() || !monthlyFee.InRange() {
		return ErrInvalidAmount
	}
	next := l.Schedule
	next.AnnualFee = annualFee
	next.MonthlyFee = monthlyFee
	if l.TotalPaid().Cmp(next.AnnualCap()) > 0 {
		return fmt.Errorf("%w: collected %s exceeds new cap %s",
			ErrAnnualCapExceeded, l.TotalPaid(), next.AnnualCap())
	}

	l.Schedule = next
	for _, o := range l.Obligations {
		if o.AmountPaid.IsZero() {
			o.AmountDue = l.Schedule.BaseAmount(o.Month)
			o.RecomputeDerived()
		}
	}
	l.Recalculate()
	return nil
}

// RecordPayment appends a transaction to the slot for month and recalculates
// the whole ledger. Validation happens before any mutation, so a rejected
// payment leaves the ledger unchanged.
func (l *Ledger) RecordPayment(month int, in PaymentInput) (*Transaction, error) {
	if err := in.Amount.Validate(); err != nil {
		return nil, err
	}
	o := l.Obligation(month)
	if o == nil {
		return nil, fmt.Errorf("%w: month %d", ErrObligationNotFound, month)
	}
	limit := l.Schedule.AnnualCap()
	if after := l.TotalPaid().Add(in.Amount); after.Cmp(limit) > 0 {
		return nil, fmt.Errorf("%w: annual total %s, paid would be %s",
			ErrAnnualCapExceeded, limit, after)
	}

	now := time.Now().UTC()
	date := in.PaymentDate
	if date.IsZero() {
		date = now
	}
	tx := Transaction{
		ObligationID: o.ID,
		Month:        o.Month,
		Amount:       in.Amount,
		PaymentDate:  date,
		Method:       strings.TrimSpace(in.Method),
		Reference:    strings.TrimSpace(in.Reference),
		Notes:        in.Notes,
		RecordedBy:   in.RecordedBy,
		CreatedAt:    now,
	}
	o.append(tx)
	l.Recalculate()
	return &tx, nil
}

// SetNotes replaces the free-text notes of a slot.
func (l *Ledger) SetNotes(month int, notes string) error {
	o := l.Obligation(month)
	if o == nil {
		return fmt.Errorf("%w: month %d", ErrObligationNotFound, month)
	}
	o.Notes = notes
	return nil
}

// CheckInvariants verifies slot layout, derived fields and the annual cap.
// A failure means a programming error, not bad input.
func (l *Ledger) CheckInvariants() error {
	if len(l.Obligations) != SlotCount {
		return fmt.Errorf("ledger %d/%d has %d slots, want %d",
			l.Schedule.ClientID, l.Schedule.Year, len(l.Obligations), SlotCount)
	}
	for i, o := range l.Obligations {
		if o.Month != i+1 {
			return fmt.Errorf("slot %d holds month %d", i+1, o.Month)
		}
		if o.Balance != o.AmountDue.Sub(o.AmountPaid) || o.IsPaid != o.Balance.IsNonPositive() {
			return fmt.Errorf("month %d derived fields out of date", o.Month)
		}
	}
	if l.TotalPaid().Cmp(l.Schedule.AnnualCap()) > 0 {
		return fmt.Errorf("paid %s exceeds annual cap %s", l.TotalPaid(), l.Schedule.AnnualCap())
	}
	return nil
}

// Clone returns a deep copy, letting stores mutate a ledger and discard the
// copy on failure.
func (l *Ledger) Clone() *Ledger {
	c := &Ledger{
		Schedule:    l.Schedule,
		Obligations: make([]*Obligation, len(l.Obligations)),
	}
	for i, o := range l.Obligations {
		cp := *o
		if o.PaymentDate != nil {
			d := *o.PaymentDate
			cp.PaymentDate = &d
		}
		cp.Transactions = append([]Transaction(nil), o.Transactions...)
		c.Obligations[i] = &cp
	}
	return c
}
