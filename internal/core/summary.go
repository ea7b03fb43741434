package core

// Summary is the read-side projection of a ledger's 13 slots.
type Summary struct {
	ClientID     int64
	Year         int
	AnnualFee    Money
	MonthlyFee   Money
	AnnualCap    Money
	TotalDue     Money
	TotalPaid    Money
	TotalBalance Money
	PaidCount    int
	PendingCount int
}

// Summary totals due, paid and balance and counts paid and pending slots.
func (l *Ledger) Summary() Summary {
	s := Summary{
		ClientID:   l.Schedule.ClientID,
		Year:       l.Schedule.Year,
		AnnualFee:  l.Schedule.AnnualFee,
		MonthlyFee: l.Schedule.MonthlyFee,
		AnnualCap:  l.Schedule.AnnualCap(),
	}
	for _, o := range l.Obligations {
		s.TotalDue = s.TotalDue.Add(o.AmountDue)
		s.TotalPaid = s.TotalPaid.Add(o.AmountPaid)
		s.TotalBalance = s.TotalBalance.Add(o.Balance)
		if o.IsPaid {
			s.PaidCount++
		} else {
			s.PendingCount++
		}
	}
	return s
}
