package core

import "time"

// LedgerEvent is emitted after every committed ledger mutation. Consumers
// turn it into an audit entry and, for payments, a collections export row.
type LedgerEvent struct {
	ID          string    `json:"id"`
	Action      string    `json:"action"`
	ClientID    int64     `json:"client_id"`
	Year        int       `json:"year"`
	Month       int       `json:"month,omitempty"`
	Amount      Money     `json:"amount"`
	PaymentDate time.Time `json:"payment_date,omitzero"`
	Method      string    `json:"payment_method,omitempty"`
	Reference   string    `json:"reference,omitempty"`
	Actor       string    `json:"actor"`
	Detail      string    `json:"detail,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// AuditEntry converts the event into the audit trail row it produces.
func (e LedgerEvent) AuditEntry() AuditEntry {
	return AuditEntry{
		EventID:    e.ID,
		ClientID:   e.ClientID,
		Year:       e.Year,
		Month:      e.Month,
		Action:     e.Action,
		Amount:     e.Amount,
		Actor:      e.Actor,
		Detail:     e.Detail,
		OccurredAt: e.OccurredAt,
	}
}
