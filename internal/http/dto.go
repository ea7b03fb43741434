package http

import (
	"time"

	"estudio/internal/core"
)

type clientRequest struct {
	Name        string `json:"name"`
	DNI         string `json:"dni"`
	CompanyName string `json:"company_name"`
	CompanyRUC  string `json:"company_ruc"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	Address     string `json:"address"`
	City        string `json:"city"`
	State       string `json:"state"`
}

func (c clientRequest) toCore() core.Client {
	return core.Client{
		Name:        sanitizeInput(c.Name),
		DNI:         sanitizeInput(c.DNI),
		CompanyName: sanitizeInput(c.CompanyName),
		CompanyRUC:  sanitizeInput(c.CompanyRUC),
		Email:       sanitizeInput(c.Email),
		Phone:       sanitizeInput(c.Phone),
		Address:     sanitizeInput(c.Address),
		City:        sanitizeInput(c.City),
		State:       sanitizeInput(c.State),
	}
}

type clientResponse struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	DNI         string    `json:"dni,omitempty"`
	CompanyName string    `json:"company_name,omitempty"`
	CompanyRUC  string    `json:"company_ruc,omitempty"`
	Email       string    `json:"email"`
	Phone       string    `json:"phone,omitempty"`
	Address     string    `json:"address,omitempty"`
	City        string    `json:"city,omitempty"`
	State       string    `json:"state,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

func newClientResponse(c core.Client) clientResponse {
	return clientResponse{
		ID:          c.ID,
		Name:        c.Name,
		DNI:         c.DNI,
		CompanyName: c.CompanyName,
		CompanyRUC:  c.CompanyRUC,
		Email:       c.Email,
		Phone:       c.Phone,
		Address:     c.Address,
		City:        c.City,
		State:       c.State,
		CreatedAt:   c.CreatedAt,
	}
}

type feesRequest struct {
	Year       *int       `json:"year"`
	AnnualFee  core.Money `json:"annual_fee"`
	MonthlyFee core.Money `json:"monthly_fee"`
}

type paymentRequest struct {
	Year          *int       `json:"year"`
	Month         int        `json:"month"`
	Amount        core.Money `json:"amount"`
	PaymentDate   string     `json:"payment_date"`
	PaymentMethod string     `json:"payment_method"`
	Reference     string     `json:"reference"`
	Notes         string     `json:"notes"`
}

type notesRequest struct {
	Notes string `json:"notes"`
}

type transactionResponse struct {
	ID          int64      `json:"id"`
	Month       int        `json:"month"`
	Amount      core.Money `json:"amount"`
	PaymentDate time.Time  `json:"payment_date"`
	Method      string     `json:"payment_method,omitempty"`
	Reference   string     `json:"reference,omitempty"`
	Notes       string     `json:"notes,omitempty"`
	RecordedBy  string     `json:"recorded_by"`
	CreatedAt   time.Time  `json:"created_at"`
}

func newTransactionResponse(t core.Transaction) transactionResponse {
	return transactionResponse{
		ID:          t.ID,
		Month:       t.Month,
		Amount:      t.Amount,
		PaymentDate: t.PaymentDate,
		Method:      t.Method,
		Reference:   t.Reference,
		Notes:       t.Notes,
		RecordedBy:  t.RecordedBy,
		CreatedAt:   t.CreatedAt,
	}
}

type obligationResponse struct {
	ID           int64                 `json:"id"`
	Month        int                   `json:"month"`
	MonthName    string                `json:"month_name"`
	AmountDue    core.Money            `json:"amount_due"`
	AmountPaid   core.Money            `json:"amount_paid"`
	Balance      core.Money            `json:"balance"`
	IsPaid       bool                  `json:"is_paid"`
	PaymentDate  *time.Time            `json:"payment_date"`
	Notes        string                `json:"notes"`
	Transactions []transactionResponse `json:"transactions"`
	UpdatedAt    time.Time             `json:"updated_at"`
}

func newObligationResponse(o *core.Obligation) obligationResponse {
	txs := make([]transactionResponse, 0, len(o.Transactions))
	for _, t := range o.Transactions {
		txs = append(txs, newTransactionResponse(t))
	}
	return obligationResponse{
		ID:           o.ID,
		Month:        o.Month,
		MonthName:    o.MonthName(),
		AmountDue:    o.AmountDue,
		AmountPaid:   o.AmountPaid,
		Balance:      o.Balance,
		IsPaid:       o.IsPaid,
		PaymentDate:  o.PaymentDate,
		Notes:        o.Notes,
		Transactions: txs,
		UpdatedAt:    o.UpdatedAt,
	}
}

// ledgerResponse is the finance view: the schedule, its totals and the 13
// slots.
type ledgerResponse struct {
	ClientID     int64                `json:"client_id"`
	Year         int                  `json:"year"`
	AnnualFee    core.Money           `json:"annual_fee"`
	MonthlyFee   core.Money           `json:"monthly_fee"`
	AnnualCap    core.Money           `json:"annual_cap"`
	TotalDue     core.Money           `json:"total_due"`
	TotalPaid    core.Money           `json:"total_paid"`
	TotalBalance core.Money           `json:"total_balance"`
	Obligations  []obligationResponse `json:"obligations"`
}

func newLedgerResponse(l *core.Ledger) ledgerResponse {
	sum := l.Summary()
	obligations := make([]obligationResponse, 0, len(l.Obligations))
	for _, o := range l.Obligations {
		obligations = append(obligations, newObligationResponse(o))
	}
	return ledgerResponse{
		ClientID:     sum.ClientID,
		Year:         sum.Year,
		AnnualFee:    sum.AnnualFee,
		MonthlyFee:   sum.MonthlyFee,
		AnnualCap:    sum.AnnualCap,
		TotalDue:     sum.TotalDue,
		TotalPaid:    sum.TotalPaid,
		TotalBalance: sum.TotalBalance,
		Obligations:  obligations,
	}
}

type summaryResponse struct {
	ClientID     int64      `json:"client_id"`
	Year         int        `json:"year"`
	AnnualFee    core.Money `json:"annual_fee"`
	MonthlyFee   core.Money `json:"monthly_fee"`
	AnnualCap    core.Money `json:"annual_cap"`
	TotalDue     core.Money `json:"total_due"`
	TotalPaid    core.Money `json:"total_paid"`
	TotalBalance core.Money `json:"total_balance"`
	PaidCount    int        `json:"paid_count"`
	PendingCount int        `json:"pending_count"`
}

func newSummaryResponse(s core.Summary) summaryResponse {
	return summaryResponse(s)
}

type paymentResponse struct {
	Transaction transactionResponse `json:"transaction"`
	Obligation  obligationResponse  `json:"obligation"`
	Ledger      ledgerResponse      `json:"ledger"`
}

type auditResponse struct {
	ID         int64      `json:"id"`
	EventID    string     `json:"event_id"`
	Year       int        `json:"year"`
	Month      int        `json:"month,omitempty"`
	MonthName  string     `json:"month_name,omitempty"`
	Action     string     `json:"action"`
	Amount     core.Money `json:"amount"`
	Actor      string     `json:"actor"`
	Detail     string     `json:"detail,omitempty"`
	OccurredAt time.Time  `json:"occurred_at"`
}

func newAuditResponse(e core.AuditEntry) auditResponse {
	resp := auditResponse{
		ID:         e.ID,
		EventID:    e.EventID,
		Year:       e.Year,
		Month:      e.Month,
		Action:     e.Action,
		Amount:     e.Amount,
		Actor:      e.Actor,
		Detail:     e.Detail,
		OccurredAt: e.OccurredAt,
	}
	if e.Month > 0 {
		resp.MonthName = core.MonthName(e.Month)
	}
	return resp
}

type yearsResponse struct {
	ClientID int64 `json:"client_id"`
	Years    []int `json:"years"`
}
