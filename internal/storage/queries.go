package storage

import (
	"context"
	"database/sql"
	"time"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

// Row types mirror the tables one to one.
type (
	Client struct {
		ID          int64
		Name        string
		Dni         string
		CompanyName string
		CompanyRuc  string
		Email       string
		Phone       string
		Address     string
		City        string
		State       string
		CreatedAt   time.Time
	}

	FeeSchedule struct {
		ID              int64
		ClientID        int64
		Year            int64
		AnnualFeeCents  int64
		MonthlyFeeCents int64
		CreatedAt       time.Time
		UpdatedAt       time.Time
	}

	Obligation struct {
		ID              int64
		ScheduleID      int64
		Month           int64
		AmountDueCents  int64
		AmountPaidCents int64
		BalanceCents    int64
		IsPaid          bool
		PaymentDate     sql.NullTime
		Notes           string
		UpdatedAt       time.Time
	}

	PaymentTransaction struct {
		ID            int64
		ObligationID  int64
		AmountCents   int64
		PaymentDate   time.Time
		PaymentMethod string
		Reference     string
		Notes         string
		RecordedBy    string
		CreatedAt     time.Time
	}

	AuditLog struct {
		ID          int64
		EventID     string
		ClientID    int64
		Year        int64
		Month       int64
		Action      string
		AmountCents int64
		Actor       string
		Detail      string
		OccurredAt  time.Time
	}
)

const clientColumns = `id, name, dni, company_name, company_ruc, email, phone, address, city, state, created_at`

func scanClient(row interface{ Scan(...any) error }) (Client, error) {
	var c Client
	err := row.Scan(&c.ID, &c.Name, &c.Dni, &c.CompanyName, &c.CompanyRuc,
		&c.Email, &c.Phone, &c.Address, &c.City, &c.State, &c.CreatedAt)
	return c, err
}

const createClient = `INSERT INTO clients (name, dni, company_name, company_ruc, email, phone, address, city, state, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func (q *Queries) CreateClient(ctx context.Context, c Client) (int64, error) {
	res, err := q.db.ExecContext(ctx, createClient,
		c.Name, c.Dni, c.CompanyName, c.CompanyRuc, c.Email,
		c.Phone, c.Address, c.City, c.State, c.CreatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (q *Queries) GetClient(ctx context.Context, id int64) (Client, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+clientColumns+` FROM clients WHERE id = ?`, id)
	return scanClient(row)
}

func (q *Queries) ListClients(ctx context.Context) ([]Client, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT `+clientColumns+` FROM clients ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	return items, rows.Err()
}

const updateClient = `UPDATE clients
SET name = ?, dni = ?, company_name = ?, company_ruc = ?, email = ?, phone = ?, address = ?, city = ?, state = ?
WHERE id = ?`

func (q *Queries) UpdateClient(ctx context.Context, c Client) (int64, error) {
	res, err := q.db.ExecContext(ctx, updateClient,
		c.Name, c.Dni, c.CompanyName, c.CompanyRuc, c.Email,
		c.Phone, c.Address, c.City, c.State, c.ID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (q *Queries) ClientExists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := q.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM clients WHERE id = ?)`, id).Scan(&exists)
	return exists, err
}

func (q *Queries) DeleteClient(ctx context.Context, id int64) (int64, error) {
	res, err := q.db.ExecContext(ctx, `DELETE FROM clients WHERE id = ?`, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const getFeeSchedule = `SELECT id, client_id, year, annual_fee_cents, monthly_fee_cents, created_at, updated_at
FROM fee_schedules WHERE client_id = ? AND year = ?`

func (q *Queries) GetFeeSchedule(ctx context.Context, clientID int64, year int64) (FeeSchedule, error) {
	var s FeeSchedule
	err := q.db.QueryRowContext(ctx, getFeeSchedule, clientID, year).Scan(
		&s.ID, &s.ClientID, &s.Year, &s.AnnualFeeCents, &s.MonthlyFeeCents, &s.CreatedAt, &s.UpdatedAt)
	return s, err
}

func (q *Queries) CreateFeeSchedule(ctx context.Context, s FeeSchedule) (int64, error) {
	res, err := q.db.ExecContext(ctx, `INSERT INTO fee_schedules
(client_id, year, annual_fee_cents, monthly_fee_cents, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		s.ClientID, s.Year, s.AnnualFeeCents, s.MonthlyFeeCents, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (q *Queries) UpdateFeeSchedule(ctx context.Context, s FeeSchedule) error {
	_, err := q.db.ExecContext(ctx, `UPDATE fee_schedules
SET annual_fee_cents = ?, monthly_fee_cents = ?, updated_at = ? WHERE id = ?`,
		s.AnnualFeeCents, s.MonthlyFeeCents, s.UpdatedAt, s.ID)
	return err
}

func (q *Queries) ListScheduleYears(ctx context.Context, clientID int64) ([]int64, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT DISTINCT year FROM fee_schedules WHERE client_id = ? ORDER BY year DESC`, clientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var years []int64
	for rows.Next() {
		var y int64
		if err := rows.Scan(&y); err != nil {
			return nil, err
		}
		years = append(years, y)
	}
	return years, rows.Err()
}

const listObligations = `SELECT id, schedule_id, month, amount_due_cents, amount_paid_cents, balance_cents,
is_paid, payment_date, notes, updated_at
FROM obligations WHERE schedule_id = ? ORDER BY month`

func (q *Queries) ListObligations(ctx context.Context, scheduleID int64) ([]Obligation, error) {
	rows, err := q.db.QueryContext(ctx, listObligations, scheduleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Obligation
	for rows.Next() {
		var o Obligation
		if err := rows.Scan(&o.ID, &o.ScheduleID, &o.Month, &o.AmountDueCents, &o.AmountPaidCents,
			&o.BalanceCents, &o.IsPaid, &o.PaymentDate, &o.Notes, &o.UpdatedAt); err != nil {
			return nil, err
		}
		items = append(items, o)
	}
	return items, rows.Err()
}

func (q *Queries) CreateObligation(ctx context.Context, o Obligation) (int64, error) {
	res, err := q.db.ExecContext(ctx, `INSERT INTO obligations
(schedule_id, month, amount_due_cents, amount_paid_cents, balance_cents, is_paid, payment_date, notes, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ScheduleID, o.Month, o.AmountDueCents, o.AmountPaidCents, o.BalanceCents,
		o.IsPaid, o.PaymentDate, o.Notes, o.UpdatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (q *Queries) UpdateObligation(ctx context.Context, o Obligation) error {
	_, err := q.db.ExecContext(ctx, `UPDATE obligations
SET amount_due_cents = ?, amount_paid_cents = ?, balance_cents = ?, is_paid = ?,
    payment_date = ?, notes = ?, updated_at = ?
WHERE id = ?`,
		o.AmountDueCents, o.AmountPaidCents, o.BalanceCents, o.IsPaid,
		o.PaymentDate, o.Notes, o.UpdatedAt, o.ID)
	return err
}

const listScheduleTransactions = `SELECT t.id, t.obligation_id, t.amount_cents, t.payment_date, t.payment_method,
t.reference, t.notes, t.recorded_by, t.created_at
FROM payment_transactions t
JOIN obligations o ON o.id = t.obligation_id
WHERE o.schedule_id = ?
ORDER BY t.id`

func (q *Queries) ListScheduleTransactions(ctx context.Context, scheduleID int64) ([]PaymentTransaction, error) {
	rows, err := q.db.QueryContext(ctx, listScheduleTransactions, scheduleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []PaymentTransaction
	for rows.Next() {
		var t PaymentTransaction
		if err := rows.Scan(&t.ID, &t.ObligationID, &t.AmountCents, &t.PaymentDate, &t.PaymentMethod,
			&t.Reference, &t.Notes, &t.RecordedBy, &t.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, t)
	}
	return items, rows.Err()
}

func (q *Queries) CreatePaymentTransaction(ctx context.Context, t PaymentTransaction) (int64, error) {
	res, err := q.db.ExecContext(ctx, `INSERT INTO payment_transactions
(obligation_id, amount_cents, payment_date, payment_method, reference, notes, recorded_by, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ObligationID, t.AmountCents, t.PaymentDate, t.PaymentMethod,
		t.Reference, t.Notes, t.RecordedBy, t.CreatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (q *Queries) InsertAuditLog(ctx context.Context, a AuditLog) (int64, error) {
	res, err := q.db.ExecContext(ctx, `INSERT INTO audit_log
(event_id, client_id, year, month, action, amount_cents, actor, detail, occurred_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (event_id) DO NOTHING`,
		a.EventID, a.ClientID, a.Year, a.Month, a.Action, a.AmountCents, a.Actor, a.Detail, a.OccurredAt)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (q *Queries) ListAuditLog(ctx context.Context, clientID int64, limit int64) ([]AuditLog, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT id, event_id, client_id, year, month, action, amount_cents,
actor, detail, occurred_at
FROM audit_log WHERE client_id = ?
ORDER BY occurred_at DESC, id DESC
LIMIT ?`, clientID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []AuditLog
	for rows.Next() {
		var a AuditLog
		if err := rows.Scan(&a.ID, &a.EventID, &a.ClientID, &a.Year, &a.Month, &a.Action,
			&a.AmountCents, &a.Actor, &a.Detail, &a.OccurredAt); err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, rows.Err()
}
