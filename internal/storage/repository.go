package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"estudio/internal/core"
	"estudio/internal/ports"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
}

var _ ports.Store = (*SQLiteRepository)(nil)

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	db, err := sql.Open("sqlite", DSN(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &SQLiteRepository{
		db:      db,
		queries: New(db),
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping is used by the readiness probe.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// LoadLedger implements ports.LedgerStore.
func (r *SQLiteRepository) LoadLedger(ctx context.Context, clientID int64, year int) (*core.Ledger, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	l, err := loadLedger(ctx, r.queries.WithTx(tx), clientID, year)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return l, nil
}

// MutateLedger implements ports.LedgerStore. The whole read, mutate and
// write cycle runs inside one BEGIN IMMEDIATE transaction.
func (r *SQLiteRepository) MutateLedger(ctx context.Context, clientID int64, year int, create bool, fn ports.LedgerMutation) (*core.Ledger, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()
	q := r.queries.WithTx(tx)

	created := false
	l, err := loadLedger(ctx, q, clientID, year)
	switch {
	case errors.Is(err, core.ErrScheduleNotFound) && create:
		exists, err := q.ClientExists(ctx, clientID)
		if err != nil {
			return nil, fmt.Errorf("check client: %w", err)
		}
		if !exists {
			return nil, core.ErrClientNotFound
		}
		l = core.NewLedger(clientID, year, core.Money{}, core.Money{})
		created = true
	case err != nil:
		return nil, err
	}

	if err := fn(l, created); err != nil {
		return nil, err
	}
	if err := l.CheckInvariants(); err != nil {
		return nil, fmt.Errorf("ledger invariant violated: %w", err)
	}
	if err := saveLedger(ctx, q, l, time.Now().UTC()); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	slog.DebugContext(ctx, "Ledger committed",
		"client_id", clientID,
		"year", year,
		"created", created,
		"total_paid_cents", l.TotalPaid().Cents)
	return l, nil
}

// AvailableYears implements ports.LedgerStore.
func (r *SQLiteRepository) AvailableYears(ctx context.Context, clientID int64) ([]int, error) {
	rows, err := r.queries.ListScheduleYears(ctx, clientID)
	if err != nil {
		return nil, fmt.Errorf("list schedule years: %w", err)
	}
	years := make([]int, len(rows))
	for i, y := range rows {
		years[i] = int(y)
	}
	return years, nil
}

func loadLedger(ctx context.Context, q *Queries, clientID int64, year int) (*core.Ledger, error) {
	s, err := q.GetFeeSchedule(ctx, clientID, int64(year))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrScheduleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get fee schedule: %w", err)
	}

	obligations, err := q.ListObligations(ctx, s.ID)
	if err != nil {
		return nil, fmt.Errorf("list obligations: %w", err)
	}
	txs, err := q.ListScheduleTransactions(ctx, s.ID)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}

	l := &core.Ledger{
		Schedule: core.FeeSchedule{
			ID:         s.ID,
			ClientID:   s.ClientID,
			Year:       int(s.Year),
			AnnualFee:  core.Money{Cents: s.AnnualFeeCents},
			MonthlyFee: core.Money{Cents: s.MonthlyFeeCents},
			CreatedAt:  s.CreatedAt.UTC(),
			UpdatedAt:  s.UpdatedAt.UTC(),
		},
		Obligations: make([]*core.Obligation, 0, len(obligations)),
	}
	byID := make(map[int64]*core.Obligation, len(obligations))
	for _, row := range obligations {
		o := &core.Obligation{
			ID:         row.ID,
			Month:      int(row.Month),
			AmountDue:  core.Money{Cents: row.AmountDueCents},
			AmountPaid: core.Money{Cents: row.AmountPaidCents},
			Balance:    core.Money{Cents: row.BalanceCents},
			IsPaid:     row.IsPaid,
			Notes:      row.Notes,
			UpdatedAt:  row.UpdatedAt.UTC(),
		}
		if row.PaymentDate.Valid {
			d := row.PaymentDate.Time.UTC()
			o.PaymentDate = &d
		}
		l.Obligations = append(l.Obligations, o)
		byID[o.ID] = o
	}
	for _, row := range txs {
		o := byID[row.ObligationID]
		if o == nil {
			continue
		}
		o.Transactions = append(o.Transactions, core.Transaction{
			ID:           row.ID,
			ObligationID: row.ObligationID,
			Month:        o.Month,
			Amount:       core.Money{Cents: row.AmountCents},
			PaymentDate:  row.PaymentDate.UTC(),
			Method:       row.PaymentMethod,
			Reference:    row.Reference,
			Notes:        row.Notes,
			RecordedBy:   row.RecordedBy,
			CreatedAt:    row.CreatedAt.UTC(),
		})
	}
	return l, nil
}

// saveLedger writes the schedule, every obligation and the transactions that
// have no ID yet. IDs assigned by the database are copied back into l.
func saveLedger(ctx context.Context, q *Queries, l *core.Ledger, now time.Time) error {
	s := &l.Schedule
	row := FeeSchedule{
		ID:              s.ID,
		ClientID:        s.ClientID,
		Year:            int64(s.Year),
		AnnualFeeCents:  s.AnnualFee.Cents,
		MonthlyFeeCents: s.MonthlyFee.Cents,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if s.ID == 0 {
		id, err := q.CreateFeeSchedule(ctx, row)
		if err != nil {
			return fmt.Errorf("create fee schedule: %w", err)
		}
		s.ID, s.CreatedAt = id, now
	} else if err := q.UpdateFeeSchedule(ctx, row); err != nil {
		return fmt.Errorf("update fee schedule: %w", err)
	}
	s.UpdatedAt = now

	for _, o := range l.Obligations {
		orow := Obligation{
			ID:              o.ID,
			ScheduleID:      s.ID,
			Month:           int64(o.Month),
			AmountDueCents:  o.AmountDue.Cents,
			AmountPaidCents: o.AmountPaid.Cents,
			BalanceCents:    o.Balance.Cents,
			IsPaid:          o.IsPaid,
			Notes:           o.Notes,
			UpdatedAt:       now,
		}
		if o.PaymentDate != nil {
			orow.PaymentDate = sql.NullTime{Time: *o.PaymentDate, Valid: true}
		}
		if o.ID == 0 {
			id, err := q.CreateObligation(ctx, orow)
			if err != nil {
				return fmt.Errorf("create obligation month %d: %w", o.Month, err)
			}
			o.ID = id
		} else if err := q.UpdateObligation(ctx, orow); err != nil {
			return fmt.Errorf("update obligation month %d: %w", o.Month, err)
		}
		o.UpdatedAt = now

		for i := range o.Transactions {
			t := &o.Transactions[i]
			if t.ID != 0 {
				continue
			}
			t.ObligationID = o.ID
			id, err := q.CreatePaymentTransaction(ctx, PaymentTransaction{
				ObligationID:  o.ID,
				AmountCents:   t.Amount.Cents,
				PaymentDate:   t.PaymentDate,
				PaymentMethod: t.Method,
				Reference:     t.Reference,
				Notes:         t.Notes,
				RecordedBy:    t.RecordedBy,
				CreatedAt:     t.CreatedAt,
			})
			if err != nil {
				return fmt.Errorf("create payment transaction month %d: %w", o.Month, err)
			}
			t.ID = id
		}
	}
	return nil
}

// CreateClient implements ports.ClientStore.
func (r *SQLiteRepository) CreateClient(ctx context.Context, c core.Client) (core.Client, error) {
	c.CreatedAt = time.Now().UTC()
	c.Email = strings.ToLower(strings.TrimSpace(c.Email))
	id, err := r.queries.CreateClient(ctx, Client{
		Name:        strings.TrimSpace(c.Name),
		Dni:         c.DNI,
		CompanyName: c.CompanyName,
		CompanyRuc:  c.CompanyRUC,
		Email:       c.Email,
		Phone:       c.Phone,
		Address:     c.Address,
		City:        c.City,
		State:       c.State,
		CreatedAt:   c.CreatedAt,
	})
	if isUniqueViolation(err) {
		return core.Client{}, core.ErrDuplicateClient
	}
	if err != nil {
		return core.Client{}, fmt.Errorf("create client: %w", err)
	}
	c.ID = id
	c.Name = strings.TrimSpace(c.Name)

	slog.InfoContext(ctx, "Client saved to SQLite", "client_id", id)
	return c, nil
}

// GetClient implements ports.ClientStore.
func (r *SQLiteRepository) GetClient(ctx context.Context, id int64) (core.Client, error) {
	row, err := r.queries.GetClient(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Client{}, core.ErrClientNotFound
	}
	if err != nil {
		return core.Client{}, fmt.Errorf("get client: %w", err)
	}
	return clientFromRow(row), nil
}

// ListClients implements ports.ClientStore.
func (r *SQLiteRepository) ListClients(ctx context.Context) ([]core.Client, error) {
	rows, err := r.queries.ListClients(ctx)
	if err != nil {
		return nil, fmt.Errorf("list clients: %w", err)
	}
	clients := make([]core.Client, len(rows))
	for i, row := range rows {
		clients[i] = clientFromRow(row)
	}
	return clients, nil
}

// UpdateClient implements ports.ClientStore.
func (r *SQLiteRepository) UpdateClient(ctx context.Context, c core.Client) (core.Client, error) {
	c.Name = strings.TrimSpace(c.Name)
	c.Email = strings.ToLower(strings.TrimSpace(c.Email))
	n, err := r.queries.UpdateClient(ctx, Client{
		ID:          c.ID,
		Name:        c.Name,
		Dni:         c.DNI,
		CompanyName: c.CompanyName,
		CompanyRuc:  c.CompanyRUC,
		Email:       c.Email,
		Phone:       c.Phone,
		Address:     c.Address,
		City:        c.City,
		State:       c.State,
	})
	if isUniqueViolation(err) {
		return core.Client{}, core.ErrDuplicateClient
	}
	if err != nil {
		return core.Client{}, fmt.Errorf("update client: %w", err)
	}
	if n == 0 {
		return core.Client{}, core.ErrClientNotFound
	}
	slog.InfoContext(ctx, "Client updated", "client_id", c.ID)
	return r.GetClient(ctx, c.ID)
}

// DeleteClient implements ports.ClientStore. Schedules, obligations and
// transactions go with it through ON DELETE CASCADE.
func (r *SQLiteRepository) DeleteClient(ctx context.Context, id int64) error {
	n, err := r.queries.DeleteClient(ctx, id)
	if err != nil {
		return fmt.Errorf("delete client: %w", err)
	}
	if n == 0 {
		return core.ErrClientNotFound
	}
	slog.InfoContext(ctx, "Client deleted", "client_id", id)
	return nil
}

// AppendAudit implements ports.AuditStore.
func (r *SQLiteRepository) AppendAudit(ctx context.Context, e core.AuditEntry) (bool, error) {
	n, err := r.queries.InsertAuditLog(ctx, AuditLog{
		EventID:     e.EventID,
		ClientID:    e.ClientID,
		Year:        int64(e.Year),
		Month:       int64(e.Month),
		Action:      e.Action,
		AmountCents: e.Amount.Cents,
		Actor:       e.Actor,
		Detail:      e.Detail,
		OccurredAt:  e.OccurredAt.UTC(),
	})
	if err != nil {
		return false, fmt.Errorf("insert audit log: %w", err)
	}
	return n > 0, nil
}

// ListAudit implements ports.AuditStore.
func (r *SQLiteRepository) ListAudit(ctx context.Context, clientID int64, limit int) ([]core.AuditEntry, error) {
	rows, err := r.queries.ListAuditLog(ctx, clientID, int64(limit))
	if err != nil {
		return nil, fmt.Errorf("list audit log: %w", err)
	}
	entries := make([]core.AuditEntry, len(rows))
	for i, a := range rows {
		entries[i] = core.AuditEntry{
			ID:         a.ID,
			EventID:    a.EventID,
			ClientID:   a.ClientID,
			Year:       int(a.Year),
			Month:      int(a.Month),
			Action:     a.Action,
			Amount:     core.Money{Cents: a.AmountCents},
			Actor:      a.Actor,
			Detail:     a.Detail,
			OccurredAt: a.OccurredAt.UTC(),
		}
	}
	return entries, nil
}

func clientFromRow(row Client) core.Client {
	return core.Client{
		ID:          row.ID,
		Name:        row.Name,
		DNI:         row.Dni,
		CompanyName: row.CompanyName,
		CompanyRUC:  row.CompanyRuc,
		Email:       row.Email,
		Phone:       row.Phone,
		Address:     row.Address,
		City:        row.City,
		State:       row.State,
		CreatedAt:   row.CreatedAt.UTC(),
	}
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	return errors.As(err, &se) && se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
}
