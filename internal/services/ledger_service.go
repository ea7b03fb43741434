// Package services orchestrates the billing ledger: it serializes mutations
// per (client, year), drives the stores, publishes ledger events, caches
// summaries and records metrics.
package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"estudio/internal/cache"
	"estudio/internal/core"
	applog "estudio/internal/log"
	"estudio/internal/metrics"
	"estudio/internal/ports"
)

// DefaultActor is recorded when a caller does not identify itself.
const DefaultActor = "system"

type LedgerService struct {
	ledgers   ports.LedgerStore
	clients   ports.ClientStore
	publisher ports.EventPublisher
	summaries cache.Cache[core.Summary]
	metrics   *metrics.Metrics
	logger    *applog.Logger
	locks     *keyedLocker
	now       func() time.Time
}

type LedgerOption func(*LedgerService)

// WithPublisher sends a LedgerEvent after every committed mutation.
func WithPublisher(p ports.EventPublisher) LedgerOption {
	return func(s *LedgerService) { s.publisher = p }
}

func WithSummaryCache(c cache.Cache[core.Summary]) LedgerOption {
	return func(s *LedgerService) { s.summaries = c }
}

func WithMetrics(m *metrics.Metrics) LedgerOption {
	return func(s *LedgerService) { s.metrics = m }
}

func WithLogger(l *applog.Logger) LedgerOption {
	return func(s *LedgerService) { s.logger = l.WithComponent(applog.ComponentLedger) }
}

func WithClock(now func() time.Time) LedgerOption {
	return func(s *LedgerService) { s.now = now }
}

func NewLedgerService(ledgers ports.LedgerStore, clients ports.ClientStore, opts ...LedgerOption) *LedgerService {
	s := &LedgerService{
		ledgers: ledgers,
		clients: clients,
		logger:  applog.New(applog.DefaultConfig()).WithComponent(applog.ComponentLedger),
		locks:   newKeyedLocker(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetOrCreate returns the ledger for (client, year), seeding a zero-fee
// schedule with its 13 obligations when none exists. Repeated calls return
// the same schedule.
func (s *LedgerService) GetOrCreate(ctx context.Context, clientID int64, year int) (*core.Ledger, error) {
	if err := core.ValidateYear(year); err != nil {
		return nil, err
	}
	l, err := s.ledgers.LoadLedger(ctx, clientID, year)
	if !errors.Is(err, core.ErrScheduleNotFound) {
		return l, err
	}

	started := s.now()
	key := ledgerKey{clientID, year}
	unlock := s.locks.Lock(key)
	defer unlock()

	var created bool
	l, err = s.ledgers.MutateLedger(ctx, clientID, year, true, func(_ *core.Ledger, c bool) error {
		created = c
		return nil
	})
	s.metrics.ObserveLedgerOp(applog.OpCreate, outcome(err), started)
	if err != nil {
		return nil, s.fail(ctx, applog.OpCreate, key, err)
	}
	if created {
		s.afterCreate(ctx, l, DefaultActor)
	}
	return l, nil
}

// SetFees creates the schedule if needed and applies the new fees.
func (s *LedgerService) SetFees(ctx context.Context, clientID int64, year int, annualFee, monthlyFee core.Money, actor string) (*core.Ledger, error) {
	if err := core.ValidateYear(year); err != nil {
		return nil, err
	}
	actor = actorOrDefault(actor)
	started := s.now()
	key := ledgerKey{clientID, year}
	unlock := s.locks.Lock(key)
	defer unlock()

	var created bool
	l, err := s.ledgers.MutateLedger(ctx, clientID, year, true, func(l *core.Ledger, c bool) error {
		created = c
		return l.UpdateFees(annualFee, monthlyFee)
	})
	s.metrics.ObserveLedgerOp(applog.OpUpdateFees, outcome(err), started)
	if err != nil {
		return nil, s.fail(ctx, applog.OpUpdateFees, key, err)
	}

	s.invalidate(key)
	if created {
		s.afterCreate(ctx, l, actor)
	}
	s.logger.InfoContext(ctx, "Fees updated",
		applog.NewFields().
			WithLedger(clientID, year).
			WithOperation(applog.OpUpdateFees).ToSlice()...)
	s.publish(ctx, core.LedgerEvent{
		Action:   core.AuditFeesUpdated,
		ClientID: clientID,
		Year:     year,
		Amount:   l.Schedule.AnnualCap(),
		Actor:    actor,
		Detail:   fmt.Sprintf("annual=%s monthly=%s", annualFee, monthlyFee),
	})
	return l, nil
}

// RecordPayment appends a payment to one slot. It is not idempotent: two
// identical calls record two transactions. The returned transaction carries
// its persisted ID.
func (s *LedgerService) RecordPayment(ctx context.Context, clientID int64, year, month int, in core.PaymentInput) (*core.Ledger, core.Transaction, error) {
	if err := core.ValidateYear(year); err != nil {
		return nil, core.Transaction{}, err
	}
	if err := in.Amount.Validate(); err != nil {
		return nil, core.Transaction{}, err
	}
	in.RecordedBy = actorOrDefault(in.RecordedBy)
	started := s.now()
	key := ledgerKey{clientID, year}
	unlock := s.locks.Lock(key)
	defer unlock()

	l, err := s.ledgers.MutateLedger(ctx, clientID, year, false, func(l *core.Ledger, _ bool) error {
		_, err := l.RecordPayment(month, in)
		return err
	})
	if errors.Is(err, core.ErrScheduleNotFound) {
		err = fmt.Errorf("%w: no fee schedule for %d", core.ErrObligationNotFound, year)
	}
	s.metrics.ObserveLedgerOp(applog.OpPayment, outcome(err), started)
	if err != nil {
		return nil, core.Transaction{}, s.fail(ctx, applog.OpPayment, key, err)
	}

	o := l.Obligation(month)
	tx := o.Transactions[len(o.Transactions)-1]
	s.invalidate(key)
	s.metrics.ObservePayment(tx.Amount.Cents)
	s.logger.InfoContext(ctx, "Payment recorded",
		applog.NewFields().
			WithLedger(clientID, year).
			WithPayment(month, tx.Amount.Cents, tx.RecordedBy).
			WithOperation(applog.OpPayment).ToSlice()...)
	s.publish(ctx, core.LedgerEvent{
		Action:      core.AuditPaymentRecorded,
		ClientID:    clientID,
		Year:        year,
		Month:       month,
		Amount:      tx.Amount,
		PaymentDate: tx.PaymentDate,
		Method:      tx.Method,
		Reference:   tx.Reference,
		Actor:       tx.RecordedBy,
		Detail:      fmt.Sprintf("balance=%s", o.Balance),
	})
	return l, tx, nil
}

// SetNotes replaces the notes of one obligation without touching money.
func (s *LedgerService) SetNotes(ctx context.Context, clientID int64, year, month int, notes, actor string) (*core.Obligation, error) {
	if err := core.ValidateYear(year); err != nil {
		return nil, err
	}
	started := s.now()
	key := ledgerKey{clientID, year}
	unlock := s.locks.Lock(key)
	defer unlock()

	l, err := s.ledgers.MutateLedger(ctx, clientID, year, false, func(l *core.Ledger, _ bool) error {
		return l.SetNotes(month, strings.TrimSpace(notes))
	})
	s.metrics.ObserveLedgerOp(applog.OpNotes, outcome(err), started)
	if err != nil {
		return nil, s.fail(ctx, applog.OpNotes, key, err)
	}
	s.publish(ctx, core.LedgerEvent{
		Action:   core.AuditNotesUpdated,
		ClientID: clientID,
		Year:     year,
		Month:    month,
		Actor:    actorOrDefault(actor),
	})
	return l.Obligation(month), nil
}

// Recalculate runs a full recalculation and persists it. Ledgers are always
// stored recalculated, so this only changes data written by older versions
// or by hand.
func (s *LedgerService) Recalculate(ctx context.Context, clientID int64, year int) (*core.Ledger, error) {
	started := s.now()
	key := ledgerKey{clientID, year}
	unlock := s.locks.Lock(key)
	defer unlock()

	l, err := s.ledgers.MutateLedger(ctx, clientID, year, false, func(l *core.Ledger, _ bool) error {
		l.Recalculate()
		return nil
	})
	s.metrics.ObserveLedgerOp(applog.OpRecalculate, outcome(err), started)
	if err != nil {
		return nil, s.fail(ctx, applog.OpRecalculate, key, err)
	}
	s.invalidate(key)
	return l, nil
}

// Summary totals an existing ledger. It never creates one and returns
// core.ErrScheduleNotFound when the schedule is absent.
func (s *LedgerService) Summary(ctx context.Context, clientID int64, year int) (core.Summary, error) {
	if err := core.ValidateYear(year); err != nil {
		return core.Summary{}, err
	}
	key := ledgerKey{clientID, year}
	if s.summaries != nil {
		if sum, ok := s.summaries.Get(key.String()); ok {
			s.metrics.ObserveSummaryCache(true)
			return sum, nil
		}
		s.metrics.ObserveSummaryCache(false)
		// Load and Set must not interleave with a mutation's invalidate.
		unlock := s.locks.Lock(key)
		defer unlock()
	}

	l, err := s.ledgers.LoadLedger(ctx, clientID, year)
	if err != nil {
		return core.Summary{}, err
	}
	sum := l.Summary()
	if s.summaries != nil {
		s.summaries.Set(key.String(), sum)
	}
	return sum, nil
}

// AvailableYears lists the years with a schedule plus the current year,
// newest first.
func (s *LedgerService) AvailableYears(ctx context.Context, clientID int64) ([]int, error) {
	if _, err := s.clients.GetClient(ctx, clientID); err != nil {
		return nil, err
	}
	years, err := s.ledgers.AvailableYears(ctx, clientID)
	if err != nil {
		return nil, err
	}
	if current := s.now().Year(); !slices.Contains(years, current) {
		years = append(years, current)
	}
	slices.SortFunc(years, func(a, b int) int { return b - a })
	return years, nil
}

// ForgetClient drops cached summaries of a deleted client.
func (s *LedgerService) ForgetClient(clientID int64) {
	if s.summaries != nil {
		s.summaries.DeletePrefix(fmt.Sprintf("%d:", clientID))
	}
}

func (s *LedgerService) afterCreate(ctx context.Context, l *core.Ledger, actor string) {
	s.metrics.ObserveLedgerCreated()
	s.logger.InfoContext(ctx, "Fee schedule created",
		applog.NewFields().WithLedger(l.Schedule.ClientID, l.Schedule.Year).ToSlice()...)
	s.publish(ctx, core.LedgerEvent{
		Action:   core.AuditLedgerCreated,
		ClientID: l.Schedule.ClientID,
		Year:     l.Schedule.Year,
		Actor:    actor,
	})
}

func (s *LedgerService) invalidate(key ledgerKey) {
	if s.summaries != nil {
		s.summaries.Delete(key.String())
	}
}

// publish runs after the commit; a failed publish is logged and the
// mutation still stands.
func (s *LedgerService) publish(ctx context.Context, ev core.LedgerEvent) {
	if s.publisher == nil {
		s.logger.DebugContext(ctx, "No event publisher configured, skipping ledger event",
			applog.FieldAction, ev.Action)
		return
	}
	ev.ID = uuid.New().String()
	ev.OccurredAt = s.now().UTC()
	if err := s.publisher.PublishLedgerEvent(ctx, ev); err != nil {
		s.metrics.ObserveEventPublished(ev.Action, metrics.OutcomeError)
		s.logger.ErrorContext(ctx, "Failed to publish ledger event",
			applog.NewFields().
				WithLedger(ev.ClientID, ev.Year).
				WithError(err).ToSlice()...)
		return
	}
	s.metrics.ObserveEventPublished(ev.Action, metrics.OutcomeOK)
}

// fail logs a failed operation. Business rejections log at warn, anything
// else at error; the error is returned unchanged.
func (s *LedgerService) fail(ctx context.Context, op string, key ledgerKey, err error) error {
	fields := applog.NewFields().
		WithLedger(key.clientID, key.year).
		WithOperation(op).
		WithError(err)
	if errors.Is(err, core.ErrAnnualCapExceeded) {
		s.metrics.ObserveCapRejection()
	}
	if isBusinessError(err) {
		s.logger.WarnContext(ctx, "Ledger operation rejected", fields.WithErrorType(applog.ErrorTypeValidation).ToSlice()...)
	} else {
		s.logger.ErrorContext(ctx, "Ledger operation failed", fields.WithErrorType(applog.ErrorTypeInternal).ToSlice()...)
	}
	return err
}

func isBusinessError(err error) bool {
	for _, target := range []error{
		core.ErrInvalidAmount, core.ErrAnnualCapExceeded, core.ErrObligationNotFound,
		core.ErrScheduleNotFound, core.ErrClientNotFound, core.ErrInvalidYear, core.ErrInvalidMonth,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func outcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeOK
	case isBusinessError(err):
		return metrics.OutcomeRejected
	default:
		return metrics.OutcomeError
	}
}

func actorOrDefault(actor string) string {
	if actor = strings.TrimSpace(actor); actor == "" {
		return DefaultActor
	}
	return actor
}
