package worker

import (
	"context"
	"errors"
	"fmt"

	"estudio/internal/amqp"
	"estudio/internal/core"
	applog "estudio/internal/log"
	"estudio/internal/metrics"
	"estudio/internal/ports"
)

// Consumer delivers ledger events until its context ends.
type Consumer interface {
	ConsumeLedgerEvents(ctx context.Context, handler amqp.Handler) error
}

// AuditWorker turns ledger events into audit entries and, for payments,
// rows in the collections export.
type AuditWorker struct {
	audit    ports.AuditStore
	clients  ports.ClientStore
	exporter ports.PaymentExporter
	metrics  *metrics.Metrics
	logger   *applog.Logger
}

// NewAuditWorker builds a worker. exporter and m may be nil.
func NewAuditWorker(audit ports.AuditStore, clients ports.ClientStore, exporter ports.PaymentExporter, m *metrics.Metrics, logger *applog.Logger) *AuditWorker {
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	return &AuditWorker{
		audit:    audit,
		clients:  clients,
		exporter: exporter,
		metrics:  m,
		logger:   logger.WithComponent(applog.ComponentWorker),
	}
}

// Run consumes events from c until ctx is cancelled.
func (w *AuditWorker) Run(ctx context.Context, c Consumer) error {
	w.logger.InfoContext(ctx, "Audit worker started", applog.FieldOperation, applog.OpStartup)
	err := c.ConsumeLedgerEvents(ctx, w.HandleLedgerEvent)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// HandleLedgerEvent stores the audit entry for ev. Redelivered events are
// recognised by their ID and skipped. A storage error is returned so the
// message is requeued; the export is best effort and never fails the event.
func (w *AuditWorker) HandleLedgerEvent(ctx context.Context, ev core.LedgerEvent) error {
	inserted, err := w.audit.AppendAudit(ctx, ev.AuditEntry())
	if err != nil {
		w.metrics.ObserveEventConsumed(ev.Action, metrics.OutcomeError)
		return fmt.Errorf("append audit entry: %w", err)
	}
	if !inserted {
		w.metrics.ObserveEventConsumed(ev.Action, "duplicate")
		w.logger.DebugContext(ctx, "Duplicate ledger event ignored", applog.FieldEventID, ev.ID)
		return nil
	}
	w.metrics.ObserveEventConsumed(ev.Action, metrics.OutcomeOK)

	fields := applog.NewFields().
		WithLedger(ev.ClientID, ev.Year).
		WithOperation(applog.OpAudit)
	fields[applog.FieldAction] = ev.Action
	fields[applog.FieldEventID] = ev.ID
	w.logger.InfoContext(ctx, "Audit entry stored", fields.ToSlice()...)

	if ev.Action == core.AuditPaymentRecorded {
		w.export(ctx, ev)
	}
	return nil
}

func (w *AuditWorker) export(ctx context.Context, ev core.LedgerEvent) {
	if w.exporter == nil {
		return
	}
	client, err := w.clients.GetClient(ctx, ev.ClientID)
	if errors.Is(err, core.ErrClientNotFound) {
		client = core.Client{ID: ev.ClientID, Name: fmt.Sprintf("Cliente #%d", ev.ClientID)}
	} else if err != nil {
		w.logger.ErrorContext(ctx, "Failed to load client for export",
			applog.NewFields().WithLedger(ev.ClientID, ev.Year).WithError(err).ToSlice()...)
		return
	}
	if err := w.exporter.ExportPayment(ctx, client, ev); err != nil {
		w.logger.ErrorContext(ctx, "Failed to export payment",
			applog.NewFields().
				WithLedger(ev.ClientID, ev.Year).
				WithOperation(applog.OpExport).
				WithErrorType(applog.ErrorTypeNetwork).
				WithError(err).ToSlice()...)
		return
	}
	w.logger.InfoContext(ctx, "Payment exported",
		applog.NewFields().WithLedger(ev.ClientID, ev.Year).WithOperation(applog.OpExport).ToSlice()...)
}

// InlinePublisher hands events straight to a worker in the same process.
// It stands in for the broker when AMQP is not configured.
type InlinePublisher struct {
	Worker *AuditWorker
}

func (p InlinePublisher) PublishLedgerEvent(ctx context.Context, ev core.LedgerEvent) error {
	return p.Worker.HandleLedgerEvent(ctx, ev)
}
