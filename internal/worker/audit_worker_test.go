package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"estudio/internal/amqp"
	"estudio/internal/core"
	"estudio/internal/metrics"
	sheetsmem "estudio/internal/sheets/memory"
	"estudio/internal/storage/memory"
)

type failingAudit struct{ *memory.Store }

func (failingAudit) AppendAudit(context.Context, core.AuditEntry) (bool, error) {
	return false, errors.New("database is locked")
}

type sliceConsumer struct {
	events []core.LedgerEvent
	errs   []error
}

func (c *sliceConsumer) ConsumeLedgerEvents(ctx context.Context, h amqp.Handler) error {
	for _, ev := range c.events {
		c.errs = append(c.errs, h(ctx, ev))
	}
	return context.Canceled
}

func paymentEvent(id string, clientID int64) core.LedgerEvent {
	return core.LedgerEvent{
		ID:         id,
		Action:     core.AuditPaymentRecorded,
		ClientID:   clientID,
		Year:       2025,
		Month:      2,
		Amount:     core.Money{Cents: 4000},
		Actor:      "ana",
		OccurredAt: time.Date(2025, 2, 5, 0, 0, 0, 0, time.UTC),
	}
}

func TestHandleLedgerEventStoresAndExports(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	c, _ := store.CreateClient(ctx, core.Client{Name: "Andina", Email: "a@andina.pe"})
	exp := sheetsmem.New()
	w := NewAuditWorker(store, store, exp, metrics.New(), nil)

	if err := w.HandleLedgerEvent(ctx, paymentEvent("e1", c.ID)); err != nil {
		t.Fatalf("handle: %v", err)
	}
	// Redelivery must not duplicate either side effect.
	if err := w.HandleLedgerEvent(ctx, paymentEvent("e1", c.ID)); err != nil {
		t.Fatalf("redelivery: %v", err)
	}

	entries, _ := store.ListAudit(ctx, c.ID, 10)
	if len(entries) != 1 || entries[0].Actor != "ana" || entries[0].Month != 2 {
		t.Fatalf("unexpected audit %+v", entries)
	}
	rows := exp.Rows()
	if len(rows) != 1 || rows[0][0] != "Andina" || rows[0][4] != "40.00" {
		t.Fatalf("unexpected export %v", rows)
	}
}

func TestHandleLedgerEventOnlyExportsPayments(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	exp := sheetsmem.New()
	w := NewAuditWorker(store, store, exp, nil, nil)

	ev := paymentEvent("e1", 1)
	ev.Action = core.AuditFeesUpdated
	if err := w.HandleLedgerEvent(ctx, ev); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if rows := exp.Rows(); len(rows) != 0 {
		t.Fatalf("fees change exported: %v", rows)
	}
}

func TestHandleLedgerEventDeletedClientAndExportFailure(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	exp := sheetsmem.New()
	w := NewAuditWorker(store, store, exp, nil, nil)

	if err := w.HandleLedgerEvent(ctx, paymentEvent("e1", 77)); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if rows := exp.Rows(); len(rows) != 1 || rows[0][0] != "Cliente #77" {
		t.Fatalf("unexpected export %v", rows)
	}

	exp.Err = errors.New("sheets quota")
	if err := w.HandleLedgerEvent(ctx, paymentEvent("e2", 77)); err != nil {
		t.Fatalf("export failure must not fail the event: %v", err)
	}
}

func TestHandleLedgerEventStorageFailureRequeues(t *testing.T) {
	w := NewAuditWorker(failingAudit{memory.New()}, memory.New(), nil, nil, nil)
	if err := w.HandleLedgerEvent(context.Background(), paymentEvent("e1", 1)); err == nil {
		t.Fatal("expected error so the message is requeued")
	}
}

func TestRunAndInlinePublisher(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	w := NewAuditWorker(store, store, nil, nil, nil)

	consumer := &sliceConsumer{events: []core.LedgerEvent{paymentEvent("e1", 1), paymentEvent("e2", 1)}}
	if err := w.Run(ctx, consumer); err != nil {
		t.Fatalf("run: %v", err)
	}
	for i, err := range consumer.errs {
		if err != nil {
			t.Fatalf("event %d: %v", i, err)
		}
	}

	pub := InlinePublisher{Worker: w}
	if err := pub.PublishLedgerEvent(ctx, paymentEvent("e3", 1)); err != nil {
		t.Fatalf("inline publish: %v", err)
	}
	entries, _ := store.ListAudit(ctx, 1, 10)
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
}
