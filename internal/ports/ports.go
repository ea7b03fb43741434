// Package ports declares the outbound interfaces the services depend on.
// The sqlite and memory stores implement the storage ports; the amqp client
// and the Google Sheets exporter implement the messaging and export ports.
package ports

import (
	"context"

	"estudio/internal/core"
)

type (
	// LedgerMutation changes a loaded ledger. created reports whether the
	// ledger was seeded inside the same unit of work. Returning an error
	// aborts the unit of work and nothing is persisted.
	LedgerMutation func(l *core.Ledger, created bool) error

	LedgerStore interface {
		// LoadLedger returns the schedule, its 13 obligations and their
		// transactions, or core.ErrScheduleNotFound.
		LoadLedger(ctx context.Context, clientID int64, year int) (*core.Ledger, error)

		// MutateLedger loads the ledger, applies fn and persists the result
		// as one all-or-nothing unit. When create is true a missing ledger is
		// seeded with zero fees first; otherwise core.ErrScheduleNotFound is
		// returned. A missing client yields core.ErrClientNotFound.
		MutateLedger(ctx context.Context, clientID int64, year int, create bool, fn LedgerMutation) (*core.Ledger, error)

		// AvailableYears lists the years with a fee schedule, newest first.
		AvailableYears(ctx context.Context, clientID int64) ([]int, error)
	}

	ClientStore interface {
		CreateClient(ctx context.Context, c core.Client) (core.Client, error)
		GetClient(ctx context.Context, id int64) (core.Client, error)
		ListClients(ctx context.Context) ([]core.Client, error)
		// UpdateClient replaces the editable fields of an existing client;
		// ID and CreatedAt are kept.
		UpdateClient(ctx context.Context, c core.Client) (core.Client, error)
		// DeleteClient removes the client and cascades to its ledgers.
		DeleteClient(ctx context.Context, id int64) error
	}

	AuditStore interface {
		// AppendAudit stores the entry unless one with the same EventID
		// exists; inserted is false for duplicates.
		AppendAudit(ctx context.Context, e core.AuditEntry) (inserted bool, err error)
		ListAudit(ctx context.Context, clientID int64, limit int) ([]core.AuditEntry, error)
	}

	// Store is everything a data backend provides.
	Store interface {
		LedgerStore
		ClientStore
		AuditStore
		Ping(ctx context.Context) error
		Close() error
	}

	EventPublisher interface {
		PublishLedgerEvent(ctx context.Context, ev core.LedgerEvent) error
	}

	// PaymentExporter copies a recorded payment to an external collections
	// report.
	PaymentExporter interface {
		ExportPayment(ctx context.Context, client core.Client, ev core.LedgerEvent) error
	}
)
