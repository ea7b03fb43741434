package backend

import (
	"context"

	"estudio/internal/amqp"
	"estudio/internal/ports"
	gsheet "estudio/internal/sheets/google"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult holds the wired outbound adapters. AMQP and Exporter are nil
// when not configured or unreachable at startup.
type BackendResult struct {
	Store    ports.Store
	AMQP     *amqp.Client
	Exporter ports.PaymentExporter
	Cleanup  CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	// SQLite specific
	SQLiteDBPath string

	// Optional event broker
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Optional collections export; zero SpreadsheetID disables it
	Sheets gsheet.Config
}

// BackendType represents the type of backend
type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	MemoryBackend BackendType = "memory"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
