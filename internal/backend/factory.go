package backend

import (
	"context"
	"errors"
	"fmt"

	"estudio/internal/amqp"
	applog "estudio/internal/log"
	gsheet "estudio/internal/sheets/google"
	sheetsmem "estudio/internal/sheets/memory"
	"estudio/internal/storage"
	"estudio/internal/storage/memory"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *applog.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *applog.Logger) Factory {
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	return &DefaultFactory{logger: logger.WithComponent(applog.ComponentBackend)}
}

// CreateBackend implements Factory.CreateBackend. The store is mandatory;
// the broker and the export degrade to nil with a warning. The memory
// backend keeps exported rows in memory unless a spreadsheet is set.
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	res := &BackendResult{}
	switch config.Type {
	case SQLiteBackend:
		repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
		}
		res.Store = repo
		f.logger.Info("Initialized SQLite backend", "db_path", config.SQLiteDBPath)
	case MemoryBackend:
		res.Store = memory.New()
		f.logger.Info("Initialized memory backend")
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}

	if config.AMQPURL != "" {
		client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
		if err != nil {
			f.logger.Warn("Failed to initialize AMQP client, continuing with in-process events", "error", err)
		} else {
			res.AMQP = client
			f.logger.Info("Initialized AMQP client",
				"exchange", config.AMQPExchange,
				"queue", config.AMQPQueue)
		}
	}

	if config.Sheets.SpreadsheetID != "" {
		exporter, err := gsheet.New(ctx, config.Sheets)
		if err != nil {
			f.logger.Warn("Failed to initialize Google Sheets export, payments will not be exported", "error", err)
		} else {
			res.Exporter = exporter
			f.logger.Info("Initialized Google Sheets export", "sheet", config.Sheets.SheetName)
		}
	} else if config.Type == MemoryBackend {
		res.Exporter = sheetsmem.New()
		f.logger.Info("Initialized in-memory collections export")
	}

	store, client := res.Store, res.AMQP
	res.Cleanup = func() error {
		var errs []error
		if client != nil {
			errs = append(errs, client.Close())
		}
		errs = append(errs, store.Close())
		return errors.Join(errs...)
	}
	return res, nil
}
