package memory

import (
	"context"
	"sync"

	"estudio/internal/core"
	"estudio/internal/ports"
	"estudio/internal/sheets"
)

// Exporter keeps collections rows in memory. It backs local runs without
// Google credentials and the worker tests.
type Exporter struct {
	mu   sync.Mutex
	rows [][]string
	// Err, when set, is returned by every export.
	Err error
}

var _ ports.PaymentExporter = (*Exporter)(nil)

func New() *Exporter { return &Exporter{} }

func (e *Exporter) ExportPayment(_ context.Context, c core.Client, ev core.LedgerEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.Err != nil {
		return e.Err
	}
	e.rows = append(e.rows, sheets.PaymentRow(c, ev))
	return nil
}

// Rows returns a copy of the exported rows in insertion order.
func (e *Exporter) Rows() [][]string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([][]string, len(e.rows))
	for i, r := range e.rows {
		out[i] = append([]string(nil), r...)
	}
	return out
}
