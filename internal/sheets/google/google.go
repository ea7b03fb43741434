package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"

	"estudio/internal/core"
	"estudio/internal/ports"
	"estudio/internal/sheets"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

const defaultSheetName = "Cobranzas"

// Config selects the spreadsheet and the service account used to write it.
type Config struct {
	SpreadsheetID   string
	SheetName       string // base name; the year is prefixed per sheet
	CredentialsJSON string
	CredentialsFile string
}

// Exporter appends recorded payments to a yearly collections sheet,
// creating "<year> <SheetName>" with a header row on first use.
type Exporter struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetBase     string

	mu    sync.Mutex
	known map[string]bool
}

var _ ports.PaymentExporter = (*Exporter)(nil)

func New(ctx context.Context, cfg Config) (*Exporter, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	svc, err := newSheetsService(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return newExporter(svc, cfg.SpreadsheetID, cfg.SheetName), nil
}

func newExporter(svc *gsheet.Service, spreadsheetID, sheetBase string) *Exporter {
	if strings.TrimSpace(sheetBase) == "" {
		sheetBase = defaultSheetName
	}
	return &Exporter{
		svc:           svc,
		spreadsheetID: strings.TrimSpace(spreadsheetID),
		sheetBase:     strings.TrimSpace(sheetBase),
		known:         make(map[string]bool),
	}
}

// newSheetsService authenticates with a service account, from inline JSON
// or from a file.
func newSheetsService(ctx context.Context, cfg Config) (*gsheet.Service, error) {
	credentialsFile := strings.TrimSpace(cfg.CredentialsFile)
	if cfg.CredentialsJSON == "" && credentialsFile == "" {
		credentialsFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	var credentialsJSON []byte
	switch {
	case strings.TrimSpace(cfg.CredentialsJSON) != "":
		credentialsJSON = []byte(cfg.CredentialsJSON)
	case credentialsFile != "":
		data, err := os.ReadFile(credentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		credentialsJSON = data
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	slog.InfoContext(ctx, "Creating Google Sheets service with Service Account",
		"credentials_size", len(credentialsJSON),
		"scope", gsheet.SpreadsheetsScope)

	svc, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return svc, nil
}

// ExportPayment implements ports.PaymentExporter.
func (e *Exporter) ExportPayment(ctx context.Context, client core.Client, ev core.LedgerEvent) error {
	if e.svc == nil {
		return errors.New("sheets service not initialized")
	}
	sheet := yearPrefixedName(e.sheetBase, ev.Year)
	if err := e.ensureSheet(ctx, sheet); err != nil {
		return err
	}

	vr := &gsheet.ValueRange{Values: [][]any{toValues(sheets.PaymentRow(client, ev))}}
	rng := sheetRange(sheet)
	resp, err := e.svc.Spreadsheets.Values.Append(e.spreadsheetID, rng, vr).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("append to %s: %w", sheet, err)
	}

	updated := ""
	if resp.Updates != nil {
		updated = resp.Updates.UpdatedRange
	}
	slog.DebugContext(ctx, "Appended collections row",
		"sheet", sheet,
		"range", updated,
		"event_id", ev.ID)
	return nil
}

// ensureSheet creates the yearly sheet with its header when the spreadsheet
// does not have it yet. Known sheets are remembered for the process
// lifetime.
func (e *Exporter) ensureSheet(ctx context.Context, title string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.known[title] {
		return nil
	}

	ss, err := e.svc.Spreadsheets.Get(e.spreadsheetID).
		Fields("sheets.properties.title").
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read spreadsheet: %w", err)
	}
	for _, s := range ss.Sheets {
		if s.Properties != nil {
			e.known[s.Properties.Title] = true
		}
	}
	if e.known[title] {
		return nil
	}

	add := &gsheet.BatchUpdateSpreadsheetRequest{Requests: []*gsheet.Request{{
		AddSheet: &gsheet.AddSheetRequest{Properties: &gsheet.SheetProperties{Title: title}},
	}}}
	if _, err := e.svc.Spreadsheets.BatchUpdate(e.spreadsheetID, add).Context(ctx).Do(); err != nil {
		return fmt.Errorf("create sheet %s: %w", title, err)
	}
	header := &gsheet.ValueRange{Values: [][]any{toValues(sheets.PaymentHeader)}}
	_, err = e.svc.Spreadsheets.Values.Update(e.spreadsheetID, title+"!A1", header).
		ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("write header of %s: %w", title, err)
	}
	e.known[title] = true

	slog.InfoContext(ctx, "Created collections sheet", "sheet", title)
	return nil
}

func sheetRange(title string) string {
	return fmt.Sprintf("%s!A:%c", title, 'A'+len(sheets.PaymentHeader)-1)
}

func toValues(row []string) []any {
	out := make([]any, len(row))
	for i, v := range row {
		out[i] = v
	}
	return out
}

// yearPrefixedName returns "<year> <base>" unless base already starts with a 4-digit year.
func yearPrefixedName(base string, year int) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return base
	}
	if len(base) >= 5 {
		if y, err := strconv.Atoi(base[0:4]); err == nil && base[4] == ' ' && y > 1900 && y < 3000 {
			return base
		}
	}
	return fmt.Sprintf("%d %s", year, base)
}
