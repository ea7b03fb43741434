package core

import (
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"
)

const (
	// MonthsPerYear is the number of calendar billing months.
	MonthsPerYear = 12
	// AnnualSlot is the 13th obligation holding the annual declaration fee.
	AnnualSlot = 13
	// SlotCount is the number of obligations owned by every fee schedule.
	SlotCount = 13

	minYear = 1900
	maxYear = 9999
)

var (
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrAnnualCapExceeded  = errors.New("annual cap exceeded")
	ErrObligationNotFound = errors.New("obligation not found")
	ErrScheduleNotFound   = errors.New("fee schedule not found")
	ErrClientNotFound     = errors.New("client not found")
	ErrDuplicateClient    = errors.New("client email already registered")
	ErrInvalidYear        = errors.New("invalid year")
	ErrInvalidMonth       = errors.New("invalid month")
	ErrEmptyName          = errors.New("empty client name")
	ErrInvalidEmail       = errors.New("invalid client email")
)

// Spanish month labels used on invoices and statements; slot 13 is the
// annual sworn declaration.
var monthNames = [SlotCount]string{
	"Enero", "Febrero", "Marzo", "Abril", "Mayo", "Junio",
	"Julio", "Agosto", "Septiembre", "Octubre", "Noviembre", "Diciembre",
	"DJ Anual",
}

// MonthName returns the display label for a billing slot.
func MonthName(month int) string {
	if month < 1 || month > SlotCount {
		return fmt.Sprintf("Mes %d", month)
	}
	return monthNames[month-1]
}

// ValidateYear checks that a fiscal year is in a sane range.
func ValidateYear(year int) error {
	if year < minYear || year > maxYear {
		return ErrInvalidYear
	}
	return nil
}

// ValidateSlot checks that month addresses one of the 13 billing slots.
func ValidateSlot(month int) error {
	if month < 1 || month > SlotCount {
		return ErrInvalidMonth
	}
	return nil
}

// Client is the owner of fee schedules.
type Client struct {
	ID          int64
	Name        string
	DNI         string
	CompanyName string
	CompanyRUC  string
	Email       string
	Phone       string
	Address     string
	City        string
	State       string
	CreatedAt   time.Time
}

func (c Client) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return ErrEmptyName
	}
	if len(c.Name) > 255 {
		return errors.New("name too long (max 255 characters)")
	}
	if _, err := mail.ParseAddress(c.Email); err != nil {
		return ErrInvalidEmail
	}
	if len(c.DNI) > 20 || len(c.CompanyRUC) > 20 {
		return errors.New("document number too long (max 20 characters)")
	}
	if len(c.Phone) > 20 {
		return errors.New("phone too long (max 20 characters)")
	}
	return nil
}

// Audit actions recorded for ledger events.
const (
	AuditLedgerCreated   = "ledger.created"
	AuditFeesUpdated     = "fees.updated"
	AuditPaymentRecorded = "payment.recorded"
	AuditNotesUpdated    = "notes.updated"
)

// AuditEntry is one line of the audit trail.
type AuditEntry struct {
	ID         int64
	EventID    string
	ClientID   int64
	Year       int
	Month      int // 0 when the action is not tied to a slot
	Action     string
	Amount     Money
	Actor      string
	Detail     string
	OccurredAt time.Time
}
