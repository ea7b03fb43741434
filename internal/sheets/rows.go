// Package sheets holds the collections report layout shared by the
// exporters.
package sheets

import (
	"strconv"
	"strings"

	"estudio/internal/core"
)

const dateLayout = "2006-01-02"

// PaymentHeader is the first row of every yearly collections sheet.
var PaymentHeader = []string{
	"Cliente", "RUC", "Año", "Mes", "Importe", "Fecha de pago",
	"Método", "Referencia", "Registrado por", "Evento",
}

// PaymentRow lays out one recorded payment in PaymentHeader order.
func PaymentRow(c core.Client, ev core.LedgerEvent) []string {
	name := strings.TrimSpace(c.CompanyName)
	if name == "" {
		name = c.Name
	}
	paid := ev.PaymentDate
	if paid.IsZero() {
		paid = ev.OccurredAt
	}
	return []string{
		name,
		c.CompanyRUC,
		strconv.Itoa(ev.Year),
		core.MonthName(ev.Month),
		ev.Amount.String(),
		paid.Format(dateLayout),
		ev.Method,
		ev.Reference,
		ev.Actor,
		ev.ID,
	}
}
