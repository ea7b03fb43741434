package http

import (
	"net/http"

	"estudio/internal/core"
	applog "estudio/internal/log"
)

// handleGetFinance returns the ledger for ?year=, creating an empty one on
// first access.
func (s *Server) handleGetFinance(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, applog.OpRead, err)
		return
	}
	year, err := queryYear(r, s.now())
	if err != nil {
		s.writeError(w, r, applog.OpRead, err)
		return
	}
	l, err := s.ledgers.GetOrCreate(r.Context(), id, year)
	if err != nil {
		s.writeError(w, r, applog.OpRead, err)
		return
	}
	writeJSON(w, http.StatusOK, newLedgerResponse(l))
}

// handleSetFees creates or updates the year's fees; both answer 201.
func (s *Server) handleSetFees(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, applog.OpUpdateFees, err)
		return
	}
	var req feesRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, applog.OpUpdateFees, err)
		return
	}
	year, err := bodyYear(req.Year, r, s.now())
	if err != nil {
		s.writeError(w, r, applog.OpUpdateFees, err)
		return
	}
	l, err := s.ledgers.SetFees(r.Context(), id, year, req.AnnualFee, req.MonthlyFee, actor(r))
	if err != nil {
		s.writeError(w, r, applog.OpUpdateFees, err)
		return
	}
	writeJSON(w, http.StatusCreated, newLedgerResponse(l))
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, applog.OpRead, err)
		return
	}
	year, err := queryYear(r, s.now())
	if err != nil {
		s.writeError(w, r, applog.OpRead, err)
		return
	}
	sum, err := s.ledgers.Summary(r.Context(), id, year)
	if err != nil {
		s.writeError(w, r, applog.OpRead, err)
		return
	}
	writeJSON(w, http.StatusOK, newSummaryResponse(sum))
}

func (s *Server) handleRecalculate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, applog.OpRecalculate, err)
		return
	}
	year, err := queryYear(r, s.now())
	if err != nil {
		s.writeError(w, r, applog.OpRecalculate, err)
		return
	}
	l, err := s.ledgers.Recalculate(r.Context(), id, year)
	if err != nil {
		s.writeError(w, r, applog.OpRecalculate, err)
		return
	}
	writeJSON(w, http.StatusOK, newLedgerResponse(l))
}

// handleRecordPayment appends one payment. Retrying the same request
// records a second payment.
func (s *Server) handleRecordPayment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, applog.OpPayment, err)
		return
	}
	var req paymentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, applog.OpPayment, err)
		return
	}
	year, err := bodyYear(req.Year, r, s.now())
	if err != nil {
		s.writeError(w, r, applog.OpPayment, err)
		return
	}
	date, err := parsePaymentDate(req.PaymentDate)
	if err != nil {
		s.writeError(w, r, applog.OpPayment, err)
		return
	}

	l, tx, err := s.ledgers.RecordPayment(r.Context(), id, year, req.Month, core.PaymentInput{
		Amount:      req.Amount,
		PaymentDate: date,
		Method:      sanitizeInput(req.PaymentMethod),
		Reference:   sanitizeInput(req.Reference),
		Notes:       sanitizeInput(req.Notes),
		RecordedBy:  actor(r),
	})
	if err != nil {
		s.writeError(w, r, applog.OpPayment, err)
		return
	}
	writeJSON(w, http.StatusCreated, paymentResponse{
		Transaction: newTransactionResponse(tx),
		Obligation:  newObligationResponse(l.Obligation(req.Month)),
		Ledger:      newLedgerResponse(l),
	})
}

func (s *Server) handleSetNotes(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, applog.OpNotes, err)
		return
	}
	month, err := pathMonth(r)
	if err != nil {
		s.writeError(w, r, applog.OpNotes, err)
		return
	}
	year, err := queryYear(r, s.now())
	if err != nil {
		s.writeError(w, r, applog.OpNotes, err)
		return
	}
	var req notesRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, applog.OpNotes, err)
		return
	}
	o, err := s.ledgers.SetNotes(r.Context(), id, year, month, req.Notes, actor(r))
	if err != nil {
		s.writeError(w, r, applog.OpNotes, err)
		return
	}
	writeJSON(w, http.StatusOK, newObligationResponse(o))
}

func (s *Server) handleAvailableYears(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, applog.OpList, err)
		return
	}
	years, err := s.ledgers.AvailableYears(r.Context(), id)
	if err != nil {
		s.writeError(w, r, applog.OpList, err)
		return
	}
	writeJSON(w, http.StatusOK, yearsResponse{ClientID: id, Years: years})
}
