package http

import (
	"net/http"

	applog "estudio/internal/log"
)

func (s *Server) handleListClients(w http.ResponseWriter, r *http.Request) {
	clients, err := s.clients.List(r.Context())
	if err != nil {
		s.writeError(w, r, applog.OpList, err)
		return
	}
	resp := make([]clientResponse, 0, len(clients))
	for _, c := range clients {
		resp = append(resp, newClientResponse(c))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCreateClient(w http.ResponseWriter, r *http.Request) {
	var req clientRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, applog.OpCreate, err)
		return
	}
	c := req.toCore()
	if err := c.Validate(); err != nil {
		s.writeError(w, r, applog.OpCreate, invalidInput(err))
		return
	}
	created, err := s.clients.Create(r.Context(), c)
	if err != nil {
		s.writeError(w, r, applog.OpCreate, err)
		return
	}
	writeJSON(w, http.StatusCreated, newClientResponse(created))
}

func (s *Server) handleGetClient(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, applog.OpRead, err)
		return
	}
	c, err := s.clients.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, r, applog.OpRead, err)
		return
	}
	writeJSON(w, http.StatusOK, newClientResponse(c))
}

func (s *Server) handleUpdateClient(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, applog.OpUpdate, err)
		return
	}
	var req clientRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, applog.OpUpdate, err)
		return
	}
	c := req.toCore()
	c.ID = id
	if err := c.Validate(); err != nil {
		s.writeError(w, r, applog.OpUpdate, invalidInput(err))
		return
	}
	updated, err := s.clients.Update(r.Context(), c)
	if err != nil {
		s.writeError(w, r, applog.OpUpdate, err)
		return
	}
	writeJSON(w, http.StatusOK, newClientResponse(updated))
}

// handleDeleteClient removes the client and everything it owns.
func (s *Server) handleDeleteClient(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, applog.OpDelete, err)
		return
	}
	if err := s.clients.Delete(r.Context(), id); err != nil {
		s.writeError(w, r, applog.OpDelete, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAuditTrail(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, applog.OpAudit, err)
		return
	}
	limit, err := queryLimit(r)
	if err != nil {
		s.writeError(w, r, applog.OpAudit, err)
		return
	}
	entries, err := s.clients.AuditTrail(r.Context(), id, limit)
	if err != nil {
		s.writeError(w, r, applog.OpAudit, err)
		return
	}
	resp := make([]auditResponse, 0, len(entries))
	for _, e := range entries {
		resp = append(resp, newAuditResponse(e))
	}
	writeJSON(w, http.StatusOK, resp)
}
