package services

import (
	"context"
	"fmt"

	"estudio/internal/core"
	applog "estudio/internal/log"
	"estudio/internal/ports"
)

const (
	defaultAuditLimit = 100
	maxAuditLimit     = 1000
)

// ClientService manages the client records that own fee schedules, and
// exposes their audit trail.
type ClientService struct {
	clients ports.ClientStore
	audit   ports.AuditStore
	ledgers *LedgerService
	logger  *applog.Logger
}

func NewClientService(clients ports.ClientStore, audit ports.AuditStore, ledgers *LedgerService, logger *applog.Logger) *ClientService {
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	return &ClientService{
		clients: clients,
		audit:   audit,
		ledgers: ledgers,
		logger:  logger.WithComponent(applog.ComponentClient),
	}
}

func (s *ClientService) Create(ctx context.Context, c core.Client) (core.Client, error) {
	if err := c.Validate(); err != nil {
		return core.Client{}, err
	}
	created, err := s.clients.CreateClient(ctx, c)
	if err != nil {
		return core.Client{}, err
	}
	s.logger.InfoContext(ctx, "Client created", applog.FieldClientID, created.ID)
	return created, nil
}

func (s *ClientService) Get(ctx context.Context, id int64) (core.Client, error) {
	return s.clients.GetClient(ctx, id)
}

func (s *ClientService) List(ctx context.Context) ([]core.Client, error) {
	return s.clients.ListClients(ctx)
}

// Update replaces the client's details. Fee schedules are untouched.
func (s *ClientService) Update(ctx context.Context, c core.Client) (core.Client, error) {
	if err := c.Validate(); err != nil {
		return core.Client{}, err
	}
	updated, err := s.clients.UpdateClient(ctx, c)
	if err != nil {
		return core.Client{}, err
	}
	s.logger.InfoContext(ctx, "Client updated", applog.FieldClientID, updated.ID)
	return updated, nil
}

// Delete removes the client together with every schedule, obligation and
// transaction it owns.
func (s *ClientService) Delete(ctx context.Context, id int64) error {
	if err := s.clients.DeleteClient(ctx, id); err != nil {
		return err
	}
	if s.ledgers != nil {
		s.ledgers.ForgetClient(id)
	}
	s.logger.InfoContext(ctx, "Client deleted", applog.FieldClientID, id)
	return nil
}

// AuditTrail returns the newest audit entries of a client. limit <= 0
// selects the default page size.
func (s *ClientService) AuditTrail(ctx context.Context, clientID int64, limit int) ([]core.AuditEntry, error) {
	if _, err := s.clients.GetClient(ctx, clientID); err != nil {
		return nil, err
	}
	switch {
	case limit <= 0:
		limit = defaultAuditLimit
	case limit > maxAuditLimit:
		limit = maxAuditLimit
	}
	entries, err := s.audit.ListAudit(ctx, clientID, limit)
	if err != nil {
		return nil, fmt.Errorf("list audit: %w", err)
	}
	return entries, nil
}
