// Package memory is an in-process implementation of the storage ports,
// used by tests and by DATA_BACKEND=memory.
package memory

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"estudio/internal/core"
	"estudio/internal/ports"
)

type ledgerKey struct {
	clientID int64
	year     int
}

type Store struct {
	mu      sync.Mutex
	nextID  int64
	clients map[int64]core.Client
	ledgers map[ledgerKey]*core.Ledger
	audit   []core.AuditEntry
	events  map[string]struct{}
}

var _ ports.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		clients: make(map[int64]core.Client),
		ledgers: make(map[ledgerKey]*core.Ledger),
		events:  make(map[string]struct{}),
	}
}

func (s *Store) Close() error { return nil }

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

// LoadLedger returns a copy; callers never hold stored state.
func (s *Store) LoadLedger(_ context.Context, clientID int64, year int) (*core.Ledger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.ledgers[ledgerKey{clientID, year}]
	if !ok {
		return nil, core.ErrScheduleNotFound
	}
	return l.Clone(), nil
}

// MutateLedger applies fn to a clone and swaps it in only when fn and the
// invariant check succeed.
func (s *Store) MutateLedger(_ context.Context, clientID int64, year int, create bool, fn ports.LedgerMutation) (*core.Ledger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := ledgerKey{clientID, year}
	var (
		work    *core.Ledger
		created bool
	)
	if l, ok := s.ledgers[key]; ok {
		work = l.Clone()
	} else {
		if !create {
			return nil, core.ErrScheduleNotFound
		}
		if _, ok := s.clients[clientID]; !ok {
			return nil, core.ErrClientNotFound
		}
		work = core.NewLedger(clientID, year, core.Money{}, core.Money{})
		created = true
	}

	if err := fn(work, created); err != nil {
		return nil, err
	}
	if err := work.CheckInvariants(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if work.Schedule.ID == 0 {
		work.Schedule.ID = s.id()
		work.Schedule.CreatedAt = now
	}
	work.Schedule.UpdatedAt = now
	for _, o := range work.Obligations {
		if o.ID == 0 {
			o.ID = s.id()
		}
		o.UpdatedAt = now
		for i := range o.Transactions {
			if o.Transactions[i].ID == 0 {
				o.Transactions[i].ID = s.id()
				o.Transactions[i].ObligationID = o.ID
			}
		}
	}
	s.ledgers[key] = work
	return work.Clone(), nil
}

func (s *Store) AvailableYears(_ context.Context, clientID int64) ([]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var years []int
	for k := range s.ledgers {
		if k.clientID == clientID {
			years = append(years, k.year)
		}
	}
	slices.SortFunc(years, func(a, b int) int { return cmp.Compare(b, a) })
	return years, nil
}

func (s *Store) CreateClient(_ context.Context, c core.Client) (core.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.Name = strings.TrimSpace(c.Name)
	c.Email = strings.ToLower(strings.TrimSpace(c.Email))
	for _, existing := range s.clients {
		if existing.Email == c.Email {
			return core.Client{}, core.ErrDuplicateClient
		}
	}
	c.ID = s.id()
	c.CreatedAt = time.Now().UTC()
	s.clients[c.ID] = c
	return c, nil
}

func (s *Store) GetClient(_ context.Context, id int64) (core.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.clients[id]
	if !ok {
		return core.Client{}, core.ErrClientNotFound
	}
	return c, nil
}

func (s *Store) ListClients(_ context.Context) ([]core.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Client, 0, len(s.clients))
	for _, c := range s.clients {
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b core.Client) int {
		return cmp.Or(cmp.Compare(a.Name, b.Name), cmp.Compare(a.ID, b.ID))
	})
	return out, nil
}

func (s *Store) UpdateClient(_ context.Context, c core.Client) (core.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.clients[c.ID]
	if !ok {
		return core.Client{}, core.ErrClientNotFound
	}
	c.Name = strings.TrimSpace(c.Name)
	c.Email = strings.ToLower(strings.TrimSpace(c.Email))
	for id, existing := range s.clients {
		if id != c.ID && existing.Email == c.Email {
			return core.Client{}, core.ErrDuplicateClient
		}
	}
	c.CreatedAt = current.CreatedAt
	s.clients[c.ID] = c
	return c, nil
}

func (s *Store) DeleteClient(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[id]; !ok {
		return core.ErrClientNotFound
	}
	delete(s.clients, id)
	for k := range s.ledgers {
		if k.clientID == id {
			delete(s.ledgers, k)
		}
	}
	return nil
}

func (s *Store) AppendAudit(_ context.Context, e core.AuditEntry) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.events[e.EventID]; dup {
		return false, nil
	}
	s.events[e.EventID] = struct{}{}
	e.ID = s.id()
	s.audit = append(s.audit, e)
	return true, nil
}

// ListAudit returns the newest entries first.
func (s *Store) ListAudit(_ context.Context, clientID int64, limit int) ([]core.AuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.AuditEntry
	for _, e := range s.audit {
		if e.ClientID == clientID {
			out = append(out, e)
		}
	}
	slices.SortStableFunc(out, func(a, b core.AuditEntry) int {
		return cmp.Or(b.OccurredAt.Compare(a.OccurredAt), cmp.Compare(b.ID, a.ID))
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
