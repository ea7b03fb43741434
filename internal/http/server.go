package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"estudio/internal/core"
	applog "estudio/internal/log"
	"estudio/internal/metrics"
	"estudio/internal/middleware/ratelimit"
	"estudio/internal/middleware/security"
	"estudio/internal/middleware/trace"
	"estudio/internal/services"
)

// LedgerAPI is the ledger surface the handlers need.
type LedgerAPI interface {
	GetOrCreate(ctx context.Context, clientID int64, year int) (*core.Ledger, error)
	SetFees(ctx context.Context, clientID int64, year int, annualFee, monthlyFee core.Money, actor string) (*core.Ledger, error)
	RecordPayment(ctx context.Context, clientID int64, year, month int, in core.PaymentInput) (*core.Ledger, core.Transaction, error)
	SetNotes(ctx context.Context, clientID int64, year, month int, notes, actor string) (*core.Obligation, error)
	Recalculate(ctx context.Context, clientID int64, year int) (*core.Ledger, error)
	Summary(ctx context.Context, clientID int64, year int) (core.Summary, error)
	AvailableYears(ctx context.Context, clientID int64) ([]int, error)
}

// ClientAPI is the client surface the handlers need.
type ClientAPI interface {
	Create(ctx context.Context, c core.Client) (core.Client, error)
	Get(ctx context.Context, id int64) (core.Client, error)
	List(ctx context.Context) ([]core.Client, error)
	Update(ctx context.Context, c core.Client) (core.Client, error)
	Delete(ctx context.Context, id int64) error
	AuditTrail(ctx context.Context, clientID int64, limit int) ([]core.AuditEntry, error)
}

// Pinger reports whether the data backend is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

var (
	_ LedgerAPI = (*services.LedgerService)(nil)
	_ ClientAPI = (*services.ClientService)(nil)
)

// Deps are the collaborators of the API server. Metrics, Store and Logger
// may be nil.
type Deps struct {
	Ledgers            LedgerAPI
	Clients            ClientAPI
	Store              Pinger
	Metrics            *metrics.Metrics
	Logger             *applog.Logger
	RateLimitPerMinute int
}

type Server struct {
	http.Server
	ledgers  LedgerAPI
	clients  ClientAPI
	store    Pinger
	metrics  *metrics.Metrics
	logger   *applog.Logger
	started  time.Time
	now      func() time.Time
	limiter  *ratelimit.Limiter
	detector *security.Detector

	shutdownOnce sync.Once
}

// NewServer wires routes and middleware, returning a ready-to-run server.
func NewServer(addr string, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	logger = logger.WithComponent(applog.ComponentHTTP)

	s := &Server{
		ledgers:  deps.Ledgers,
		clients:  deps.Clients,
		store:    deps.Store,
		metrics:  deps.Metrics,
		logger:   logger,
		started:  time.Now(),
		now:      time.Now,
		detector: security.NewDetector(logger),
		limiter: ratelimit.NewLimiter(ratelimit.Config{
			RequestsPerMinute: deps.RateLimitPerMinute,
			Logger:            logger,
		}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.Handle("GET /metrics", s.metricsHandler())

	mux.HandleFunc("GET /api/clients", s.handleListClients)
	mux.HandleFunc("POST /api/clients", s.handleCreateClient)
	mux.HandleFunc("GET /api/clients/{id}", s.handleGetClient)
	mux.HandleFunc("PUT /api/clients/{id}", s.handleUpdateClient)
	mux.HandleFunc("DELETE /api/clients/{id}", s.handleDeleteClient)
	mux.HandleFunc("GET /api/clients/{id}/audit", s.handleAuditTrail)

	mux.HandleFunc("GET /api/clients/{id}/finance", s.handleGetFinance)
	mux.HandleFunc("POST /api/clients/{id}/finance", s.handleSetFees)
	mux.HandleFunc("GET /api/clients/{id}/finance/summary", s.handleSummary)
	mux.HandleFunc("POST /api/clients/{id}/finance/recalculate", s.handleRecalculate)
	mux.HandleFunc("POST /api/clients/{id}/payments", s.handleRecordPayment)
	mux.HandleFunc("PUT /api/clients/{id}/obligations/{month}/notes", s.handleSetNotes)
	mux.HandleFunc("GET /api/clients/{id}/available-years", s.handleAvailableYears)

	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	tracer := trace.NewMiddleware(logger, s.detector.ExtractClientIP, s.metrics)
	requestLogger := applog.RequestIDMiddleware(func(r *http.Request) string {
		return trace.GetRequestID(r.Context())
	})

	var h http.Handler = trace.Route(mux)
	h = s.limiter.Middleware(s.detector.ExtractClientIP, s.handleRateLimited)(h)
	h = s.detector.Middleware(h)
	h = requestLogger(h)
	h = applog.Middleware(logger)(h)
	h = tracer.Middleware(h)
	h = headers.Middleware(h)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// Shutdown stops background goroutines and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func (s *Server) handleRateLimited(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusTooManyRequests, errorResponse{
		Error: "rate limit exceeded, try again later",
		Code:  "rate_limited",
	})
}
