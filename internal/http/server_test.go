package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"estudio/internal/metrics"
	"estudio/internal/services"
	"estudio/internal/storage/memory"
	"estudio/internal/worker"
)

type testAPI struct {
	srv   *Server
	store *memory.Store
}

func newTestAPI(t *testing.T, perMinute int) *testAPI {
	t.Helper()
	store := memory.New()
	audit := worker.NewAuditWorker(store, store, nil, nil, nil)
	ledgers := services.NewLedgerService(store, store,
		services.WithPublisher(worker.InlinePublisher{Worker: audit}))
	clients := services.NewClientService(store, store, ledgers, nil)

	srv := NewServer(":0", Deps{
		Ledgers:            ledgers,
		Clients:            clients,
		Store:              store,
		Metrics:            metrics.New(),
		RateLimitPerMinute: perMinute,
	})
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return &testAPI{srv: srv, store: store}
}

func (a *testAPI) do(t *testing.T, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rr := httptest.NewRecorder()
	a.srv.Handler.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), "body: %s", rr.Body.String())
	return v
}

func (a *testAPI) createClient(t *testing.T, name, email string) int64 {
	t.Helper()
	rr := a.do(t, http.MethodPost, "/api/clients", `{"name":"`+name+`","email":"`+email+`","company_ruc":"20123456789"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	return decode[clientResponse](t, rr).ID
}

func clientPath(id int64, suffix string) string {
	return "/api/clients/" + strconv.FormatInt(id, 10) + suffix
}

func assertError(t *testing.T, rr *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	require.Equal(t, status, rr.Code, rr.Body.String())
	assert.Equal(t, code, decode[errorResponse](t, rr).Code)
}

func TestHealthReadyAndMetrics(t *testing.T) {
	api := newTestAPI(t, 100)

	rr := api.do(t, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", decode[map[string]any](t, rr)["status"])

	rr = api.do(t, http.MethodGet, "/readyz", "")
	require.Equal(t, http.StatusOK, rr.Code)
	ready := decode[map[string]any](t, rr)
	assert.Equal(t, "ready", ready["status"])
	assert.Equal(t, "ok", ready["checks"].(map[string]any)["store"])

	rr = api.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "estudio_http_requests_total")
}

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("database is locked") }

func TestReadyReportsStoreFailure(t *testing.T) {
	api := newTestAPI(t, 100)
	api.srv.store = failingPinger{}

	rr := api.do(t, http.MethodGet, "/readyz", "")
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	body := decode[map[string]any](t, rr)
	assert.Equal(t, "not_ready", body["status"])
	assert.NotContains(t, rr.Body.String(), "database is locked")
}

func TestResponsesCarrySecurityHeadersAndRequestID(t *testing.T) {
	api := newTestAPI(t, 100)

	rr := api.do(t, http.MethodGet, "/api/clients", "", "X-Request-ID", "abc-123")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "abc-123", rr.Header().Get("X-Request-ID"))
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "default-src 'none'; frame-ancestors 'none'", rr.Header().Get("Content-Security-Policy"))
	assert.Equal(t, "application/json; charset=utf-8", rr.Header().Get("Content-Type"))
	assert.JSONEq(t, `[]`, rr.Body.String())
}

func TestClientLifecycle(t *testing.T) {
	api := newTestAPI(t, 100)

	id := api.createClient(t, "Ana Torres", "ana@example.com")

	rr := api.do(t, http.MethodGet, clientPath(id, ""), "")
	require.Equal(t, http.StatusOK, rr.Code)
	got := decode[clientResponse](t, rr)
	assert.Equal(t, "Ana Torres", got.Name)
	assert.Equal(t, "20123456789", got.CompanyRUC)

	rr = api.do(t, http.MethodGet, "/api/clients", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode[[]clientResponse](t, rr), 1)

	assertError(t, api.do(t, http.MethodPost, "/api/clients", `{"name":"Otra","email":"ana@example.com"}`),
		http.StatusConflict, "duplicate_client")
	assertError(t, api.do(t, http.MethodPost, "/api/clients", `{"name":"","email":"x@example.com"}`),
		http.StatusUnprocessableEntity, "validation_error")
	assertError(t, api.do(t, http.MethodPost, "/api/clients", `{"name":"Luis","email":"not-an-email"}`),
		http.StatusUnprocessableEntity, "validation_error")
	assertError(t, api.do(t, http.MethodPost, "/api/clients", `{"name":"Luis","email":"l@example.com","age":3}`),
		http.StatusBadRequest, "bad_request")

	rr = api.do(t, http.MethodPut, clientPath(id, ""), `{"name":"Ana Torres Ruiz","email":"Ana.Torres@example.com","city":"Cusco"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	updated := decode[clientResponse](t, rr)
	assert.Equal(t, id, updated.ID)
	assert.Equal(t, "Ana Torres Ruiz", updated.Name)
	assert.Equal(t, "ana.torres@example.com", updated.Email)
	assert.Equal(t, "Cusco", updated.City)
	assert.Empty(t, updated.CompanyRUC)

	api.createClient(t, "Luis Paz", "luis@example.com")
	assertError(t, api.do(t, http.MethodPut, clientPath(id, ""), `{"name":"Ana","email":"luis@example.com"}`),
		http.StatusConflict, "duplicate_client")
	assertError(t, api.do(t, http.MethodPut, clientPath(id, ""), `{"name":"","email":"ana@example.com"}`),
		http.StatusUnprocessableEntity, "validation_error")
	assertError(t, api.do(t, http.MethodPut, clientPath(999, ""), `{"name":"Nadie","email":"nadie@example.com"}`),
		http.StatusNotFound, "client_not_found")

	rr = api.do(t, http.MethodDelete, clientPath(id, ""), "")
	require.Equal(t, http.StatusNoContent, rr.Code)
	assertError(t, api.do(t, http.MethodGet, clientPath(id, ""), ""), http.StatusNotFound, "client_not_found")
	assertError(t, api.do(t, http.MethodDelete, clientPath(id, ""), ""), http.StatusNotFound, "client_not_found")
	assertError(t, api.do(t, http.MethodGet, "/api/clients/abc", ""), http.StatusBadRequest, "bad_request")
}

func TestFinanceFlow(t *testing.T) {
	api := newTestAPI(t, 100)
	id := api.createClient(t, "Ana Torres", "ana@example.com")

	rr := api.do(t, http.MethodPost, clientPath(id, "/finance"),
		`{"year":2025,"annual_fee":"200.00","monthly_fee":160}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	ledger := decode[ledgerResponse](t, rr)
	assert.Equal(t, 2025, ledger.Year)
	assert.Equal(t, "2120.00", ledger.AnnualCap.String())
	require.Len(t, ledger.Obligations, 13)
	assert.Equal(t, "160.00", ledger.Obligations[0].AmountDue.String())
	assert.Equal(t, "Enero", ledger.Obligations[0].MonthName)
	assert.Equal(t, "DJ Anual", ledger.Obligations[12].MonthName)
	assert.Equal(t, "200.00", ledger.Obligations[12].AmountDue.String())

	rr = api.do(t, http.MethodPost, clientPath(id, "/payments"),
		`{"year":2025,"month":1,"amount":"100.00","payment_date":"2025-01-15","payment_method":"transfer","reference":"OP-1"}`,
		"X-User", "maria")
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	payment := decode[paymentResponse](t, rr)
	assert.Equal(t, "maria", payment.Transaction.RecordedBy)
	assert.Equal(t, "2025-01-15", payment.Transaction.PaymentDate.Format("2006-01-02"))
	assert.Equal(t, "60.00", payment.Obligation.Balance.String())
	assert.False(t, payment.Obligation.IsPaid)
	assert.Equal(t, "100.00", payment.Ledger.TotalPaid.String())
	assert.Equal(t, "220.00", payment.Ledger.Obligations[1].AmountDue.String(), "unpaid remainder carries into February")

	rr = api.do(t, http.MethodGet, clientPath(id, "/finance/summary?year=2025"), "")
	require.Equal(t, http.StatusOK, rr.Code)
	sum := decode[summaryResponse](t, rr)
	assert.Equal(t, "100.00", sum.TotalPaid.String())
	assert.Equal(t, 0, sum.PaidCount)
	assert.Equal(t, 13, sum.PendingCount)

	rr = api.do(t, http.MethodPut, clientPath(id, "/obligations/3/notes?year=2025"), `{"notes":"  factura pendiente "}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	notes := decode[obligationResponse](t, rr)
	assert.Equal(t, "factura pendiente", notes.Notes)
	assert.Equal(t, "Marzo", notes.MonthName)

	rr = api.do(t, http.MethodPost, clientPath(id, "/finance/recalculate?year=2025"), "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "100.00", decode[ledgerResponse](t, rr).TotalPaid.String())

	rr = api.do(t, http.MethodGet, clientPath(id, "/finance?year=2025"), "")
	require.Equal(t, http.StatusOK, rr.Code)
	again := decode[ledgerResponse](t, rr)
	assert.Equal(t, "factura pendiente", again.Obligations[2].Notes)
	require.Len(t, again.Obligations[0].Transactions, 1)
	assert.Equal(t, "OP-1", again.Obligations[0].Transactions[0].Reference)
}

func TestPaymentErrors(t *testing.T) {
	api := newTestAPI(t, 100)
	id := api.createClient(t, "Ana Torres", "ana@example.com")
	rr := api.do(t, http.MethodPost, clientPath(id, "/finance"), `{"year":2025,"annual_fee":"200","monthly_fee":"160"}`)
	require.Equal(t, http.StatusCreated, rr.Code)

	tests := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{"over the annual cap", `{"year":2025,"month":1,"amount":"2120.01"}`, http.StatusConflict, "annual_cap_exceeded"},
		{"unparseable amount", `{"year":2025,"month":1,"amount":"abc"}`, http.StatusUnprocessableEntity, "invalid_amount"},
		{"negative amount", `{"year":2025,"month":1,"amount":"-5"}`, http.StatusUnprocessableEntity, "invalid_amount"},
		{"zero amount", `{"year":2025,"month":1,"amount":0}`, http.StatusUnprocessableEntity, "invalid_amount"},
		{"amount too large", `{"year":2025,"month":1,"amount":"100000000.00"}`, http.StatusUnprocessableEntity, "invalid_amount"},
		{"month out of range", `{"year":2025,"month":14,"amount":"10"}`, http.StatusNotFound, "obligation_not_found"},
		{"no schedule for year", `{"year":2024,"month":1,"amount":"10"}`, http.StatusNotFound, "obligation_not_found"},
		{"bad date", `{"year":2025,"month":1,"amount":"10","payment_date":"15/01/2025"}`, http.StatusUnprocessableEntity, "validation_error"},
		{"empty body", ``, http.StatusBadRequest, "bad_request"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assertError(t, api.do(t, http.MethodPost, clientPath(id, "/payments"), tt.body), tt.status, tt.code)
		})
	}

	rr = api.do(t, http.MethodGet, clientPath(id, "/finance/summary?year=2025"), "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "0.00", decode[summaryResponse](t, rr).TotalPaid.String(), "rejected payments leave no trace")

	rr = api.do(t, http.MethodPost, clientPath(id, "/payments"), `{"year":2025,"month":13,"amount":"2120.00"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	assertError(t, api.do(t, http.MethodPost, clientPath(id, "/payments"), `{"year":2025,"month":2,"amount":"0.01"}`),
		http.StatusConflict, "annual_cap_exceeded")
}

func TestFeeUpdateBelowCollectedIsRejected(t *testing.T) {
	api := newTestAPI(t, 100)
	id := api.createClient(t, "Ana Torres", "ana@example.com")
	api.do(t, http.MethodPost, clientPath(id, "/finance"), `{"year":2025,"annual_fee":"0","monthly_fee":"100"}`)
	rr := api.do(t, http.MethodPost, clientPath(id, "/payments"), `{"year":2025,"month":1,"amount":"500"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	assertError(t, api.do(t, http.MethodPost, clientPath(id, "/finance"), `{"year":2025,"annual_fee":"0","monthly_fee":"10"}`),
		http.StatusConflict, "annual_cap_exceeded")
	assertError(t, api.do(t, http.MethodPost, clientPath(id, "/finance"), `{"year":2025,"annual_fee":"-1","monthly_fee":"100"}`),
		http.StatusUnprocessableEntity, "invalid_amount")
	assertError(t, api.do(t, http.MethodPost, clientPath(id, "/finance"), `{"year":2025,"annual_fee":"0","monthly_fee":"6000000000000000"}`),
		http.StatusUnprocessableEntity, "invalid_amount")

	rr = api.do(t, http.MethodPost, clientPath(id, "/finance"), `{"year":2025,"annual_fee":"0","monthly_fee":"120"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	assert.Equal(t, "1440.00", decode[ledgerResponse](t, rr).AnnualCap.String())
}

func TestReadsOnMissingData(t *testing.T) {
	api := newTestAPI(t, 100)
	id := api.createClient(t, "Ana Torres", "ana@example.com")

	assertError(t, api.do(t, http.MethodGet, clientPath(id, "/finance/summary?year=2030"), ""),
		http.StatusNotFound, "schedule_not_found")
	assertError(t, api.do(t, http.MethodGet, clientPath(id, "/finance?year=abc"), ""),
		http.StatusUnprocessableEntity, "invalid_year")
	assertError(t, api.do(t, http.MethodGet, clientPath(id, "/finance?year=20250"), ""),
		http.StatusUnprocessableEntity, "invalid_year")
	assertError(t, api.do(t, http.MethodGet, clientPath(999, "/finance?year=2025"), ""),
		http.StatusNotFound, "client_not_found")
	assertError(t, api.do(t, http.MethodPut, clientPath(id, "/obligations/3/notes?year=2031"), `{"notes":"x"}`),
		http.StatusNotFound, "schedule_not_found")
	assertError(t, api.do(t, http.MethodPut, clientPath(id, "/obligations/march/notes?year=2031"), `{"notes":"x"}`),
		http.StatusBadRequest, "bad_request")

	rr := api.do(t, http.MethodGet, clientPath(id, "/finance?year=2029"), "")
	require.Equal(t, http.StatusOK, rr.Code)
	ledger := decode[ledgerResponse](t, rr)
	assert.Equal(t, "0.00", ledger.AnnualCap.String())
	assert.Len(t, ledger.Obligations, 13)

	rr = api.do(t, http.MethodGet, clientPath(id, "/available-years"), "")
	require.Equal(t, http.StatusOK, rr.Code)
	years := decode[yearsResponse](t, rr)
	assert.Contains(t, years.Years, 2029)
	assert.IsNonIncreasing(t, years.Years)

	assertError(t, api.do(t, http.MethodGet, clientPath(999, "/available-years"), ""),
		http.StatusNotFound, "client_not_found")
}

func TestAuditTrail(t *testing.T) {
	api := newTestAPI(t, 100)
	id := api.createClient(t, "Ana Torres", "ana@example.com")
	api.do(t, http.MethodPost, clientPath(id, "/finance"), `{"year":2025,"annual_fee":"200","monthly_fee":"160"}`, "X-User", "maria")
	api.do(t, http.MethodPost, clientPath(id, "/payments"), `{"year":2025,"month":1,"amount":"100"}`, "X-User", "maria")

	rr := api.do(t, http.MethodGet, clientPath(id, "/audit"), "")
	require.Equal(t, http.StatusOK, rr.Code)
	entries := decode[[]auditResponse](t, rr)

	actions := make([]string, 0, len(entries))
	var payment auditResponse
	for _, e := range entries {
		actions = append(actions, e.Action)
		if e.Action == "payment.recorded" {
			payment = e
		}
	}
	assert.ElementsMatch(t, []string{"ledger.created", "fees.updated", "payment.recorded"}, actions)
	assert.Equal(t, "100.00", payment.Amount.String())
	assert.Equal(t, "Enero", payment.MonthName)
	assert.Equal(t, "maria", payment.Actor)

	rr = api.do(t, http.MethodGet, clientPath(id, "/audit?limit=1"), "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode[[]auditResponse](t, rr), 1)

	assertError(t, api.do(t, http.MethodGet, clientPath(id, "/audit?limit=-1"), ""), http.StatusBadRequest, "bad_request")
	assertError(t, api.do(t, http.MethodGet, clientPath(999, "/audit"), ""), http.StatusNotFound, "client_not_found")
}

func TestWritesAreRateLimited(t *testing.T) {
	api := newTestAPI(t, 1)

	rr := api.do(t, http.MethodPost, "/api/clients", `{"name":"Ana","email":"ana@example.com"}`)
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = api.do(t, http.MethodPost, "/api/clients", `{"name":"Luis","email":"luis@example.com"}`)
	assertError(t, rr, http.StatusTooManyRequests, "rate_limited")
	assert.Equal(t, "60", rr.Header().Get("Retry-After"))

	rr = api.do(t, http.MethodGet, "/api/clients", "")
	assert.Equal(t, http.StatusOK, rr.Code, "reads are never limited")
}
