package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"fintrack/internal/config"
	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/services"
	"fintrack/internal/storage"
)

func testConfig() *config.Config {
	return &config.Config{
		Port:             "8081",
		Workspace:        "default",
		BaseCurrency:     "EUR",
		Interval:         "month",
		DataBackend:      "memory",
		ResponseCacheTTL: time.Minute,
	}
}

func testTx(t *testing.T, date time.Time, amount, category, sourceFile string) core.Transaction {
	t.Helper()
	tx, err := core.NewTransaction(date, decimal.RequireFromString(amount), category)
	if err != nil {
		t.Fatalf("new transaction: %v", err)
	}
	tx.SourceFile = sourceFile
	return tx
}

func newTestServer(t *testing.T, readyCheck func(context.Context) error) (*Server, *storage.MemoryStore) {
	t.Helper()
	store := storage.NewMemoryStore()
	ctx := context.Background()

	txs := []core.Transaction{
		testTx(t, time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC), "5000", "salary", "january.csv"),
		testTx(t, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), "-120.50", "food", "january.csv"),
	}
	if err := store.SaveTransactions(ctx, "default", txs); err != nil {
		t.Fatalf("seed transactions: %v", err)
	}

	cfg := testConfig()
	dashboards := services.NewDashboardService(store, store, cfg.Workspace, cfg.BaseCurrency,
		cfg.ParsedInterval(), cfg.CustomIntervalDays)
	imports := services.NewImportService(store, store, store, nil, cfg.Workspace)
	logger := log.New(log.ComponentHTTP, slog.LevelError)

	srv := NewServer(cfg, dashboards, imports, logger, readyCheck)
	t.Cleanup(func() { srv.Shutdown(context.Background()) })
	return srv, store
}

func doRequest(srv *Server, method, target string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	rec := doRequest(srv, http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz status = %d", rec.Code)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID header")
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("missing security headers")
	}
}

func TestReadyEndpointReportsStorageFailure(t *testing.T) {
	srv, _ := newTestServer(t, func(context.Context) error {
		return errors.New("database gone")
	})

	rec := doRequest(srv, http.MethodGet, "/readyz", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz status = %d, want 503", rec.Code)
	}
}

func TestDashboardEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	rec := doRequest(srv, http.MethodGet, "/api/dashboard?period=2024-01", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}

	var data core.DashboardData
	if err := json.Unmarshal(rec.Body.Bytes(), &data); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if data.CurrentPeriodLabel != "2024-01" || data.Workspace != "default" {
		t.Errorf("header = %q %q", data.CurrentPeriodLabel, data.Workspace)
	}
	if !data.CurrentBalance.Equal(decimal.RequireFromString("4879.5")) {
		t.Errorf("CurrentBalance = %s", data.CurrentBalance)
	}
	if len(data.Transactions) != 2 {
		t.Errorf("transactions = %d, want 2", len(data.Transactions))
	}
}

func TestDashboardRejectsBadPeriod(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	rec := doRequest(srv, http.MethodGet, "/api/dashboard?period=banana", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestPeriodsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	rec := doRequest(srv, http.MethodGet, "/api/periods", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var payload struct {
		Periods []string `json:"periods"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(payload.Periods) == 0 || payload.Periods[0] != "2024-01" {
		t.Errorf("periods = %v", payload.Periods)
	}
}

func TestProjectionWithoutPlan(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	rec := doRequest(srv, http.MethodGet, "/api/projection?period=2024-01", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestSavePlanAndProjection(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	plan := core.BudgetPlan{
		ID:          "p1",
		ValidFrom:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		GrossIncome: decimal.NewFromInt(3000),
		SavingsRate: decimal.RequireFromString("0.20"),
		SavingsBase: core.SavingsBaseNetIncome,
	}
	body, _ := json.Marshal(plan)

	rec := doRequest(srv, http.MethodPost, "/api/plans", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("save plan status = %d, body %s", rec.Code, rec.Body)
	}

	rec = doRequest(srv, http.MethodGet, "/api/projection?period=2024-01", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("projection status = %d, body %s", rec.Code, rec.Body)
	}
	var projection struct {
		SavingsTarget decimal.Decimal `json:"savings_target"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &projection); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !projection.SavingsTarget.Equal(decimal.NewFromInt(600)) {
		t.Errorf("SavingsTarget = %s, want 600", projection.SavingsTarget)
	}
}

func TestSavePlanRejectsInvalidPlan(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	plan := core.BudgetPlan{
		ID:          "p1",
		ValidFrom:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		GrossIncome: decimal.NewFromInt(3000),
		SavingsRate: decimal.RequireFromString("1.5"),
		SavingsBase: core.SavingsBaseNetIncome,
	}
	body, _ := json.Marshal(plan)

	rec := doRequest(srv, http.MethodPost, "/api/plans", body)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400, body %s", rec.Code, rec.Body)
	}
}

func TestSavePlanRejectsMalformedBody(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	rec := doRequest(srv, http.MethodPost, "/api/plans", []byte(`{"id": 42}`))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestSavePlanInvalidatesCachedDashboard(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	rec := doRequest(srv, http.MethodGet, "/api/dashboard?period=2024-01", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("first dashboard: %d", rec.Code)
	}
	var before core.DashboardData
	if err := json.Unmarshal(rec.Body.Bytes(), &before); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !before.PlannedSavings.IsZero() {
		t.Fatalf("PlannedSavings = %s before any plan", before.PlannedSavings)
	}

	target := decimal.NewFromInt(400)
	plan := core.BudgetPlan{
		ID:            "p1",
		ValidFrom:     time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		GrossIncome:   decimal.NewFromInt(3000),
		SavingsRate:   decimal.RequireFromString("0.10"),
		SavingsBase:   core.SavingsBaseNetIncome,
		SavingsAmount: &target,
	}
	body, _ := json.Marshal(plan)
	if rec := doRequest(srv, http.MethodPost, "/api/plans", body); rec.Code != http.StatusCreated {
		t.Fatalf("save plan: %d", rec.Code)
	}

	rec = doRequest(srv, http.MethodGet, "/api/dashboard?period=2024-01", nil)
	var after core.DashboardData
	if err := json.Unmarshal(rec.Body.Bytes(), &after); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !after.PlannedSavings.Equal(decimal.NewFromInt(400)) {
		t.Errorf("PlannedSavings = %s after plan save, want 400", after.PlannedSavings)
	}
}

func TestResetImportEndpoint(t *testing.T) {
	srv, store := newTestServer(t, nil)

	rec := doRequest(srv, http.MethodPost, "/api/imports/reset", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing source_file must 400, got %d", rec.Code)
	}

	rec = doRequest(srv, http.MethodPost, "/api/imports/reset?source_file=january.csv", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("reset status = %d", rec.Code)
	}
	var payload struct {
		Removed int64 `json:"removed"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Removed != 2 {
		t.Errorf("removed = %d, want 2", payload.Removed)
	}
	if n, _ := store.CountTransactions(context.Background(), "default"); n != 0 {
		t.Errorf("store still holds %d transactions", n)
	}
}

func TestRateLimiter(t *testing.T) {
	rl := newRateLimiter(2, time.Minute)

	if !rl.allow("1.2.3.4") || !rl.allow("1.2.3.4") {
		t.Fatal("first requests within the limit must pass")
	}
	if rl.allow("1.2.3.4") {
		t.Error("request over the limit must be rejected")
	}
	if !rl.allow("5.6.7.8") {
		t.Error("limits are per client")
	}
}

func TestClientIPPrefersForwardedHeader(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	if got := clientIP(req); got != "10.0.0.1" {
		t.Errorf("clientIP = %q", got)
	}

	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	if got := clientIP(req); got != "203.0.113.7" {
		t.Errorf("clientIP with header = %q", got)
	}
}
