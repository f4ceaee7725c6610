package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/harrier/internal/alerting"
	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/monitor"
	"github.com/opensource-finance/harrier/internal/repository"
	"github.com/opensource-finance/harrier/internal/rules"
)

// newTestServer wires a server against a temp SQLite store with the
// large-cash rule loaded.
func newTestServer(t *testing.T) (*Server, domain.Repository) {
	t.Helper()

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "test.db"),
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	engine, err := rules.NewEngine(rules.Options{MinAlertScore: 40})
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	lct := &domain.RuleConfig{
		ID:        "LCT-CCE-INN-A-D01",
		Name:      "Large cash transaction",
		Family:    rules.FamilyLargeCash,
		TypeGroup: "CCE-INN",
		Parameters: domain.Parameters{
			"transaction_amount": 10000,
		},
		Enabled: true,
	}
	if err := repo.SaveRuleConfig(t.Context(), lct); err != nil {
		t.Fatalf("failed to save rule config: %v", err)
	}
	if err := engine.RegisterConfig(lct); err != nil {
		t.Fatalf("failed to register rule: %v", err)
	}

	gen := alerting.NewGenerator(repo, nil, domain.AlertingConfig{
		HighRiskScore:   70,
		MediumRiskScore: 40,
	})
	proc := monitor.NewProcessor(repo, engine, gen, nil, nil, nil, domain.MonitorConfig{})

	cfg := domain.ServerConfig{
		Host:         "localhost",
		Port:         8080,
		ReadTimeout:  30,
		WriteTimeout: 30,
	}
	return NewServer(cfg, repo, nil, nil, engine, proc, nil, "test-v1"), repo
}

func postJSON(t *testing.T, server *Server, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("failed to marshal request: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBuffer(raw))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	server.Router().ServeHTTP(rr, req)
	return rr
}

func TestIngestEndpoint(t *testing.T) {
	server, _ := newTestServer(t)

	t.Run("FlagsLargeDeposit", func(t *testing.T) {
		rr := postJSON(t, server, "/transactions", domain.TransactionRequest{
			AccountNumber: "ACC-001",
			TypeCode:      "CASH DEP",
			Amount:        decimal.NewFromInt(60000),
			Currency:      "USD",
		})

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		var resp domain.EvaluationResponse
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if !resp.Flagged {
			t.Error("expected transaction to be flagged")
		}
		if len(resp.Alerts) != 1 {
			t.Errorf("expected 1 alert, got %d", len(resp.Alerts))
		}
		if resp.Metadata.EngineVersion == "" {
			t.Error("expected engine version in metadata")
		}
	})

	t.Run("PassesSmallDeposit", func(t *testing.T) {
		rr := postJSON(t, server, "/transactions", domain.TransactionRequest{
			AccountNumber: "ACC-002",
			TypeCode:      "CASH DEP",
			Amount:        decimal.NewFromInt(250),
			Currency:      "USD",
		})

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		var resp domain.EvaluationResponse
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if resp.Flagged {
			t.Error("expected transaction to pass")
		}
	})

	t.Run("InvalidJSON", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/transactions", bytes.NewBufferString("not-json"))
		req.Header.Set("Content-Type", "application/json")

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("MissingAccountNumber", func(t *testing.T) {
		rr := postJSON(t, server, "/transactions", domain.TransactionRequest{
			TypeCode: "CASH DEP",
			Amount:   decimal.NewFromInt(100),
			Currency: "USD",
		})
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("MissingTypeCode", func(t *testing.T) {
		rr := postJSON(t, server, "/transactions", domain.TransactionRequest{
			AccountNumber: "ACC-003",
			Amount:        decimal.NewFromInt(100),
			Currency:      "USD",
		})
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("NegativeAmount", func(t *testing.T) {
		rr := postJSON(t, server, "/transactions", domain.TransactionRequest{
			AccountNumber: "ACC-003",
			TypeCode:      "CASH DEP",
			Amount:        decimal.NewFromInt(-100),
			Currency:      "USD",
		})
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("ResponseHeaders", func(t *testing.T) {
		rr := postJSON(t, server, "/transactions", domain.TransactionRequest{
			AccountNumber: "ACC-004",
			TypeCode:      "CASH DEP",
			Amount:        decimal.NewFromInt(100),
			Currency:      "USD",
		})

		if rr.Header().Get("X-Request-ID") == "" {
			t.Error("expected X-Request-ID header in response")
		}
		if rr.Header().Get("X-Trace-ID") == "" {
			t.Error("expected X-Trace-ID header in response")
		}
		if rr.Header().Get("Content-Type") != "application/json" {
			t.Error("expected Content-Type: application/json")
		}
	})
}

func TestTransactionAndAlertRetrieval(t *testing.T) {
	server, _ := newTestServer(t)

	rr := postJSON(t, server, "/transactions", domain.TransactionRequest{
		AccountNumber: "ACC-100",
		TypeCode:      "CASH DEP",
		Amount:        decimal.NewFromInt(60000),
		Currency:      "USD",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("ingest failed: %d %s", rr.Code, rr.Body.String())
	}
	var resp domain.EvaluationResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(resp.Alerts) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(resp.Alerts))
	}

	t.Run("GetTransaction", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/transactions/"+resp.TxID, nil)
		rec := httptest.NewRecorder()
		server.Router().ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rec.Code)
		}
		var tx domain.Transaction
		if err := json.Unmarshal(rec.Body.Bytes(), &tx); err != nil {
			t.Fatalf("failed to parse transaction: %v", err)
		}
		if !tx.Processed {
			t.Error("expected stored transaction to be processed")
		}
	})

	t.Run("GetTransactionNotFound", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/transactions/no-such-tx", nil)
		rec := httptest.NewRecorder()
		server.Router().ServeHTTP(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", rec.Code)
		}
	})

	t.Run("GetAlert", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/alerts/"+resp.Alerts[0], nil)
		rec := httptest.NewRecorder()
		server.Router().ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rec.Code)
		}
		var alert domain.Alert
		if err := json.Unmarshal(rec.Body.Bytes(), &alert); err != nil {
			t.Fatalf("failed to parse alert: %v", err)
		}
		if alert.Status != domain.AlertStatusNew {
			t.Errorf("expected NEW alert, got %s", alert.Status)
		}
		if alert.Narrative == "" {
			t.Error("expected alert narrative")
		}
	})

	t.Run("ListAccountAlerts", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/accounts/ACC-100/alerts", nil)
		rec := httptest.NewRecorder()
		server.Router().ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rec.Code)
		}
		var body struct {
			Count int `json:"count"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if body.Count != 1 {
			t.Errorf("expected 1 alert, got %d", body.Count)
		}
	})
}

func TestRuleManagement(t *testing.T) {
	server, _ := newTestServer(t)

	t.Run("ListRules", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/rules", nil)
		rec := httptest.NewRecorder()
		server.Router().ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rec.Code)
		}
		var body struct {
			Count  int `json:"count"`
			Loaded int `json:"loaded"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if body.Count != 1 || body.Loaded != 1 {
			t.Errorf("expected 1 stored and 1 loaded rule, got %+v", body)
		}
	})

	t.Run("CreateExpressionRule", func(t *testing.T) {
		rr := postJSON(t, server, "/rules", domain.RuleConfig{
			ID:         "CEL-ALL-ALL-X-001",
			Name:       "High value wire",
			Family:     "CEL",
			TypeGroup:  "ALL-ALL",
			Expression: `type_code == "WIRE" && amount > 25000.0`,
			Enabled:    true,
		})
		if rr.Code != http.StatusCreated {
			t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
		}

		// The engine hot-loads the new rule.
		req := httptest.NewRequest(http.MethodGet, "/rules", nil)
		rec := httptest.NewRecorder()
		server.Router().ServeHTTP(rec, req)
		var body struct {
			Loaded int `json:"loaded"`
		}
		json.Unmarshal(rec.Body.Bytes(), &body)
		if body.Loaded != 2 {
			t.Errorf("expected 2 loaded rules after create, got %d", body.Loaded)
		}
	})

	t.Run("RejectsBadExpression", func(t *testing.T) {
		rr := postJSON(t, server, "/rules", domain.RuleConfig{
			ID:         "CEL-ALL-ALL-X-002",
			Name:       "Broken rule",
			Expression: "amount >>> oops",
			Enabled:    true,
		})
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d: %s", rr.Code, rr.Body.String())
		}
	})

	t.Run("RejectsDuplicate", func(t *testing.T) {
		rr := postJSON(t, server, "/rules", domain.RuleConfig{
			ID:        "LCT-CCE-INN-A-D01",
			Name:      "Duplicate",
			Family:    rules.FamilyLargeCash,
			TypeGroup: "CCE-INN",
			Enabled:   true,
		})
		if rr.Code != http.StatusConflict {
			t.Errorf("expected status 409, got %d", rr.Code)
		}
	})

	t.Run("DisableAndEnable", func(t *testing.T) {
		rr := postJSON(t, server, "/rules/LCT-CCE-INN-A-D01/disable", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("disable failed: %d %s", rr.Code, rr.Body.String())
		}

		// A disabled rule does not evaluate.
		rr = postJSON(t, server, "/transactions", domain.TransactionRequest{
			AccountNumber: "ACC-200",
			TypeCode:      "CASH DEP",
			Amount:        decimal.NewFromInt(60000),
			Currency:      "USD",
		})
		var resp domain.EvaluationResponse
		json.Unmarshal(rr.Body.Bytes(), &resp)
		if resp.Flagged {
			t.Error("disabled rule should not flag")
		}

		rr = postJSON(t, server, "/rules/LCT-CCE-INN-A-D01/enable", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("enable failed: %d %s", rr.Code, rr.Body.String())
		}
	})

	t.Run("DeleteRule", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodDelete, "/rules/CEL-ALL-ALL-X-001", nil)
		rec := httptest.NewRecorder()
		server.Router().ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("delete failed: %d %s", rec.Code, rec.Body.String())
		}

		req = httptest.NewRequest(http.MethodGet, "/rules/CEL-ALL-ALL-X-001", nil)
		rec = httptest.NewRecorder()
		server.Router().ServeHTTP(rec, req)
		if rec.Code != http.StatusNotFound {
			t.Errorf("expected 404 after delete, got %d", rec.Code)
		}
	})
}

func TestReferenceData(t *testing.T) {
	server, repo := newTestServer(t)

	body, _ := json.Marshal(domain.Account{
		CustomerID: "cust-1",
		Currency:   "USD",
		Status:     domain.AccountStatusActive,
		OpenedAt:   time.Now().UTC().AddDate(-1, 0, 0),
	})
	req := httptest.NewRequest(http.MethodPut, "/accounts/ACC-REF-1", bytes.NewBuffer(body))
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("account upsert failed: %d %s", rec.Code, rec.Body.String())
	}

	acct, err := repo.GetAccount(t.Context(), "ACC-REF-1")
	if err != nil {
		t.Fatalf("account not persisted: %v", err)
	}
	if acct.CustomerID != "cust-1" {
		t.Errorf("unexpected customer on account: %s", acct.CustomerID)
	}

	body, _ = json.Marshal(domain.Customer{
		Name:       "Acme Holdings",
		Type:       domain.CustomerTypeCorporate,
		RiskRating: domain.RiskRatingHigh,
	})
	req = httptest.NewRequest(http.MethodPut, "/customers/cust-1", bytes.NewBuffer(body))
	rec = httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("customer upsert failed: %d %s", rec.Code, rec.Body.String())
	}
}

func TestBatchEndpoint(t *testing.T) {
	server, repo := newTestServer(t)

	now := time.Now().UTC()
	for i, amount := range []int64{60000, 400} {
		tx := &domain.Transaction{
			ID:            fmt.Sprintf("tx-batch-%d", i),
			AccountNumber: "ACC-300",
			TypeCode:      "CASH DEP",
			Amount:        decimal.NewFromInt(amount),
			Currency:      "USD",
			Timestamp:     now.Add(time.Duration(i) * time.Minute),
		}
		if err := repo.SaveTransaction(t.Context(), tx); err != nil {
			t.Fatalf("failed to seed transaction: %v", err)
		}
	}

	rr := postJSON(t, server, "/process", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("batch failed: %d %s", rr.Code, rr.Body.String())
	}

	var stats monitor.BatchStats
	if err := json.Unmarshal(rr.Body.Bytes(), &stats); err != nil {
		t.Fatalf("failed to parse stats: %v", err)
	}
	if stats.Processed != 2 || stats.Flagged != 1 {
		t.Errorf("unexpected batch stats: %+v", stats)
	}
}

func TestHealthEndpoint(t *testing.T) {
	server, _ := newTestServer(t)

	t.Run("HealthCheck", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", rr.Code)
		}

		var resp map[string]string
		json.Unmarshal(rr.Body.Bytes(), &resp)

		if resp["status"] != "healthy" {
			t.Errorf("expected status 'healthy', got '%s'", resp["status"])
		}
		if resp["version"] != "test-v1" {
			t.Errorf("expected version 'test-v1', got '%s'", resp["version"])
		}
	})

	t.Run("ReadyCheck", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/ready", nil)

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", rr.Code)
		}
	})

	t.Run("Stats", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/stats", nil)

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", rr.Code)
		}
	})
}

func TestMiddleware(t *testing.T) {
	t.Run("TracingMiddlewareSetsRequestID", func(t *testing.T) {
		var capturedRequestID string

		handler := TracingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if v, ok := r.Context().Value(RequestIDKey).(string); ok {
				capturedRequestID = v
			}
			w.WriteHeader(http.StatusOK)
		}))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		if capturedRequestID == "" {
			t.Error("expected request ID to be set")
		}

		if rr.Header().Get("X-Request-ID") == "" {
			t.Error("expected X-Request-ID response header")
		}
	})

	t.Run("RecoverMiddlewareHandlesPanic", func(t *testing.T) {
		handler := RecoverMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			panic("test panic")
		}))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rr := httptest.NewRecorder()

		// Should not panic
		handler.ServeHTTP(rr, req)

		if rr.Code != http.StatusInternalServerError {
			t.Errorf("expected status 500, got %d", rr.Code)
		}
	})
}
