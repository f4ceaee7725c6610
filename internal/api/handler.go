package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/monitor"
	"github.com/opensource-finance/harrier/internal/repository"
	"github.com/opensource-finance/harrier/internal/rules"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	repo      domain.Repository
	cache     domain.Cache
	bus       domain.EventBus
	engine    *rules.Engine
	processor *monitor.Processor
	version   string
}

// NewHandler creates a new API handler.
func NewHandler(repo domain.Repository, cache domain.Cache, bus domain.EventBus, engine *rules.Engine, processor *monitor.Processor, version string) *Handler {
	return &Handler{
		repo:      repo,
		cache:     cache,
		bus:       bus,
		engine:    engine,
		processor: processor,
		version:   version,
	}
}

// IngestTransaction handles POST /transactions. The default path is
// synchronous: the transaction is persisted, evaluated, and the scored
// result returned. With ?async=true the transaction is published to
// the event bus and picked up by the worker.
func (h *Handler) IngestTransaction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req domain.TransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.AccountNumber == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "accountNumber is required",
		})
		return
	}
	if req.TypeCode == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "typeCode is required",
		})
		return
	}
	if !req.Amount.IsPositive() {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "amount must be positive",
		})
		return
	}
	if len(req.Currency) != 3 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "currency must be a 3-letter code",
		})
		return
	}

	tx := req.ToTransaction()
	tx.ID = uuid.New().String()

	if r.URL.Query().Get("async") == "true" {
		if h.bus == nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"error": "event bus not available",
			})
			return
		}
		payload, err := json.Marshal(tx)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "failed to encode transaction",
			})
			return
		}
		if err := h.bus.Publish(ctx, domain.TopicTransactionIngested, payload); err != nil {
			slog.Error("failed to publish transaction", "tx_id", tx.ID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "failed to enqueue transaction",
			})
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{
			"txId":   tx.ID,
			"status": "QUEUED",
		})
		return
	}

	eval, err := h.processor.ProcessTransaction(ctx, tx)
	if err != nil {
		slog.Error("transaction processing failed", "tx_id", tx.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "transaction processing failed",
		})
		return
	}
	if eval == nil {
		// Replay of an already processed transaction.
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"txId":      tx.ID,
			"duplicate": true,
		})
		return
	}

	writeJSON(w, http.StatusOK, eval.ToResponse())
}

// ProcessBatch handles POST /process: it drains one batch of
// unprocessed transactions through the pipeline.
func (h *Handler) ProcessBatch(w http.ResponseWriter, r *http.Request) {
	stats, err := h.processor.ProcessBatch(r.Context())
	if err != nil {
		slog.Error("batch processing failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "batch processing failed",
		})
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// GetTransaction retrieves a transaction by ID.
func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	txID := chi.URLParam(r, "id")

	tx, err := h.repo.GetTransaction(r.Context(), txID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "transaction not found",
			})
			return
		}
		slog.Error("failed to get transaction", "id", txID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load transaction",
		})
		return
	}

	writeJSON(w, http.StatusOK, tx)
}

// GetAlert retrieves an alert by ID.
func (h *Handler) GetAlert(w http.ResponseWriter, r *http.Request) {
	alertID := chi.URLParam(r, "id")

	alert, err := h.repo.GetAlert(r.Context(), alertID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "alert not found",
			})
			return
		}
		slog.Error("failed to get alert", "id", alertID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load alert",
		})
		return
	}

	writeJSON(w, http.StatusOK, alert)
}

// ListAccountAlerts retrieves all alerts for an account, newest first.
func (h *Handler) ListAccountAlerts(w http.ResponseWriter, r *http.Request) {
	account := chi.URLParam(r, "number")

	alerts, err := h.repo.ListAlertsByAccount(r.Context(), account)
	if err != nil {
		slog.Error("failed to list alerts", "account", account, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load alerts",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"alerts": alerts,
		"count":  len(alerts),
	})
}

// GetCase retrieves a case by reference.
func (h *Handler) GetCase(w http.ResponseWriter, r *http.Request) {
	ref := chi.URLParam(r, "reference")

	c, err := h.repo.GetCase(r.Context(), ref)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "case not found",
			})
			return
		}
		slog.Error("failed to get case", "reference", ref, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load case",
		})
		return
	}

	writeJSON(w, http.StatusOK, c)
}

// UpsertAccount handles PUT /accounts/{number} for reference data loads.
func (h *Handler) UpsertAccount(w http.ResponseWriter, r *http.Request) {
	number := chi.URLParam(r, "number")

	var acct domain.Account
	if err := json.NewDecoder(r.Body).Decode(&acct); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	acct.Number = number

	if err := h.repo.SaveAccount(r.Context(), &acct); err != nil {
		slog.Error("failed to save account", "number", number, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save account",
		})
		return
	}

	writeJSON(w, http.StatusOK, acct)
}

// UpsertCustomer handles PUT /customers/{id} for reference data loads.
func (h *Handler) UpsertCustomer(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var cust domain.Customer
	if err := json.NewDecoder(r.Body).Decode(&cust); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	cust.ID = id

	if err := h.repo.SaveCustomer(r.Context(), &cust); err != nil {
		slog.Error("failed to save customer", "id", id, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save customer",
		})
		return
	}

	writeJSON(w, http.StatusOK, cust)
}

// ListRules returns the rule configurations from the store, annotated
// with whether each is live in the engine.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	configs, err := h.repo.ListRuleConfigs(r.Context())
	if err != nil {
		slog.Error("failed to list rules", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load rules",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"rules":  configs,
		"count":  len(configs),
		"loaded": h.engine.RulesCount(),
	})
}

// GetRule retrieves a rule configuration by ID.
func (h *Handler) GetRule(w http.ResponseWriter, r *http.Request) {
	ruleID := chi.URLParam(r, "id")

	cfg, err := h.repo.GetRuleConfig(r.Context(), ruleID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "rule not found",
			})
			return
		}
		slog.Error("failed to get rule", "id", ruleID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load rule",
		})
		return
	}

	writeJSON(w, http.StatusOK, cfg)
}

// CreateRule validates, persists, and hot-loads a rule configuration.
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var cfg domain.RuleConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if cfg.ID == "" || cfg.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "id and name are required",
		})
		return
	}
	if cfg.Family == "" && cfg.Expression == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "either family or expression is required",
		})
		return
	}

	// Validate before persisting so a bad rule never enters the store.
	if err := h.engine.ValidateConfig(&cfg); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid rule: " + err.Error(),
		})
		return
	}

	if _, err := h.repo.GetRuleConfig(ctx, cfg.ID); err == nil {
		writeJSON(w, http.StatusConflict, map[string]string{
			"error": "rule already exists",
		})
		return
	}

	cfg.UpdatedAt = time.Now().UTC()
	if err := h.repo.SaveRuleConfig(ctx, &cfg); err != nil {
		slog.Error("failed to save rule", "id", cfg.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save rule",
		})
		return
	}

	if err := h.reloadEngine(ctx); err != nil {
		slog.Error("failed to reload rules after create", "error", err)
	}

	slog.Info("rule created", "id", cfg.ID, "name", cfg.Name)
	writeJSON(w, http.StatusCreated, cfg)
}

// UpdateRule validates, persists, and hot-loads an updated rule.
func (h *Handler) UpdateRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ruleID := chi.URLParam(r, "id")

	if _, err := h.repo.GetRuleConfig(ctx, ruleID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "rule not found",
			})
			return
		}
		slog.Error("failed to get rule", "id", ruleID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load rule",
		})
		return
	}

	var cfg domain.RuleConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	cfg.ID = ruleID

	if err := h.engine.ValidateConfig(&cfg); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid rule: " + err.Error(),
		})
		return
	}

	cfg.UpdatedAt = time.Now().UTC()
	if err := h.repo.SaveRuleConfig(ctx, &cfg); err != nil {
		slog.Error("failed to update rule", "id", ruleID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to update rule",
		})
		return
	}

	if err := h.reloadEngine(ctx); err != nil {
		slog.Error("failed to reload rules after update", "error", err)
	}

	slog.Info("rule updated", "id", ruleID)
	writeJSON(w, http.StatusOK, cfg)
}

// DeleteRule removes a rule from the store and the engine.
func (h *Handler) DeleteRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ruleID := chi.URLParam(r, "id")

	if err := h.repo.DeleteRuleConfig(ctx, ruleID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "rule not found",
			})
			return
		}
		slog.Error("failed to delete rule", "id", ruleID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to delete rule",
		})
		return
	}

	h.engine.Unregister(ruleID)

	slog.Info("rule deleted", "id", ruleID)
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "rule deleted",
	})
}

// SetRuleEnabled handles POST /rules/{id}/enable and /disable.
func (h *Handler) SetRuleEnabled(enabled bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		ruleID := chi.URLParam(r, "id")

		cfg, err := h.repo.GetRuleConfig(ctx, ruleID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				writeJSON(w, http.StatusNotFound, map[string]string{
					"error": "rule not found",
				})
				return
			}
			slog.Error("failed to get rule", "id", ruleID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "failed to load rule",
			})
			return
		}

		cfg.Enabled = enabled
		cfg.UpdatedAt = time.Now().UTC()
		if err := h.repo.SaveRuleConfig(ctx, cfg); err != nil {
			slog.Error("failed to save rule", "id", ruleID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "failed to save rule",
			})
			return
		}

		if err := h.reloadEngine(ctx); err != nil {
			slog.Error("failed to reload rules", "error", err)
		}

		slog.Info("rule toggled", "id", ruleID, "enabled", enabled)
		writeJSON(w, http.StatusOK, cfg)
	}
}

// ReloadRules handles POST /rules/reload: reload the full rule set
// from the store into the engine.
func (h *Handler) ReloadRules(w http.ResponseWriter, r *http.Request) {
	if err := h.reloadEngine(r.Context()); err != nil {
		slog.Error("failed to reload rules", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to reload rules: " + err.Error(),
		})
		return
	}

	count := h.engine.RulesCount()
	slog.Info("rules reloaded", "count", count)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "rules reloaded successfully",
		"count":   count,
	})
}

func (h *Handler) reloadEngine(ctx context.Context) error {
	configs, err := h.repo.ListRuleConfigs(ctx)
	if err != nil {
		return err
	}
	return h.engine.ReloadConfigs(configs)
}

// Stats handles GET /stats with engine counters.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"engine":  h.engine.Stats(),
		"version": h.version,
	})
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	// Check repository health
	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	// Check cache health
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
