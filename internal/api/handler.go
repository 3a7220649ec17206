package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/amlguard/amlguard/internal/domain"
	"github.com/amlguard/amlguard/internal/repository"
	"github.com/amlguard/amlguard/internal/rules"
	"github.com/amlguard/amlguard/internal/stream"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	repo        domain.Repository
	bus         domain.EventBus
	registry    *rules.Registry
	coordinator *stream.Coordinator
	version     string
}

// NewHandler creates a new API handler.
func NewHandler(repo domain.Repository, bus domain.EventBus, registry *rules.Registry, coordinator *stream.Coordinator, version string) *Handler {
	return &Handler{
		repo:        repo,
		bus:         bus,
		registry:    registry,
		coordinator: coordinator,
		version:     version,
	}
}

// SubmitResponse is the response for POST /transactions.
type SubmitResponse struct {
	TransactionID string `json:"transaction_id"`
	Status        string `json:"status"`
}

// SubmitTransaction handles POST /transactions: it persists the
// transaction and enqueues it for the decision pipeline, returning 202
// before the decision is made.
func (h *Handler) SubmitTransaction(w http.ResponseWriter, r *http.Request) {
	var req domain.TransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.CustomerID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "customer_id is required",
		})
		return
	}
	if req.Type == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "transaction_type is required",
		})
		return
	}
	if req.Amount <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "amount must be positive",
		})
		return
	}

	tx := req.ToTransaction()
	tx.ID = uuid.New().String()

	if h.repo != nil {
		if err := h.repo.SaveTransaction(r.Context(), tx); err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "failed to store transaction",
			})
			return
		}
	}

	if err := h.coordinator.Enqueue(tx); err != nil {
		if errors.Is(err, stream.ErrQueueFull) {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"error": "transaction queue is full",
			})
			return
		}
		if errors.Is(err, stream.ErrStopped) {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"error": "service is shutting down",
			})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to queue transaction",
		})
		return
	}

	writeJSON(w, http.StatusAccepted, SubmitResponse{
		TransactionID: tx.ID,
		Status:        "queued",
	})
}

// GetTransaction handles GET /transactions/{id}.
func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	txID := chi.URLParam(r, "id")

	tx, err := h.repo.GetTransaction(r.Context(), txID)
	if errors.Is(err, repository.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "transaction not found",
		})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to retrieve transaction",
		})
		return
	}

	writeJSON(w, http.StatusOK, tx)
}

// ListRules handles GET /rules: summaries of every loaded rule with
// evaluation and trigger counters.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"rules":      h.registry.Summaries(),
		"generation": h.registry.Generation(),
	})
}

// GetRuleStats handles GET /rules/stats: a point-in-time counter
// snapshot for the current registry generation.
func (h *Handler) GetRuleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"stats":      h.registry.Stats(),
		"generation": h.registry.Generation(),
	})
}

// ReloadRules handles POST /rules/reload: atomically swaps in the rule
// set currently on disk. Counters restart for the new generation.
func (h *Handler) ReloadRules(w http.ResponseWriter, r *http.Request) {
	h.registry.Reload()

	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "reloaded",
		"rules_count": h.registry.RulesCount(),
		"generation":  h.registry.Generation(),
	})
}

// ListAlerts handles GET /alerts with optional ?status= filter.
func (h *Handler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")

	alerts, err := h.repo.ListAlerts(r.Context(), status, 100)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list alerts",
		})
		return
	}

	if alerts == nil {
		alerts = []*domain.Alert{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"alerts": alerts})
}

// GetAlert handles GET /alerts/{id}.
func (h *Handler) GetAlert(w http.ResponseWriter, r *http.Request) {
	alertID := chi.URLParam(r, "id")

	alert, err := h.repo.GetAlert(r.Context(), alertID)
	if errors.Is(err, repository.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "alert not found",
		})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to retrieve alert",
		})
		return
	}

	writeJSON(w, http.StatusOK, alert)
}

// Health handles GET /health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": h.version,
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

// Ready handles GET /ready: checks downstream collaborators.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{}
	healthy := true

	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			checks["repository"] = err.Error()
			healthy = false
		} else {
			checks["repository"] = "ok"
		}
	}

	if h.bus != nil {
		if err := h.bus.Ping(r.Context()); err != nil {
			checks["bus"] = err.Error()
			healthy = false
		} else {
			checks["bus"] = "ok"
		}
	}

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, map[string]any{
		"ready":  healthy,
		"checks": checks,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
