// Package admin provides the HTTP API for inspecting and resetting limits.
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	ratelimiter "github.com/jassus213/go-window-limiter"
	"github.com/rs/zerolog"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

// PolicySource resolves a policy name to its rules. *config.Config and
// *config.Holder implement it.
type PolicySource interface {
	Policy(name string) ([]ratelimiter.Rule, error)
}

// Limiter is the part of *ratelimiter.Limiter the admin API needs.
type Limiter interface {
	DryRun(ctx context.Context, identity string, rules ...ratelimiter.Rule) ([]ratelimiter.Outcome, error)
	Clear(ctx context.Context, identity string, rules ...ratelimiter.Rule) error
}

// Handler provides admin API endpoints.
type Handler struct {
	limiter  Limiter
	policies PolicySource
	health   func(ctx context.Context) error
	metrics  http.Handler
	logger   zerolog.Logger
}

// Deps contains dependencies for the admin handler.
type Deps struct {
	Limiter  Limiter
	Policies PolicySource
	// Health reports whether the backing store is reachable. Optional.
	Health func(ctx context.Context) error
	// Metrics is mounted at /metrics when set.
	Metrics http.Handler
	Logger  zerolog.Logger
}

// NewHandler creates a new admin API handler.
func NewHandler(deps Deps) *Handler {
	return &Handler{
		limiter:  deps.Limiter,
		policies: deps.Policies,
		health:   deps.Health,
		metrics:  deps.Metrics,
		logger:   deps.Logger,
	}
}

// Router returns the admin API router.
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(h.RequestID)

	r.Get("/healthz", h.Health)
	if h.metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.metrics)
	}

	r.Get("/limits/{policy}/{identity}", h.GetLimits)
	r.Delete("/limits/{policy}/{identity}", h.ClearLimits)

	return r
}

// RequestID tags every request with an id taken from the X-Request-ID header
// or generated, echoes it back and attaches a request scoped logger to the
// context.
func (h *Handler) RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.New().String()
		}
		w.Header().Set(RequestIDHeader, id)

		logger := h.logger.With().
			Str("request_id", id).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Logger()
		next.ServeHTTP(w, r.WithContext(logger.WithContext(r.Context())))
	})
}

// WindowView is the JSON form of one window outcome.
type WindowView struct {
	Key           string    `json:"key"`
	WindowSeconds int64     `json:"window_seconds"`
	Limit         int64     `json:"limit"`
	Current       int64     `json:"current"`
	Remaining     int64     `json:"remaining"`
	Success       bool      `json:"success"`
	ResetAt       time.Time `json:"reset_at"`
}

// LimitsResponse answers GET /limits/{policy}/{identity}.
type LimitsResponse struct {
	Policy   string       `json:"policy"`
	Identity string       `json:"identity"`
	Allowed  bool         `json:"allowed"`
	Windows  []WindowView `json:"windows"`
}

// GetLimits reports, without counting a request, what a check of identity
// against the policy would decide right now.
func (h *Handler) GetLimits(w http.ResponseWriter, r *http.Request) {
	policy, identity := chi.URLParam(r, "policy"), chi.URLParam(r, "identity")

	rules, ok := h.resolve(w, policy)
	if !ok {
		return
	}

	outcomes, err := h.limiter.DryRun(r.Context(), identity, rules...)
	var throttled *ratelimiter.ThrottledError
	if err != nil && !errors.As(err, &throttled) {
		h.writeLimiterError(w, r, err)
		return
	}

	resp := LimitsResponse{
		Policy:   policy,
		Identity: identity,
		Allowed:  err == nil,
		Windows:  make([]WindowView, 0, len(outcomes)),
	}
	for _, o := range outcomes {
		resp.Windows = append(resp.Windows, WindowView{
			Key:           o.Key,
			WindowSeconds: o.Window,
			Limit:         o.Limit,
			Current:       o.Current,
			Remaining:     o.Remaining(),
			Success:       o.Success,
			ResetAt:       o.ResetAt().UTC(),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// ClearLimits resets the current windows of identity under the policy.
func (h *Handler) ClearLimits(w http.ResponseWriter, r *http.Request) {
	policy, identity := chi.URLParam(r, "policy"), chi.URLParam(r, "identity")

	rules, ok := h.resolve(w, policy)
	if !ok {
		return
	}

	if err := h.limiter.Clear(r.Context(), identity, rules...); err != nil {
		h.writeLimiterError(w, r, err)
		return
	}

	zerolog.Ctx(r.Context()).Info().
		Str("policy", policy).
		Str("identity", identity).
		Msg("limits cleared")
	w.WriteHeader(http.StatusNoContent)
}

// Health answers 200 when the store is reachable and 503 otherwise.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		if err := h.health(r.Context()); err != nil {
			zerolog.Ctx(r.Context()).Warn().Err(err).Msg("health check failed")
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) resolve(w http.ResponseWriter, policy string) ([]ratelimiter.Rule, bool) {
	rules, err := h.policies.Policy(policy)
	if err != nil {
		writeError(w, http.StatusNotFound, "unknown_policy", err.Error())
		return nil, false
	}
	return rules, true
}

func (h *Handler) writeLimiterError(w http.ResponseWriter, r *http.Request, err error) {
	logger := zerolog.Ctx(r.Context())
	switch {
	case errors.Is(err, ratelimiter.ErrInvalidRule):
		logger.Warn().Err(err).Msg("invalid policy")
		writeError(w, http.StatusBadRequest, "invalid_policy", err.Error())
	case errors.Is(err, ratelimiter.ErrStoreUnavailable):
		logger.Error().Err(err).Msg("store unavailable")
		writeError(w, http.StatusServiceUnavailable, "store_unavailable", err.Error())
	default:
		logger.Error().Err(err).Msg("limiter failed")
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}
