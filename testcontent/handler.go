package testcontent

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kengibson1111/go-test-content-cache/cache"
)

// Handler exposes the test read path and the cache administration surface.
type Handler struct {
	service *Service
	cache   cache.Cache
	logger  *zap.Logger
}

// NewHandler creates a new test handler
func NewHandler(service *Service, c cache.Cache, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		service: service,
		cache:   c,
		logger:  logger,
	}
}

// Routes mounts the handler under /api/test. metrics may be nil.
func (h *Handler) Routes(metrics http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Route("/api/test", func(r chi.Router) {
		r.Get("/health", h.Health)

		r.Route("/cache", func(r chi.Router) {
			r.Get("/stats", h.CacheStats)
			r.Post("/reset", h.ResetStats)
			r.Delete("/", h.InvalidateAll)
			r.Delete("/{testId}", h.Invalidate)
		})

		r.Get("/{testId}", h.GetTest)
	})

	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics)
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		h.respondJSON(w, http.StatusNotFound, map[string]string{"message": "Not found"})
	})

	return r
}

// GetTest handles GET /api/test/{testId}
func (h *Handler) GetTest(w http.ResponseWriter, r *http.Request) {
	testID, ok := h.testID(w, r)
	if !ok {
		return
	}

	test, err := h.service.GetTestByID(r.Context(), testID)
	if err != nil {
		if errors.Is(err, ErrTestNotFound) {
			h.respondJSON(w, http.StatusNotFound, map[string]string{"message": "Test not found"})
			return
		}
		h.logger.Error("Failed to get test", zap.String("testID", testID), zap.Error(err))
		h.respondJSON(w, http.StatusInternalServerError, map[string]string{"message": "Internal server error"})
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{"data": test})
}

// Health handles GET /api/test/health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"service":   "test-service",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// CacheStats handles GET /api/test/cache/stats
func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]interface{}{"data": h.cache.Stats(r.Context())})
}

// ResetStats handles POST /api/test/cache/reset
func (h *Handler) ResetStats(w http.ResponseWriter, r *http.Request) {
	h.cache.ResetStats()
	h.respondJSON(w, http.StatusOK, map[string]string{"message": "Cache counters reset"})
}

// InvalidateAll handles DELETE /api/test/cache
func (h *Handler) InvalidateAll(w http.ResponseWriter, r *http.Request) {
	result := h.cache.InvalidateAll(r.Context())
	status := http.StatusOK
	if !result.Completed {
		// Partial sweep; the operator should retry.
		status = http.StatusServiceUnavailable
	}
	h.respondJSON(w, status, map[string]interface{}{"data": result})
}

// Invalidate handles DELETE /api/test/cache/{testId}
func (h *Handler) Invalidate(w http.ResponseWriter, r *http.Request) {
	testID, ok := h.testID(w, r)
	if !ok {
		return
	}
	h.service.Invalidate(r.Context(), testID)
	w.WriteHeader(http.StatusNoContent)
}

// testID extracts and validates the UUID route parameter.
func (h *Handler) testID(w http.ResponseWriter, r *http.Request) (string, bool) {
	raw := chi.URLParam(r, "testId")
	id, err := uuid.Parse(raw)
	if err != nil {
		h.respondJSON(w, http.StatusBadRequest, map[string]string{"message": "Invalid test ID format"})
		return "", false
	}
	return id.String(), true
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}
