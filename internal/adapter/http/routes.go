package http

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/agentlens/feedback-engine/internal/middleware"
	"github.com/agentlens/feedback-engine/internal/port/messagequeue"
)

// Pinger reports storage liveness. *pgxpool.Pool satisfies it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthDeps are the dependencies probed by the health endpoint. Queue
// may be nil when event publishing is disabled.
type HealthDeps struct {
	DB    Pinger
	Queue messagequeue.Queue
}

// MountRoutes registers all API routes on the given chi router. The
// health endpoint sits outside the caller middleware so probes need no
// identity headers.
func MountRoutes(r chi.Router, h *Handlers, health HealthDeps) {
	r.Get("/healthz", healthHandler(health))

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Caller)

		// Definitions
		r.Post("/definitions", h.CreateDefinition)
		r.Get("/definitions", h.ListDefinitions)
		r.Get("/definitions/{id}", h.GetDefinition)
		r.Put("/definitions/{id}", h.UpdateDefinition)
		r.Delete("/definitions/{id}", h.DeleteDefinition)
		r.Post("/definitions/{id}/validate", h.ValidateValue)

		// Feedback instances
		r.Post("/feedback", h.CreateFeedback)
		r.Post("/feedback/bulk", h.BulkCreateFeedback)
		r.Get("/feedback", h.ListFeedback)
		r.Get("/feedback/{id}", h.GetFeedback)
		r.Put("/feedback/{id}", h.UpdateFeedback)
		r.Delete("/feedback/{id}", h.DeleteFeedback)
		r.Post("/feedback/{id}/verify", h.VerifyFeedback)
		r.Post("/feedback/{id}/unverify", h.UnverifyFeedback)

		// Aggregation and insights
		r.Post("/aggregate", h.AggregateFeedback)
		r.Get("/insights/{scope}/{entityID}", h.GetInsights)
	})
}

func healthHandler(deps HealthDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := http.StatusOK
		resp := map[string]string{"status": "ok", "database": "ok"}

		if deps.DB != nil {
			if err := deps.DB.Ping(r.Context()); err != nil {
				status = http.StatusServiceUnavailable
				resp["status"] = "degraded"
				resp["database"] = "unreachable"
			}
		}
		if deps.Queue != nil {
			resp["queue"] = "ok"
			if !deps.Queue.IsConnected() {
				resp["queue"] = "disconnected"
				resp["status"] = "degraded"
			}
		}

		writeJSON(w, status, resp)
	}
}
