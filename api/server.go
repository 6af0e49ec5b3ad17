package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/danielortiz-dev/vendique-backend/api/controllers"
	"github.com/danielortiz-dev/vendique-backend/api/middleware"
	"github.com/danielortiz-dev/vendique-backend/pkg/config"
	"github.com/danielortiz-dev/vendique-backend/pkg/db"
	"github.com/danielortiz-dev/vendique-backend/pkg/logger"
	"github.com/danielortiz-dev/vendique-backend/pkg/redis"
)

// OpsHandlerParams configure the operational HTTP surface the workers expose.
type OpsHandlerParams struct {
	Config   *config.Config
	Logger   *logger.Logger
	DB       db.Pinger
	Redis    redis.Pinger
	DLQ      controllers.DLQReader
	Gatherer prometheus.Gatherer
}

// NewOpsHandler serves liveness, readiness, metrics and the outbox debug
// routes. It carries no domain routes; stock operations are reached through
// the service layer, not HTTP.
func NewOpsHandler(params OpsHandlerParams) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(params.Logger),
		middleware.RequestID(params.Logger),
		middleware.Logging(params.Logger),
	)

	r.Get("/healthz", controllers.HealthLive(params.Config))
	r.Get("/readyz", controllers.HealthReady(params.Config, params.Logger, params.DB, params.Redis))
	if params.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(params.Gatherer, promhttp.HandlerOpts{}))
	}
	if params.DLQ != nil {
		r.Route("/debug/outbox/dlq", func(r chi.Router) {
			r.Get("/", controllers.OutboxDLQList(params.Logger, params.DLQ))
			r.Get("/{eventID}", controllers.OutboxDLQGet(params.Logger, params.DLQ))
		})
	}
	return r
}
