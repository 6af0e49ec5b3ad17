package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/danielortiz-dev/vendique-backend/api/responses"
	"github.com/danielortiz-dev/vendique-backend/pkg/config"
	"github.com/danielortiz-dev/vendique-backend/pkg/db"
	pkgerrors "github.com/danielortiz-dev/vendique-backend/pkg/errors"
	"github.com/danielortiz-dev/vendique-backend/pkg/logger"
	"github.com/danielortiz-dev/vendique-backend/pkg/redis"
)

const readinessTimeout = 5 * time.Second

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Vendique-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady pings the backing stores. Any failing dependency turns the
// probe into a 503 so orchestrators stop routing work here.
func HealthReady(cfg *config.Config, logg *logger.Logger, dbP db.Pinger, redisP redis.Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Vendique-Env", cfg.App.Env)

		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()

		checks := map[string]string{}
		probes := []struct {
			name string
			ping func(context.Context) error
		}{
			{"db", pingOf(dbP)},
			{"redis", pingOf(redisP)},
		}
		for _, probe := range probes {
			if probe.ping == nil {
				continue
			}
			if err := probe.ping(ctx); err != nil {
				checks[probe.name] = "down"
				failure := pkgerrors.Wrap(pkgerrors.CodeDependency, err, probe.name+" unavailable").
					WithDetails(checks)
				responses.WriteError(ctx, logg, w, failure)
				return
			}
			checks[probe.name] = "up"
		}

		responses.WriteSuccess(w, map[string]any{"status": "ready", "checks": checks})
	}
}

type pinger interface {
	Ping(ctx context.Context) error
}

func pingOf(p pinger) func(context.Context) error {
	if p == nil {
		return nil
	}
	return p.Ping
}
