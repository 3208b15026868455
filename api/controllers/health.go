package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/angelmondragon/bv-engine/api/responses"
	"github.com/angelmondragon/bv-engine/pkg/config"
	pkgerrors "github.com/angelmondragon/bv-engine/pkg/errors"
	"github.com/angelmondragon/bv-engine/pkg/logger"
)

const readinessTimeout = 2 * time.Second

// Pinger is satisfied by the database and redis clients.
type Pinger interface {
	Ping(ctx context.Context) error
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-BV-Engine-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady pings every dependency; a nil pinger is reported as disabled.
func HealthReady(cfg *config.Config, logg *logger.Logger, dbP Pinger, redisP Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-BV-Engine-Env", cfg.App.Env)

		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()

		checks := map[string]string{}
		failed := false
		for name, p := range map[string]Pinger{"database": dbP, "redis": redisP} {
			if p == nil {
				checks[name] = "disabled"
				continue
			}
			if err := p.Ping(ctx); err != nil {
				checks[name] = "unreachable"
				failed = true
				if logg != nil {
					logg.Error(logg.WithField(ctx, "dependency", name), "health.ready.ping_failed", err)
				}
				continue
			}
			checks[name] = "ok"
		}

		if failed {
			responses.WriteError(r.Context(), nil, w, pkgerrors.New(pkgerrors.CodeDependency, "dependency unavailable").WithDetails(checks))
			return
		}
		responses.WriteSuccess(w, map[string]any{"status": "ready", "checks": checks})
	}
}
