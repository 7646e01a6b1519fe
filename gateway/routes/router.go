package routes

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/palindrome-eng/srl-program/core/epoch"
	"github.com/palindrome-eng/srl-program/gateway/middleware"
)

const lendingPrefix = "/v1/lending"

type Config struct {
	Engine LendingReader
	Clock  epoch.Clock
	// Events enables /v1/lending/events when set.
	Events        EventLog
	RateLimiter   *middleware.RateLimiter
	Observability *middleware.Observability
}

// New builds the read-only lending API.
func New(cfg Config) (http.Handler, error) {
	if cfg.Engine == nil {
		return nil, errors.New("routes: lending engine required")
	}
	r := chi.NewRouter()
	obs := cfg.Observability
	if obs != nil {
		r.Use(obs.Middleware("root"))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	lr := &lendingRoutes{engine: cfg.Engine, clock: cfg.Clock, events: cfg.Events}
	r.Route(lendingPrefix, func(sr chi.Router) {
		if cfg.RateLimiter != nil {
			sr.Use(cfg.RateLimiter.Middleware("lending"))
		}
		if obs != nil {
			sr.Use(obs.Middleware("lending"))
		}
		lr.mount(sr)
	})

	if obs != nil {
		r.Handle("/metrics", obs.MetricsHandler())
	}

	return r, nil
}
