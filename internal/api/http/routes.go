package http

import (
	nethttp "net/http"

	"swapguard/internal/api/http/handlers"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Middleware is any of the mw package middlewares
type Middleware interface {
	Handler(next nethttp.Handler) nethttp.Handler
}

// Middlewares left nil are skipped
type Middlewares struct {
	Logging   Middleware
	Gzip      Middleware
	CORS      Middleware
	RateLimit Middleware
	Auth      Middleware // JWT, or header identity on local setups
}

func BuildRouter(h *handlers.Handler, metrics nethttp.Handler, m Middlewares) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	if m.Logging != nil {
		r.Use(m.Logging.Handler)
	}
	if m.CORS != nil {
		r.Use(m.CORS.Handler)
	}

	// tech endpoint not auth
	r.Get("/healthz", h.Healthz)
	r.Get("/readiness", h.Readiness)
	if metrics != nil {
		r.Handle("/metrics", metrics)
	}

	r.Route("/api", func(api chi.Router) {
		if m.Gzip != nil {
			api.Use(m.Gzip.Handler)
		}
		if m.Auth != nil {
			api.Use(m.Auth.Handler)
		}
		if m.RateLimit != nil {
			api.Use(m.RateLimit.Handler)
		}

		api.Route("/pools", func(p chi.Router) {
			p.Get("/", h.ListPools)

			p.Post("/before-swap", h.BeforeSwap)
			p.Post("/swaps", h.QueueSwap)
			p.Post("/batch/execute", h.ExecuteBatch())
			p.Post("/batch/emergency", h.EmergencyExecuteBatch())

			p.Post("/commit-phase", h.StartCommitPhase)
			p.Post("/commits", h.CommitSwap)
			p.Post("/commit-hash", h.ComputeCommitHash)
			p.Post("/reveal-phase", h.StartRevealPhase)
			p.Post("/reveals", h.RevealSwap)
			p.Post("/reveal-batch", h.ExecuteBatchAfterReveal())

			p.Route("/{pool}", func(pp chi.Router) {
				pp.Get("/history", h.PriceHistory)
				pp.Get("/volatility", h.Volatility)
				pp.Get("/batch", h.BatchState)
				pp.Get("/queue", h.QueueDetails)
				pp.Get("/pending/{account}", h.PendingCount)
				pp.Get("/commitments/{account}", h.Commitments)
				pp.Get("/commits", h.CommitHashes)
				pp.Get("/reveals/{hash}", h.RevealedSwap)
			})
		})

		api.Route("/admin", func(ad chi.Router) {
			ad.Get("/roles", h.Roles)
			ad.Post("/executors", h.SetExecutor)
			ad.Post("/owner", h.TransferOwnership)
		})
	})

	return r
}
