/*
Package api is the thin entry-point adapter (component C11): it
extracts caller identity, validates request shape and bounds, calls
exactly one redemption.Service method, and maps typed domain errors to
status codes. It never reads identity from the request body.

Grounded on the teacher's api/server.go chi+cors middleware stack,
adapted with a zerolog request logger in place of the teacher's plain
net/http log, and a rate-limiting shaper ahead of the auth layer.
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/warp/redemption-core/auth"
	"github.com/warp/redemption-core/ratelimit"
	"github.com/warp/redemption-core/redemption"
)

// Server wires the Redemption Service into an HTTP router.
type Server struct {
	svc      *redemption.Service
	verifier auth.Verifier
	shaper   *ratelimit.Shaper
	limiter  *ratelimit.Limiter
	loc      *time.Location
	log      zerolog.Logger
	router   chi.Router
}

// New builds a Server and mounts its routes.
func New(svc *redemption.Service, verifier auth.Verifier, shaper *ratelimit.Shaper, limiter *ratelimit.Limiter, loc *time.Location, log zerolog.Logger) *Server {
	s := &Server{svc: svc, verifier: verifier, shaper: shaper, limiter: limiter, loc: loc, log: log}
	s.router = s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()

	r.Use(hlog.NewHandler(s.log))
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Second)) // spec §5: every user-visible op ≤ 10s wall
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: false,
	}))

	// /metrics is mounted on the outer router, ahead of the shaper and
	// auth chain below, since scrapers don't carry a bearer token.
	r.Get("/metrics", s.svc.Metrics().Handler().ServeHTTP)

	r.Group(func(r chi.Router) {
		r.Use(s.shapeMiddleware)
		r.Use(auth.Middleware(s.verifier))

		r.Post("/claim", s.handleClaim)
		r.Post("/entitlements/{entitlement_id}/prove", s.handleProve)
		r.Post("/validate", s.handleValidate)
		r.Post("/confirm", s.handleConfirm)
		r.Post("/void", s.handleVoid)
		r.Get("/entitlements", s.handleListEntitlements)
		r.Get("/savings", s.handleSavings)
		r.Get("/redemptions", s.handleListRedemptions)
		r.Get("/offers/{offer_id}/claims", s.handleOfferClaims)
	})

	return r
}

// shapeMiddleware applies the process-wide token-bucket pre-filter
// (ratelimit.Shaper) ahead of the business-level quota gate, keyed by
// remote address since identity isn't verified yet at this layer.
func (s *Server) shapeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.shaper.Allow(r.RemoteAddr) {
			writeError(w, s.log, redemption.NewError(redemption.KindTransient, "request shaper rejected request"))
			return
		}
		next.ServeHTTP(w, r)
	})
}
