// File: internal/infra/web/server.go
package web

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"membership-billing/internal/infra/logging"
	"membership-billing/internal/usecase"
)

type Server struct {
	webhookUC  usecase.WebhookUseCase
	checkoutUC usecase.CheckoutUseCase
	syncUC     usecase.SyncUseCase
	guard      usecase.AccessGuard

	auth          *AuthManager
	webhookSecret string
	log           *zerolog.Logger
}

func NewServer(
	webhookUC usecase.WebhookUseCase,
	checkoutUC usecase.CheckoutUseCase,
	syncUC usecase.SyncUseCase,
	guard usecase.AccessGuard,
	auth *AuthManager,
	webhookSecret string,
	logger *zerolog.Logger,
) *Server {
	l := logger.With().Str("component", "web").Logger()
	return &Server{
		webhookUC:     webhookUC,
		checkoutUC:    checkoutUC,
		syncUC:        syncUC,
		guard:         guard,
		auth:          auth,
		webhookSecret: webhookSecret,
		log:           &l,
	}
}

// Router builds the full HTTP surface.
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	// The gateway authenticates with its signature, not a bearer token.
	r.Post("/webhook", s.handleWebhook)

	r.Group(func(r chi.Router) {
		r.Use(s.requireAuth)
		r.Post("/checkout/trial", s.handleStartTrialCheckout)
		r.Post("/api/subscription/optimistic", s.handleOptimisticActivate)
		r.Get("/api/subscription", s.handleGetSubscription)
		r.Post("/api/subscription/recheck", s.handleRecheck)

		r.Group(func(r chi.Router) {
			r.Use(s.requireSubscription)
			r.Get("/api/member/status", s.handleMemberStatus)
		})
	})

	return r
}

type claimsKeyType struct{}

var claimsKey claimsKeyType

func claimsFrom(r *http.Request) *MemberClaims {
	c, _ := r.Context().Value(claimsKey).(*MemberClaims)
	return c
}

// requireAuth verifies the bearer token and stashes the claims.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := s.auth.ParseFromRequest(r)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, errorBody("missing or invalid token"))
			return
		}
		ctx := context.WithValue(r.Context(), claimsKey, claims)
		ctx = logging.WithUserID(ctx, claims.Subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireSubscription consults the access guard before letting a request
// reach gated features.
func (s *Server) requireSubscription(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := claimsFrom(r)
		decision, err := s.guard.Check(r.Context(), claims.Subject)
		if err != nil {
			logging.With(r.Context(), s.log).Error().Err(err).Msg("access check failed")
			writeJSON(w, http.StatusInternalServerError, errorBody("could not verify access"))
			return
		}
		if !decision.Allowed {
			writeJSON(w, http.StatusForbidden, errorBody(decision.Reason))
			return
		}
		next.ServeHTTP(w, r)
	})
}
