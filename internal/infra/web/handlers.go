// File: internal/infra/web/handlers.go
package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"membership-billing/internal/domain"
	"membership-billing/internal/domain/model"
	"membership-billing/internal/infra/logging"
	"membership-billing/internal/infra/metrics"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func errorBody(msg string) map[string]string { return map[string]string{"error": msg} }

func receivedBody() map[string]bool { return map[string]bool{"received": true} }

// handleStartTrialCheckout opens a hosted trial checkout for the
// authenticated user.
// POST /checkout/trial -> {"url": "...", "trialEnd": "..."}
func (s *Server) handleStartTrialCheckout(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)

	intent, err := s.checkoutUC.Start(r.Context(), claims.Subject, claims.Email)
	if err != nil {
		metrics.IncCheckout("failed")
		logging.With(r.Context(), s.log).Error().Err(err).Msg("trial checkout failed")
		if errors.Is(err, domain.ErrInvalidArgument) {
			writeJSON(w, http.StatusBadRequest, errorBody("a valid email is required"))
			return
		}
		writeJSON(w, http.StatusInternalServerError, errorBody("could not start checkout"))
		return
	}
	metrics.IncCheckout("created")

	writeJSON(w, http.StatusOK, map[string]any{
		"url":      intent.URL,
		"trialEnd": intent.TrialEnd.UTC().Format(time.RFC3339),
	})
}

type optimisticRequest struct {
	TrialEnd time.Time `json:"trialEnd"`
}

// handleOptimisticActivate records the client's post-checkout prediction.
// POST /api/subscription/optimistic
func (s *Server) handleOptimisticActivate(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)

	var req optimisticRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("malformed body"))
		return
	}
	if req.TrialEnd.IsZero() || req.TrialEnd.Before(time.Now()) {
		writeJSON(w, http.StatusBadRequest, errorBody("trialEnd must be in the future"))
		return
	}

	if err := s.syncUC.OptimisticActivate(r.Context(), claims.Subject, req.TrialEnd); err != nil {
		logging.With(r.Context(), s.log).Error().Err(err).Msg("optimistic activate failed")
		writeJSON(w, http.StatusInternalServerError, errorBody("could not record activation"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type subscriptionResponse struct {
	State           string     `json:"state"`
	Subscribed      bool       `json:"subscribed"`
	Tier            string     `json:"tier"`
	SubscriptionEnd *time.Time `json:"subscriptionEnd,omitempty"`
	Canonical       bool       `json:"canonical"`
}

func toSubscriptionResponse(rec *model.SubscriptionRecord, canonical bool) subscriptionResponse {
	if rec == nil {
		return subscriptionResponse{State: string(model.SubscriptionStateNone), Tier: string(model.TierNone)}
	}
	return subscriptionResponse{
		State:           string(rec.State),
		Subscribed:      rec.Subscribed,
		Tier:            string(rec.Tier),
		SubscriptionEnd: rec.SubscriptionEnd,
		Canonical:       canonical,
	}
}

// handleGetSubscription returns the caller's current record, flagged as
// canonical or advisory.
// GET /api/subscription
func (s *Server) handleGetSubscription(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)

	rec, canonical, err := s.syncUC.Reconcile(r.Context(), claims.Subject)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeJSON(w, http.StatusOK, toSubscriptionResponse(nil, false))
			return
		}
		logging.With(r.Context(), s.log).Error().Err(err).Msg("subscription read failed")
		writeJSON(w, http.StatusInternalServerError, errorBody("could not read subscription"))
		return
	}
	writeJSON(w, http.StatusOK, toSubscriptionResponse(rec, canonical))
}

// handleRecheck forces a direct gateway read for users whose events appear
// to have been lost.
// POST /api/subscription/recheck
func (s *Server) handleRecheck(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)

	rec, err := s.syncUC.Recheck(r.Context(), claims.Subject)
	if err != nil {
		metrics.IncRecheck("api", "failed")
		if errors.Is(err, domain.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("no billing account for user"))
			return
		}
		logging.With(r.Context(), s.log).Error().Err(err).Msg("recheck failed")
		writeJSON(w, http.StatusBadGateway, errorBody("could not verify subscription"))
		return
	}
	metrics.IncRecheck("api", "ok")
	writeJSON(w, http.StatusOK, toSubscriptionResponse(rec, !rec.Advisory))
}

// handleMemberStatus reports access and the trial countdown for the member
// dashboard. Sits behind RequireSubscription, so reaching it implies access.
// GET /api/member/status
func (s *Server) handleMemberStatus(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)

	decision, err := s.guard.Check(r.Context(), claims.Subject)
	if err != nil {
		logging.With(r.Context(), s.log).Error().Err(err).Msg("member status failed")
		writeJSON(w, http.StatusInternalServerError, errorBody("could not read status"))
		return
	}

	body := map[string]any{
		"allowed": decision.Allowed,
		"state":   string(decision.State),
		"tier":    string(decision.Tier),
	}
	if decision.Countdown != nil {
		body["countdown"] = map[string]any{
			"label":        decision.Countdown.Label,
			"expiringSoon": decision.Countdown.ExpiringSoon,
			"expired":      decision.Countdown.Expired,
		}
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
