// File: internal/infra/web/webhook_handler.go
package web

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	stripelib "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"membership-billing/internal/domain/model"
	"membership-billing/internal/infra/logging"
	"membership-billing/internal/infra/metrics"
)

const webhookBodyLimit = 1024 * 1024 // 1 MiB

// handleWebhook verifies the Stripe signature, decodes the delivery into the
// internal event union, and runs it through the processor. The status code
// steers Stripe's redelivery: 2xx stops it, 4xx marks the delivery bad, 5xx
// asks for a retry.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	r.Body = http.MaxBytesReader(w, r.Body, webhookBodyLimit)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("failed to read request body"))
		return
	}

	sigHeader := r.Header.Get("Stripe-Signature")
	if strings.TrimSpace(sigHeader) == "" {
		metrics.IncWebhookSignatureFailure()
		writeJSON(w, http.StatusBadRequest, errorBody("missing Stripe signature"))
		return
	}

	event, err := webhook.ConstructEventWithOptions(payload, sigHeader, s.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		metrics.IncWebhookSignatureFailure()
		writeJSON(w, http.StatusBadRequest, errorBody("invalid Stripe signature"))
		return
	}

	ev, err := decodeBillingEvent(&event)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("malformed event payload"))
		return
	}
	if ev == nil {
		// Recognized delivery, irrelevant type. Acknowledge so Stripe stops.
		s.log.Info().Str("type", string(event.Type)).Str("event_id", event.ID).Msg("webhook ignored (unhandled type)")
		metrics.IncWebhookEvent(string(event.Type), "unhandled")
		writeJSON(w, http.StatusOK, receivedBody())
		return
	}

	res, err := s.webhookUC.Process(r.Context(), ev)
	metrics.ObserveWebhookProcess(string(event.Type), time.Since(start))
	if err != nil {
		logging.With(r.Context(), s.log).Error().Err(err).
			Str("event_id", event.ID).
			Str("type", string(event.Type)).
			Msg("webhook processing failed")
		metrics.IncWebhookEvent(string(event.Type), "error")
		writeJSON(w, http.StatusInternalServerError, errorBody("processing failed"))
		return
	}

	metrics.IncWebhookEvent(string(event.Type), string(res))
	metrics.ObserveWebhookLag(ev.OccurredAt(), time.Now())
	writeJSON(w, http.StatusOK, receivedBody())
}

// checkoutSessionPayload is the slice of checkout.session.* we consume.
type checkoutSessionPayload struct {
	ID              string `json:"id"`
	Mode            string `json:"mode"`
	Customer        string `json:"customer"`
	Subscription    string `json:"subscription"`
	CustomerEmail   string `json:"customer_email"`
	CustomerDetails struct {
		Email string `json:"email"`
	} `json:"customer_details"`
}

func (p *checkoutSessionPayload) email() string {
	if p.CustomerEmail != "" {
		return p.CustomerEmail
	}
	return p.CustomerDetails.Email
}

// subscriptionPayload is the slice of customer.subscription.* we consume.
type subscriptionPayload struct {
	ID                string `json:"id"`
	Customer          string `json:"customer"`
	Status            string `json:"status"`
	CancelAtPeriodEnd bool   `json:"cancel_at_period_end"`
	TrialEnd          int64  `json:"trial_end"`
	Items             struct {
		Data []struct {
			CurrentPeriodEnd int64 `json:"current_period_end"`
		} `json:"data"`
	} `json:"items"`
}

func (p *subscriptionPayload) periodEnd() *time.Time {
	var endUnix int64
	for _, item := range p.Items.Data {
		if item.CurrentPeriodEnd > endUnix {
			endUnix = item.CurrentPeriodEnd
		}
	}
	if p.TrialEnd > endUnix {
		endUnix = p.TrialEnd
	}
	if endUnix == 0 {
		return nil
	}
	end := time.Unix(endUnix, 0).UTC()
	return &end
}

// invoicePayload is the slice of invoice.* we consume.
type invoicePayload struct {
	Customer      string `json:"customer"`
	Subscription  string `json:"subscription"`
	CustomerEmail string `json:"customer_email"`
	PeriodEnd     int64  `json:"period_end"`
	Lines         struct {
		Data []struct {
			Period struct {
				End int64 `json:"end"`
			} `json:"period"`
		} `json:"data"`
	} `json:"lines"`
}

func (p *invoicePayload) periodEnd() *time.Time {
	endUnix := p.PeriodEnd
	for _, line := range p.Lines.Data {
		if line.Period.End > endUnix {
			endUnix = line.Period.End
		}
	}
	if endUnix == 0 {
		return nil
	}
	end := time.Unix(endUnix, 0).UTC()
	return &end
}

// decodeBillingEvent maps a verified Stripe event onto the internal union.
// A nil event with nil error means the type is not one we act on.
func decodeBillingEvent(event *stripelib.Event) (model.BillingEvent, error) {
	m := model.EventMeta{
		ID:   event.ID,
		Time: time.Unix(event.Created, 0).UTC(),
	}

	switch event.Type {
	case "checkout.session.completed":
		var session checkoutSessionPayload
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return nil, err
		}
		m.CustomerID = session.Customer
		m.SubscriptionID = session.Subscription
		m.Email = session.email()
		// A subscription-mode checkout with a trial starts the trial now; the
		// authoritative period end follows on customer.subscription.created.
		return model.CheckoutCompleted{EventMeta: m, Status: "trialing"}, nil

	case "customer.subscription.created", "customer.subscription.updated", "customer.subscription.deleted":
		var sub subscriptionPayload
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return nil, err
		}
		m.CustomerID = sub.Customer
		m.SubscriptionID = sub.ID
		switch event.Type {
		case "customer.subscription.created":
			return model.SubscriptionCreated{EventMeta: m, Status: sub.Status, PeriodEnd: sub.periodEnd()}, nil
		case "customer.subscription.deleted":
			return model.SubscriptionDeleted{EventMeta: m}, nil
		default:
			return model.SubscriptionUpdated{EventMeta: m, Status: sub.Status, PeriodEnd: sub.periodEnd(), CancelAtPeriodEnd: sub.CancelAtPeriodEnd}, nil
		}

	case "invoice.payment_succeeded":
		var inv invoicePayload
		if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
			return nil, err
		}
		m.CustomerID = inv.Customer
		m.SubscriptionID = inv.Subscription
		m.Email = inv.CustomerEmail
		return model.PaymentSucceeded{EventMeta: m, PeriodEnd: inv.periodEnd()}, nil

	case "invoice.payment_failed":
		var inv invoicePayload
		if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
			return nil, err
		}
		m.CustomerID = inv.Customer
		m.SubscriptionID = inv.Subscription
		m.Email = inv.CustomerEmail
		return model.PaymentFailed{EventMeta: m}, nil

	default:
		return nil, nil
	}
}
