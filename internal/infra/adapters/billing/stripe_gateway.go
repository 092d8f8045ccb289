// File: internal/infra/adapters/billing/stripe_gateway.go
package billing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	stripelib "github.com/stripe/stripe-go/v82"
	stripesession "github.com/stripe/stripe-go/v82/checkout/session"
	stripecustomer "github.com/stripe/stripe-go/v82/customer"
	stripesubscription "github.com/stripe/stripe-go/v82/subscription"

	"membership-billing/internal/config"
	"membership-billing/internal/domain"
	"membership-billing/internal/domain/ports/adapter"
)

var _ adapter.BillingGateway = (*StripeGateway)(nil)

// StripeGateway implements the billing port against the Stripe API.
// The API entry points are function fields so tests can stub them without a
// network.
type StripeGateway struct {
	cfg *config.BillingConfig
	log *zerolog.Logger

	createCheckoutSession func(params *stripelib.CheckoutSessionParams) (*stripelib.CheckoutSession, error)
	createCustomer        func(params *stripelib.CustomerParams) (*stripelib.Customer, error)
	listCustomers         func(params *stripelib.CustomerListParams) *stripecustomer.Iter
	listSubscriptions     func(params *stripelib.SubscriptionListParams) *stripesubscription.Iter
}

func NewStripeGateway(cfg *config.BillingConfig, logger *zerolog.Logger) *StripeGateway {
	stripelib.Key = strings.TrimSpace(cfg.SecretKey)
	l := logger.With().Str("component", "StripeGateway").Logger()
	return &StripeGateway{
		cfg:                   cfg,
		log:                   &l,
		createCheckoutSession: stripesession.New,
		createCustomer:        stripecustomer.New,
		listCustomers:         stripecustomer.List,
		listSubscriptions:     stripesubscription.List,
	}
}

func (g *StripeGateway) Name() string { return "stripe" }

func (g *StripeGateway) EnsureCustomer(ctx context.Context, email string) (string, error) {
	listParams := &stripelib.CustomerListParams{Email: stripelib.String(email)}
	listParams.Context = ctx
	listParams.Limit = stripelib.Int64(1)
	it := g.listCustomers(listParams)
	for it.Next() {
		return it.Customer().ID, nil
	}
	if err := it.Err(); err != nil {
		return "", fmt.Errorf("%w: list customers: %v", domain.ErrGatewayUnavailable, err)
	}

	params := &stripelib.CustomerParams{Email: stripelib.String(email)}
	params.Context = ctx
	params.SetIdempotencyKey("cust-" + ulid.Make().String())
	cust, err := g.createCustomer(params)
	if err != nil {
		return "", fmt.Errorf("%w: create customer: %v", domain.ErrGatewayUnavailable, err)
	}
	g.log.Info().Str("customer_id", cust.ID).Msg("stripe customer created")
	return cust.ID, nil
}

func (g *StripeGateway) CreateTrialCheckout(ctx context.Context, customerID, email string) (adapter.CheckoutSession, error) {
	trialDays := int64(g.cfg.TrialPeriod / (24 * time.Hour))
	if trialDays < 1 {
		trialDays = 1
	}

	params := &stripelib.CheckoutSessionParams{
		Mode:                    stripelib.String(string(stripelib.CheckoutSessionModeSubscription)),
		SuccessURL:              stripelib.String(g.cfg.SuccessURL),
		CancelURL:               stripelib.String(g.cfg.CancelURL),
		PaymentMethodCollection: stripelib.String(string(stripelib.CheckoutSessionPaymentMethodCollectionAlways)),
		LineItems: []*stripelib.CheckoutSessionLineItemParams{
			{
				Price:    stripelib.String(strings.TrimSpace(g.cfg.PriceID)),
				Quantity: stripelib.Int64(1),
			},
		},
		SubscriptionData: &stripelib.CheckoutSessionSubscriptionDataParams{
			TrialPeriodDays: stripelib.Int64(trialDays),
		},
	}
	params.Context = ctx
	if customerID != "" {
		params.Customer = stripelib.String(customerID)
	} else {
		params.CustomerEmail = stripelib.String(email)
	}
	params.SetIdempotencyKey("checkout-" + ulid.Make().String())

	session, err := g.createCheckoutSession(params)
	if err != nil {
		return adapter.CheckoutSession{}, fmt.Errorf("%w: create checkout session: %v", domain.ErrGatewayUnavailable, err)
	}
	return adapter.CheckoutSession{ID: session.ID, URL: session.URL}, nil
}

func (g *StripeGateway) FetchSubscription(ctx context.Context, customerID string) (*adapter.SubscriptionSnapshot, error) {
	params := &stripelib.SubscriptionListParams{Customer: stripelib.String(customerID)}
	params.Context = ctx
	params.Status = stripelib.String("all")
	params.Limit = stripelib.Int64(1)

	it := g.listSubscriptions(params)
	for it.Next() {
		sub := it.Subscription()
		return snapshotFromSubscription(customerID, sub), nil
	}
	if err := it.Err(); err != nil {
		return nil, fmt.Errorf("%w: list subscriptions: %v", domain.ErrGatewayUnavailable, err)
	}
	return nil, nil
}

func snapshotFromSubscription(customerID string, sub *stripelib.Subscription) *adapter.SubscriptionSnapshot {
	snap := &adapter.SubscriptionSnapshot{
		SubscriptionID: sub.ID,
		CustomerID:     customerID,
		Status:         string(sub.Status),
		AsOf:           time.Now(),
	}
	var endUnix int64
	for _, item := range sub.Items.Data {
		if item.CurrentPeriodEnd > endUnix {
			endUnix = item.CurrentPeriodEnd
		}
	}
	if sub.TrialEnd > endUnix {
		endUnix = sub.TrialEnd
	}
	if endUnix > 0 {
		end := time.Unix(endUnix, 0).UTC()
		snap.PeriodEnd = &end
	}
	return snap
}
