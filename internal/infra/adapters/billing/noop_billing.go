// File: internal/infra/adapters/billing/noop_billing.go
package billing

import (
	"context"
	"fmt"
	"sync"
	"time"

	"membership-billing/internal/domain/ports/adapter"
)

var _ adapter.BillingGateway = (*NoopGateway)(nil)

// NoopGateway is an in-memory gateway for dev mode and tests: it hands out
// deterministic ids and never talks to a payment provider.
type NoopGateway struct {
	mu        sync.Mutex
	customers map[string]string
	seq       int
	trialLen  time.Duration
}

func NewNoopGateway(trialLen time.Duration) *NoopGateway {
	return &NoopGateway{customers: make(map[string]string), trialLen: trialLen}
}

func (g *NoopGateway) Name() string { return "noop" }

func (g *NoopGateway) EnsureCustomer(ctx context.Context, email string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if id, ok := g.customers[email]; ok {
		return id, nil
	}
	g.seq++
	id := fmt.Sprintf("cus_noop_%d", g.seq)
	g.customers[email] = id
	return id, nil
}

func (g *NoopGateway) CreateTrialCheckout(ctx context.Context, customerID, email string) (adapter.CheckoutSession, error) {
	g.mu.Lock()
	g.seq++
	id := fmt.Sprintf("cs_noop_%d", g.seq)
	g.mu.Unlock()
	return adapter.CheckoutSession{ID: id, URL: "https://checkout.invalid/" + id}, nil
}

func (g *NoopGateway) FetchSubscription(ctx context.Context, customerID string) (*adapter.SubscriptionSnapshot, error) {
	end := time.Now().Add(g.trialLen).UTC()
	return &adapter.SubscriptionSnapshot{
		SubscriptionID: "sub_noop_" + customerID,
		CustomerID:     customerID,
		Status:         "trialing",
		PeriodEnd:      &end,
		AsOf:           time.Now(),
	}, nil
}
