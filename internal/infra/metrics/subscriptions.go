package metrics

import (
	"membership-billing/internal/domain/model"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		subscriptionsTotal,
		checkoutsTotal,
		recheckTotal,
	)
}

var (
	subscriptionsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "subscriptions_total",
			Help: "Current number of subscription records by state.",
		},
		[]string{"state"},
	)

	checkoutsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkouts_total",
			Help: "Trial checkout sessions by outcome (created/failed).",
		},
		[]string{"outcome"},
	)

	recheckTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subscription_rechecks_total",
			Help: "Direct gateway rechecks by origin (api/reconciler) and outcome.",
		},
		[]string{"origin", "outcome"},
	)
)

func SetSubscriptionsTotal(counts map[model.SubscriptionState]int) {
	states := []model.SubscriptionState{
		model.SubscriptionStateNone,
		model.SubscriptionStateTrialing,
		model.SubscriptionStateActive,
		model.SubscriptionStatePastDue,
		model.SubscriptionStateCanceled,
	}
	for _, state := range states {
		if count, ok := counts[state]; ok {
			subscriptionsTotal.WithLabelValues(string(state)).Set(float64(count))
		}
	}
}

func IncCheckout(outcome string) {
	checkoutsTotal.WithLabelValues(norm(outcome)).Inc()
}

func IncRecheck(origin, outcome string) {
	recheckTotal.WithLabelValues(norm(origin), norm(outcome)).Inc()
}
