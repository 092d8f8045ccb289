//go:build !integration

// File: internal/infra/web/mock_test.go
package web_test

import (
	"context"
	"time"

	"membership-billing/internal/domain/model"
	"membership-billing/internal/usecase"
)

type fakeWebhookUC struct {
	events []model.BillingEvent
	res    usecase.ProcessResult
	err    error
}

func (f *fakeWebhookUC) Process(ctx context.Context, ev model.BillingEvent) (usecase.ProcessResult, error) {
	f.events = append(f.events, ev)
	if f.err != nil {
		return "", f.err
	}
	if f.res == "" {
		return usecase.ResultApplied, nil
	}
	return f.res, nil
}

func (f *fakeWebhookUC) ApplyEvent(ctx context.Context, ev model.BillingEvent) (usecase.ProcessResult, error) {
	return f.Process(ctx, ev)
}

type fakeCheckoutUC struct {
	intent *usecase.CheckoutIntent
	err    error
}

func (f *fakeCheckoutUC) Start(ctx context.Context, userID, email string) (*usecase.CheckoutIntent, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.intent, nil
}

type fakeSyncUC struct {
	rec       *model.SubscriptionRecord
	canonical bool
	err       error
	activated []time.Time
}

func (f *fakeSyncUC) OptimisticActivate(ctx context.Context, userID string, predictedEnd time.Time) error {
	f.activated = append(f.activated, predictedEnd)
	return f.err
}

func (f *fakeSyncUC) Reconcile(ctx context.Context, userID string) (*model.SubscriptionRecord, bool, error) {
	return f.rec, f.canonical, f.err
}

func (f *fakeSyncUC) Poll(ctx context.Context, userID string, interval time.Duration, attempts int) (*model.SubscriptionRecord, error) {
	return f.rec, f.err
}

func (f *fakeSyncUC) Recheck(ctx context.Context, userID string) (*model.SubscriptionRecord, error) {
	return f.rec, f.err
}

type fakeGuard struct {
	decision *usecase.AccessDecision
	err      error
}

func (f *fakeGuard) Check(ctx context.Context, userID string) (*usecase.AccessDecision, error) {
	return f.decision, f.err
}
