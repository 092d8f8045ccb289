//go:build !integration

// File: internal/usecase/webhook_uc_test.go
package usecase_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"membership-billing/internal/domain/model"
	"membership-billing/internal/domain/ports/repository"
	"membership-billing/internal/usecase"
)

type webhookUCDeps struct {
	subs     *MockSubscriptionRepo
	profiles *MockMembershipRepo
	dedup    *MockDedupStore
	uc       usecase.WebhookUseCase
}

func newWebhookUCDeps(t *testing.T) *webhookUCDeps {
	t.Helper()
	logger := zerolog.Nop()
	d := &webhookUCDeps{
		subs:     NewMockSubscriptionRepo(),
		profiles: NewMockMembershipRepo(),
		dedup:    NewMockDedupStore(),
	}
	d.uc = usecase.NewWebhookUseCase(d.subs, d.profiles, d.dedup, usecase.DefaultDedupWindow, &logger)
	return d
}

func (d *webhookUCDeps) seedProfile(t *testing.T) *model.MembershipProfile {
	t.Helper()
	prof, err := model.NewMembershipProfile("user-1", "alice@example.com")
	if err != nil {
		t.Fatal(err)
	}
	prof.CustomerID = "cus_123"
	if err := d.profiles.Save(context.Background(), repository.NoTX, prof); err != nil {
		t.Fatal(err)
	}
	return prof
}

func TestWebhookUC_Process(t *testing.T) {
	ctx := context.Background()

	t.Run("applies event and persists record then profile", func(t *testing.T) {
		d := newWebhookUCDeps(t)
		d.seedProfile(t)
		end := t1.Add(3 * 24 * time.Hour)

		res, err := d.uc.Process(ctx, model.CheckoutCompleted{EventMeta: meta("evt_1", t1), Status: "trialing", PeriodEnd: &end})
		if err != nil {
			t.Fatalf("Process: %v", err)
		}
		if res != usecase.ResultApplied {
			t.Fatalf("result = %s, want applied", res)
		}

		rec, err := d.subs.FindByIdentity(ctx, repository.NoTX, "alice@example.com")
		if err != nil {
			t.Fatalf("record not persisted: %v", err)
		}
		if rec.State != model.SubscriptionStateTrialing || !rec.Subscribed {
			t.Errorf("persisted record = %+v", rec)
		}
		prof, _ := d.profiles.FindByUserID(ctx, repository.NoTX, "user-1")
		if !prof.AccessFlag || prof.TrialStartedAt == nil {
			t.Errorf("profile not synced: %+v", prof)
		}
		if d.dedup.confirms != 1 {
			t.Errorf("confirms = %d, want 1", d.dedup.confirms)
		}
	})

	t.Run("duplicate delivery has no second effect", func(t *testing.T) {
		d := newWebhookUCDeps(t)
		d.seedProfile(t)
		end := t1.Add(3 * 24 * time.Hour)
		ev := model.CheckoutCompleted{EventMeta: meta("evt_1", t1), Status: "trialing", PeriodEnd: &end}

		if _, err := d.uc.Process(ctx, ev); err != nil {
			t.Fatal(err)
		}
		savesAfterFirst := d.subs.saves

		res, err := d.uc.Process(ctx, ev)
		if err != nil {
			t.Fatal(err)
		}
		if res != usecase.ResultDuplicate {
			t.Fatalf("result = %s, want duplicate", res)
		}
		if d.subs.saves != savesAfterFirst {
			t.Errorf("duplicate delivery wrote %d extra saves", d.subs.saves-savesAfterFirst)
		}
	})

	t.Run("stale event confirmed but not applied", func(t *testing.T) {
		d := newWebhookUCDeps(t)
		d.seedProfile(t)
		newEnd := t2.Add(30 * 24 * time.Hour)
		oldEnd := t1.Add(3 * 24 * time.Hour)

		if _, err := d.uc.Process(ctx, model.SubscriptionUpdated{EventMeta: meta("evt_2", t2), Status: "active", PeriodEnd: &newEnd}); err != nil {
			t.Fatal(err)
		}
		res, err := d.uc.Process(ctx, model.SubscriptionCreated{EventMeta: meta("evt_1", t1), Status: "trialing", PeriodEnd: &oldEnd})
		if err != nil {
			t.Fatal(err)
		}
		if res != usecase.ResultStale {
			t.Fatalf("result = %s, want stale", res)
		}
		rec, _ := d.subs.FindByIdentity(ctx, repository.NoTX, "alice@example.com")
		if rec.State != model.SubscriptionStateActive {
			t.Errorf("state regressed to %s", rec.State)
		}
	})

	t.Run("orphan event swallowed", func(t *testing.T) {
		d := newWebhookUCDeps(t)
		end := t1.Add(3 * 24 * time.Hour)

		res, err := d.uc.Process(ctx, model.SubscriptionCreated{
			EventMeta: model.EventMeta{ID: "evt_9", Time: t1, CustomerID: "cus_unknown"},
			Status:    "active", PeriodEnd: &end,
		})
		if err != nil {
			t.Fatalf("orphan event should not error: %v", err)
		}
		if res != usecase.ResultOrphan {
			t.Fatalf("result = %s, want orphan", res)
		}
		if d.subs.saves != 0 {
			t.Errorf("orphan event wrote %d records", d.subs.saves)
		}
	})

	t.Run("resolves profile by email when customer unknown", func(t *testing.T) {
		d := newWebhookUCDeps(t)
		prof, _ := model.NewMembershipProfile("user-2", "bob@example.com")
		if err := d.profiles.Save(ctx, repository.NoTX, prof); err != nil {
			t.Fatal(err)
		}
		end := t1.Add(3 * 24 * time.Hour)

		res, err := d.uc.Process(ctx, model.CheckoutCompleted{
			EventMeta: model.EventMeta{ID: "evt_10", Time: t1, CustomerID: "cus_999", Email: "Bob@Example.com"},
			Status:    "trialing", PeriodEnd: &end,
		})
		if err != nil {
			t.Fatal(err)
		}
		if res != usecase.ResultApplied {
			t.Fatalf("result = %s, want applied", res)
		}
		got, _ := d.profiles.FindByUserID(ctx, repository.NoTX, "user-2")
		if got.CustomerID != "cus_999" {
			t.Errorf("customer id not adopted: %q", got.CustomerID)
		}
	})

	t.Run("persistence failure releases the claim", func(t *testing.T) {
		d := newWebhookUCDeps(t)
		d.seedProfile(t)
		d.subs.saveErr = errors.New("db down")
		end := t1.Add(3 * 24 * time.Hour)
		ev := model.CheckoutCompleted{EventMeta: meta("evt_1", t1), Status: "trialing", PeriodEnd: &end}

		if _, err := d.uc.Process(ctx, ev); err == nil {
			t.Fatal("expected error")
		}
		if d.dedup.releases != 1 {
			t.Fatalf("releases = %d, want 1", d.dedup.releases)
		}
		if d.dedup.confirms != 0 {
			t.Fatalf("confirms = %d, want 0", d.dedup.confirms)
		}

		// The retry after recovery succeeds.
		d.subs.saveErr = nil
		res, err := d.uc.Process(ctx, ev)
		if err != nil {
			t.Fatal(err)
		}
		if res != usecase.ResultApplied {
			t.Fatalf("retry result = %s, want applied", res)
		}
	})

	t.Run("dedup outage surfaces as retryable error", func(t *testing.T) {
		d := newWebhookUCDeps(t)
		d.seedProfile(t)
		d.dedup.claimErr = errors.New("redis down")
		end := t1.Add(3 * 24 * time.Hour)

		if _, err := d.uc.Process(ctx, model.CheckoutCompleted{EventMeta: meta("evt_1", t1), Status: "trialing", PeriodEnd: &end}); err == nil {
			t.Fatal("expected error when dedup store unavailable")
		}
		if d.subs.saves != 0 {
			t.Error("state written despite dedup outage")
		}
	})

	t.Run("racing activations stamp trial end once", func(t *testing.T) {
		d := newWebhookUCDeps(t)
		d.seedProfile(t)
		trialEnd := t1.Add(3 * 24 * time.Hour)
		if _, err := d.uc.Process(ctx, model.CheckoutCompleted{EventMeta: meta("evt_1", t1), Status: "trialing", PeriodEnd: &trialEnd}); err != nil {
			t.Fatal(err)
		}

		// Hold both deliveries at profile resolution so each starts from the
		// same pre-apply view before entering the per-identity lock.
		var gate sync.WaitGroup
		gate.Add(2)
		d.profiles.lookupHook = func() {
			gate.Done()
			gate.Wait()
		}

		// Same event time: both deliveries pass the ordering rule whichever
		// applies first.
		end := t2.Add(30 * 24 * time.Hour)
		var wg sync.WaitGroup
		for _, id := range []string{"evt_act_a", "evt_act_b"} {
			ev := model.SubscriptionUpdated{EventMeta: meta(id, t2), Status: "active", PeriodEnd: &end}
			wg.Add(1)
			go func(ev model.BillingEvent) {
				defer wg.Done()
				if _, err := d.uc.Process(ctx, ev); err != nil {
					t.Error(err)
				}
			}(ev)
		}
		wg.Wait()

		stamps := make(map[time.Time]bool)
		for _, p := range d.profiles.history {
			if p.TrialEndedAt != nil {
				stamps[*p.TrialEndedAt] = true
			}
		}
		if len(stamps) != 1 {
			t.Errorf("trial end stamped with %d distinct values, want exactly one", len(stamps))
		}
		prof, _ := d.profiles.FindByUserID(ctx, repository.NoTX, "user-1")
		if prof.TrialEndedAt == nil {
			t.Fatal("trial end not stamped")
		}
	})

	t.Run("concurrent deliveries for one identity serialize", func(t *testing.T) {
		d := newWebhookUCDeps(t)
		d.seedProfile(t)

		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			at := t1.Add(time.Duration(i) * time.Second)
			end := at.Add(30 * 24 * time.Hour)
			ev := model.SubscriptionUpdated{EventMeta: model.EventMeta{
				ID: "evt_c_" + at.Format("150405"), Time: at, CustomerID: "cus_123", SubscriptionID: "sub_123",
			}, Status: "active", PeriodEnd: &end}
			wg.Add(1)
			go func(ev model.BillingEvent) {
				defer wg.Done()
				if _, err := d.uc.Process(ctx, ev); err != nil {
					t.Error(err)
				}
			}(ev)
		}
		wg.Wait()

		rec, err := d.subs.FindByIdentity(ctx, repository.NoTX, "alice@example.com")
		if err != nil {
			t.Fatal(err)
		}
		wantEnd := t1.Add(7 * time.Second).Add(30 * 24 * time.Hour)
		if rec.SubscriptionEnd == nil || !rec.SubscriptionEnd.Equal(wantEnd) {
			t.Errorf("subscription end = %v, want %v", rec.SubscriptionEnd, wantEnd)
		}
	})
}
