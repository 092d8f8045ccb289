//go:build !integration

// File: internal/usecase/checkout_uc_test.go
package usecase_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"membership-billing/internal/domain"
	"membership-billing/internal/domain/model"
	"membership-billing/internal/domain/ports/repository"
	"membership-billing/internal/usecase"
)

func newCheckoutUC(t *testing.T, profiles *MockMembershipRepo, gw *MockBillingGateway) usecase.CheckoutUseCase {
	t.Helper()
	logger := zerolog.Nop()
	return usecase.NewCheckoutUseCase(profiles, gw, 3*24*time.Hour, &logger)
}

func TestCheckoutUC_Start(t *testing.T) {
	ctx := context.Background()

	t.Run("creates customer and returns checkout url with trial end", func(t *testing.T) {
		profiles := NewMockMembershipRepo()
		gw := NewMockBillingGateway()
		uc := newCheckoutUC(t, profiles, gw)

		before := time.Now()
		intent, err := uc.Start(ctx, "user-1", "alice@example.com")
		if err != nil {
			t.Fatalf("Start: %v", err)
		}
		if intent.URL != "https://pay.example.com/cs_test_1" {
			t.Errorf("url = %q", intent.URL)
		}
		want := before.Add(3 * 24 * time.Hour)
		if intent.TrialEnd.Before(want) || intent.TrialEnd.After(want.Add(time.Minute)) {
			t.Errorf("trial end = %v, want ~%v", intent.TrialEnd, want)
		}

		prof, err := profiles.FindByUserID(ctx, repository.NoTX, "user-1")
		if err != nil {
			t.Fatalf("profile not created: %v", err)
		}
		if prof.CustomerID == "" {
			t.Error("customer id not persisted")
		}
	})

	t.Run("reuses stored customer on repeat calls", func(t *testing.T) {
		profiles := NewMockMembershipRepo()
		gw := NewMockBillingGateway()
		uc := newCheckoutUC(t, profiles, gw)

		if _, err := uc.Start(ctx, "user-1", "alice@example.com"); err != nil {
			t.Fatal(err)
		}
		if _, err := uc.Start(ctx, "user-1", "alice@example.com"); err != nil {
			t.Fatal(err)
		}
		if gw.ensureCalls != 1 {
			t.Errorf("EnsureCustomer called %d times, want 1", gw.ensureCalls)
		}
	})

	t.Run("normalizes email", func(t *testing.T) {
		profiles := NewMockMembershipRepo()
		gw := NewMockBillingGateway()
		uc := newCheckoutUC(t, profiles, gw)

		if _, err := uc.Start(ctx, "user-1", "  Alice@Example.COM "); err != nil {
			t.Fatal(err)
		}
		prof, _ := profiles.FindByUserID(ctx, repository.NoTX, "user-1")
		if prof.Email != "alice@example.com" {
			t.Errorf("email = %q", prof.Email)
		}
	})

	t.Run("rejects empty email", func(t *testing.T) {
		uc := newCheckoutUC(t, NewMockMembershipRepo(), NewMockBillingGateway())
		if _, err := uc.Start(ctx, "user-1", "  "); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Fatalf("err = %v, want ErrInvalidArgument", err)
		}
	})

	t.Run("gateway failure surfaces without partial writes", func(t *testing.T) {
		profiles := NewMockMembershipRepo()
		gw := NewMockBillingGateway()
		gw.ensureErr = errors.New("stripe 500")
		uc := newCheckoutUC(t, profiles, gw)

		if _, err := uc.Start(ctx, "user-1", "alice@example.com"); err == nil {
			t.Fatal("expected error")
		}
		prof, err := profiles.FindByUserID(ctx, repository.NoTX, "user-1")
		if err != nil {
			t.Fatal(err)
		}
		if prof.CustomerID != "" {
			t.Errorf("customer id persisted despite failure: %q", prof.CustomerID)
		}
	})

	t.Run("checkout failure does not orphan the customer mapping", func(t *testing.T) {
		profiles := NewMockMembershipRepo()
		gw := NewMockBillingGateway()
		gw.checkoutErr = errors.New("stripe 500")
		uc := newCheckoutUC(t, profiles, gw)

		if _, err := uc.Start(ctx, "user-1", "alice@example.com"); err == nil {
			t.Fatal("expected error")
		}
		prof, _ := profiles.FindByUserID(ctx, repository.NoTX, "user-1")
		if prof.CustomerID == "" {
			t.Error("customer id lost; retry would re-create the customer")
		}

		gw.checkoutErr = nil
		if _, err := uc.Start(ctx, "user-1", "alice@example.com"); err != nil {
			t.Fatalf("retry: %v", err)
		}
		if gw.ensureCalls != 1 {
			t.Errorf("EnsureCustomer called %d times, want 1", gw.ensureCalls)
		}
	})
}

func TestCheckoutUC_ExistingProfile(t *testing.T) {
	ctx := context.Background()
	profiles := NewMockMembershipRepo()
	gw := NewMockBillingGateway()
	uc := newCheckoutUC(t, profiles, gw)

	prof, _ := model.NewMembershipProfile("user-1", "alice@example.com")
	prof.CustomerID = "cus_existing"
	if err := profiles.Save(ctx, repository.NoTX, prof); err != nil {
		t.Fatal(err)
	}

	if _, err := uc.Start(ctx, "user-1", "alice@example.com"); err != nil {
		t.Fatal(err)
	}
	if gw.ensureCalls != 0 {
		t.Errorf("EnsureCustomer called %d times for existing customer", gw.ensureCalls)
	}
}
