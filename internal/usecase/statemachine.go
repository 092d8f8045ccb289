// File: internal/usecase/statemachine.go
package usecase

import (
	"time"

	"membership-billing/internal/domain/model"
)

// Decision reports what Apply did with an event.
type Decision int

const (
	DecisionApplied Decision = iota
	DecisionIgnored
)

func (d Decision) String() string {
	if d == DecisionApplied {
		return "applied"
	}
	return "ignored"
}

// Apply is the subscription state machine: pure, no I/O. It folds one gateway
// event into the canonical record and the membership profile and reports
// whether the event was applied or ignored as stale.
//
// Ordering rule: an event is applied only if its event-time is >= the
// record's UpdatedAt, or the record is still bootstrap/advisory. Receipt
// order is irrelevant; replaying any permutation of a fixed event set with
// distinct event-times converges to the same record.
//
// now is wall-clock processing time and is used only for the profile's trial
// stamps, never for ordering.
func Apply(rec model.SubscriptionRecord, prof model.MembershipProfile, ev model.BillingEvent, now time.Time) (model.SubscriptionRecord, model.MembershipProfile, Decision) {
	if !applicable(rec, ev) {
		return rec, prof, DecisionIgnored
	}

	prevState := rec.State

	var status string
	var periodEnd *time.Time
	switch e := ev.(type) {
	case model.CheckoutCompleted:
		status = e.Status
		periodEnd = e.PeriodEnd
	case model.SubscriptionCreated:
		status = e.Status
		periodEnd = e.PeriodEnd
	case model.SubscriptionUpdated:
		status = e.Status
		periodEnd = e.PeriodEnd
	case model.SubscriptionDeleted:
		return applyDeletion(rec, prof, e, now)
	case model.PaymentSucceeded:
		status = "active"
		periodEnd = e.PeriodEnd
	case model.PaymentFailed:
		status = "past_due"
	default:
		// Closed union; unreachable for events built by this module.
		return rec, prof, DecisionIgnored
	}

	target := model.ParseSubscriptionState(status)
	rec.State = target
	rec.Subscribed = target.Grants()
	if rec.Subscribed {
		rec.Tier = model.TierPremium
	} else {
		rec.Tier = model.TierNone
	}
	// subscription_end is non-decreasing across applied non-deletion events.
	if periodEnd != nil && (rec.SubscriptionEnd == nil || periodEnd.After(*rec.SubscriptionEnd)) {
		end := *periodEnd
		rec.SubscriptionEnd = &end
	}
	rec.UpdatedAt = ev.OccurredAt()
	rec.Advisory = false
	applyMeta(&rec, ev)

	// Entering the trial stamps trial_started_at once.
	if target == model.SubscriptionStateTrialing && prof.TrialStartedAt == nil {
		started := now
		prof.TrialStartedAt = &started
	}
	// The first ACTIVE observed after having been trialing ends the trial,
	// exactly once per lifecycle, at wall-clock time.
	if target == model.SubscriptionStateActive && prof.TrialStartedAt != nil && prof.TrialEndedAt == nil && prevState != model.SubscriptionStateNone {
		ended := now
		prof.TrialEndedAt = &ended
	}

	syncProfile(&prof, rec, now)
	return rec, prof, DecisionApplied
}

// applyDeletion handles the terminal event: it clears the record
// unconditionally, but never overrides a strictly later non-deletion event
// already applied.
func applyDeletion(rec model.SubscriptionRecord, prof model.MembershipProfile, ev model.SubscriptionDeleted, now time.Time) (model.SubscriptionRecord, model.MembershipProfile, Decision) {
	rec.State = model.SubscriptionStateCanceled
	rec.Subscribed = false
	rec.Tier = model.TierNone
	rec.SubscriptionEnd = nil
	rec.UpdatedAt = ev.OccurredAt()
	rec.Advisory = false
	applyMeta(&rec, ev)

	if prof.TrialStartedAt != nil && prof.TrialEndedAt == nil {
		ended := now
		prof.TrialEndedAt = &ended
	}

	syncProfile(&prof, rec, now)
	return rec, prof, DecisionApplied
}

func applicable(rec model.SubscriptionRecord, ev model.BillingEvent) bool {
	// Bootstrap: nothing authoritative applied yet.
	if rec.UpdatedAt.IsZero() || rec.Advisory {
		return true
	}
	if !ev.OccurredAt().Before(rec.UpdatedAt) {
		return true
	}
	// A canceled record stays closed to earlier-timestamped events even
	// though its subscription_end is null (deletion terminality).
	if rec.State == model.SubscriptionStateCanceled {
		return false
	}
	// No canonical expiry known yet: treat the record as still forming.
	return rec.SubscriptionEnd == nil
}

func applyMeta(rec *model.SubscriptionRecord, ev model.BillingEvent) {
	switch e := ev.(type) {
	case model.CheckoutCompleted:
		setMeta(rec, e.EventMeta)
	case model.SubscriptionCreated:
		setMeta(rec, e.EventMeta)
	case model.SubscriptionUpdated:
		setMeta(rec, e.EventMeta)
	case model.SubscriptionDeleted:
		setMeta(rec, e.EventMeta)
	case model.PaymentSucceeded:
		setMeta(rec, e.EventMeta)
	case model.PaymentFailed:
		setMeta(rec, e.EventMeta)
	}
}

func setMeta(rec *model.SubscriptionRecord, m model.EventMeta) {
	if m.CustomerID != "" {
		rec.CustomerID = m.CustomerID
	}
	if m.SubscriptionID != "" {
		rec.SubscriptionID = m.SubscriptionID
	}
	if rec.Identity == "" && m.Email != "" {
		rec.Identity = model.NormalizeIdentity(m.Email)
	}
}

// syncProfile mirrors the canonical record onto the profile's read fields.
func syncProfile(prof *model.MembershipProfile, rec model.SubscriptionRecord, now time.Time) {
	prof.AccessFlag = rec.Subscribed
	if rec.CustomerID != "" {
		prof.CustomerID = rec.CustomerID
	}
	if rec.SubscriptionID != "" {
		prof.SubscriptionID = rec.SubscriptionID
	}
	prof.UpdatedAt = now
}
