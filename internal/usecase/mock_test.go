//go:build !integration

// File: internal/usecase/mock_test.go
package usecase_test

import (
	"context"
	"strings"
	"sync"
	"time"

	"membership-billing/internal/domain"
	"membership-billing/internal/domain/model"
	"membership-billing/internal/domain/ports/adapter"
	"membership-billing/internal/domain/ports/repository"
)

// MockSubscriptionRepo is an in-memory SubscriptionRepository keyed by
// identity.
type MockSubscriptionRepo struct {
	mu      sync.RWMutex
	store   map[string]*model.SubscriptionRecord
	saveErr error
	saves   int

	// findHook, when set, runs once after the next FindByIdentity read
	// returns its copy, letting tests interleave a concurrent write between
	// a caller's read and its subsequent save.
	findHook func()
}

func NewMockSubscriptionRepo() *MockSubscriptionRepo {
	return &MockSubscriptionRepo{store: make(map[string]*model.SubscriptionRecord)}
}

func (m *MockSubscriptionRepo) Save(ctx context.Context, tx repository.Tx, rec *model.SubscriptionRecord) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rec
	m.store[rec.Identity] = &cp
	m.saves++
	return nil
}

func (m *MockSubscriptionRepo) SaveAdvisory(ctx context.Context, tx repository.Tx, rec *model.SubscriptionRecord) (bool, error) {
	if m.saveErr != nil {
		return false, m.saveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.store[rec.Identity]; ok && !existing.Advisory {
		return false, nil
	}
	cp := *rec
	cp.Advisory = true
	m.store[rec.Identity] = &cp
	m.saves++
	return true, nil
}

func (m *MockSubscriptionRepo) FindByIdentity(ctx context.Context, tx repository.Tx, identity string) (*model.SubscriptionRecord, error) {
	m.mu.RLock()
	r, ok := m.store[identity]
	var cp model.SubscriptionRecord
	if ok {
		cp = *r
	}
	m.mu.RUnlock()

	if h := m.findHook; h != nil {
		m.findHook = nil
		h()
	}
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &cp, nil
}

func (m *MockSubscriptionRepo) FindByCustomerID(ctx context.Context, tx repository.Tx, customerID string) (*model.SubscriptionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.store {
		if r.CustomerID == customerID {
			cp := *r
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MockSubscriptionRepo) FindStaleAdvisory(ctx context.Context, tx repository.Tx, cutoff time.Time, limit int) ([]*model.SubscriptionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.SubscriptionRecord
	for _, r := range m.store {
		if r.Advisory && r.UpdatedAt.Before(cutoff) && len(out) < limit {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MockSubscriptionRepo) CountByState(ctx context.Context, tx repository.Tx) (map[model.SubscriptionState]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[model.SubscriptionState]int)
	for _, r := range m.store {
		out[r.State]++
	}
	return out, nil
}

// MockMembershipRepo is an in-memory MembershipRepository keyed by user id.
type MockMembershipRepo struct {
	mu      sync.RWMutex
	store   map[string]*model.MembershipProfile
	saveErr error

	// history keeps a copy of every saved profile in order, so tests can
	// assert how a field evolved across writes.
	history []model.MembershipProfile

	// lookupHook, when set, runs before every FindByCustomerID read. Tests
	// use it as a barrier to hold concurrent resolutions at the same point.
	lookupHook func()
}

func NewMockMembershipRepo() *MockMembershipRepo {
	return &MockMembershipRepo{store: make(map[string]*model.MembershipProfile)}
}

func (m *MockMembershipRepo) Save(ctx context.Context, tx repository.Tx, p *model.MembershipProfile) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.store[p.UserID] = &cp
	m.history = append(m.history, cp)
	return nil
}

func (m *MockMembershipRepo) FindByUserID(ctx context.Context, tx repository.Tx, userID string) (*model.MembershipProfile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.store[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *MockMembershipRepo) FindByEmail(ctx context.Context, tx repository.Tx, email string) (*model.MembershipProfile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.store {
		if strings.EqualFold(p.Email, email) {
			cp := *p
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MockMembershipRepo) FindByCustomerID(ctx context.Context, tx repository.Tx, customerID string) (*model.MembershipProfile, error) {
	if h := m.lookupHook; h != nil {
		h()
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.store {
		if p.CustomerID == customerID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

// MockDedupStore implements the claim/confirm/release protocol in memory.
type MockDedupStore struct {
	mu        sync.Mutex
	pending   map[string]bool
	confirmed map[string]bool
	claimErr  error
	claims    int
	confirms  int
	releases  int
}

func NewMockDedupStore() *MockDedupStore {
	return &MockDedupStore{pending: make(map[string]bool), confirmed: make(map[string]bool)}
}

func (m *MockDedupStore) Claim(ctx context.Context, eventID string, pending time.Duration) (bool, error) {
	if m.claimErr != nil {
		return false, m.claimErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.claims++
	if m.pending[eventID] || m.confirmed[eventID] {
		return false, nil
	}
	m.pending[eventID] = true
	return true, nil
}

func (m *MockDedupStore) Confirm(ctx context.Context, eventID string, window time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.confirms++
	delete(m.pending, eventID)
	m.confirmed[eventID] = true
	return nil
}

func (m *MockDedupStore) Release(ctx context.Context, eventID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.releases++
	delete(m.pending, eventID)
	return nil
}

// MockBillingGateway fakes the payment provider with canned responses.
type MockBillingGateway struct {
	mu          sync.Mutex
	customers   map[string]string // email -> customer id
	session     adapter.CheckoutSession
	snapshot    *adapter.SubscriptionSnapshot
	ensureErr   error
	checkoutErr error
	fetchErr    error
	ensureCalls int
}

func NewMockBillingGateway() *MockBillingGateway {
	return &MockBillingGateway{
		customers: make(map[string]string),
		session:   adapter.CheckoutSession{ID: "cs_test_1", URL: "https://pay.example.com/cs_test_1"},
	}
}

func (m *MockBillingGateway) Name() string { return "mock" }

func (m *MockBillingGateway) EnsureCustomer(ctx context.Context, email string) (string, error) {
	if m.ensureErr != nil {
		return "", m.ensureErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensureCalls++
	if id, ok := m.customers[email]; ok {
		return id, nil
	}
	id := "cus_" + email
	m.customers[email] = id
	return id, nil
}

func (m *MockBillingGateway) CreateTrialCheckout(ctx context.Context, customerID, email string) (adapter.CheckoutSession, error) {
	if m.checkoutErr != nil {
		return adapter.CheckoutSession{}, m.checkoutErr
	}
	return m.session, nil
}

func (m *MockBillingGateway) FetchSubscription(ctx context.Context, customerID string) (*adapter.SubscriptionSnapshot, error) {
	if m.fetchErr != nil {
		return nil, m.fetchErr
	}
	return m.snapshot, nil
}
