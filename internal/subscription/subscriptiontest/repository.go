// Package subscriptiontest provides an in-memory subscription repository for tests.
package subscriptiontest

import (
	"context"
	"sync"
	"time"

	"renewal-service/internal/apperr"
	"renewal-service/internal/models"
)

// Repository holds subscriptions in process memory, with the same
// compare-and-set semantics as the Postgres one.
type Repository struct {
	mu   sync.Mutex
	subs map[string]models.Subscription
	// Err, when set, is returned by every call.
	Err error
}

func NewRepository() *Repository {
	return &Repository{subs: map[string]models.Subscription{}}
}

// Get returns a copy of the stored row.
func (m *Repository) Get(id string) models.Subscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.subs[id]
}

func (m *Repository) CreateSubscription(_ context.Context, s models.Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.subs[s.ID] = s
	return nil
}

func (m *Repository) GetSubscription(_ context.Context, id string) (models.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return models.Subscription{}, m.Err
	}
	s, ok := m.subs[id]
	if !ok {
		return models.Subscription{}, apperr.ErrNotFound
	}
	return s, nil
}

func (m *Repository) FindSubscriptionBySession(_ context.Context, sessionID string) (*models.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	for _, s := range m.subs {
		if s.SessionID != nil && *s.SessionID == sessionID {
			return &s, nil
		}
	}
	return nil, nil
}

func (m *Repository) FindActiveSubscription(_ context.Context, email string, now time.Time) (*models.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	var best *models.Subscription
	for _, s := range m.subs {
		if s.Email != email || s.Status != models.StatusPaid || (s.ExpiresAt != nil && !s.ExpiresAt.After(now)) {
			continue
		}
		if best == nil || s.PaidAt.After(*best.PaidAt) {
			c := s
			best = &c
		}
	}
	return best, nil
}

func (m *Repository) FindPendingSubscription(_ context.Context, email string, plan models.PlanType) (*models.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	var best *models.Subscription
	for _, s := range m.subs {
		if s.Email != email || s.PlanType != plan || s.Status != models.StatusPending {
			continue
		}
		if best == nil || s.CreatedAt.After(best.CreatedAt) || (s.CreatedAt.Equal(best.CreatedAt) && s.ID > best.ID) {
			c := s
			best = &c
		}
	}
	return best, nil
}

func (m *Repository) TransitionSubscription(_ context.Context, c models.StatusChange) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return false, m.Err
	}
	s, ok := m.subs[c.ID]
	if !ok || s.Status != c.From {
		return false, nil
	}
	s.Status = c.To
	if c.Refs.SessionID != "" {
		ref := c.Refs.SessionID
		s.SessionID = &ref
	}
	if c.Refs.PaymentIntentID != "" {
		ref := c.Refs.PaymentIntentID
		s.PaymentIntentID = &ref
	}
	if c.To == models.StatusPaid {
		if s.PaidAt == nil {
			at := c.At
			s.PaidAt = &at
		}
		s.ExpiresAt = c.ExpiresAt
	}
	s.UpdatedAt = c.At
	m.subs[c.ID] = s
	return true, nil
}
