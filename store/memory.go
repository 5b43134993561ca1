package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"orderdesk/models"
)

// MemoryStore keeps orders in a map guarded by a RWMutex.
type MemoryStore struct {
	mu     sync.RWMutex
	orders map[string]*models.Order
	now    func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		orders: make(map[string]*models.Order),
		now:    time.Now,
	}
}

func (s *MemoryStore) Create(_ context.Context, order *models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.orders[order.ID]; exists {
		return ErrStale
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = s.now()
	}
	order.UpdatedAt = order.CreatedAt
	s.orders[order.ID] = order.Clone()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	order, exists := s.orders[id]
	if !exists {
		return nil, notFound(id)
	}
	return order.Clone(), nil
}

func (s *MemoryStore) List(_ context.Context, filter ListFilter) ([]*models.Order, int, error) {
	s.mu.RLock()
	matched := make([]*models.Order, 0, len(s.orders))
	for _, o := range s.orders {
		if filter.Status != "" && o.Status != filter.Status {
			continue
		}
		if filter.UserID != "" && o.UserID != filter.UserID {
			continue
		}
		matched = append(matched, o.Clone())
	}
	s.mu.RUnlock()

	// newest first, id as tie breaker so paging is stable
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID > matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	if filter.Offset >= total {
		return []*models.Order{}, total, nil
	}
	matched = matched[filter.Offset:]
	if filter.Limit > 0 && filter.Limit < len(matched) {
		matched = matched[:filter.Limit]
	}
	return matched, total, nil
}

func (s *MemoryStore) Range(_ context.Context, from, to time.Time) ([]*models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	orders := make([]*models.Order, 0, len(s.orders))
	for _, o := range s.orders {
		if inRange(o.CreatedAt, from, to) {
			orders = append(orders, o.Clone())
		}
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].CreatedAt.Before(orders[j].CreatedAt) })
	return orders, nil
}

func (s *MemoryStore) CompareAndSetStatus(_ context.Context, id string, from, to models.Status, guard PaymentGuard) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, exists := s.orders[id]
	if !exists {
		return nil, notFound(id)
	}
	if order.Status != from || !guard.Holds(order.Payment) {
		return nil, ErrStale
	}
	order.Status = to
	order.UpdatedAt = s.now()
	return order.Clone(), nil
}

func (s *MemoryStore) MarkPaid(_ context.Context, id string) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, exists := s.orders[id]
	if !exists {
		return nil, notFound(id)
	}
	if order.Status.Terminal() {
		return nil, ErrStale
	}
	if !order.Payment {
		order.Payment = true
		order.UpdatedAt = s.now()
	}
	return order.Clone(), nil
}

func (s *MemoryStore) CountCustomers(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make(map[string]struct{})
	for _, o := range s.orders {
		if o.UserID != "" {
			users[o.UserID] = struct{}{}
		}
	}
	return len(users), nil
}
