package request

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"accessdesk.org/internal/risk"
)

// InMemory implements Repository with in-process concurrency safety.
// Writes for all entities serialize on one mutex; reads proceed in
// parallel. Every entity crossing the boundary is deep-copied.
type InMemory struct {
	mu       sync.RWMutex
	requests map[string]*AccessRequest
}

var _ Repository = (*InMemory)(nil)

// NewInMemory creates an empty repository.
func NewInMemory() *InMemory {
	return &InMemory{requests: make(map[string]*AccessRequest)}
}

func (s *InMemory) Save(ctx context.Context, req AccessRequest) (AccessRequest, error) {
	if req.ID == "" {
		return AccessRequest{}, fmt.Errorf("%w: id is required", ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.requests[req.ID]; exists {
		return AccessRequest{}, fmt.Errorf("%w: id %s already exists", ErrConflict, req.ID)
	}
	req.Version = 1
	stored := req.Clone()
	s.requests[req.ID] = &stored
	return stored.Clone(), nil
}

func (s *InMemory) FindByID(ctx context.Context, id string) (AccessRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cur, ok := s.requests[id]
	if !ok {
		return AccessRequest{}, ErrNotFound
	}
	return cur.Clone(), nil
}

func (s *InMemory) FindByUser(ctx context.Context, userID string) ([]AccessRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []AccessRequest
	for _, cur := range s.requests {
		if cur.CreatedBy == userID {
			out = append(out, cur.Clone())
		}
	}
	sortByCreation(out)
	return out, nil
}

func (s *InMemory) FindByStatus(ctx context.Context, status Status) ([]AccessRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []AccessRequest
	for _, cur := range s.requests {
		if cur.Status == status {
			out = append(out, cur.Clone())
		}
	}
	sortByCreation(out)
	return out, nil
}

func (s *InMemory) FindAll(ctx context.Context) ([]AccessRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]AccessRequest, 0, len(s.requests))
	for _, cur := range s.requests {
		out = append(out, cur.Clone())
	}
	sortByCreation(out)
	return out, nil
}

// Update replaces the stored entity if the caller's version matches the
// current one. Stale versions fail with ErrConflict rather than silently
// overwriting a concurrent write.
func (s *InMemory) Update(ctx context.Context, req AccessRequest) (AccessRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.requests[req.ID]
	if !ok {
		return AccessRequest{}, ErrNotFound
	}
	if cur.Version != req.Version {
		return AccessRequest{}, fmt.Errorf("%w: stale version %d (current %d)", ErrConflict, req.Version, cur.Version)
	}
	req.Version++
	stored := req.Clone()
	// Advisory assessment survives lifecycle writes made from an older view.
	if stored.Assessment == nil && cur.Assessment != nil {
		a := *cur.Assessment
		stored.Assessment = &a
	}
	s.requests[req.ID] = &stored
	return stored.Clone(), nil
}

func (s *InMemory) SaveAssessment(ctx context.Context, id string, a risk.Assessment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.requests[id]
	if !ok {
		return ErrNotFound
	}
	copyA := a
	if a.Metrics != nil {
		copyA.Metrics = make(map[string]float64, len(a.Metrics))
		for k, v := range a.Metrics {
			copyA.Metrics[k] = v
		}
	}
	cur.Assessment = &copyA
	return nil
}

func sortByCreation(reqs []AccessRequest) {
	sort.Slice(reqs, func(i, j int) bool {
		if reqs[i].CreatedAt.Equal(reqs[j].CreatedAt) {
			return reqs[i].ID < reqs[j].ID
		}
		return reqs[i].CreatedAt.Before(reqs[j].CreatedAt)
	})
}
