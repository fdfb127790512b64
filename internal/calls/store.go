package calls

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

var (
	ErrNotFound  = errors.New("calls: not found")
	ErrDuplicate = errors.New("calls: call already recorded")
)

// UpdateFunc mutates a record in place. Returning an error aborts the update.
type UpdateFunc func(r *Record) error

// Store persists call records. Update runs fn with the record locked so
// concurrent status callbacks for one call apply one at a time.
type Store interface {
	Create(ctx context.Context, r Record) error
	Get(ctx context.Context, callID string) (Record, error)
	Update(ctx context.Context, callID string, fn UpdateFunc) (Record, error)
	ListByUser(ctx context.Context, userID string, from, to time.Time) ([]Record, error)
}

// MemoryStore is an in-memory Store for tests and local runs.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]Record

	// Fail, when set, is returned by every call.
	Fail error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: map[string]Record{}}
}

func (s *MemoryStore) Create(_ context.Context, r Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Fail != nil {
		return s.Fail
	}
	if _, ok := s.records[r.CallID]; ok {
		return ErrDuplicate
	}
	s.records[r.CallID] = r
	return nil
}

func (s *MemoryStore) Get(_ context.Context, callID string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Fail != nil {
		return Record{}, s.Fail
	}
	r, ok := s.records[callID]
	if !ok {
		return Record{}, ErrNotFound
	}
	return r, nil
}

func (s *MemoryStore) Update(_ context.Context, callID string, fn UpdateFunc) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Fail != nil {
		return Record{}, s.Fail
	}
	r, ok := s.records[callID]
	if !ok {
		return Record{}, ErrNotFound
	}
	if err := fn(&r); err != nil {
		return Record{}, err
	}
	s.records[callID] = r
	return r, nil
}

func (s *MemoryStore) ListByUser(_ context.Context, userID string, from, to time.Time) ([]Record, error) {
	if userID == "" {
		return nil, errors.New("user_id required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Fail != nil {
		return nil, s.Fail
	}
	out := make([]Record, 0)
	for _, r := range s.records {
		if r.UserID != userID {
			continue
		}
		if !from.IsZero() && r.CreatedAt.Before(from) {
			continue
		}
		if !to.IsZero() && !r.CreatedAt.Before(to) {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CallID < out[j].CallID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}
