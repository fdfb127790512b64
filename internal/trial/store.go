package trial

import (
	"context"
	"sync"
	"time"
)

// Store persists trial allowance records.
type Store interface {
	FindByFingerprint(ctx context.Context, fingerprint string) (Record, error)
	// FindByIP returns the most recently active record seen from ip.
	FindByIP(ctx context.Context, ip string) (Record, error)
	// Provision inserts a zero-usage record, ignoring an existing one.
	Provision(ctx context.Context, fingerprint, ip string, now time.Time) error
	// RecordUsage applies u once per call id and returns the resulting record.
	// A record is created with CallsUsed=1 when none exists.
	RecordUsage(ctx context.Context, u Usage) (Record, error)
}

type MemoryStore struct {
	mu      sync.Mutex
	records map[string]*Record
	seen    map[string]struct{}
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: map[string]*Record{},
		seen:    map[string]struct{}{},
	}
}

func (s *MemoryStore) FindByFingerprint(_ context.Context, fingerprint string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[fingerprint]
	if !ok {
		return Record{}, ErrNotFound
	}
	return *r, nil
}

func (s *MemoryStore) FindByIP(_ context.Context, ip string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var best *Record
	for _, r := range s.records {
		if r.IPAddress != ip {
			continue
		}
		if best == nil || lastActive(r).After(lastActive(best)) {
			best = r
		}
	}
	if best == nil {
		return Record{}, ErrNotFound
	}
	return *best, nil
}

func lastActive(r *Record) time.Time {
	if r.LastCallAt != nil {
		return *r.LastCallAt
	}
	return r.CreatedAt
}

func (s *MemoryStore) Provision(_ context.Context, fingerprint, ip string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[fingerprint]; ok {
		return nil
	}
	s.records[fingerprint] = &Record{DeviceFingerprint: fingerprint, IPAddress: ip, CreatedAt: now}
	return nil
}

func (s *MemoryStore) RecordUsage(_ context.Context, u Usage) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[u.DeviceFingerprint]
	if !ok {
		r = &Record{DeviceFingerprint: u.DeviceFingerprint, IPAddress: u.IPAddress, CreatedAt: u.At}
		s.records[u.DeviceFingerprint] = r
	}
	if u.CallID != "" {
		if _, dup := s.seen[u.CallID]; dup {
			return *r, nil
		}
		s.seen[u.CallID] = struct{}{}
	}
	at := u.At
	r.CallsUsed++
	r.TotalDurationSeconds += max(u.DurationSeconds, 0)
	r.LastCallAt = &at
	if u.IPAddress != "" {
		r.IPAddress = u.IPAddress
	}
	return *r, nil
}
