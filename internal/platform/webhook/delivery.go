// Package webhook delivers referral submissions to the two outbound intake
// endpoints: a multipart document upload and a JSON record webhook. Every
// attempt is signed when a secret is configured and recorded in a delivery log
// that the admin API exposes.
package webhook

import (
	"context"
	"sync"
	"time"
)

// Delivery kinds.
const (
	KindDocument = "document"
	KindRecord   = "record"
)

// Delivery statuses.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// DeliveryAttempt records a single outbound call. Payloads carry patient data
// and are never stored; only their size is kept.
type DeliveryAttempt struct {
	ID           string        `json:"id"`
	Kind         string        `json:"kind"`
	URL          string        `json:"url"`
	PayloadBytes int           `json:"payload_bytes"`
	Signature    string        `json:"signature,omitempty"`
	StatusCode   int           `json:"status_code"`
	Duration     time.Duration `json:"duration_ns"`
	Status       string        `json:"status"`
	Error        string        `json:"error,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
}

// DeliveryStore persists delivery attempts.
type DeliveryStore interface {
	RecordDelivery(ctx context.Context, attempt *DeliveryAttempt) error
	ListDeliveries(ctx context.Context, kind string, limit, offset int) ([]*DeliveryAttempt, int, error)
}

// InMemoryDeliveryStore is a thread-safe, bounded in-memory DeliveryStore.
// Once full, the oldest attempts are dropped.
type InMemoryDeliveryStore struct {
	mu       sync.RWMutex
	capacity int
	attempts []*DeliveryAttempt
}

// DefaultDeliveryCapacity is the number of attempts kept by default.
const DefaultDeliveryCapacity = 1000

// NewInMemoryDeliveryStore creates an empty store holding at most capacity
// attempts.
func NewInMemoryDeliveryStore(capacity int) *InMemoryDeliveryStore {
	if capacity <= 0 {
		capacity = DefaultDeliveryCapacity
	}
	return &InMemoryDeliveryStore{capacity: capacity}
}

func (s *InMemoryDeliveryStore) RecordDelivery(_ context.Context, attempt *DeliveryAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts = append(s.attempts, attempt)
	if over := len(s.attempts) - s.capacity; over > 0 {
		s.attempts = append([]*DeliveryAttempt(nil), s.attempts[over:]...)
	}
	return nil
}

// ListDeliveries returns attempts newest first, optionally filtered by kind.
func (s *InMemoryDeliveryStore) ListDeliveries(_ context.Context, kind string, limit, offset int) ([]*DeliveryAttempt, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var filtered []*DeliveryAttempt
	for i := len(s.attempts) - 1; i >= 0; i-- {
		a := s.attempts[i]
		if kind == "" || a.Kind == kind {
			filtered = append(filtered, a)
		}
	}
	total := len(filtered)
	if offset >= total {
		return []*DeliveryAttempt{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return filtered[offset:end], total, nil
}
