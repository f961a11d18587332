package referral

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
)

// ErrReceiptNotFound is returned for an unknown receipt id.
var ErrReceiptNotFound = errors.New("receipt not found")

// ReceiptRepository stores one Receipt per submission attempt.
type ReceiptRepository interface {
	Create(ctx context.Context, r *Receipt) error
	GetByID(ctx context.Context, id uuid.UUID) (*Receipt, error)
	List(ctx context.Context, status string, limit, offset int) ([]*Receipt, int, error)
}

// DefaultReceiptCapacity bounds the in-memory repository.
const DefaultReceiptCapacity = 1000

type inMemoryReceiptRepo struct {
	mu       sync.RWMutex
	items    []*Receipt
	capacity int
}

// NewInMemoryReceiptRepo keeps the newest capacity receipts in memory. It is
// used when no database is configured.
func NewInMemoryReceiptRepo(capacity int) ReceiptRepository {
	if capacity <= 0 {
		capacity = DefaultReceiptCapacity
	}
	return &inMemoryReceiptRepo{capacity: capacity}
}

func (r *inMemoryReceiptRepo) Create(_ context.Context, rec *Receipt) error {
	rec.ID = uuid.New()
	cp := *rec
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, &cp)
	if over := len(r.items) - r.capacity; over > 0 {
		r.items = r.items[over:]
	}
	return nil
}

func (r *inMemoryReceiptRepo) GetByID(_ context.Context, id uuid.UUID) (*Receipt, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, it := range r.items {
		if it.ID == id {
			cp := *it
			return &cp, nil
		}
	}
	return nil, ErrReceiptNotFound
}

func (r *inMemoryReceiptRepo) List(_ context.Context, status string, limit, offset int) ([]*Receipt, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []*Receipt
	for i := len(r.items) - 1; i >= 0; i-- {
		if status != "" && r.items[i].Status != status {
			continue
		}
		matched = append(matched, r.items[i])
	}

	total := len(matched)
	if offset >= total {
		return []*Receipt{}, total, nil
	}
	end := min(offset+limit, total)
	out := make([]*Receipt, 0, end-offset)
	for _, it := range matched[offset:end] {
		cp := *it
		out = append(out, &cp)
	}
	return out, total, nil
}
