package referral

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrDraftNotFound is returned for an unknown draft id.
var ErrDraftNotFound = errors.New("draft not found")

// DefaultDraftTTL is how long an untouched draft is kept.
const DefaultDraftTTL = 24 * time.Hour

// DraftStore keeps server-side forms between requests.
type DraftStore struct {
	mu    sync.RWMutex
	forms map[uuid.UUID]*Form
}

func NewDraftStore() *DraftStore {
	return &DraftStore{forms: make(map[uuid.UUID]*Form)}
}

// Create registers a new form holding in.
func (s *DraftStore) Create(in FormInput, now time.Time) *Form {
	f := NewForm(in, now)
	s.mu.Lock()
	s.forms[f.ID] = f
	s.mu.Unlock()
	return f
}

func (s *DraftStore) Get(id uuid.UUID) (*Form, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.forms[id]
	if !ok {
		return nil, ErrDraftNotFound
	}
	return f, nil
}

// Delete discards a draft. A draft with a running submission is kept.
func (s *DraftStore) Delete(id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.forms[id]
	if !ok {
		return ErrDraftNotFound
	}
	if f.Loading() {
		return ErrSubmissionInFlight
	}
	delete(s.forms, id)
	return nil
}

// Len returns the number of drafts held.
func (s *DraftStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.forms)
}

// Sweep removes idle drafts not touched within ttl and returns their ids.
func (s *DraftStore) Sweep(ttl time.Duration, now time.Time) []uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed []uuid.UUID
	for id, f := range s.forms {
		if f.Loading() || now.Sub(f.LastActive()) < ttl {
			continue
		}
		delete(s.forms, id)
		removed = append(removed, id)
	}
	sort.Slice(removed, func(i, j int) bool { return removed[i].String() < removed[j].String() })
	return removed
}
