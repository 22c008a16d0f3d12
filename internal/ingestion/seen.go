package ingestion

import (
	"container/list"
	"sync"

	"github.com/STRATINT/alertwatch/internal/models"
)

// SeenSet records post ids that have already been processed. It is rebuilt
// from the alert log at startup and only grows while the process runs.
//
// With a positive capacity the oldest ids are evicted once the set is full.
// The alert log keeps the complete history; the set only has to cover the
// window of posts a source can still return.
type SeenSet struct {
	mu       sync.Mutex
	ids      map[models.PostID]*list.Element
	order    *list.List
	capacity int
	evicted  int64
}

// NewSeenSet creates a set holding at most capacity ids. Zero or a negative
// capacity means unbounded.
func NewSeenSet(capacity int) *SeenSet {
	if capacity < 0 {
		capacity = 0
	}
	return &SeenSet{
		ids:      make(map[models.PostID]*list.Element),
		order:    list.New(),
		capacity: capacity,
	}
}

// Has reports whether id has been seen.
func (s *SeenSet) Has(id models.PostID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.ids[id]
	return ok
}

// Add records id and reports whether it was new.
func (s *SeenSet) Add(id models.PostID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.ids[id]; ok {
		return false
	}

	s.ids[id] = s.order.PushBack(id)

	if s.capacity > 0 {
		for s.order.Len() > s.capacity {
			oldest := s.order.Front()
			s.order.Remove(oldest)
			delete(s.ids, oldest.Value.(models.PostID))
			s.evicted++
		}
	}

	return true
}

// Len returns the number of ids currently held.
func (s *SeenSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.order.Len()
}

// Evicted returns how many ids were dropped to respect the capacity.
func (s *SeenSet) Evicted() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.evicted
}

// IDs returns the held ids, oldest first.
func (s *SeenSet) IDs() []models.PostID {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.PostID, 0, s.order.Len())
	for e := s.order.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.(models.PostID))
	}
	return out
}
