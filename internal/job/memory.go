package job

import (
	"context"
	"sort"
	"sync"
)

// DefaultHistory is how many finished jobs a MemoryRepository keeps.
const DefaultHistory = 1000

var _ Repository = (*MemoryRepository)(nil)

// MemoryRepository keeps jobs in a map. Live jobs are never evicted; once
// more than history jobs have finished, the ones that finished first are
// dropped.
type MemoryRepository struct {
	mu      sync.RWMutex
	jobs    map[string]*Job
	history int
}

// MemoryOption configures a MemoryRepository.
type MemoryOption func(*MemoryRepository)

// WithHistory bounds the number of finished jobs kept. n <= 0 keeps all.
func WithHistory(n int) MemoryOption {
	return func(r *MemoryRepository) {
		r.history = n
	}
}

// NewMemoryRepository creates an empty repository keeping DefaultHistory
// finished jobs.
func NewMemoryRepository(opts ...MemoryOption) *MemoryRepository {
	r := &MemoryRepository{
		jobs:    make(map[string]*Job),
		history: DefaultHistory,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Save stores a clone of job.
func (r *MemoryRepository) Save(_ context.Context, job *Job) error {
	stored := job.Clone()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[stored.ID] = stored
	if stored.IsTerminal() {
		r.evictLocked()
	}
	return nil
}

func (r *MemoryRepository) evictLocked() {
	if r.history <= 0 {
		return
	}

	var finished []*Job
	for _, j := range r.jobs {
		if j.IsTerminal() {
			finished = append(finished, j)
		}
	}
	excess := len(finished) - r.history
	if excess <= 0 {
		return
	}

	sort.Slice(finished, func(a, b int) bool {
		if !finished[a].CompletedAt.Equal(finished[b].CompletedAt) {
			return finished[a].CompletedAt.Before(finished[b].CompletedAt)
		}
		return finished[a].ID < finished[b].ID
	})
	for _, j := range finished[:excess] {
		delete(r.jobs, j.ID)
	}
}

// FindByID returns a clone of the stored job.
func (r *MemoryRepository) FindByID(_ context.Context, id string) (*Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	stored, ok := r.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	return stored.Clone(), nil
}

// List returns clones of the matching jobs ordered by creation time, then ID.
func (r *MemoryRepository) List(_ context.Context, filter Filter) ([]*Job, error) {
	r.mu.RLock()
	result := make([]*Job, 0, len(r.jobs))
	for _, stored := range r.jobs {
		if filter.Match(stored) {
			result = append(result, stored.Clone())
		}
	}
	r.mu.RUnlock()

	sort.Slice(result, func(a, b int) bool {
		if !result[a].CreatedAt.Equal(result[b].CreatedAt) {
			return result[a].CreatedAt.Before(result[b].CreatedAt)
		}
		return result[a].ID < result[b].ID
	})
	return result, nil
}
