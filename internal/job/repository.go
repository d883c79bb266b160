package job

import (
	"context"
	"errors"
)

// ErrJobNotFound is returned when a job cannot be found by ID.
var ErrJobNotFound = errors.New("job not found")

// Filter narrows List. The zero Filter matches every job.
type Filter struct {
	// Status keeps only jobs in this state when set.
	Status Status
}

// Match reports whether j passes the filter.
func (f Filter) Match(j *Job) bool {
	return f.Status == "" || j.GetStatus() == f.Status
}

// Repository stores render jobs.
type Repository interface {
	// Save inserts or replaces the job with the same ID.
	Save(ctx context.Context, job *Job) error

	// FindByID returns ErrJobNotFound for unknown IDs.
	FindByID(ctx context.Context, id string) (*Job, error)

	// List returns the matching jobs, oldest first.
	List(ctx context.Context, filter Filter) ([]*Job, error)
}
