// Package job provides the render Job aggregate, its repository port and the
// service that runs renders in the background.
package job

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/maauso/clipkit/internal/job/id"
	"github.com/maauso/clipkit/internal/media"
)

// Status represents the current state of a Job.
type Status string

const (
	// StatusQueued indicates the job is waiting for a render slot.
	StatusQueued Status = "QUEUED"
	// StatusRunning indicates the render is in progress.
	StatusRunning Status = "RUNNING"
	// StatusCompleted indicates the destination was written.
	StatusCompleted Status = "COMPLETED"
	// StatusFailed indicates the render stopped with an error.
	StatusFailed Status = "FAILED"
	// StatusCancelled indicates the job was cancelled by a client.
	StatusCancelled Status = "CANCELLED"
)

// ErrInvalidTransition is returned when an invalid state transition is attempted.
var ErrInvalidTransition = errors.New("invalid state transition")

// validTransitions defines which state transitions are allowed.
var validTransitions = map[Status][]Status{
	StatusQueued:    {StatusRunning, StatusFailed, StatusCancelled},
	StatusRunning:   {StatusCompleted, StatusFailed, StatusCancelled},
	StatusCompleted: {},
	StatusFailed:    {},
	StatusCancelled: {},
}

// ErrUnknownStatus is returned by ParseStatus.
var ErrUnknownStatus = errors.New("unknown status")

// ParseStatus maps a case-insensitive status name onto a Status.
func ParseStatus(s string) (Status, error) {
	status := Status(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := validTransitions[status]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownStatus, s)
	}
	return status, nil
}

func canTransition(from, to Status) bool {
	return slices.Contains(validTransitions[from], to)
}

// Job is a single render request and its outcome.
type Job struct {
	mu sync.RWMutex

	// ID is the unique identifier for this job.
	ID string
	// Status is the current job state.
	Status Status
	// Source is the file the actions are applied to.
	Source string
	// Destination is where the result is written.
	Destination string
	// ActionCount is the number of top-level actions requested.
	ActionCount int
	// S3Key is the object key the result is uploaded to, if any.
	S3Key string
	// Metadata is the probed source metadata, once known.
	Metadata *media.Metadata
	// OutputURL is the S3 URL after a successful upload.
	OutputURL string
	// Error contains the error message if the job failed.
	Error string
	// CreatedAt is when the job was created.
	CreatedAt time.Time
	// UpdatedAt is when the job was last updated.
	UpdatedAt time.Time
	// StartedAt is when rendering started.
	StartedAt time.Time
	// CompletedAt is when the job reached a terminal state.
	CompletedAt time.Time
}

// New creates a new Job with a generated ID and QUEUED status.
func New() *Job {
	return NewWithID(id.Generate())
}

// NewWithID creates a new QUEUED Job with the specified ID.
func NewWithID(jobID string) *Job {
	now := time.Now()
	return &Job{
		ID:        jobID,
		Status:    StatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// TransitionTo attempts to change the job status to the specified state.
// Returns ErrInvalidTransition if the transition is not allowed.
func (j *Job) TransitionTo(status Status) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.transitionLocked(status)
}

func (j *Job) transitionLocked(status Status) error {
	if !canTransition(j.Status, status) {
		return ErrInvalidTransition
	}

	j.Status = status
	j.UpdatedAt = time.Now()

	switch status {
	case StatusRunning:
		j.StartedAt = j.UpdatedAt
	case StatusCompleted, StatusFailed, StatusCancelled:
		j.CompletedAt = j.UpdatedAt
	}
	return nil
}

// Start transitions the job from QUEUED to RUNNING.
func (j *Job) Start() error {
	return j.TransitionTo(StatusRunning)
}

// Complete transitions the job to COMPLETED.
func (j *Job) Complete() error {
	return j.TransitionTo(StatusCompleted)
}

// Fail transitions the job to FAILED and records errMsg. The message is
// kept only when the transition succeeds.
func (j *Job) Fail(errMsg string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.transitionLocked(StatusFailed); err != nil {
		return err
	}
	j.Error = errMsg
	return nil
}

// Cancel transitions the job to CANCELLED.
func (j *Job) Cancel() error {
	return j.TransitionTo(StatusCancelled)
}

// GetStatus returns the current job status (thread-safe).
func (j *Job) GetStatus() Status {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status
}

// SetMetadata records the probed source metadata.
func (j *Job) SetMetadata(md media.Metadata) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Metadata = &md
	j.UpdatedAt = time.Now()
}

// SetOutputURL records where the result was published.
func (j *Job) SetOutputURL(url string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.OutputURL = url
	j.UpdatedAt = time.Now()
}

// IsTerminal returns true if the job is in a terminal state.
func (j *Job) IsTerminal() bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status == StatusCompleted ||
		j.Status == StatusFailed ||
		j.Status == StatusCancelled
}

// Clone creates a deep copy of the job for safe reads.
func (j *Job) Clone() *Job {
	j.mu.RLock()
	defer j.mu.RUnlock()

	var md *media.Metadata
	if j.Metadata != nil {
		m := *j.Metadata
		md = &m
	}

	return &Job{
		ID:          j.ID,
		Status:      j.Status,
		Source:      j.Source,
		Destination: j.Destination,
		ActionCount: j.ActionCount,
		S3Key:       j.S3Key,
		Metadata:    md,
		OutputURL:   j.OutputURL,
		Error:       j.Error,
		CreatedAt:   j.CreatedAt,
		UpdatedAt:   j.UpdatedAt,
		StartedAt:   j.StartedAt,
		CompletedAt: j.CompletedAt,
	}
}
