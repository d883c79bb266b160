package job

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/maauso/clipkit/internal/media"
)

func TestNew(t *testing.T) {
	job := New()

	if !strings.HasPrefix(job.ID, "render-") {
		t.Errorf("expected render- ID, got %q", job.ID)
	}
	if job.Status != StatusQueued {
		t.Errorf("expected status %s, got %s", StatusQueued, job.Status)
	}
	if job.CreatedAt.IsZero() {
		t.Error("expected CreatedAt to be set")
	}
	if job.UpdatedAt.IsZero() {
		t.Error("expected UpdatedAt to be set")
	}
}

func TestNewWithID(t *testing.T) {
	id := "test-job-123"
	job := NewWithID(id)

	if job.ID != id {
		t.Errorf("expected ID %s, got %s", id, job.ID)
	}
	if job.Status != StatusQueued {
		t.Errorf("expected status %s, got %s", StatusQueued, job.Status)
	}
}

func TestJob_ValidTransitions(t *testing.T) {
	tests := []struct {
		name    string
		from    Status
		to      Status
		wantErr bool
	}{
		// Valid transitions from QUEUED
		{"QUEUED to RUNNING", StatusQueued, StatusRunning, false},
		{"QUEUED to CANCELLED", StatusQueued, StatusCancelled, false},
		{"QUEUED to FAILED", StatusQueued, StatusFailed, false},
		// Valid transitions from RUNNING
		{"RUNNING to COMPLETED", StatusRunning, StatusCompleted, false},
		{"RUNNING to FAILED", StatusRunning, StatusFailed, false},
		{"RUNNING to CANCELLED", StatusRunning, StatusCancelled, false},
		// Invalid transitions
		{"QUEUED to COMPLETED", StatusQueued, StatusCompleted, true},
		{"RUNNING to QUEUED", StatusRunning, StatusQueued, true},
		{"COMPLETED to QUEUED", StatusCompleted, StatusQueued, true},
		{"COMPLETED to RUNNING", StatusCompleted, StatusRunning, true},
		{"FAILED to RUNNING", StatusFailed, StatusRunning, true},
		{"FAILED to COMPLETED", StatusFailed, StatusCompleted, true},
		{"CANCELLED to RUNNING", StatusCancelled, StatusRunning, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := NewWithID("test")
			job.Status = tt.from

			err := job.TransitionTo(tt.to)

			if tt.wantErr && err == nil {
				t.Errorf("expected error for transition %s -> %s", tt.from, tt.to)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error for transition %s -> %s: %v", tt.from, tt.to, err)
			}
		})
	}
}

func TestJob_Start(t *testing.T) {
	job := New()
	beforeStart := time.Now()

	if err := job.Start(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if job.Status != StatusRunning {
		t.Errorf("expected status %s, got %s", StatusRunning, job.Status)
	}
	if job.StartedAt.Before(beforeStart) {
		t.Error("expected StartedAt to be set after test start")
	}
}

func TestJob_Complete(t *testing.T) {
	job := New()
	_ = job.Start()

	if err := job.Complete(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if job.Status != StatusCompleted {
		t.Errorf("expected status %s, got %s", StatusCompleted, job.Status)
	}
	if job.CompletedAt.IsZero() {
		t.Error("expected CompletedAt to be set")
	}
}

func TestJob_Fail(t *testing.T) {
	job := New()
	_ = job.Start()

	errMsg := "backend error: exit status 1: Invalid argument"
	if err := job.Fail(errMsg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if job.Status != StatusFailed {
		t.Errorf("expected status %s, got %s", StatusFailed, job.Status)
	}
	if job.Error != errMsg {
		t.Errorf("expected error %q, got %q", errMsg, job.Error)
	}
	if job.CompletedAt.IsZero() {
		t.Error("expected CompletedAt to be set on failure")
	}
}

func TestJob_FailAfterCancelKeepsNoMessage(t *testing.T) {
	job := New()
	_ = job.Cancel()

	if err := job.Fail("late"); err != ErrInvalidTransition {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if job.Error != "" {
		t.Errorf("expected no error message, got %q", job.Error)
	}
}

func TestJob_Cancel(t *testing.T) {
	job := New()
	_ = job.Start()

	if err := job.Cancel(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if job.Status != StatusCancelled {
		t.Errorf("expected status %s, got %s", StatusCancelled, job.Status)
	}
}

func TestJob_CannotTransitionFromTerminalState(t *testing.T) {
	terminalStates := []Status{StatusCompleted, StatusFailed, StatusCancelled}
	allStates := []Status{StatusQueued, StatusRunning, StatusCompleted, StatusFailed, StatusCancelled}

	for _, terminal := range terminalStates {
		for _, target := range allStates {
			t.Run(string(terminal)+"_to_"+string(target), func(t *testing.T) {
				job := NewWithID("test")
				job.Status = terminal

				err := job.TransitionTo(target)
				if err != ErrInvalidTransition {
					t.Errorf("expected ErrInvalidTransition, got %v", err)
				}
			})
		}
	}
}

func TestJob_IsTerminal(t *testing.T) {
	tests := []struct {
		status   Status
		terminal bool
	}{
		{StatusQueued, false},
		{StatusRunning, false},
		{StatusCompleted, true},
		{StatusFailed, true},
		{StatusCancelled, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			job := NewWithID("test")
			job.Status = tt.status

			if got := job.IsTerminal(); got != tt.terminal {
				t.Errorf("IsTerminal() = %v, want %v", got, tt.terminal)
			}
		})
	}
}

func TestJob_SetMetadataAndOutput(t *testing.T) {
	job := New()

	job.SetMetadata(media.Metadata{Width: 1280, Height: 720, FPS: 25})
	job.SetOutputURL("https://bucket.s3.us-east-1.amazonaws.com/clip.mp4")

	if job.Metadata == nil || job.Metadata.Width != 1280 {
		t.Errorf("unexpected metadata: %+v", job.Metadata)
	}
	if job.OutputURL != "https://bucket.s3.us-east-1.amazonaws.com/clip.mp4" {
		t.Errorf("unexpected OutputURL %s", job.OutputURL)
	}
}

func TestJob_Clone(t *testing.T) {
	job := New()
	job.Status = StatusRunning
	job.Source = "/in.mp4"
	job.Destination = "/out.gif"
	job.ActionCount = 2
	job.SetMetadata(media.Metadata{Width: 640, Height: 360, FPS: 30})

	clone := job.Clone()

	if clone.ID != job.ID {
		t.Errorf("expected ID %s, got %s", job.ID, clone.ID)
	}
	if clone.Status != job.Status {
		t.Errorf("expected Status %s, got %s", job.Status, clone.Status)
	}
	if clone.Source != job.Source || clone.Destination != job.Destination || clone.ActionCount != 2 {
		t.Errorf("clone fields differ: %+v", clone)
	}

	// Verify clone is independent
	clone.Status = StatusCompleted
	if job.Status == StatusCompleted {
		t.Error("modifying clone should not affect original")
	}

	clone.Metadata.Width = 1
	if job.Metadata.Width != 640 {
		t.Error("modifying clone metadata should not affect original")
	}
}

func TestJob_GetStatus_ThreadSafe(t *testing.T) {
	job := New()

	done := make(chan bool)
	go func() {
		for i := 0; i < 100; i++ {
			_ = job.GetStatus()
		}
		done <- true
	}()

	go func() {
		for i := 0; i < 100; i++ {
			_ = job.Start()
		}
		done <- true
	}()

	<-done
	<-done
	// If no race conditions, test passes
}

func TestParseStatus(t *testing.T) {
	for in, want := range map[string]Status{
		"QUEUED":      StatusQueued,
		"running":     StatusRunning,
		" Completed ": StatusCompleted,
		"failed":      StatusFailed,
		"CANCELLED":   StatusCancelled,
	} {
		got, err := ParseStatus(in)
		if err != nil {
			t.Fatalf("ParseStatus(%q): %v", in, err)
		}
		if got != want {
			t.Errorf("ParseStatus(%q) = %s, want %s", in, got, want)
		}
	}

	for _, in := range []string{"IN_PROGRESS", ""} {
		if _, err := ParseStatus(in); !errors.Is(err, ErrUnknownStatus) {
			t.Errorf("ParseStatus(%q) error = %v, want ErrUnknownStatus", in, err)
		}
	}
}
