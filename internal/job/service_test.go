package job

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/clipkit/internal/action"
	"github.com/maauso/clipkit/internal/errs"
	"github.com/maauso/clipkit/internal/media"
	"github.com/maauso/clipkit/internal/storage"
)

type stubProber struct{}

func (stubProber) Probe(context.Context, string) (media.Metadata, error) {
	return media.Metadata{Width: 320, Height: 240, FPS: 25}, nil
}

// stubRunner writes the destination, or blocks until released or cancelled
// when gate is set.
type stubRunner struct {
	gate    chan struct{}
	started chan string
	err     error
	running atomic.Int32
	peak    atomic.Int32
}

func (r *stubRunner) Execute(ctx context.Context, source string, _ []action.Action, destination string) error {
	n := r.running.Add(1)
	defer r.running.Add(-1)
	for {
		p := r.peak.Load()
		if n <= p || r.peak.CompareAndSwap(p, n) {
			break
		}
	}

	if r.started != nil {
		r.started <- destination
	}
	if r.gate != nil {
		select {
		case <-r.gate:
		case <-ctx.Done():
			return fmt.Errorf("ffmpeg cancelled: %w", ctx.Err())
		}
	}
	if r.err != nil {
		return r.err
	}
	return os.WriteFile(destination, []byte("rendered from "+filepath.Base(source)), 0600)
}

type stubPublisher struct {
	key, path string
}

func (p *stubPublisher) Upload(_ context.Context, key, path string) (string, error) {
	p.key, p.path = key, path
	return "https://bucket.s3.us-east-1.amazonaws.com/" + key, nil
}

func testRequest(t *testing.T) Request {
	t.Helper()
	dir := t.TempDir()
	src := filepath.Join(dir, "in.mp4")
	require.NoError(t, os.WriteFile(src, []byte("video"), 0600))
	return Request{
		Source:      src,
		Destination: filepath.Join(dir, "out.mp4"),
		Actions:     []action.Action{action.NewJoin(action.NewTrim(nil, nil))},
	}
}

func waitForStatus(t *testing.T, svc *Service, id string, want Status) *Job {
	t.Helper()
	var job *Job
	require.Eventually(t, func() bool {
		var err error
		job, err = svc.Get(context.Background(), id)
		return err == nil && job.Status == want
	}, 5*time.Second, 10*time.Millisecond, "job %s never reached %s", id, want)
	return job
}

func TestService_SubmitCompletes(t *testing.T) {
	svc := NewService(NewMemoryRepository(), stubProber{}, &stubRunner{})
	req := testRequest(t)

	job, err := svc.Submit(context.Background(), req)
	require.NoError(t, err)
	assert.Contains(t, []Status{StatusQueued, StatusRunning, StatusCompleted}, job.Status)
	assert.Equal(t, req.Source, job.Source)
	assert.Equal(t, 1, job.ActionCount)

	done := waitForStatus(t, svc, job.ID, StatusCompleted)
	require.NotNil(t, done.Metadata)
	assert.Equal(t, 320, done.Metadata.Width)
	assert.False(t, done.StartedAt.IsZero())
	assert.False(t, done.CompletedAt.IsZero())
	assert.FileExists(t, req.Destination)

	jobs, err := svc.List(context.Background(), Filter{})
	require.NoError(t, err)
	assert.Len(t, jobs, 1)
}

func TestService_SubmitInvalid(t *testing.T) {
	svc := NewService(NewMemoryRepository(), stubProber{}, &stubRunner{})
	valid := testRequest(t)

	tests := []struct {
		name   string
		mutate func(*Request)
	}{
		{"no source", func(r *Request) { r.Source = "" }},
		{"no destination", func(r *Request) { r.Destination = "" }},
		{"same paths", func(r *Request) { r.Destination = r.Source }},
		{"no actions", func(r *Request) { r.Actions = nil }},
		{"s3 without publisher", func(r *Request) { r.S3Key = "clip.mp4" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid
			tt.mutate(&req)
			_, err := svc.Submit(context.Background(), req)
			assert.ErrorIs(t, err, ErrInvalidRequest)
			assert.True(t, errs.IsValidation(err))
			if req.S3Key != "" {
				assert.ErrorIs(t, err, storage.ErrS3NotConfigured)
			}
		})
	}

	jobs, err := svc.List(context.Background(), Filter{})
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestService_RenderFailure(t *testing.T) {
	backend := &errs.BackendError{ExitCode: 1, Stderr: "Invalid argument", Err: errors.New("ffmpeg exited with status 1")}
	svc := NewService(NewMemoryRepository(), stubProber{}, &stubRunner{err: backend})

	job, err := svc.Submit(context.Background(), testRequest(t))
	require.NoError(t, err)

	failed := waitForStatus(t, svc, job.ID, StatusFailed)
	assert.Contains(t, failed.Error, "Invalid argument")
}

func TestService_DestinationExists(t *testing.T) {
	svc := NewService(NewMemoryRepository(), stubProber{}, &stubRunner{})
	req := testRequest(t)
	require.NoError(t, os.WriteFile(req.Destination, []byte("keep"), 0600))

	job, err := svc.Submit(context.Background(), req)
	require.NoError(t, err)

	failed := waitForStatus(t, svc, job.ID, StatusFailed)
	assert.Contains(t, failed.Error, "destination exists")
}

func TestService_PublishesToS3(t *testing.T) {
	pub := &stubPublisher{}
	svc := NewService(NewMemoryRepository(), stubProber{}, &stubRunner{}, WithPublisher(pub))
	req := testRequest(t)
	req.S3Key = "renders/out.mp4"

	job, err := svc.Submit(context.Background(), req)
	require.NoError(t, err)

	done := waitForStatus(t, svc, job.ID, StatusCompleted)
	assert.Equal(t, "https://bucket.s3.us-east-1.amazonaws.com/renders/out.mp4", done.OutputURL)
	assert.Equal(t, "renders/out.mp4", pub.key)
	assert.Equal(t, req.Destination, pub.path)
}

func TestService_CancelRunning(t *testing.T) {
	runner := &stubRunner{gate: make(chan struct{}), started: make(chan string, 1)}
	svc := NewService(NewMemoryRepository(), stubProber{}, runner)
	req := testRequest(t)

	job, err := svc.Submit(context.Background(), req)
	require.NoError(t, err)
	<-runner.started

	cancelled, err := svc.Cancel(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.Status)

	require.NoError(t, svc.Shutdown(context.Background()))
	final, err := svc.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, final.Status)
	assert.NoFileExists(t, req.Destination)

	_, err = svc.Cancel(context.Background(), job.ID)
	assert.ErrorIs(t, err, ErrJobFinished)
}

func TestService_CancelNotFound(t *testing.T) {
	svc := NewService(NewMemoryRepository(), stubProber{}, &stubRunner{})
	_, err := svc.Cancel(context.Background(), "render-missing")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestService_MaxConcurrent(t *testing.T) {
	runner := &stubRunner{gate: make(chan struct{}), started: make(chan string, 4)}
	svc := NewService(NewMemoryRepository(), stubProber{}, runner, WithMaxConcurrent(1))

	first, err := svc.Submit(context.Background(), testRequest(t))
	require.NoError(t, err)
	second, err := svc.Submit(context.Background(), testRequest(t))
	require.NoError(t, err)

	<-runner.started
	waiting := first.ID
	running, err := svc.Get(context.Background(), first.ID)
	require.NoError(t, err)
	if running.Status == StatusRunning {
		waiting = second.ID
	}
	queued, err := svc.Get(context.Background(), waiting)
	require.NoError(t, err)
	assert.Equal(t, StatusQueued, queued.Status)

	close(runner.gate)
	waitForStatus(t, svc, first.ID, StatusCompleted)
	waitForStatus(t, svc, second.ID, StatusCompleted)
	assert.Equal(t, int32(1), runner.peak.Load())
}

func TestService_ShutdownRejectsNewJobs(t *testing.T) {
	svc := NewService(NewMemoryRepository(), stubProber{}, &stubRunner{})
	require.NoError(t, svc.Shutdown(context.Background()))

	_, err := svc.Submit(context.Background(), testRequest(t))
	assert.ErrorIs(t, err, ErrShuttingDown)
}

func TestService_ShutdownCancelsQueued(t *testing.T) {
	runner := &stubRunner{gate: make(chan struct{}), started: make(chan string, 2)}
	svc := NewService(NewMemoryRepository(), stubProber{}, runner, WithMaxConcurrent(1))

	a, err := svc.Submit(context.Background(), testRequest(t))
	require.NoError(t, err)
	b, err := svc.Submit(context.Background(), testRequest(t))
	require.NoError(t, err)
	<-runner.started

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, svc.Shutdown(ctx))

	for _, id := range []string{a.ID, b.ID} {
		job, err := svc.Get(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, StatusCancelled, job.Status, id)
	}
}

func TestService_Options(t *testing.T) {
	svc := NewService(NewMemoryRepository(), stubProber{}, &stubRunner{}, WithMaxConcurrent(0), WithLogger(nil))
	assert.Equal(t, DefaultMaxConcurrent, cap(svc.slots))
	assert.NotNil(t, svc.logger)

}
