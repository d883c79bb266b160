package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/maauso/clipkit/internal/action"
	"github.com/maauso/clipkit/internal/errs"
	"github.com/maauso/clipkit/internal/storage"
	"github.com/maauso/clipkit/internal/video"
)

// Service errors.
var (
	// ErrInvalidRequest wraps request validation failures.
	ErrInvalidRequest = fmt.Errorf("%w: invalid render request", errs.ErrValidation)
	// ErrJobFinished is returned when cancelling a job that already ended.
	ErrJobFinished = errors.New("job already finished")
	// ErrShuttingDown is returned by Submit after Shutdown has been called.
	ErrShuttingDown = errors.New("service is shutting down")
)

// DefaultMaxConcurrent is the default number of renders that run at once.
const DefaultMaxConcurrent = 2

var validate = validator.New()

// Request describes one render.
type Request struct {
	Source      string          `validate:"required"`
	Destination string          `validate:"required,nefield=Source"`
	Actions     []action.Action `validate:"required,min=1"`
	// S3Key uploads the result when set.
	S3Key string
}

// Publisher uploads a finished render.
type Publisher interface {
	Upload(ctx context.Context, key, path string) (string, error)
}

// Service accepts render requests and runs them in the background with
// bounded concurrency.
type Service struct {
	repo      Repository
	prober    video.Prober
	runner    video.Runner
	publisher Publisher
	logger    *slog.Logger
	slots     chan struct{}

	mu       sync.Mutex
	live     map[string]*liveJob
	closed   bool
	baseCtx  context.Context
	stopAll  context.CancelFunc
	inFlight sync.WaitGroup
}

type liveJob struct {
	job    *Job
	cancel context.CancelFunc
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithMaxConcurrent limits how many renders run at once. Values below one
// are ignored.
func WithMaxConcurrent(n int) ServiceOption {
	return func(s *Service) {
		if n > 0 {
			s.slots = make(chan struct{}, n)
		}
	}
}

// WithPublisher enables S3 uploads for requests that carry a key.
func WithPublisher(p Publisher) ServiceOption {
	return func(s *Service) {
		s.publisher = p
	}
}

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewService creates a Service.
func NewService(repo Repository, prober video.Prober, runner video.Runner, opts ...ServiceOption) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Service{
		repo:    repo,
		prober:  prober,
		runner:  runner,
		logger:  slog.Default(),
		slots:   make(chan struct{}, DefaultMaxConcurrent),
		live:    make(map[string]*liveJob),
		baseCtx: ctx,
		stopAll: cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit validates req, stores a QUEUED job and starts it in the
// background. The job outlives ctx; use Cancel to stop it.
func (s *Service) Submit(ctx context.Context, req Request) (*Job, error) {
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	if req.S3Key != "" && s.publisher == nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, storage.ErrS3NotConfigured)
	}

	job := New()
	job.Source = req.Source
	job.Destination = req.Destination
	job.ActionCount = len(req.Actions)
	job.S3Key = req.S3Key

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrShuttingDown
	}
	if err := s.repo.Save(ctx, job); err != nil {
		s.mu.Unlock()
		s.logger.Error("failed to save job",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	jobCtx, cancel := context.WithCancel(s.baseCtx)
	s.live[job.ID] = &liveJob{job: job, cancel: cancel}
	s.inFlight.Add(1)
	s.mu.Unlock()

	s.logger.Info("render queued",
		slog.String("job_id", job.ID),
		slog.String("source", req.Source),
		slog.String("destination", req.Destination),
		slog.Int("actions", len(req.Actions)),
	)

	go s.run(jobCtx, cancel, job, req)

	return job.Clone(), nil
}

// Get returns the job with the given ID.
func (s *Service) Get(ctx context.Context, id string) (*Job, error) {
	return s.repo.FindByID(ctx, id)
}

// List returns the jobs matching filter, oldest first.
func (s *Service) List(ctx context.Context, filter Filter) ([]*Job, error) {
	return s.repo.List(ctx, filter)
}

// Cancel stops a queued or running job. The current external tool is asked
// to terminate; its workspace is still recycled.
func (s *Service) Cancel(ctx context.Context, id string) (*Job, error) {
	s.mu.Lock()
	lj, ok := s.live[id]
	s.mu.Unlock()

	if !ok {
		job, err := s.repo.FindByID(ctx, id)
		if err != nil {
			return nil, err
		}
		return job, ErrJobFinished
	}

	if err := lj.job.Cancel(); err != nil {
		return lj.job.Clone(), ErrJobFinished
	}
	lj.cancel()

	if err := s.repo.Save(ctx, lj.job); err != nil {
		return nil, err
	}
	s.logger.Info("render cancelled", slog.String("job_id", id))
	return lj.job.Clone(), nil
}

// Shutdown cancels every live job and waits for them to finish or for ctx
// to expire.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.stopAll()

	done := make(chan struct{})
	go func() {
		s.inFlight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) run(ctx context.Context, cancel context.CancelFunc, job *Job, req Request) {
	defer s.inFlight.Done()
	defer cancel()
	defer func() {
		s.mu.Lock()
		delete(s.live, job.ID)
		s.mu.Unlock()
	}()

	select {
	case s.slots <- struct{}{}:
		defer func() { <-s.slots }()
	case <-ctx.Done():
		s.finish(job, ctx.Err())
		return
	}

	if err := job.Start(); err != nil {
		// Cancelled while queued.
		return
	}
	s.save(job)

	s.finish(job, s.render(ctx, job, req))
}

func (s *Service) render(ctx context.Context, job *Job, req Request) error {
	v, err := video.New(ctx, req.Source, s.prober, s.runner)
	if err != nil {
		return err
	}
	job.SetMetadata(v.Metadata())
	s.save(job)

	for _, a := range req.Actions {
		v.Register(a)
	}
	if err := v.Save(ctx, req.Destination); err != nil {
		return err
	}

	if req.S3Key != "" {
		url, err := s.publisher.Upload(ctx, req.S3Key, req.Destination)
		if err != nil {
			return err
		}
		job.SetOutputURL(url)
	}
	return nil
}

// finish records the outcome. A job cancelled by Cancel is already terminal
// and keeps its CANCELLED status.
func (s *Service) finish(job *Job, err error) {
	switch {
	case err == nil:
		if job.Complete() == nil {
			s.logger.Info("render completed",
				slog.String("job_id", job.ID),
				slog.String("destination", job.Destination),
			)
		}
	case errors.Is(err, context.Canceled):
		_ = job.Cancel()
	default:
		if job.Fail(err.Error()) == nil {
			s.logger.Error("render failed",
				slog.String("job_id", job.ID),
				slog.Bool("validation", errs.IsValidation(err)),
				slog.Bool("backend", errs.IsBackend(err)),
				slog.String("error", err.Error()),
			)
		}
	}
	s.save(job)
}

func (s *Service) save(job *Job) {
	if err := s.repo.Save(context.Background(), job); err != nil {
		s.logger.Error("failed to save job",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
	}
}
