// Package process supervises external tool invocations. Both output
// streams of the child are drained concurrently while it runs so a chatty
// tool can never block on a full pipe.
package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/mattn/go-shellwords"

	"github.com/maauso/clipkit/internal/errs"
)

var (
	// ErrEmptyCommand is returned when the command line has no tokens.
	ErrEmptyCommand = errors.New("empty command")
	// ErrNotStarted is returned by Terminate when the child never started.
	ErrNotStarted = errors.New("process not started")
)

// DefaultWaitDelay is how long a cancelled child gets to exit after the
// graceful termination request before it is killed.
const DefaultWaitDelay = 5 * time.Second

// Option configures a Process before it starts.
type Option func(*Process)

// WithLogger sets the logger used for lifecycle events.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Process) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithWaitDelay overrides DefaultWaitDelay.
func WithWaitDelay(d time.Duration) Option {
	return func(p *Process) {
		p.waitDelay = d
	}
}

// WithDir sets the child's working directory.
func WithDir(dir string) Option {
	return func(p *Process) {
		p.dir = dir
	}
}

// Process is a running (or finished) child process.
type Process struct {
	commandLine string
	args        []string
	dir         string
	waitDelay   time.Duration
	logger      *slog.Logger

	cmd    *exec.Cmd
	stdout syncBuffer
	stderr syncBuffer

	done     chan struct{}
	exitCode int
	waitErr  error
}

// Split tokenizes a command line. Single- and double-quoted segments stay
// one argument; '\'' inside single quotes yields a literal quote.
func Split(commandLine string) ([]string, error) {
	args, err := shellwords.Parse(commandLine)
	if err != nil {
		return nil, fmt.Errorf("tokenize command: %w", err)
	}
	if len(args) == 0 {
		return nil, ErrEmptyCommand
	}
	return args, nil
}

// Start tokenizes commandLine and launches it. Cancelling ctx asks the child
// to terminate gracefully and kills it if it is still alive after the wait
// delay.
func Start(ctx context.Context, commandLine string, opts ...Option) (*Process, error) {
	args, err := Split(commandLine)
	if err != nil {
		return nil, err
	}

	p := &Process{
		commandLine: commandLine,
		args:        args,
		waitDelay:   DefaultWaitDelay,
		logger:      slog.Default(),
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}

	// #nosec G204 - commands are built from fixed templates by the planner
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Dir = p.dir
	cmd.Cancel = func() error { return interrupt(cmd.Process) }
	cmd.WaitDelay = p.waitDelay
	configure(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", args[0], err)
	}
	p.cmd = cmd

	p.logger.Debug("process started",
		slog.String("command", commandLine),
		slog.Int("pid", cmd.Process.Pid),
	)

	drainErrs := make(chan error, 2)
	var drains sync.WaitGroup
	drains.Add(2)
	go p.drain(&drains, drainErrs, stdout, &p.stdout)
	go p.drain(&drains, drainErrs, stderr, &p.stderr)

	go func() {
		drains.Wait()
		close(drainErrs)
		p.reap(drainErrs)
	}()

	return p, nil
}

// drain copies r into buf until the child closes its end of the pipe.
func (p *Process) drain(wg *sync.WaitGroup, errCh chan<- error, r io.Reader, buf *syncBuffer) {
	defer wg.Done()
	if _, err := io.Copy(buf, r); err != nil && !errors.Is(err, os.ErrClosed) {
		errCh <- fmt.Errorf("drain output: %w", err)
	}
}

// reap waits for the child once both pipes are drained and records how it
// ended.
func (p *Process) reap(drainErrs <-chan error) {
	defer close(p.done)

	err := p.cmd.Wait()
	p.exitCode = p.cmd.ProcessState.ExitCode()

	var exitErr *exec.ExitError
	switch {
	case err == nil, errors.As(err, &exitErr):
		// A non-zero status is reported through the exit code.
	default:
		p.waitErr = fmt.Errorf("wait %s: %w", p.args[0], err)
	}

	for derr := range drainErrs {
		if p.waitErr == nil {
			p.waitErr = derr
		}
	}

	p.logger.Debug("process exited",
		slog.String("command", p.commandLine),
		slog.Int("exit_code", p.exitCode),
	)
}

// Command returns the command line the process was started with.
func (p *Process) Command() string {
	return p.commandLine
}

// Args returns the tokenized command line.
func (p *Process) Args() []string {
	return append([]string(nil), p.args...)
}

// Stdout returns everything the child has written to standard output so far.
func (p *Process) Stdout() string {
	return p.stdout.String()
}

// Stderr returns everything the child has written to standard error so far.
func (p *Process) Stderr() string {
	return p.stderr.String()
}

// Wait blocks until the child exits and returns its exit status. It may be
// called any number of times.
func (p *Process) Wait() (int, error) {
	<-p.done
	return p.exitCode, p.waitErr
}

// Poll returns the exit status and true once the child has exited, or
// false while it is still running.
func (p *Process) Poll() (int, bool) {
	select {
	case <-p.done:
		return p.exitCode, true
	default:
		return 0, false
	}
}

// Terminate asks the child to stop, immediately when force is set, then
// waits for it. On Unix a non-forced stop sends SIGTERM; on Windows there is
// no such signal, so Terminate(false) kills the child immediately too.
func (p *Process) Terminate(force bool) (int, error) {
	if p.cmd == nil || p.cmd.Process == nil {
		return 0, ErrNotStarted
	}
	if _, exited := p.Poll(); !exited {
		var err error
		if force {
			err = p.cmd.Process.Kill()
		} else {
			err = interrupt(p.cmd.Process)
		}
		if err != nil && !errors.Is(err, os.ErrProcessDone) {
			return 0, fmt.Errorf("terminate %s: %w", p.args[0], err)
		}
	}
	return p.Wait()
}

// Result is the outcome of a completed command.
type Result struct {
	Command  string
	ExitCode int
	Stdout   string
	Stderr   string
	Elapsed  time.Duration
}

// Run starts commandLine and waits for it. A non-zero exit status is
// returned as *errs.BackendError carrying the captured standard error.
func Run(ctx context.Context, commandLine string, opts ...Option) (*Result, error) {
	started := time.Now()

	p, err := Start(ctx, commandLine, opts...)
	if err != nil {
		return nil, err
	}

	code, err := p.Wait()
	res := &Result{
		Command:  commandLine,
		ExitCode: code,
		Stdout:   p.Stdout(),
		Stderr:   p.Stderr(),
		Elapsed:  time.Since(started),
	}
	if err != nil {
		return res, err
	}
	if ctx.Err() != nil {
		return res, fmt.Errorf("%s cancelled: %w", p.args[0], ctx.Err())
	}
	if code != 0 {
		return res, &errs.BackendError{
			Command:  commandLine,
			ExitCode: code,
			Stderr:   res.Stderr,
			Err:      fmt.Errorf("%s exited with status %d", p.args[0], code),
		}
	}
	return res, nil
}

// syncBuffer is a bytes.Buffer safe for one writer and concurrent readers.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
