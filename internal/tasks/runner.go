// Package tasks runs one long background job (indexing or refresh) at a time.
package tasks

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/utsushi/internal/models"
)

// ErrBusy is returned by Start while another job is running.
var ErrBusy = errors.New("a background task is already running")

// State is the lifecycle state of a job.
type State string

const (
	StateIdle     State = "idle"
	StateRunning  State = "running"
	StateFinished State = "finished"
	StateCanceled State = "canceled"
	StateFailed   State = "failed"
)

// Status is a snapshot of the current or most recent job.
type Status struct {
	ID         string               `json:"id,omitempty"`
	Kind       string               `json:"kind,omitempty"`
	State      State                `json:"state"`
	Folder     string               `json:"folder,omitempty"`
	Processed  int                  `json:"processed"`
	Total      int                  `json:"total"`
	Stats      *models.RefreshStats `json:"stats,omitempty"`
	Error      string               `json:"error,omitempty"`
	StartedAt  time.Time            `json:"started_at,omitempty"`
	FinishedAt time.Time            `json:"finished_at,omitempty"`
}

// Job is the work run by Start. It reports progress through the Reporter.
type Job func(ctx context.Context, r *Reporter) error

// Runner runs at most one Job at a time.
type Runner struct {
	mu     sync.Mutex
	status Status
	cancel context.CancelFunc
	done   chan struct{}
	logger *zap.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// NewRunner creates an idle runner.
func NewRunner(opts ...Option) *Runner {
	r := &Runner{status: Status{State: StateIdle}, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start runs job in the background and returns its id, or ErrBusy if a job is running.
func (r *Runner) Start(kind string, job Job) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status.State == StateRunning {
		return "", ErrBusy
	}
	ctx, cancel := context.WithCancel(context.Background())
	id := uuid.NewString()
	r.status = Status{ID: id, Kind: kind, State: StateRunning, StartedAt: time.Now()}
	r.cancel = cancel
	r.done = make(chan struct{})

	go r.run(ctx, id, job, r.done)
	r.logger.Info("task started", zap.String("id", id), zap.String("kind", kind))
	return id, nil
}

func (r *Runner) run(ctx context.Context, id string, job Job, done chan struct{}) {
	defer close(done)
	var err error
	func() {
		defer func() {
			if p := recover(); p != nil {
				r.logger.Error("task panicked", zap.String("id", id), zap.Any("panic", p))
				err = errors.New("task panicked")
			}
		}()
		err = job(ctx, &Reporter{runner: r, id: id})
	}()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancel()
	r.cancel = nil
	r.status.FinishedAt = time.Now()
	switch {
	case errors.Is(err, context.Canceled):
		r.status.State = StateCanceled
	case err != nil:
		r.status.State = StateFailed
		r.status.Error = err.Error()
	default:
		r.status.State = StateFinished
	}
	r.logger.Info("task ended", zap.String("id", id), zap.String("state", string(r.status.State)))
}

// Cancel asks the running job to stop. Running files finish; no new work starts.
// It reports whether a job was running.
func (r *Runner) Cancel() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status.State != StateRunning || r.cancel == nil {
		return false
	}
	r.cancel()
	return true
}

// Status returns a snapshot of the current or last job.
func (r *Runner) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.status
	if s.Stats != nil {
		stats := *s.Stats
		s.Stats = &stats
	}
	return s
}

// Wait blocks until the current job, if any, has ended or ctx is done.
func (r *Runner) Wait(ctx context.Context) error {
	r.mu.Lock()
	done := r.done
	r.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Reporter updates the status of one job. It satisfies refresh.Observer.
type Reporter struct {
	runner *Runner
	id     string
}

func (p *Reporter) update(fn func(s *Status)) {
	p.runner.mu.Lock()
	defer p.runner.mu.Unlock()
	if p.runner.status.ID != p.id {
		return
	}
	fn(&p.runner.status)
}

// Progress records the folder being processed and how far along it is.
func (p *Reporter) Progress(folder string, processed, total int) {
	p.update(func(s *Status) {
		s.Folder = folder
		s.Processed = processed
		s.Total = total
	})
}

// Finished records the final stats of the job.
func (p *Reporter) Finished(stats models.RefreshStats) {
	p.update(func(s *Status) {
		s.Stats = &stats
	})
}
