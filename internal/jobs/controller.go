// Package jobs runs the background scan that feeds every file under the root
// through the indexing pipeline, one job at a time.
package jobs

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultPollInterval is how often a paused worker checks whether it may continue.
const DefaultPollInterval = 200 * time.Millisecond

// Lister returns the files a job should process.
type Lister interface {
	ListFiles() ([]string, error)
}

// Processor handles one file.
type Processor interface {
	ProcessFile(ctx context.Context, rel string) error
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(ctx context.Context, rel string) error

// ProcessFile calls f.
func (f ProcessorFunc) ProcessFile(ctx context.Context, rel string) error { return f(ctx, rel) }

// Status is a point-in-time view of the current (or last) job.
type Status struct {
	JobID          string     `json:"job_id"`
	StartedAt      *time.Time `json:"started_at"`
	FinishedAt     *time.Time `json:"finished_at"`
	TotalFiles     int64      `json:"total_files"`
	ProcessedFiles int64      `json:"processed_files"`
	Paused         bool       `json:"paused"`
	Cancelled      bool       `json:"cancelled"`
	Running        bool       `json:"running"`
}

type job struct {
	id        string
	startedAt time.Time
	total     int64
	files     []string

	finishedAt atomic.Pointer[time.Time]
	processed  atomic.Int64
	paused     atomic.Bool
	cancelled  atomic.Bool
	running    atomic.Bool

	cancel context.CancelFunc
	done   chan struct{}
}

func (j *job) status() Status {
	started := j.startedAt
	return Status{
		JobID:          j.id,
		StartedAt:      &started,
		FinishedAt:     j.finishedAt.Load(),
		TotalFiles:     j.total,
		ProcessedFiles: j.processed.Load(),
		Paused:         j.paused.Load(),
		Cancelled:      j.cancelled.Load(),
		Running:        j.running.Load(),
	}
}

// Controller owns at most one active scan job.
type Controller struct {
	lister    Lister
	processor Processor
	poll      time.Duration
	onFinish  func(Status)
	logger    *zap.Logger

	mu      sync.Mutex // serializes Start
	current atomic.Pointer[job]
}

// Option configures a Controller.
type Option func(*Controller)

// WithPollInterval sets how often a paused worker wakes up.
func WithPollInterval(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.poll = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithOnFinish registers a hook that receives the final status of every job.
// It runs on the worker goroutine before Wait returns.
func WithOnFinish(fn func(Status)) Option {
	return func(c *Controller) { c.onFinish = fn }
}

// NewController creates a controller that lists files with lister and hands
// each to processor.
func NewController(lister Lister, processor Processor, opts ...Option) *Controller {
	c := &Controller{
		lister:    lister,
		processor: processor,
		poll:      DefaultPollInterval,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start launches a job and returns its id. While a job is running the
// existing id is returned and nothing new is started. The job is detached
// from ctx's cancellation; use Cancel to stop it.
func (c *Controller) Start(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if j := c.current.Load(); j != nil && j.running.Load() {
		return j.id, nil
	}
	files, err := c.lister.ListFiles()
	if err != nil {
		return "", fmt.Errorf("list files: %w", err)
	}
	jobCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	j := &job{
		id:        uuid.New().String(),
		startedAt: time.Now(),
		total:     int64(len(files)),
		files:     files,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	j.running.Store(true)
	c.current.Store(j)

	go c.run(jobCtx, j)
	return j.id, nil
}

func (c *Controller) run(ctx context.Context, j *job) {
	defer close(j.done)
	defer j.cancel()

	c.logger.Info("Scan job started", zap.String("job_id", j.id), zap.Int64("files", j.total))
	for _, rel := range j.files {
		if !c.waitWhilePaused(ctx, j) || j.cancelled.Load() {
			c.logger.Info("Scan job cancelled", zap.String("job_id", j.id))
			break
		}
		if err := c.processor.ProcessFile(ctx, rel); err != nil {
			c.logger.Warn("Failed processing file", zap.String("path", rel), zap.Error(err))
		}
		j.processed.Add(1)
	}

	finished := time.Now()
	j.finishedAt.Store(&finished)
	j.running.Store(false)
	st := j.status()
	c.logger.Info("Scan job finished",
		zap.String("job_id", j.id),
		zap.Int64("processed", st.ProcessedFiles),
		zap.Int64("total", st.TotalFiles))
	if c.onFinish != nil {
		c.onFinish(st)
	}
}

// waitWhilePaused blocks while the job is paused. It returns false when the
// job was cancelled in the meantime.
func (c *Controller) waitWhilePaused(ctx context.Context, j *job) bool {
	for j.paused.Load() {
		if j.cancelled.Load() {
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(c.poll):
		}
	}
	return true
}

func (c *Controller) active() *job {
	j := c.current.Load()
	if j == nil || !j.running.Load() {
		return nil
	}
	return j
}

// Pause suspends the running job before its next file. It returns false when
// no job is running.
func (c *Controller) Pause() bool {
	j := c.active()
	if j == nil {
		return false
	}
	j.paused.Store(true)
	c.logger.Info("Scan job paused", zap.String("job_id", j.id))
	return true
}

// Resume continues a paused job. It returns false when no job is running.
func (c *Controller) Resume() bool {
	j := c.active()
	if j == nil {
		return false
	}
	j.paused.Store(false)
	c.logger.Info("Scan job resumed", zap.String("job_id", j.id))
	return true
}

// Cancel stops the running job before its next file, including while paused.
// It returns false when no job is running.
func (c *Controller) Cancel() bool {
	j := c.active()
	if j == nil {
		return false
	}
	j.cancelled.Store(true)
	j.cancel()
	return true
}

// Status reports the current or last job. It is the zero Status before any job ran.
func (c *Controller) Status() Status {
	j := c.current.Load()
	if j == nil {
		return Status{}
	}
	return j.status()
}

// Wait blocks until the current job finishes or ctx is done.
func (c *Controller) Wait(ctx context.Context) error {
	j := c.current.Load()
	if j == nil {
		return nil
	}
	select {
	case <-j.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop cancels any running job and waits for it to exit.
func (c *Controller) Stop(ctx context.Context) error {
	c.Cancel()
	return c.Wait(ctx)
}
