// Package worker provides an asynchronous worker pool that ingests files in
// the background so that directory watching never blocks on embedding.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"sync"

	"github.com/papercomputeco/qagent/pkg/logger"
)

var (
	defaultNumWorkers   uint = 2
	defaultJobQueueSize uint = 256
)

// Ingester stores one file's content under its name.
type Ingester interface {
	Ingest(ctx context.Context, filename string, raw []byte) (int, error)
}

// Job is a unit of work for the worker pool to execute against.
type Job struct {
	// Path is read from disk when Data is nil.
	Path string

	// Name is the source name recorded on the chunks. Defaults to Path.
	Name string

	Data []byte
}

func (j Job) source() string {
	if j.Name != "" {
		return j.Name
	}
	return j.Path
}

// Result reports the outcome of one job.
type Result struct {
	Job    Job
	Chunks int
	Err    error
}

// Config is the configuration options for the worker pool.
type Config struct {
	// Ingester processes each job.
	Ingester Ingester

	// NumWorkers is the number of background workers in the pool.
	NumWorkers uint

	// QueueSize is the capacity of the buffered job channel (defaults to 256).
	QueueSize uint

	// OnResult, when set, is called from the worker goroutine after each job.
	OnResult func(Result)

	Logger *slog.Logger
}

// Pool processes ingest jobs asynchronously via a worker pool.
type Pool struct {
	config *Config
	queue  chan Job
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	logger *slog.Logger

	// mu guards closed against sends racing Close.
	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once
}

// NewPool creates a new Pool and starts its worker goroutines.
func NewPool(c *Config) (*Pool, error) {
	if c.Ingester == nil {
		return nil, errors.New("ingester is required")
	}
	if c.NumWorkers == 0 {
		c.NumWorkers = defaultNumWorkers
	}
	if c.QueueSize == 0 {
		c.QueueSize = defaultJobQueueSize
	}
	if c.NumWorkers > uint(math.MaxInt) {
		return nil, fmt.Errorf("NumWorkers %d exceeds max int", c.NumWorkers)
	}
	if c.Logger == nil {
		c.Logger = logger.Nop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	wp := &Pool{
		config: c,
		queue:  make(chan Job, c.QueueSize),
		ctx:    ctx,
		cancel: cancel,
		logger: c.Logger,
	}

	wp.wg.Add(int(c.NumWorkers))
	for i := range c.NumWorkers {
		go wp.worker(i)
	}

	return wp, nil
}

// Enqueue submits a job for processing by the worker pool.
// Returns true if enqueued, false if the queue is full or the pool is closed,
// resulting in the job being dropped
func (p *Pool) Enqueue(job Job) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		p.logger.Warn("job not queued, pool closed, job dropped", "source", job.source())
		return false
	}

	select {
	case p.queue <- job:
		p.logger.Debug("job queued", "source", job.source())
		return true
	default:
		p.logger.Error("job not queued, queue full, job dropped", "source", job.source())
		return false
	}
}

// Close signals workers to stop and waits for in-flight jobs to drain.
// Call this during graceful shutdown after producers have stopped.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		close(p.queue)
		p.mu.Unlock()

		p.wg.Wait()
		p.cancel()
	})
}

// worker is the inner worker thread that continuously pulls jobs off the jobs queue
func (p *Pool) worker(id uint) {
	defer p.wg.Done()
	p.logger.Debug("worker started", "worker_id", id)

	for job := range p.queue {
		p.processJob(job)
	}

	p.logger.Debug("ingest worker stopped", "worker_id", id)
}

func (p *Pool) processJob(job Job) {
	res := Result{Job: job}

	data := job.Data
	if data == nil {
		var err error
		data, err = os.ReadFile(job.Path)
		if err != nil {
			res.Err = fmt.Errorf("reading %s: %w", job.Path, err)
		}
	}

	if res.Err == nil {
		res.Chunks, res.Err = p.config.Ingester.Ingest(p.ctx, job.source(), data)
	}

	if res.Err != nil {
		p.logger.Error("async ingestion failed", "source", job.source(), "error", res.Err)
	} else {
		p.logger.Info("file ingested in background", "source", job.source(), "chunks", res.Chunks)
	}

	if p.config.OnResult != nil {
		p.config.OnResult(res)
	}
}
