// Package jobqueue serializes calls onto one dedicated worker goroutine.
//
// A Processor that is not running executes every job inline on the caller's
// goroutine. Once started, jobs are appended to a FIFO and drained by the
// worker in push order. A job pushed by the worker itself, from inside a running
// job, executes inline so that callbacks can reenter the processor. Stop does
// not drain: jobs still queued when it is called are completed with ErrStopped
// without being run.
package jobqueue

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// ErrStopped is the error of a job that was queued but never run because the
// processor was stopped first.
var ErrStopped = errors.New("jobqueue: processor stopped before the job ran")

// Job is a unit of work with an optional completion callback.
type Job struct {
	Name     string
	fn       func() error
	onResult func(*Job)

	// Err is the error returned by the job, or ErrStopped.
	Err error
}

// NewJob creates a job running fn. onResult, when non-nil, is called once after
// fn returns (or after the job is abandoned at shutdown).
func NewJob(name string, fn func() error, onResult func(*Job)) *Job {
	return &Job{Name: name, fn: fn, onResult: onResult}
}

func (j *Job) execute() {
	func() {
		defer func() {
			if r := recover(); r != nil {
				j.Err = fmt.Errorf("job %q panicked: %v", j.Name, r)
			}
		}()
		j.Err = j.fn()
	}()
	j.complete()
}

func (j *Job) complete() {
	if j.onResult != nil {
		j.onResult(j)
	}
}

// Processor runs jobs on a single worker goroutine.
type Processor struct {
	mu         sync.Mutex
	cond       *sync.Cond
	queue      []*Job
	running    bool
	terminated bool
	group      *errgroup.Group
	logger     *slog.Logger

	worker atomic.Uint64 // goroutine id of the running worker, 0 when none
}

// Option configures a Processor.
type Option func(*Processor)

// WithLogger sets the logger of the processor.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Processor) {
		p.logger = logger
	}
}

// New creates a stopped Processor.
func New(options ...Option) *Processor {
	p := &Processor{}
	p.cond = sync.NewCond(&p.mu)
	for _, opt := range options {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return p
}

// Start launches the worker. A running worker is stopped and replaced.
func (p *Processor) Start() {
	if p.Running() {
		p.Stop()
	}

	p.mu.Lock()
	p.terminated = false
	p.running = true
	p.queue = nil
	g := new(errgroup.Group)
	p.group = g
	p.mu.Unlock()

	g.Go(func() error {
		p.process()
		return nil
	})
	p.logger.Debug("job worker started")
}

// Stop signals the worker to terminate and waits for it to exit. A job being
// executed when Stop is called finishes first; queued jobs are abandoned.
func (p *Processor) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.terminated = true
	g := p.group
	p.cond.Broadcast()
	p.mu.Unlock()

	_ = g.Wait()

	p.mu.Lock()
	p.running = false
	p.group = nil
	p.mu.Unlock()
	p.logger.Debug("job worker stopped")
}

// Running reports whether the worker accepts jobs.
func (p *Processor) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running && !p.terminated
}

// Push hands j to the worker, or runs it inline when the worker is absent or
// stopping, or when Push is called on the worker goroutine itself.
// Push does not wait for a queued job.
func (p *Processor) Push(j *Job) {
	if p.onWorker() {
		j.execute()
		return
	}
	p.mu.Lock()
	if !p.running || p.terminated {
		p.mu.Unlock()
		j.execute()
		return
	}
	p.queue = append(p.queue, j)
	p.cond.Signal()
	p.mu.Unlock()
}

// Do pushes j and blocks until it has completed (or was abandoned), returning j.Err.
func (p *Processor) Do(j *Job) error {
	done := make(chan struct{})
	next := j.onResult
	j.onResult = func(j *Job) {
		if next != nil {
			next(j)
		}
		close(done)
	}
	p.Push(j)
	<-done
	return j.Err
}

func (p *Processor) onWorker() bool {
	id := p.worker.Load()
	return id != 0 && id == goroutineID()
}

func (p *Processor) process() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	p.worker.Store(goroutineID())
	defer p.worker.Store(0)

	for {
		p.mu.Lock()
		for len(p.queue) == 0 && !p.terminated {
			p.cond.Wait()
		}
		if p.terminated {
			abandoned := p.queue
			p.queue = nil
			p.mu.Unlock()
			if len(abandoned) > 0 {
				p.logger.Warn("job worker stopped with pending jobs", "abandoned", len(abandoned))
			}
			for _, j := range abandoned {
				j.Err = ErrStopped
				j.complete()
			}
			return
		}
		batch := p.queue
		p.queue = nil
		p.mu.Unlock()

		for _, j := range batch {
			j.execute()
		}
	}
}

// goroutineID reads the id of the calling goroutine from its stack header,
// "goroutine 123 [running]:".
func goroutineID() uint64 {
	var buf [64]byte
	b := buf[:runtime.Stack(buf[:], false)]
	b = bytes.TrimPrefix(b, []byte("goroutine "))
	if i := bytes.IndexByte(b, ' '); i >= 0 {
		b = b[:i]
	}
	id, _ := strconv.ParseUint(string(b), 10, 64)
	return id
}
