package engine

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobDone      JobStatus = "done"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

// Job tracks one long-running operation offloaded from the request
// path.
type Job struct {
	ID         string     `json:"id"`
	Kind       string     `json:"kind"`
	Status     JobStatus  `json:"status"`
	Error      string     `json:"error,omitempty"`
	Result     any        `json:"result,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

type jobWork struct {
	id  string
	fn  func(ctx context.Context) (any, error)
	ctx context.Context
}

// JobPool runs long operations on a bounded set of workers. Callers
// get a job id back immediately and poll for the result.
type JobPool struct {
	mu      sync.RWMutex
	jobs    map[string]*Job
	cancels map[string]context.CancelFunc
	bus     *EventBus
	root    context.Context
	stop    context.CancelFunc
	wg      sync.WaitGroup

	// qmu serializes queue sends against the close in Shutdown. Workers
	// never take it, so a send blocked on a full queue still drains.
	qmu    sync.RWMutex
	queue  chan jobWork
	closed bool
}

func NewJobPool(workers int, bus *EventBus) *JobPool {
	if workers <= 0 {
		workers = 4
	}
	root, stop := context.WithCancel(context.Background())
	p := &JobPool{
		jobs:    make(map[string]*Job),
		cancels: make(map[string]context.CancelFunc),
		queue:   make(chan jobWork, 64),
		bus:     bus,
		root:    root,
		stop:    stop,
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

// Submit enqueues a job and returns its id, or "" after Shutdown.
func (p *JobPool) Submit(kind string, fn func(ctx context.Context) (any, error)) string {
	p.qmu.RLock()
	defer p.qmu.RUnlock()
	if p.closed {
		return ""
	}
	id := uuid.NewString()
	ctx, cancel := context.WithCancel(p.root)
	job := &Job{ID: id, Kind: kind, Status: JobQueued, CreatedAt: time.Now()}
	p.mu.Lock()
	p.jobs[id] = job
	p.cancels[id] = cancel
	p.mu.Unlock()
	p.queue <- jobWork{id: id, fn: fn, ctx: ctx}
	return id
}

func (p *JobPool) Get(id string) (*Job, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	j, ok := p.jobs[id]
	if !ok {
		return nil, false
	}
	cp := *j
	return &cp, true
}

// Cancel signals the job's context. The job function decides what a
// cancelled run returns.
func (p *JobPool) Cancel(id string) bool {
	p.mu.Lock()
	cancel, ok := p.cancels[id]
	p.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

func (p *JobPool) Shutdown() {
	p.stop()
	p.qmu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.qmu.Unlock()
	p.wg.Wait()
}

func (p *JobPool) worker() {
	defer p.wg.Done()
	for w := range p.queue {
		p.run(w)
	}
}

func (p *JobPool) run(w jobWork) {
	now := time.Now()
	p.mu.Lock()
	job := p.jobs[w.id]
	job.Status = JobRunning
	job.StartedAt = &now
	p.mu.Unlock()

	result, err := w.fn(w.ctx)

	done := time.Now()
	p.mu.Lock()
	switch {
	case err != nil && w.ctx.Err() != nil:
		job.Status = JobCancelled
		job.Error = err.Error()
	case err != nil:
		job.Status = JobFailed
		job.Error = err.Error()
	default:
		job.Status = JobDone
		job.Result = result
	}
	job.FinishedAt = &done
	status := job.Status
	delete(p.cancels, w.id)
	p.mu.Unlock()

	if status == JobFailed {
		log.Printf("engine: job %s (%s) failed: %v", w.id, job.Kind, err)
	}
	if p.bus != nil {
		p.bus.Emit(EventJobFinished, JobEvent{JobID: w.id, Kind: job.Kind, Status: string(status)})
	}
}
