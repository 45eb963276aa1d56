package scheduler

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/charmbracelet/stretch/stretch/audio"
	"github.com/charmbracelet/stretch/stretch/wsola"
)

var (
	// ErrPoolClosed is returned when submitting to a closed pool.
	ErrPoolClosed = errors.New("worker pool is closed")

	// ErrInvalidPoolSize is returned for a pool with no workers.
	ErrInvalidPoolSize = errors.New("worker pool size must be positive")

	// ErrWorkerPanic wraps a panic raised by a converter.
	ErrWorkerPanic = errors.New("converter panicked")
)

// Job asks a worker to convert one chunk of the source.
type Job struct {
	ID       uint64
	Index    int
	Start    time.Duration
	End      time.Duration
	Tempo    float64
	Priority float64
}

// Result is the completion message a worker sends back for a job.
type Result struct {
	JobID   uint64
	Index   int
	Tempo   float64
	Buffer  *audio.Buffer
	Err     error
	Elapsed time.Duration
}

// Pool runs conversions on a fixed number of workers. Jobs wait in a
// priority queue and results are delivered on a channel. Workers only read
// the shared source.
type Pool struct {
	size int
	src  *audio.Buffer
	conv wsola.Converter

	mu      sync.Mutex
	queue   jobQueue
	cancels map[uint64]context.CancelFunc
	closed  bool

	wake    chan struct{}
	results chan Result

	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group
}

// NewPool starts size workers converting ranges of src with conv.
func NewPool(size int, src *audio.Buffer, conv wsola.Converter) (*Pool, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPoolSize, size)
	}

	ctx, cancel := context.WithCancel(context.Background())
	group, gctx := errgroup.WithContext(ctx)

	p := &Pool{
		size:    size,
		src:     src,
		conv:    conv,
		cancels: make(map[uint64]context.CancelFunc),
		wake:    make(chan struct{}, size),
		results: make(chan Result, size),
		ctx:     ctx,
		cancel:  cancel,
		group:   group,
	}
	heap.Init(&p.queue)

	for i := 0; i < size; i++ {
		worker := i
		group.Go(func() error {
			return p.work(gctx, worker)
		})
	}

	log.Debug("Started conversion pool", "workers", size)
	return p, nil
}

// Size returns the number of workers.
func (p *Pool) Size() int { return p.size }

// Results returns the channel completions are delivered on.
func (p *Pool) Results() <-chan Result { return p.results }

// Queued returns the number of jobs waiting for a worker.
func (p *Pool) Queued() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queue.Len()
}

// Submit queues a job. It never blocks.
func (p *Pool) Submit(job Job) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPoolClosed
	}

	ctx, cancel := context.WithCancel(p.ctx)
	p.cancels[job.ID] = cancel
	heap.Push(&p.queue, &queuedJob{job: job, ctx: ctx})
	p.mu.Unlock()

	select {
	case p.wake <- struct{}{}:
	default:
	}
	return nil
}

// Cancel drops a queued job or signals a running one to stop. A running
// job may still deliver a result.
func (p *Pool) Cancel(id uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if cancel, ok := p.cancels[id]; ok {
		cancel()
		delete(p.cancels, id)
	}
	for i, item := range p.queue {
		if item.job.ID == id {
			heap.Remove(&p.queue, i)
			break
		}
	}
}

// Close stops all workers and waits for them to exit.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	for id, cancel := range p.cancels {
		cancel()
		delete(p.cancels, id)
	}
	p.queue = p.queue[:0]
	p.mu.Unlock()

	p.cancel()
	err := p.group.Wait()
	log.Debug("Stopped conversion pool")
	return err
}

func (p *Pool) work(ctx context.Context, worker int) error {
	for {
		item, ok := p.pop()
		if !ok {
			select {
			case <-p.wake:
				continue
			case <-ctx.Done():
				return nil
			}
		}

		res := p.run(item)
		log.Debug("Converted chunk",
			"worker", worker,
			"chunk", res.Index,
			"tempo", res.Tempo,
			"elapsed", res.Elapsed,
			"err", res.Err)

		select {
		case p.results <- res:
		case <-ctx.Done():
			return nil
		}
	}
}

func (p *Pool) pop() (*queuedJob, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.queue.Len() == 0 {
		return nil, false
	}
	return heap.Pop(&p.queue).(*queuedJob), true
}

func (p *Pool) run(item *queuedJob) (res Result) {
	job := item.job
	res = Result{JobID: job.ID, Index: job.Index, Tempo: job.Tempo}
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			res.Buffer = nil
			res.Err = fmt.Errorf("%w: %v", ErrWorkerPanic, r)
		}
		res.Elapsed = time.Since(start)

		p.mu.Lock()
		if cancel, ok := p.cancels[job.ID]; ok {
			cancel()
			delete(p.cancels, job.ID)
		}
		p.mu.Unlock()
	}()

	res.Buffer, res.Err = p.conv.Convert(item.ctx, p.src.Slice(job.Start, job.End), job.Tempo)
	return res
}

// Priority queue of jobs using a heap.
type queuedJob struct {
	job   Job
	ctx   context.Context
	index int
}

type jobQueue []*queuedJob

func (q jobQueue) Len() int { return len(q) }

func (q jobQueue) Less(i, j int) bool {
	if q[i].job.Priority != q[j].job.Priority {
		return q[i].job.Priority > q[j].job.Priority
	}
	return q[i].job.Index < q[j].job.Index
}

func (q jobQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *jobQueue) Push(x interface{}) {
	item := x.(*queuedJob)
	item.index = len(*q)
	*q = append(*q, item)
}

func (q *jobQueue) Pop() interface{} {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*q = old[:n-1]
	return item
}
