package pool

import (
	"context"
	"errors"
	"fmt"
	"log"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	"pixelbatch/internal/convert"
)

// DefaultTaskTimeout bounds how long a single conversion may take before
// its task is cancelled and its caller gets an error.
const DefaultTaskTimeout = 60 * time.Second

var (
	// ErrTerminated is returned to callers whose tasks were still pending
	// or running when the pool was torn down.
	ErrTerminated = errors.New("pool terminated")

	// ErrTaskTimeout is returned when a conversion exceeds the task timeout.
	ErrTaskTimeout = errors.New("conversion timed out")
)

// ConvertFunc is the work a pool instance performs for one task. Tests
// substitute it; production pools use convert.Convert.
type ConvertFunc func(ctx context.Context, file convert.File, opts convert.Options, onProgress convert.ProgressFunc) (*convert.Result, error)

// Config configures a Pool.
type Config struct {
	// MaxWorkers caps the instance count. Zero means min(NumCPU, 8).
	MaxWorkers int
	// TaskTimeout bounds each conversion. Zero means DefaultTaskTimeout.
	TaskTimeout time.Duration
	// Convert overrides the conversion function. Nil means convert.Convert.
	Convert ConvertFunc
}

// DefaultMaxWorkers returns the instance cap used when none is configured.
func DefaultMaxWorkers() int {
	n := runtime.NumCPU()
	if n > 8 {
		n = 8
	}
	if n < 1 {
		n = 1
	}
	return n
}

// Stats is a point-in-time snapshot of pool occupancy.
type Stats struct {
	TotalWorkers int `json:"total_workers"`
	BusyWorkers  int `json:"busy_workers"`
	QueuedTasks  int `json:"queued_tasks"`
	ActiveTasks  int `json:"active_tasks"`
}

type workerTask struct {
	id         string
	file       convert.File
	opts       convert.Options
	onProgress convert.ProgressFunc

	ctx      context.Context
	resultCh chan taskOutcome // buffered, written at most once

	assigned *workerInstance
	settled  bool
}

type workerInstance struct {
	id            int
	inbox         chan *workerTask
	busy          bool
	currentTaskID string
}

// Pool owns a bounded set of worker goroutines and schedules conversion
// tasks across them. Instances are created lazily up to the configured
// maximum; excess tasks wait in a FIFO queue. Construct explicitly with
// New and pass by reference; there is no ambient shared pool.
type Pool struct {
	maxWorkers  int
	taskTimeout time.Duration
	convertFn   ConvertFunc

	ctx    context.Context
	cancel context.CancelFunc

	submitCh chan *workerTask
	msgCh    chan message
	done     chan struct{}

	// Dispatcher-owned; the mutex only guards the Stats snapshot read.
	mu        sync.Mutex
	instances []*workerInstance
	queue     []*workerTask
	active    map[string]*workerTask

	termOnce sync.Once
}

// New creates and starts a pool.
func New(cfg Config) *Pool {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = DefaultMaxWorkers()
	}
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = DefaultTaskTimeout
	}
	if cfg.Convert == nil {
		cfg.Convert = convert.Convert
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		maxWorkers:  cfg.MaxWorkers,
		taskTimeout: cfg.TaskTimeout,
		convertFn:   cfg.Convert,
		ctx:         ctx,
		cancel:      cancel,
		submitCh:    make(chan *workerTask),
		msgCh:       make(chan message, 64),
		done:        make(chan struct{}),
		active:      make(map[string]*workerTask),
	}
	go p.dispatch()
	return p
}

// Convert runs one conversion through the pool and waits for its result.
// onProgress may be nil; it is invoked from the dispatcher, so callbacks
// must not block for long.
func (p *Pool) Convert(ctx context.Context, file convert.File, opts convert.Options, onProgress convert.ProgressFunc) (*convert.Result, error) {
	taskCtx, taskCancel := context.WithTimeout(ctx, p.taskTimeout)
	defer taskCancel()

	t := &workerTask{
		id:         uuid.NewString(),
		file:       file,
		opts:       opts,
		onProgress: onProgress,
		ctx:        taskCtx,
		resultCh:   make(chan taskOutcome, 1),
	}

	// Tie the task's lifetime to the pool as well, so Terminate aborts
	// running conversions.
	go func() {
		select {
		case <-p.ctx.Done():
			taskCancel()
		case <-taskCtx.Done():
		}
	}()

	select {
	case p.submitCh <- t:
	case <-p.ctx.Done():
		return nil, ErrTerminated
	case <-taskCtx.Done():
		return nil, p.waitError(ctx, taskCtx)
	}

	select {
	case out := <-t.resultCh:
		return out.result, out.err
	case <-taskCtx.Done():
		// Tell the dispatcher to drop the task. The worker running it, if
		// any, sees the cancelled context and aborts on its own.
		select {
		case p.msgCh <- message{kind: msgCancel, task: t}:
		case <-p.done:
		}
		return nil, p.waitError(ctx, taskCtx)
	}
}

// waitError translates a cancelled wait into the most specific error.
func (p *Pool) waitError(callerCtx, taskCtx context.Context) error {
	if p.ctx.Err() != nil {
		return ErrTerminated
	}
	if callerCtx.Err() != nil {
		return callerCtx.Err()
	}
	if errors.Is(taskCtx.Err(), context.DeadlineExceeded) {
		return ErrTaskTimeout
	}
	return taskCtx.Err()
}

// ConvertBatch fans out one conversion per file and waits for all of them.
// It fails if any file fails; callers wanting per-item isolation handle
// settlement themselves, as the batch manager does.
func (p *Pool) ConvertBatch(ctx context.Context, files []convert.File, opts convert.Options, onProgress convert.ProgressFunc) ([]*convert.Result, error) {
	results := make([]*convert.Result, len(files))
	errs := make([]error, len(files))
	var wg sync.WaitGroup
	for i, f := range files {
		wg.Add(1)
		go func(i int, f convert.File) {
			defer wg.Done()
			results[i], errs[i] = p.Convert(ctx, f, opts, onProgress)
		}(i, f)
	}
	wg.Wait()
	for i, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("convert %s: %w", files[i].Name, err)
		}
	}
	return results, nil
}

// Stats returns a snapshot of pool occupancy.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := Stats{
		TotalWorkers: len(p.instances),
		QueuedTasks:  len(p.queue),
		ActiveTasks:  len(p.active),
	}
	for _, w := range p.instances {
		if w.busy {
			s.BusyWorkers++
		}
	}
	return s
}

// Terminate tears down the pool. Running conversions are aborted through
// their contexts and every waiting caller receives ErrTerminated. The pool
// cannot be restarted.
func (p *Pool) Terminate() {
	p.termOnce.Do(func() {
		p.cancel()
		<-p.done
	})
}

// dispatch is the single orchestration loop. It is the only goroutine that
// mutates the instance list, the queue and the active set.
func (p *Pool) dispatch() {
	defer close(p.done)
	for {
		select {
		case <-p.ctx.Done():
			p.teardown()
			return
		case t := <-p.submitCh:
			p.mu.Lock()
			p.queue = append(p.queue, t)
			p.mu.Unlock()
			p.assign()
		case m := <-p.msgCh:
			p.handleMessage(m)
		}
	}
}

func (p *Pool) handleMessage(m message) {
	switch m.kind {
	case msgProgress:
		if !m.task.settled && m.task.onProgress != nil {
			m.task.onProgress(m.percent, m.stage)
		}
	case msgSuccess:
		p.finish(m.worker, m.task, taskOutcome{result: m.result})
	case msgFailure:
		p.finish(m.worker, m.task, taskOutcome{err: m.err})
	case msgCancel:
		p.dropTask(m.task)
	}
}

// finish marks the instance idle, settles the task and immediately hands
// the next queued task out. No instance stays idle while the queue is
// non-empty.
func (p *Pool) finish(w *workerInstance, t *workerTask, out taskOutcome) {
	p.mu.Lock()
	w.busy = false
	w.currentTaskID = ""
	delete(p.active, t.id)
	p.mu.Unlock()

	if !t.settled {
		t.settled = true
		t.resultCh <- out
	}
	p.assign()
}

// dropTask removes a task whose caller gave up waiting. If it is still
// queued it simply never runs; if it is assigned, the instance aborts via
// the task context and reports back on its own.
func (p *Pool) dropTask(t *workerTask) {
	t.settled = true
	p.mu.Lock()
	for i, qt := range p.queue {
		if qt.id == t.id {
			p.queue = append(p.queue[:i], p.queue[i+1:]...)
			break
		}
	}
	delete(p.active, t.id)
	p.mu.Unlock()
}

// assign pairs idle instances with queued tasks in submission order,
// growing the instance set lazily up to the cap.
func (p *Pool) assign() {
	for {
		p.mu.Lock()
		if len(p.queue) == 0 {
			p.mu.Unlock()
			return
		}
		w := p.idleInstanceLocked()
		if w == nil {
			if len(p.instances) < p.maxWorkers {
				w = p.spawnLocked()
			} else {
				p.mu.Unlock()
				return
			}
		}
		t := p.queue[0]
		p.queue = p.queue[1:]
		if t.settled || t.ctx.Err() != nil {
			p.mu.Unlock()
			continue
		}
		w.busy = true
		w.currentTaskID = t.id
		t.assigned = w
		p.active[t.id] = t
		p.mu.Unlock()

		w.inbox <- t
	}
}

func (p *Pool) idleInstanceLocked() *workerInstance {
	for _, w := range p.instances {
		if !w.busy {
			return w
		}
	}
	return nil
}

func (p *Pool) spawnLocked() *workerInstance {
	w := &workerInstance{
		id:    len(p.instances),
		inbox: make(chan *workerTask),
	}
	p.instances = append(p.instances, w)
	go p.runInstance(w)
	return w
}

// runInstance is one worker goroutine. A panic inside the conversion is
// treated as failure of the task the instance was running.
func (p *Pool) runInstance(w *workerInstance) {
	for {
		select {
		case <-p.ctx.Done():
			return
		case t := <-w.inbox:
			p.runTask(w, t)
		}
	}
}

func (p *Pool) runTask(w *workerInstance, t *workerTask) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("pool: worker %d panic: %v", w.id, r)
			p.send(message{kind: msgFailure, worker: w, task: t, err: fmt.Errorf("worker crashed: %v", r)})
		}
	}()

	progress := func(pct int, stage string) {
		p.send(message{kind: msgProgress, worker: w, task: t, percent: pct, stage: stage})
	}
	res, err := p.convertFn(t.ctx, t.file, t.opts, progress)
	if err != nil {
		p.send(message{kind: msgFailure, worker: w, task: t, err: err})
		return
	}
	p.send(message{kind: msgSuccess, worker: w, task: t, result: res})
}

func (p *Pool) send(m message) {
	select {
	case p.msgCh <- m:
	case <-p.ctx.Done():
	}
}

// teardown settles every queued and active task with ErrTerminated.
func (p *Pool) teardown() {
	p.mu.Lock()
	queued := p.queue
	p.queue = nil
	activeTasks := make([]*workerTask, 0, len(p.active))
	for _, t := range p.active {
		activeTasks = append(activeTasks, t)
	}
	p.active = make(map[string]*workerTask)
	for _, w := range p.instances {
		w.busy = false
		w.currentTaskID = ""
	}
	p.mu.Unlock()

	for _, t := range append(queued, activeTasks...) {
		if !t.settled {
			t.settled = true
			t.resultCh <- taskOutcome{err: ErrTerminated}
		}
	}
}
