package batch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"pixelbatch/internal/convert"
	"pixelbatch/internal/pool"
)

// Status is the state machine of one batch item:
// pending -> processing -> complete | error. Failed items stay failed;
// there are no retries through this path.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusComplete   Status = "complete"
	StatusError      Status = "error"
)

// ErrBatchInProgress is returned by StartBatch while a previous run on the
// same manager is still active.
var ErrBatchInProgress = errors.New("batch already in progress")

// ErrNothingToArchive is returned by Archive when no item has completed.
var ErrNothingToArchive = errors.New("no completed conversions to archive")

// Item is the mutable per-file record of a batch. Only the manager mutates
// it, in response to pool events.
type Item struct {
	ID        string          `json:"id"`
	File      convert.File    `json:"-"`
	FileName  string          `json:"file_name"`
	FileSize  int64           `json:"file_size"`
	Options   convert.Options `json:"options"`
	Status    Status          `json:"status"`
	Progress  int             `json:"progress"`
	Stage     string          `json:"stage"`
	Result    *convert.Result `json:"-"`
	Error     string          `json:"error,omitempty"`
	StartTime time.Time       `json:"start_time"`
	EndTime   time.Time       `json:"end_time"`
}

// Stats is a derived snapshot of batch progress. Throughput only counts
// items with both timestamps recorded; when none exist yet the estimate is
// zero, which callers must read as "unknown", not "instant".
type Stats struct {
	Total          int     `json:"total"`
	Pending        int     `json:"pending"`
	Processing     int     `json:"processing"`
	Complete       int     `json:"complete"`
	Errored        int     `json:"errored"`
	TotalBytes     int64   `json:"total_bytes"`
	ProcessedBytes int64   `json:"processed_bytes"`
	AverageSpeed   float64 `json:"average_speed"` // source bytes per second

	EstimatedTimeRemaining time.Duration `json:"estimated_time_remaining"`
}

// ProgressFunc receives the changed item plus a stats snapshot after every
// status or progress transition on any item.
type ProgressFunc func(item Item, stats Stats)

// Recorder receives settled items for journaling. The history package
// implements it; a nil recorder disables journaling.
type Recorder interface {
	Record(item Item)
}

// Manager drives a set of files through the pool and aggregates progress.
// One manager runs at most one batch at a time.
type Manager struct {
	pool     *pool.Pool
	recorder Recorder

	mu      sync.Mutex
	items   []*Item
	byID    map[string]*Item
	running bool
}

// NewManager creates a batch manager on top of an existing pool.
func NewManager(p *pool.Pool, recorder Recorder) *Manager {
	return &Manager{
		pool:     p,
		recorder: recorder,
		byID:     make(map[string]*Item),
	}
}

// AddFiles creates one pending item per file and returns their ids. Each
// item gets its own copy of options so items can never couple through a
// shared reference.
func (m *Manager) AddFiles(files []convert.File, options convert.Options) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, len(files))
	for _, f := range files {
		item := &Item{
			ID:       uuid.NewString(),
			File:     f,
			FileName: f.Name,
			FileSize: f.Size(),
			Options:  options,
			Status:   StatusPending,
		}
		m.items = append(m.items, item)
		m.byID[item.ID] = item
		ids = append(ids, item.ID)
	}
	return ids
}

// RemoveItem drops an item from the batch. It refuses while the item is
// processing; in-flight conversions are not cancellable through this path.
func (m *Manager) RemoveItem(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.byID[id]
	if !ok || item.Status == StatusProcessing {
		return false
	}
	delete(m.byID, id)
	for i, it := range m.items {
		if it.ID == id {
			m.items = append(m.items[:i], m.items[i+1:]...)
			break
		}
	}
	return true
}

// Item returns a copy of one item.
func (m *Manager) Item(id string) (Item, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.byID[id]
	if !ok {
		return Item{}, false
	}
	return *item, true
}

// Items returns a copy of every item in insertion order.
func (m *Manager) Items() []Item {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Item, len(m.items))
	for i, it := range m.items {
		out[i] = *it
	}
	return out
}

// Running reports whether a batch run is currently active.
func (m *Manager) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// StartBatch converts every pending item concurrently and returns once all
// of them have settled. Individual failures are isolated to their items;
// the call itself only fails when a run is already active.
func (m *Manager) StartBatch(ctx context.Context, onProgress ProgressFunc) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return ErrBatchInProgress
	}
	m.running = true
	pending := make([]*Item, 0, len(m.items))
	for _, it := range m.items {
		if it.Status == StatusPending {
			pending = append(pending, it)
		}
	}
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, item := range pending {
		wg.Add(1)
		go func(item *Item) {
			defer wg.Done()
			m.runItem(ctx, item, onProgress)
		}(item)
	}
	wg.Wait()

	m.mu.Lock()
	m.running = false
	m.mu.Unlock()
	return nil
}

func (m *Manager) runItem(ctx context.Context, item *Item, onProgress ProgressFunc) {
	m.mu.Lock()
	item.Status = StatusProcessing
	item.Stage = "queued"
	item.StartTime = time.Now()
	m.mu.Unlock()
	m.notify(item, onProgress)

	itemProgress := func(pct int, stage string) {
		m.mu.Lock()
		if item.Status != StatusProcessing {
			m.mu.Unlock()
			return
		}
		item.Progress = pct
		item.Stage = stage
		m.mu.Unlock()
		m.notify(item, onProgress)
	}

	res, err := m.pool.Convert(ctx, item.File, item.Options, itemProgress)

	m.mu.Lock()
	item.EndTime = time.Now()
	if err != nil {
		item.Status = StatusError
		item.Error = err.Error()
		item.Result = nil
	} else {
		item.Status = StatusComplete
		item.Progress = 100
		item.Stage = "done"
		item.Result = res
		item.Error = ""
	}
	m.mu.Unlock()
	m.notify(item, onProgress)

	if m.recorder != nil {
		settled, _ := m.Item(item.ID)
		m.recorder.Record(settled)
	}
}

func (m *Manager) notify(item *Item, onProgress ProgressFunc) {
	if onProgress == nil {
		return
	}
	m.mu.Lock()
	snapshot := *item
	stats := m.statsLocked()
	m.mu.Unlock()
	onProgress(snapshot, stats)
}

// Stats returns a derived snapshot of the whole batch.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statsLocked()
}

func (m *Manager) statsLocked() Stats {
	var s Stats
	var remainingBytes int64
	var completedSeconds float64

	for _, it := range m.items {
		s.Total++
		s.TotalBytes += it.FileSize
		switch it.Status {
		case StatusPending:
			s.Pending++
			remainingBytes += it.FileSize
		case StatusProcessing:
			s.Processing++
			remainingBytes += it.FileSize
		case StatusComplete:
			s.Complete++
			s.ProcessedBytes += it.FileSize
			if !it.StartTime.IsZero() && !it.EndTime.IsZero() {
				completedSeconds += it.EndTime.Sub(it.StartTime).Seconds()
			}
		case StatusError:
			s.Errored++
		}
	}

	if completedSeconds > 0 {
		s.AverageSpeed = float64(s.ProcessedBytes) / completedSeconds
	}
	if s.AverageSpeed > 0 {
		s.EstimatedTimeRemaining = time.Duration(float64(remainingBytes) / s.AverageSpeed * float64(time.Second))
	}
	return s
}
