package attachment

import (
	"log/slog"
	"sync"

	"github.com/emirpasic/gods/queues/priorityqueue"
	"github.com/emirpasic/gods/utils"
)

// Priority orders pending loads; higher runs first.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
)

type job struct {
	handle   *Handle
	priority Priority
	seq      uint64
}

// byPriority puts higher priorities first and keeps submission order within
// one priority.
func byPriority(a, b interface{}) int {
	ja, jb := a.(*job), b.(*job)
	if ja.priority != jb.priority {
		return int(jb.priority) - int(ja.priority)
	}
	return utils.UInt64Comparator(ja.seq, jb.seq)
}

// Loader runs scheduled handle loads on a fixed set of workers.
type Loader struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  *priorityqueue.Queue
	seq    uint64
	closed bool
	wg     sync.WaitGroup
	logger *slog.Logger
}

// NewLoader starts workers goroutines. workers below 1 is treated as 1.
func NewLoader(workers int, logger *slog.Logger) *Loader {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}

	l := &Loader{
		queue:  priorityqueue.NewWith(byPriority),
		logger: logger,
	}
	l.cond = sync.NewCond(&l.mu)

	for i := 0; i < workers; i++ {
		l.wg.Add(1)
		go l.worker()
	}

	return l
}

// Schedule queues the handle. Scheduling on a closed loader cancels it.
func (l *Loader) Schedule(h *Handle, priority Priority) {
	h.scheduled.Store(true)

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		h.Cancel()
		return
	}
	l.seq++
	l.queue.Enqueue(&job{handle: h, priority: priority, seq: l.seq})
	l.mu.Unlock()

	l.cond.Signal()
}

// Pending returns the number of queued, not yet started loads.
func (l *Loader) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.queue.Size()
}

// Close stops the workers after their current load and cancels everything
// still queued.
func (l *Loader) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	var pending []*Handle
	for !l.queue.Empty() {
		v, _ := l.queue.Dequeue()
		pending = append(pending, v.(*job).handle)
	}
	l.mu.Unlock()

	l.cond.Broadcast()
	for _, h := range pending {
		h.Cancel()
	}
	l.wg.Wait()
}

func (l *Loader) worker() {
	defer l.wg.Done()

	for {
		l.mu.Lock()
		for l.queue.Empty() && !l.closed {
			l.cond.Wait()
		}
		if l.closed {
			l.mu.Unlock()
			return
		}
		v, _ := l.queue.Dequeue()
		l.mu.Unlock()

		j := v.(*job)
		j.handle.run()
		if j.handle.err != nil && j.handle.err != ErrCancelled {
			l.logger.Warn("attachment load failed", "id", j.handle.ID, "error", j.handle.err)
		}
	}
}
