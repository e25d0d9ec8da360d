// ABOUTME: Timestamp-based playback scheduler: buffers presented no earlier
// ABOUTME: or later than the clock filter's notion of "now" allows
package playerclient

import (
	"container/heap"
	"context"
	"log"
	"sync"
	"time"

	"github.com/resonateaudio/resonate-core/internal/audio"
	"github.com/resonateaudio/resonate-core/internal/clocksync"
)

// SchedulerStats tracks scheduler throughput for diagnostics.
type SchedulerStats struct {
	Received int64
	Played   int64
	Dropped  int64
}

// Scheduler orders decoded buffers by their resolved local play time and
// releases them onto Output() as that time arrives, dropping anything that
// arrives more than lateWindow behind.
type Scheduler struct {
	clock  *clocksync.Filter
	output chan audio.Buffer
	ctx    context.Context
	cancel context.CancelFunc
	logger *log.Logger

	earlyWindow time.Duration
	lateWindow  time.Duration

	mu    sync.Mutex // guards queue and stats; Schedule runs on the reader goroutine, release on Run's
	queue *bufferHeap
	stats SchedulerStats
}

const (
	tickInterval       = 10 * time.Millisecond
	defaultEarlyWindow = 50 * time.Millisecond
	defaultLateWindow  = 50 * time.Millisecond
)

// NewScheduler constructs a Scheduler bound to clock, an already-running
// clocksync.Filter whose Snapshot resolves server microseconds to local
// wall-clock deadlines.
func NewScheduler(clock *clocksync.Filter, logger *log.Logger) *Scheduler {
	if logger == nil {
		logger = log.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		clock:       clock,
		queue:       newBufferHeap(),
		output:      make(chan audio.Buffer, 16),
		ctx:         ctx,
		cancel:      cancel,
		logger:      logger,
		earlyWindow: defaultEarlyWindow,
		lateWindow:  defaultLateWindow,
	}
}

// Schedule resolves buf's server timestamp to a local deadline via the clock
// filter's current snapshot and enqueues it in presentation-time order.
func (s *Scheduler) Schedule(buf audio.Buffer) {
	buf.PlayAt = s.clock.Snapshot().ServerToLocal(buf.Timestamp)
	s.mu.Lock()
	s.stats.Received++
	heap.Push(s.queue, buf)
	s.mu.Unlock()
}

// Run drives the release loop; call in its own goroutine.
func (s *Scheduler) Run() {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.release()
		}
	}
}

func (s *Scheduler) release() {
	now := time.Now()
	for {
		s.mu.Lock()
		if s.queue.Len() == 0 {
			s.mu.Unlock()
			return
		}
		buf := s.queue.items[0]
		delay := buf.PlayAt.Sub(now)
		if delay > s.earlyWindow {
			s.mu.Unlock()
			return
		}
		heap.Pop(s.queue)
		if delay < -s.lateWindow {
			s.stats.Dropped++
			s.mu.Unlock()
			s.logger.Printf("playerclient: dropped buffer %v late", -delay)
			continue
		}
		s.mu.Unlock()

		select {
		case s.output <- buf:
			s.mu.Lock()
			s.stats.Played++
			s.mu.Unlock()
		case <-s.ctx.Done():
			return
		}
	}
}

// Output is the release channel the player reads from to feed its audio
// output device.
func (s *Scheduler) Output() <-chan audio.Buffer { return s.output }

// Stats reports current throughput counters.
func (s *Scheduler) Stats() SchedulerStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Stop halts the release loop.
func (s *Scheduler) Stop() { s.cancel() }

// bufferHeap is a min-heap of audio.Buffer ordered by PlayAt.
type bufferHeap struct {
	items []audio.Buffer
}

func newBufferHeap() *bufferHeap {
	h := &bufferHeap{}
	heap.Init(h)
	return h
}

func (h *bufferHeap) Len() int { return len(h.items) }
func (h *bufferHeap) Less(i, j int) bool {
	return h.items[i].PlayAt.Before(h.items[j].PlayAt)
}
func (h *bufferHeap) Swap(i, j int) { h.items[i], h.items[j] = h.items[j], h.items[i] }
func (h *bufferHeap) Push(x interface{}) {
	h.items = append(h.items, x.(audio.Buffer))
}
func (h *bufferHeap) Pop() interface{} {
	n := len(h.items)
	item := h.items[n-1]
	h.items = h.items[:n-1]
	return item
}
