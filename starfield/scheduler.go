package starfield

import (
	"sync"
	"time"
)

// FrameID identifies a pending frame request. Zero is never issued.
type FrameID uint64

// FrameFunc receives the frame timestamp in milliseconds
type FrameFunc func(ts float64)

// Scheduler hands out animation frames. Callbacks never run inside RequestFrame.
type Scheduler interface {
	RequestFrame(fn FrameFunc) FrameID
	CancelFrame(id FrameID)
}

type frameQueue struct {
	mu      sync.Mutex
	next    FrameID
	pending map[FrameID]FrameFunc
	order   []FrameID
}

func (q *frameQueue) request(fn FrameFunc) FrameID {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.pending == nil {
		q.pending = make(map[FrameID]FrameFunc)
	}
	q.next++
	q.pending[q.next] = fn
	q.order = append(q.order, q.next)
	return q.next
}

func (q *frameQueue) cancel(id FrameID) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.pending, id)
}

// take removes and returns the callbacks pending right now, oldest first
func (q *frameQueue) take() []FrameFunc {
	q.mu.Lock()
	defer q.mu.Unlock()

	fns := make([]FrameFunc, 0, len(q.pending))
	for _, id := range q.order {
		if fn, ok := q.pending[id]; ok {
			fns = append(fns, fn)
		}
	}
	q.pending = make(map[FrameID]FrameFunc)
	q.order = q.order[:0]
	return fns
}

func (q *frameQueue) size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// ManualScheduler runs frames only when Step is called
type ManualScheduler struct {
	queue frameQueue
}

func NewManualScheduler() *ManualScheduler {
	return &ManualScheduler{}
}

func (s *ManualScheduler) RequestFrame(fn FrameFunc) FrameID {
	return s.queue.request(fn)
}

func (s *ManualScheduler) CancelFrame(id FrameID) {
	s.queue.cancel(id)
}

// Step runs every callback pending before the call. Frames requested by
// those callbacks wait for the next Step.
func (s *ManualScheduler) Step(ts float64) int {
	fns := s.queue.take()
	for _, fn := range fns {
		fn(ts)
	}
	return len(fns)
}

// Pending counts frames waiting for the next Step
func (s *ManualScheduler) Pending() int {
	return s.queue.size()
}

// LoopScheduler runs frames on its own goroutine at a fixed rate
type LoopScheduler struct {
	queue frameQueue
	start time.Time
	done  chan struct{}
	once  sync.Once
}

func NewLoopScheduler(interval time.Duration) *LoopScheduler {
	s := &LoopScheduler{
		start: time.Now(),
		done:  make(chan struct{}),
	}
	go s.loop(interval)
	return s
}

func (s *LoopScheduler) loop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case now := <-ticker.C:
			ts := float64(now.Sub(s.start).Microseconds()) / 1000
			for _, fn := range s.queue.take() {
				fn(ts)
			}
		}
	}
}

func (s *LoopScheduler) RequestFrame(fn FrameFunc) FrameID {
	return s.queue.request(fn)
}

func (s *LoopScheduler) CancelFrame(id FrameID) {
	s.queue.cancel(id)
}

// Close stops the loop. Pending frames never run.
func (s *LoopScheduler) Close() {
	s.once.Do(func() { close(s.done) })
}
