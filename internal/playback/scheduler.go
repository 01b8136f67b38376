// Package playback turns decoded model audio into gapless, order-preserving
// output.
//
// [Scheduler] is the jitter buffer: each enqueued frame is assigned an absolute
// start time on the output device's clock, start = max(now, nextPlayTime), and
// nextPlayTime advances to start + duration. [Player] drives a [Scheduler]
// against a real [audio.OutputStream].
package playback

import (
	"sync"
	"time"

	"github.com/alakbarr/Interview-Matrix/pkg/audio"
)

// Clock reports the playback clock. [audio.OutputStream] satisfies it.
type Clock interface {
	Now() time.Duration
}

// Entry is a frame with its scheduled window [Start, End).
type Entry struct {
	Seq   uint64
	Frame audio.AudioFrame
	Start time.Duration
	End   time.Duration
}

// Plan computes start times for frames of the given durations, beginning at
// clock time now with the previous schedule ending at next. It returns the
// start of each frame and the new next-play time. Plan is pure: Scheduler
// applies the same rule one frame at a time.
func Plan(now, next time.Duration, durations []time.Duration) ([]time.Duration, time.Duration) {
	starts := make([]time.Duration, len(durations))
	for i, d := range durations {
		start := max(now, next)
		starts[i] = start
		next = start + d
	}
	return starts, next
}

// Scheduler is a FIFO of scheduled frames. It is safe for concurrent use.
type Scheduler struct {
	clock Clock

	mu    sync.Mutex
	next  time.Duration
	queue []Entry
	seq   uint64
}

// NewScheduler returns an empty scheduler reading time from clock.
func NewScheduler(clock Clock) *Scheduler {
	return &Scheduler{clock: clock}
}

// Enqueue appends frame and returns its scheduled window. A frame enqueued
// while nothing is scheduled starts at the current clock time.
func (s *Scheduler) Enqueue(frame audio.AudioFrame) Entry {
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	starts, next := Plan(now, s.next, []time.Duration{frame.Duration()})
	s.seq++
	e := Entry{Seq: s.seq, Frame: frame, Start: starts[0], End: next}
	s.next = next
	s.queue = append(s.queue, e)
	return e
}

// PopDue removes and returns, in order, every entry whose start time is at or
// before horizon.
func (s *Scheduler) PopDue(horizon time.Duration) []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for n < len(s.queue) && s.queue[n].Start <= horizon {
		n++
	}
	if n == 0 {
		return nil
	}
	due := make([]Entry, n)
	copy(due, s.queue[:n])
	s.queue = s.queue[n:]
	return due
}

// Pending returns the number of entries not yet popped.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// NextPlayTime returns the end of the last scheduled frame.
func (s *Scheduler) NextPlayTime() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next
}

// Reset discards every pending entry and rewinds the schedule so the next
// frame starts at the clock's current time. It returns how many entries were
// discarded.
func (s *Scheduler) Reset() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.queue)
	s.queue = nil
	s.next = 0
	return n
}
