package events

import (
	"context"
	"sync"
	"time"

	"storybook/internal/run"
)

// Event is one progress snapshot published for a run. Keepalive markers are
// synthesized by subscriptions and never stored.
type Event struct {
	Status            run.Status `json:"status"`
	Stage             run.Stage  `json:"stage"`
	ReadyMaxPage      int        `json:"ready_max_page"`
	ReadyMaxAudioPage int        `json:"ready_max_audio_page"`
	Error             string     `json:"error,omitempty"`
	Keepalive         bool       `json:"-"`
}

// Terminal reports whether the event carries an absorbing status.
func (e Event) Terminal() bool {
	return e.Status.Terminal()
}

// FromSnapshot builds the event payload for a run snapshot.
func FromSnapshot(snap run.Snapshot) Event {
	return Event{
		Status:            snap.Status,
		Stage:             snap.Stage,
		ReadyMaxPage:      snap.ReadyMaxPage,
		ReadyMaxAudioPage: snap.ReadyMaxAudioPage,
		Error:             snap.Error,
	}
}

// Bus fans run progress events out to subscribers. Each run has an ordered
// append-only event log; publishing appends and wakes waiters without ever
// blocking the publisher.
type Bus struct {
	keepalive time.Duration

	mu   sync.Mutex
	logs map[string]*runLog
}

type runLog struct {
	mu     sync.Mutex
	cond   *sync.Cond
	events []Event
}

func newRunLog() *runLog {
	l := &runLog{}
	l.cond = sync.NewCond(&l.mu)
	return l
}

// NewBus constructs an event bus. keepalive bounds how long a subscriber
// blocks before receiving a keepalive marker instead of an event.
func NewBus(keepalive time.Duration) *Bus {
	if keepalive <= 0 {
		keepalive = 30 * time.Second
	}
	return &Bus{
		keepalive: keepalive,
		logs:      make(map[string]*runLog),
	}
}

func (b *Bus) logFor(runID string) *runLog {
	b.mu.Lock()
	defer b.mu.Unlock()
	l, ok := b.logs[runID]
	if !ok {
		l = newRunLog()
		b.logs[runID] = l
	}
	return l
}

// Publish appends an event to the run's log. Never blocks.
func (b *Bus) Publish(runID string, evt Event) {
	l := b.logFor(runID)
	l.mu.Lock()
	l.events = append(l.events, evt)
	l.cond.Broadcast()
	l.mu.Unlock()
}

// Drop discards the event log for a run. Wired to store eviction so per-run
// state never outlives the run.
func (b *Bus) Drop(runID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.logs, runID)
}

// Subscribe opens an ordered event sequence for a run. The first Next call
// yields the provided snapshot so late subscribers see current progress; each
// following call yields events in publish order, starting with the first event
// published after Subscribe. The sequence ends after a terminal event.
func (b *Bus) Subscribe(runID string, snapshot Event) *Subscription {
	l := b.logFor(runID)
	l.mu.Lock()
	start := len(l.events)
	l.mu.Unlock()
	return &Subscription{
		log:       l,
		next:      start,
		snapshot:  snapshot,
		keepalive: b.keepalive,
	}
}

// Subscription is a single subscriber's cursor over a run's event log.
type Subscription struct {
	log       *runLog
	next      int
	snapshot  Event
	sent      bool
	done      bool
	keepalive time.Duration
}

// Next blocks for the next event. It returns a keepalive marker when the idle
// window elapses and the context error when ctx ends. The boolean is false
// once the stream has ended, after a terminal event was yielded.
func (s *Subscription) Next(ctx context.Context) (Event, bool, error) {
	if s.done {
		return Event{}, false, nil
	}
	if !s.sent {
		s.sent = true
		if s.snapshot.Terminal() {
			s.done = true
		}
		return s.snapshot, true, nil
	}

	deadline := time.Now().Add(s.keepalive)
	timer := time.AfterFunc(s.keepalive, func() {
		s.log.mu.Lock()
		s.log.cond.Broadcast()
		s.log.mu.Unlock()
	})
	defer timer.Stop()

	stopWatch := make(chan struct{})
	if ctx.Done() != nil {
		go func() {
			select {
			case <-ctx.Done():
				s.log.mu.Lock()
				s.log.cond.Broadcast()
				s.log.mu.Unlock()
			case <-stopWatch:
			}
		}()
	}
	defer close(stopWatch)

	s.log.mu.Lock()
	defer s.log.mu.Unlock()
	for {
		if s.next < len(s.log.events) {
			evt := s.log.events[s.next]
			s.next++
			if evt.Terminal() {
				s.done = true
			}
			return evt, true, nil
		}
		if err := ctx.Err(); err != nil {
			return Event{}, false, err
		}
		if !time.Now().Before(deadline) {
			return Event{Keepalive: true}, true, nil
		}
		s.log.cond.Wait()
	}
}
