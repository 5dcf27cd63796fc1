package jobs

import (
	"bytes"
	"log/slog"
	"runtime"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"transmute/internal/logging"
)

// EventType names a job or batch notification.
type EventType string

const (
	EventStarted        EventType = "started"
	EventProgress       EventType = "progress"
	EventCompleted      EventType = "completed"
	EventFailed         EventType = "failed"
	EventCancelled      EventType = "cancelled"
	EventBatchProgress  EventType = "batch_progress"
	EventBatchCompleted EventType = "batch_completed"
)

// AllJobs subscribes to every job and batch event.
const AllJobs = "*"

// Event carries a snapshot of the job or batch it concerns.
type Event struct {
	Type  EventType `json:"type"`
	Time  time.Time `json:"time"`
	Job   *Job      `json:"job,omitempty"`
	Batch *Batch    `json:"batch,omitempty"`
}

// Terminal reports whether the event ends a job.
func (e Event) Terminal() bool {
	switch e.Type {
	case EventCompleted, EventFailed, EventCancelled:
		return true
	default:
		return false
	}
}

// Subscription is the handle returned by Subscribe.
type Subscription struct {
	id     uint64
	Target string
}

// hub fans events out to subscribers. Every subscriber has its own queue and
// goroutine, so a slow or panicking callback never blocks a pipeline and
// events for one job reach each subscriber in publication order.
type hub struct {
	logger *slog.Logger

	mu     sync.Mutex
	nextID uint64
	subs   map[uint64]*subscriber
	closed bool
}

func newHub(logger *slog.Logger) *hub {
	return &hub{logger: logger, subs: make(map[uint64]*subscriber)}
}

func (h *hub) subscribe(target string, fn func(Event)) Subscription {
	if target == "" {
		target = AllJobs
	}
	s := &subscriber{
		target: target,
		fn:     fn,
		signal: make(chan struct{}, 1),
		quit:   make(chan struct{}),
		drain:  make(chan struct{}),
		exited: make(chan struct{}),
	}
	h.mu.Lock()
	if h.closed || fn == nil {
		h.mu.Unlock()
		return Subscription{Target: target}
	}
	h.nextID++
	id := h.nextID
	h.subs[id] = s
	h.mu.Unlock()

	go s.loop(h.logger)
	return Subscription{id: id, Target: target}
}

func (h *hub) unsubscribe(sub Subscription) bool {
	h.mu.Lock()
	s, ok := h.subs[sub.id]
	delete(h.subs, sub.id)
	h.mu.Unlock()
	if !ok {
		return false
	}
	s.stop()
	if !s.inCallback() {
		<-s.exited
	}
	return true
}

// publish queues ev for wildcard subscribers and subscribers of any key.
func (h *hub) publish(ev Event, keys ...string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	for _, s := range h.subs {
		if s.target == AllJobs || slices.Contains(keys, s.target) {
			s.enqueue(ev)
		}
	}
}

// close delivers queued events, stops every subscriber and waits for their
// goroutines to return.
func (h *hub) close() {
	h.mu.Lock()
	h.closed = true
	subs := h.subs
	h.subs = make(map[uint64]*subscriber)
	h.mu.Unlock()
	for _, s := range subs {
		s.finish()
	}
	for _, s := range subs {
		<-s.exited
	}
}

type subscriber struct {
	target string
	fn     func(Event)

	mu    sync.Mutex
	queue []Event

	signal    chan struct{}
	quit      chan struct{}
	drain     chan struct{}
	exited    chan struct{}
	stopOnce  sync.Once
	drainOnce sync.Once

	// goroutine running loop, so Unsubscribe from inside fn does not wait
	// on itself.
	gid atomic.Uint64
}

func (s *subscriber) enqueue(ev Event) {
	s.mu.Lock()
	s.queue = append(s.queue, ev)
	s.mu.Unlock()
	select {
	case s.signal <- struct{}{}:
	default:
	}
}

func (s *subscriber) stop() {
	s.stopOnce.Do(func() { close(s.quit) })
}

func (s *subscriber) finish() {
	s.drainOnce.Do(func() { close(s.drain) })
}

// inCallback reports whether the caller is the subscriber's own goroutine.
func (s *subscriber) inCallback() bool {
	id := s.gid.Load()
	return id != 0 && id == goroutineID()
}

func (s *subscriber) loop(logger *slog.Logger) {
	defer close(s.exited)
	s.gid.Store(goroutineID())
	for {
		draining := false
		select {
		case <-s.quit:
			return
		case <-s.signal:
		case <-s.drain:
			draining = true
		}
		for {
			select {
			case <-s.quit:
				return
			default:
			}
			ev, ok := s.next()
			if !ok {
				break
			}
			s.deliver(ev, logger)
		}
		if draining {
			return
		}
	}
}

// goroutineID parses the id from the "goroutine N [" stack header.
func goroutineID() uint64 {
	var buf [64]byte
	b := buf[:runtime.Stack(buf[:], false)]
	b = bytes.TrimPrefix(b, []byte("goroutine "))
	if i := bytes.IndexByte(b, ' '); i > 0 {
		b = b[:i]
	}
	id, _ := strconv.ParseUint(string(b), 10, 64)
	return id
}

func (s *subscriber) next() (Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return Event{}, false
	}
	ev := s.queue[0]
	s.queue[0] = Event{}
	s.queue = s.queue[1:]
	return ev, true
}

func (s *subscriber) deliver(ev Event, logger *slog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Warn("event subscriber panicked; event dropped",
				logging.String(logging.FieldEventType, "subscriber_panic"),
				logging.String("event", string(ev.Type)),
				logging.Any("panic", r),
				logging.String(logging.FieldImpact, "subscriber missed one event"),
			)
		}
	}()
	s.fn(ev)
}
