// Package eventbus implements the typed pub/sub bus used for
// observability of the blackboard turn pipeline. It supports a synchronous
// mode (handlers run on the emitting goroutine) and an asynchronous mode
// (a single FIFO worker goroutine), with DialogueEventBus's handler/history
// semantics: every emitted event is retained in a bounded ring for replay.
package eventbus

import (
	"log/slog"
	"reflect"
	"sync"
	"time"
)

// Kind identifies the type of a dialogue event.
type Kind int

const (
	TurnStarted Kind = iota
	SourceContributed
	ProposalValidated
	ConflictResolved
	DecisionCommitted
	StateTransitioned
	ErrorOccurred

	numKinds
)

func (k Kind) String() string {
	switch k {
	case TurnStarted:
		return "TURN_STARTED"
	case SourceContributed:
		return "SOURCE_CONTRIBUTED"
	case ProposalValidated:
		return "PROPOSAL_VALIDATED"
	case ConflictResolved:
		return "CONFLICT_RESOLVED"
	case DecisionCommitted:
		return "DECISION_COMMITTED"
	case StateTransitioned:
		return "STATE_TRANSITIONED"
	case ErrorOccurred:
		return "ERROR_OCCURRED"
	default:
		return "UNKNOWN"
	}
}

// Event is one item published on the bus.
type Event struct {
	Kind       Kind
	Timestamp  time.Time
	TurnNumber int
	Data       map[string]any
}

// Handler processes one event.
type Handler func(Event)

// Bus publishes events to type-specific and global subscribers, with
// optional single-worker async delivery and a bounded history ring.
type Bus struct {
	mu             sync.Mutex
	handlers       [numKinds][]Handler
	globalHandlers []Handler
	history        []Event
	historySize    int
	logger         *slog.Logger

	asyncMode bool
	queue     chan Event
	done      chan struct{}
	wg        sync.WaitGroup
	stopped   bool
}

// Option configures a Bus at construction time.
type Option func(*Bus)

// WithAsync enables single-worker asynchronous delivery with the given
// queue capacity.
func WithAsync(queueCapacity int) Option {
	return func(b *Bus) {
		b.asyncMode = true
		if queueCapacity <= 0 {
			queueCapacity = 256
		}
		b.queue = make(chan Event, queueCapacity)
	}
}

// WithHistorySize overrides the default ring-buffer size (100).
func WithHistorySize(n int) Option {
	return func(b *Bus) { b.historySize = n }
}

// WithLogger overrides the bus's structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bus) { b.logger = logger }
}

// New constructs a Bus and, if WithAsync was supplied, starts its worker.
func New(opts ...Option) *Bus {
	b := &Bus{
		historySize: 100,
		logger:      slog.Default(),
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.asyncMode {
		b.startWorker()
	}
	return b
}

// Subscribe registers a handler for one event kind.
func (b *Bus) Subscribe(kind Kind, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[kind] = append(b.handlers[kind], handler)
}

// SubscribeAll registers a handler that observes every event kind.
func (b *Bus) SubscribeAll(handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.globalHandlers = append(b.globalHandlers, handler)
}

// Unsubscribe removes a handler previously registered via Subscribe for
// kind. A no-op if handler was never registered for that kind.
func (b *Bus) Unsubscribe(kind Kind, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[kind] = removeHandler(b.handlers[kind], handler)
}

// UnsubscribeAll removes a handler previously registered via SubscribeAll.
func (b *Bus) UnsubscribeAll(handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.globalHandlers = removeHandler(b.globalHandlers, handler)
}

// removeHandler drops the first handler in handlers matching target by
// function identity (func values aren't comparable with ==).
func removeHandler(handlers []Handler, target Handler) []Handler {
	targetPtr := reflect.ValueOf(target).Pointer()
	for i, h := range handlers {
		if reflect.ValueOf(h).Pointer() == targetPtr {
			return append(handlers[:i], handlers[i+1:]...)
		}
	}
	return handlers
}

// Emit publishes an event. It always appends to history synchronously, then
// either dispatches to handlers inline (sync mode) or queues for the worker
// (async mode). After Stop, Emit is a no-op.
func (b *Bus) Emit(event Event) {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return
	}
	b.history = append(b.history, event)
	if len(b.history) > b.historySize {
		b.history = b.history[len(b.history)-b.historySize:]
	}
	async := b.asyncMode
	b.mu.Unlock()

	if async {
		b.queue <- event
		return
	}
	b.process(event)
}

func (b *Bus) process(event Event) {
	b.mu.Lock()
	handlers := append([]Handler(nil), b.handlers[event.Kind]...)
	global := append([]Handler(nil), b.globalHandlers...)
	b.mu.Unlock()

	for _, h := range handlers {
		b.safeCall(h, event)
	}
	for _, h := range global {
		b.safeCall(h, event)
	}
}

func (b *Bus) safeCall(h Handler, event Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked", "event_kind", event.Kind.String(), "panic", r)
		}
	}()
	h(event)
}

func (b *Bus) startWorker() {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for {
			select {
			case event := <-b.queue:
				b.process(event)
			case <-b.done:
				// Drain anything already queued before exiting.
				for {
					select {
					case event := <-b.queue:
						b.process(event)
					default:
						return
					}
				}
			}
		}
	}()
}

// Stop drains and terminates the async worker within the given timeout; in
// sync mode there is no worker to drain. In either mode, after Stop returns,
// Emit becomes a no-op.
func (b *Bus) Stop(timeout time.Duration) {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return
	}
	b.stopped = true
	b.mu.Unlock()

	if !b.asyncMode {
		return
	}
	close(b.done)

	waitDone := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(waitDone)
	}()
	select {
	case <-waitDone:
	case <-time.After(timeout):
		b.logger.Warn("event bus worker did not stop within timeout")
	}
}

// GetHistory returns up to limit recent events, optionally filtered by kind,
// most recent last.
func (b *Bus) GetHistory(kind *Kind, limit int) []Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	var filtered []Event
	if kind == nil {
		filtered = b.history
	} else {
		for _, e := range b.history {
			if e.Kind == *kind {
				filtered = append(filtered, e)
			}
		}
	}
	if limit <= 0 || limit >= len(filtered) {
		return append([]Event(nil), filtered...)
	}
	return append([]Event(nil), filtered[len(filtered)-limit:]...)
}

// ClearHistory empties the history ring.
func (b *Bus) ClearHistory() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.history = nil
}
