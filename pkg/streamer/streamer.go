// Package streamer defines the pluggable pipeline contract every stage of
// the toolkit implements: a named node that owns sinks keyed by name,
// processes MediaPackets, accepts keyed string options, and reports events
// through a single callback.
package streamer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ethan/streamkit/pkg/packet"
	"github.com/google/uuid"
)

// ErrUnknownOption is returned by AddOption when the key is not present in
// the stage's declared defaults.
var ErrUnknownOption = errors.New("streamer: unknown option")

// EventType names the event categories a Reporter receives.
type EventType string

const (
	EventHandshake     EventType = "event"
	EventError         EventType = "error"
	EventVideoStatics  EventType = "video_statics"
	EventAudioStatics  EventType = "audio_statics"
)

// Common event values delivered with EventHandshake.
const (
	ValueHandshake = "handshake"
	ValuePublish   = "publish"
	ValueClose     = "close"
)

// Statics is the JSON-object payload carried by video_statics/audio_statics
// reporter events.
type Statics struct {
	Kbps       float64 `json:"kbps"`
	Pps        float64 `json:"pps"`
	RTTMs      float64 `json:"rtt"`
	JitterMs   float64 `json:"jitter"`
	Lost       int64   `json:"lost"`
	ResendTot  int64   `json:"resend total"`
	ResendPps  float64 `json:"resend pps"`
}

// Reporter receives events from a streamer: (streamer name, event type,
// value). value is free-form: a string description for EventError, one of
// the Value* constants for EventHandshake, or a *Statics for the statics
// events.
type Reporter func(streamerName string, eventType EventType, value any)

// EventLoop is the cooperative scheduling handle a streamer either owns (it
// runs its own goroutine servicing Submit) or borrows from its caller: a
// goroutine plus a lock-protected work queue standing in for a
// caller-supplied loop or a dedicated OS thread.
type EventLoop struct {
	mu    sync.Mutex
	tasks []func()
	wake  chan struct{}
	done  chan struct{}
}

// NewEventLoop starts an EventLoop running its own goroutine.
func NewEventLoop() *EventLoop {
	l := &EventLoop{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go l.run()
	return l
}

// Submit enqueues fn to run on the loop's goroutine.
func (l *EventLoop) Submit(fn func()) {
	l.mu.Lock()
	l.tasks = append(l.tasks, fn)
	l.mu.Unlock()
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Stop terminates the loop's goroutine after draining pending tasks.
func (l *EventLoop) Stop() {
	close(l.done)
}

func (l *EventLoop) run() {
	for {
		select {
		case <-l.done:
			l.drain()
			return
		case <-l.wake:
			l.drain()
		}
	}
}

func (l *EventLoop) drain() {
	for {
		l.mu.Lock()
		if len(l.tasks) == 0 {
			l.mu.Unlock()
			return
		}
		task := l.tasks[0]
		l.tasks = l.tasks[1:]
		l.mu.Unlock()
		task()
	}
}

// Streamer is the contract every pipeline stage implements.
type Streamer interface {
	// Name is the stable unique identifier assigned at construction.
	Name() string

	// AddSink inserts s into the sink map keyed by s.Name(); idempotent.
	AddSink(s Streamer)

	// RemoveSink removes the mapping for name; a no-op if absent.
	RemoveSink(name string)

	// SourceData processes an owned packet, emitting zero or more packets
	// to each registered sink.
	SourceData(pkt *packet.MediaPacket) error

	// StartNetwork begins I/O against url. If loop is nil the stage owns
	// an internal EventLoop.
	StartNetwork(ctx context.Context, url string, loop *EventLoop) error

	// AddOption sets a keyed string option; only keys present in the
	// stage's declared defaults are accepted.
	AddOption(key, value string) error

	// SetReporter installs the async event sink.
	SetReporter(r Reporter)
}

// Base provides the sink map, option validation, and reporter plumbing
// shared by every concrete Streamer, so stage implementations only need to
// embed it and implement SourceData/StartNetwork.
type Base struct {
	name        string
	mu          sync.RWMutex
	sinks       map[string]Streamer
	options     map[string]string
	defaults    map[string]string
	reporter    Reporter
}

// NewBase constructs a Base with a stable name of "<kind>-<uuid>" (a base
// string plus a UUID suffix) and the stage's declared option defaults.
func NewBase(kind string, defaults map[string]string) *Base {
	d := make(map[string]string, len(defaults))
	for k, v := range defaults {
		d[k] = v
	}
	return &Base{
		name:     fmt.Sprintf("%s-%s", kind, uuid.NewString()),
		sinks:    make(map[string]Streamer),
		options:  make(map[string]string),
		defaults: d,
	}
}

func (b *Base) Name() string { return b.name }

func (b *Base) AddSink(s Streamer) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sinks[s.Name()] = s
}

func (b *Base) RemoveSink(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.sinks, name)
}

// Sinks returns a snapshot of the current sink set, safe to range over
// without holding Base's lock.
func (b *Base) Sinks() []Streamer {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Streamer, 0, len(b.sinks))
	for _, s := range b.sinks {
		out = append(out, s)
	}
	return out
}

// Emit calls SourceData(pkt) on every registered sink, collecting (but not
// stopping on) the first error.
func (b *Base) Emit(pkt *packet.MediaPacket) error {
	var firstErr error
	for _, s := range b.Sinks() {
		if err := s.SourceData(pkt); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (b *Base) AddOption(key, value string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.defaults[key]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownOption, key)
	}
	b.options[key] = value
	return nil
}

// Option returns the current value for key, falling back to the declared
// default if it was never overridden by AddOption.
func (b *Base) Option(key string) string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if v, ok := b.options[key]; ok {
		return v
	}
	return b.defaults[key]
}

func (b *Base) SetReporter(r Reporter) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reporter = r
}

// Report delivers an event through the installed reporter, if any.
func (b *Base) Report(eventType EventType, value any) {
	b.mu.RLock()
	r := b.reporter
	b.mu.RUnlock()
	if r != nil {
		r(b.name, eventType, value)
	}
}
