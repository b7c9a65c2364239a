// Package poller drives a server-side animation job to a terminal state by
// querying its status on a fixed interval. One watch produces exactly one
// terminal event, then closes its channel — even when a cancel races with a
// status response already in flight.
package poller

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"manimate/internal/api"
)

// DefaultInterval is the delay between consecutive status calls.
const DefaultInterval = 2 * time.Second

// StatusClient is the slice of the job client the poller needs.
type StatusClient interface {
	Status(ctx context.Context, jobID string) (api.Job, error)
}

// State is the lifecycle of one watch.
type State int32

const (
	StateIdle State = iota
	StatePolling
	StateCompleted
	StateFailed
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePolling:
		return "polling"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether the watch has finished.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// EventKind tags the events a watch delivers.
type EventKind string

const (
	// EventTransition reports a non-terminal status change (pending →
	// generating). Each transition is reported once.
	EventTransition EventKind = "transition"
	EventCompleted  EventKind = "completed"
	EventFailed     EventKind = "failed"
	EventCancelled  EventKind = "cancelled"
)

// Event is one poll observation. VideoURL is set on EventCompleted, Err on
// EventFailed.
type Event struct {
	Kind     EventKind
	Status   api.JobStatus
	VideoURL string
	Err      error
}

// Option customizes a Poller.
type Option func(*Poller)

// WithInterval overrides the poll interval (tests use a millisecond).
func WithInterval(d time.Duration) Option {
	return func(p *Poller) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(l zerolog.Logger) Option {
	return func(p *Poller) { p.logger = l }
}

// Poller creates watches over jobs. Safe to share; each watch runs its own
// goroutine with at most one status call in flight.
type Poller struct {
	client   StatusClient
	interval time.Duration
	logger   zerolog.Logger
}

// New creates a poller over the given status client.
func New(client StatusClient, opts ...Option) *Poller {
	p := &Poller{
		client:   client,
		interval: DefaultInterval,
		logger:   zerolog.New(io.Discard),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Watch is one polling session for one job.
type Watch struct {
	// Events carries transitions and exactly one terminal event, then
	// closes.
	Events <-chan Event

	events chan Event
	cancel context.CancelFunc
	state  atomic.Int32
}

// State returns the watch's current lifecycle state.
func (w *Watch) State() State {
	return State(w.state.Load())
}

// Cancel stops the watch. Idempotent. Any status response still in flight
// is discarded; the only terminal event after Cancel is the cancelled one.
// No server-side cancellation is implied.
func (w *Watch) Cancel() {
	w.cancel()
}

// Watch starts polling jobID. When the initial status is already terminal
// the watch emits the corresponding event immediately without any network
// call.
func (p *Poller) Watch(ctx context.Context, jobID string, initial api.JobStatus) *Watch {
	ctx, cancel := context.WithCancel(ctx)
	w := &Watch{
		events: make(chan Event, 8),
		cancel: cancel,
	}
	w.Events = w.events
	w.state.Store(int32(StatePolling))

	go p.run(ctx, jobID, initial, w)
	return w
}

// run owns the watch: it is the only writer to the event channel and the
// only goroutine that moves the state to a terminal value, which is what
// guarantees the single terminal event.
func (p *Poller) run(ctx context.Context, jobID string, initial api.JobStatus, w *Watch) {
	defer close(w.events)

	if initial.Terminal() {
		p.finishFromStatus(w, api.Job{ID: jobID, Status: initial})
		return
	}

	last := initial
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.finish(StateCancelled, Event{Kind: EventCancelled})
			return
		case <-ticker.C:
		}

		job, err := p.client.Status(ctx, jobID)

		// A cancel may have landed while the call was in flight; its
		// response must not produce a completion or failure.
		if ctx.Err() != nil {
			w.finish(StateCancelled, Event{Kind: EventCancelled})
			return
		}

		if err != nil {
			// One failed status call ends the watch. Silent retries here
			// would mask permanent failures as progress.
			p.logger.Debug().Str("job", jobID).Err(err).Msg("status call failed")
			w.finish(StateFailed, Event{Kind: EventFailed, Err: err})
			return
		}

		if job.Status.Terminal() {
			p.finishFromStatus(w, job)
			return
		}

		if job.Status != last {
			p.logger.Debug().
				Str("job", jobID).
				Str("from", string(last)).
				Str("to", string(job.Status)).
				Msg("job transition")
			w.events <- Event{Kind: EventTransition, Status: job.Status}
			last = job.Status
		}
	}
}

func (p *Poller) finishFromStatus(w *Watch, job api.Job) {
	switch job.Status {
	case api.StatusCompleted:
		w.finish(StateCompleted, Event{Kind: EventCompleted, Status: job.Status, VideoURL: job.VideoURL})
	default:
		msg := job.ErrorMessage
		if msg == "" {
			msg = "animation generation failed"
		}
		w.finish(StateFailed, Event{Kind: EventFailed, Status: job.Status, Err: errors.New(msg)})
	}
}

func (w *Watch) finish(s State, ev Event) {
	w.state.Store(int32(s))
	w.events <- ev
}
