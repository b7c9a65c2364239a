package poller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"manimate/internal/api"
)

type step struct {
	job api.Job
	err error
}

// scriptedStatus replays a fixed sequence of status responses; the last one
// repeats once the script is exhausted.
type scriptedStatus struct {
	mu    sync.Mutex
	seq   []step
	calls int
}

func (s *scriptedStatus) Status(_ context.Context, jobID string) (api.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	if i >= len(s.seq) {
		i = len(s.seq) - 1
	}
	s.calls++
	return s.seq[i].job, s.seq[i].err
}

func (s *scriptedStatus) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// collect drains a watch's events with a deadline.
func collect(t *testing.T, w *Watch) []Event {
	t.Helper()
	var events []Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-w.Events:
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-timeout:
			t.Fatalf("timed out waiting for events, got %v", events)
		}
	}
}

func TestWatchCompletes(t *testing.T) {
	client := &scriptedStatus{seq: []step{
		{job: api.Job{Status: api.StatusPending}},
		{job: api.Job{Status: api.StatusGenerating}},
		{job: api.Job{Status: api.StatusCompleted, VideoURL: "http://host/v/abc123.mp4"}},
	}}
	p := New(client, WithInterval(time.Millisecond))

	w := p.Watch(context.Background(), "abc123", api.StatusPending)
	events := collect(t, w)

	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %v", events)
	}
	if events[0].Kind != EventTransition || events[0].Status != api.StatusGenerating {
		t.Errorf("expected generating transition, got %+v", events[0])
	}
	if events[1].Kind != EventCompleted || events[1].VideoURL != "http://host/v/abc123.mp4" {
		t.Errorf("expected completion with video url, got %+v", events[1])
	}
	if w.State() != StateCompleted {
		t.Errorf("expected completed state, got %s", w.State())
	}
}

func TestWatchFails(t *testing.T) {
	client := &scriptedStatus{seq: []step{
		{job: api.Job{Status: api.StatusGenerating}},
		{job: api.Job{Status: api.StatusError, ErrorMessage: "render crashed"}},
	}}
	p := New(client, WithInterval(time.Millisecond))

	w := p.Watch(context.Background(), "j1", api.StatusGenerating)
	events := collect(t, w)

	last := events[len(events)-1]
	if last.Kind != EventFailed {
		t.Fatalf("expected failure event, got %+v", last)
	}
	if last.Err == nil || last.Err.Error() != "render crashed" {
		t.Errorf("expected server error message, got %v", last.Err)
	}
	if w.State() != StateFailed {
		t.Errorf("expected failed state, got %s", w.State())
	}
}

func TestWatchFailsWithGenericMessage(t *testing.T) {
	client := &scriptedStatus{seq: []step{
		{job: api.Job{Status: api.StatusError}},
	}}
	p := New(client, WithInterval(time.Millisecond))

	w := p.Watch(context.Background(), "j1", api.StatusPending)
	events := collect(t, w)

	last := events[len(events)-1]
	if last.Kind != EventFailed || last.Err == nil || last.Err.Error() == "" {
		t.Errorf("expected generic failure message, got %+v", last)
	}
}

func TestTransportFailureIsTerminal(t *testing.T) {
	cause := &api.NetworkError{Op: "status", Err: errors.New("connection refused")}
	client := &scriptedStatus{seq: []step{{err: cause}}}
	p := New(client, WithInterval(time.Millisecond))

	w := p.Watch(context.Background(), "j1", api.StatusPending)
	events := collect(t, w)

	if len(events) != 1 || events[0].Kind != EventFailed {
		t.Fatalf("expected single failure event, got %v", events)
	}
	if !api.IsNetworkError(events[0].Err) {
		t.Errorf("expected the transport error surfaced, got %v", events[0].Err)
	}
	if got := client.callCount(); got != 1 {
		t.Errorf("poller must not retry a failed status call, got %d calls", got)
	}
}

func TestInitialTerminalStatus(t *testing.T) {
	client := &scriptedStatus{seq: []step{{job: api.Job{Status: api.StatusPending}}}}
	p := New(client, WithInterval(time.Millisecond))

	w := p.Watch(context.Background(), "j1", api.StatusCompleted)
	events := collect(t, w)

	if len(events) != 1 || events[0].Kind != EventCompleted {
		t.Fatalf("expected immediate completion, got %v", events)
	}
	if got := client.callCount(); got != 0 {
		t.Errorf("expected no status calls for terminal initial state, got %d", got)
	}
}

// blockingStatus holds its single status call open until released, then
// answers "completed". Used to race a cancel against an in-flight response.
type blockingStatus struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (b *blockingStatus) Status(_ context.Context, jobID string) (api.Job, error) {
	b.once.Do(func() { close(b.started) })
	<-b.release
	return api.Job{ID: jobID, Status: api.StatusCompleted, VideoURL: "http://host/v/late.mp4"}, nil
}

func TestCancelSuppressesLateResponse(t *testing.T) {
	client := &blockingStatus{
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	p := New(client, WithInterval(time.Millisecond))

	w := p.Watch(context.Background(), "j1", api.StatusPending)

	// Wait for the status call to be in flight, cancel, then deliver the
	// late "completed" response.
	<-client.started
	w.Cancel()
	close(client.release)

	events := collect(t, w)
	for _, ev := range events {
		if ev.Kind == EventCompleted {
			t.Fatalf("completion must not fire after cancel, got %v", events)
		}
	}
	if len(events) != 1 || events[0].Kind != EventCancelled {
		t.Fatalf("expected exactly one cancelled event, got %v", events)
	}
	if w.State() != StateCancelled {
		t.Errorf("expected cancelled state, got %s", w.State())
	}
}

func TestCancelIdempotent(t *testing.T) {
	client := &scriptedStatus{seq: []step{{job: api.Job{Status: api.StatusPending}}}}
	p := New(client, WithInterval(time.Hour)) // never ticks

	w := p.Watch(context.Background(), "j1", api.StatusPending)
	w.Cancel()
	w.Cancel()

	events := collect(t, w)
	if len(events) != 1 || events[0].Kind != EventCancelled {
		t.Fatalf("expected exactly one cancelled event, got %v", events)
	}
}

func TestNoDuplicateTransitions(t *testing.T) {
	client := &scriptedStatus{seq: []step{
		{job: api.Job{Status: api.StatusPending}},
		{job: api.Job{Status: api.StatusGenerating}},
		{job: api.Job{Status: api.StatusGenerating}},
		{job: api.Job{Status: api.StatusGenerating}},
		{job: api.Job{Status: api.StatusCompleted}},
	}}
	p := New(client, WithInterval(time.Millisecond))

	w := p.Watch(context.Background(), "j1", api.StatusPending)
	events := collect(t, w)

	transitions := 0
	for _, ev := range events {
		if ev.Kind == EventTransition {
			transitions++
		}
	}
	if transitions != 1 {
		t.Errorf("expected a single generating transition, got %v", events)
	}
}
