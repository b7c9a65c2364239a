package chat

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"manimate/internal/api"
	"manimate/internal/poller"
)

type fakeSession bool

func (f fakeSession) IsAuthenticated() bool { return bool(f) }

type fakeBackend struct {
	mu        sync.Mutex
	chatReply api.ChatReply
	chatErr   error
	genID     string
	genErr    error
	genCalls  int
	history   []api.ChatEntry
}

func (f *fakeBackend) Generate(_ context.Context, prompt string, quality api.Quality) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.genCalls++
	return f.genID, f.genErr
}

func (f *fakeBackend) SendChat(_ context.Context, message string) (api.ChatReply, error) {
	return f.chatReply, f.chatErr
}

func (f *fakeBackend) ChatHistory(_ context.Context) ([]api.ChatEntry, error) {
	return f.history, nil
}

// scriptedStatus replays status responses for the poller.
type scriptedStatus struct {
	mu    sync.Mutex
	seq   []api.Job
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
	return s.seq[i], nil
}

func newTestOrchestrator(backend *fakeBackend, status poller.StatusClient, authed bool) *Orchestrator {
	p := poller.New(status, poller.WithInterval(time.Millisecond))
	return New(fakeSession(authed), backend, p)
}

func TestSendMessageValidation(t *testing.T) {
	o := newTestOrchestrator(&fakeBackend{}, &scriptedStatus{seq: []api.Job{{}}}, true)

	for _, content := range []string{"", "   ", "\n\t"} {
		_, err := o.SendMessage(context.Background(), content)
		if !api.IsValidationError(err) {
			t.Errorf("content %q: expected ValidationError, got %v", content, err)
		}
	}
	if got := len(o.Messages()); got != 0 {
		t.Errorf("validation failures must append no entries, got %d", got)
	}
}

func TestSendMessageUnauthenticated(t *testing.T) {
	o := newTestOrchestrator(&fakeBackend{}, &scriptedStatus{seq: []api.Job{{}}}, false)

	_, err := o.SendMessage(context.Background(), "draw a circle")
	var stateErr *StateError
	if !errors.As(err, &stateErr) {
		t.Fatalf("expected StateError, got %v", err)
	}
	if got := len(o.Messages()); got != 0 {
		t.Errorf("expected no entries, got %d", got)
	}
}

func TestSendMessageSuccess(t *testing.T) {
	backend := &fakeBackend{
		chatReply: api.ChatReply{
			Message:      "Here you go",
			AnimationURL: "http://host/v/a1.mp4",
		},
	}
	o := newTestOrchestrator(backend, &scriptedStatus{seq: []api.Job{{}}}, true)

	reply, err := o.SendMessage(context.Background(), "draw a circle")
	if err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	if reply.Status != EntryCompleted || reply.AnimationURL != "http://host/v/a1.mp4" {
		t.Errorf("unexpected reply entry: %+v", reply)
	}

	msgs := o.Messages()
	if len(msgs) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(msgs))
	}
	if msgs[0].Role != RoleUser || msgs[0].Status != EntryCompleted {
		t.Errorf("unexpected user entry: %+v", msgs[0])
	}
	if msgs[1].Role != RoleAssistant || msgs[1].Content != "Here you go" {
		t.Errorf("unexpected assistant entry: %+v", msgs[1])
	}
}

func TestSendMessageBackendFailure(t *testing.T) {
	backend := &fakeBackend{
		chatErr: &api.RequestError{Status: http.StatusTooManyRequests, Message: "quota exceeded"},
	}
	o := newTestOrchestrator(backend, &scriptedStatus{seq: []api.Job{{}}}, true)

	reply, err := o.SendMessage(context.Background(), "draw a circle")
	if err != nil {
		t.Fatalf("generation failures must not propagate, got %v", err)
	}
	if reply.Status != EntryError || reply.Content != "quota exceeded" {
		t.Errorf("unexpected failure entry: %+v", reply)
	}

	msgs := o.Messages()
	if len(msgs) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(msgs))
	}
	if msgs[0].Status != EntryError {
		t.Errorf("expected user entry marked error, got %+v", msgs[0])
	}
	if msgs[1].Role != RoleAssistant || msgs[1].Status != EntryError {
		t.Errorf("expected assistant failure entry, got %+v", msgs[1])
	}
}

func TestRequestAnimationRoundTrip(t *testing.T) {
	backend := &fakeBackend{genID: "abc123"}
	status := &scriptedStatus{seq: []api.Job{
		{Status: api.StatusPending},
		{Status: api.StatusGenerating},
		{Status: api.StatusCompleted, VideoURL: "http://host/v/abc123.mp4"},
	}}
	o := newTestOrchestrator(backend, status, true)

	req, err := o.RequestAnimation(context.Background(), "Draw a circle", api.QualityMedium)
	if err != nil {
		t.Fatalf("RequestAnimation failed: %v", err)
	}
	if req.JobID != "abc123" {
		t.Errorf("expected job id abc123, got %s", req.JobID)
	}

	<-req.Done()

	msgs := o.Messages()
	if len(msgs) != 2 {
		t.Fatalf("expected 2 entries, got %+v", msgs)
	}
	if msgs[0].Status != EntryCompleted {
		t.Errorf("expected user entry completed, got %+v", msgs[0])
	}
	if msgs[1].Role != RoleAssistant || msgs[1].Status != EntryCompleted {
		t.Errorf("expected completed assistant entry, got %+v", msgs[1])
	}
	if msgs[1].AnimationURL != "http://host/v/abc123.mp4" {
		t.Errorf("expected animation url, got %q", msgs[1].AnimationURL)
	}
}

func TestRequestAnimationJobFailure(t *testing.T) {
	backend := &fakeBackend{genID: "j1"}
	status := &scriptedStatus{seq: []api.Job{
		{Status: api.StatusError, ErrorMessage: "manim exited with code 1"},
	}}
	o := newTestOrchestrator(backend, status, true)

	req, err := o.RequestAnimation(context.Background(), "Draw a circle", api.QualityLow)
	if err != nil {
		t.Fatalf("RequestAnimation failed: %v", err)
	}
	<-req.Done()

	msgs := o.Messages()
	if len(msgs) != 2 {
		t.Fatalf("expected 2 entries, got %+v", msgs)
	}
	if msgs[0].Status != EntryError {
		t.Errorf("expected user entry errored, got %+v", msgs[0])
	}
	if msgs[1].Status != EntryError || msgs[1].Content != "manim exited with code 1" {
		t.Errorf("expected failure entry with server message, got %+v", msgs[1])
	}
}

func TestRequestAnimationGenerateFailure(t *testing.T) {
	backend := &fakeBackend{genErr: &api.RequestError{Status: 500, Message: "backend down"}}
	o := newTestOrchestrator(backend, &scriptedStatus{seq: []api.Job{{}}}, true)

	req, err := o.RequestAnimation(context.Background(), "Draw a circle", api.QualityMedium)
	if err != nil {
		t.Fatalf("generation failures must not propagate, got %v", err)
	}
	<-req.Done()
	req.Cancel() // settled request: must be a no-op

	msgs := o.Messages()
	if len(msgs) != 2 || msgs[1].Content != "backend down" || msgs[1].Status != EntryError {
		t.Errorf("expected failure entries, got %+v", msgs)
	}
}

func TestRapidRequestsKeepCallOrder(t *testing.T) {
	backend := &fakeBackend{genID: "j1"}
	// Hold both jobs open so no finalization lands before the order check.
	status := &blockingStatus{release: make(chan struct{})}
	o := newTestOrchestrator(backend, status, true)

	first, err := o.RequestAnimation(context.Background(), "first prompt", api.QualityMedium)
	if err != nil {
		t.Fatalf("first request failed: %v", err)
	}
	second, err := o.RequestAnimation(context.Background(), "second prompt", api.QualityMedium)
	if err != nil {
		t.Fatalf("second request failed: %v", err)
	}

	msgs := o.Messages()
	if msgs[0].Content != "first prompt" || msgs[1].Content != "second prompt" {
		t.Fatalf("pending entries out of call order: %+v", msgs)
	}

	close(status.release)
	<-first.Done()
	<-second.Done()
	o.Wait()

	for _, id := range []string{first.EntryID, second.EntryID} {
		e, ok := o.Entry(id)
		if !ok {
			t.Fatalf("entry %s missing", id)
		}
		if e.Status != EntryCompleted && e.Status != EntryError {
			t.Errorf("entry %s left non-terminal: %+v", id, e)
		}
	}
}

func TestClearMessages(t *testing.T) {
	backend := &fakeBackend{chatReply: api.ChatReply{Message: "ok"}}
	o := newTestOrchestrator(backend, &scriptedStatus{seq: []api.Job{{}}}, true)

	if _, err := o.SendMessage(context.Background(), "hello"); err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	if len(o.Messages()) == 0 {
		t.Fatal("expected entries before clear")
	}

	o.ClearMessages()

	if got := len(o.Messages()); got != 0 {
		t.Errorf("expected empty transcript, got %d entries", got)
	}
}

// blockingStatus holds the status call open so a clear can land while the
// job is still in flight.
type blockingStatus struct {
	release chan struct{}
}

func (b *blockingStatus) Status(_ context.Context, jobID string) (api.Job, error) {
	<-b.release
	return api.Job{Status: api.StatusCompleted, VideoURL: "http://host/v/late.mp4"}, nil
}

func TestClearDuringFlightDropsFinalization(t *testing.T) {
	backend := &fakeBackend{genID: "j1"}
	status := &blockingStatus{release: make(chan struct{})}
	o := newTestOrchestrator(backend, status, true)

	req, err := o.RequestAnimation(context.Background(), "slow prompt", api.QualityMedium)
	if err != nil {
		t.Fatalf("RequestAnimation failed: %v", err)
	}

	o.ClearMessages()
	close(status.release)
	<-req.Done()

	if got := len(o.Messages()); got != 0 {
		t.Errorf("finalization after clear must not resurrect entries, got %+v", o.Messages())
	}
}

func TestRestoreTranscript(t *testing.T) {
	backend := &fakeBackend{history: []api.ChatEntry{
		{ID: "m1", Role: "user", Content: "draw a square", Timestamp: time.Unix(100, 0)},
		{ID: "m2", Role: "assistant", Content: "done", Timestamp: time.Unix(101, 0)},
	}}
	o := newTestOrchestrator(backend, &scriptedStatus{seq: []api.Job{{}}}, true)

	if err := o.RestoreTranscript(context.Background()); err != nil {
		t.Fatalf("RestoreTranscript failed: %v", err)
	}

	msgs := o.Messages()
	if len(msgs) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(msgs))
	}
	if msgs[0].ID != "m1" || msgs[0].Role != RoleUser || msgs[0].Status != EntryCompleted {
		t.Errorf("unexpected restored entry: %+v", msgs[0])
	}
}
