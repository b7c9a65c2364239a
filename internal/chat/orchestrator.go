// Package chat owns the conversation transcript: it binds user prompts to
// backend generation calls and reconciles each optimistic pending entry with
// the eventual result or failure. The orchestrator is the only writer to the
// transcript; ordering is append-only.
package chat

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"manimate/internal/api"
	"manimate/internal/history"
	"manimate/internal/poller"
)

// genericFailure is shown when the backend gives no usable error text.
const genericFailure = "Sorry, something went wrong while generating your animation. Please try again."

// StateError indicates an operation that requires an authenticated session
// was attempted without one.
type StateError struct {
	Reason string
}

func (e *StateError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("invalid state: %s", e.Reason)
	}
	return "invalid state"
}

// Role distinguishes the two sides of the transcript.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// EntryStatus is the lifecycle of a transcript entry.
type EntryStatus string

const (
	EntryPending    EntryStatus = "pending"
	EntryGenerating EntryStatus = "generating"
	EntryCompleted  EntryStatus = "completed"
	EntryError      EntryStatus = "error"
)

// Entry is one transcript message. IDs are client-generated and stable;
// reconciliation is a lookup by id, never a positional splice.
type Entry struct {
	ID           string
	Role         Role
	Content      string
	Timestamp    time.Time
	Status       EntryStatus
	AnimationURL string
}

// Backend is the slice of the job client the orchestrator calls.
type Backend interface {
	Generate(ctx context.Context, prompt string, quality api.Quality) (string, error)
	SendChat(ctx context.Context, message string) (api.ChatReply, error)
	ChatHistory(ctx context.Context) ([]api.ChatEntry, error)
}

// Authenticator gates every send on the current session.
type Authenticator interface {
	IsAuthenticated() bool
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithHistory enables write-through of finalized entries to the local cache.
func WithHistory(h *history.Store) Option {
	return func(o *Orchestrator) { o.hist = h }
}

// WithLogger attaches a logger.
func WithLogger(l zerolog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// Orchestrator maintains the ordered transcript.
type Orchestrator struct {
	sess    Authenticator
	backend Backend
	poller  *poller.Poller
	hist    *history.Store
	logger  zerolog.Logger

	mu      sync.Mutex
	entries []*Entry
	byID    map[string]*Entry

	wg sync.WaitGroup
}

// New creates an orchestrator with an empty transcript.
func New(sess Authenticator, backend Backend, p *poller.Poller, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		sess:    sess,
		backend: backend,
		poller:  p,
		logger:  zerolog.New(io.Discard),
		byID:    make(map[string]*Entry),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Messages returns a snapshot of the transcript in append order.
func (o *Orchestrator) Messages() []Entry {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]Entry, len(o.entries))
	for i, e := range o.entries {
		out[i] = *e
	}
	return out
}

// Entry returns a snapshot of one entry by id.
func (o *Orchestrator) Entry(id string) (Entry, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	e, ok := o.byID[id]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// ClearMessages empties the transcript unconditionally. In-flight watches
// are not cancelled here; their finalizations will simply address entries
// that no longer exist. Cancel explicitly first if that matters.
func (o *Orchestrator) ClearMessages() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.entries = nil
	o.byID = make(map[string]*Entry)
}

// Wait blocks until all in-flight finalizations have run. Used at shutdown
// and in tests.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

func (o *Orchestrator) precheck(content string) error {
	if !o.sess.IsAuthenticated() {
		return &StateError{Reason: "no authenticated session"}
	}
	if strings.TrimSpace(content) == "" {
		return &api.ValidationError{Field: "message", Reason: "must not be empty"}
	}
	return nil
}

func (o *Orchestrator) append(role Role, content string, status EntryStatus) *Entry {
	e := &Entry{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
		Status:    status,
	}
	o.mu.Lock()
	o.entries = append(o.entries, e)
	o.byID[e.ID] = e
	o.mu.Unlock()
	return e
}

// SendMessage runs the synchronous chat path: one request whose reply
// carries the final assistant text (and possibly an animation URL).
// Precondition failures return StateError/ValidationError with no entry
// appended; a backend failure becomes an assistant-role error entry instead
// of propagating.
func (o *Orchestrator) SendMessage(ctx context.Context, content string) (Entry, error) {
	if err := o.precheck(content); err != nil {
		return Entry{}, err
	}

	userEntry := o.append(RoleUser, content, EntryPending)

	reply, err := o.backend.SendChat(ctx, content)
	if err != nil {
		o.logger.Debug().Err(err).Msg("chat send failed")
		return o.finalizeFailure(ctx, userEntry.ID, err), nil
	}

	o.setStatus(userEntry.ID, EntryCompleted, "")
	assistant := o.append(RoleAssistant, reply.Message, EntryCompleted)
	o.applyAnimationURL(assistant.ID, reply.AnimationURL)

	o.persist(ctx, userEntry.ID)
	o.persist(ctx, assistant.ID)
	return o.snapshot(assistant.ID), nil
}

// Request is a handle on one asynchronous generation: the pending entry it
// created, a way to cancel its watch, and a signal for when the transcript
// has been finalized.
type Request struct {
	EntryID string
	JobID   string

	watch *poller.Watch
	done  chan struct{}
}

// Cancel stops the underlying watch. The transcript entry is finalized as an
// error shortly after. No-op when the request already settled.
func (r *Request) Cancel() {
	if r.watch != nil {
		r.watch.Cancel()
	}
}

// Done is closed once the transcript entries for this request are terminal.
func (r *Request) Done() <-chan struct{} {
	return r.done
}

// RequestAnimation runs the asynchronous path: submit the prompt, then
// delegate to the poller and finalize the transcript only when the terminal
// poll event arrives.
func (o *Orchestrator) RequestAnimation(ctx context.Context, prompt string, quality api.Quality) (*Request, error) {
	if err := o.precheck(prompt); err != nil {
		return nil, err
	}

	userEntry := o.append(RoleUser, prompt, EntryPending)

	jobID, err := o.backend.Generate(ctx, prompt, quality)
	if err != nil {
		// The failure lives in the transcript, not in the return value; a
		// failed generation never crashes the caller's view.
		o.logger.Debug().Err(err).Msg("generate call failed")
		o.finalizeFailure(ctx, userEntry.ID, err)
		done := make(chan struct{})
		close(done)
		return &Request{EntryID: userEntry.ID, done: done}, nil
	}

	watch := o.poller.Watch(ctx, jobID, api.StatusPending)
	req := &Request{
		EntryID: userEntry.ID,
		JobID:   jobID,
		watch:   watch,
		done:    make(chan struct{}),
	}

	o.wg.Add(1)
	go o.reconcile(ctx, userEntry.ID, watch, req.done)

	return req, nil
}

// reconcile consumes one watch and settles the paired transcript entries.
func (o *Orchestrator) reconcile(ctx context.Context, entryID string, watch *poller.Watch, done chan struct{}) {
	defer o.wg.Done()
	defer close(done)

	for ev := range watch.Events {
		if ev.Kind != poller.EventTransition && !o.has(entryID) {
			// The transcript was cleared mid-flight; there is nothing left
			// to reconcile against.
			continue
		}
		switch ev.Kind {
		case poller.EventTransition:
			o.setStatus(entryID, EntryGenerating, "")

		case poller.EventCompleted:
			o.setStatus(entryID, EntryCompleted, "")
			assistant := o.append(RoleAssistant, "Your animation is ready.", EntryCompleted)
			o.applyAnimationURL(assistant.ID, ev.VideoURL)
			o.persist(ctx, entryID)
			o.persist(ctx, assistant.ID)

		case poller.EventFailed:
			o.finalizeFailure(ctx, entryID, ev.Err)

		case poller.EventCancelled:
			o.setStatus(entryID, EntryError, "")
			assistant := o.append(RoleAssistant, "Animation request cancelled.", EntryError)
			o.persist(ctx, entryID)
			o.persist(ctx, assistant.ID)
		}
	}
}

func (o *Orchestrator) has(id string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.byID[id]
	return ok
}

// finalizeFailure marks the user entry as errored and appends the single
// assistant-role failure entry; generation errors never propagate past the
// transcript.
func (o *Orchestrator) finalizeFailure(ctx context.Context, entryID string, cause error) Entry {
	o.setStatus(entryID, EntryError, "")

	msg := genericFailure
	if reqErr, ok := api.IsRequestError(cause); ok && reqErr.Message != "" {
		msg = reqErr.Message
	} else if cause != nil && !api.IsNetworkError(cause) {
		msg = cause.Error()
	}

	assistant := o.append(RoleAssistant, msg, EntryError)
	o.persist(ctx, entryID)
	o.persist(ctx, assistant.ID)
	return o.snapshot(assistant.ID)
}

// RestoreTranscript replaces the transcript with the server-side chat
// history, all entries finalized.
func (o *Orchestrator) RestoreTranscript(ctx context.Context) error {
	if !o.sess.IsAuthenticated() {
		return &StateError{Reason: "no authenticated session"}
	}

	msgs, err := o.backend.ChatHistory(ctx)
	if err != nil {
		return err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	o.entries = nil
	o.byID = make(map[string]*Entry)
	for _, m := range msgs {
		id := m.ID
		if id == "" {
			id = uuid.NewString()
		}
		e := &Entry{
			ID:        id,
			Role:      Role(m.Role),
			Content:   m.Content,
			Timestamp: m.Timestamp,
			Status:    EntryCompleted,
		}
		o.entries = append(o.entries, e)
		o.byID[e.ID] = e
	}
	return nil
}

func (o *Orchestrator) setStatus(id string, status EntryStatus, animationURL string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	e, ok := o.byID[id]
	if !ok {
		// The transcript was cleared while this request was in flight.
		return
	}
	e.Status = status
	if animationURL != "" {
		e.AnimationURL = animationURL
	}
}

func (o *Orchestrator) applyAnimationURL(id, url string) {
	if url == "" {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if e, ok := o.byID[id]; ok {
		e.AnimationURL = url
	}
}

func (o *Orchestrator) snapshot(id string) Entry {
	o.mu.Lock()
	defer o.mu.Unlock()
	if e, ok := o.byID[id]; ok {
		return *e
	}
	return Entry{}
}

// persist writes one finalized entry through to the local cache, best
// effort.
func (o *Orchestrator) persist(ctx context.Context, id string) {
	if o.hist == nil {
		return
	}
	e, ok := o.Entry(id)
	if !ok {
		return
	}
	err := o.hist.SaveEntry(ctx, history.Entry{
		ID:           e.ID,
		Role:         string(e.Role),
		Content:      e.Content,
		Status:       string(e.Status),
		AnimationURL: e.AnimationURL,
		CreatedAt:    e.Timestamp,
	})
	if err != nil {
		o.logger.Warn().Err(err).Str("entry", id).Msg("could not persist transcript entry")
	}
}
