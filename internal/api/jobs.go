package api

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// JobClient issues animation job requests. Every operation reads the current
// token from the TokenSource before the call and fails with AuthError when
// none is present. The client never retries on its own; retry decisions
// belong to the poller or the caller.
type JobClient struct {
	rest
	tokens TokenSource
}

// NewJobClient creates a client for the animation endpoints.
func NewJobClient(baseURL string, tokens TokenSource, opts ...Option) *JobClient {
	return &JobClient{rest: newRest(baseURL, opts...), tokens: tokens}
}

func (c *JobClient) bearer() (string, error) {
	tok := c.tokens.Token()
	if tok == "" {
		return "", &AuthError{Reason: "no session token"}
	}
	return tok, nil
}

type generateRequest struct {
	Prompt  string `json:"prompt" validate:"required,min=1,max=1000"`
	Quality string `json:"quality" validate:"required,oneof=low medium high"`
}

type generateResponse struct {
	AnimationID string `json:"animation_id"`
}

// wireJob tolerates the field spellings the service has used across
// versions: `_id` vs `id`, `video_path` vs `video_url`, `error` vs
// `error_message`.
type wireJob struct {
	ID           string    `json:"id"`
	MongoID      string    `json:"_id"`
	AnimationID  string    `json:"animation_id"`
	Prompt       string    `json:"prompt"`
	Quality      string    `json:"quality"`
	Status       string    `json:"status"`
	VideoPath    string    `json:"video_path"`
	VideoURL     string    `json:"video_url"`
	Error        string    `json:"error"`
	ErrorMessage string    `json:"error_message"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (c *JobClient) toJob(w wireJob) Job {
	job := Job{
		ID:        w.ID,
		Prompt:    w.Prompt,
		Quality:   Quality(w.Quality),
		Status:    normalizeStatus(w.Status),
		CreatedAt: w.CreatedAt,
		UpdatedAt: w.UpdatedAt,
	}
	if job.ID == "" {
		job.ID = w.MongoID
	}
	if job.ID == "" {
		job.ID = w.AnimationID
	}
	if job.Quality == "" {
		job.Quality = QualityMedium
	}
	if job.Status == StatusCompleted {
		video := w.VideoURL
		if video == "" {
			video = w.VideoPath
		}
		job.VideoURL = c.qualifyURL(video)
	}
	if job.Status == StatusError {
		job.ErrorMessage = w.ErrorMessage
		if job.ErrorMessage == "" {
			job.ErrorMessage = w.Error
		}
	}
	return job
}

// Generate submits a prompt for rendering and returns the server-issued job
// id. Rendering continues asynchronously; track it with Status or a poller.
func (c *JobClient) Generate(ctx context.Context, prompt string, quality Quality) (string, error) {
	if quality == "" {
		quality = QualityMedium
	}
	req := generateRequest{Prompt: prompt, Quality: string(quality)}
	if err := checkStruct(req); err != nil {
		return "", err
	}
	token, err := c.bearer()
	if err != nil {
		return "", err
	}

	var resp generateResponse
	if err := c.doJSON(ctx, "generate", http.MethodPost, "/api/animations/generate", token, req, &resp); err != nil {
		return "", err
	}
	if resp.AnimationID == "" {
		return "", &RequestError{Status: http.StatusOK, Message: "generate response missing animation_id"}
	}
	return resp.AnimationID, nil
}

// Status fetches the current state of one job. Never retries.
func (c *JobClient) Status(ctx context.Context, jobID string) (Job, error) {
	if jobID == "" {
		return Job{}, &ValidationError{Field: "jobID", Reason: "must not be empty"}
	}
	token, err := c.bearer()
	if err != nil {
		return Job{}, err
	}

	var w wireJob
	if err := c.doJSON(ctx, "status", http.MethodGet, "/api/animations/status/"+jobID, token, nil, &w); err != nil {
		return Job{}, err
	}
	return c.toJob(w), nil
}

// Get fetches a single job record. Some service versions wrap the job in an
// `animation` envelope.
func (c *JobClient) Get(ctx context.Context, jobID string) (Job, error) {
	if jobID == "" {
		return Job{}, &ValidationError{Field: "jobID", Reason: "must not be empty"}
	}
	token, err := c.bearer()
	if err != nil {
		return Job{}, err
	}

	var envelope struct {
		Animation *wireJob `json:"animation"`
		wireJob
	}
	if err := c.doJSON(ctx, "get", http.MethodGet, "/api/animations/"+jobID, token, nil, &envelope); err != nil {
		return Job{}, err
	}
	if envelope.Animation != nil {
		return c.toJob(*envelope.Animation), nil
	}
	return c.toJob(envelope.wireJob), nil
}

// List returns a page of the caller's jobs, newest first. Offset pagination
// is only stable when nothing is inserted between pages; the server owns the
// ordering.
func (c *JobClient) List(ctx context.Context, skip, limit int) ([]Job, error) {
	if skip < 0 {
		return nil, &ValidationError{Field: "skip", Reason: "must be >= 0"}
	}
	if limit <= 0 {
		return nil, &ValidationError{Field: "limit", Reason: "must be > 0"}
	}
	token, err := c.bearer()
	if err != nil {
		return nil, err
	}

	path := fmt.Sprintf("/api/animations/list?limit=%d&skip=%d", limit, skip)
	var resp struct {
		Animations []wireJob `json:"animations"`
	}
	if err := c.doJSON(ctx, "list", http.MethodGet, path, token, nil, &resp); err != nil {
		return nil, err
	}

	jobs := make([]Job, 0, len(resp.Animations))
	for _, w := range resp.Animations {
		jobs = append(jobs, c.toJob(w))
	}
	return jobs, nil
}

// Delete removes a job from the caller's listing. Deleting a job that is
// still rendering does not cancel the server-side work. The caller owns
// evicting the entry from any local cache.
func (c *JobClient) Delete(ctx context.Context, jobID string) error {
	if jobID == "" {
		return &ValidationError{Field: "jobID", Reason: "must not be empty"}
	}
	token, err := c.bearer()
	if err != nil {
		return err
	}
	return c.doJSON(ctx, "delete", http.MethodDelete, "/api/animations/"+jobID, token, nil, nil)
}
