package api

import "time"

// JobStatus represents the server-side state of an animation job.
type JobStatus string

const (
	StatusPending    JobStatus = "pending"
	StatusGenerating JobStatus = "generating"
	StatusCompleted  JobStatus = "completed"
	StatusError      JobStatus = "error"
)

// normalizeStatus maps the aliases the rendering backend reports onto the
// contract enum. The backend says "processing" while rendering and "failed"
// on error.
func normalizeStatus(s string) JobStatus {
	switch s {
	case "processing", "generating":
		return StatusGenerating
	case "failed", "error":
		return StatusError
	case "completed":
		return StatusCompleted
	default:
		return StatusPending
	}
}

// Terminal reports whether no further status transition can occur.
func (s JobStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

// Quality selects the render quality for a generation request.
type Quality string

const (
	QualityLow    Quality = "low"
	QualityMedium Quality = "medium"
	QualityHigh   Quality = "high"
)

// User is the validated identity returned by the auth endpoints.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// Job is an animation-generation request tracked by the server.
// VideoURL is set only when Status is completed; ErrorMessage only when
// Status is error.
type Job struct {
	ID           string    `json:"id"`
	Prompt       string    `json:"prompt"`
	Quality      Quality   `json:"quality"`
	Status       JobStatus `json:"status"`
	VideoURL     string    `json:"video_url,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ChatReply is the normalized result of a synchronous chat generation call.
type ChatReply struct {
	Message      string `json:"message"`
	AnimationURL string `json:"animationUrl,omitempty"`
}

// ChatEntry is one message of the server-side chat history.
type ChatEntry struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// AuthResult bundles the token and user returned by login/register.
type AuthResult struct {
	Token string
	User  User
}
