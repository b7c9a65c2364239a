package api

import (
	"context"
	"net/http"
)

// AuthClient talks to the /api/auth endpoints. Login and Register need no
// credential; Validate takes the token explicitly because it runs before any
// session exists.
type AuthClient struct {
	rest
}

// NewAuthClient creates a client for the auth endpoints.
func NewAuthClient(baseURL string, opts ...Option) *AuthClient {
	return &AuthClient{rest: newRest(baseURL, opts...)}
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type registerRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	Name     string `json:"name" validate:"required,min=2"`
}

// authResponse covers both login and register. The service historically
// used `token`, current versions use `access_token`.
type authResponse struct {
	Token       string `json:"token"`
	AccessToken string `json:"access_token"`
	User        User   `json:"user"`
}

func (a authResponse) token() string {
	if a.AccessToken != "" {
		return a.AccessToken
	}
	return a.Token
}

// validateResponse tolerates both the wrapped and the flat user shape.
type validateResponse struct {
	Valid *bool  `json:"valid"`
	User  *User  `json:"user"`
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// Login exchanges credentials for a bearer token and the user identity.
func (c *AuthClient) Login(ctx context.Context, email, password string) (AuthResult, error) {
	req := loginRequest{Email: email, Password: password}
	if err := checkStruct(req); err != nil {
		return AuthResult{}, err
	}

	var resp authResponse
	if err := c.doJSON(ctx, "login", http.MethodPost, "/api/auth/login", "", req, &resp); err != nil {
		return AuthResult{}, err
	}
	if resp.token() == "" {
		return AuthResult{}, &RequestError{Status: http.StatusOK, Message: "login response missing token"}
	}
	return AuthResult{Token: resp.token(), User: resp.User}, nil
}

// Register creates an account and returns a fresh session, same shape as
// Login. Password length and confirmation equality are the caller's
// pre-validation duty; only the length floor is re-checked here.
func (c *AuthClient) Register(ctx context.Context, email, password, name string) (AuthResult, error) {
	req := registerRequest{Email: email, Password: password, Name: name}
	if err := checkStruct(req); err != nil {
		return AuthResult{}, err
	}

	var resp authResponse
	if err := c.doJSON(ctx, "register", http.MethodPost, "/api/auth/register", "", req, &resp); err != nil {
		return AuthResult{}, err
	}
	if resp.token() == "" {
		return AuthResult{}, &RequestError{Status: http.StatusOK, Message: "register response missing token"}
	}
	return AuthResult{Token: resp.token(), User: resp.User}, nil
}

// Validate checks a persisted token against the server and returns the user
// it belongs to.
func (c *AuthClient) Validate(ctx context.Context, token string) (User, error) {
	if token == "" {
		return User{}, &AuthError{Reason: "no token to validate"}
	}

	var resp validateResponse
	if err := c.doJSON(ctx, "validate", http.MethodGet, "/api/auth/validate", token, nil, &resp); err != nil {
		return User{}, err
	}
	if resp.Valid != nil && !*resp.Valid {
		return User{}, &AuthError{Reason: "token rejected"}
	}
	if resp.User != nil {
		return *resp.User, nil
	}
	return User{ID: resp.ID, Email: resp.Email, Name: resp.Name}, nil
}
