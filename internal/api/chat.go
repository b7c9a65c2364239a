package api

import (
	"context"
	"net/http"
)

type chatRequest struct {
	Message string `json:"message" validate:"required,min=1"`
}

// SendChat performs the synchronous generation call: one request, one reply
// that may carry an animation URL alongside the assistant text.
func (c *JobClient) SendChat(ctx context.Context, message string) (ChatReply, error) {
	req := chatRequest{Message: message}
	if err := checkStruct(req); err != nil {
		return ChatReply{}, err
	}
	token, err := c.bearer()
	if err != nil {
		return ChatReply{}, err
	}

	var reply ChatReply
	if err := c.doJSON(ctx, "chat", http.MethodPost, "/api/generate", token, req, &reply); err != nil {
		return ChatReply{}, err
	}
	reply.AnimationURL = c.qualifyURL(reply.AnimationURL)
	return reply, nil
}

// ChatHistory fetches the server-side transcript, oldest first.
func (c *JobClient) ChatHistory(ctx context.Context) ([]ChatEntry, error) {
	token, err := c.bearer()
	if err != nil {
		return nil, err
	}

	var resp struct {
		Messages []ChatEntry `json:"messages"`
	}
	if err := c.doJSON(ctx, "chat history", http.MethodGet, "/api/chat/history", token, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}
