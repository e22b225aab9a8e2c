// Package httpagent invokes an agent exposed as an HTTP JSON endpoint.
package httpagent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"kycflow/internal/agents"
	"kycflow/internal/cases/models"
)

const maxResponseBytes = 4 << 20

// Client posts {"agent_type", "payload"} to URL and returns the response body.
type Client struct {
	id        string
	agentType models.AgentType
	url       string
	healthURL string
	token     string
	http      *http.Client
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		if c != nil {
			cl.http = c
		}
	}
}

// WithBearerToken authenticates calls to the agent.
func WithBearerToken(token string) Option {
	return func(cl *Client) {
		cl.token = token
	}
}

func WithHealthURL(u string) Option {
	return func(cl *Client) {
		cl.healthURL = u
	}
}

func New(id string, agentType models.AgentType, url string, opts ...Option) *Client {
	c := &Client{
		id:        id,
		agentType: agentType,
		url:       url,
		http:      &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) ID() string             { return c.id }
func (c *Client) Type() models.AgentType { return c.agentType }

type envelope struct {
	AgentType models.AgentType `json:"agent_type"`
	Payload   json.RawMessage  `json:"payload"`
}

func (c *Client) Invoke(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
	body, err := json.Marshal(envelope{AgentType: c.agentType, Payload: payload})
	if err != nil {
		return nil, agents.NewAgentError(agents.ErrorInternal, c.agentType, "encode request", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, agents.NewAgentError(agents.ErrorInternal, c.agentType, "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, agents.NewAgentError(agents.ErrorTimeout, c.agentType, "agent call timed out", ctx.Err())
		}
		return nil, agents.NewAgentError(agents.ErrorUnavailable, c.agentType, "transport failure", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, agents.NewAgentError(agents.ErrorUnavailable, c.agentType, "read response", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, agents.NewAgentError(agents.ErrorRateLimited, c.agentType, "rate limited", nil)
	case resp.StatusCode >= 500:
		return nil, agents.NewAgentError(agents.ErrorUnavailable, c.agentType, fmt.Sprintf("agent returned %d", resp.StatusCode), nil)
	case resp.StatusCode >= 400:
		return nil, agents.NewAgentError(agents.ErrorRejected, c.agentType, fmt.Sprintf("agent returned %d", resp.StatusCode), nil)
	}

	if !json.Valid(raw) {
		return nil, agents.NewAgentError(agents.ErrorBadResponse, c.agentType, "response is not JSON", nil)
	}
	return raw, nil
}

func (c *Client) Health(ctx context.Context) error {
	if c.healthURL == "" {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.healthURL, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("agent health returned %d", resp.StatusCode)
	}
	return nil
}
