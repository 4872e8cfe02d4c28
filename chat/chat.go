// Package chat is the chat-completion adapter used for project cost
// estimation. It speaks the OpenAI-compatible /chat/completions and /models
// endpoints.
package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/juju/errors"
	"golang.org/x/oauth2"
)

const (
	DefaultBaseURL     = "https://api.openai.com/v1"
	DefaultModel       = "gpt-4o-mini"
	DefaultMaxTokens   = 1000
	DefaultTemperature = 0.7
)

// Config configures a Client.
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
}

func (c *Config) setDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	c.BaseURL = strings.TrimSuffix(c.BaseURL, "/")
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = DefaultMaxTokens
	}
	if c.Timeout == 0 {
		c.Timeout = 60 * time.Second
	}
}

// Client is an authenticated chat-completion API client.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// NewClient creates a client that sends cfg.APIKey as a bearer token.
func NewClient(ctx context.Context, cfg Config) *Client {
	cfg.setDefaults()
	hc := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.APIKey, TokenType: "Bearer"}))
	hc.Timeout = cfg.Timeout
	return &Client{cfg: cfg, httpClient: hc}
}

// Configured reports whether an API key is set.
func (c *Client) Configured() bool {
	return c.cfg.APIKey != ""
}

// Model returns the configured model name.
func (c *Client) Model() string {
	return c.cfg.Model
}

// ProviderError is returned for provider failures that do not fall into the
// bad request, unauthorized or rate limited categories. Status is the
// provider's HTTP status and is passed through to callers.
type ProviderError struct {
	Status  int
	Message string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("chat provider error %d: %s", e.Status, e.Message)
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type completionRequest struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature"`
}

type completionResponse struct {
	Choices []struct {
		Message message `json:"message"`
	} `json:"choices"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Model is one entry of the model listing.
type Model struct {
	ID      string `json:"id"`
	OwnedBy string `json:"owned_by"`
}

type modelsResponse struct {
	Data []Model `json:"data"`
}

// Complete sends a single system+user exchange and returns the first choice.
func (c *Client) Complete(ctx context.Context, system, user string) (string, error) {
	if !c.Configured() {
		return "", errors.Unauthorizedf("chat provider API key not configured")
	}
	payload, err := json.Marshal(completionRequest{
		Model: c.cfg.Model,
		Messages: []message{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: c.cfg.Temperature,
	})
	if err != nil {
		return "", errors.Annotate(err, "marshal request")
	}

	var out completionResponse
	if err := c.call(ctx, http.MethodPost, "/chat/completions", payload, &out); err != nil {
		return "", err
	}
	if len(out.Choices) == 0 {
		return "", &ProviderError{Status: http.StatusBadGateway, Message: "no choices returned"}
	}
	return out.Choices[0].Message.Content, nil
}

// ListModels returns the models visible to the configured key.
func (c *Client) ListModels(ctx context.Context) ([]Model, error) {
	if !c.Configured() {
		return nil, errors.Unauthorizedf("chat provider API key not configured")
	}
	var out modelsResponse
	if err := c.call(ctx, http.MethodGet, "/models", nil, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

func (c *Client) call(ctx context.Context, method, path string, payload []byte, out any) error {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, body)
	if err != nil {
		return errors.Annotate(err, "create request")
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &ProviderError{Status: http.StatusBadGateway, Message: err.Error()}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Annotate(err, "read response body")
	}
	if resp.StatusCode != http.StatusOK {
		return classify(resp.StatusCode, data)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return errors.Annotate(err, "decode response")
	}
	return nil
}

// classify maps a provider status to an error category.
func classify(status int, body []byte) error {
	msg := strings.TrimSpace(string(body))
	var er errorResponse
	if json.Unmarshal(body, &er) == nil && er.Error.Message != "" {
		msg = er.Error.Message
	}
	switch status {
	case http.StatusBadRequest:
		return errors.BadRequestf("chat provider rejected request: %s", msg)
	case http.StatusUnauthorized:
		return errors.Unauthorizedf("chat provider authentication failed: %s", msg)
	case http.StatusTooManyRequests:
		return errors.QuotaLimitExceededf("chat provider rate limit: %s", msg)
	default:
		return &ProviderError{Status: status, Message: msg}
	}
}
