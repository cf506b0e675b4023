package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"chat-api/internal/domain"
)

// DefaultBaseURL is used when no base URL is configured.
const DefaultBaseURL = "https://api.openai.com/v1"

const tokenParamSuffix = "/open-ai-token"

type completionMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type completionRequest struct {
	Model       string              `json:"model"`
	Messages    []completionMessage `json:"messages"`
	MaxTokens   int32               `json:"max_tokens,omitempty"`
	Temperature float32             `json:"temperature"`
	TopP        float32             `json:"top_p"`
}

type completionResponse struct {
	Choices []struct {
		Message completionMessage `json:"message"`
	} `json:"choices"`
}

// TokenSource reads the SSM parameter holding the API token.
type TokenSource interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

// HTTPStatusError captures non-2xx upstream responses with status-aware context.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("openai: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// Client is an inference backend for OpenAI-compatible Chat Completions APIs.
type Client struct {
	endpoint   string
	httpClient *http.Client
	tokens     TokenSource
	tokenParam string

	keyMu     sync.RWMutex
	keyLoaded bool
	apiKey    string
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at another OpenAI-compatible server. An empty
// value keeps DefaultBaseURL.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if baseURL = strings.TrimSpace(baseURL); baseURL != "" {
			c.endpoint = completionsURL(baseURL)
		}
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// NewClient reads the API token from "<paramPrefix>/open-ai-token" on first
// use. The parameter value is JSON: {"token": "..."}.
func NewClient(tokens TokenSource, paramPrefix string, opts ...Option) (*Client, error) {
	if tokens == nil {
		return nil, errors.New("openai: token source must not be nil")
	}
	paramPrefix = strings.TrimRight(strings.TrimSpace(paramPrefix), "/")
	if paramPrefix == "" {
		return nil, errors.New("openai: parameter prefix must not be empty")
	}
	c := &Client{
		endpoint:   completionsURL(DefaultBaseURL),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		tokens:     tokens,
		tokenParam: paramPrefix + tokenParamSuffix,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func completionsURL(baseURL string) string {
	base := strings.TrimRight(baseURL, "/")
	if strings.HasSuffix(base, "/v1") {
		return base + "/chat/completions"
	}
	return base + "/v1/chat/completions"
}

// Converse sends the conversation to the Chat Completions endpoint and returns
// the first choice's content, or "" when the response carries no choices.
func (c *Client) Converse(ctx context.Context, in domain.InferenceRequest) (string, error) {
	if strings.TrimSpace(in.ModelID) == "" {
		return "", errors.New("openai: model must not be empty")
	}

	apiKey, err := c.resolveAPIKey(ctx)
	if err != nil {
		return "", err
	}

	body, err := json.Marshal(completionRequest{
		Model:       in.ModelID,
		Messages:    toCompletionMessages(in.System, in.Messages),
		MaxTokens:   in.Config.MaxTokens,
		Temperature: in.Config.Temperature,
		TopP:        in.Config.TopP,
	})
	if err != nil {
		return "", fmt.Errorf("openai: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("openai: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	raw, err := c.do(req)
	if err != nil {
		return "", fmt.Errorf("openai: request failed: %w", err)
	}

	var payload completionResponse
	if err := json.Unmarshal(raw, &payload); err != nil {
		return "", fmt.Errorf("openai: decode response: %w", err)
	}
	if len(payload.Choices) == 0 {
		return "", nil
	}
	return payload.Choices[0].Message.Content, nil
}

func toCompletionMessages(system string, msgs []domain.ChatMessage) []completionMessage {
	out := make([]completionMessage, 0, len(msgs)+1)
	if system = strings.TrimSpace(system); system != "" {
		out = append(out, completionMessage{Role: "system", Content: system})
	}
	for _, m := range msgs {
		out = append(out, completionMessage{Role: string(m.Role), Content: m.FirstText()})
	}
	return out
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return nil, &HTTPStatusError{StatusCode: res.StatusCode, URL: c.endpoint, Body: string(buf)}
	}

	buf, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return buf, nil
}

// resolveAPIKey caches the token once it has been read successfully. A failed
// read is not cached, so the next request asks SSM again.
func (c *Client) resolveAPIKey(ctx context.Context) (string, error) {
	c.keyMu.RLock()
	if c.keyLoaded {
		key := c.apiKey
		c.keyMu.RUnlock()
		return key, nil
	}
	c.keyMu.RUnlock()

	c.keyMu.Lock()
	defer c.keyMu.Unlock()
	if c.keyLoaded {
		return c.apiKey, nil
	}

	key, err := readToken(ctx, c.tokens, c.tokenParam)
	if err != nil {
		return "", err
	}
	c.apiKey = key
	c.keyLoaded = true
	return key, nil
}

func readToken(ctx context.Context, tokens TokenSource, name string) (string, error) {
	raw, err := tokens.GetParameter(ctx, name)
	if err != nil {
		return "", fmt.Errorf("openai: fetch token from paramstore: %w", err)
	}
	var payload struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return "", fmt.Errorf("openai: unmarshal paramstore token value as JSON: %w", err)
	}
	if payload.Token == "" {
		return "", errors.New("openai: API token is empty")
	}
	return payload.Token, nil
}
