package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultBaseURL = "https://api.openai.com/v1"
	DefaultModel   = "gpt-4o"
	// Temperature is fixed for every request.
	Temperature = 0.2

	defaultConnectTimeout        = 10 * time.Second
	defaultResponseHeaderTimeout = 60 * time.Second

	imageSystemPrompt = "You are a helpful assistant. Be concise and reference the image when relevant."
)

type Config struct {
	APIKey    string
	Model     string
	BaseURL   string
	Providers []string
	MaxTokens int

	// Transport-level timeouts. No whole-request timeout is applied so long
	// streams are never cut off.
	ConnectTimeout        time.Duration
	ResponseHeaderTimeout time.Duration

	// Optional attribution headers (OpenRouter).
	Referer string
	Title   string

	// HTTPClient overrides the default client, mainly for tests.
	HTTPClient *http.Client
}

// Chat completions API structures
type Message struct {
	Role    string    `json:"role"`
	Content []Content `json:"content"`
}

type Content struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

type ImageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

type ProviderPreferences struct {
	Order          []string `json:"order,omitempty"`
	Quantizations  []string `json:"quantizations,omitempty"`
	AllowFallbacks *bool    `json:"allow_fallbacks,omitempty"`
}

type ChatRequest struct {
	Model       string               `json:"model"`
	Messages    []Message            `json:"messages"`
	Temperature float64              `json:"temperature"`
	MaxTokens   int                  `json:"max_tokens,omitempty"`
	Stream      bool                 `json:"stream"`
	Provider    *ProviderPreferences `json:"provider,omitempty"`
}

type ChatResponse struct {
	Choices []Choice       `json:"choices"`
	Error   *ResponseError `json:"error,omitempty"`
}

type Choice struct {
	Message ResponseMessage `json:"message"`
}

type ResponseMessage struct {
	Content string `json:"content"`
}

// ResponseError is the error object some providers embed in a 200 response.
type ResponseError struct {
	Message string      `json:"message"`
	Type    string      `json:"type"`
	Code    interface{} `json:"code"` // Can be string or number
}

// Client talks to one chat-completions endpoint. It is safe for concurrent
// use, though the app runs at most one stream at a time.
type Client struct {
	cfg Config
	url string
	hc  *http.Client
}

// New validates cfg and builds a client. A missing API key is a *ConfigError.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, &ConfigError{Field: "OPENAI_API_KEY", Reason: "is required"}
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Transport: newTransport(cfg.ConnectTimeout, cfg.ResponseHeaderTimeout)}
	}
	return &Client{
		cfg: cfg,
		url: strings.TrimRight(cfg.BaseURL, "/") + "/chat/completions",
		hc:  hc,
	}, nil
}

func newTransport(connect, header time.Duration) *http.Transport {
	if connect <= 0 {
		connect = defaultConnectTimeout
	}
	if header <= 0 {
		header = defaultResponseHeaderTimeout
	}
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.DialContext = (&net.Dialer{Timeout: connect, KeepAlive: 30 * time.Second}).DialContext
	t.ResponseHeaderTimeout = header
	return t
}

// Model returns the model identifier sent with every request.
func (c *Client) Model() string { return c.cfg.Model }

// BuildImageMessage returns the system instruction plus a user message carrying
// prompt and the PNG inline as a base64 data URL.
func BuildImageMessage(prompt string, png []byte) []Message {
	imageURL := "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)
	return []Message{
		{
			Role:    "system",
			Content: []Content{{Type: "text", Text: imageSystemPrompt}},
		},
		{
			Role: "user",
			Content: []Content{
				{Type: "text", Text: prompt},
				{Type: "image_url", ImageURL: &ImageURL{URL: imageURL, Detail: "high"}},
			},
		},
	}
}

// BuildTextMessages returns a text-only system + user pair.
func BuildTextMessages(system, user string) []Message {
	return []Message{
		{Role: "system", Content: []Content{{Type: "text", Text: system}}},
		{Role: "user", Content: []Content{{Type: "text", Text: user}}},
	}
}

// providerPreferences returns provider preferences based on config
func (c *Client) providerPreferences() *ProviderPreferences {
	if len(c.cfg.Providers) == 0 {
		// No providers specified, use default routing
		return nil
	}
	allowFallbacks := false
	return &ProviderPreferences{
		Order:          c.cfg.Providers,
		AllowFallbacks: &allowFallbacks,
	}
}

func (c *Client) newRequest(ctx context.Context, messages []Message, stream bool, maxTokens int) (*http.Request, error) {
	body, err := json.Marshal(ChatRequest{
		Model:       c.cfg.Model,
		Messages:    messages,
		Temperature: Temperature,
		MaxTokens:   maxTokens,
		Stream:      stream,
		Provider:    c.providerPreferences(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	if stream {
		req.Header.Set("Accept", "text/event-stream")
	}
	if c.cfg.Referer != "" {
		req.Header.Set("HTTP-Referer", c.cfg.Referer)
	}
	if c.cfg.Title != "" {
		req.Header.Set("X-Title", c.cfg.Title)
	}
	return req, nil
}

// Ask sends messages and blocks for the whole answer.
func (c *Client) Ask(ctx context.Context, messages []Message) (string, error) {
	return c.ask(ctx, messages, c.cfg.MaxTokens)
}

func (c *Client) ask(ctx context.Context, messages []Message, maxTokens int) (string, error) {
	req, err := c.newRequest(ctx, messages, false, maxTokens)
	if err != nil {
		return "", err
	}

	start := time.Now()
	resp, err := c.hc.Do(req)
	if err != nil {
		return "", fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	if !success(resp.StatusCode) {
		return "", &APIError{Status: resp.StatusCode, Body: string(body)}
	}

	var response ChatResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	// Check for API errors
	if response.Error != nil {
		return "", fmt.Errorf("API error: %s (type: %s, code: %v)", response.Error.Message, response.Error.Type, response.Error.Code)
	}
	if len(response.Choices) == 0 {
		return "", fmt.Errorf("no choices in API response")
	}

	text := response.Choices[0].Message.Content
	log.Printf("llm: ask completed in %s, %d chars", time.Since(start).Round(time.Millisecond), len(text))
	return text, nil
}

// Ping performs a minimal completion to validate the key, model and network.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.ask(ctx, BuildTextMessages("Reply with OK.", "ping"), 5)
	return err
}

func success(status int) bool { return status >= 200 && status < 300 }
