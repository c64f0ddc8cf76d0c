package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"snapsight/screen"
)

const userAgent = "snapsight/1.0"

type provider struct {
	url   string
	model string
}

var providers = map[string]provider{
	"openai": {url: "https://api.openai.com/v1/chat/completions", model: "gpt-4o-mini"},
	"groq":   {url: "https://api.groq.com/openai/v1/chat/completions", model: "meta-llama/llama-4-scout-17b-16e-instruct"},
}

// Providers lists the supported provider names.
func Providers() []string { return []string{"openai", "groq"} }

func DefaultModel(name string) string { return providers[name].model }

type Options struct {
	Provider    string
	APIKey      string
	Model       string
	URL         string // overrides the provider endpoint
	MaxTokens   int
	Temperature float64
	Detail      string
	Timeout     time.Duration
}

// Client talks to an OpenAI-compatible chat completions endpoint.
type Client struct {
	name   string
	opts   Options
	client *TracedClient
}

func New(opts Options) (*Client, error) {
	if opts.Provider == "" {
		opts.Provider = "openai"
	}
	p, ok := providers[opts.Provider]
	if !ok {
		return nil, fmt.Errorf("unknown provider %q (available: %s)", opts.Provider, strings.Join(Providers(), ", "))
	}
	if opts.APIKey == "" {
		return nil, fmt.Errorf("no API key for %s", opts.Provider)
	}
	if opts.URL == "" {
		opts.URL = p.url
	}
	if opts.Model == "" {
		opts.Model = p.model
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 1000
	}
	if opts.Detail == "" {
		opts.Detail = "high"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	return &Client{name: opts.Provider, opts: opts, client: NewTracedClient(opts.URL)}, nil
}

func (c *Client) Name() string  { return c.name }
func (c *Client) Model() string { return c.opts.Model }

// Warm pre-opens the connection in the background.
func (c *Client) Warm() { go c.client.Warm() }

type imageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type message struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) buildRequest(image []byte, question string) chatRequest {
	dataURL := "data:" + screen.MIMEType(image) + ";base64," + base64.StdEncoding.EncodeToString(image)
	return chatRequest{
		Model: c.opts.Model,
		Messages: []message{
			{Role: "system", Content: SystemPrompt},
			{Role: "user", Content: []contentPart{
				{Type: "text", Text: BuildPrompt(question)},
				{Type: "image_url", ImageURL: &imageURL{URL: dataURL, Detail: c.opts.Detail}},
			}},
		},
		MaxTokens:   c.opts.MaxTokens,
		Temperature: c.opts.Temperature,
	}
}

func (c *Client) Analyze(ctx context.Context, image []byte, question string) (*Result, error) {
	if len(image) == 0 {
		return nil, fmt.Errorf("empty image")
	}
	body, err := json.Marshal(c.buildRequest(image, question))
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "POST", c.opts.URL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.opts.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request: %w", c.name, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := strings.TrimSpace(string(resp.Body))
		var e errorResponse
		if json.Unmarshal(resp.Body, &e) == nil && e.Error.Message != "" {
			msg = e.Error.Message
		}
		return nil, &APIError{Provider: c.name, Status: resp.StatusCode, Message: msg}
	}

	var cr chatResponse
	if err := json.Unmarshal(resp.Body, &cr); err != nil {
		return nil, fmt.Errorf("%s response parse error: %w", c.name, err)
	}
	if len(cr.Choices) == 0 {
		return nil, fmt.Errorf("no response from %s", c.name)
	}

	remaining := firstNonEmpty(resp.Header, "x-ratelimit-remaining-requests")
	limit := firstNonEmpty(resp.Header, "x-ratelimit-limit-requests")

	return &Result{
		Text:         cr.Choices[0].Message.Content,
		Model:        cr.Model,
		PromptTokens: cr.Usage.PromptTokens,
		OutputTokens: cr.Usage.CompletionTokens,
		FinishReason: cr.Choices[0].FinishReason,
		RateLimit:    remaining + "/" + limit,
		Metrics:      resp.Metrics,
	}, nil
}
