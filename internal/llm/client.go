package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/jdships/yodoo-rebuild/internal/domain"
)

var (
	ErrNoAPIKey         = errors.New("no API key configured for provider")
	ErrUnknownProvider  = errors.New("unknown model provider")
	ErrEmptyCompletion  = errors.New("model returned an empty completion")
	defaultProviderURLs = map[domain.Provider]string{
		domain.ProviderOpenAI:     "https://api.openai.com/v1",
		domain.ProviderMistral:    "https://api.mistral.ai/v1",
		domain.ProviderOpenRouter: "https://openrouter.ai/api/v1",
	}
)

// UpstreamError is a non-2xx reply of a provider.
type UpstreamError struct {
	Provider   domain.Provider
	StatusCode int
	Message    string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s returned %d: %s", e.Provider, e.StatusCode, e.Message)
}

// ProviderConfig is the server-side endpoint and key of a provider.
type ProviderConfig struct {
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
}

// Message is one turn sent upstream.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is a chat completion request.
type Request struct {
	Provider domain.Provider
	Model    string
	Messages []Message
	// APIKey overrides the server key, e.g. a user's own key.
	APIKey string
}

// Completion is the assistant reply.
type Completion struct {
	Content      string
	FinishReason string
}

// Completer produces completions.
type Completer interface {
	Complete(ctx context.Context, req Request) (*Completion, error)
	// Stream calls onDelta for each content fragment and returns the full reply.
	Stream(ctx context.Context, req Request, onDelta func(delta string) error) (*Completion, error)
}

// Client talks to OpenAI-compatible chat completion endpoints.
type Client struct {
	httpClient *http.Client
	providers  map[domain.Provider]ProviderConfig
	appName    string
	appURL     string
}

// NewClient creates a client. Missing base URLs fall back to the public endpoints.
func NewClient(providers map[domain.Provider]ProviderConfig, httpClient *http.Client, appName, appURL string) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 5 * time.Minute}
	}
	resolved := make(map[domain.Provider]ProviderConfig, len(defaultProviderURLs))
	for p, url := range defaultProviderURLs {
		cfg := providers[p]
		if cfg.BaseURL == "" {
			cfg.BaseURL = url
		}
		cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
		resolved[p] = cfg
	}
	return &Client{httpClient: httpClient, providers: resolved, appName: appName, appURL: appURL}
}

// HasServerKey reports whether the server holds a key for p.
func (c *Client) HasServerKey(p domain.Provider) bool {
	return c.providers[p].APIKey != ""
}

func (c *Client) Complete(ctx context.Context, req Request) (*Completion, error) {
	api, err := c.api(req)
	if err != nil {
		return nil, err
	}

	resp, err := api.CreateChatCompletion(ctx, chatRequest(req))
	if err != nil {
		return nil, upstreamError(req.Provider, err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return nil, ErrEmptyCompletion
	}
	choice := resp.Choices[0]
	return &Completion{Content: choice.Message.Content, FinishReason: string(choice.FinishReason)}, nil
}

func (c *Client) Stream(ctx context.Context, req Request, onDelta func(delta string) error) (*Completion, error) {
	api, err := c.api(req)
	if err != nil {
		return nil, err
	}

	stream, err := api.CreateChatCompletionStream(ctx, chatRequest(req))
	if err != nil {
		return nil, upstreamError(req.Provider, err)
	}
	defer stream.Close()

	var content strings.Builder
	out := &Completion{}
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, upstreamError(req.Provider, err)
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		choice := chunk.Choices[0]
		if choice.FinishReason != "" {
			out.FinishReason = string(choice.FinishReason)
		}
		delta := choice.Delta.Content
		if delta == "" {
			continue
		}
		content.WriteString(delta)
		if onDelta != nil {
			if err := onDelta(delta); err != nil {
				return nil, err
			}
		}
	}

	out.Content = content.String()
	if out.Content == "" {
		return nil, ErrEmptyCompletion
	}
	return out, nil
}

// api builds a go-openai client bound to the provider endpoint and the
// request's key, falling back to the server key.
func (c *Client) api(req Request) (*openai.Client, error) {
	cfg, ok := c.providers[req.Provider]
	if !ok {
		return nil, ErrUnknownProvider
	}
	key := req.APIKey
	if key == "" {
		key = cfg.APIKey
	}
	if key == "" {
		return nil, fmt.Errorf("%w: %s", ErrNoAPIKey, req.Provider)
	}

	oc := openai.DefaultConfig(key)
	oc.BaseURL = cfg.BaseURL
	oc.HTTPClient = c.httpClient
	if req.Provider == domain.ProviderOpenRouter {
		oc.HTTPClient = &attributedDoer{next: c.httpClient, referer: c.appURL, title: c.appName}
	}
	return openai.NewClientWithConfig(oc), nil
}

func chatRequest(req Request) openai.ChatCompletionRequest {
	msgs := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	return openai.ChatCompletionRequest{Model: req.Model, Messages: msgs}
}

// upstreamError turns go-openai's API and request errors into UpstreamError.
// Transport and context errors pass through.
func upstreamError(p domain.Provider, err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		status := apiErr.HTTPStatusCode
		if status == 0 {
			// errors embedded in an open stream
			status = http.StatusBadGateway
		}
		return &UpstreamError{Provider: p, StatusCode: status, Message: apiErr.Message}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		msg := strings.TrimSpace(string(reqErr.Body))
		if msg == "" && reqErr.Err != nil {
			msg = reqErr.Err.Error()
		}
		return &UpstreamError{Provider: p, StatusCode: reqErr.HTTPStatusCode, Message: msg}
	}
	return err
}

// attributedDoer adds the OpenRouter app attribution headers.
type attributedDoer struct {
	next    *http.Client
	referer string
	title   string
}

func (d *attributedDoer) Do(r *http.Request) (*http.Response, error) {
	if d.referer != "" {
		r.Header.Set("HTTP-Referer", d.referer)
	}
	r.Header.Set("X-Title", d.title)
	return d.next.Do(r)
}
