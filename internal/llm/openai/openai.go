// Package openai implements the Completer interface against an
// OpenAI-compatible chat-completions endpoint, including function calling.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"golang.org/x/time/rate"

	"librarian/internal/llm"
)

// Client is a chat-completions client.
type Client struct {
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	maxTokens   int
	client      *http.Client
	limiter     *rate.Limiter
}

// Config configures the chat client. Temperature and MaxTokens are defaults
// that per-request options may override.
type Config struct {
	BaseURL     string
	APIKeyEnv   string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
	// RatePerSec caps outgoing requests; zero disables the limiter.
	RatePerSec float64
}

// NewClient creates a chat-completions client from the configuration.
func NewClient(cfg Config) (*Client, error) {
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("missing API key in env %s", cfg.APIKeyEnv)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	t := cfg.Timeout
	if t == 0 {
		t = 60 * time.Second
	}
	var limiter *rate.Limiter
	if cfg.RatePerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), 1)
	}
	return &Client{
		baseURL:     cfg.BaseURL,
		apiKey:      key,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		client:      &http.Client{Timeout: t},
		limiter:     limiter,
	}, nil
}

type request struct {
	Model       string         `json:"model"`
	Messages    []llm.Message  `json:"messages"`
	Temperature float64        `json:"temperature"`
	MaxTokens   int            `json:"max_tokens,omitempty"`
	Tools       []llm.ToolSpec `json:"tools,omitempty"`
	ToolChoice  string         `json:"tool_choice,omitempty"`
}

type response struct {
	Choices []struct {
		Message struct {
			Content   string         `json:"content"`
			ToolCalls []llm.ToolCall `json:"tool_calls"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Complete sends the conversation and returns the first choice. When tools
// are offered, tool choice is left to the model ("auto").
func (c *Client) Complete(ctx context.Context, messages []llm.Message, opts ...llm.Option) (*llm.Completion, error) {
	o := llm.BuildOptions(opts...)
	body := request{
		Model:       c.model,
		Messages:    messages,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	}
	if o.Model != "" {
		body.Model = o.Model
	}
	if o.Temperature != 0 {
		body.Temperature = o.Temperature
	}
	if o.MaxTokens != 0 {
		body.MaxTokens = o.MaxTokens
	}
	if len(o.Tools) > 0 {
		body.Tools = o.Tools
		body.ToolChoice = "auto"
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("openai chat: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/chat/completions", c.baseURL), bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("openai chat: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openai chat: send request: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("openai chat: read response: %w", err)
	}

	var out response
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, fmt.Errorf("openai chat: parse response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		if out.Error != nil {
			return nil, fmt.Errorf("openai chat: %s (%s)", out.Error.Message, resp.Status)
		}
		return nil, fmt.Errorf("openai chat: unexpected status %s", resp.Status)
	}
	if len(out.Choices) == 0 {
		return nil, fmt.Errorf("openai chat: no choices in response")
	}
	msg := out.Choices[0].Message
	return &llm.Completion{
		Content:   msg.Content,
		ToolCalls: msg.ToolCalls,
	}, nil
}
