// Package llm provides minimal HTTP clients for the chat-completion APIs
// of the supported providers (Anthropic, OpenAI, Ollama). The intent
// verifier is the only in-tree consumer; streaming is deliberately not
// supported here.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/llmos-bridge/bridge/pkg/config"
)

// maxRequestAttempts bounds retries of transient provider failures
// (network errors, 429, 5xx). Other statuses fail immediately.
const maxRequestAttempts = 3

// Client is the minimal completion contract the verifier needs.
type Client interface {
	// Complete sends one system+user exchange and returns the assistant text.
	Complete(ctx context.Context, system, user string) (string, error)
	// Provider returns the configured provider name.
	Provider() string
}

// NewClient selects a provider client from configuration.
func NewClient(cfg *config.LLMConfig) (Client, error) {
	httpClient := &http.Client{Timeout: cfg.Timeout}
	switch cfg.Provider {
	case "anthropic":
		return &anthropicClient{cfg: cfg, http: httpClient}, nil
	case "openai":
		return &openaiClient{cfg: cfg, http: httpClient}, nil
	case "ollama":
		return &ollamaClient{cfg: cfg, http: httpClient}, nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}

func baseURL(cfg *config.LLMConfig, fallback string) string {
	if cfg.BaseURL != "" {
		return strings.TrimRight(cfg.BaseURL, "/")
	}
	return fallback
}

func maxTokens(cfg *config.LLMConfig) int {
	if cfg.MaxTokens > 0 {
		return cfg.MaxTokens
	}
	return 1024
}

func postJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 100 * time.Millisecond
	bo.MaxElapsedTime = 0

	attempt := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to build request: %w", err))
		}
		req.Header.Set("Content-Type", "application/json")
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()

		data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return fmt.Errorf("failed to read response: %w", err)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			statusErr := fmt.Errorf("llm request failed: status %d: %s",
				resp.StatusCode, truncate(string(data), 256))
			if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
				return statusErr
			}
			return backoff.Permanent(statusErr)
		}
		if err := json.Unmarshal(data, out); err != nil {
			return backoff.Permanent(fmt.Errorf("failed to decode response: %w", err))
		}
		return nil
	}
	return backoff.Retry(attempt, backoff.WithMaxRetries(backoff.WithContext(bo, ctx), maxRequestAttempts-1))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}

// --- Anthropic messages API ---

type anthropicClient struct {
	cfg  *config.LLMConfig
	http *http.Client
}

func (c *anthropicClient) Provider() string { return "anthropic" }

func (c *anthropicClient) Complete(ctx context.Context, system, user string) (string, error) {
	var resp struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	}
	err := postJSON(ctx, c.http,
		baseURL(c.cfg, "https://api.anthropic.com")+"/v1/messages",
		map[string]string{
			"x-api-key":         c.cfg.APIKey(),
			"anthropic-version": "2023-06-01",
		},
		map[string]any{
			"model":      c.cfg.Model,
			"max_tokens": maxTokens(c.cfg),
			"system":     system,
			"messages": []map[string]string{
				{"role": "user", "content": user},
			},
		}, &resp)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	return b.String(), nil
}

// --- OpenAI chat completions API ---

type openaiClient struct {
	cfg  *config.LLMConfig
	http *http.Client
}

func (c *openaiClient) Provider() string { return "openai" }

func (c *openaiClient) Complete(ctx context.Context, system, user string) (string, error) {
	var resp struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	err := postJSON(ctx, c.http,
		baseURL(c.cfg, "https://api.openai.com")+"/v1/chat/completions",
		map[string]string{
			"Authorization": "Bearer " + c.cfg.APIKey(),
		},
		map[string]any{
			"model":      c.cfg.Model,
			"max_tokens": maxTokens(c.cfg),
			"messages": []map[string]string{
				{"role": "system", "content": system},
				{"role": "user", "content": user},
			},
		}, &resp)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("llm response has no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// --- Ollama chat API ---

type ollamaClient struct {
	cfg  *config.LLMConfig
	http *http.Client
}

func (c *ollamaClient) Provider() string { return "ollama" }

func (c *ollamaClient) Complete(ctx context.Context, system, user string) (string, error) {
	var resp struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	}
	err := postJSON(ctx, c.http,
		baseURL(c.cfg, "http://localhost:11434")+"/api/chat",
		nil,
		map[string]any{
			"model":  c.cfg.Model,
			"stream": false,
			"messages": []map[string]string{
				{"role": "system", "content": system},
				{"role": "user", "content": user},
			},
		}, &resp)
	if err != nil {
		return "", err
	}
	return resp.Message.Content, nil
}
