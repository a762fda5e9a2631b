// Package openai implements domain.ChatClient against any OpenAI-compatible
// chat-completions endpoint. The API key comes per call from the leased
// credential, never from process configuration.
package openai

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/claymoreai/claymore/internal/domain"
	"github.com/claymoreai/claymore/internal/observability"
)

// Client calls POST {base}/chat/completions and returns the first assistant
// message's content.
type Client struct {
	baseURL string
	hc      *http.Client
}

// New constructs a chat client with a timeout sized for long completions.
func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		hc:      &http.Client{Timeout: 120 * time.Second},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Chat issues one completion. History turns become alternating user/assistant
// messages ahead of the final user input. 429 maps to ErrUpstreamRateLimit,
// other 4xx to ErrUpstreamPermanent, 5xx and transport failures to
// ErrUpstreamTimeout.
func (c *Client) Chat(ctx domain.Context, req domain.ChatRequest) (string, error) {
	msgs := make([]chatMessage, 0, 2*len(req.History)+1)
	for _, h := range req.History {
		msgs = append(msgs,
			chatMessage{Role: "user", Content: h.UserInput},
			chatMessage{Role: "assistant", Content: h.AIOutput},
		)
	}
	msgs = append(msgs, chatMessage{Role: "user", Content: req.Input})

	body, err := json.Marshal(chatCompletionRequest{
		Model:       req.Model,
		Messages:    msgs,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("op=openai.Chat marshal: %w", err)
	}

	r, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("op=openai.Chat request: %w", err)
	}
	r.Header.Set("Content-Type", "application/json")
	r.Header.Set("Authorization", "Bearer "+req.Secret)

	resp, err := c.hc.Do(r)
	if err != nil {
		observability.ObserveLLMCall(req.Model, "network_error")
		return "", fmt.Errorf("op=openai.Chat: %w: %v", domain.ErrUpstreamTimeout, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		observability.ObserveLLMCall(req.Model, "rate_limited")
		slog.Warn("llm provider rate limited",
			slog.String("model", req.Model),
			slog.Int("status", resp.StatusCode),
			slog.String("x_request_id", resp.Header.Get("X-Request-Id")))
		return "", fmt.Errorf("op=openai.Chat status %d: %w", resp.StatusCode, domain.ErrUpstreamRateLimit)
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		observability.ObserveLLMCall(req.Model, "client_error")
		slog.Warn("llm provider 4xx",
			slog.String("model", req.Model),
			slog.Int("status", resp.StatusCode),
			slog.String("body", readSnippet(resp.Body, 512)))
		return "", fmt.Errorf("op=openai.Chat status %d: %w", resp.StatusCode, domain.ErrUpstreamPermanent)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		observability.ObserveLLMCall(req.Model, "server_error")
		slog.Error("llm provider non-2xx",
			slog.String("model", req.Model),
			slog.Int("status", resp.StatusCode),
			slog.String("body", readSnippet(resp.Body, 512)))
		return "", fmt.Errorf("op=openai.Chat status %d: %w", resp.StatusCode, domain.ErrUpstreamTimeout)
	}

	var out chatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		observability.ObserveLLMCall(req.Model, "decode_error")
		return "", fmt.Errorf("op=openai.Chat decode: %w", err)
	}
	observability.ObserveLLMCall(req.Model, "ok")
	if len(out.Choices) == 0 {
		return "", nil
	}
	return out.Choices[0].Message.Content, nil
}

// readSnippet reads up to n bytes from r for log context.
func readSnippet(r io.Reader, n int) string {
	b, _ := io.ReadAll(io.LimitReader(r, int64(n)))
	return string(b)
}
