package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/claymoreai/claymore/internal/domain"
)

func TestChatSuccess(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"a haiku"}}]}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	out, err := c.Chat(context.Background(), domain.ChatRequest{
		Model:       "gpt-3.5-turbo",
		Input:       "write a haiku",
		MaxTokens:   2048,
		Temperature: 0.1,
		Secret:      "sk-test",
	})
	require.NoError(t, err)
	assert.Equal(t, "a haiku", out)
	assert.Equal(t, "gpt-3.5-turbo", got["model"])
	assert.EqualValues(t, 2048, got["max_tokens"])
}

func TestChatHistoryOrdering(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Len(t, body.Messages, 3)
		assert.Equal(t, "user", body.Messages[0].Role)
		assert.Equal(t, "assistant", body.Messages[1].Role)
		assert.Equal(t, "user", body.Messages[2].Role)
		assert.Equal(t, "follow up", body.Messages[2].Content)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"ok"}}]}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	out, err := c.Chat(context.Background(), domain.ChatRequest{
		Model: "gpt-4-1106-preview",
		Input: "follow up",
		History: []domain.ChatTurn{
			{UserInput: "hi", AIOutput: "hello"},
		},
		Secret: "sk-test",
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
}

func TestChatStatusClassification(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		sentinel error
	}{
		{"rate_limited", http.StatusTooManyRequests, domain.ErrUpstreamRateLimit},
		{"permanent", http.StatusUnprocessableEntity, domain.ErrUpstreamPermanent},
		{"server_error", http.StatusBadGateway, domain.ErrUpstreamTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			c := New(srv.URL)
			_, err := c.Chat(context.Background(), domain.ChatRequest{Model: "m", Input: "x", Secret: "s"})
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.sentinel)
		})
	}
}

func TestChatNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close()

	c := New(srv.URL)
	_, err := c.Chat(context.Background(), domain.ChatRequest{Model: "m", Input: "x", Secret: "s"})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUpstreamTimeout)
}

func TestChatEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	out, err := c.Chat(context.Background(), domain.ChatRequest{Model: "m", Input: "x", Secret: "s"})
	require.NoError(t, err)
	assert.Equal(t, "", out)
}
