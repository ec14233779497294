package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/resqmeals/gateway/auth"
	"github.com/resqmeals/gateway/core/fault"
)

func TestOpenAICompleteSendsPromptPair(t *testing.T) {
	var got openai.ChatCompletionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"{\"ok\":true}"}}]}`))
	}))
	defer srv.Close()

	cfg := Config{Provider: ProviderOpenAI, Model: "gpt-test", APIKey: "sk-test", BaseURL: srv.URL + "/v1/", Temperature: 0.2}
	cfg.SetDefaults()
	out, err := NewOpenAIClient(cfg).Complete(context.Background(), "sys", "user")

	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, out)
	assert.Equal(t, "gpt-test", got.Model)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, openai.ChatMessageRoleSystem, got.Messages[0].Role)
	assert.Equal(t, "sys", got.Messages[0].Content)
	assert.Equal(t, openai.ChatMessageRoleUser, got.Messages[1].Role)
	assert.Equal(t, "user", got.Messages[1].Content)
	assert.Equal(t, 800, got.MaxTokens)
	assert.InDelta(t, 0.2, got.Temperature, 1e-6)
}

func TestOpenAIMissingKeyIsConfiguration(t *testing.T) {
	_, err := NewOpenAIClient(Config{Model: "m"}).Complete(context.Background(), "s", "u")
	assert.ErrorIs(t, err, fault.ErrConfiguration)
}

func TestOpenAINon2xxIsTransportWithoutRetry(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewOpenAIClient(Config{Model: "m", APIKey: "k", BaseURL: srv.URL}).Complete(context.Background(), "s", "u")
	require.Error(t, err)
	assert.ErrorIs(t, err, fault.ErrTransport)
	assert.Contains(t, err.Error(), "status 503")
	assert.Equal(t, 1, calls)
}

func TestOpenAIAPIErrorCarriesMessage(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"rate limited","type":"requests","code":"rate_limit_exceeded"}}`))
	}))
	defer srv.Close()

	_, err := NewOpenAIClient(Config{Model: "m", APIKey: "k", BaseURL: srv.URL}).Complete(context.Background(), "s", "u")
	require.Error(t, err)
	assert.ErrorIs(t, err, fault.ErrTransport)
	assert.Contains(t, err.Error(), "status 429: rate limited")
	assert.Equal(t, 1, calls)
}

func TestOpenAIEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	_, err := NewOpenAIClient(Config{Model: "m", APIKey: "k", BaseURL: srv.URL}).Complete(context.Background(), "s", "u")
	assert.ErrorIs(t, err, fault.ErrTransport)
}

func TestWatsonxUsesProviderToken(t *testing.T) {
	var got watsonxRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ml/v1/text/chat", r.URL.Path)
		assert.Equal(t, watsonxVersion, r.URL.Query().Get("version"))
		assert.Equal(t, "Bearer iam-token", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"hello"}}]}`))
	}))
	defer srv.Close()

	cfg := Config{Model: "ibm/granite", ProjectID: "proj-1", BaseURL: srv.URL}
	out, err := NewWatsonxClient(cfg, auth.StaticProvider("iam-token")).Complete(context.Background(), "s", "u")

	require.NoError(t, err)
	assert.Equal(t, "hello", out)
	assert.Equal(t, "ibm/granite", got.ModelID)
	assert.Equal(t, "proj-1", got.ProjectID)
}

func TestWatsonxMissingProject(t *testing.T) {
	_, err := NewWatsonxClient(Config{Model: "m"}, auth.StaticProvider("t")).Complete(context.Background(), "s", "u")
	assert.ErrorIs(t, err, fault.ErrConfiguration)
}

func TestNewProviderSelection(t *testing.T) {
	c, err := New(Config{Provider: "OpenAI"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &OpenAIClient{}, c)

	c, err = New(Config{Provider: "watsonx"}, auth.StaticProvider("t"))
	require.NoError(t, err)
	assert.IsType(t, &WatsonxClient{}, c)

	c, err = New(Config{Provider: "bard"}, nil)
	assert.ErrorIs(t, err, fault.ErrConfiguration)
	_, callErr := c.Complete(context.Background(), "s", "u")
	assert.ErrorIs(t, callErr, fault.ErrConfiguration)

	_, err = New(Config{}, nil)
	assert.ErrorIs(t, err, fault.ErrConfiguration)
}
