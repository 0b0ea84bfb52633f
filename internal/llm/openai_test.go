// ABOUTME: Tests for the OpenAI-compatible provider
// ABOUTME: Serves SSE streams from httptest to check request shape and stream parsing

package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-replybot/internal/nodes"
)

func sseServer(t *testing.T, chunks []string, capture *map[string]any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		if capture != nil {
			assert.NoError(t, json.NewDecoder(r.Body).Decode(capture))
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, c := range chunks {
			fmt.Fprintf(w, "data: %s\n\n", c)
		}
	}))
}

func deltaChunk(s string) string {
	b, _ := json.Marshal(map[string]any{
		"choices": []map[string]any{{"index": 0, "delta": map[string]string{"content": s}}},
	})
	return string(b)
}

func TestOpenAI_StreamsText(t *testing.T) {
	var got map[string]any
	srv := sseServer(t, []string{deltaChunk("Hel"), deltaChunk("lo"), deltaChunk(" world"), "[DONE]"}, &got)
	defer srv.Close()

	p := NewOpenAI(srv.URL+"/v1/", "sk-test", 5*time.Second)
	resp, err := p.Complete(context.Background(), Request{
		Model:  "gpt-4o",
		System: "sys",
		Messages: []Message{
			{Role: nodes.RoleUser, Name: "@alice", Content: nodes.Content{Parts: []nodes.Part{
				{Type: nodes.PartText, Text: "what is this?"},
				{Type: nodes.PartImage, ImageURL: "data:image/png;base64,AAAA"},
			}}},
		},
		Settings: Settings{"temperature": 0.5},
	})
	require.NoError(t, err)
	assert.Equal(t, "Hello world", resp.Text)
	assert.Equal(t, 1, resp.Choices)

	assert.Equal(t, "gpt-4o", got["model"])
	assert.Equal(t, true, got["stream"])
	assert.Equal(t, 0.5, got["temperature"])

	msgs := got["messages"].([]any)
	require.Len(t, msgs, 2)
	system := msgs[0].(map[string]any)
	assert.Equal(t, "system", system["role"])
	assert.Equal(t, "sys", system["content"])

	user := msgs[1].(map[string]any)
	assert.Equal(t, "@alice", user["name"])
	parts := user["content"].([]any)
	require.Len(t, parts, 2)
	assert.Equal(t, "image_url", parts[1].(map[string]any)["type"])
	assert.Equal(t, "data:image/png;base64,AAAA", parts[1].(map[string]any)["image_url"].(map[string]any)["url"])
}

func TestOpenAI_NoChoices(t *testing.T) {
	srv := sseServer(t, []string{`{"choices":[]}`, "[DONE]"}, nil)
	defer srv.Close()

	p := NewOpenAI(srv.URL+"/v1", "sk-test", 5*time.Second)
	resp, err := p.Complete(context.Background(), Request{Model: "m"})
	require.NoError(t, err)
	assert.Equal(t, 0, resp.Choices)
}

func TestOpenAI_StreamError(t *testing.T) {
	srv := sseServer(t, []string{deltaChunk("partial"), `{"error":{"message":"overloaded"}}`}, nil)
	defer srv.Close()

	p := NewOpenAI(srv.URL+"/v1", "sk-test", 5*time.Second)
	_, err := p.Complete(context.Background(), Request{Model: "m"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "overloaded")
}

func TestOpenAI_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"invalid api key","type":"auth"}}`))
	}))
	defer srv.Close()

	p := NewOpenAI(srv.URL, "bad", 5*time.Second)
	_, err := p.Complete(context.Background(), Request{Model: "m"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid api key")
	assert.Contains(t, err.Error(), "401")
}

func TestParseSSEStream_WithoutTrailingBlankLine(t *testing.T) {
	body := strings.NewReader("data: " + deltaChunk("tail"))
	resp, err := parseSSEStream(context.Background(), body)
	require.NoError(t, err)
	assert.Equal(t, "tail", resp.Text)
	assert.Equal(t, 1, resp.Choices)
}
