// ABOUTME: Completion provider contract and request/response types
// ABOUTME: Also detects model capabilities (image input, per-speaker names)

package llm

import (
	"context"
	"errors"
	"strings"

	"github.com/2389/coven-replybot/internal/nodes"
)

// ErrNoCompletion marks any recoverable failure to obtain generated text:
// transport errors, responses without candidates, and empty output.
var ErrNoCompletion = errors.New("no completion")

// Message is one entry of the conversation sent to a provider.
type Message struct {
	Role    nodes.Role
	Content nodes.Content
	Name    string
}

// Settings are free-form provider parameters (temperature, max_tokens, ...).
type Settings map[string]any

// Request is a single completion request.
type Request struct {
	Model    string
	System   string
	Messages []Message
	Settings Settings
}

// Response is a provider reply. Choices counts the candidates returned.
type Response struct {
	Text    string
	Choices int
}

// Provider produces completions.
type Provider interface {
	Complete(ctx context.Context, req Request) (Response, error)
}

var imageModelMarkers = []string{"claude-3", "claude-sonnet", "claude-opus", "gpt-4-turbo", "gpt-4o", "gpt-4.1", "llava", "vision", "gemini"}

// SupportsImages guesses whether model accepts image input.
func SupportsImages(model string) bool {
	m := strings.ToLower(model)
	for _, marker := range imageModelMarkers {
		if strings.Contains(m, marker) {
			return true
		}
	}
	return false
}

// SupportsNames guesses whether model accepts per-message speaker names.
func SupportsNames(model string) bool {
	m := strings.ToLower(model)
	return strings.HasPrefix(m, "gpt") || strings.HasPrefix(m, "openai/gpt")
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	}
	return 0, false
}
