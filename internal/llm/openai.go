// ABOUTME: OpenAI-compatible chat completions provider with SSE streaming
// ABOUTME: Works with hosted APIs and local servers exposing /chat/completions

package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/2389/coven-replybot/internal/nodes"
)

// DefaultOpenAIURL is used when no base URL is configured.
const DefaultOpenAIURL = "https://api.openai.com/v1"

// sseDone terminates an OpenAI event stream.
const sseDone = "[DONE]"

type wireImageURL struct {
	URL string `json:"url"`
}

type wirePart struct {
	Type     string        `json:"type"`
	Text     string        `json:"text,omitempty"`
	ImageURL *wireImageURL `json:"image_url,omitempty"`
}

type wireMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
	Name    string `json:"name,omitempty"`
}

// streamChunk is one chat.completion.chunk from the event stream.
type streamChunk struct {
	Choices []struct {
		Index int `json:"index"`
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Error *apiError `json:"error,omitempty"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type,omitempty"`
}

type errorBody struct {
	Error apiError `json:"error"`
}

// OpenAI talks to an OpenAI-compatible chat completions endpoint.
type OpenAI struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewOpenAI creates a provider for baseURL. An empty apiKey sends no
// Authorization header, which local servers generally accept.
func NewOpenAI(baseURL, apiKey string, timeout time.Duration) *OpenAI {
	if baseURL == "" {
		baseURL = DefaultOpenAIURL
	}
	return &OpenAI{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

// Complete implements Provider.
func (o *OpenAI) Complete(ctx context.Context, req Request) (Response, error) {
	body := make(map[string]any, len(req.Settings)+3)
	for k, v := range req.Settings {
		body[k] = v
	}
	body["model"] = req.Model
	body["messages"] = toWireMessages(req)
	body["stream"] = true

	payload, err := json.Marshal(body)
	if err != nil {
		return Response{}, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		o.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return Response{}, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	if o.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)
	}

	resp, err := o.client.Do(httpReq)
	if err != nil {
		return Response{}, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Response{}, handleErrorResponse(resp)
	}

	return parseSSEStream(ctx, resp.Body)
}

func toWireMessages(req Request) []wireMessage {
	out := make([]wireMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		out = append(out, wireMessage{Role: "system", Content: req.System})
	}
	for _, m := range req.Messages {
		wm := wireMessage{Role: string(m.Role), Name: m.Name}
		if m.Content.IsMultipart() {
			parts := make([]wirePart, 0, len(m.Content.Parts))
			for _, p := range m.Content.Parts {
				switch p.Type {
				case nodes.PartText:
					parts = append(parts, wirePart{Type: "text", Text: p.Text})
				case nodes.PartImage:
					parts = append(parts, wirePart{Type: "image_url", ImageURL: &wireImageURL{URL: p.ImageURL}})
				}
			}
			wm.Content = parts
		} else {
			wm.Content = m.Content.Text
		}
		out = append(out, wm)
	}
	return out
}

// handleErrorResponse extracts the error message from non-200 responses.
func handleErrorResponse(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		var errResp errorBody
		if json.Unmarshal(body, &errResp) == nil && errResp.Error.Message != "" {
			return fmt.Errorf("provider error (%d): %s", resp.StatusCode, errResp.Error.Message)
		}
	}

	return fmt.Errorf("provider returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
}

// parseSSEStream accumulates delta content from the event stream. Only the
// first choice contributes text; Choices reports whether any choice arrived.
func parseSSEStream(ctx context.Context, body io.Reader) (Response, error) {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var text strings.Builder
	var dataLines []string
	choices := 0

	flush := func() (bool, error) {
		if len(dataLines) == 0 {
			return false, nil
		}
		data := strings.Join(dataLines, "\n")
		dataLines = nil

		if data == sseDone {
			return true, nil
		}

		var chunk streamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return false, fmt.Errorf("decoding stream chunk: %w", err)
		}
		if chunk.Error != nil {
			return false, fmt.Errorf("provider error: %s", chunk.Error.Message)
		}
		for _, c := range chunk.Choices {
			if c.Index != 0 {
				continue
			}
			if choices == 0 {
				choices = 1
			}
			text.WriteString(c.Delta.Content)
		}
		return false, nil
	}

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return Response{}, ctx.Err()
		default:
		}

		line := scanner.Text()

		// Empty line signals end of event
		if line == "" {
			done, err := flush()
			if err != nil {
				return Response{}, err
			}
			if done {
				return Response{Text: text.String(), Choices: choices}, nil
			}
			continue
		}

		if strings.HasPrefix(line, "data:") {
			dataLines = append(dataLines, strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}
	}

	if err := scanner.Err(); err != nil {
		return Response{}, fmt.Errorf("reading SSE stream: %w", err)
	}
	if _, err := flush(); err != nil {
		return Response{}, err
	}

	return Response{Text: text.String(), Choices: choices}, nil
}
