// ABOUTME: Google Gemini provider built on the genai SDK
// ABOUTME: Maps context nodes to genai contents, including inline image data

package llm

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/2389/coven-replybot/internal/nodes"
)

// Gemini generates completions through the Gemini API.
type Gemini struct {
	client *genai.Client
}

// NewGemini creates a Gemini provider. baseURL overrides the API endpoint
// and is normally empty.
func NewGemini(ctx context.Context, apiKey, baseURL string) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}

	cc := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		cc.HTTPOptions.BaseURL = baseURL
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}
	return &Gemini{client: client}, nil
}

// Complete implements Provider.
func (g *Gemini) Complete(ctx context.Context, req Request) (Response, error) {
	contents, err := toGenaiContents(req.Messages)
	if err != nil {
		return Response{}, err
	}

	cfg := generateConfig(req.Settings)
	if req.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}

	resp, err := g.client.Models.GenerateContent(ctx, req.Model, contents, cfg)
	if err != nil {
		return Response{}, fmt.Errorf("gemini generate: %w", err)
	}
	return Response{Text: resp.Text(), Choices: len(resp.Candidates)}, nil
}

// toGenaiContents converts messages, merging consecutive messages that share
// a role into one content.
func toGenaiContents(msgs []Message) ([]*genai.Content, error) {
	var out []*genai.Content
	for _, m := range msgs {
		role := genai.Role(genai.RoleUser)
		if m.Role == nodes.RoleAssistant {
			role = genai.RoleModel
		}

		var parts []*genai.Part
		if !m.Content.IsMultipart() {
			parts = append(parts, genai.NewPartFromText(m.Content.Text))
		}
		for _, p := range m.Content.Parts {
			switch p.Type {
			case nodes.PartText:
				parts = append(parts, genai.NewPartFromText(p.Text))
			case nodes.PartImage:
				mime, data, err := decodeDataURI(p.ImageURL)
				if err != nil {
					return nil, err
				}
				parts = append(parts, genai.NewPartFromBytes(data, mime))
			}
		}

		if n := len(out); n > 0 && out[n-1].Role == string(role) {
			out[n-1].Parts = append(out[n-1].Parts, parts...)
			continue
		}
		out = append(out, genai.NewContentFromParts(parts, role))
	}
	return out, nil
}

func generateConfig(s Settings) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{}
	if v, ok := toFloat(s["temperature"]); ok {
		cfg.Temperature = genai.Ptr(float32(v))
	}
	if v, ok := toFloat(s["top_p"]); ok {
		cfg.TopP = genai.Ptr(float32(v))
	}
	if v, ok := toFloat(s["top_k"]); ok {
		cfg.TopK = genai.Ptr(float32(v))
	}
	for _, key := range []string{"max_tokens", "max_output_tokens"} {
		if v, ok := toFloat(s[key]); ok {
			cfg.MaxOutputTokens = int32(v)
		}
	}
	return cfg
}

// decodeDataURI splits a base64 data URI into its media type and bytes.
func decodeDataURI(uri string) (string, []byte, error) {
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return "", nil, fmt.Errorf("not a data URI")
	}
	header, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, fmt.Errorf("malformed data URI")
	}
	mime, isBase64 := strings.CutSuffix(header, ";base64")
	if !isBase64 {
		return "", nil, fmt.Errorf("data URI is not base64 encoded")
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("decoding data URI: %w", err)
	}
	return mime, data, nil
}
