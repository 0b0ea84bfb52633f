// ABOUTME: Content normalizer turning raw chat messages into bounded payloads
// ABOUTME: Truncates text, caps images, flags unsupported attachments, tolerates fetch failures

package content

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/2389/coven-replybot/internal/chat"
	"github.com/2389/coven-replybot/internal/nodes"
)

// Fetcher retrieves attachment data.
type Fetcher interface {
	FetchBytes(ctx context.Context, url string) ([]byte, error)
	FetchText(ctx context.Context, url string) (string, error)
}

// Limits bound the content produced for a single message.
type Limits struct {
	MaxText   int
	MaxImages int
	// Images is false when the provider cannot accept image input.
	Images bool
}

// EffectiveMaxImages is the image cap actually applied.
func (l Limits) EffectiveMaxImages() int {
	if !l.Images {
		return 0
	}
	return l.MaxImages
}

// maxConcurrentFetches bounds attachment downloads per message.
const maxConcurrentFetches = 4

// Normalizer builds node content from chat messages.
type Normalizer struct {
	fetcher Fetcher
	limits  Limits
	self    chat.Identity
	logger  *slog.Logger
}

// New creates a Normalizer.
func New(fetcher Fetcher, limits Limits, self chat.Identity, logger *slog.Logger) *Normalizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Normalizer{
		fetcher: fetcher,
		limits:  limits,
		self:    self,
		logger:  logger.With("component", "normalizer"),
	}
}

// Limits returns the configured bounds.
func (n *Normalizer) Limits() Limits {
	return n.limits
}

// Normalize returns the bounded content for msg and the flags describing any
// degradation. A failed attachment fetch drops that attachment only.
func (n *Normalizer) Normalize(ctx context.Context, msg *chat.Message) (nodes.Content, nodes.Flags) {
	var images, texts []chat.Attachment
	for _, att := range msg.Attachments {
		switch {
		case att.Is(chat.KindImage):
			images = append(images, att)
		case att.Is(chat.KindText):
			texts = append(texts, att)
		}
	}

	maxImages := n.limits.EffectiveMaxImages()
	keptImages := images
	if len(keptImages) > maxImages {
		keptImages = keptImages[:maxImages]
	}

	attachmentTexts, imageURIs := n.fetchAll(ctx, msg, texts, keptImages)

	segments := make([]string, 0, 1+len(msg.Embeds)+len(texts))
	if msg.Text != "" {
		segments = append(segments, msg.Text)
	}
	for _, e := range msg.Embeds {
		if e.Description != "" {
			segments = append(segments, e.Description)
		}
	}
	for _, t := range attachmentTexts {
		if t != "" {
			segments = append(segments, t)
		}
	}
	text := strings.Join(segments, "\n")
	if n.self.Mention != "" && strings.HasPrefix(msg.Text, n.self.Mention) {
		text = strings.TrimLeft(strings.Replace(text, n.self.Mention, "", 1), " \t\r\n")
	}

	truncated, textTruncated := Truncate(text, n.limits.MaxText)
	flags := nodes.Flags{
		TextTruncated:          textTruncated,
		ImagesTruncated:        len(images) > maxImages,
		UnsupportedAttachments: len(msg.Attachments) > len(images)+len(texts),
	}

	var parts []nodes.Part
	for _, uri := range imageURIs {
		if uri != "" {
			parts = append(parts, nodes.Part{Type: nodes.PartImage, ImageURL: uri})
		}
	}
	if len(keptImages) == 0 || len(parts) == 0 {
		return nodes.TextContent(truncated), flags
	}

	content := nodes.Content{Parts: make([]nodes.Part, 0, len(parts)+1)}
	if truncated != "" {
		content.Parts = append(content.Parts, nodes.Part{Type: nodes.PartText, Text: truncated})
	}
	content.Parts = append(content.Parts, parts...)
	return content, flags
}

// fetchAll downloads text attachments and kept images concurrently. Results
// keep attachment order; a failed fetch leaves an empty slot.
func (n *Normalizer) fetchAll(ctx context.Context, msg *chat.Message, texts, images []chat.Attachment) ([]string, []string) {
	textOut := make([]string, len(texts))
	imageOut := make([]string, len(images))

	var g errgroup.Group
	g.SetLimit(maxConcurrentFetches)

	for i, att := range texts {
		g.Go(func() error {
			s, err := n.fetcher.FetchText(ctx, att.URL)
			if err != nil {
				n.logger.Warn("failed to fetch text attachment",
					"message", msg.ID, "attachment", att.Name, "error", err)
				return nil
			}
			textOut[i] = s
			return nil
		})
	}
	for i, att := range images {
		g.Go(func() error {
			data, err := n.fetcher.FetchBytes(ctx, att.URL)
			if err != nil {
				n.logger.Warn("failed to fetch image attachment",
					"message", msg.ID, "attachment", att.Name, "error", err)
				return nil
			}
			imageOut[i] = DataURI(att.ContentType, data)
			return nil
		})
	}
	_ = g.Wait()

	return textOut, imageOut
}

// DataURI encodes data as a base64 data URI with the given media type.
func DataURI(mediaType string, data []byte) string {
	return fmt.Sprintf("data:%s;base64,%s", mediaType, base64.StdEncoding.EncodeToString(data))
}

// Truncate shortens s to at most max code points and reports whether it
// was shortened.
func Truncate(s string, max int) (string, bool) {
	if max < 0 {
		max = 0
	}
	count := 0
	for i := range s {
		if count == max {
			return s[:i], true
		}
		count++
	}
	return s, false
}
