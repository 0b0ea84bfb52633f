// ABOUTME: Response publisher: chunked placeholders followed by one debounced edit pass
// ABOUTME: Registers the bot's replies as context nodes before editing them

package publish

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/2389/coven-replybot/internal/chat"
	"github.com/2389/coven-replybot/internal/nodes"
)

const (
	// DefaultChunkSize is the maximum characters per reply message.
	DefaultChunkSize = 4096
	// DefaultEditDelay is the wait between placeholders and the edit pass.
	DefaultEditDelay = 1300 * time.Millisecond

	// Placeholder is sent immediately for every chunk.
	Placeholder = "..."
	// ErrorReply is sent alone when there is no generated text.
	ErrorReply = "⚠️ Error generating response"
)

// Options configure a Publisher.
type Options struct {
	ChunkSize int
	EditDelay time.Duration
	// Names controls whether registered nodes carry the bot's id as speaker name.
	Names bool
}

// Publisher delivers generated replies.
type Publisher struct {
	surface chat.Surface
	store   *nodes.Store
	locks   *nodes.KeyLocks
	self    chat.Identity
	opts    Options
	logger  *slog.Logger
}

// New creates a Publisher.
func New(surface chat.Surface, store *nodes.Store, locks *nodes.KeyLocks, self chat.Identity, opts Options, logger *slog.Logger) *Publisher {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.EditDelay < 0 {
		opts.EditDelay = 0
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		surface: surface,
		store:   store,
		locks:   locks,
		self:    self,
		opts:    opts,
		logger:  logger.With("component", "publisher"),
	}
}

// Publish replies to trigger with text. Warnings are appended to the final
// message, which is re-split if needed so every edit stays within ChunkSize. Empty text sends ErrorReply instead. It returns the messages sent.
func (p *Publisher) Publish(ctx context.Context, trigger *chat.Message, text string, warnings []string) ([]*chat.Message, error) {
	if text == "" {
		msg, err := p.surface.SendReply(ctx, trigger, ErrorReply+footer(warnings, ErrorReply))
		if err != nil {
			return nil, fmt.Errorf("sending error reply: %w", err)
		}
		return []*chat.Message{msg}, nil
	}

	tail := footer(warnings, "")
	chunks := fitFooter(Chunk(text, p.opts.ChunkSize), tail, p.opts.ChunkSize)
	sent := make([]*chat.Message, 0, len(chunks))
	for i := range chunks {
		msg, err := p.surface.SendReply(ctx, trigger, Placeholder)
		if err != nil {
			p.logger.Error("failed to send placeholder",
				"trigger", trigger.ID, "chunk", i, "error", err)
			if len(sent) == 0 {
				return nil, fmt.Errorf("sending placeholder: %w", err)
			}
			chunks = chunks[:len(sent)]
			break
		}
		sent = append(sent, msg)
	}

	for i, msg := range sent {
		p.register(msg, trigger, chunks[i])
	}

	timer := time.NewTimer(p.opts.EditDelay)
	select {
	case <-ctx.Done():
		timer.Stop()
		return sent, ctx.Err()
	case <-timer.C:
	}

	for i, msg := range sent {
		body := chunks[i]
		if i == len(sent)-1 {
			body += tail
		}
		p.edit(ctx, msg, body)
	}

	return sent, nil
}

// register stores an assistant node for a sent reply so later chains can
// walk through it.
func (p *Publisher) register(msg, trigger *chat.Message, chunk string) {
	release := p.locks.Acquire(msg.ID)
	defer release()

	n := &nodes.Node{
		ID:          msg.ID,
		Order:       msg.Order(),
		Role:        nodes.RoleAssistant,
		Content:     nodes.TextContent(chunk),
		Predecessor: trigger,
	}
	if p.opts.Names {
		n.Name = p.self.UserID
	}
	p.store.PutIfAbsent(n)
}

func (p *Publisher) edit(ctx context.Context, msg *chat.Message, body string) {
	release := p.locks.Acquire(msg.ID)
	defer release()

	if err := p.surface.Edit(ctx, msg, body); err != nil {
		p.logger.Error("failed to edit reply", "message", msg.ID, "error", err)
	}
}

// footer renders warnings as a suffix for the final message, skipping any
// equal to skip. It is empty when nothing remains.
func footer(warnings []string, skip string) string {
	var lines []string
	for _, w := range warnings {
		if w != skip {
			lines = append(lines, w)
		}
	}
	if len(lines) == 0 {
		return ""
	}
	return "\n\n" + strings.Join(lines, "\n")
}

// fitFooter re-splits the last chunk so that it still fits within size once
// tail is appended. A tail that alone fills size is appended as is.
func fitFooter(chunks []string, tail string, size int) []string {
	if tail == "" || size <= 0 || len(chunks) == 0 {
		return chunks
	}
	room := size - utf8.RuneCountInString(tail)
	last := chunks[len(chunks)-1]
	if room <= 0 || utf8.RuneCountInString(last) <= room {
		return chunks
	}
	return append(chunks[:len(chunks)-1], Chunk(last, room)...)
}

// Chunk splits text into consecutive pieces of at most size code points.
func Chunk(text string, size int) []string {
	if size <= 0 {
		return []string{text}
	}
	var chunks []string
	count, start := 0, 0
	for i := range text {
		if count == size {
			chunks = append(chunks, text[start:i])
			start, count = i, 0
		}
		count++
	}
	if start < len(text) {
		chunks = append(chunks, text[start:])
	}
	return chunks
}
