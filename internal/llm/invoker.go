// ABOUTME: Completion invoker: one provider request per trigger message
// ABOUTME: Serialises on the trigger's key lock and normalises failures to ErrNoCompletion

package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/2389/coven-replybot/internal/chat"
	"github.com/2389/coven-replybot/internal/nodes"
)

const assistantLabel = "Assistant:"

// Options configure an Invoker.
type Options struct {
	Model        string
	SystemPrompt string
	Names        bool
	Settings     Settings
	Timeout      time.Duration
}

// Invoker sends assembled context to a Provider.
type Invoker struct {
	provider Provider
	locks    *nodes.KeyLocks
	opts     Options
	now      func() time.Time
	logger   *slog.Logger
}

// NewInvoker creates an Invoker.
func NewInvoker(provider Provider, locks *nodes.KeyLocks, opts Options, logger *slog.Logger) *Invoker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Invoker{
		provider: provider,
		locks:    locks,
		opts:     opts,
		now:      time.Now,
		logger:   logger.With("component", "invoker"),
	}
}

// SystemPrompt returns the system prompt for a request made at now.
func (i *Invoker) SystemPrompt(now time.Time) string {
	lines := []string{}
	if i.opts.SystemPrompt != "" {
		lines = append(lines, i.opts.SystemPrompt)
	}
	lines = append(lines, "Today's date: "+now.Format("January 02 2006"))
	if i.opts.Names {
		lines = append(lines, "User's names are their Matrix user IDs and should be typed as they appear.")
	}
	return strings.Join(lines, "\n")
}

// Complete requests a reply to history (oldest first) on behalf of trigger.
// Every failure wraps ErrNoCompletion.
func (i *Invoker) Complete(ctx context.Context, trigger chat.MessageID, history []*nodes.Node) (string, error) {
	release := i.locks.Acquire(trigger)
	defer release()

	if i.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, i.opts.Timeout)
		defer cancel()
	}

	req := Request{
		Model:    i.opts.Model,
		System:   i.SystemPrompt(i.now()),
		Messages: make([]Message, 0, len(history)),
		Settings: i.opts.Settings,
	}
	for _, n := range history {
		m := Message{Role: n.Role, Content: n.Content}
		if i.opts.Names {
			m.Name = n.Name
		}
		req.Messages = append(req.Messages, m)
	}

	start := time.Now()
	resp, err := i.provider.Complete(ctx, req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrNoCompletion, err)
	}
	if resp.Choices == 0 {
		return "", fmt.Errorf("%w: provider returned no choices", ErrNoCompletion)
	}

	text := resp.Text
	if strings.HasPrefix(text, assistantLabel) {
		text = strings.TrimLeft(text[len(assistantLabel):], " \t\r\n")
	}
	if text == "" {
		return "", fmt.Errorf("%w: empty response", ErrNoCompletion)
	}

	i.logger.Debug("completion received",
		"trigger", trigger,
		"messages", len(req.Messages),
		"length", len(text),
		"elapsed", time.Since(start),
	)
	return text, nil
}
