// ABOUTME: Per-message interaction handler: gate, walk, complete, publish, sweep
// ABOUTME: Completion failures become a warning reply rather than an error

package bot

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/2389/coven-replybot/internal/chain"
	"github.com/2389/coven-replybot/internal/chat"
	"github.com/2389/coven-replybot/internal/nodes"
	"github.com/2389/coven-replybot/internal/publish"
)

// Walker rebuilds the conversation leading to a message.
type Walker interface {
	Walk(ctx context.Context, start *chat.Message, maxLength int) chain.Result
}

// Completer generates reply text for a conversation.
type Completer interface {
	Complete(ctx context.Context, trigger chat.MessageID, history []*nodes.Node) (string, error)
}

// Publisher delivers reply text.
type Publisher interface {
	Publish(ctx context.Context, trigger *chat.Message, text string, warnings []string) ([]*chat.Message, error)
}

// Typer shows a typing indicator in a room.
type Typer interface {
	SetTyping(ctx context.Context, roomID string, typing bool)
}

// Deps are the collaborators of a Handler. Typing and Sweeper are optional.
type Deps struct {
	Policy      Policy
	Walker      Walker
	Completer   Completer
	Publisher   Publisher
	Sweeper     *nodes.Sweeper
	Typing      Typer
	MaxMessages int
}

// Handler runs one interaction per admitted message.
type Handler struct {
	deps   Deps
	now    func() time.Time
	logger *slog.Logger
}

// NewHandler creates a Handler.
func NewHandler(deps Deps, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		deps:   deps,
		now:    time.Now,
		logger: logger.With("component", "handler"),
	}
}

// Handle answers msg if the policy admits it. It reports whether a reply was
// attempted.
func (h *Handler) Handle(ctx context.Context, msg *chat.Message) bool {
	if !h.deps.Policy.Allowed(msg) {
		return false
	}

	logger := h.logger.With(
		"interaction", uuid.NewString(),
		"room", msg.RoomID,
		"message", msg.ID,
	)

	result := h.deps.Walker.Walk(ctx, msg, h.deps.MaxMessages)
	logger.Info("message received",
		"author", msg.AuthorID,
		"attachments", len(msg.Attachments),
		"chain_length", len(result.Context),
	)

	if h.deps.Typing != nil {
		h.deps.Typing.SetTyping(ctx, msg.RoomID, true)
	}
	text, err := h.deps.Completer.Complete(ctx, msg.ID, result.Context)
	if h.deps.Typing != nil {
		h.deps.Typing.SetTyping(ctx, msg.RoomID, false)
	}
	if err != nil {
		logger.Error("error generating response", "error", err)
		result.Warnings.Add(publish.ErrorReply)
		text = ""
	}

	sent, err := h.deps.Publisher.Publish(ctx, msg, text, result.Warnings.List())
	if err != nil {
		logger.Error("failed to publish reply", "sent", len(sent), "error", err)
	} else {
		logger.Info("reply published", "messages", len(sent), "length", len(text))
	}

	if h.deps.Sweeper != nil {
		h.deps.Sweeper.Finish(h.now())
	}
	return true
}
