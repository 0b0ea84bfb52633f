// ABOUTME: Predecessor resolution: which earlier message a message follows
// ABOUTME: Explicit replies win; otherwise consecutive same-author messages chain together

package chain

import (
	"context"
	"fmt"

	"github.com/2389/coven-replybot/internal/chat"
)

// Resolution is the outcome of predecessor resolution. Message is nil for a
// root. Err is set when resolution failed; the message is then treated as a
// root whose history was cut short.
type Resolution struct {
	Message *chat.Message
	Err     error
}

// Resolver determines conversational predecessors.
type Resolver struct {
	surface chat.Surface
	self    chat.Identity
}

// NewResolver creates a Resolver backed by surface.
func NewResolver(surface chat.Surface, self chat.Identity) *Resolver {
	return &Resolver{surface: surface, self: self}
}

// Resolve finds the message msg conversationally follows.
func (r *Resolver) Resolve(ctx context.Context, msg *chat.Message) Resolution {
	if msg.ReplyTo != "" {
		return r.resolveReply(ctx, msg)
	}

	if msg.Direct || msg.MentionsUser(r.self) {
		return Resolution{}
	}

	prev, err := r.surface.FetchPreceding(ctx, msg)
	if err != nil {
		return Resolution{Err: fmt.Errorf("fetching message before %s: %w", msg.ID, err)}
	}
	if prev == nil || prev.ID == msg.ID || prev.Type == chat.TypeSystem || prev.AuthorID != msg.AuthorID {
		return Resolution{}
	}
	return Resolution{Message: prev}
}

func (r *Resolver) resolveReply(ctx context.Context, msg *chat.Message) Resolution {
	ref := msg.Reference
	if ref == nil || ref.ID != msg.ReplyTo {
		fetched, err := r.surface.FetchMessage(ctx, msg.RoomID, msg.ReplyTo)
		if err != nil {
			return Resolution{Err: fmt.Errorf("fetching reply target %s: %w", msg.ReplyTo, err)}
		}
		if fetched == nil {
			return Resolution{Err: fmt.Errorf("fetching reply target %s: %w", msg.ReplyTo, chat.ErrNotFound)}
		}
		ref = fetched
	}

	if ref.ThreadStarter && ref.ThreadParent != nil {
		return Resolution{Message: ref.ThreadParent}
	}
	return Resolution{Message: ref}
}
