// ABOUTME: Chain walker that rebuilds a conversation from a trigger message
// ABOUTME: Walks predecessors newest-first through the node cache, returns oldest-first context

package chain

import (
	"context"
	"log/slog"
	"slices"

	"github.com/2389/coven-replybot/internal/chat"
	"github.com/2389/coven-replybot/internal/content"
	"github.com/2389/coven-replybot/internal/nodes"
)

// stepSlack bounds how many empty messages a walk may pass through beyond
// maxLength before giving up.
const stepSlack = 64

// Normalizer builds node content for a message.
type Normalizer interface {
	Normalize(ctx context.Context, msg *chat.Message) (nodes.Content, nodes.Flags)
	Limits() content.Limits
}

// Result is the outcome of a walk.
type Result struct {
	// Context is ordered oldest to newest.
	Context  []*nodes.Node
	Warnings Warnings
}

// Walker reconstructs reply chains.
type Walker struct {
	store      *nodes.Store
	locks      *nodes.KeyLocks
	normalizer Normalizer
	resolver   *Resolver
	self       chat.Identity
	names      bool
	logger     *slog.Logger
}

// NewWalker creates a Walker. When names is true, user nodes carry the
// author id as the speaker name.
func NewWalker(store *nodes.Store, locks *nodes.KeyLocks, normalizer Normalizer, resolver *Resolver, self chat.Identity, names bool, logger *slog.Logger) *Walker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Walker{
		store:      store,
		locks:      locks,
		normalizer: normalizer,
		resolver:   resolver,
		self:       self,
		names:      names,
		logger:     logger.With("component", "walker"),
	}
}

// Walk collects up to maxLength non-empty context entries ending at start.
func (w *Walker) Walk(ctx context.Context, start *chat.Message, maxLength int) Result {
	res := Result{Warnings: Warnings{}}
	if maxLength <= 0 {
		return res
	}

	limits := w.normalizer.Limits()
	seen := make(map[chat.MessageID]struct{})
	cursor := start

	for steps := 0; cursor != nil && len(res.Context) < maxLength; steps++ {
		if _, loop := seen[cursor.ID]; loop || steps >= maxLength+stepSlack {
			w.logger.Warn("reply chain walk stopped early",
				"start", start.ID, "at", cursor.ID, "steps", steps, "cycle", loop)
			res.Warnings.Add(HistoryWarning(len(res.Context)))
			break
		}
		seen[cursor.ID] = struct{}{}

		node := w.node(ctx, cursor)
		if !node.Content.IsEmpty() {
			res.Context = append(res.Context, node)
		}

		res.Warnings.addFlags(node.Flags, limits.MaxText, limits.EffectiveMaxImages())
		if node.Flags.PredecessorFailed || (node.Predecessor != nil && len(res.Context) == maxLength) {
			res.Warnings.Add(HistoryWarning(len(res.Context)))
		}

		cursor = node.Predecessor
	}

	slices.Reverse(res.Context)
	return res
}

// node returns the cached node for msg, building it under msg's key lock if
// this is the first time it is needed. The lock is released before return.
func (w *Walker) node(ctx context.Context, msg *chat.Message) *nodes.Node {
	release := w.locks.Acquire(msg.ID)
	defer release()

	if n, ok := w.store.Get(msg.ID); ok {
		return n
	}

	body, flags := w.normalizer.Normalize(ctx, msg)
	n := &nodes.Node{
		ID:      msg.ID,
		Order:   msg.Order(),
		Role:    nodes.RoleUser,
		Content: body,
		Flags:   flags,
	}
	if msg.AuthorID == w.self.UserID {
		n.Role = nodes.RoleAssistant
	}
	if w.names {
		n.Name = msg.AuthorID
	}

	pred := w.resolver.Resolve(ctx, msg)
	if pred.Err != nil {
		w.logger.Debug("predecessor resolution failed", "message", msg.ID, "error", pred.Err)
		n.Flags.PredecessorFailed = true
	} else {
		n.Predecessor = pred.Message
	}

	stored, _ := w.store.PutIfAbsent(n)
	return stored
}
