// ABOUTME: Matrix bridge: login, sync loop, invite handling, and event dispatch
// ABOUTME: Each new message event is handed to the handler on its own goroutine

package matrix

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/2389/coven-replybot/internal/chat"
	"github.com/2389/coven-replybot/internal/dedupe"
)

// Handler processes one inbound message.
type Handler interface {
	Handle(ctx context.Context, msg *chat.Message) bool
}

// Options configure a Bridge.
type Options struct {
	// RoomAllowed gates auto-join on invite. Nil accepts every invite.
	RoomAllowed func(roomID string) bool
}

// Bridge connects the Matrix sync stream to a Handler.
type Bridge struct {
	client  *mautrix.Client
	surface *Surface
	handler Handler
	seen    *dedupe.Cache
	opts    Options
	logger  *slog.Logger

	wg sync.WaitGroup
}

// NewClient creates an unauthenticated client for homeserver.
func NewClient(homeserver string) (*mautrix.Client, error) {
	client, err := mautrix.NewClient(homeserver, "", "")
	if err != nil {
		return nil, fmt.Errorf("creating matrix client: %w", err)
	}
	return client, nil
}

// Login authenticates with a password and stores the credentials on client.
func Login(ctx context.Context, client *mautrix.Client, username, password string) error {
	resp, err := client.Login(ctx, &mautrix.ReqLogin{
		Type: mautrix.AuthTypePassword,
		Identifier: mautrix.UserIdentifier{
			Type: mautrix.IdentifierTypeUser,
			User: username,
		},
		Password:                 password,
		InitialDeviceDisplayName: "coven-replybot",
		StoreCredentials:         true,
	})
	if err != nil {
		return fmt.Errorf("logging in as %s: %w", username, err)
	}
	if resp.UserID == "" {
		return fmt.Errorf("login as %s returned no user id", username)
	}
	return nil
}

// NewBridge creates a bridge. seen de-duplicates redelivered events.
func NewBridge(client *mautrix.Client, surface *Surface, handler Handler, seen *dedupe.Cache, opts Options, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{
		client:  client,
		surface: surface,
		handler: handler,
		seen:    seen,
		opts:    opts,
		logger:  logger.With("component", "matrix-bridge"),
	}
}

// Run syncs until ctx is cancelled, then waits for in-flight handlers.
func (b *Bridge) Run(ctx context.Context) error {
	b.logger.Info("starting matrix bridge",
		"homeserver", b.client.HomeserverURL.String(),
		"user_id", b.client.UserID.String(),
	)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer b.wg.Wait()

	syncer, ok := b.client.Syncer.(*mautrix.DefaultSyncer)
	if !ok {
		return fmt.Errorf("unexpected syncer type: %T", b.client.Syncer)
	}
	syncer.OnSync(b.client.DontProcessOldEvents)
	syncer.OnEventType(event.EventMessage, func(_ context.Context, evt *event.Event) {
		b.handleMessageEvent(ctx, evt)
	})
	syncer.OnEventType(event.StateMember, func(_ context.Context, evt *event.Event) {
		b.handleMemberEvent(ctx, evt)
	})

	syncErr := make(chan error, 1)
	go func() {
		syncErr <- b.client.SyncWithContext(ctx)
	}()

	b.logger.Info("matrix bridge running")

	select {
	case <-ctx.Done():
		b.logger.Info("shutting down matrix bridge")
		cancel()
		<-syncErr
		return nil
	case err := <-syncErr:
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("matrix sync failed: %w", err)
	}
}

func (b *Bridge) handleMessageEvent(ctx context.Context, evt *event.Event) {
	if evt.Sender == b.client.UserID {
		return
	}
	if b.seen != nil && b.seen.Observe(evt.ID.String()) {
		b.logger.Debug("dropping redelivered event", "event", evt.ID.String())
		return
	}

	mc, ok := evt.Content.Parsed.(*event.MessageEventContent)
	if !ok {
		return
	}
	// Edits of earlier messages are not new prompts.
	if mc.RelatesTo != nil && mc.RelatesTo.Type == event.RelReplace {
		return
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		msg := b.surface.Message(ctx, evt, mc)
		b.handler.Handle(ctx, msg)
	}()
}

func (b *Bridge) handleMemberEvent(ctx context.Context, evt *event.Event) {
	b.surface.Forget(evt.RoomID)

	if evt.GetStateKey() != b.client.UserID.String() {
		return
	}
	member := evt.Content.AsMember()
	if member.Membership != event.MembershipInvite {
		return
	}

	room := evt.RoomID.String()
	if b.opts.RoomAllowed != nil && !b.opts.RoomAllowed(room) {
		b.logger.Info("ignoring invite to room outside allow list", "room", room, "inviter", evt.Sender.String())
		return
	}
	if _, err := b.client.JoinRoomByID(ctx, id.RoomID(room)); err != nil {
		b.logger.Error("failed to join room", "room", room, "error", err)
		return
	}
	b.logger.Info("joined room", "room", room, "inviter", evt.Sender.String())
}
