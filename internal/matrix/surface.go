// ABOUTME: chat.Surface implementation over a mautrix client
// ABOUTME: Sends replies and edits, loads events and their predecessors, downloads media

package matrix

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/2389/coven-replybot/internal/chat"
	"github.com/2389/coven-replybot/internal/content"
)

// typingTimeout is how long a typing notification lasts unless renewed.
const typingTimeout = 30 * time.Second

// precedingWindow is how many events the context request asks for around a
// message when looking up its predecessor.
const precedingWindow = 4

// Surface adapts a Matrix client to chat.Surface and content.Fetcher.
type Surface struct {
	client *mautrix.Client
	web    *content.HTTPFetcher
	logger *slog.Logger

	mu     sync.Mutex
	direct map[id.RoomID]bool
	// encrypted media keyed by mxc URL, recorded when events are converted
	files map[string]*event.EncryptedFileInfo
}

// NewSurface wraps client. web serves attachment URLs that are not mxc://.
func NewSurface(client *mautrix.Client, web *content.HTTPFetcher, logger *slog.Logger) *Surface {
	if logger == nil {
		logger = slog.Default()
	}
	return &Surface{
		client: client,
		web:    web,
		logger: logger.With("component", "matrix-surface"),
		direct: make(map[id.RoomID]bool),
		files:  make(map[string]*event.EncryptedFileInfo),
	}
}

// SendReply implements chat.Surface.
func (s *Surface) SendReply(ctx context.Context, trigger *chat.Message, text string) (*chat.Message, error) {
	c := textContent(text)
	c.RelatesTo = replyRelation(trigger)

	resp, err := s.client.SendMessageEvent(ctx, id.RoomID(trigger.RoomID), event.EventMessage, c)
	if err != nil {
		return nil, fmt.Errorf("sending reply to %s: %w", trigger.ID, err)
	}
	return &chat.Message{
		ID:        chat.MessageID(resp.EventID),
		RoomID:    trigger.RoomID,
		ThreadID:  trigger.ThreadID,
		AuthorID:  s.client.UserID.String(),
		Text:      text,
		Type:      chat.TypeReply,
		ReplyTo:   trigger.ID,
		Reference: trigger,
		Direct:    trigger.Direct,
		Timestamp: time.Now(),
	}, nil
}

// Edit implements chat.Surface by sending an m.replace event.
func (s *Surface) Edit(ctx context.Context, msg *chat.Message, text string) error {
	c := textContent(text)
	c.SetEdit(id.EventID(msg.ID))

	if _, err := s.client.SendMessageEvent(ctx, id.RoomID(msg.RoomID), event.EventMessage, c); err != nil {
		return fmt.Errorf("editing %s: %w", msg.ID, err)
	}
	return nil
}

// FetchMessage implements chat.Surface.
func (s *Surface) FetchMessage(ctx context.Context, roomID string, msgID chat.MessageID) (*chat.Message, error) {
	evt, err := s.client.GetEvent(ctx, id.RoomID(roomID), id.EventID(msgID))
	if err != nil {
		if errors.Is(err, mautrix.MNotFound) {
			return nil, fmt.Errorf("fetching %s: %w", msgID, chat.ErrNotFound)
		}
		return nil, fmt.Errorf("fetching %s: %w", msgID, err)
	}
	return s.convert(ctx, evt)
}

// FetchPreceding implements chat.Surface using the room context API,
// considering only message events.
func (s *Surface) FetchPreceding(ctx context.Context, msg *chat.Message) (*chat.Message, error) {
	filter := &mautrix.FilterPart{
		Types: []event.Type{event.EventMessage, event.EventEncrypted},
	}
	resp, err := s.client.Context(ctx, id.RoomID(msg.RoomID), id.EventID(msg.ID), filter, precedingWindow)
	if err != nil {
		return nil, fmt.Errorf("loading context of %s: %w", msg.ID, err)
	}
	// events_before is ordered nearest first.
	if len(resp.EventsBefore) == 0 {
		return nil, nil
	}
	evt := resp.EventsBefore[0]
	if evt.RoomID == "" {
		evt.RoomID = id.RoomID(msg.RoomID)
	}
	return s.convert(ctx, evt)
}

// Message converts a message event delivered by sync.
func (s *Surface) Message(ctx context.Context, evt *event.Event, mc *event.MessageEventContent) *chat.Message {
	s.rememberFile(mc)
	return toMessage(evt, mc, s.isDirect(ctx, evt.RoomID))
}

// convert turns a fetched event into a message, decrypting it if needed.
// Non-message events become system messages so chains stop at them.
func (s *Surface) convert(ctx context.Context, evt *event.Event) (*chat.Message, error) {
	if evt.Content.Parsed == nil {
		if err := evt.Content.ParseRaw(evt.Type); err != nil {
			s.logger.Debug("unparseable event content", "event", evt.ID, "type", evt.Type.String(), "error", err)
		}
	}

	if evt.Type.Type == event.EventEncrypted.Type {
		if s.client.Crypto == nil {
			return nil, fmt.Errorf("event %s is encrypted and encryption is disabled", evt.ID)
		}
		decrypted, err := s.client.Crypto.Decrypt(ctx, evt)
		if err != nil {
			return nil, fmt.Errorf("decrypting %s: %w", evt.ID, err)
		}
		evt = decrypted
	}

	mc, ok := evt.Content.Parsed.(*event.MessageEventContent)
	if !ok || evt.Type.Type != event.EventMessage.Type {
		return &chat.Message{
			ID:        chat.MessageID(evt.ID),
			RoomID:    evt.RoomID.String(),
			AuthorID:  evt.Sender.String(),
			Type:      chat.TypeSystem,
			Timestamp: time.UnixMilli(evt.Timestamp),
		}, nil
	}
	return s.Message(ctx, evt, mc), nil
}

func (s *Surface) rememberFile(mc *event.MessageEventContent) {
	if mc.File == nil || mc.File.URL == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[string(mc.File.URL)] = mc.File
}

// isDirect reports whether the room has exactly two joined members. Results
// are cached until Forget is called for the room.
func (s *Surface) isDirect(ctx context.Context, roomID id.RoomID) bool {
	s.mu.Lock()
	direct, ok := s.direct[roomID]
	s.mu.Unlock()
	if ok {
		return direct
	}

	resp, err := s.client.JoinedMembers(ctx, roomID)
	if err != nil {
		s.logger.Debug("failed to list room members", "room", roomID.String(), "error", err)
		return false
	}
	direct = len(resp.Joined) == 2

	s.mu.Lock()
	s.direct[roomID] = direct
	s.mu.Unlock()
	return direct
}

// Forget drops cached room facts after a membership change.
func (s *Surface) Forget(roomID id.RoomID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.direct, roomID)
}

// FetchBytes implements content.Fetcher. mxc:// URLs are downloaded through
// the homeserver and decrypted when the event carried encryption keys.
func (s *Surface) FetchBytes(ctx context.Context, url string) ([]byte, error) {
	if !strings.HasPrefix(url, "mxc://") {
		return s.web.FetchBytes(ctx, url)
	}

	uri, err := id.ParseContentURI(url)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", url, err)
	}
	data, err := s.client.DownloadBytes(ctx, uri)
	if err != nil {
		return nil, fmt.Errorf("downloading %s: %w", url, err)
	}

	s.mu.Lock()
	file := s.files[url]
	s.mu.Unlock()
	if file != nil {
		if err := file.DecryptInPlace(data); err != nil {
			return nil, fmt.Errorf("decrypting %s: %w", url, err)
		}
	}
	return data, nil
}

// FetchText implements content.Fetcher.
func (s *Surface) FetchText(ctx context.Context, url string) (string, error) {
	data, err := s.FetchBytes(ctx, url)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// SetTyping shows or clears the typing indicator. Failures are logged only.
func (s *Surface) SetTyping(ctx context.Context, roomID string, typing bool) {
	var timeout time.Duration
	if typing {
		timeout = typingTimeout
	}
	if _, err := s.client.UserTyping(ctx, id.RoomID(roomID), typing, timeout); err != nil {
		s.logger.Debug("failed to set typing indicator", "room", roomID, "error", err)
	}
}

// JoinedRooms lists the rooms the bot is in.
func (s *Surface) JoinedRooms(ctx context.Context) ([]string, error) {
	resp, err := s.client.JoinedRooms(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing joined rooms: %w", err)
	}
	rooms := make([]string, len(resp.JoinedRooms))
	for i, r := range resp.JoinedRooms {
		rooms[i] = r.String()
	}
	return rooms, nil
}

// Send posts a standalone message into a room.
func (s *Surface) Send(ctx context.Context, roomID, text string) error {
	if _, err := s.client.SendMessageEvent(ctx, id.RoomID(roomID), event.EventMessage, textContent(text)); err != nil {
		return fmt.Errorf("sending to %s: %w", roomID, err)
	}
	return nil
}
