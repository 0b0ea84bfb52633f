// ABOUTME: Transport-neutral chat message model shared by the bot core
// ABOUTME: Defines messages, attachments, the bot identity, and the Surface capability

package chat

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"
)

// ErrNotFound indicates the referenced message does not exist or is not visible.
var ErrNotFound = errors.New("message not found")

// MessageID identifies a message on the chat surface.
type MessageID string

// MessageType separates ordinary conversation messages from system notices.
type MessageType int

const (
	TypeDefault MessageType = iota
	TypeReply
	TypeSystem
)

// Media kinds recognised when classifying attachments.
const (
	KindImage = "image"
	KindText  = "text"
)

// Attachment is a file attached to a message.
type Attachment struct {
	Name        string
	URL         string
	ContentType string
}

// Is reports whether the attachment's declared media type belongs to kind.
func (a Attachment) Is(kind string) bool {
	return a.ContentType != "" && strings.Contains(a.ContentType, kind)
}

// Embed is rich content attached to a message. Only the description
// contributes to conversation context.
type Embed struct {
	Title       string
	Description string
}

// Message is a single chat message as seen by the bot.
type Message struct {
	ID       MessageID
	RoomID   string
	ThreadID string
	AuthorID string
	Text     string
	Type     MessageType

	Embeds      []Embed
	Attachments []Attachment
	Mentions    []string

	// Direct is true for one-to-one conversations with the bot.
	Direct bool

	// ReplyTo is the explicit reply target. Reference carries the target when
	// the surface already delivered it alongside this message.
	ReplyTo   MessageID
	Reference *Message

	// ThreadStarter marks a synthetic message opening a thread. ThreadParent
	// is the message the thread was started from, when known. Surfaces whose
	// thread root is itself an ordinary message (Matrix) leave both unset.
	ThreadStarter bool
	ThreadParent  *Message

	Timestamp time.Time
}

// Order returns the recency key used when evicting cached context.
func (m *Message) Order() int64 {
	return m.Timestamp.UnixMilli()
}

// MentionsUser reports whether the message explicitly mentions the given identity.
func (m *Message) MentionsUser(self Identity) bool {
	if slices.Contains(m.Mentions, self.UserID) {
		return true
	}
	return self.Mention != "" && strings.Contains(m.Text, self.Mention)
}

// Identity describes the bot account on the chat surface.
type Identity struct {
	UserID string
	// Mention is the token clients insert when addressing the bot.
	Mention string
}

// Surface is the set of chat operations the bot core depends on.
type Surface interface {
	// SendReply posts text as a reply to trigger and returns the sent message.
	SendReply(ctx context.Context, trigger *Message, text string) (*Message, error)
	// Edit replaces the text of a message previously sent by the bot.
	Edit(ctx context.Context, msg *Message, text string) error
	// FetchMessage loads a message by id. Returns ErrNotFound when absent.
	FetchMessage(ctx context.Context, roomID string, id MessageID) (*Message, error)
	// FetchPreceding returns the message delivered immediately before msg in
	// the same room, or nil when there is none.
	FetchPreceding(ctx context.Context, msg *Message) (*Message, error)
}
