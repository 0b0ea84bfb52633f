// ABOUTME: Admission policy deciding which inbound messages the bot answers
// ABOUTME: Filters by room, author, mention or DM, and ignores the bot's own messages

package bot

import (
	"slices"

	"github.com/2389/coven-replybot/internal/chat"
)

// Policy decides which messages get a reply. Empty allow lists admit everyone.
type Policy struct {
	Self         chat.Identity
	AllowedRooms []string
	AllowedUsers []string
	// ReplyInDMs admits direct messages. DMs skip the room and user lists.
	ReplyInDMs bool
}

// Allowed reports whether msg should be answered.
func (p Policy) Allowed(msg *chat.Message) bool {
	if msg == nil || msg.AuthorID == p.Self.UserID || msg.Type == chat.TypeSystem {
		return false
	}
	if msg.Direct {
		return p.ReplyInDMs
	}
	if !msg.MentionsUser(p.Self) {
		return false
	}
	if !p.RoomAllowed(msg.RoomID) {
		return false
	}
	return len(p.AllowedUsers) == 0 || slices.Contains(p.AllowedUsers, msg.AuthorID)
}

// RoomAllowed reports whether the bot may speak in roomID.
func (p Policy) RoomAllowed(roomID string) bool {
	return len(p.AllowedRooms) == 0 || slices.Contains(p.AllowedRooms, roomID)
}
