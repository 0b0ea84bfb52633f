// ABOUTME: Conversion from Matrix message events to transport-neutral chat messages
// ABOUTME: Maps replies, threads, mentions, and media attachments

package matrix

import (
	"mime"
	"path/filepath"
	"strings"
	"time"

	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/2389/coven-replybot/internal/chat"
)

// toMessage converts a parsed message event. direct marks one-to-one rooms.
func toMessage(evt *event.Event, mc *event.MessageEventContent, direct bool) *chat.Message {
	msg := &chat.Message{
		ID:        chat.MessageID(evt.ID),
		RoomID:    evt.RoomID.String(),
		AuthorID:  evt.Sender.String(),
		Direct:    direct,
		Timestamp: time.UnixMilli(evt.Timestamp),
	}

	if rel := mc.RelatesTo; rel != nil {
		// Edits repeat an earlier message and never carry conversation.
		if rel.Type == event.RelReplace {
			msg.Type = chat.TypeSystem
			msg.Text = mc.Body
			return msg
		}
		if rel.Type == event.RelThread {
			msg.ThreadID = rel.EventID.String()
		}
		if rel.InReplyTo != nil && rel.InReplyTo.EventID != "" {
			msg.ReplyTo = chat.MessageID(rel.InReplyTo.EventID)
			msg.Type = chat.TypeReply
		}
	}

	if mc.Mentions != nil {
		for _, u := range mc.Mentions.UserIDs {
			msg.Mentions = append(msg.Mentions, u.String())
		}
	}

	switch mc.MsgType {
	case event.MsgText, event.MsgEmote:
		msg.Text = stripReplyFallback(mc.Body, msg.ReplyTo != "")
	case event.MsgNotice:
		msg.Text = stripReplyFallback(mc.Body, msg.ReplyTo != "")
		msg.Type = chat.TypeSystem
	case event.MsgImage, event.MsgFile, event.MsgVideo, event.MsgAudio:
		msg.Attachments = []chat.Attachment{attachmentOf(mc)}
		if mc.FileName != "" && mc.FileName != mc.Body {
			msg.Text = mc.Body
		}
	default:
		msg.Type = chat.TypeSystem
	}
	return msg
}

// attachmentOf describes the media in mc. Encrypted media keeps its mxc URL;
// the Surface decrypts on download.
func attachmentOf(mc *event.MessageEventContent) chat.Attachment {
	att := chat.Attachment{Name: mc.FileName}
	if att.Name == "" {
		att.Name = mc.Body
	}

	if mc.File != nil {
		att.URL = string(mc.File.URL)
	} else {
		att.URL = string(mc.URL)
	}

	if mc.Info != nil {
		att.ContentType = mc.Info.MimeType
	}
	if att.ContentType == "" {
		att.ContentType = mime.TypeByExtension(filepath.Ext(att.Name))
	}
	if att.ContentType == "" && mc.MsgType == event.MsgImage {
		att.ContentType = "image/png"
	}
	return att
}

// stripReplyFallback removes the quoted "> <@user> ..." block some clients
// still prepend to replies.
func stripReplyFallback(body string, isReply bool) string {
	if !isReply || !strings.HasPrefix(body, "> ") {
		return body
	}
	lines := strings.Split(body, "\n")
	i := 0
	for i < len(lines) && strings.HasPrefix(lines[i], ">") {
		i++
	}
	if i < len(lines) && lines[i] == "" {
		i++
	}
	return strings.Join(lines[i:], "\n")
}

// replyRelation relates a new message to trigger, staying inside its thread.
func replyRelation(trigger *chat.Message) *event.RelatesTo {
	rel := &event.RelatesTo{
		InReplyTo: &event.InReplyTo{EventID: id.EventID(trigger.ID)},
	}
	if trigger.ThreadID != "" {
		rel.Type = event.RelThread
		rel.EventID = id.EventID(trigger.ThreadID)
	}
	return rel
}
