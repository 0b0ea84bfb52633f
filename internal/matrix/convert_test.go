// ABOUTME: Tests for Matrix event conversion
// ABOUTME: Covers replies, threads, mentions, notices, media attachments, and reply fallbacks

package matrix

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/2389/coven-replybot/internal/chat"
)

func testEvent() *event.Event {
	return &event.Event{
		ID:        "$evt1",
		RoomID:    "!room:example.org",
		Sender:    "@alice:example.org",
		Type:      event.EventMessage,
		Timestamp: 1700000000123,
	}
}

func TestToMessage_Text(t *testing.T) {
	mc := &event.MessageEventContent{
		MsgType:  event.MsgText,
		Body:     "hello there",
		Mentions: &event.Mentions{UserIDs: []id.UserID{"@bot:example.org"}},
	}

	msg := toMessage(testEvent(), mc, true)
	assert.Equal(t, chat.MessageID("$evt1"), msg.ID)
	assert.Equal(t, "!room:example.org", msg.RoomID)
	assert.Equal(t, "@alice:example.org", msg.AuthorID)
	assert.Equal(t, "hello there", msg.Text)
	assert.Equal(t, chat.TypeDefault, msg.Type)
	assert.Equal(t, []string{"@bot:example.org"}, msg.Mentions)
	assert.True(t, msg.Direct)
	assert.Equal(t, time.UnixMilli(1700000000123), msg.Timestamp)
	assert.Empty(t, msg.ReplyTo)
}

func TestToMessage_Reply(t *testing.T) {
	mc := &event.MessageEventContent{
		MsgType: event.MsgText,
		Body:    "> <@bob:example.org> original\n> second line\n\nmy answer",
		RelatesTo: &event.RelatesTo{
			InReplyTo: &event.InReplyTo{EventID: "$parent"},
		},
	}

	msg := toMessage(testEvent(), mc, false)
	assert.Equal(t, chat.MessageID("$parent"), msg.ReplyTo)
	assert.Equal(t, chat.TypeReply, msg.Type)
	assert.Equal(t, "my answer", msg.Text)
	assert.Empty(t, msg.ThreadID)
}

func TestToMessage_Thread(t *testing.T) {
	mc := &event.MessageEventContent{
		MsgType: event.MsgText,
		Body:    "in thread",
		RelatesTo: &event.RelatesTo{
			Type:          event.RelThread,
			EventID:       "$root",
			InReplyTo:     &event.InReplyTo{EventID: "$latest"},
			IsFallingBack: true,
		},
	}

	msg := toMessage(testEvent(), mc, false)
	assert.Equal(t, "$root", msg.ThreadID)
	assert.Equal(t, chat.MessageID("$latest"), msg.ReplyTo)
	assert.Equal(t, "in thread", msg.Text)
}

func TestToMessage_Notice(t *testing.T) {
	msg := toMessage(testEvent(), &event.MessageEventContent{MsgType: event.MsgNotice, Body: "bot says"}, false)
	assert.Equal(t, chat.TypeSystem, msg.Type)
	assert.Equal(t, "bot says", msg.Text)
}

func TestToMessage_Image(t *testing.T) {
	mc := &event.MessageEventContent{
		MsgType: event.MsgImage,
		Body:    "cat.jpg",
		URL:     "mxc://example.org/abc",
		Info:    &event.FileInfo{MimeType: "image/jpeg"},
	}

	msg := toMessage(testEvent(), mc, false)
	require.Len(t, msg.Attachments, 1)
	assert.Equal(t, chat.Attachment{Name: "cat.jpg", URL: "mxc://example.org/abc", ContentType: "image/jpeg"}, msg.Attachments[0])
	assert.Empty(t, msg.Text)
}

func TestToMessage_FileWithCaption(t *testing.T) {
	mc := &event.MessageEventContent{
		MsgType:  event.MsgFile,
		Body:     "please summarise",
		FileName: "notes.txt",
		URL:      "mxc://example.org/notes",
	}

	msg := toMessage(testEvent(), mc, false)
	assert.Equal(t, "please summarise", msg.Text)
	require.Len(t, msg.Attachments, 1)
	assert.Equal(t, "notes.txt", msg.Attachments[0].Name)
	assert.True(t, msg.Attachments[0].Is(chat.KindText))
}

func TestAttachmentOf_Encrypted(t *testing.T) {
	mc := &event.MessageEventContent{
		MsgType: event.MsgImage,
		Body:    "secret",
		File:    &event.EncryptedFileInfo{URL: "mxc://example.org/enc"},
	}

	att := attachmentOf(mc)
	assert.Equal(t, "mxc://example.org/enc", att.URL)
	assert.Equal(t, "image/png", att.ContentType)
}

func TestToMessage_Unknown(t *testing.T) {
	msg := toMessage(testEvent(), &event.MessageEventContent{MsgType: "m.location", Body: "geo:1,2"}, false)
	assert.Equal(t, chat.TypeSystem, msg.Type)
}

func TestStripReplyFallback(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		isReply bool
		want    string
	}{
		{"not a reply", "> quoted\n\ntext", false, "> quoted\n\ntext"},
		{"no fallback", "plain", true, "plain"},
		{"fallback", "> <@a:b> hi\n\nanswer", true, "answer"},
		{"multi-line answer", "> <@a:b> hi\n> more\n\nline1\nline2", true, "line1\nline2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, stripReplyFallback(tt.body, tt.isReply))
		})
	}
}

func TestReplyRelation(t *testing.T) {
	rel := replyRelation(&chat.Message{ID: "$trigger"})
	require.NotNil(t, rel.InReplyTo)
	assert.Equal(t, id.EventID("$trigger"), rel.InReplyTo.EventID)
	assert.Empty(t, rel.Type)

	rel = replyRelation(&chat.Message{ID: "$trigger", ThreadID: "$root"})
	assert.Equal(t, event.RelThread, rel.Type)
	assert.Equal(t, id.EventID("$root"), rel.EventID)
	assert.Equal(t, id.EventID("$trigger"), rel.InReplyTo.EventID)
	assert.False(t, rel.IsFallingBack)
}

func TestToMessage_EditIsSystem(t *testing.T) {
	mc := &event.MessageEventContent{
		MsgType: event.MsgText,
		Body:    "* fixed typo",
		NewContent: &event.MessageEventContent{
			MsgType: event.MsgText,
			Body:    "fixed typo",
		},
		RelatesTo: &event.RelatesTo{
			Type:    event.RelReplace,
			EventID: "$orig",
		},
	}

	msg := toMessage(testEvent(), mc, false)
	assert.Equal(t, chat.TypeSystem, msg.Type)
	assert.Empty(t, msg.ReplyTo)
	assert.Empty(t, msg.ThreadID)
}

func TestToMessage_ThreadRootIsPlainMessage(t *testing.T) {
	mc := &event.MessageEventContent{MsgType: event.MsgText, Body: "thread root"}

	msg := toMessage(testEvent(), mc, false)
	assert.False(t, msg.ThreadStarter)
	assert.Nil(t, msg.ThreadParent)
	assert.Equal(t, chat.TypeDefault, msg.Type)
}
