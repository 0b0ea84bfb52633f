// ABOUTME: Context node types: normalised content, role, flags, predecessor
// ABOUTME: A node is one chat message's contribution to conversation context

package nodes

import (
	"github.com/2389/coven-replybot/internal/chat"
)

// Role is the speaker role a node plays in the completion request.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// PartType distinguishes the parts of multi-part content.
type PartType string

const (
	PartText  PartType = "text"
	PartImage PartType = "image_url"
)

// Part is one element of multi-part content. Image parts carry a data URI.
type Part struct {
	Type     PartType
	Text     string
	ImageURL string
}

// Content is either plain text (Parts is nil) or an ordered list of parts.
type Content struct {
	Text  string
	Parts []Part
}

// TextContent returns plain-text content.
func TextContent(s string) Content {
	return Content{Text: s}
}

// IsMultipart reports whether the content is a part list.
func (c Content) IsMultipart() bool {
	return c.Parts != nil
}

// IsEmpty reports whether the content contributes nothing to context.
func (c Content) IsEmpty() bool {
	if c.IsMultipart() {
		return len(c.Parts) == 0
	}
	return c.Text == ""
}

// Images returns the number of image parts.
func (c Content) Images() int {
	n := 0
	for _, p := range c.Parts {
		if p.Type == PartImage {
			n++
		}
	}
	return n
}

// Flags record degraded but non-fatal outcomes of building a node.
type Flags struct {
	TextTruncated          bool
	ImagesTruncated        bool
	UnsupportedAttachments bool
	PredecessorFailed      bool
}

// Node is the cached context for a single message.
type Node struct {
	ID    chat.MessageID
	Order int64
	Role  Role
	// Name identifies the speaker; empty unless the provider accepts names.
	Name    string
	Content Content
	Flags   Flags

	// Predecessor is the message this one follows, nil for a root. It is a
	// lookup reference: the predecessor's own node lives in the Store under
	// its id and may be evicted independently.
	Predecessor *chat.Message
}
