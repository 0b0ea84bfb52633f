// ABOUTME: Markdown to HTML rendering for formatted message bodies
// ABOUTME: Plain text that renders to a bare paragraph is sent without formatting

package matrix

import (
	"bytes"
	"html"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	gmhtml "github.com/yuin/goldmark/renderer/html"
	"maunium.net/go/mautrix/event"
)

var markdown = goldmark.New(
	goldmark.WithExtensions(extension.Strikethrough, extension.Table, extension.Linkify),
	goldmark.WithRendererOptions(gmhtml.WithHardWraps()),
)

// renderHTML returns the HTML form of text, or "" when formatting adds nothing.
func renderHTML(text string) string {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(text), &buf); err != nil {
		return ""
	}
	out := strings.TrimSpace(buf.String())
	if out == "" || out == "<p>"+html.EscapeString(text)+"</p>" {
		return ""
	}
	return out
}

// textContent builds an m.text message that pings nobody.
func textContent(text string) *event.MessageEventContent {
	c := &event.MessageEventContent{
		MsgType:  event.MsgText,
		Body:     text,
		Mentions: &event.Mentions{},
	}
	if formatted := renderHTML(text); formatted != "" {
		c.Format = event.FormatHTML
		c.FormattedBody = formatted
	}
	return c
}
