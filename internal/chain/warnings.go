// ABOUTME: User-facing warnings accumulated while walking a reply chain
// ABOUTME: Warnings form a set and render in a stable order

package chain

import (
	"fmt"
	"slices"

	"github.com/dustin/go-humanize"

	"github.com/2389/coven-replybot/internal/nodes"
)

// Warnings is a set of short user-facing notes.
type Warnings map[string]struct{}

// Add inserts w into the set.
func (ws Warnings) Add(w string) {
	ws[w] = struct{}{}
}

// Has reports whether w is in the set.
func (ws Warnings) Has(w string) bool {
	_, ok := ws[w]
	return ok
}

// List returns the warnings sorted.
func (ws Warnings) List() []string {
	out := make([]string, 0, len(ws))
	for w := range ws {
		out = append(out, w)
	}
	slices.Sort(out)
	return out
}

// WarnUnsupported is added when a message carries attachments of a kind the
// bot cannot read.
const WarnUnsupported = "⚠️ Unsupported attachments"

// TextWarning reports the per-message character limit.
func TextWarning(maxText int) string {
	return fmt.Sprintf("⚠️ Max %s characters per message", humanize.Comma(int64(maxText)))
}

// ImageWarning reports the per-message image limit, or that images cannot
// be seen at all when the limit is zero.
func ImageWarning(maxImages int) string {
	if maxImages <= 0 {
		return "⚠️ Can't see images"
	}
	return fmt.Sprintf("⚠️ Max %d %s per message", maxImages, plural(maxImages, "image"))
}

// HistoryWarning reports that only the most recent count messages were used.
func HistoryWarning(count int) string {
	if count == 1 {
		return "⚠️ Only using last message"
	}
	return fmt.Sprintf("⚠️ Only using last %d messages", count)
}

func plural(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}

func (ws Warnings) addFlags(f nodes.Flags, maxText, maxImages int) {
	if f.TextTruncated {
		ws.Add(TextWarning(maxText))
	}
	if f.ImagesTruncated {
		ws.Add(ImageWarning(maxImages))
	}
	if f.UnsupportedAttachments {
		ws.Add(WarnUnsupported)
	}
}
