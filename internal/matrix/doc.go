// Package matrix connects the reply pipeline to a Matrix homeserver.
//
// Surface adapts a mautrix client to the chat.Surface capability set and
// downloads attachments, decrypting encrypted media when the key is known.
// Bridge logs in, runs the sync loop, joins rooms on invite, and dispatches
// each new message event to the handler on its own goroutine.
//
// Replies are sent as m.in_reply_to relations (thread relations when the
// trigger is inside a thread) and finalised with a single m.replace edit.
// Markdown in reply text is rendered to HTML for formatted_body.
package matrix
