// Package bot ties the reply pipeline together.
//
// A Handler receives every inbound chat message, drops those the Policy does
// not allow, rebuilds the conversation with the chain walker, asks the
// completion invoker for a reply, and hands the text to the publisher. Idle
// periodically posts a filler line into allowed rooms.
package bot
