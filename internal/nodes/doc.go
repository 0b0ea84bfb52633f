// Package nodes holds the in-memory conversation context cache.
//
// # Overview
//
// Every chat message that takes part in a conversation is materialised once
// as a Node: its normalised content, the role it plays, and a reference to the
// message it conversationally follows. Nodes are built lazily the first time a
// chain walk needs them and are shared by every later walk that passes through
// the same message.
//
// # Components
//
//   - Store: bounded map from message id to Node
//   - KeyLocks: per-message mutual exclusion, including ids not yet stored
//   - Sweeper: trims the Store back to capacity after a quiet period
//
// # Concurrency
//
// Any read-modify-write of a single node happens while holding that node's
// key lock. The Store's own mutex only guards the map and is never held
// across I/O. Callers must never hold two key locks at once.
//
// # Eviction
//
// Trimming removes the oldest messages first, ordered by (Order, ID). Access
// recency is not tracked.
package nodes
