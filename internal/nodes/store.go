// ABOUTME: Concurrency-safe bounded map from message id to context node
// ABOUTME: Trim removes the oldest nodes first, ordered by (Order, ID)

package nodes

import (
	"cmp"
	"slices"
	"sync"

	"github.com/2389/coven-replybot/internal/chat"
)

// Store maps message ids to their context nodes.
type Store struct {
	mu    sync.RWMutex
	nodes map[chat.MessageID]*Node
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{nodes: make(map[chat.MessageID]*Node)}
}

// Get returns the node for id, if present.
func (s *Store) Get(id chat.MessageID) (*Node, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nodes[id]
	return n, ok
}

// PutIfAbsent stores n unless a node with the same id already exists.
// It returns the node that is stored after the call and whether n was added.
func (s *Store) PutIfAbsent(n *Node) (*Node, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.nodes[n.ID]; ok {
		return existing, false
	}
	s.nodes[n.ID] = n
	return n, true
}

// Len returns the number of stored nodes.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.nodes)
}

// Trim removes the oldest nodes until at most max remain and returns how
// many were removed.
func (s *Store) Trim(max int) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	excess := len(s.nodes) - max
	if excess <= 0 {
		return 0
	}

	type key struct {
		order int64
		id    chat.MessageID
	}
	keys := make([]key, 0, len(s.nodes))
	for id, n := range s.nodes {
		keys = append(keys, key{order: n.Order, id: id})
	}
	slices.SortFunc(keys, func(a, b key) int {
		if c := cmp.Compare(a.order, b.order); c != 0 {
			return c
		}
		return cmp.Compare(a.id, b.id)
	})
	for _, k := range keys[:excess] {
		delete(s.nodes, k.id)
	}
	return excess
}
