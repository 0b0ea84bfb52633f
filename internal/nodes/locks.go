// ABOUTME: Per-message-id lock table guarding node creation and mutation
// ABOUTME: Locks are created on demand and reclaimed once unreferenced

package nodes

import (
	"sync"

	"github.com/2389/coven-replybot/internal/chat"
)

type keyLock struct {
	mu   sync.Mutex
	refs int // holders plus waiters, guarded by KeyLocks.mu
}

// KeyLocks grants at most one holder per message id at a time.
type KeyLocks struct {
	mu    sync.Mutex
	locks map[chat.MessageID]*keyLock
}

// NewKeyLocks creates an empty lock table.
func NewKeyLocks() *KeyLocks {
	return &KeyLocks{locks: make(map[chat.MessageID]*keyLock)}
}

// Acquire blocks until the lock for id is held and returns its release
// function. Release must be called exactly once.
func (k *KeyLocks) Acquire(id chat.MessageID) (release func()) {
	k.mu.Lock()
	l, ok := k.locks[id]
	if !ok {
		l = &keyLock{}
		k.locks[id] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Unlock()

			k.mu.Lock()
			l.refs--
			if l.refs == 0 {
				delete(k.locks, id)
			}
			k.mu.Unlock()
		})
	}
}

// Len returns the number of live locks.
func (k *KeyLocks) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
