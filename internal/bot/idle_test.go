// ABOUTME: Tests for the idle broadcaster
// ABOUTME: Covers room filtering, per-room failures, and the ticker loop

package bot

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBroadcaster struct {
	rooms    []string
	roomsErr error
	failFor  map[string]error

	mu   sync.Mutex
	sent map[string][]string
}

func (f *fakeBroadcaster) JoinedRooms(ctx context.Context) ([]string, error) {
	return f.rooms, f.roomsErr
}

func (f *fakeBroadcaster) Send(ctx context.Context, roomID, text string) error {
	if err := f.failFor[roomID]; err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sent == nil {
		f.sent = make(map[string][]string)
	}
	f.sent[roomID] = append(f.sent[roomID], text)
	return nil
}

func (f *fakeBroadcaster) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, msgs := range f.sent {
		n += len(msgs)
	}
	return n
}

func TestIdle_Broadcast(t *testing.T) {
	out := &fakeBroadcaster{
		rooms:   []string{"!a", "!b", "!c", "!d"},
		failFor: map[string]error{"!c": errors.New("forbidden")},
	}
	idle := NewIdle(out, Policy{AllowedRooms: []string{"!a", "!c", "!d"}}, time.Hour, []string{"one", "two"}, nil)
	idle.pick = func(n int) int { return n - 1 }

	assert.Equal(t, 2, idle.Broadcast(context.Background()))
	assert.Equal(t, map[string][]string{"!a": {"two"}, "!d": {"two"}}, out.sent)
}

func TestIdle_DefaultMessages(t *testing.T) {
	out := &fakeBroadcaster{rooms: []string{"!a"}}
	idle := NewIdle(out, Policy{}, time.Hour, nil, nil)

	require.Equal(t, 1, idle.Broadcast(context.Background()))
	assert.Contains(t, DefaultIdleMessages, out.sent["!a"][0])
}

func TestIdle_RoomListFailure(t *testing.T) {
	out := &fakeBroadcaster{roomsErr: errors.New("offline")}
	idle := NewIdle(out, Policy{}, time.Hour, nil, nil)
	assert.Zero(t, idle.Broadcast(context.Background()))
}

func TestIdle_Run(t *testing.T) {
	out := &fakeBroadcaster{rooms: []string{"!a"}}
	idle := NewIdle(out, Policy{}, 5*time.Millisecond, []string{"ping"}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		idle.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return out.total() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
}
