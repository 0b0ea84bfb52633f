// ABOUTME: Idle broadcaster that periodically posts a canned line into allowed rooms
// ABOUTME: Failures are logged per room and never stop the loop

package bot

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"time"
)

// DefaultIdleMessages are used when none are configured.
var DefaultIdleMessages = []string{
	"Hey everyone! How's it going?",
	"Remember, you can mention me to chat or get help!",
	"Need any assistance? I'm here to help!",
	"What's everyone up to today?",
	"Feel free to ask me anything!",
}

// Broadcaster lists rooms and posts plain messages into them.
type Broadcaster interface {
	JoinedRooms(ctx context.Context) ([]string, error)
	Send(ctx context.Context, roomID, text string) error
}

// Idle posts a random message to every joined allowed room each interval.
type Idle struct {
	out      Broadcaster
	policy   Policy
	interval time.Duration
	messages []string
	pick     func(n int) int
	logger   *slog.Logger
}

// NewIdle creates an Idle broadcaster.
func NewIdle(out Broadcaster, policy Policy, interval time.Duration, messages []string, logger *slog.Logger) *Idle {
	if len(messages) == 0 {
		messages = DefaultIdleMessages
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Idle{
		out:      out,
		policy:   policy,
		interval: interval,
		messages: messages,
		pick:     rand.IntN,
		logger:   logger.With("component", "idle"),
	}
}

// Run broadcasts every interval until ctx is done.
func (i *Idle) Run(ctx context.Context) {
	ticker := time.NewTicker(i.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			i.Broadcast(ctx)
		}
	}
}

// Broadcast sends one message to each joined allowed room and returns how
// many sends succeeded.
func (i *Idle) Broadcast(ctx context.Context) int {
	rooms, err := i.out.JoinedRooms(ctx)
	if err != nil {
		i.logger.Error("failed to list joined rooms", "error", err)
		return 0
	}

	sent := 0
	for _, room := range rooms {
		if !i.policy.RoomAllowed(room) {
			continue
		}
		text := i.messages[i.pick(len(i.messages))]
		if err := i.out.Send(ctx, room, text); err != nil {
			i.logger.Error("failed to send idle message", "room", room, "error", err)
			continue
		}
		sent++
	}
	return sent
}
