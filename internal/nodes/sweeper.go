// ABOUTME: Retention sweeper that clamps the node store to its capacity
// ABOUTME: Runs only after an interaction has completed and a quiet gap has passed

package nodes

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultQuietInterval is the minimum gap since the last completed
// interaction before a sweep may run.
const DefaultQuietInterval = 60 * time.Second

// Sweeper trims a Store back to MaxNodes.
type Sweeper struct {
	store    *Store
	maxNodes int
	quiet    time.Duration
	logger   *slog.Logger

	mu   sync.Mutex
	last time.Time // last completed interaction, zero until the first
}

// NewSweeper creates a sweeper for store. A non-positive quiet interval
// selects DefaultQuietInterval.
func NewSweeper(store *Store, maxNodes int, quiet time.Duration, logger *slog.Logger) *Sweeper {
	if quiet <= 0 {
		quiet = DefaultQuietInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		store:    store,
		maxNodes: maxNodes,
		quiet:    quiet,
		logger:   logger.With("component", "sweeper"),
	}
}

// MaybeSweep trims the store if an interaction has completed, the quiet
// interval has elapsed since the last one, and the store is over capacity.
// It returns the number of nodes removed.
func (s *Sweeper) MaybeSweep(now time.Time) int {
	s.mu.Lock()
	last := s.last
	s.mu.Unlock()

	if last.IsZero() || now.Sub(last) < s.quiet {
		return 0
	}
	if s.store.Len() <= s.maxNodes {
		return 0
	}

	removed := s.store.Trim(s.maxNodes)
	if removed > 0 {
		s.logger.Info("trimmed context cache", "removed", removed, "remaining", s.store.Len())
	}
	return removed
}

// Finish is called when an interaction completes. It sweeps against the
// previous completion time and then records now as the latest one.
func (s *Sweeper) Finish(now time.Time) int {
	removed := s.MaybeSweep(now)

	s.mu.Lock()
	if now.After(s.last) {
		s.last = now
	}
	s.mu.Unlock()
	return removed
}

// Run calls MaybeSweep every quiet interval until ctx is done, so a cache
// left over capacity by the final interaction of a burst is still trimmed.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.quiet)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.MaybeSweep(now)
		}
	}
}
