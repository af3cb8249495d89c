// Package syncer reconciles an asynchronously fetched depth snapshot with the
// infinite diff-event stream, detecting sequence gaps and surfacing desync
// conditions to the caller instead of self-healing.
package syncer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/alanyoungcy/fairpricebot/internal/book"
	"github.com/alanyoungcy/fairpricebot/internal/domain"
)

// Config holds the synchronizer tunables.
type Config struct {
	Symbol string
	// SnapshotLimit is the depth requested from the snapshot provider.
	SnapshotLimit int
	// BufferLimit bounds how many non-bridging events may arrive while
	// buffering before the session is declared desynced.
	BufferLimit int
}

// Synchronizer drives the four-phase sync lifecycle for one instrument. It is
// the store's single writer and is not safe for concurrent use; the feed
// runner owns it on one goroutine.
type Synchronizer struct {
	cfg      Config
	store    *book.Store
	provider domain.SnapshotProvider
	logger   *slog.Logger

	phase       Phase
	reason      DesyncReason
	snapshotID  uint64
	lastApplied uint64
	buffered    int
	sessionID   string
}

// New creates a Synchronizer in PhaseAwaitingSnapshot.
func New(cfg Config, store *book.Store, provider domain.SnapshotProvider, logger *slog.Logger) *Synchronizer {
	return &Synchronizer{
		cfg:      cfg,
		store:    store,
		provider: provider,
		logger:   logger.With(slog.String("component", "syncer")),
	}
}

// Initialize fetches the snapshot and seeds the store from it, transitioning
// AwaitingSnapshot -> Buffering. On fetch failure the synchronizer stays in
// AwaitingSnapshot and the caller decides when to retry.
func (s *Synchronizer) Initialize(ctx context.Context) error {
	if s.phase != PhaseAwaitingSnapshot {
		return fmt.Errorf("syncer: initialize in phase %s", s.phase)
	}

	snap, err := s.provider.GetDepthSnapshot(ctx, s.cfg.Symbol, s.cfg.SnapshotLimit)
	if err != nil {
		s.reason = ReasonSnapshotFailure
		return fmt.Errorf("syncer: fetch snapshot: %w", err)
	}

	s.store.InitFromSnapshot(snap)
	s.snapshotID = snap.LastUpdateID
	s.reason = ReasonNone
	s.buffered = 0
	s.sessionID = uuid.NewString()
	s.phase = PhaseBuffering

	s.logger.InfoContext(ctx, "order book initialized from snapshot",
		slog.String("symbol", s.cfg.Symbol),
		slog.String("session_id", s.sessionID),
		slog.Uint64("snapshot_update_id", snap.LastUpdateID),
		slog.Int("bids", len(snap.Bids)),
		slog.Int("asks", len(snap.Asks)),
	)
	return nil
}

// Process runs one state-machine transition for a delta event. It returns
// true when the event was applied to the store. A wrapped domain.ErrDesynced
// is returned exactly once, on the transition into PhaseDesynced; afterwards
// the synchronizer is inert until Reset.
func (s *Synchronizer) Process(ev domain.DeltaEvent) (bool, error) {
	if ev.FirstUpdateID > ev.LastUpdateID {
		// Malformed range from the feed; absorb locally like any other data
		// anomaly.
		s.logger.Warn("dropping delta with inverted update range",
			slog.Uint64("first_update_id", ev.FirstUpdateID),
			slog.Uint64("last_update_id", ev.LastUpdateID),
		)
		return false, nil
	}
	if lvl, ok := negativeQuantityLevel(ev); ok {
		// The store treats a negative quantity as corruption and panics.
		// From the wire it is just bad data; drop the whole event here.
		s.logger.Warn("dropping delta with negative quantity",
			slog.Uint64("first_update_id", ev.FirstUpdateID),
			slog.Uint64("last_update_id", ev.LastUpdateID),
			slog.String("price", lvl.Price.String()),
			slog.String("quantity", lvl.Quantity.String()),
		)
		return false, nil
	}

	switch s.phase {
	case PhaseAwaitingSnapshot:
		// No snapshot yet; the event cannot be interpreted.
		return false, nil

	case PhaseBuffering:
		return s.processBuffering(ev)

	case PhaseSynced:
		return s.processSynced(ev)

	case PhaseDesynced:
		return false, s.desyncErr()

	default:
		return false, fmt.Errorf("syncer: invalid phase %d", s.phase)
	}
}

// negativeQuantityLevel returns the first level of ev carrying a negative
// quantity, if any.
func negativeQuantityLevel(ev domain.DeltaEvent) (domain.PriceLevel, bool) {
	for _, lvl := range ev.Bids {
		if lvl.Quantity.IsNegative() {
			return lvl, true
		}
	}
	for _, lvl := range ev.Asks {
		if lvl.Quantity.IsNegative() {
			return lvl, true
		}
	}
	return domain.PriceLevel{}, false
}

// processBuffering discards events already reflected in the snapshot and
// promotes the first event whose range straddles or starts at snapshotID+1.
func (s *Synchronizer) processBuffering(ev domain.DeltaEvent) (bool, error) {
	if ev.LastUpdateID <= s.snapshotID {
		// Stale: fully covered by the snapshot.
		return false, nil
	}
	if ev.FirstUpdateID <= s.snapshotID+1 {
		// The unique valid bridge from snapshot to stream.
		s.apply(ev)
		s.phase = PhaseSynced
		s.logger.Info("order book synced",
			slog.String("session_id", s.sessionID),
			slog.Uint64("last_applied_id", s.lastApplied),
		)
		return true, nil
	}

	// The event is ahead of the snapshot and cannot bridge it. Tolerate a
	// bounded number of these before giving up on the session.
	s.buffered++
	if s.buffered > s.cfg.BufferLimit {
		return false, s.desync(ReasonBufferOverflow)
	}
	return false, nil
}

// processSynced enforces the contiguity invariant: an event is accepted only
// if it extends lastApplied; otherwise it is either a stale duplicate
// (ignored) or a gap (fatal).
func (s *Synchronizer) processSynced(ev domain.DeltaEvent) (bool, error) {
	if ev.LastUpdateID <= s.lastApplied {
		// Duplicate or stale; applying again would be a no-op anyway.
		return false, nil
	}
	if ev.FirstUpdateID > s.lastApplied+1 {
		return false, s.desync(ReasonGap)
	}

	s.apply(ev)
	return true, nil
}

// apply writes one event to the store as a single batch and trims the book.
func (s *Synchronizer) apply(ev domain.DeltaEvent) {
	s.store.ApplyBatch(ev.Bids, ev.Asks, ev.LastUpdateID)
	s.store.TrimToDepth()
	s.lastApplied = ev.LastUpdateID
}

func (s *Synchronizer) desync(reason DesyncReason) error {
	s.phase = PhaseDesynced
	s.reason = reason
	s.logger.Warn("order book desynced",
		slog.String("session_id", s.sessionID),
		slog.String("reason", string(reason)),
		slog.Uint64("last_applied_id", s.lastApplied),
	)
	return s.desyncErr()
}

func (s *Synchronizer) desyncErr() error {
	return fmt.Errorf("syncer: %s: %w", s.reason, domain.ErrDesynced)
}

// Reset returns the synchronizer to PhaseAwaitingSnapshot so the caller can
// start a fresh session with a new snapshot and subscription.
func (s *Synchronizer) Reset() {
	s.phase = PhaseAwaitingSnapshot
	s.reason = ReasonNone
	s.snapshotID = 0
	s.lastApplied = 0
	s.buffered = 0
}

// Phase returns the current lifecycle phase.
func (s *Synchronizer) Phase() Phase { return s.phase }

// Reason returns why the synchronizer desynced, or ReasonNone.
func (s *Synchronizer) Reason() DesyncReason { return s.reason }

// LastAppliedID returns the sequence number of the last applied event.
func (s *Synchronizer) LastAppliedID() uint64 { return s.lastApplied }

// SessionID identifies the current snapshot+stream generation.
func (s *Synchronizer) SessionID() string { return s.sessionID }
