package syncer

// Phase is the synchronizer lifecycle state.
type Phase int

const (
	// PhaseAwaitingSnapshot means no snapshot has been applied yet; delta
	// events cannot be interpreted.
	PhaseAwaitingSnapshot Phase = iota
	// PhaseBuffering means the snapshot is applied and the synchronizer is
	// waiting for the first event that bridges the snapshot sequence number.
	PhaseBuffering
	// PhaseSynced means contiguous events are being applied.
	PhaseSynced
	// PhaseDesynced is terminal for the current session; recovery requires a
	// fresh snapshot and a fresh subscription, driven by the caller.
	PhaseDesynced
)

func (p Phase) String() string {
	switch p {
	case PhaseAwaitingSnapshot:
		return "awaiting_snapshot"
	case PhaseBuffering:
		return "buffering"
	case PhaseSynced:
		return "synced"
	case PhaseDesynced:
		return "desynced"
	default:
		return "unknown"
	}
}

// DesyncReason explains why the synchronizer entered PhaseDesynced.
type DesyncReason string

const (
	ReasonNone DesyncReason = ""
	// ReasonGap means an event skipped past the contiguity invariant.
	ReasonGap DesyncReason = "gap"
	// ReasonBufferOverflow means too many non-bridging events arrived while
	// buffering without ever straddling the snapshot sequence number.
	ReasonBufferOverflow DesyncReason = "buffer_overflow"
	// ReasonSnapshotFailure means the snapshot fetch failed.
	ReasonSnapshotFailure DesyncReason = "snapshot_failure"
)
