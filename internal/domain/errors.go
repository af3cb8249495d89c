package domain

import "errors"

var (
	ErrNotFound = errors.New("not found")

	// ErrPriceUnavailable is returned by fair-price calculators when the book
	// cannot support the calculation (e.g. an empty side). It is a valid
	// steady-state condition, not a failure.
	ErrPriceUnavailable = errors.New("fair price unavailable")

	// ErrDesynced is returned once the synchronizer has detected a protocol
	// violation; the session must be restarted from a fresh snapshot.
	ErrDesynced = errors.New("order book desynced")

	// ErrFeedClosed signals orderly termination of the update feed, as
	// opposed to a parse failure.
	ErrFeedClosed = errors.New("update feed closed")

	ErrSnapshotUnavailable = errors.New("snapshot unavailable")
	ErrWSDisconnect        = errors.New("websocket disconnected")
)
