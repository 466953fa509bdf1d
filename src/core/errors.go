package main

import "errors"

// Settlement errors surfaced to callers
var (
	// ErrQuantityLimitReached is returned when a refresh batch exceeds MaxUpdateCount
	ErrQuantityLimitReached = errors.New("quantity limit reached")
	// ErrNoUpdatesAllowed is returned outside the refresh window of an open round
	ErrNoUpdatesAllowed = errors.New("no updates allowed")
	// ErrFee wraps a ledger failure while computing an update fee
	ErrFee = errors.New("error computing fee")
	// ErrChallengeTimeout is returned when a dispute or round opening misses its window
	ErrChallengeTimeout = errors.New("challenge timeout")
	// ErrOverflow is returned when checked arithmetic leaves the representable range
	ErrOverflow = errors.New("calculation overflow")
	// ErrFailedProxy is returned when a proxy claims before the grace period elapsed
	ErrFailedProxy = errors.New("proxy settlement not yet allowed")
	// ErrChallengeNotClaimed is returned when a round opens with challenges outstanding
	ErrChallengeNotClaimed = errors.New("challenges not claimed")
)

// Collaborator errors
var (
	ErrRecordNotFound      = errors.New("record not found")
	ErrRoundInProgress     = errors.New("round in progress")
	ErrRefreshNotEnded     = errors.New("refresh phase not ended")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidRatios       = errors.New("invalid sharing ratios")
	ErrChallengeNotFound   = errors.New("challenge not found")
	ErrChallengeHarvested  = errors.New("challenge already harvested")
	ErrNotChallenger       = errors.New("caller is not the challenger")
)
