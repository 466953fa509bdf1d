package main

// Ledger moves value between free balances, social (shareable) balances and
// the staking pool of an asset.
type Ledger interface {
	Stake(asset AssetID, who AccountID, amount Amount) error
	Release(asset AssetID, who AccountID, amount Amount) error
	FreezeShare(asset AssetID, who AccountID, amount Amount) error
	Thaw(asset AssetID, who AccountID, amount Amount) error
	StakeOnBehalf(asset AssetID, who AccountID, amount Amount) error
	SocialBalance(asset AssetID, who AccountID) Amount
	BatchShare(asset AssetID, from AccountID, targets []AccountID, amount Amount) error
}

// Reputation owns the round state and applies scores
type Reputation interface {
	BeginRound(now BlockNumber) error
	UpdatesAllowed(now BlockNumber) bool
	ApplyScore(who AccountID, score uint32) error
	MarkRefreshed(now BlockNumber)
	RefreshPhaseEnded(now BlockNumber) error
	LastRefreshTime() BlockNumber
	LastUpdateTime() BlockNumber
}

// TrustGraph resolves the counterparties eligible for a share of a target's value
type TrustGraph interface {
	TrustedOf(who AccountID) []AccountID
}

// ChallengeLedger reports whether every challenge of the prior round was harvested
type ChallengeLedger interface {
	AllHarvested() bool
}

// FeeSplitPolicy splits a settled amount into a proxy cut and a remainder
type FeeSplitPolicy interface {
	Split(total Amount) (cut, remainder Amount)
	SplitChecked(total Amount, last, now BlockNumber) (cut, remainder Amount, ok bool)
}

// Clock provides the current block number
type Clock interface {
	Now() BlockNumber
}

// EventSink receives settlement events
type EventSink interface {
	Emit(event Event)
}

// Checkpointer is implemented by ports able to undo their side effects.
// Checkpoint captures the current state and returns a function restoring it.
type Checkpointer interface {
	Checkpoint() (rollback func())
}
