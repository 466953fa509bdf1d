package main

import (
	"fmt"
	"sort"
	"sync"
)

// RoundState is the small state value shared between the engine and the
// reputation book. It is only reached through the Reputation interface.
type RoundState struct {
	Phase         RoundPhase  `json:"phase"`
	Round         uint64      `json:"round"`
	StartedAt     BlockNumber `json:"startedAt"`
	LastRefreshAt BlockNumber `json:"lastRefreshAt"`
	LastUpdateAt  BlockNumber `json:"lastUpdateAt"`
}

// ReputationBook stores scores and drives the Closed → Open → Ended round cycle
type ReputationBook struct {
	mu                 sync.RWMutex
	state              RoundState
	scores             map[AccountID]uint32
	confirmationPeriod BlockNumber
}

// NewReputationBook creates a book whose refresh phase ends confirmationPeriod
// blocks after the last refresh of a round
func NewReputationBook(confirmationPeriod BlockNumber) *ReputationBook {
	return &ReputationBook{
		state:              RoundState{Phase: RoundClosed},
		scores:             make(map[AccountID]uint32),
		confirmationPeriod: confirmationPeriod,
	}
}

// refreshDeadline is the block at which the refresh phase of the open round ends
func (b *ReputationBook) refreshDeadline() (BlockNumber, error) {
	last := b.state.LastRefreshAt
	if last < b.state.StartedAt {
		last = b.state.StartedAt
	}
	return last.CheckedAdd(b.confirmationPeriod)
}

// advance moves an open round whose refresh window elapsed into Ended
func (b *ReputationBook) advance(now BlockNumber) error {
	if b.state.Phase != RoundOpen {
		return nil
	}
	deadline, err := b.refreshDeadline()
	if err != nil {
		return err
	}
	if now >= deadline {
		b.state.Phase = RoundEnded
		b.state.LastUpdateAt = deadline
	}
	return nil
}

// BeginRound opens a new round. An open round is only replaced once its
// refresh window elapsed.
func (b *ReputationBook) BeginRound(now BlockNumber) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.advance(now); err != nil {
		return err
	}
	if b.state.Phase == RoundOpen {
		return fmt.Errorf("round %d: %w", b.state.Round, ErrRoundInProgress)
	}

	b.state.Phase = RoundOpen
	b.state.Round++
	b.state.StartedAt = now
	b.state.LastUpdateAt = now

	logger.Info("Opened reputation round", "round", b.state.Round, "block", now)
	return nil
}

// UpdatesAllowed reports whether the current round accepts refreshes at now
func (b *ReputationBook) UpdatesAllowed(now BlockNumber) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.advance(now); err != nil {
		return false
	}
	return b.state.Phase == RoundOpen
}

// Tick applies the passage of time to the round phase
func (b *ReputationBook) Tick(now BlockNumber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.advance(now); err != nil {
		logger.Warn("Failed to advance round", "block", now, "error", err)
	}
}

// ApplyScore stores the score of an account
func (b *ReputationBook) ApplyScore(who AccountID, score uint32) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state.Phase != RoundOpen {
		return ErrNoUpdatesAllowed
	}
	b.scores[who] = score
	return nil
}

// MarkRefreshed records that a refresh completed at now
func (b *ReputationBook) MarkRefreshed(now BlockNumber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state.LastRefreshAt = now
}

// RefreshPhaseEnded succeeds once the refresh window of the round elapsed
func (b *ReputationBook) RefreshPhaseEnded(now BlockNumber) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.advance(now); err != nil {
		return err
	}
	if b.state.Phase != RoundEnded {
		return fmt.Errorf("round %d is %s: %w", b.state.Round, b.state.Phase, ErrRefreshNotEnded)
	}
	return nil
}

// LastRefreshTime is the block of the last completed refresh
func (b *ReputationBook) LastRefreshTime() BlockNumber {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return b.state.LastRefreshAt
}

// LastUpdateTime is the block of the last phase change
func (b *ReputationBook) LastUpdateTime() BlockNumber {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return b.state.LastUpdateAt
}

// State returns a copy of the round state
func (b *ReputationBook) State() RoundState {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return b.state
}

// Score returns the stored score of an account
func (b *ReputationBook) Score(who AccountID) (uint32, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	score, exists := b.scores[who]
	return score, exists
}

// ScoreEntry pairs an account with its score
type ScoreEntry struct {
	Account AccountID `json:"account"`
	Score   uint32    `json:"score"`
}

// ReputationSnapshot is the serializable form of a ReputationBook
type ReputationSnapshot struct {
	State  RoundState   `json:"state"`
	Scores []ScoreEntry `json:"scores"`
}

// Snapshot copies the book contents
func (b *ReputationBook) Snapshot() ReputationSnapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()

	snap := ReputationSnapshot{
		State:  b.state,
		Scores: make([]ScoreEntry, 0, len(b.scores)),
	}
	for who, score := range b.scores {
		snap.Scores = append(snap.Scores, ScoreEntry{Account: who, Score: score})
	}
	sort.Slice(snap.Scores, func(i, j int) bool {
		return snap.Scores[i].Account < snap.Scores[j].Account
	})
	return snap
}

// Restore replaces the book contents with the snapshot
func (b *ReputationBook) Restore(snap ReputationSnapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state = snap.State
	if b.state.Phase == "" {
		b.state.Phase = RoundClosed
	}
	b.scores = make(map[AccountID]uint32, len(snap.Scores))
	for _, e := range snap.Scores {
		b.scores[e.Account] = e.Score
	}
}

// Checkpoint captures scores and round state so a failed refresh can be undone
func (b *ReputationBook) Checkpoint() func() {
	snap := b.Snapshot()
	return func() { b.Restore(snap) }
}
