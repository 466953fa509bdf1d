package main

import (
	"errors"
	"reflect"
	"testing"
)

func TestReputationBookLifecycle(t *testing.T) {
	book := NewReputationBook(10)

	if book.State().Phase != RoundClosed {
		t.Fatalf("Expected closed book, got %s", book.State().Phase)
	}
	if book.UpdatesAllowed(0) {
		t.Error("Expected no updates before the first round")
	}

	if err := book.BeginRound(5); err != nil {
		t.Fatalf("Failed to begin round: %v", err)
	}
	if !book.UpdatesAllowed(14) {
		t.Error("Expected updates inside the refresh window")
	}
	if book.UpdatesAllowed(15) {
		t.Error("Expected the window to close at start + confirmation period")
	}

	state := book.State()
	if state.Phase != RoundEnded {
		t.Errorf("Expected ended round, got %s", state.Phase)
	}
	if state.LastUpdateAt != 15 {
		t.Errorf("Expected phase change recorded at the deadline 15, got %d", state.LastUpdateAt)
	}
	if book.LastUpdateTime() != 15 {
		t.Errorf("Expected LastUpdateTime 15, got %d", book.LastUpdateTime())
	}
}

func TestReputationBookRefreshExtendsWindow(t *testing.T) {
	book := NewReputationBook(10)
	book.BeginRound(0)
	book.MarkRefreshed(8)

	if book.LastRefreshTime() != 8 {
		t.Errorf("Expected last refresh at 8, got %d", book.LastRefreshTime())
	}
	if !book.UpdatesAllowed(17) {
		t.Error("Expected a refresh to push the deadline to 18")
	}
	if err := book.RefreshPhaseEnded(17); !errors.Is(err, ErrRefreshNotEnded) {
		t.Errorf("Expected ErrRefreshNotEnded, got %v", err)
	}
	if err := book.RefreshPhaseEnded(18); err != nil {
		t.Errorf("Expected refresh phase ended at 18, got %v", err)
	}
}

func TestBeginRoundWhileOpen(t *testing.T) {
	book := NewReputationBook(10)
	book.BeginRound(0)

	if err := book.BeginRound(9); !errors.Is(err, ErrRoundInProgress) {
		t.Errorf("Expected ErrRoundInProgress, got %v", err)
	}
	if err := book.BeginRound(10); err != nil {
		t.Fatalf("Expected new round once the window elapsed, got %v", err)
	}

	state := book.State()
	if state.Round != 2 || state.StartedAt != 10 || state.Phase != RoundOpen {
		t.Errorf("Unexpected state after second round: %+v", state)
	}
}

func TestTickEndsRound(t *testing.T) {
	book := NewReputationBook(3)
	book.BeginRound(1)

	book.Tick(3)
	if book.State().Phase != RoundOpen {
		t.Errorf("Expected open round at 3, got %s", book.State().Phase)
	}
	book.Tick(4)
	if book.State().Phase != RoundEnded {
		t.Errorf("Expected ended round at 4, got %s", book.State().Phase)
	}
}

func TestApplyScoreRequiresOpenRound(t *testing.T) {
	book := NewReputationBook(10)

	if err := book.ApplyScore(acct(1), 70); !errors.Is(err, ErrNoUpdatesAllowed) {
		t.Errorf("Expected ErrNoUpdatesAllowed, got %v", err)
	}

	book.BeginRound(0)
	if err := book.ApplyScore(acct(1), 70); err != nil {
		t.Fatalf("Failed to apply score: %v", err)
	}
	if score, ok := book.Score(acct(1)); !ok || score != 70 {
		t.Errorf("Expected score 70, got %d (%v)", score, ok)
	}
	if _, ok := book.Score(acct(2)); ok {
		t.Error("Expected no score for an unscored account")
	}
}

func TestReputationBookCheckpoint(t *testing.T) {
	book := NewReputationBook(10)
	book.BeginRound(0)
	book.ApplyScore(acct(1), 10)
	before := book.Snapshot()

	rollback := book.Checkpoint()
	book.ApplyScore(acct(1), 99)
	book.ApplyScore(acct(2), 5)
	book.MarkRefreshed(4)
	rollback()

	if !reflect.DeepEqual(before, book.Snapshot()) {
		t.Errorf("Expected rollback to restore %+v, got %+v", before, book.Snapshot())
	}
}

func TestReputationBookRestoreDefaultsPhase(t *testing.T) {
	book := NewReputationBook(10)
	book.Restore(ReputationSnapshot{})

	if book.State().Phase != RoundClosed {
		t.Errorf("Expected empty snapshot to restore a closed round, got %q", book.State().Phase)
	}
}
