package main

import (
	"errors"
	"math"
	"reflect"
	"testing"
)

func TestLedgerStakeAndRelease(t *testing.T) {
	l := NewMemoryLedger()
	if err := l.Deposit(testAsset, acct(1), 100); err != nil {
		t.Fatalf("Failed to deposit: %v", err)
	}

	if err := l.Stake(testAsset, acct(1), 40); err != nil {
		t.Fatalf("Failed to stake: %v", err)
	}
	if got := l.Balance(testAsset, acct(1)).Free; got != 60 {
		t.Errorf("Expected 60 free after stake, got %d", got)
	}
	if got := l.Pool(testAsset); got != 40 {
		t.Errorf("Expected pool of 40, got %d", got)
	}

	if err := l.Stake(testAsset, acct(1), 61); !errors.Is(err, ErrInsufficientBalance) {
		t.Errorf("Expected ErrInsufficientBalance, got %v", err)
	}

	if err := l.Release(testAsset, acct(2), 25); err != nil {
		t.Fatalf("Failed to release: %v", err)
	}
	if got := l.Balance(testAsset, acct(2)).Free; got != 25 {
		t.Errorf("Expected 25 released, got %d", got)
	}
	if err := l.Release(testAsset, acct(2), 16); !errors.Is(err, ErrInsufficientBalance) {
		t.Errorf("Expected release beyond pool to fail, got %v", err)
	}
	if got := l.Pool(testAsset); got != 15 {
		t.Errorf("Expected pool of 15, got %d", got)
	}
}

func TestLedgerPoolsArePerAsset(t *testing.T) {
	l := NewMemoryLedger()
	l.Deposit("REP", acct(1), 10)
	l.Deposit("GAS", acct(1), 10)
	l.Stake("REP", acct(1), 10)

	if l.Pool("GAS") != 0 {
		t.Errorf("Expected empty GAS pool, got %d", l.Pool("GAS"))
	}
	if err := l.Release("GAS", acct(2), 1); !errors.Is(err, ErrInsufficientBalance) {
		t.Errorf("Expected release from empty pool to fail, got %v", err)
	}
}

func TestLedgerFreezeThawAndStakeOnBehalf(t *testing.T) {
	l := NewMemoryLedger()
	l.Deposit(testAsset, acct(1), 100)

	if err := l.FreezeShare(testAsset, acct(1), 80); err != nil {
		t.Fatalf("Failed to freeze: %v", err)
	}
	if err := l.Thaw(testAsset, acct(1), 30); err != nil {
		t.Fatalf("Failed to thaw: %v", err)
	}
	if err := l.StakeOnBehalf(testAsset, acct(1), 20); err != nil {
		t.Fatalf("Failed to stake on behalf: %v", err)
	}

	want := AccountBalance{Free: 50, Social: 30}
	if got := l.Balance(testAsset, acct(1)); got != want {
		t.Errorf("Expected %+v, got %+v", want, got)
	}
	if l.SocialBalance(testAsset, acct(1)) != 30 {
		t.Errorf("Expected social balance 30, got %d", l.SocialBalance(testAsset, acct(1)))
	}
	if l.Pool(testAsset) != 20 {
		t.Errorf("Expected pool of 20, got %d", l.Pool(testAsset))
	}

	if err := l.Thaw(testAsset, acct(1), 31); !errors.Is(err, ErrInsufficientBalance) {
		t.Errorf("Expected thaw beyond social to fail, got %v", err)
	}
	if err := l.StakeOnBehalf(testAsset, acct(1), 31); !errors.Is(err, ErrInsufficientBalance) {
		t.Errorf("Expected stake beyond social to fail, got %v", err)
	}
	if err := l.FreezeShare(testAsset, acct(1), 51); !errors.Is(err, ErrInsufficientBalance) {
		t.Errorf("Expected freeze beyond free to fail, got %v", err)
	}
}

func TestLedgerDepositOverflow(t *testing.T) {
	l := NewMemoryLedger()
	l.Deposit(testAsset, acct(1), math.MaxUint64)

	if err := l.Deposit(testAsset, acct(1), 1); !errors.Is(err, ErrOverflow) {
		t.Errorf("Expected ErrOverflow, got %v", err)
	}
	if l.Balance(testAsset, acct(1)).Free != math.MaxUint64 {
		t.Error("Expected balance untouched after overflow")
	}
}

func TestLedgerBatchShare(t *testing.T) {
	tests := []struct {
		name       string
		social     Amount
		targets    []AccountID
		amount     Amount
		wantSource Amount
		wantEach   Amount
	}{
		{"even split", 100, []AccountID{acct(2), acct(3)}, 100, 0, 50},
		{"remainder stays with source", 100, []AccountID{acct(2), acct(3), acct(4)}, 100, 1, 33},
		{"partial amount", 100, []AccountID{acct(2)}, 40, 60, 40},
		{"amount smaller than target count", 100, []AccountID{acct(2), acct(3), acct(4)}, 2, 100, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := NewMemoryLedger()
			l.Deposit(testAsset, acct(1), tt.social)
			l.FreezeShare(testAsset, acct(1), tt.social)

			if err := l.BatchShare(testAsset, acct(1), tt.targets, tt.amount); err != nil {
				t.Fatalf("Failed to share: %v", err)
			}
			if got := l.SocialBalance(testAsset, acct(1)); got != tt.wantSource {
				t.Errorf("Expected source social %d, got %d", tt.wantSource, got)
			}
			for _, target := range tt.targets {
				if got := l.SocialBalance(testAsset, target); got != tt.wantEach {
					t.Errorf("Expected %s to receive %d, got %d", target, tt.wantEach, got)
				}
			}
		})
	}
}

func TestLedgerBatchShareIncludingSource(t *testing.T) {
	l := NewMemoryLedger()
	l.Deposit(testAsset, acct(1), 90)
	l.FreezeShare(testAsset, acct(1), 90)

	if err := l.BatchShare(testAsset, acct(1), []AccountID{acct(1), acct(2)}, 90); err != nil {
		t.Fatalf("Failed to share: %v", err)
	}
	if got := l.SocialBalance(testAsset, acct(1)); got != 45 {
		t.Errorf("Expected source to keep its own share of 45, got %d", got)
	}
	if got := l.SocialBalance(testAsset, acct(2)); got != 45 {
		t.Errorf("Expected 45 shared, got %d", got)
	}
}

func TestLedgerBatchShareNoTargets(t *testing.T) {
	l := NewMemoryLedger()
	l.Deposit(testAsset, acct(1), 10)
	l.FreezeShare(testAsset, acct(1), 10)

	if err := l.BatchShare(testAsset, acct(1), nil, 10); err != nil {
		t.Fatalf("Expected empty share to succeed, got %v", err)
	}
	if l.SocialBalance(testAsset, acct(1)) != 10 {
		t.Error("Expected empty share to move nothing")
	}
}

func TestLedgerBatchShareInsufficientBalance(t *testing.T) {
	l := NewMemoryLedger()
	l.Deposit(testAsset, acct(1), 10)
	l.FreezeShare(testAsset, acct(1), 10)

	err := l.BatchShare(testAsset, acct(1), []AccountID{acct(2)}, 11)
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Errorf("Expected ErrInsufficientBalance, got %v", err)
	}
	if l.SocialBalance(testAsset, acct(2)) != 0 {
		t.Error("Expected failed share to credit nothing")
	}
}

func TestLedgerCheckpoint(t *testing.T) {
	l := NewMemoryLedger()
	l.Deposit(testAsset, acct(1), 100)
	before := l.Snapshot()

	rollback := l.Checkpoint()
	l.Stake(testAsset, acct(1), 50)
	l.Deposit(testAsset, acct(2), 7)
	rollback()

	if !reflect.DeepEqual(before, l.Snapshot()) {
		t.Errorf("Expected rollback to restore %+v, got %+v", before, l.Snapshot())
	}
}
