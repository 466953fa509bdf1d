package main

import (
	"fmt"
	"sync"
)

// AccountBalance is the per-asset balance of one account
type AccountBalance struct {
	Free   Amount `json:"free"`
	Social Amount `json:"social"`
}

// MemoryLedger is an in-process multi-asset ledger with one staking pool per asset
type MemoryLedger struct {
	mu       sync.RWMutex
	balances map[AssetID]map[AccountID]AccountBalance
	pools    map[AssetID]Amount
}

// NewMemoryLedger creates an empty ledger
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		balances: make(map[AssetID]map[AccountID]AccountBalance),
		pools:    make(map[AssetID]Amount),
	}
}

func (l *MemoryLedger) get(asset AssetID, who AccountID) AccountBalance {
	return l.balances[asset][who]
}

func (l *MemoryLedger) set(asset AssetID, who AccountID, b AccountBalance) {
	if _, exists := l.balances[asset]; !exists {
		l.balances[asset] = make(map[AccountID]AccountBalance)
	}
	l.balances[asset][who] = b
}

// Deposit credits free balance out of thin air (genesis and faucet)
func (l *MemoryLedger) Deposit(asset AssetID, who AccountID, amount Amount) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	b := l.get(asset, who)
	free, err := b.Free.CheckedAdd(amount)
	if err != nil {
		return err
	}
	b.Free = free
	l.set(asset, who, b)
	return nil
}

// Stake moves amount from the account's free balance into the staking pool
func (l *MemoryLedger) Stake(asset AssetID, who AccountID, amount Amount) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	b := l.get(asset, who)
	if b.Free < amount {
		return fmt.Errorf("stake %d from %s: %w", amount, who, ErrInsufficientBalance)
	}
	pool, err := l.pools[asset].CheckedAdd(amount)
	if err != nil {
		return err
	}
	b.Free -= amount
	l.set(asset, who, b)
	l.pools[asset] = pool
	return nil
}

// Release moves amount from the staking pool into the account's free balance
func (l *MemoryLedger) Release(asset AssetID, who AccountID, amount Amount) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.pools[asset] < amount {
		return fmt.Errorf("release %d to %s: pool holds %d: %w", amount, who, l.pools[asset], ErrInsufficientBalance)
	}
	b := l.get(asset, who)
	free, err := b.Free.CheckedAdd(amount)
	if err != nil {
		return err
	}
	b.Free = free
	l.set(asset, who, b)
	l.pools[asset] -= amount
	return nil
}

// FreezeShare moves amount from free into the shareable social balance
func (l *MemoryLedger) FreezeShare(asset AssetID, who AccountID, amount Amount) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	b := l.get(asset, who)
	if b.Free < amount {
		return fmt.Errorf("freeze %d of %s: %w", amount, who, ErrInsufficientBalance)
	}
	social, err := b.Social.CheckedAdd(amount)
	if err != nil {
		return err
	}
	b.Free -= amount
	b.Social = social
	l.set(asset, who, b)
	return nil
}

// Thaw moves amount from the social balance back into free
func (l *MemoryLedger) Thaw(asset AssetID, who AccountID, amount Amount) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	b := l.get(asset, who)
	if b.Social < amount {
		return fmt.Errorf("thaw %d of %s: %w", amount, who, ErrInsufficientBalance)
	}
	free, err := b.Free.CheckedAdd(amount)
	if err != nil {
		return err
	}
	b.Social -= amount
	b.Free = free
	l.set(asset, who, b)
	return nil
}

// StakeOnBehalf moves amount from the account's social balance into the staking pool
func (l *MemoryLedger) StakeOnBehalf(asset AssetID, who AccountID, amount Amount) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	b := l.get(asset, who)
	if b.Social < amount {
		return fmt.Errorf("stake %d of social balance of %s: %w", amount, who, ErrInsufficientBalance)
	}
	pool, err := l.pools[asset].CheckedAdd(amount)
	if err != nil {
		return err
	}
	b.Social -= amount
	l.set(asset, who, b)
	l.pools[asset] = pool
	return nil
}

// SocialBalance returns the shareable balance of the account
func (l *MemoryLedger) SocialBalance(asset AssetID, who AccountID) Amount {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.get(asset, who).Social
}

// BatchShare splits amount evenly across targets' social balances. The
// indivisible remainder stays with the source; an empty target set moves nothing.
func (l *MemoryLedger) BatchShare(asset AssetID, from AccountID, targets []AccountID, amount Amount) error {
	if len(targets) == 0 || amount == 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	src := l.get(asset, from)
	per := amount / Amount(len(targets))
	moved := per * Amount(len(targets))
	if src.Social < moved {
		return fmt.Errorf("share %d from %s: %w", moved, from, ErrInsufficientBalance)
	}

	src.Social -= moved
	updated := map[AccountID]AccountBalance{from: src}
	for _, target := range targets {
		b, seen := updated[target]
		if !seen {
			b = l.get(asset, target)
		}
		social, err := b.Social.CheckedAdd(per)
		if err != nil {
			return err
		}
		b.Social = social
		updated[target] = b
	}

	for who, b := range updated {
		l.set(asset, who, b)
	}
	return nil
}

// Balance returns the account's balance
func (l *MemoryLedger) Balance(asset AssetID, who AccountID) AccountBalance {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.get(asset, who)
}

// Pool returns the staking pool of the asset
func (l *MemoryLedger) Pool(asset AssetID) Amount {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.pools[asset]
}

// LedgerSnapshot is the serializable form of a MemoryLedger
type LedgerSnapshot struct {
	Balances map[AssetID]map[AccountID]AccountBalance `json:"balances"`
	Pools    map[AssetID]Amount                       `json:"pools"`
}

// Snapshot copies the ledger contents
func (l *MemoryLedger) Snapshot() LedgerSnapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()

	snap := LedgerSnapshot{
		Balances: make(map[AssetID]map[AccountID]AccountBalance, len(l.balances)),
		Pools:    make(map[AssetID]Amount, len(l.pools)),
	}
	for asset, accounts := range l.balances {
		copied := make(map[AccountID]AccountBalance, len(accounts))
		for who, b := range accounts {
			copied[who] = b
		}
		snap.Balances[asset] = copied
	}
	for asset, pool := range l.pools {
		snap.Pools[asset] = pool
	}
	return snap
}

// Restore replaces the ledger contents with the snapshot
func (l *MemoryLedger) Restore(snap LedgerSnapshot) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.balances = make(map[AssetID]map[AccountID]AccountBalance, len(snap.Balances))
	l.pools = make(map[AssetID]Amount, len(snap.Pools))
	for asset, accounts := range snap.Balances {
		copied := make(map[AccountID]AccountBalance, len(accounts))
		for who, b := range accounts {
			copied[who] = b
		}
		l.balances[asset] = copied
	}
	for asset, pool := range snap.Pools {
		l.pools[asset] = pool
	}
}

// Checkpoint captures the ledger so a failed operation can undo its transfers
func (l *MemoryLedger) Checkpoint() func() {
	snap := l.Snapshot()
	return func() { l.Restore(snap) }
}
