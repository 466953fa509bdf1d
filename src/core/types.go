package main

// AccountID identifies a pathfinder, target, proxy or challenger (16 lowercase hex characters)
type AccountID string

// AssetID identifies the ledger asset used for staking and fee settlement
type AssetID string

// Amount is an unsigned fixed-precision monetary quantity
type Amount uint64

// BlockNumber is the logical clock every timeout is measured in
type BlockNumber uint64

// UserScore is one entry of a refresh batch
type UserScore struct {
	Target AccountID `json:"target"`
	Score  uint32    `json:"score"`
}

// Record is the most recent refresh evidence for one (pathfinder, target) pair
type Record struct {
	UpdateAt BlockNumber `json:"updateAt"`
	Fee      Amount      `json:"fee"`
}

// Payroll is the accrued, not yet claimed work of a pathfinder
type Payroll struct {
	Count    uint32 `json:"count"`
	TotalFee Amount `json:"totalFee"`
}

// IsZero reports whether the payroll carries nothing
func (p Payroll) IsZero() bool {
	return p.Count == 0 && p.TotalFee == 0
}

// TotalAmount returns the staking principal plus the accrued fee.
// stake is the per-update staking amount.
func (p Payroll) TotalAmount(stake Amount) (Amount, error) {
	principal, err := stake.CheckedMul(uint64(p.Count))
	if err != nil {
		return 0, err
	}
	return principal.CheckedAdd(p.TotalFee)
}

// RoundPhase is the global refresh round state
type RoundPhase string

const (
	RoundClosed RoundPhase = "closed"
	RoundOpen   RoundPhase = "open"
	RoundEnded  RoundPhase = "ended"
)

// RecordEntry pairs a record with its target, used in listings and snapshots
type RecordEntry struct {
	Target AccountID `json:"target"`
	Record
}
