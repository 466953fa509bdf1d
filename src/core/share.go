package main

import "fmt"

// share redistributes the target's social balance after a refresh: the share
// fraction goes to its trusted counterparties, the self fraction is thawed back
// to the target and the fee fraction is staked and returned as the update fee.
func (e *Engine) share(target AccountID) (Amount, error) {
	trusted := e.trust.TrustedOf(target)
	balance := e.ledger.SocialBalance(e.params.Asset, target)

	shared := e.params.ShareRatio.MulFloor(balance)
	thawed := e.params.SelfRatio.MulFloor(balance)
	fee := e.params.FeeRatio.MulFloor(balance)

	if err := e.ledger.BatchShare(e.params.Asset, target, trusted, shared); err != nil {
		return 0, fmt.Errorf("%w: share %d of %s with %d accounts: %w", ErrFee, shared, target, len(trusted), err)
	}
	if err := e.ledger.Thaw(e.params.Asset, target, thawed); err != nil {
		return 0, fmt.Errorf("%w: thaw %d of %s: %w", ErrFee, thawed, target, err)
	}
	if err := e.ledger.StakeOnBehalf(e.params.Asset, target, fee); err != nil {
		return 0, fmt.Errorf("%w: stake fee %d of %s: %w", ErrFee, fee, target, err)
	}

	logger.Debug("Shared social balance",
		"target", target,
		"balance", balance,
		"shared", shared,
		"trusted", len(trusted),
		"thawed", thawed,
		"fee", fee)
	return fee, nil
}
