package main

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestShareSplitsSocialBalance(t *testing.T) {
	h := newEngineHarness(t, nil, testEngineParams())
	require.NoError(t, h.trust.SetTrust(targetA, acct(5), 0.6))
	require.NoError(t, h.trust.SetTrust(targetA, acct(6), 0.3))

	fee, err := h.engine.share(targetA)
	require.NoError(t, err)

	// 200 shared between T and acct(5); acct(6) is below the sharing threshold
	require.Equal(t, Amount(100), fee)
	require.Equal(t, Amount(100), h.ledger.SocialBalance(testAsset, trusteeT))
	require.Equal(t, Amount(100), h.ledger.SocialBalance(testAsset, acct(5)))
	require.Zero(t, h.ledger.SocialBalance(testAsset, acct(6)))
	require.Equal(t, AccountBalance{Free: 300, Social: 400}, h.ledger.Balance(testAsset, targetA))
	require.Equal(t, Amount(100), h.ledger.Pool(testAsset))
}

func TestShareRemainderStaysWithTarget(t *testing.T) {
	h := newEngineHarness(t, nil, testEngineParams())
	require.NoError(t, h.trust.SetTrust(targetA, acct(5), 0.9))
	require.NoError(t, h.trust.SetTrust(targetA, acct(6), 0.9))

	_, err := h.engine.share(targetA)
	require.NoError(t, err)

	// floor(200 / 3) = 66 each, 2 left behind
	for _, who := range []AccountID{trusteeT, acct(5), acct(6)} {
		require.Equal(t, Amount(66), h.ledger.SocialBalance(testAsset, who))
	}
	require.Equal(t, Amount(1000-198-300-100), h.ledger.SocialBalance(testAsset, targetA))
}

func TestShareIgnoresSelfTrust(t *testing.T) {
	h := newEngineHarness(t, nil, testEngineParams())
	require.NoError(t, h.trust.SetTrust(targetB, targetB, 1))

	fee, err := h.engine.share(targetB)
	require.NoError(t, err)

	require.Equal(t, Amount(50), fee)
	require.Equal(t, AccountBalance{Free: 150, Social: 300}, h.ledger.Balance(testAsset, targetB))
}

func TestShareEmptyBalance(t *testing.T) {
	h := newEngineHarness(t, nil, testEngineParams())

	fee, err := h.engine.share(acct(42))
	require.NoError(t, err)
	require.Zero(t, fee)
	require.Zero(t, h.ledger.Pool(testAsset))
}

func TestShareWrapsLedgerFailure(t *testing.T) {
	ledger := &failingLedger{MemoryLedger: NewMemoryLedger(), failThawFor: targetA}
	h := newEngineHarness(t, ledger, testEngineParams())

	_, err := h.engine.share(targetA)
	require.ErrorIs(t, err, ErrFee)
	require.True(t, errors.Is(err, errLedgerDown), "expected the ledger cause to be kept, got %v", err)
}
