package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const stateFilename = "settlement_state.json"

// NodeState is the persisted form of a settlement node
type NodeState struct {
	Height     BlockNumber        `json:"height"`
	Store      StoreSnapshot      `json:"store"`
	Ledger     LedgerSnapshot     `json:"ledger"`
	Reputation ReputationSnapshot `json:"reputation"`
	Trust      []TrustEdge        `json:"trust"`
	Challenges []Challenge        `json:"challenges"`
}

// captureState copies every component under the engine lock so no settlement
// operation is half applied in the snapshot
func (node *SettlementNode) captureState() NodeState {
	var state NodeState
	node.Engine.Atomically(func() error {
		state = NodeState{
			Height:     node.Clock.Now(),
			Store:      node.Engine.store.Snapshot(),
			Ledger:     node.Ledger.Snapshot(),
			Reputation: node.Reputation.Snapshot(),
			Trust:      node.Trust.Edges(),
			Challenges: node.Challenges.List(true),
		}
		return nil
	})
	return state
}

// SaveState writes the node state to a JSON file
func (node *SettlementNode) SaveState(dataDir string) error {
	state := node.captureState()

	// Ensure data directory exists
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal settlement state: %w", err)
	}

	// Write then rename so a crash never leaves a truncated file
	filePath := filepath.Join(dataDir, stateFilename)
	tmpPath := filePath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write settlement state file: %w", err)
	}
	if err := os.Rename(tmpPath, filePath); err != nil {
		return fmt.Errorf("failed to replace settlement state file: %w", err)
	}

	if logger != nil {
		logger.Info("Saved settlement state",
			"file", filePath,
			"height", state.Height,
			"payrolls", len(state.Store.Payrolls),
			"challenges", len(state.Challenges))
	}
	return nil
}

// LoadState restores the node state from a JSON file. A missing file leaves
// the node empty.
func (node *SettlementNode) LoadState(dataDir string) error {
	filePath := filepath.Join(dataDir, stateFilename)

	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read settlement state file: %w", err)
	}

	var state NodeState
	if err := json.Unmarshal(data, &state); err != nil {
		return fmt.Errorf("failed to unmarshal settlement state: %w", err)
	}

	node.Clock.height.Store(uint64(state.Height))
	blockHeightGauge.Set(float64(state.Height))
	node.Engine.RestoreStore(state.Store)
	node.Engine.Atomically(func() error {
		node.Ledger.Restore(state.Ledger)
		node.Reputation.Restore(state.Reputation)
		return nil
	})
	node.Trust.Restore(state.Trust)
	node.Challenges.Restore(state.Challenges)
	UpdateOutstandingChallengesGauge(len(node.Challenges.List(false)))

	if logger != nil {
		logger.Info("Loaded settlement state",
			"file", filePath,
			"height", state.Height,
			"round", state.Reputation.State.Round,
			"payrolls", len(state.Store.Payrolls))
	}
	return nil
}

// ClearState removes the persisted state file
func ClearState(dataDir string) error {
	filePath := filepath.Join(dataDir, stateFilename)

	if err := os.Remove(filePath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove settlement state file: %w", err)
	}
	return nil
}
