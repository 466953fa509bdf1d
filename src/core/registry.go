package main

import (
	"errors"
	"math"
	"sort"
	"sync"
)

// ErrInvalidTrustLevel is returned for trust levels outside [0, 1]
var ErrInvalidTrustLevel = errors.New("trust level must be within [0, 1]")

// TrustRegistry holds directed trust edges (truster -> trustee -> level) and
// resolves the counterparties that receive a share of a target's social balance.
type TrustRegistry struct {
	mu       sync.RWMutex
	edges    map[AccountID]map[AccountID]float64
	minTrust float64
}

// NewTrustRegistry creates a registry that shares with trustees at or above minTrust
func NewTrustRegistry(minTrust float64) *TrustRegistry {
	return &TrustRegistry{
		edges:    make(map[AccountID]map[AccountID]float64),
		minTrust: minTrust,
	}
}

// SetTrust creates or updates a trust edge. A level of zero removes the edge.
func (r *TrustRegistry) SetTrust(truster, trustee AccountID, level float64) error {
	if math.IsNaN(level) || math.IsInf(level, 0) || level < 0 || level > 1 {
		return ErrInvalidTrustLevel
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if level == 0 {
		delete(r.edges[truster], trustee)
		if len(r.edges[truster]) == 0 {
			delete(r.edges, truster)
		}
	} else {
		// Initialize map for truster if it doesn't exist
		if _, exists := r.edges[truster]; !exists {
			r.edges[truster] = make(map[AccountID]float64)
		}
		r.edges[truster][trustee] = level
	}

	logger.Debug("Updated trust registry",
		"truster", truster,
		"trustee", trustee,
		"trustLevel", level)
	return nil
}

// GetTrustLevel returns the trust level between two accounts
func (r *TrustRegistry) GetTrustLevel(truster, trustee AccountID) float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.edges[truster][trustee]
}

// GetDirectTrustees returns all accounts directly trusted by a given account
func (r *TrustRegistry) GetDirectTrustees(who AccountID) map[AccountID]float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make(map[AccountID]float64)
	for trustee, level := range r.edges[who] {
		result[trustee] = level
	}
	return result
}

// TrustedOf returns the trustees of who at or above the sharing threshold, sorted.
// Self edges never qualify.
func (r *TrustRegistry) TrustedOf(who AccountID) []AccountID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var trusted []AccountID
	for trustee, level := range r.edges[who] {
		if trustee == who || level < r.minTrust {
			continue
		}
		trusted = append(trusted, trustee)
	}
	sort.Slice(trusted, func(i, j int) bool { return trusted[i] < trusted[j] })
	return trusted
}

// TrustEdge is the serializable form of one edge
type TrustEdge struct {
	Truster AccountID `json:"truster"`
	Trustee AccountID `json:"trustee"`
	Level   float64   `json:"level"`
}

// Edges lists every edge ordered by truster then trustee
func (r *TrustRegistry) Edges() []TrustEdge {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var edges []TrustEdge
	for truster, trustees := range r.edges {
		for trustee, level := range trustees {
			edges = append(edges, TrustEdge{Truster: truster, Trustee: trustee, Level: level})
		}
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].Truster != edges[j].Truster {
			return edges[i].Truster < edges[j].Truster
		}
		return edges[i].Trustee < edges[j].Trustee
	})
	return edges
}

// Restore replaces the registry contents with the given edges
func (r *TrustRegistry) Restore(edges []TrustEdge) {
	r.mu.Lock()
	r.edges = make(map[AccountID]map[AccountID]float64)
	r.mu.Unlock()

	for _, e := range edges {
		if err := r.SetTrust(e.Truster, e.Trustee, e.Level); err != nil {
			logger.Warn("Skipping invalid trust edge", "truster", e.Truster, "trustee", e.Trustee, "error", err)
		}
	}
}
