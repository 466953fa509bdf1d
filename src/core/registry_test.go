package main

import (
	"errors"
	"math"
	"reflect"
	"testing"
)

func TestGetDirectTrustees(t *testing.T) {
	registry := NewTrustRegistry(0.5)

	registry.SetTrust("aaaa111111111111", "bbbb222222222222", 0.8)
	registry.SetTrust("aaaa111111111111", "cccc333333333333", 0.6)

	trustees := registry.GetDirectTrustees("aaaa111111111111")

	if len(trustees) != 2 {
		t.Errorf("Expected 2 trustees, got %d", len(trustees))
	}

	if trustees["bbbb222222222222"] != 0.8 {
		t.Errorf("Expected trust 0.8 for bbbb222222222222, got %f", trustees["bbbb222222222222"])
	}

	if trustees["cccc333333333333"] != 0.6 {
		t.Errorf("Expected trust 0.6 for cccc333333333333, got %f", trustees["cccc333333333333"])
	}

	// Test non-existent account returns empty map
	empty := registry.GetDirectTrustees("00000000000000ff")
	if len(empty) != 0 {
		t.Errorf("Expected 0 trustees for non-existent account, got %d", len(empty))
	}
}

func TestSetTrustRejectsInvalidLevels(t *testing.T) {
	registry := NewTrustRegistry(0.5)

	for _, level := range []float64{-0.1, 1.1, math.NaN(), math.Inf(1)} {
		if err := registry.SetTrust(acct(1), acct(2), level); !errors.Is(err, ErrInvalidTrustLevel) {
			t.Errorf("Expected ErrInvalidTrustLevel for %v, got %v", level, err)
		}
	}
	if len(registry.Edges()) != 0 {
		t.Errorf("Expected no edges, got %+v", registry.Edges())
	}
}

func TestSetTrustZeroRemovesEdge(t *testing.T) {
	registry := NewTrustRegistry(0.5)
	registry.SetTrust(acct(1), acct(2), 0.7)

	if err := registry.SetTrust(acct(1), acct(2), 0); err != nil {
		t.Fatalf("Failed to remove edge: %v", err)
	}
	if registry.GetTrustLevel(acct(1), acct(2)) != 0 {
		t.Error("Expected edge to be removed")
	}
	if len(registry.Edges()) != 0 {
		t.Errorf("Expected no edges left, got %+v", registry.Edges())
	}
}

func TestTrustedOf(t *testing.T) {
	registry := NewTrustRegistry(0.5)
	registry.SetTrust(acct(1), acct(4), 0.5)
	registry.SetTrust(acct(1), acct(3), 0.9)
	registry.SetTrust(acct(1), acct(2), 0.49)
	registry.SetTrust(acct(1), acct(1), 1.0)
	registry.SetTrust(acct(3), acct(5), 1.0)

	want := []AccountID{acct(3), acct(4)}
	if got := registry.TrustedOf(acct(1)); !reflect.DeepEqual(got, want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
	if got := registry.TrustedOf(acct(9)); len(got) != 0 {
		t.Errorf("Expected nobody trusted by an unknown account, got %v", got)
	}
}

func TestTrustRegistryRestore(t *testing.T) {
	registry := NewTrustRegistry(0.5)
	registry.SetTrust(acct(1), acct(2), 0.9)
	registry.SetTrust(acct(2), acct(1), 0.3)
	edges := registry.Edges()

	restored := NewTrustRegistry(0.5)
	restored.SetTrust(acct(7), acct(8), 1)
	restored.Restore(append(edges, TrustEdge{Truster: acct(3), Trustee: acct(4), Level: 2}))

	if !reflect.DeepEqual(edges, restored.Edges()) {
		t.Errorf("Expected %+v, got %+v", edges, restored.Edges())
	}
}
