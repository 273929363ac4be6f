package governance

import (
	"errors"
	"testing"

	"cdpchain/crypto"
)

func TestCheckQualified(t *testing.T) {
	alice := crypto.DeriveAddress([]byte("alice"))
	bob := crypto.DeriveAddress([]byte("bob"))
	carol := crypto.DeriveAddress([]byte("carol"))
	objectors, err := NewObjectors(map[crypto.Address]uint32{alice: 15_000, bob: 10_000}, 20_000)
	if err != nil {
		t.Fatalf("new objectors: %v", err)
	}
	if err := objectors.CheckQualified(alice, nil); !errors.Is(err, ErrNotQualified) {
		t.Fatalf("expected alice alone to fall short, got %v", err)
	}
	if err := objectors.CheckQualified(alice, []crypto.Address{bob}); err != nil {
		t.Fatalf("expected alice with bob to qualify, got %v", err)
	}
	if err := objectors.CheckQualified(carol, []crypto.Address{alice, bob}); err != nil {
		t.Fatalf("expected helpers to carry carol, got %v", err)
	}
	if err := objectors.CheckQualified(alice, []crypto.Address{bob, bob}); !errors.Is(err, ErrInvalidHelper) {
		t.Fatalf("expected ErrInvalidHelper for a repeated helper, got %v", err)
	}
	if err := objectors.CheckQualified(alice, []crypto.Address{alice}); !errors.Is(err, ErrInvalidHelper) {
		t.Fatalf("expected ErrInvalidHelper for self help, got %v", err)
	}
}

func TestNewObjectorsRejectsOverweight(t *testing.T) {
	alice := crypto.DeriveAddress([]byte("alice"))
	bob := crypto.DeriveAddress([]byte("bob"))
	if _, err := NewObjectors(map[crypto.Address]uint32{alice: 600_000, bob: 600_000}, 20_000); !errors.Is(err, ErrInvalidWeight) {
		t.Fatalf("expected ErrInvalidWeight, got %v", err)
	}
	var nilTable *Objectors
	if err := nilTable.CheckQualified(alice, nil); !errors.Is(err, ErrNotQualified) {
		t.Fatalf("expected nil table to reject, got %v", err)
	}
}
