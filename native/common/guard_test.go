package common

import (
	"errors"
	"testing"
)

func TestGuardHonoursStaticPauses(t *testing.T) {
	pauses := StaticPauses{ModuleHub: true}
	if err := Guard(pauses, ModuleHub); !errors.Is(err, ErrModulePaused) {
		t.Fatalf("expected paused error, got %v", err)
	}
	if err := Guard(pauses, ModulePosition); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := Guard(nil, ModuleHub); err != nil {
		t.Fatalf("nil view must not pause: %v", err)
	}
	if !pauses.IsPaused(" MintingHub ") {
		t.Fatalf("module names are case insensitive")
	}
}
