package common

import (
	"errors"
	"testing"
)

func TestGuardDisabledWithoutView(t *testing.T) {
	if err := Guard(nil, "lend"); err != nil {
		t.Fatalf("nil view: %v, want nil", err)
	}
	registry := NewPauseRegistry()
	registry.SetPaused("lend", true)
	if err := Guard(registry, ""); err != nil {
		t.Fatalf("empty module: %v, want nil", err)
	}
}

func TestGuardTogglesWithRegistry(t *testing.T) {
	registry := NewPauseRegistry()

	if err := Guard(registry, "lend"); err != nil {
		t.Fatalf("unpaused: %v, want nil", err)
	}

	registry.SetPaused("lend", true)
	if err := Guard(registry, "lend"); !errors.Is(err, ErrModulePaused) {
		t.Fatalf("paused: %v, want ErrModulePaused", err)
	}
	if err := Guard(registry, "oracle"); err != nil {
		t.Fatalf("other module: %v, want nil", err)
	}

	registry.SetPaused("lend", false)
	if err := Guard(registry, "lend"); err != nil {
		t.Fatalf("resumed: %v, want nil", err)
	}
}
