package common

import (
	"errors"
	"strings"
)

var ErrModulePaused = errors.New("module paused")

// Module names checked by Guard.
const (
	ModuleBank     = "bank"
	ModuleStable   = "stable"
	ModulePosition = "position"
	ModuleHub      = "mintinghub"
	ModuleRoller   = "roller"
)

type PauseView interface {
	IsPaused(module string) bool
}

// StaticPauses is a PauseView backed by the configured pause switches.
type StaticPauses map[string]bool

func (p StaticPauses) IsPaused(module string) bool {
	if p == nil {
		return false
	}
	return p[strings.ToLower(strings.TrimSpace(module))]
}

func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}
