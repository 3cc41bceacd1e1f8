package common

import flasherrors "flashsettle/core/errors"

// ErrModulePaused is returned by Guard when the module's pause switch is set.
var ErrModulePaused = flasherrors.ErrPaused

// PauseView exposes the pause switches consulted before any state mutation.
type PauseView interface {
	IsPaused(module string) bool
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
