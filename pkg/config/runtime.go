package config

import (
	"fmt"
	"sync"
)

// CallModeToggle is the runtime-mutable server default for campaigns that
// request mode "auto". PUT /settings/call-mode flips it without a restart.
type CallModeToggle struct {
	mu        sync.RWMutex
	simulated bool
}

// NewCallModeToggle starts the toggle from the boot setting.
func NewCallModeToggle(simulated bool) *CallModeToggle {
	return &CallModeToggle{simulated: simulated}
}

// Simulated reports whether auto-mode campaigns simulate calls.
func (t *CallModeToggle) Simulated() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.simulated
}

// Mode returns "simulated" or "real".
func (t *CallModeToggle) Mode() string {
	if t.Simulated() {
		return "simulated"
	}
	return "real"
}

// SetMode accepts "simulated" or "real".
func (t *CallModeToggle) SetMode(mode string) error {
	switch mode {
	case "simulated", "real":
	default:
		return fmt.Errorf("invalid call mode %q: must be 'real' or 'simulated'", mode)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.simulated = mode == "simulated"
	return nil
}
