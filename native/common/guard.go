package common

import (
	"errors"
	"sync"
)

var ErrOperationPaused = errors.New("operation paused")

// Action identifies a gated state-mutating operation.
type Action string

const (
	ActionDeposit   Action = "deposit"
	ActionWithdraw  Action = "withdraw"
	ActionBorrow    Action = "borrow"
	ActionRepay     Action = "repay"
	ActionLiquidate Action = "liquidate"
)

// riskIncreasing marks the actions that can push an account closer to
// insolvency. Partial emergency modes keep the remaining, risk-reducing
// actions enabled.
var riskIncreasing = map[Action]bool{
	ActionWithdraw: true,
	ActionBorrow:   true,
}

// PauseLevel selects how much of the protocol an emergency halt covers.
type PauseLevel int

const (
	// PauseNone leaves every action enabled.
	PauseNone PauseLevel = iota
	// PauseRiskIncreasing halts borrow and withdraw while deposits,
	// repayments and liquidations keep reducing risk.
	PauseRiskIncreasing
	// PauseAll halts every gated action.
	PauseAll
)

// PauseView exposes the current pause state to guards.
type PauseView interface {
	IsPaused(action Action) bool
}

// Guard rejects the action when the gate reports it paused.
func Guard(p PauseView, action Action) error {
	if p == nil || action == "" {
		return nil
	}
	if p.IsPaused(action) {
		return ErrOperationPaused
	}
	return nil
}

// Gate is the emergency switch consulted at the entry of every state-mutating
// operation. Pause and Unpause are privileged; governance calls them through
// the engine's administrative surface.
type Gate struct {
	mu        sync.RWMutex
	level     PauseLevel
	overrides map[Action]bool
}

// NewGate constructs a gate with every action enabled.
func NewGate() *Gate {
	return &Gate{overrides: make(map[Action]bool)}
}

// SetLevel switches the global pause level.
func (g *Gate) SetLevel(level PauseLevel) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.level = level
}

// Level returns the current global pause level.
func (g *Gate) Level() PauseLevel {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.level
}

// Pause halts a single action regardless of the global level.
func (g *Gate) Pause(action Action) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.overrides[action] = true
}

// Unpause clears a per-action halt.
func (g *Gate) Unpause(action Action) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.overrides, action)
}

// IsPaused implements PauseView.
func (g *Gate) IsPaused(action Action) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.overrides[action] {
		return true
	}
	switch g.level {
	case PauseAll:
		return true
	case PauseRiskIncreasing:
		return riskIncreasing[action]
	default:
		return false
	}
}
