package relay

import (
	"sync"
	"sync/atomic"
	"time"
)

// Guard states.
const (
	guardArmed int32 = iota
	guardDisarmed
	guardFired
)

// TimeoutGuard reclaims connections that never start sending player data.
//
// It is armed on creation and ends either disarmed or fired, exactly once.
// Disarm and the deadline may race; whichever wins the state transition
// decides, and the loser is a no-op.
type TimeoutGuard struct {
	state  atomic.Int32
	d      time.Duration
	onFire func()

	mu    sync.Mutex
	timer *time.Timer
}

// NewTimeoutGuard returns a guard that calls onFire d after Arm unless
// disarmed first. The owner must be fully built before Arm, since onFire
// may run immediately after it.
func NewTimeoutGuard(d time.Duration, onFire func()) *TimeoutGuard {
	return &TimeoutGuard{d: d, onFire: onFire}
}

// Arm starts the deadline. Arming twice, or arming a disarmed guard, is a
// no-op.
func (g *TimeoutGuard) Arm() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.timer != nil || g.state.Load() != guardArmed {
		return
	}
	g.timer = time.AfterFunc(g.d, g.fire)
}

func (g *TimeoutGuard) fire() {
	// Arm holds mu until the timer is stored, so onFire observes the
	// fully built owner.
	g.mu.Lock()
	armed := g.timer != nil
	g.mu.Unlock()

	if !armed || !g.state.CompareAndSwap(guardArmed, guardFired) {
		return
	}
	if g.onFire != nil {
		g.onFire()
	}
}

// Disarm cancels the deadline. It reports whether this call disarmed the
// guard; disarming a disarmed or fired guard returns false.
func (g *TimeoutGuard) Disarm() bool {
	if !g.state.CompareAndSwap(guardArmed, guardDisarmed) {
		return false
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.timer != nil {
		g.timer.Stop()
	}
	return true
}

// Armed reports whether the deadline is still pending.
func (g *TimeoutGuard) Armed() bool {
	return g.state.Load() == guardArmed
}

// Fired reports whether the deadline elapsed before a disarm.
func (g *TimeoutGuard) Fired() bool {
	return g.state.Load() == guardFired
}
