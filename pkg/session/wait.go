package session

import "sync/atomic"

// Watcher states. A WaitContext moves armed→fired when the wait
// goroutine wins, or armed→disposed when teardown wins. Exactly one
// transition succeeds; the loser sees the flag and does nothing.
const (
	watchArmed int32 = iota
	watchFired
	watchDisposed
)

// WaitContext correlates one spawned process with its exit-watch
// completion. It captures the pid and generation at arm time so a
// completion that outlives a respawn identifies itself as stale.
type WaitContext struct {
	pid   int
	gen   uint64
	state atomic.Int32
}

// fire attempts the armed→fired transition. Only the winner may
// deliver an exit event.
func (w *WaitContext) fire() bool {
	return w.state.CompareAndSwap(watchArmed, watchFired)
}

// disarm attempts the armed→disposed transition. Teardown calls this;
// if the callback already fired, the event is in flight and will be
// rejected downstream by generation comparison.
func (w *WaitContext) disarm() bool {
	return w.state.CompareAndSwap(watchArmed, watchDisposed)
}

// ExitEvent is delivered to the frame loop when a watched process
// exits. Slot routes it; Pid and Gen authenticate it against the
// session's live incarnation.
type ExitEvent struct {
	Slot int
	Pid  int
	Gen  uint64
}
