package session

import "sync/atomic"

// IDAllocator hands out globally-unique session ids. Ids strictly
// increase and are never reused, so any stale reference to a prior
// incarnation of a slot compares unequal forever.
//
// One allocator is owned by the host; sessions never touch ambient
// global state for identity.
type IDAllocator struct {
	next atomic.Uint64
}

// Next returns a fresh id. The first id is 1; zero always means
// "never spawned".
func (a *IDAllocator) Next() uint64 {
	return a.next.Add(1)
}
