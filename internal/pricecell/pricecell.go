// Package pricecell holds the single lock-free published price for the
// engine: a bid/ask snapshot that every reader sees atomically, with no
// torn reads and no mutex on the hot path.
package pricecell

import (
	"sync/atomic"

	"trading-core/internal/money"
)

// Snapshot is an immutable bid/ask pair published at a point in time.
type Snapshot struct {
	Bid money.D
	Ask money.D
}

// Cell publishes the latest Snapshot for lock-free concurrent reads.
// The zero value is ready to use and Loads as a zero-valued Snapshot
// until the first Store.
type Cell struct {
	v atomic.Pointer[Snapshot]
}

// Store publishes a new snapshot. Safe for concurrent use; the newest
// Store always wins, there is no ordering guarantee across concurrent
// writers beyond what atomic.Pointer itself provides.
func (c *Cell) Store(bid, ask money.D) {
	c.v.Store(&Snapshot{Bid: bid, Ask: ask})
}

// Load returns the latest published snapshot. Before the first Store it
// returns a zero-valued Snapshot (Bid and Ask both zero).
func (c *Cell) Load() Snapshot {
	p := c.v.Load()
	if p == nil {
		return Snapshot{}
	}
	return *p
}
