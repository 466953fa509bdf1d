package main

import (
	"context"
	"sync/atomic"
	"time"
)

// BlockClock is a logical block height advanced by a ticker
type BlockClock struct {
	height atomic.Uint64
}

// NewBlockClock starts the clock at the given height
func NewBlockClock(start BlockNumber) *BlockClock {
	c := &BlockClock{}
	c.height.Store(uint64(start))
	return c
}

// Now returns the current block height
func (c *BlockClock) Now() BlockNumber {
	return BlockNumber(c.height.Load())
}

// Advance moves the clock forward by n blocks and returns the new height
func (c *BlockClock) Advance(n uint64) BlockNumber {
	return BlockNumber(c.height.Add(n))
}

// Run advances the clock by one block every interval until ctx is done.
// onBlock, when set, is called with each new height.
func (c *BlockClock) Run(ctx context.Context, interval time.Duration, onBlock func(BlockNumber)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			height := c.Advance(1)
			blockHeightGauge.Set(float64(height))
			if onBlock != nil {
				onBlock(height)
			}
		}
	}
}
