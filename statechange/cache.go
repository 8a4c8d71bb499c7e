// Package statechange implements the State Change Cache (spec §4.6): a
// bounded ring of per-block diffs recording each touched pool's state
// immediately before that block's logs were applied, so a reorg can be
// undone by restoring those snapshots in reverse order. Grounded on
// original_source/src/state_space/cache.rs's ArrayDeque-based bounded ring
// (push_front / evict-oldest-at-capacity / rewind_to-via-reverse-scan),
// reimplemented here as a Go slice-backed ring guarded by the same
// sync.RWMutex style the registry uses.
package statechange

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/defistate/statespace/errs"
	"github.com/defistate/statespace/metrics"
	"github.com/defistate/statespace/pool"
	"github.com/defistate/statespace/registry"
)

// Change is one block's worth of pre-apply pool snapshots (spec §3's
// StateChange record).
type Change struct {
	BlockNumber uint64
	BlockHash   common.Hash
	Before      map[common.Address]pool.AMM
}

// Cache is a bounded deque of Change records, capacity = the configured
// reorg depth D (spec §4.6, typical 7).
type Cache struct {
	mu       sync.RWMutex
	capacity int
	records  []Change // oldest first
	metrics  *metrics.Cache
}

// New returns an empty cache with the given capacity (reorg depth).
// capacity must be >= 1.
func New(capacity int) *Cache {
	if capacity < 1 {
		capacity = 1
	}
	return &Cache{capacity: capacity, records: make([]Change, 0, capacity)}
}

// SetMetrics attaches m so Push/RewindTo report depth, rewind, and
// too-deep-rewind counts. Call before the cache is shared across
// goroutines; it is not itself safe for concurrent use with Push/RewindTo.
func (c *Cache) SetMetrics(m *metrics.Cache) {
	c.metrics = m
}

// Push records one block's before-snapshots, evicting the oldest record if
// the cache is already at capacity.
func (c *Cache) Push(change Change) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.records) == c.capacity {
		c.records = c.records[1:]
	}
	c.records = append(c.records, change)
	if c.metrics != nil {
		c.metrics.Depth.WithLabelValues().Set(float64(len(c.records)))
	}
}

// Depth returns the number of records currently held.
func (c *Cache) Depth() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.records)
}

// OldestBlock returns the block number of the oldest cached record, and
// false if the cache is empty.
func (c *Cache) OldestBlock() (uint64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.records) == 0 {
		return 0, false
	}
	return c.records[0].BlockNumber, true
}

// HashAt returns the BlockHash recorded for block, and false if block is
// not currently held (evicted or never pushed). Used by the Synchronizer's
// ancestor walk-back to compare its own recent history against the
// canonical chain during reorg classification.
func (c *Cache) HashAt(block uint64) (common.Hash, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for i := len(c.records) - 1; i >= 0; i-- {
		if c.records[i].BlockNumber == block {
			return c.records[i].BlockHash, true
		}
	}
	return common.Hash{}, false
}

// RewindTo pops every record with BlockNumber > forkBlock, restoring each
// popped record's Before snapshots into reg in reverse order (newest block
// undone first, so an address touched in two popped blocks ends up with
// the snapshot from the earlier one — the state as of forkBlock).
//
// It fails with an *errs.ReorgError (which unwraps to errs.ErrReorgTooDeep)
// if forkBlock is older than the cache can
// recover (forkBlock < oldest cached block - 1): the synchronizer must
// restart discovery or exit in that case.
func (c *Cache) RewindTo(reg *registry.Registry, forkBlock uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.records) == 0 {
		return nil
	}
	oldest := c.records[0].BlockNumber
	if forkBlock+1 < oldest {
		if c.metrics != nil {
			c.metrics.RewindTooDeep.WithLabelValues().Inc()
		}
		return &errs.ReorgError{RequestedForkBlock: forkBlock, OldestCachedBlock: oldest}
	}

	cut := len(c.records)
	for cut > 0 && c.records[cut-1].BlockNumber > forkBlock {
		cut--
	}
	toRewind := c.records[cut:]
	c.records = c.records[:cut]

	for i := len(toRewind) - 1; i >= 0; i-- {
		for addr, snapshot := range toRewind[i].Before {
			if err := reg.Restore(addr, snapshot); err != nil {
				return err
			}
		}
	}
	if c.metrics != nil {
		c.metrics.RewindsTotal.WithLabelValues().Inc()
		c.metrics.Depth.WithLabelValues().Set(float64(len(c.records)))
	}
	return nil
}
