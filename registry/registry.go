// Package registry implements the Pool Registry (spec §4.3): the single
// owner of every discovered pool, with a primary address index and a
// secondary token index, guarded by a single-writer/many-reader lock (spec
// §5) so the Synchronizer can mutate freely while callers read a
// consistent view.
package registry

import (
	"errors"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/ethereum/go-ethereum/common"

	"github.com/defistate/statespace/bitset"
	"github.com/defistate/statespace/errs"
	"github.com/defistate/statespace/pool"
)

// Registry owns every registered pool. Other components hold addresses,
// never pointers into the registry's own storage, per the design note that
// pools are the unique ownership point and everything else is a weak
// logical reference.
type Registry struct {
	mu sync.RWMutex

	// pools is indexed by a dense internal pool_id; a nil slot is a
	// removed (or never-assigned) pool.
	pools []pool.AMM

	// live tracks which pool_id slots hold a pool, so iteration and
	// existence checks don't need to nil-check every slot by hand — one
	// word of bitset covers 64 ids at a time, the same structure the
	// teacher's bitset package already provides for dense index liveness.
	live bitset.BitSet

	addrToID map[common.Address]int
	tokenIDs map[common.Address]mapset.Set[int]
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{
		pools:    make([]pool.AMM, 0, 1024),
		live:     bitset.NewBitSet(1024),
		addrToID: make(map[common.Address]int, 1024),
		tokenIDs: make(map[common.Address]mapset.Set[int], 1024),
	}
}

// ErrDuplicateAddress is returned by Insert when the pool's address is
// already registered.
var ErrDuplicateAddress = errors.New("registry: duplicate pool address")

// Insert adds p to the registry, indexing it under its own address and
// under every token it holds. It rejects a pool whose address is already
// present.
func (r *Registry) Insert(p pool.AMM) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	addr := p.Address()
	if _, exists := r.addrToID[addr]; exists {
		return ErrDuplicateAddress
	}

	id := len(r.pools)
	r.pools = append(r.pools, p)
	r.growLiveIfNeeded(id)
	r.live.Set(uint64(id))
	r.addrToID[addr] = id

	for _, tok := range p.Tokens() {
		set, ok := r.tokenIDs[tok]
		if !ok {
			set = mapset.NewThreadUnsafeSet[int]()
			r.tokenIDs[tok] = set
		}
		set.Add(id)
	}
	return nil
}

func (r *Registry) growLiveIfNeeded(id int) {
	need := uint64(id + 1)
	if need <= uint64(len(r.live))*64 {
		return
	}
	grown := bitset.NewBitSet(need * 2)
	copy(grown, r.live)
	r.live = grown
}

// Get returns the pool registered at addr, for read-only use (callers must
// not mutate the returned value; see Snapshot for a safe-to-mutate copy).
func (r *Registry) Get(addr common.Address) (pool.AMM, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.getLocked(addr)
}

func (r *Registry) getLocked(addr common.Address) (pool.AMM, bool) {
	id, ok := r.addrToID[addr]
	if !ok {
		return nil, false
	}
	return r.pools[id], true
}

// Mutate applies fn to the pool at addr under the write lock, the single
// path every pool mutation (Synchronizer.Sync, SimulateSwapMut) must go
// through so readers never observe a half-applied log.
func (r *Registry) Mutate(addr common.Address, fn func(pool.AMM) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.getLocked(addr)
	if !ok {
		return errs.ErrLogMismatch
	}
	return fn(p)
}

// ByToken returns the addresses of every pool indexed under token.
func (r *Registry) ByToken(token common.Address) []common.Address {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set, ok := r.tokenIDs[token]
	if !ok {
		return nil
	}
	out := make([]common.Address, 0, set.Cardinality())
	for id := range set.Iter() {
		if p := r.pools[id]; p != nil {
			out = append(out, p.Address())
		}
	}
	return out
}

// Remove deletes addr from both indices. Used only by Discovery's value
// filter stage (spec §4.3); the Synchronizer never removes a pool.
func (r *Registry) Remove(addr common.Address) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.addrToID[addr]
	if !ok {
		return false
	}
	p := r.pools[id]
	for _, tok := range p.Tokens() {
		if set, ok := r.tokenIDs[tok]; ok {
			set.Remove(id)
			if set.Cardinality() == 0 {
				delete(r.tokenIDs, tok)
			}
		}
	}
	r.pools[id] = nil
	r.live.Unset(uint64(id))
	delete(r.addrToID, addr)
	return true
}

// Len returns the number of live (non-removed) pools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.addrToID)
}

// All returns every live pool's address, in no particular order.
func (r *Registry) All() []common.Address {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]common.Address, 0, len(r.addrToID))
	for addr := range r.addrToID {
		out = append(out, addr)
	}
	return out
}

// Snapshot returns a deep copy of the pool registered at addr, suitable for
// the state change cache's "before" map or for a caller that needs a
// point-in-time value it can hold across multiple blocks.
func (r *Registry) Snapshot(addr common.Address) (pool.AMM, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.getLocked(addr)
	if !ok {
		return nil, false
	}
	return p.Clone(), true
}

// Restore overwrites the pool at addr with snapshot, used by the state
// change cache to reverse-apply a block on reorg. addr must already be
// registered; Restore does not change either index's membership, only the
// stored value.
func (r *Registry) Restore(addr common.Address, snapshot pool.AMM) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.addrToID[addr]
	if !ok {
		return errs.ErrLogMismatch
	}
	r.pools[id] = snapshot
	return nil
}
