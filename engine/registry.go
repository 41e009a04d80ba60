package engine

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/defistate/synthamm/amm"
	"github.com/ethereum/go-ethereum/common"
	"github.com/puzpuzpuz/xsync/v4"
)

// poolState is the mutable state of one pool. It is only touched with the
// owning handle's mutex held.
type poolState struct {
	pool        amm.Pool
	positionSeq uint64
	tickArrays  map[int32]*amm.TickArray
	positions   map[common.Hash]*amm.Position
}

func newPoolState(pool amm.Pool) *poolState {
	return &poolState{
		pool:       pool,
		tickArrays: make(map[int32]*amm.TickArray),
		positions:  make(map[common.Hash]*amm.Position),
	}
}

// poolStateFromSnapshot rebuilds pool state from a deep copy of s.
func poolStateFromSnapshot(s *amm.Snapshot) (*poolState, error) {
	if !s.Pool.IsActive() {
		return nil, fmt.Errorf("%w: %s", amm.ErrPoolNotInitialized, s.Pool.ID.Hex())
	}
	state := newPoolState(s.Pool)
	state.positionSeq = s.PositionSeq
	for _, ta := range s.TickArrays {
		if ta.PoolID != s.Pool.ID || ta.TickSpacing != s.Pool.TickSpacing {
			return nil, fmt.Errorf("%w: array at %d", amm.ErrTickArrayPoolMismatch, ta.StartTickIndex)
		}
		if _, exists := state.tickArrays[ta.StartTickIndex]; exists {
			return nil, fmt.Errorf("%w: %d", amm.ErrTickArrayExists, ta.StartTickIndex)
		}
		state.tickArrays[ta.StartTickIndex] = ta.Clone()
	}
	for i := range s.Positions {
		p := s.Positions[i]
		if p.PoolID != s.Pool.ID {
			return nil, fmt.Errorf("position %s belongs to pool %s", p.ID.Hex(), p.PoolID.Hex())
		}
		state.positions[p.ID] = &p
	}
	return state, nil
}

// snapshot returns a sorted deep copy of the state.
func (s *poolState) snapshot() *amm.Snapshot {
	snap := &amm.Snapshot{
		Pool:        s.pool,
		PositionSeq: s.positionSeq,
		TickArrays:  make([]*amm.TickArray, 0, len(s.tickArrays)),
		Positions:   make([]amm.Position, 0, len(s.positions)),
	}
	for _, ta := range s.tickArrays {
		snap.TickArrays = append(snap.TickArrays, ta.Clone())
	}
	for _, p := range s.positions {
		snap.Positions = append(snap.Positions, *p)
	}
	snap.Sort()
	return snap
}

// tick returns the tick at tickIndex, or the zero tick when its array does
// not exist yet.
func (s *poolState) tick(tickIndex int32) (amm.Tick, error) {
	ta, ok := s.tickArrays[amm.StartTickIndex(tickIndex, s.pool.TickSpacing)]
	if !ok {
		if !amm.CheckIsUsableTick(tickIndex, s.pool.TickSpacing) {
			return amm.Tick{}, fmt.Errorf("%w: %d with spacing %d", amm.ErrInvalidTickIndex, tickIndex, s.pool.TickSpacing)
		}
		return amm.Tick{}, nil
	}
	return ta.GetTick(tickIndex)
}

// poolHandle serializes writes to one pool and publishes a read-only
// snapshot after every commit so quotes never wait on a writer.
type poolHandle struct {
	mu         sync.Mutex
	state      *poolState
	cachedView atomic.Pointer[amm.Snapshot]
}

func newPoolHandle(state *poolState) *poolHandle {
	h := &poolHandle{state: state}
	h.updateCachedView()
	return h
}

// updateCachedView MUST be called with h.mu held or before h is shared.
func (h *poolHandle) updateCachedView() {
	h.cachedView.Store(h.state.snapshot())
}

// view returns the last committed snapshot. Callers must not modify it.
func (h *poolHandle) view() *amm.Snapshot {
	return h.cachedView.Load()
}

// Registry maps pool ids to their handles. Pools are independent: operations
// on different pools never share a lock.
type Registry struct {
	pools *xsync.Map[common.Hash, *poolHandle]
}

func NewRegistry() *Registry {
	return &Registry{pools: xsync.NewMap[common.Hash, *poolHandle]()}
}

func (r *Registry) add(h *poolHandle) error {
	id := h.state.pool.ID
	if _, loaded := r.pools.LoadOrStore(id, h); loaded {
		return fmt.Errorf("%w: %s", amm.ErrPoolExists, id.Hex())
	}
	return nil
}

func (r *Registry) replace(h *poolHandle) {
	r.pools.Store(h.state.pool.ID, h)
}

func (r *Registry) get(id common.Hash) (*poolHandle, error) {
	h, ok := r.pools.Load(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", amm.ErrPoolNotFound, id.Hex())
	}
	return h, nil
}

// IDs returns the registered pool ids in ascending order.
func (r *Registry) IDs() []common.Hash {
	ids := make([]common.Hash, 0, r.pools.Size())
	r.pools.Range(func(id common.Hash, _ *poolHandle) bool {
		ids = append(ids, id)
		return true
	})
	sort.Slice(ids, func(i, j int) bool { return ids[i].Cmp(ids[j]) < 0 })
	return ids
}
