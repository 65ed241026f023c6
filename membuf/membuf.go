// Package membuf provides the per-mover arena that backs in-flight operation
// state. Slots are carved from owner-tagged backing chunks, so any live slot
// can be mapped back to the mover that allocated it without storing a
// back-pointer in the slot itself. The arena grows by whole chunks and
// recycles freed slots through a free list.
package membuf

import (
	"context"
	"sync"

	cerrors "github.com/cockroachdb/errors"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/pkg/errors"
	"golang.org/x/exp/slog"

	"github.com/pmemkit/pmover/memutils"
)

// ExhaustedError is the error returned from Arena.Alloc when the arena's
// slot cap has been reached. Callers should treat it as a recoverable
// allocation failure.
var ExhaustedError error = errors.New("operation arena exhausted")

const defaultChunkSlots = 64

// Options contains optional settings when creating an Arena. The zero value
// is fully usable.
type Options struct {
	// ChunkSlots is the number of slots carved from each backing chunk. It
	// must be a power of two. Defaults to 64.
	ChunkSlots int
	// MaxSlots caps the number of concurrently outstanding slots. 0 means
	// the arena grows without bound.
	MaxSlots int
	// Logger receives the error report when the arena is destroyed with
	// slots still outstanding. Defaults to slog.Default().
	Logger *slog.Logger
}

// Arena hands out slots of T scoped to a single owner. All slot bookkeeping
// is serialized internally; a live slot itself is not synchronized and must
// be used by one goroutine at a time.
type Arena[T any] struct {
	owner  any
	logger *slog.Logger

	chunkSlots int
	maxSlots   int

	mu          sync.Mutex
	chunks      []*chunk[T]
	freeList    []*Slot[T]
	outstanding int
	peak        int
	destroyed   bool
}

var _ memutils.Validatable = (*Arena[struct{}])(nil)

// chunk is one backing allocation. Every slot carved from it shares the
// chunk's single reference back to the arena, which is how Slot.Owner
// recovers the owner without a per-slot field.
type chunk[T any] struct {
	arena *Arena[T]
	slots []Slot[T]
}

// Slot is one allocated unit of T. While live it is exclusively owned by the
// caller that allocated it.
type Slot[T any] struct {
	home  *chunk[T]
	index int
	value T
	live  bool
}

// Value returns the slot's payload. The pointer stays valid until the slot
// is freed.
func (s *Slot[T]) Value() *T { return &s.value }

// Owner returns the owner the slot's arena was created with. It works for
// any live slot regardless of how many arenas exist, because the owner is
// reached through the slot's backing chunk rather than global state.
func (s *Slot[T]) Owner() any { return s.home.arena.owner }

// New creates an arena whose slots report owner from Slot.Owner.
func New[T any](owner any, options Options) (*Arena[T], error) {
	chunkSlots := options.ChunkSlots
	if chunkSlots == 0 {
		chunkSlots = defaultChunkSlots
	}
	if chunkSlots < 0 {
		return nil, cerrors.Newf("ChunkSlots must be positive, not %d", chunkSlots)
	}
	if err := memutils.CheckPow2(chunkSlots, "ChunkSlots"); err != nil {
		return nil, err
	}
	if options.MaxSlots < 0 {
		return nil, cerrors.Newf("MaxSlots must not be negative, not %d", options.MaxSlots)
	}

	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Arena[T]{
		owner:      owner,
		logger:     logger,
		chunkSlots: chunkSlots,
		maxSlots:   options.MaxSlots,
	}, nil
}

// Alloc hands out a zeroed slot, growing the arena by one chunk if no freed
// slot is available. It returns ExhaustedError once MaxSlots slots are
// outstanding.
func (a *Arena[T]) Alloc() (*Slot[T], error) {
	slot, err := a.alloc()
	if err != nil {
		return nil, err
	}

	memutils.DebugValidate(a)
	return slot, nil
}

func (a *Arena[T]) alloc() (*Slot[T], error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.destroyed {
		panic("allocating from a destroyed arena")
	}

	if a.maxSlots > 0 && a.outstanding >= a.maxSlots {
		return nil, cerrors.Wrapf(ExhaustedError, "%d slots outstanding", a.outstanding)
	}

	if len(a.freeList) == 0 {
		a.grow()
	}

	slot := a.freeList[len(a.freeList)-1]
	a.freeList = a.freeList[:len(a.freeList)-1]
	slot.live = true

	a.outstanding++
	if a.outstanding > a.peak {
		a.peak = a.outstanding
	}

	return slot, nil
}

// grow appends one backing chunk and pushes its slots onto the free list.
// Caller must hold a.mu.
func (a *Arena[T]) grow() {
	count := a.chunkSlots
	if a.maxSlots > 0 && a.maxSlots-a.totalSlotsLocked() < count {
		count = a.maxSlots - a.totalSlotsLocked()
	}

	c := &chunk[T]{
		arena: a,
		slots: make([]Slot[T], count),
	}
	for i := range c.slots {
		c.slots[i].home = c
		c.slots[i].index = i
		a.freeList = append(a.freeList, &c.slots[i])
	}
	a.chunks = append(a.chunks, c)
}

func (a *Arena[T]) totalSlotsLocked() int {
	total := 0
	for _, c := range a.chunks {
		total += len(c.slots)
	}
	return total
}

// Free returns a slot to the arena for reuse. Freeing a slot twice, or a
// slot belonging to a different arena, is a contract violation.
func (a *Arena[T]) Free(slot *Slot[T]) {
	if slot.home.arena != a {
		panic("freeing a slot that belongs to a different arena")
	}

	a.free(slot)
	memutils.DebugValidate(a)
}

func (a *Arena[T]) free(slot *Slot[T]) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !slot.live {
		panic("double free of an arena slot")
	}

	var zero T
	slot.value = zero
	slot.live = false
	a.freeList = append(a.freeList, slot)
	a.outstanding--
}

// Outstanding returns the number of slots currently handed out.
func (a *Arena[T]) Outstanding() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.outstanding
}

// AddStatistics sums this arena's occupancy into stats.
func (a *Arena[T]) AddStatistics(stats *memutils.Statistics) {
	a.mu.Lock()
	defer a.mu.Unlock()

	stats.ChunkCount += len(a.chunks)
	stats.SlotCount += a.totalSlotsLocked()
	stats.OutstandingCount += a.outstanding
	if a.peak > stats.OutstandingPeak {
		stats.OutstandingPeak = a.peak
	}
}

// Validate performs internal consistency checks on the arena's bookkeeping.
func (a *Arena[T]) Validate() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	live := 0
	for _, c := range a.chunks {
		if c.arena != a {
			return cerrors.New("chunk does not reference its arena")
		}
		for i := range c.slots {
			if c.slots[i].live {
				live++
			}
		}
	}

	if live != a.outstanding {
		return cerrors.Newf("%d slots are marked live but %d are recorded outstanding", live, a.outstanding)
	}
	if live+len(a.freeList) != a.totalSlotsLocked() {
		return cerrors.Newf("%d live + %d free slots do not account for %d total", live, len(a.freeList), a.totalSlotsLocked())
	}
	return nil
}

// ArenaJsonData populates a json object with this arena's occupancy.
func (a *Arena[T]) ArenaJsonData(json jwriter.ObjectState) {
	a.mu.Lock()
	defer a.mu.Unlock()

	json.Name("Chunks").Int(len(a.chunks))
	json.Name("Slots").Int(a.totalSlotsLocked())
	json.Name("Outstanding").Int(a.outstanding)
	json.Name("OutstandingPeak").Int(a.peak)
}

// Destroy releases the arena's backing memory. Destroying an arena with
// slots still outstanding is a contract violation: each leaked slot is
// logged at error level and Destroy panics.
func (a *Arena[T]) Destroy() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.destroyed {
		panic("arena destroyed twice")
	}

	if a.outstanding > 0 {
		for chunkIndex, c := range a.chunks {
			for i := range c.slots {
				if !c.slots[i].live {
					continue
				}
				a.logger.LogAttrs(context.Background(), slog.LevelError,
					"[UNRELEASED OPERATIONS] slot still outstanding at arena destruction",
					slog.Int("chunk", chunkIndex),
					slog.Int("slot", c.slots[i].index))
			}
		}
		panic("arena destroyed with slots still outstanding")
	}

	a.chunks = nil
	a.freeList = nil
	a.destroyed = true
}
