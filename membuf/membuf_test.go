package membuf_test

import (
	"encoding/json"
	"math/rand"
	"sync"
	"testing"

	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/stretchr/testify/require"

	"github.com/pmemkit/pmover/membuf"
	"github.com/pmemkit/pmover/memutils"
)

type testState struct {
	payload [24]byte
	counter int
}

func TestArenaAccounting(t *testing.T) {
	arena, err := membuf.New[testState]("owner", membuf.Options{ChunkSlots: 4})
	require.NoError(t, err)

	var slots []*membuf.Slot[testState]
	for i := 0; i < 10; i++ {
		slot, err := arena.Alloc()
		require.NoError(t, err)
		slots = append(slots, slot)
	}
	require.Equal(t, 10, arena.Outstanding())
	require.NoError(t, arena.Validate())

	var stats memutils.Statistics
	stats.Clear()
	arena.AddStatistics(&stats)
	require.Equal(t, 3, stats.ChunkCount)
	require.Equal(t, 12, stats.SlotCount)
	require.Equal(t, 10, stats.OutstandingCount)
	require.Equal(t, 10, stats.OutstandingPeak)

	for _, slot := range slots {
		arena.Free(slot)
	}
	require.Zero(t, arena.Outstanding())
	require.NoError(t, arena.Validate())

	// Peak survives the frees.
	stats.Clear()
	arena.AddStatistics(&stats)
	require.Equal(t, 10, stats.OutstandingPeak)

	arena.Destroy()
}

func TestArenaExhaustion(t *testing.T) {
	arena, err := membuf.New[testState]("owner", membuf.Options{MaxSlots: 1})
	require.NoError(t, err)

	first, err := arena.Alloc()
	require.NoError(t, err)

	_, err = arena.Alloc()
	require.ErrorIs(t, err, membuf.ExhaustedError)

	// Exhaustion is recoverable: freeing makes the slot available again.
	arena.Free(first)
	second, err := arena.Alloc()
	require.NoError(t, err)

	arena.Free(second)
	arena.Destroy()
}

func TestSlotOwnerRecovery(t *testing.T) {
	type ownerA struct{ name string }
	type ownerB struct{ name string }

	a := &ownerA{name: "a"}
	b := &ownerB{name: "b"}

	arenaA, err := membuf.New[testState](a, membuf.Options{})
	require.NoError(t, err)
	arenaB, err := membuf.New[testState](b, membuf.Options{})
	require.NoError(t, err)

	for i := 0; i < 100; i++ {
		slotA, err := arenaA.Alloc()
		require.NoError(t, err)
		slotB, err := arenaB.Alloc()
		require.NoError(t, err)

		require.Same(t, a, slotA.Owner())
		require.Same(t, b, slotB.Owner())
	}
}

func TestSlotZeroedOnReuse(t *testing.T) {
	arena, err := membuf.New[testState]("owner", membuf.Options{MaxSlots: 1})
	require.NoError(t, err)

	slot, err := arena.Alloc()
	require.NoError(t, err)
	slot.Value().counter = 42
	slot.Value().payload[0] = 0xff
	arena.Free(slot)

	reused, err := arena.Alloc()
	require.NoError(t, err)
	require.Zero(t, reused.Value().counter)
	require.Zero(t, reused.Value().payload[0])

	arena.Free(reused)
	arena.Destroy()
}

func TestArenaDoubleFree(t *testing.T) {
	arena, err := membuf.New[testState]("owner", membuf.Options{})
	require.NoError(t, err)

	slot, err := arena.Alloc()
	require.NoError(t, err)
	arena.Free(slot)

	require.Panics(t, func() {
		arena.Free(slot)
	})
}

func TestArenaForeignFree(t *testing.T) {
	arenaA, err := membuf.New[testState]("a", membuf.Options{})
	require.NoError(t, err)
	arenaB, err := membuf.New[testState]("b", membuf.Options{})
	require.NoError(t, err)

	slot, err := arenaA.Alloc()
	require.NoError(t, err)

	require.Panics(t, func() {
		arenaB.Free(slot)
	})
}

func TestArenaDestroyWithOutstanding(t *testing.T) {
	arena, err := membuf.New[testState]("owner", membuf.Options{})
	require.NoError(t, err)

	_, err = arena.Alloc()
	require.NoError(t, err)

	require.Panics(t, func() {
		arena.Destroy()
	})
}

func TestArenaDestroyTwice(t *testing.T) {
	arena, err := membuf.New[testState]("owner", membuf.Options{})
	require.NoError(t, err)

	arena.Destroy()
	require.Panics(t, func() {
		arena.Destroy()
	})
}

func TestArenaOptionsValidation(t *testing.T) {
	_, err := membuf.New[testState]("owner", membuf.Options{ChunkSlots: 100})
	require.ErrorIs(t, err, memutils.PowerOfTwoError)

	_, err = membuf.New[testState]("owner", membuf.Options{MaxSlots: -1})
	require.Error(t, err)
}

func TestArenaJsonData(t *testing.T) {
	arena, err := membuf.New[testState]("owner", membuf.Options{})
	require.NoError(t, err)

	slot, err := arena.Alloc()
	require.NoError(t, err)

	writer := jwriter.NewWriter()
	obj := writer.Object()
	arena.ArenaJsonData(obj)
	obj.End()

	require.NoError(t, writer.Error())
	require.True(t, json.Valid(writer.Bytes()))

	var decoded map[string]int
	require.NoError(t, json.Unmarshal(writer.Bytes(), &decoded))
	require.Equal(t, 1, decoded["Outstanding"])
	require.Equal(t, 64, decoded["Slots"])

	arena.Free(slot)
	arena.Destroy()
}

func TestArenaConcurrentAllocFree(t *testing.T) {
	arena, err := membuf.New[testState]("owner", membuf.Options{ChunkSlots: 16})
	require.NoError(t, err)

	const workers = 8
	const iterations = 500

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))
			var held []*membuf.Slot[testState]

			for i := 0; i < iterations; i++ {
				if len(held) > 0 && rng.Intn(2) == 0 {
					last := len(held) - 1
					arena.Free(held[last])
					held = held[:last]
					continue
				}

				slot, allocErr := arena.Alloc()
				if allocErr != nil {
					continue
				}
				slot.Value().counter = i
				held = append(held, slot)
			}

			for _, slot := range held {
				arena.Free(slot)
			}
		}(int64(w))
	}
	wg.Wait()

	require.Zero(t, arena.Outstanding())
	require.NoError(t, arena.Validate())
	arena.Destroy()
}
