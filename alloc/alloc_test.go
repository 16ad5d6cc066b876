package alloc

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScenario(t *testing.T) {
	assert := assert.New(t)
	a := New[uint32]()

	assert.Equal(uint32(0), a.MustAlloc())
	assert.Equal(uint32(1), a.MustAlloc())
	assert.Equal(uint32(2), a.MustAlloc())
	a.Free(1)
	assert.Equal(uint32(1), a.MustAlloc())
	a.Free(0)
	a.Free(2)
	assert.Equal(uint32(2), a.MustAlloc())
	assert.Equal(uint32(0), a.MustAlloc())
	assert.Equal(uint32(3), a.MustAlloc())
}

// same sequence of calls as the original slab allocator's example
func TestScenarioSlab(t *testing.T) {
	assert := assert.New(t)
	a := New[uint32]()
	assert.Equal(uint32(0), a.MustAlloc())
	assert.Equal(uint32(1), a.MustAlloc())
	a.Free(0)
	assert.Equal(uint32(0), a.MustAlloc())
	assert.Equal(uint32(2), a.MustAlloc())
	a.Free(0)
	a.Free(1)
	assert.Equal(uint32(1), a.MustAlloc())
	assert.Equal(uint32(0), a.MustAlloc())
	assert.Equal(uint32(3), a.MustAlloc())
}

func TestSequential(t *testing.T) {
	assert := assert.New(t)
	a := New[uint64]()
	for i := uint64(0); i < 1000; i++ {
		id, err := a.Alloc()
		assert.NoError(err)
		assert.Equal(i, id)
	}
	assert.Equal(uint64(1000), a.Frontier())
	assert.Equal(uint64(1000), a.InUse())
}

func TestRoundTrip(t *testing.T) {
	assert := assert.New(t)
	a := New[uint16]()
	a.MustAlloc()
	a.MustAlloc()
	for i := 0; i < 100; i++ {
		id := a.MustAlloc()
		assert.Equal(uint16(2), id)
		a.Free(id)
	}
	assert.Equal(uint16(3), a.Frontier())
}

func TestStackOrder(t *testing.T) {
	assert := assert.New(t)
	a := New[uint8]()
	for i := 0; i < 5; i++ {
		a.MustAlloc()
	}
	a.Free(3)
	a.Free(1)
	assert.Equal(uint8(1), a.MustAlloc())
	assert.Equal(uint8(3), a.MustAlloc())
	assert.Equal(uint8(5), a.MustAlloc())
}

func TestQueueOrder(t *testing.T) {
	assert := assert.New(t)
	a := NewWithConfig(Config[uint8]{Order: Queue})
	for i := 0; i < 5; i++ {
		a.MustAlloc()
	}
	a.Free(3)
	a.Free(1)
	a.Free(4)
	assert.Equal(uint8(3), a.MustAlloc())
	a.Free(0)
	assert.Equal(uint8(1), a.MustAlloc())
	assert.Equal(uint8(4), a.MustAlloc())
	assert.Equal(uint8(0), a.MustAlloc())
	assert.Equal(uint8(5), a.MustAlloc())
}

func TestQueueCompaction(t *testing.T) {
	assert := assert.New(t)
	a := NewWithConfig(Config[uint32]{Order: Queue})
	for i := 0; i < 1000; i++ {
		a.MustAlloc()
	}
	for i := uint32(0); i < 1000; i++ {
		a.Free(i)
	}
	// interleave so the pool never drains
	for i := 0; i < 3000; i++ {
		id := a.MustAlloc()
		assert.Equal(uint32(i%1000), id)
		a.Free(id)
	}
	assert.Equal(1000, a.NumFree())
	assert.LessOrEqual(len(a.free), 2*1000+64, "consumed prefix was not reclaimed")
	for i := uint32(0); i < 1000; i++ {
		assert.Equal(i, a.MustAlloc())
	}
	assert.Equal(uint32(1000), a.MustAlloc())
}

func TestOverflowSingleBit(t *testing.T) {
	assert := assert.New(t)
	a := NewWithConfig(Config[uint8]{Max: 1})

	assert.Equal(uint8(0), a.MustAlloc())
	assert.Equal(uint8(1), a.MustAlloc())
	assert.True(a.Exhausted())

	_, err := a.Alloc()
	assert.ErrorIs(err, ErrOverflow)
	// still exhausted; no wraparound on retry
	_, err = a.Alloc()
	assert.ErrorIs(err, ErrOverflow)

	a.Free(0)
	assert.Equal(uint8(0), a.MustAlloc())
	_, err = a.Alloc()
	assert.True(errors.Is(err, ErrOverflow))
}

func TestOverflowFullWidth(t *testing.T) {
	assert := assert.New(t)
	a := New[uint8]()
	for i := 0; i < 256; i++ {
		id, err := a.Alloc()
		assert.NoError(err)
		assert.Equal(uint8(i), id)
	}
	assert.Equal(uint64(256), a.InUse())
	_, err := a.Alloc()
	assert.ErrorIs(err, ErrOverflow)
	assert.Panics(func() { a.MustAlloc() })
}

func TestSetMinimum(t *testing.T) {
	assert := assert.New(t)
	a := New[uint32]()
	for i := 0; i < 4; i++ {
		a.MustAlloc()
	}
	a.Free(0)
	a.Free(3)
	a.Free(1)
	a.SetMinimum(2)
	assert.Equal(1, a.NumFree())
	assert.Equal(uint64(1), a.InUse(), "only id 2 is outstanding")
	assert.Equal(uint64(2), a.Reserved())
	assert.Equal(uint32(3), a.MustAlloc())
	assert.Equal(uint32(4), a.MustAlloc())

	a.SetMinimum(10)
	assert.Equal(uint32(10), a.MustAlloc())

	// lowering the minimum does not move the frontier back
	a.SetMinimum(0)
	assert.Equal(uint32(11), a.MustAlloc())
}

func TestSetMinimumPastMax(t *testing.T) {
	assert := assert.New(t)
	a := NewWithConfig(Config[uint16]{Max: 7})
	a.MustAlloc()
	a.SetMinimum(8)
	_, err := a.Alloc()
	assert.ErrorIs(err, ErrOverflow)
	assert.Equal(uint64(1), a.InUse())
	assert.Equal(uint64(7), a.Reserved())
}

func TestReservedNotInUse(t *testing.T) {
	assert := assert.New(t)
	a := New[uint32]()
	a.SetMinimum(100)
	assert.Equal(uint64(0), a.InUse())
	assert.Equal(uint32(100), a.MustAlloc())
	assert.Equal(uint64(1), a.InUse())
}

func TestZeroValue(t *testing.T) {
	assert := assert.New(t)
	var a Allocator[uint32]
	assert.Equal(^uint32(0), a.Max())
	assert.Equal(Stack, a.Order())
	for i := uint32(0); i < 3; i++ {
		id, err := a.Alloc()
		assert.NoError(err)
		assert.Equal(i, id)
	}
	a.Free(0)
	a.Free(2)
	assert.Equal(uint32(2), a.MustAlloc())
	assert.Equal(uint32(0), a.MustAlloc())
	assert.Equal(uint32(3), a.MustAlloc())
}

func TestParseOrder(t *testing.T) {
	assert := assert.New(t)
	for _, o := range []Order{Stack, Queue} {
		o2, err := ParseOrder(o.String())
		assert.NoError(err)
		assert.Equal(o, o2)
	}
	_, err := ParseOrder("random")
	assert.Error(err)
}

// randomly allocate and free, checking that no outstanding id is ever
// returned and that fresh ids strictly increase
func TestRandomUnique(t *testing.T) {
	for _, order := range []Order{Stack, Queue} {
		t.Run(order.String(), func(t *testing.T) {
			require := require.New(t)
			rng := rand.New(rand.NewSource(1))
			a := NewWithConfig(Config[uint32]{Order: order})
			used := make(map[uint32]bool)
			var live []uint32
			var lastFresh int64 = -1

			for i := 0; i < 10000; i++ {
				if len(live) > 0 && rng.Intn(3) == 0 {
					j := rng.Intn(len(live))
					id := live[j]
					live[j] = live[len(live)-1]
					live = live[:len(live)-1]
					delete(used, id)
					a.Free(id)
					continue
				}
				fresh := a.NumFree() == 0
				id := a.MustAlloc()
				require.False(used[id], "id %d allocated twice", id)
				if fresh {
					require.Greater(int64(id), lastFresh)
					lastFresh = int64(id)
				}
				used[id] = true
				live = append(live, id)
			}
			require.Equal(uint64(len(live)), a.InUse())
			// no id below the frontier is lost
			require.Equal(int(a.Frontier()), len(live)+a.NumFree())
		})
	}
}

type handle uint16

func TestNamedType(t *testing.T) {
	a := New[handle]()
	assert.Equal(t, handle(0), a.MustAlloc())
	assert.Equal(t, handle(1), a.MustAlloc())
}
