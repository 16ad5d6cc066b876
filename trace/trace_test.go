package trace

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mit-pdos/idalloc/alloc"
)

func scenario() Trace {
	return Trace{
		{KindAlloc, 0}, {KindAlloc, 1}, {KindAlloc, 2},
		{KindFree, 1},
		{KindAlloc, 1},
		{KindFree, 0}, {KindFree, 2},
		{KindAlloc, 2}, {KindAlloc, 0}, {KindAlloc, 3},
	}
}

func TestReplayScenario(t *testing.T) {
	c := alloc.NewChecked(alloc.Config[uint32]{})
	assert.NoError(t, Replay(scenario(), c))
	assert.Equal(t, uint64(4), c.InUse())
}

func TestReplayQueueDiverges(t *testing.T) {
	c := alloc.NewChecked(alloc.Config[uint32]{Order: alloc.Queue})
	err := Replay(scenario(), c)
	assert.ErrorIs(t, err, ErrDiverged)
}

func TestReplayDoubleFree(t *testing.T) {
	tr := Trace{{KindAlloc, 0}, {KindFree, 0}, {KindFree, 0}}
	err := Replay(tr, alloc.NewChecked(alloc.Config[uint64]{}))
	assert.ErrorIs(t, err, alloc.ErrNotAllocated)
}

func TestReplayNarrowWidth(t *testing.T) {
	tr := Trace{{KindFree, 300}}
	err := Replay(tr, alloc.NewChecked(alloc.Config[uint8]{}))
	assert.Error(t, err)
}

func TestReplayOverflow(t *testing.T) {
	tr := Trace{{KindAlloc, 0}, {KindAlloc, 1}, {KindAlloc, 2}}
	err := Replay(tr, alloc.NewChecked(alloc.Config[uint8]{Max: 1}))
	assert.ErrorIs(t, err, alloc.ErrOverflow)
}

func TestGenerateReplays(t *testing.T) {
	require := require.New(t)
	rng := rand.New(rand.NewSource(42))
	tr := Generate(rng, 5000, 0.4)
	require.Len(tr, 5000)

	s := tr.Summary()
	require.Equal(5000, s.Allocs+s.Frees)
	// dense: never more ids than the peak number alive
	require.Less(s.MaxID, uint64(s.MaxLive))

	require.NoError(Replay(tr, alloc.NewChecked(alloc.Config[uint16]{})))
}

func TestRecordStopsAtOverflow(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	tr := Record(alloc.NewWithConfig(alloc.Config[uint8]{Max: 3}), 100, 0, rng)
	assert.Len(t, tr, 4)
}

func TestEncodeDecode(t *testing.T) {
	assert := assert.New(t)
	tr := scenario()
	b := Encode(tr)
	assert.Len(b, 8+len(tr)*opSize)

	tr2, err := Decode(b)
	assert.NoError(err)
	assert.Equal(tr, tr2)

	empty, err := Decode(Encode(nil))
	assert.NoError(err)
	assert.Len(empty, 0)
}

func TestDecodeInvalid(t *testing.T) {
	assert := assert.New(t)
	b := Encode(scenario())

	_, err := Decode(b[:5])
	assert.Error(err, "short header")
	_, err = Decode(b[:len(b)-1])
	assert.Error(err, "truncated op")

	bad := append([]byte{}, b...)
	bad[8] = 7 // first op's kind
	_, err = Decode(bad)
	assert.Error(err)
}

func TestValidate(t *testing.T) {
	assert := assert.New(t)
	assert.NoError(Validate(scenario()))
	assert.NoError(Validate(nil))

	rng := rand.New(rand.NewSource(7))
	assert.NoError(Validate(Generate(rng, 3000, 0.5)))

	for name, tr := range map[string]Trace{
		"double free":     {{KindAlloc, 0}, {KindAlloc, 1}, {KindFree, 1}, {KindFree, 1}, {KindAlloc, 1}, {KindAlloc, 2}},
		"never allocated": {{KindAlloc, 0}, {KindFree, 1}},
		"double alloc":    {{KindAlloc, 0}, {KindAlloc, 0}},
		"huge id":         {{KindAlloc, 1 << 62}},
		"id past length":  {{KindAlloc, 0}, {KindAlloc, 2}},
		"bad kind":        {{Kind(9), 0}},
	} {
		assert.ErrorIs(Validate(tr), ErrInvalid, name)
	}
}
