// Package trace records sequences of allocator operations, encodes them in a
// compact binary form, and replays them against an allocator to check that
// it hands out the same ids without ever duplicating an outstanding one.
package trace

import (
	"math/rand"

	"github.com/pkg/errors"
	"github.com/tchajed/marshal"
	"golang.org/x/exp/constraints"

	"github.com/mit-pdos/idalloc/alloc"
	"github.com/mit-pdos/idalloc/internal/logging"
)

var logger = logging.New("trace")

type Kind uint32

const (
	KindAlloc Kind = 1
	KindFree  Kind = 2
)

func (k Kind) String() string {
	switch k {
	case KindAlloc:
		return "alloc"
	case KindFree:
		return "free"
	}
	return "invalid"
}

// Op is one allocator call. For KindAlloc, ID is the id that was returned.
type Op struct {
	Kind Kind
	ID   uint64
}

type Trace []Op

// ErrInvalid is returned by Validate for a trace that could not have come
// from a correctly used allocator.
var ErrInvalid = errors.New("invalid trace")

// ErrDiverged is returned by Replay when the allocator returns a different
// id than the trace recorded.
var ErrDiverged = errors.New("replay diverged from trace")

// Record runs n random operations against a, freeing a random outstanding id
// with probability freeRatio and allocating otherwise.
//
// Recording stops early, without error, if a runs out of ids.
func Record[I constraints.Unsigned](a *alloc.Allocator[I], n int,
	freeRatio float64, rng *rand.Rand) Trace {
	var t Trace
	var live []I
	for i := 0; i < n; i++ {
		if len(live) > 0 && rng.Float64() < freeRatio {
			j := rng.Intn(len(live))
			id := live[j]
			live[j] = live[len(live)-1]
			live = live[:len(live)-1]
			a.Free(id)
			t = append(t, Op{Kind: KindFree, ID: uint64(id)})
			continue
		}
		id, err := a.Alloc()
		if err != nil {
			logger.Debug("recording stopped at overflow")
			break
		}
		live = append(live, id)
		t = append(t, Op{Kind: KindAlloc, ID: uint64(id)})
	}
	return t
}

// Generate records a trace of n operations from a fresh 64-bit stack-order
// allocator.
func Generate(rng *rand.Rand, n int, freeRatio float64) Trace {
	return Record(alloc.New[uint64](), n, freeRatio, rng)
}

// Replay performs t on c, failing on the first op that does not reproduce.
func Replay[I constraints.Unsigned](t Trace, c *alloc.Checked[I]) error {
	for i, op := range t {
		id := I(op.ID)
		if uint64(id) != op.ID {
			return errors.Errorf("op %d: id %d does not fit", i, op.ID)
		}
		switch op.Kind {
		case KindAlloc:
			got, err := c.Alloc()
			if err != nil {
				return errors.Wrapf(err, "op %d", i)
			}
			if got != id {
				return errors.Wrapf(ErrDiverged, "op %d: allocated %d, trace has %d",
					i, got, op.ID)
			}
		case KindFree:
			if err := c.Free(id); err != nil {
				return errors.Wrapf(err, "op %d", i)
			}
		default:
			return errors.Errorf("op %d: invalid kind %d", i, op.Kind)
		}
	}
	return nil
}

// Validate checks that t only frees ids it has allocated and not yet freed,
// never allocates an id that is still outstanding, and only uses ids below
// len(t). Traces recorded from an Allocator always pass, since an allocator
// issues fewer distinct ids than it performs allocations.
func Validate(t Trace) error {
	outstanding := make(map[uint64]bool)
	for i, op := range t {
		if op.ID >= uint64(len(t)) {
			return errors.Wrapf(ErrInvalid, "op %d: id %d out of range for %d ops",
				i, op.ID, len(t))
		}
		switch op.Kind {
		case KindAlloc:
			if outstanding[op.ID] {
				return errors.Wrapf(ErrInvalid, "op %d: alloc of outstanding id %d", i, op.ID)
			}
			outstanding[op.ID] = true
		case KindFree:
			if !outstanding[op.ID] {
				return errors.Wrapf(ErrInvalid, "op %d: free of id %d, which is not allocated",
					i, op.ID)
			}
			delete(outstanding, op.ID)
		default:
			return errors.Wrapf(ErrInvalid, "op %d: invalid kind %d", i, op.Kind)
		}
	}
	return nil
}

type Summary struct {
	Allocs  int
	Frees   int
	MaxLive int
	// MaxID is the largest id allocated
	MaxID uint64
}

func (t Trace) Summary() Summary {
	var s Summary
	live := 0
	for _, op := range t {
		switch op.Kind {
		case KindAlloc:
			s.Allocs++
			live++
			if live > s.MaxLive {
				s.MaxLive = live
			}
			if op.ID > s.MaxID {
				s.MaxID = op.ID
			}
		case KindFree:
			s.Frees++
			live--
		}
	}
	return s
}

const opSize = 4 + 8

// Encode serializes t as a count followed by (kind, id) pairs.
func Encode(t Trace) []byte {
	enc := marshal.NewEnc(8 + uint64(len(t))*opSize)
	enc.PutInt(uint64(len(t)))
	for _, op := range t {
		enc.PutInt32(uint32(op.Kind))
		enc.PutInt(op.ID)
	}
	return enc.Finish()
}

func Decode(b []byte) (Trace, error) {
	if len(b) < 8 {
		return nil, errors.Errorf("trace too short (%d bytes)", len(b))
	}
	dec := marshal.NewDec(b)
	n := dec.GetInt()
	if n > uint64(len(b)-8)/opSize || uint64(len(b)-8) != n*opSize {
		return nil, errors.Errorf("trace of %d ops has %d bytes", n, len(b))
	}
	t := make(Trace, n)
	for i := range t {
		t[i].Kind = Kind(dec.GetInt32())
		t[i].ID = dec.GetInt()
		if t[i].Kind != KindAlloc && t[i].Kind != KindFree {
			return nil, errors.Errorf("op %d: invalid kind %d", i, t[i].Kind)
		}
	}
	return t, nil
}
