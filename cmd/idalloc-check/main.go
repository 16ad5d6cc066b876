package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"reflect"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/mit-pdos/idalloc/alloc"
	"github.com/mit-pdos/idalloc/internal/logging"
	"github.com/mit-pdos/idalloc/trace"
)

var logger = logging.New("check")

func printFormatArgs(args []interface{}) {
	if len(args) > 0 {
		fmtString := args[0].(string)
		fmt.Fprintf(os.Stderr, fmtString+"\n", args[1:]...)
	}
}

func assertEqual(actual interface{}, expected interface{}, msgAndArgs ...interface{}) {
	if !reflect.DeepEqual(actual, expected) {
		fmt.Fprintf(os.Stderr, "%v != %v\n", actual, expected)
		printFormatArgs(msgAndArgs)
		os.Exit(1)
	}
}

func assertNoError(err error, msgAndArgs ...interface{}) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		printFormatArgs(msgAndArgs)
		os.Exit(1)
	}
}

func assertIsError(err error, target error, msgAndArgs ...interface{}) {
	if !errors.Is(err, target) {
		fmt.Fprintf(os.Stderr, "expected %v, got %v\n", target, err)
		printFormatArgs(msgAndArgs)
		os.Exit(1)
	}
}

func checkScenario(order alloc.Order) {
	a := alloc.NewWithConfig(alloc.Config[uint32]{Order: order})
	next := func() uint32 {
		id, err := a.Alloc()
		assertNoError(err, "alloc")
		return id
	}
	assertEqual(next(), uint32(0))
	assertEqual(next(), uint32(1))
	assertEqual(next(), uint32(2))
	a.Free(1)
	assertEqual(next(), uint32(1), "reuse single freed id")
	a.Free(0)
	a.Free(2)
	if order == alloc.Stack {
		assertEqual(next(), uint32(2), "stack reuses last freed id")
		assertEqual(next(), uint32(0))
	} else {
		assertEqual(next(), uint32(0), "queue reuses first freed id")
		assertEqual(next(), uint32(2))
	}
	assertEqual(next(), uint32(3), "frontier after pool drained")
}

func checkOverflow() {
	a := alloc.NewWithConfig(alloc.Config[uint8]{Max: 1})
	for want := uint8(0); want <= 1; want++ {
		id, err := a.Alloc()
		assertNoError(err)
		assertEqual(id, want)
	}
	_, err := a.Alloc()
	assertIsError(err, alloc.ErrOverflow, "single-bit domain")
}

func checkRandom(seed int64, n int) {
	rng := rand.New(rand.NewSource(seed))
	t := trace.Generate(rng, n, 0.45)
	err := trace.Replay(t, alloc.NewChecked(alloc.Config[uint64]{}))
	assertNoError(err, "replay seed %d", seed)
	s := t.Summary()
	logger.Info("replayed random trace",
		zap.Int64("seed", seed), zap.Int("ops", len(t)),
		zap.Int("max-live", s.MaxLive), zap.Uint64("max-id", s.MaxID))
}

func main() {
	seed := flag.Int64("seed", 1, "seed for the random trace")
	n := flag.Int("n", 100_000, "operations in the random trace")
	flag.Parse()

	checkScenario(alloc.Stack)
	checkScenario(alloc.Queue)
	checkOverflow()
	checkRandom(*seed, *n)
	fmt.Println("ok")
}
