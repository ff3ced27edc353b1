package main

// admitgen.go is a tiny helper utility to generate deterministic session-key
// admission sequences for exercising a keystore outside `go test` — replay
// load, chaos testing, or feeding a fuzz harness a reproducible corpus. It
// emits newline-separated "index hex-key" pairs, optionally interspersed
// with retransmits (repeat an earlier index with the same key) and gaps
// (skip ahead, simulating dropped signalling messages).
//
// Usage:
//
//	go run ./tools/admitgen -n 1000 -retransmit=0.1 -gap=0.05 -seed=42 -out admissions.txt
//
// Flags:
//
//	-n           number of admissions to generate (default 1000)
//	-retransmit  probability an emitted line repeats a prior (index, key) pair
//	-gap         probability the index jumps ahead by more than one
//	-maxgap      maximum index jump when a gap is chosen (default 3)
//	-seed        RNG seed (default current time)
//	-out         output file (default stdout)
//
// The program is deliberately simple but placed under version control so
// any contributor can regenerate the exact sequence used in a regression.
//
// © 2025 e2ee-keystore authors. MIT License.

import (
	"bufio"
	"encoding/hex"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"time"
)

func main() {
	var (
		n          = flag.Int("n", 1000, "number of admission lines to generate")
		retransmit = flag.Float64("retransmit", 0.1, "probability of repeating a prior (index, key) pair")
		gapProb    = flag.Float64("gap", 0.05, "probability the index jumps ahead by more than one")
		maxGap     = flag.Int("maxgap", 3, "maximum index jump when a gap is chosen")
		seedVal    = flag.Int64("seed", time.Now().UnixNano(), "PRNG seed")
		outPath    = flag.String("out", "", "output file (default stdout)")
	)
	flag.Parse()

	if *retransmit < 0 || *retransmit > 1 || *gapProb < 0 || *gapProb > 1 {
		fmt.Fprintln(os.Stderr, "retransmit and gap must be in [0,1]")
		os.Exit(1)
	}

	rnd := rand.New(rand.NewSource(*seedVal))

	var out *os.File
	var err error
	if *outPath == "" {
		out = os.Stdout
	} else {
		out, err = os.Create(*outPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "cannot create file:", err)
			os.Exit(1)
		}
		defer out.Close()
	}

	w := bufio.NewWriterSize(out, 1<<16)
	defer w.Flush()

	type admission struct {
		index uint32
		key   []byte
	}
	var history []admission

	var index uint32
	for i := 0; i < *n; i++ {
		if len(history) > 0 && rnd.Float64() < *retransmit {
			prior := history[rnd.Intn(len(history))]
			fmt.Fprintf(w, "%d %s\n", prior.index, hex.EncodeToString(prior.key))
			continue
		}

		if rnd.Float64() < *gapProb && *maxGap > 1 {
			index += uint32(2 + rnd.Intn(*maxGap-1))
		} else {
			index++
		}

		key := make([]byte, 32)
		rnd.Read(key)
		history = append(history, admission{index: index, key: key})

		fmt.Fprintf(w, "%d %s\n", index, hex.EncodeToString(key))
	}
}
