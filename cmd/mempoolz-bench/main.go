// Command mempoolz-bench drives a handful of independent pools concurrently
// and reports simple throughput stats, as a smoke test and a usage example
// for the allocator package.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/Masterminds/semver/v3"
	"golang.org/x/sync/errgroup"

	"github.com/orizon-lang/mempoolz/internal/allocator"
)

func main() {
	var (
		pools       int
		iterations  int
		allocSize   uint
		requireABI  string
		watchConfig string
		threadSafe  bool
	)

	flag.IntVar(&pools, "pools", 4, "number of independent pools to run concurrently")
	flag.IntVar(&iterations, "iterations", 100000, "alloc/free iterations per pool")
	flag.UintVar(&allocSize, "size", 32, "allocation size in bytes")
	flag.StringVar(&requireABI, "require-abi", "", "fail unless the pool ABI satisfies this semver constraint, e.g. \">=1.0.0,<2.0.0\"")
	flag.StringVar(&watchConfig, "watch-config", "", "optional config file to watch for live workload changes")
	flag.BoolVar(&threadSafe, "thread-safe", false, "construct each pool with the thread-safe option enabled")
	flag.Parse()

	if requireABI != "" {
		if err := checkABI(requireABI); err != nil {
			fmt.Fprintln(os.Stderr, "mempoolz-bench:", err)
			os.Exit(1)
		}
	}

	cfg := newWorkloadConfig(iterations, uint32(allocSize))

	if watchConfig != "" {
		stop, err := watchWorkload(watchConfig, cfg)
		if err != nil {
			log.Fatalf("mempoolz-bench: watch-config: %v", err)
		}
		defer stop()
	}

	g, _ := errgroup.WithContext(context.Background())

	start := time.Now()

	for i := 0; i < pools; i++ {
		i := i

		g.Go(func() error {
			return runPool(i, cfg, threadSafe)
		})
	}

	if err := g.Wait(); err != nil {
		log.Fatalf("mempoolz-bench: %v", err)
	}

	elapsed := time.Since(start)
	fmt.Printf("%d pools x %d iterations in %s\n", pools, cfg.iterations.Load(), elapsed)
}

// workloadConfig is mutated in place by watchWorkload as the optional
// --watch-config file changes; runPool reads iterations once when it
// starts and allocSize on every iteration.
// Fields are atomic since the watcher goroutine and every pool goroutine
// touch them concurrently.
type workloadConfig struct {
	iterations atomic.Int64
	allocSize  atomic.Uint32
}

func newWorkloadConfig(iterations int, allocSize uint32) *workloadConfig {
	cfg := &workloadConfig{}
	cfg.iterations.Store(int64(iterations))
	cfg.allocSize.Store(allocSize)

	return cfg
}

func runPool(id int, cfg *workloadConfig, threadSafe bool) error {
	var opts []allocator.PoolOption
	if threadSafe {
		opts = append(opts, allocator.WithThreadSafe())
	}

	p := allocator.NewPool(opts...)
	defer p.Destroy()

	live := make([]unsafe.Pointer, 0, 16)

	n := int(cfg.iterations.Load())
	for i := 0; i < n; i++ {
		ptr := p.Alloc(cfg.allocSize.Load())
		if ptr == nil {
			return fmt.Errorf("pool %d: alloc failed at iteration %d", id, i)
		}

		live = append(live, ptr)

		if len(live) >= 16 {
			for _, l := range live {
				p.Free(l)
			}

			live = live[:0]
		}
	}

	for _, l := range live {
		p.Free(l)
	}

	return nil
}

func checkABI(constraint string) error {
	c, err := semver.NewConstraint(constraint)
	if err != nil {
		return fmt.Errorf("invalid --require-abi constraint: %w", err)
	}

	v, err := semver.NewVersion(allocator.ABIVersion)
	if err != nil {
		return fmt.Errorf("internal: pool ABI version %q is not valid semver: %w", allocator.ABIVersion, err)
	}

	if !c.Check(v) {
		return fmt.Errorf("pool ABI %s does not satisfy constraint %s", allocator.ABIVersion, constraint)
	}

	return nil
}
