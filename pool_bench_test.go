//go:build bench

package mdposter

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alnah/go-mdposter/internal/testutil"
)

// newBenchPool returns a warmed pool of size sessions over the fake engine.
func newBenchPool(b *testing.B, size int) *Pool {
	b.Helper()
	p := NewPool(testutil.NewFakeFactory(), PoolConfig{Min: size, Max: size, AcquireTimeout: time.Minute})
	if err := p.Warm(context.Background()); err != nil {
		b.Fatal(err)
	}
	b.Cleanup(func() { _ = p.Drain(context.Background()) })
	return p
}

// BenchmarkPoolAcquireRelease benchmarks the borrow/return cycle.
// Uses the fake engine to avoid browser overhead.
func BenchmarkPoolAcquireRelease(b *testing.B) {
	for _, size := range []int{1, 2, 4, 8} {
		b.Run(fmt.Sprintf("size_%d", size), func(b *testing.B) {
			p := newBenchPool(b, size)
			ctx := context.Background()

			b.ReportAllocs()
			b.ResetTimer()

			for i := 0; i < b.N; i++ {
				ps, err := p.Acquire(ctx)
				if err != nil {
					b.Fatal(err)
				}
				p.Release(ps)
			}
		})
	}
}

// BenchmarkPoolContention simulates more callers than sessions.
func BenchmarkPoolContention(b *testing.B) {
	const poolSize = 4

	for _, g := range []int{4, 8, 16, 32} {
		b.Run(fmt.Sprintf("goroutines_%d", g), func(b *testing.B) {
			p := newBenchPool(b, poolSize)
			ctx := context.Background()

			opsPerGoroutine := b.N / g
			if opsPerGoroutine < 1 {
				opsPerGoroutine = 1
			}

			b.ReportAllocs()
			b.ResetTimer()

			var wg sync.WaitGroup
			for i := 0; i < g; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					for j := 0; j < opsPerGoroutine; j++ {
						ps, err := p.Acquire(ctx)
						if err != nil {
							b.Error(err)
							return
						}
						runtime.Gosched()
						p.Release(ps)
					}
				}()
			}
			wg.Wait()
		})
	}
}

// BenchmarkFingerprint benchmarks cache key derivation by content size.
func BenchmarkFingerprint(b *testing.B) {
	for _, n := range []int{1 << 10, 64 << 10, 1 << 20} {
		req := Request{Content: strings.Repeat("# 标题\n", n/9), Header: "h", Footer: "f", Theme: DefaultTheme}
		b.Run(fmt.Sprintf("bytes_%d", n), func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(len(req.Content)))
			for i := 0; i < b.N; i++ {
				_ = Fingerprint(req)
			}
		})
	}
}
