package mdposter_test

import (
	"context"
	"fmt"
	"time"

	mdposter "github.com/alnah/go-mdposter"
	"github.com/alnah/go-mdposter/internal/testutil"
)

// Example renders a poster twice: the first request drives the browser,
// the second is served from cache. The fake engine stands in for Chrome;
// production code passes mdposter.NewRodFactory instead.
func Example() {
	pool := mdposter.NewPool(testutil.NewFakeFactory(), mdposter.PoolConfig{Min: 0, Max: 2, AcquireTimeout: time.Second})
	defer func() { _ = pool.Drain(context.Background()) }()

	renderer, err := mdposter.NewRenderer(pool, testutil.NewMemoryCache(),
		mdposter.WithSurfaceURL("http://127.0.0.1:8080"),
	)
	if err != nil {
		fmt.Println("error:", err)
		return
	}

	req := mdposter.Request{Content: "# 你好\n\n==重点==", Footer: "mdposter", Theme: mdposter.DefaultTheme}
	for i := 0; i < 2; i++ {
		res, err := renderer.Generate(context.Background(), req)
		if err != nil {
			fmt.Println("error:", err)
			return
		}
		fmt.Println(res.Source, res.Hash == mdposter.Fingerprint(req))
	}
	// Output:
	// generated true
	// cache true
}

// ExampleFingerprint shows that the cache key is a fixed-length hex digest
// safe to use as a file or object name.
func ExampleFingerprint() {
	key := mdposter.Fingerprint(mdposter.Request{Content: "# Hi", Theme: mdposter.DefaultTheme})
	fmt.Println(len(key), mdposter.IsValidKey(key))
	// Output: 64 true
}

// ExampleNewSupervisor stops an HTTP server before draining the pool, so
// no request is cut off mid-render.
func ExampleNewSupervisor() {
	pool := mdposter.NewPool(testutil.NewFakeFactory(), mdposter.DefaultPoolConfig())

	sup := mdposter.NewSupervisor(pool,
		mdposter.WithBeforeDrain(func(context.Context) error {
			fmt.Println("http server stopped")
			return nil
		}),
		mdposter.WithShutdownTimeout(5*time.Second),
	)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sup.Run(ctx); err != nil {
		fmt.Println("error:", err)
		return
	}
	fmt.Println("open sessions:", pool.Stats().Live)
	// Output:
	// http server stopped
	// open sessions: 0
}
