// Package mdposter renders Markdown posters to PNG using a pool of headless
// Chrome sessions, with a content-addressable cache in front.
//
// # Quick Start
//
// Build a pool, a cache and a renderer, then generate:
//
//	pool := mdposter.NewPool(mdposter.NewRodFactory(mdposter.BrowserConfig{}), mdposter.DefaultPoolConfig())
//	defer pool.Drain(context.Background())
//
//	store, err := cache.NewFileStore("public/uploads/posters")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	r, err := mdposter.NewRenderer(pool, store,
//	    mdposter.WithSurfaceURL("http://127.0.0.1:8080"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	res, err := r.Generate(ctx, mdposter.Request{Content: "# Hello"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	os.WriteFile(res.Hash+".png", res.Image, 0o644)
//
// # Render Pipeline
//
// A request is fingerprinted (SHA-256 of its canonical JSON form after
// defaults), looked up in the cache, and on a miss rendered by:
//
//  1. Acquiring a session from the pool
//  2. Opening and configuring a page (viewport, language, fonts)
//  3. Navigating to the poster surface with the request in the query string
//  4. Waiting for network idle, web fonts and the readiness marker
//  5. Locating the poster element and capturing its box as PNG
//  6. Persisting the image under its fingerprint
//
// Failures are returned as *StageError and match the sentinel errors in this
// package with errors.Is. The page is always closed and the session always
// released, whatever the outcome.
//
// # Session Pool
//
// Pool keeps between Min and Max browser sessions. Sessions are checked
// before each lend and retired after MaxUses lends. Acquire waits in FIFO
// order and gives up after AcquireTimeout without disturbing the pool.
//
// # Shutdown
//
// Supervisor stops the HTTP server through a before-drain hook, then drains
// the pool:
//
//	sup := mdposter.NewSupervisor(pool, mdposter.WithBeforeDrain(srv.Shutdown))
//	err := sup.Run(ctx) // returns after ctx is cancelled and shutdown completes
package mdposter
