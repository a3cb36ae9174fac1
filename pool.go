package mdposter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/alnah/go-mdposter/engine"
)

// Pool sizing defaults, sane for a single small deployment.
const (
	DefaultPoolMin        = 2
	DefaultPoolMax        = 4
	DefaultAcquireTimeout = 30 * time.Second
	DefaultMaxUses        = 50

	// healthCheckTimeout bounds a single session health check.
	healthCheckTimeout = 2 * time.Second

	// createTimeout bounds background session creation.
	createTimeout = time.Minute
)

// PoolConfig bounds the pool and its sessions.
type PoolConfig struct {
	Min            int           // sessions kept alive as a floor
	Max            int           // hard cap on live sessions
	AcquireTimeout time.Duration // wall-clock limit for Acquire
	MaxUses        int           // lends per session before retirement
}

// DefaultPoolConfig returns the default pool bounds.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		Min:            DefaultPoolMin,
		Max:            DefaultPoolMax,
		AcquireTimeout: DefaultAcquireTimeout,
		MaxUses:        DefaultMaxUses,
	}
}

// normalize clamps values into a usable range.
func (c PoolConfig) normalize() PoolConfig {
	if c.Max < 1 {
		c.Max = 1
	}
	if c.Min < 0 {
		c.Min = 0
	}
	if c.Min > c.Max {
		c.Min = c.Max
	}
	if c.AcquireTimeout <= 0 {
		c.AcquireTimeout = DefaultAcquireTimeout
	}
	if c.MaxUses < 1 {
		c.MaxUses = DefaultMaxUses
	}
	return c
}

type sessionState int

const (
	stateIdle      sessionState = iota // in the idle list
	stateChecking                      // popped or handed off, awaiting validation
	stateLent                          // owned by a caller
	stateReturning                     // inside Release
	stateDestroyed
)

// PooledSession is a browser session owned by a Pool.
// While lent, it belongs exclusively to the caller that acquired it.
type PooledSession struct {
	id       uint64
	session  engine.Session
	useCount int
	state    sessionState // guarded by Pool.mu
}

// Session returns the underlying engine session.
func (s *PooledSession) Session() engine.Session { return s.session }

// UseCount returns how many times the session has been lent.
func (s *PooledSession) UseCount() int { return s.useCount }

// ID identifies the session in logs.
func (s *PooledSession) ID() uint64 { return s.id }

// waiter is a queued Acquire call. The pool sends it either a session to
// validate, or nil to grant a reserved creation slot. A closed channel means
// the pool was drained.
type waiter struct {
	ch chan *PooledSession
}

// PoolStats is a snapshot of pool accounting.
type PoolStats struct {
	Min       int `json:"min"`
	Max       int `json:"max"`
	Live      int `json:"live"`
	Idle      int `json:"idle"`
	Active    int `json:"active"`
	Creating  int `json:"creating"`
	Waiting   int `json:"waiting"`
	Created   int `json:"created"`
	Destroyed int `json:"destroyed"`
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithPoolLogger sets the pool's logger.
func WithPoolLogger(l *slog.Logger) PoolOption {
	return func(p *Pool) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithPoolRegisterer registers the pool's metrics with reg.
func WithPoolRegisterer(reg prometheus.Registerer) PoolOption {
	return func(p *Pool) { p.registerer = reg }
}

// Pool manages a bounded set of browser sessions.
//
// Sessions are created lazily up to Max, validated on every borrow, retired
// after MaxUses lends, and replaced in the background while the pool is
// below Min. Waiting callers are served in arrival order.
type Pool struct {
	factory    engine.Factory
	cfg        PoolConfig
	logger     *slog.Logger
	registerer prometheus.Registerer
	metrics    *poolMetrics

	mu        sync.Mutex
	idle      []*PooledSession
	waiters   []*waiter
	live      int // idle + active + creating
	active    int // lent, checking, or returning
	creating  int
	created   int
	destroyed int
	nextID    uint64

	draining     bool
	quiesced     chan struct{} // closed once draining with nothing active or creating
	quiescedShut bool
	drainDone    chan struct{}
	drainErr     error

	bg       sync.WaitGroup // background creations and destructions
	bgSealed bool           // Drain is waiting on bg; no more Adds
	late     []retired      // destroyed by the next unlock once bg is sealed
}

// retired is a session waiting to be closed, with the reason it left.
type retired struct {
	ps     *PooledSession
	reason string
}

// NewPool creates a pool. No session is created until Warm or Acquire.
func NewPool(factory engine.Factory, cfg PoolConfig, opts ...PoolOption) *Pool {
	p := &Pool{
		factory:   factory,
		cfg:       cfg.normalize(),
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		quiesced:  make(chan struct{}),
		drainDone: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.metrics = newPoolMetrics(p.registerer, p)
	return p
}

// Config returns the normalized pool configuration.
func (p *Pool) Config() PoolConfig {
	return p.cfg
}

// Warm creates sessions concurrently until the pool reaches Min.
// Every creation failure is returned, joined; the pool stays usable either way.
func (p *Pool) Warm(ctx context.Context) error {
	p.mu.Lock()
	if p.draining {
		p.mu.Unlock()
		return ErrPoolDrained
	}
	n := 0
	for p.live < p.cfg.Min {
		p.live++
		p.creating++
		n++
	}
	p.mu.Unlock()

	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			ps, err := p.create(ctx)
			p.finishCreate(ps, err)
			if err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

// Acquire lends a validated session to the caller, creating one if the pool
// is below Max. It waits at most AcquireTimeout. On timeout it returns
// ErrAcquisitionTimeout and leaves pool accounting unchanged.
func (p *Pool) Acquire(ctx context.Context) (*PooledSession, error) {
	start := time.Now()
	actx, cancel := context.WithTimeout(ctx, p.cfg.AcquireTimeout)
	defer cancel()

	for {
		ps, w, create, err := p.next()
		if err != nil {
			return nil, err
		}

		if create {
			return p.createAndLend(actx, ctx, start)
		}

		if w != nil {
			select {
			case got, ok := <-w.ch:
				if !ok {
					return nil, ErrPoolDrained
				}
				if got == nil {
					return p.createAndLend(actx, ctx, start)
				}
				ps = got
			case <-actx.Done():
				p.abandon(w)
				return nil, p.acquireErr(ctx, start)
			}
		}

		if err := p.validate(ps); err != nil {
			p.discard(ps, err.Error())
			continue
		}
		if actx.Err() != nil {
			p.returnUnlent(ps)
			return nil, p.acquireErr(ctx, start)
		}

		p.lend(ps, start)
		return ps, nil
	}
}

// Release returns a lent session. Valid sessions go to the next waiter or the
// idle list; invalid ones are destroyed and replaced in the background when
// the pool falls below Min. Releasing a session twice is a no-op.
func (p *Pool) Release(ps *PooledSession) {
	if ps == nil {
		return
	}

	p.mu.Lock()
	if ps.state != stateLent {
		p.mu.Unlock()
		return
	}
	ps.state = stateReturning
	draining := p.draining
	p.mu.Unlock()

	reason := ""
	switch {
	case draining:
		reason = "pool draining"
	case ps.useCount >= p.cfg.MaxUses:
		reason = "max uses reached"
	case !p.healthy(ps):
		reason = "unhealthy"
	}

	if reason != "" {
		p.discard(ps, reason)
		return
	}

	p.mu.Lock()
	id, uses := ps.id, ps.useCount
	p.active--
	if p.draining {
		p.discardLocked(ps, "pool draining")
	} else {
		p.putLocked(ps)
	}
	p.checkQuiescedLocked()
	p.unlock()

	p.logger.Debug("session released", "session", id, "uses", uses)
}

// Drain stops new acquisitions, fails queued waiters with ErrPoolDrained,
// waits for lent sessions to come back, then destroys every session.
// If ctx ends first, idle sessions are destroyed anyway and sessions still
// lent are destroyed on release. Drain is idempotent.
func (p *Pool) Drain(ctx context.Context) error {
	p.mu.Lock()
	if p.draining {
		p.mu.Unlock()
		select {
		case <-p.drainDone:
			return p.drainErr
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	p.draining = true
	for _, w := range p.waiters {
		close(w.ch)
	}
	p.waiters = nil
	p.checkQuiescedLocked()
	p.mu.Unlock()

	p.logger.Info("draining session pool")

	var errs []error
	select {
	case <-p.quiesced:
	case <-ctx.Done():
		p.logger.Warn("drain deadline reached with sessions still lent", "error", ctx.Err())
		errs = append(errs, ctx.Err())
	}

	p.mu.Lock()
	idle := p.idle
	p.idle = nil
	for _, ps := range idle {
		ps.state = stateDestroyed
	}
	p.live -= len(idle)
	p.destroyed += len(idle)
	p.mu.Unlock()

	for _, ps := range idle {
		p.metrics.destroyed.Inc()
		if err := ps.session.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing session %d: %w", ps.id, err))
		}
	}

	p.mu.Lock()
	p.bgSealed = true
	p.mu.Unlock()

	bgDone := make(chan struct{})
	go func() {
		p.bg.Wait()
		close(bgDone)
	}()
	select {
	case <-bgDone:
	case <-ctx.Done():
		if len(errs) == 0 {
			errs = append(errs, ctx.Err())
		}
	}

	p.drainErr = errors.Join(errs...)
	close(p.drainDone)
	p.logger.Info("session pool drained", "destroyed", len(idle))
	return p.drainErr
}

// Stats returns a snapshot of pool accounting.
func (p *Pool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PoolStats{
		Min:       p.cfg.Min,
		Max:       p.cfg.Max,
		Live:      p.live,
		Idle:      len(p.idle),
		Active:    p.active,
		Creating:  p.creating,
		Waiting:   len(p.waiters),
		Created:   p.created,
		Destroyed: p.destroyed,
	}
}

// next decides what an Acquire attempt does: validate an idle session,
// create a new one in a reserved slot, or wait in line.
func (p *Pool) next() (ps *PooledSession, w *waiter, create bool, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.draining {
		return nil, nil, false, ErrPoolDrained
	}

	// Queued callers go first.
	if len(p.waiters) == 0 {
		if len(p.idle) > 0 {
			ps = p.idle[0]
			p.idle[0] = nil
			p.idle = p.idle[1:]
			ps.state = stateChecking
			p.active++
			return ps, nil, false, nil
		}
		if p.live < p.cfg.Max {
			p.live++
			p.creating++
			return nil, nil, true, nil
		}
	}

	w = &waiter{ch: make(chan *PooledSession, 1)}
	p.waiters = append(p.waiters, w)
	return nil, w, false, nil
}

// createAndLend fills a reserved slot and lends the new session.
func (p *Pool) createAndLend(actx, parent context.Context, start time.Time) (*PooledSession, error) {
	ps, err := p.create(actx)
	if err != nil {
		p.finishCreate(nil, err)
		if actx.Err() != nil {
			return nil, p.acquireErr(parent, start)
		}
		return nil, err
	}

	p.mu.Lock()
	p.creating--
	if p.draining {
		p.discardLocked(ps, "pool draining")
		p.checkQuiescedLocked()
		p.unlock()
		return nil, ErrPoolDrained
	}
	if actx.Err() != nil {
		// Too late for this caller; keep the session for the next one.
		p.putLocked(ps)
		p.mu.Unlock()
		return nil, p.acquireErr(parent, start)
	}
	ps.state = stateChecking
	p.active++
	p.mu.Unlock()

	p.lend(ps, start)
	return ps, nil
}

// create asks the factory for a session. The caller must hold a reserved slot.
func (p *Pool) create(ctx context.Context) (*PooledSession, error) {
	sess, err := p.factory.Create(ctx)
	if err != nil {
		p.metrics.createFailures.Inc()
		p.logger.Error("creating browser session", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrSessionCreate, err)
	}

	p.mu.Lock()
	p.nextID++
	p.created++
	ps := &PooledSession{id: p.nextID, session: sess}
	p.mu.Unlock()

	p.metrics.created.Inc()
	p.logger.Info("browser session created", "session", ps.id)
	return ps, nil
}

// finishCreate settles a reserved slot after a creation that nobody is
// waiting on directly (warm-up, replenishment, failed acquire).
func (p *Pool) finishCreate(ps *PooledSession, err error) {
	p.mu.Lock()
	defer p.unlock()

	p.creating--
	switch {
	case err != nil:
		p.live--
		p.grantSlotLocked()
	case p.draining:
		p.discardLocked(ps, "pool draining")
	default:
		p.putLocked(ps)
	}
	p.checkQuiescedLocked()
}

// validate is the test-on-borrow check.
func (p *Pool) validate(ps *PooledSession) error {
	if ps.useCount >= p.cfg.MaxUses {
		return fmt.Errorf("%w: max uses reached", ErrSessionInvalid)
	}
	if !p.healthy(ps) {
		return fmt.Errorf("%w: unhealthy", ErrSessionInvalid)
	}
	return nil
}

func (p *Pool) healthy(ps *PooledSession) bool {
	ctx, cancel := context.WithTimeout(context.Background(), healthCheckTimeout)
	defer cancel()
	return ps.session.Healthy(ctx)
}

// lend hands a validated session to its caller.
func (p *Pool) lend(ps *PooledSession, start time.Time) {
	p.mu.Lock()
	ps.useCount++
	ps.state = stateLent
	uses := ps.useCount
	p.mu.Unlock()

	p.metrics.acquires.Inc()
	p.metrics.waitSeconds.Observe(time.Since(start).Seconds())
	p.logger.Debug("session acquired", "session", ps.id, "uses", uses)
}

// abandon removes a timed-out waiter. If the pool already handed it a
// session or a creation slot, that is passed on untouched.
func (p *Pool) abandon(w *waiter) {
	p.mu.Lock()
	for i, q := range p.waiters {
		if q == w {
			p.waiters = append(p.waiters[:i], p.waiters[i+1:]...)
			p.mu.Unlock()
			return
		}
	}
	p.mu.Unlock()

	// Not queued any more: the hand-off already happened under the lock.
	ps, ok := <-w.ch
	if !ok {
		return
	}
	if ps == nil {
		p.mu.Lock()
		p.live--
		p.creating--
		p.grantSlotLocked()
		p.checkQuiescedLocked()
		p.mu.Unlock()
		return
	}
	p.returnUnlent(ps)
}

// returnUnlent puts back a session that was never lent, without touching
// its use count.
func (p *Pool) returnUnlent(ps *PooledSession) {
	p.mu.Lock()
	defer p.unlock()

	p.active--
	if p.draining {
		p.discardLocked(ps, "pool draining")
	} else {
		p.putLocked(ps)
	}
	p.checkQuiescedLocked()
}

// discard destroys a session counted as active.
func (p *Pool) discard(ps *PooledSession, reason string) {
	p.mu.Lock()
	defer p.unlock()

	p.active--
	p.discardLocked(ps, reason)
	p.checkQuiescedLocked()
}

// putLocked hands ps to the oldest waiter, or parks it as idle.
func (p *Pool) putLocked(ps *PooledSession) {
	if len(p.waiters) > 0 {
		w := p.waiters[0]
		p.waiters = p.waiters[1:]
		ps.state = stateChecking
		p.active++
		w.ch <- ps
		return
	}
	ps.state = stateIdle
	p.idle = append(p.idle, ps)
}

// discardLocked removes ps from the live count and destroys it in the
// background, then keeps the pool moving: a waiter may create in the freed
// slot and the floor is restored. Once Drain has sealed bg, ps is closed
// by the caller's unlock instead.
func (p *Pool) discardLocked(ps *PooledSession, reason string) {
	ps.state = stateDestroyed
	p.live--
	p.destroyed++
	p.metrics.destroyed.Inc()

	if p.bgSealed {
		p.late = append(p.late, retired{ps: ps, reason: reason})
	} else {
		p.bg.Add(1)
		go func() {
			defer p.bg.Done()
			p.closeSession(ps, reason)
		}()
	}

	if !p.draining {
		p.grantSlotLocked()
		p.replenishLocked()
	}
}

// unlock releases p.mu, then closes sessions discarded after Drain sealed bg.
// The caller's Release or Acquire returns only once they are closed.
func (p *Pool) unlock() {
	late := p.late
	p.late = nil
	p.mu.Unlock()

	for _, r := range late {
		p.closeSession(r.ps, r.reason)
	}
}

// closeSession closes a destroyed session. Its use count is frozen.
func (p *Pool) closeSession(ps *PooledSession, reason string) {
	if err := ps.session.Close(); err != nil {
		p.logger.Warn("closing browser session", "session", ps.id, "error", err)
	}
	p.logger.Info("browser session destroyed", "session", ps.id, "uses", ps.useCount, "reason", reason)
}

// grantSlotLocked lets the oldest waiter create a session in a free slot.
func (p *Pool) grantSlotLocked() {
	if p.draining || len(p.waiters) == 0 || p.live >= p.cfg.Max {
		return
	}
	w := p.waiters[0]
	p.waiters = p.waiters[1:]
	p.live++
	p.creating++
	w.ch <- nil
}

// replenishLocked starts background creations until the pool is back at Min.
func (p *Pool) replenishLocked() {
	for !p.draining && p.live < p.cfg.Min {
		p.live++
		p.creating++
		p.bg.Add(1)
		go func() {
			defer p.bg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), createTimeout)
			defer cancel()
			ps, err := p.create(ctx)
			p.finishCreate(ps, err)
		}()
	}
}

func (p *Pool) checkQuiescedLocked() {
	if p.draining && !p.quiescedShut && p.active == 0 && p.creating == 0 {
		p.quiescedShut = true
		close(p.quiesced)
	}
}

// acquireErr maps an expired acquire to the caller's own cancellation, or
// to ErrAcquisitionTimeout.
func (p *Pool) acquireErr(parent context.Context, start time.Time) error {
	if err := parent.Err(); err != nil {
		return err
	}
	p.metrics.timeouts.Inc()
	p.logger.Warn("session acquire timed out", "waited", time.Since(start).String())
	return fmt.Errorf("%w after %s", ErrAcquisitionTimeout, p.cfg.AcquireTimeout)
}
