package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/JakeFAU/blogi-collector/internal/metrics"
)

// DefaultMaxContexts bounds concurrently open contexts when unset.
const DefaultMaxContexts = 3

var (
	// ErrPoolClosed is returned by Lease after Shutdown.
	ErrPoolClosed = errors.New("browser pool closed")
	// ErrLeaseClosed is returned when a lease is used after it was swept.
	ErrLeaseClosed = errors.New("browser context closed")
)

// Session is one isolated browsing context inside the shared browser.
type Session interface {
	Run(ctx context.Context, actions ...chromedp.Action) error
	Close() error
}

// Browser is a running browser process able to open isolated sessions.
type Browser interface {
	NewSession(ctx context.Context, opts Options) (Session, error)
	Close() error
}

// Launcher starts a browser process.
type Launcher interface {
	Launch(ctx context.Context) (Browser, error)
}

// Config controls pool sizing and page timeouts.
type Config struct {
	MaxContexts     int
	NavTimeout      time.Duration
	LoadTimeout     time.Duration
	SelectorTimeout time.Duration
	ExecPath        string
	ShutdownTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxContexts <= 0 {
		c.MaxContexts = DefaultMaxContexts
	}
	if c.NavTimeout <= 0 {
		c.NavTimeout = 30 * time.Second
	}
	if c.LoadTimeout <= 0 {
		c.LoadTimeout = 10 * time.Second
	}
	if c.SelectorTimeout <= 0 {
		c.SelectorTimeout = 5 * time.Second
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 10 * time.Second
	}
	return c
}

// Pool owns the shared browser and the permits bounding open contexts.
type Pool struct {
	cfg      Config
	launcher Launcher
	logger   *zap.Logger
	sem      *semaphore.Weighted

	initMu  sync.Mutex
	browser Browser
	closed  bool

	mu     sync.Mutex
	open   map[uint64]*Lease
	nextID uint64
}

// New constructs a Pool. A nil launcher uses headless Chrome via chromedp.
func New(cfg Config, launcher Launcher, logger *zap.Logger) *Pool {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	if launcher == nil {
		launcher = NewChromeLauncher(cfg, logger)
	}
	return &Pool{
		cfg:      cfg,
		launcher: launcher,
		logger:   logger,
		sem:      semaphore.NewWeighted(int64(cfg.MaxContexts)),
		open:     make(map[uint64]*Lease),
	}
}

// Browser returns the shared browser, launching it on first use.
func (p *Pool) Browser(ctx context.Context) (Browser, error) {
	p.initMu.Lock()
	defer p.initMu.Unlock()
	if p.closed {
		return nil, ErrPoolClosed
	}
	if p.browser != nil {
		return p.browser, nil
	}
	b, err := p.launcher.Launch(ctx)
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}
	metrics.ObserveBrowserLaunch()
	p.logger.Info("headless browser launched", zap.Int("max_contexts", p.cfg.MaxContexts))
	p.browser = b
	return b, nil
}

// Warmup launches the browser ahead of the first lease.
func (p *Pool) Warmup(ctx context.Context) error {
	_, err := p.Browser(ctx)
	return err
}

// Lease opens an isolated context, runs fn with it and closes it afterwards,
// whether fn returns, fails, panics or ctx is cancelled.
func (p *Pool) Lease(ctx context.Context, opts Options, fn func(ctx context.Context, l *Lease) error) error {
	start := time.Now()
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("acquire browser context: %w", err)
	}
	defer p.sem.Release(1)
	metrics.ObserveLeaseWait(time.Since(start))

	b, err := p.Browser(ctx)
	if err != nil {
		return err
	}
	sess, err := b.NewSession(ctx, opts)
	if err != nil {
		return fmt.Errorf("open browser context: %w", err)
	}
	lease := p.register(sess)
	metrics.IncActiveLeases()
	defer func() {
		p.unregister(lease)
		lease.close()
		metrics.DecActiveLeases()
	}()
	return fn(ctx, lease)
}

// OpenContexts reports how many leased contexts are currently open.
func (p *Pool) OpenContexts() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.open)
}

// CloseAllContexts closes every open context and keeps the browser running.
// It returns the number of contexts closed.
func (p *Pool) CloseAllContexts() int {
	p.mu.Lock()
	leases := make([]*Lease, 0, len(p.open))
	for id, l := range p.open {
		leases = append(leases, l)
		delete(p.open, id)
	}
	p.mu.Unlock()

	for _, l := range leases {
		l.close()
	}
	if len(leases) > 0 {
		p.logger.Debug("closed open browser contexts", zap.Int("count", len(leases)))
	}
	return len(leases)
}

// Recycle closes all contexts and terminates the browser process. The next
// lease relaunches it.
func (p *Pool) Recycle(ctx context.Context) error {
	p.initMu.Lock()
	defer p.initMu.Unlock()
	return p.teardown(ctx)
}

// Shutdown recycles the browser and rejects further leases.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.initMu.Lock()
	defer p.initMu.Unlock()
	p.closed = true
	return p.teardown(ctx)
}

func (p *Pool) teardown(ctx context.Context) error {
	p.CloseAllContexts()
	if p.browser == nil {
		return nil
	}
	b := p.browser
	p.browser = nil

	done := make(chan error, 1)
	go func() { done <- b.Close() }()
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("close browser: %w", err)
		}
		p.logger.Info("headless browser stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("close browser: %w", ctx.Err())
	}
}

func (p *Pool) register(sess Session) *Lease {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextID++
	l := &Lease{id: p.nextID, session: sess, cfg: p.cfg, logger: p.logger}
	p.open[l.id] = l
	return l
}

func (p *Pool) unregister(l *Lease) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.open, l.id)
}

// WithPage is Lease for callers that only need the Page surface.
func (p *Pool) WithPage(ctx context.Context, opts Options, fn func(ctx context.Context, page Page) error) error {
	return p.Lease(ctx, opts, func(ctx context.Context, l *Lease) error {
		return fn(ctx, l)
	})
}
