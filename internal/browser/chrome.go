package browser

import (
	"context"
	"fmt"
	"sync"

	"github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// blockedResources are aborted by the interception rule of every context.
var blockedResources = []network.ResourceType{
	network.ResourceTypeImage,
	network.ResourceTypeMedia,
	network.ResourceTypeFont,
}

// launchFlags harden Chrome for container use and keep its caches off disk.
func launchFlags() []chromedp.ExecAllocatorOption {
	return []chromedp.ExecAllocatorOption{
		chromedp.Flag("headless", true),
		chromedp.NoSandbox,
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-software-rasterizer", true),
		chromedp.Flag("media-cache-size", "0"),
		chromedp.Flag("disk-cache-size", "0"),
		chromedp.Flag("disable-background-networking", true),
		chromedp.NoFirstRun,
		chromedp.Flag("no-zygote", true),
	}
}

// ChromeLauncher starts headless Chrome through chromedp.
type ChromeLauncher struct {
	cfg    Config
	logger *zap.Logger
}

// NewChromeLauncher returns a launcher using the pool configuration.
func NewChromeLauncher(cfg Config, logger *zap.Logger) *ChromeLauncher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChromeLauncher{cfg: cfg.withDefaults(), logger: logger}
}

// Launch starts the browser process and waits until it accepts commands.
func (l *ChromeLauncher) Launch(ctx context.Context) (Browser, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:], launchFlags()...)
	if l.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(l.cfg.ExecPath))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx, chromedp.WithErrorf(l.logger.Sugar().Debugf))

	if err := runUntil(ctx, browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("chromedp warmup: %w", err)
	}
	return &chromeBrowser{
		ctx:         browserCtx,
		cancel:      browserCancel,
		allocCancel: allocCancel,
		logger:      l.logger,
	}, nil
}

type chromeBrowser struct {
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	logger      *zap.Logger
}

func (b *chromeBrowser) NewSession(ctx context.Context, opts Options) (Session, error) {
	tabCtx, cancel := chromedp.NewContext(b.ctx, chromedp.WithNewBrowserContext())
	if opts.BlockResources {
		chromedp.ListenTarget(tabCtx, interceptBlocked(tabCtx))
	}
	if err := runUntil(ctx, tabCtx, b.setupActions(opts)...); err != nil {
		cancel()
		return nil, fmt.Errorf("configure context: %w", err)
	}
	return &chromeSession{ctx: tabCtx, cancel: cancel}, nil
}

func (b *chromeBrowser) Close() error {
	err := chromedp.Cancel(b.ctx)
	b.cancel()
	b.allocCancel()
	if err != nil {
		return fmt.Errorf("cancel browser: %w", err)
	}
	return nil
}

func (b *chromeBrowser) setupActions(opts Options) []chromedp.Action {
	actions := []chromedp.Action{
		network.Enable(),
		page.SetLifecycleEventsEnabled(true),
	}
	if opts.UserAgent != "" {
		actions = append(actions, emulation.SetUserAgentOverride(opts.UserAgent).WithAcceptLanguage(opts.AcceptLanguage()))
	}
	if opts.Locale != "" {
		actions = append(actions, emulation.SetLocaleOverride().WithLocale(opts.Locale))
	}
	if opts.Width > 0 && opts.Height > 0 {
		var viewport []chromedp.EmulateViewportOption
		if opts.Mobile {
			viewport = append(viewport, chromedp.EmulateMobile, chromedp.EmulateTouch, chromedp.EmulateScale(3))
		}
		actions = append(actions, chromedp.EmulateViewport(opts.Width, opts.Height, viewport...))
	}
	if opts.BypassCSP {
		actions = append(actions, page.SetBypassCSP(true))
	}
	if opts.BlockResources {
		patterns := make([]*fetch.RequestPattern, 0, len(blockedResources))
		for _, rt := range blockedResources {
			patterns = append(patterns, &fetch.RequestPattern{URLPattern: "*", ResourceType: rt})
		}
		actions = append(actions, fetch.Enable().WithPatterns(patterns))
	}
	if geo := opts.Geolocation; geo != nil {
		actions = append(actions,
			chromedp.ActionFunc(b.grantGeolocation),
			emulation.SetGeolocationOverride().
				WithLatitude(geo.Latitude).
				WithLongitude(geo.Longitude).
				WithAccuracy(geo.Accuracy),
		)
	}
	return actions
}

// grantGeolocation is best effort; pages still render without the permission.
func (b *chromeBrowser) grantGeolocation(ctx context.Context) error {
	c := chromedp.FromContext(ctx)
	if c == nil || c.Browser == nil {
		return nil
	}
	err := browser.GrantPermissions([]browser.PermissionType{browser.PermissionTypeGeolocation}).
		WithBrowserContextID(c.BrowserContextID).
		Do(cdp.WithExecutor(ctx, c.Browser))
	if err != nil {
		b.logger.Warn("grant geolocation permission failed", zap.Error(err))
	}
	return nil
}

func interceptBlocked(tabCtx context.Context) func(ev any) {
	return func(ev any) {
		paused, ok := ev.(*fetch.EventRequestPaused)
		if !ok {
			return
		}
		go func() {
			c := chromedp.FromContext(tabCtx)
			if c == nil || c.Target == nil {
				return
			}
			execCtx := cdp.WithExecutor(tabCtx, c.Target)
			if isBlocked(paused.ResourceType) {
				_ = fetch.FailRequest(paused.RequestID, network.ErrorReasonBlockedByClient).Do(execCtx)
				return
			}
			_ = fetch.ContinueRequest(paused.RequestID).Do(execCtx)
		}()
	}
}

func isBlocked(rt network.ResourceType) bool {
	for _, blocked := range blockedResources {
		if rt == blocked {
			return true
		}
	}
	return false
}

type chromeSession struct {
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
}

func (s *chromeSession) Run(ctx context.Context, actions ...chromedp.Action) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrLeaseClosed
	}

	var (
		runCtx context.Context
		cancel context.CancelFunc
	)
	if deadline, ok := ctx.Deadline(); ok {
		runCtx, cancel = context.WithDeadline(s.ctx, deadline)
	} else {
		runCtx, cancel = context.WithCancel(s.ctx)
	}
	defer cancel()
	stop := forwardCancel(ctx, cancel)
	defer stop()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}
	return nil
}

func (s *chromeSession) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	err := chromedp.Cancel(s.ctx)
	s.cancel()
	return err
}

// navigateNetworkIdle loads rawURL and blocks until the new document reports
// the networkIdle lifecycle event.
func navigateNetworkIdle(rawURL string) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		listenCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		var (
			mu     sync.Mutex
			loader cdp.LoaderID
			once   sync.Once
		)
		idle := make(chan struct{})
		chromedp.ListenTarget(listenCtx, func(ev any) {
			e, ok := ev.(*page.EventLifecycleEvent)
			if !ok {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			switch {
			case e.Name == "init" && loader == "":
				loader = e.LoaderID
			case e.Name == "networkIdle" && loader != "" && e.LoaderID == loader:
				once.Do(func() { close(idle) })
			}
		})

		if err := chromedp.Navigate(rawURL).Do(ctx); err != nil {
			return err
		}
		select {
		case <-idle:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
}

// runUntil runs actions on a chromedp context without deriving from it, so the
// first run does not bind the target's lifetime to a short-lived ctx.
func runUntil(ctx context.Context, target context.Context, actions ...chromedp.Action) error {
	done := make(chan error, 1)
	go func() { done <- chromedp.Run(target, actions...) }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		_ = chromedp.Cancel(target)
		<-done
		return ctx.Err()
	}
}

func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	if parent == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}
