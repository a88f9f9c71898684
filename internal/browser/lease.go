package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// Lease is an exclusively owned browsing context handed to a Pool.Lease callback.
type Lease struct {
	id      uint64
	session Session
	cfg     Config
	logger  *zap.Logger

	once     sync.Once
	closeErr error
}

// Run executes chromedp actions in the leased context.
func (l *Lease) Run(ctx context.Context, actions ...chromedp.Action) error {
	if err := l.session.Run(ctx, actions...); err != nil {
		return fmt.Errorf("browser run: %w", err)
	}
	return nil
}

// Navigate loads rawURL and waits for the network to go idle. When that wait
// exceeds the navigation timeout it settles for a loaded document instead.
func (l *Lease) Navigate(ctx context.Context, rawURL string) error {
	navCtx, cancel := context.WithTimeout(ctx, l.cfg.NavTimeout)
	err := l.session.Run(navCtx, navigateNetworkIdle(rawURL))
	cancel()
	if err == nil {
		return nil
	}
	if ctx.Err() != nil || !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("navigate %s: %w", rawURL, err)
	}

	l.logger.Warn("network idle wait timed out; falling back to content loaded",
		zap.String("url", rawURL),
		zap.Duration("nav_timeout", l.cfg.NavTimeout),
	)
	loadCtx, cancelLoad := context.WithTimeout(ctx, l.cfg.LoadTimeout)
	defer cancelLoad()
	var location string
	if err := l.session.Run(loadCtx,
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Location(&location),
	); err != nil {
		return fmt.Errorf("navigate %s: content loaded wait: %w", rawURL, err)
	}
	if location == "about:blank" {
		return fmt.Errorf("navigate %s: document never committed", rawURL)
	}
	return nil
}

// Text returns the visible text of the first node matching selector, waiting
// at most the configured selector timeout.
func (l *Lease) Text(ctx context.Context, selector string) (string, error) {
	selCtx, cancel := context.WithTimeout(ctx, l.cfg.SelectorTimeout)
	defer cancel()
	var text string
	if err := l.session.Run(selCtx, chromedp.Text(selector, &text, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("selector %q: %w", selector, err)
	}
	return text, nil
}

// Attribute reads an attribute of the first node matching selector.
func (l *Lease) Attribute(ctx context.Context, selector, name string) (string, bool, error) {
	selCtx, cancel := context.WithTimeout(ctx, l.cfg.SelectorTimeout)
	defer cancel()
	var (
		value string
		ok    bool
	)
	if err := l.session.Run(selCtx, chromedp.AttributeValue(selector, name, &value, &ok, chromedp.ByQuery)); err != nil {
		return "", false, fmt.Errorf("attribute %s of %q: %w", name, selector, err)
	}
	return value, ok, nil
}

// Evaluate runs a JavaScript expression and decodes its result into res.
func (l *Lease) Evaluate(ctx context.Context, expression string, res any) error {
	if err := l.session.Run(ctx, chromedp.Evaluate(expression, res)); err != nil {
		return fmt.Errorf("evaluate: %w", err)
	}
	return nil
}

// Location returns the current document URL.
func (l *Lease) Location(ctx context.Context) (string, error) {
	var location string
	if err := l.session.Run(ctx, chromedp.Location(&location)); err != nil {
		return "", fmt.Errorf("location: %w", err)
	}
	return location, nil
}

func (l *Lease) close() {
	l.once.Do(func() {
		l.closeErr = l.session.Close()
		if l.closeErr != nil {
			l.logger.Debug("browser context close failed", zap.Uint64("lease", l.id), zap.Error(l.closeErr))
		}
	})
}

// Page is the subset of a lease used by scrapers.
type Page interface {
	Navigate(ctx context.Context, rawURL string) error
	Text(ctx context.Context, selector string) (string, error)
	Attribute(ctx context.Context, selector, name string) (string, bool, error)
	Evaluate(ctx context.Context, expression string, res any) error
	Location(ctx context.Context) (string, error)
}

var _ Page = (*Lease)(nil)
