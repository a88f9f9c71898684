package extract

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/JakeFAU/blogi-collector/internal/browser"
)

// PageLeaser hands out a browser page for the duration of fn.
type PageLeaser interface {
	WithPage(ctx context.Context, opts browser.Options, fn func(ctx context.Context, page browser.Page) error) error
}

// ErrNoFrame is reported when a page has no iframe#mainFrame.
var ErrNoFrame = errors.New("extract: mainFrame iframe not found")

const mainFrameSelector = "iframe#mainFrame"

// HeadlessStrategy renders the page in a mobile browser context.
type HeadlessStrategy struct {
	pages PageLeaser
	table SelectorTable
	opts  browser.Options
}

// NewHeadlessStrategy builds a mobile rendering strategy.
func NewHeadlessStrategy(pages PageLeaser, table SelectorTable) *HeadlessStrategy {
	return &HeadlessStrategy{pages: pages, table: table, opts: browser.MobileOptions()}
}

// Name implements Strategy.
func (s *HeadlessStrategy) Name() string { return "headless-mobile" }

// Extract implements Strategy.
func (s *HeadlessStrategy) Extract(ctx context.Context, rawURL string) Outcome {
	out := Outcome{Strategy: s.Name()}
	out.Err = s.pages.WithPage(ctx, s.opts, func(ctx context.Context, page browser.Page) error {
		if err := page.Navigate(ctx, rawURL); err != nil {
			return err
		}
		out.Selector, out.Text = firstText(ctx, page, s.table.Lookup(rawURL))
		return ctx.Err()
	})
	return out
}

// FrameStrategy renders the desktop page and reads the post from the
// document loaded in its main iframe.
type FrameStrategy struct {
	pages PageLeaser
	table SelectorTable
	opts  browser.Options
}

// NewFrameStrategy builds a desktop iframe strategy.
func NewFrameStrategy(pages PageLeaser, table SelectorTable) *FrameStrategy {
	return &FrameStrategy{pages: pages, table: table, opts: browser.DesktopOptions()}
}

// Name implements Strategy.
func (s *FrameStrategy) Name() string { return "headless-desktop-frame" }

// Extract implements Strategy.
func (s *FrameStrategy) Extract(ctx context.Context, rawURL string) Outcome {
	out := Outcome{Strategy: s.Name()}
	out.Err = s.pages.WithPage(ctx, s.opts, func(ctx context.Context, page browser.Page) error {
		if err := page.Navigate(ctx, rawURL); err != nil {
			return err
		}
		src, ok, err := page.Attribute(ctx, mainFrameSelector, "src")
		if err != nil || !ok || strings.TrimSpace(src) == "" {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return ErrNoFrame
		}
		base, err := page.Location(ctx)
		if err != nil || base == "" {
			base = rawURL
		}
		frameURL, err := resolve(base, src)
		if err != nil {
			return err
		}
		if err := page.Navigate(ctx, frameURL); err != nil {
			return err
		}
		out.Selector, out.Text = firstText(ctx, page, s.table.Candidates(rawURL))
		return ctx.Err()
	})
	return out
}

// firstText returns the first selector whose inner text is non-empty. A
// selector that never appears within the page's selector timeout is skipped.
func firstText(ctx context.Context, page browser.Page, selectors []string) (string, string) {
	for _, selector := range selectors {
		if ctx.Err() != nil {
			return "", ""
		}
		text, err := page.Text(ctx, selector)
		if err != nil {
			continue
		}
		if text = strings.TrimSpace(text); text != "" {
			return selector, text
		}
	}
	return "", ""
}

func resolve(base, ref string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	r, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return "", fmt.Errorf("parse frame src: %w", err)
	}
	return b.ResolveReference(r).String(), nil
}
