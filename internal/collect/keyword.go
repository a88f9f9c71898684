package collect

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"
	"unicode"

	"go.uber.org/zap"

	"github.com/JakeFAU/blogi-collector/internal/browser"
	"github.com/JakeFAU/blogi-collector/internal/extract"
	"github.com/JakeFAU/blogi-collector/internal/pipeline"
)

const (
	trendingSearchURL   = "https://search.naver.com/search.naver"
	trendingSelector    = "span.sds-comps-text-type-headline2"
	trendingQuerySuffix = " 숏텐츠"
)

var trendingScript = fmt.Sprintf(
	`Array.from(document.querySelectorAll(%q)).map(el => el.innerText)`, trendingSelector)

// Category is a keyword category and the display name its trending tab uses.
type Category struct {
	Name    string
	Display string
}

// KeywordConfig tunes keyword collection.
type KeywordConfig struct {
	Categories []Category
	// Pause is the wait between two categories.
	Pause    time.Duration
	Location *time.Location
}

// KeywordCollector scrapes trending titles per category and submits them as
// keyword candidates.
type KeywordCollector struct {
	gate
	cfg   KeywordConfig
	pages extract.PageLeaser
	store pipeline.ContentStore
	deps  Deps
}

// NewKeywordCollector wires a KeywordCollector.
func NewKeywordCollector(cfg KeywordConfig, pages extract.PageLeaser, store pipeline.ContentStore, deps Deps) *KeywordCollector {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &KeywordCollector{cfg: cfg, pages: pages, store: store, deps: deps.withDefaults()}
}

// Run scrapes every configured category once. A failing category is logged
// and skipped; the collected candidates are submitted in one batch.
func (c *KeywordCollector) Run(ctx context.Context) (RunSummary, error) {
	if !c.enter() {
		return RunSummary{}, ErrRunInProgress
	}
	defer c.leave()

	rec, runID := c.deps.recorder(StepKeyword)
	summary := RunSummary{RunID: runID}
	logger := c.deps.Logger.With(zap.String("step", StepKeyword), zap.String("run_id", runID))
	rec.Start()

	var candidates []pipeline.KeywordCandidate
	for i, cat := range c.cfg.Categories {
		if i > 0 {
			if err := sleepCtx(ctx, c.cfg.Pause); err != nil {
				return abortRun(rec, summary, AbortCanceled, err)
			}
		}
		summary.Processed++
		started := c.deps.Now()
		titles, err := c.scrape(ctx, cat)
		c.deps.sweep()
		if err != nil {
			if isCanceled(ctx, err) {
				return abortRun(rec, summary, AbortCanceled, err)
			}
			logger.Error("scrape category failed", zap.String("category", cat.Name), zap.Error(err))
			summary.Failed++
			rec.Failed(0, cat.Name, "scrape_failed", err)
			continue
		}
		collectedAt := c.deps.Now().In(c.cfg.Location).Format(time.RFC3339)
		kept := 0
		for _, raw := range titles {
			title := CleanKeywordTitle(raw)
			if title == "" {
				continue
			}
			kept++
			candidates = append(candidates, pipeline.KeywordCandidate{
				Title:          title,
				Category:       cat.Name,
				SourceCategory: cat.Display,
				CollectedAt:    collectedAt,
			})
		}
		logger.Info("category scraped",
			zap.String("category", cat.Name),
			zap.Int("titles", len(titles)),
			zap.Int("kept", kept),
		)
		rec.Done(0, cat.Name, trendingURL(cat.Display), c.deps.Now().Sub(started))
	}

	if len(candidates) == 0 {
		logger.Warn("no keyword candidates collected")
		rec.Finish("", "no candidates")
		return summary, nil
	}
	if err := c.store.SubmitKeywords(ctx, candidates); err != nil {
		if isCanceled(ctx, err) {
			return abortRun(rec, summary, AbortCanceled, err)
		}
		return abortRun(rec, summary, AbortStore, fmt.Errorf("submit keywords: %w", err))
	}
	summary.Submitted = len(candidates)
	rec.Finish("", fmt.Sprintf("submitted %d", summary.Submitted))
	return summary, nil
}

func (c *KeywordCollector) scrape(ctx context.Context, cat Category) ([]string, error) {
	var titles []string
	err := c.pages.WithPage(ctx, browser.DesktopOptions(), func(ctx context.Context, page browser.Page) error {
		if err := page.Navigate(ctx, trendingURL(cat.Display)); err != nil {
			return err
		}
		return page.Evaluate(ctx, trendingScript, &titles)
	})
	if err != nil {
		return nil, fmt.Errorf("scrape %s: %w", cat.Name, err)
	}
	return titles, nil
}

func trendingURL(display string) string {
	q := url.Values{}
	q.Set("ssc", "tab.shortents.all")
	q.Set("query", display+trendingQuerySuffix)
	q.Set("sm", "svc_clk.entnewsmore")
	q.Set("category", display)
	return trendingSearchURL + "?" + q.Encode()
}

// CleanKeywordTitle strips invisible formatting characters and punctuation
// other than '-', '.' and ',' from a scraped title and collapses whitespace.
func CleanKeywordTitle(raw string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case invisible(r):
			return -1
		case unicode.IsLetter(r), unicode.IsDigit(r), unicode.IsSpace(r):
			return r
		case r == '_', r == '-', r == '.', r == ',':
			return r
		default:
			return -1
		}
	}, raw)
	return strings.Join(strings.Fields(cleaned), " ")
}

func invisible(r rune) bool {
	switch {
	case r >= 0x200B && r <= 0x200F,
		r >= 0x202A && r <= 0x202E,
		r >= 0x2060 && r <= 0x206F,
		r >= 0xE000 && r <= 0xF8FF:
		return true
	}
	return false
}
