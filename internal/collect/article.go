package collect

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/blogi-collector/internal/extract"
	"github.com/JakeFAU/blogi-collector/internal/fallback"
	"github.com/JakeFAU/blogi-collector/internal/pipeline"
	"github.com/JakeFAU/blogi-collector/internal/progress"
)

// Skip and failure reasons recorded for article items.
const (
	reasonMissingFields   = "missing_fields"
	reasonRepeated        = "repeated_keyword"
	reasonUnknownCategory = "unknown_category"
	reasonNotFound        = "not_found"
	reasonDuplicateURL    = "duplicate_url"
	reasonSearchFailed    = "search_failed"
	reasonSubmitFailed    = "submit_failed"
)

// articleSearchSize is how many provider results one article query asks for.
const articleSearchSize = 1

// BodyExtractor reads and validates the body behind a URL.
type BodyExtractor interface {
	Extract(ctx context.Context, rawURL, keyword string) (extract.Result, error)
}

// ArticleConfig tunes article collection.
type ArticleConfig struct {
	// Categories maps a keyword category to the vertical searched for it.
	Categories map[string]pipeline.SourceKind
	MaxRepeats int
}

// ArticleCollector drains pending keywords from the content store, finds one
// relevant article for each and submits it. Keywords that cannot be served
// are deactivated.
type ArticleCollector struct {
	gate
	cfg    ArticleConfig
	store  pipeline.ContentStore
	search pipeline.SearchProvider
	engine *fallback.Engine
	news   BodyExtractor
	blog   BodyExtractor
	deps   Deps
}

// NewArticleCollector wires an ArticleCollector. news and blog extract the
// bodies of the respective verticals.
func NewArticleCollector(
	cfg ArticleConfig,
	store pipeline.ContentStore,
	search pipeline.SearchProvider,
	engine *fallback.Engine,
	news, blog BodyExtractor,
	deps Deps,
) *ArticleCollector {
	return &ArticleCollector{
		cfg:    cfg,
		store:  store,
		search: search,
		engine: engine,
		news:   news,
		blog:   blog,
		deps:   deps.withDefaults(),
	}
}

// Run processes keywords until the store has none left, the context ends or
// a provider reports an exhausted quota.
func (c *ArticleCollector) Run(ctx context.Context) (RunSummary, error) {
	if !c.enter() {
		return RunSummary{}, ErrRunInProgress
	}
	defer c.leave()

	rec, runID := c.deps.recorder(StepArticle)
	summary := RunSummary{RunID: runID}
	logger := c.deps.Logger.With(zap.String("step", StepArticle), zap.String("run_id", runID))
	guard := newRunGuard(c.cfg.MaxRepeats)
	rec.Start()

	for {
		if err := ctx.Err(); err != nil {
			return abortRun(rec, summary, AbortCanceled, err)
		}
		kw, err := c.store.NextKeyword(ctx)
		if err != nil {
			if isCanceled(ctx, err) {
				return abortRun(rec, summary, AbortCanceled, err)
			}
			logger.Error("fetch next keyword failed", zap.Error(err))
			return abortRun(rec, summary, AbortStore, fmt.Errorf("next keyword: %w", err))
		}
		if kw == nil {
			break
		}
		summary.Processed++
		itemLog := logger.With(zap.Int64("keyword_id", kw.ID), zap.String("keyword", kw.Title))

		if missing := kw.Missing(); len(missing) > 0 {
			itemLog.Warn("keyword missing fields", zap.Strings("fields", missing))
			c.deactivate(ctx, itemLog, kw.ID, &summary)
			summary.Skipped++
			rec.Skipped(kw.ID, kw.Title, reasonMissingFields)
			continue
		}
		if n := guard.attempt(kw.ID); n > 1 {
			if guard.stuck(n) {
				itemLog.Error("store keeps returning the same keyword", zap.Int("repeats", n))
				return abortRun(rec, summary, AbortStuck, fmt.Errorf("keyword %d returned %d times", kw.ID, n))
			}
			itemLog.Warn("keyword returned again in this run")
			c.deactivate(ctx, itemLog, kw.ID, &summary)
			summary.Skipped++
			rec.Skipped(kw.ID, kw.Title, reasonRepeated)
			continue
		}
		kind, ok := c.cfg.Categories[kw.Category]
		if !ok || !kind.Valid() {
			itemLog.Warn("unknown keyword category", zap.String("category", kw.Category))
			c.deactivate(ctx, itemLog, kw.ID, &summary)
			summary.Skipped++
			rec.Skipped(kw.ID, kw.Title, reasonUnknownCategory)
			continue
		}

		abort, err := c.process(ctx, itemLog, rec, guard, *kw, kind, &summary)
		if abort != "" {
			return abortRun(rec, summary, abort, err)
		}
	}

	rec.Finish("", fmt.Sprintf("submitted %d", summary.Submitted))
	return summary, nil
}

// process handles one valid keyword. A non-empty abort reason stops the run.
func (c *ArticleCollector) process(
	ctx context.Context,
	logger *zap.Logger,
	rec *progress.Recorder,
	guard *runGuard,
	kw pipeline.Keyword,
	kind pipeline.SourceKind,
	summary *RunSummary,
) (string, error) {
	defer c.deps.sweep()
	started := c.deps.Now()

	article, err := c.find(ctx, logger, kw, kind)
	switch {
	case err == nil:
	case isCanceled(ctx, err):
		return AbortCanceled, err
	case errors.Is(err, pipeline.ErrQuotaExceeded):
		logger.Warn("search quota exhausted; stopping run", zap.Error(err))
		summary.Failed++
		rec.Failed(kw.ID, kw.Title, AbortQuota, err)
		return AbortQuota, err
	default:
		logger.Error("article search failed", zap.Error(err))
		c.deactivate(ctx, logger, kw.ID, summary)
		summary.Failed++
		rec.Failed(kw.ID, kw.Title, reasonSearchFailed, err)
		return "", nil
	}

	if article == nil {
		logger.Info("no relevant article found")
		c.deactivate(ctx, logger, kw.ID, summary)
		summary.Skipped++
		rec.Skipped(kw.ID, kw.Title, reasonNotFound)
		return "", nil
	}
	if !guard.claimURL(article.OriginLink) {
		logger.Info("article already submitted in this run", zap.String("url", article.OriginLink))
		c.deactivate(ctx, logger, kw.ID, summary)
		summary.Skipped++
		rec.Skipped(kw.ID, kw.Title, reasonDuplicateURL)
		return "", nil
	}

	if err := c.store.SubmitArticles(ctx, []pipeline.Article{*article}); err != nil {
		if isCanceled(ctx, err) {
			return AbortCanceled, err
		}
		logger.Error("submit article failed", zap.Error(err))
		c.deactivate(ctx, logger, kw.ID, summary)
		summary.Failed++
		rec.Failed(kw.ID, kw.Title, reasonSubmitFailed, err)
		return "", nil
	}
	summary.Submitted++
	logger.Info("article submitted", zap.String("url", article.OriginLink))
	rec.Done(kw.ID, kw.Title, article.OriginLink, c.deps.Now().Sub(started))
	return "", nil
}

// find walks the fallback queries for kw until one yields a validated body.
func (c *ArticleCollector) find(ctx context.Context, logger *zap.Logger, kw pipeline.Keyword, kind pipeline.SourceKind) (*pipeline.Article, error) {
	extractor := c.news
	if kind == pipeline.SourceBlog {
		extractor = c.blog
	}
	attempt := func(ctx context.Context, query string) (*pipeline.Article, int, error) {
		items, err := c.search.Search(ctx, kind, query, articleSearchSize)
		if err != nil {
			return nil, 0, err
		}
		if len(items) == 0 {
			return nil, 0, nil
		}
		item := items[0]
		link := candidateLink(kind, item)
		if link == "" {
			logger.Debug("search result has no usable link", zap.String("query", query))
			return nil, 0, nil
		}
		res, err := extractor.Extract(ctx, link, kw.Title)
		if err != nil {
			if isCanceled(ctx, err) {
				return nil, 0, err
			}
			logger.Debug("extraction rejected", zap.String("url", link), zap.Error(err))
			return nil, 0, nil
		}
		content := extract.CleanContent(res.Text)
		if content == "" {
			return nil, 0, nil
		}
		return &pipeline.Article{
			KeywordID:  kw.ID,
			Title:      extract.CleanHTML(item.Title),
			OriginLink: link,
			Content:    content,
		}, 1, nil
	}
	res, err := fallback.Search(ctx, c.engine, kw.Title, 1, attempt)
	if err != nil {
		return nil, err
	}
	return res.Value, nil
}

// candidateLink picks the page to extract for a search item.
func candidateLink(kind pipeline.SourceKind, item pipeline.SearchItem) string {
	if kind == pipeline.SourceBlog {
		link, ok := extract.BlogOriginLink(item.Link, item.SecondaryLink)
		if !ok {
			return ""
		}
		return link
	}
	if link := strings.TrimSpace(item.Link); link != "" {
		return link
	}
	return strings.TrimSpace(item.SecondaryLink)
}

func (c *ArticleCollector) deactivate(ctx context.Context, logger *zap.Logger, id int64, summary *RunSummary) {
	deactivate(ctx, c.store, logger, id, summary)
}

// deactivate retires a keyword. Failures are logged; the run goes on.
func deactivate(ctx context.Context, store pipeline.ContentStore, logger *zap.Logger, id int64, summary *RunSummary) {
	if id <= 0 {
		return
	}
	if err := store.Deactivate(ctx, id); err != nil {
		logger.Warn("deactivate keyword failed", zap.Error(err))
		return
	}
	summary.Deactivated++
}
