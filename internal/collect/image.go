package collect

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/blogi-collector/internal/fallback"
	"github.com/JakeFAU/blogi-collector/internal/pipeline"
	"github.com/JakeFAU/blogi-collector/internal/progress"
)

// DefaultImageCount is how many images a keyword gets when unconfigured.
const DefaultImageCount = 3

const reasonNoImages = "no_images"

// ImageConfig tunes image collection.
type ImageConfig struct {
	// Count is the number of images requested and kept per keyword.
	Count      int
	MaxRepeats int
}

// ImageCollector drains keywords that still need images from the content
// store and submits a representative image set for each.
type ImageCollector struct {
	gate
	cfg    ImageConfig
	store  pipeline.ContentStore
	images pipeline.ImageProvider
	engine *fallback.Engine
	deps   Deps
}

// NewImageCollector wires an ImageCollector.
func NewImageCollector(cfg ImageConfig, store pipeline.ContentStore, images pipeline.ImageProvider, engine *fallback.Engine, deps Deps) *ImageCollector {
	if cfg.Count <= 0 {
		cfg.Count = DefaultImageCount
	}
	return &ImageCollector{cfg: cfg, store: store, images: images, engine: engine, deps: deps.withDefaults()}
}

// Run processes image targets until the store has none left, the context
// ends or the image provider reports an exhausted quota.
func (c *ImageCollector) Run(ctx context.Context) (RunSummary, error) {
	if !c.enter() {
		return RunSummary{}, ErrRunInProgress
	}
	defer c.leave()

	rec, runID := c.deps.recorder(StepImage)
	summary := RunSummary{RunID: runID}
	logger := c.deps.Logger.With(zap.String("step", StepImage), zap.String("run_id", runID))
	guard := newRunGuard(c.cfg.MaxRepeats)
	rec.Start()

	for {
		if err := ctx.Err(); err != nil {
			return abortRun(rec, summary, AbortCanceled, err)
		}
		target, err := c.store.NextImageTarget(ctx)
		if err != nil {
			if isCanceled(ctx, err) {
				return abortRun(rec, summary, AbortCanceled, err)
			}
			logger.Error("fetch next image target failed", zap.Error(err))
			return abortRun(rec, summary, AbortStore, fmt.Errorf("next image target: %w", err))
		}
		if target == nil {
			break
		}
		if target.ID <= 0 {
			logger.Warn("image target without id; stopping run")
			break
		}
		summary.Processed++
		itemLog := logger.With(zap.Int64("keyword_id", target.ID), zap.String("keyword", target.Title))

		if strings.TrimSpace(target.Title) == "" {
			itemLog.Warn("image target missing title")
			c.retire(ctx, itemLog, target.ID, &summary)
			summary.Skipped++
			rec.Skipped(target.ID, "", reasonMissingFields)
			continue
		}
		if n := guard.attempt(target.ID); n > 1 {
			if guard.stuck(n) {
				itemLog.Error("store keeps returning the same image target", zap.Int("repeats", n))
				return abortRun(rec, summary, AbortStuck, fmt.Errorf("image target %d returned %d times", target.ID, n))
			}
			itemLog.Warn("image target returned again in this run")
			c.retire(ctx, itemLog, target.ID, &summary)
			summary.Skipped++
			rec.Skipped(target.ID, target.Title, reasonRepeated)
			continue
		}

		if abort, err := c.process(ctx, itemLog, rec, *target, &summary); abort != "" {
			return abortRun(rec, summary, abort, err)
		}
	}

	rec.Finish("", fmt.Sprintf("submitted %d", summary.Submitted))
	return summary, nil
}

func (c *ImageCollector) process(ctx context.Context, logger *zap.Logger, rec *progress.Recorder, target pipeline.ImageTarget, summary *RunSummary) (string, error) {
	started := c.deps.Now()
	attempt := func(ctx context.Context, query string) ([]string, int, error) {
		urls, err := c.images.SearchImages(ctx, query, c.cfg.Count)
		if err != nil {
			return nil, 0, err
		}
		return urls, len(urls), nil
	}
	res, err := fallback.Search(ctx, c.engine, target.Title, c.cfg.Count, attempt)
	switch {
	case err == nil:
	case isCanceled(ctx, err):
		return AbortCanceled, err
	case errors.Is(err, pipeline.ErrQuotaExceeded):
		logger.Warn("image quota exhausted; stopping run", zap.Error(err))
		summary.Failed++
		rec.Failed(target.ID, target.Title, AbortQuota, err)
		return AbortQuota, err
	default:
		logger.Error("image search failed", zap.Error(err))
		c.retire(ctx, logger, target.ID, summary)
		summary.Failed++
		rec.Failed(target.ID, target.Title, reasonSearchFailed, err)
		return "", nil
	}

	images := res.Value
	if len(images) > c.cfg.Count {
		images = images[:c.cfg.Count]
	}
	if len(images) == 0 {
		logger.Info("no images found")
		c.markCollected(ctx, logger, target.ID)
		summary.Skipped++
		rec.Skipped(target.ID, target.Title, reasonNoImages)
		return "", nil
	}

	if err := c.store.SubmitImages(ctx, pipeline.ImageSet{KeywordID: target.ID, Images: images}); err != nil {
		if isCanceled(ctx, err) {
			return AbortCanceled, err
		}
		logger.Error("submit images failed", zap.Error(err))
		c.markCollected(ctx, logger, target.ID)
		summary.Failed++
		rec.Failed(target.ID, target.Title, reasonSubmitFailed, err)
		return "", nil
	}
	c.markCollected(ctx, logger, target.ID)
	summary.Submitted++
	logger.Info("images submitted", zap.Int("count", len(images)), zap.String("query", res.Query))
	rec.Done(target.ID, target.Title, "", c.deps.Now().Sub(started))
	return "", nil
}

// retire deactivates the keyword and marks its images collected so the
// store stops handing it out.
func (c *ImageCollector) retire(ctx context.Context, logger *zap.Logger, id int64, summary *RunSummary) {
	deactivate(ctx, c.store, logger, id, summary)
	c.markCollected(ctx, logger, id)
}

func (c *ImageCollector) markCollected(ctx context.Context, logger *zap.Logger, id int64) {
	if err := c.store.MarkImagesCollected(ctx, id); err != nil {
		logger.Warn("mark images collected failed", zap.Error(err))
	}
}
