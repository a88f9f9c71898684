// Package app initializes and holds long-lived application services, acting as a dependency injection container.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/JakeFAU/blogi-collector/internal/api"
	"github.com/JakeFAU/blogi-collector/internal/browser"
	"github.com/JakeFAU/blogi-collector/internal/clock/system"
	"github.com/JakeFAU/blogi-collector/internal/collect"
	"github.com/JakeFAU/blogi-collector/internal/config"
	"github.com/JakeFAU/blogi-collector/internal/contentstore"
	"github.com/JakeFAU/blogi-collector/internal/extract"
	"github.com/JakeFAU/blogi-collector/internal/fallback"
	collyfetcher "github.com/JakeFAU/blogi-collector/internal/fetcher/colly"
	"github.com/JakeFAU/blogi-collector/internal/id/uuid"
	"github.com/JakeFAU/blogi-collector/internal/jobs"
	"github.com/JakeFAU/blogi-collector/internal/metrics"
	"github.com/JakeFAU/blogi-collector/internal/nlp"
	"github.com/JakeFAU/blogi-collector/internal/policy/ratelimit"
	"github.com/JakeFAU/blogi-collector/internal/progress"
	"github.com/JakeFAU/blogi-collector/internal/progress/sinks"
	"github.com/JakeFAU/blogi-collector/internal/provider/kakao"
	"github.com/JakeFAU/blogi-collector/internal/provider/naver"
	"github.com/JakeFAU/blogi-collector/internal/scheduler"
	"github.com/JakeFAU/blogi-collector/internal/storage/postgres"
)

// Step names accepted by RunStep.
const (
	StepKeyword = collect.StepKeyword
	StepArticle = collect.StepArticle
	StepImage   = collect.StepImage
	StepCycle   = "cycle"
)

const recycleTimeout = 30 * time.Second

// Options overrides collaborators that tests replace.
type Options struct {
	// Registerer receives the progress collectors; nil uses the default registry.
	Registerer prometheus.Registerer
	// Launcher starts the shared browser; nil launches headless Chrome.
	Launcher browser.Launcher
	// HTTPClient is shared by the outbound API clients; nil builds one per client.
	HTTPClient *http.Client
}

// App holds all the shared, long-lived services for the application.
// It is built once at startup and handed to the CLI commands.
type App struct {
	cfg    config.Config
	logger *zap.Logger

	pool      *browser.Pool
	hub       *progress.Hub
	ledger    *postgres.Ledger
	registry  *jobs.Registry
	scheduler *scheduler.Scheduler

	keywords *collect.KeywordCollector
	articles *collect.ArticleCollector
	images   *collect.ImageCollector

	server     *api.Server
	httpServer *http.Server
}

// GetLogger returns the shared zap logger.
func (a *App) GetLogger() *zap.Logger {
	return a.logger
}

// GetScheduler exposes the collection cycle scheduler.
func (a *App) GetScheduler() *scheduler.Scheduler {
	return a.scheduler
}

// GetRegistry exposes the article job registry.
func (a *App) GetRegistry() *jobs.Registry {
	return a.registry
}

// Handler returns the HTTP surface.
func (a *App) Handler() http.Handler {
	return a.server.Handler()
}

// NewApp creates and initializes every service from cfg. It fails fast when a
// critical service cannot be initialized.
func NewApp(ctx context.Context, cfg config.Config, logger *zap.Logger, opts Options) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("Initializing application services...")
	metrics.Init()

	a := &App{cfg: cfg, logger: logger}

	a.pool = browser.New(browser.Config{
		MaxContexts:     cfg.Browser.MaxContexts,
		NavTimeout:      cfg.Browser.NavTimeout,
		LoadTimeout:     cfg.Browser.LoadTimeout,
		SelectorTimeout: cfg.Browser.SelectorTimeout,
		ExecPath:        cfg.Browser.ExecPath,
		ShutdownTimeout: cfg.Browser.ShutdownTimeout,
	}, opts.Launcher, logger.Named("browser"))
	if cfg.Browser.Prewarm {
		if err := a.pool.Warmup(ctx); err != nil {
			logger.Warn("browser prewarm failed", zap.Error(err))
		}
	}

	hub, ledger, err := newProgress(ctx, cfg, opts.Registerer, logger)
	if err != nil {
		a.closePartial()
		return nil, err
	}
	a.hub, a.ledger = hub, ledger

	limiter := ratelimit.New(ratelimit.Config{
		HostRPS: map[string]float64{
			hostOf(cfg.Naver.BaseURL): cfg.Naver.RPS,
			hostOf(cfg.Kakao.BaseURL): cfg.Kakao.RPS,
		},
	})
	search := naver.New(naver.Config{
		BaseURL:      cfg.Naver.BaseURL,
		ClientID:     cfg.Naver.ClientID,
		ClientSecret: cfg.Naver.ClientSecret,
	}, opts.HTTPClient, limiter, logger.Named("naver"))
	images := kakao.New(kakao.Config{
		BaseURL:    cfg.Kakao.BaseURL,
		RestAPIKey: cfg.Kakao.RestAPIKey,
	}, opts.HTTPClient, limiter, logger.Named("kakao"))
	store := contentstore.New(contentstore.Config{
		BaseURL:    cfg.ContentStore.BaseURL,
		Secret:     cfg.ContentStore.Secret,
		Timeout:    cfg.ContentStore.Timeout,
		MaxRetries: cfg.ContentStore.MaxRetries,
	}, opts.HTTPClient, logger.Named("content_store"))

	tokenizer := nlp.New()
	validator := extract.Validator{MinLength: cfg.Collect.MinContentLength, Nouns: tokenizer}
	static := collyfetcher.New(collyfetcher.Config{Timeout: cfg.Browser.NavTimeout}, ratelimit.New(ratelimit.Config{}))
	news := extract.NewExtractor(validator, logger.Named("extract.news"),
		extract.NewStaticStrategy(static, extract.NewsSelectors()),
		extract.NewHeadlessStrategy(a.pool, extract.NewsSelectors()),
	)
	blog := extract.NewExtractor(validator, logger.Named("extract.blog"),
		extract.NewHeadlessStrategy(a.pool, extract.BlogSelectors()),
		extract.NewFrameStrategy(a.pool, extract.BlogSelectors()),
	)

	ids := uuid.New()
	deps := collect.Deps{
		Emitter: a.hub,
		RunIDs:  ids,
		Sweeper: a.pool,
		Logger:  logger.Named("collect"),
	}
	a.keywords = collect.NewKeywordCollector(collect.KeywordConfig{
		Categories: keywordCategories(cfg),
		Pause:      cfg.Collect.CategoryPause,
		Location:   cfg.Location(),
	}, a.pool, store, deps)
	a.articles = collect.NewArticleCollector(
		collect.ArticleConfig{Categories: cfg.CategoryKinds()},
		store,
		search,
		fallback.New(tokenizer,
			fallback.WithMaxAttempts(cfg.Fallback.MaxAttempts),
			fallback.WithLogger(logger),
			fallback.WithName(collect.StepArticle),
		),
		news,
		blog,
		deps,
	)
	a.images = collect.NewImageCollector(
		collect.ImageConfig{Count: cfg.Fallback.ImageCount},
		store,
		images,
		fallback.New(tokenizer,
			fallback.WithMaxAttempts(cfg.Fallback.MaxAttempts),
			fallback.WithLogger(logger),
			fallback.WithName(collect.StepImage),
		),
		deps,
	)

	a.registry = jobs.New(jobs.Config{
		TTL:            cfg.Jobs.TTL,
		MaxEntries:     cfg.Jobs.MaxEntries,
		RecycleTimeout: recycleTimeout,
	}, a.articles.Run, a.pool, ids, system.New(), logger.Named("jobs"))

	sched, err := scheduler.New(scheduler.Config{
		InitialDelay: cfg.Scheduler.InitialDelay,
		Schedule:     cfg.Scheduler.Schedule,
		MaxJitter:    cfg.Scheduler.MaxJitter,
		PausePoll:    cfg.Scheduler.PausePoll,
		StopTimeout:  cfg.Scheduler.StopTimeout,
	}, []scheduler.Step{
		{Name: StepKeyword, Run: a.runKeywords},
		{Name: StepArticle, Run: a.runArticleJob},
		{Name: StepImage, Run: a.runImages},
	}, logger.Named("scheduler"))
	if err != nil {
		a.closePartial()
		return nil, fmt.Errorf("failed to initialize scheduler: %w", err)
	}
	a.scheduler = sched

	apiDeps := api.Deps{
		Scheduler: a.scheduler,
		Jobs:      a.registry,
		Steps:     a,
		Logger:    logger.Named("api"),
	}
	if a.ledger != nil {
		apiDeps.Runs = a.ledger
	}
	a.server = api.NewServer(api.Config{
		InternalSecret: cfg.Auth.InternalSecret,
		Production:     cfg.IsProduction(),
		RequestTimeout: cfg.Server.RequestTimeout,
	}, apiDeps)
	a.httpServer = &http.Server{
		Addr:              net.JoinHostPort("", strconv.Itoa(cfg.Server.Port)),
		Handler:           a.server.Handler(),
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
	}

	logger.Info("Application services initialized successfully.")
	return a, nil
}

func newProgress(ctx context.Context, cfg config.Config, reg prometheus.Registerer, logger *zap.Logger) (*progress.Hub, *postgres.Ledger, error) {
	promSink, err := sinks.NewPrometheusSink(reg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize progress metrics: %w", err)
	}
	progressSinks := []progress.Sink{sinks.NewLogSink(logger.Named("progress")), promSink}

	var ledger *postgres.Ledger
	if cfg.Database.DSN != "" {
		ledger, err = postgres.NewLedger(ctx, postgres.LedgerConfig{
			DSN:      cfg.Database.DSN,
			MaxConns: cfg.Database.MaxConns,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize run ledger: %w", err)
		}
		if err := ledger.EnsureSchema(ctx); err != nil {
			ledger.Close()
			return nil, nil, fmt.Errorf("failed to prepare run ledger schema: %w", err)
		}
		progressSinks = append(progressSinks, sinks.NewStoreSink(ledger, logger.Named("ledger")))
		logger.Info("Using Postgres run ledger")
	} else {
		logger.Info("No database DSN configured. Collection runs will not be persisted.")
	}

	hub := progress.NewHub(progress.Config{
		BufferSize:     cfg.Progress.BufferSize,
		MaxBatchEvents: cfg.Progress.MaxBatchEvents,
		MaxBatchWait:   cfg.Progress.MaxBatchWait,
		Logger:         logger.Named("progress"),
	}, progressSinks...)
	return hub, ledger, nil
}

// keywordCategories orders the trending categories by name so runs are
// reproducible.
func keywordCategories(cfg config.Config) []collect.Category {
	displays := cfg.CategoryDisplays()
	out := make([]collect.Category, 0, len(displays))
	for name, display := range displays {
		out = append(out, collect.Category{Name: name, Display: display})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

func (a *App) runKeywords(ctx context.Context) error {
	_, err := a.keywords.Run(ctx)
	return err
}

func (a *App) runImages(ctx context.Context) error {
	_, err := a.images.Run(ctx)
	return err
}

// runArticleJob drives article collection through the registry so the
// browser is recycled afterwards, the same way HTTP-launched jobs are.
func (a *App) runArticleJob(ctx context.Context) error {
	id, err := uuid.New().NewID()
	if err != nil {
		return fmt.Errorf("generate job id: %w", err)
	}
	if err := a.registry.Create(id); err != nil {
		return err
	}
	return a.registry.Run(ctx, id)
}

// RunStep runs one collection step, or a whole cycle, synchronously.
func (a *App) RunStep(ctx context.Context, step string) (collect.RunSummary, error) {
	switch step {
	case StepKeyword:
		return a.keywords.Run(ctx)
	case StepArticle:
		return a.articles.Run(ctx)
	case StepImage:
		return a.images.Run(ctx)
	case StepCycle:
		if !a.scheduler.RunCycle(ctx) {
			return collect.RunSummary{}, collect.ErrRunInProgress
		}
		return collect.RunSummary{}, nil
	default:
		return collect.RunSummary{}, fmt.Errorf("%w: %s", api.ErrUnknownStep, step)
	}
}

// Serve starts the scheduler (when enabled) and the HTTP server, then blocks
// until ctx is cancelled or the server fails.
func (a *App) Serve(ctx context.Context) error {
	if a.cfg.Scheduler.Enabled {
		a.scheduler.Start()
	} else {
		a.logger.Info("Scheduler disabled; collection runs only on demand")
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server listening", zap.String("addr", a.httpServer.Addr))
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		return nil
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	}
}

// Close gracefully shuts down all services in dependency order.
func (a *App) Close(ctx context.Context) {
	a.logger.Info("Closing application services...")
	if a.httpServer != nil {
		if err := a.httpServer.Shutdown(ctx); err != nil {
			a.logger.Warn("Failed to shutdown http server", zap.Error(err))
		}
	}
	if a.scheduler != nil {
		a.scheduler.Stop(true)
	}
	if a.registry != nil {
		if err := a.registry.Close(ctx); err != nil {
			a.logger.Warn("Failed to drain job registry", zap.Error(err))
		}
	}
	a.closePartial()
	a.logger.Info("Application services closed.")
	_ = a.logger.Sync()
}

// closePartial releases the browser, hub and ledger, whichever exist.
func (a *App) closePartial() {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Browser.ShutdownTimeout+time.Second)
	defer cancel()
	if a.pool != nil {
		if err := a.pool.Shutdown(ctx); err != nil {
			a.logger.Warn("Failed to shutdown browser", zap.Error(err))
		}
	}
	if a.hub != nil {
		if err := a.hub.Close(ctx); err != nil {
			a.logger.Warn("Failed to flush progress events", zap.Error(err))
		}
	}
	if a.ledger != nil {
		a.ledger.Close()
	}
}
