package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"MorningPulse/internal/config"
	"MorningPulse/internal/dedup"
	"MorningPulse/internal/domain"
	"MorningPulse/internal/enrich"
	"MorningPulse/internal/health"
	"MorningPulse/internal/infrastructure/parser"
	"MorningPulse/internal/infrastructure/scheduler"
	"MorningPulse/internal/infrastructure/storage"
	"MorningPulse/internal/infrastructure/telegram"
	"MorningPulse/internal/infrastructure/webhook"
	"MorningPulse/internal/logging"
	"MorningPulse/internal/ports"
	"MorningPulse/internal/scanner"
	"MorningPulse/internal/scoring"
	"MorningPulse/internal/selection"
	"MorningPulse/internal/usecase"
)

const shutdownTimeout = 30 * time.Second

// Options tweak how the application is assembled.
type Options struct {
	// DryRun prints the digest to Out instead of posting it.
	DryRun bool
	Out    io.Writer
}

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg       config.Config
	logger    *slog.Logger
	pipeline  *usecase.Pipeline
	scheduler *usecase.Scheduler
	closers   []func() error
	manual    sync.WaitGroup
}

// New assembles every adapter and loads the fingerprint cache.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger, opts Options) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level, cfg.Logging.Format)
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	a := &Application{cfg: cfg, logger: baseLogger}
	loc := cfg.Scheduler.Location()

	tracker := health.NewTracker(cfg.Health.Cooldown, health.WithLogger(baseLogger.With("component", "health")))

	fetcher := parser.NewFetcher(
		&http.Client{Timeout: cfg.Ingestion.RequestTimeout},
		cfg.Ingestion.MaxConcurrentRequests,
		cfg.Ingestion.UserAgent,
	)
	registry := scanner.NewRegistry()
	registry.Register(parser.NewNitterScanner(fetcher, cfg.Ingestion.MaxAttempts, cfg.Ingestion.MaxItemsPerSource, baseLogger.With("component", "scanner.nitter")))
	registry.Register(parser.NewFeedScanner(fetcher, cfg.Ingestion.MaxItemsPerSource, baseLogger.With("component", "scanner.rss")))
	registry.Register(parser.NewCryptoPanicScanner(fetcher, cfg.CryptoPanic.Endpoint, cfg.CryptoPanic.APIKey, 0, baseLogger.With("component", "scanner.cryptopanic")))

	source := parser.NewStrategySource(registry, cfg.Sites, parser.SourceOptions{
		KOLs:        cfg.KOLs,
		Gate:        tracker,
		FamilyDelay: cfg.Ingestion.FamilyDelay,
		Concurrency: cfg.Ingestion.MaxConcurrentRequests,
		Logger:      baseLogger.With("component", "source"),
	})

	store, err := a.openStore(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	cache := dedup.NewCache(store, dedup.Options{
		Threshold:  cfg.Dedup.Threshold,
		WindowDays: cfg.Dedup.WindowDays,
		Location:   loc,
		Logger:     baseLogger.With("component", "dedup"),
	})
	if err := cache.Load(ctx, time.Now()); err != nil {
		a.Close()
		return nil, fmt.Errorf("load fingerprints: %w", err)
	}

	engine, err := scoring.NewEngine(cfg.Scoring, baseLogger.With("component", "scoring"))
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("scoring config: %w", err)
	}

	enricher := enrich.New(enrich.Options{
		KOLs:             cfg.KOLs,
		OfficialSources:  cfg.OfficialSources,
		ClusterThreshold: cfg.Dedup.Threshold,
		Logger:           baseLogger.With("component", "enrich"),
	})

	tg := cfg.Notifications.Telegram
	notifier := telegram.NewNotifier(tg.BotToken, tg.ChatID, tg.AdminChatID, telegram.WithLocation(loc))

	var enhancer ports.ArticleEnhancer
	if cfg.Articles.Enabled {
		enhancer = parser.NewArticleEnhancer(fetcher, cfg.Articles.SummaryLength,
			cfg.Ingestion.MaxConcurrentRequests, baseLogger.With("component", "articles"))
	}

	var publisher ports.Publisher = notifier
	if opts.DryRun {
		publisher = &digestPrinter{out: opts.Out, notifier: notifier}
	}

	reporters := usecase.MultiReporter{usecase.NewLogReporter(baseLogger.With("component", "report"))}
	if tg.AdminChatID != "" && !opts.DryRun {
		reporters = append(reporters, notifier)
	}
	if cfg.Report.WebhookURL != "" {
		reporters = append(reporters, webhook.NewReporter(cfg.Report))
	}

	a.pipeline = usecase.NewPipeline(usecase.PipelineDeps{
		Source:    source,
		Enricher:  enricher,
		Engine:    engine,
		Cache:     cache,
		Selector:  selection.NewSelector(cfg.Selection, baseLogger.With("component", "selection")),
		Enhancer:  enhancer,
		Publisher: publisher,
		Reporter:  reporters,
		Health:    tracker,
		Logger:    baseLogger.With("component", "pipeline"),
		DryRun:    opts.DryRun,
	})

	hour, minute, err := cfg.Scheduler.Clock()
	if err != nil {
		a.Close()
		return nil, err
	}
	driver := scheduler.NewDailyScheduler(hour, minute, loc, baseLogger.With("component", "scheduler"))
	a.scheduler = usecase.NewScheduler(driver, a.pipeline, baseLogger.With("component", "scheduler"))

	return a, nil
}

// RunOnce performs a single manual pipeline execution.
func (a *Application) RunOnce(ctx context.Context) (domain.HealthReport, error) {
	return a.scheduler.TriggerNow(ctx)
}

// Serve starts the daily schedule and blocks until ctx is cancelled. SIGHUP
// triggers an immediate run.
func (a *Application) Serve(ctx context.Context) error {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	return a.serve(ctx, hup)
}

// serve returns only after the scheduler stopped and every manual run
// finished, so Close never races an in-flight run.
func (a *Application) serve(ctx context.Context, triggers <-chan os.Signal) error {
	if err := a.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	a.logger.Info("scheduler started", "time", a.cfg.Scheduler.Time, "timezone", a.cfg.Scheduler.Location().String())

	for {
		select {
		case <-ctx.Done():
			stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			a.logger.Info("shutting down")
			err := a.scheduler.Stop(stopCtx)
			a.manual.Wait()
			return err
		case <-triggers:
			a.manual.Add(1)
			go func() {
				defer a.manual.Done()
				a.manualRun(ctx)
			}()
		}
	}
}

func (a *Application) manualRun(ctx context.Context) {
	a.logger.Info("manual trigger received")
	if _, err := a.scheduler.TriggerNow(ctx); err != nil {
		if errors.Is(err, usecase.ErrRunInProgress) {
			a.logger.Warn("manual trigger ignored", "reason", err)
			return
		}
		a.logger.Error("manual run failed", "error", err)
	}
}

// Close releases database and cache connections.
func (a *Application) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *Application) openStore(ctx context.Context) (ports.FingerprintStore, error) {
	dc := a.cfg.Dedup
	switch dc.Store {
	case "", "file":
		return storage.NewFileFingerprints(dc.Path), nil
	case "postgres":
		db, err := sql.Open("postgres", a.cfg.Database.DSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		a.closers = append(a.closers, db.Close)
		if err := db.PingContext(ctx); err != nil {
			return nil, fmt.Errorf("ping postgres: %w", err)
		}
		store, err := storage.NewPostgresFingerprints(db, dc.Table)
		if err != nil {
			return nil, err
		}
		if err := store.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		return store, nil
	case "redis":
		client, err := storage.ConnectRedis(ctx, a.cfg.Redis.URL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, client.Close)
		retention := dc.Window() + 24*time.Hour
		return storage.NewRedisFingerprints(client, dc.KeyPrefix, retention), nil
	default:
		return nil, fmt.Errorf("unknown fingerprint store %q", dc.Store)
	}
}

// digestPrinter writes the rendered digest instead of posting it.
type digestPrinter struct {
	out      io.Writer
	notifier *telegram.Notifier
}

func (d *digestPrinter) Publish(_ context.Context, set domain.PublishSet) error {
	_, err := fmt.Fprintln(d.out, d.notifier.FormatDigest(set, time.Now()))
	return err
}
