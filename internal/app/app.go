// Package app wires the contract-drafting subsystems into a running HTTP
// service.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves HTTP until its context is cancelled, and Shutdown
// releases stores and telemetry.
//
// For testing, inject in-memory stores via functional options
// (WithSessionStore, WithDraftStore). When an option is not provided, New
// creates real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/ovleluv/AIContract-STT/internal/api"
	"github.com/ovleluv/AIContract-STT/internal/classify"
	"github.com/ovleluv/AIContract-STT/internal/config"
	"github.com/ovleluv/AIContract-STT/internal/draft"
	"github.com/ovleluv/AIContract-STT/internal/draftstore"
	"github.com/ovleluv/AIContract-STT/internal/export"
	"github.com/ovleluv/AIContract-STT/internal/gateway"
	"github.com/ovleluv/AIContract-STT/internal/health"
	"github.com/ovleluv/AIContract-STT/internal/language"
	"github.com/ovleluv/AIContract-STT/internal/merge"
	"github.com/ovleluv/AIContract-STT/internal/observe"
	"github.com/ovleluv/AIContract-STT/internal/pipeline"
	"github.com/ovleluv/AIContract-STT/internal/resilience"
	"github.com/ovleluv/AIContract-STT/internal/session"
	"github.com/ovleluv/AIContract-STT/internal/transcript"
)

// startupTimeout bounds the connectivity checks New runs against external
// stores.
const startupTimeout = 10 * time.Second

// pruner is implemented by draft stores that can drop old drafts.
type pruner interface {
	Prune(ctx context.Context, before time.Time) (int64, error)
}

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers
	logLevel  *slog.LevelVar

	telemetry *observe.Telemetry
	metrics   *observe.Metrics
	sessions  session.Store
	drafts    draftstore.Store
	pruner    pruner
	checks    []health.Checker
	pipeline  *pipeline.Pipeline
	handler   http.Handler

	// closers are called in reverse order during Shutdown.
	closers []func(context.Context) error

	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithSessionStore injects a session store instead of creating one from config.
func WithSessionStore(s session.Store) Option {
	return func(a *App) { a.sessions = s }
}

// WithDraftStore injects a draft store instead of creating one from config.
func WithDraftStore(s draftstore.Store) Option {
	return func(a *App) { a.drafts = s }
}

// WithLogLevel hands New the level variable behind the process logger so
// configuration reloads can change it.
func WithLogLevel(v *slog.LevelVar) Option {
	return func(a *App) { a.logLevel = v }
}

// New creates an App by wiring all subsystems together. The providers come
// from main.go (built through the config registry).
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil || providers.LLM == nil {
		return nil, errors.New("app: an LLM provider is required")
	}
	a := &App{cfg: cfg, providers: providers}
	for _, o := range opts {
		o(a)
	}

	tel, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "contractd"})
	if err != nil {
		return nil, fmt.Errorf("app: init telemetry: %w", err)
	}
	a.telemetry = tel
	a.closers = append(a.closers, tel.Shutdown)
	if a.metrics, err = observe.NewMetrics(tel.MeterProvider); err != nil {
		return nil, a.abort(fmt.Errorf("app: init metrics: %w", err))
	}

	if err := a.initSessions(ctx); err != nil {
		return nil, a.abort(fmt.Errorf("app: init sessions: %w", err))
	}
	if err := a.initDrafts(ctx); err != nil {
		return nil, a.abort(fmt.Errorf("app: init drafts: %w", err))
	}
	if err := a.initPipeline(); err != nil {
		return nil, a.abort(fmt.Errorf("app: init pipeline: %w", err))
	}
	a.initHTTP()

	slog.Info("application initialised",
		"catalog", len(a.pipeline.Catalog()),
		"merge_strategy", cfg.Merge.Strategy,
		"export_format", cfg.Export.Format,
		"stt", providers.STT != nil,
	)
	return a, nil
}

// abort releases whatever New already acquired and returns err.
func (a *App) abort(err error) error {
	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()
	if cerr := a.Shutdown(ctx); cerr != nil {
		slog.Warn("cleanup after failed start", "err", cerr)
	}
	return err
}

func (a *App) initSessions(ctx context.Context) error {
	if a.sessions != nil {
		return nil
	}
	sc := a.cfg.Session
	if sc.RedisURL == "" {
		a.sessions = session.NewMemoryStore(sc.TTL)
		slog.Info("using in-memory session store")
		return nil
	}

	var opts []session.RedisOption
	if sc.KeyPrefix != "" {
		opts = append(opts, session.WithKeyPrefix(sc.KeyPrefix))
	}
	store, err := session.NewRedisStore(sc.RedisURL, sc.TTL, opts...)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, func(context.Context) error { return store.Close() })

	pingCtx, cancel := context.WithTimeout(ctx, startupTimeout)
	defer cancel()
	if err := store.Ping(pingCtx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	a.sessions = store
	a.checks = append(a.checks, health.Ping("sessions", store))
	return nil
}

func (a *App) initDrafts(ctx context.Context) error {
	if a.drafts != nil {
		if p, ok := a.drafts.(pruner); ok {
			a.pruner = p
		}
		return nil
	}
	dsn := a.cfg.Store.PostgresDSN
	if dsn == "" {
		a.drafts = draftstore.NewMemoryStore()
		slog.Info("using in-memory draft store")
		return nil
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	a.closers = append(a.closers, func(context.Context) error {
		pool.Close()
		return nil
	})

	initCtx, cancel := context.WithTimeout(ctx, startupTimeout)
	defer cancel()
	if err := pool.Ping(initCtx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	store := draftstore.NewPostgresStore(pool)
	if err := store.Migrate(initCtx); err != nil {
		return err
	}
	a.drafts = store
	a.pruner = store
	a.checks = append(a.checks, health.Ping("drafts", pool))
	return nil
}

func (a *App) initPipeline() error {
	cfg := a.cfg

	gwOpts := []gateway.Option{
		gateway.WithTimeout(cfg.Gateway.Timeout),
		gateway.WithMaxConcurrency(cfg.Gateway.MaxConcurrency),
		gateway.WithMetrics(a.metrics),
	}
	if cfg.Gateway.MaxAttempts > 0 {
		gwOpts = append(gwOpts, gateway.WithRetry(resilience.RetryPolicy{
			MaxAttempts:    cfg.Gateway.MaxAttempts,
			InitialBackoff: orDefault(cfg.Gateway.InitialBackoff, gateway.DefaultInitialBackoff),
			MaxBackoff:     orDefault(cfg.Gateway.MaxBackoff, gateway.DefaultMaxBackoff),
		}))
	}
	gw := gateway.New(a.providers.LLM, gwOpts...)

	strategy, err := merge.ParseStrategy(cfg.Merge.Strategy)
	if err != nil {
		return err
	}
	format, err := export.ParseFormat(cfg.Export.Format)
	if err != nil {
		return err
	}

	pc := cfg.Pipeline
	deps := pipeline.Deps{
		Sessions: a.sessions,
		Language: language.New(gw, a.sessions,
			language.WithFallback(pc.FallbackLanguage),
			language.WithLocks(session.NewKeyedMutex()),
			language.WithMetrics(a.metrics),
		),
		Classifier: classify.New(gw, pc.Catalog),
		Fields:     draft.NewFieldResolver(gw, pc.RequiredFields, a.metrics),
		Generator:  draft.NewGenerator(gw, pc.Template),
		Extractor:  draft.NewExtractor(gw, pc.Extract),
		Analyzer:   draft.NewAnalyzer(gw, pc.Analyze),
		Merger: merge.New(gw, merge.Options{
			Strategy:        strategy,
			FuzzyThreshold:  cfg.Merge.FuzzyThreshold,
			MaxOutputTokens: cfg.Merge.MaxOutputTokens,
			Temperature:     cfg.Merge.Temperature,
			Metrics:         a.metrics,
		}),
		Drafts:   a.drafts,
		Exporter: export.New(format),
		Metrics:  a.metrics,
	}
	if a.providers.STT != nil {
		deps.STT = a.providers.STT
	}
	if t := cfg.STT.CorrectionThreshold; t > 0 {
		deps.Corrector = transcript.New(transcript.WithThreshold(t))
	}
	a.pipeline, err = pipeline.New(deps)
	return err
}

func (a *App) initHTTP() {
	mux := http.NewServeMux()
	api.New(a.pipeline, api.Options{
		CookieName:     a.cfg.Session.CookieName,
		CookieTTL:      a.cfg.Session.TTL,
		SecureCookie:   a.cfg.Session.SecureCookie,
		MaxUploadBytes: a.cfg.STT.MaxUploadBytes,
	}).Register(mux)

	checks := append([]health.Checker{health.Breakers("llm", a.providers.LLM)}, a.checks...)
	if a.providers.STT != nil {
		checks = append(checks, health.Breakers("stt", a.providers.STT))
	}
	health.New(checks...).Register(mux)
	mux.Handle("GET /metrics", a.telemetry.Handler)

	a.handler = observe.Middleware(a.metrics)(mux)
}

// Handler returns the fully wired HTTP handler.
func (a *App) Handler() http.Handler { return a.handler }

// Run serves HTTP on the configured address and prunes old drafts until ctx
// is cancelled. In-flight requests get the configured shutdown timeout to
// finish. Run returns nil after a clean shutdown.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.Server.ListenAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("http server listening", "addr", srv.Addr, "tls", a.cfg.Server.TLS != nil)
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = srv.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			err = srv.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: serve: %w", err)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), orDefault(a.cfg.Server.ShutdownTimeout, config.DefaultShutdownTimeout))
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("app: http shutdown: %w", err)
		}
		return nil
	})
	if a.pruner != nil && a.cfg.Store.Retention > 0 {
		g.Go(func() error {
			a.pruneLoop(gctx)
			return nil
		})
	}
	return g.Wait()
}

// pruneLoop deletes drafts older than the retention window every prune
// interval.
func (a *App) pruneLoop(ctx context.Context) {
	interval := orDefault(a.cfg.Store.PruneInterval, config.DefaultPruneInterval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.pruneOnce(ctx)
		}
	}
}

func (a *App) pruneOnce(ctx context.Context) {
	n, err := a.pruner.Prune(ctx, time.Now().Add(-a.cfg.Store.Retention))
	if err != nil {
		slog.Warn("draft pruning failed", "err", err)
		return
	}
	if n > 0 {
		slog.Info("pruned old drafts", "count", n)
	}
}

// ApplyConfig applies the hot-reloadable parts of a configuration change.
// It is the callback for [config.Watcher].
func (a *App) ApplyConfig(_, _ *config.Config, d config.ConfigDiff) {
	if d.LogLevelChanged && a.logLevel != nil {
		a.logLevel.Set(SlogLevel(d.NewLogLevel))
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.CatalogChanged {
		a.pipeline.SetCatalog(d.NewCatalog)
		slog.Info("contract catalog reloaded", "entries", len(d.NewCatalog))
	}
	if d.MergeChanged {
		s, err := merge.ParseStrategy(d.NewMergeStrategy)
		if err != nil {
			slog.Warn("ignoring merge change", "err", err)
			return
		}
		a.pipeline.ConfigureMerge(s, d.NewFuzzyThreshold)
		slog.Info("merge settings changed", "strategy", s, "fuzzy_threshold", d.NewFuzzyThreshold)
	}
}

// Shutdown releases all subsystems in reverse-init order. It respects the
// context deadline: if ctx expires before all closers finish, remaining
// closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))
		for i := len(a.closers) - 1; i >= 0; i-- {
			if err := ctx.Err(); err != nil {
				slog.Warn("shutdown deadline exceeded", "remaining", i+1)
				errs = append(errs, err)
				return
			}
			if err := a.closers[i](ctx); err != nil {
				errs = append(errs, err)
			}
		}
	})
	return errors.Join(errs...)
}

// SlogLevel maps a configured level to its slog equivalent. Unknown values
// map to info.
func SlogLevel(l config.LogLevel) slog.Level {
	switch l {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func orDefault(d, def time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return def
}
