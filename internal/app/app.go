package app

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"skimeister/internal/cache"
	"skimeister/internal/cleanup"
	"skimeister/internal/config"
	"skimeister/internal/database"
	"skimeister/internal/handlers"
	"skimeister/internal/ratelimit"
	"skimeister/internal/scheduler"
	"skimeister/internal/scraper"
	"skimeister/internal/search"
	"skimeister/internal/snapshot"
)

// App holds the wired services shared by the API server and the scrape CLI
type App struct {
	Config    *config.Config
	Logger    *logrus.Logger
	DB        *database.GormDB
	Pages     *cache.PageCache
	Hosts     *ratelimit.HostLimiter
	Breaker   *scraper.CircuitBreaker
	Snapshots *snapshot.Service
	Index     *search.NameIndex
	Search    *search.Service
	Runner    *scheduler.Runner

	closers []func() error
}

// New opens the database and the page cache and wires the scraping and
// search services on top of them
func New(cfg *config.Config, logger *logrus.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: logger}

	db, err := database.Open(cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	a.DB = db
	a.closers = append(a.closers, db.Close)

	if err := db.InitSchema(); err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	store, err := a.openCacheStore()
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Hosts = ratelimit.NewHostLimiter(cfg.Scraper.GetRequestDelay())
	a.Breaker = scraper.NewCircuitBreaker(cfg.Scraper.BreakerThreshold, cfg.Scraper.GetBreakerReset(), logger)
	var fetcher cache.Fetcher
	if cfg.Scraper.FetchMode == "browser" {
		fetcher = scraper.NewBrowserFetcher(cfg.Scraper, a.Hosts, a.Breaker, logger)
	} else {
		fetcher = scraper.NewHTTPFetcher(scraper.FetcherConfigFrom(cfg.Scraper), a.Hosts, a.Breaker, logger)
	}
	a.Pages = cache.New(store, fetcher, cfg.Cache.GetTTL(), logger)

	a.Snapshots = snapshot.NewService(db.DB())

	var names search.NameSearcher
	var indexer scheduler.Indexer
	if host := cfg.Search.Meilisearch.Host; host != "" {
		a.Index = search.NewNameIndex(host, cfg.Search.Meilisearch.APIKey, cfg.Search.Meilisearch.Index)
		if err := a.Index.InitIndex(); err != nil {
			logger.WithField("component", "search").WithError(err).Warn("failed to initialize name index")
		}
		names, indexer = a.Index, a.Index
	}
	a.Search = search.NewService(db, names, logger)

	var forecaster scheduler.Forecaster
	if cfg.Scraper.ForecastFallback {
		forecaster = scraper.NewOpenMeteo(cfg.Scraper.OpenMeteoURL, a.Pages)
	}
	a.Runner = scheduler.NewRunner(a.Pages, scraper.NewBergfex(cfg.Scraper.BaseURL), db, a.Snapshots,
		forecaster, indexer, scheduler.RunnerConfigFrom(cfg.Scraper), logger)

	logger.WithFields(logrus.Fields{
		"database":   cfg.Database.Type,
		"cache":      cfg.Cache.Backend,
		"fetch_mode": cfg.Scraper.FetchMode,
		"name_index": a.Index != nil,
	}).Info("services initialized")
	return a, nil
}

func (a *App) openCacheStore() (cache.Store, error) {
	switch a.Config.Cache.Backend {
	case "sql":
		store, err := cache.NewSQLStore(a.Config.Cache.SQL.Driver, a.Config.Cache.SQL.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to open cache database: %w", err)
		}
		a.closers = append(a.closers, store.Close)
		return store, nil
	default:
		store, err := cache.NewFileStore(a.Config.Cache.Dir)
		if err != nil {
			return nil, fmt.Errorf("failed to open cache directory: %w", err)
		}
		return store, nil
	}
}

// RadiusLimits returns the configured search radius bounds
func (a *App) RadiusLimits() search.RadiusLimits {
	return search.RadiusLimits{
		DefaultKm: a.Config.Search.DefaultRadiusKm,
		MinKm:     a.Config.Search.MinRadiusKm,
		MaxKm:     a.Config.Search.MaxRadiusKm,
	}
}

// Handlers builds the public and admin handlers. sched may be nil.
func (a *App) Handlers(sched *scheduler.Scheduler, apiLimiter *ratelimit.RateLimiter) (*handlers.ResortHandler, *handlers.AdminHandler) {
	resorts := handlers.NewResortHandler(a.Search, a.DB, a.Snapshots, a.RadiusLimits(), a.Logger)

	deps := handlers.AdminDeps{
		DB:          a.DB.DB(),
		Scraper:     a.Runner,
		Runs:        a.DB,
		Cache:       a.Pages,
		Cleanup:     cleanup.NewService(a.DB.DB(), a.Logger),
		APILimiter:  apiLimiter,
		HostLimiter: a.Hosts,
		Breaker:     a.Breaker,
		Logger:      a.Logger,
	}
	if sched != nil {
		deps.Trigger = sched
	}
	return resorts, handlers.NewAdminHandler(deps)
}

// Close releases the database and cache connections
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.Logger.WithError(err).Warn("failed to close resource")
		}
	}
	a.closers = nil
}
