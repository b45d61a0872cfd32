package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"skimeister/internal/config"
	"skimeister/internal/database"
	"skimeister/internal/models"
	"skimeister/internal/scraper"
	"skimeister/internal/snapshot"
)

// ErrRunInProgress is returned when a run is triggered while another one
// is still executing
var ErrRunInProgress = errors.New("a scrape run is already in progress")

// maxErrorSummary bounds how many failures are kept on the run row
const maxErrorSummary = 20

// Failure stages
const (
	StageList  = "list"
	StageFetch = "fetch"
	StageParse = "parse"
	StageStore = "store"
)

// Store is the persistence the runner writes to
type Store interface {
	ListResorts(ctx context.Context, country string) ([]models.Resort, error)
	SaveResortData(ctx context.Context, data *database.ResortData) (*models.Resort, error)
	CreateScrapeRun(ctx context.Context, run *models.ScrapeRun) error
	UpdateScrapeRun(ctx context.Context, run *models.ScrapeRun) error
}

// Snapshots records daily conditions history
type Snapshots interface {
	DetectChanges(ctx context.Context, resortID uint, cond *models.Conditions) ([]snapshot.Change, error)
	Record(ctx context.Context, resortID uint, cond *models.Conditions) (*models.ConditionsSnapshot, error)
}

// Forecaster provides forecasts by coordinates
type Forecaster interface {
	Forecast(ctx context.Context, lat, lng float64) ([]models.Forecast, error)
}

// Indexer receives the full resort list after a run
type Indexer interface {
	IndexResorts(resorts []models.Resort) error
}

// RunnerConfig selects what a run covers
type RunnerConfig struct {
	Countries        []string
	ResortLimit      int
	ForecastFallback bool
}

// RunnerConfigFrom converts the scraper section of the app config
func RunnerConfigFrom(cfg config.ScraperConfig) RunnerConfig {
	return RunnerConfig{
		Countries:        cfg.Countries,
		ResortLimit:      cfg.ResortLimit,
		ForecastFallback: cfg.ForecastFallback,
	}
}

// ResortError is a failure to refresh one resort
type ResortError struct {
	Slug  string
	Stage string
	Err   error
}

func (e *ResortError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Stage, e.Slug, e.Err)
}

func (e *ResortError) Unwrap() error {
	return e.Err
}

// Failure is a ResortError as reported to API clients
type Failure struct {
	Slug  string `json:"slug"`
	Stage string `json:"stage"`
	Error string `json:"error"`
}

// RunReport summarizes one run
type RunReport struct {
	RunID          string    `json:"run_id"`
	Trigger        string    `json:"trigger"`
	StartedAt      time.Time `json:"started_at"`
	FinishedAt     time.Time `json:"finished_at"`
	ResortsFound   int       `json:"resorts_found"`
	ResortsScraped int       `json:"resorts_scraped"`
	ResortsFailed  int       `json:"resorts_failed"`
	Failures       []Failure `json:"failures"`
}

// Runner refreshes resorts from the source into the store. Only one run
// executes at a time; writes for a single resort are serialized.
type Runner struct {
	pages      scraper.PageSource
	source     scraper.Source
	store      Store
	snapshots  Snapshots
	forecaster Forecaster
	index      Indexer
	cfg        RunnerConfig
	logger     *logrus.Logger
	now        func() time.Time

	running    atomic.Bool
	background sync.WaitGroup
	locks      keyedMutex
}

// NewRunner creates a runner. snapshots, forecaster and index may be nil.
func NewRunner(pages scraper.PageSource, source scraper.Source, store Store, snapshots Snapshots,
	forecaster Forecaster, index Indexer, cfg RunnerConfig, logger *logrus.Logger) *Runner {
	return &Runner{
		pages:      pages,
		source:     source,
		store:      store,
		snapshots:  snapshots,
		forecaster: forecaster,
		index:      index,
		cfg:        cfg,
		logger:     logger,
		now:        time.Now,
	}
}

// IsRunning reports whether a run is executing
func (r *Runner) IsRunning() bool {
	return r.running.Load()
}

// Run executes a full run and blocks until it finishes. A cancelled ctx
// stops the run between resorts and is returned with the partial report.
func (r *Runner) Run(ctx context.Context, trigger string) (*RunReport, error) {
	if !r.running.CompareAndSwap(false, true) {
		return nil, ErrRunInProgress
	}
	defer r.running.Store(false)
	return r.execute(ctx, trigger)
}

// Start launches a run in the background
func (r *Runner) Start(ctx context.Context, trigger string) error {
	if !r.running.CompareAndSwap(false, true) {
		return ErrRunInProgress
	}
	r.background.Add(1)
	go func() {
		defer r.background.Done()
		defer r.running.Store(false)
		if _, err := r.execute(ctx, trigger); err != nil {
			r.logger.WithField("component", "runner").WithError(err).Warn("background run ended early")
		}
	}()
	return nil
}

// Wait blocks until runs launched with Start have returned
func (r *Runner) Wait() {
	r.background.Wait()
}

func (r *Runner) execute(ctx context.Context, trigger string) (*RunReport, error) {
	report := &RunReport{
		RunID:     uuid.NewString(),
		Trigger:   trigger,
		StartedAt: r.now().UTC(),
		Failures:  []Failure{},
	}
	log := r.logger.WithFields(logrus.Fields{"component": "runner", "run_id": report.RunID})
	log.WithField("trigger", trigger).Info("scrape run started")

	run := &models.ScrapeRun{
		RunID:     report.RunID,
		Trigger:   trigger,
		Status:    models.ScrapeRunRunning,
		StartedAt: report.StartedAt,
	}
	if err := r.store.CreateScrapeRun(context.WithoutCancel(ctx), run); err != nil {
		return nil, fmt.Errorf("failed to record scrape run: %w", err)
	}

	fail := func(slug, stage string, err error) {
		report.Failures = append(report.Failures, Failure{Slug: slug, Stage: stage, Error: err.Error()})
		log.WithFields(logrus.Fields{"slug": slug, "stage": stage}).WithError(err).Warn("resort skipped")
	}

countries:
	for _, country := range r.cfg.Countries {
		if ctx.Err() != nil {
			break
		}
		entries, err := r.listCountry(ctx, country)
		if err != nil {
			fail(country, StageList, err)
			continue
		}
		if r.cfg.ResortLimit > 0 && len(entries) > r.cfg.ResortLimit {
			entries = entries[:r.cfg.ResortLimit]
		}
		report.ResortsFound += len(entries)
		log.WithFields(logrus.Fields{"country": country, "resorts": len(entries)}).Info("resort list loaded")

		for _, entry := range entries {
			if ctx.Err() != nil {
				break countries
			}
			if _, err := r.scrapeResort(ctx, entry, log); err != nil {
				var resortErr *ResortError
				if errors.As(err, &resortErr) {
					fail(entry.Slug, resortErr.Stage, resortErr.Err)
				} else {
					fail(entry.Slug, StageStore, err)
				}
				report.ResortsFailed++
				continue
			}
			report.ResortsScraped++
		}
	}

	if r.index != nil && report.ResortsScraped > 0 && ctx.Err() == nil {
		if err := r.reindex(ctx); err != nil {
			log.WithError(err).Warn("resort name index refresh failed")
		}
	}

	report.FinishedAt = r.now().UTC()
	r.finishRun(ctx, run, report)

	log.WithFields(logrus.Fields{
		"found":    report.ResortsFound,
		"scraped":  report.ResortsScraped,
		"failed":   report.ResortsFailed,
		"duration": report.FinishedAt.Sub(report.StartedAt).String(),
	}).Info("scrape run finished")

	return report, ctx.Err()
}

func (r *Runner) finishRun(ctx context.Context, run *models.ScrapeRun, report *RunReport) {
	finished := report.FinishedAt
	run.FinishedAt = &finished
	run.ResortsFound = report.ResortsFound
	run.ResortsScraped = report.ResortsScraped
	run.ResortsFailed = report.ResortsFailed
	run.Status = models.ScrapeRunCompleted
	if ctx.Err() != nil || (report.ResortsScraped == 0 && len(report.Failures) > 0) {
		run.Status = models.ScrapeRunFailed
	}

	lines := make([]string, 0, min(len(report.Failures), maxErrorSummary))
	for i, f := range report.Failures {
		if i == maxErrorSummary {
			lines = append(lines, fmt.Sprintf("... and %d more", len(report.Failures)-maxErrorSummary))
			break
		}
		lines = append(lines, fmt.Sprintf("%s [%s]: %s", f.Slug, f.Stage, f.Error))
	}
	run.ErrorSummary = strings.Join(lines, "\n")

	// the run row is written even when the run was cancelled
	if err := r.store.UpdateScrapeRun(context.WithoutCancel(ctx), run); err != nil {
		r.logger.WithFields(logrus.Fields{"component": "runner", "run_id": run.RunID}).
			WithError(err).Error("failed to update scrape run")
	}
}

func (r *Runner) listCountry(ctx context.Context, country string) ([]scraper.ResortEntry, error) {
	html, err := r.pages.GetOrFetch(ctx, r.source.ListURL(country))
	if err != nil {
		return nil, err
	}
	return r.source.ParseResortList(html, country)
}

// ScrapeResort refreshes a single resort outside of a run. An empty country
// keeps the stored one.
func (r *Runner) ScrapeResort(ctx context.Context, slug, country string) (*models.Resort, error) {
	entry := scraper.ResortEntry{
		Slug:    slug,
		URL:     r.source.ResortURL(slug),
		Country: scraper.CountryName(country),
	}
	log := r.logger.WithFields(logrus.Fields{"component": "runner", "trigger": "single"})
	return r.scrapeResort(ctx, entry, log)
}

func (r *Runner) scrapeResort(ctx context.Context, entry scraper.ResortEntry, log *logrus.Entry) (*models.Resort, error) {
	unlock := r.locks.lock(entry.Slug)
	defer unlock()

	log = log.WithField("slug", entry.Slug)

	html, err := r.pages.GetOrFetch(ctx, entry.URL)
	if err != nil {
		return nil, &ResortError{Slug: entry.Slug, Stage: StageFetch, Err: err}
	}

	n, err := r.source.Normalize(html, entry.Slug)
	if err != nil {
		return nil, &ResortError{Slug: entry.Slug, Stage: StageParse, Err: err}
	}

	resort := n.Resort
	resort.Slug = entry.Slug
	resort.SourceURL = entry.URL
	if entry.Country != "" {
		resort.Country = entry.Country
	}
	if resort.Name == "" {
		resort.Name = entry.Name
	}
	if resort.Name == "" {
		resort.Name = entry.Slug
	}

	forecasts := n.Forecasts
	if len(forecasts) == 0 {
		forecasts = r.loadForecasts(ctx, entry, &resort, log)
	}

	saved, err := r.store.SaveResortData(ctx, &database.ResortData{
		Resort:     resort,
		Conditions: n.Conditions,
		Pricing:    n.Pricing,
		Forecasts:  forecasts,
	})
	if err != nil {
		return nil, &ResortError{Slug: entry.Slug, Stage: StageStore, Err: err}
	}

	if r.snapshots != nil && n.Conditions != nil {
		r.recordSnapshot(ctx, saved.ID, n.Conditions, log)
	}

	log.WithField("resort_id", saved.ID).Debug("resort refreshed")
	return saved, nil
}

// loadForecasts tries the forecast page, then Open-Meteo. Forecasts are
// optional: failures are logged and yield none.
func (r *Runner) loadForecasts(ctx context.Context, entry scraper.ResortEntry, resort *models.Resort, log *logrus.Entry) []models.Forecast {
	html, err := r.pages.GetOrFetch(ctx, r.source.ForecastURL(entry.URL))
	if err == nil {
		forecasts, err := r.source.ParseForecast(html, r.now())
		if err == nil && len(forecasts) > 0 {
			return forecasts
		}
		if err != nil {
			log.WithError(err).Debug("forecast page unreadable")
		}
	} else {
		log.WithError(err).Debug("forecast page unavailable")
	}

	if !r.cfg.ForecastFallback || r.forecaster == nil || !resort.HasLocation() {
		return nil
	}
	forecasts, err := r.forecaster.Forecast(ctx, *resort.Latitude, *resort.Longitude)
	if err != nil {
		log.WithError(err).Warn("open-meteo forecast failed")
		return nil
	}
	return forecasts
}

func (r *Runner) recordSnapshot(ctx context.Context, resortID uint, cond *models.Conditions, log *logrus.Entry) {
	changes, err := r.snapshots.DetectChanges(ctx, resortID, cond)
	if err != nil {
		log.WithError(err).Warn("failed to detect condition changes")
	}
	for _, c := range changes {
		log.WithFields(logrus.Fields{"field": c.Field, "old": c.OldValue, "new": c.NewValue}).Info("conditions changed")
	}
	if _, err := r.snapshots.Record(ctx, resortID, cond); err != nil {
		log.WithError(err).Warn("failed to record snapshot")
	}
}

func (r *Runner) reindex(ctx context.Context) error {
	resorts, err := r.store.ListResorts(ctx, "")
	if err != nil {
		return err
	}
	return r.index.IndexResorts(resorts)
}

// keyedMutex hands out one mutex per key
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*sync.Mutex)
	}
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}
