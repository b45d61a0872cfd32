package handlers

import (
	"context"
	"net/http"
	"testing"
	"time"

	"skimeister/internal/cache"
	"skimeister/internal/cleanup"
	"skimeister/internal/config"
	"skimeister/internal/logging"
	"skimeister/internal/models"
	"skimeister/internal/ratelimit"
	"skimeister/internal/scheduler"
	"skimeister/internal/scraper"
)

type fakeTrigger struct {
	err     error
	running bool
	calls   int
}

func (f *fakeTrigger) RunNow() error {
	f.calls++
	return f.err
}

func (f *fakeTrigger) IsRunning() bool { return f.running }

type fakeResortScraper struct {
	resort *models.Resort
	err    error
	slug   string
}

func (f *fakeResortScraper) ScrapeResort(_ context.Context, slug, _ string) (*models.Resort, error) {
	f.slug = slug
	return f.resort, f.err
}

type fakeRuns struct {
	runs []models.ScrapeRun
}

func (f *fakeRuns) RecentScrapeRuns(_ context.Context, limit int) ([]models.ScrapeRun, error) {
	if limit < len(f.runs) {
		return f.runs[:limit], nil
	}
	return f.runs, nil
}

type fakeCache struct{}

func (fakeCache) Stats() cache.Stats {
	return cache.Stats{Hits: 3, Misses: 1, HitRate: 0.75, TTLSeconds: 86400}
}

func newAdminEnv(t *testing.T, deps AdminDeps, limiter *ratelimit.RateLimiter) *testEnv {
	t.Helper()
	deps.Logger = logging.Discard()
	env := newTestEnv(t)
	deps.DB = env.db.DB()
	env.router = NewRouter(config.ServerConfig{}, env.resorts, NewAdminHandler(deps), limiter, logging.Discard())
	return env
}

func TestTriggerScrape(t *testing.T) {
	trigger := &fakeTrigger{}
	env := newAdminEnv(t, AdminDeps{Trigger: trigger}, nil)

	w, body := env.do(t, http.MethodPost, "/api/admin/scrape")
	if w.Code != http.StatusAccepted || body["success"] != true {
		t.Fatalf("expected 202, got %d %v", w.Code, body)
	}

	trigger.err = scheduler.ErrRunInProgress
	w, body = env.do(t, http.MethodPost, "/api/admin/scrape")
	if w.Code != http.StatusConflict || body["success"] != false {
		t.Fatalf("expected 409, got %d %v", w.Code, body)
	}
	if trigger.calls != 2 {
		t.Fatalf("expected 2 trigger calls, got %d", trigger.calls)
	}
}

func TestTriggerScrapeWithoutScheduler(t *testing.T) {
	env := newAdminEnv(t, AdminDeps{}, nil)

	w, _ := env.do(t, http.MethodPost, "/api/admin/scrape")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
}

func TestScrapeResortEndpoint(t *testing.T) {
	lat, lng := 46.8, 9.8
	fake := &fakeResortScraper{resort: &models.Resort{ID: 7, Slug: "davos", Name: "Davos", Country: "Switzerland", Latitude: &lat, Longitude: &lng}}
	env := newAdminEnv(t, AdminDeps{Scraper: fake}, nil)

	w, body := env.do(t, http.MethodPost, "/api/admin/scrape/resort/davos?country=schweiz")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d %v", w.Code, body)
	}
	if fake.slug != "davos" {
		t.Fatalf("expected slug davos, got %q", fake.slug)
	}
	if body["resort"].(map[string]any)["name"] != "Davos" {
		t.Fatalf("expected Davos in response, got %v", body["resort"])
	}

	fake.err = &scheduler.ResortError{Slug: "davos", Stage: scheduler.StageFetch, Err: &scraper.FetchError{URL: "u", Attempts: 3, StatusCode: 503}}
	w, _ = env.do(t, http.MethodPost, "/api/admin/scrape/resort/davos")
	if w.Code != http.StatusBadGateway {
		t.Fatalf("expected 502 for fetch failure, got %d", w.Code)
	}

	fake.err = &scheduler.ResortError{Slug: "davos", Stage: scheduler.StageParse, Err: &scraper.ParseError{Slug: "davos", Reason: "no resort title"}}
	w, _ = env.do(t, http.MethodPost, "/api/admin/scrape/resort/davos")
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for parse failure, got %d", w.Code)
	}
}

func TestScrapeStatusAndRuns(t *testing.T) {
	finished := time.Date(2026, 1, 2, 2, 5, 0, 0, time.UTC)
	runs := &fakeRuns{runs: []models.ScrapeRun{
		{RunID: "b", Status: models.ScrapeRunCompleted, StartedAt: finished.Add(-5 * time.Minute), FinishedAt: &finished},
		{RunID: "a", Status: models.ScrapeRunFailed},
	}}
	env := newAdminEnv(t, AdminDeps{Trigger: &fakeTrigger{running: true}, Runs: runs}, nil)

	_, body := env.do(t, http.MethodGet, "/api/admin/scrape/status")
	if body["running"] != true {
		t.Fatalf("expected running, got %v", body)
	}
	if body["last_run"].(map[string]any)["run_id"] != "b" {
		t.Fatalf("expected last run b, got %v", body["last_run"])
	}

	_, body = env.do(t, http.MethodGet, "/api/admin/scrape/runs?limit=5")
	if body["count"].(float64) != 2 {
		t.Fatalf("expected 2 runs, got %v", body["count"])
	}
}

func TestAdminStats(t *testing.T) {
	env := newAdminEnv(t, AdminDeps{}, nil)

	_, body := env.do(t, http.MethodGet, "/api/admin/stats")
	resorts := body["stats"].(map[string]any)["resorts"].(map[string]any)
	if resorts["total"].(float64) != 4 || resorts["with_location"].(float64) != 3 {
		t.Fatalf("unexpected resort stats %v", resorts)
	}
	byStatus := resorts["by_status"].(map[string]any)
	if byStatus["open"].(float64) != 1 || byStatus["partial"].(float64) != 1 {
		t.Fatalf("unexpected status counts %v", byStatus)
	}
}

func TestCacheAndRateLimitStats(t *testing.T) {
	limiter := ratelimit.NewRateLimiter(10, 0, 0, true)
	breaker := scraper.NewCircuitBreaker(3, time.Minute, logging.Discard())
	env := newAdminEnv(t, AdminDeps{
		Cache:       fakeCache{},
		APILimiter:  limiter,
		HostLimiter: ratelimit.NewHostLimiter(2 * time.Second),
		Breaker:     breaker,
	}, limiter)

	_, body := env.do(t, http.MethodGet, "/api/admin/cache/stats")
	if body["cache"].(map[string]any)["hits"].(float64) != 3 {
		t.Fatalf("expected cache hits, got %v", body["cache"])
	}

	_, body = env.do(t, http.MethodGet, "/api/admin/ratelimit/stats")
	if body["host_interval_seconds"].(float64) != 2 {
		t.Fatalf("expected 2s host interval, got %v", body["host_interval_seconds"])
	}
	if body["breaker"].(map[string]any)["open"] != false {
		t.Fatalf("expected closed breaker, got %v", body["breaker"])
	}
	if _, ok := body["api"]; !ok {
		t.Fatalf("expected api limiter stats, got %v", body)
	}
}

func TestScrapeRoutesAreRateLimited(t *testing.T) {
	limiter := ratelimit.NewRateLimiter(1, 0, 0, true)
	env := newAdminEnv(t, AdminDeps{Trigger: &fakeTrigger{}}, limiter)

	w, _ := env.do(t, http.MethodPost, "/api/admin/scrape")
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected first request accepted, got %d", w.Code)
	}
	w, body := env.do(t, http.MethodPost, "/api/admin/scrape")
	if w.Code != http.StatusTooManyRequests || body["success"] != false {
		t.Fatalf("expected 429, got %d %v", w.Code, body)
	}

	w, _ = env.do(t, http.MethodGet, "/api/resorts")
	if w.Code != http.StatusOK {
		t.Fatalf("expected public routes to be unlimited, got %d", w.Code)
	}
}

type fakeCleaner struct {
	cfg cleanup.Config
}

func (f *fakeCleaner) Run(_ context.Context, cfg cleanup.Config) (*cleanup.Result, error) {
	f.cfg = cfg
	return &cleanup.Result{Snapshots: 2, DryRun: cfg.DryRun}, nil
}

func TestRunCleanupDefaultsToDryRun(t *testing.T) {
	cleaner := &fakeCleaner{}
	env := newAdminEnv(t, AdminDeps{Cleanup: cleaner}, nil)

	w, body := env.do(t, http.MethodPost, "/api/admin/cleanup")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d %v", w.Code, body)
	}
	if !cleaner.cfg.DryRun || cleaner.cfg.SnapshotRetentionDays != 365 {
		t.Fatalf("expected default dry run config, got %+v", cleaner.cfg)
	}
	if body["result"].(map[string]any)["snapshots"].(float64) != 2 {
		t.Fatalf("unexpected result %v", body["result"])
	}
}
