package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"

	"skimeister/internal/app"
	"skimeister/internal/config"
	"skimeister/internal/logging"
	"skimeister/internal/scheduler"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	country := flag.String("country", "", "comma separated country slugs, overrides the config")
	limit := flag.Int("limit", -1, "maximum resorts per country, 0 for no limit")
	resort := flag.String("resort", "", "refresh a single resort by slug")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config from %s: %v", *configPath, err)
	}
	if *country != "" {
		cfg.Scraper.Countries = splitList(*country)
	}
	if *limit >= 0 {
		cfg.Scraper.ResortLimit = *limit
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to initialize logging: %v", err)
	}

	application, err := app.New(cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to initialize services")
	}
	defer application.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch {
	case *resort != "":
		country := ""
		if len(cfg.Scraper.Countries) > 0 {
			country = cfg.Scraper.Countries[0]
		}
		r, err := application.Runner.ScrapeResort(ctx, *resort, country)
		if err != nil {
			logger.WithError(err).Error("resort refresh failed")
			exit(application, 1)
		}
		logger.WithFields(logrus.Fields{"id": r.ID, "name": r.Name}).Info("resort refreshed")

	default:
		report, err := application.Runner.Run(ctx, scheduler.TriggerCLI)
		if report != nil {
			logger.WithFields(logrus.Fields{
				"run_id":  report.RunID,
				"found":   report.ResortsFound,
				"scraped": report.ResortsScraped,
				"failed":  report.ResortsFailed,
			}).Info("scrape run finished")
			for _, f := range report.Failures {
				logger.WithFields(logrus.Fields{"slug": f.Slug, "stage": f.Stage}).Warn(f.Error)
			}
		}
		if err != nil {
			logger.WithError(err).Error("scrape run aborted")
			exit(application, 1)
		}
		if report.ResortsScraped == 0 && report.ResortsFailed > 0 {
			exit(application, 1)
		}
	}
}

// exit closes the app and terminates with code
func exit(application *app.App, code int) {
	application.Close()
	os.Exit(code)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
