// Package service exposes the two entry points callers consume: crawl a
// source into the store, and download stored charts. REST or CLI layers
// marshal these calls; no further logic belongs above this package.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"chartdex/downloader"
	"chartdex/httpclient"
	"chartdex/models"
	"chartdex/scraper"
	"chartdex/store"
	"chartdex/strategy"
)

// Fetcher is the transport capability shared by the crawler and the
// downloader. *httpclient.Client satisfies it.
type Fetcher interface {
	Get(ctx context.Context, url string, extraHeaders map[string]string) (*httpclient.Response, error)
}

// existenceCacheSize bounds the in-memory id cache that short-circuits
// store existence checks during a crawl.
const existenceCacheSize = 4096

// defaultScrapeInterval feeds ScrapeResult.NextScrapeTime.
const defaultScrapeInterval = 24 * time.Hour

// Service wires the orchestrator, store, and downloader together.
type Service struct {
	store        store.ChartStore
	orchestrator *scraper.Orchestrator
	downloader   *downloader.Downloader
	seen         *lru.Cache[string, struct{}]
}

// New builds the service. Either metrics argument may be nil.
func New(chartStore store.ChartStore, client Fetcher, crawlMetrics *scraper.Metrics, dlMetrics *downloader.Metrics) *Service {
	seen, _ := lru.New[string, struct{}](existenceCacheSize)
	return &Service{
		store:        chartStore,
		orchestrator: scraper.New(client, chartStore, crawlMetrics),
		downloader:   downloader.New(client, chartStore, dlMetrics),
		seen:         seen,
	}
}

// ScrapeSource crawls src and upserts every validated chart. Soft
// failures (page errors, store warnings) are embedded in the result; a
// nil result with a non-nil error means the crawl itself failed hard.
func (s *Service) ScrapeSource(ctx context.Context, src models.Source, opts scraper.Options) (*models.ScrapeResult, error) {
	if !src.Enabled {
		return nil, fmt.Errorf("source %q is disabled", src.Name)
	}
	strat, err := strategy.ForSource(src)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	pagesVisited := 0
	innerProgress := opts.Progress
	opts.Progress = func(p models.ScrapingProgress) {
		if p.CurrentPage > pagesVisited {
			pagesVisited = p.CurrentPage
		}
		if innerProgress != nil {
			innerProgress(p)
		}
	}

	charts, pageErrors, err := s.orchestrator.Crawl(ctx, src, strat, opts)
	if err != nil {
		return nil, err
	}

	result := &models.ScrapeResult{
		SourceName:     src.Name,
		ChartsFound:    len(charts),
		PagesVisited:   pagesVisited,
		Errors:         pageErrors,
		NextScrapeTime: time.Now().Add(defaultScrapeInterval),
	}

	for _, chart := range charts {
		added, err := s.upsertChart(ctx, chart, opts.SkipExisting)
		if err != nil {
			// Store failures degrade to warnings; the rest of the batch
			// still lands.
			result.Errors = append(result.Errors, fmt.Sprintf("store %s: %v", chart.ID, err))
			continue
		}
		if added {
			result.ChartsAdded++
		} else {
			result.ChartsDuplicated++
		}
	}

	result.Duration = time.Since(start)
	slog.Info("scrape finished",
		slog.String("source", src.Name),
		slog.Int("found", result.ChartsFound),
		slog.Int("added", result.ChartsAdded),
		slog.Int("duplicated", result.ChartsDuplicated),
		slog.Int("errors", len(result.Errors)),
		slog.Duration("duration", result.Duration),
	)
	return result, nil
}

// upsertChart reports whether the chart was new. The LRU cache fronts the
// store's existence check so long crawls do not round-trip for every
// repeated post.
func (s *Service) upsertChart(ctx context.Context, chart *models.Chart, skipExisting bool) (bool, error) {
	exists := false
	if _, ok := s.seen.Get(chart.ID); ok {
		exists = true
	} else {
		var err error
		exists, err = s.store.Exists(ctx, chart.ID)
		if err != nil {
			return false, err
		}
	}

	if exists {
		if !skipExisting {
			if err := s.store.Upsert(ctx, chart); err != nil {
				return false, err
			}
		}
		return false, nil
	}

	if err := s.store.Upsert(ctx, chart); err != nil {
		return false, err
	}
	s.seen.Add(chart.ID, struct{}{})
	return true, nil
}

// DownloadCharts fetches the given chart IDs through the bounded pool.
func (s *Service) DownloadCharts(ctx context.Context, chartIDs []string, opts downloader.Options) (*models.DownloadResult, error) {
	if len(chartIDs) == 0 {
		return nil, fmt.Errorf("no chart ids given")
	}
	return s.downloader.DownloadCharts(ctx, chartIDs, opts)
}

// Search proxies store search for presentation layers.
func (s *Service) Search(ctx context.Context, query string, limit int) ([]*models.Chart, error) {
	return s.store.Search(ctx, query, limit)
}
