// Package scraper drives the sequential crawl loop: fetch a page, extract
// and validate its charts, record provenance in the ledger, resolve the
// next page, repeat until the archive ends or the page budget runs out.
package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"chartdex/httpclient"
	"chartdex/models"
	"chartdex/strategy"
)

// Fetcher is the page-fetch capability the orchestrator depends on.
type Fetcher interface {
	Get(ctx context.Context, url string, extraHeaders map[string]string) (*httpclient.Response, error)
}

// PageLedger is the slice of the chart store the crawl loop needs: which
// pages were already covered and recording new ones.
type PageLedger interface {
	IsPageScraped(ctx context.Context, source, url string) (bool, error)
	RecordPageScraped(ctx context.Context, rec models.ScrapedPageRecord) error
	GetScrapedPages(ctx context.Context, source string) ([]models.ScrapedPageRecord, error)
}

// ProgressFunc receives a progress snapshot after every page. Callers may
// ignore it by leaving Options.Progress nil.
type ProgressFunc func(models.ScrapingProgress)

// Options tunes one crawl invocation.
type Options struct {
	MaxPages        int
	RequestDelay    time.Duration
	SkipExisting    bool
	ResumeFromOlder bool
	Progress        ProgressFunc
}

// Orchestrator owns one crawl at a time. Pages are fetched strictly
// sequentially; the per-request pacing lives in the Fetcher's rate
// limiter and the inter-page delay here.
type Orchestrator struct {
	client  Fetcher
	ledger  PageLedger
	metrics *Metrics
}

// New builds an orchestrator. metrics may be nil.
func New(client Fetcher, ledger PageLedger, metrics *Metrics) *Orchestrator {
	return &Orchestrator{
		client:  client,
		ledger:  ledger,
		metrics: metrics,
	}
}

// Crawl walks src from its base URL (or a resumption point) and returns
// the charts extracted in page-traversal order, plus the non-fatal page
// errors collected along the way. The returned error is non-nil only for
// hard failures: error budget exceeded or cancellation.
func (o *Orchestrator) Crawl(ctx context.Context, src models.Source, strat strategy.Strategy, opts Options) ([]*models.Chart, []string, error) {
	maxPages := opts.MaxPages
	if maxPages <= 0 {
		maxPages = src.MaxPages
	}
	if maxPages <= 0 {
		maxPages = 10
	}

	progress := models.ScrapingProgress{
		TotalPages: maxPages,
		Status:     models.CrawlRunning,
		StartTime:  time.Now(),
	}

	currentURL := src.BaseURL
	if opts.ResumeFromOlder {
		currentURL = o.resumeURL(ctx, src)
	}

	var (
		charts     []*models.Chart
		pageErrors []string
	)

	for pageNum := 1; currentURL != "" && pageNum <= maxPages; pageNum++ {
		if err := ctx.Err(); err != nil {
			progress.Status = models.CrawlCancelled
			o.finish(progress, opts)
			return charts, pageErrors, err
		}
		if pageNum > 1 {
			if err := o.pause(ctx, src, opts); err != nil {
				progress.Status = models.CrawlCancelled
				o.finish(progress, opts)
				return charts, pageErrors, err
			}
		}

		pageCharts, nextURL, pageErr := o.visitPage(ctx, src, strat, currentURL, pageNum, opts)
		if pageErr != nil {
			pageErrors = append(pageErrors, fmt.Sprintf("page %d (%s): %v", pageNum, currentURL, pageErr))
			o.metrics.IncPageError()
			o.metrics.IncPage("failed")
			o.recordPage(ctx, src, currentURL, pageNum, 0, models.PageFailed, pageErr.Error())

			if len(pageErrors) > maxPageErrors {
				progress.Status = models.CrawlFailed
				o.finish(progress, opts)
				return charts, pageErrors, &ScrapingError{
					Source:     src.Name,
					PageErrors: pageErrors,
					Err:        fmt.Errorf("aborting after %d page errors", len(pageErrors)),
				}
			}

			// Best effort: re-resolve pagination without page content so a
			// single bad page does not end the crawl when the strategy can
			// still point past it.
			currentURL = strat.NextPageURL(currentURL, nil)
			progress.CurrentPage = pageNum
			o.report(&progress, opts)
			continue
		}

		charts = append(charts, pageCharts...)
		o.metrics.IncPage("completed")

		progress.CurrentPage = pageNum
		progress.ChartsFound = len(charts)
		o.report(&progress, opts)

		currentURL = nextURL
	}

	progress.Status = models.CrawlCompleted
	o.finish(progress, opts)
	return charts, pageErrors, nil
}

// visitPage fetches and processes a single page. It returns the validated
// charts, the next page URL, and a page-level error when the fetch or
// parse failed.
func (o *Orchestrator) visitPage(ctx context.Context, src models.Source, strat strategy.Strategy, pageURL string, pageNum int, opts Options) ([]*models.Chart, string, error) {
	res, err := o.client.Get(ctx, pageURL, src.CustomHeaders)
	if err != nil {
		return nil, "", fmt.Errorf("fetch: %w", err)
	}
	o.metrics.ObserveFetch(res.Duration)

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(res.Body))
	if err != nil {
		return nil, "", fmt.Errorf("parse html: %w", err)
	}

	nextURL := strat.NextPageURL(pageURL, doc)

	if opts.SkipExisting {
		scraped, err := o.ledger.IsPageScraped(ctx, src.Name, pageURL)
		if err != nil {
			slog.Warn("ledger lookup failed, page will be re-extracted",
				slog.String("url", pageURL),
				slog.Any("error", err),
			)
		} else if scraped {
			// The page was still fetched: moving on requires its next-page
			// link even when its content is already in the store.
			slog.Debug("skipping already-scraped page",
				slog.String("source", src.Name),
				slog.String("url", pageURL),
			)
			o.metrics.IncPage("skipped")
			return nil, nextURL, nil
		}
	}

	charts := o.extractPage(doc, strat, src, pageURL)
	o.recordPage(ctx, src, pageURL, pageNum, len(charts), models.PageCompleted, "")
	return charts, nextURL, nil
}

// extractPage runs the strategy over every candidate fragment. Fragment
// faults and validation failures are logged and skipped; they never fail
// the page.
func (o *Orchestrator) extractPage(doc *goquery.Document, strat strategy.Strategy, src models.Source, pageURL string) []*models.Chart {
	var charts []*models.Chart
	for _, fragment := range strat.ChartElements(doc) {
		chart, err := strat.ExtractChart(fragment, pageURL)
		if err != nil {
			slog.Warn("chart extraction fault",
				slog.String("source", src.Name),
				slog.String("url", pageURL),
				slog.Any("error", err),
			)
			o.metrics.IncExtractError("extract_fault")
			continue
		}
		if chart == nil {
			continue
		}
		if err := strat.Validate(chart); err != nil {
			slog.Debug("dropping invalid chart",
				slog.String("source", src.Name),
				slog.Any("error", err),
			)
			o.metrics.IncExtractError("invalid_chart")
			continue
		}
		o.metrics.IncCharts()
		charts = append(charts, chart)
	}
	return charts
}

// resumeURL picks where a resumed crawl starts: the URL of the deepest
// completed ledger page, so large archives continue from where the last
// run got to instead of restarting at the base URL.
func (o *Orchestrator) resumeURL(ctx context.Context, src models.Source) string {
	pages, err := o.ledger.GetScrapedPages(ctx, src.Name)
	if err != nil {
		slog.Warn("ledger read failed, resuming from base url",
			slog.String("source", src.Name),
			slog.Any("error", err),
		)
		return src.BaseURL
	}

	deepest := ""
	deepestNum := 0
	for _, page := range pages {
		if page.Status == models.PageCompleted && page.PageNumber > deepestNum {
			deepestNum = page.PageNumber
			deepest = page.URL
		}
	}
	if deepest == "" {
		return src.BaseURL
	}
	slog.Info("resuming crawl from ledger",
		slog.String("source", src.Name),
		slog.Int("page", deepestNum),
		slog.String("url", deepest),
	)
	return deepest
}

func (o *Orchestrator) recordPage(ctx context.Context, src models.Source, url string, pageNum, count int, status models.PageStatus, errMsg string) {
	err := o.ledger.RecordPageScraped(ctx, models.ScrapedPageRecord{
		SourceName:      src.Name,
		URL:             url,
		PageNumber:      pageNum,
		ChartsExtracted: count,
		Status:          status,
		ErrorMessage:    errMsg,
	})
	if err != nil {
		slog.Warn("ledger write failed",
			slog.String("source", src.Name),
			slog.String("url", url),
			slog.Any("error", err),
		)
	}
}

func (o *Orchestrator) pause(ctx context.Context, src models.Source, opts Options) error {
	delay := opts.RequestDelay
	if src.RateLimit > delay {
		delay = src.RateLimit
	}
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (o *Orchestrator) report(progress *models.ScrapingProgress, opts Options) {
	if progress.CurrentPage > 0 {
		elapsed := time.Since(progress.StartTime)
		perPage := elapsed / time.Duration(progress.CurrentPage)
		remaining := progress.TotalPages - progress.CurrentPage
		progress.EstimatedCompletion = time.Now().Add(perPage * time.Duration(remaining))
	}
	if opts.Progress != nil {
		opts.Progress(*progress)
	}
}

func (o *Orchestrator) finish(progress models.ScrapingProgress, opts Options) {
	o.metrics.IncCrawl(string(progress.Status))
	if opts.Progress != nil {
		opts.Progress(progress)
	}
}
