package scraper

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the crawler.
type Metrics struct {
	Registry        *prometheus.Registry
	PagesTotal      *prometheus.CounterVec
	FetchDuration   prometheus.Histogram
	ChartsExtracted prometheus.Counter
	ExtractErrors   *prometheus.CounterVec
	PageErrors      prometheus.Counter
	CrawlsTotal     *prometheus.CounterVec
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	pages := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chartdex_pages_total",
			Help: "Pages visited by the crawler, by outcome.",
		},
		[]string{"status"},
	)
	fetchDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chartdex_fetch_duration_seconds",
			Help:    "Page fetch latency.",
			Buckets: prometheus.DefBuckets,
		},
	)
	chartsExtracted := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chartdex_charts_extracted_total",
			Help: "Charts that passed extraction and validation.",
		},
	)
	extractErrors := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chartdex_extract_errors_total",
			Help: "Per-fragment extraction and validation failures.",
		},
		[]string{"kind"},
	)
	pageErrors := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chartdex_page_errors_total",
			Help: "Page-level crawl failures.",
		},
	)
	crawls := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chartdex_crawls_total",
			Help: "Crawl invocations by terminal status.",
		},
		[]string{"status"},
	)

	registry.MustRegister(pages, fetchDuration, chartsExtracted, extractErrors, pageErrors, crawls)

	return &Metrics{
		Registry:        registry,
		PagesTotal:      pages,
		FetchDuration:   fetchDuration,
		ChartsExtracted: chartsExtracted,
		ExtractErrors:   extractErrors,
		PageErrors:      pageErrors,
		CrawlsTotal:     crawls,
	}
}

// IncPage counts a visited page by outcome.
func (m *Metrics) IncPage(status string) {
	if m == nil {
		return
	}
	m.PagesTotal.WithLabelValues(status).Inc()
}

// ObserveFetch records a page fetch duration.
func (m *Metrics) ObserveFetch(d time.Duration) {
	if m == nil {
		return
	}
	m.FetchDuration.Observe(d.Seconds())
}

// IncCharts counts validated charts.
func (m *Metrics) IncCharts() {
	if m == nil {
		return
	}
	m.ChartsExtracted.Inc()
}

// IncExtractError counts a per-fragment failure by kind.
func (m *Metrics) IncExtractError(kind string) {
	if m == nil {
		return
	}
	m.ExtractErrors.WithLabelValues(kind).Inc()
}

// IncPageError counts a page-level failure.
func (m *Metrics) IncPageError() {
	if m == nil {
		return
	}
	m.PageErrors.Inc()
}

// IncCrawl counts a crawl by terminal status.
func (m *Metrics) IncCrawl(status string) {
	if m == nil {
		return
	}
	m.CrawlsTotal.WithLabelValues(status).Inc()
}
