// Package models defines the data structures shared across the crawler.
package models

import "time"

// Chart is the canonical record extracted from a source page.
//
// ID is derived deterministically from the source and the chart's native
// number (or title/artist when no number exists), so re-scraping the same
// post always produces the same key and upserts overwrite instead of
// duplicating.
type Chart struct {
	ID              string    `csv:"id" json:"id"`
	Title           string    `csv:"title" json:"title"`
	Artist          string    `csv:"artist" json:"artist"`
	BPM             string    `csv:"bpm" json:"bpm"`
	Difficulties    []float64 `csv:"-" json:"difficulties"`
	DownloadURL     string    `csv:"download_url" json:"download_url,omitempty"`
	PreviewImageURL string    `csv:"preview_image_url" json:"preview_image_url,omitempty"`
	Source          string    `csv:"source" json:"source"`
	OriginalPageURL string    `csv:"original_page_url" json:"original_page_url"`
	Tags            []string  `csv:"-" json:"tags,omitempty"`
	CreatedAt       time.Time `csv:"created_at" json:"created_at"`
	UpdatedAt       time.Time `csv:"updated_at" json:"updated_at"`
}

// PageStatus is the terminal state of one visited page in the ledger.
type PageStatus string

const (
	PageCompleted PageStatus = "completed"
	PageFailed    PageStatus = "failed"
)

// ScrapedPageRecord is one ledger entry. The crawler writes one per visited
// page and never deletes them; resumed crawls read the ledger to skip pages
// already covered.
type ScrapedPageRecord struct {
	SourceName      string     `json:"source_name"`
	URL             string     `json:"url"`
	PageNumber      int        `json:"page_number"`
	ChartsExtracted int        `json:"charts_extracted"`
	Status          PageStatus `json:"status"`
	ErrorMessage    string     `json:"error_message,omitempty"`
	ScrapedAt       time.Time  `json:"scraped_at"`
}

// Source describes one site the crawler knows how to walk. Immutable for the
// duration of a single crawl.
type Source struct {
	Name          string            `yaml:"name"`
	BaseURL       string            `yaml:"base_url"`
	StrategyName  string            `yaml:"strategy"`
	Enabled       bool              `yaml:"enabled"`
	MaxPages      int               `yaml:"max_pages"`
	RateLimit     time.Duration     `yaml:"rate_limit"`
	RespectRobots bool              `yaml:"respect_robots"`
	CustomHeaders map[string]string `yaml:"custom_headers"`
	Settings      map[string]string `yaml:"settings"`
}

// CrawlStatus is the lifecycle state of one crawl invocation.
type CrawlStatus string

const (
	CrawlPending   CrawlStatus = "pending"
	CrawlRunning   CrawlStatus = "running"
	CrawlCompleted CrawlStatus = "completed"
	CrawlFailed    CrawlStatus = "failed"
	CrawlCancelled CrawlStatus = "cancelled"
)

// ScrapingProgress is the transient per-crawl state reported to progress
// callbacks. It is never persisted.
type ScrapingProgress struct {
	CurrentPage         int
	TotalPages          int
	ChartsFound         int
	Status              CrawlStatus
	StartTime           time.Time
	EstimatedCompletion time.Time
}

// ScrapeResult is the aggregate outcome of one ScrapeSource call.
type ScrapeResult struct {
	SourceName       string
	ChartsFound      int
	ChartsAdded      int
	ChartsDuplicated int
	PagesVisited     int
	Errors           []string
	Duration         time.Duration
	NextScrapeTime   time.Time
}

// DownloadItemResult records the outcome of a single chart download.
type DownloadItemResult struct {
	ChartID  string
	Success  bool
	FilePath string
	Error    string
	Bytes    int64
	Elapsed  time.Duration
}

// DownloadResult aggregates one DownloadCharts call. Results preserve the
// order of the requested IDs regardless of completion order.
type DownloadResult struct {
	DownloadID string
	Successful int
	Failed     int
	Total      int
	Results    []DownloadItemResult
}
