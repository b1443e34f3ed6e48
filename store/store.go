// Package store persists chart records and the per-source ledger of
// already-scraped pages.
package store

import (
	"context"

	"chartdex/models"
)

// ChartStore is the persistence boundary the crawler and downloader depend
// on. GetByID returns (nil, nil) for an unknown id; absence is not an
// error.
type ChartStore interface {
	Exists(ctx context.Context, id string) (bool, error)
	Upsert(ctx context.Context, chart *models.Chart) error
	GetByID(ctx context.Context, id string) (*models.Chart, error)
	Search(ctx context.Context, query string, limit int) ([]*models.Chart, error)
	All(ctx context.Context) ([]*models.Chart, error)

	GetScrapedPages(ctx context.Context, source string) ([]models.ScrapedPageRecord, error)
	IsPageScraped(ctx context.Context, source, url string) (bool, error)
	RecordPageScraped(ctx context.Context, rec models.ScrapedPageRecord) error

	Close() error
}
