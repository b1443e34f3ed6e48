package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"chartdex/models"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS charts (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	artist TEXT NOT NULL,
	bpm TEXT NOT NULL DEFAULT '',
	difficulties TEXT NOT NULL DEFAULT '[]',
	download_url TEXT NOT NULL DEFAULT '',
	preview_image_url TEXT NOT NULL DEFAULT '',
	source TEXT NOT NULL,
	original_page_url TEXT NOT NULL,
	tags TEXT NOT NULL DEFAULT '[]',
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_charts_source ON charts(source);
CREATE INDEX IF NOT EXISTS idx_charts_title ON charts(title);

CREATE TABLE IF NOT EXISTS scraped_pages (
	source TEXT NOT NULL,
	url TEXT NOT NULL,
	page_number INTEGER NOT NULL,
	charts_extracted INTEGER NOT NULL DEFAULT 0,
	status TEXT NOT NULL,
	error_message TEXT NOT NULL DEFAULT '',
	scraped_at TIMESTAMP NOT NULL,
	PRIMARY KEY (source, url)
);
`

// SQLiteStore is the shipped ChartStore backed by a single SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}
	// Crawls serialize writes per source; a single connection avoids
	// SQLITE_BUSY churn under the pure-Go driver.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable wal: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Exists(ctx context.Context, id string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, "SELECT 1 FROM charts WHERE id = ?", id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("exists %q: %w", id, err)
	}
	return true, nil
}

// Upsert inserts or overwrites the chart. created_at is preserved on
// conflict; updated_at always refreshes.
func (s *SQLiteStore) Upsert(ctx context.Context, chart *models.Chart) error {
	if chart == nil || chart.ID == "" {
		return fmt.Errorf("upsert: chart missing id")
	}
	now := time.Now().UTC()
	if chart.CreatedAt.IsZero() {
		chart.CreatedAt = now
	}
	chart.UpdatedAt = now

	difficulties, err := json.Marshal(chart.Difficulties)
	if err != nil {
		return fmt.Errorf("encode difficulties for %q: %w", chart.ID, err)
	}
	tags, err := json.Marshal(chart.Tags)
	if err != nil {
		return fmt.Errorf("encode tags for %q: %w", chart.ID, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO charts (id, title, artist, bpm, difficulties, download_url,
			preview_image_url, source, original_page_url, tags, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			artist = excluded.artist,
			bpm = excluded.bpm,
			difficulties = excluded.difficulties,
			download_url = excluded.download_url,
			preview_image_url = excluded.preview_image_url,
			source = excluded.source,
			original_page_url = excluded.original_page_url,
			tags = excluded.tags,
			updated_at = excluded.updated_at`,
		chart.ID, chart.Title, chart.Artist, chart.BPM, string(difficulties),
		chart.DownloadURL, chart.PreviewImageURL, chart.Source,
		chart.OriginalPageURL, string(tags), chart.CreatedAt, chart.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert %q: %w", chart.ID, err)
	}
	return nil
}

const chartColumns = `id, title, artist, bpm, difficulties, download_url,
	preview_image_url, source, original_page_url, tags, created_at, updated_at`

func (s *SQLiteStore) GetByID(ctx context.Context, id string) (*models.Chart, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+chartColumns+" FROM charts WHERE id = ?", id)
	chart, err := scanChart(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get %q: %w", id, err)
	}
	return chart, nil
}

// Search matches query against title and artist, newest first.
func (s *SQLiteStore) Search(ctx context.Context, query string, limit int) ([]*models.Chart, error) {
	if limit <= 0 {
		limit = 50
	}
	like := "%" + query + "%"
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+chartColumns+" FROM charts WHERE title LIKE ? OR artist LIKE ? ORDER BY updated_at DESC LIMIT ?",
		like, like, limit)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", query, err)
	}
	defer rows.Close()
	return collectCharts(rows)
}

// All returns every stored chart ordered by id, for exports.
func (s *SQLiteStore) All(ctx context.Context) ([]*models.Chart, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+chartColumns+" FROM charts ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("list charts: %w", err)
	}
	defer rows.Close()
	return collectCharts(rows)
}

func (s *SQLiteStore) GetScrapedPages(ctx context.Context, source string) ([]models.ScrapedPageRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT source, url, page_number, charts_extracted, status, error_message, scraped_at
		FROM scraped_pages WHERE source = ? ORDER BY page_number`, source)
	if err != nil {
		return nil, fmt.Errorf("ledger for %q: %w", source, err)
	}
	defer rows.Close()

	var out []models.ScrapedPageRecord
	for rows.Next() {
		var rec models.ScrapedPageRecord
		var status string
		if err := rows.Scan(&rec.SourceName, &rec.URL, &rec.PageNumber,
			&rec.ChartsExtracted, &status, &rec.ErrorMessage, &rec.ScrapedAt); err != nil {
			return nil, fmt.Errorf("scan ledger row: %w", err)
		}
		rec.Status = models.PageStatus(status)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) IsPageScraped(ctx context.Context, source, url string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		"SELECT 1 FROM scraped_pages WHERE source = ? AND url = ? AND status = ?",
		source, url, string(models.PageCompleted)).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("ledger check %q: %w", url, err)
	}
	return true, nil
}

// RecordPageScraped inserts or replaces the ledger row for (source, url).
func (s *SQLiteStore) RecordPageScraped(ctx context.Context, rec models.ScrapedPageRecord) error {
	if rec.ScrapedAt.IsZero() {
		rec.ScrapedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO scraped_pages (source, url, page_number, charts_extracted, status, error_message, scraped_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(source, url) DO UPDATE SET
			page_number = excluded.page_number,
			charts_extracted = excluded.charts_extracted,
			status = excluded.status,
			error_message = excluded.error_message,
			scraped_at = excluded.scraped_at`,
		rec.SourceName, rec.URL, rec.PageNumber, rec.ChartsExtracted,
		string(rec.Status), rec.ErrorMessage, rec.ScrapedAt,
	)
	if err != nil {
		return fmt.Errorf("record page %q: %w", rec.URL, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanChart(row rowScanner) (*models.Chart, error) {
	var chart models.Chart
	var difficulties, tags string
	err := row.Scan(&chart.ID, &chart.Title, &chart.Artist, &chart.BPM,
		&difficulties, &chart.DownloadURL, &chart.PreviewImageURL,
		&chart.Source, &chart.OriginalPageURL, &tags,
		&chart.CreatedAt, &chart.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(difficulties), &chart.Difficulties); err != nil {
		return nil, fmt.Errorf("decode difficulties of %q: %w", chart.ID, err)
	}
	if err := json.Unmarshal([]byte(tags), &chart.Tags); err != nil {
		return nil, fmt.Errorf("decode tags of %q: %w", chart.ID, err)
	}
	return &chart, nil
}

func collectCharts(rows *sql.Rows) ([]*models.Chart, error) {
	var out []*models.Chart
	for rows.Next() {
		chart, err := scanChart(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, chart)
	}
	return out, rows.Err()
}
