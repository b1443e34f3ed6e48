// Package downloader fetches chart archives with a bounded worker pool.
// Items fail independently: one bad download never aborts its siblings.
package downloader

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"chartdex/httpclient"
	"chartdex/models"
	"chartdex/store"
)

// Fetcher is the transfer capability the downloader depends on.
type Fetcher interface {
	Get(ctx context.Context, url string, extraHeaders map[string]string) (*httpclient.Response, error)
}

// Options tunes one DownloadCharts call.
type Options struct {
	DestinationDir string
	MaxConcurrency int
	Overwrite      bool
	TimeoutPerItem time.Duration
	Unpack         bool
}

// DefaultOptions downloads three at a time into ./downloads.
func DefaultOptions() Options {
	return Options{
		DestinationDir: "downloads",
		MaxConcurrency: 3,
		TimeoutPerItem: 2 * time.Minute,
	}
}

// Metrics counts download outcomes. Collectors register on the given
// registerer so the crawler and downloader can share one registry.
type Metrics struct {
	ItemsTotal *prometheus.CounterVec
	BytesTotal prometheus.Counter
}

// NewMetrics constructs and registers download collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	items := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chartdex_downloads_total",
			Help: "Chart downloads by outcome.",
		},
		[]string{"status"},
	)
	bytesTotal := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chartdex_download_bytes_total",
			Help: "Bytes written by the downloader.",
		},
	)
	reg.MustRegister(items, bytesTotal)
	return &Metrics{ItemsTotal: items, BytesTotal: bytesTotal}
}

func (m *Metrics) incItem(status string) {
	if m == nil {
		return
	}
	m.ItemsTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) addBytes(n int64) {
	if m == nil {
		return
	}
	m.BytesTotal.Add(float64(n))
}

// Downloader resolves chart IDs against the store and fetches their
// archives.
type Downloader struct {
	client  Fetcher
	store   store.ChartStore
	metrics *Metrics
}

// New builds a downloader. metrics may be nil.
func New(client Fetcher, chartStore store.ChartStore, metrics *Metrics) *Downloader {
	return &Downloader{
		client:  client,
		store:   chartStore,
		metrics: metrics,
	}
}

// DownloadCharts fetches every chart in chartIDs with at most
// opts.MaxConcurrency transfers in flight. The result list preserves the
// input order regardless of completion order.
func (d *Downloader) DownloadCharts(ctx context.Context, chartIDs []string, opts Options) (*models.DownloadResult, error) {
	def := DefaultOptions()
	if opts.DestinationDir == "" {
		opts.DestinationDir = def.DestinationDir
	}
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = def.MaxConcurrency
	}
	if opts.TimeoutPerItem <= 0 {
		opts.TimeoutPerItem = def.TimeoutPerItem
	}

	if err := os.MkdirAll(opts.DestinationDir, 0o755); err != nil {
		return nil, fmt.Errorf("create destination %q: %w", opts.DestinationDir, err)
	}

	result := &models.DownloadResult{
		DownloadID: fmt.Sprintf("dl-%s", time.Now().UTC().Format("20060102T150405")),
		Total:      len(chartIDs),
		Results:    make([]models.DownloadItemResult, len(chartIDs)),
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < opts.MaxConcurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				result.Results[idx] = d.downloadOne(ctx, chartIDs[idx], opts)
			}
		}()
	}
	for idx := range chartIDs {
		jobs <- idx
	}
	close(jobs)
	wg.Wait()

	for _, item := range result.Results {
		if item.Success {
			result.Successful++
		} else {
			result.Failed++
		}
	}

	slog.Info("download batch finished",
		slog.String("id", result.DownloadID),
		slog.Int("successful", result.Successful),
		slog.Int("failed", result.Failed),
	)
	return result, nil
}

func (d *Downloader) downloadOne(ctx context.Context, chartID string, opts Options) models.DownloadItemResult {
	start := time.Now()
	item := models.DownloadItemResult{ChartID: chartID}

	fail := func(status, msg string) models.DownloadItemResult {
		item.Error = msg
		item.Elapsed = time.Since(start)
		d.metrics.incItem(status)
		return item
	}

	chart, err := d.store.GetByID(ctx, chartID)
	if err != nil {
		return fail("store_error", fmt.Sprintf("store lookup: %v", err))
	}
	if chart == nil {
		return fail("not_found", fmt.Sprintf("chart %s not found", chartID))
	}
	if chart.DownloadURL == "" {
		// Distinct from a transport failure: the chart is known but has no
		// resolvable per-file link yet.
		return fail("no_source", "no download source")
	}

	destPath := filepath.Join(opts.DestinationDir, fileNameFor(chart))
	if !opts.Overwrite {
		if info, err := os.Stat(destPath); err == nil {
			item.Success = true
			item.FilePath = destPath
			item.Bytes = info.Size()
			item.Elapsed = time.Since(start)
			d.metrics.incItem("cached")
			return item
		}
	}

	itemCtx, cancel := context.WithTimeout(ctx, opts.TimeoutPerItem)
	defer cancel()

	res, err := d.client.Get(itemCtx, chart.DownloadURL, nil)
	if err != nil {
		return fail("fetch_error", fmt.Sprintf("fetch: %v", err))
	}
	data := []byte(res.Body)

	if opts.Unpack && isZip(data) {
		dir := strings.TrimSuffix(destPath, filepath.Ext(destPath))
		n, err := unpackZip(data, dir)
		if err != nil {
			return fail("unpack_error", fmt.Sprintf("unpack: %v", err))
		}
		item.Success = true
		item.FilePath = dir
		item.Bytes = n
	} else {
		if err := os.WriteFile(destPath, data, 0o644); err != nil {
			return fail("write_error", fmt.Sprintf("write: %v", err))
		}
		item.Success = true
		item.FilePath = destPath
		item.Bytes = int64(len(data))
	}

	item.Elapsed = time.Since(start)
	d.metrics.incItem("success")
	d.metrics.addBytes(item.Bytes)
	return item
}

// fileNameFor derives a filesystem-safe name from the chart's identity,
// keeping the URL's extension when it has one.
func fileNameFor(chart *models.Chart) string {
	ext := path.Ext(trimQuery(chart.DownloadURL))
	if ext == "" || len(ext) > 5 {
		ext = ".zip"
	}
	return sanitize(chart.ID+"-"+chart.Title) + ext
}

func trimQuery(u string) string {
	if i := strings.IndexByte(u, '?'); i >= 0 {
		return u[:i]
	}
	return u
}

func sanitize(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '-' || r == '_' || r == '.':
			b.WriteRune(r)
		case r == ' ':
			b.WriteByte('_')
		}
	}
	out := b.String()
	if out == "" {
		out = "chart"
	}
	if len(out) > 120 {
		out = out[:120]
	}
	return out
}

func isZip(data []byte) bool {
	return len(data) >= 4 && bytes.HasPrefix(data, []byte("PK\x03\x04"))
}

// unpackZip extracts the archive into dir, refusing entries that escape
// it. Returns the number of bytes written.
func unpackZip(data []byte, dir string) (int64, error) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, err
	}

	var written int64
	for _, f := range reader.File {
		target := filepath.Join(dir, filepath.Clean(f.Name))
		if !strings.HasPrefix(target, filepath.Clean(dir)+string(os.PathSeparator)) {
			return written, fmt.Errorf("archive entry %q escapes destination", f.Name)
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return written, err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return written, err
		}
		src, err := f.Open()
		if err != nil {
			return written, err
		}
		dst, err := os.Create(target)
		if err != nil {
			src.Close()
			return written, err
		}
		n, err := io.Copy(dst, src)
		written += n
		src.Close()
		dst.Close()
		if err != nil {
			return written, err
		}
	}
	return written, nil
}
