package service

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"chartdex/downloader"
	"chartdex/httpclient"
	"chartdex/models"
	"chartdex/scraper"
	"chartdex/store"
)

type fakeFetcher struct {
	pages map[string]string
}

func (f *fakeFetcher) Get(_ context.Context, url string, _ map[string]string) (*httpclient.Response, error) {
	body, ok := f.pages[url]
	if !ok {
		return nil, httpclient.ErrHTTPStatus{StatusCode: 404, URL: url}
	}
	return &httpclient.Response{StatusCode: 200, Body: body, URL: url, Duration: time.Millisecond}, nil
}

func testSource() models.Source {
	return models.Source{
		Name:         "chartblog",
		BaseURL:      "https://chartblog.test/",
		StrategyName: "blogger",
		Enabled:      true,
		MaxPages:     10,
	}
}

func postHTML(num int, title string, olderHref string) string {
	page := `<html><body><div class="post">` +
		fmt.Sprintf(`<h3>#%d. %s</h3>`, num, title) +
		fmt.Sprintf(`<p>%s / Artist %dBPM : 3.00/5.00</p>`, title, 100+num) +
		`</div>`
	if olderHref != "" {
		page += fmt.Sprintf(`<a class="blog-pager-older-link" href="%s">Older Posts</a>`, olderHref)
	}
	return page + `</body></html>`
}

func newTestService(t *testing.T, fetcher Fetcher) (*Service, store.ChartStore) {
	t.Helper()
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "chartdex.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return New(st, fetcher, nil, nil), st
}

func TestScrapeSourceStoresCharts(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[string]string{
		"https://chartblog.test/":      postHTML(2, "Newest", "https://chartblog.test/page2"),
		"https://chartblog.test/page2": postHTML(1, "Oldest", ""),
	}}
	svc, st := newTestService(t, fetcher)

	result, err := svc.ScrapeSource(context.Background(), testSource(), scraper.Options{})
	require.NoError(t, err)

	require.Equal(t, "chartblog", result.SourceName)
	require.Equal(t, 2, result.ChartsFound)
	require.Equal(t, 2, result.ChartsAdded)
	require.Equal(t, 0, result.ChartsDuplicated)
	require.Equal(t, 2, result.PagesVisited)
	require.Empty(t, result.Errors)
	require.False(t, result.NextScrapeTime.IsZero())

	stored, err := st.GetByID(context.Background(), "chartblog-2")
	require.NoError(t, err)
	require.NotNil(t, stored)
	require.Equal(t, "Newest", stored.Title)
}

func TestScrapeSourceDeduplicatesOnRescrape(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[string]string{
		"https://chartblog.test/": postHTML(1, "Only", ""),
	}}
	svc, st := newTestService(t, fetcher)
	ctx := context.Background()

	first, err := svc.ScrapeSource(ctx, testSource(), scraper.Options{})
	require.NoError(t, err)
	require.Equal(t, 1, first.ChartsAdded)

	second, err := svc.ScrapeSource(ctx, testSource(), scraper.Options{})
	require.NoError(t, err)
	require.Equal(t, 0, second.ChartsAdded)
	require.Equal(t, 1, second.ChartsDuplicated)

	all, err := st.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
}

func TestScrapeSourceDisabled(t *testing.T) {
	svc, _ := newTestService(t, &fakeFetcher{})
	src := testSource()
	src.Enabled = false

	_, err := svc.ScrapeSource(context.Background(), src, scraper.Options{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "disabled")
}

func TestScrapeSourceUnknownStrategy(t *testing.T) {
	svc, _ := newTestService(t, &fakeFetcher{})
	src := testSource()
	src.StrategyName = "mystery"

	_, err := svc.ScrapeSource(context.Background(), src, scraper.Options{})
	require.Error(t, err)
}

func TestDownloadChartsRequiresIDs(t *testing.T) {
	svc, _ := newTestService(t, &fakeFetcher{})
	_, err := svc.DownloadCharts(context.Background(), nil, downloader.Options{})
	require.Error(t, err)
}
