package scraper

import (
	"fmt"
	"strings"
)

// maxPageErrors is the crawl error budget: the crawl keeps going past
// failed pages until one more error than this has accumulated.
const maxPageErrors = 5

// ScrapingError is the fatal crawl failure raised when the page error
// budget is exceeded or the source is unusable.
type ScrapingError struct {
	Source     string
	PageErrors []string
	Err        error
}

func (e *ScrapingError) Error() string {
	msg := fmt.Sprintf("scraping %s failed", e.Source)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if len(e.PageErrors) > 0 {
		msg += fmt.Sprintf(" (%d page errors, first: %s)", len(e.PageErrors), firstLine(e.PageErrors[0]))
	}
	return msg
}

func (e *ScrapingError) Unwrap() error {
	return e.Err
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
