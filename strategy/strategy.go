// Package strategy holds the pluggable per-source parsing logic: chart
// extraction, pagination resolution, validation, and identity derivation.
package strategy

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"

	"chartdex/models"
)

// Strategy is the capability interface one source site implements. The
// crawl loop depends only on this interface; site quirks stay behind it.
type Strategy interface {
	// Name identifies the strategy in configs and ledgers.
	Name() string

	// ChartElements selects the candidate post fragments on one page.
	ChartElements(doc *goquery.Document) []*goquery.Selection

	// ExtractChart turns one fragment into a chart record. A nil chart
	// with a nil error means the fragment is not a chart post; an error
	// signals an internal extraction fault.
	ExtractChart(fragment *goquery.Selection, pageURL string) (*models.Chart, error)

	// NextPageURL resolves the next page to crawl, or "" at the end of
	// the archive.
	NextPageURL(currentURL string, doc *goquery.Document) string

	// Validate applies the storage gate: required fields present and
	// difficulty values in range.
	Validate(chart *models.Chart) error

	// GenerateID derives the chart's stable dedup key.
	GenerateID(chart *models.Chart) string
}

// ValidationError reports a chart that failed the storage gate or an
// extractor internal fault.
type ValidationError struct {
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("chart validation: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("chart validation: %s", e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Factory builds a strategy bound to one source configuration.
type Factory func(src models.Source) Strategy

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register installs a factory under name. Later registrations replace
// earlier ones.
func Register(name string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[strings.ToLower(name)] = f
}

// ForSource selects the registered strategy named by src.StrategyName.
func ForSource(src models.Source) (Strategy, error) {
	registryMu.RLock()
	f, ok := registry[strings.ToLower(src.StrategyName)]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no strategy registered for %q (have: %s)", src.StrategyName, strings.Join(Names(), ", "))
	}
	return f(src), nil
}

// Names lists the registered strategy names, sorted.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
