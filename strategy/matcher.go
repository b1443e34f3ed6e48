package strategy

import (
	"regexp"

	"github.com/PuerkitoBio/goquery"
)

// The heuristic cascades below keep site quirks additive: each matcher is
// independent and the first hit wins, so supporting a new link style or
// metadata layout means appending an entry, not editing a monolith.

// TextMatcher extracts submatch groups from free text.
type TextMatcher struct {
	Name    string
	Pattern *regexp.Regexp
}

// FirstTextMatch runs matchers in order and returns the first set of
// submatches along with its offset in text.
func FirstTextMatch(matchers []TextMatcher, text string) (name string, groups []string, start int, ok bool) {
	for _, m := range matchers {
		loc := m.Pattern.FindStringSubmatchIndex(text)
		if loc == nil {
			continue
		}
		sub := m.Pattern.FindStringSubmatch(text)
		return m.Name, sub, loc[0], true
	}
	return "", nil, 0, false
}

// LinkMatcher resolves a candidate URL from a fragment and its text.
type LinkMatcher struct {
	Name    string
	Resolve func(fragment *goquery.Selection, text string) (string, bool)
}

// FirstLink runs matchers in order and returns the first resolved URL.
func FirstLink(matchers []LinkMatcher, fragment *goquery.Selection, text string) (string, string, bool) {
	for _, m := range matchers {
		if url, ok := m.Resolve(fragment, text); ok && url != "" {
			return m.Name, url, true
		}
	}
	return "", "", false
}

// AnchorHrefMatcher matches anchors whose href matches pattern.
func AnchorHrefMatcher(name string, pattern *regexp.Regexp) LinkMatcher {
	return LinkMatcher{
		Name: name,
		Resolve: func(fragment *goquery.Selection, _ string) (string, bool) {
			found := ""
			fragment.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
				href, _ := a.Attr("href")
				if pattern.MatchString(href) {
					found = pattern.FindString(href)
					return false
				}
				return true
			})
			return found, found != ""
		},
	}
}

// RawTextMatcher matches a URL pattern embedded anywhere in the raw text.
func RawTextMatcher(name string, pattern *regexp.Regexp) LinkMatcher {
	return LinkMatcher{
		Name: name,
		Resolve: func(_ *goquery.Selection, text string) (string, bool) {
			found := pattern.FindString(text)
			return found, found != ""
		},
	}
}

// CaptureTextMatcher matches a pattern in raw text and returns its first
// capture group, for markdown-style [DL](url) links.
func CaptureTextMatcher(name string, pattern *regexp.Regexp) LinkMatcher {
	return LinkMatcher{
		Name: name,
		Resolve: func(_ *goquery.Selection, text string) (string, bool) {
			groups := pattern.FindStringSubmatch(text)
			if len(groups) < 2 {
				return "", false
			}
			return groups[1], groups[1] != ""
		},
	}
}
