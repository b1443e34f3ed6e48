package strategy

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// PageHeuristic inspects a page and returns the next-page href, or "".
type PageHeuristic struct {
	Name string
	Find func(doc *goquery.Document) string
}

// PaginationResolver tries an ordered list of heuristics and returns the
// first href found, absolutized against the current URL. An empty result
// means end of archive, which the crawl loop treats as normal termination.
type PaginationResolver struct {
	heuristics []PageHeuristic
}

// NewPaginationResolver builds a resolver over the given heuristics.
func NewPaginationResolver(heuristics []PageHeuristic) *PaginationResolver {
	return &PaginationResolver{heuristics: heuristics}
}

// NextPageURL resolves the next page or returns "".
func (r *PaginationResolver) NextPageURL(currentURL string, doc *goquery.Document) string {
	if doc == nil {
		return ""
	}
	for _, h := range r.heuristics {
		href := strings.TrimSpace(h.Find(doc))
		if href == "" {
			continue
		}
		return absolutize(currentURL, href)
	}
	return ""
}

func absolutize(base, href string) string {
	parsedBase, err := url.Parse(base)
	if err != nil {
		return href
	}
	parsedHref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return parsedBase.ResolveReference(parsedHref).String()
}

var (
	reUpdatedMax  = regexp.MustCompile(`[?&]updated-max=`)
	reYearArchive = regexp.MustCompile(`/(19|20)\d{2}(_\d{2})*(_\d{2})?_archive\.html`)
)

// BloggerHeuristics is the default cascade for Blogger-templated blogs:
// the explicit older-posts pager link, then link text, then the
// updated-max query parameter, then archive-by-year links.
func BloggerHeuristics() []PageHeuristic {
	return []PageHeuristic{
		{
			Name: "older-link-class",
			Find: func(doc *goquery.Document) string {
				href, _ := doc.Find("a.blog-pager-older-link").First().Attr("href")
				return href
			},
		},
		{
			Name: "older-next-text",
			Find: func(doc *goquery.Document) string {
				found := ""
				doc.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
					text := strings.ToLower(strings.TrimSpace(a.Text()))
					if strings.Contains(text, "older") || strings.Contains(text, "next") {
						found, _ = a.Attr("href")
						return false
					}
					return true
				})
				return found
			},
		},
		{
			Name: "updated-max-param",
			Find: func(doc *goquery.Document) string {
				found := ""
				doc.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
					href, _ := a.Attr("href")
					if reUpdatedMax.MatchString(href) {
						found = href
						return false
					}
					return true
				})
				return found
			},
		},
		{
			Name: "year-archive",
			Find: func(doc *goquery.Document) string {
				found := ""
				doc.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
					href, _ := a.Attr("href")
					if reYearArchive.MatchString(href) {
						found = href
						return false
					}
					return true
				})
				return found
			},
		},
	}
}
