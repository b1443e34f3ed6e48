package strategy

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
)

func docFromHTML(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		t.Fatalf("parse html: %v", err)
	}
	return doc
}

func TestNextPageURLHeuristics(t *testing.T) {
	tests := []struct {
		name string
		html string
		want string
	}{
		{
			name: "older posts pager class",
			html: `<a class="blog-pager-older-link" href="https://chartblog.test/search?updated-max=2023-01-01">Older Posts</a>`,
			want: "https://chartblog.test/search?updated-max=2023-01-01",
		},
		{
			name: "older link text",
			html: `<a href="/page3">older entries</a>`,
			want: "https://chartblog.test/page3",
		},
		{
			name: "next link text",
			html: `<a href="/page4">Next</a>`,
			want: "https://chartblog.test/page4",
		},
		{
			name: "updated-max query parameter",
			html: `<a href="https://chartblog.test/?updated-max=2022-06-01T00:00:00">June</a>`,
			want: "https://chartblog.test/?updated-max=2022-06-01T00:00:00",
		},
		{
			name: "year archive link",
			html: `<a href="/2021_05_01_archive.html">May 2021</a>`,
			want: "https://chartblog.test/2021_05_01_archive.html",
		},
		{
			name: "no recognised pattern",
			html: `<a href="/about">About</a>`,
			want: "",
		},
	}

	r := NewPaginationResolver(BloggerHeuristics())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := docFromHTML(t, `<html><body>`+tt.html+`</body></html>`)
			got := r.NextPageURL("https://chartblog.test/page2", doc)
			if got != tt.want {
				t.Fatalf("NextPageURL = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNextPageURLPriorityOrder(t *testing.T) {
	// Both the pager class and an "older" text link exist; the explicit
	// class must win.
	html := `<html><body>
		<a href="/text-older">older</a>
		<a class="blog-pager-older-link" href="/pager">Older Posts</a>
	</body></html>`

	r := NewPaginationResolver(BloggerHeuristics())
	got := r.NextPageURL("https://chartblog.test/", docFromHTML(t, html))
	if got != "https://chartblog.test/pager" {
		t.Fatalf("NextPageURL = %q, want the pager-class link", got)
	}
}

func TestNextPageURLNilDocument(t *testing.T) {
	r := NewPaginationResolver(BloggerHeuristics())
	if got := r.NextPageURL("https://chartblog.test/", nil); got != "" {
		t.Fatalf("NextPageURL(nil doc) = %q, want empty", got)
	}
}
