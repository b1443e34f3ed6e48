package strategy

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"chartdex/models"
)

func init() {
	Register("blogger", NewBlogger)
}

// batchBucketSize groups chart numbers into the folder buckets the blog
// uses for its batch download links (charts 1-50, 51-100, ...).
const batchBucketSize = 50

var (
	reHeading = regexp.MustCompile(`#(\d+)\.\s*([^\n<]+)`)

	reBPMTail = `\s*(\d+(?:\s*-\s*\d+)?)\s*BPM\s*[:：]\s*([0-9][0-9./\s]*)`
	reBPMOnly = regexp.MustCompile(reBPMTail)

	reDriveFile   = regexp.MustCompile(`https://drive\.google\.com/file/d/[A-Za-z0-9_-]+(?:/(?:view|edit)[^"'\s<>]*)?`)
	reDriveOpen   = regexp.MustCompile(`https://drive\.google\.com/open\?id=[A-Za-z0-9_-]+`)
	reMarkdownDL  = regexp.MustCompile(`\[DL\]\((https?://[^\s)]+)\)`)
	reDriveFolder = regexp.MustCompile(`https://drive\.google\.com/drive/(?:u/\d+/)?folders/[^"'\s<>?]+`)
)

// Blogger parses the Blogger-templated chart blog: numbered posts with a
// "#N. Title" heading, a "Title / Artist NNNBPM : d1/d2/..." metadata line,
// and Google Drive download links.
type Blogger struct {
	source     models.Source
	selector   string
	pagination *PaginationResolver
	links      []LinkMatcher
	baseTags   []string
}

// NewBlogger builds the strategy for one source. Recognised settings:
// "post_selector" overrides the fragment selector, "tags" is a
// comma-separated tag list applied to every chart, and "batch_folder_<n>"
// names the shared folder for a chart-number bucket.
func NewBlogger(src models.Source) Strategy {
	selector := src.Settings["post_selector"]
	if selector == "" {
		selector = "div.post"
	}

	var baseTags []string
	for _, tag := range strings.Split(src.Settings["tags"], ",") {
		if tag = strings.TrimSpace(tag); tag != "" {
			baseTags = append(baseTags, tag)
		}
	}

	return &Blogger{
		source:     src,
		selector:   selector,
		pagination: NewPaginationResolver(BloggerHeuristics()),
		links: []LinkMatcher{
			AnchorHrefMatcher("drive-file-href", reDriveFile),
			RawTextMatcher("drive-file-text", reDriveFile),
			RawTextMatcher("drive-open-text", reDriveOpen),
			CaptureTextMatcher("markdown-dl", reMarkdownDL),
		},
		baseTags: baseTags,
	}
}

func (b *Blogger) Name() string {
	return "blogger"
}

func (b *Blogger) ChartElements(doc *goquery.Document) []*goquery.Selection {
	var fragments []*goquery.Selection
	doc.Find(b.selector).Each(func(_ int, sel *goquery.Selection) {
		fragments = append(fragments, sel)
	})
	return fragments
}

func (b *Blogger) NextPageURL(currentURL string, doc *goquery.Document) string {
	return b.pagination.NextPageURL(currentURL, doc)
}

// ExtractChart parses one post fragment. Absence of the heading or the BPM
// line means the fragment is not a chart post and yields (nil, nil).
func (b *Blogger) ExtractChart(fragment *goquery.Selection, pageURL string) (chart *models.Chart, err error) {
	defer func() {
		if r := recover(); r != nil {
			chart = nil
			err = &ValidationError{Reason: "extractor fault", Err: fmt.Errorf("%v", r)}
		}
	}()

	text := normalizeText(fragment.Text())

	number, title, ok := findHeading(fragment, text)
	if !ok {
		return nil, nil
	}

	artist, bpm, diffList, matched := b.matchMetadata(text, title)
	if !matched {
		// BPM is mandatory: no recognisable BPM line means this is an
		// announcement or some other non-chart post.
		return nil, nil
	}

	difficulties := parseDifficulties(diffList)

	rawHTML, _ := goquery.OuterHtml(fragment)
	downloadURL := b.resolveDownloadURL(fragment, rawHTML, number)

	previewURL, _ := fragment.Find("img[src]").First().Attr("src")

	chart = &models.Chart{
		Title:           title,
		Artist:          artist,
		BPM:             bpm,
		Difficulties:    difficulties,
		DownloadURL:     downloadURL,
		PreviewImageURL: previewURL,
		Source:          b.source.Name,
		OriginalPageURL: b.resolvePageLink(fragment, number, title, pageURL),
		Tags:            append([]string(nil), b.baseTags...),
	}
	if downloadURL == "" {
		chart.Tags = append(chart.Tags, "missing-download")
	}
	if number > 0 {
		chart.ID = fmt.Sprintf("%s-%d", b.source.Name, number)
	} else {
		chart.ID = b.GenerateID(chart)
	}
	return chart, nil
}

// findHeading locates the "#N. Title" heading, preferring heading elements
// over a raw text scan so adjacent text nodes cannot bleed into the title.
func findHeading(fragment *goquery.Selection, text string) (number int, title string, ok bool) {
	fragment.Find("h1, h2, h3, .post-title").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		m := reHeading.FindStringSubmatch(normalizeText(sel.Text()))
		if m == nil {
			return true
		}
		number, _ = strconv.Atoi(m[1])
		title = strings.TrimSpace(m[2])
		return false
	})
	if title == "" {
		m := reHeading.FindStringSubmatch(text)
		if m == nil {
			return 0, "", false
		}
		number, _ = strconv.Atoi(m[1])
		title = strings.TrimSpace(m[2])
	}
	return number, title, title != ""
}

// matchMetadata locates the artist/BPM/difficulty line. The title-anchored
// pattern runs first; the plain BPM pattern is the fallback, with the
// artist recovered from the text segment before the match.
func (b *Blogger) matchMetadata(text, title string) (artist, bpm, diffList string, ok bool) {
	matchers := []TextMatcher{
		{
			Name:    "title-artist-bpm",
			Pattern: regexp.MustCompile(`(?s)` + regexp.QuoteMeta(title) + `\s*/\s*(.+?)` + reBPMTail),
		},
		{
			Name:    "bpm-only",
			Pattern: reBPMOnly,
		},
	}

	name, groups, start, ok := FirstTextMatch(matchers, text)
	if !ok {
		return "", "", "", false
	}

	switch name {
	case "title-artist-bpm":
		artist = strings.TrimSpace(groups[1])
		bpm = compactBPM(groups[2])
		diffList = groups[3]
	case "bpm-only":
		artist = artistFromPrefix(text[:start])
		bpm = compactBPM(groups[1])
		diffList = groups[2]
	}
	return artist, bpm, diffList, true
}

// artistFromPrefix recovers the artist from the text preceding the BPM
// line: split on "/" and take the last non-empty segment.
func artistFromPrefix(prefix string) string {
	segments := strings.Split(prefix, "/")
	for i := len(segments) - 1; i >= 0; i-- {
		if seg := strings.TrimSpace(segments[i]); seg != "" {
			return lastLine(seg)
		}
	}
	return ""
}

func lastLine(s string) string {
	lines := strings.Split(s, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return ""
}

// resolveDownloadURL runs the link cascade. Folder links are never stored:
// when only the shared batch folder remains the chart keeps an empty URL
// and is flagged for later repair.
func (b *Blogger) resolveDownloadURL(fragment *goquery.Selection, rawHTML string, number int) string {
	matcher, url, ok := FirstLink(b.links, fragment, rawHTML)
	if ok && !reDriveFolder.MatchString(url) {
		slog.Debug("resolved download link",
			slog.String("source", b.source.Name),
			slog.String("matcher", matcher),
		)
		return url
	}

	bucket := batchBucketFor(number)
	if folder := b.source.Settings[fmt.Sprintf("batch_folder_%d", bucket)]; folder != "" {
		slog.Debug("only batch folder available, leaving download unset",
			slog.String("source", b.source.Name),
			slog.Int("chart", number),
			slog.Int("bucket", bucket),
		)
	}
	return ""
}

// resolvePageLink prefers an anchor referencing the chart number or title,
// falling back to the page the fragment came from.
func (b *Blogger) resolvePageLink(fragment *goquery.Selection, number int, title, pageURL string) string {
	ref := fmt.Sprintf("#%d", number)
	found := ""
	fragment.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		text := normalizeText(a.Text())
		if strings.Contains(text, ref) || (len(title) >= 4 && strings.Contains(text, title)) {
			found, _ = a.Attr("href")
			return false
		}
		return true
	})
	if found != "" {
		return found
	}
	return pageURL
}

// Validate is the storage gate (spec'd separately from extraction): title,
// artist, provenance URL, and at least one in-range difficulty are
// required. A folder download link is filtered to empty here, never
// rejected as a whole chart, so the record survives for later link repair.
func (b *Blogger) Validate(chart *models.Chart) error {
	if chart == nil {
		return &ValidationError{Reason: "chart is nil"}
	}
	if strings.TrimSpace(chart.Title) == "" {
		return &ValidationError{Reason: "missing title"}
	}
	if strings.TrimSpace(chart.Artist) == "" {
		return &ValidationError{Reason: fmt.Sprintf("missing artist for %q", chart.Title)}
	}
	if strings.TrimSpace(chart.OriginalPageURL) == "" {
		return &ValidationError{Reason: fmt.Sprintf("missing page url for %q", chart.Title)}
	}
	if len(chart.Difficulties) == 0 {
		return &ValidationError{Reason: fmt.Sprintf("no valid difficulties for %q", chart.Title)}
	}
	for _, d := range chart.Difficulties {
		if d <= 0 || d > 10 {
			return &ValidationError{Reason: fmt.Sprintf("difficulty %.2f out of range for %q", d, chart.Title)}
		}
	}
	if reDriveFolder.MatchString(chart.DownloadURL) {
		chart.DownloadURL = ""
	}
	return nil
}

// GenerateID derives the stable dedup key from (source, title, artist).
// Extraction prefers the source-native chart number when the heading
// carries one; this digest form is the fallback for unnumbered posts.
// Both forms are deterministic, so re-scraping the same post upserts
// instead of duplicating.
func (b *Blogger) GenerateID(chart *models.Chart) string {
	sum := sha1.Sum([]byte(strings.ToLower(chart.Title) + "|" + strings.ToLower(chart.Artist)))
	return fmt.Sprintf("%s-%s", b.source.Name, hex.EncodeToString(sum[:])[:12])
}

func batchBucketFor(number int) int {
	if number <= 0 {
		return 0
	}
	return ((number - 1) / batchBucketSize) * batchBucketSize
}

func parseDifficulties(list string) []float64 {
	var out []float64
	for _, token := range strings.Split(list, "/") {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		v, err := strconv.ParseFloat(token, 64)
		if err != nil {
			continue
		}
		if v <= 0 || v > 10 {
			continue
		}
		out = append(out, v)
	}
	return out
}

func compactBPM(bpm string) string {
	return strings.ReplaceAll(strings.TrimSpace(bpm), " ", "")
}

func normalizeText(s string) string {
	return strings.ReplaceAll(s, " ", " ")
}
