// Package extract turns the HTML of a book detail page into a record.Partial.
//
// Every field is resolved through the same priority chain: structured
// JSON-LD first, then social-preview meta tags, then CSS selectors for the
// known page layouts, and finally anchored text patterns over the page's
// details block. The first strategy that yields a valid value wins.
package extract

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/bookshelf-tools/bookenrich/internal/record"
)

// Document is a parsed detail page.
type Document struct {
	doc *goquery.Document
	ld  map[string]any
}

// Parse parses raw HTML. It fails only when the input cannot be tokenized.
func Parse(html string) (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse html: %w", err)
	}
	d := &Document{doc: doc}
	d.ld = d.findBookLD()
	return d, nil
}

// Extract parses html and returns the best-effort record. Pages with no
// title, author, cover or ISBN yield the empty record.
func Extract(html string) record.Partial {
	d, err := Parse(html)
	if err != nil {
		return record.Partial{}
	}
	return d.Record()
}

// Canonical returns the href of <link rel="canonical">, if any.
func (d *Document) Canonical() string {
	href, _ := d.doc.Find(`link[rel="canonical"]`).First().Attr("href")
	return strings.TrimSpace(href)
}

// IsBook reports whether the page declares itself as a book through JSON-LD,
// OpenGraph or schema.org microdata.
func (d *Document) IsBook() bool {
	if d.ld != nil {
		return true
	}
	if strings.Contains(strings.ToLower(d.meta("og:type")), "book") {
		return true
	}
	return d.doc.Find(`[itemtype*="schema.org/Book"]`).Length() > 0
}

// minTextYear is the earliest year accepted from details text.
const minTextYear = 1500

var (
	titleSelectors = []string{
		`h1[data-testid="bookTitle"]`,
		`#bookTitle`,
		`h1[itemprop="name"]`,
	}
	authorSelectors = []string{
		`[data-testid="name"]`,
		`a[data-testid="authorName"]`,
		`a.authorName span[itemprop="name"]`,
		`a.authorName span`,
		`a.authorName`,
		`[itemprop="author"] [itemprop="name"]`,
	}
	coverSelectors = []string{
		`img.ResponsiveImage`,
		`#coverImage`,
		`img[itemprop="image"]`,
	}
	descriptionSelectors = []string{
		`[data-testid="description"] .Formatted`,
		`[data-testid="description"]`,
		`#description span[style*="display:none"]`,
		`#description span`,
	}
	ratingSelectors = []string{
		`[itemprop="ratingValue"]`,
		`.RatingStatistics__rating`,
	}
	// details blocks of the current and classic layouts
	regionSelectors = []string{
		`.FeaturedDetails`,
		`[data-testid="publicationInfo"]`,
		`.BookDetails`,
		`#details`,
		`#bookDataBox`,
	}

	siteSuffixRe = regexp.MustCompile(`(?i)\s+[|—–-]\s+(?:goodreads|google books|open library)\s*$`)
	pagesRe      = regexp.MustCompile(`(?i)\b(\d{1,5})\s*(?:pages|page|sayfa)\b`)
	publishedRe  = regexp.MustCompile(`(?i)^(first\s+)?published\b\s*(.*)$`)
	parenRe      = regexp.MustCompile(`\(([^)]*)\)`)
	byRe         = regexp.MustCompile(`(?i)\s+by\s+`)
	combinedByRe = regexp.MustCompile(`^(.+?)\s+by\s+(.+)$`)
	numberRe     = regexp.MustCompile(`\d+`)
	isbn13Re     = regexp.MustCompile(`\b97[89](?:[-\s]?\d){10}\b`)
	isbn10Re     = regexp.MustCompile(`\b\d{9}[\dXx]\b`)
	publisherLbl = regexp.MustCompile(`(?i)^(?:publisher|yayınevi|yayıncı)\s*:?\s*(.*)$`)
	pubDateLbl   = regexp.MustCompile(`(?i)^(?:publication date|yayın tarihi|basım tarihi)\s*:?\s*(.*)$`)
	languageLbl  = regexp.MustCompile(`(?i)^(?:edition language|language|dil)\s*:?\s*(.*)$`)
	isbnLbl      = regexp.MustCompile(`(?i)^isbn(?:-?1[03])?\s*:?\s*(.*)$`)
)

// Record runs every field strategy and returns the combined result.
func (d *Document) Record() record.Partial {
	var p record.Partial
	region := d.detailsLines()

	titleCombined := d.title(&p)
	d.authors(&p)
	if titleCombined {
		splitCombinedTitle(&p)
	}

	d.publication(&p, region)
	d.pages(&p, region)
	d.language(&p, region)
	d.isbns(&p, region)
	d.rating(&p)
	d.cover(&p)
	d.description(&p)

	if c := d.Canonical(); c != "" {
		p.SetSource(c)
	} else {
		p.SetSource(d.meta("og:url"))
	}
	return p.OrEmpty()
}

// title fills the title and reports whether it came from a combined
// "Title by Author" style signal (social tag or <title>).
func (d *Document) title(p *record.Partial) bool {
	clean := func(s string) string { return siteSuffixRe.ReplaceAllString(record.Clean(s), "") }

	if p.SetTitle(clean(ldText(d.ld["name"]))) {
		return false
	}
	if p.SetTitle(clean(d.meta("og:title"))) {
		return true
	}
	if p.SetTitle(clean(d.selectText(titleSelectors...))) {
		return false
	}
	return p.SetTitle(clean(d.doc.Find("title").First().Text()))
}

// splitCombinedTitle separates "Title by Author". With authors already
// known the split only happens when the tail names one of them, so titles
// such as "Stand by Me" survive.
func splitCombinedTitle(p *record.Partial) {
	m := combinedByRe.FindStringSubmatch(p.Title)
	if m == nil {
		return
	}
	if !p.Has(record.Author) {
		p.SetTitle(m[1])
		p.AddAuthor(m[2])
		return
	}
	tail := strings.ToLower(m[2])
	for _, a := range p.Authors {
		if strings.Contains(tail, strings.ToLower(a)) {
			p.SetTitle(m[1])
			return
		}
	}
}

func (d *Document) authors(p *record.Partial) {
	for _, name := range ldNames(d.ld["author"]) {
		p.AddAuthor(name)
	}
	if p.Has(record.Author) {
		return
	}
	if p.AddAuthor(d.meta("author")) {
		return
	}
	for _, name := range d.selectAll(authorSelectors...) {
		p.AddAuthor(name)
	}
}

// publication resolves YearPublished, OriginalPublicationYear and Publisher,
// which share the "Published <date> by <publisher>" line.
func (d *Document) publication(p *record.Partial, region []string) {
	p.SetPublisher(ldText(d.ld["publisher"]))
	p.SetYearPublished(ldText(d.ld["datePublished"]))
	if !p.Has(record.YearPublished) {
		p.SetYearPublished(d.meta("books:release_date"))
	}
	if !p.Has(record.YearPublished) {
		p.SetYearPublished(d.selectText(`[itemprop="datePublished"]`))
	}
	if !p.Has(record.Publisher) {
		p.SetPublisher(d.selectText(`[itemprop="publisher"]`))
	}

	for _, line := range region {
		m := publishedRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		rest := m[2]
		if m[1] != "" {
			if !p.Has(record.OriginalPublicationYear) {
				p.SetOriginalPublicationYear(textYear(rest))
			}
			continue
		}
		for _, pm := range parenRe.FindAllStringSubmatch(rest, -1) {
			if strings.Contains(strings.ToLower(pm[1]), "first published") && !p.Has(record.OriginalPublicationYear) {
				p.SetOriginalPublicationYear(textYear(pm[1]))
			}
		}
		rest = strings.TrimSpace(parenRe.ReplaceAllString(rest, ""))

		date, publisher := rest, ""
		if loc := byRe.FindStringIndex(rest); loc != nil {
			date, publisher = rest[:loc[0]], rest[loc[1]:]
		}
		if !p.Has(record.YearPublished) {
			p.SetYearPublished(textYear(date))
		}
		if !p.Has(record.Publisher) && publisher != "" {
			p.SetPublisher(publisher)
		}
	}

	if !p.Has(record.Publisher) {
		p.SetPublisher(labeled(region, publisherLbl))
	}
	if !p.Has(record.YearPublished) {
		p.SetYearPublished(textYear(labeled(region, pubDateLbl)))
	}
}

// textYear reads a year from free page text, accepted from minTextYear on.
func textYear(s string) string {
	if y := record.ParseYear(s); y >= minTextYear {
		return strconv.Itoa(y)
	}
	return ""
}

func (d *Document) pages(p *record.Partial, region []string) {
	if n, ok := ldInt(d.ld["numberOfPages"]); ok && p.SetPages(n) {
		return
	}
	if p.SetPagesText(d.meta("books:page_count")) {
		return
	}
	if p.SetPagesText(d.selectText(`[itemprop="numberOfPages"]`)) {
		return
	}
	if m := pagesRe.FindStringSubmatch(d.selectText(`[data-testid="pagesFormat"]`)); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil && p.SetPages(n) {
			return
		}
	}
	for _, line := range region {
		if m := pagesRe.FindStringSubmatch(line); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil && p.SetPages(n) {
				return
			}
		}
	}
}

func (d *Document) language(p *record.Partial, region []string) {
	if p.SetLanguage(ldText(d.ld["inLanguage"])) {
		return
	}
	if p.SetLanguage(d.selectText(`[itemprop="inLanguage"]`)) {
		return
	}
	p.SetLanguage(labeled(region, languageLbl))
}

func (d *Document) isbns(p *record.Partial, region []string) {
	candidates := []string{
		ldText(d.ld["isbn"]),
		d.meta("books:isbn"),
		d.selectText(`[itemprop="isbn"]`),
	}
	for _, line := range region {
		if m := isbn13Re.FindString(line); m != "" {
			candidates = append(candidates, m)
		}
	}
	if v := labeled(region, isbnLbl); v != "" {
		candidates = append(candidates, isbn10Re.FindString(v))
	}

	for _, c := range candidates {
		n := record.NormalizeISBN(c)
		switch {
		case len(n) == 13 && !p.Has(record.ISBN13):
			p.SetISBN(n)
		case len(n) == 10 && !p.Has(record.ISBN):
			p.SetISBN(n)
		}
	}
}

func (d *Document) rating(p *record.Partial) {
	if agg, ok := d.ld["aggregateRating"].(map[string]any); ok {
		if p.SetRatingText(ldText(agg["ratingValue"])) {
			return
		}
	}
	p.SetRatingText(d.selectText(ratingSelectors...))
}

func (d *Document) cover(p *record.Partial) {
	if p.SetCoverURL(ldText(d.ld["image"])) {
		return
	}
	if p.SetCoverURL(d.meta("og:image")) {
		return
	}
	for _, sel := range coverSelectors {
		if src, ok := d.doc.Find(sel).First().Attr("src"); ok && p.SetCoverURL(src) {
			return
		}
	}
}

func (d *Document) description(p *record.Partial) {
	if p.SetDescription(ldText(d.ld["description"])) {
		return
	}
	if p.SetDescription(d.meta("og:description")) {
		return
	}
	if p.SetDescription(d.meta("description")) {
		return
	}
	p.SetDescription(d.selectText(descriptionSelectors...))
}

// meta returns the content of a <meta> tag addressed by property or name.
func (d *Document) meta(key string) string {
	sel := fmt.Sprintf(`meta[property=%q], meta[name=%q]`, key, key)
	content, _ := d.doc.Find(sel).First().Attr("content")
	return strings.TrimSpace(content)
}

// selectText returns the text of the first selector that matches a
// non-empty element.
func (d *Document) selectText(selectors ...string) string {
	for _, sel := range selectors {
		if s := record.Clean(d.doc.Find(sel).First().Text()); s != "" {
			return s
		}
	}
	return ""
}

// selectAll returns the texts of every element matched by the first
// productive selector.
func (d *Document) selectAll(selectors ...string) []string {
	for _, sel := range selectors {
		var out []string
		d.doc.Find(sel).Each(func(_ int, s *goquery.Selection) {
			if t := record.Clean(s.Text()); t != "" {
				out = append(out, t)
			}
		})
		if len(out) > 0 {
			return out
		}
	}
	return nil
}

// detailsLines returns the text lines of the details block. The whole body
// is used only when no details block exists.
func (d *Document) detailsLines() []string {
	region := d.doc.Find(strings.Join(regionSelectors, ", "))
	if region.Length() == 0 {
		region = d.doc.Find("body")
	}
	return blockLines(region.Nodes)
}

// labeled finds "<label>: value" or a label line followed by its value line.
func labeled(lines []string, label *regexp.Regexp) string {
	for i, line := range lines {
		m := label.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		if v := strings.TrimSpace(m[1]); v != "" {
			return v
		}
		if i+1 < len(lines) {
			return lines[i+1]
		}
	}
	return ""
}

// findBookLD returns the first JSON-LD object typed as a Book.
func (d *Document) findBookLD() map[string]any {
	var found map[string]any
	d.doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		var v any
		if err := json.Unmarshal([]byte(s.Text()), &v); err != nil {
			return true
		}
		found = findBook(v)
		return found == nil
	})
	return found
}

func findBook(v any) map[string]any {
	switch t := v.(type) {
	case []any:
		for _, it := range t {
			if b := findBook(it); b != nil {
				return b
			}
		}
	case map[string]any:
		if isBookType(t["@type"]) {
			return t
		}
		if g, ok := t["@graph"]; ok {
			return findBook(g)
		}
	}
	return nil
}

func isBookType(v any) bool {
	switch t := v.(type) {
	case string:
		return t == "Book"
	case []any:
		for _, it := range t {
			if s, ok := it.(string); ok && s == "Book" {
				return true
			}
		}
	}
	return false
}

// ldText flattens a JSON-LD value to text: strings as-is, numbers
// formatted, objects by their name, lists by their first usable element.
func ldText(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case map[string]any:
		if s := ldText(t["name"]); s != "" {
			return s
		}
		return ldText(t["url"])
	case []any:
		for _, it := range t {
			if s := ldText(it); s != "" {
				return s
			}
		}
	}
	return ""
}

func ldNames(v any) []string {
	if list, ok := v.([]any); ok {
		var out []string
		for _, it := range list {
			if s := ldText(it); s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	if s := ldText(v); s != "" {
		return []string{s}
	}
	return nil
}

func ldInt(v any) (int, bool) {
	switch t := v.(type) {
	case float64:
		return int(t), true
	case string:
		if m := numberRe.FindString(t); m != "" {
			n, err := strconv.Atoi(m)
			return n, err == nil
		}
	}
	return 0, false
}
