package record

import (
	"html"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// Field names one attribute of a Partial record.
type Field int

const (
	Title Field = iota
	Author
	Publisher
	YearPublished
	OriginalPublicationYear
	NumberOfPages
	Language
	ISBN
	ISBN13
	AverageRating
	CoverURL
	Description
	SourceIdentifier
)

// Fields lists every field in declaration order.
var Fields = []Field{
	Title, Author, Publisher, YearPublished, OriginalPublicationYear, NumberOfPages,
	Language, ISBN, ISBN13, AverageRating, CoverURL, Description, SourceIdentifier,
}

var fieldNames = map[Field]string{
	Title:                   "Title",
	Author:                  "Author",
	Publisher:               "Publisher",
	YearPublished:           "Year Published",
	OriginalPublicationYear: "Original Publication Year",
	NumberOfPages:           "Number of Pages",
	Language:                "Language",
	ISBN:                    "ISBN",
	ISBN13:                  "ISBN13",
	AverageRating:           "Average Rating",
	CoverURL:                "Cover URL",
	Description:             "Description",
	SourceIdentifier:        "Source",
}

func (f Field) String() string {
	if n, ok := fieldNames[f]; ok {
		return n
	}
	return "Field(" + strconv.Itoa(int(f)) + ")"
}

// Length limits applied by the setters.
const (
	MaxTitle       = 1000
	MaxAuthor      = 1000
	MaxPublisher   = 200
	MaxDescription = 1900
	MinYear        = 1450
)

// Partial is a best-effort book record. The zero value of every field means
// the field is unset. Populate it through the Set* methods so every value is
// normalised the same way regardless of which source produced it.
type Partial struct {
	Title                   string   `json:"title,omitempty" yaml:"title,omitempty"`
	Authors                 []string `json:"authors,omitempty" yaml:"authors,omitempty"`
	Publisher               string   `json:"publisher,omitempty" yaml:"publisher,omitempty"`
	YearPublished           int      `json:"year_published,omitempty" yaml:"year_published,omitempty"`
	OriginalPublicationYear int      `json:"original_publication_year,omitempty" yaml:"original_publication_year,omitempty"`
	NumberOfPages           int      `json:"number_of_pages,omitempty" yaml:"number_of_pages,omitempty"`
	Language                string   `json:"language,omitempty" yaml:"language,omitempty"`
	ISBN                    string   `json:"isbn,omitempty" yaml:"isbn,omitempty"`
	ISBN13                  string   `json:"isbn13,omitempty" yaml:"isbn13,omitempty"`
	AverageRating           float64  `json:"average_rating,omitempty" yaml:"average_rating,omitempty"`
	CoverURL                string   `json:"cover_url,omitempty" yaml:"cover_url,omitempty"`
	Description             string   `json:"description,omitempty" yaml:"description,omitempty"`
	SourceIdentifier        string   `json:"source,omitempty" yaml:"source,omitempty"`
}

// Author returns the author list flattened for single-valued stores.
func (p Partial) Author() string {
	return strings.Join(p.Authors, ", ")
}

// Has reports whether f carries a value.
func (p Partial) Has(f Field) bool {
	switch f {
	case Title:
		return p.Title != ""
	case Author:
		return len(p.Authors) > 0
	case Publisher:
		return p.Publisher != ""
	case YearPublished:
		return p.YearPublished != 0
	case OriginalPublicationYear:
		return p.OriginalPublicationYear != 0
	case NumberOfPages:
		return p.NumberOfPages != 0
	case Language:
		return p.Language != ""
	case ISBN:
		return p.ISBN != ""
	case ISBN13:
		return p.ISBN13 != ""
	case AverageRating:
		return p.AverageRating != 0
	case CoverURL:
		return p.CoverURL != ""
	case Description:
		return p.Description != ""
	case SourceIdentifier:
		return p.SourceIdentifier != ""
	}
	return false
}

// Text renders f as a string, the form used for text columns and comparison.
func (p Partial) Text(f Field) string {
	switch f {
	case Title:
		return p.Title
	case Author:
		return p.Author()
	case Publisher:
		return p.Publisher
	case YearPublished:
		return itoa(p.YearPublished)
	case OriginalPublicationYear:
		return itoa(p.OriginalPublicationYear)
	case NumberOfPages:
		return itoa(p.NumberOfPages)
	case Language:
		return p.Language
	case ISBN:
		return p.ISBN
	case ISBN13:
		return p.ISBN13
	case AverageRating:
		if p.AverageRating == 0 {
			return ""
		}
		return strconv.FormatFloat(p.AverageRating, 'f', -1, 64)
	case CoverURL:
		return p.CoverURL
	case Description:
		return p.Description
	case SourceIdentifier:
		return p.SourceIdentifier
	}
	return ""
}

// Number returns the numeric value of f and whether f is numeric and set.
func (p Partial) Number(f Field) (float64, bool) {
	switch f {
	case YearPublished:
		return float64(p.YearPublished), p.YearPublished != 0
	case OriginalPublicationYear:
		return float64(p.OriginalPublicationYear), p.OriginalPublicationYear != 0
	case NumberOfPages:
		return float64(p.NumberOfPages), p.NumberOfPages != 0
	case AverageRating:
		return p.AverageRating, p.AverageRating != 0
	}
	return 0, false
}

// Missing returns the fields from want that p does not carry.
func (p Partial) Missing(want ...Field) []Field {
	var out []Field
	for _, f := range want {
		if !p.Has(f) {
			out = append(out, f)
		}
	}
	return out
}

// IsEmpty reports whether no data field is set. SourceIdentifier alone does
// not count as data.
func (p Partial) IsEmpty() bool {
	for _, f := range Fields {
		if f != SourceIdentifier && p.Has(f) {
			return false
		}
	}
	return true
}

// OrEmpty returns p, or the empty record when p lacks all identifying
// fields (title, author, cover and ISBN).
func (p Partial) OrEmpty() Partial {
	if !p.Has(Title) && !p.Has(Author) && !p.Has(CoverURL) && !p.Has(ISBN) && !p.Has(ISBN13) {
		return Partial{}
	}
	return p
}

var (
	spaceRe   = regexp.MustCompile(`\s+`)
	digitsRe  = regexp.MustCompile(`\d`)
	yearRe    = regexp.MustCompile(`\b(\d{4})\b`)
	leadingRe = regexp.MustCompile(`^\s*(\d{4})`)
	intRe     = regexp.MustCompile(`\d{1,5}`)
)

// Clean unescapes entities, collapses whitespace and trims.
func Clean(s string) string {
	s = html.UnescapeString(s)
	s = strings.ReplaceAll(s, "\u00a0", " ")
	return strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
}

// Truncate shortens s to at most n runes.
func Truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:n]))
}

// SetTitle stores a cleaned title capped at MaxTitle runes.
func (p *Partial) SetTitle(s string) bool {
	s = Truncate(Clean(s), MaxTitle)
	if s == "" {
		return false
	}
	p.Title = s
	return true
}

// AddAuthor appends a cleaned author name, skipping duplicates.
func (p *Partial) AddAuthor(s string) bool {
	s = Truncate(Clean(s), MaxAuthor)
	if s == "" {
		return false
	}
	for _, a := range p.Authors {
		if strings.EqualFold(a, s) {
			return false
		}
	}
	p.Authors = append(p.Authors, s)
	return true
}

// SetPublisher stores a publisher name. Values containing digits or shorter
// than two characters are rejected.
func (p *Partial) SetPublisher(s string) bool {
	s = Clean(s)
	s = strings.Trim(s, " ,;:.-")
	if utf8.RuneCountInString(s) < 2 || digitsRe.MatchString(s) {
		return false
	}
	p.Publisher = Truncate(s, MaxPublisher)
	return true
}

// SetYearPublished stores the first plausible 4-digit year found in s.
func (p *Partial) SetYearPublished(s string) bool {
	if y := ParseYear(s); y != 0 {
		p.YearPublished = y
		return true
	}
	return false
}

// SetOriginalPublicationYear stores the first plausible 4-digit year in s.
func (p *Partial) SetOriginalPublicationYear(s string) bool {
	if y := ParseYear(s); y != 0 {
		p.OriginalPublicationYear = y
		return true
	}
	return false
}

// SetPages stores a positive page count.
func (p *Partial) SetPages(n int) bool {
	if n <= 0 || n > 99999 {
		return false
	}
	p.NumberOfPages = n
	return true
}

// SetPagesText parses the first integer in s as a page count.
func (p *Partial) SetPagesText(s string) bool {
	m := intRe.FindString(s)
	if m == "" {
		return false
	}
	n, _ := strconv.Atoi(m)
	return p.SetPages(n)
}

// SetLanguage stores the normalised language code.
func (p *Partial) SetLanguage(s string) bool {
	if code := NormalizeLanguage(s); code != "" {
		p.Language = code
		return true
	}
	return false
}

// SetISBN classifies s by length after stripping separators and stores it
// as ISBN or ISBN13.
func (p *Partial) SetISBN(s string) bool {
	n := NormalizeISBN(s)
	switch {
	case len(n) == 13 && (strings.HasPrefix(n, "978") || strings.HasPrefix(n, "979")):
		p.ISBN13 = n
		return true
	case len(n) == 10:
		p.ISBN = n
		return true
	}
	return false
}

// SetRating stores an average rating in (0, 5].
func (p *Partial) SetRating(v float64) bool {
	if v <= 0 || v > 5 {
		return false
	}
	p.AverageRating = v
	return true
}

// SetRatingText parses s as a rating.
func (p *Partial) SetRatingText(s string) bool {
	v, err := strconv.ParseFloat(strings.ReplaceAll(Clean(s), ",", "."), 64)
	if err != nil {
		return false
	}
	return p.SetRating(v)
}

// SetCoverURL stores an absolute http(s) cover URL that is not a known
// placeholder image.
func (p *Partial) SetCoverURL(s string) bool {
	s = strings.TrimSpace(html.UnescapeString(s))
	if !strings.HasPrefix(s, "http://") && !strings.HasPrefix(s, "https://") {
		return false
	}
	if IsPlaceholderCover(s) {
		return false
	}
	p.CoverURL = s
	return true
}

// SetDescription stores HTML-free description text capped at MaxDescription.
func (p *Partial) SetDescription(s string) bool {
	s = Truncate(Clean(StripHTML(s)), MaxDescription)
	if s == "" {
		return false
	}
	p.Description = s
	return true
}

// SetSource records where the data came from.
func (p *Partial) SetSource(s string) {
	p.SourceIdentifier = strings.TrimSpace(s)
}

var placeholderCovers = []string{"nophoto", "no-cover", "nocover", "no_cover", "placeholder"}

// IsPlaceholderCover reports whether u points at a generic "no image" asset.
func IsPlaceholderCover(u string) bool {
	lu := strings.ToLower(u)
	for _, p := range placeholderCovers {
		if strings.Contains(lu, p) {
			return true
		}
	}
	return false
}

// ParseYear returns the first 4-digit token of s within MinYear and next
// year, preferring a leading token as found in ISO dates.
func ParseYear(s string) int {
	if m := leadingRe.FindStringSubmatch(s); m != nil {
		if y := validYear(m[1]); y != 0 {
			return y
		}
	}
	for _, m := range yearRe.FindAllStringSubmatch(s, -1) {
		if y := validYear(m[1]); y != 0 {
			return y
		}
	}
	return 0
}

func validYear(s string) int {
	y, err := strconv.Atoi(s)
	if err != nil || y < MinYear || y > time.Now().Year()+1 {
		return 0
	}
	return y
}

// NormalizeISBN strips everything but digits and a trailing X.
func NormalizeISBN(s string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(s) {
		if (r >= '0' && r <= '9') || r == 'X' {
			b.WriteRune(r)
		}
	}
	n := b.String()
	if i := strings.IndexByte(n, 'X'); i >= 0 && i != len(n)-1 {
		return ""
	}
	return n
}

func itoa(n int) string {
	if n == 0 {
		return ""
	}
	return strconv.Itoa(n)
}
