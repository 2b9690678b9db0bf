package sources

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/bookshelf-tools/bookenrich/internal/record"
)

const defaultOpenLibraryURL = "https://openlibrary.org"

// OpenLibraryConfig configures the Open Library source.
type OpenLibraryConfig struct {
	BaseURL     string
	UserAgent   string
	Preferences Preferences
	Delay       time.Duration
}

// OpenLibrary looks books up through the Books API (by ISBN) and the
// search API (by title and author).
type OpenLibrary struct {
	client  *http.Client
	cfg     OpenLibraryConfig
	limiter *rate.Limiter
}

// NewOpenLibrary creates the source on top of the shared client.
func NewOpenLibrary(client *http.Client, cfg OpenLibraryConfig) *OpenLibrary {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultOpenLibraryURL
	}
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	return &OpenLibrary{client: client, cfg: cfg, limiter: newLimiter(cfg.Delay)}
}

func (o *OpenLibrary) Name() string { return "openlibrary" }

// olBooksResponse is the jscmd=data shape of /api/books, keyed by bibkey.
type olBooksResponse map[string]struct {
	URL         string `json:"url"`
	Key         string `json:"key"`
	Title       string `json:"title"`
	Subtitle    string `json:"subtitle"`
	PublishDate string `json:"publish_date"`
	Pages       int    `json:"number_of_pages"`
	Authors     []struct {
		Name string `json:"name"`
	} `json:"authors"`
	Publishers []struct {
		Name string `json:"name"`
	} `json:"publishers"`
	Identifiers struct {
		ISBN10 []string `json:"isbn_10"`
		ISBN13 []string `json:"isbn_13"`
	} `json:"identifiers"`
	Cover struct {
		Small  string `json:"small"`
		Medium string `json:"medium"`
		Large  string `json:"large"`
	} `json:"cover"`
	Excerpts []struct {
		Text string `json:"text"`
	} `json:"excerpts"`
}

type olSearchResponse struct {
	NumFound int        `json:"numFound"`
	Docs     []olSearch `json:"docs"`
}

type olSearch struct {
	Key              string   `json:"key"`
	Title            string   `json:"title"`
	AuthorName       []string `json:"author_name"`
	Publisher        []string `json:"publisher"`
	FirstPublishYear int      `json:"first_publish_year"`
	Pages            int      `json:"number_of_pages_median"`
	ISBN             []string `json:"isbn"`
	Language         []string `json:"language"`
	CoverID          int      `json:"cover_i"`
	RatingsAverage   float64  `json:"ratings_average"`
	FirstSentence    []string `json:"first_sentence"`
}

// Fetch prefers the ISBN lookup and falls back to a title/author search.
func (o *OpenLibrary) Fetch(ctx context.Context, key LookupKey) Result {
	if isbn := record.NormalizeISBN(key.ISBN); len(isbn) == 10 || len(isbn) == 13 {
		return o.byISBN(ctx, isbn)
	}
	if strings.TrimSpace(key.Title) != "" {
		return o.search(ctx, key.Title, key.Author)
	}
	return noData(o.Name(), ErrNoKey)
}

func (o *OpenLibrary) byISBN(ctx context.Context, isbn string) Result {
	if err := o.limiter.Wait(ctx); err != nil {
		return noData(o.Name(), err)
	}
	bibkey := "ISBN:" + isbn
	u := fmt.Sprintf("%s/api/books?bibkeys=%s&format=json&jscmd=data", o.cfg.BaseURL, url.QueryEscape(bibkey))

	slog.Debug("Querying Open Library books API", "isbn", isbn)
	var resp olBooksResponse
	if err := getJSON(ctx, o.client, u, o.cfg.UserAgent, &resp); err != nil {
		return noData(o.Name(), err)
	}
	book, ok := resp[bibkey]
	if !ok {
		return noData(o.Name(), fmt.Errorf("%w: %s", ErrNotFound, bibkey))
	}

	var p record.Partial
	p.SetTitle(book.Title)
	for _, a := range book.Authors {
		p.AddAuthor(a.Name)
	}
	pubs := make([]string, 0, len(book.Publishers))
	for _, pub := range book.Publishers {
		pubs = append(pubs, pub.Name)
	}
	p.SetPublisher(o.cfg.Preferences.preferredPublisher(pubs))
	p.SetYearPublished(book.PublishDate)
	p.SetPages(book.Pages)
	for _, id := range append(book.Identifiers.ISBN13, book.Identifiers.ISBN10...) {
		if n := record.NormalizeISBN(id); (len(n) == 13 && p.ISBN13 == "") || (len(n) == 10 && p.ISBN == "") {
			p.SetISBN(n)
		}
	}
	p.SetISBN(isbn)
	if book.Cover.Large != "" {
		p.SetCoverURL(book.Cover.Large)
	} else {
		p.SetCoverURL(book.Cover.Medium)
	}
	if len(book.Excerpts) > 0 {
		p.SetDescription(book.Excerpts[0].Text)
	}

	p = p.OrEmpty()
	if p.IsEmpty() {
		return noData(o.Name(), fmt.Errorf("%w: %s", ErrNotFound, bibkey))
	}
	p.SetSource(book.URL)
	return Result{Source: o.Name(), Record: p}
}

func (o *OpenLibrary) search(ctx context.Context, title, author string) Result {
	if err := o.limiter.Wait(ctx); err != nil {
		return noData(o.Name(), err)
	}
	params := url.Values{}
	params.Set("title", strings.TrimSpace(title))
	if author = strings.TrimSpace(author); author != "" {
		params.Set("author", author)
	}
	params.Set("limit", "5")
	params.Set("fields", "key,title,author_name,publisher,first_publish_year,number_of_pages_median,isbn,language,cover_i,ratings_average,first_sentence")
	u := o.cfg.BaseURL + "/search.json?" + params.Encode()

	slog.Debug("Querying Open Library search", "title", title, "author", author)
	var resp olSearchResponse
	if err := getJSON(ctx, o.client, u, o.cfg.UserAgent, &resp); err != nil {
		return noData(o.Name(), err)
	}
	if len(resp.Docs) == 0 {
		return noData(o.Name(), fmt.Errorf("%w: no search results for %q", ErrNotFound, title))
	}

	i := o.cfg.Preferences.choose(len(resp.Docs), func(i int) ([]string, string) {
		lang := ""
		if len(resp.Docs[i].Language) > 0 {
			lang = resp.Docs[i].Language[0]
		}
		return resp.Docs[i].Publisher, lang
	})
	doc := resp.Docs[i]

	var p record.Partial
	p.SetTitle(doc.Title)
	for _, a := range doc.AuthorName {
		p.AddAuthor(a)
	}
	p.SetPublisher(o.cfg.Preferences.preferredPublisher(doc.Publisher))
	// search docs carry no edition date, so the first year fills both
	p.SetOriginalPublicationYear(strconv.Itoa(doc.FirstPublishYear))
	p.SetYearPublished(strconv.Itoa(doc.FirstPublishYear))
	p.SetPages(doc.Pages)
	for _, id := range doc.ISBN {
		if n := record.NormalizeISBN(id); (len(n) == 13 && p.ISBN13 == "") || (len(n) == 10 && p.ISBN == "") {
			p.SetISBN(n)
		}
	}
	if len(doc.Language) > 0 {
		p.SetLanguage(doc.Language[0])
	}
	p.SetRating(doc.RatingsAverage)
	if doc.CoverID > 0 {
		p.SetCoverURL(fmt.Sprintf("https://covers.openlibrary.org/b/id/%d-L.jpg", doc.CoverID))
	}
	if len(doc.FirstSentence) > 0 {
		p.SetDescription(doc.FirstSentence[0])
	}

	p = p.OrEmpty()
	if p.IsEmpty() {
		return noData(o.Name(), fmt.Errorf("%w: empty search result for %q", ErrNotFound, title))
	}
	p.SetSource(o.cfg.BaseURL + doc.Key)
	return Result{Source: o.Name(), Record: p}
}
