package sources

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
	books "google.golang.org/api/books/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/bookshelf-tools/bookenrich/internal/record"
)

// GoogleBooksConfig configures the Google Books volumes search.
type GoogleBooksConfig struct {
	APIKey string
	// Endpoint overrides the API base URL; it must end with a slash.
	Endpoint string
	// LangRestrict limits free-text searches to one language ("tr").
	LangRestrict string
	Preferences  Preferences
	Delay        time.Duration
	MaxResults   int64
}

// GoogleBooks looks volumes up through the Books API.
type GoogleBooks struct {
	svc     *books.Service
	cfg     GoogleBooksConfig
	limiter *rate.Limiter
}

// NewGoogleBooks creates the source on top of the shared client.
func NewGoogleBooks(ctx context.Context, client *http.Client, cfg GoogleBooksConfig) (*GoogleBooks, error) {
	opts := []option.ClientOption{option.WithHTTPClient(client)}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}
	svc, err := books.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create books service: %w", err)
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 3
	}
	return &GoogleBooks{svc: svc, cfg: cfg, limiter: newLimiter(cfg.Delay)}, nil
}

func (g *GoogleBooks) Name() string { return "googlebooks" }

// Fetch searches by ISBN when one is known, otherwise by title and author.
func (g *GoogleBooks) Fetch(ctx context.Context, key LookupKey) Result {
	q, byISBN := g.query(key)
	if q == "" {
		return noData(g.Name(), ErrNoKey)
	}
	if err := g.limiter.Wait(ctx); err != nil {
		return noData(g.Name(), err)
	}

	call := g.svc.Volumes.List(q).MaxResults(g.cfg.MaxResults).PrintType("books").Context(ctx)
	if !byISBN && g.cfg.LangRestrict != "" {
		call = call.LangRestrict(strings.ToLower(g.cfg.LangRestrict))
	}
	var callOpts []googleapi.CallOption
	if g.cfg.APIKey != "" {
		callOpts = append(callOpts, googleapi.QueryParameter("key", g.cfg.APIKey))
	}

	slog.Debug("Querying Google Books", "q", q)
	vols, err := call.Do(callOpts...)
	if err != nil {
		return noData(g.Name(), classifyAPIError(ctx, err))
	}
	if vols == nil || len(vols.Items) == 0 {
		return noData(g.Name(), fmt.Errorf("%w: no volumes for %q", ErrNotFound, q))
	}

	items := make([]*books.VolumeVolumeInfo, 0, len(vols.Items))
	ids := make([]string, 0, len(vols.Items))
	for _, v := range vols.Items {
		if v != nil && v.VolumeInfo != nil {
			items = append(items, v.VolumeInfo)
			ids = append(ids, v.Id)
		}
	}
	if len(items) == 0 {
		return noData(g.Name(), fmt.Errorf("%w: no volume info for %q", ErrNotFound, q))
	}

	i := 0
	if !byISBN {
		i = g.cfg.Preferences.choose(len(items), func(i int) ([]string, string) {
			return []string{items[i].Publisher}, items[i].Language
		})
	}

	rec := volumeRecord(items[i])
	if rec.IsEmpty() {
		return noData(g.Name(), fmt.Errorf("%w: empty volume %s", ErrNotFound, ids[i]))
	}
	rec.SetSource("googlebooks:" + ids[i])
	return Result{Source: g.Name(), Record: rec}
}

func (g *GoogleBooks) query(key LookupKey) (string, bool) {
	if isbn := record.NormalizeISBN(key.ISBN); len(isbn) == 10 || len(isbn) == 13 {
		return "isbn:" + isbn, true
	}
	title := strings.ReplaceAll(strings.TrimSpace(key.Title), `"`, "")
	if title == "" {
		return "", false
	}
	q := fmt.Sprintf("intitle:%q", title)
	if author := strings.ReplaceAll(strings.TrimSpace(key.Author), `"`, ""); author != "" {
		q += fmt.Sprintf(" inauthor:%q", author)
	}
	return q, false
}

func volumeRecord(v *books.VolumeVolumeInfo) record.Partial {
	var p record.Partial
	p.SetTitle(v.Title)
	for _, a := range v.Authors {
		p.AddAuthor(a)
	}
	p.SetPublisher(v.Publisher)
	p.SetYearPublished(v.PublishedDate)
	p.SetPages(int(v.PageCount))
	p.SetLanguage(v.Language)
	for _, id := range v.IndustryIdentifiers {
		if id != nil && (id.Type == "ISBN_13" || id.Type == "ISBN_10") {
			p.SetISBN(id.Identifier)
		}
	}
	p.SetRating(v.AverageRating)
	if v.ImageLinks != nil {
		cover := v.ImageLinks.Thumbnail
		if cover == "" {
			cover = v.ImageLinks.SmallThumbnail
		}
		p.SetCoverURL(upgradeThumbnail(cover))
	}
	p.SetDescription(v.Description)
	return p.OrEmpty()
}

// upgradeThumbnail asks for the larger rendition and serves it over https.
func upgradeThumbnail(u string) string {
	u = strings.Replace(u, "zoom=1", "zoom=2", 1)
	u = strings.Replace(u, "&edge=curl", "", 1)
	if strings.HasPrefix(u, "http://") {
		u = "https://" + strings.TrimPrefix(u, "http://")
	}
	return u
}

func classifyAPIError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return statusError(gerr.Code)
	}
	return transportError(ctx, err)
}
