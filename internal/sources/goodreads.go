package sources

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/bookshelf-tools/bookenrich/internal/extract"
)

// GoodreadsConfig tunes the detail-page scraper.
type GoodreadsConfig struct {
	UserAgent string
	// Delay is the minimum spacing between two page requests.
	Delay time.Duration
	// RetryDelay is the wait before the single retry of a transient failure.
	RetryDelay time.Duration
	// DetailPath marks a URL as a book detail page.
	DetailPath string
}

// Goodreads scrapes book detail pages.
type Goodreads struct {
	client  *http.Client
	cfg     GoodreadsConfig
	limiter *rate.Limiter
}

// NewGoodreads creates a page source sharing client.
func NewGoodreads(client *http.Client, cfg GoodreadsConfig) *Goodreads {
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.DetailPath == "" {
		cfg.DetailPath = "/book/show/"
	}
	return &Goodreads{
		client:  client,
		cfg:     cfg,
		limiter: newLimiter(cfg.Delay),
	}
}

func (g *Goodreads) Name() string { return "goodreads" }

// Fetch downloads key.URL, follows a differing canonical detail link once,
// checks the page is a book and extracts it.
func (g *Goodreads) Fetch(ctx context.Context, key LookupKey) Result {
	if strings.TrimSpace(key.URL) == "" {
		return noData(g.Name(), ErrNoKey)
	}

	body, final, err := g.fetch(ctx, key.URL)
	if err != nil {
		return noData(g.Name(), fmt.Errorf("failed to fetch %s: %w", key.URL, err))
	}
	doc, err := extract.Parse(body)
	if err != nil {
		return noData(g.Name(), fmt.Errorf("%w: %v", ErrUnrecognized, err))
	}

	if canon := resolve(final, doc.Canonical()); canon != "" && g.isDetail(canon) && !sameURL(canon, final) {
		slog.Debug("Following canonical link", "from", final, "to", canon)
		if body2, final2, err := g.fetch(ctx, canon); err != nil {
			slog.Warn("Failed to fetch canonical page, using original", "url", canon, "error", err)
		} else if doc2, err := extract.Parse(body2); err == nil {
			doc, final = doc2, final2
		}
	}

	if !doc.IsBook() {
		return noData(g.Name(), fmt.Errorf("%w: %s", ErrNotABook, final))
	}
	rec := doc.Record()
	if rec.IsEmpty() {
		return noData(g.Name(), fmt.Errorf("%w: %s", ErrUnrecognized, final))
	}
	rec.SetSource(final)
	return Result{Source: g.Name(), Record: rec}
}

// fetch GETs u, retrying exactly once after RetryDelay on a transient
// failure. It returns the body and the final URL after redirects.
func (g *Goodreads) fetch(ctx context.Context, u string) (string, string, error) {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			slog.Warn("Transient error fetching page, retrying", "url", u, "error", lastErr)
			select {
			case <-ctx.Done():
				return "", "", ctx.Err()
			case <-time.After(g.cfg.RetryDelay):
			}
		}
		if err := g.limiter.Wait(ctx); err != nil {
			return "", "", err
		}

		body, final, err := g.get(ctx, u)
		if err == nil {
			return body, final, nil
		}
		if !errors.Is(err, ErrTransient) {
			return "", "", err
		}
		lastErr = err
	}
	return "", "", lastErr
}

func (g *Goodreads) get(ctx context.Context, u string) (string, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", "", fmt.Errorf("%w: invalid url: %v", ErrNotFound, err)
	}
	req.Header.Set("User-Agent", g.cfg.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9,tr;q=0.8")
	req.Header.Set("Referer", "https://www.google.com/")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", "", transportError(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", "", statusError(resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", "", transportError(ctx, err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return "", "", fmt.Errorf("%w: empty body", ErrNotFound)
	}
	return string(data), resp.Request.URL.String(), nil
}

func (g *Goodreads) isDetail(u string) bool {
	pu, err := url.Parse(u)
	return err == nil && strings.Contains(pu.Path, g.cfg.DetailPath)
}

// resolve makes ref absolute against base.
func resolve(base, ref string) string {
	if ref == "" {
		return ""
	}
	b, err := url.Parse(base)
	if err != nil {
		return ""
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	return b.ResolveReference(r).String()
}

// sameURL compares two URLs ignoring query, fragment and a trailing slash.
func sameURL(a, b string) bool {
	norm := func(s string) string {
		u, err := url.Parse(s)
		if err != nil {
			return s
		}
		return strings.ToLower(u.Host) + strings.TrimSuffix(u.Path, "/")
	}
	return norm(a) == norm(b)
}
