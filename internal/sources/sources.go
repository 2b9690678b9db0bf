// Package sources adapts external book data sources (detail pages and
// metadata APIs) to one Fetch contract that yields a record.Partial.
package sources

import (
	"context"
	"errors"
	"strings"

	"github.com/bookshelf-tools/bookenrich/internal/record"
)

var (
	// ErrTransient marks failures worth retrying: timeouts, throttling and
	// bot-protection responses.
	ErrTransient = errors.New("transient fetch failure")
	// ErrNotFound means the source answered but had nothing for the key.
	ErrNotFound = errors.New("no data")
	// ErrNoKey means the lookup key has nothing this source can query by.
	ErrNoKey = errors.New("no usable lookup key")
	// ErrNotABook means the fetched page is not a book detail page.
	ErrNotABook = errors.New("not a book detail page")
	// ErrUnrecognized means the page was a book page but nothing could be
	// extracted from it.
	ErrUnrecognized = errors.New("unrecognized page layout")
)

// DefaultUserAgent is sent when no USER_AGENT is configured.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// LookupKey holds everything a source may query by.
type LookupKey struct {
	URL    string
	ISBN   string
	Title  string
	Author string
}

// Result is the outcome of one Fetch. An empty Record means no data; Err
// then says why.
type Result struct {
	Source string
	Record record.Partial
	Err    error
}

// Found reports whether the source produced any data.
func (r Result) Found() bool {
	return !r.Record.IsEmpty()
}

// Source is one external data source. Fetch never fails outright: every
// problem is folded into an empty Result carrying the reason.
type Source interface {
	Name() string
	Fetch(ctx context.Context, key LookupKey) Result
}

func noData(source string, err error) Result {
	return Result{Source: source, Err: err}
}

// DefaultPublishers is the allow-list used to pick between free-text
// search results.
var DefaultPublishers = []string{
	"Türkiye İş Bankası", "İş Bankası", "Can Yayınları", "Yapı Kredi", "YKY",
	"İletişim", "Doğan Kitap", "Everest", "Epsilon", "Alfa", "Metis",
}

// Preferences steer disambiguation of free-text search results.
type Preferences struct {
	Publishers []string
	Language   string
}

// choose returns the index of the preferred candidate among n results:
// the first whose publisher is allow-listed, else the first in the
// preferred language, else 0.
func (p Preferences) choose(n int, at func(i int) (publishers []string, language string)) int {
	for i := 0; i < n; i++ {
		pubs, _ := at(i)
		if p.allowed(pubs...) {
			return i
		}
	}
	if want := record.NormalizeLanguage(p.Language); want != "" {
		for i := 0; i < n; i++ {
			if _, lang := at(i); record.NormalizeLanguage(lang) == want {
				return i
			}
		}
	}
	return 0
}

// preferredPublisher returns the allow-listed entry of pubs, or the first.
func (p Preferences) preferredPublisher(pubs []string) string {
	for _, pub := range pubs {
		if p.allowed(pub) {
			return pub
		}
	}
	if len(pubs) > 0 {
		return pubs[0]
	}
	return ""
}

func (p Preferences) allowed(pubs ...string) bool {
	for _, pub := range pubs {
		lp := strings.ToLower(pub)
		if lp == "" {
			continue
		}
		for _, a := range p.Publishers {
			if la := strings.ToLower(strings.TrimSpace(a)); la != "" && strings.Contains(lp, la) {
				return true
			}
		}
	}
	return false
}
