package sources

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bookPage(title, canonical string) string {
	link := ""
	if canonical != "" {
		link = fmt.Sprintf(`<link rel="canonical" href="%s">`, canonical)
	}
	return fmt.Sprintf(`<html><head>
<meta property="og:type" content="books.book">
<meta property="og:title" content="%s">
%s
</head><body>
<span data-testid="name">Panait Istrati</span>
<div class="FeaturedDetails"><p data-testid="pagesFormat">96 pages, Paperback</p></div>
</body></html>`, title, link)
}

func newTestGoodreads(srv *httptest.Server) *Goodreads {
	return NewGoodreads(srv.Client(), GoodreadsConfig{
		UserAgent:  "test-agent",
		RetryDelay: time.Millisecond,
	})
}

func TestGoodreadsFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))
		assert.Equal(t, "en-US,en;q=0.9,tr;q=0.8", r.Header.Get("Accept-Language"))
		assert.Equal(t, "https://www.google.com/", r.Header.Get("Referer"))
		fmt.Fprint(w, bookPage("İş Bulma İdarehanesi", "/book/show/1"))
	}))
	defer srv.Close()

	res := newTestGoodreads(srv).Fetch(context.Background(), LookupKey{URL: srv.URL + "/book/show/1"})
	require.NoError(t, res.Err)
	require.True(t, res.Found())
	assert.Equal(t, "goodreads", res.Source)
	assert.Equal(t, "İş Bulma İdarehanesi", res.Record.Title)
	assert.Equal(t, "Panait Istrati", res.Record.Author())
	assert.Equal(t, 96, res.Record.NumberOfPages)
}

func TestGoodreadsRetriesOnceOnTransientStatus(t *testing.T) {
	tests := []struct {
		name      string
		statuses  []int
		wantCalls int32
		wantErr   error
	}{
		{name: "503 then ok", statuses: []int{503, 200}, wantCalls: 2},
		{name: "403 then ok", statuses: []int{403, 200}, wantCalls: 2},
		{name: "403 twice", statuses: []int{403, 403, 200}, wantCalls: 2, wantErr: ErrTransient},
		{name: "404 is not retried", statuses: []int{404, 200}, wantCalls: 1, wantErr: ErrNotFound},
		{name: "429 is not retried", statuses: []int{429, 200}, wantCalls: 1, wantErr: ErrNotFound},
		{name: "502 is not retried", statuses: []int{502, 200}, wantCalls: 1, wantErr: ErrNotFound},
		{name: "504 is not retried", statuses: []int{504, 200}, wantCalls: 1, wantErr: ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				n := calls.Add(1)
				if status := tt.statuses[n-1]; status != http.StatusOK {
					w.WriteHeader(status)
					return
				}
				fmt.Fprint(w, bookPage("Kodin", ""))
			}))
			defer srv.Close()

			res := newTestGoodreads(srv).Fetch(context.Background(), LookupKey{URL: srv.URL + "/book/show/2"})
			assert.Equal(t, tt.wantCalls, calls.Load())
			if tt.wantErr != nil {
				assert.ErrorIs(t, res.Err, tt.wantErr)
				assert.False(t, res.Found())
				return
			}
			require.NoError(t, res.Err)
			assert.Equal(t, "Kodin", res.Record.Title)
		})
	}
}

func TestGoodreadsFollowsCanonicalOnce(t *testing.T) {
	var shortHits, fullHits atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/book/show/7", func(w http.ResponseWriter, r *http.Request) {
		shortHits.Add(1)
		fmt.Fprint(w, bookPage("Short Edition", "/book/show/7.Kyra_Kyralina"))
	})
	mux.HandleFunc("/book/show/7.Kyra_Kyralina", func(w http.ResponseWriter, r *http.Request) {
		fullHits.Add(1)
		// points back at the short URL; must not be followed again
		fmt.Fprint(w, bookPage("Kyra Kyralina", "/book/show/7"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	res := newTestGoodreads(srv).Fetch(context.Background(), LookupKey{URL: srv.URL + "/book/show/7"})
	require.NoError(t, res.Err)
	assert.Equal(t, "Kyra Kyralina", res.Record.Title)
	assert.Equal(t, int32(1), shortHits.Load())
	assert.Equal(t, int32(1), fullHits.Load())
}

func TestGoodreadsIgnoresNonDetailCanonical(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		fmt.Fprint(w, bookPage("Mihail", "/series/42"))
	}))
	defer srv.Close()

	res := newTestGoodreads(srv).Fetch(context.Background(), LookupKey{URL: srv.URL + "/book/show/3"})
	require.NoError(t, res.Err)
	assert.Equal(t, "Mihail", res.Record.Title)
	assert.Equal(t, int32(1), hits.Load())
}

func TestGoodreadsRejectsNonBookPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><head><title>Sign in | Goodreads</title></head><body><form action="/user/sign_in"></form></body></html>`)
	}))
	defer srv.Close()

	res := newTestGoodreads(srv).Fetch(context.Background(), LookupKey{URL: srv.URL + "/book/show/4"})
	assert.ErrorIs(t, res.Err, ErrNotABook)
	assert.True(t, res.Record.IsEmpty())
}

func TestGoodreadsUnrecognizedBookPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><head><meta property="og:type" content="books.book"></head><body><div id="details"><div>320 pages</div></div></body></html>`)
	}))
	defer srv.Close()

	res := newTestGoodreads(srv).Fetch(context.Background(), LookupKey{URL: srv.URL + "/book/show/5"})
	assert.ErrorIs(t, res.Err, ErrUnrecognized)
	assert.False(t, res.Found())
}

func TestGoodreadsRequiresURL(t *testing.T) {
	g := NewGoodreads(http.DefaultClient, GoodreadsConfig{})
	res := g.Fetch(context.Background(), LookupKey{Title: "Kodin"})
	assert.ErrorIs(t, res.Err, ErrNoKey)
}

func TestSameURL(t *testing.T) {
	assert.True(t, sameURL("https://www.goodreads.com/book/show/1/", "https://WWW.goodreads.com/book/show/1?ref=x"))
	assert.False(t, sameURL("https://www.goodreads.com/book/show/1", "https://www.goodreads.com/book/show/1.Title"))
}
