package enrich

import (
	"context"
	"errors"
	"iter"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bookshelf-tools/bookenrich/internal/notion"
	"github.com/bookshelf-tools/bookenrich/internal/record"
	"github.com/bookshelf-tools/bookenrich/internal/sources"
	"github.com/bookshelf-tools/bookenrich/internal/store"
)

type fakeStore struct {
	targets  []store.Target
	queryErr error
	writes   map[string]store.Delta
	writeErr error
}

func (s *fakeStore) QueryTargets(context.Context) iter.Seq2[store.Target, error] {
	return func(yield func(store.Target, error) bool) {
		for _, t := range s.targets {
			if !yield(t, nil) {
				return
			}
		}
		if s.queryErr != nil {
			yield(store.Target{}, s.queryErr)
		}
	}
}

func (s *fakeStore) GetTarget(_ context.Context, id string) (store.Target, error) {
	for _, t := range s.targets {
		if t.ID == id {
			return t, nil
		}
	}
	return store.Target{}, errors.New("not found")
}

func (s *fakeStore) WriteTarget(_ context.Context, id string, d store.Delta) error {
	if s.writeErr != nil {
		return s.writeErr
	}
	if s.writes == nil {
		s.writes = map[string]store.Delta{}
	}
	s.writes[id] = d
	return nil
}

type fakeSource struct {
	name  string
	fetch func(key sources.LookupKey) sources.Result
	keys  []sources.LookupKey
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) Fetch(_ context.Context, key sources.LookupKey) sources.Result {
	f.keys = append(f.keys, key)
	res := f.fetch(key)
	res.Source = f.name
	return res
}

func found(rec record.Partial) func(sources.LookupKey) sources.Result {
	return func(sources.LookupKey) sources.Result { return sources.Result{Record: rec} }
}

func failing(err error) func(sources.LookupKey) sources.Result {
	return func(sources.LookupKey) sources.Result { return sources.Result{Err: err} }
}

func emptyNumber() notion.Value { return notion.Value{Kind: notion.KindNumber} }

func completeTarget(id string) store.Target {
	return store.Target{
		ID:    id,
		URL:   "https://www.goodreads.com/book/show/" + id,
		Cover: "https://img.example/" + id + ".jpg",
		Fields: map[record.Field]notion.Value{
			record.Title:         notion.Title("Kodin"),
			record.Author:        notion.RichText("Panait Istrati"),
			record.Publisher:     notion.RichText("Can Yayınları"),
			record.NumberOfPages: notion.Number(128),
			record.YearPublished: notion.Number(2019),
		},
	}
}

func TestDecide(t *testing.T) {
	now := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

	withField := func(f record.Field, v notion.Value) store.Target {
		tgt := completeTarget("1")
		tgt.Fields[f] = v
		return tgt
	}

	tests := []struct {
		name   string
		cfg    Config
		target func() store.Target
		want   Decision
	}{
		{name: "complete", target: func() store.Target { return completeTarget("1") }, want: Skip},
		{name: "force flag", cfg: Config{Force: true}, target: func() store.Target { return completeTarget("1") }, want: ForceRefresh},
		{name: "refresh checkbox", target: func() store.Target {
			tgt := completeTarget("1")
			tgt.Refresh = true
			return tgt
		}, want: ForceRefresh},
		{name: "recently created", cfg: Config{RecentWindow: time.Hour}, target: func() store.Target {
			tgt := completeTarget("1")
			tgt.CreatedTime = now.Add(-10 * time.Minute)
			return tgt
		}, want: ForceRefresh},
		{name: "old edit outside window", cfg: Config{RecentWindow: time.Hour}, target: func() store.Target {
			tgt := completeTarget("1")
			tgt.LastEditedTime = now.Add(-2 * time.Hour)
			return tgt
		}, want: Skip},
		{name: "missing cover", target: func() store.Target {
			tgt := completeTarget("1")
			tgt.Cover = ""
			return tgt
		}, want: Enrich},
		{name: "placeholder author", target: func() store.Target { return withField(record.Author, notion.RichText("Goodreads")) }, want: Enrich},
		{name: "empty publisher", target: func() store.Target { return withField(record.Publisher, notion.RichText(" ")) }, want: Enrich},
		{name: "zero pages", target: func() store.Target { return withField(record.NumberOfPages, notion.Number(0)) }, want: Enrich},
		{name: "unset year", target: func() store.Target { return withField(record.YearPublished, emptyNumber()) }, want: Enrich},
		{name: "empty optional field", target: func() store.Target { return withField(record.Description, notion.RichText("")) }, want: Skip},
		{name: "absent required column", target: func() store.Target {
			tgt := completeTarget("1")
			delete(tgt.Fields, record.Publisher)
			return tgt
		}, want: Skip},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			cfg.Now = func() time.Time { return now }
			e := New(&fakeStore{}, nil, nil, cfg)
			assert.Equal(t, tt.want, e.Decide(tt.target()))
		})
	}
}

func TestDeltaPlaceholderAuthor(t *testing.T) {
	rec := record.Partial{Title: "Kodin", Authors: []string{"Panait Istrati"}}

	tgt := store.Target{Fields: map[record.Field]notion.Value{
		record.Title:  notion.Title("Kodin"),
		record.Author: notion.RichText("Goodreads"),
	}}
	d := Delta(tgt, rec, false)
	assert.Equal(t, map[record.Field]notion.Value{record.Author: notion.RichText("Panait Istrati")}, d.Fields)

	tgt.Fields[record.Author] = notion.RichText("P. Istrati")
	assert.True(t, Delta(tgt, rec, false).IsEmpty(), "real values are kept without force")

	d = Delta(tgt, rec, true)
	assert.Equal(t, map[record.Field]notion.Value{record.Author: notion.RichText("Panait Istrati")}, d.Fields)
}

func TestDeltaEncodesColumnKind(t *testing.T) {
	rec := record.Partial{
		Authors:       []string{"Panait Istrati", "Ali Kaya"},
		YearPublished: 1952,
		Language:      "TR",
		CoverURL:      "https://img.example/c.jpg",
		ISBN13:        "9789750718546",
	}
	tgt := store.Target{
		Refresh: true,
		Cover:   "https://img.example/old.jpg",
		Fields: map[record.Field]notion.Value{
			record.Author:        {Kind: notion.KindMultiSelect},
			record.YearPublished: emptyNumber(),
			record.Language:      {Kind: notion.KindSelect},
			record.CoverURL:      {Kind: notion.KindURL},
			record.ISBN13:        emptyNumber(),
		},
	}

	d := Delta(tgt, rec, false)
	assert.Equal(t, notion.MultiSelect("Panait Istrati", "Ali Kaya"), d.Fields[record.Author])
	assert.Equal(t, notion.Number(1952), d.Fields[record.YearPublished])
	assert.Equal(t, notion.Select("TR"), d.Fields[record.Language])
	assert.Equal(t, notion.URL("https://img.example/c.jpg"), d.Fields[record.CoverURL])
	assert.NotContains(t, d.Fields, record.ISBN13, "text values are not forced into number columns")
	assert.Empty(t, d.Cover, "an existing cover is kept without force")
	assert.True(t, d.ClearRefresh)

	d = Delta(tgt, rec, true)
	assert.Equal(t, "https://img.example/c.jpg", d.Cover)
}

func TestDeltaUnchangedWhenForcedWithSameValues(t *testing.T) {
	tgt := completeTarget("1")
	rec := record.Partial{
		Title:         "Kodin",
		Authors:       []string{"Panait Istrati"},
		Publisher:     "Can Yayınları",
		NumberOfPages: 128,
		YearPublished: 2019,
		CoverURL:      tgt.Cover,
	}
	assert.True(t, Delta(tgt, rec, true).IsEmpty())
}

func TestDeltaForcedSelectMatchesWrittenName(t *testing.T) {
	tgt := completeTarget("1")
	tgt.Fields[record.Author] = notion.Select("Panait Istrati  Eugen Lovinescu")
	rec := record.Partial{Authors: []string{"Panait Istrati", "Eugen Lovinescu"}}

	assert.Empty(t, Delta(tgt, rec, true).Fields, "comma-stripped option is the same value")

	rec.Authors = []string{"Panait Istrati"}
	assert.Equal(t, map[record.Field]notion.Value{
		record.Author: notion.Select("Panait Istrati"),
	}, Delta(tgt, rec, true).Fields)
}

func TestRunEnrichesFromPageAndAPI(t *testing.T) {
	tgt := store.Target{
		ID:  "p1",
		URL: "https://www.goodreads.com/book/show/123",
		Fields: map[record.Field]notion.Value{
			record.Title:         notion.Title("İş Bulma İdarehanesi"),
			record.Author:        notion.RichText("Goodreads"),
			record.Publisher:     notion.RichText(""),
			record.YearPublished: emptyNumber(),
			record.NumberOfPages: emptyNumber(),
			record.ISBN13:        notion.RichText(""),
		},
	}
	st := &fakeStore{targets: []store.Target{tgt}}
	page := &fakeSource{name: "goodreads", fetch: found(record.Partial{
		Title:         "İş Bulma İdarehanesi",
		Authors:       []string{"Panait Istrati"},
		NumberOfPages: 128,
		YearPublished: 2019,
	})}
	api := &fakeSource{name: "googlebooks", fetch: found(record.Partial{
		Title:     "İş Bulma İdarehanesi",
		Publisher: "Can Yayınları",
		ISBN13:    "9789750718546",
		CoverURL:  "https://books.google.com/content?id=x&zoom=2",
		Language:  "TR",
	})}

	sum, err := New(st, page, []sources.Source{api}, Config{}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Summary{Scanned: 1, Updated: 1}, sum)

	require.Len(t, page.keys, 1)
	assert.Equal(t, sources.LookupKey{
		URL:   "https://www.goodreads.com/book/show/123",
		Title: "İş Bulma İdarehanesi",
	}, page.keys[0], "placeholder author is not used as a key")

	require.Len(t, api.keys, 1)
	assert.Equal(t, "İş Bulma İdarehanesi", api.keys[0].Title)
	assert.Equal(t, "Panait Istrati", api.keys[0].Author)

	d := st.writes["p1"]
	assert.Equal(t, map[record.Field]notion.Value{
		record.Author:        notion.RichText("Panait Istrati"),
		record.Publisher:     notion.RichText("Can Yayınları"),
		record.YearPublished: notion.Number(2019),
		record.NumberOfPages: notion.Number(128),
		record.ISBN13:        notion.RichText("9789750718546"),
	}, d.Fields)
	assert.Equal(t, "https://books.google.com/content?id=x&zoom=2", d.Cover)
	assert.False(t, d.ClearRefresh)
}

func TestRunURLOnlyTargetFillsFromPageAndAPI(t *testing.T) {
	tgt := store.Target{
		ID:  "p9",
		URL: "https://www.goodreads.com/book/show/9",
		Fields: map[record.Field]notion.Value{
			record.Title:     notion.Title(""),
			record.Author:    notion.RichText(""),
			record.Publisher: notion.RichText(""),
			record.ISBN13:    notion.RichText(""),
		},
	}
	st := &fakeStore{targets: []store.Target{tgt}}
	page := &fakeSource{name: "goodreads", fetch: found(record.Partial{
		Title:   "İş Bulma İdarehanesi",
		Authors: []string{"Panait Istrati"},
	})}
	api := &fakeSource{name: "googlebooks", fetch: found(record.Partial{
		ISBN13:    "9789750718546",
		Publisher: "Can Yayınları",
	})}

	sum, err := New(st, page, []sources.Source{api}, Config{}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Summary{Scanned: 1, Updated: 1}, sum)

	require.Len(t, page.keys, 1)
	assert.Equal(t, sources.LookupKey{URL: "https://www.goodreads.com/book/show/9"}, page.keys[0])

	require.Len(t, api.keys, 1)
	assert.Equal(t, "İş Bulma İdarehanesi", api.keys[0].Title, "page title feeds the API lookup")
	assert.Equal(t, "Panait Istrati", api.keys[0].Author)

	d, ok := st.writes["p9"]
	require.True(t, ok)
	assert.Equal(t, map[record.Field]notion.Value{
		record.Title:     notion.Title("İş Bulma İdarehanesi"),
		record.Author:    notion.RichText("Panait Istrati"),
		record.Publisher: notion.RichText("Can Yayınları"),
		record.ISBN13:    notion.RichText("9789750718546"),
	}, d.Fields)
	assert.Empty(t, d.Cover)
	assert.False(t, d.ClearRefresh)
}

func TestRunSkipsAPIWhenPageIsComplete(t *testing.T) {
	tgt := completeTarget("1")
	tgt.Cover = ""
	st := &fakeStore{targets: []store.Target{tgt}}
	page := &fakeSource{name: "goodreads", fetch: found(record.Partial{
		Authors:       []string{"Panait Istrati"},
		Publisher:     "Can Yayınları",
		YearPublished: 2019,
		NumberOfPages: 128,
		CoverURL:      "https://img.example/new.jpg",
		ISBN13:        "9789750718546",
		Language:      "TR",
	})}
	api := &fakeSource{name: "openlibrary", fetch: failing(sources.ErrNotFound)}

	sum, err := New(st, page, []sources.Source{api}, Config{}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Updated)
	assert.Empty(t, api.keys)
	assert.Empty(t, st.writes["1"].Fields)
	assert.Equal(t, "https://img.example/new.jpg", st.writes["1"].Cover)
}

func TestRunContinuesAfterTransientFailure(t *testing.T) {
	targets := []store.Target{completeTarget("1"), completeTarget("2"), completeTarget("3")}
	for i := range targets {
		targets[i].Fields[record.Publisher] = notion.RichText("")
	}
	st := &fakeStore{targets: targets}
	page := &fakeSource{name: "goodreads", fetch: func(key sources.LookupKey) sources.Result {
		if key.URL == targets[1].URL {
			return sources.Result{Err: sources.ErrTransient}
		}
		return sources.Result{Record: record.Partial{Publisher: "Can Yayınları"}}
	}}
	api := &fakeSource{name: "googlebooks", fetch: failing(sources.ErrNotFound)}

	sum, err := New(st, page, []sources.Source{api}, Config{}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Summary{Scanned: 3, Updated: 2, Errored: 1}, sum)
	assert.Contains(t, st.writes, "1")
	assert.NotContains(t, st.writes, "2")
	assert.Contains(t, st.writes, "3")
}

func TestRunCountsMissesAsSkipped(t *testing.T) {
	tgt := completeTarget("1")
	tgt.Cover = ""
	st := &fakeStore{targets: []store.Target{tgt}}
	page := &fakeSource{name: "goodreads", fetch: failing(sources.ErrNotABook)}
	api := &fakeSource{name: "googlebooks", fetch: failing(sources.ErrNotFound)}

	sum, err := New(st, page, []sources.Source{api}, Config{}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Summary{Scanned: 1, Skipped: 1}, sum)
	assert.Empty(t, st.writes)
}

func TestRunWriteFailureIsContained(t *testing.T) {
	tgt := completeTarget("1")
	tgt.Cover = ""
	st := &fakeStore{targets: []store.Target{tgt, completeTarget("2")}, writeErr: errors.New("boom")}
	page := &fakeSource{name: "goodreads", fetch: found(record.Partial{CoverURL: "https://img.example/c.jpg"})}

	sum, err := New(st, page, nil, Config{}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Summary{Scanned: 2, Skipped: 1, Errored: 1}, sum)
}

func TestRunPanicIsContained(t *testing.T) {
	tgt := completeTarget("1")
	tgt.Cover = ""
	st := &fakeStore{targets: []store.Target{tgt}}
	page := &fakeSource{name: "goodreads", fetch: func(sources.LookupKey) sources.Result { panic("bad page") }}

	sum, err := New(st, page, nil, Config{}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Errored)
}

func TestRunScanLimit(t *testing.T) {
	st := &fakeStore{targets: []store.Target{completeTarget("1"), completeTarget("2"), completeTarget("3")}}
	sum, err := New(st, nil, nil, Config{ScanLimit: 2}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Summary{Scanned: 2, Skipped: 2}, sum)
}

func TestRunQueryError(t *testing.T) {
	st := &fakeStore{targets: []store.Target{completeTarget("1")}, queryErr: errors.New("unauthorized")}
	sum, err := New(st, nil, nil, Config{}).Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, sum.Skipped)
}

func TestSyncTarget(t *testing.T) {
	tgt := completeTarget("1")
	tgt.Refresh = true
	st := &fakeStore{targets: []store.Target{tgt}}
	page := &fakeSource{name: "goodreads", fetch: found(record.Partial{Publisher: "Yapı Kredi"})}

	sum, err := New(st, page, nil, Config{}).SyncTarget(context.Background(), "1")
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Updated)
	assert.Equal(t, notion.RichText("Yapı Kredi"), st.writes["1"].Fields[record.Publisher])
	assert.True(t, st.writes["1"].ClearRefresh)

	_, err = New(st, page, nil, Config{}).SyncTarget(context.Background(), "missing")
	require.Error(t, err)
}

func TestEnrichURLUsesISBNFromPage(t *testing.T) {
	page := &fakeSource{name: "goodreads", fetch: found(record.Partial{
		Title:   "Kodin",
		Authors: []string{"Panait Istrati"},
		ISBN13:  "9789750718546",
	})}
	api := &fakeSource{name: "googlebooks", fetch: found(record.Partial{Publisher: "Can Yayınları", Title: "Codin"})}

	rec, results := New(&fakeStore{}, page, []sources.Source{api}, Config{}).
		EnrichURL(context.Background(), "https://www.goodreads.com/book/show/9")

	require.Len(t, results, 2)
	assert.Equal(t, "9789750718546", api.keys[0].ISBN)
	assert.Equal(t, "Kodin", rec.Title, "earlier sources win")
	assert.Equal(t, "Can Yayınları", rec.Publisher)
}
