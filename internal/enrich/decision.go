package enrich

import (
	"strings"

	"github.com/bookshelf-tools/bookenrich/internal/notion"
	"github.com/bookshelf-tools/bookenrich/internal/record"
	"github.com/bookshelf-tools/bookenrich/internal/store"
)

// Decision is what the engine does with one target.
type Decision int

const (
	Skip Decision = iota
	Enrich
	ForceRefresh
)

func (d Decision) String() string {
	switch d {
	case Enrich:
		return "enrich"
	case ForceRefresh:
		return "force-refresh"
	}
	return "skip"
}

// RequiredFields are the columns whose emptiness triggers enrichment.
// CoverURL stands for the page cover.
var RequiredFields = []record.Field{
	record.Author,
	record.CoverURL,
	record.Publisher,
	record.NumberOfPages,
	record.YearPublished,
}

// placeholders are values left behind by templates or earlier failed
// scrapes; they count as empty.
var placeholders = map[string]bool{
	"title":     true,
	"author":    true,
	"goodreads": true,
	"unknown":   true,
	"untitled":  true,
	"n/a":       true,
	"-":         true,
}

// IsPlaceholder reports whether s is a known placeholder value.
func IsPlaceholder(s string) bool {
	return placeholders[strings.ToLower(strings.TrimSpace(s))]
}

// isBlank reports whether a stored value should be treated as empty.
func isBlank(v notion.Value) bool {
	if v.IsEmpty() {
		return true
	}
	if v.Kind == notion.KindNumber {
		return *v.Number == 0
	}
	return IsPlaceholder(v.String())
}

// Decide classifies t without side effects.
func (e *Engine) Decide(t store.Target) Decision {
	if e.cfg.Force || t.Refresh || e.recent(t) {
		return ForceRefresh
	}
	for _, f := range RequiredFields {
		if f == record.CoverURL {
			if t.Cover == "" {
				return Enrich
			}
			continue
		}
		if v, ok := t.Fields[f]; ok && isBlank(v) {
			return Enrich
		}
	}
	return Skip
}

func (e *Engine) recent(t store.Target) bool {
	if e.cfg.RecentWindow <= 0 {
		return false
	}
	cutoff := e.now().Add(-e.cfg.RecentWindow)
	return t.CreatedTime.After(cutoff) || t.LastEditedTime.After(cutoff)
}

// Delta computes the write set for t from the merged record: without
// force only blank columns are filled, with force every differing column
// is overwritten. Values are encoded with the column's existing type.
func Delta(t store.Target, rec record.Partial, force bool) store.Delta {
	d := store.Delta{Fields: map[record.Field]notion.Value{}}
	for f, cur := range t.Fields {
		if !rec.Has(f) {
			continue
		}
		next, ok := encode(rec, f, cur.Kind)
		if !ok {
			continue
		}
		if (force && !next.Equal(cur)) || (!force && isBlank(cur)) {
			d.Fields[f] = next
		}
	}

	if rec.CoverURL != "" && rec.CoverURL != t.Cover && (force || t.Cover == "") {
		d.Cover = rec.CoverURL
	}
	if t.Refresh && !rec.IsEmpty() {
		d.ClearRefresh = true
	}
	return d
}

// encode renders field f of rec as a value of the given kind.
func encode(rec record.Partial, f record.Field, kind notion.Kind) (notion.Value, bool) {
	text := rec.Text(f)
	switch kind {
	case notion.KindTitle:
		return notion.Title(text), true
	case notion.KindRichText:
		return notion.RichText(text), true
	case notion.KindURL:
		if !strings.HasPrefix(text, "http://") && !strings.HasPrefix(text, "https://") {
			return notion.Value{}, false
		}
		return notion.URL(text), true
	case notion.KindNumber:
		if n, ok := rec.Number(f); ok {
			return notion.Number(n), true
		}
		return notion.Value{}, false
	case notion.KindSelect:
		return notion.Select(text), true
	case notion.KindMultiSelect:
		if f == record.Author {
			return notion.MultiSelect(rec.Authors...), true
		}
		return notion.MultiSelect(text), true
	}
	return notion.Value{}, false
}
