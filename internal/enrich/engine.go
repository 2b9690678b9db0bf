// Package enrich runs the enrichment pipeline over store targets: decide,
// fetch from sources, merge, and write back only what should change.
package enrich

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/bookshelf-tools/bookenrich/internal/record"
	"github.com/bookshelf-tools/bookenrich/internal/sources"
	"github.com/bookshelf-tools/bookenrich/internal/store"
)

// Config controls one engine.
type Config struct {
	// Force refreshes every target regardless of its current values.
	Force bool
	// RecentWindow force-refreshes targets created or edited within it.
	RecentWindow time.Duration
	// ScanLimit caps the number of targets examined per run; 0 means all.
	ScanLimit int
	Now       func() time.Time
}

// Summary counts the outcome of a run.
type Summary struct {
	Scanned int `json:"scanned" yaml:"scanned"`
	Updated int `json:"updated" yaml:"updated"`
	Skipped int `json:"skipped" yaml:"skipped"`
	Errored int `json:"errored" yaml:"errored"`
}

// apiFillable are the fields worth asking a metadata API for.
var apiFillable = []record.Field{
	record.Author, record.Publisher, record.YearPublished, record.NumberOfPages,
	record.CoverURL, record.ISBN13, record.Language,
}

// Engine enriches targets from a page source and metadata APIs.
type Engine struct {
	store store.Store
	page  sources.Source
	apis  []sources.Source
	cfg   Config
}

// New creates an engine. page may be nil; apis are consulted in order.
func New(st store.Store, page sources.Source, apis []sources.Source, cfg Config) *Engine {
	return &Engine{store: st, page: page, apis: apis, cfg: cfg}
}

func (e *Engine) now() time.Time {
	if e.cfg.Now != nil {
		return e.cfg.Now()
	}
	return time.Now()
}

type outcome int

const (
	skipped outcome = iota
	updated
	errored
)

// Run processes every target sequentially. Failures of individual targets
// are logged and counted; only a failing target query ends the run early.
func (e *Engine) Run(ctx context.Context) (Summary, error) {
	var sum Summary
	start := time.Now()

	for t, err := range e.store.QueryTargets(ctx) {
		if err != nil {
			return sum, fmt.Errorf("failed to query targets: %w", err)
		}
		if e.cfg.ScanLimit > 0 && sum.Scanned >= e.cfg.ScanLimit {
			slog.Info("Scan limit reached", "limit", e.cfg.ScanLimit)
			break
		}
		if err := ctx.Err(); err != nil {
			return sum, err
		}

		sum.Scanned++
		switch e.process(ctx, t) {
		case updated:
			sum.Updated++
		case errored:
			sum.Errored++
		default:
			sum.Skipped++
		}
	}

	slog.Info("Sync finished",
		"scanned", sum.Scanned,
		"updated", sum.Updated,
		"skipped", sum.Skipped,
		"errored", sum.Errored,
		"duration", time.Since(start).Round(time.Millisecond))
	return sum, nil
}

// SyncTarget re-reads one target by id and processes it.
func (e *Engine) SyncTarget(ctx context.Context, id string) (Summary, error) {
	t, err := e.store.GetTarget(ctx, id)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to read target %s: %w", id, err)
	}
	sum := Summary{Scanned: 1}
	switch e.process(ctx, t) {
	case updated:
		sum.Updated++
	case errored:
		sum.Errored++
	default:
		sum.Skipped++
	}
	return sum, nil
}

// EnrichURL runs the fetch-and-merge pipeline for a bare detail-page URL
// without touching the store.
func (e *Engine) EnrichURL(ctx context.Context, url string) (record.Partial, []sources.Result) {
	return e.gather(ctx, sources.LookupKey{URL: url}, true)
}

// EnrichKey runs the pipeline for an arbitrary lookup key.
func (e *Engine) EnrichKey(ctx context.Context, key sources.LookupKey) (record.Partial, []sources.Result) {
	return e.gather(ctx, key, true)
}

func (e *Engine) process(ctx context.Context, t store.Target) (out outcome) {
	log := slog.With("id", t.ID, "url", t.URL)
	defer func() {
		if r := recover(); r != nil {
			log.Error("Target processing panicked", "panic", r)
			out = errored
		}
	}()

	decision := e.Decide(t)
	if decision == Skip {
		log.Debug("Skipping complete target")
		return skipped
	}
	force := decision == ForceRefresh

	rec, results := e.gather(ctx, keyFor(t), force)
	if rec.IsEmpty() {
		if err := failure(results); err != nil {
			log.Error("Failed to fetch target data", "decision", decision, "error", err)
			return errored
		}
		log.Info("No data found for target", "decision", decision)
		return skipped
	}

	delta := Delta(t, rec, force)
	if delta.IsEmpty() {
		log.Info("Target already up to date", "decision", decision)
		return skipped
	}
	if err := e.store.WriteTarget(ctx, t.ID, delta); err != nil {
		log.Error("Failed to write target", "error", err)
		return errored
	}

	log.Info("Updated target", "decision", decision, "fields", fieldNames(delta), "cover", delta.Cover != "")
	return updated
}

// gather fetches from the page source, then from each API while the merged
// record still lacks API-fillable fields (or always when forced), and
// merges everything in source order.
func (e *Engine) gather(ctx context.Context, key sources.LookupKey, force bool) (record.Partial, []sources.Result) {
	var results []sources.Result
	merge := func() record.Partial {
		recs := make([]record.Partial, 0, len(results))
		for _, r := range results {
			recs = append(recs, r.Record)
		}
		return record.Merge(recs...)
	}

	if e.page != nil && key.URL != "" {
		res := e.page.Fetch(ctx, key)
		logResult(res)
		results = append(results, res)
	}
	merged := merge()

	for _, api := range e.apis {
		if ctx.Err() != nil {
			break
		}
		if !force && len(merged.Missing(apiFillable...)) == 0 {
			break
		}
		apiKey := apiKeyFor(merged, key)
		if apiKey.ISBN == "" && apiKey.Title == "" {
			break
		}
		res := api.Fetch(ctx, apiKey)
		logResult(res)
		results = append(results, res)
		merged = merge()
	}
	return merged, results
}

// keyFor builds lookup keys from a target's current values, ignoring
// placeholders.
func keyFor(t store.Target) sources.LookupKey {
	text := func(f record.Field) string {
		s := strings.TrimSpace(t.Text(f))
		if IsPlaceholder(s) {
			return ""
		}
		return s
	}
	isbn := text(record.ISBN13)
	if isbn == "" {
		isbn = text(record.ISBN)
	}
	return sources.LookupKey{
		URL:    strings.TrimSpace(t.URL),
		ISBN:   isbn,
		Title:  text(record.Title),
		Author: text(record.Author),
	}
}

// apiKeyFor prefers identifiers found by earlier sources over the target's
// own values.
func apiKeyFor(merged record.Partial, key sources.LookupKey) sources.LookupKey {
	out := sources.LookupKey{ISBN: key.ISBN, Title: key.Title, Author: key.Author}
	switch {
	case merged.ISBN13 != "":
		out.ISBN = merged.ISBN13
	case merged.ISBN != "":
		out.ISBN = merged.ISBN
	}
	if merged.Title != "" {
		out.Title = merged.Title
	}
	if len(merged.Authors) > 0 {
		out.Author = merged.Authors[0]
	}
	return out
}

// failure returns the joined errors when every source that failed did so
// transiently; plain misses are not failures.
func failure(results []sources.Result) error {
	var errs []error
	for _, r := range results {
		if r.Err != nil && errors.Is(r.Err, sources.ErrTransient) {
			errs = append(errs, fmt.Errorf("%s: %w", r.Source, r.Err))
		}
	}
	return errors.Join(errs...)
}

func logResult(r sources.Result) {
	if r.Found() {
		slog.Debug("Source returned data", "source", r.Source, "id", r.Record.SourceIdentifier)
		return
	}
	slog.Debug("Source returned no data", "source", r.Source, "reason", r.Err)
}

func fieldNames(d store.Delta) []string {
	names := make([]string, 0, len(d.Fields))
	for f := range d.Fields {
		names = append(names, f.String())
	}
	sort.Strings(names)
	return names
}
