// Package store reads enrichment targets from a document database and
// writes partial updates back.
package store

import (
	"context"
	"iter"
	"time"

	"github.com/bookshelf-tools/bookenrich/internal/notion"
	"github.com/bookshelf-tools/bookenrich/internal/record"
)

// Target is one database row to enrich, read fresh on every run.
type Target struct {
	ID string
	// URL is the detail-page lookup URL.
	URL string
	// Fields holds the current value of every mapped column present in the
	// database; a missing key means the column does not exist.
	Fields map[record.Field]notion.Value
	// Cover is the current page cover URL.
	Cover          string
	Refresh        bool
	CreatedTime    time.Time
	LastEditedTime time.Time
}

// Text returns the plain-text current value of f.
func (t Target) Text(f record.Field) string {
	return t.Fields[f].String()
}

// Delta is the set of changes to apply to one target.
type Delta struct {
	Fields map[record.Field]notion.Value
	// Cover, when set, replaces the page cover.
	Cover string
	// ClearRefresh unticks the explicit refresh flag.
	ClearRefresh bool
}

// IsEmpty reports whether applying d would change nothing.
func (d Delta) IsEmpty() bool {
	return len(d.Fields) == 0 && d.Cover == "" && !d.ClearRefresh
}

// Store is a document database holding enrichment targets.
type Store interface {
	QueryTargets(ctx context.Context) iter.Seq2[Target, error]
	GetTarget(ctx context.Context, id string) (Target, error)
	WriteTarget(ctx context.Context, id string, delta Delta) error
}
