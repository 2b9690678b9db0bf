package store

import (
	"context"
	"fmt"
	"iter"
	"log/slog"

	"github.com/bookshelf-tools/bookenrich/internal/notion"
	"github.com/bookshelf-tools/bookenrich/internal/record"
)

// Columns maps record fields to database column names.
type Columns struct {
	URL     string
	Refresh string
	Fields  map[record.Field]string
}

// DefaultColumns is the reading-list layout the sync was built around.
func DefaultColumns() Columns {
	return Columns{
		URL:     "goodreadsURL",
		Refresh: "Refresh",
		Fields: map[record.Field]string{
			record.Title:                   "Title",
			record.Author:                  "Author",
			record.Publisher:               "Publisher",
			record.YearPublished:           "Year Published",
			record.OriginalPublicationYear: "Original Publication Year",
			record.NumberOfPages:           "Number of Pages",
			record.Language:                "Language",
			record.ISBN:                    "ISBN",
			record.ISBN13:                  "ISBN13",
			record.AverageRating:           "Average Rating",
			record.CoverURL:                "Cover URL",
			record.Description:             "Description",
		},
	}
}

// NotionOptions narrow which rows QueryTargets returns.
type NotionOptions struct {
	// All disables the "has a lookup URL" filter.
	All bool
	// URLMarker additionally requires the lookup URL to contain it.
	URLMarker string
}

// Notion is a Store backed by a Notion database.
type Notion struct {
	client     *notion.Client
	databaseID string
	columns    Columns
	opts       NotionOptions
}

// NewNotion creates a Store over one database.
func NewNotion(client *notion.Client, databaseID string, columns Columns, opts NotionOptions) *Notion {
	return &Notion{client: client, databaseID: databaseID, columns: columns, opts: opts}
}

func (n *Notion) filter() notion.Filter {
	if n.opts.All || n.columns.URL == "" {
		return nil
	}
	if n.opts.URLMarker != "" {
		return notion.And(notion.URLIsNotEmpty(n.columns.URL), notion.URLContains(n.columns.URL, n.opts.URLMarker))
	}
	return notion.URLIsNotEmpty(n.columns.URL)
}

// QueryTargets iterates every matching, non-archived row.
func (n *Notion) QueryTargets(ctx context.Context) iter.Seq2[Target, error] {
	return func(yield func(Target, error) bool) {
		for page, err := range n.client.Pages(ctx, n.databaseID, n.filter()) {
			if err != nil {
				yield(Target{}, err)
				return
			}
			if page.Archived {
				slog.Debug("Skipping archived page", "id", page.ID)
				continue
			}
			if !yield(n.target(page), nil) {
				return
			}
		}
	}
}

// GetTarget re-reads one row.
func (n *Notion) GetTarget(ctx context.Context, id string) (Target, error) {
	page, err := n.client.GetPage(ctx, id)
	if err != nil {
		return Target{}, err
	}
	return n.target(*page), nil
}

// WriteTarget applies delta as one partial page update.
func (n *Notion) WriteTarget(ctx context.Context, id string, delta Delta) error {
	if delta.IsEmpty() {
		return nil
	}
	update := notion.PageUpdate{Properties: map[string]notion.Value{}}
	for f, v := range delta.Fields {
		col, ok := n.columns.Fields[f]
		if !ok {
			return fmt.Errorf("no column mapped for field %s", f)
		}
		update.Properties[col] = v
	}
	if delta.ClearRefresh && n.columns.Refresh != "" {
		update.Properties[n.columns.Refresh] = notion.Checkbox(false)
	}
	if delta.Cover != "" {
		update.Cover = notion.ExternalFile(delta.Cover)
	}
	if _, err := n.client.UpdatePage(ctx, id, update); err != nil {
		return err
	}
	return nil
}

func (n *Notion) target(page notion.Page) Target {
	t := Target{
		ID:             page.ID,
		Fields:         map[record.Field]notion.Value{},
		Cover:          page.Cover.Link(),
		CreatedTime:    page.CreatedTime,
		LastEditedTime: page.LastEditedTime,
	}
	if v, ok := page.Properties[n.columns.URL]; ok {
		t.URL = v.String()
	}
	if v, ok := page.Properties[n.columns.Refresh]; ok && v.Kind == notion.KindCheckbox {
		t.Refresh = v.Checked
	}
	for f, col := range n.columns.Fields {
		v, ok := page.Properties[col]
		if !ok || v.Kind == notion.KindUnsupported {
			continue
		}
		t.Fields[f] = v
	}
	return t
}
