// Package dataset reads lookup-key lists and writes enriched record exports
// for offline runs, in JSONL or Parquet.
package dataset

import (
	"strings"

	"github.com/bookshelf-tools/bookenrich/internal/record"
	"github.com/bookshelf-tools/bookenrich/internal/sources"
)

// KeyRow is one input row: anything a source can look a book up by.
type KeyRow struct {
	URL    string `json:"url,omitempty" parquet:"url"`
	ISBN   string `json:"isbn,omitempty" parquet:"isbn"`
	Title  string `json:"title,omitempty" parquet:"title"`
	Author string `json:"author,omitempty" parquet:"author"`
}

// Key converts the row to a lookup key.
func (k KeyRow) Key() sources.LookupKey {
	return sources.LookupKey{
		URL:    strings.TrimSpace(k.URL),
		ISBN:   record.NormalizeISBN(k.ISBN),
		Title:  strings.TrimSpace(k.Title),
		Author: strings.TrimSpace(k.Author),
	}
}

// IsZero reports whether the row carries no usable key.
func (k KeyRow) IsZero() bool {
	key := k.Key()
	return key.URL == "" && key.ISBN == "" && key.Title == ""
}

// RecordRow is one output row: the merged record for an input key.
type RecordRow struct {
	Input                   string   `json:"input" parquet:"input"`
	Title                   string   `json:"title,omitempty" parquet:"title"`
	Authors                 []string `json:"authors,omitempty" parquet:"authors,list"`
	Publisher               string   `json:"publisher,omitempty" parquet:"publisher"`
	YearPublished           int      `json:"year_published,omitempty" parquet:"year_published"`
	OriginalPublicationYear int      `json:"original_publication_year,omitempty" parquet:"original_publication_year"`
	NumberOfPages           int      `json:"number_of_pages,omitempty" parquet:"number_of_pages"`
	Language                string   `json:"language,omitempty" parquet:"language"`
	ISBN                    string   `json:"isbn,omitempty" parquet:"isbn"`
	ISBN13                  string   `json:"isbn13,omitempty" parquet:"isbn13"`
	AverageRating           float64  `json:"average_rating,omitempty" parquet:"average_rating"`
	CoverURL                string   `json:"cover_url,omitempty" parquet:"cover_url"`
	Description             string   `json:"description,omitempty" parquet:"description"`
	Source                  string   `json:"source,omitempty" parquet:"source"`
	// Error is set when no source returned data.
	Error string `json:"error,omitempty" parquet:"error"`
}

// NewRecordRow flattens rec for export. input names the key it came from.
func NewRecordRow(input string, rec record.Partial) RecordRow {
	return RecordRow{
		Input:                   input,
		Title:                   rec.Title,
		Authors:                 append([]string(nil), rec.Authors...),
		Publisher:               rec.Publisher,
		YearPublished:           rec.YearPublished,
		OriginalPublicationYear: rec.OriginalPublicationYear,
		NumberOfPages:           rec.NumberOfPages,
		Language:                rec.Language,
		ISBN:                    rec.ISBN,
		ISBN13:                  rec.ISBN13,
		AverageRating:           rec.AverageRating,
		CoverURL:                rec.CoverURL,
		Description:             rec.Description,
		Source:                  rec.SourceIdentifier,
	}
}

// Input names a key for logs and exports.
func Input(key sources.LookupKey) string {
	switch {
	case key.URL != "":
		return key.URL
	case key.ISBN != "":
		return "isbn:" + key.ISBN
	case key.Author != "":
		return key.Title + " / " + key.Author
	}
	return key.Title
}
