package record

// Merge combines records in priority order: for each field the first record
// carrying a value wins. Values are never averaged or concatenated; the
// author list counts as a single value.
func Merge(records ...Partial) Partial {
	var out Partial
	for _, r := range records {
		if out.Title == "" {
			out.Title = r.Title
		}
		if len(out.Authors) == 0 && len(r.Authors) > 0 {
			out.Authors = append([]string(nil), r.Authors...)
		}
		if out.Publisher == "" {
			out.Publisher = r.Publisher
		}
		if out.YearPublished == 0 {
			out.YearPublished = r.YearPublished
		}
		if out.OriginalPublicationYear == 0 {
			out.OriginalPublicationYear = r.OriginalPublicationYear
		}
		if out.NumberOfPages == 0 {
			out.NumberOfPages = r.NumberOfPages
		}
		if out.Language == "" {
			out.Language = r.Language
		}
		if out.ISBN == "" {
			out.ISBN = r.ISBN
		}
		if out.ISBN13 == "" {
			out.ISBN13 = r.ISBN13
		}
		if out.AverageRating == 0 {
			out.AverageRating = r.AverageRating
		}
		if out.CoverURL == "" {
			out.CoverURL = r.CoverURL
		}
		if out.Description == "" {
			out.Description = r.Description
		}
		if out.SourceIdentifier == "" {
			out.SourceIdentifier = r.SourceIdentifier
		}
	}
	return out
}
