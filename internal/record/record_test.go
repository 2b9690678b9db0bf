package record

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetTitle(t *testing.T) {
	var p Partial
	require.True(t, p.SetTitle("  İş Bulma\n\t İdarehanesi  "))
	assert.Equal(t, "İş Bulma İdarehanesi", p.Title)

	long := strings.Repeat("ş", MaxTitle+50)
	require.True(t, p.SetTitle(long))
	assert.Equal(t, MaxTitle, len([]rune(p.Title)))

	assert.False(t, p.SetTitle("   "))
}

func TestSetPublisher(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
		ok    bool
	}{
		{name: "plain", input: "Varlık Yayınları", want: "Varlık Yayınları", ok: true},
		{name: "trailing punctuation", input: "Can Yayınları, ", want: "Can Yayınları", ok: true},
		{name: "contains digits", input: "1952 Press", ok: false},
		{name: "too short", input: "X", ok: false},
		{name: "entities", input: "Yapı Kredi &amp; Co", want: "Yapı Kredi & Co", ok: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var p Partial
			assert.Equal(t, tt.ok, p.SetPublisher(tt.input))
			assert.Equal(t, tt.want, p.Publisher)
		})
	}
}

func TestParseYear(t *testing.T) {
	tests := []struct {
		input string
		want  int
	}{
		{"1952-09-01", 1952},
		{"September 1952", 1952},
		{"Published 12 May 2003 by X", 2003},
		{"0042", 0},
		{"9999", 0},
		{"no year", 0},
		{"page 1234 of 1987", 1987},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseYear(tt.input))
		})
	}
}

func TestSetISBN(t *testing.T) {
	var p Partial
	require.True(t, p.SetISBN("978-975-07-1854-6"))
	assert.Equal(t, "9789750718546", p.ISBN13)

	require.True(t, p.SetISBN("0-306-40615-x"))
	assert.Equal(t, "030640615X", p.ISBN)

	var q Partial
	assert.False(t, q.SetISBN("12345"))
	assert.False(t, q.SetISBN("1234567890123"))
	assert.True(t, q.IsEmpty())
}

func TestSetCoverURL(t *testing.T) {
	tests := []struct {
		name  string
		input string
		ok    bool
	}{
		{name: "absolute", input: "https://images.gr-assets.com/books/1/cover.jpg", ok: true},
		{name: "placeholder", input: "https://s.gr-assets.com/assets/nophoto/book/111x148.png", ok: false},
		{name: "relative", input: "/images/cover.jpg", ok: false},
		{name: "data uri", input: "data:image/png;base64,AAAA", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var p Partial
			assert.Equal(t, tt.ok, p.SetCoverURL(tt.input))
			assert.Equal(t, tt.ok, p.Has(CoverURL))
		})
	}
}

func TestSetDescriptionStripsHTML(t *testing.T) {
	var p Partial
	require.True(t, p.SetDescription("<p>First&nbsp;part.</p><p>Second <b>part</b>.</p>"))
	assert.Equal(t, "First part. Second part.", p.Description)

	require.True(t, p.SetDescription(strings.Repeat("a", MaxDescription+10)))
	assert.Len(t, p.Description, MaxDescription)
}

func TestNormalizeLanguage(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"tr", "TR"},
		{"TR", "TR"},
		{"tur", "TR"},
		{"tr-TR", "TR"},
		{"en_US", "EN"},
		{"Turkish", "TR"},
		{"english", "EN"},
		{"Türkçe", "TR"},
		{"", ""},
		{"Klingonese", "KLINGONESE"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeLanguage(tt.input))
		})
	}
}

func TestOrEmpty(t *testing.T) {
	var p Partial
	p.SetPublisher("Can Yayınları")
	p.SetPages(320)
	assert.True(t, p.OrEmpty().IsEmpty(), "publisher and pages alone are not identifying")

	p.AddAuthor("Panait Istrati")
	assert.Equal(t, p, p.OrEmpty())
}

func TestAddAuthorDeduplicates(t *testing.T) {
	var p Partial
	p.AddAuthor("Panait Istrati")
	p.AddAuthor("panait istrati")
	p.AddAuthor("Tudor Vianu")
	assert.Equal(t, "Panait Istrati, Tudor Vianu", p.Author())
}

func TestMerge(t *testing.T) {
	var a, b Partial
	a.SetTitle("İş Bulma İdarehanesi")
	a.SetPublisher("Varlık Yayınları")
	b.SetTitle("Is Bulma Idarehanesi")
	b.SetPublisher("Can Yayınları")
	b.SetISBN("9789750718546")
	b.AddAuthor("Panait Istrati")

	merged := Merge(a, b)
	assert.Equal(t, "İş Bulma İdarehanesi", merged.Title)
	assert.Equal(t, "Varlık Yayınları", merged.Publisher, "earlier source keeps its value")
	assert.Equal(t, "9789750718546", merged.ISBN13, "later source fills gaps")
	assert.Equal(t, []string{"Panait Istrati"}, merged.Authors)

	var noPublisher Partial
	noPublisher.SetTitle("X")
	assert.Equal(t, "Can Yayınları", Merge(noPublisher, b).Publisher)

	assert.True(t, Merge().IsEmpty())
}

func TestMergeDoesNotAliasAuthors(t *testing.T) {
	var a Partial
	a.AddAuthor("Panait Istrati")
	merged := Merge(a)
	merged.Authors[0] = "changed"
	assert.Equal(t, "Panait Istrati", a.Authors[0])
}

func TestMissing(t *testing.T) {
	var p Partial
	p.SetTitle("T")
	p.SetPages(100)
	assert.Equal(t, []Field{Publisher, YearPublished}, p.Missing(Title, Publisher, NumberOfPages, YearPublished))
}
