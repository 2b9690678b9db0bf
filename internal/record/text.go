package record

import (
	"strings"

	xhtml "golang.org/x/net/html"
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// StripHTML returns the text content of an HTML fragment. Block-level tags
// and <br> become spaces so adjacent paragraphs do not run together.
func StripHTML(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return s
	}
	var b strings.Builder
	z := xhtml.NewTokenizer(strings.NewReader(s))
	for {
		switch z.Next() {
		case xhtml.ErrorToken:
			return b.String()
		case xhtml.TextToken:
			b.Write(z.Text())
		case xhtml.StartTagToken, xhtml.EndTagToken, xhtml.SelfClosingTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "br", "p", "div", "li":
				b.WriteByte(' ')
			}
		}
	}
}

// knownLanguages are matched by English display name when the input is a
// name rather than a code.
var knownLanguages = []language.Tag{
	language.Turkish, language.English, language.German, language.French,
	language.Spanish, language.Italian, language.Portuguese, language.Russian,
	language.Arabic, language.Persian, language.Greek, language.Dutch,
	language.Japanese, language.Chinese, language.Korean, language.Polish,
	language.Swedish, language.Norwegian, language.Danish, language.Finnish,
	language.Czech, language.Hungarian, language.Romanian, language.Bulgarian,
	language.Ukrainian, language.Hebrew, language.Hindi, language.Azerbaijani,
	language.Serbian, language.Croatian, language.Albanian,
}

// nativeNames covers local-language spellings common in Turkish catalogues.
var nativeNames = map[string]language.Tag{
	"türkçe":    language.Turkish,
	"turkce":    language.Turkish,
	"ingilizce": language.English,
	"almanca":   language.German,
	"fransızca": language.French,
	"rusça":     language.Russian,
	"english":   language.English,
}

// NormalizeLanguage maps a language code or name to an upper-case ISO 639-1
// code ("tr", "tur", "tr-TR" and "Turkish" all become "TR"). Unrecognised
// input is returned upper-cased.
func NormalizeLanguage(s string) string {
	s = Clean(s)
	if s == "" {
		return ""
	}
	if tag, ok := nativeNames[strings.ToLower(s)]; ok {
		return baseCode(tag)
	}
	if len(s) <= 3 || strings.ContainsAny(s, "-_") {
		if tag, err := language.Parse(strings.ReplaceAll(s, "_", "-")); err == nil {
			if code := baseCode(tag); code != "" && code != "UND" {
				return code
			}
		}
	}
	namer := display.English.Languages()
	for _, tag := range knownLanguages {
		if strings.EqualFold(namer.Name(tag), s) {
			return baseCode(tag)
		}
	}
	return strings.ToUpper(s)
}

func baseCode(tag language.Tag) string {
	base, _ := tag.Base()
	return strings.ToUpper(base.String())
}
