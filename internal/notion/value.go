package notion

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/bookshelf-tools/bookenrich/internal/record"
)

// MaxText is the longest text Notion accepts in one rich text object.
const MaxText = 2000

// Kind is the Notion property type a Value carries.
type Kind int

const (
	KindUnsupported Kind = iota
	KindTitle
	KindRichText
	KindURL
	KindNumber
	KindSelect
	KindMultiSelect
	KindCheckbox
)

var kindNames = map[Kind]string{
	KindTitle:       "title",
	KindRichText:    "rich_text",
	KindURL:         "url",
	KindNumber:      "number",
	KindSelect:      "select",
	KindMultiSelect: "multi_select",
	KindCheckbox:    "checkbox",
}

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return "unsupported"
}

// ParseKind maps a Notion "type" string to a Kind.
func ParseKind(s string) Kind {
	for k, n := range kindNames {
		if n == s {
			return k
		}
	}
	return KindUnsupported
}

// Value is one typed property value. Kind selects which of the other
// fields is meaningful: Text for title, rich_text, url and select; Number
// for number; Options for multi_select; Checked for checkbox.
type Value struct {
	Kind    Kind
	Text    string
	Number  *float64
	Options []string
	Checked bool
	// Type keeps the Notion type name of unsupported properties.
	Type string
}

func Title(s string) Value    { return Value{Kind: KindTitle, Text: s} }
func RichText(s string) Value { return Value{Kind: KindRichText, Text: s} }
func URL(s string) Value      { return Value{Kind: KindURL, Text: s} }
func Select(s string) Value   { return Value{Kind: KindSelect, Text: s} }
func Checkbox(b bool) Value   { return Value{Kind: KindCheckbox, Checked: b} }

func Number(n float64) Value {
	return Value{Kind: KindNumber, Number: &n}
}

func MultiSelect(options ...string) Value {
	return Value{Kind: KindMultiSelect, Options: options}
}

// IsEmpty reports whether the property holds no value. Unchecked
// checkboxes count as empty.
func (v Value) IsEmpty() bool {
	switch v.Kind {
	case KindTitle, KindRichText, KindURL, KindSelect:
		return strings.TrimSpace(v.Text) == ""
	case KindNumber:
		return v.Number == nil
	case KindMultiSelect:
		return len(v.Options) == 0
	case KindCheckbox:
		return !v.Checked
	}
	return true
}

// String renders the value as plain text.
func (v Value) String() string {
	switch v.Kind {
	case KindTitle, KindRichText, KindURL, KindSelect:
		return v.Text
	case KindNumber:
		if v.Number == nil {
			return ""
		}
		return strconv.FormatFloat(*v.Number, 'f', -1, 64)
	case KindMultiSelect:
		return strings.Join(v.Options, ", ")
	case KindCheckbox:
		return strconv.FormatBool(v.Checked)
	}
	return ""
}

// Equal compares two values of the same kind.
func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case KindNumber:
		if v.Number == nil || o.Number == nil {
			return v.Number == nil && o.Number == nil
		}
		return *v.Number == *o.Number
	case KindCheckbox:
		return v.Checked == o.Checked
	case KindSelect:
		// Option names are compared as they would be written.
		return selectName(v.Text) == selectName(o.Text)
	case KindMultiSelect:
		if len(v.Options) != len(o.Options) {
			return false
		}
		for i := range v.Options {
			if selectName(v.Options[i]) != selectName(o.Options[i]) {
				return false
			}
		}
		return true
	}
	return strings.TrimSpace(v.String()) == strings.TrimSpace(o.String())
}

type textContent struct {
	Content string `json:"content"`
}

type richTextItem struct {
	Type      string       `json:"type,omitempty"`
	Text      *textContent `json:"text,omitempty"`
	PlainText string       `json:"plain_text,omitempty"`
}

type selectOption struct {
	Name string `json:"name"`
}

// MarshalJSON encodes the value in the shape the pages endpoint accepts.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindTitle:
		return json.Marshal(map[string]any{"title": encodeText(v.Text)})
	case KindRichText:
		return json.Marshal(map[string]any{"rich_text": encodeText(v.Text)})
	case KindURL:
		if v.Text == "" {
			return []byte(`{"url":null}`), nil
		}
		return json.Marshal(map[string]any{"url": v.Text})
	case KindNumber:
		return json.Marshal(map[string]any{"number": v.Number})
	case KindSelect:
		if v.Text == "" {
			return []byte(`{"select":null}`), nil
		}
		return json.Marshal(map[string]any{"select": selectOption{Name: selectName(v.Text)}})
	case KindMultiSelect:
		opts := make([]selectOption, 0, len(v.Options))
		for _, o := range v.Options {
			opts = append(opts, selectOption{Name: selectName(o)})
		}
		return json.Marshal(map[string]any{"multi_select": opts})
	case KindCheckbox:
		return json.Marshal(map[string]any{"checkbox": v.Checked})
	}
	return nil, fmt.Errorf("cannot encode property of type %q", v.Type)
}

// UnmarshalJSON decodes a property object as returned by the API, using
// its "type" discriminator.
func (v *Value) UnmarshalJSON(data []byte) error {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return err
	}
	*v = Value{Kind: ParseKind(head.Type), Type: head.Type}

	switch v.Kind {
	case KindTitle:
		var p struct {
			Title []richTextItem `json:"title"`
		}
		if err := json.Unmarshal(data, &p); err != nil {
			return err
		}
		v.Text = decodeText(p.Title)
	case KindRichText:
		var p struct {
			RichText []richTextItem `json:"rich_text"`
		}
		if err := json.Unmarshal(data, &p); err != nil {
			return err
		}
		v.Text = decodeText(p.RichText)
	case KindURL:
		var p struct {
			URL *string `json:"url"`
		}
		if err := json.Unmarshal(data, &p); err != nil {
			return err
		}
		if p.URL != nil {
			v.Text = *p.URL
		}
	case KindNumber:
		var p struct {
			Number *float64 `json:"number"`
		}
		if err := json.Unmarshal(data, &p); err != nil {
			return err
		}
		v.Number = p.Number
	case KindSelect:
		var p struct {
			Select *selectOption `json:"select"`
		}
		if err := json.Unmarshal(data, &p); err != nil {
			return err
		}
		if p.Select != nil {
			v.Text = p.Select.Name
		}
	case KindMultiSelect:
		var p struct {
			MultiSelect []selectOption `json:"multi_select"`
		}
		if err := json.Unmarshal(data, &p); err != nil {
			return err
		}
		for _, o := range p.MultiSelect {
			v.Options = append(v.Options, o.Name)
		}
	case KindCheckbox:
		var p struct {
			Checkbox bool `json:"checkbox"`
		}
		if err := json.Unmarshal(data, &p); err != nil {
			return err
		}
		v.Checked = p.Checkbox
	}
	return nil
}

func encodeText(s string) []richTextItem {
	s = record.Truncate(s, MaxText)
	if s == "" {
		return []richTextItem{}
	}
	return []richTextItem{{Type: "text", Text: &textContent{Content: s}}}
}

func decodeText(items []richTextItem) string {
	var b strings.Builder
	for _, it := range items {
		switch {
		case it.PlainText != "":
			b.WriteString(it.PlainText)
		case it.Text != nil:
			b.WriteString(it.Text.Content)
		}
	}
	return b.String()
}

// selectName strips commas, which Notion rejects in option names.
func selectName(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(record.Truncate(s, 100), ",", " "))
}
