package i18n

import (
	"regexp"
	"strings"
)

// Segment is a run of rich text. Tag names the markup element wrapping it,
// empty for plain text.
type Segment struct {
	Text string `json:"text"`
	Tag  string `json:"tag,omitempty"`
}

// RichText is translated text split at markup tags, for clients that style
// tagged runs.
type RichText []Segment

// String joins the segments without markup.
func (r RichText) String() string {
	var b strings.Builder
	for _, s := range r {
		b.WriteString(s.Text)
	}
	return b.String()
}

// TagFunc produces the text of a tagged run from the message's inner text.
type TagFunc func(inner string) string

// Params are placeholder values substituted for {name}.
type Params map[string]string

var (
	placeholderRe = regexp.MustCompile(`\{(\w+)\}`)
	tagRe         = regexp.MustCompile(`<(\w+)>(.*?)</(\w+)>`)
)

// Translator formats messages for one locale and namespace.
type Translator struct {
	catalog   *Catalog
	locale    string
	namespace string
}

// Locale returns the locale the translator resolved to.
func (t *Translator) Locale() string {
	return t.locale
}

func (t *Translator) fullKey(key string) string {
	if t.namespace == "" {
		return key
	}
	return t.namespace + "." + key
}

// Raw returns the unformatted message, or the full key when missing.
func (t *Translator) Raw(key string) string {
	full := t.fullKey(key)
	if msg, ok := t.catalog.lookup(t.locale, full); ok {
		return msg
	}
	return full
}

// Has reports whether key exists in this locale or the default.
func (t *Translator) Has(key string) bool {
	_, ok := t.catalog.lookup(t.locale, t.fullKey(key))
	return ok
}

// T returns the message with {name} placeholders substituted. Placeholders
// without a value are left as written. Markup tags are stripped.
func (t *Translator) T(key string, params Params) string {
	return t.Rich(key, params, nil).String()
}

// Rich formats the message and splits it at <tag>inner</tag> markup. A tag
// present in tags takes its text from the TagFunc; other tags keep their
// inner text. Either way the segment carries the tag name.
func (t *Translator) Rich(key string, params Params, tags map[string]TagFunc) RichText {
	msg := substitute(t.Raw(key), params)

	var out RichText
	last := 0
	for _, m := range tagRe.FindAllStringSubmatchIndex(msg, -1) {
		open, inner, closing := msg[m[2]:m[3]], msg[m[4]:m[5]], msg[m[6]:m[7]]
		if open != closing {
			continue
		}
		if m[0] > last {
			out = append(out, Segment{Text: msg[last:m[0]]})
		}
		text := inner
		if fn, ok := tags[open]; ok {
			text = fn(inner)
		}
		out = append(out, Segment{Text: text, Tag: open})
		last = m[1]
	}
	if last < len(msg) {
		out = append(out, Segment{Text: msg[last:]})
	}
	return out
}

func substitute(msg string, params Params) string {
	if len(params) == 0 {
		return msg
	}
	return placeholderRe.ReplaceAllStringFunc(msg, func(m string) string {
		name := m[1 : len(m)-1]
		if v, ok := params[name]; ok {
			return v
		}
		return m
	})
}
