package i18n

import (
	"embed"
	"encoding/json"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

//go:embed translations/*.json
var translationsFS embed.FS

// Bundle holds flattened message sets keyed by language.
type Bundle struct {
	fallback language.Tag
	tags     []language.Tag
	matcher  language.Matcher
	messages map[language.Tag]map[string]string
}

// Load reads the embedded translation files. The first tag is the fallback language.
func Load(fallback language.Tag) (*Bundle, error) {
	entries, err := translationsFS.ReadDir("translations")
	if err != nil {
		return nil, fmt.Errorf("read translations: %w", err)
	}

	b := &Bundle{fallback: fallback, messages: make(map[language.Tag]map[string]string)}
	for _, entry := range entries {
		if entry.IsDir() || path.Ext(entry.Name()) != ".json" {
			continue
		}
		raw, err := translationsFS.ReadFile("translations/" + entry.Name())
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", entry.Name(), err)
		}
		var tree map[string]any
		if err := json.Unmarshal(raw, &tree); err != nil {
			return nil, fmt.Errorf("decode %s: %w", entry.Name(), err)
		}
		flat := make(map[string]string)
		Flatten("", tree, flat)
		if err := b.Merge(strings.TrimSuffix(entry.Name(), ".json"), flat); err != nil {
			return nil, err
		}
	}
	if _, ok := b.messages[fallback]; !ok {
		return nil, fmt.Errorf("no translations for fallback language %s", fallback)
	}
	return b, nil
}

// Merge adds or overrides messages for lang.
func (b *Bundle) Merge(lang string, messages map[string]string) error {
	tag, err := language.Parse(lang)
	if err != nil {
		return fmt.Errorf("parse language %q: %w", lang, err)
	}
	set, ok := b.messages[tag]
	if !ok {
		set = make(map[string]string, len(messages))
		b.messages[tag] = set
		b.rebuildMatcher()
	}
	for k, v := range messages {
		set[k] = v
	}
	return nil
}

func (b *Bundle) rebuildMatcher() {
	tags := make([]language.Tag, 0, len(b.messages))
	tags = append(tags, b.fallback)
	for tag := range b.messages {
		if tag != b.fallback {
			tags = append(tags, tag)
		}
	}
	sort.Slice(tags[1:], func(i, j int) bool { return tags[i+1].String() < tags[j+1].String() })
	b.tags = tags
	b.matcher = language.NewMatcher(tags)
}

func (b *Bundle) Languages() []string {
	out := make([]string, 0, len(b.tags))
	for _, tag := range b.tags {
		if _, ok := b.messages[tag]; ok {
			out = append(out, tag.String())
		}
	}
	return out
}

// Messages returns a copy of the flattened messages for lang, falling back key by key.
func (b *Bundle) Messages(lang string) map[string]string {
	t := b.Translator(lang)
	out := make(map[string]string, len(b.messages[b.fallback]))
	for k, v := range b.messages[b.fallback] {
		out[k] = v
	}
	for k, v := range t.messages {
		out[k] = v
	}
	return out
}

// Translator negotiates the best supported language for the given preferences, which may
// be language tags or Accept-Language header values.
func (b *Bundle) Translator(preferences ...string) *Translator {
	tag := b.fallback
	if len(preferences) > 0 && b.matcher != nil {
		_, idx := language.MatchStrings(b.matcher, preferences...)
		tag = b.tags[idx]
	}
	return &Translator{
		tag:      tag,
		messages: b.messages[tag],
		fallback: b.messages[b.fallback],
		printer:  message.NewPrinter(tag),
	}
}

type Translator struct {
	tag      language.Tag
	messages map[string]string
	fallback map[string]string
	printer  *message.Printer
}

func (t *Translator) Language() string {
	return t.tag.String()
}

// Format looks key up and replaces {name} placeholders with values. Unknown keys render
// as the key itself.
func (t *Translator) Format(key string, values map[string]any) string {
	tmpl, ok := t.messages[key]
	if !ok {
		tmpl, ok = t.fallback[key]
	}
	if !ok {
		return key
	}
	if len(values) == 0 {
		return tmpl
	}
	pairs := make([]string, 0, 2*len(values))
	for name, v := range values {
		pairs = append(pairs, "{"+name+"}", t.printer.Sprint(v))
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}

// Amount renders a monetary amount with two fraction digits in the translator's locale.
func (t *Translator) Amount(v float64) string {
	return t.printer.Sprint(number.Decimal(v, number.MinFractionDigits(2), number.MaxFractionDigits(2)))
}

func (t *Translator) Date(d time.Time) string {
	return d.Format(time.DateOnly)
}

// Flatten turns a nested message tree into dotted keys.
func Flatten(prefix string, tree map[string]any, out map[string]string) {
	for k, v := range tree {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch val := v.(type) {
		case map[string]any:
			Flatten(key, val, out)
		case string:
			out[key] = val
		default:
			out[key] = fmt.Sprint(val)
		}
	}
}
