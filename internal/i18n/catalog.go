// Package i18n loads message catalogs and formats translated strings for the
// booking pages.
//
// Catalogs are YAML files laid out as <locale>/<file>.yaml. Each file holds
// one or more top-level namespaces (Shared, Navigation, Therapy); nested keys
// are flattened to dotted paths such as "Therapy.steps.step1". All files of a
// locale merge into one table.
package i18n

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed messages
var embedded embed.FS

// Catalog holds flattened messages per locale.
type Catalog struct {
	defaultLocale string
	messages      map[string]map[string]string
}

// LoadEmbedded loads the catalogs compiled into the binary.
func LoadEmbedded(defaultLocale string) (*Catalog, error) {
	sub, err := fs.Sub(embedded, "messages")
	if err != nil {
		return nil, fmt.Errorf("opening embedded messages: %w", err)
	}
	return Load(sub, defaultLocale)
}

// LoadDir loads catalogs from a directory on disk.
func LoadDir(dir, defaultLocale string) (*Catalog, error) {
	return Load(os.DirFS(dir), defaultLocale)
}

// Load reads every <locale>/*.yaml file in fsys. The default locale must be
// present.
func Load(fsys fs.FS, defaultLocale string) (*Catalog, error) {
	files, err := fs.Glob(fsys, "*/*.yaml")
	if err != nil {
		return nil, fmt.Errorf("listing message files: %w", err)
	}

	c := &Catalog{
		defaultLocale: normalizeLocale(defaultLocale),
		messages:      make(map[string]map[string]string),
	}

	for _, file := range files {
		locale := normalizeLocale(path.Dir(file))

		data, err := fs.ReadFile(fsys, file)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", file, err)
		}

		var tree map[string]interface{}
		if err := yaml.Unmarshal(data, &tree); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", file, err)
		}

		table, ok := c.messages[locale]
		if !ok {
			table = make(map[string]string)
			c.messages[locale] = table
		}
		flatten("", tree, table)
	}

	if _, ok := c.messages[c.defaultLocale]; !ok {
		return nil, fmt.Errorf("default locale %q has no messages", c.defaultLocale)
	}
	return c, nil
}

func flatten(prefix string, node map[string]interface{}, out map[string]string) {
	for k, v := range node {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch val := v.(type) {
		case map[string]interface{}:
			flatten(key, val, out)
		case nil:
			out[key] = ""
		default:
			out[key] = fmt.Sprint(val)
		}
	}
}

// Locales returns the loaded locales, sorted.
func (c *Catalog) Locales() []string {
	locales := make([]string, 0, len(c.messages))
	for l := range c.messages {
		locales = append(locales, l)
	}
	sort.Strings(locales)
	return locales
}

// DefaultLocale returns the fallback locale.
func (c *Catalog) DefaultLocale() string {
	return c.defaultLocale
}

// Match picks the best loaded locale for a requested one: exact match, then
// base language ("es-MX" to "es"), then the default.
func (c *Catalog) Match(locale string) string {
	locale = normalizeLocale(locale)
	if _, ok := c.messages[locale]; ok {
		return locale
	}
	if base, _, found := strings.Cut(locale, "-"); found {
		if _, ok := c.messages[base]; ok {
			return base
		}
	}
	return c.defaultLocale
}

// Translator returns a Translator for locale scoped to namespace, which may
// be nested ("Therapy.steps"). An empty namespace uses full keys.
func (c *Catalog) Translator(locale, namespace string) *Translator {
	return &Translator{
		catalog:   c,
		locale:    c.Match(locale),
		namespace: namespace,
	}
}

func (c *Catalog) lookup(locale, key string) (string, bool) {
	if msg, ok := c.messages[locale][key]; ok {
		return msg, true
	}
	if locale != c.defaultLocale {
		if msg, ok := c.messages[c.defaultLocale][key]; ok {
			return msg, true
		}
	}
	return "", false
}

func normalizeLocale(locale string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(locale), "_", "-"))
}
