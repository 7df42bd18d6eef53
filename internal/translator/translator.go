// Package translator renders user-facing text from the embedded locale
// catalogs. Button labels come from the same catalogs, so the text a user
// sends back after pressing a reply-keyboard button matches T exactly.
package translator

import (
	"embed"
	"fmt"
	"log/slog"
	"path"
	"sort"
	"strings"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

//go:embed locales/*.yaml
var localeFS embed.FS

// Args are the template values of a message.
type Args map[string]any

type Config struct {
	DefaultLocale string
}

type Translator struct {
	defaultLocale string
	locales       []string
	localizers    map[string]*i18n.Localizer
}

func New(cfg Config) (*Translator, error) {
	defaultTag, err := language.Parse(cfg.DefaultLocale)
	if err != nil {
		return nil, fmt.Errorf("invalid default locale %q: %w", cfg.DefaultLocale, err)
	}

	bundle := i18n.NewBundle(defaultTag)
	bundle.RegisterUnmarshalFunc("yaml", yaml.Unmarshal)

	entries, err := localeFS.ReadDir("locales")
	if err != nil {
		return nil, fmt.Errorf("read locales: %w", err)
	}

	t := &Translator{localizers: make(map[string]*i18n.Localizer)}
	for _, entry := range entries {
		file := path.Join("locales", entry.Name())
		data, err := localeFS.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", file, err)
		}
		if _, err := bundle.ParseMessageFileBytes(data, file); err != nil {
			return nil, fmt.Errorf("parse %s: %w", file, err)
		}
		t.locales = append(t.locales, strings.TrimSuffix(entry.Name(), path.Ext(entry.Name())))
	}
	sort.Strings(t.locales)

	t.defaultLocale = baseLanguage(cfg.DefaultLocale)
	if !t.Supported(t.defaultLocale) {
		return nil, fmt.Errorf("default locale %q has no catalog", cfg.DefaultLocale)
	}
	for _, locale := range t.locales {
		t.localizers[locale] = i18n.NewLocalizer(bundle, locale, t.defaultLocale)
	}

	return t, nil
}

// T renders key in locale. Unsupported locales fall back to the default;
// a missing key renders as the key itself.
func (t *Translator) T(locale, key string, data Args) string {
	localizer, ok := t.localizers[locale]
	if !ok {
		localizer = t.localizers[t.defaultLocale]
	}

	var templateData any
	if data != nil {
		templateData = map[string]any(data)
	}
	text, err := localizer.Localize(&i18n.LocalizeConfig{
		MessageID:    key,
		TemplateData: templateData,
	})
	if err != nil {
		slog.Warn("missing translation", "locale", locale, "key", key, "error", err)
		return key
	}
	return text
}

func (t *Translator) DefaultLocale() string { return t.defaultLocale }

// Locales lists the locales that have a catalog, sorted.
func (t *Translator) Locales() []string { return t.locales }

func (t *Translator) Supported(locale string) bool {
	for _, l := range t.locales {
		if l == locale {
			return true
		}
	}
	return false
}

// Resolve returns the first supported locale among candidates, matching on
// the base language ("en-US" matches "en"), or the default locale.
func (t *Translator) Resolve(candidates ...string) string {
	for _, c := range candidates {
		if c == "" {
			continue
		}
		if base := baseLanguage(c); t.Supported(base) {
			return base
		}
	}
	return t.defaultLocale
}

func baseLanguage(code string) string {
	tag, err := language.Parse(code)
	if err != nil {
		return strings.ToLower(code)
	}
	base, _ := tag.Base()
	return base.String()
}

// Truncate shortens s to at most n runes, marking the cut with an ellipsis.
func Truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-1]) + "…"
}
