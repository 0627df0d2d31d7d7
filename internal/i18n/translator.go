// Package i18n stellt die Übersetzungen für Anwesenheitsmeldungen, E-Mails und
// API-Antworten bereit. Die Sprachdateien sind eingebettet und können über ein
// Verzeichnis ergänzt oder überschrieben werden.
package i18n

import (
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"classroom-attendance/config"
	"classroom-attendance/internal/attendance"

	goi18n "github.com/nicksnyder/go-i18n/v2/i18n"
	log "github.com/sirupsen/logrus"
	"golang.org/x/text/language"
)

//go:embed locales/*.json
var embeddedLocales embed.FS

// Translator hält das Übersetzungs-Bundle und einen Localizer pro Sprache
type Translator struct {
	bundle      *goi18n.Bundle
	defaultLang string
	supported   []language.Tag
	matcher     language.Matcher
	mu          sync.RWMutex
	localizers  map[string]*goi18n.Localizer
	fallback    *attendance.EnglishCatalog
}

// NewTranslator erstellt einen neuen Übersetzer
func NewTranslator(cfg config.I18nConfig) (*Translator, error) {
	defaultLang := cfg.DefaultLanguage
	if defaultLang == "" {
		defaultLang = "pt"
	}
	tag, err := language.Parse(defaultLang)
	if err != nil {
		return nil, fmt.Errorf("invalid default language %q: %w", defaultLang, err)
	}

	bundle := goi18n.NewBundle(tag)
	bundle.RegisterUnmarshalFunc("json", json.Unmarshal)

	entries, err := embeddedLocales.ReadDir("locales")
	if err != nil {
		return nil, err
	}
	for _, entry := range entries {
		data, err := embeddedLocales.ReadFile("locales/" + entry.Name())
		if err != nil {
			return nil, err
		}
		if _, err := bundle.ParseMessageFileBytes(data, entry.Name()); err != nil {
			return nil, fmt.Errorf("failed to parse locale %s: %w", entry.Name(), err)
		}
	}

	// Zusätzliche Sprachdateien überschreiben die eingebetteten Texte
	if cfg.LocalesDir != "" {
		if err := loadDir(bundle, cfg.LocalesDir); err != nil {
			return nil, err
		}
	}

	tags := bundle.LanguageTags()
	supported := orderDefaultFirst(tag, tags)
	t := &Translator{
		bundle:      bundle,
		defaultLang: tag.String(),
		supported:   supported,
		matcher:     language.NewMatcher(supported),
		localizers:  make(map[string]*goi18n.Localizer),
		fallback:    attendance.NewEnglishCatalog(),
	}
	log.Infof("Loaded translations for %d languages (default: %s)", len(tags), t.defaultLang)
	return t, nil
}

func loadDir(bundle *goi18n.Bundle, dir string) error {
	files, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			log.Warnf("Locales directory %s not found, using embedded translations", dir)
			return nil
		}
		return err
	}
	for _, file := range files {
		if file.IsDir() || !strings.HasSuffix(file.Name(), ".json") {
			continue
		}
		if _, err := bundle.LoadMessageFile(filepath.Join(dir, file.Name())); err != nil {
			return fmt.Errorf("failed to load locale %s: %w", file.Name(), err)
		}
	}
	return nil
}

// Der Matcher nimmt bei fehlender Übereinstimmung den ersten Eintrag
func orderDefaultFirst(def language.Tag, tags []language.Tag) []language.Tag {
	out := []language.Tag{def}
	for _, t := range tags {
		if t != def {
			out = append(out, t)
		}
	}
	return out
}

// DefaultLanguage gibt die konfigurierte Standardsprache zurück
func (t *Translator) DefaultLanguage() string {
	return t.defaultLang
}

// Languages gibt die verfügbaren Sprachen zurück
func (t *Translator) Languages() []string {
	out := make([]string, 0, len(t.supported))
	for _, tag := range t.supported {
		out = append(out, tag.String())
	}
	return out
}

// Supports prüft, ob für lang Übersetzungen vorliegen
func (t *Translator) Supports(lang string) bool {
	for _, l := range t.Languages() {
		if l == lang {
			return true
		}
	}
	return false
}

// Match wählt die beste verfügbare Sprache für einen Accept-Language-Header
func (t *Translator) Match(acceptLanguage string) string {
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return t.defaultLang
	}
	_, idx, _ := t.matcher.Match(tags...)
	return t.supported[idx].String()
}

func (t *Translator) localizer(lang string) *goi18n.Localizer {
	t.mu.RLock()
	l, ok := t.localizers[lang]
	t.mu.RUnlock()
	if ok {
		return l
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if l, ok = t.localizers[lang]; !ok {
		l = goi18n.NewLocalizer(t.bundle, lang, t.defaultLang)
		t.localizers[lang] = l
	}
	return l
}

// T übersetzt eine Nachrichten-ID. Fehlt sie, greift der englische Katalog und
// zuletzt die ID selbst.
func (t *Translator) T(lang, id string, data map[string]interface{}) string {
	msg, err := t.localizer(lang).Localize(&goi18n.LocalizeConfig{
		MessageID:    id,
		TemplateData: data,
	})
	if err != nil {
		log.Debugf("Missing translation %s for %s: %v", id, lang, err)
		return t.fallback.Message(id, data)
	}
	return msg
}

// Catalog liefert einen attendance.Catalog für eine feste Sprache
func (t *Translator) Catalog(lang string) attendance.Catalog {
	return &catalog{t: t, lang: lang}
}

type catalog struct {
	t    *Translator
	lang string
}

func (c *catalog) Message(id string, data map[string]interface{}) string {
	return c.t.T(c.lang, id, data)
}
