package middleware

import (
	"classroom-attendance/internal/i18n"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// Kontext-Schlüssel der i18n-Middleware
const (
	LanguageKey  = "language"
	TranslateKey = "t"
)

// TranslateFunc übersetzt eine Nachrichten-ID in der Sprache der Anfrage
type TranslateFunc func(id string, data map[string]interface{}) string

// I18n erstellt eine Middleware für die Internationalisierung.
// Reihenfolge: ?lang=, Session, Accept-Language, Standardsprache.
func I18n(translator *i18n.Translator) gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		lang := c.Query("lang")

		// Wenn ein Sprachparameter in der Anfrage vorliegt, diesen in der Session speichern
		if lang != "" && translator.Supports(lang) {
			session.Set(LanguageKey, lang)
			if err := session.Save(); err != nil {
				log.Warnf("Failed to save language in session: %v", err)
			}
		} else if sessionLang, ok := session.Get(LanguageKey).(string); ok && translator.Supports(sessionLang) {
			lang = sessionLang
		} else {
			lang = translator.Match(c.GetHeader("Accept-Language"))
		}

		c.Set(LanguageKey, lang)
		c.Set(TranslateKey, TranslateFunc(func(id string, data map[string]interface{}) string {
			return translator.T(lang, id, data)
		}))

		c.Next()
	}
}

// Translate holt die Übersetzungsfunktion aus dem Kontext. Ohne Middleware wird
// die Nachrichten-ID zurückgegeben.
func Translate(c *gin.Context, id string, data map[string]interface{}) string {
	if fn, ok := c.Get(TranslateKey); ok {
		if t, ok := fn.(TranslateFunc); ok {
			return t(id, data)
		}
	}
	return id
}

// Language gibt die Sprache der Anfrage zurück
func Language(c *gin.Context) string {
	return c.GetString(LanguageKey)
}
