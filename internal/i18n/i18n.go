// Package i18n localizes user-facing text. English and Traditional Chinese
// ship embedded.
package i18n

import (
	"embed"
	"errors"
	"fmt"
	"os"
	"strings"

	goi18n "github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"github.com/soulnet-app/soulnet/internal/session"
	"github.com/soulnet-app/soulnet/internal/upload"
)

//go:embed locales/*.yaml
var localeFS embed.FS

// LangEnv selects the language; LANG is consulted after it.
const LangEnv = "SOULNET_LANG"

var bundle = newBundle()

func newBundle() *goi18n.Bundle {
	b := goi18n.NewBundle(language.English)
	b.RegisterUnmarshalFunc("yaml", yaml.Unmarshal)
	for _, name := range []string{"locales/active.en.yaml", "locales/active.zh-TW.yaml"} {
		if _, err := b.LoadMessageFileFS(localeFS, name); err != nil {
			panic(fmt.Sprintf("i18n: load %s: %v", name, err))
		}
	}
	return b
}

// Translator renders messages for one language.
type Translator struct {
	lang      string
	localizer *goi18n.Localizer
}

// New returns a translator for lang, falling back to English.
func New(lang string) *Translator {
	lang = normalize(lang)
	return &Translator{
		lang:      lang,
		localizer: goi18n.NewLocalizer(bundle, lang, "en"),
	}
}

// FromEnv picks the language from SOULNET_LANG, then LANG.
func FromEnv() *Translator {
	return New(DetectLanguage())
}

// DetectLanguage returns a BCP 47 tag from the environment, or "en".
func DetectLanguage() string {
	for _, key := range []string{LangEnv, "LANG"} {
		if v := os.Getenv(key); v != "" && v != "C" && v != "POSIX" {
			return normalize(v)
		}
	}
	return "en"
}

// normalize turns POSIX locales like zh_TW.UTF-8 into zh-TW.
func normalize(lang string) string {
	if i := strings.IndexAny(lang, ".@"); i >= 0 {
		lang = lang[:i]
	}
	lang = strings.ReplaceAll(lang, "_", "-")
	if lang == "" {
		return "en"
	}
	return lang
}

// Lang returns the requested language tag.
func (t *Translator) Lang() string { return t.lang }

// T renders id with optional template data. Unknown ids render as the id.
func (t *Translator) T(id string, data ...map[string]any) string {
	cfg := &goi18n.LocalizeConfig{MessageID: id}
	if len(data) > 0 {
		cfg.TemplateData = data[0]
	}
	msg, err := t.localizer.Localize(cfg)
	if err != nil {
		return id
	}
	return msg
}

// Error renders err for the user, mapping known error kinds to messages.
func (t *Translator) Error(err error) string {
	if err == nil {
		return ""
	}

	var authErr *session.AuthError
	if errors.As(err, &authErr) {
		return t.T("error.auth." + string(authErr.Kind))
	}

	var profileErr *session.ProfileError
	if errors.As(err, &profileErr) {
		return t.T("error.profile." + string(profileErr.Kind))
	}

	var uploadErr *upload.Error
	if errors.As(err, &uploadErr) {
		return t.T("error.upload."+string(uploadErr.Kind), map[string]any{"Max": humanBytes(uploadErr.Max)})
	}

	return t.T("error.generic", map[string]any{"Message": err.Error()})
}

func humanBytes(n int64) string {
	const mib = 1024 * 1024
	if n >= mib && n%mib == 0 {
		return fmt.Sprintf("%d MB", n/mib)
	}
	if n >= mib {
		return fmt.Sprintf("%.1f MB", float64(n)/mib)
	}
	return fmt.Sprintf("%d KB", n/1024)
}
