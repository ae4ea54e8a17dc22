package translate

import (
	"fmt"

	"github.com/abadojack/whatlanggo"
	"golang.org/x/text/language"
)

// AutoDetect is the source language value that requests per-text detection.
const AutoDetect = "auto"

// NormalizeLanguage validates tag as BCP 47 and returns its canonical base
// form ("hi", "en", "pt"), which is what the backends expect.
func NormalizeLanguage(tag string) (string, error) {
	t, err := language.Parse(tag)
	if err != nil {
		return "", fmt.Errorf("invalid language %q: %w", tag, err)
	}
	base, _ := t.Base()
	return base.String(), nil
}

// DetectLanguage returns the ISO 639-1 code of text when detection is
// reliable, otherwise AutoDetect.
func DetectLanguage(text string) string {
	info := whatlanggo.Detect(text)
	if !info.IsReliable() {
		return AutoDetect
	}
	code := info.Lang.Iso6391()
	if code == "" {
		return AutoDetect
	}
	return code
}
