package renderconfig

import (
	_ "embed"
	"html"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
	"gopkg.in/yaml.v3"
)

//go:embed texts.yaml
var defaultTextsYAML []byte

var (
	defaultsOnce sync.Once
	defaultTexts map[string]string

	textPolicyOnce sync.Once
	textPolicy     *bluemonday.Policy
)

// DefaultTexts returns a copy of the built-in text catalog.
func DefaultTexts() map[string]string {
	defaultsOnce.Do(func() {
		defaultTexts = map[string]string{}
		if err := yaml.Unmarshal(defaultTextsYAML, &defaultTexts); err != nil {
			panic("renderconfig: embedded texts.yaml: " + err.Error())
		}
	})
	out := make(map[string]string, len(defaultTexts))
	for k, v := range defaultTexts {
		out[k] = v
	}
	return out
}

// Text returns the tenant text for key, the built-in default, or the key itself.
func (c RenderConfig) Text(key string) string {
	if v := c.CustomTexts[key]; v != "" {
		return v
	}
	if v, ok := DefaultTexts()[key]; ok {
		return v
	}
	return key
}

// SplitLink splits "Question? Link" texts into the lead-in and the link label.
// Texts without "? " keep the whole text as lead and use fallback as label.
func SplitLink(text, fallback string) (lead, link string) {
	if i := strings.Index(text, "? "); i >= 0 {
		if rest := strings.TrimSpace(text[i+2:]); rest != "" {
			return text[:i+1] + " ", rest
		}
		return text[:i+1] + " ", fallback
	}
	return text + " ", fallback
}

// sanitizeText strips markup from tenant-supplied text. The result is plain
// text; escaping is left to the renderer.
func sanitizeText(raw string) string {
	textPolicyOnce.Do(func() { textPolicy = bluemonday.StrictPolicy() })
	return strings.TrimSpace(html.UnescapeString(textPolicy.Sanitize(raw)))
}
