package locale

import "strings"

// Normalize reduces a BCP-47-like tag to its lowercase primary language
// subtag: "en-US" -> "en", "PT" -> "pt", "zh_CN" -> "zh". Tags without a
// separator are lowercased and returned as-is. Normalize is idempotent
// and never fails.
func Normalize(tag string) string {
	lower := strings.ToLower(strings.TrimSpace(tag))
	if i := strings.IndexAny(lower, "-_"); i >= 0 {
		return lower[:i]
	}
	return lower
}

// Translations maps primary language subtags to the full tags a
// downstream bus expects (e.g. "de" -> "de-DE").
type Translations map[string]string

// DefaultTranslations returns the built-in subtag expansion table.
func DefaultTranslations() Translations {
	return Translations{
		"de": "de-DE",
		"en": "en-US",
		"fr": "fr-FR",
	}
}

// ParseTranslations parses a "k:v,k:v" specification into a Translations
// map. Pairs without a colon are ignored; keys and values are trimmed.
func ParseTranslations(spec string) Translations {
	out := Translations{}
	if strings.TrimSpace(spec) == "" {
		return out
	}
	for _, pair := range strings.Split(spec, ",") {
		k, v, ok := strings.Cut(pair, ":")
		if !ok {
			continue
		}
		k = strings.TrimSpace(k)
		v = strings.TrimSpace(v)
		if k == "" || v == "" {
			continue
		}
		out[k] = v
	}
	return out
}

// Expand returns the full tag for a bare primary subtag ("de" ->
// "de-DE"). Tags that already carry a region, and subtags with no
// mapping, are returned unchanged.
func (t Translations) Expand(tag string) string {
	norm := Normalize(tag)
	if norm != strings.ToLower(strings.TrimSpace(tag)) {
		return tag
	}
	if full, ok := t[norm]; ok {
		return full
	}
	return tag
}
