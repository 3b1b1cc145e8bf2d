package domain

import (
	"encoding/json"
	"sort"

	"github.com/tidwall/gjson"
)

// Country is one record of the REST Countries "all" listing, limited to the
// fields this service requests.
type Country struct {
	Flag       string      `json:"flag" yaml:"flag"`
	Name       CountryName `json:"name" yaml:"name"`
	Population int64       `json:"population" yaml:"population"`
	Region     string      `json:"region" yaml:"region"`
}

// CountryName holds the display names of a country. NativeName is kept as the
// raw JSON object the API returns, keyed by language code.
type CountryName struct {
	Common     string          `json:"common" yaml:"common"`
	Official   string          `json:"official" yaml:"official"`
	NativeName json.RawMessage `json:"nativeName,omitempty" yaml:"-"`
}

// NameVariant is a localized official/common name pair.
type NameVariant struct {
	Official string `json:"official" yaml:"official"`
	Common   string `json:"common" yaml:"common"`
}

// NativeLanguages returns the language codes present in NativeName, sorted.
func (c Country) NativeLanguages() []string {
	if len(c.Name.NativeName) == 0 {
		return nil
	}
	var langs []string
	gjson.ParseBytes(c.Name.NativeName).ForEach(func(key, _ gjson.Result) bool {
		langs = append(langs, key.String())
		return true
	})
	sort.Strings(langs)
	return langs
}

// NativeName looks up the name variant for a language code.
func (c Country) NativeName(lang string) (NameVariant, bool) {
	if len(c.Name.NativeName) == 0 || lang == "" {
		return NameVariant{}, false
	}
	v := gjson.GetBytes(c.Name.NativeName, gjson.Escape(lang))
	if !v.IsObject() {
		return NameVariant{}, false
	}
	return NameVariant{
		Official: v.Get("official").String(),
		Common:   v.Get("common").String(),
	}, true
}

// NativeNames returns every variant in NativeName keyed by language code.
// Entries that are not objects are skipped.
func (c Country) NativeNames() map[string]NameVariant {
	names := make(map[string]NameVariant)
	for _, lang := range c.NativeLanguages() {
		if v, ok := c.NativeName(lang); ok {
			names[lang] = v
		}
	}
	return names
}
