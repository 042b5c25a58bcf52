// Package catalog holds the static voice and locale catalogs exposed over
// the HTTP API. Both are built once at startup and never mutated.
package catalog

import "sort"

// Voice describes one synthesis voice available to clients.
type Voice struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Locale      string `json:"locale"`
	Style       string `json:"style,omitempty"`
}

// Locale describes one supported speech locale.
type Locale struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

var voices = map[string]Voice{
	"en-US-AvaNeural":    {ID: "en-US-AvaNeural", DisplayName: "Ava", Locale: "en-US", Style: "friendly"},
	"en-US-AndrewNeural": {ID: "en-US-AndrewNeural", DisplayName: "Andrew", Locale: "en-US", Style: "warm"},
	"en-US-JennyNeural":  {ID: "en-US-JennyNeural", DisplayName: "Jenny", Locale: "en-US", Style: "assistant"},
	"en-US-GuyNeural":    {ID: "en-US-GuyNeural", DisplayName: "Guy", Locale: "en-US", Style: "newscast"},
	"en-GB-SoniaNeural":  {ID: "en-GB-SoniaNeural", DisplayName: "Sonia", Locale: "en-GB"},
	"cs-CZ-VlastaNeural": {ID: "cs-CZ-VlastaNeural", DisplayName: "Vlasta", Locale: "cs-CZ"},
	"cs-CZ-AntoninNeural": {
		ID: "cs-CZ-AntoninNeural", DisplayName: "Antonin", Locale: "cs-CZ",
	},
	"de-DE-KatjaNeural": {ID: "de-DE-KatjaNeural", DisplayName: "Katja", Locale: "de-DE"},
	"fr-FR-DeniseNeural": {
		ID: "fr-FR-DeniseNeural", DisplayName: "Denise", Locale: "fr-FR",
	},
	"es-ES-ElviraNeural": {ID: "es-ES-ElviraNeural", DisplayName: "Elvira", Locale: "es-ES"},
}

var locales = map[string]Locale{
	"en-US": {ID: "en-US", DisplayName: "English (United States)"},
	"en-GB": {ID: "en-GB", DisplayName: "English (United Kingdom)"},
	"cs-CZ": {ID: "cs-CZ", DisplayName: "Czech (Czechia)"},
	"de-DE": {ID: "de-DE", DisplayName: "German (Germany)"},
	"fr-FR": {ID: "fr-FR", DisplayName: "French (France)"},
	"es-ES": {ID: "es-ES", DisplayName: "Spanish (Spain)"},
}

// LookupVoice returns the voice with the given id.
func LookupVoice(id string) (Voice, bool) {
	v, ok := voices[id]
	return v, ok
}

// LookupLocale returns the locale with the given id.
func LookupLocale(id string) (Locale, bool) {
	l, ok := locales[id]
	return l, ok
}

// Voices returns all voices sorted by id.
func Voices() []Voice {
	out := make([]Voice, 0, len(voices))
	for _, v := range voices {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Locales returns all locales sorted by id.
func Locales() []Locale {
	out := make([]Locale, 0, len(locales))
	for _, l := range locales {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
