package functions

import "encoding/json"

// Arguments is a tagged variant holding function-call arguments as either
// raw JSON text (the usual wire form) or an already-parsed map. The variant
// is resolved exactly once, at the registry boundary.
type Arguments struct {
	raw        string
	structured map[string]any
	isRaw      bool
}

// RawArguments wraps argument text expected to contain JSON.
func RawArguments(text string) Arguments {
	return Arguments{raw: text, isRaw: true}
}

// StructuredArguments wraps an already-parsed argument map.
func StructuredArguments(m map[string]any) Arguments {
	return Arguments{structured: m}
}

// Parse resolves the variant into a map. Malformed or empty raw text parses
// to an empty map; Parse never fails.
func (a Arguments) Parse() map[string]any {
	if !a.isRaw {
		if a.structured == nil {
			return map[string]any{}
		}
		return a.structured
	}

	var parsed map[string]any
	if err := json.Unmarshal([]byte(a.raw), &parsed); err != nil || parsed == nil {
		return map[string]any{}
	}
	return parsed
}
