package domain

import (
	"encoding/json"
	"strconv"
)

// KeyString normalizes a wire-decoded item key to its string form. Clients
// send keys as JSON strings or numbers; numbers decode as float64 and
// integral values format without a fraction.
func KeyString(v any) (string, bool) {
	switch k := v.(type) {
	case string:
		return k, k != ""
	case float64:
		return strconv.FormatFloat(k, 'f', -1, 64), true
	case json.Number:
		return k.String(), true
	case int:
		return strconv.Itoa(k), true
	case int64:
		return strconv.FormatInt(k, 10), true
	}
	return "", false
}

// KeyStrings normalizes a list of wire-decoded keys, skipping values that do
// not normalize.
func KeyStrings(vs []any) []string {
	if len(vs) == 0 {
		return nil
	}
	out := make([]string, 0, len(vs))
	for _, v := range vs {
		if s, ok := KeyString(v); ok {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
