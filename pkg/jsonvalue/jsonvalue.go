// Package jsonvalue implements the canonical value encoding shared by every
// profile field: an extracted value becomes the JSON text of that value
// with object keys sorted, and a missing or null value becomes the empty
// string. Two extracted values are considered equal, for feature-counting
// purposes, exactly when their encodings are byte-identical.
package jsonvalue

import "encoding/json"

// Encode renders v as its canonical string form. encoding/json already
// sorts map[string]any keys during Marshal, so no extra canonicalization
// pass is needed for nested objects.
func Encode(v any) string {
	if v == nil {
		return ""
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	s := string(b)
	if s == "null" {
		return ""
	}
	return s
}
