// Package attrs inspects variadic slog-style key/value attribute lists.
package attrs

// ExtractString scans alternating key/value pairs for the given key and
// returns its string value, or "" when absent or not a string.
func ExtractString(attributes []any, key string) string {
	for i := 0; i+1 < len(attributes); i += 2 {
		k, ok := attributes[i].(string)
		if !ok || k != key {
			continue
		}
		if v, ok := attributes[i+1].(string); ok {
			return v
		}
	}
	return ""
}
