package extract

import "strings"

// firstString returns the first non-blank string value found under any
// of the alias keys.
func firstString(raw map[string]interface{}, aliases []string) string {
	for _, key := range aliases {
		if v, ok := raw[key]; ok {
			if s, ok := v.(string); ok {
				if trimmed := strings.TrimSpace(s); trimmed != "" {
					return trimmed
				}
			}
		}
	}
	return ""
}

// firstFloat returns the first numeric value found under any alias key.
// JSON numbers decode as float64; int is accepted for callers building
// maps by hand.
func firstFloat(raw map[string]interface{}, aliases []string, fallback float64) float64 {
	for _, key := range aliases {
		if v, ok := raw[key]; ok {
			switch n := v.(type) {
			case float64:
				return n
			case int:
				return float64(n)
			}
		}
	}
	return fallback
}
