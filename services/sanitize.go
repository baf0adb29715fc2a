package services

import (
	"math"
	"time"
)

// SanitizeJSON walks a decoded JSON-like tree and replaces values that do
// not survive JSON encoding: NaN and +/-Inf become nil, timestamps become
// ISO-8601 strings. Applied once before cache writes and response emission.
func SanitizeJSON(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[k] = SanitizeJSON(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, val := range t {
			out[i] = SanitizeJSON(val)
		}
		return out
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return nil
		}
		return t
	case float32:
		f := float64(t)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil
		}
		return f
	case *float64:
		if t == nil {
			return nil
		}
		return SanitizeJSON(*t)
	case time.Time:
		return t.Format(time.RFC3339)
	case *time.Time:
		if t == nil {
			return nil
		}
		return t.Format(time.RFC3339)
	default:
		return v
	}
}

// CleanFloat drops non-finite values so they store and serialize as null.
func CleanFloat(p *float64) *float64 {
	if p == nil {
		return nil
	}
	if math.IsNaN(*p) || math.IsInf(*p, 0) {
		return nil
	}
	return p
}
