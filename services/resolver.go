package services

import "strings"

// Index symbols are passed to the provider unchanged, never suffixed.
var indexSymbols = map[string]bool{
	"^NSEI":    true,
	"^NSEBANK": true,
	"^DJI":     true,
	"^FTSE":    true,
	"^BSESN":   true,
}

// SymbolResolver maps a user-facing ticker to ordered provider symbol
// candidates. The first candidate with a non-empty recent history wins;
// that binding is per-request and never persisted.
type SymbolResolver struct{}

func NewSymbolResolver() *SymbolResolver {
	return &SymbolResolver{}
}

// Resolve returns candidate provider symbols in lookup priority order:
//  1. Known index symbols are used as-is.
//  2. A .BSE suffix maps to the primary .BO form first, .NS as fallback.
//  3. An existing .NS or .BO suffix is used as-is.
//  4. A bare ticker tries .NS first, then .BO.
func (r *SymbolResolver) Resolve(ticker string) []string {
	clean := strings.ToUpper(strings.TrimSpace(strings.TrimPrefix(ticker, "$")))
	if clean == "" {
		return nil
	}

	if indexSymbols[clean] {
		return []string{clean}
	}

	if strings.HasSuffix(clean, ".BSE") {
		base := strings.TrimSuffix(clean, ".BSE")
		return []string{base + ".BO", base + ".NS"}
	}

	if strings.HasSuffix(clean, ".NS") || strings.HasSuffix(clean, ".BO") {
		return []string{clean}
	}

	return []string{clean + ".NS", clean + ".BO"}
}

// Normalize returns the canonical user-facing form of a ticker.
func (r *SymbolResolver) Normalize(ticker string) string {
	return strings.ToUpper(strings.TrimSpace(strings.TrimPrefix(ticker, "$")))
}
