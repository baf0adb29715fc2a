package services

import (
	"context"
	"fmt"
	"log"
	"strings"
)

// Key prefixes the cache admin surface knows about
var cachePrefixes = []string{"quote", "history", "realtime", "search"}

// CacheAdminService exposes operational cache controls: per-prefix key
// counts and pattern-scoped invalidation.
type CacheAdminService struct {
	cache Cache
}

func NewCacheAdminService(cache Cache) *CacheAdminService {
	return &CacheAdminService{cache: cache}
}

// Stats counts keys per known prefix.
func (s *CacheAdminService) Stats(ctx context.Context) map[string]interface{} {
	counts := make(map[string]interface{}, len(cachePrefixes))
	total := 0
	for _, prefix := range cachePrefixes {
		keys, err := s.cache.ScanKeys(ctx, prefix+":*", 10000)
		if err != nil {
			log.Printf("Cache stats scan failed for %s: %v", prefix, err)
			counts[prefix] = nil
			continue
		}
		counts[prefix] = len(keys)
		total += len(keys)
	}
	counts["total"] = total
	return counts
}

// ClearPrefix deletes all keys under one known prefix and returns how
// many were removed.
func (s *CacheAdminService) ClearPrefix(ctx context.Context, prefix string) (int64, error) {
	prefix = strings.ToLower(strings.TrimSpace(prefix))
	if !validPrefix(prefix) {
		return 0, fmt.Errorf("unknown cache prefix %q", prefix)
	}
	return s.clearPattern(ctx, prefix+":*")
}

// ClearSymbol invalidates every cached entry for one symbol across all
// prefixes, e.g. after a manual data correction.
func (s *CacheAdminService) ClearSymbol(ctx context.Context, symbol string) int64 {
	sym := strings.ToUpper(strings.TrimSpace(symbol))
	var removed int64
	removed += s.cache.Delete(ctx, "quote:"+sym, "realtime:"+sym)
	for _, pattern := range []string{"history:" + sym + ":*", "search:*" + sym + "*"} {
		n, err := s.clearPattern(ctx, pattern)
		if err != nil {
			log.Printf("Cache clear failed for %s: %v", pattern, err)
			continue
		}
		removed += n
	}
	return removed
}

func (s *CacheAdminService) clearPattern(ctx context.Context, pattern string) (int64, error) {
	keys, err := s.cache.ScanKeys(ctx, pattern, 0)
	if err != nil {
		return 0, fmt.Errorf("scan %s: %w", pattern, err)
	}
	if len(keys) == 0 {
		return 0, nil
	}
	return s.cache.Delete(ctx, keys...), nil
}

func validPrefix(prefix string) bool {
	for _, p := range cachePrefixes {
		if p == prefix {
			return true
		}
	}
	return false
}
