package services

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/dhananjaym182/stock-app-backend/services/provider"
)

// HistorySyncService keeps the durable store's daily bars current by
// fetching only the date range the store is missing. Upserts are
// idempotent, so re-running against an unchanged provider response never
// duplicates rows. Concurrent calls for one symbol collapse into a single
// provider fetch.
type HistorySyncService struct {
	store    Store
	provider provider.Provider
	resolver *SymbolResolver
	group    singleflight.Group
	now      func() time.Time
}

func NewHistorySyncService(store Store, prov provider.Provider, resolver *SymbolResolver) *HistorySyncService {
	return &HistorySyncService{
		store:    store,
		provider: prov,
		resolver: resolver,
		now:      time.Now,
	}
}

// Sync brings the store up to "yesterday or later" for symbol and reports
// whether a provider fetch happened. Today's intraday movement is the
// quote path's concern, not this synchronizer's.
func (s *HistorySyncService) Sync(ctx context.Context, symbol string) (bool, error) {
	key := strings.ToUpper(symbol)
	fetched, err, _ := s.group.Do(key, func() (interface{}, error) {
		return s.syncLocked(ctx, key)
	})
	if err != nil {
		return false, err
	}
	return fetched.(bool), nil
}

func (s *HistorySyncService) syncLocked(ctx context.Context, symbol string) (bool, error) {
	latest, err := s.store.LatestBarDate(ctx, symbol)
	if err != nil {
		return false, err
	}

	today := s.now().UTC().Truncate(24 * time.Hour)
	yesterday := today.AddDate(0, 0, -1)

	// Store already covers yesterday or later: nothing to fetch.
	if latest != nil && !latest.Before(yesterday) {
		return false, nil
	}

	var start, end *time.Time
	if latest != nil {
		// Gap-fill window [latest+1, tomorrow)
		from := latest.AddDate(0, 0, 1)
		until := today.AddDate(0, 0, 1)
		start, end = &from, &until
	}

	bars, err := s.fetchFirstNonEmpty(ctx, symbol, start, end)
	if err != nil {
		return false, err
	}
	if len(bars) == 0 {
		if latest == nil {
			// No candidate yielded any history at all
			return false, fmt.Errorf("%w: %s", ErrSymbolNotFound, symbol)
		}
		// Known symbol, empty gap window (weekend, holiday): store is current
		return false, nil
	}

	count, err := s.store.UpsertBars(ctx, symbol, bars)
	if err != nil {
		return false, err
	}
	log.Printf("History sync for %s stored %d bars (%d fetched)", symbol, count, len(bars))
	return true, nil
}

// fetchFirstNonEmpty tries resolver candidates in priority order and
// returns the first non-empty history, abandoning the rest.
func (s *HistorySyncService) fetchFirstNonEmpty(ctx context.Context, symbol string, start, end *time.Time) ([]provider.Bar, error) {
	candidates, err := s.candidates(ctx, symbol)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for _, candidate := range candidates {
		bars, err := s.provider.FetchHistory(ctx, candidate, start, end)
		if err != nil {
			lastErr = err
			continue
		}
		if len(bars) > 0 {
			return bars, nil
		}
	}
	if lastErr != nil {
		return nil, fmt.Errorf("%w: history for %s: %v", ErrProvider, symbol, lastErr)
	}
	return nil, nil
}

// candidates prefers the persisted provider-symbol binding, falling back
// to resolver variants for symbols the store has never seen.
func (s *HistorySyncService) candidates(ctx context.Context, symbol string) ([]string, error) {
	stock, err := s.store.GetStock(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if stock != nil && stock.YahooSymbol != "" {
		return []string{stock.YahooSymbol}, nil
	}
	return s.resolver.Resolve(symbol), nil
}
