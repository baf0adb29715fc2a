package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/dhananjaym182/stock-app-backend/config"
	"github.com/dhananjaym182/stock-app-backend/services/provider"
)

// QuoteSnapshot is the user-facing quote payload. It is derived from the
// latest stored bar or a fresh provider fetch and lives only in the cache.
type QuoteSnapshot struct {
	Symbol        string   `json:"symbol"`
	Name          string   `json:"name,omitempty"`
	Exchange      string   `json:"exchange,omitempty"`
	Sector        string   `json:"sector,omitempty"`
	CurrentPrice  float64  `json:"currentPrice"`
	Change        float64  `json:"change"`
	ChangePercent float64  `json:"changePercent"`
	Volume        int64    `json:"volume"`
	DayHigh       *float64 `json:"dayHigh"`
	DayLow        *float64 `json:"dayLow"`
	Open          *float64 `json:"open"`
}

// QuoteResult is the structured getQuote response. Failures carry Error
// and an empty payload; callers never see a raw transport error.
type QuoteResult struct {
	Stock     *QuoteSnapshot `json:"stock"`
	Source    string         `json:"source"`
	Timestamp string         `json:"timestamp"`
	Error     string         `json:"error,omitempty"`
}

// HistoryPoint is one bar in a history response. Unreported fields render
// as zero here; the store keeps them null.
type HistoryPoint struct {
	Timestamp string  `json:"timestamp"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    int64   `json:"volume"`
}

// HistoryResult is the structured getHistory response.
type HistoryResult struct {
	Data      []HistoryPoint `json:"data"`
	Source    string         `json:"source"`
	Timestamp string         `json:"timestamp"`
	Period    string         `json:"period"`
	Records   int            `json:"records"`
	Error     string         `json:"error,omitempty"`
}

// SearchHit is one row of a symbol search.
type SearchHit struct {
	Symbol      string `json:"symbol"`
	YahooSymbol string `json:"yahoo_symbol"`
	CompanyName string `json:"company_name"`
	Exchange    string `json:"exchange"`
	Sector      string `json:"sector"`
}

// SearchResult is the structured search response.
type SearchResult struct {
	Stocks       []SearchHit `json:"stocks"`
	Source       string      `json:"source"`
	TotalResults int         `json:"total_results"`
	Error        string      `json:"error,omitempty"`
}

// periodDays maps a history period to its lookback in calendar days.
// ALL (and anything unrecognized) means the widest lookback: no start bound.
var periodDays = map[string]int{
	"1D":  1,
	"1W":  7,
	"15D": 15,
	"1M":  30,
	"6M":  180,
	"1Y":  365,
	"5Y":  365 * 5,
}

// StockService is the cache-aside coordinator for quotes, history and
// search: cache first, then a market-hours-aware store path, then the
// provider. It performs no cross-request locking; concurrent misses for
// one symbol may duplicate a fetch, which idempotent upserts and
// last-write-wins caching tolerate.
type StockService struct {
	store    Store
	cache    Cache
	provider provider.Provider
	resolver *SymbolResolver
	syncer   *HistorySyncService
	cfg      *config.Config
	loc      *time.Location
	now      func() time.Time
}

func NewStockService(store Store, cache Cache, prov provider.Provider, resolver *SymbolResolver, syncer *HistorySyncService, cfg *config.Config) *StockService {
	loc, err := time.LoadLocation(cfg.MarketTimezone)
	if err != nil {
		log.Printf("Unknown market timezone %q, falling back to UTC: %v", cfg.MarketTimezone, err)
		loc = time.UTC
	}
	return &StockService{
		store:    store,
		cache:    cache,
		provider: prov,
		resolver: resolver,
		syncer:   syncer,
		cfg:      cfg,
		loc:      loc,
		now:      time.Now,
	}
}

// IsMarketOpen checks the trading-session window in the exchange's local time.
func (s *StockService) IsMarketOpen() bool {
	now := s.now().In(s.loc)
	if now.Weekday() == time.Saturday || now.Weekday() == time.Sunday {
		return false
	}
	minutes := now.Hour()*60 + now.Minute()
	openAt := s.cfg.MarketOpenHour*60 + s.cfg.MarketOpenMin
	closeAt := s.cfg.MarketCloseHour*60 + s.cfg.MarketCloseMin
	return minutes >= openAt && minutes <= closeAt
}

// GetQuote serves a quote cache-first. On a miss with the market closed it
// synthesizes a snapshot from the latest stored bar (change zero, since no
// later bar exists) before falling through to a live provider fetch.
func (s *StockService) GetQuote(ctx context.Context, symbol string) (*QuoteResult, error) {
	sym := s.resolver.Normalize(symbol)
	cacheKey := "quote:" + sym

	var cached QuoteResult
	if s.cache.Get(ctx, cacheKey, &cached) {
		return &cached, nil
	}

	marketOpen := s.IsMarketOpen()

	if !marketOpen {
		result, err := s.quoteFromStore(ctx, sym)
		if err != nil {
			return s.quoteError(err), err
		}
		if result != nil {
			s.cache.Set(ctx, cacheKey, result, s.cfg.CacheTTLRealtime*10)
			log.Printf("Serving database quote for %s (market closed)", sym)
			return result, nil
		}
	}

	result, err := s.quoteFromProvider(ctx, sym)
	if err != nil {
		return s.quoteError(err), err
	}

	ttl := s.cfg.CacheTTLRealtime
	if !marketOpen {
		ttl *= 10
	}
	s.cache.Set(ctx, cacheKey, result, ttl)
	return result, nil
}

// quoteFromStore builds an off-hours snapshot from the latest stored bar,
// or returns (nil, nil) when the store has no bars for the symbol.
func (s *StockService) quoteFromStore(ctx context.Context, sym string) (*QuoteResult, error) {
	bar, err := s.store.LatestBar(ctx, sym)
	if err != nil {
		return nil, err
	}
	if bar == nil || !bar.Close.Valid {
		return nil, nil
	}

	snapshot := &QuoteSnapshot{
		Symbol:       sym,
		CurrentPrice: bar.Close.Decimal.InexactFloat64(),
		// No bar after the latest one exists, so change is zero
		Change:        0,
		ChangePercent: 0,
		DayHigh:       nullDecimalPtr(bar.High),
		DayLow:        nullDecimalPtr(bar.Low),
		Open:          nullDecimalPtr(bar.Open),
	}
	if bar.Volume != nil {
		snapshot.Volume = *bar.Volume
	}
	s.attachStockInfo(ctx, sym, snapshot)

	return &QuoteResult{
		Stock:     snapshot,
		Source:    "database",
		Timestamp: s.now().UTC().Format(time.RFC3339),
	}, nil
}

// quoteFromProvider tries resolver candidates in order and accepts the
// first that returns data.
func (s *StockService) quoteFromProvider(ctx context.Context, sym string) (*QuoteResult, error) {
	var quote *provider.Quote
	var lastErr error
	for _, candidate := range s.resolver.Resolve(sym) {
		q, err := s.provider.FetchQuote(ctx, candidate)
		if err != nil {
			lastErr = err
			continue
		}
		if q != nil {
			quote = q
			break
		}
	}
	if quote == nil {
		if lastErr != nil {
			return nil, fmt.Errorf("%w: quote for %s: %v", ErrProvider, sym, lastErr)
		}
		return nil, fmt.Errorf("%w: %s", ErrSymbolNotFound, sym)
	}

	change := 0.0
	changePercent := 0.0
	if quote.PrevClose != 0 {
		change = quote.Price - quote.PrevClose
		changePercent = change / quote.PrevClose * 100
	}

	snapshot := &QuoteSnapshot{
		Symbol:        sym,
		CurrentPrice:  quote.Price,
		Change:        change,
		ChangePercent: changePercent,
		DayHigh:       CleanFloat(quote.High),
		DayLow:        CleanFloat(quote.Low),
		Open:          CleanFloat(quote.Open),
	}
	if quote.Volume != nil {
		snapshot.Volume = *quote.Volume
	}
	s.attachStockInfo(ctx, sym, snapshot)

	return &QuoteResult{
		Stock:     snapshot,
		Source:    "provider",
		Timestamp: s.now().UTC().Format(time.RFC3339),
	}, nil
}

// attachStockInfo decorates a snapshot with listing metadata, best-effort.
func (s *StockService) attachStockInfo(ctx context.Context, sym string, snapshot *QuoteSnapshot) {
	stock, err := s.store.GetStock(ctx, sym)
	if err != nil || stock == nil {
		return
	}
	snapshot.Name = stock.CompanyName
	snapshot.Exchange = stock.Exchange
	snapshot.Sector = stock.Sector
}

// GetHistory serves history cache-first, then ensures the store covers the
// requested window via the synchronizer and reads the window back from the
// store. The response body never comes from the provider directly.
func (s *StockService) GetHistory(ctx context.Context, symbol, period string) (*HistoryResult, error) {
	sym := s.resolver.Normalize(symbol)
	period = strings.ToUpper(strings.TrimSpace(period))
	if period == "" {
		period = "ALL"
	}
	cacheKey := fmt.Sprintf("history:%s:%s", sym, period)

	var cached HistoryResult
	if s.cache.Get(ctx, cacheKey, &cached) {
		return &cached, nil
	}

	fetched, err := s.syncer.Sync(ctx, sym)
	if err != nil {
		return s.historyError(period, err), err
	}

	start, end := s.periodDates(period)
	rows, err := s.store.QueryRange(ctx, sym, start, end)
	if err != nil {
		return s.historyError(period, err), err
	}

	points := make([]HistoryPoint, 0, len(rows))
	for _, row := range rows {
		points = append(points, HistoryPoint{
			Timestamp: row.Date.Format("2006-01-02"),
			Open:      nullDecimalFloat(row.Open),
			High:      nullDecimalFloat(row.High),
			Low:       nullDecimalFloat(row.Low),
			Close:     nullDecimalFloat(row.Close),
			Volume:    nullInt(row.Volume),
		})
	}

	source := "database"
	if fetched {
		source = "database+provider"
	}

	result := &HistoryResult{
		Data:      points,
		Source:    source,
		Timestamp: s.now().UTC().Format(time.RFC3339),
		Period:    period,
		Records:   len(points),
	}
	s.cache.Set(ctx, cacheKey, result, s.cfg.CacheTTLHistorical)
	log.Printf("History prepared for %s:%s, %d records (source=%s)", sym, period, len(points), source)
	return result, nil
}

// SearchStocks matches stocks by symbol or name substring, cache-first.
func (s *StockService) SearchStocks(ctx context.Context, query string) (*SearchResult, error) {
	q := strings.ToUpper(strings.TrimSpace(query))
	cacheKey := "search:" + q

	var cached SearchResult
	if s.cache.Get(ctx, cacheKey, &cached) {
		return &cached, nil
	}

	stocks, err := s.store.SearchByNameOrSymbol(ctx, q, 20)
	if err != nil {
		result := &SearchResult{Stocks: []SearchHit{}, Source: "error", Error: err.Error()}
		return result, err
	}

	hits := make([]SearchHit, 0, len(stocks))
	for _, st := range stocks {
		hits = append(hits, SearchHit{
			Symbol:      st.Symbol,
			YahooSymbol: st.YahooSymbol,
			CompanyName: st.CompanyName,
			Exchange:    st.Exchange,
			Sector:      st.Sector,
		})
	}

	result := &SearchResult{
		Stocks:       hits,
		Source:       "database",
		TotalResults: len(hits),
	}
	s.cache.Set(ctx, cacheKey, result, s.cfg.CacheTTLSearch)
	return result, nil
}

// periodDates resolves a period string to a concrete window ending today.
// Unknown periods get the widest supported lookback (open-ended start).
func (s *StockService) periodDates(period string) (*time.Time, *time.Time) {
	today := s.now().UTC().Truncate(24 * time.Hour)
	if period == "ALL" {
		return nil, &today
	}
	days, ok := periodDays[period]
	if !ok {
		return nil, &today
	}
	start := today.AddDate(0, 0, -days)
	return &start, &today
}

func (s *StockService) quoteError(err error) *QuoteResult {
	return &QuoteResult{
		Source:    "error",
		Timestamp: s.now().UTC().Format(time.RFC3339),
		Error:     errMessage(err),
	}
}

func (s *StockService) historyError(period string, err error) *HistoryResult {
	return &HistoryResult{
		Data:      []HistoryPoint{},
		Source:    "error",
		Timestamp: s.now().UTC().Format(time.RFC3339),
		Period:    period,
		Records:   0,
		Error:     errMessage(err),
	}
}

func errMessage(err error) string {
	if errors.Is(err, ErrSymbolNotFound) {
		return "Symbol not found"
	}
	return err.Error()
}
