package services

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/dhananjaym182/stock-app-backend/models"
	"github.com/dhananjaym182/stock-app-backend/services/provider"
)

// fakeStore is an in-memory Store for service tests.
type fakeStore struct {
	mu      sync.Mutex
	stocks  map[string]*models.Stock
	bars    map[string][]provider.Bar
	upserts []upsertCall
}

type upsertCall struct {
	symbol string
	bars   []provider.Bar
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		stocks: make(map[string]*models.Stock),
		bars:   make(map[string][]provider.Bar),
	}
}

func (f *fakeStore) GetStock(_ context.Context, symbol string) (*models.Stock, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stocks[strings.ToUpper(symbol)], nil
}

func (f *fakeStore) LatestBar(_ context.Context, symbol string) (*models.StockHistory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	bars := f.bars[strings.ToUpper(symbol)]
	if len(bars) == 0 {
		return nil, nil
	}
	last := bars[len(bars)-1]
	row := models.StockHistory{
		Symbol:      strings.ToUpper(symbol),
		Date:        last.Date,
		Open:        toNullDecimal(last.Open),
		High:        toNullDecimal(last.High),
		Low:         toNullDecimal(last.Low),
		Close:       toNullDecimal(last.Close),
		Volume:      last.Volume,
		LastUpdated: time.Now().UTC(),
	}
	return &row, nil
}

func (f *fakeStore) LatestBarDate(ctx context.Context, symbol string) (*time.Time, error) {
	bar, err := f.LatestBar(ctx, symbol)
	if err != nil || bar == nil {
		return nil, err
	}
	d := bar.Date
	return &d, nil
}

func (f *fakeStore) UpsertBars(_ context.Context, symbol string, bars []provider.Bar) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sym := strings.ToUpper(symbol)
	f.upserts = append(f.upserts, upsertCall{symbol: sym, bars: bars})

	byDate := make(map[string]provider.Bar)
	for _, b := range f.bars[sym] {
		byDate[b.Date.Format("2006-01-02")] = b
	}
	for _, b := range bars {
		byDate[b.Date.Format("2006-01-02")] = b
	}
	merged := make([]provider.Bar, 0, len(byDate))
	for _, b := range byDate {
		merged = append(merged, b)
	}
	sortBarsByDate(merged)
	f.bars[sym] = merged
	return int64(len(bars)), nil
}

func (f *fakeStore) QueryRange(_ context.Context, symbol string, start, end *time.Time) ([]models.StockHistory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var rows []models.StockHistory
	for _, b := range f.bars[strings.ToUpper(symbol)] {
		if start != nil && b.Date.Before(*start) {
			continue
		}
		if end != nil && b.Date.After(*end) {
			continue
		}
		rows = append(rows, models.StockHistory{
			Symbol: strings.ToUpper(symbol),
			Date:   b.Date,
			Open:   toNullDecimal(b.Open),
			High:   toNullDecimal(b.High),
			Low:    toNullDecimal(b.Low),
			Close:  toNullDecimal(b.Close),
			Volume: b.Volume,
		})
	}
	return rows, nil
}

func (f *fakeStore) SearchByNameOrSymbol(_ context.Context, query string, limit int) ([]models.Stock, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	q := strings.ToUpper(query)
	var hits []models.Stock
	for _, st := range f.stocks {
		if strings.Contains(strings.ToUpper(st.Symbol), q) ||
			strings.Contains(strings.ToUpper(st.CompanyName), q) {
			hits = append(hits, *st)
		}
		if len(hits) == limit {
			break
		}
	}
	return hits, nil
}

func (f *fakeStore) ListActiveSymbols(_ context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var symbols []string
	for sym, st := range f.stocks {
		if st.IsActive {
			symbols = append(symbols, sym)
		}
	}
	return symbols, nil
}

func sortBarsByDate(bars []provider.Bar) {
	for i := 1; i < len(bars); i++ {
		for j := i; j > 0 && bars[j].Date.Before(bars[j-1].Date); j-- {
			bars[j], bars[j-1] = bars[j-1], bars[j]
		}
	}
}

// fakeProvider answers from canned data and records fetch windows.
type fakeProvider struct {
	mu       sync.Mutex
	quotes   map[string]*provider.Quote
	history  map[string][]provider.Bar
	quoteErr error
	histErr  error

	quoteCalls   []string
	historyCalls []historyCall
}

type historyCall struct {
	symbol string
	start  *time.Time
	end    *time.Time
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		quotes:  make(map[string]*provider.Quote),
		history: make(map[string][]provider.Bar),
	}
}

func (f *fakeProvider) FetchQuote(_ context.Context, symbol string) (*provider.Quote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.quoteCalls = append(f.quoteCalls, symbol)
	if f.quoteErr != nil {
		return nil, f.quoteErr
	}
	return f.quotes[symbol], nil
}

func (f *fakeProvider) FetchHistory(_ context.Context, symbol string, start, end *time.Time) ([]provider.Bar, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.historyCalls = append(f.historyCalls, historyCall{symbol: symbol, start: start, end: end})
	if f.histErr != nil {
		return nil, f.histErr
	}
	bars := f.history[symbol]
	var out []provider.Bar
	for _, b := range bars {
		if start != nil && b.Date.Before(*start) {
			continue
		}
		if end != nil && !b.Date.Before(*end) {
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

// fakeCache is a TTL-less in-memory Cache.
type fakeCache struct {
	mu   sync.Mutex
	data map[string][]byte
	sets map[string]time.Duration
}

func newFakeCache() *fakeCache {
	return &fakeCache{
		data: make(map[string][]byte),
		sets: make(map[string]time.Duration),
	}
}

func (f *fakeCache) Get(_ context.Context, key string, dest interface{}) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	raw, ok := f.data[key]
	if !ok {
		return false
	}
	return json.Unmarshal(raw, dest) == nil
}

func (f *fakeCache) Set(_ context.Context, key string, value interface{}, ttl time.Duration) bool {
	raw, err := json.Marshal(value)
	if err != nil {
		return false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = raw
	f.sets[key] = ttl
	return true
}

func (f *fakeCache) Delete(_ context.Context, keys ...string) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, key := range keys {
		if _, ok := f.data[key]; ok {
			delete(f.data, key)
			n++
		}
	}
	return n
}

func (f *fakeCache) Exists(_ context.Context, key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.data[key]
	return ok
}

func (f *fakeCache) ScanKeys(_ context.Context, pattern string, limit int64) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var keys []string
	for key := range f.data {
		if globMatch(pattern, key) {
			keys = append(keys, key)
		}
		if limit > 0 && int64(len(keys)) == limit {
			break
		}
	}
	return keys, nil
}

// globMatch supports the '*' wildcard, enough to mirror Redis SCAN MATCH.
func globMatch(pattern, s string) bool {
	parts := strings.Split(pattern, "*")
	if len(parts) == 1 {
		return s == pattern
	}
	if !strings.HasPrefix(s, parts[0]) {
		return false
	}
	s = s[len(parts[0]):]
	for i, part := range parts[1:] {
		idx := strings.Index(s, part)
		if idx < 0 {
			return false
		}
		if i == len(parts)-2 && !strings.HasSuffix(s, part) {
			return false
		}
		s = s[idx+len(part):]
	}
	return true
}
