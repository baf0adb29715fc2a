package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/dhananjaym182/stock-app-backend/models"
	"github.com/dhananjaym182/stock-app-backend/services/provider"
)

func newTestRepo(t *testing.T) *HistoryRepository {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, models.MigrateStockModels(db))
	return NewHistoryRepository(db)
}

func TestUpsertBarsIsIdempotent(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	date := time.Date(2025, 6, 17, 0, 0, 0, 0, time.UTC)

	bars := []provider.Bar{
		{Date: date, Open: fptr(100), High: fptr(105), Low: fptr(99), Close: fptr(104), Volume: iptr(1000)},
	}

	_, err := repo.UpsertBars(ctx, "TCS", bars)
	require.NoError(t, err)

	// Same key again with new values: must update in place, not duplicate
	bars[0].Close = fptr(110)
	_, err = repo.UpsertBars(ctx, "TCS", bars)
	require.NoError(t, err)

	rows, err := repo.QueryRange(ctx, "TCS", nil, nil)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 110.0, rows[0].Close.Decimal.InexactFloat64())
}

func TestUpsertBarsStoresNullForMissingFields(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	date := time.Date(2025, 6, 17, 0, 0, 0, 0, time.UTC)

	_, err := repo.UpsertBars(ctx, "TCS", []provider.Bar{
		{Date: date, Close: fptr(104)},
	})
	require.NoError(t, err)

	rows, err := repo.QueryRange(ctx, "TCS", nil, nil)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.False(t, rows[0].Open.Valid)
	assert.False(t, rows[0].High.Valid)
	assert.Nil(t, rows[0].Volume)
	assert.True(t, rows[0].Close.Valid)
}

func TestLatestBarDate(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	latest, err := repo.LatestBarDate(ctx, "TCS")
	require.NoError(t, err)
	assert.Nil(t, latest)

	d1 := time.Date(2025, 6, 16, 0, 0, 0, 0, time.UTC)
	d2 := time.Date(2025, 6, 17, 0, 0, 0, 0, time.UTC)
	_, err = repo.UpsertBars(ctx, "TCS", []provider.Bar{
		{Date: d2, Close: fptr(101)},
		{Date: d1, Close: fptr(100)},
	})
	require.NoError(t, err)

	latest, err = repo.LatestBarDate(ctx, "TCS")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.True(t, latest.Equal(d2))
}

func TestQueryRangeBoundsAndOrder(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	var bars []provider.Bar
	base := time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		bars = append(bars, provider.Bar{Date: base.AddDate(0, 0, i), Close: fptr(float64(100 + i))})
	}
	_, err := repo.UpsertBars(ctx, "TCS", bars)
	require.NoError(t, err)

	start := base.AddDate(0, 0, 1)
	end := base.AddDate(0, 0, 3)
	rows, err := repo.QueryRange(ctx, "TCS", &start, &end)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	for i := 1; i < len(rows); i++ {
		assert.True(t, rows[i-1].Date.Before(rows[i].Date))
	}
}

func TestQueryRangeIsPerSymbol(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	date := time.Date(2025, 6, 17, 0, 0, 0, 0, time.UTC)

	_, err := repo.UpsertBars(ctx, "TCS", []provider.Bar{{Date: date, Close: fptr(100)}})
	require.NoError(t, err)
	_, err = repo.UpsertBars(ctx, "INFY", []provider.Bar{{Date: date, Close: fptr(200)}})
	require.NoError(t, err)

	rows, err := repo.QueryRange(ctx, "TCS", nil, nil)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "TCS", rows[0].Symbol)
}

func seedStocks(t *testing.T, repo *HistoryRepository) {
	t.Helper()
	stocks := []models.Stock{
		{Symbol: "TCS", YahooSymbol: "TCS.NS", CompanyName: "Tata Consultancy Services", Exchange: "NSE", IsActive: true},
		{Symbol: "INFY", YahooSymbol: "INFY.NS", CompanyName: "Infosys", Exchange: "NSE", IsActive: true},
		{Symbol: "OLDCO", YahooSymbol: "OLDCO.BO", CompanyName: "Delisted Tata Unit", Exchange: "BSE", IsActive: false},
	}
	require.NoError(t, repo.db.Create(&stocks).Error)
}

func TestSearchByNameOrSymbol(t *testing.T) {
	repo := newTestRepo(t)
	seedStocks(t, repo)
	ctx := context.Background()

	hits, err := repo.SearchByNameOrSymbol(ctx, "tata", 20)
	require.NoError(t, err)
	require.Len(t, hits, 1, "inactive stocks are excluded")
	assert.Equal(t, "TCS", hits[0].Symbol)

	hits, err = repo.SearchByNameOrSymbol(ctx, "infy", 20)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "INFY", hits[0].Symbol)
}

func TestGetStockUnknownReturnsNil(t *testing.T) {
	repo := newTestRepo(t)

	stock, err := repo.GetStock(context.Background(), "NOSUCH")
	require.NoError(t, err)
	assert.Nil(t, stock)
}

func TestListActiveSymbols(t *testing.T) {
	repo := newTestRepo(t)
	seedStocks(t, repo)

	symbols, err := repo.ListActiveSymbols(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"INFY", "TCS"}, symbols)
}
