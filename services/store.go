package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/dhananjaym182/stock-app-backend/models"
	"github.com/dhananjaym182/stock-app-backend/services/provider"
)

// Store is the durable-store collaborator contract. One row per
// (symbol, date) bar; upsert is idempotent by that key.
type Store interface {
	GetStock(ctx context.Context, symbol string) (*models.Stock, error)
	LatestBar(ctx context.Context, symbol string) (*models.StockHistory, error)
	LatestBarDate(ctx context.Context, symbol string) (*time.Time, error)
	UpsertBars(ctx context.Context, symbol string, bars []provider.Bar) (int64, error)
	QueryRange(ctx context.Context, symbol string, start, end *time.Time) ([]models.StockHistory, error)
	SearchByNameOrSymbol(ctx context.Context, query string, limit int) ([]models.Stock, error)
	ListActiveSymbols(ctx context.Context) ([]string, error)
}

// HistoryRepository implements Store over GORM.
type HistoryRepository struct {
	db *gorm.DB
}

func NewHistoryRepository(db *gorm.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// GetStock returns the stock record for symbol, or nil when unknown.
func (r *HistoryRepository) GetStock(ctx context.Context, symbol string) (*models.Stock, error) {
	var stock models.Stock
	err := r.db.WithContext(ctx).Where("symbol = ?", strings.ToUpper(symbol)).First(&stock).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get stock %s: %v", ErrStore, symbol, err)
	}
	return &stock, nil
}

// LatestBar returns the most recent bar for symbol, or nil when none exists.
func (r *HistoryRepository) LatestBar(ctx context.Context, symbol string) (*models.StockHistory, error) {
	var bar models.StockHistory
	err := r.db.WithContext(ctx).
		Where("symbol = ?", strings.ToUpper(symbol)).
		Order("date DESC").
		First(&bar).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: latest bar for %s: %v", ErrStore, symbol, err)
	}
	return &bar, nil
}

// LatestBarDate returns the date of the most recent bar, or nil.
func (r *HistoryRepository) LatestBarDate(ctx context.Context, symbol string) (*time.Time, error) {
	bar, err := r.LatestBar(ctx, symbol)
	if err != nil || bar == nil {
		return nil, err
	}
	d := bar.Date
	return &d, nil
}

// UpsertBars writes bars in one transaction: insert on a new (symbol, date),
// overwrite numeric fields and refresh last_updated on conflict. Re-running
// against identical input leaves the row count unchanged.
func (r *HistoryRepository) UpsertBars(ctx context.Context, symbol string, bars []provider.Bar) (int64, error) {
	if len(bars) == 0 {
		return 0, nil
	}

	now := time.Now().UTC()
	rows := make([]models.StockHistory, 0, len(bars))
	for _, b := range bars {
		rows = append(rows, models.StockHistory{
			Symbol:      strings.ToUpper(symbol),
			Date:        b.Date,
			Open:        toNullDecimal(b.Open),
			High:        toNullDecimal(b.High),
			Low:         toNullDecimal(b.Low),
			Close:       toNullDecimal(b.Close),
			Volume:      b.Volume,
			LastUpdated: now,
		})
	}

	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "symbol"}, {Name: "date"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"open", "high", "low", "close", "volume", "last_updated",
		}),
	}).Create(&rows)

	if result.Error != nil {
		return 0, fmt.Errorf("%w: upsert %d bars for %s: %v", ErrStore, len(bars), symbol, result.Error)
	}
	return result.RowsAffected, nil
}

// QueryRange returns bars for symbol in ascending date order. Nil bounds
// are open-ended; end is inclusive.
func (r *HistoryRepository) QueryRange(ctx context.Context, symbol string, start, end *time.Time) ([]models.StockHistory, error) {
	q := r.db.WithContext(ctx).Where("symbol = ?", strings.ToUpper(symbol))
	if start != nil {
		q = q.Where("date >= ?", *start)
	}
	if end != nil {
		q = q.Where("date <= ?", *end)
	}

	var rows []models.StockHistory
	if err := q.Order("date ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("%w: query range for %s: %v", ErrStore, symbol, err)
	}
	return rows, nil
}

// SearchByNameOrSymbol matches active stocks by symbol, company name or
// provider symbol substring.
func (r *HistoryRepository) SearchByNameOrSymbol(ctx context.Context, query string, limit int) ([]models.Stock, error) {
	if limit <= 0 {
		limit = 20
	}
	pattern := "%" + strings.ToUpper(query) + "%"

	var stocks []models.Stock
	err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Where("UPPER(symbol) LIKE ? OR UPPER(company_name) LIKE ? OR UPPER(yahoo_symbol) LIKE ?",
			pattern, pattern, pattern).
		Limit(limit).
		Find(&stocks).Error
	if err != nil {
		return nil, fmt.Errorf("%w: search %q: %v", ErrStore, query, err)
	}
	return stocks, nil
}

// ListActiveSymbols returns the symbols of all active stocks.
func (r *HistoryRepository) ListActiveSymbols(ctx context.Context) ([]string, error) {
	var symbols []string
	err := r.db.WithContext(ctx).
		Model(&models.Stock{}).
		Where("is_active = ?", true).
		Order("symbol ASC").
		Pluck("symbol", &symbols).Error
	if err != nil {
		return nil, fmt.Errorf("%w: list active symbols: %v", ErrStore, err)
	}
	return symbols, nil
}

func toNullDecimal(p *float64) decimal.NullDecimal {
	p = CleanFloat(p)
	if p == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(decimal.NewFromFloat(*p))
}

func nullDecimalPtr(d decimal.NullDecimal) *float64 {
	if !d.Valid {
		return nil
	}
	f := d.Decimal.InexactFloat64()
	return &f
}

func nullDecimalFloat(d decimal.NullDecimal) float64 {
	if !d.Valid {
		return 0
	}
	return d.Decimal.InexactFloat64()
}

func nullInt(p *int64) int64 {
	if p == nil {
		return 0
	}
	return *p
}
