package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Stock represents a listed symbol and its provider symbol binding
type Stock struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Symbol      string    `gorm:"uniqueIndex;not null" json:"symbol"`
	YahooSymbol string    `gorm:"index" json:"yahoo_symbol"`
	CompanyName string    `json:"company_name"`
	Exchange    string    `json:"exchange"` // NSE, BSE
	Sector      string    `json:"sector"`
	IsActive    bool      `gorm:"default:true" json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// StockHistory is one daily bar. At most one row per (symbol, date);
// the unique index backs the ON CONFLICT upsert. Numeric fields are
// nullable so "not reported" stays distinct from a reported zero.
type StockHistory struct {
	ID          uint                `gorm:"primaryKey" json:"id"`
	Symbol      string              `gorm:"uniqueIndex:idx_symbol_date;not null" json:"symbol"`
	Date        time.Time           `gorm:"uniqueIndex:idx_symbol_date;not null" json:"date"`
	Open        decimal.NullDecimal `gorm:"type:decimal(15,4)" json:"open"`
	High        decimal.NullDecimal `gorm:"type:decimal(15,4)" json:"high"`
	Low         decimal.NullDecimal `gorm:"type:decimal(15,4)" json:"low"`
	Close       decimal.NullDecimal `gorm:"type:decimal(15,4)" json:"close"`
	Volume      *int64              `json:"volume"`
	LastUpdated time.Time           `json:"last_updated"`
}

// MigrateStockModels runs database migrations for stock-related models
func MigrateStockModels(db *gorm.DB) error {
	return db.AutoMigrate(
		&Stock{},
		&StockHistory{},
	)
}
