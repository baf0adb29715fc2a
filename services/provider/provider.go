package provider

import (
	"context"
	"time"
)

// Bar is one day's open/high/low/close/volume for a provider symbol.
// Fields the provider did not report are nil, never zero.
type Bar struct {
	Date   time.Time `json:"date"`
	Open   *float64  `json:"open"`
	High   *float64  `json:"high"`
	Low    *float64  `json:"low"`
	Close  *float64  `json:"close"`
	Volume *int64    `json:"volume"`
}

// Quote is a point-in-time snapshot for a provider symbol.
type Quote struct {
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	PrevClose float64   `json:"prev_close"`
	Open      *float64  `json:"open"`
	High      *float64  `json:"high"`
	Low       *float64  `json:"low"`
	Volume    *int64    `json:"volume"`
	Time      time.Time `json:"time"`
}

// Provider fetches market data for an exact provider symbol (already
// resolved, suffix included). Implementations return (nil, nil) or an
// empty slice for symbols the provider does not know, reserving errors
// for transport and decoding failures.
type Provider interface {
	// FetchQuote returns the latest snapshot, or nil when the symbol
	// yields no data.
	FetchQuote(ctx context.Context, symbol string) (*Quote, error)

	// FetchHistory returns daily bars in ascending date order. A nil
	// start means full available history; end is exclusive.
	FetchHistory(ctx context.Context, symbol string, start, end *time.Time) ([]Bar, error)
}
