package services

import "errors"

// Error kinds surfaced by the data services. Handlers branch on these to
// pick a status code; nothing below this layer leaks transport errors.
var (
	// ErrSymbolNotFound means no resolver candidate yielded provider data.
	ErrSymbolNotFound = errors.New("symbol not found")

	// ErrProvider wraps transient provider fetch failures.
	ErrProvider = errors.New("provider fetch failed")

	// ErrStore wraps durable store read/write failures.
	ErrStore = errors.New("store operation failed")
)
