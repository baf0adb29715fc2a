package scheduler

// Package scheduler runs the background jobs of the stock app backend:
// - nightly incremental history sync for all active stocks
// - periodic index quote warm-up during market hours
//
// Jobs are defined in jobs.go.
