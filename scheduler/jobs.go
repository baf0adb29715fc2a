package scheduler

import (
	"context"
	"log"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/dhananjaym182/stock-app-backend/services"
)

// Index tickers whose quotes are kept warm during market hours
var warmupSymbols = []string{"^NSEI", "^NSEBANK", "^BSESN"}

// Scheduler manages scheduled jobs
type Scheduler struct {
	cron   *gocron.Scheduler
	store  services.Store
	syncer *services.HistorySyncService
	stocks *services.StockService
}

// NewScheduler creates a new scheduler instance
func NewScheduler(store services.Store, syncer *services.HistorySyncService, stocks *services.StockService) *Scheduler {
	return &Scheduler{
		cron:   gocron.NewScheduler(time.UTC),
		store:  store,
		syncer: syncer,
		stocks: stocks,
	}
}

// Start starts all scheduled jobs
func (s *Scheduler) Start() {
	log.Println("Starting scheduler...")

	// Sync daily bars for all active stocks after market close
	s.cron.Every(1).Day().At("13:00").Do(func() { // 18:30 IST
		s.syncActiveStocks()
	})

	// Keep index quotes warm during trading hours
	s.cron.Every(5).Minutes().Do(func() {
		if s.stocks.IsMarketOpen() {
			s.warmupIndexQuotes()
		}
	})

	s.cron.StartAsync()
	log.Println("Scheduler started successfully")
}

// Stop stops the scheduler
func (s *Scheduler) Stop() {
	s.cron.Stop()
	log.Println("Scheduler stopped")
}

// syncActiveStocks gap-fills history for every active stock. Per-symbol
// failures are logged and skipped so one bad symbol cannot abort the run.
func (s *Scheduler) syncActiveStocks() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	symbols, err := s.store.ListActiveSymbols(ctx)
	if err != nil {
		log.Printf("Nightly sync aborted, cannot list symbols: %v", err)
		return
	}

	synced, failed := 0, 0
	for _, symbol := range symbols {
		if _, err := s.syncer.Sync(ctx, symbol); err != nil {
			log.Printf("Nightly sync failed for %s: %v", symbol, err)
			failed++
			continue
		}
		synced++
	}
	log.Printf("Nightly sync completed: %d synced, %d failed", synced, failed)
}

// warmupIndexQuotes refreshes cached quotes for the index symbols.
func (s *Scheduler) warmupIndexQuotes() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	for _, symbol := range warmupSymbols {
		if _, err := s.stocks.GetQuote(ctx, symbol); err != nil {
			log.Printf("Index quote warmup failed for %s: %v", symbol, err)
		}
	}
}
