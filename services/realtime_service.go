package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dhananjaym182/stock-app-backend/config"
	"github.com/dhananjaym182/stock-app-backend/services/provider"
)

// WebSocket tuning, shared by all realtime clients
const (
	wsWriteTimeout  = 10 * time.Second
	wsPongTimeout   = 60 * time.Second
	wsPingInterval  = 30 * time.Second
	wsReadLimit     = 512
	wsSendBufferLen = 256
)

// Tick is one realtime price update for a symbol.
type Tick struct {
	Symbol        string  `json:"symbol"`
	Price         float64 `json:"price"`
	Change        float64 `json:"change"`
	ChangePercent float64 `json:"change_percent"`
	Volume        int64   `json:"volume"`
	Timestamp     string  `json:"timestamp"`
}

// TickMessage is the wire envelope broadcast to subscribers.
type TickMessage struct {
	Type string `json:"type"`
	Data *Tick  `json:"data"`
}

// Subscriber is a delivery target for ticks. Send must not block
// indefinitely; an error marks the subscriber dead and disconnects it
// from all of its subscriptions.
type Subscriber interface {
	ID() string
	Send(data []byte) error
}

// symbolState is the reference-counted registry entry for one symbol:
// a poll task exists iff the subscriber set is non-empty.
type symbolState struct {
	subscribers map[string]Subscriber
	cancel      context.CancelFunc
}

// RealtimeService multiplexes client subscriptions onto one polling
// goroutine per actively-subscribed symbol and fans ticks out to the
// symbol's current subscribers. Constructed once at process start and
// passed by handle; there is no package-level instance.
type RealtimeService struct {
	cache    Cache
	provider provider.Provider
	resolver *SymbolResolver
	cfg      *config.Config

	mu      sync.Mutex
	symbols map[string]*symbolState
	clients map[string]map[string]bool // client ID -> subscribed symbols

	upgrader websocket.Upgrader
	clientSeq atomic.Int64
	wg        sync.WaitGroup
	shutdown  atomic.Bool
}

func NewRealtimeService(cache Cache, prov provider.Provider, resolver *SymbolResolver, cfg *config.Config) *RealtimeService {
	return &RealtimeService{
		cache:    cache,
		provider: prov,
		resolver: resolver,
		cfg:      cfg,
		symbols:  make(map[string]*symbolState),
		clients:  make(map[string]map[string]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// Subscribe adds the client to each symbol's subscriber set, starting a
// poll task on the first subscriber of a symbol. Any cached tick for a
// newly subscribed symbol is pushed to the client immediately, best-effort.
func (s *RealtimeService) Subscribe(client Subscriber, symbols []string) {
	if s.shutdown.Load() {
		return
	}

	started := make([]string, 0, len(symbols))
	subscribed := make([]string, 0, len(symbols))

	s.mu.Lock()
	for _, raw := range symbols {
		sym := s.resolver.Normalize(raw)
		if sym == "" {
			continue
		}
		if s.clients[client.ID()] == nil {
			s.clients[client.ID()] = make(map[string]bool)
		}
		s.clients[client.ID()][sym] = true

		state := s.symbols[sym]
		if state == nil {
			state = &symbolState{subscribers: make(map[string]Subscriber)}
			s.symbols[sym] = state
		}
		state.subscribers[client.ID()] = client

		if state.cancel == nil {
			ctx, cancel := context.WithCancel(context.Background())
			state.cancel = cancel
			s.wg.Add(1)
			go s.pollSymbol(ctx, sym)
			started = append(started, sym)
		}
		subscribed = append(subscribed, sym)
	}
	s.mu.Unlock()

	for _, sym := range started {
		log.Printf("Started poll task for %s", sym)
	}

	// Push the last cached tick so new subscribers see data before the
	// next poll cycle. Failures here are ignored.
	for _, sym := range subscribed {
		var tick Tick
		if s.cache.Get(context.Background(), "realtime:"+sym, &tick) {
			if data, err := json.Marshal(TickMessage{Type: "stock_update", Data: &tick}); err == nil {
				_ = client.Send(data)
			}
		}
	}
}

// Unsubscribe removes the client from the given symbols, cancelling the
// poll task of any symbol whose subscriber set empties.
func (s *RealtimeService) Unsubscribe(clientID string, symbols []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, raw := range symbols {
		s.dropLocked(clientID, s.resolver.Normalize(raw))
	}
}

// Disconnect removes the client from every subscription it holds.
func (s *RealtimeService) Disconnect(clientID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for sym := range s.clients[clientID] {
		s.dropLocked(clientID, sym)
	}
	delete(s.clients, clientID)
}

// dropLocked removes one (client, symbol) edge. Caller holds s.mu.
func (s *RealtimeService) dropLocked(clientID, sym string) {
	if set := s.clients[clientID]; set != nil {
		delete(set, sym)
	}
	state := s.symbols[sym]
	if state == nil {
		return
	}
	delete(state.subscribers, clientID)
	if len(state.subscribers) == 0 {
		if state.cancel != nil {
			state.cancel()
		}
		delete(s.symbols, sym)
		log.Printf("Cancelled poll task for %s (no subscribers)", sym)
	}
}

// IsPolling reports whether a poll task is registered for symbol.
func (s *RealtimeService) IsPolling(symbol string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.symbols[s.resolver.Normalize(symbol)] != nil
}

// SubscriberCount returns the size of a symbol's subscriber set.
func (s *RealtimeService) SubscriberCount(symbol string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	state := s.symbols[s.resolver.Normalize(symbol)]
	if state == nil {
		return 0
	}
	return len(state.subscribers)
}

// Status returns service counters for the admin surface.
func (s *RealtimeService) Status() map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return map[string]interface{}{
		"client_count":      len(s.clients),
		"polled_symbols":    len(s.symbols),
		"poll_interval_sec": int(s.cfg.PollInterval.Seconds()),
	}
}

// Shutdown cancels every poll task and waits for them to exit. In-flight
// cache writes complete; no further iterations run.
func (s *RealtimeService) Shutdown() {
	s.shutdown.Store(true)
	s.mu.Lock()
	for sym, state := range s.symbols {
		if state.cancel != nil {
			state.cancel()
		}
		delete(s.symbols, sym)
	}
	s.clients = make(map[string]map[string]bool)
	s.mu.Unlock()
	s.wg.Wait()
	log.Println("Realtime service shutdown complete")
}

// pollSymbol is the per-symbol poll task. Cancellation is checked at the
// top of each iteration; fetch errors back off and retry, they never kill
// the loop.
func (s *RealtimeService) pollSymbol(ctx context.Context, sym string) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		tick, err := s.fetchTick(ctx, sym)
		if err != nil {
			log.Printf("Poll fetch failed for %s: %v", sym, err)
			if !sleepCtx(ctx, s.cfg.PollErrorBackoff) {
				return
			}
			continue
		}

		if tick != nil {
			s.cache.Set(ctx, "realtime:"+sym, tick, s.cfg.CacheTTLRealtime)
			s.broadcast(sym, tick)
		}

		if !sleepCtx(ctx, s.cfg.PollInterval) {
			return
		}
	}
}

// fetchTick fetches the latest quote for sym via resolver candidates and
// derives the change from the provider's reference price.
func (s *RealtimeService) fetchTick(ctx context.Context, sym string) (*Tick, error) {
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
			return nil, lastErr
		}
		// No data for any variant; skip this cycle rather than erroring
		return nil, nil
	}

	tick := &Tick{
		Symbol:    sym,
		Price:     quote.Price,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if quote.PrevClose != 0 {
		tick.Change = quote.Price - quote.PrevClose
		tick.ChangePercent = tick.Change / quote.PrevClose * 100
	}
	if quote.Volume != nil {
		tick.Volume = *quote.Volume
	}
	return tick, nil
}

// broadcast delivers a tick to every current subscriber of sym. Delivery
// is best-effort per client: a send failure disconnects only that client.
func (s *RealtimeService) broadcast(sym string, tick *Tick) {
	data, err := json.Marshal(TickMessage{Type: "stock_update", Data: tick})
	if err != nil {
		log.Printf("Failed to marshal tick for %s: %v", sym, err)
		return
	}

	s.mu.Lock()
	state := s.symbols[sym]
	if state == nil {
		s.mu.Unlock()
		return
	}
	targets := make([]Subscriber, 0, len(state.subscribers))
	for _, sub := range state.subscribers {
		targets = append(targets, sub)
	}
	s.mu.Unlock()

	var dead []string
	for _, sub := range targets {
		if err := sub.Send(data); err != nil {
			log.Printf("Dropping client %s: send failed: %v", sub.ID(), err)
			dead = append(dead, sub.ID())
		}
	}
	for _, id := range dead {
		s.Disconnect(id)
	}
}

// sleepCtx sleeps for d unless ctx is cancelled first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// --- WebSocket transport ---

// wsCommand is the client-to-server subscription control message.
type wsCommand struct {
	Action  string   `json:"action"`
	Symbols []string `json:"symbols"`
}

// wsClient adapts one WebSocket connection to the Subscriber contract.
type wsClient struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	once sync.Once
	done chan struct{}
}

func (c *wsClient) ID() string { return c.id }

// Send enqueues data for the write pump. A full buffer counts as a dead
// client so one slow consumer cannot stall a broadcast.
func (c *wsClient) Send(data []byte) error {
	select {
	case <-c.done:
		return fmt.Errorf("client %s closed", c.id)
	case c.send <- data:
		return nil
	default:
		return fmt.Errorf("client %s send buffer full", c.id)
	}
}

func (c *wsClient) close() {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// HandleWebSocket upgrades the connection and runs the client pumps.
func (s *RealtimeService) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		return
	}

	client := &wsClient{
		id:   fmt.Sprintf("%s#%d", conn.RemoteAddr(), s.clientSeq.Add(1)),
		conn: conn,
		send: make(chan []byte, wsSendBufferLen),
		done: make(chan struct{}),
	}
	log.Printf("WebSocket client connected: %s", client.id)

	go s.writePump(client)
	s.readPump(client)
}

// readPump consumes subscription commands until the connection drops,
// then disconnects the client from all of its subscriptions.
func (s *RealtimeService) readPump(c *wsClient) {
	defer func() {
		s.Disconnect(c.id)
		c.close()
		log.Printf("WebSocket client disconnected: %s", c.id)
	}()

	c.conn.SetReadLimit(wsReadLimit)
	c.conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket read error: %v", err)
			}
			return
		}

		var cmd wsCommand
		if err := json.Unmarshal(message, &cmd); err != nil {
			continue
		}

		switch cmd.Action {
		case "subscribe":
			s.Subscribe(c, cmd.Symbols)
		case "unsubscribe":
			s.Unsubscribe(c.id, cmd.Symbols)
		}
	}
}

// writePump drains the send buffer and keeps the connection alive with pings.
func (s *RealtimeService) writePump(c *wsClient) {
	ticker := time.NewTicker(wsPingInterval)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case <-c.done:
			return
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
