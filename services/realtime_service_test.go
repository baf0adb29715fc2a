package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSubscriber records delivered messages and can simulate a dead client.
type fakeSubscriber struct {
	id   string
	mu   sync.Mutex
	msgs [][]byte
	fail bool
}

func (f *fakeSubscriber) ID() string { return f.id }

func (f *fakeSubscriber) Send(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("send failed")
	}
	f.msgs = append(f.msgs, data)
	return nil
}

func (f *fakeSubscriber) received() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.msgs)
}

func newRealtimeFixture() (*RealtimeService, *fakeCache, *fakeProvider) {
	cache := newFakeCache()
	prov := newFakeProvider()
	cfg := testConfig()
	cfg.PollInterval = 10 * time.Millisecond
	cfg.PollErrorBackoff = 10 * time.Millisecond
	return NewRealtimeService(cache, prov, NewSymbolResolver(), cfg), cache, prov
}

func TestSubscribeStartsOneTaskPerSymbol(t *testing.T) {
	svc, _, _ := newRealtimeFixture()
	defer svc.Shutdown()

	a := &fakeSubscriber{id: "a"}
	b := &fakeSubscriber{id: "b"}

	svc.Subscribe(a, []string{"TCS"})
	assert.True(t, svc.IsPolling("TCS"))
	assert.Equal(t, 1, svc.SubscriberCount("TCS"))

	svc.Subscribe(b, []string{"tcs"})
	assert.Equal(t, 2, svc.SubscriberCount("TCS"))
}

func TestUnsubscribeCancelsTaskOnLastSubscriber(t *testing.T) {
	svc, _, _ := newRealtimeFixture()
	defer svc.Shutdown()

	a := &fakeSubscriber{id: "a"}
	b := &fakeSubscriber{id: "b"}
	svc.Subscribe(a, []string{"TCS"})
	svc.Subscribe(b, []string{"TCS"})

	svc.Unsubscribe("a", []string{"TCS"})
	assert.True(t, svc.IsPolling("TCS"), "task must survive while subscribers remain")
	assert.Equal(t, 1, svc.SubscriberCount("TCS"))

	svc.Unsubscribe("b", []string{"TCS"})
	assert.False(t, svc.IsPolling("TCS"))
}

func TestDisconnectRemovesAllSubscriptions(t *testing.T) {
	svc, _, _ := newRealtimeFixture()
	defer svc.Shutdown()

	a := &fakeSubscriber{id: "a"}
	svc.Subscribe(a, []string{"TCS", "INFY"})
	require.True(t, svc.IsPolling("TCS"))
	require.True(t, svc.IsPolling("INFY"))

	svc.Disconnect("a")
	assert.False(t, svc.IsPolling("TCS"))
	assert.False(t, svc.IsPolling("INFY"))
}

func TestBroadcastReachesAllSubscribers(t *testing.T) {
	svc, _, _ := newRealtimeFixture()
	defer svc.Shutdown()

	a := &fakeSubscriber{id: "a"}
	b := &fakeSubscriber{id: "b"}
	svc.Subscribe(a, []string{"TCS"})
	svc.Subscribe(b, []string{"TCS"})

	svc.broadcast("TCS", &Tick{Symbol: "TCS", Price: 100})

	assert.Equal(t, 1, a.received())
	assert.Equal(t, 1, b.received())

	var msg TickMessage
	require.NoError(t, json.Unmarshal(a.msgs[0], &msg))
	assert.Equal(t, "stock_update", msg.Type)
	assert.Equal(t, 100.0, msg.Data.Price)
}

func TestBroadcastSendFailureDisconnectsOnlyThatClient(t *testing.T) {
	svc, _, _ := newRealtimeFixture()
	defer svc.Shutdown()

	healthy := &fakeSubscriber{id: "healthy"}
	dead := &fakeSubscriber{id: "dead", fail: true}
	svc.Subscribe(healthy, []string{"TCS"})
	svc.Subscribe(dead, []string{"TCS"})

	svc.broadcast("TCS", &Tick{Symbol: "TCS", Price: 100})

	assert.Equal(t, 1, svc.SubscriberCount("TCS"))
	assert.Equal(t, 1, healthy.received())
	assert.True(t, svc.IsPolling("TCS"))

	// The dead client is gone from every registry entry
	svc.broadcast("TCS", &Tick{Symbol: "TCS", Price: 101})
	assert.Equal(t, 2, healthy.received())
}

func TestSubscribePushesCachedTick(t *testing.T) {
	svc, cache, _ := newRealtimeFixture()
	defer svc.Shutdown()

	cache.Set(context.Background(), "realtime:TCS", &Tick{Symbol: "TCS", Price: 99}, time.Minute)

	a := &fakeSubscriber{id: "a"}
	svc.Subscribe(a, []string{"TCS"})

	require.Equal(t, 1, a.received())
	var msg TickMessage
	require.NoError(t, json.Unmarshal(a.msgs[0], &msg))
	assert.Equal(t, 99.0, msg.Data.Price)
}

func TestShutdownStopsTasksAndRefusesNewSubscriptions(t *testing.T) {
	svc, _, _ := newRealtimeFixture()

	a := &fakeSubscriber{id: "a"}
	svc.Subscribe(a, []string{"TCS"})
	require.True(t, svc.IsPolling("TCS"))

	svc.Shutdown()
	assert.False(t, svc.IsPolling("TCS"))

	svc.Subscribe(a, []string{"INFY"})
	assert.False(t, svc.IsPolling("INFY"))
}

func TestStatusCounters(t *testing.T) {
	svc, _, _ := newRealtimeFixture()
	defer svc.Shutdown()

	a := &fakeSubscriber{id: "a"}
	svc.Subscribe(a, []string{"TCS", "INFY"})

	status := svc.Status()
	assert.Equal(t, 1, status["client_count"])
	assert.Equal(t, 2, status["polled_symbols"])
}
