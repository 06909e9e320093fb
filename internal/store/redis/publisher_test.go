package redis

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"trading-bands/internal/model"
)

func TestPublisher_KeyNames(t *testing.T) {
	p := newPublisher(Config{})
	if got := p.LatestKey("XBT/USD"); got != "bands:latest:XBT/USD" {
		t.Errorf("latest = %s", got)
	}
	if got := p.Channel("XBT/USD"); got != "bands:cycle:XBT/USD" {
		t.Errorf("channel = %s", got)
	}
	if got := p.IndicatorsKey("XBT/USD"); got != "bands:indicators:XBT/USD" {
		t.Errorf("indicators = %s", got)
	}
	if got := newPublisher(Config{Prefix: "bt"}).SignalsStream(); got != "bt:signals" {
		t.Errorf("stream = %s", got)
	}
}

func TestIndicatorFields(t *testing.T) {
	if f := indicatorFields(model.CycleEvent{Pair: "XBT/USD"}); f != nil {
		t.Errorf("cold event produced fields %v", f)
	}
	ts := time.UnixMilli(1700000000123)
	f := indicatorFields(model.CycleEvent{
		Pair:       "XBT/USD",
		TS:         ts,
		Indicators: map[string]float64{"SMA_20": 101.5, "RSI_14": 55},
	})
	if len(f) != 3 || f["SMA_20"] != 101.5 || f["RSI_14"] != 55.0 || f["ts"] != int64(1700000000123) {
		t.Errorf("fields = %v", f)
	}
}

func TestPublisher_QueueFullDrops(t *testing.T) {
	p := newPublisher(Config{QueueSize: 1})
	drops := 0
	p.OnDrop = func() { drops++ }

	if err := p.Publish(context.Background(), model.CycleEvent{Pair: "XBT/USD"}); err != nil {
		t.Fatal(err)
	}
	if err := p.Publish(context.Background(), model.CycleEvent{Pair: "XBT/USD"}); err == nil {
		t.Fatal("expected queue-full error")
	}
	if drops != 1 || p.Dropped() != 1 {
		t.Errorf("drops = %d/%d", drops, p.Dropped())
	}
}

func TestPublisher_RunWritesAndTripsBreaker(t *testing.T) {
	p := newPublisher(Config{QueueSize: 32})
	var mu sync.Mutex
	var written []string
	failing := true
	p.write = func(ctx context.Context, ev model.CycleEvent) error {
		mu.Lock()
		defer mu.Unlock()
		if failing {
			return errors.New("connection refused")
		}
		written = append(written, ev.Pair)
		return nil
	}

	// Five failures open the breaker; the remaining events are dropped.
	for i := 0; i < 8; i++ {
		p.Publish(context.Background(), model.CycleEvent{Pair: "XBT/USD"})
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { p.Run(ctx); close(done) }()

	deadline := time.Now().Add(2 * time.Second)
	for p.Dropped() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done

	if p.Breaker().State() != StateOpen {
		t.Errorf("breaker = %v", p.Breaker().State())
	}
	if p.Dropped() != 3 {
		t.Errorf("dropped = %d, want 3", p.Dropped())
	}
}

func TestPublisher_DrainOnShutdown(t *testing.T) {
	p := newPublisher(Config{})
	var mu sync.Mutex
	n := 0
	p.write = func(ctx context.Context, ev model.CycleEvent) error {
		mu.Lock()
		n++
		mu.Unlock()
		return nil
	}
	for i := 0; i < 4; i++ {
		p.Publish(context.Background(), model.CycleEvent{Pair: "ETH/USD"})
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p.Run(ctx)

	mu.Lock()
	defer mu.Unlock()
	if n != 4 {
		t.Errorf("flushed %d events, want 4", n)
	}
}
