// Package redis publishes trading cycle events to Redis.
//
// Each event is written as the pair's latest-state key, broadcast on a
// per-pair PubSub channel, and, when it carries a trade, appended to a
// capped signals stream. Warm cycles also refresh a per-pair hash of named
// indicator values. Publishing is asynchronous and guarded by a circuit
// breaker so a slow or absent Redis never delays a trading cycle.
package redis

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"trading-bands/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

const (
	defaultLatestTTL = 24 * time.Hour
	signalsMaxLen    = 10000
	defaultQueueSize = 256
)

// Config configures the Redis publisher.
type Config struct {
	Addr      string // Redis address, e.g. "localhost:6379"
	Password  string
	DB        int
	Prefix    string // key prefix, default "bands"
	QueueSize int
}

// Publisher implements model.EventPublisher on top of Redis.
type Publisher struct {
	client  *goredis.Client
	prefix  string
	breaker *Breaker
	queue   chan model.CycleEvent
	write   func(ctx context.Context, ev model.CycleEvent) error

	dropped atomic.Int64

	// OnDrop is called when an event is discarded (queue full or breaker open).
	OnDrop func()
}

// New creates a Publisher and pings the server.
func New(cfg Config) (*Publisher, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Printf("[redis] connected to %s", cfg.Addr)
	p := newPublisher(cfg)
	p.client = client
	p.write = p.writeEvent
	return p, nil
}

func newPublisher(cfg Config) *Publisher {
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "bands"
	}
	size := cfg.QueueSize
	if size <= 0 {
		size = defaultQueueSize
	}
	b := NewBreaker(5, 10*time.Second)
	b.OnStateChange = func(from, to State) {
		log.Printf("[redis] circuit %s -> %s", from, to)
	}
	return &Publisher{
		prefix:  prefix,
		breaker: b,
		queue:   make(chan model.CycleEvent, size),
	}
}

// Client returns the underlying Redis client for health checks.
func (p *Publisher) Client() *goredis.Client { return p.client }

// Breaker exposes the circuit breaker state for metrics.
func (p *Publisher) Breaker() *Breaker { return p.breaker }

// Dropped returns the number of events discarded so far.
func (p *Publisher) Dropped() int64 { return p.dropped.Load() }

// Publish enqueues ev without blocking. A full queue drops the event.
func (p *Publisher) Publish(ctx context.Context, ev model.CycleEvent) error {
	select {
	case p.queue <- ev:
		return nil
	default:
		p.drop()
		return fmt.Errorf("redis publish queue full, dropped %s event", ev.Pair)
	}
}

// Run drains the queue until ctx is cancelled, then flushes what is left
// with a short deadline.
func (p *Publisher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.drain()
			return
		case ev := <-p.queue:
			p.send(ctx, ev)
		}
	}
}

func (p *Publisher) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for {
		select {
		case ev := <-p.queue:
			p.send(ctx, ev)
		default:
			return
		}
	}
}

func (p *Publisher) send(ctx context.Context, ev model.CycleEvent) {
	err := p.breaker.Do(func() error { return p.write(ctx, ev) })
	switch {
	case err == ErrCircuitOpen:
		p.drop()
	case err != nil:
		log.Printf("[redis] publish %s: %v", ev.Pair, err)
	}
}

func (p *Publisher) drop() {
	p.dropped.Add(1)
	if p.OnDrop != nil {
		p.OnDrop()
	}
}

// LatestKey is the string key holding the pair's most recent event.
func (p *Publisher) LatestKey(pair string) string { return p.prefix + ":latest:" + pair }

// Channel is the PubSub channel events for pair are published on.
func (p *Publisher) Channel(pair string) string { return p.prefix + ":cycle:" + pair }

// IndicatorsKey is the hash holding the pair's latest indicator values.
func (p *Publisher) IndicatorsKey(pair string) string { return p.prefix + ":indicators:" + pair }

// SignalsStream is the stream executed trades are appended to.
func (p *Publisher) SignalsStream() string { return p.prefix + ":signals" }

// writeEvent sends SET + PUBLISH (+ XADD for trades) in one pipeline.
func (p *Publisher) writeEvent(ctx context.Context, ev model.CycleEvent) error {
	data := string(ev.JSON())

	pipe := p.client.Pipeline()
	pipe.Set(ctx, p.LatestKey(ev.Pair), data, defaultLatestTTL)
	pipe.Publish(ctx, p.Channel(ev.Pair), data)
	if fields := indicatorFields(ev); fields != nil {
		pipe.HSet(ctx, p.IndicatorsKey(ev.Pair), fields)
		pipe.Expire(ctx, p.IndicatorsKey(ev.Pair), defaultLatestTTL)
	}
	if ev.IsTrade() {
		pipe.XAdd(ctx, &goredis.XAddArgs{
			Stream: p.SignalsStream(),
			MaxLen: signalsMaxLen,
			Approx: true,
			Values: map[string]interface{}{"data": data},
		})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}
	return nil
}

func indicatorFields(ev model.CycleEvent) map[string]interface{} {
	if len(ev.Indicators) == 0 {
		return nil
	}
	fields := make(map[string]interface{}, len(ev.Indicators)+1)
	for name, v := range ev.Indicators {
		fields[name] = v
	}
	fields["ts"] = ev.TS.UnixMilli()
	return fields
}

// Close closes the Redis connection.
func (p *Publisher) Close() error {
	if p.client == nil {
		return nil
	}
	return p.client.Close()
}
