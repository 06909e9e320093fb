// cmd/bandtrader runs the volatility-adaptive band trader against Kraken.
//
// Usage:
//
//	go run ./cmd/bandtrader                 # live trading (needs KRAKEN_API_KEY / KRAKEN_PRIVATE_KEY)
//	go run ./cmd/bandtrader --mock          # paper trading on live market data
//	go run ./cmd/bandtrader --mock --once   # evaluate every pair once and exit
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"trading-bands/config"
	"trading-bands/internal/api"
	"trading-bands/internal/exchange"
	"trading-bands/internal/execution"
	"trading-bands/internal/gateway"
	"trading-bands/internal/logger"
	"trading-bands/internal/metrics"
	"trading-bands/internal/model"
	"trading-bands/internal/notification"
	"trading-bands/internal/portfolio"
	redisstore "trading-bands/internal/store/redis"
	"trading-bands/internal/trader"
	"trading-bands/pkg/kraken"

	"github.com/joho/godotenv"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)

	mock := flag.Bool("mock", false, "Paper trade: evaluate live data but never send orders to the exchange")
	cfgPath := flag.String("config", "", "Optional YAML config file (env vars override it)")
	once := flag.Bool("once", false, "Run a single cycle per pair, print the results and exit")
	slippage := flag.Float64("paper-slippage-bps", 5, "Paper fill slippage in basis points")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("[bandtrader] .env: %v", err)
	}

	var opts []config.Option
	if *mock {
		opts = append(opts, config.WithDryRun())
	}
	cfg, err := config.Load(*cfgPath, opts...)
	if err != nil {
		var ce *config.ConfigError
		if errors.As(err, &ce) {
			fmt.Fprintf(os.Stderr, "configuration error:\n  %s\n", strings.Join(ce.Problems, "\n  "))
		} else {
			fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		}
		os.Exit(1)
	}

	_, logCloser := logger.New("bandtrader", logger.ParseLevel(cfg.LogLevel), logger.FileOptions{
		Path:       cfg.LogFile,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		MaxAgeDays: cfg.LogMaxAgeDays,
	})
	defer logCloser.Close()

	if err := run(cfg, *once, *slippage); err != nil {
		log.Printf("[bandtrader] fatal: %v", err)
		logCloser.Close()
		os.Exit(1)
	}
}

func run(cfg *config.Config, once bool, slippageBps float64) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("[bandtrader] shutdown signal received, finishing in-flight cycles...")
		cancel()
	}()

	// ---- Exchange ----
	client, err := kraken.New(kraken.Config{
		APIKey:     cfg.KrakenAPIKey,
		PrivateKey: cfg.KrakenPrivateKey,
		OTPSecret:  cfg.KrakenOTPSecret,
		BaseURL:    cfg.KrakenBaseURL,
		Timeout:    cfg.CallTimeout,
	})
	if err != nil {
		return fmt.Errorf("kraken client: %w", err)
	}
	market := exchange.NewKraken(client)

	var account model.AccountService = market
	var orders model.OrderExecutor
	switch {
	case !cfg.DryRun:
		orders = execution.NewExecutor(client)
		log.Println("[bandtrader] LIVE trading enabled")
	case cfg.HasCredentials():
		orders = execution.NewPaperExecutor(market, cfg.OHLCInterval, nil, slippageBps)
		log.Println("[bandtrader] paper trading with live balances")
	default:
		paper := execution.NewPaperAccount(paperBalances(cfg))
		account = paper
		orders = execution.NewPaperExecutor(market, cfg.OHLCInterval, paper, slippageBps)
		log.Println("[bandtrader] paper trading with simulated balances")
	}

	// ---- Alerts ----
	dispatcher := notification.NewDispatcher(buildNotifiers(cfg), cfg.CallTimeout)

	// ---- Observability ----
	prom := metrics.NewMetrics()
	health := metrics.NewHealthStatus(cfg.Pairs, cfg.DryRun, 3*cfg.PollInterval)
	hub := gateway.NewHub()
	publishers := []model.EventPublisher{hub}

	// ---- Trade journal ----
	var recorder model.TradeRecorder
	var journal *execution.Journal
	if cfg.SQLitePath != "" {
		journal, err = execution.NewJournal(cfg.SQLitePath)
		if err != nil {
			log.Printf("[bandtrader] WARNING: trade journal unavailable: %v (trades will only be logged)", err)
		} else {
			defer journal.Close()
			recorder = journal
			health.AddDependency("sqlite", journal, true)
		}
	}

	// ---- Redis ----
	var bg sync.WaitGroup
	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer func() {
		bgCancel()
		bg.Wait()
	}()
	if cfg.RedisAddr != "" {
		pub, err := redisstore.New(redisstore.Config{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		if err != nil {
			log.Printf("[bandtrader] WARNING: redis unavailable: %v (continuing without publishing)", err)
		} else {
			wireRedisMetrics(pub, prom)
			publishers = append(publishers, pub)
			health.AddDependency("redis", metrics.PingFunc(func(ctx context.Context) error {
				return pub.Client().Ping(ctx).Err()
			}), false)
			bg.Add(1)
			go func() {
				defer bg.Done()
				pub.Run(bgCtx)
				pub.Close()
			}()
		}
	}

	book := portfolio.NewBook()
	pnl := portfolio.NewPnLTracker()

	svc, err := trader.New(cfg, trader.Deps{
		Market:     market,
		Account:    account,
		Orders:     orders,
		Recorder:   recorder,
		Notifier:   dispatcher,
		Publishers: publishers,
		Metrics:    prom,
		Health:     health,
		Book:       book,
		PnL:        pnl,
	})
	if err != nil {
		return err
	}

	if once {
		return printResults(svc.RunOnce(ctx))
	}

	// ---- HTTP: status API, /ws, /metrics, /healthz ----
	health.StartLivenessChecker(bgCtx, 30*time.Second)
	if cfg.HTTPAddr != "" {
		deps := api.Deps{
			States:  svc,
			Events:  hub,
			Pending: svc,
			Book:    book,
			PnL:     pnl,
			DryRun:  cfg.DryRun,
			Stream:  hub,
			Metrics: prom.Handler(),
			Health:  health,
		}
		if journal != nil {
			deps.Trades = journal
		}
		srv := metrics.NewServer(cfg.HTTPAddr, api.NewRouter(deps))
		srv.Start()
		defer func() {
			shutCtx, shutCancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer shutCancel()
			srv.Stop(shutCtx)
			hub.Close()
		}()
	}
	bg.Add(1)
	go func() {
		defer bg.Done()
		trackClients(bgCtx, hub, prom)
	}()

	// ---- Daily report ----
	if journal != nil && cfg.ReportInterval > 0 {
		reporter := trader.NewReporter(journal, dispatcher, cfg.ReportInterval, cfg.CallTimeout)
		bg.Add(1)
		go func() {
			defer bg.Done()
			reporter.Run(ctx)
		}()
	}

	mode := "LIVE"
	if cfg.DryRun {
		mode = "PAPER"
	}
	dispatcher.Notify(ctx, notification.AlertInfo, "Band trader started",
		"mode=%s pairs=%s poll=%s threshold=%.2f%% margin=%.2f%% risk=%.2f%%",
		mode, strings.Join(cfg.Pairs, ","), cfg.PollInterval,
		cfg.VolatilityThreshold, cfg.TrailingMargin*100, cfg.RiskFraction*100)

	svc.Run(ctx)

	log.Println("[bandtrader] shutdown complete.")
	return nil
}

// paperBalances seeds every configured base with PaperBaseBalance and every
// quote with PaperQuoteBalance.
func paperBalances(cfg *config.Config) map[string]float64 {
	out := make(map[string]float64)
	for _, p := range cfg.ParsedPairs() {
		out[p.Base] = cfg.PaperBaseBalance
		out[p.Quote] = cfg.PaperQuoteBalance
	}
	return out
}

func buildNotifiers(cfg *config.Config) notification.Notifier {
	notifiers := notification.Multi{notification.NewLogNotifier()}
	if cfg.EmailAddress != "" {
		notifiers = append(notifiers, notification.NewEmailNotifier(notification.EmailConfig{
			Server:   cfg.EmailSMTPServer,
			Port:     cfg.EmailPort,
			From:     cfg.EmailAddress,
			Password: cfg.EmailPassword,
			To:       splitList(cfg.EmailTo),
		}))
		log.Printf("[bandtrader] email alerts -> %s", cfg.EmailTo)
	}
	if cfg.TelegramBotToken != "" {
		notifiers = append(notifiers, notification.NewTelegramNotifier(cfg.TelegramBotToken, cfg.TelegramChatID))
		log.Println("[bandtrader] telegram alerts enabled")
	}
	if cfg.WebhookURL != "" {
		notifiers = append(notifiers, notification.NewWebhookNotifier(cfg.WebhookURL))
		log.Println("[bandtrader] webhook alerts enabled")
	}
	return notifiers
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func wireRedisMetrics(pub *redisstore.Publisher, prom *metrics.Metrics) {
	pub.OnDrop = prom.RedisDroppedEvents.Inc
	prev := pub.Breaker().OnStateChange
	pub.Breaker().OnStateChange = func(from, to redisstore.State) {
		if prev != nil {
			prev(from, to)
		}
		prom.RedisCircuitBreakerState.Set(float64(to))
		if to == redisstore.StateOpen {
			prom.RedisCircuitBreakerTrips.Inc()
		}
	}
}

func trackClients(ctx context.Context, hub *gateway.Hub, prom *metrics.Metrics) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		prom.WSClients.Set(float64(hub.ClientCount()))
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func printResults(results []trader.CycleResult) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	failed := 0
	for i := range results {
		if results[i].Outcome == trader.OutcomeFailed {
			failed++
		}
		if err := enc.Encode(results[i].Event()); err != nil {
			return err
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d pair(s) failed", failed, len(results))
	}
	return nil
}
