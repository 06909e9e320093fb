// Package trader runs the per-pair evaluation cycle: fetch bars, compute
// bands, evaluate the trailing-stop machine, size and place the order, and
// commit state only once the order is acknowledged.
package trader

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"sync"
	"time"

	"trading-bands/config"
	"trading-bands/internal/indicator"
	"trading-bands/internal/logger"
	"trading-bands/internal/metrics"
	"trading-bands/internal/model"
	"trading-bands/internal/notification"
	"trading-bands/internal/portfolio"
	"trading-bands/internal/strategy"
)

// Deps are the collaborators of a Service. Market, Account and Orders are
// required; everything else is optional and may be nil.
type Deps struct {
	Market     model.MarketDataSource
	Account    model.AccountService
	Orders     model.OrderExecutor
	Recorder   model.TradeRecorder
	Notifier   *notification.Dispatcher
	Publishers []model.EventPublisher
	Metrics    *metrics.Metrics
	Health     *metrics.HealthStatus
	Book       *portfolio.Book
	PnL        *portfolio.PnLTracker
}

// ErrOrderPending is reported while a pair waits on an order whose outcome
// is unknown.
var ErrOrderPending = errors.New("order outcome unknown")

// pendingOrder is a submission that failed without a definite rejection.
// The decision is committed once the exchange shows the order filled.
type pendingOrder struct {
	decision strategy.Decision
	amount   float64
	price    float64
	clientID string
	err      error
	since    time.Time
}

// Service is the cycle orchestrator. Each pair has its own PositionMachine;
// pairs share nothing mutable except the optional Book and PnL tracker,
// which lock internally.
type Service struct {
	deps Deps

	mu      sync.Mutex
	pending map[string]*pendingOrder

	engine    *indicator.Engine
	sizer     *portfolio.RiskSizer
	pairs     []model.Pair
	machines  map[string]*strategy.PositionMachine
	interval  time.Duration
	limit     int
	threshold float64
	poll      time.Duration
	timeout   time.Duration
	dryRun    bool

	now func() time.Time
}

// New builds a Service from a validated config.
func New(cfg *config.Config, deps Deps) (*Service, error) {
	if deps.Market == nil || deps.Account == nil || deps.Orders == nil {
		return nil, errors.New("trader: market, account and order collaborators are required")
	}
	sizer, err := portfolio.NewRiskSizer(cfg.RiskFraction)
	if err != nil {
		return nil, err
	}

	pairs := cfg.ParsedPairs()
	if len(pairs) == 0 {
		return nil, errors.New("trader: no pairs configured")
	}
	machines := make(map[string]*strategy.PositionMachine, len(pairs))
	for _, p := range pairs {
		machines[p.String()] = strategy.NewPositionMachine(p.String(), cfg.TrailingMargin)
	}

	return &Service{
		deps:      deps,
		engine:    indicator.NewEngine(cfg.IndicatorParams()),
		sizer:     sizer,
		pairs:     pairs,
		machines:  machines,
		pending:   make(map[string]*pendingOrder),
		interval:  cfg.OHLCInterval,
		limit:     cfg.OHLCLimit,
		threshold: cfg.VolatilityThreshold,
		poll:      cfg.PollInterval,
		timeout:   cfg.CallTimeout,
		dryRun:    cfg.DryRun,
		now:       time.Now,
	}, nil
}

// Pairs returns the configured pairs in config order.
func (s *Service) Pairs() []string {
	out := make([]string, len(s.pairs))
	for i, p := range s.pairs {
		out[i] = p.String()
	}
	return out
}

// States returns the current position state of every pair.
func (s *Service) States() map[string]strategy.PositionState {
	out := make(map[string]strategy.PositionState, len(s.machines))
	for pair, m := range s.machines {
		out[pair] = m.State()
	}
	return out
}

// Pending lists the orders whose outcome is still unknown, by pair.
func (s *Service) Pending() []model.PendingOrder {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.PendingOrder, 0, len(s.pending))
	for _, p := range s.pairs {
		po, ok := s.pending[p.String()]
		if !ok {
			continue
		}
		out = append(out, model.PendingOrder{
			Pair:     p.String(),
			Action:   string(po.decision.Action),
			Amount:   po.amount,
			Price:    po.price,
			ClientID: po.clientID,
			Error:    po.err.Error(),
			Since:    po.since.UTC(),
		})
	}
	return out
}

// Resolve clears a pair's pending order after an operator has checked it on
// the exchange. filled commits the pending transition and journals the trade
// at the reference price; otherwise the state is left as it was.
func (s *Service) Resolve(ctx context.Context, pair string, filled bool) error {
	m, ok := s.machines[pair]
	if !ok {
		return fmt.Errorf("trader: unknown pair %q", pair)
	}
	s.mu.Lock()
	po, ok := s.pending[pair]
	delete(s.pending, pair)
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%s: %w", pair, model.ErrNoPendingOrder)
	}
	if s.deps.Metrics != nil {
		s.deps.Metrics.PendingOrders.WithLabelValues(pair).Set(0)
	}

	log.Printf("[trader] %s: pending %s cl_ord_id=%s resolved by operator (filled=%v)",
		pair, po.decision.Action, po.clientID, filled)
	if !filled {
		return nil
	}
	if err := m.Commit(po.decision); err != nil {
		return fmt.Errorf("%s: commit resolved order: %w", pair, err)
	}
	orderID := po.clientID
	if orderID == "" {
		orderID = "MANUAL-" + pair
	}
	s.recordTrade(context.WithoutCancel(ctx), model.TradeRecord{
		OrderID: orderID,
		Pair:    pair,
		Action:  string(po.decision.Action),
		Amount:  po.amount,
		Price:   po.price,
		DryRun:  s.dryRun,
		Reason:  po.decision.Reason + " (resolved by operator)",
		TS:      s.now().UTC(),
	})
	return nil
}

func (s *Service) pendingFor(pair string) *pendingOrder {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending[pair]
}

func (s *Service) setPending(pair string, po *pendingOrder) {
	s.mu.Lock()
	s.pending[pair] = po
	s.mu.Unlock()
}

// takePending removes po if it is still the pair's pending order.
func (s *Service) takePending(pair string, po *pendingOrder) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending[pair] != po {
		return false
	}
	delete(s.pending, pair)
	return true
}

// Run starts one loop per pair and blocks until ctx is cancelled and every
// in-flight cycle has finished.
func (s *Service) Run(ctx context.Context) {
	log.Printf("[trader] starting %d pair loop(s), poll=%s dry_run=%v", len(s.pairs), s.poll, s.dryRun)

	var wg sync.WaitGroup
	for _, p := range s.pairs {
		wg.Add(1)
		go func(pair string) {
			defer wg.Done()
			s.runPair(ctx, pair)
		}(p.String())
	}
	wg.Wait()
	log.Println("[trader] all pair loops stopped")
}

// RunOnce evaluates every pair once, concurrently, and returns the results
// in config order.
func (s *Service) RunOnce(ctx context.Context) []CycleResult {
	results := make([]CycleResult, len(s.pairs))
	var wg sync.WaitGroup
	for i, p := range s.pairs {
		wg.Add(1)
		go func(i int, pair string) {
			defer wg.Done()
			results[i] = s.Cycle(context.WithoutCancel(ctx), pair)
		}(i, p.String())
	}
	wg.Wait()
	return results
}

// runPair cycles immediately, then on every tick. Cancellation is observed
// only between cycles; a started cycle always runs to completion.
func (s *Service) runPair(ctx context.Context, pair string) {
	ticker := time.NewTicker(s.poll)
	defer ticker.Stop()

	for {
		s.Cycle(context.WithoutCancel(ctx), pair)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Cycle performs one evaluation of pair. It never panics on collaborator
// failure; the outcome and any error are reported in the result.
func (s *Service) Cycle(ctx context.Context, pair string) (res CycleResult) {
	start := s.now()
	ctx = logger.WithTraceID(ctx, logger.GenerateTraceID(pair, start))
	res = CycleResult{Pair: pair, Started: start}
	res.Signal = strategy.TradeSignal{Action: strategy.ActionHold, Pair: pair, TS: start}

	m, ok := s.machines[pair]
	if !ok {
		res.Outcome = OutcomeFailed
		res.Err = fmt.Errorf("trader: unknown pair %q", pair)
		return res
	}
	defer func() {
		res.State = m.State()
		res.Duration = s.now().Sub(start)
		s.report(ctx, &res)
	}()

	if po := s.pendingFor(pair); po != nil {
		if done := s.reconcile(ctx, m, po, &res); done {
			return res
		}
	}

	bars, err := s.fetchOHLC(ctx, pair)
	if err != nil {
		res.Outcome = OutcomeSkippedData
		res.Err = err
		s.deps.Notifier.Notify(ctx, notification.AlertWarning, "Market data unavailable",
			"%s: cycle skipped: %v", pair, err)
		return res
	}

	snap := s.engine.Compute(bars)
	snap.Pair = pair
	price := snap.Close
	bands, bandsOK := strategy.SelectBands(snap, s.threshold)
	res.Snapshot = snap
	res.Indicators = snap.Values(s.engine.Params())
	res.Bands = bands
	res.BandsOK = bandsOK
	res.Signal.ReferencePrice = price
	if !snap.TS.IsZero() {
		res.Signal.TS = snap.TS
	}

	d := m.Evaluate(price, bands, bandsOK)
	res.Signal.Reason = d.Reason

	if d.Action == strategy.ActionHold {
		// Arming needs no I/O, so it commits straight away.
		if err := m.Commit(d); err != nil {
			res.Outcome = OutcomeFailed
			res.Err = err
			return res
		}
		res.Outcome = OutcomeHold
		if d.Changed() {
			res.Outcome = OutcomeArmed
			slog.Info("trailing stop armed",
				append(logger.LogWithTrace(ctx),
					slog.String("pair", pair),
					slog.String("state", d.Next.String()),
					slog.String("bands", string(bands.Source)),
					slog.Float64("price", price))...)
		}
		return res
	}

	return s.execute(ctx, m, d, res)
}

// execute sizes and places the order for a BUY/SELL decision and commits
// the transition only after the exchange acknowledges it.
func (s *Service) execute(ctx context.Context, m *strategy.PositionMachine, d strategy.Decision, res CycleResult) CycleResult {
	pair := res.Pair
	side, _ := d.Action.Side()
	price := res.Signal.ReferencePrice

	p, err := model.ParsePair(pair)
	if err != nil {
		res.Outcome = OutcomeFailed
		res.Err = err
		return res
	}

	balances, err := s.fetchBalances(ctx)
	if err != nil {
		res.Outcome = OutcomeSkippedData
		res.Err = err
		s.deps.Notifier.Notify(ctx, notification.AlertWarning, "Balance unavailable",
			"%s: %s signal held: %v", pair, d.Action, err)
		return res
	}
	if s.deps.Book != nil {
		s.deps.Book.Update(balances, s.now())
	}

	h := portfolio.HoldingsFor(balances, p)
	var amount float64
	if side == model.SideSell {
		amount, err = s.sizer.SellAmount(p.Base, h.Base)
	} else {
		amount, err = s.sizer.BuyAmount(p.Quote, h.Quote, price)
	}
	if err != nil {
		var ibe *model.InsufficientBalanceError
		if errors.As(err, &ibe) {
			res.Outcome = OutcomeSkippedBalance
			s.deps.Notifier.Notify(ctx, notification.AlertWarning, "Insufficient balance",
				"%s: %s signal held: %v", pair, d.Action, err)
		} else {
			res.Outcome = OutcomeFailed
		}
		res.Err = err
		return res
	}
	res.Signal.Action = d.Action
	res.Signal.Amount = amount

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	order, err := s.deps.Orders.PlaceMarketOrder(callCtx, pair, side, amount)
	cancel()
	if err != nil {
		return s.orderFailed(ctx, d, p, amount, price, err, res)
	}
	res.Order = &order
	s.commitFill(ctx, m, d, order, amount, price, &res)
	return res
}

// orderFailed classifies a failed submission. A definite rejection leaves the
// pair free to act on its next signal; anything else blocks the pair until
// the order is found on the exchange or resolved by an operator.
func (s *Service) orderFailed(ctx context.Context, d strategy.Decision, p model.Pair, amount, price float64, err error, res CycleResult) CycleResult {
	pair := res.Pair
	res.Err = err

	var ibe *model.InsufficientBalanceError
	if errors.As(err, &ibe) {
		res.Outcome = OutcomeSkippedBalance
		s.deps.Notifier.Notify(ctx, notification.AlertWarning, "Insufficient balance",
			"%s: %s order refused: %v", pair, d.Action, err)
		return res
	}

	res.Outcome = OutcomeFailed
	var ope *model.OrderPlacementError
	if errors.As(err, &ope) && ope.Rejected {
		s.deps.Notifier.Notify(ctx, notification.AlertCritical, "Order rejected",
			"%s %s %.8f %s at ~%.8g: %v\nNothing was placed; state kept at %s.",
			d.Action, pair, amount, p.Base, price, err, d.Prev)
		return res
	}

	po := &pendingOrder{
		decision: d,
		amount:   amount,
		price:    price,
		err:      err,
		since:    s.now(),
	}
	if ope != nil {
		po.clientID = ope.ClientID
	}
	s.setPending(pair, po)
	s.deps.Notifier.Notify(ctx, notification.AlertCritical, "Order outcome unknown",
		"%s %s %.8f %s at ~%.8g (cl_ord_id=%s): %v\nState kept at %s. %s places no new orders until the order is found on the exchange or resolved by an operator.",
		d.Action, pair, amount, p.Base, price, po.clientID, err, d.Prev, pair)
	return res
}

// reconcile looks up the pair's pending order. It returns true when the
// cycle is finished, either because the pair is still blocked or because
// the order turned out to be filled and has now been committed.
func (s *Service) reconcile(ctx context.Context, m *strategy.PositionMachine, po *pendingOrder, res *CycleResult) bool {
	pair := res.Pair
	res.Signal.ReferencePrice = po.price
	res.Signal.Reason = po.decision.Reason

	blocked := func(err error) bool {
		res.Outcome = OutcomeBlocked
		res.Err = err
		return true
	}
	rec, ok := s.deps.Orders.(model.OrderReconciler)
	if !ok || po.clientID == "" {
		return blocked(fmt.Errorf("%w: %s %s awaits operator resolution", ErrOrderPending, po.decision.Action, pair))
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	order, found, err := rec.LookupOrder(callCtx, pair, po.clientID)
	cancel()
	if err != nil {
		return blocked(fmt.Errorf("%w: %v", ErrOrderPending, err))
	}
	if !s.takePending(pair, po) {
		// resolved by an operator while the lookup ran
		res.Outcome = OutcomeHold
		return true
	}
	if s.deps.Metrics != nil {
		s.deps.Metrics.PendingOrders.WithLabelValues(pair).Set(0)
	}
	if !found {
		log.Printf("[trader] %s: cl_ord_id=%s never reached the book; resuming", pair, po.clientID)
		return false
	}

	log.Printf("[trader] %s: cl_ord_id=%s found as order %s; committing %s", pair, po.clientID, order.OrderID, po.decision.Action)
	res.Signal.Action = po.decision.Action
	res.Signal.Amount = po.amount
	res.Order = &order
	s.commitFill(ctx, m, po.decision, order, po.amount, po.price, res)
	return true
}

// commitFill advances the machine for an acknowledged order, then journals
// and announces the trade.
func (s *Service) commitFill(ctx context.Context, m *strategy.PositionMachine, d strategy.Decision, order model.OrderResult, amount, price float64, res *CycleResult) {
	pair := res.Pair
	if err := m.Commit(d); err != nil {
		// The order went out but the machine moved underneath us.
		res.Outcome = OutcomeFailed
		res.Err = fmt.Errorf("commit after order %s: %w", order.OrderID, err)
		s.deps.Notifier.Notify(ctx, notification.AlertCritical, "State commit failed",
			"%s %s order %s placed but state was not committed: %v", d.Action, pair, order.OrderID, err)
		return
	}
	res.Outcome = OutcomeExecuted

	filled := order.FilledAmount
	if filled <= 0 {
		filled = amount
	}
	fillPrice := order.AvgPrice
	if fillPrice <= 0 {
		fillPrice = price
	}
	rec := model.TradeRecord{
		OrderID: order.OrderID,
		Pair:    pair,
		Action:  string(d.Action),
		Amount:  filled,
		Price:   fillPrice,
		DryRun:  s.dryRun,
		Reason:  d.Reason,
		TS:      s.now().UTC(),
	}
	s.recordTrade(ctx, rec)

	base := pair
	if p, err := model.ParsePair(pair); err == nil {
		base = p.Base
	}
	mode := "LIVE"
	if s.dryRun {
		mode = "PAPER"
	}
	s.deps.Notifier.Notify(ctx, notification.AlertInfo, fmt.Sprintf("%s %s executed", d.Action, pair),
		"[%s] %s %.8f %s at %.8g (order %s)\nBands: %s upper=%.8g lower=%.8g\nReason: %s",
		mode, d.Action, filled, base, fillPrice, order.OrderID,
		res.Bands.Source, res.Bands.Upper, res.Bands.Lower, d.Reason)
}

func (s *Service) fetchOHLC(ctx context.Context, pair string) ([]model.Candle, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	bars, err := s.deps.Market.FetchOHLC(callCtx, pair, s.interval, s.limit)
	if err != nil {
		return nil, asDataFetch(err, "ohlc", pair)
	}
	return bars, nil
}

func (s *Service) fetchBalances(ctx context.Context) (map[string]float64, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	balances, err := s.deps.Account.FetchBalances(callCtx)
	if err != nil {
		return nil, asDataFetch(err, "balance", "")
	}
	return balances, nil
}

func asDataFetch(err error, op, pair string) error {
	var dfe *model.DataFetchError
	if errors.As(err, &dfe) {
		return err
	}
	return &model.DataFetchError{Op: op, Pair: pair, Err: err}
}

// recordTrade journals and tallies an executed trade. A journal failure is
// reported but does not undo the trade.
func (s *Service) recordTrade(ctx context.Context, rec model.TradeRecord) {
	slog.Info("trade executed",
		append(logger.LogWithTrace(ctx),
			slog.String("pair", rec.Pair),
			slog.String("action", rec.Action),
			slog.Float64("amount", rec.Amount),
			slog.Float64("price", rec.Price),
			slog.String("order_id", rec.OrderID),
			slog.Bool("dry_run", rec.DryRun))...)

	if s.deps.PnL != nil {
		s.deps.PnL.RecordTrade(rec)
	}
	if s.deps.Recorder == nil {
		return
	}
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.deps.Recorder.Record(callCtx, rec); err != nil {
		log.Printf("[trader] journal write failed for order %s: %v", rec.OrderID, err)
		s.deps.Notifier.Notify(ctx, notification.AlertWarning, "Trade journal write failed",
			"%s %s order %s was executed but not journaled: %v", rec.Action, rec.Pair, rec.OrderID, err)
	}
}

// report logs the result and pushes it to metrics, health and publishers.
func (s *Service) report(ctx context.Context, res *CycleResult) {
	attrs := append(logger.LogWithTrace(ctx),
		slog.String("pair", res.Pair),
		slog.String("outcome", string(res.Outcome)),
		slog.String("action", string(res.Signal.Action)),
		slog.Float64("price", res.Signal.ReferencePrice),
		slog.String("state", res.State.String()),
		slog.Bool("warm", res.Snapshot.Warm),
		slog.Duration("took", res.Duration))
	if res.Err != nil {
		slog.Warn("cycle finished with error", append(attrs, slog.String("error", res.Err.Error()))...)
	} else {
		slog.Debug("cycle finished", attrs...)
	}

	if m := s.deps.Metrics; m != nil {
		m.CyclesTotal.WithLabelValues(res.Pair, string(res.Outcome)).Inc()
		m.CycleDuration.WithLabelValues(res.Pair).Observe(res.Duration.Seconds())
		m.PositionState.WithLabelValues(res.Pair).Set(res.State.Side.Gauge())
		m.Trigger.WithLabelValues(res.Pair).Set(res.State.Trigger)
		if res.BandsOK {
			m.BandSource.WithLabelValues(res.Pair, string(res.Bands.Source)).Inc()
			m.Volatility.WithLabelValues(res.Pair).Set(res.Snapshot.Volatility)
		}
		switch res.Outcome {
		case OutcomeExecuted:
			m.SignalsTotal.WithLabelValues(res.Pair, string(res.Signal.Action)).Inc()
		case OutcomeSkippedData:
			op := "ohlc"
			var dfe *model.DataFetchError
			if errors.As(res.Err, &dfe) {
				op = dfe.Op
			}
			m.DataFetchErrors.WithLabelValues(res.Pair, op).Inc()
		case OutcomeSkippedBalance:
			m.BalanceShortfall.WithLabelValues(res.Pair).Inc()
		case OutcomeFailed:
			var ope *model.OrderPlacementError
			if errors.As(res.Err, &ope) || res.Order != nil {
				m.OrderFailures.WithLabelValues(res.Pair).Inc()
			}
		}
		if s.pendingFor(res.Pair) != nil {
			m.PendingOrders.WithLabelValues(res.Pair).Set(1)
		}
		for _, v := range res.Indicators {
			m.Indicator.WithLabelValues(res.Pair, v.Name).Set(v.Value)
		}
	}
	if s.deps.Health != nil {
		s.deps.Health.SetLastCycle(res.Pair, s.now())
	}

	if len(s.deps.Publishers) == 0 {
		return
	}
	ev := res.Event()
	for _, p := range s.deps.Publishers {
		if err := p.Publish(ctx, ev); err != nil {
			log.Printf("[trader] publish %s cycle: %v", res.Pair, err)
		}
	}
}
