package trader

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"trading-bands/internal/model"
	"trading-bands/internal/notification"
	"trading-bands/internal/portfolio"
)

// Reporter periodically sends a plain-text summary of recent trades.
type Reporter struct {
	reader   model.TradeReader
	notifier *notification.Dispatcher
	window   time.Duration
	timeout  time.Duration
	now      func() time.Time
}

// NewReporter summarizes the trades of the last window on every Run tick.
func NewReporter(reader model.TradeReader, notifier *notification.Dispatcher, window, timeout time.Duration) *Reporter {
	return &Reporter{
		reader:   reader,
		notifier: notifier,
		window:   window,
		timeout:  timeout,
		now:      time.Now,
	}
}

// Build reads the trades of the last window and renders the report body.
func (r *Reporter) Build(ctx context.Context) (string, portfolio.PnLSummary, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	end := r.now().UTC()
	start := end.Add(-r.window)
	trades, err := r.reader.TradesSince(ctx, start)
	if err != nil {
		return "", portfolio.PnLSummary{}, fmt.Errorf("report: read trades: %w", err)
	}
	sum := portfolio.Summarize(trades)
	return renderReport(start, end, trades, sum), sum, nil
}

// Send builds the report and delivers it at INFO level.
func (r *Reporter) Send(ctx context.Context) error {
	body, sum, err := r.Build(ctx)
	if err != nil {
		r.notifier.Notify(ctx, notification.AlertWarning, "Trade report failed", "%v", err)
		return err
	}
	title := fmt.Sprintf("Trade report: %d trade(s), realized P&L %.2f", sum.TotalTrades, sum.RealizedPnL)
	r.notifier.Notify(ctx, notification.AlertInfo, title, "%s", body)
	log.Printf("[report] sent: %s", title)
	return nil
}

// Run sends a report every window until ctx is cancelled.
func (r *Reporter) Run(ctx context.Context) {
	ticker := time.NewTicker(r.window)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Send(context.WithoutCancel(ctx))
		}
	}
}

func renderReport(start, end time.Time, trades []model.TradeRecord, sum portfolio.PnLSummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Trades from %s to %s\n\n", start.Format(time.RFC3339), end.Format(time.RFC3339))
	if len(trades) == 0 {
		b.WriteString("No trades executed in this period.\n")
		return b.String()
	}

	fmt.Fprintf(&b, "Total trades: %d (buys %d, sells %d)\n", sum.TotalTrades, sum.Buys, sum.Sells)
	fmt.Fprintf(&b, "Buy notional:  %.2f\n", sum.BuyNotional)
	fmt.Fprintf(&b, "Sell notional: %.2f\n", sum.SellNotional)
	fmt.Fprintf(&b, "Realized P&L:  %.2f\n", sum.RealizedPnL)

	perPair := make(map[string]int)
	for _, t := range trades {
		perPair[t.Pair]++
	}
	pairs := make([]string, 0, len(perPair))
	for p := range perPair {
		pairs = append(pairs, p)
	}
	sort.Strings(pairs)
	b.WriteString("\nBy pair:\n")
	for _, p := range pairs {
		fmt.Fprintf(&b, "  %-10s %d\n", p, perPair[p])
	}

	b.WriteString("\nTime                  Pair       Action  Amount          Price           Order\n")
	for _, t := range trades {
		mode := ""
		if t.DryRun {
			mode = " (paper)"
		}
		fmt.Fprintf(&b, "%s  %-10s %-7s %-15.8f %-15.8g %s%s\n",
			t.TS.UTC().Format("2006-01-02 15:04:05"), t.Pair, t.Action, t.Amount, t.Price, t.OrderID, mode)
	}
	return b.String()
}
