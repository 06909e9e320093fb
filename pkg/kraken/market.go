package kraken

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
)

// OHLCBar is one row of the OHLC endpoint:
// [time, open, high, low, close, vwap, volume, count].
type OHLCBar struct {
	Time   int64 // unix seconds, bar open
	Open   decimal.Decimal
	High   decimal.Decimal
	Low    decimal.Decimal
	Close  decimal.Decimal
	VWAP   decimal.Decimal
	Volume decimal.Decimal
	Count  int64
}

// OHLC returns bars for pair (e.g. "XBTUSD") in ascending time order, plus the
// "last" cursor usable as since on the next call. since=0 returns the most
// recent bars the exchange keeps (up to 720).
//
// The result key is the exchange's canonical pair name, which often differs
// from the requested one ("XXBTZUSD" for "XBTUSD"), so the first non-"last"
// key is used.
func (c *Client) OHLC(ctx context.Context, pair string, intervalMinutes int, since int64) ([]OHLCBar, int64, error) {
	if !ValidInterval(intervalMinutes) {
		return nil, 0, fmt.Errorf("kraken %s: unsupported interval %d", pathOHLC, intervalMinutes)
	}
	req := c.public.R().
		SetContext(ctx).
		SetQueryParam("pair", pair).
		SetQueryParam("interval", strconv.Itoa(intervalMinutes))
	if since > 0 {
		req.SetQueryParam("since", strconv.FormatInt(since, 10))
	}
	resp, err := req.Get(pathOHLC)
	if err != nil {
		return nil, 0, fmt.Errorf("kraken %s: %w", pathOHLC, err)
	}

	var result map[string]json.RawMessage
	if err := decode(pathOHLC, resp, &result); err != nil {
		return nil, 0, err
	}

	var last int64
	if raw, ok := result["last"]; ok {
		_ = json.Unmarshal(raw, &last)
	}
	for key, raw := range result {
		if key == "last" {
			continue
		}
		var rows [][]json.RawMessage
		if err := json.Unmarshal(raw, &rows); err != nil {
			return nil, 0, fmt.Errorf("kraken %s: decode rows for %s: %w", pathOHLC, key, err)
		}
		bars := make([]OHLCBar, 0, len(rows))
		for i, row := range rows {
			bar, err := parseOHLCRow(row)
			if err != nil {
				return nil, 0, fmt.Errorf("kraken %s: row %d: %w", pathOHLC, i, err)
			}
			bars = append(bars, bar)
		}
		return bars, last, nil
	}
	return nil, last, fmt.Errorf("kraken %s: no data for pair %s", pathOHLC, pair)
}

func parseOHLCRow(row []json.RawMessage) (OHLCBar, error) {
	if len(row) < 8 {
		return OHLCBar{}, fmt.Errorf("want 8 fields, got %d", len(row))
	}
	var bar OHLCBar
	var ts json.Number
	if err := json.Unmarshal(row[0], &ts); err != nil {
		return bar, fmt.Errorf("time: %w", err)
	}
	t, err := ts.Int64()
	if err != nil {
		return bar, fmt.Errorf("time: %w", err)
	}
	bar.Time = t

	fields := []*decimal.Decimal{&bar.Open, &bar.High, &bar.Low, &bar.Close, &bar.VWAP, &bar.Volume}
	for i, dst := range fields {
		var s string
		if err := json.Unmarshal(row[i+1], &s); err != nil {
			return bar, fmt.Errorf("field %d: %w", i+1, err)
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			return bar, fmt.Errorf("field %d: %w", i+1, err)
		}
		*dst = d
	}

	var count json.Number
	if err := json.Unmarshal(row[7], &count); err == nil {
		bar.Count, _ = count.Int64()
	}
	return bar, nil
}
