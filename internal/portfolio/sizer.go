package portfolio

import (
	"errors"
	"fmt"
	"math"

	"trading-bands/internal/model"
)

// ErrInvalidPrice is returned when a buy is sized against a non-positive price.
var ErrInvalidPrice = errors.New("reference price must be positive")

// RiskSizer converts balances into order amounts in base-currency units.
type RiskSizer struct {
	fraction float64 // share of the quote balance committed per buy, (0,1]
}

// NewRiskSizer creates a sizer that commits fraction of the quote balance
// to each buy.
func NewRiskSizer(fraction float64) (*RiskSizer, error) {
	if fraction <= 0 || fraction > 1 || math.IsNaN(fraction) {
		return nil, fmt.Errorf("risk fraction must be in (0,1], got %g", fraction)
	}
	return &RiskSizer{fraction: fraction}, nil
}

// Fraction returns the configured risk fraction.
func (s *RiskSizer) Fraction() float64 { return s.fraction }

// BuyAmount returns fraction*quote/price, never more than quote/price.
// quoteCurrency names the balance in the returned error.
func (s *RiskSizer) BuyAmount(quoteCurrency string, quote, price float64) (float64, error) {
	return BuyAmount(quoteCurrency, quote, s.fraction, price)
}

// SellAmount returns the whole base balance.
func (s *RiskSizer) SellAmount(baseCurrency string, base float64) (float64, error) {
	return SellAmount(baseCurrency, base)
}

// BuyAmount is the stateless form of RiskSizer.BuyAmount.
func BuyAmount(quoteCurrency string, quote, fraction, price float64) (float64, error) {
	if quote <= 0 || math.IsNaN(quote) {
		return 0, &model.InsufficientBalanceError{Currency: quoteCurrency, Balance: quote}
	}
	if price <= 0 || math.IsNaN(price) || math.IsInf(price, 0) {
		return 0, fmt.Errorf("size buy at %g: %w", price, ErrInvalidPrice)
	}
	affordable := quote / price
	amount := fraction * affordable
	if amount > affordable {
		amount = affordable
	}
	return amount, nil
}

// SellAmount is the stateless form of RiskSizer.SellAmount.
func SellAmount(baseCurrency string, base float64) (float64, error) {
	if base <= 0 || math.IsNaN(base) {
		return 0, &model.InsufficientBalanceError{Currency: baseCurrency, Balance: base}
	}
	return base, nil
}
