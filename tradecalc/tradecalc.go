// Package tradecalc holds the stateless trade math: position sizing, liquidation
// price, profit and loss, fee estimates and slippage-adjusted acceptable prices.
// Every function is pure and works on decimal values in USD.
package tradecalc

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrLeverageTooLow  = errors.New("leverage below minimum")
	ErrLeverageTooHigh = errors.New("leverage above market maximum")
)

var (
	// DefaultMaintenanceMargin is the maintenance margin ratio used for previews and
	// reconstructed positions.
	DefaultMaintenanceMargin = decimal.NewFromFloat(0.01)
	// PositionFeeRate is the open/close fee charged on position size (5 bps).
	PositionFeeRate = decimal.NewFromFloat(0.0005)
	// DisplayExecutionFeeRate approximates the keeper gas cost in USD for display
	// only. The fee actually attached to an order is a fixed native amount.
	DisplayExecutionFeeRate = decimal.NewFromFloat(0.0001)
	// MinLeverage is the lowest leverage the venue accepts for a new position.
	MinLeverage = decimal.NewFromFloat(1.1)

	// displayPrecision is the number of decimal places kept on derived prices and
	// PnL so repeating fractions do not leak division noise.
	displayPrecision int32 = 8

	one     = decimal.NewFromInt(1)
	hundred = decimal.NewFromInt(100)
)

// TradePreview is the deterministic estimate shown before an order is submitted.
type TradePreview struct {
	Size             decimal.Decimal `json:"size"`
	EntryPrice       decimal.Decimal `json:"entry_price"`
	LiquidationPrice decimal.Decimal `json:"liquidation_price"`
	PositionFee      decimal.Decimal `json:"position_fee"`
	ExecutionFee     decimal.Decimal `json:"execution_fee"`
	Fees             decimal.Decimal `json:"fees"`
	Margin           decimal.Decimal `json:"margin"`
	Leverage         decimal.Decimal `json:"leverage"`
	IsLong           bool            `json:"is_long"`
}

// LiquidationPrice = entry * (1 -/+ (1/leverage - maintenanceMargin)), minus for
// longs and plus for shorts. Low leverage can push the result past entry or below
// zero; the value is returned as is and callers decide how to display it.
func LiquidationPrice(isLong bool, entry, leverage, maintenanceMargin decimal.Decimal) decimal.Decimal {
	if !leverage.IsPositive() {
		return decimal.Zero
	}
	distance := one.DivRound(leverage, 2*displayPrecision).Sub(maintenanceMargin)
	if isLong {
		return entry.Mul(one.Sub(distance)).Round(displayPrecision)
	}
	return entry.Mul(one.Add(distance)).Round(displayPrecision)
}

// PnL returns the unrealized profit of a position of size USD opened at entry and
// valued at mark.
func PnL(isLong bool, entry, mark, size decimal.Decimal) decimal.Decimal {
	if entry.IsZero() {
		return decimal.Zero
	}
	pnl := mark.Sub(entry).Mul(size).DivRound(entry, displayPrecision)
	if !isLong {
		return pnl.Neg()
	}
	return pnl
}

// PnLPercent expresses pnl relative to the collateral backing the position.
func PnLPercent(pnl, collateral decimal.Decimal) decimal.Decimal {
	if collateral.IsZero() {
		return decimal.Zero
	}
	return pnl.Div(collateral).Mul(hundred)
}

func Leverage(size, collateral decimal.Decimal) decimal.Decimal {
	if collateral.IsZero() {
		return decimal.Zero
	}
	return size.Div(collateral)
}

// Preview sizes a new position and estimates its fees at the current price.
func Preview(collateral, leverage, price decimal.Decimal, isLong bool) TradePreview {
	size := collateral.Mul(leverage)
	positionFee := size.Mul(PositionFeeRate)
	executionFee := price.Mul(DisplayExecutionFeeRate)

	return TradePreview{
		Size:             size,
		EntryPrice:       price,
		LiquidationPrice: LiquidationPrice(isLong, price, leverage, DefaultMaintenanceMargin),
		PositionFee:      positionFee,
		ExecutionFee:     executionFee,
		Fees:             positionFee.Add(executionFee),
		Margin:           collateral,
		Leverage:         leverage,
		IsLong:           isLong,
	}
}

// AcceptablePrice is the worst fill an order tolerates. Buying (open long, close
// short) moves the bound up; selling (open short, close long) moves it down.
func AcceptablePrice(price decimal.Decimal, isLong bool, slippagePercent decimal.Decimal, forClose bool) decimal.Decimal {
	slip := slippagePercent.Div(hundred)
	if isLong != forClose {
		return price.Mul(one.Add(slip))
	}
	return price.Mul(one.Sub(slip))
}

// CheckLeverage validates requested leverage against the venue minimum and the
// market's maximum.
func CheckLeverage(leverage, max decimal.Decimal) error {
	if leverage.LessThan(MinLeverage) {
		return fmt.Errorf("%w: %s < %s", ErrLeverageTooLow, leverage, MinLeverage)
	}
	if leverage.GreaterThan(max) {
		return fmt.Errorf("%w: %s > %s", ErrLeverageTooHigh, leverage, max)
	}
	return nil
}
