// Package units converts between USD decimal amounts and the integer fixed-point
// representations used on chain. All parsing goes through decimal strings; float64
// values are formatted first and never multiplied directly.
package units

import (
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	// USDDecimals is the protocol's internal USD precision.
	USDDecimals int32 = 30
	// CollateralDecimals is the USDC token precision.
	CollateralDecimals int32 = 6
	// NativeDecimals is the chain's native asset precision (wei).
	NativeDecimals int32 = 18
	// PriceRoundingPlaces is applied to prices before they are encoded.
	PriceRoundingPlaces int32 = 2
)

var ErrInvalidAmount = errors.New("invalid decimal amount")

// ToFixedPoint parses a decimal string (e.g. "123.45") into an integer scaled by
// 10^decimals. Digits beyond the precision are truncated toward zero.
// Example: "1.23", decimals=6 -> 1230000
func ToFixedPoint(value string, decimals int32) (*big.Int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, fmt.Errorf("%w: empty string", ErrInvalidAmount)
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidAmount, value, err)
	}
	return DecimalToFixedPoint(d, decimals), nil
}

// FloatToFixedPoint converts a float through its shortest string form so that
// 0.1 encodes as 100000 at 6 decimals rather than 99999.
func FloatToFixedPoint(value float64, decimals int32) (*big.Int, error) {
	return ToFixedPoint(strconv.FormatFloat(value, 'f', -1, 64), decimals)
}

func DecimalToFixedPoint(value decimal.Decimal, decimals int32) *big.Int {
	return value.Shift(decimals).BigInt()
}

func FromFixedPoint(value *big.Int, decimals int32) decimal.Decimal {
	if value == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(value, -decimals)
}

// USDToProtocol converts a USD amount to the 30-decimal protocol representation.
func USDToProtocol(usd decimal.Decimal) *big.Int {
	return DecimalToFixedPoint(usd, USDDecimals)
}

func ProtocolToUSD(value *big.Int) decimal.Decimal {
	return FromFixedPoint(value, USDDecimals)
}

// CollateralToFixed converts a USD amount to USDC base units.
func CollateralToFixed(usd decimal.Decimal) *big.Int {
	return DecimalToFixedPoint(usd, CollateralDecimals)
}

func CollateralFromFixed(value *big.Int) decimal.Decimal {
	return FromFixedPoint(value, CollateralDecimals)
}

// NativeToWei parses a native-asset amount ("0.001") into wei.
func NativeToWei(amount string) (*big.Int, error) {
	return ToFixedPoint(amount, NativeDecimals)
}

// TokensFromFixed converts a raw token amount using that token's own precision.
func TokensFromFixed(value *big.Int, tokenDecimals int32) decimal.Decimal {
	return FromFixedPoint(value, tokenDecimals)
}

// PriceToProtocol encodes a USD price in the protocol price convention
// price * 10^(30 - indexDecimals). The price is rounded to cents first.
func PriceToProtocol(price decimal.Decimal, indexDecimals int32) *big.Int {
	return DecimalToFixedPoint(price.Round(PriceRoundingPlaces), USDDecimals-indexDecimals)
}

func PriceFromProtocol(value *big.Int, indexDecimals int32) decimal.Decimal {
	return FromFixedPoint(value, USDDecimals-indexDecimals)
}
