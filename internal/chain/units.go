package chain

import (
	"math"
	"math/big"

	"github.com/shopspring/decimal"
)

// TokenDecimals is the token's ERC-20 decimals; amounts and decisions use 18.
const TokenDecimals = 18

// ToTokens converts a raw on-chain amount into whole tokens, exactly.
func ToTokens(raw *big.Int) decimal.Decimal {
	if raw == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(raw, -TokenDecimals)
}

// decisionPlaces bounds the precision kept from a float decision before
// scaling, so binary float noise (0.11999999999999998) does not leak into
// the fixed-point integer.
const decisionPlaces = 12

// ScaleDecision converts a fractional percent decision into the signed
// fixed-point integer expected by adjustSupply (value * 10^18).
func ScaleDecision(percent float64) *big.Int {
	if math.IsNaN(percent) || math.IsInf(percent, 0) {
		return new(big.Int)
	}
	d := decimal.NewFromFloat(percent).Round(decisionPlaces)
	return d.Shift(TokenDecimals).BigInt()
}
