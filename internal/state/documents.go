package state

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Document keys.
const (
	KeyBookmark  = "bookmark"
	KeyBalances  = "balances"
	KeyThreshold = "msct"
	KeyBeginning = "beginning"
	KeyOpenDay   = "open_day"
)

type bookmarkDoc struct {
	LastBlock uint64 `json:"last_block"`
}

type thresholdDoc struct {
	MSCT float64 `json:"msct"`
}

type beginningDoc struct {
	Beginning bool `json:"beginning"`
}

// Amount is a token quantity serialized as a bare JSON number.
// Decoding also accepts quoted numbers and exponent notation.
type Amount decimal.Decimal

// MarshalJSON implements json.Marshaler.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(decimal.Decimal(a).String()), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (a *Amount) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*a = Amount(decimal.Zero)
		return nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("decode amount %q: %w", s, err)
	}
	*a = Amount(d)
	return nil
}

// Decimal returns the underlying value.
func (a Amount) Decimal() decimal.Decimal {
	return decimal.Decimal(a)
}

// OpenDay is the partially covered last day of the previous run, carried
// into the next run so its record keeps accumulating.
type OpenDay struct {
	Day         string `json:"day"`
	Volume      Amount `json:"volume"`
	CircToUser  Amount `json:"circ_to_user"`
	UserToUser  Amount `json:"user_to_user"`
	UserToCirc  Amount `json:"user_to_circ"`
	CircToTres  Amount `json:"circ_to_tres"`
	UserToTres  Amount `json:"user_to_tres"`
	Minted      Amount `json:"minted"`
	Burned      Amount `json:"burned"`
	Contraction Amount `json:"circulation_contraction"`
	HolderCount int64  `json:"holder_count"`

	// Senders and Wallets are lowercase hex addresses.
	Senders []string `json:"senders"`
	Wallets []string `json:"wallets"`

	// FundingSkipped records that the one-off funding transfer was already excluded.
	FundingSkipped bool `json:"funding_skipped"`
}
