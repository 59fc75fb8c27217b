package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// EventKind identifies a decoded token log.
type EventKind string

const (
	EventTransfer    EventKind = "TRANSFER"
	EventMinted      EventKind = "MINTED"
	EventBurned      EventKind = "BURNED"
	EventContraction EventKind = "CONTRACTION"
)

// String returns the string representation of EventKind.
func (k EventKind) String() string {
	return string(k)
}

// TokenEvent is a decoded log. From/To are only set for transfers;
// Amount is always expressed in whole tokens.
type TokenEvent struct {
	Kind        EventKind
	BlockNumber uint64
	TxHash      common.Hash
	LogIndex    uint
	Timestamp   time.Time
	From        common.Address
	To          common.Address
	Amount      decimal.Decimal
}

// Day returns the UTC day the event belongs to.
func (e *TokenEvent) Day() string {
	return DayOf(e.Timestamp)
}
