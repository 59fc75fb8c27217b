package ingestion

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"supply-controller/internal/chain"
	"supply-controller/internal/domain"
)

// Decode errors. Both are skippable: the log is dropped and counted.
var (
	ErrUnknownTopic = errors.New("unknown topic")
	ErrMalformedLog = errors.New("malformed log")
)

var amountEvents = map[common.Hash]struct {
	name string
	kind domain.EventKind
}{
	chain.TopicMinted:      {"MintingHappened", domain.EventMinted},
	chain.TopicBurned:      {"BurningHappened", domain.EventBurned},
	chain.TopicContraction: {"CirculationContracted", domain.EventContraction},
}

// Decoder turns raw logs into typed token events.
type Decoder struct {
	token common.Address
}

// NewDecoder creates a decoder. Transfer logs are only accepted from token;
// supply events may come from any filtered contract.
func NewDecoder(token common.Address) *Decoder {
	return &Decoder{token: token}
}

// Decode decodes l, stamping it with the block timestamp ts.
func (d *Decoder) Decode(l types.Log, ts time.Time) (*domain.TokenEvent, error) {
	if len(l.Topics) == 0 {
		return nil, fmt.Errorf("%w: no topics", ErrMalformedLog)
	}

	ev := &domain.TokenEvent{
		BlockNumber: l.BlockNumber,
		TxHash:      l.TxHash,
		LogIndex:    l.Index,
		Timestamp:   ts.UTC(),
	}

	topic := l.Topics[0]
	if topic == chain.TopicTransfer {
		if l.Address != d.token {
			return nil, fmt.Errorf("%w: transfer from %s", ErrUnknownTopic, l.Address.Hex())
		}
		if len(l.Topics) != 3 {
			return nil, fmt.Errorf("%w: transfer has %d topics", ErrMalformedLog, len(l.Topics))
		}
		value, err := unpackAmount("Transfer", l.Data)
		if err != nil {
			return nil, err
		}
		ev.Kind = domain.EventTransfer
		ev.From = common.BytesToAddress(l.Topics[1].Bytes())
		ev.To = common.BytesToAddress(l.Topics[2].Bytes())
		ev.Amount = chain.ToTokens(value)
		return ev, nil
	}

	spec, ok := amountEvents[topic]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTopic, topic.Hex())
	}
	amount, err := unpackAmount(spec.name, l.Data)
	if err != nil {
		return nil, err
	}
	ev.Kind = spec.kind
	ev.Amount = chain.ToTokens(amount)
	return ev, nil
}

func unpackAmount(event string, data []byte) (*big.Int, error) {
	values, err := chain.TokenABI.Unpack(event, data)
	if err != nil {
		return nil, fmt.Errorf("%w: unpack %s: %v", ErrMalformedLog, event, err)
	}
	if len(values) != 1 {
		return nil, fmt.Errorf("%w: %s has %d fields", ErrMalformedLog, event, len(values))
	}
	amount, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%w: %s amount is %T", ErrMalformedLog, event, values[0])
	}
	return amount, nil
}
