package ingestion

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"supply-controller/internal/chain"
	"supply-controller/internal/domain"
)

func rawAmount(tokens int64) []byte {
	v := new(big.Int).Mul(big.NewInt(tokens), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
	return common.LeftPadBytes(v.Bytes(), 32)
}

func TestDecoder_Transfer(t *testing.T) {
	from := common.HexToAddress("0xaa")
	to := common.HexToAddress("0xbb")
	ts := time.Date(2024, 3, 1, 23, 59, 59, 0, time.UTC)

	ev, err := NewDecoder(tokenAddr).Decode(types.Log{
		Address:     tokenAddr,
		Topics:      []common.Hash{chain.TopicTransfer, common.BytesToHash(from.Bytes()), common.BytesToHash(to.Bytes())},
		Data:        rawAmount(42),
		BlockNumber: 7,
		Index:       3,
	}, ts)
	require.NoError(t, err)

	assert.Equal(t, domain.EventTransfer, ev.Kind)
	assert.Equal(t, from, ev.From)
	assert.Equal(t, to, ev.To)
	assert.Equal(t, "42", ev.Amount.String())
	assert.Equal(t, uint64(7), ev.BlockNumber)
	assert.Equal(t, uint(3), ev.LogIndex)
	assert.Equal(t, "2024-03-01", ev.Day())
}

func TestDecoder_AmountEvents(t *testing.T) {
	treasury := common.HexToAddress("0x7e")
	cases := []struct {
		topic common.Hash
		kind  domain.EventKind
	}{
		{chain.TopicMinted, domain.EventMinted},
		{chain.TopicBurned, domain.EventBurned},
		{chain.TopicContraction, domain.EventContraction},
	}

	d := NewDecoder(tokenAddr)
	for _, tc := range cases {
		t.Run(tc.kind.String(), func(t *testing.T) {
			ev, err := d.Decode(types.Log{Address: treasury, Topics: []common.Hash{tc.topic}, Data: rawAmount(5)}, time.Now())
			require.NoError(t, err)
			assert.Equal(t, tc.kind, ev.Kind)
			assert.Equal(t, "5", ev.Amount.String())
		})
	}
}

func TestDecoder_Failures(t *testing.T) {
	d := NewDecoder(tokenAddr)
	now := time.Now()

	_, err := d.Decode(types.Log{Address: tokenAddr}, now)
	assert.ErrorIs(t, err, ErrMalformedLog)

	_, err = d.Decode(types.Log{Address: tokenAddr, Topics: []common.Hash{common.HexToHash("0x1234")}}, now)
	assert.ErrorIs(t, err, ErrUnknownTopic)

	_, err = d.Decode(types.Log{Address: tokenAddr, Topics: []common.Hash{chain.TopicTransfer}, Data: rawAmount(1)}, now)
	assert.ErrorIs(t, err, ErrMalformedLog, "transfer without indexed addresses")

	_, err = d.Decode(types.Log{
		Address: tokenAddr,
		Topics:  []common.Hash{chain.TopicTransfer, {}, {}},
		Data:    []byte{0x01, 0x02},
	}, now)
	assert.ErrorIs(t, err, ErrMalformedLog, "short data")

	_, err = d.Decode(types.Log{
		Address: common.HexToAddress("0xdead"),
		Topics:  []common.Hash{chain.TopicTransfer, {}, {}},
		Data:    rawAmount(1),
	}, now)
	assert.ErrorIs(t, err, ErrUnknownTopic, "transfers of other tokens")
}
