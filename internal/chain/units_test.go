package chain

import (
	"math"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScaleDecision(t *testing.T) {
	tests := []struct {
		name    string
		percent float64
		want    string
	}{
		{"exact", 0.12, "120000000000000000"},
		{"float noise", 0.6 * 0.1 / 0.5, "120000000000000000"},
		{"below noise", 0.11999999999999998, "120000000000000000"},
		{"negative", -0.053245, "-53245000000000000"},
		{"zero", 0, "0"},
		{"nan", math.NaN(), "0"},
		{"inf", math.Inf(1), "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ScaleDecision(tt.percent).String())
		})
	}
}

func TestToTokens(t *testing.T) {
	raw, _ := new(big.Int).SetString("1500000000000000000", 10)
	assert.Equal(t, "1.5", ToTokens(raw).String())
	assert.True(t, ToTokens(nil).IsZero())
}

func TestTrackedTopics(t *testing.T) {
	topics := TrackedTopics()
	assert.Len(t, topics, 1)
	assert.Len(t, topics[0], 4)
	// keccak256("Transfer(address,address,uint256)")
	assert.Equal(t, "0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef", TopicTransfer.Hex())
}
