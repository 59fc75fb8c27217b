package chain

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// Well-known development key; never funded on a real network.
const testKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

func TestBuildCalldata(t *testing.T) {
	data, err := BuildCalldata(big.NewInt(-5))
	require.NoError(t, err)

	method, err := TokenABI.MethodById(data[:4])
	require.NoError(t, err)
	assert.Equal(t, "adjustSupply", method.Name)

	args, err := method.Inputs.Unpack(data[4:])
	require.NoError(t, err)
	assert.Equal(t, "-5", args[0].(*big.Int).String())
}

func TestSubmitter_SignsLegacyTx(t *testing.T) {
	wallet := common.HexToAddress("0x00000000000000000000000000000000000000ee")
	var raw hexutil.Bytes

	server := newRPCServer(t, func(req rpcRequest) (interface{}, *rpcErrorBody) {
		switch req.Method {
		case "eth_getTransactionCount":
			return "0x7", nil
		case "eth_sendRawTransaction":
			var s string
			assert.NoError(t, json.Unmarshal(req.Params[0], &s))
			raw = hexutil.MustDecode(s)
			return common.Hash{}.Hex(), nil
		}
		t.Errorf("unexpected method %s", req.Method)
		return nil, &rpcErrorBody{Code: -32601, Message: "method not found"}
	})
	defer server.Close()

	client, err := Dial(context.Background(), server.URL, WithRateLimit(0, 0))
	require.NoError(t, err)
	defer client.Close()

	sub, err := NewSubmitter(SubmitterOptions{
		Client:     client,
		Wallet:     wallet,
		PrivateKey: "0x" + testKey,
		ChainID:    big.NewInt(11155111),
		Logger:     zaptest.NewLogger(t),
	})
	require.NoError(t, err)

	percent := ScaleDecision(0.12)
	res, err := sub.Submit(context.Background(), percent)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), res.Nonce)
	assert.False(t, res.DryRun)

	var tx types.Transaction
	require.NoError(t, tx.UnmarshalBinary(raw))
	assert.Equal(t, uint8(types.LegacyTxType), tx.Type())
	assert.Equal(t, wallet, *tx.To())
	assert.Equal(t, uint64(DefaultGasLimit), tx.Gas())
	assert.Equal(t, DefaultGasPrice, tx.GasPrice())
	assert.Equal(t, uint64(7), tx.Nonce())
	assert.Equal(t, res.TxHash, tx.Hash())

	sender, err := types.Sender(types.LatestSignerForChainID(big.NewInt(11155111)), &tx)
	require.NoError(t, err)
	assert.Equal(t, sub.From(), sender)

	args, err := TokenABI.Methods["adjustSupply"].Inputs.Unpack(tx.Data()[4:])
	require.NoError(t, err)
	assert.Equal(t, "120000000000000000", args[0].(*big.Int).String())
}

func TestSubmitter_ZeroAndDryRun(t *testing.T) {
	sub, err := NewSubmitter(SubmitterOptions{DryRun: true})
	require.NoError(t, err)

	_, err = sub.Submit(context.Background(), big.NewInt(0))
	assert.True(t, errors.Is(err, ErrZeroDecision))

	res, err := sub.Submit(context.Background(), big.NewInt(42))
	require.NoError(t, err)
	assert.True(t, res.DryRun)
	assert.Equal(t, int64(42), res.Percent.Int64())
}

func TestNewSubmitter_RequiresKey(t *testing.T) {
	_, err := NewSubmitter(SubmitterOptions{})
	assert.Error(t, err)

	_, err = NewSubmitter(SubmitterOptions{PrivateKey: "zz"})
	assert.Error(t, err)
}
