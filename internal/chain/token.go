package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
)

// TokenReader performs read-only calls against the token and treasury contracts.
type TokenReader struct {
	client   Client
	token    common.Address
	treasury common.Address
}

// NewTokenReader creates a TokenReader.
func NewTokenReader(client Client, token, treasury common.Address) *TokenReader {
	return &TokenReader{client: client, token: token, treasury: treasury}
}

// TotalSupply returns the token's raw totalSupply at block (nil means latest).
func (r *TokenReader) TotalSupply(ctx context.Context, block *big.Int) (*big.Int, error) {
	return r.callUint(ctx, r.token, block, "totalSupply")
}

// BalanceOf returns the raw balance of account at block.
func (r *TokenReader) BalanceOf(ctx context.Context, account common.Address, block *big.Int) (*big.Int, error) {
	return r.callUint(ctx, r.token, block, "balanceOf", account)
}

// ReadSupply returns the supply figure reported by the treasury wallet.
func (r *TokenReader) ReadSupply(ctx context.Context, block *big.Int) (*big.Int, error) {
	return r.callUint(ctx, r.treasury, block, "readSupply")
}

func (r *TokenReader) callUint(ctx context.Context, to common.Address, block *big.Int, method string, args ...interface{}) (*big.Int, error) {
	data, err := TokenABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}

	out, err := r.client.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, block)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}

	values, err := TokenABI.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(values) != 1 {
		return nil, fmt.Errorf("unpack %s: expected 1 value, got %d", method, len(values))
	}
	v, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unpack %s: unexpected type %T", method, values[0])
	}
	return v, nil
}
