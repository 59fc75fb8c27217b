// Package stub provides an in-memory chain.Client for tests.
package stub

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"supply-controller/internal/chain"
)

// ErrNotFound is returned for unknown blocks.
var ErrNotFound = errors.New("not found")

// Client is a scripted chain. Fields may be set directly before use.
type Client struct {
	mu sync.Mutex

	Head       uint64
	Logs       []types.Log
	BlockTimes map[uint64]time.Time

	// MaxSpan makes FilterLogs fail with an oversize error for wider ranges. 0 disables.
	MaxSpan uint64
	// FilterErrors are returned, in order, by the next FilterLogs calls.
	FilterErrors []error

	TotalSupply *big.Int
	ReadSupply  *big.Int
	Balances    map[common.Address]*big.Int

	Nonce    uint64
	GasPrice *big.Int
	Chain    *big.Int
	Sent     []*types.Transaction
	SendErr  error

	FilterCalls []ethereum.FilterQuery
}

// NewClient creates an empty stub chain at head 0.
func NewClient() *Client {
	return &Client{
		BlockTimes:  make(map[uint64]time.Time),
		Balances:    make(map[common.Address]*big.Int),
		TotalSupply: new(big.Int),
		ReadSupply:  new(big.Int),
		GasPrice:    big.NewInt(1_000_000_000),
		Chain:       big.NewInt(11155111),
	}
}

// Compile-time interface check.
var _ chain.Client = (*Client)(nil)

// BlockNumber returns Head.
func (c *Client) BlockNumber(_ context.Context) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Head, nil
}

// FilterLogs returns stored logs within the query range, honoring scripted errors.
func (c *Client) FilterLogs(_ context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.FilterCalls = append(c.FilterCalls, q)

	if len(c.FilterErrors) > 0 {
		err := c.FilterErrors[0]
		c.FilterErrors = c.FilterErrors[1:]
		if err != nil {
			return nil, err
		}
	}

	from, to := q.FromBlock.Uint64(), q.ToBlock.Uint64()
	if c.MaxSpan > 0 && to-from+1 > c.MaxSpan {
		return nil, fmt.Errorf("query returned more than 10000 results: %w", chain.ErrOversizeResult)
	}

	var out []types.Log
	for _, l := range c.Logs {
		if l.BlockNumber < from || l.BlockNumber > to {
			continue
		}
		if len(q.Addresses) > 0 && !containsAddress(q.Addresses, l.Address) {
			continue
		}
		if len(q.Topics) > 0 && len(q.Topics[0]) > 0 && (len(l.Topics) == 0 || !containsHash(q.Topics[0], l.Topics[0])) {
			continue
		}
		out = append(out, l)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].BlockNumber != out[j].BlockNumber {
			return out[i].BlockNumber < out[j].BlockNumber
		}
		return out[i].Index < out[j].Index
	})
	return out, nil
}

// HeaderByNumber returns a header carrying the scripted block time.
func (c *Client) HeaderByNumber(_ context.Context, number *big.Int) (*types.Header, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := c.Head
	if number != nil {
		n = number.Uint64()
	}
	ts, ok := c.BlockTimes[n]
	if !ok {
		return nil, fmt.Errorf("block %d: %w", n, ErrNotFound)
	}
	return &types.Header{Number: new(big.Int).SetUint64(n), Time: uint64(ts.Unix())}, nil
}

// CallContract answers totalSupply, balanceOf and readSupply.
func (c *Client) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(msg.Data) < 4 {
		return nil, fmt.Errorf("short calldata")
	}
	method, err := chain.TokenABI.MethodById(msg.Data[:4])
	if err != nil {
		return nil, err
	}

	var value *big.Int
	switch method.Name {
	case "totalSupply":
		value = c.TotalSupply
	case "readSupply":
		value = c.ReadSupply
	case "balanceOf":
		args, err := method.Inputs.Unpack(msg.Data[4:])
		if err != nil {
			return nil, err
		}
		value = c.Balances[args[0].(common.Address)]
		if value == nil {
			value = new(big.Int)
		}
	default:
		return nil, fmt.Errorf("unsupported method %s", method.Name)
	}
	return method.Outputs.Pack(value)
}

// PendingNonceAt returns Nonce.
func (c *Client) PendingNonceAt(_ context.Context, _ common.Address) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Nonce, nil
}

// SuggestGasPrice returns GasPrice.
func (c *Client) SuggestGasPrice(_ context.Context) (*big.Int, error) {
	return c.GasPrice, nil
}

// ChainID returns Chain.
func (c *Client) ChainID(_ context.Context) (*big.Int, error) {
	return c.Chain, nil
}

// SendTransaction records tx and bumps Nonce.
func (c *Client) SendTransaction(_ context.Context, tx *types.Transaction) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.SendErr != nil {
		return c.SendErr
	}
	c.Sent = append(c.Sent, tx)
	c.Nonce++
	return nil
}

// AddTransfer appends a Transfer log. value is in raw units.
func (c *Client) AddTransfer(token common.Address, block uint64, from, to common.Address, value *big.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.Logs = append(c.Logs, types.Log{
		Address:     token,
		Topics:      []common.Hash{chain.TopicTransfer, common.BytesToHash(from.Bytes()), common.BytesToHash(to.Bytes())},
		Data:        common.LeftPadBytes(value.Bytes(), 32),
		BlockNumber: block,
		Index:       uint(len(c.Logs)),
	})
}

// AddAmountEvent appends a single-amount event (mint, burn, contraction).
func (c *Client) AddAmountEvent(token common.Address, block uint64, topic common.Hash, amount *big.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.Logs = append(c.Logs, types.Log{
		Address:     token,
		Topics:      []common.Hash{topic},
		Data:        common.LeftPadBytes(amount.Bytes(), 32),
		BlockNumber: block,
		Index:       uint(len(c.Logs)),
	})
}

// AddRawLog appends an arbitrary log.
func (c *Client) AddRawLog(l types.Log) {
	c.mu.Lock()
	defer c.mu.Unlock()
	l.Index = uint(len(c.Logs))
	c.Logs = append(c.Logs, l)
}

// SetBlockTimes assigns the same timestamp to blocks [from, to].
func (c *Client) SetBlockTimes(from, to uint64, ts time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for b := from; b <= to; b++ {
		c.BlockTimes[b] = ts
	}
}

func containsAddress(list []common.Address, a common.Address) bool {
	for _, x := range list {
		if x == a {
			return true
		}
	}
	return false
}

func containsHash(list []common.Hash, h common.Hash) bool {
	for _, x := range list {
		if bytes.Equal(x[:], h[:]) {
			return true
		}
	}
	return false
}
