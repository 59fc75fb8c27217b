// Package chain wraps EVM JSON-RPC access: log queries, headers, read-only
// contract calls and transaction broadcast.
package chain

import (
	"context"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"golang.org/x/time/rate"
)

// Client is the chain access the pipeline depends on. *ethclient.Client
// satisfies it, as do HTTPClient and stub.Client.
type Client interface {
	BlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	ChainID(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
}

// Default configuration values.
const (
	DefaultTimeout = 30 * time.Second
	DefaultRPS     = 10.0
	DefaultBurst   = 5
)

// HTTPClient is an ethclient with client-side pacing and classified errors.
// It never retries on its own; retry policy belongs to the caller.
type HTTPClient struct {
	eth        *ethclient.Client
	httpClient *http.Client
	limiter    *rate.Limiter
	timeout    time.Duration
}

// ClientOption configures HTTPClient.
type ClientOption func(*HTTPClient)

// WithTimeout sets the per-call timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.timeout = d
	}
}

// WithRateLimit sets the client-side request rate. rps <= 0 disables pacing.
func WithRateLimit(rps float64, burst int) ClientOption {
	return func(c *HTTPClient) {
		if rps <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *HTTPClient) {
		c.httpClient = client
	}
}

// Dial connects to an HTTP JSON-RPC endpoint.
func Dial(ctx context.Context, endpoint string, opts ...ClientOption) (*HTTPClient, error) {
	c := &HTTPClient{
		httpClient: &http.Client{},
		limiter:    rate.NewLimiter(rate.Limit(DefaultRPS), DefaultBurst),
		timeout:    DefaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}

	rc, err := rpc.DialOptions(ctx, endpoint, rpc.WithHTTPClient(c.httpClient))
	if err != nil {
		return nil, fmt.Errorf("dial rpc %s: %w", endpoint, err)
	}
	c.eth = ethclient.NewClient(rc)
	return c, nil
}

// Compile-time interface checks.
var (
	_ Client = (*HTTPClient)(nil)
	_ Client = (*ethclient.Client)(nil)
)

// Close closes the underlying RPC client.
func (c *HTTPClient) Close() {
	c.eth.Close()
}

// begin waits for a rate-limit token and derives the per-call context.
func (c *HTTPClient) begin(ctx context.Context) (context.Context, context.CancelFunc, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, nil, fmt.Errorf("rate limiter: %w", err)
	}
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	return callCtx, cancel, nil
}

// BlockNumber returns the current chain head.
func (c *HTTPClient) BlockNumber(ctx context.Context) (uint64, error) {
	callCtx, cancel, err := c.begin(ctx)
	if err != nil {
		return 0, err
	}
	defer cancel()

	n, err := c.eth.BlockNumber(callCtx)
	return n, wrap(err)
}

// FilterLogs runs eth_getLogs.
func (c *HTTPClient) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	callCtx, cancel, err := c.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	logs, err := c.eth.FilterLogs(callCtx, q)
	return logs, wrap(err)
}

// HeaderByNumber fetches a block header; nil number means latest.
func (c *HTTPClient) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	callCtx, cancel, err := c.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	h, err := c.eth.HeaderByNumber(callCtx, number)
	return h, wrap(err)
}

// CallContract runs eth_call at blockNumber (nil means latest).
func (c *HTTPClient) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	callCtx, cancel, err := c.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	out, err := c.eth.CallContract(callCtx, msg, blockNumber)
	return out, wrap(err)
}

// PendingNonceAt returns the next nonce for account.
func (c *HTTPClient) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	callCtx, cancel, err := c.begin(ctx)
	if err != nil {
		return 0, err
	}
	defer cancel()

	n, err := c.eth.PendingNonceAt(callCtx, account)
	return n, wrap(err)
}

// SuggestGasPrice returns the node's legacy gas price suggestion.
func (c *HTTPClient) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	callCtx, cancel, err := c.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	p, err := c.eth.SuggestGasPrice(callCtx)
	return p, wrap(err)
}

// ChainID returns the chain id used for replay-protected signing.
func (c *HTTPClient) ChainID(ctx context.Context) (*big.Int, error) {
	callCtx, cancel, err := c.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	id, err := c.eth.ChainID(callCtx)
	return id, wrap(err)
}

// SendTransaction broadcasts a signed transaction.
func (c *HTTPClient) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	callCtx, cancel, err := c.begin(ctx)
	if err != nil {
		return err
	}
	defer cancel()

	return wrap(c.eth.SendTransaction(callCtx, tx))
}
