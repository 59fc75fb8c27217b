package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"
)

// Default transaction parameters.
const (
	DefaultGasLimit = 200_000
)

// DefaultGasPrice is 20 gwei.
var DefaultGasPrice = big.NewInt(20_000_000_000)

// ErrZeroDecision is returned when asked to submit a zero adjustment.
var ErrZeroDecision = errors.New("zero supply adjustment")

// Submission describes a broadcast (or, in dry-run, a would-be broadcast).
type Submission struct {
	TxHash  common.Hash
	Nonce   uint64
	Percent *big.Int
	DryRun  bool
}

// Submitter signs and broadcasts adjustSupply calls on the treasury wallet.
type Submitter struct {
	client   Client
	wallet   common.Address
	key      *ecdsa.PrivateKey
	from     common.Address
	chainID  *big.Int
	gasLimit uint64
	gasPrice *big.Int
	dryRun   bool
	logger   *zap.Logger
}

// SubmitterOptions configures a Submitter.
type SubmitterOptions struct {
	Client     Client
	Wallet     common.Address // contract exposing adjustSupply(int256)
	PrivateKey string         // hex, with or without 0x
	ChainID    *big.Int       // nil queries the node
	GasLimit   uint64         // 0 uses DefaultGasLimit
	GasPrice   *big.Int       // nil uses DefaultGasPrice; zero asks the node
	DryRun     bool
	Logger     *zap.Logger
}

// NewSubmitter creates a Submitter. In dry-run mode the key is optional.
func NewSubmitter(opts SubmitterOptions) (*Submitter, error) {
	s := &Submitter{
		client:   opts.Client,
		wallet:   opts.Wallet,
		chainID:  opts.ChainID,
		gasLimit: opts.GasLimit,
		gasPrice: opts.GasPrice,
		dryRun:   opts.DryRun,
		logger:   opts.Logger,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	s.logger = s.logger.Named("submitter")
	if s.gasLimit == 0 {
		s.gasLimit = DefaultGasLimit
	}
	if s.gasPrice == nil {
		s.gasPrice = DefaultGasPrice
	}

	if opts.PrivateKey != "" {
		key, err := crypto.HexToECDSA(trimHexPrefix(opts.PrivateKey))
		if err != nil {
			return nil, fmt.Errorf("parse private key: %w", err)
		}
		s.key = key
		s.from = crypto.PubkeyToAddress(key.PublicKey)
	} else if !opts.DryRun {
		return nil, fmt.Errorf("private key required unless dry-run")
	}
	return s, nil
}

// From returns the signing account.
func (s *Submitter) From() common.Address {
	return s.from
}

// BuildCalldata packs adjustSupply(percent).
func BuildCalldata(percent *big.Int) ([]byte, error) {
	data, err := TokenABI.Pack("adjustSupply", percent)
	if err != nil {
		return nil, fmt.Errorf("pack adjustSupply: %w", err)
	}
	return data, nil
}

// Submit sends adjustSupply(percent). percent is already scaled by 10^18.
func (s *Submitter) Submit(ctx context.Context, percent *big.Int) (*Submission, error) {
	if percent == nil || percent.Sign() == 0 {
		return nil, ErrZeroDecision
	}

	data, err := BuildCalldata(percent)
	if err != nil {
		return nil, err
	}

	if s.dryRun {
		s.logger.Info("dry-run: adjustSupply not broadcast",
			zap.String("wallet", s.wallet.Hex()),
			zap.String("percent", percent.String()))
		return &Submission{Percent: percent, DryRun: true}, nil
	}

	nonce, err := s.client.PendingNonceAt(ctx, s.from)
	if err != nil {
		return nil, fmt.Errorf("pending nonce: %w", err)
	}

	gasPrice := s.gasPrice
	if gasPrice.Sign() == 0 {
		if gasPrice, err = s.client.SuggestGasPrice(ctx); err != nil {
			return nil, fmt.Errorf("suggest gas price: %w", err)
		}
	}

	chainID := s.chainID
	if chainID == nil {
		if chainID, err = s.client.ChainID(ctx); err != nil {
			return nil, fmt.Errorf("chain id: %w", err)
		}
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &s.wallet,
		Value:    big.NewInt(0),
		Gas:      s.gasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})

	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), s.key)
	if err != nil {
		return nil, fmt.Errorf("sign tx: %w", err)
	}

	if err := s.client.SendTransaction(ctx, signed); err != nil {
		return nil, fmt.Errorf("send tx: %w", err)
	}

	s.logger.Info("adjustSupply sent",
		zap.String("tx", signed.Hash().Hex()),
		zap.Uint64("nonce", nonce),
		zap.String("percent", percent.String()))

	return &Submission{TxHash: signed.Hash(), Nonce: nonce, Percent: percent}, nil
}

func trimHexPrefix(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}
