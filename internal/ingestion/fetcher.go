package ingestion

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"supply-controller/internal/chain"
	"supply-controller/internal/domain"
	"supply-controller/internal/observability"
)

// Fetcher defaults.
const (
	DefaultTargetSpan  = 1000
	DefaultGrowAfter   = 3
	DefaultBackoffBase = time.Second
	DefaultMaxRetries  = 5
)

// ErrRetriesExhausted is returned when a window stays rate limited past the retry budget.
var ErrRetriesExhausted = errors.New("rate limit retries exhausted")

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// FetcherOptions configures a LogFetcher.
type FetcherOptions struct {
	Client    chain.Client
	Addresses []common.Address
	Topics    [][]common.Hash

	TargetSpan  uint64        // Default: 1000 blocks
	GrowAfter   int           // Default: 3 consecutive successes before doubling the span
	BackoffBase time.Duration // Default: 1s, doubled per attempt
	MaxRetries  int           // Default: 5 rate-limit retries per window

	Sleep  SleepFunc
	Logger *zap.Logger
}

// LogFetcher walks a block range in adaptively sized windows.
type LogFetcher struct {
	client      chain.Client
	addresses   []common.Address
	topics      [][]common.Hash
	targetSpan  uint64
	growAfter   int
	backoffBase time.Duration
	maxRetries  int
	sleep       SleepFunc
	logger      *zap.Logger
}

// NewLogFetcher creates a fetcher, filling defaults.
func NewLogFetcher(opts FetcherOptions) *LogFetcher {
	f := &LogFetcher{
		client:      opts.Client,
		addresses:   opts.Addresses,
		topics:      opts.Topics,
		targetSpan:  opts.TargetSpan,
		growAfter:   opts.GrowAfter,
		backoffBase: opts.BackoffBase,
		maxRetries:  opts.MaxRetries,
		sleep:       opts.Sleep,
		logger:      opts.Logger,
	}
	if f.targetSpan == 0 {
		f.targetSpan = DefaultTargetSpan
	}
	if f.growAfter <= 0 {
		f.growAfter = DefaultGrowAfter
	}
	if f.backoffBase <= 0 {
		f.backoffBase = DefaultBackoffBase
	}
	if f.maxRetries <= 0 {
		f.maxRetries = DefaultMaxRetries
	}
	if f.topics == nil {
		f.topics = chain.TrackedTopics()
	}
	if f.sleep == nil {
		f.sleep = sleepContext
	}
	if f.logger == nil {
		f.logger = zap.NewNop()
	}
	f.logger = f.logger.Named("fetcher")
	return f
}

// WindowFunc receives the logs of one successfully fetched window, in order.
type WindowFunc func(window domain.BlockWindow, logs []types.Log) error

// Walk fetches every block in [from, to] exactly once and hands each
// window's logs to fn. to is the head snapshot taken by the caller; Walk
// never queries past it. An empty range yields nothing.
//
// Oversize results halve the span down to 1 and retry the same start
// block. Rate limiting backs off exponentially and retries the identical
// window. Any other error, or an oversize result at span 1, is fatal.
func (f *LogFetcher) Walk(ctx context.Context, from, to uint64, fn WindowFunc) (observability.FetchStats, error) {
	var stats observability.FetchStats
	if from > to {
		return stats, nil
	}

	span := f.targetSpan
	streak := 0
	cursor := from

	for cursor <= to {
		window := domain.BlockWindow{From: cursor, To: windowEnd(cursor, span, to)}

		logs, backoffs, err := f.fetchWindow(ctx, window)
		stats.Backoffs += backoffs
		if err != nil {
			if !errors.Is(err, chain.ErrOversizeResult) {
				return stats, err
			}
			if span == 1 {
				return stats, fmt.Errorf("window %s still oversize at span 1: %w", window, err)
			}
			span /= 2
			streak = 0
			stats.Shrinks++
			f.logger.Debug("Oversize result, shrinking span",
				zap.Stringer("window", window),
				zap.Uint64("span", span))
			continue
		}

		if err := fn(window, logs); err != nil {
			return stats, err
		}
		stats.Chunks++
		stats.Logs += len(logs)

		if window.To == to {
			break
		}
		cursor = window.To + 1

		streak++
		if span < f.targetSpan && streak >= f.growAfter {
			span = min(span*2, f.targetSpan)
			streak = 0
		}
	}

	return stats, nil
}

// fetchWindow issues eth_getLogs for window, retrying only on rate limits.
func (f *LogFetcher) fetchWindow(ctx context.Context, window domain.BlockWindow) ([]types.Log, int, error) {
	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(window.From),
		ToBlock:   new(big.Int).SetUint64(window.To),
		Addresses: f.addresses,
		Topics:    f.topics,
	}

	delay := f.backoffBase
	for attempt := 0; ; attempt++ {
		logs, err := f.client.FilterLogs(ctx, query)
		if err == nil {
			return logs, attempt, nil
		}

		switch chain.Classify(err) {
		case chain.ClassOversize:
			return nil, attempt, fmt.Errorf("get logs %s: %w", window, chain.ErrOversizeResult)
		case chain.ClassRateLimited:
			if attempt >= f.maxRetries {
				return nil, attempt, fmt.Errorf("get logs %s after %d retries: %w: %w", window, attempt, ErrRetriesExhausted, err)
			}
			f.logger.Warn("Rate limited, backing off",
				zap.Stringer("window", window),
				zap.Int("attempt", attempt+1),
				zap.Duration("retry_in", delay))
			if err := f.sleep(ctx, delay); err != nil {
				return nil, attempt, err
			}
			delay *= 2
		default:
			return nil, attempt, fmt.Errorf("get logs %s: %w", window, err)
		}
	}
}

func windowEnd(cursor, span, head uint64) uint64 {
	end := cursor + span - 1
	if end > head || end < cursor {
		return head
	}
	return end
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
