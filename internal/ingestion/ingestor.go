// Package ingestion turns token logs into daily metrics records and a
// persisted holder ledger.
package ingestion

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"supply-controller/internal/chain"
	"supply-controller/internal/domain"
	"supply-controller/internal/ledger"
	"supply-controller/internal/observability"
	"supply-controller/internal/retry"
	"supply-controller/internal/state"
	"supply-controller/internal/storage"
)

// Options configures an Ingestor.
type Options struct {
	Client  chain.Client
	Tokens  *chain.TokenReader
	State   *state.Repository
	Metrics storage.MetricsStore

	Token    common.Address
	Issuer   common.Address
	Treasury common.Address
	Funding  common.Address // optional

	// StartBlock is the first block of the very first run.
	StartBlock uint64
	// SupplyFromTreasury reads total supply via the treasury's readSupply.
	SupplyFromTreasury bool

	Fetcher FetcherOptions // Client, Addresses and Logger are filled in
	Retry   retry.Config   // header and contract reads
	Logger  *zap.Logger
}

// Ingestor runs one ingestion pass: bookmark+1 through the chain head.
type Ingestor struct {
	client  chain.Client
	tokens  *chain.TokenReader
	state   *state.Repository
	metrics storage.MetricsStore
	fetcher *LogFetcher
	decoder *Decoder

	issuer             common.Address
	treasury           common.Address
	funding            common.Address
	startBlock         uint64
	supplyFromTreasury bool

	retry  retry.Config
	logger *zap.Logger
}

// Result summarizes one ingestion pass.
type Result struct {
	NoOp           bool
	FromBlock      uint64
	ToBlock        uint64
	Logs           int
	Events         int
	DecodeFailures int
	Fetch          observability.FetchStats
	Records        []*domain.DailyMetrics
	HolderCount    int
}

// New creates an Ingestor.
func New(opts Options) (*Ingestor, error) {
	if opts.Client == nil || opts.State == nil || opts.Metrics == nil {
		return nil, errors.New("ingestion: client, state and metrics store are required")
	}
	if opts.Token == (common.Address{}) {
		return nil, errors.New("ingestion: token address is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	tokens := opts.Tokens
	if tokens == nil {
		tokens = chain.NewTokenReader(opts.Client, opts.Token, opts.Treasury)
	}

	fetchOpts := opts.Fetcher
	fetchOpts.Client = opts.Client
	if fetchOpts.Logger == nil {
		fetchOpts.Logger = logger
	}
	if len(fetchOpts.Addresses) == 0 {
		fetchOpts.Addresses = []common.Address{opts.Token}
		if opts.Treasury != (common.Address{}) {
			fetchOpts.Addresses = append(fetchOpts.Addresses, opts.Treasury)
		}
	}

	retryCfg := opts.Retry
	if retryCfg.MaxRetries == 0 {
		retryCfg = retry.DefaultConfig()
	}

	return &Ingestor{
		client:             opts.Client,
		tokens:             tokens,
		state:              opts.State,
		metrics:            opts.Metrics,
		fetcher:            NewLogFetcher(fetchOpts),
		decoder:            NewDecoder(opts.Token),
		issuer:             opts.Issuer,
		treasury:           opts.Treasury,
		funding:            opts.Funding,
		startBlock:         opts.StartBlock,
		supplyFromTreasury: opts.SupplyFromTreasury,
		retry:              retryCfg,
		logger:             logger.Named("ingestion"),
	}, nil
}

// Run ingests every block after the bookmark up to the head observed at
// start. Metrics are upserted before the state commit, so a crash in
// between only causes an idempotent replay. The caller holds the run lease.
func (i *Ingestor) Run(ctx context.Context) (*Result, error) {
	var head uint64
	err := retry.WithBackoff(ctx, i.retry, i.logger, "block_number", func() error {
		var err error
		head, err = i.client.BlockNumber(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("get head: %w", err)
	}

	from := i.startBlock
	last, ok, err := i.state.Bookmark(ctx)
	if err != nil {
		return nil, fmt.Errorf("load bookmark: %w", err)
	}
	if ok {
		from = last + 1
	}

	result := &Result{FromBlock: from, ToBlock: head}
	if from > head {
		i.logger.Info("Nothing to ingest",
			zap.Uint64("from", from),
			zap.Uint64("head", head))
		result.NoOp = true
		return result, nil
	}

	agg, err := i.loadAggregator(ctx)
	if err != nil {
		return nil, err
	}

	times := newBlockTimes(i.client, i.retry, i.logger)
	stats, err := i.fetcher.Walk(ctx, from, head, func(window domain.BlockWindow, logs []types.Log) error {
		for _, l := range logs {
			ts, err := times.at(ctx, l.BlockNumber)
			if err != nil {
				return err
			}
			ev, err := i.decoder.Decode(l, ts)
			if err != nil {
				result.DecodeFailures++
				observability.RecordDecodeFailure()
				i.logger.Warn("Skipping undecodable log",
					zap.Uint64("block", l.BlockNumber),
					zap.Uint("index", l.Index),
					zap.String("tx", l.TxHash.Hex()),
					zap.Error(err))
				continue
			}
			if err := agg.Add(ev); err != nil {
				return fmt.Errorf("aggregate block %d log %d: %w", l.BlockNumber, l.Index, err)
			}
			result.Events++
			observability.RecordEvent(ev.Kind.String())
		}
		i.logger.Debug("Window ingested",
			zap.Stringer("window", window),
			zap.Int("logs", len(logs)))
		return nil
	})
	result.Fetch = stats
	result.Logs = stats.Logs
	observability.RecordFetch(stats)
	if err != nil {
		return nil, fmt.Errorf("walk logs: %w", err)
	}

	headTime, err := times.at(ctx, head)
	if err != nil {
		return nil, err
	}
	if err := agg.AdvanceTo(domain.DayOf(headTime)); err != nil {
		return nil, err
	}

	records := agg.Records()
	if err := i.applySnapshots(ctx, head, records); err != nil {
		return nil, err
	}

	if err := i.metrics.Upsert(ctx, records); err != nil {
		return nil, fmt.Errorf("upsert daily metrics: %w", err)
	}
	if err := i.state.CommitIngestion(ctx, state.Commit{
		LastBlock: head,
		Balances:  agg.Ledger().Balances(),
		OpenDay:   agg.OpenDay(),
	}); err != nil {
		return nil, err
	}

	result.Records = records
	result.HolderCount = agg.Ledger().HolderCount()
	observability.RecordCommit(head, result.HolderCount, len(records))

	i.logger.Info("Ingestion committed",
		zap.Uint64("from", from),
		zap.Uint64("to", head),
		zap.Int("logs", result.Logs),
		zap.Int("events", result.Events),
		zap.Int("decode_failures", result.DecodeFailures),
		zap.Int("records", len(records)),
		zap.Int("holders", result.HolderCount),
		zap.Int("span_shrinks", stats.Shrinks),
		zap.Int("backoffs", stats.Backoffs))
	return result, nil
}

func (i *Ingestor) loadAggregator(ctx context.Context) (*Aggregator, error) {
	balances, err := i.state.Balances(ctx)
	if err != nil {
		return nil, fmt.Errorf("load balances: %w", err)
	}
	open, err := i.state.OpenDay(ctx)
	if err != nil {
		return nil, fmt.Errorf("load open day: %w", err)
	}
	return NewAggregator(AggregatorOptions{
		Issuer:   i.issuer,
		Treasury: i.treasury,
		Funding:  i.funding,
		Ledger:   ledger.Load(balances, i.issuer, i.treasury),
		OpenDay:  open,
	})
}

// applySnapshots pins total supply and privileged balances at head and
// stamps them on every record of this run.
func (i *Ingestor) applySnapshots(ctx context.Context, head uint64, records []*domain.DailyMetrics) error {
	block := new(big.Int).SetUint64(head)

	read := func(op string, fn func() (*big.Int, error)) (float64, error) {
		var raw *big.Int
		err := retry.WithBackoff(ctx, i.retry, i.logger, op, func() error {
			var err error
			raw, err = fn()
			return err
		})
		if err != nil {
			return 0, fmt.Errorf("%s at %d: %w", op, head, err)
		}
		return chain.ToTokens(raw).InexactFloat64(), nil
	}

	supplyOp, supplyFn := "total_supply", func() (*big.Int, error) { return i.tokens.TotalSupply(ctx, block) }
	if i.supplyFromTreasury {
		supplyOp, supplyFn = "read_supply", func() (*big.Int, error) { return i.tokens.ReadSupply(ctx, block) }
	}
	total, err := read(supplyOp, supplyFn)
	if err != nil {
		return err
	}
	circulating, err := read("issuer_balance", func() (*big.Int, error) { return i.tokens.BalanceOf(ctx, i.issuer, block) })
	if err != nil {
		return err
	}
	var treasury float64
	if i.treasury != (common.Address{}) {
		treasury, err = read("treasury_balance", func() (*big.Int, error) { return i.tokens.BalanceOf(ctx, i.treasury, block) })
		if err != nil {
			return err
		}
	}

	for _, r := range records {
		r.TotalSupply = total
		r.CirculatingBalance = circulating
		r.TreasuryBalance = treasury
	}
	return nil
}

// blockTimes caches header timestamps for the duration of a run.
type blockTimes struct {
	client chain.Client
	retry  retry.Config
	logger *zap.Logger
	cache  map[uint64]time.Time
}

func newBlockTimes(client chain.Client, cfg retry.Config, logger *zap.Logger) *blockTimes {
	return &blockTimes{client: client, retry: cfg, logger: logger, cache: make(map[uint64]time.Time)}
}

func (b *blockTimes) at(ctx context.Context, number uint64) (time.Time, error) {
	if ts, ok := b.cache[number]; ok {
		return ts, nil
	}
	var header *types.Header
	err := retry.WithBackoff(ctx, b.retry, b.logger, "header_by_number", func() error {
		var err error
		header, err = b.client.HeaderByNumber(ctx, new(big.Int).SetUint64(number))
		return err
	})
	if err != nil {
		return time.Time{}, fmt.Errorf("header %d: %w", number, err)
	}
	ts := time.Unix(int64(header.Time), 0).UTC()
	b.cache[number] = ts
	return ts, nil
}
