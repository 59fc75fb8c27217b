package ingestion

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"supply-controller/internal/domain"
	"supply-controller/internal/ledger"
	"supply-controller/internal/state"
)

// dayBucket accumulates one UTC day.
type dayBucket struct {
	day         string
	volume      decimal.Decimal
	flows       map[domain.Category]decimal.Decimal
	minted      decimal.Decimal
	burned      decimal.Decimal
	contraction decimal.Decimal
	senders     map[common.Address]struct{}
	wallets     map[common.Address]struct{}
}

func newBucket(day string) *dayBucket {
	return &dayBucket{
		day:     day,
		flows:   make(map[domain.Category]decimal.Decimal),
		senders: make(map[common.Address]struct{}),
		wallets: make(map[common.Address]struct{}),
	}
}

func (b *dayBucket) record(holders int64) *domain.DailyMetrics {
	return &domain.DailyMetrics{
		Day:                    b.day,
		Volume:                 b.volume.InexactFloat64(),
		CircToUser:             b.flows[domain.CategoryCircToUser].InexactFloat64(),
		UserToUser:             b.flows[domain.CategoryUserToUser].InexactFloat64(),
		UserToCirc:             b.flows[domain.CategoryUserToCirc].InexactFloat64(),
		CircToTres:             b.flows[domain.CategoryCircToTres].InexactFloat64(),
		UserToTres:             b.flows[domain.CategoryUserToTres].InexactFloat64(),
		HolderCount:            holders,
		UniqueSenders:          int64(len(b.senders)),
		ActiveWallets:          int64(len(b.wallets)),
		Minted:                 b.minted.InexactFloat64(),
		Burned:                 b.burned.InexactFloat64(),
		CirculationContraction: b.contraction.InexactFloat64(),
	}
}

// AggregatorOptions configures an Aggregator.
type AggregatorOptions struct {
	Issuer   common.Address
	Treasury common.Address
	// Funding, when set, is the EOA whose first transfer to the treasury is
	// a one-off funding and carries no volume.
	Funding common.Address

	Ledger  *ledger.Ledger
	OpenDay *state.OpenDay
}

// Aggregator folds decoded events into per-day buckets and the holder ledger.
// Events must arrive in chain order.
type Aggregator struct {
	issuer         common.Address
	treasury       common.Address
	funding        common.Address
	fundingSkipped bool

	ledger  *ledger.Ledger
	open    *dayBucket
	closed  []*domain.DailyMetrics
	skipped int
}

// NewAggregator creates an aggregator, resuming the carried-over open day if any.
func NewAggregator(opts AggregatorOptions) (*Aggregator, error) {
	a := &Aggregator{
		issuer:   opts.Issuer,
		treasury: opts.Treasury,
		funding:  opts.Funding,
		ledger:   opts.Ledger,
	}
	if a.ledger == nil {
		a.ledger = ledger.New(opts.Issuer, opts.Treasury)
	}
	if opts.OpenDay != nil {
		a.fundingSkipped = opts.OpenDay.FundingSkipped
		if opts.OpenDay.Day != "" {
			b, err := bucketFromState(opts.OpenDay)
			if err != nil {
				return nil, err
			}
			a.open = b
		}
	}
	return a, nil
}

// Ledger returns the ledger the aggregator mutates.
func (a *Aggregator) Ledger() *ledger.Ledger {
	return a.ledger
}

// SkippedTransfers returns the number of transfers that moved no balance.
func (a *Aggregator) SkippedTransfers() int {
	return a.skipped
}

func (a *Aggregator) role(addr common.Address) domain.Role {
	switch addr {
	case common.Address{}:
		return domain.RoleZero
	case a.issuer:
		return domain.RoleIssuer
	case a.treasury:
		return domain.RoleTreasury
	}
	return domain.RoleOther
}

// Add folds one event into its day's bucket.
func (a *Aggregator) Add(ev *domain.TokenEvent) error {
	if err := a.AdvanceTo(ev.Day()); err != nil {
		return err
	}
	b := a.open

	switch ev.Kind {
	case domain.EventMinted:
		b.minted = b.minted.Add(ev.Amount)
	case domain.EventBurned:
		b.burned = b.burned.Add(ev.Amount)
	case domain.EventContraction:
		b.contraction = b.contraction.Add(ev.Amount)
	case domain.EventTransfer:
		a.addTransfer(b, ev)
	default:
		return fmt.Errorf("unsupported event kind %q", ev.Kind)
	}
	return nil
}

func (a *Aggregator) addTransfer(b *dayBucket, ev *domain.TokenEvent) {
	fromRole, toRole := a.role(ev.From), a.role(ev.To)
	if fromRole == domain.RoleZero || toRole == domain.RoleZero {
		a.skipped++
		return
	}
	if a.isFunding(ev) {
		a.fundingSkipped = true
		a.skipped++
		return
	}

	a.ledger.Apply(ev.From, ev.To, ev.Amount)

	if category, ok := domain.Categorize(fromRole, toRole); ok {
		b.volume = b.volume.Add(ev.Amount)
		b.flows[category] = b.flows[category].Add(ev.Amount)
	}
	if !fromRole.Privileged() {
		b.senders[ev.From] = struct{}{}
		b.wallets[ev.From] = struct{}{}
	}
	if !toRole.Privileged() {
		b.wallets[ev.To] = struct{}{}
	}
}

func (a *Aggregator) isFunding(ev *domain.TokenEvent) bool {
	return !a.fundingSkipped &&
		a.funding != (common.Address{}) &&
		ev.From == a.funding &&
		ev.To == a.treasury
}

// AdvanceTo closes the open bucket if day is later, forward-filling any
// idle days in between, and opens day. Going back in time is an error.
func (a *Aggregator) AdvanceTo(day string) error {
	if a.open == nil {
		a.open = newBucket(day)
		return nil
	}
	if day == a.open.day {
		return nil
	}
	if day < a.open.day {
		return fmt.Errorf("event day %s precedes open day %s", day, a.open.day)
	}

	holders := int64(a.ledger.HolderCount())
	a.closed = append(a.closed, a.open.record(holders))

	idle, err := domain.DaysBetween(a.open.day, day)
	if err != nil {
		return err
	}
	for _, d := range idle {
		a.closed = append(a.closed, newBucket(d).record(holders))
	}

	a.open = newBucket(day)
	return nil
}

// Records returns every touched day, the open one last, ordered by day.
func (a *Aggregator) Records() []*domain.DailyMetrics {
	out := make([]*domain.DailyMetrics, 0, len(a.closed)+1)
	out = append(out, a.closed...)
	if a.open != nil {
		out = append(out, a.open.record(int64(a.ledger.HolderCount())))
	}
	return out
}

// OpenDay snapshots the open bucket for the next run.
func (a *Aggregator) OpenDay() *state.OpenDay {
	doc := &state.OpenDay{FundingSkipped: a.fundingSkipped}
	if a.open == nil {
		return doc
	}
	b := a.open
	doc.Day = b.day
	doc.Volume = state.Amount(b.volume)
	doc.CircToUser = state.Amount(b.flows[domain.CategoryCircToUser])
	doc.UserToUser = state.Amount(b.flows[domain.CategoryUserToUser])
	doc.UserToCirc = state.Amount(b.flows[domain.CategoryUserToCirc])
	doc.CircToTres = state.Amount(b.flows[domain.CategoryCircToTres])
	doc.UserToTres = state.Amount(b.flows[domain.CategoryUserToTres])
	doc.Minted = state.Amount(b.minted)
	doc.Burned = state.Amount(b.burned)
	doc.Contraction = state.Amount(b.contraction)
	doc.HolderCount = int64(a.ledger.HolderCount())
	doc.Senders = addressList(b.senders)
	doc.Wallets = addressList(b.wallets)
	return doc
}

func bucketFromState(doc *state.OpenDay) (*dayBucket, error) {
	if _, err := domain.ParseDay(doc.Day); err != nil {
		return nil, fmt.Errorf("open day: %w", err)
	}
	b := newBucket(doc.Day)
	b.volume = doc.Volume.Decimal()
	b.flows[domain.CategoryCircToUser] = doc.CircToUser.Decimal()
	b.flows[domain.CategoryUserToUser] = doc.UserToUser.Decimal()
	b.flows[domain.CategoryUserToCirc] = doc.UserToCirc.Decimal()
	b.flows[domain.CategoryCircToTres] = doc.CircToTres.Decimal()
	b.flows[domain.CategoryUserToTres] = doc.UserToTres.Decimal()
	b.minted = doc.Minted.Decimal()
	b.burned = doc.Burned.Decimal()
	b.contraction = doc.Contraction.Decimal()

	for _, s := range doc.Senders {
		if !common.IsHexAddress(s) {
			return nil, fmt.Errorf("open day: invalid sender %q", s)
		}
		b.senders[common.HexToAddress(s)] = struct{}{}
	}
	for _, w := range doc.Wallets {
		if !common.IsHexAddress(w) {
			return nil, fmt.Errorf("open day: invalid wallet %q", w)
		}
		b.wallets[common.HexToAddress(w)] = struct{}{}
	}
	return b, nil
}

func addressList(set map[common.Address]struct{}) []string {
	addrs := make([]common.Address, 0, len(set))
	for addr := range set {
		addrs = append(addrs, addr)
	}
	sort.Slice(addrs, func(i, j int) bool {
		return bytes.Compare(addrs[i][:], addrs[j][:]) < 0
	})
	out := make([]string, len(addrs))
	for i, addr := range addrs {
		out[i] = strings.ToLower(addr.Hex())
	}
	return out
}
