package ingestion

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"supply-controller/internal/domain"
	"supply-controller/internal/ledger"
)

var (
	issuer   = common.HexToAddress("0x1000000000000000000000000000000000000001")
	treasury = common.HexToAddress("0x2000000000000000000000000000000000000002")
	funding  = common.HexToAddress("0x3000000000000000000000000000000000000003")
	alice    = common.HexToAddress("0xa000000000000000000000000000000000000000")
	bob      = common.HexToAddress("0xb000000000000000000000000000000000000000")
)

func dayTime(day string) time.Time {
	t, err := domain.ParseDay(day)
	if err != nil {
		panic(err)
	}
	return t.Add(12 * time.Hour)
}

func transfer(day string, from, to common.Address, amount int64) *domain.TokenEvent {
	return &domain.TokenEvent{
		Kind:      domain.EventTransfer,
		Timestamp: dayTime(day),
		From:      from,
		To:        to,
		Amount:    decimal.NewFromInt(amount),
	}
}

func supplyEvent(day string, kind domain.EventKind, amount int64) *domain.TokenEvent {
	return &domain.TokenEvent{Kind: kind, Timestamp: dayTime(day), Amount: decimal.NewFromInt(amount)}
}

func newTestAggregator(t *testing.T) *Aggregator {
	t.Helper()
	agg, err := NewAggregator(AggregatorOptions{Issuer: issuer, Treasury: treasury, Funding: funding})
	require.NoError(t, err)
	return agg
}

func addAll(t *testing.T, agg *Aggregator, events ...*domain.TokenEvent) {
	t.Helper()
	for _, ev := range events {
		require.NoError(t, agg.Add(ev))
	}
}

func TestAggregator_Categories(t *testing.T) {
	agg := newTestAggregator(t)
	day := "2024-03-01"

	addAll(t, agg,
		transfer(day, issuer, alice, 100),
		transfer(day, alice, bob, 30),
		transfer(day, bob, issuer, 10),
		transfer(day, issuer, treasury, 5),
		transfer(day, alice, treasury, 7),
		transfer(day, treasury, alice, 3),
		transfer(day, common.Address{}, alice, 50),
		transfer(day, bob, common.Address{}, 1),
		supplyEvent(day, domain.EventMinted, 1000),
		supplyEvent(day, domain.EventBurned, 2),
		supplyEvent(day, domain.EventContraction, 4),
	)

	records := agg.Records()
	require.Len(t, records, 1)
	r := records[0]

	assert.Equal(t, day, r.Day)
	assert.Equal(t, 152.0, r.Volume)
	assert.Equal(t, 100.0, r.CircToUser)
	assert.Equal(t, 30.0, r.UserToUser)
	assert.Equal(t, 10.0, r.UserToCirc)
	assert.Equal(t, 5.0, r.CircToTres)
	assert.Equal(t, 7.0, r.UserToTres)
	assert.Equal(t, 1000.0, r.Minted)
	assert.Equal(t, 2.0, r.Burned)
	assert.Equal(t, 4.0, r.CirculationContraction)
	assert.Equal(t, int64(2), r.UniqueSenders)
	assert.Equal(t, int64(2), r.ActiveWallets)
	assert.Equal(t, int64(2), r.HolderCount)

	assert.Equal(t, "66", agg.Ledger().Balance(alice).String())
	assert.Equal(t, "20", agg.Ledger().Balance(bob).String())
	assert.Equal(t, 2, agg.SkippedTransfers(), "zero-address transfers move nothing")
}

func TestAggregator_ConservationWithoutSupplyEvents(t *testing.T) {
	agg := newTestAggregator(t)
	before := agg.Ledger().Sum()

	addAll(t, agg,
		transfer("2024-03-01", issuer, alice, 100),
		transfer("2024-03-01", alice, bob, 60),
		transfer("2024-03-01", bob, treasury, 10),
		transfer("2024-03-01", treasury, issuer, 10),
	)
	assert.True(t, agg.Ledger().Sum().Equal(before))
}

func TestAggregator_ForwardFillsIdleDays(t *testing.T) {
	agg := newTestAggregator(t)

	addAll(t, agg,
		transfer("2024-03-01", issuer, alice, 10),
		transfer("2024-03-01", issuer, bob, 10),
		transfer("2024-03-04", alice, bob, 10),
	)

	records := agg.Records()
	require.Len(t, records, 4)
	days := []string{records[0].Day, records[1].Day, records[2].Day, records[3].Day}
	assert.Equal(t, []string{"2024-03-01", "2024-03-02", "2024-03-03", "2024-03-04"}, days)

	for _, idle := range records[1:3] {
		assert.Equal(t, records[0].HolderCount, idle.HolderCount)
		assert.Zero(t, idle.Volume)
		assert.Zero(t, idle.UniqueSenders)
		assert.Zero(t, idle.ActiveWallets)
	}
	assert.Equal(t, int64(2), records[0].HolderCount)
	assert.Equal(t, int64(1), records[3].HolderCount)
}

func TestAggregator_AdvanceToHeadDay(t *testing.T) {
	agg := newTestAggregator(t)
	addAll(t, agg, transfer("2024-03-01", issuer, alice, 10))

	require.NoError(t, agg.AdvanceTo("2024-03-03"))
	records := agg.Records()
	require.Len(t, records, 3)
	assert.Equal(t, "2024-03-03", records[2].Day)
	assert.Equal(t, int64(1), records[2].HolderCount)
}

func TestAggregator_RejectsEarlierDay(t *testing.T) {
	agg := newTestAggregator(t)
	addAll(t, agg, transfer("2024-03-02", issuer, alice, 10))

	assert.Error(t, agg.Add(transfer("2024-03-01", issuer, alice, 10)))
}

func TestAggregator_FundingSkippedOnce(t *testing.T) {
	agg := newTestAggregator(t)
	addAll(t, agg,
		transfer("2024-03-01", funding, treasury, 500),
		transfer("2024-03-01", funding, treasury, 5),
	)

	r := agg.Records()[0]
	assert.Equal(t, 5.0, r.UserToTres)
	assert.Equal(t, 5.0, r.Volume)
	assert.True(t, agg.OpenDay().FundingSkipped)
}

func TestAggregator_OpenDayCarryOver(t *testing.T) {
	first := []*domain.TokenEvent{
		transfer("2024-03-01", issuer, alice, 100),
		transfer("2024-03-01", alice, bob, 40),
	}
	second := []*domain.TokenEvent{
		transfer("2024-03-01", bob, alice, 15),
		supplyEvent("2024-03-01", domain.EventMinted, 9),
		transfer("2024-03-02", alice, treasury, 1),
	}

	whole := newTestAggregator(t)
	addAll(t, whole, append(append([]*domain.TokenEvent{}, first...), second...)...)

	part := newTestAggregator(t)
	addAll(t, part, first...)
	open := part.OpenDay()
	assert.Equal(t, "2024-03-01", open.Day)
	assert.Equal(t, []string{
		"0xa000000000000000000000000000000000000000",
		"0xb000000000000000000000000000000000000000",
	}, open.Wallets)

	resumed, err := NewAggregator(AggregatorOptions{
		Issuer:   issuer,
		Treasury: treasury,
		Funding:  funding,
		Ledger:   ledger.Load(part.Ledger().Balances(), issuer, treasury),
		OpenDay:  open,
	})
	require.NoError(t, err)
	addAll(t, resumed, second...)

	assert.Equal(t, whole.Records(), resumed.Records())
}
