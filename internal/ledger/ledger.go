// Package ledger tracks running token balances and the resulting holder set.
package ledger

import (
	"bytes"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Ledger maps address to signed accumulated balance (whole tokens).
//
// Every non-zero address is tracked, privileged ones included, so that
// each applied transfer nets to exactly zero. Privileged addresses never
// count as holders. The holder count is maintained incrementally.
type Ledger struct {
	balances   map[common.Address]decimal.Decimal
	privileged map[common.Address]struct{}
	holders    int
}

// New creates an empty ledger.
func New(privileged ...common.Address) *Ledger {
	return Load(nil, privileged...)
}

// Load rebuilds a ledger from persisted balances.
func Load(balances map[common.Address]decimal.Decimal, privileged ...common.Address) *Ledger {
	l := &Ledger{
		balances:   make(map[common.Address]decimal.Decimal, len(balances)),
		privileged: make(map[common.Address]struct{}, len(privileged)),
	}
	for _, p := range privileged {
		l.privileged[p] = struct{}{}
	}
	for addr, bal := range balances {
		if addr == (common.Address{}) || bal.IsZero() {
			continue
		}
		l.balances[addr] = bal
		if l.isHolder(addr, bal) {
			l.holders++
		}
	}
	return l
}

// IsPrivileged reports whether addr is an issuer or treasury address.
func (l *Ledger) IsPrivileged(addr common.Address) bool {
	_, ok := l.privileged[addr]
	return ok
}

// Apply moves value from one address to another. Transfers touching the
// zero address are mint/burn and are not applied; Apply reports false.
func (l *Ledger) Apply(from, to common.Address, value decimal.Decimal) bool {
	if from == (common.Address{}) || to == (common.Address{}) {
		return false
	}
	l.adjust(from, value.Neg())
	l.adjust(to, value)
	return true
}

func (l *Ledger) adjust(addr common.Address, delta decimal.Decimal) {
	before := l.balances[addr]
	after := before.Add(delta)

	wasHolder := l.isHolder(addr, before)
	isHolder := l.isHolder(addr, after)
	switch {
	case !wasHolder && isHolder:
		l.holders++
	case wasHolder && !isHolder:
		l.holders--
	}

	if after.IsZero() {
		delete(l.balances, addr)
		return
	}
	l.balances[addr] = after
}

func (l *Ledger) isHolder(addr common.Address, bal decimal.Decimal) bool {
	return bal.IsPositive() && !l.IsPrivileged(addr)
}

// Balance returns the balance of addr.
func (l *Ledger) Balance(addr common.Address) decimal.Decimal {
	return l.balances[addr]
}

// HolderCount returns the number of non-privileged addresses with a
// strictly positive balance.
func (l *Ledger) HolderCount() int {
	return l.holders
}

// Holders returns the current holder set, sorted by address.
func (l *Ledger) Holders() []common.Address {
	out := make([]common.Address, 0, l.holders)
	for addr, bal := range l.balances {
		if l.isHolder(addr, bal) {
			out = append(out, addr)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i][:], out[j][:]) < 0
	})
	return out
}

// Balances returns a copy of all non-zero balances.
func (l *Ledger) Balances() map[common.Address]decimal.Decimal {
	out := make(map[common.Address]decimal.Decimal, len(l.balances))
	for addr, bal := range l.balances {
		out[addr] = bal
	}
	return out
}

// Sum returns the sum of all tracked balances.
func (l *Ledger) Sum() decimal.Decimal {
	sum := decimal.Zero
	for _, bal := range l.balances {
		sum = sum.Add(bal)
	}
	return sum
}
