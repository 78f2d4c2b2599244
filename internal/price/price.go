// Package price implements the interned Price value used as book-side keys
// and tradable-entry prices: a LIMIT value in integer cents, or the MARKET
// sentinel. Two LIMIT prices carrying the same cent value are the same
// *Price (pointer-equal), the way the teacher interns small enum-like
// values — here extended to hashable price keys for the book side's price
// levels.
package price

import (
	"fmt"
	"sync"

	"ironbook/internal/errs"
)

type kind uint8

const (
	kindLimit kind = iota
	kindMarket
)

// Price is either a LIMIT value (cents) or the MARKET sentinel. Obtain
// instances only through Limit and Market; never construct a Price literal
// directly, or interning and pointer-equality break.
type Price struct {
	k     kind
	cents int64
}

var (
	internMu sync.Mutex
	interned = make(map[int64]*Price)
	marketP  = &Price{k: kindMarket}
)

// Limit returns the interned LIMIT instance for cents. Negative values are
// legal; they arise from subtraction (e.g. a quote spread gone inverted
// before validation rejects it).
func Limit(cents int64) *Price {
	internMu.Lock()
	defer internMu.Unlock()
	if p, ok := interned[cents]; ok {
		return p
	}
	p := &Price{k: kindLimit, cents: cents}
	interned[cents] = p
	return p
}

// Market returns the process-wide MARKET sentinel.
func Market() *Price {
	return marketP
}

// Zero is the well-defined "no side" price substituted into current-market
// snapshots (spec: "the zero-price substitution is mandatory").
func Zero() *Price {
	return Limit(0)
}

// IsMarket reports whether p is the MARKET sentinel.
func (p *Price) IsMarket() bool {
	return p.k == kindMarket
}

// IsNegative reports whether a LIMIT price is below zero. Always false for
// MARKET.
func (p *Price) IsNegative() bool {
	return p.k == kindLimit && p.cents < 0
}

// Cents returns the raw cent value. Only meaningful for LIMIT prices;
// callers must check IsMarket first.
func (p *Price) Cents() int64 {
	return p.cents
}

// Add returns p+other. Fails if either operand is MARKET.
func (p *Price) Add(other *Price) (*Price, error) {
	if p.IsMarket() || other.IsMarket() {
		return nil, fmt.Errorf("%w: cannot add MARKET", errs.ErrInvalidPriceOperation)
	}
	return Limit(p.cents + other.cents), nil
}

// Sub returns p-other. Fails if either operand is MARKET.
func (p *Price) Sub(other *Price) (*Price, error) {
	if p.IsMarket() || other.IsMarket() {
		return nil, fmt.Errorf("%w: cannot subtract MARKET", errs.ErrInvalidPriceOperation)
	}
	return Limit(p.cents - other.cents), nil
}

// Mul returns p*n. Fails if p is MARKET.
func (p *Price) Mul(n int32) (*Price, error) {
	if p.IsMarket() {
		return nil, fmt.Errorf("%w: cannot multiply MARKET", errs.ErrInvalidPriceOperation)
	}
	return Limit(p.cents * int64(n)), nil
}

// Lt, Le, Gt, Ge, Eq all return false (never error) when either side is
// MARKET, matching spec: "comparisons ... return false when either side is
// MARKET."
func (p *Price) Lt(other *Price) bool {
	if p.IsMarket() || other.IsMarket() {
		return false
	}
	return p.cents < other.cents
}

func (p *Price) Le(other *Price) bool {
	if p.IsMarket() || other.IsMarket() {
		return false
	}
	return p.cents <= other.cents
}

func (p *Price) Gt(other *Price) bool {
	if p.IsMarket() || other.IsMarket() {
		return false
	}
	return p.cents > other.cents
}

func (p *Price) Ge(other *Price) bool {
	if p.IsMarket() || other.IsMarket() {
		return false
	}
	return p.cents >= other.cents
}

func (p *Price) Eq(other *Price) bool {
	if p.IsMarket() || other.IsMarket() {
		return false
	}
	if p == other {
		return true
	}
	return p.cents == other.cents
}

// CompareTo is defined only among LIMIT values: -1, 0, 1. Fails on MARKET.
func (p *Price) CompareTo(other *Price) (int, error) {
	if p.IsMarket() || other.IsMarket() {
		return 0, fmt.Errorf("%w: cannot order MARKET", errs.ErrInvalidPriceOperation)
	}
	switch {
	case p.cents < other.cents:
		return -1, nil
	case p.cents > other.cents:
		return 1, nil
	default:
		return 0, nil
	}
}

// String renders MARKET as "MKT" and LIMIT as locale-independent currency
// form "$d.dd" ("$-d.dd" when negative).
func (p *Price) String() string {
	if p.IsMarket() {
		return "MKT"
	}
	cents := p.cents
	neg := cents < 0
	if neg {
		cents = -cents
	}
	sign := ""
	if neg {
		sign = "-"
	}
	return fmt.Sprintf("$%s%d.%02d", sign, cents/100, cents%100)
}
