// Package tradable implements the order/quote-side entry that rests in a
// book.Side: immutable identity plus mutable accounting, per spec §4.2. The
// shape follows the teacher's internal/common/order.go (identity fields,
// String() layout); mutation methods enforce the invariants spec §3 demands
// at every observable moment.
package tradable

import (
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"

	"ironbook/internal/errs"
	"ironbook/internal/price"
)

// Side is the trading direction of an order or a quote-side.
type Side int

const (
	Buy Side = iota
	Sell
)

func (s Side) String() string {
	if s == Buy {
		return "Buy"
	}
	return "Sell"
}

// Kind distinguishes a plain order from one leg of a two-sided quote.
// Matching only cares about this tag to decide cancel-by-id (Order) vs.
// cancel-by-user (QuoteSide), per spec §9.
type Kind int

const (
	KindOrder Kind = iota
	KindQuoteSide
)

// namespaceID is ironbook's fixed SHA1-UUID namespace; entry ids are
// deterministic functions of (user, product, price, sequence), never random,
// per spec §3.
var namespaceID = uuid.MustParse("6f6e6465-6b61-746e-6f72-697261626f6b")

var sequence uint64

// NewID synthesizes a deterministic id from user, product, price and an
// internal monotonic sequence number, using uuid.NewSHA1 the way the
// teacher's internal/net/messages.go reaches for uuid.New() — except
// deterministic, as spec §3 requires.
func NewID(user, product string, p *price.Price) string {
	n := atomic.AddUint64(&sequence, 1)
	data := fmt.Sprintf("%s\x00%s\x00%s\x00%d", user, product, p.String(), n)
	return uuid.NewSHA1(namespaceID, []byte(data)).String()
}

// Entry is an order or one side of a quote resting in (or having rested in)
// a book.Side.
type Entry struct {
	id              string
	user            string
	product         string
	side            Side
	kind            Kind
	price           *price.Price
	originalVolume  uint64
	remainingVolume uint64
	cancelledVolume uint64
}

// New constructs an Entry with id synthesized via NewID. originalVolume
// must be > 0.
func New(user, product string, side Side, kind Kind, p *price.Price, originalVolume uint64) (*Entry, error) {
	if user == "" || product == "" || p == nil {
		return nil, fmt.Errorf("%w: user/product/price required", errs.ErrInvalidData)
	}
	if originalVolume == 0 {
		return nil, fmt.Errorf("%w: original_volume must be > 0", errs.ErrInvalidData)
	}
	return &Entry{
		id:              NewID(user, product, p),
		user:            user,
		product:         product,
		side:            side,
		kind:            kind,
		price:           p,
		originalVolume:  originalVolume,
		remainingVolume: originalVolume,
	}, nil
}

func (e *Entry) ID() string             { return e.id }
func (e *Entry) User() string           { return e.user }
func (e *Entry) Product() string        { return e.product }
func (e *Entry) Side() Side             { return e.side }
func (e *Entry) IsQuoteSide() bool      { return e.kind == KindQuoteSide }
func (e *Entry) Price() *price.Price    { return e.price }
func (e *Entry) OriginalVolume() uint64 { return e.originalVolume }
func (e *Entry) RemainingVolume() uint64 { return e.remainingVolume }
func (e *Entry) CancelledVolume() uint64 { return e.cancelledVolume }

// TradedVolume is original - remaining - cancelled, per spec §3's invariant.
func (e *Entry) TradedVolume() uint64 {
	return e.originalVolume - e.remainingVolume - e.cancelledVolume
}

// SetRemaining fails if v<0 (impossible for uint64, so instead: v+cancelled
// would underflow the invariant) or v+cancelled > original.
func (e *Entry) SetRemaining(v uint64) error {
	if v+e.cancelledVolume > e.originalVolume {
		return fmt.Errorf("%w: remaining %d + cancelled %d exceeds original %d", errs.ErrInvalidData, v, e.cancelledVolume, e.originalVolume)
	}
	e.remainingVolume = v
	return nil
}

// AddCancelled adds addend shares to the cancelled total, clamped against
// the §3 invariant (remaining+cancelled+traded == original): it fails if
// that would push cancelled+remaining past original.
func (e *Entry) AddCancelled(addend uint64) error {
	newCancelled := e.cancelledVolume + addend
	if newCancelled+e.remainingVolume > e.originalVolume {
		return fmt.Errorf("%w: cancelled %d + remaining %d exceeds original %d", errs.ErrInvalidData, newCancelled, e.remainingVolume, e.originalVolume)
	}
	e.cancelledVolume = newCancelled
	return nil
}

// String renders the entry for diagnostics, in the register of the
// teacher's common.Order.String().
func (e *Entry) String() string {
	return fmt.Sprintf(
		"Entry[id=%s user=%s product=%s side=%v kind=%d price=%s original=%d remaining=%d cancelled=%d]",
		e.id, e.user, e.product, e.side, e.kind, e.price, e.originalVolume, e.remainingVolume, e.cancelledVolume,
	)
}

// FillKey identifies the counterparty-id-price triple used to merge fills
// across passes of a single aggressor sweep, per spec §4.3.
type FillKey struct {
	User  string
	ID    string
	Price string
}

// Key builds the FillKey for this entry at effective price p.
func (e *Entry) Key(effective *price.Price) FillKey {
	return FillKey{User: e.user, ID: e.id, Price: effective.String()}
}

