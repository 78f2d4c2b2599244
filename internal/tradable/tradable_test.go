package tradable

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"ironbook/internal/price"
)

func TestNewID_DistinctForIdenticalInputs(t *testing.T) {
	// Two entries built from identical (user, product, price) still get
	// distinct ids because NewID folds in a monotonic sequence number.
	e1, err := New("alice", "AAPL", Buy, KindOrder, price.Limit(1000), 10)
	assert.NoError(t, err)
	e2, err := New("alice", "AAPL", Buy, KindOrder, price.Limit(1000), 10)
	assert.NoError(t, err)
	assert.NotEqual(t, e1.ID(), e2.ID())
	assert.NotEmpty(t, e1.ID())
}

func TestNew_ValidatesInputs(t *testing.T) {
	_, err := New("", "AAPL", Buy, KindOrder, price.Limit(1000), 10)
	assert.Error(t, err)

	_, err = New("alice", "", Buy, KindOrder, price.Limit(1000), 10)
	assert.Error(t, err)

	_, err = New("alice", "AAPL", Buy, KindOrder, nil, 10)
	assert.Error(t, err)

	_, err = New("alice", "AAPL", Buy, KindOrder, price.Limit(1000), 0)
	assert.Error(t, err)
}

func TestNew_SeedsAccounting(t *testing.T) {
	e, err := New("alice", "AAPL", Sell, KindQuoteSide, price.Limit(500), 20)
	assert.NoError(t, err)
	assert.Equal(t, uint64(20), e.OriginalVolume())
	assert.Equal(t, uint64(20), e.RemainingVolume())
	assert.Equal(t, uint64(0), e.CancelledVolume())
	assert.Equal(t, uint64(0), e.TradedVolume())
	assert.True(t, e.IsQuoteSide())
	assert.Equal(t, Sell, e.Side())
}

func TestSetRemaining(t *testing.T) {
	e, err := New("alice", "AAPL", Buy, KindOrder, price.Limit(1000), 10)
	assert.NoError(t, err)

	assert.NoError(t, e.SetRemaining(4))
	assert.Equal(t, uint64(4), e.RemainingVolume())
	assert.Equal(t, uint64(6), e.TradedVolume())

	assert.Error(t, e.SetRemaining(11))
}

func TestAddCancelled(t *testing.T) {
	e, err := New("alice", "AAPL", Buy, KindOrder, price.Limit(1000), 10)
	assert.NoError(t, err)
	assert.NoError(t, e.SetRemaining(6))

	assert.NoError(t, e.AddCancelled(4))
	assert.Equal(t, uint64(4), e.CancelledVolume())
	assert.Equal(t, e.OriginalVolume(), e.RemainingVolume()+e.CancelledVolume()+e.TradedVolume())

	assert.Error(t, e.AddCancelled(1), "cancelled+remaining would exceed original")
}

func TestKey(t *testing.T) {
	e, err := New("alice", "AAPL", Buy, KindOrder, price.Limit(1000), 10)
	assert.NoError(t, err)

	k1 := e.Key(price.Limit(995))
	k2 := e.Key(price.Limit(995))
	assert.Equal(t, k1, k2)
	assert.Equal(t, "alice", k1.User)
	assert.Equal(t, e.ID(), k1.ID)
	assert.Equal(t, "$9.95", k1.Price)

	k3 := e.Key(price.Limit(990))
	assert.NotEqual(t, k1, k3)
}
