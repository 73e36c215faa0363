package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newListing(t *testing.T) *Listing {
	t.Helper()
	l, err := NewListing("alice", "yt-mint", "usdc", decimal.NewFromInt(10), decimal.NewFromInt(500), t0)
	require.NoError(t, err)
	return l
}

func TestNewListingValidation(t *testing.T) {
	_, err := NewListing("alice", "yt-mint", "usdc", decimal.Zero, decimal.NewFromInt(1), t0)
	assert.ErrorIs(t, err, ErrZeroAmount)

	_, err = NewListing("alice", "yt-mint", "usdc", decimal.NewFromInt(1), decimal.NewFromInt(-5), t0)
	assert.ErrorIs(t, err, ErrInvalidPrice)

	l := newListing(t)
	assert.Equal(t, StatusActive, l.Status)
	assert.Equal(t, ListingKey("alice"), l.ListingKey)
	assert.Equal(t, EscrowAddress("alice"), l.EscrowAddress)
}

func TestCanFillOrdering(t *testing.T) {
	l := newListing(t)

	// expired and self-buy at once: expiry wins
	err := l.CanFill("alice", t0.Add(ListingDuration))
	assert.ErrorIs(t, err, ErrListingExpired)

	assert.ErrorIs(t, l.CanFill("alice", t0.Add(time.Hour)), ErrCannotBuyOwnListing)
	assert.NoError(t, l.CanFill("bob", t0.Add(ListingDuration-time.Second)))

	l.Fill()
	assert.ErrorIs(t, l.CanFill("bob", t0.Add(time.Hour)), ErrListingNotActive)
}

func TestCancel(t *testing.T) {
	l := newListing(t)

	assert.ErrorIs(t, l.Cancel("bob"), ErrUnauthorized)
	assert.Equal(t, StatusActive, l.Status)

	require.NoError(t, l.Cancel("alice"))
	assert.Equal(t, StatusCancelled, l.Status)
	assert.ErrorIs(t, l.Cancel("alice"), ErrListingNotActive)
}

func TestExpired(t *testing.T) {
	l := newListing(t)

	assert.False(t, l.Expired(t0))
	assert.False(t, l.Expired(t0.Add(ListingDuration-time.Second)))
	assert.True(t, l.Expired(t0.Add(ListingDuration)))
}
