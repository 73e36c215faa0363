package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

var t0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func TestAccrue(t *testing.T) {
	// floor(1_000_000_000 * 500 * 3600 / (10_000 * 31_536_000)) = 5707
	d := NewUserDeposit("alice", "sk", t0)
	d.Amount = decimal.NewFromInt(1_000_000_000)

	accrued := d.Accrue(500, t0.Add(time.Hour))
	assert.True(t, accrued.Equal(decimal.NewFromInt(5707)), "got %s", accrued)
	assert.True(t, d.YieldEarned.Equal(decimal.NewFromInt(5707)))
	assert.Equal(t, t0.Add(time.Hour), d.LastAccrualTime)
}

func TestAccrueFloorsDust(t *testing.T) {
	// 1 base unit at 1 bps over 1 second accrues nothing
	d := NewUserDeposit("alice", "sk", t0)
	d.Amount = decimal.NewFromInt(1)

	accrued := d.Accrue(1, t0.Add(time.Second))
	assert.True(t, accrued.IsZero())
	assert.True(t, d.YieldEarned.IsZero())
}

func TestAccrueNoElapsed(t *testing.T) {
	d := NewUserDeposit("alice", "sk", t0)
	d.Amount = decimal.NewFromInt(1_000_000_000)

	assert.True(t, d.Accrue(500, t0).IsZero())
	assert.True(t, d.Accrue(500, t0.Add(-time.Hour)).IsZero(), "clock going backwards accrues nothing")
	assert.Equal(t, t0, d.LastAccrualTime)
}

func TestAccrueIdempotentAtSameInstant(t *testing.T) {
	d := NewUserDeposit("alice", "sk", t0)
	d.Amount = decimal.NewFromInt(1_000_000_000)

	now := t0.Add(time.Hour)
	first := d.Accrue(500, now)
	second := d.Accrue(500, now)
	assert.False(t, first.IsZero())
	assert.True(t, second.IsZero(), "re-settling at the same instant must be a no-op")
	assert.True(t, d.YieldEarned.Equal(first))
}

func TestAccrueZeroPrincipalAdvancesClock(t *testing.T) {
	d := NewUserDeposit("alice", "sk", t0)

	accrued := d.Accrue(500, t0.Add(time.Hour))
	assert.True(t, accrued.IsZero())
	assert.Equal(t, t0.Add(time.Hour), d.LastAccrualTime,
		"settlement clock advances even when nothing accrues")
}

func TestAccrueZeroAPY(t *testing.T) {
	d := NewUserDeposit("alice", "sk", t0)
	d.Amount = decimal.NewFromInt(1_000_000_000)

	assert.True(t, d.Accrue(0, t0.Add(24*time.Hour)).IsZero())
}

func TestUnlocked(t *testing.T) {
	d := NewUserDeposit("alice", "sk", t0)

	assert.False(t, d.Unlocked(t0))
	assert.False(t, d.Unlocked(t0.Add(MinHoldDuration-time.Second)))
	assert.True(t, d.Unlocked(t0.Add(MinHoldDuration)))
	assert.True(t, d.Unlocked(t0.Add(365*24*time.Hour)))
}

func TestNewStrategyValidatesAPY(t *testing.T) {
	_, err := NewStrategy("gov", "usdc", 1, -1, "n", "")
	assert.ErrorIs(t, err, ErrInvalidAPY)

	_, err = NewStrategy("gov", "usdc", 1, MaxRewardAPYBps+1, "n", "")
	assert.ErrorIs(t, err, ErrInvalidAPY)

	s, err := NewStrategy("gov", "usdc", 1, MaxRewardAPYBps, "n", "")
	assert.NoError(t, err)
	assert.True(t, s.Active)
	assert.Equal(t, StrategyKey("usdc", 1), s.StrategyKey)

	zero, err := NewStrategy("gov", "usdc", 2, 0, "n", "")
	assert.NoError(t, err, "zero APY is a valid strategy")
	assert.Equal(t, int64(0), zero.RewardAPYBps)
}

func TestStrategyToggle(t *testing.T) {
	s, _ := NewStrategy("gov", "usdc", 1, 500, "n", "")

	assert.ErrorIs(t, s.Toggle("mallory"), ErrUnauthorized)
	assert.True(t, s.Active)

	assert.NoError(t, s.Toggle("gov"))
	assert.False(t, s.Active)
	assert.NoError(t, s.Toggle("gov"))
	assert.True(t, s.Active)
}

func TestDerivedAddressesDiffer(t *testing.T) {
	key := StrategyKey("usdc", 1)
	vault := VaultAddress("usdc", 1)
	ytMint := YieldTokenMintAddress("usdc", 1)

	assert.NotEqual(t, key, vault)
	assert.NotEqual(t, key, ytMint)
	assert.NotEqual(t, vault, ytMint)
}
