package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveAddress(t *testing.T) {
	a := DeriveAddress("vault", "usdc-mint", "1")
	b := DeriveAddress("vault", "usdc-mint", "1")
	assert.Equal(t, a, b, "same seeds must derive the same address")
	assert.Len(t, a, 64)

	c := DeriveAddress("vault", "usdc-mint", "2")
	assert.NotEqual(t, a, c, "different seeds must derive different addresses")

	d := DeriveAddress("escrow", "usdc-mint", "1")
	assert.NotEqual(t, a, d, "prefix is part of the derivation")
}

func TestTransfer(t *testing.T) {
	from := &TokenAccount{Address: "a", Mint: "usdc", Owner: "alice", Balance: decimal.NewFromInt(100)}
	to := &TokenAccount{Address: "b", Mint: "usdc", Owner: "bob", Balance: decimal.NewFromInt(5)}

	require.NoError(t, Transfer(from, to, decimal.NewFromInt(40)))
	assert.True(t, from.Balance.Equal(decimal.NewFromInt(60)))
	assert.True(t, to.Balance.Equal(decimal.NewFromInt(45)))

	err := Transfer(from, to, decimal.NewFromInt(61))
	assert.ErrorIs(t, err, ErrInsufficientFunds)
	assert.True(t, from.Balance.Equal(decimal.NewFromInt(60)), "failed transfer must not mutate balances")

	assert.ErrorIs(t, Transfer(from, to, decimal.Zero), ErrZeroAmount)
	assert.ErrorIs(t, Transfer(from, to, decimal.NewFromInt(-1)), ErrZeroAmount)

	other := &TokenAccount{Address: "c", Mint: "sol", Owner: "bob", Balance: decimal.Zero}
	assert.ErrorIs(t, Transfer(from, other, decimal.NewFromInt(1)), ErrMintMismatch)
}

func TestMintToAndBurn(t *testing.T) {
	mint := &Mint{Address: "usdc", Symbol: "USDC", Decimals: 6, Supply: decimal.Zero, Authority: "gov"}
	acc := NewTokenAccount("usdc", "alice")

	require.NoError(t, MintTo(mint, acc, decimal.NewFromInt(1000)))
	assert.True(t, mint.Supply.Equal(decimal.NewFromInt(1000)))
	assert.True(t, acc.Balance.Equal(decimal.NewFromInt(1000)))

	require.NoError(t, Burn(mint, acc, decimal.NewFromInt(300)))
	assert.True(t, mint.Supply.Equal(decimal.NewFromInt(700)))
	assert.True(t, acc.Balance.Equal(decimal.NewFromInt(700)))

	assert.ErrorIs(t, Burn(mint, acc, decimal.NewFromInt(701)), ErrInsufficientFunds)

	wrong := NewTokenAccount("sol", "alice")
	assert.ErrorIs(t, MintTo(mint, wrong, decimal.NewFromInt(1)), ErrMintMismatch)
	assert.ErrorIs(t, Burn(mint, wrong, decimal.NewFromInt(1)), ErrMintMismatch)
}

func TestMinimumDepositUnit(t *testing.T) {
	mint := &Mint{Decimals: 6}
	assert.True(t, mint.MinimumDepositUnit().Equal(decimal.NewFromInt(1_000_000)))

	zero := &Mint{Decimals: 0}
	assert.True(t, zero.MinimumDepositUnit().Equal(decimal.NewFromInt(1)))
}

func TestNewTokenAccount(t *testing.T) {
	acc := NewTokenAccount("usdc", "alice")
	assert.Equal(t, DeriveAddress("token", "usdc", "alice"), acc.Address)
	assert.True(t, acc.Balance.IsZero())
}
