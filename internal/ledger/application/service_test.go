package application

import (
	"context"
	"log/slog"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wyfcoding/yieldmarket/internal/ledger/domain"
)

type fakeTx struct{}

func (fakeTx) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type fakeMintRepo struct {
	byAddress map[string]*domain.Mint
}

func (r *fakeMintRepo) Save(_ context.Context, m *domain.Mint) error {
	r.byAddress[m.Address] = m
	return nil
}

func (r *fakeMintRepo) GetByAddress(_ context.Context, address string) (*domain.Mint, error) {
	m, ok := r.byAddress[address]
	if !ok {
		return nil, domain.ErrMintNotFound
	}
	return m, nil
}

type fakeAccountRepo struct {
	byAddress map[string]*domain.TokenAccount
}

func (r *fakeAccountRepo) Save(_ context.Context, a *domain.TokenAccount) error {
	r.byAddress[a.Address] = a
	return nil
}

func (r *fakeAccountRepo) GetByAddress(_ context.Context, address string) (*domain.TokenAccount, error) {
	a, ok := r.byAddress[address]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	return a, nil
}

func (r *fakeAccountRepo) GetOrCreate(_ context.Context, mint, owner string) (*domain.TokenAccount, error) {
	address := domain.DeriveAddress("token", mint, owner)
	if a, ok := r.byAddress[address]; ok {
		return a, nil
	}
	a := domain.NewTokenAccount(mint, owner)
	r.byAddress[a.Address] = a
	return a, nil
}

func newService() (*LedgerService, *fakeMintRepo, *fakeAccountRepo) {
	mints := &fakeMintRepo{byAddress: map[string]*domain.Mint{}}
	accounts := &fakeAccountRepo{byAddress: map[string]*domain.TokenAccount{}}
	return NewLedgerService(mints, accounts, fakeTx{}, slog.Default()), mints, accounts
}

func TestRegisterMintIdempotent(t *testing.T) {
	svc, _, _ := newService()
	ctx := context.Background()

	first, err := svc.RegisterMint(ctx, RegisterMintCmd{Address: "usdc", Symbol: "USDC", Decimals: 6, Authority: "gov"})
	require.NoError(t, err)

	again, err := svc.RegisterMint(ctx, RegisterMintCmd{Address: "usdc", Symbol: "OTHER", Decimals: 9, Authority: "mallory"})
	require.NoError(t, err)
	assert.Equal(t, first, again, "re-registration returns the existing mint untouched")
	assert.Equal(t, "USDC", again.Symbol)
}

func TestAdminMint(t *testing.T) {
	svc, mints, _ := newService()
	ctx := context.Background()

	_, err := svc.RegisterMint(ctx, RegisterMintCmd{Address: "usdc", Symbol: "USDC", Decimals: 6, Authority: "gov"})
	require.NoError(t, err)

	_, err = svc.AdminMint(ctx, "mallory", "usdc", "alice", decimal.NewFromInt(100))
	assert.ErrorIs(t, err, domain.ErrUnauthorizedMint)

	account, err := svc.AdminMint(ctx, "gov", "usdc", "alice", decimal.NewFromInt(100))
	require.NoError(t, err)
	assert.True(t, account.Balance.Equal(decimal.NewFromInt(100)))
	assert.True(t, mints.byAddress["usdc"].Supply.Equal(decimal.NewFromInt(100)))

	balance, err := svc.GetBalance(ctx, "usdc", "alice")
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.NewFromInt(100)))

	// unknown holders read as zero
	balance, err = svc.GetBalance(ctx, "usdc", "bob")
	require.NoError(t, err)
	assert.True(t, balance.IsZero())
}
