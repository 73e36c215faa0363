package application

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	ledger "github.com/wyfcoding/yieldmarket/internal/ledger/domain"
	"github.com/wyfcoding/yieldmarket/internal/marketplace/domain"
)

type fakeTx struct{}

func (fakeTx) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type fakeListingRepo struct {
	byKey           map[string]*domain.Listing
	listActiveCalls int
}

func (r *fakeListingRepo) Create(_ context.Context, l *domain.Listing) error {
	if _, ok := r.byKey[l.ListingKey]; ok {
		return domain.ErrDuplicateListing
	}
	l.ID = uint(len(r.byKey) + 1)
	r.byKey[l.ListingKey] = l
	return nil
}

func (r *fakeListingRepo) Save(_ context.Context, l *domain.Listing) error {
	r.byKey[l.ListingKey] = l
	return nil
}

func (r *fakeListingRepo) GetByKey(_ context.Context, key string) (*domain.Listing, error) {
	l, ok := r.byKey[key]
	if !ok {
		return nil, domain.ErrListingNotFound
	}
	return l, nil
}

func (r *fakeListingRepo) ListActive(_ context.Context, limit, offset int) ([]*domain.Listing, int64, error) {
	r.listActiveCalls++
	var out []*domain.Listing
	for _, l := range r.byKey {
		if l.Status == domain.StatusActive {
			out = append(out, l)
		}
	}
	return out, int64(len(out)), nil
}

func (r *fakeListingRepo) CountActive(_ context.Context) (int64, error) {
	var n int64
	for _, l := range r.byKey {
		if l.Status == domain.StatusActive {
			n++
		}
	}
	return n, nil
}

type fakeAccountRepo struct {
	byAddress map[string]*ledger.TokenAccount
}

func (r *fakeAccountRepo) Save(_ context.Context, a *ledger.TokenAccount) error {
	r.byAddress[a.Address] = a
	return nil
}

func (r *fakeAccountRepo) GetByAddress(_ context.Context, address string) (*ledger.TokenAccount, error) {
	a, ok := r.byAddress[address]
	if !ok {
		return nil, ledger.ErrAccountNotFound
	}
	return a, nil
}

func (r *fakeAccountRepo) GetOrCreate(_ context.Context, mint, owner string) (*ledger.TokenAccount, error) {
	address := ledger.DeriveAddress("token", mint, owner)
	if a, ok := r.byAddress[address]; ok {
		return a, nil
	}
	a := ledger.NewTokenAccount(mint, owner)
	r.byAddress[a.Address] = a
	return a, nil
}

type fakePublisher struct {
	events []any
}

func (p *fakePublisher) PublishListingCreated(_ context.Context, e domain.ListingCreatedEvent) error {
	p.events = append(p.events, e)
	return nil
}

func (p *fakePublisher) PublishListingFilled(_ context.Context, e domain.ListingFilledEvent) error {
	p.events = append(p.events, e)
	return nil
}

func (p *fakePublisher) PublishListingCancelled(_ context.Context, e domain.ListingCancelledEvent) error {
	p.events = append(p.events, e)
	return nil
}

type fakeCache struct {
	entries map[string][]byte
}

func (c *fakeCache) GetJSON(_ context.Context, key string, dest interface{}) (bool, error) {
	raw, ok := c.entries[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, dest)
}

func (c *fakeCache) SetJSON(_ context.Context, key string, value interface{}, _ time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.entries[key] = raw
	return nil
}

func (c *fakeCache) Delete(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(c.entries, key)
	}
	return nil
}

var baseTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

const (
	ytMint      = "yt-usdc-mint"
	paymentMint = "usdc-mint"
	seller      = "alice"
	buyer       = "bob"
)

type fixture struct {
	svc       *MarketplaceService
	listings  *fakeListingRepo
	accounts  *fakeAccountRepo
	publisher *fakePublisher
	clock     *time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		listings:  &fakeListingRepo{byKey: map[string]*domain.Listing{}},
		accounts:  &fakeAccountRepo{byAddress: map[string]*ledger.TokenAccount{}},
		publisher: &fakePublisher{},
	}
	clock := baseTime
	f.clock = &clock

	f.svc = NewMarketplaceService(f.listings, f.accounts, f.publisher, fakeTx{}, nil, slog.Default())
	f.svc.now = func() time.Time { return *f.clock }
	return f
}

func (f *fixture) advance(d time.Duration) {
	*f.clock = f.clock.Add(d)
}

func (f *fixture) fund(t *testing.T, mint, owner string, amount int64) {
	t.Helper()
	acc, err := f.accounts.GetOrCreate(context.Background(), mint, owner)
	require.NoError(t, err)
	acc.Balance = acc.Balance.Add(decimal.NewFromInt(amount))
}

func (f *fixture) list(t *testing.T, amount, price int64) *domain.Listing {
	t.Helper()
	listing, err := f.svc.ListYT(context.Background(), ListYTCmd{
		Seller:      seller,
		YTMint:      ytMint,
		PaymentMint: paymentMint,
		Amount:      decimal.NewFromInt(amount),
		Price:       decimal.NewFromInt(price),
	})
	require.NoError(t, err)
	return listing
}

func TestListYT(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fund(t, ytMint, seller, 10)

	listing := f.list(t, 10, 500)
	assert.Equal(t, domain.StatusActive, listing.Status)
	assert.Equal(t, domain.ListingKey(seller), listing.ListingKey)

	escrow, err := f.accounts.GetByAddress(ctx, listing.EscrowAddress)
	require.NoError(t, err)
	assert.True(t, escrow.Balance.Equal(decimal.NewFromInt(10)), "full amount moves into escrow")

	sellerAcc, err := f.accounts.GetOrCreate(ctx, ytMint, seller)
	require.NoError(t, err)
	assert.True(t, sellerAcc.Balance.IsZero())

	require.Len(t, f.publisher.events, 1)
	assert.IsType(t, domain.ListingCreatedEvent{}, f.publisher.events[0])
}

func TestListYTValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.ListYT(ctx, ListYTCmd{Seller: seller, YTMint: ytMint, PaymentMint: paymentMint,
		Amount: decimal.Zero, Price: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, domain.ErrZeroAmount)

	_, err = f.svc.ListYT(ctx, ListYTCmd{Seller: seller, YTMint: ytMint, PaymentMint: paymentMint,
		Amount: decimal.NewFromInt(1), Price: decimal.Zero})
	assert.ErrorIs(t, err, domain.ErrInvalidPrice)

	// seller owns nothing yet
	_, err = f.svc.ListYT(ctx, ListYTCmd{Seller: seller, YTMint: ytMint, PaymentMint: paymentMint,
		Amount: decimal.NewFromInt(1), Price: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, ledger.ErrInsufficientFunds)
}

func TestListYTDuplicateActive(t *testing.T) {
	f := newFixture(t)
	f.fund(t, ytMint, seller, 20)
	f.list(t, 10, 500)

	_, err := f.svc.ListYT(context.Background(), ListYTCmd{
		Seller: seller, YTMint: ytMint, PaymentMint: paymentMint,
		Amount: decimal.NewFromInt(5), Price: decimal.NewFromInt(100),
	})
	assert.ErrorIs(t, err, domain.ErrDuplicateListing)
}

func TestRelistAfterCancel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fund(t, ytMint, seller, 20)
	listing := f.list(t, 10, 500)

	_, err := f.svc.CancelListing(ctx, seller, listing.ListingKey)
	require.NoError(t, err)

	relisted := f.list(t, 7, 300)
	assert.Equal(t, domain.StatusActive, relisted.Status)
	assert.True(t, relisted.Amount.Equal(decimal.NewFromInt(7)))

	escrow, err := f.accounts.GetByAddress(ctx, relisted.EscrowAddress)
	require.NoError(t, err)
	assert.True(t, escrow.Balance.Equal(decimal.NewFromInt(7)))
}

func TestBuyYT(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fund(t, ytMint, seller, 10)
	f.fund(t, paymentMint, buyer, 1000)
	listing := f.list(t, 10, 500)

	filled, err := f.svc.BuyYT(ctx, buyer, listing.ListingKey)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFilled, filled.Status)

	buyerYT, err := f.accounts.GetOrCreate(ctx, ytMint, buyer)
	require.NoError(t, err)
	assert.True(t, buyerYT.Balance.Equal(decimal.NewFromInt(10)))

	buyerPay, err := f.accounts.GetOrCreate(ctx, paymentMint, buyer)
	require.NoError(t, err)
	assert.True(t, buyerPay.Balance.Equal(decimal.NewFromInt(500)))

	sellerPay, err := f.accounts.GetOrCreate(ctx, paymentMint, seller)
	require.NoError(t, err)
	assert.True(t, sellerPay.Balance.Equal(decimal.NewFromInt(500)))

	escrow, err := f.accounts.GetByAddress(ctx, listing.EscrowAddress)
	require.NoError(t, err)
	assert.True(t, escrow.Balance.IsZero(), "escrow drains on fill")

	// a filled listing cannot be bought again
	_, err = f.svc.BuyYT(ctx, buyer, listing.ListingKey)
	assert.ErrorIs(t, err, domain.ErrListingNotActive)
}

func TestBuyYTOwnListing(t *testing.T) {
	f := newFixture(t)
	f.fund(t, ytMint, seller, 10)
	listing := f.list(t, 10, 500)

	_, err := f.svc.BuyYT(context.Background(), seller, listing.ListingKey)
	assert.ErrorIs(t, err, domain.ErrCannotBuyOwnListing)
}

func TestBuyYTExpired(t *testing.T) {
	f := newFixture(t)
	f.fund(t, ytMint, seller, 10)
	f.fund(t, paymentMint, buyer, 1000)
	listing := f.list(t, 10, 500)

	f.advance(domain.ListingDuration)
	_, err := f.svc.BuyYT(context.Background(), buyer, listing.ListingKey)
	assert.ErrorIs(t, err, domain.ErrListingExpired)
}

func TestBuyYTInsufficientPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fund(t, ytMint, seller, 10)
	f.fund(t, paymentMint, buyer, 499)
	listing := f.list(t, 10, 500)

	_, err := f.svc.BuyYT(ctx, buyer, listing.ListingKey)
	assert.ErrorIs(t, err, ledger.ErrInsufficientFunds)

	got, err := f.svc.GetListing(ctx, listing.ListingKey)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, got.Status, "failed buy leaves the listing active")
}

func TestCancelListing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fund(t, ytMint, seller, 10)
	listing := f.list(t, 10, 500)

	_, err := f.svc.CancelListing(ctx, "mallory", listing.ListingKey)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	cancelled, err := f.svc.CancelListing(ctx, seller, listing.ListingKey)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, cancelled.Status)

	sellerAcc, err := f.accounts.GetOrCreate(ctx, ytMint, seller)
	require.NoError(t, err)
	assert.True(t, sellerAcc.Balance.Equal(decimal.NewFromInt(10)), "escrow returns in full")

	_, err = f.svc.CancelListing(ctx, seller, listing.ListingKey)
	assert.ErrorIs(t, err, domain.ErrListingNotActive)
}

func TestCancelExpiredListing(t *testing.T) {
	f := newFixture(t)
	f.fund(t, ytMint, seller, 10)
	listing := f.list(t, 10, 500)

	f.advance(domain.ListingDuration + time.Hour)
	cancelled, err := f.svc.CancelListing(context.Background(), seller, listing.ListingKey)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, cancelled.Status)
}

func TestListActiveListingsServesCachedCompletePage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.svc.cache = &fakeCache{entries: map[string][]byte{}}
	f.fund(t, ytMint, seller, 10)
	f.list(t, 10, 500)
	f.listings.listActiveCalls = 0

	// 首次查询落库并写缓存
	listings, total, err := f.svc.ListActiveListings(ctx, 5, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Len(t, listings, 1)
	assert.Equal(t, 1, f.listings.listActiveCalls)

	// 缓存页已涵盖全部挂单，更大的页大小也直接命中
	listings, total, err = f.svc.ListActiveListings(ctx, 20, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Len(t, listings, 1)
	assert.Equal(t, 1, f.listings.listActiveCalls, "complete cached page serves without a repo read")

	// 相同页大小同样命中
	_, _, err = f.svc.ListActiveListings(ctx, 5, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, f.listings.listActiveCalls)

	// 写操作使缓存失效，下一次查询回源
	_, err = f.svc.CancelListing(ctx, seller, domain.ListingKey(seller))
	require.NoError(t, err)

	listings, total, err = f.svc.ListActiveListings(ctx, 20, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(0), total)
	assert.Empty(t, listings)
	assert.Equal(t, 2, f.listings.listActiveCalls)
}

func TestListActiveListingsWithoutCache(t *testing.T) {
	f := newFixture(t)
	f.fund(t, ytMint, seller, 10)
	f.list(t, 10, 500)

	listings, total, err := f.svc.ListActiveListings(context.Background(), 20, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Len(t, listings, 1)
}
