// Package application YT 挂单市场应用服务
package application

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	ledger "github.com/wyfcoding/yieldmarket/internal/ledger/domain"
	"github.com/wyfcoding/yieldmarket/internal/marketplace/domain"
	"github.com/wyfcoding/yieldmarket/pkg/cache"
)

const (
	activeListingsCacheKey = "marketplace:active_listings"
	activeListingsCacheTTL = 10 * time.Second
)

// listingCache 挂单查询依赖的缓存子集；*cache.RedisCache 满足该接口
type listingCache interface {
	GetJSON(ctx context.Context, key string, dest interface{}) (bool, error)
	SetJSON(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// MarketplaceService 挂单的上架、成交与取消。
// 每个指令单事务执行；YT 全程托管在 escrow 账户，成交与取消之外不可动用。
type MarketplaceService struct {
	listingRepo domain.ListingRepository
	accountRepo ledger.TokenAccountRepository
	publisher   domain.EventPublisher
	tx          domain.TxManager
	cache       listingCache
	logger      *slog.Logger
	now         func() time.Time
}

func NewMarketplaceService(
	listingRepo domain.ListingRepository,
	accountRepo ledger.TokenAccountRepository,
	publisher domain.EventPublisher,
	tx domain.TxManager,
	redisCache *cache.RedisCache,
	logger *slog.Logger,
) *MarketplaceService {
	s := &MarketplaceService{
		listingRepo: listingRepo,
		accountRepo: accountRepo,
		publisher:   publisher,
		tx:          tx,
		logger:      logger.With("module", "marketplace_service"),
		now:         time.Now,
	}
	if redisCache != nil {
		s.cache = redisCache
	}
	return s
}

type ListYTCmd struct {
	Seller      string
	YTMint      string
	PaymentMint string
	Amount      decimal.Decimal
	Price       decimal.Decimal
}

// ListYT 上架挂单，将 YT 全额转入卖家 escrow。
// 同一卖家已有 ACTIVE 挂单时拒绝；已终结的旧挂单行被新挂单复用。
func (s *MarketplaceService) ListYT(ctx context.Context, cmd ListYTCmd) (*domain.Listing, error) {
	listing, err := domain.NewListing(cmd.Seller, cmd.YTMint, cmd.PaymentMint, cmd.Amount, cmd.Price, s.now())
	if err != nil {
		return nil, err
	}

	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		existing, err := s.listingRepo.GetByKey(ctx, listing.ListingKey)
		switch {
		case err == domain.ErrListingNotFound:
			// 首次挂单
		case err != nil:
			return err
		case existing.Status == domain.StatusActive:
			return domain.ErrDuplicateListing
		default:
			// 复用已终结的行，保持挂单键唯一
			listing.Model = existing.Model
		}

		sellerAccount, err := s.accountRepo.GetOrCreate(ctx, cmd.YTMint, cmd.Seller)
		if err != nil {
			return err
		}
		escrow, err := s.escrowAccount(ctx, listing)
		if err != nil {
			return err
		}

		if err := ledger.Transfer(sellerAccount, escrow, cmd.Amount); err != nil {
			return err
		}

		if err := s.accountRepo.Save(ctx, sellerAccount); err != nil {
			return err
		}
		if err := s.accountRepo.Save(ctx, escrow); err != nil {
			return err
		}
		if listing.ID == 0 {
			if err := s.listingRepo.Create(ctx, listing); err != nil {
				return err
			}
		} else if err := s.listingRepo.Save(ctx, listing); err != nil {
			return err
		}

		return s.publisher.PublishListingCreated(ctx, domain.ListingCreatedEvent{
			ListingKey:  listing.ListingKey,
			Seller:      listing.Seller,
			YTMint:      listing.YTMint,
			PaymentMint: listing.PaymentMint,
			Amount:      listing.Amount.String(),
			Price:       listing.Price.String(),
			OccurredOn:  listing.ListedAt,
		})
	})
	if err != nil {
		return nil, err
	}

	s.invalidateListingsCache(ctx)
	s.logger.InfoContext(ctx, "listing created",
		"listing_key", listing.ListingKey,
		"seller", cmd.Seller,
		"amount", cmd.Amount,
		"price", cmd.Price,
	)
	return listing, nil
}

// escrowAccount 获取或创建挂单的托管账户，owner 为挂单键本身
func (s *MarketplaceService) escrowAccount(ctx context.Context, listing *domain.Listing) (*ledger.TokenAccount, error) {
	escrow, err := s.accountRepo.GetByAddress(ctx, listing.EscrowAddress)
	if err == nil {
		return escrow, nil
	}
	if err != ledger.ErrAccountNotFound {
		return nil, err
	}
	escrow = &ledger.TokenAccount{
		Address: listing.EscrowAddress,
		Mint:    listing.YTMint,
		Owner:   listing.ListingKey,
		Balance: decimal.Zero,
	}
	if err := s.accountRepo.Save(ctx, escrow); err != nil {
		return nil, err
	}
	return escrow, nil
}

// BuyYT 整单成交：结算资产买家付卖家，YT 从 escrow 转给买家，状态置 FILLED。
// 任一腿失败整体回滚，escrow 与挂单状态保持一致。
func (s *MarketplaceService) BuyYT(ctx context.Context, buyer, listingKey string) (*domain.Listing, error) {
	var listing *domain.Listing

	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		var err error
		listing, err = s.listingRepo.GetByKey(ctx, listingKey)
		if err != nil {
			return err
		}
		if err := listing.CanFill(buyer, s.now()); err != nil {
			return err
		}

		buyerPayment, err := s.accountRepo.GetOrCreate(ctx, listing.PaymentMint, buyer)
		if err != nil {
			return err
		}
		sellerPayment, err := s.accountRepo.GetOrCreate(ctx, listing.PaymentMint, listing.Seller)
		if err != nil {
			return err
		}
		if err := ledger.Transfer(buyerPayment, sellerPayment, listing.Price); err != nil {
			return err
		}

		escrow, err := s.accountRepo.GetByAddress(ctx, listing.EscrowAddress)
		if err != nil {
			return err
		}
		buyerYT, err := s.accountRepo.GetOrCreate(ctx, listing.YTMint, buyer)
		if err != nil {
			return err
		}
		if err := ledger.Transfer(escrow, buyerYT, listing.Amount); err != nil {
			return err
		}

		listing.Fill()

		if err := s.accountRepo.Save(ctx, buyerPayment); err != nil {
			return err
		}
		if err := s.accountRepo.Save(ctx, sellerPayment); err != nil {
			return err
		}
		if err := s.accountRepo.Save(ctx, escrow); err != nil {
			return err
		}
		if err := s.accountRepo.Save(ctx, buyerYT); err != nil {
			return err
		}
		if err := s.listingRepo.Save(ctx, listing); err != nil {
			return err
		}

		return s.publisher.PublishListingFilled(ctx, domain.ListingFilledEvent{
			ListingKey: listing.ListingKey,
			Seller:     listing.Seller,
			Buyer:      buyer,
			YTMint:     listing.YTMint,
			Amount:     listing.Amount.String(),
			Price:      listing.Price.String(),
			OccurredOn: s.now(),
		})
	})
	if err != nil {
		return nil, err
	}

	s.invalidateListingsCache(ctx)
	s.logger.InfoContext(ctx, "listing filled", "listing_key", listingKey, "buyer", buyer)
	return listing, nil
}

// CancelListing 卖家取消挂单，escrow 中的 YT 全额退回；过期挂单同样可取消
func (s *MarketplaceService) CancelListing(ctx context.Context, caller, listingKey string) (*domain.Listing, error) {
	var listing *domain.Listing

	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		var err error
		listing, err = s.listingRepo.GetByKey(ctx, listingKey)
		if err != nil {
			return err
		}
		if err := listing.Cancel(caller); err != nil {
			return err
		}

		escrow, err := s.accountRepo.GetByAddress(ctx, listing.EscrowAddress)
		if err != nil {
			return err
		}
		sellerAccount, err := s.accountRepo.GetOrCreate(ctx, listing.YTMint, listing.Seller)
		if err != nil {
			return err
		}
		if err := ledger.Transfer(escrow, sellerAccount, listing.Amount); err != nil {
			return err
		}

		if err := s.accountRepo.Save(ctx, escrow); err != nil {
			return err
		}
		if err := s.accountRepo.Save(ctx, sellerAccount); err != nil {
			return err
		}
		if err := s.listingRepo.Save(ctx, listing); err != nil {
			return err
		}

		return s.publisher.PublishListingCancelled(ctx, domain.ListingCancelledEvent{
			ListingKey: listing.ListingKey,
			Seller:     listing.Seller,
			Amount:     listing.Amount.String(),
			OccurredOn: s.now(),
		})
	})
	if err != nil {
		return nil, err
	}

	s.invalidateListingsCache(ctx)
	s.logger.InfoContext(ctx, "listing cancelled", "listing_key", listingKey)
	return listing, nil
}

// GetListing 查询单个挂单
func (s *MarketplaceService) GetListing(ctx context.Context, listingKey string) (*domain.Listing, error) {
	return s.listingRepo.GetByKey(ctx, listingKey)
}

type activeListingsPage struct {
	// 写入缓存时请求的页大小；命中判定的依据
	Limit    int               `json:"limit"`
	Listings []*domain.Listing `json:"listings"`
	Total    int64             `json:"total"`
}

// complete 缓存页是否已涵盖全部 ACTIVE 挂单
func (p *activeListingsPage) complete() bool {
	return int64(len(p.Listings)) == p.Total
}

// ListActiveListings 分页列出 ACTIVE 挂单；首页走短 TTL 的 redis 缓存。
// 缓存页在取数页大小不小于本次请求、或已涵盖全部挂单时命中。
func (s *MarketplaceService) ListActiveListings(ctx context.Context, limit, offset int) ([]*domain.Listing, int64, error) {
	cacheable := s.cache != nil && offset == 0

	if cacheable {
		var page activeListingsPage
		found, err := s.cache.GetJSON(ctx, activeListingsCacheKey, &page)
		if err != nil {
			s.logger.WarnContext(ctx, "listings cache read failed", "error", err)
		} else if found && (page.Limit >= limit || page.complete()) {
			return page.Listings[:min(limit, len(page.Listings))], page.Total, nil
		}
	}

	listings, total, err := s.listingRepo.ListActive(ctx, limit, offset)
	if err != nil {
		return nil, 0, err
	}

	if cacheable {
		page := activeListingsPage{Limit: limit, Listings: listings, Total: total}
		if err := s.cache.SetJSON(ctx, activeListingsCacheKey, page, activeListingsCacheTTL); err != nil {
			s.logger.WarnContext(ctx, "listings cache write failed", "error", err)
		}
	}
	return listings, total, nil
}

// CountActiveListings 统计 ACTIVE 挂单数
func (s *MarketplaceService) CountActiveListings(ctx context.Context) (int64, error) {
	return s.listingRepo.CountActive(ctx)
}

func (s *MarketplaceService) invalidateListingsCache(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, activeListingsCacheKey); err != nil {
		s.logger.WarnContext(ctx, "listings cache invalidation failed", "error", err)
	}
}
