// 包 domain YT 挂单市场的领域模型
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	ledger "github.com/wyfcoding/yieldmarket/internal/ledger/domain"
	"gorm.io/gorm"
)

var (
	ErrListingNotFound     = errors.New("listing not found")
	ErrDuplicateListing    = errors.New("seller already has an active listing")
	ErrListingNotActive    = errors.New("listing is not active")
	ErrListingExpired      = errors.New("listing has expired")
	ErrCannotBuyOwnListing = errors.New("cannot buy own listing")
	ErrZeroAmount          = errors.New("amount must be positive")
	ErrInvalidPrice        = errors.New("price must be positive")
	ErrUnauthorized        = errors.New("caller is not the listing seller")
)

// ListingDuration 挂单有效期，超时后不可成交，只能取消
const ListingDuration = 7 * 24 * time.Hour

// 挂单状态；ACTIVE 为唯一非终态
const (
	StatusActive    = "ACTIVE"
	StatusFilled    = "FILLED"
	StatusCancelled = "CANCELLED"
)

// Listing YT 挂单
// 挂单键由 seller 派生，同一卖家同时至多一张 ACTIVE 挂单
type Listing struct {
	gorm.Model
	// 挂单键（业务主键）
	ListingKey string `gorm:"column:listing_key;type:varchar(64);uniqueIndex;not null" json:"listing_key"`
	// 卖家
	Seller string `gorm:"column:seller;type:varchar(64);index;not null" json:"seller"`
	// 在售 YT 的 mint 地址
	YTMint string `gorm:"column:yt_mint;type:varchar(64);not null" json:"yt_mint"`
	// 结算资产 mint 地址
	PaymentMint string `gorm:"column:payment_mint;type:varchar(64);not null" json:"payment_mint"`
	// 托管 escrow 账户地址
	EscrowAddress string `gorm:"column:escrow_address;type:varchar(64);not null" json:"escrow_address"`
	// 在售数量（最小单位）；整单成交，不支持部分买入
	Amount decimal.Decimal `gorm:"column:amount;type:decimal(32,0);not null" json:"amount"`
	// 整单总价（结算资产最小单位）
	Price decimal.Decimal `gorm:"column:price;type:decimal(32,0);not null" json:"price"`
	// ACTIVE / FILLED / CANCELLED
	Status string `gorm:"column:status;type:varchar(16);index;not null" json:"status"`
	// 挂单时间，有效期以此为起点
	ListedAt time.Time `gorm:"column:listed_at;not null" json:"listed_at"`
}

// NewListing 创建 ACTIVE 挂单，派生挂单键与 escrow 地址
func NewListing(seller, ytMint, paymentMint string, amount, price decimal.Decimal, now time.Time) (*Listing, error) {
	if !amount.IsPositive() {
		return nil, ErrZeroAmount
	}
	if !price.IsPositive() {
		return nil, ErrInvalidPrice
	}
	return &Listing{
		ListingKey:    ListingKey(seller),
		Seller:        seller,
		YTMint:        ytMint,
		PaymentMint:   paymentMint,
		EscrowAddress: EscrowAddress(seller),
		Amount:        amount,
		Price:         price,
		Status:        StatusActive,
		ListedAt:      now,
	}, nil
}

// ListingKey 派生挂单键
func ListingKey(seller string) string {
	return ledger.DeriveAddress("listing", seller)
}

// EscrowAddress 派生卖家的托管 escrow 地址
func EscrowAddress(seller string) string {
	return ledger.DeriveAddress("escrow", seller)
}

// Expired 挂单是否已过有效期
func (l *Listing) Expired(now time.Time) bool {
	return now.Sub(l.ListedAt) >= ListingDuration
}

// CanFill 成交前置校验，依次检查状态、有效期、自购
func (l *Listing) CanFill(buyer string, now time.Time) error {
	if l.Status != StatusActive {
		return ErrListingNotActive
	}
	if l.Expired(now) {
		return ErrListingExpired
	}
	if buyer == l.Seller {
		return ErrCannotBuyOwnListing
	}
	return nil
}

// Fill 标记成交；调用方须先通过 CanFill
func (l *Listing) Fill() {
	l.Status = StatusFilled
}

// Cancel 取消挂单，仅卖家可操作；已成交或已取消的不可再取消
func (l *Listing) Cancel(caller string) error {
	if caller != l.Seller {
		return ErrUnauthorized
	}
	if l.Status != StatusActive {
		return ErrListingNotActive
	}
	l.Status = StatusCancelled
	return nil
}

// ListingRepository 挂单仓储接口
type ListingRepository interface {
	// Create 创建挂单，键冲突时返回 ErrDuplicateListing
	Create(ctx context.Context, listing *Listing) error
	// Save 保存或更新挂单
	Save(ctx context.Context, listing *Listing) error
	// GetByKey 根据挂单键获取
	GetByKey(ctx context.Context, listingKey string) (*Listing, error)
	// ListActive 分页列出 ACTIVE 挂单
	ListActive(ctx context.Context, limit, offset int) ([]*Listing, int64, error)
	// CountActive 统计 ACTIVE 挂单数
	CountActive(ctx context.Context) (int64, error)
}

// TxManager 在单个数据库事务内执行 fn；fn 报错则整体回滚
type TxManager interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// EventPublisher 领域事件发布接口（outbox 实现）
type EventPublisher interface {
	PublishListingCreated(ctx context.Context, event ListingCreatedEvent) error
	PublishListingFilled(ctx context.Context, event ListingFilledEvent) error
	PublishListingCancelled(ctx context.Context, event ListingCancelledEvent) error
}
