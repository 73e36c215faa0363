// 包 domain 收益策略借贷服务的领域模型
package domain

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	ledger "github.com/wyfcoding/yieldmarket/internal/ledger/domain"
	"gorm.io/gorm"
)

var (
	ErrStrategyNotFound          = errors.New("strategy not found")
	ErrPositionNotFound          = errors.New("user deposit not found")
	ErrDuplicateStrategy         = errors.New("strategy already initialized")
	ErrUnauthorized              = errors.New("caller is not the strategy admin")
	ErrInvalidAPY                = errors.New("reward apy out of range")
	ErrZeroAmount                = errors.New("amount must be positive")
	ErrInsufficientDepositAmount = errors.New("deposit below minimum unit")
	ErrInsufficientFunds         = errors.New("withdraw exceeds deposited amount")
	ErrStrategyInactive          = errors.New("strategy is inactive")
	ErrTooEarlyToRedeem          = errors.New("minimum hold duration not elapsed")
	ErrInsufficientYieldTokens   = errors.New("redeem exceeds accrued yield")
)

const (
	// SecondsPerYear 年化换算基数
	SecondsPerYear = 31_536_000
	// BpsDenominator 基点分母，10000 = 100%
	BpsDenominator = 10_000
	// MaxRewardAPYBps APY 上限（1000%）
	MaxRewardAPYBps = 100_000
	// MinHoldDuration 最短持有期，未满不可赎回
	MinHoldDuration = time.Hour
)

// Strategy 收益策略
// 以 (token_mint, strategy_id) 唯一标识，创建后永不删除
type Strategy struct {
	gorm.Model
	// 策略键（业务主键），由 (token_mint, strategy_id) 确定性派生
	StrategyKey string `gorm:"column:strategy_key;type:varchar(64);uniqueIndex;not null" json:"strategy_key"`
	// 底层资产 mint 地址
	TokenMint string `gorm:"column:token_mint;type:varchar(64);uniqueIndex:idx_mint_strategy;not null" json:"token_mint"`
	// 策略编号，同一 mint 下唯一
	StrategyID uint64 `gorm:"column:strategy_id;uniqueIndex:idx_mint_strategy;not null" json:"strategy_id"`
	// 管理员，唯一可切换状态的主体
	Admin string `gorm:"column:admin;type:varchar(64);not null" json:"admin"`
	// 年化收益率（基点）
	RewardAPYBps int64 `gorm:"column:reward_apy_bps;not null" json:"reward_apy_bps"`
	// 策略名称
	Name string `gorm:"column:name;type:varchar(64);not null" json:"name"`
	// 策略描述
	Description string `gorm:"column:description;type:varchar(255)" json:"description"`
	// 是否接受新存款；不影响既有头寸的提取
	Active bool `gorm:"column:active;not null" json:"active"`
	// 策略总存款（最小单位），恒等于 vault 余额
	TotalDeposited decimal.Decimal `gorm:"column:total_deposited;type:decimal(32,0);default:0;not null" json:"total_deposited"`
	// 本策略的收益代币 mint 地址
	YieldTokenMint string `gorm:"column:yield_token_mint;type:varchar(64);not null" json:"yield_token_mint"`
	// 托管 vault 账户地址
	VaultAddress string `gorm:"column:vault_address;type:varchar(64);not null" json:"vault_address"`
}

// NewStrategy 创建策略，派生策略键、vault 与 YT mint 地址
func NewStrategy(admin, tokenMint string, strategyID uint64, rewardAPYBps int64, name, description string) (*Strategy, error) {
	if rewardAPYBps < 0 || rewardAPYBps > MaxRewardAPYBps {
		return nil, ErrInvalidAPY
	}
	return &Strategy{
		StrategyKey:    StrategyKey(tokenMint, strategyID),
		TokenMint:      tokenMint,
		StrategyID:     strategyID,
		Admin:          admin,
		RewardAPYBps:   rewardAPYBps,
		Name:           name,
		Description:    description,
		Active:         true,
		TotalDeposited: decimal.Zero,
		YieldTokenMint: YieldTokenMintAddress(tokenMint, strategyID),
		VaultAddress:   VaultAddress(tokenMint, strategyID),
	}, nil
}

// Toggle 切换启停状态，仅管理员可调用
func (s *Strategy) Toggle(caller string) error {
	if caller != s.Admin {
		return ErrUnauthorized
	}
	s.Active = !s.Active
	return nil
}

// StrategyKey 派生策略键
func StrategyKey(tokenMint string, strategyID uint64) string {
	return ledger.DeriveAddress("strategy", tokenMint, strconv.FormatUint(strategyID, 10))
}

// VaultAddress 派生策略的托管 vault 地址
func VaultAddress(tokenMint string, strategyID uint64) string {
	return ledger.DeriveAddress("vault", tokenMint, strconv.FormatUint(strategyID, 10))
}

// YieldTokenMintAddress 派生策略的 YT mint 地址
func YieldTokenMintAddress(tokenMint string, strategyID uint64) string {
	return ledger.DeriveAddress("yt-mint", tokenMint, strconv.FormatUint(strategyID, 10))
}

// StrategyRepository 策略仓储接口
type StrategyRepository interface {
	// Create 创建策略，键冲突时返回 ErrDuplicateStrategy
	Create(ctx context.Context, strategy *Strategy) error
	// Save 保存或更新策略
	Save(ctx context.Context, strategy *Strategy) error
	// GetByKey 根据策略键获取
	GetByKey(ctx context.Context, strategyKey string) (*Strategy, error)
	// List 分页列出全部策略
	List(ctx context.Context, limit, offset int) ([]*Strategy, int64, error)
	// CountActive 统计启用中的策略数
	CountActive(ctx context.Context) (int64, error)
}
