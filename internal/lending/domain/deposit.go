package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// UserDeposit 用户在某一策略下的存款头寸
// 每个 (owner, strategy_key) 一条记录，首次存款时创建，可归零但不删除
type UserDeposit struct {
	gorm.Model
	// 持有人
	Owner string `gorm:"column:owner;type:varchar(64);uniqueIndex:idx_owner_strategy;not null" json:"owner"`
	// 策略键
	StrategyKey string `gorm:"column:strategy_key;type:varchar(64);uniqueIndex:idx_owner_strategy;not null" json:"strategy_key"`
	// 本金（最小单位）
	Amount decimal.Decimal `gorm:"column:amount;type:decimal(32,0);default:0;not null" json:"amount"`
	// 已结算未赎回的收益（最小单位）
	YieldEarned decimal.Decimal `gorm:"column:yield_earned;type:decimal(32,0);default:0;not null" json:"yield_earned"`
	// 首次存款时间；赎回时间锁以此为起点，追加存款不重置
	DepositTime time.Time `gorm:"column:deposit_time;not null" json:"deposit_time"`
	// 上次收益结算时间
	LastAccrualTime time.Time `gorm:"column:last_accrual_time;not null" json:"last_accrual_time"`
}

// NewUserDeposit 创建零头寸，时间锁与结算时钟都从 now 起算
func NewUserDeposit(owner, strategyKey string, now time.Time) *UserDeposit {
	return &UserDeposit{
		Owner:           owner,
		StrategyKey:     strategyKey,
		Amount:          decimal.Zero,
		YieldEarned:     decimal.Zero,
		DepositTime:     now,
		LastAccrualTime: now,
	}
}

// Accrue 将 [LastAccrualTime, now) 期间的收益结算进 YieldEarned。
// accrued = floor(amount * apyBps / 10000 * elapsed / SecondsPerYear)，
// 向下取整保证不凭空创造价值。elapsed <= 0 或本金为零时为空操作。
func (d *UserDeposit) Accrue(rewardAPYBps int64, now time.Time) decimal.Decimal {
	elapsed := int64(now.Sub(d.LastAccrualTime) / time.Second)
	if elapsed <= 0 {
		return decimal.Zero
	}
	d.LastAccrualTime = now

	if !d.Amount.IsPositive() || rewardAPYBps == 0 {
		return decimal.Zero
	}

	accrued := d.Amount.
		Mul(decimal.NewFromInt(rewardAPYBps)).
		Mul(decimal.NewFromInt(elapsed)).
		Div(decimal.NewFromInt(BpsDenominator * SecondsPerYear)).
		Floor()

	d.YieldEarned = d.YieldEarned.Add(accrued)
	return accrued
}

// Unlocked 最短持有期是否已过；一旦为真，对同一 DepositTime 永远为真
func (d *UserDeposit) Unlocked(now time.Time) bool {
	return now.Sub(d.DepositTime) >= MinHoldDuration
}

// UserDepositRepository 存款头寸仓储接口
type UserDepositRepository interface {
	// Save 保存或更新头寸
	Save(ctx context.Context, deposit *UserDeposit) error
	// Get 获取 (owner, strategy_key) 的头寸，不存在返回 ErrPositionNotFound
	Get(ctx context.Context, owner, strategyKey string) (*UserDeposit, error)
	// SumAmountByStrategy 汇总某策略下所有头寸本金，用于守恒校验
	SumAmountByStrategy(ctx context.Context, strategyKey string) (decimal.Decimal, error)
}

// TxManager 在单个数据库事务内执行 fn；fn 报错则整体回滚
type TxManager interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// EventPublisher 领域事件发布接口（outbox 实现）
type EventPublisher interface {
	PublishStrategyCreated(ctx context.Context, event StrategyCreatedEvent) error
	PublishStrategyStatusToggled(ctx context.Context, event StrategyStatusToggledEvent) error
	PublishDeposited(ctx context.Context, event DepositedEvent) error
	PublishWithdrawn(ctx context.Context, event WithdrawnEvent) error
	PublishYieldAccrued(ctx context.Context, event YieldAccruedEvent) error
	PublishRedeemed(ctx context.Context, event RedeemedEvent) error
	PublishYieldReset(ctx context.Context, event YieldResetEvent) error
}
