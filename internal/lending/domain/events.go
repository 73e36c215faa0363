package domain

import (
	"time"
)

// StrategyCreatedEvent 策略创建事件
type StrategyCreatedEvent struct {
	StrategyKey    string
	TokenMint      string
	StrategyID     uint64
	Admin          string
	RewardAPYBps   int64
	Name           string
	YieldTokenMint string
	VaultAddress   string
	OccurredOn     time.Time
}

// StrategyStatusToggledEvent 策略启停切换事件
type StrategyStatusToggledEvent struct {
	StrategyKey string
	Admin       string
	Active      bool
	OccurredOn  time.Time
}

// DepositedEvent 存款事件
type DepositedEvent struct {
	StrategyKey    string
	Owner          string
	Amount         string
	TotalDeposited string
	FirstDeposit   bool
	OccurredOn     time.Time
}

// WithdrawnEvent 提款事件
type WithdrawnEvent struct {
	StrategyKey    string
	Owner          string
	Amount         string
	TotalDeposited string
	OccurredOn     time.Time
}

// YieldAccruedEvent 收益结算事件
type YieldAccruedEvent struct {
	StrategyKey string
	Owner       string
	Accrued     string
	YieldEarned string
	OccurredOn  time.Time
}

// RedeemedEvent 收益赎回事件
type RedeemedEvent struct {
	StrategyKey    string
	Owner          string
	YTAmount       string
	YieldRemaining string
	OccurredOn     time.Time
}

// YieldResetEvent 收益强制清零事件（迁移用途）
type YieldResetEvent struct {
	StrategyKey string
	Owner       string
	Cleared     string
	OccurredOn  time.Time
}
