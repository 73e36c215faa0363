// Package application 收益策略借贷应用服务
package application

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	ledger "github.com/wyfcoding/yieldmarket/internal/ledger/domain"
	"github.com/wyfcoding/yieldmarket/internal/lending/domain"
)

// LendingService 以单事务指令的形式暴露策略生命周期、存取款、收益结算与赎回。
// 每个指令先完成全部前置校验再落任何写操作，任一失败整体回滚。
type LendingService struct {
	strategyRepo domain.StrategyRepository
	depositRepo  domain.UserDepositRepository
	mintRepo     ledger.MintRepository
	accountRepo  ledger.TokenAccountRepository
	publisher    domain.EventPublisher
	tx           domain.TxManager
	logger       *slog.Logger
	now          func() time.Time
}

func NewLendingService(
	strategyRepo domain.StrategyRepository,
	depositRepo domain.UserDepositRepository,
	mintRepo ledger.MintRepository,
	accountRepo ledger.TokenAccountRepository,
	publisher domain.EventPublisher,
	tx domain.TxManager,
	logger *slog.Logger,
) *LendingService {
	return &LendingService{
		strategyRepo: strategyRepo,
		depositRepo:  depositRepo,
		mintRepo:     mintRepo,
		accountRepo:  accountRepo,
		publisher:    publisher,
		tx:           tx,
		logger:       logger.With("module", "lending_service"),
		now:          time.Now,
	}
}

type CreateStrategyCmd struct {
	Admin        string
	TokenMint    string
	StrategyID   uint64
	RewardAPYBps int64
	Name         string
	Description  string
}

// CreateStrategy 创建策略，并在同一事务内建立 vault 账户与 YT mint。
// 策略键由 (tokenMint, strategyID) 派生，重复创建在键上碰撞，返回 ErrDuplicateStrategy。
func (s *LendingService) CreateStrategy(ctx context.Context, cmd CreateStrategyCmd) (*domain.Strategy, error) {
	strategy, err := domain.NewStrategy(cmd.Admin, cmd.TokenMint, cmd.StrategyID, cmd.RewardAPYBps, cmd.Name, cmd.Description)
	if err != nil {
		return nil, err
	}

	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		if _, err := s.strategyRepo.GetByKey(ctx, strategy.StrategyKey); err == nil {
			return domain.ErrDuplicateStrategy
		} else if err != domain.ErrStrategyNotFound {
			return err
		}

		underlying, err := s.mintRepo.GetByAddress(ctx, cmd.TokenMint)
		if err != nil {
			return err
		}

		ytMint := &ledger.Mint{
			Address:   strategy.YieldTokenMint,
			Symbol:    "YT-" + underlying.Symbol,
			Decimals:  underlying.Decimals,
			Supply:    decimal.Zero,
			Authority: strategy.StrategyKey,
		}
		if err := s.mintRepo.Save(ctx, ytMint); err != nil {
			return err
		}

		vault := &ledger.TokenAccount{
			Address: strategy.VaultAddress,
			Mint:    cmd.TokenMint,
			Owner:   strategy.StrategyKey,
			Balance: decimal.Zero,
		}
		if err := s.accountRepo.Save(ctx, vault); err != nil {
			return err
		}

		if err := s.strategyRepo.Create(ctx, strategy); err != nil {
			return err
		}

		return s.publisher.PublishStrategyCreated(ctx, domain.StrategyCreatedEvent{
			StrategyKey:    strategy.StrategyKey,
			TokenMint:      strategy.TokenMint,
			StrategyID:     strategy.StrategyID,
			Admin:          strategy.Admin,
			RewardAPYBps:   strategy.RewardAPYBps,
			Name:           strategy.Name,
			YieldTokenMint: strategy.YieldTokenMint,
			VaultAddress:   strategy.VaultAddress,
			OccurredOn:     s.now(),
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "strategy created",
		"strategy_key", strategy.StrategyKey,
		"token_mint", cmd.TokenMint,
		"strategy_id", cmd.StrategyID,
		"reward_apy_bps", cmd.RewardAPYBps,
	)
	return strategy, nil
}

// ToggleStrategyStatus 切换策略启停，仅管理员可操作；停用只拦截新存款
func (s *LendingService) ToggleStrategyStatus(ctx context.Context, caller, tokenMint string, strategyID uint64) (*domain.Strategy, error) {
	var strategy *domain.Strategy

	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		var err error
		strategy, err = s.strategyRepo.GetByKey(ctx, domain.StrategyKey(tokenMint, strategyID))
		if err != nil {
			return err
		}
		if err := strategy.Toggle(caller); err != nil {
			return err
		}
		if err := s.strategyRepo.Save(ctx, strategy); err != nil {
			return err
		}

		return s.publisher.PublishStrategyStatusToggled(ctx, domain.StrategyStatusToggledEvent{
			StrategyKey: strategy.StrategyKey,
			Admin:       caller,
			Active:      strategy.Active,
			OccurredOn:  s.now(),
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "strategy status toggled", "strategy_key", strategy.StrategyKey, "active", strategy.Active)
	return strategy, nil
}

type DepositCmd struct {
	User       string
	TokenMint  string
	StrategyID uint64
	Amount     decimal.Decimal
}

// Deposit 用户向策略存款。
// 追加存款前先结算既有收益，避免新本金按旧时段计息；
// 时间锁起点 DepositTime 只在头寸创建时设定，追加不重置。
func (s *LendingService) Deposit(ctx context.Context, cmd DepositCmd) (*domain.UserDeposit, error) {
	if !cmd.Amount.IsPositive() {
		return nil, domain.ErrZeroAmount
	}

	var position *domain.UserDeposit

	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		strategy, err := s.strategyRepo.GetByKey(ctx, domain.StrategyKey(cmd.TokenMint, cmd.StrategyID))
		if err != nil {
			return err
		}
		if !strategy.Active {
			return domain.ErrStrategyInactive
		}

		underlying, err := s.mintRepo.GetByAddress(ctx, cmd.TokenMint)
		if err != nil {
			return err
		}
		if cmd.Amount.LessThan(underlying.MinimumDepositUnit()) {
			return domain.ErrInsufficientDepositAmount
		}

		now := s.now()
		firstDeposit := false
		position, err = s.depositRepo.Get(ctx, cmd.User, strategy.StrategyKey)
		if err == domain.ErrPositionNotFound {
			position = domain.NewUserDeposit(cmd.User, strategy.StrategyKey, now)
			firstDeposit = true
		} else if err != nil {
			return err
		}

		position.Accrue(strategy.RewardAPYBps, now)

		userAccount, err := s.accountRepo.GetOrCreate(ctx, cmd.TokenMint, cmd.User)
		if err != nil {
			return err
		}
		vault, err := s.accountRepo.GetByAddress(ctx, strategy.VaultAddress)
		if err != nil {
			return err
		}

		if err := ledger.Transfer(userAccount, vault, cmd.Amount); err != nil {
			return err
		}

		position.Amount = position.Amount.Add(cmd.Amount)
		strategy.TotalDeposited = strategy.TotalDeposited.Add(cmd.Amount)

		if err := s.accountRepo.Save(ctx, userAccount); err != nil {
			return err
		}
		if err := s.accountRepo.Save(ctx, vault); err != nil {
			return err
		}
		if err := s.depositRepo.Save(ctx, position); err != nil {
			return err
		}
		if err := s.strategyRepo.Save(ctx, strategy); err != nil {
			return err
		}

		return s.publisher.PublishDeposited(ctx, domain.DepositedEvent{
			StrategyKey:    strategy.StrategyKey,
			Owner:          cmd.User,
			Amount:         cmd.Amount.String(),
			TotalDeposited: strategy.TotalDeposited.String(),
			FirstDeposit:   firstDeposit,
			OccurredOn:     now,
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "deposit committed", "owner", cmd.User, "amount", cmd.Amount, "strategy_id", cmd.StrategyID)
	return position, nil
}

type WithdrawCmd struct {
	User       string
	TokenMint  string
	StrategyID uint64
	Amount     decimal.Decimal
}

// Withdraw 用户从策略提款。策略停用不阻止提款；收益记录不受提款影响
func (s *LendingService) Withdraw(ctx context.Context, cmd WithdrawCmd) (*domain.UserDeposit, error) {
	if !cmd.Amount.IsPositive() {
		return nil, domain.ErrZeroAmount
	}

	var position *domain.UserDeposit

	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		strategy, err := s.strategyRepo.GetByKey(ctx, domain.StrategyKey(cmd.TokenMint, cmd.StrategyID))
		if err != nil {
			return err
		}

		position, err = s.depositRepo.Get(ctx, cmd.User, strategy.StrategyKey)
		if err != nil {
			return err
		}
		if cmd.Amount.GreaterThan(position.Amount) {
			return domain.ErrInsufficientFunds
		}

		now := s.now()
		position.Accrue(strategy.RewardAPYBps, now)

		vault, err := s.accountRepo.GetByAddress(ctx, strategy.VaultAddress)
		if err != nil {
			return err
		}
		userAccount, err := s.accountRepo.GetOrCreate(ctx, cmd.TokenMint, cmd.User)
		if err != nil {
			return err
		}

		if err := ledger.Transfer(vault, userAccount, cmd.Amount); err != nil {
			return err
		}

		position.Amount = position.Amount.Sub(cmd.Amount)
		strategy.TotalDeposited = strategy.TotalDeposited.Sub(cmd.Amount)

		if err := s.accountRepo.Save(ctx, vault); err != nil {
			return err
		}
		if err := s.accountRepo.Save(ctx, userAccount); err != nil {
			return err
		}
		if err := s.depositRepo.Save(ctx, position); err != nil {
			return err
		}
		if err := s.strategyRepo.Save(ctx, strategy); err != nil {
			return err
		}

		return s.publisher.PublishWithdrawn(ctx, domain.WithdrawnEvent{
			StrategyKey:    strategy.StrategyKey,
			Owner:          cmd.User,
			Amount:         cmd.Amount.String(),
			TotalDeposited: strategy.TotalDeposited.String(),
			OccurredOn:     now,
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "withdraw committed", "owner", cmd.User, "amount", cmd.Amount, "strategy_id", cmd.StrategyID)
	return position, nil
}

// CalculatePendingYield 结算挂起收益并返回最新的 YieldEarned。
// 与时间锁无关，elapsed 为零时是空操作，可安全重复调用。
func (s *LendingService) CalculatePendingYield(ctx context.Context, user, tokenMint string, strategyID uint64) (decimal.Decimal, error) {
	var yieldEarned decimal.Decimal

	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		strategy, err := s.strategyRepo.GetByKey(ctx, domain.StrategyKey(tokenMint, strategyID))
		if err != nil {
			return err
		}
		position, err := s.depositRepo.Get(ctx, user, strategy.StrategyKey)
		if err != nil {
			return err
		}

		now := s.now()
		accrued := position.Accrue(strategy.RewardAPYBps, now)
		yieldEarned = position.YieldEarned

		if err := s.depositRepo.Save(ctx, position); err != nil {
			return err
		}
		if accrued.IsZero() {
			return nil
		}

		return s.publisher.PublishYieldAccrued(ctx, domain.YieldAccruedEvent{
			StrategyKey: strategy.StrategyKey,
			Owner:       user,
			Accrued:     accrued.String(),
			YieldEarned: position.YieldEarned.String(),
			OccurredOn:  now,
		})
	})
	if err != nil {
		return decimal.Zero, err
	}

	return yieldEarned, nil
}

type RedeemCmd struct {
	User       string
	TokenMint  string
	StrategyID uint64
	YTAmount   decimal.Decimal
}

// Redeem 将已结算收益铸造为 YT 转给用户，支持任意部分赎回。
// 时间锁未满返回 ErrTooEarlyToRedeem；赎回额超过收益返回 ErrInsufficientYieldTokens。
func (s *LendingService) Redeem(ctx context.Context, cmd RedeemCmd) (*domain.UserDeposit, error) {
	if !cmd.YTAmount.IsPositive() {
		return nil, domain.ErrZeroAmount
	}

	var position *domain.UserDeposit

	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		strategy, err := s.strategyRepo.GetByKey(ctx, domain.StrategyKey(cmd.TokenMint, cmd.StrategyID))
		if err != nil {
			return err
		}
		position, err = s.depositRepo.Get(ctx, cmd.User, strategy.StrategyKey)
		if err != nil {
			return err
		}

		now := s.now()
		if !position.Unlocked(now) {
			return domain.ErrTooEarlyToRedeem
		}

		position.Accrue(strategy.RewardAPYBps, now)
		if cmd.YTAmount.GreaterThan(position.YieldEarned) {
			return domain.ErrInsufficientYieldTokens
		}

		ytMint, err := s.mintRepo.GetByAddress(ctx, strategy.YieldTokenMint)
		if err != nil {
			return err
		}
		userYTAccount, err := s.accountRepo.GetOrCreate(ctx, strategy.YieldTokenMint, cmd.User)
		if err != nil {
			return err
		}

		if err := ledger.MintTo(ytMint, userYTAccount, cmd.YTAmount); err != nil {
			return err
		}
		position.YieldEarned = position.YieldEarned.Sub(cmd.YTAmount)

		if err := s.mintRepo.Save(ctx, ytMint); err != nil {
			return err
		}
		if err := s.accountRepo.Save(ctx, userYTAccount); err != nil {
			return err
		}
		if err := s.depositRepo.Save(ctx, position); err != nil {
			return err
		}

		return s.publisher.PublishRedeemed(ctx, domain.RedeemedEvent{
			StrategyKey:    strategy.StrategyKey,
			Owner:          cmd.User,
			YTAmount:       cmd.YTAmount.String(),
			YieldRemaining: position.YieldEarned.String(),
			OccurredOn:     now,
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "yield redeemed", "owner", cmd.User, "yt_amount", cmd.YTAmount, "strategy_id", cmd.StrategyID)
	return position, nil
}

// ResetUserYield 管理员强制清零某头寸的已结算收益，不铸造任何代币。
// 仅用于状态迁移，不属于正常赎回路径。
func (s *LendingService) ResetUserYield(ctx context.Context, caller, owner, tokenMint string, strategyID uint64) error {
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		strategy, err := s.strategyRepo.GetByKey(ctx, domain.StrategyKey(tokenMint, strategyID))
		if err != nil {
			return err
		}
		if caller != strategy.Admin {
			return domain.ErrUnauthorized
		}

		position, err := s.depositRepo.Get(ctx, owner, strategy.StrategyKey)
		if err != nil {
			return err
		}

		cleared := position.YieldEarned
		position.YieldEarned = decimal.Zero
		position.LastAccrualTime = s.now()

		if err := s.depositRepo.Save(ctx, position); err != nil {
			return err
		}

		return s.publisher.PublishYieldReset(ctx, domain.YieldResetEvent{
			StrategyKey: strategy.StrategyKey,
			Owner:       owner,
			Cleared:     cleared.String(),
			OccurredOn:  s.now(),
		})
	})
	if err != nil {
		return err
	}

	s.logger.WarnContext(ctx, "user yield reset", "owner", owner, "strategy_id", strategyID, "caller", caller)
	return nil
}

// GetStrategy 查询单个策略
func (s *LendingService) GetStrategy(ctx context.Context, tokenMint string, strategyID uint64) (*domain.Strategy, error) {
	return s.strategyRepo.GetByKey(ctx, domain.StrategyKey(tokenMint, strategyID))
}

// GetPosition 查询用户头寸
func (s *LendingService) GetPosition(ctx context.Context, user, tokenMint string, strategyID uint64) (*domain.UserDeposit, error) {
	return s.depositRepo.Get(ctx, user, domain.StrategyKey(tokenMint, strategyID))
}

// ListStrategies 分页列出策略
func (s *LendingService) ListStrategies(ctx context.Context, limit, offset int) ([]*domain.Strategy, int64, error) {
	return s.strategyRepo.List(ctx, limit, offset)
}

// CountActiveStrategies 统计启用中的策略数
func (s *LendingService) CountActiveStrategies(ctx context.Context) (int64, error) {
	return s.strategyRepo.CountActive(ctx)
}
