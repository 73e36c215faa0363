// Package mysql 借贷服务 MySQL 仓储实现
package mysql

import (
	"context"
	"errors"

	"github.com/go-sql-driver/mysql"
	"github.com/shopspring/decimal"
	"github.com/wyfcoding/yieldmarket/internal/lending/domain"
	"github.com/wyfcoding/yieldmarket/pkg/db"
	"gorm.io/gorm"
)

const mysqlDuplicateEntry = 1062

type StrategyRepositoryImpl struct {
	db *db.DB
}

func NewStrategyRepository(database *db.DB) domain.StrategyRepository {
	return &StrategyRepositoryImpl{db: database}
}

func (r *StrategyRepositoryImpl) getDB(ctx context.Context) *gorm.DB {
	if tx, ok := db.TxFromContext(ctx); ok {
		return tx
	}
	return r.db.DB.WithContext(ctx)
}

func (r *StrategyRepositoryImpl) Create(ctx context.Context, strategy *domain.Strategy) error {
	err := r.getDB(ctx).Create(strategy).Error
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlDuplicateEntry {
		return domain.ErrDuplicateStrategy
	}
	return err
}

func (r *StrategyRepositoryImpl) Save(ctx context.Context, strategy *domain.Strategy) error {
	return r.getDB(ctx).Save(strategy).Error
}

func (r *StrategyRepositoryImpl) GetByKey(ctx context.Context, strategyKey string) (*domain.Strategy, error) {
	var strategy domain.Strategy
	err := db.LockForUpdate(ctx, r.getDB(ctx)).Where("strategy_key = ?", strategyKey).First(&strategy).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrStrategyNotFound
	}
	if err != nil {
		return nil, err
	}
	return &strategy, nil
}

func (r *StrategyRepositoryImpl) List(ctx context.Context, limit, offset int) ([]*domain.Strategy, int64, error) {
	var (
		strategies []*domain.Strategy
		total      int64
	)
	tx := r.getDB(ctx).Model(&domain.Strategy{})
	if err := tx.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := tx.Order("id DESC").Limit(limit).Offset(offset).Find(&strategies).Error; err != nil {
		return nil, 0, err
	}
	return strategies, total, nil
}

func (r *StrategyRepositoryImpl) CountActive(ctx context.Context) (int64, error) {
	var count int64
	err := r.getDB(ctx).Model(&domain.Strategy{}).Where("active = ?", true).Count(&count).Error
	return count, err
}

type UserDepositRepositoryImpl struct {
	db *db.DB
}

func NewUserDepositRepository(database *db.DB) domain.UserDepositRepository {
	return &UserDepositRepositoryImpl{db: database}
}

func (r *UserDepositRepositoryImpl) getDB(ctx context.Context) *gorm.DB {
	if tx, ok := db.TxFromContext(ctx); ok {
		return tx
	}
	return r.db.DB.WithContext(ctx)
}

func (r *UserDepositRepositoryImpl) Save(ctx context.Context, deposit *domain.UserDeposit) error {
	return r.getDB(ctx).Save(deposit).Error
}

func (r *UserDepositRepositoryImpl) Get(ctx context.Context, owner, strategyKey string) (*domain.UserDeposit, error) {
	var deposit domain.UserDeposit
	err := db.LockForUpdate(ctx, r.getDB(ctx)).Where("owner = ? AND strategy_key = ?", owner, strategyKey).First(&deposit).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrPositionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &deposit, nil
}

func (r *UserDepositRepositoryImpl) SumAmountByStrategy(ctx context.Context, strategyKey string) (decimal.Decimal, error) {
	var sum decimal.NullDecimal
	err := r.getDB(ctx).Model(&domain.UserDeposit{}).
		Where("strategy_key = ?", strategyKey).
		Select("SUM(amount)").
		Scan(&sum).Error
	if err != nil {
		return decimal.Zero, err
	}
	if !sum.Valid {
		return decimal.Zero, nil
	}
	return sum.Decimal, nil
}
