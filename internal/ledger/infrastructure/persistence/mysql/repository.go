// Package mysql 代币账本 MySQL 仓储实现
package mysql

import (
	"context"
	"errors"

	"github.com/wyfcoding/yieldmarket/internal/ledger/domain"
	"github.com/wyfcoding/yieldmarket/pkg/db"
	"gorm.io/gorm"
)

type MintRepositoryImpl struct {
	db *db.DB
}

func NewMintRepository(database *db.DB) domain.MintRepository {
	return &MintRepositoryImpl{db: database}
}

func (r *MintRepositoryImpl) getDB(ctx context.Context) *gorm.DB {
	if tx, ok := db.TxFromContext(ctx); ok {
		return tx
	}
	return r.db.DB.WithContext(ctx)
}

func (r *MintRepositoryImpl) Save(ctx context.Context, mint *domain.Mint) error {
	return r.getDB(ctx).Save(mint).Error
}

func (r *MintRepositoryImpl) GetByAddress(ctx context.Context, address string) (*domain.Mint, error) {
	var mint domain.Mint
	err := db.LockForUpdate(ctx, r.getDB(ctx)).Where("address = ?", address).First(&mint).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrMintNotFound
	}
	if err != nil {
		return nil, err
	}
	return &mint, nil
}

type TokenAccountRepositoryImpl struct {
	db *db.DB
}

func NewTokenAccountRepository(database *db.DB) domain.TokenAccountRepository {
	return &TokenAccountRepositoryImpl{db: database}
}

func (r *TokenAccountRepositoryImpl) getDB(ctx context.Context) *gorm.DB {
	if tx, ok := db.TxFromContext(ctx); ok {
		return tx
	}
	return r.db.DB.WithContext(ctx)
}

func (r *TokenAccountRepositoryImpl) Save(ctx context.Context, account *domain.TokenAccount) error {
	return r.getDB(ctx).Save(account).Error
}

func (r *TokenAccountRepositoryImpl) GetByAddress(ctx context.Context, address string) (*domain.TokenAccount, error) {
	var account domain.TokenAccount
	err := db.LockForUpdate(ctx, r.getDB(ctx)).Where("address = ?", address).First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *TokenAccountRepositoryImpl) GetOrCreate(ctx context.Context, mint, owner string) (*domain.TokenAccount, error) {
	address := domain.DeriveAddress("token", mint, owner)

	account, err := r.GetByAddress(ctx, address)
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, domain.ErrAccountNotFound) {
		return nil, err
	}

	account = domain.NewTokenAccount(mint, owner)
	if err := r.getDB(ctx).Create(account).Error; err != nil {
		return nil, err
	}
	return account, nil
}
