// Package mysql 挂单市场 MySQL 仓储实现
package mysql

import (
	"context"
	"errors"

	"github.com/go-sql-driver/mysql"
	"github.com/wyfcoding/yieldmarket/internal/marketplace/domain"
	"github.com/wyfcoding/yieldmarket/pkg/db"
	"gorm.io/gorm"
)

const mysqlDuplicateEntry = 1062

type ListingRepositoryImpl struct {
	db *db.DB
}

func NewListingRepository(database *db.DB) domain.ListingRepository {
	return &ListingRepositoryImpl{db: database}
}

func (r *ListingRepositoryImpl) getDB(ctx context.Context) *gorm.DB {
	if tx, ok := db.TxFromContext(ctx); ok {
		return tx
	}
	return r.db.DB.WithContext(ctx)
}

func (r *ListingRepositoryImpl) Create(ctx context.Context, listing *domain.Listing) error {
	err := r.getDB(ctx).Create(listing).Error
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlDuplicateEntry {
		return domain.ErrDuplicateListing
	}
	return err
}

func (r *ListingRepositoryImpl) Save(ctx context.Context, listing *domain.Listing) error {
	return r.getDB(ctx).Save(listing).Error
}

func (r *ListingRepositoryImpl) GetByKey(ctx context.Context, listingKey string) (*domain.Listing, error) {
	var listing domain.Listing
	err := db.LockForUpdate(ctx, r.getDB(ctx)).Where("listing_key = ?", listingKey).First(&listing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrListingNotFound
	}
	if err != nil {
		return nil, err
	}
	return &listing, nil
}

func (r *ListingRepositoryImpl) ListActive(ctx context.Context, limit, offset int) ([]*domain.Listing, int64, error) {
	var (
		listings []*domain.Listing
		total    int64
	)
	tx := r.getDB(ctx).Model(&domain.Listing{}).Where("status = ?", domain.StatusActive)
	if err := tx.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := tx.Order("listed_at DESC").Limit(limit).Offset(offset).Find(&listings).Error; err != nil {
		return nil, 0, err
	}
	return listings, total, nil
}

func (r *ListingRepositoryImpl) CountActive(ctx context.Context) (int64, error) {
	var count int64
	err := r.getDB(ctx).Model(&domain.Listing{}).Where("status = ?", domain.StatusActive).Count(&count).Error
	return count, err
}
