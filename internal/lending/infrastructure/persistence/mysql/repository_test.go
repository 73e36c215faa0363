package mysql

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wyfcoding/yieldmarket/internal/lending/domain"
	"github.com/wyfcoding/yieldmarket/pkg/db"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newMockDB(t *testing.T) (*db.DB, sqlmock.Sqlmock) {
	t.Helper()

	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	gdb, err := gorm.Open(gormmysql.New(gormmysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{Logger: gormlogger.Discard})
	require.NoError(t, err)

	return &db.DB{DB: gdb}, mock
}

func TestStrategyGetByKeyLocksRowInsideTransaction(t *testing.T) {
	database, mock := newMockDB(t)
	repo := NewStrategyRepository(database)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM `strategies` WHERE strategy_key = (.+)FOR UPDATE").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	err := database.WithTx(context.Background(), func(ctx context.Context) error {
		_, err := repo.GetByKey(ctx, "some-key")
		return err
	})
	assert.ErrorIs(t, err, domain.ErrStrategyNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserDepositGetLocksRowInsideTransaction(t *testing.T) {
	database, mock := newMockDB(t)
	repo := NewUserDepositRepository(database)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM `user_deposits` WHERE owner = (.+) AND strategy_key = (.+)FOR UPDATE").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	err := database.WithTx(context.Background(), func(ctx context.Context) error {
		_, err := repo.Get(ctx, "alice", "some-key")
		return err
	})
	assert.ErrorIs(t, err, domain.ErrPositionNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
