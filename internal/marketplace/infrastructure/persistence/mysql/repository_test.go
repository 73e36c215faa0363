package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wyfcoding/yieldmarket/internal/marketplace/domain"
	"github.com/wyfcoding/yieldmarket/pkg/db"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newMockDB(t *testing.T, matcher sqlmock.QueryMatcher) (*db.DB, sqlmock.Sqlmock) {
	t.Helper()

	var (
		sqlDB *sql.DB
		mock  sqlmock.Sqlmock
		err   error
	)
	if matcher != nil {
		sqlDB, mock, err = sqlmock.New(sqlmock.QueryMatcherOption(matcher))
	} else {
		sqlDB, mock, err = sqlmock.New()
	}
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	gdb, err := gorm.Open(gormmysql.New(gormmysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{Logger: gormlogger.Discard})
	require.NoError(t, err)

	return &db.DB{DB: gdb}, mock
}

// rejectLockingReads 一旦出现 FOR UPDATE 即失败的查询匹配器
var rejectLockingReads = sqlmock.QueryMatcherFunc(func(expected, actual string) error {
	if strings.Contains(actual, "FOR UPDATE") {
		return fmt.Errorf("unexpected locking read: %s", actual)
	}
	return nil
})

func TestGetByKeyLocksRowInsideTransaction(t *testing.T) {
	database, mock := newMockDB(t, nil)
	repo := NewListingRepository(database)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM `listings` WHERE listing_key = (.+)FOR UPDATE").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	err := database.WithTx(context.Background(), func(ctx context.Context) error {
		_, err := repo.GetByKey(ctx, "some-key")
		return err
	})
	assert.ErrorIs(t, err, domain.ErrListingNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByKeyPlainReadOutsideTransaction(t *testing.T) {
	database, mock := newMockDB(t, rejectLockingReads)
	repo := NewListingRepository(database)

	mock.ExpectQuery("").WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.GetByKey(context.Background(), "some-key")
	assert.ErrorIs(t, err, domain.ErrListingNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
