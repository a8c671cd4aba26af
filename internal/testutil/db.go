// Package testutil 测试用的内存数据库和数据构造
package testutil

import (
	"fmt"
	"testing"
	"time"

	"deposit-reconciler/internal/model"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDB 每个测试一个独立的内存 sqlite，单连接保证并发测试串行化
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.AutoMigrate(model.AllModels()...); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

// Clock 可控的测试时钟
type Clock struct {
	T time.Time
}

func NewClock() *Clock {
	return &Clock{T: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *Clock) Now() time.Time { return c.T }

func (c *Clock) Advance(d time.Duration) { c.T = c.T.Add(d) }

func MustCreate(t *testing.T, db *gorm.DB, v interface{}) {
	t.Helper()
	if err := db.Create(v).Error; err != nil {
		t.Fatalf("create %T: %v", v, err)
	}
}

// Intent 构造一个 pending intent
func Intent(t *testing.T, db *gorm.DB, userID uint64, network model.Network, amount string, createdAt, expiresAt time.Time) *model.DepositIntent {
	t.Helper()
	in := &model.DepositIntent{
		UserID:         userID,
		Network:        network,
		ExpectedAmount: decimal.RequireFromString(amount),
		ReferenceCode:  uuid.NewString(),
		Status:         model.IntentPending,
		CreatedAt:      createdAt,
		ExpiresAt:      expiresAt,
	}
	MustCreate(t, db, in)
	return in
}

// Balance 读取用户余额，不存在返回 0
func Balance(t *testing.T, db *gorm.DB, userID uint64) decimal.Decimal {
	t.Helper()
	var b model.UserBalance
	err := db.Where("user_id = ?", userID).Limit(1).Find(&b).Error
	if err != nil {
		t.Fatalf("read balance: %v", err)
	}
	return b.AvailableBalance
}

func Reload(t *testing.T, db *gorm.DB, v interface{}, id uint64) {
	t.Helper()
	if err := db.First(v, id).Error; err != nil {
		t.Fatalf("reload %T %d: %v", v, id, err)
	}
}
