// 包 domain 托管代币账本的领域模型
package domain

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	ErrAccountNotFound   = errors.New("token account not found")
	ErrMintNotFound      = errors.New("mint not found")
	ErrZeroAmount        = errors.New("amount must be positive")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrMintMismatch      = errors.New("token accounts belong to different mints")
	ErrUnauthorizedMint  = errors.New("caller is not the mint authority")
)

// Mint 代币发行记录
// 策略的 YT mint 与底层资产 mint 都以一行 Mint 表示
type Mint struct {
	gorm.Model
	// 发行地址（业务主键），由种子确定性派生或外部给定
	Address string `gorm:"column:address;type:varchar(64);uniqueIndex;not null" json:"address"`
	// 代币符号（如 USDC, YT-USDC-1）
	Symbol string `gorm:"column:symbol;type:varchar(32);not null" json:"symbol"`
	// 小数位数
	Decimals int32 `gorm:"column:decimals;not null" json:"decimals"`
	// 流通总量
	Supply decimal.Decimal `gorm:"column:supply;type:decimal(32,0);default:0;not null" json:"supply"`
	// 铸造权限持有者
	Authority string `gorm:"column:authority;type:varchar(64);not null" json:"authority"`
}

// TokenAccount 代币账户
// 余额以最小单位计，始终非负；托管账户（vault/escrow）的 Owner 为协议自身
type TokenAccount struct {
	gorm.Model
	// 账户地址（业务主键），确定性派生
	Address string `gorm:"column:address;type:varchar(64);uniqueIndex;not null" json:"address"`
	// 所属 mint 地址
	Mint string `gorm:"column:mint;type:varchar(64);index;not null" json:"mint"`
	// 持有人
	Owner string `gorm:"column:owner;type:varchar(64);index;not null" json:"owner"`
	// 余额（最小单位）
	Balance decimal.Decimal `gorm:"column:balance;type:decimal(32,0);default:0;not null" json:"balance"`
}

// DeriveAddress 由固定种子确定性派生账户地址。
// 相同种子必然得到相同地址，是托管账户（vault/escrow/listing key）的唯一寻址方式。
func DeriveAddress(seeds ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(seeds, "/")))
	return hex.EncodeToString(sum[:])
}

// MinimumDepositUnit 返回 mint 的一个完整单位（10^decimals）
func (m *Mint) MinimumDepositUnit() decimal.Decimal {
	return decimal.New(1, m.Decimals)
}

// Transfer 在两个同 mint 账户间转账，借贷双方在同一事务内各记一笔
func Transfer(from, to *TokenAccount, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrZeroAmount
	}
	if from.Mint != to.Mint {
		return ErrMintMismatch
	}
	if from.Balance.LessThan(amount) {
		return ErrInsufficientFunds
	}
	from.Balance = from.Balance.Sub(amount)
	to.Balance = to.Balance.Add(amount)
	return nil
}

// MintTo 铸造 amount 到目标账户，同时增加流通量
func MintTo(mint *Mint, to *TokenAccount, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrZeroAmount
	}
	if to.Mint != mint.Address {
		return ErrMintMismatch
	}
	mint.Supply = mint.Supply.Add(amount)
	to.Balance = to.Balance.Add(amount)
	return nil
}

// Burn 从账户销毁 amount，同时减少流通量
func Burn(mint *Mint, from *TokenAccount, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrZeroAmount
	}
	if from.Mint != mint.Address {
		return ErrMintMismatch
	}
	if from.Balance.LessThan(amount) {
		return ErrInsufficientFunds
	}
	mint.Supply = mint.Supply.Sub(amount)
	from.Balance = from.Balance.Sub(amount)
	return nil
}

// NewTokenAccount 创建零余额账户，地址由 (mint, owner) 派生
func NewTokenAccount(mint, owner string) *TokenAccount {
	return &TokenAccount{
		Address: DeriveAddress("token", mint, owner),
		Mint:    mint,
		Owner:   owner,
		Balance: decimal.Zero,
	}
}

// MintRepository mint 仓储接口
type MintRepository interface {
	// Save 保存或更新 mint
	Save(ctx context.Context, mint *Mint) error
	// GetByAddress 根据地址获取 mint
	GetByAddress(ctx context.Context, address string) (*Mint, error)
}

// TokenAccountRepository 代币账户仓储接口
type TokenAccountRepository interface {
	// Save 保存或更新账户
	Save(ctx context.Context, account *TokenAccount) error
	// GetByAddress 根据地址获取账户
	GetByAddress(ctx context.Context, address string) (*TokenAccount, error)
	// GetOrCreate 获取 (mint, owner) 的账户，不存在则创建零余额账户
	GetOrCreate(ctx context.Context, mint, owner string) (*TokenAccount, error)
}
