// Package application 代币账本应用服务
package application

import (
	"context"
	"log/slog"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/yieldmarket/internal/ledger/domain"
)

// TxManager 在单个数据库事务内执行 fn
type TxManager interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// LedgerService 账本的管理面：登记 mint、管理员增发、余额查询。
// 资金在业务服务内流转，这里只提供准入与运维入口。
type LedgerService struct {
	mintRepo    domain.MintRepository
	accountRepo domain.TokenAccountRepository
	tx          TxManager
	logger      *slog.Logger
}

func NewLedgerService(
	mintRepo domain.MintRepository,
	accountRepo domain.TokenAccountRepository,
	tx TxManager,
	logger *slog.Logger,
) *LedgerService {
	return &LedgerService{
		mintRepo:    mintRepo,
		accountRepo: accountRepo,
		tx:          tx,
		logger:      logger.With("module", "ledger_service"),
	}
}

type RegisterMintCmd struct {
	Address   string
	Symbol    string
	Decimals  int32
	Authority string
}

// RegisterMint 登记一种底层资产；地址已存在时幂等返回现有记录
func (s *LedgerService) RegisterMint(ctx context.Context, cmd RegisterMintCmd) (*domain.Mint, error) {
	var mint *domain.Mint

	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		existing, err := s.mintRepo.GetByAddress(ctx, cmd.Address)
		if err == nil {
			mint = existing
			return nil
		}
		if err != domain.ErrMintNotFound {
			return err
		}

		mint = &domain.Mint{
			Address:   cmd.Address,
			Symbol:    cmd.Symbol,
			Decimals:  cmd.Decimals,
			Supply:    decimal.Zero,
			Authority: cmd.Authority,
		}
		return s.mintRepo.Save(ctx, mint)
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "mint registered", "address", cmd.Address, "symbol", cmd.Symbol)
	return mint, nil
}

// AdminMint 由 mint authority 向指定用户增发，用于入金对接与联调
func (s *LedgerService) AdminMint(ctx context.Context, caller, mintAddress, owner string, amount decimal.Decimal) (*domain.TokenAccount, error) {
	var account *domain.TokenAccount

	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		mint, err := s.mintRepo.GetByAddress(ctx, mintAddress)
		if err != nil {
			return err
		}
		if caller != mint.Authority {
			return domain.ErrUnauthorizedMint
		}

		account, err = s.accountRepo.GetOrCreate(ctx, mintAddress, owner)
		if err != nil {
			return err
		}
		if err := domain.MintTo(mint, account, amount); err != nil {
			return err
		}

		if err := s.mintRepo.Save(ctx, mint); err != nil {
			return err
		}
		return s.accountRepo.Save(ctx, account)
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "admin mint", "mint", mintAddress, "owner", owner, "amount", amount)
	return account, nil
}

// GetMint 查询 mint
func (s *LedgerService) GetMint(ctx context.Context, address string) (*domain.Mint, error) {
	return s.mintRepo.GetByAddress(ctx, address)
}

// GetBalance 查询某用户在某 mint 下的余额；账户不存在视为零
func (s *LedgerService) GetBalance(ctx context.Context, mintAddress, owner string) (decimal.Decimal, error) {
	account, err := s.accountRepo.GetByAddress(ctx, domain.DeriveAddress("token", mintAddress, owner))
	if err == domain.ErrAccountNotFound {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, err
	}
	return account.Balance, nil
}

// GetAccount 按地址查询账本账户
func (s *LedgerService) GetAccount(ctx context.Context, address string) (*domain.TokenAccount, error) {
	return s.accountRepo.GetByAddress(ctx, address)
}
