package store

import (
	"context"

	"deposit-reconciler/internal/model"

	"gorm.io/gorm"
)

type WalletStore struct {
	db *gorm.DB
}

func NewWalletStore(db *gorm.DB) *WalletStore {
	return &WalletStore{db: db}
}

// ListActive 返回所有启用的主钱包，按网络分组前的原始列表
func (s *WalletStore) ListActive(ctx context.Context) ([]model.MainWallet, error) {
	var wallets []model.MainWallet
	err := s.db.WithContext(ctx).Where("is_active = ?", true).Order("network, id").Find(&wallets).Error
	return wallets, err
}

func (s *WalletStore) ListActiveByNetwork(ctx context.Context, network model.Network) ([]model.MainWallet, error) {
	var wallets []model.MainWallet
	err := s.db.WithContext(ctx).Where("is_active = ? AND network = ?", true, network).Order("id").Find(&wallets).Error
	return wallets, err
}

// MinConfirmationsByAddress 包含已停用的钱包，停用前的入账仍然要按原阈值确认
func (s *WalletStore) MinConfirmationsByAddress(ctx context.Context, network model.Network) (map[string]int, error) {
	var wallets []model.MainWallet
	if err := s.db.WithContext(ctx).Where("network = ?", network).Find(&wallets).Error; err != nil {
		return nil, err
	}
	out := make(map[string]int, len(wallets))
	for _, w := range wallets {
		out[w.Address] = w.MinConfirmations
	}
	return out, nil
}

// GroupByNetwork 按网络分组
func GroupByNetwork(wallets []model.MainWallet) map[model.Network][]model.MainWallet {
	out := make(map[model.Network][]model.MainWallet)
	for _, w := range wallets {
		out[w.Network] = append(out[w.Network], w)
	}
	return out
}
