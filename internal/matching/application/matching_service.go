// Package application 合同匹配上下文的应用服务。
package application

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/wyfcoding/oiltrading/internal/matching/domain"
)

// RegisterContractCommand 向台账登记合同
type RegisterContractCommand struct {
	LedgerNo        string
	ContractKind    domain.ContractKind
	ContractID      string
	TotalQuantityMT decimal.Decimal
}

// CreateMatchCommand 建立匹配
type CreateMatchCommand struct {
	LedgerNo           string
	PurchaseContractID string
	SalesContractID    string
	QuantityMT         decimal.Decimal
	Operator           string
}

// MatchingService 处理匹配台账的读写操作。
type MatchingService struct {
	ledgerRepo domain.MatchingLedgerRepository
	groupRepo  domain.TradeGroupRepository
}

func NewMatchingService(ledgerRepo domain.MatchingLedgerRepository, groupRepo domain.TradeGroupRepository) *MatchingService {
	return &MatchingService{ledgerRepo: ledgerRepo, groupRepo: groupRepo}
}

// CreateLedger 创建匹配台账
func (s *MatchingService) CreateLedger(ctx context.Context, productCode, operator string) (*domain.MatchingLedger, error) {
	ledger := domain.NewMatchingLedger(productCode, operator)
	if err := s.ledgerRepo.Save(ctx, ledger); err != nil {
		return nil, fmt.Errorf("failed to save matching ledger: %w", err)
	}
	slog.InfoContext(ctx, "matching ledger created", "ledger_no", ledger.LedgerNo, "product", productCode)
	return ledger, nil
}

// RegisterContract 登记合同
func (s *MatchingService) RegisterContract(ctx context.Context, cmd *RegisterContractCommand) (*domain.MatchingLedger, error) {
	ledger, err := s.ledgerRepo.FindByNo(ctx, cmd.LedgerNo)
	if err != nil {
		return nil, err
	}
	ref := domain.ContractRef{Kind: cmd.ContractKind, ID: cmd.ContractID}
	if err := ledger.RegisterContract(ref, cmd.TotalQuantityMT); err != nil {
		return nil, err
	}
	if err := s.ledgerRepo.Save(ctx, ledger); err != nil {
		return nil, fmt.Errorf("failed to save matching ledger: %w", err)
	}
	return ledger, nil
}

// AdjustContractQuantity 调整合同总量
func (s *MatchingService) AdjustContractQuantity(ctx context.Context, ledgerNo string, ref domain.ContractRef, quantityMT decimal.Decimal) (*domain.MatchingLedger, error) {
	ledger, err := s.ledgerRepo.FindByNo(ctx, ledgerNo)
	if err != nil {
		return nil, err
	}
	if err := ledger.AdjustContractQuantity(ref, quantityMT); err != nil {
		return nil, err
	}
	if err := s.ledgerRepo.Save(ctx, ledger); err != nil {
		return nil, fmt.Errorf("failed to save matching ledger: %w", err)
	}
	return ledger, nil
}

// CreateMatch 建立匹配
func (s *MatchingService) CreateMatch(ctx context.Context, cmd *CreateMatchCommand) (*domain.ContractMatch, error) {
	ledger, err := s.ledgerRepo.FindByNo(ctx, cmd.LedgerNo)
	if err != nil {
		return nil, err
	}
	match, err := ledger.CreateMatch(cmd.PurchaseContractID, cmd.SalesContractID, cmd.QuantityMT, cmd.Operator)
	if err != nil {
		return nil, err
	}
	if err := s.ledgerRepo.Save(ctx, ledger); err != nil {
		return nil, fmt.Errorf("failed to save matching ledger: %w", err)
	}
	slog.InfoContext(ctx, "contracts matched",
		"match_no", match.MatchNo,
		"purchase", cmd.PurchaseContractID,
		"sales", cmd.SalesContractID,
		"quantity_mt", cmd.QuantityMT.String())
	return match, nil
}

// ReleaseMatch 解除匹配
func (s *MatchingService) ReleaseMatch(ctx context.Context, ledgerNo, matchNo, reason string) error {
	ledger, err := s.ledgerRepo.FindByNo(ctx, ledgerNo)
	if err != nil {
		return err
	}
	if err := ledger.ReleaseMatch(matchNo, reason); err != nil {
		return err
	}
	if err := s.ledgerRepo.Save(ctx, ledger); err != nil {
		return fmt.Errorf("failed to save matching ledger: %w", err)
	}
	return nil
}

// GetPosition 查询合同头寸
func (s *MatchingService) GetPosition(ctx context.Context, ledgerNo string, ref domain.ContractRef) (*domain.ContractPosition, error) {
	ledger, err := s.ledgerRepo.FindByNo(ctx, ledgerNo)
	if err != nil {
		return nil, err
	}
	return ledger.Position(ref)
}

// GetLedger 查询台账
func (s *MatchingService) GetLedger(ctx context.Context, ledgerNo string) (*domain.MatchingLedger, error) {
	return s.ledgerRepo.FindByNo(ctx, ledgerNo)
}

// CreateTradeGroup 创建贸易组
func (s *MatchingService) CreateTradeGroup(ctx context.Context, name, productCode, operator string) (*domain.TradeGroup, error) {
	group := domain.NewTradeGroup(name, productCode, operator)
	if err := s.groupRepo.Save(ctx, group); err != nil {
		return nil, fmt.Errorf("failed to save trade group: %w", err)
	}
	return group, nil
}

// AddGroupLeg 向贸易组添加成员合同，并把涉及该合同的匹配归组
func (s *MatchingService) AddGroupLeg(ctx context.Context, groupNo string, ref domain.ContractRef, quantityMT, amount decimal.Decimal, currency string) (*domain.TradeGroup, error) {
	group, err := s.groupRepo.FindByNo(ctx, groupNo)
	if err != nil {
		return nil, err
	}
	if err := group.AddLeg(ref, quantityMT, amount, currency); err != nil {
		return nil, err
	}
	if err := s.groupRepo.Save(ctx, group); err != nil {
		return nil, fmt.Errorf("failed to save trade group: %w", err)
	}
	return group, nil
}

// CloseTradeGroup 关闭贸易组
func (s *MatchingService) CloseTradeGroup(ctx context.Context, groupNo string) (*domain.TradeGroup, error) {
	group, err := s.groupRepo.FindByNo(ctx, groupNo)
	if err != nil {
		return nil, err
	}
	if err := group.Close(); err != nil {
		return nil, err
	}
	if err := s.groupRepo.Save(ctx, group); err != nil {
		return nil, fmt.Errorf("failed to save trade group: %w", err)
	}
	slog.InfoContext(ctx, "trade group closed",
		"group_no", groupNo,
		"gross_pnl", group.GrossPnL().String())
	return group, nil
}

// GetTradeGroup 查询贸易组
func (s *MatchingService) GetTradeGroup(ctx context.Context, groupNo string) (*domain.TradeGroup, error) {
	return s.groupRepo.FindByNo(ctx, groupNo)
}
