package domain

import "context"

// MatchingLedgerRepository 匹配台账仓储接口
type MatchingLedgerRepository interface {
	// Save 保存台账及其合同与匹配。版本不匹配返回 ErrVersionConflict。
	Save(ctx context.Context, ledger *MatchingLedger) error
	// FindByNo 按台账号查询，连带合同与匹配。未找到返回 ErrNotFound。
	FindByNo(ctx context.Context, ledgerNo string) (*MatchingLedger, error)
	// FindByProduct 按品种查询台账
	FindByProduct(ctx context.Context, productCode string) ([]*MatchingLedger, error)
	// FindMatchesByContract 查询涉及某合同的全部匹配
	FindMatchesByContract(ctx context.Context, ref ContractRef) ([]*ContractMatch, error)
}

// TradeGroupRepository 贸易组仓储接口
type TradeGroupRepository interface {
	Save(ctx context.Context, group *TradeGroup) error
	FindByNo(ctx context.Context, groupNo string) (*TradeGroup, error)
	FindOpen(ctx context.Context) ([]*TradeGroup, error)
}
