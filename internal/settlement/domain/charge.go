package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ChargeType 费用类型
type ChargeType string

const (
	ChargeTypeDemurrage        ChargeType = "DEMURRAGE"         // 滞期费
	ChargeTypeDespatch         ChargeType = "DESPATCH"          // 速遣费
	ChargeTypeInspectionFee    ChargeType = "INSPECTION_FEE"    // 检验费
	ChargeTypePortCharges      ChargeType = "PORT_CHARGES"      // 港口费
	ChargeTypeFreightCost      ChargeType = "FREIGHT_COST"      // 运费
	ChargeTypeInsurancePremium ChargeType = "INSURANCE_PREMIUM" // 保险费
	ChargeTypeBankCharges      ChargeType = "BANK_CHARGES"      // 银行手续费
	ChargeTypeStorageFee       ChargeType = "STORAGE_FEE"       // 仓储费
	ChargeTypeAgencyFee        ChargeType = "AGENCY_FEE"        // 代理费
	ChargeTypeOther            ChargeType = "OTHER"             // 其他
)

// IsValid 判断费用类型是否为已定义的枚举值
func (t ChargeType) IsValid() bool {
	switch t {
	case ChargeTypeDemurrage, ChargeTypeDespatch, ChargeTypeInspectionFee,
		ChargeTypePortCharges, ChargeTypeFreightCost, ChargeTypeInsurancePremium,
		ChargeTypeBankCharges, ChargeTypeStorageFee, ChargeTypeAgencyFee, ChargeTypeOther:
		return true
	}
	return false
}

// IsDeduction 该费用类型是否为抵扣项。
// 约定：费用金额一律存为非负数，方向由类型表达；
// 抵扣类型（目前仅速遣费）通过 EffectiveAmount 以负数参与结算汇总。
func (t ChargeType) IsDeduction() bool {
	return t == ChargeTypeDespatch
}

// SettlementCharge 结算费用明细。只能通过 Settlement 的费用台账方法创建和删除。
type SettlementCharge struct {
	ID           uint            `gorm:"primaryKey" json:"id"`
	ChargeNo     string          `gorm:"column:charge_no;type:varchar(32);uniqueIndex;not null" json:"charge_no"`
	SettlementNo string          `gorm:"column:settlement_no;type:varchar(32);index;not null" json:"settlement_no"`
	ChargeType   ChargeType      `gorm:"column:charge_type;type:varchar(32);not null" json:"charge_type"`
	Description  string          `gorm:"column:description;type:varchar(255)" json:"description"`
	Amount       decimal.Decimal `gorm:"column:amount;type:decimal(20,4);not null" json:"amount"`
	Currency     string          `gorm:"column:currency;type:varchar(3);not null" json:"currency"`
	IncurredAt   *time.Time      `gorm:"column:incurred_at" json:"incurred_at"`
	Reference    string          `gorm:"column:reference;type:varchar(64)" json:"reference"`
	CreatedBy    string          `gorm:"column:created_by;type:varchar(64)" json:"created_by"`
	CreatedAt    time.Time       `json:"created_at"`
}

// TableName 表名
func (SettlementCharge) TableName() string {
	return "settlement_charges"
}

// EffectiveAmount 返回该费用对结算总额的有效贡献：
// 抵扣类型取负值，其余类型取正值。存储金额本身恒为非负。
func (c *SettlementCharge) EffectiveAmount() decimal.Decimal {
	if c.ChargeType.IsDeduction() {
		return c.Amount.Neg()
	}
	return c.Amount
}
