package payout

import (
	"time"

	"gorm.io/datatypes"
)

type SettlementStatus string

const (
	SettlementSubmitted  SettlementStatus = "SUBMITTED"
	SettlementConfirmed  SettlementStatus = "CONFIRMED"
	SettlementReconciled SettlementStatus = "RECONCILED"
	SettlementFailed     SettlementStatus = "FAILED"
)

// Settlement records one on-chain payout attempt. The row is written before
// the transfer is broadcast and already carries the transfer signature and
// the exact claim ids it covers, so no broadcast can outrun its record. A row
// stuck in SUBMITTED marks the crash window the reconcile sweep repairs.
type Settlement struct {
	SettlementID  string           `gorm:"column:settlement_id;primaryKey;type:varchar(32)"`
	Code          string           `gorm:"column:code;type:varchar(20)"`
	SubjectID     string           `gorm:"column:subject_id;index:idx_settlement_pair;not null"`
	CampaignID    string           `gorm:"column:campaign_id;index:idx_settlement_pair;not null"`
	PayoutAddress string           `gorm:"column:payout_address;type:varchar(64);not null"`
	Amount        int64            `gorm:"column:amount;not null"`
	ClaimIDs      datatypes.JSON   `gorm:"column:claim_ids;not null"`
	Signature     string           `gorm:"column:signature;type:varchar(128);not null"`
	Status        SettlementStatus `gorm:"column:status;type:varchar(20);index;not null"`
	CreatedAt     time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}

func (Settlement) TableName() string {
	return "settlements"
}

// SettlementResult is what callers get back from a settle request.
type SettlementResult struct {
	SettlementID string           `json:"settlement_id"`
	Code         string           `json:"code,omitempty"`
	Signature    string           `json:"signature"`
	Amount       int64            `json:"amount"`
	ClaimCount   int              `json:"claim_count"`
	Status       SettlementStatus `json:"status"`
}
