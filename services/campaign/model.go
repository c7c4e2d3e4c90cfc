package campaign

import (
	"time"

	"gorm.io/datatypes"
)

type ClaimStatus string

const (
	ClaimStatusVerified ClaimStatus = "VERIFIED"
	ClaimStatusClaimed  ClaimStatus = "CLAIMED"
)

// Campaign is a share-to-earn reward pool. All amounts are lamports.
// spent_budget is only ever mutated inside the claim-recording transaction.
type Campaign struct {
	CampaignID       string         `gorm:"column:campaign_id;primaryKey;type:varchar(32)"`
	Code             string         `gorm:"column:code;type:varchar(32)"`
	OwnerID          string         `gorm:"column:owner_id;index;not null"`
	Name             string         `gorm:"column:name;type:varchar(255);not null"`
	Description      string         `gorm:"column:description;type:text"`
	RewardAmount     int64          `gorm:"column:reward_amount;not null"`
	TotalBudget      int64          `gorm:"column:total_budget;not null"`
	SpentBudget      int64          `gorm:"column:spent_budget;not null;default:0"`
	MaxSharesPerUser *int           `gorm:"column:max_shares_per_user"`
	IsActive         bool           `gorm:"column:is_active;not null;default:true"`
	Metadata         datatypes.JSON `gorm:"column:metadata"`
	CreatedAt        time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time      `gorm:"column:updated_at;autoUpdateTime"`
	ExpiresAt        *time.Time     `gorm:"column:expires_at"`
}

func (Campaign) TableName() string {
	return "campaigns"
}

// Active reports whether the campaign accepts claims at now.
func (c *Campaign) Active(now time.Time) bool {
	if !c.IsActive {
		return false
	}
	if c.ExpiresAt != nil && !now.Before(*c.ExpiresAt) {
		return false
	}
	return true
}

// ShareLimit is the per-subject claim allowance. Unset means one share.
func (c *Campaign) ShareLimit() int {
	if c.MaxSharesPerUser == nil {
		return 1
	}
	return *c.MaxSharesPerUser
}

// RemainingBudget is what the campaign can still pay out.
func (c *Campaign) RemainingBudget() int64 {
	return c.TotalBudget - c.SpentBudget
}

// ClaimEntry is one verified share. seq is the subject's claim ordinal within
// the campaign; the unique index makes duplicate recording impossible even
// under concurrent requests.
type ClaimEntry struct {
	ClaimID             string         `gorm:"column:claim_id;primaryKey;type:varchar(32)"`
	CampaignID          string         `gorm:"column:campaign_id;not null;uniqueIndex:idx_claim_subject_seq,priority:1"`
	SubjectID           string         `gorm:"column:subject_id;index;not null;uniqueIndex:idx_claim_subject_seq,priority:2"`
	Seq                 int            `gorm:"column:seq;not null;uniqueIndex:idx_claim_subject_seq,priority:3"`
	Platform            string         `gorm:"column:platform;type:varchar(50);not null"`
	PostURL             string         `gorm:"column:post_url;type:text;not null"`
	Evidence            datatypes.JSON `gorm:"column:evidence"`
	RewardAmount        int64          `gorm:"column:reward_amount;not null"`
	Status              ClaimStatus    `gorm:"column:status;type:varchar(20);not null;default:'VERIFIED'"`
	IsClaimed           bool           `gorm:"column:is_claimed;not null;default:false"`
	SettlementSignature *string        `gorm:"column:settlement_signature"`
	VerifiedAt          time.Time      `gorm:"column:verified_at;autoCreateTime"`
	ClaimedAt           *time.Time     `gorm:"column:claimed_at"`
}

func (ClaimEntry) TableName() string {
	return "share_claims"
}

// Evidence is the share proof submitted with a claim.
type Evidence struct {
	Platform string         `json:"platform" binding:"required"`
	PostURL  string         `json:"post_url" binding:"required"`
	Metadata map[string]any `json:"metadata"`
}
