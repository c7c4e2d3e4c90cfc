package wallet

import "time"

// WalletBinding is the canonical payout address for a platform subject.
// Both sides are unique: a subject has one address and an address belongs to
// one subject.
type WalletBinding struct {
	SubjectID string    `gorm:"column:subject_id;primaryKey;type:varchar(64)"`
	Address   string    `gorm:"column:address;type:varchar(64);uniqueIndex;not null"`
	BoundAt   time.Time `gorm:"column:bound_at;autoCreateTime"`
}

func (WalletBinding) TableName() string {
	return "wallet_bindings"
}

// ReplayNonce is a consumed challenge nonce. Rows only ever get inserted;
// a second insert of the same nonce is the replay signal.
type ReplayNonce struct {
	Nonce     string    `gorm:"column:nonce;primaryKey;type:varchar(64)"`
	Address   string    `gorm:"column:address;type:varchar(64);not null"`
	ExpiresAt time.Time `gorm:"column:expires_at;index;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (ReplayNonce) TableName() string {
	return "replay_nonces"
}

// Identity is the outcome of a successful wallet verification.
type Identity struct {
	SubjectID string `json:"subject_id"`
	Address   string `json:"address"`
	Bound     bool   `json:"bound"`
}
