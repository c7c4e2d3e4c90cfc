package premium

import "time"

// PremiumAsset is a piece of content behind the pay-per-view gate. Price is
// lamports; non-premium assets are open to everyone.
type PremiumAsset struct {
	AssetID   string    `gorm:"column:asset_id;primaryKey;type:varchar(32)"`
	ContentID string    `gorm:"column:content_id;index;not null"`
	OwnerID   string    `gorm:"column:owner_id;index;not null"`
	IsPremium bool      `gorm:"column:is_premium;not null;default:true"`
	Price     int64     `gorm:"column:price;not null"`
	Currency  string    `gorm:"column:currency;type:varchar(10);not null;default:'SOL'"`
	Payee     string    `gorm:"column:payee;type:varchar(64);not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (PremiumAsset) TableName() string {
	return "premium_assets"
}

// PurchaseRecord is a confirmed pay-per-view purchase. The (buyer, asset)
// pair is unique; confirming twice is a no-op.
type PurchaseRecord struct {
	PurchaseID          string    `gorm:"column:purchase_id;primaryKey;type:varchar(32)"`
	BuyerID             string    `gorm:"column:buyer_id;not null;uniqueIndex:idx_purchase_buyer_asset,priority:1"`
	AssetID             string    `gorm:"column:asset_id;not null;uniqueIndex:idx_purchase_buyer_asset,priority:2"`
	PricePaid           int64     `gorm:"column:price_paid;not null"`
	SettlementSignature string    `gorm:"column:settlement_signature;type:varchar(128);uniqueIndex;not null"`
	ConfirmedAt         time.Time `gorm:"column:confirmed_at;autoCreateTime"`
}

func (PurchaseRecord) TableName() string {
	return "purchase_records"
}

type AccessVerdict string

const (
	AccessGranted         AccessVerdict = "GRANTED"
	AccessPaymentRequired AccessVerdict = "PAYMENT_REQUIRED"
)

// Decision is the outcome of an access check. Price fields are populated only
// when payment is required.
type Decision struct {
	Verdict  AccessVerdict `json:"verdict"`
	Price    int64         `json:"price,omitempty"`
	PriceSOL string        `json:"price_sol,omitempty"`
	Currency string        `json:"currency,omitempty"`
	Payee    string        `json:"payee,omitempty"`
}
