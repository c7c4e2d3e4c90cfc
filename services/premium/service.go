package premium

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"sharemint-core/pkg/config"
	"sharemint-core/pkg/currency"
	"sharemint-core/pkg/errutil"
	"sharemint-core/pkg/repository"
	"sharemint-core/pkg/solana"
)

const ReasonPaymentRequired = "PaymentRequired"

// Service decides who may view premium content. Internal failures never grant
// access: every error path returns a rejection.
type Service struct {
	node    *snowflake.Node
	gateway solana.Gateway

	assets    repository.Repository[PremiumAsset]
	purchases repository.Repository[PurchaseRecord]

	confirmTimeout time.Duration
}

type ServiceParams struct {
	fx.In

	DB      *gorm.DB
	Node    *snowflake.Node
	Config  *config.Config
	Gateway solana.Gateway
}

func NewService(p ServiceParams) *Service {
	return &Service{
		node:           p.Node,
		gateway:        p.Gateway,
		assets:         repository.ProvideStore[PremiumAsset](p.DB),
		purchases:      repository.ProvideStore[PurchaseRecord](p.DB),
		confirmTimeout: p.Config.Chain.ConfirmTimeout,
	}
}

type CreateAssetInput struct {
	ContentID string
	OwnerID   string
	IsPremium bool
	Price     int64
	Payee     string
}

func (s *Service) CreateAsset(ctx context.Context, in CreateAssetInput) (*PremiumAsset, error) {
	if in.ContentID == "" {
		return nil, errutil.ValidationFailed("content_id is required", nil)
	}
	if in.IsPremium {
		if in.Price <= 0 {
			return nil, errutil.ValidationFailed("premium assets need a positive price", nil)
		}
		if _, err := solana.DecodeAddress(in.Payee); err != nil {
			return nil, errutil.ValidationFailed("payee is not a valid account key", err, errutil.WithErr(err))
		}
	}

	asset := &PremiumAsset{
		AssetID:   s.node.Generate().String(),
		ContentID: in.ContentID,
		OwnerID:   in.OwnerID,
		IsPremium: in.IsPremium,
		Price:     in.Price,
		Currency:  "SOL",
		Payee:     in.Payee,
	}
	if err := s.assets.Create(ctx, asset); err != nil {
		return nil, err
	}
	return asset, nil
}

func (s *Service) GetAsset(ctx context.Context, assetID string) (*PremiumAsset, error) {
	asset, err := s.assets.FindOne(ctx, &PremiumAsset{AssetID: assetID})
	if err != nil {
		return nil, err
	}
	if asset == nil {
		return nil, errutil.NotFound("asset not found", nil)
	}
	return asset, nil
}

// CheckAccess evaluates the gate for subjectID, empty for anonymous callers.
// Order: open content is granted, then owner, then recorded purchase; anyone
// else gets the payment terms.
func (s *Service) CheckAccess(ctx context.Context, subjectID, assetID string) (*Decision, error) {
	asset, err := s.GetAsset(ctx, assetID)
	if err != nil {
		// lookup failure is a denial, not a fallback
		return nil, err
	}

	if !asset.IsPremium {
		return &Decision{Verdict: AccessGranted}, nil
	}

	if subjectID != "" {
		if subjectID == asset.OwnerID {
			return &Decision{Verdict: AccessGranted}, nil
		}

		purchase, err := s.purchases.FindOne(ctx, &PurchaseRecord{
			BuyerID: subjectID,
			AssetID: assetID,
		})
		if err != nil {
			zap.L().Error("purchase lookup failed",
				zap.String("asset_id", assetID),
				zap.String("subject_id", subjectID),
				zap.Error(err),
			)
			return nil, errutil.Internal("access check unavailable", err, errutil.WithErr(err))
		}
		if purchase != nil {
			return &Decision{Verdict: AccessGranted}, nil
		}
	}

	return &Decision{
		Verdict:  AccessPaymentRequired,
		Price:    asset.Price,
		PriceSOL: currency.FromLamports(asset.Price).String(),
		Currency: asset.Currency,
		Payee:    asset.Payee,
	}, nil
}

// ConfirmPurchase records a pay-per-view payment after verifying the transfer
// signature on chain. A signature can back exactly one purchase.
func (s *Service) ConfirmPurchase(ctx context.Context, buyerID, assetID, signature string) (*PurchaseRecord, error) {
	if signature == "" {
		return nil, errutil.ValidationFailed("payment signature is required", nil)
	}

	asset, err := s.GetAsset(ctx, assetID)
	if err != nil {
		return nil, err
	}
	if !asset.IsPremium {
		return nil, errutil.BadRequest("asset is not premium", nil)
	}
	if buyerID == asset.OwnerID {
		return nil, errutil.BadRequest("owners do not purchase their own content", nil)
	}

	existing, err := s.purchases.FindOne(ctx, &PurchaseRecord{BuyerID: buyerID, AssetID: assetID})
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	confirmCtx, cancel := context.WithTimeout(ctx, s.confirmTimeout)
	defer cancel()
	status, err := s.gateway.Confirm(confirmCtx, signature)
	if err != nil {
		return nil, errutil.BadGateway("payment verification failed", err, errutil.WithErr(err))
	}
	if status != solana.StatusConfirmed {
		return nil, errutil.PaymentRequired("payment is not confirmed on chain", nil,
			errutil.WithReason(ReasonPaymentRequired))
	}

	purchase := &PurchaseRecord{
		PurchaseID:          s.node.Generate().String(),
		BuyerID:             buyerID,
		AssetID:             assetID,
		PricePaid:           asset.Price,
		SettlementSignature: signature,
	}
	if err := s.purchases.Create(ctx, purchase); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, errutil.Conflict("payment signature already used", err)
		}
		return nil, err
	}

	zap.L().Info("purchase confirmed",
		zap.String("asset_id", assetID),
		zap.String("buyer_id", buyerID),
		zap.Int64("price_paid", purchase.PricePaid),
	)
	return purchase, nil
}
