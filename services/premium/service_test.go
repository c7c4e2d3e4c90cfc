package premium

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"sharemint-core/pkg/errutil"
	"sharemint-core/pkg/repository"
	"sharemint-core/pkg/solana"
	"sharemint-core/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

// any 32-byte base58 key works as a payee in tests
const testPayee = "9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin"

type gatewayMock struct {
	confirmFn func(ctx context.Context, signature string) (solana.ConfirmationStatus, error)
}

func (m *gatewayMock) Submit(ctx context.Context, transfer *solana.SignedTransfer) (string, error) {
	return "", errors.New("not used")
}

func (m *gatewayMock) Confirm(ctx context.Context, signature string) (solana.ConfirmationStatus, error) {
	if m.confirmFn != nil {
		return m.confirmFn(ctx, signature)
	}
	return solana.StatusConfirmed, nil
}

func newTestService(t *testing.T) (*Service, *gatewayMock) {
	db := testutil.NewTestDB(t, &PremiumAsset{}, &PurchaseRecord{})
	node, err := snowflake.NewNode(3)
	require.NoError(t, err)

	gw := &gatewayMock{}
	return &Service{
		node:           node,
		gateway:        gw,
		assets:         repository.ProvideStore[PremiumAsset](db),
		purchases:      repository.ProvideStore[PurchaseRecord](db),
		confirmTimeout: time.Second,
	}, gw
}

func seedAsset(t *testing.T, svc *Service, premium bool, price int64) *PremiumAsset {
	t.Helper()
	in := CreateAssetInput{ContentID: "content-1", OwnerID: "owner-1", IsPremium: premium}
	if premium {
		in.Price = price
		in.Payee = testPayee
	}
	asset, err := svc.CreateAsset(context.Background(), in)
	require.NoError(t, err)
	return asset
}

func TestOpenContentIsGrantedToEveryone(t *testing.T) {
	svc, _ := newTestService(t)
	asset := seedAsset(t, svc, false, 0)
	ctx := context.Background()

	for _, subject := range []string{"", "owner-1", "stranger"} {
		decision, err := svc.CheckAccess(ctx, subject, asset.AssetID)
		require.NoError(t, err)
		require.Equal(t, AccessGranted, decision.Verdict)
	}
}

func TestPremiumAccessMatrix(t *testing.T) {
	svc, _ := newTestService(t)
	asset := seedAsset(t, svc, true, 500_000_000)
	ctx := context.Background()

	t.Run("owner", func(t *testing.T) {
		decision, err := svc.CheckAccess(ctx, "owner-1", asset.AssetID)
		require.NoError(t, err)
		require.Equal(t, AccessGranted, decision.Verdict)
	})

	t.Run("anonymous", func(t *testing.T) {
		decision, err := svc.CheckAccess(ctx, "", asset.AssetID)
		require.NoError(t, err)
		require.Equal(t, AccessPaymentRequired, decision.Verdict)
		require.Equal(t, int64(500_000_000), decision.Price)
		require.Equal(t, "0.5", decision.PriceSOL)
		require.Equal(t, "SOL", decision.Currency)
		require.Equal(t, testPayee, decision.Payee)
	})

	t.Run("non-purchaser", func(t *testing.T) {
		decision, err := svc.CheckAccess(ctx, "stranger", asset.AssetID)
		require.NoError(t, err)
		require.Equal(t, AccessPaymentRequired, decision.Verdict)
	})

	t.Run("purchaser", func(t *testing.T) {
		_, err := svc.ConfirmPurchase(ctx, "buyer-1", asset.AssetID, "pay-sig-1")
		require.NoError(t, err)

		decision, err := svc.CheckAccess(ctx, "buyer-1", asset.AssetID)
		require.NoError(t, err)
		require.Equal(t, AccessGranted, decision.Verdict)
	})
}

func TestCheckAccessFailsClosedOnMissingAsset(t *testing.T) {
	svc, _ := newTestService(t)

	decision, err := svc.CheckAccess(context.Background(), "anyone", "missing")
	require.Error(t, err)
	require.Nil(t, decision)
}

func TestConfirmPurchase(t *testing.T) {
	svc, gw := newTestService(t)
	asset := seedAsset(t, svc, true, 100)
	ctx := context.Background()

	t.Run("unconfirmed payment rejected", func(t *testing.T) {
		gw.confirmFn = func(ctx context.Context, signature string) (solana.ConfirmationStatus, error) {
			return solana.StatusUnknown, nil
		}
		_, err := svc.ConfirmPurchase(ctx, "buyer-1", asset.AssetID, "sig-pending")
		var be errutil.BaseError
		require.True(t, errors.As(err, &be))
		require.Equal(t, errutil.StatusPaymentRequired, be.Code)
	})

	t.Run("confirmed payment recorded once", func(t *testing.T) {
		gw.confirmFn = nil

		first, err := svc.ConfirmPurchase(ctx, "buyer-1", asset.AssetID, "sig-ok")
		require.NoError(t, err)
		require.Equal(t, int64(100), first.PricePaid)

		// idempotent for the same buyer
		again, err := svc.ConfirmPurchase(ctx, "buyer-1", asset.AssetID, "sig-other")
		require.NoError(t, err)
		require.Equal(t, first.PurchaseID, again.PurchaseID)
	})

	t.Run("signature cannot back two purchases", func(t *testing.T) {
		gw.confirmFn = nil
		_, err := svc.ConfirmPurchase(ctx, "buyer-2", asset.AssetID, "sig-ok")
		var be errutil.BaseError
		require.True(t, errors.As(err, &be))
		require.Equal(t, errutil.StatusConflict, be.Code)
	})

	t.Run("owner cannot purchase", func(t *testing.T) {
		_, err := svc.ConfirmPurchase(ctx, "owner-1", asset.AssetID, "sig-own")
		require.Error(t, err)
	})

	t.Run("open content cannot be purchased", func(t *testing.T) {
		open := seedAsset(t, svc, false, 0)
		_, err := svc.ConfirmPurchase(ctx, "buyer-1", open.AssetID, "sig-open")
		require.Error(t, err)
	})
}

func TestCreateAssetValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	cases := []CreateAssetInput{
		{OwnerID: "o", IsPremium: true, Price: 1, Payee: testPayee}, // no content id
		{ContentID: "c", OwnerID: "o", IsPremium: true, Price: 0, Payee: testPayee},
		{ContentID: "c", OwnerID: "o", IsPremium: true, Price: -5, Payee: testPayee},
		{ContentID: "c", OwnerID: "o", IsPremium: true, Price: 1, Payee: "bogus"},
	}
	for i, in := range cases {
		_, err := svc.CreateAsset(ctx, in)
		require.Error(t, err, "case %d", i)
	}
}
