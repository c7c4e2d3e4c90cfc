package campaign

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"sharemint-core/pkg/errutil"
	"sharemint-core/pkg/repository"
	"sharemint-core/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func newTestService(t *testing.T) *Service {
	db := testutil.NewTestDB(t, &Campaign{}, &ClaimEntry{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	return &Service{
		db:        db,
		node:      node,
		campaigns: repository.ProvideStore[Campaign](db),
		claims:    repository.ProvideStore[ClaimEntry](db),
		now:       time.Now,
	}
}

func seedCampaign(t *testing.T, svc *Service, reward, budget int64, maxShares *int) *Campaign {
	t.Helper()
	c, err := svc.CreateCampaign(context.Background(), CreateCampaignInput{
		OwnerID:          "owner-1",
		Name:             "share to earn",
		RewardAmount:     reward,
		TotalBudget:      budget,
		MaxSharesPerUser: maxShares,
	})
	require.NoError(t, err)
	return c
}

func evidence() Evidence {
	return Evidence{Platform: "twitter", PostURL: "https://x.com/p/1"}
}

func requireReason(t *testing.T, err error, reason string) {
	t.Helper()
	var be errutil.BaseError
	require.True(t, errors.As(err, &be), "expected BaseError, got %v", err)
	require.Equal(t, reason, be.Reason)
}

func TestCreateCampaignValidation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	cases := []CreateCampaignInput{
		{OwnerID: "o", RewardAmount: 1, TotalBudget: 1},                          // no name
		{OwnerID: "o", Name: "c", RewardAmount: 0, TotalBudget: 1},               // zero reward
		{OwnerID: "o", Name: "c", RewardAmount: -1, TotalBudget: 1},              // negative reward
		{OwnerID: "o", Name: "c", RewardAmount: 1, TotalBudget: 0},               // zero budget
		{OwnerID: "o", Name: "c", RewardAmount: 10, TotalBudget: 5},              // reward > budget
		{OwnerID: "o", Name: "c", RewardAmount: 1, TotalBudget: 1, MaxSharesPerUser: intPtr(0)}, // unlimited not allowed
	}
	for i, in := range cases {
		_, err := svc.CreateCampaign(ctx, in)
		require.Error(t, err, "case %d", i)
	}
}

func TestRecordClaimSuccess(t *testing.T) {
	svc := newTestService(t)
	c := seedCampaign(t, svc, 300_000_000, 1_000_000_000, nil)
	ctx := context.Background()

	entry, err := svc.RecordClaim(ctx, "subject-1", c.CampaignID, evidence())
	require.NoError(t, err)
	require.Equal(t, 1, entry.Seq)
	require.Equal(t, int64(300_000_000), entry.RewardAmount)
	require.Equal(t, ClaimStatusVerified, entry.Status)
	require.False(t, entry.IsClaimed)

	got, err := svc.GetCampaign(ctx, c.CampaignID)
	require.NoError(t, err)
	require.Equal(t, int64(300_000_000), got.SpentBudget)
}

func TestRecordClaimUnknownCampaign(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.RecordClaim(context.Background(), "subject-1", "missing", evidence())
	requireReason(t, err, ReasonCampaignNotFound)
}

func TestRecordClaimInactive(t *testing.T) {
	svc := newTestService(t)
	c := seedCampaign(t, svc, 100, 1000, nil)
	ctx := context.Background()

	_, err := svc.DeactivateCampaign(ctx, "owner-1", c.CampaignID)
	require.NoError(t, err)

	_, err = svc.RecordClaim(ctx, "subject-1", c.CampaignID, evidence())
	requireReason(t, err, ReasonCampaignInactive)
}

func TestRecordClaimExpired(t *testing.T) {
	svc := newTestService(t)
	expires := time.Now().Add(time.Minute)
	c, err := svc.CreateCampaign(context.Background(), CreateCampaignInput{
		OwnerID: "owner-1", Name: "c", RewardAmount: 100, TotalBudget: 1000, ExpiresAt: &expires,
	})
	require.NoError(t, err)

	svc.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	_, err = svc.RecordClaim(context.Background(), "subject-1", c.CampaignID, evidence())
	requireReason(t, err, ReasonCampaignInactive)
}

func TestRecordClaimDuplicate(t *testing.T) {
	svc := newTestService(t)
	c := seedCampaign(t, svc, 100, 1000, nil)
	ctx := context.Background()

	_, err := svc.RecordClaim(ctx, "subject-1", c.CampaignID, evidence())
	require.NoError(t, err)

	_, err = svc.RecordClaim(ctx, "subject-1", c.CampaignID, evidence())
	requireReason(t, err, ReasonAlreadyClaimed)

	// budget debited exactly once
	got, err := svc.GetCampaign(ctx, c.CampaignID)
	require.NoError(t, err)
	require.Equal(t, int64(100), got.SpentBudget)
}

func TestRecordClaimShareLimit(t *testing.T) {
	svc := newTestService(t)
	c := seedCampaign(t, svc, 100, 1000, intPtr(3))
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		entry, err := svc.RecordClaim(ctx, "subject-1", c.CampaignID, evidence())
		require.NoError(t, err)
		require.Equal(t, i, entry.Seq)
	}

	_, err := svc.RecordClaim(ctx, "subject-1", c.CampaignID, evidence())
	requireReason(t, err, ReasonLimitReached)
}

func TestBudgetRefusesPartialPayout(t *testing.T) {
	// 0.3 SOL rewards from a 1 SOL budget: three claims land, the fourth is
	// refused even though 0.1 SOL remains.
	svc := newTestService(t)
	c := seedCampaign(t, svc, 300_000_000, 1_000_000_000, nil)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		_, err := svc.RecordClaim(ctx, fmt.Sprintf("subject-%d", i), c.CampaignID, evidence())
		require.NoError(t, err)
	}

	_, err := svc.RecordClaim(ctx, "subject-4", c.CampaignID, evidence())
	requireReason(t, err, ReasonBudgetExhausted)

	got, err := svc.GetCampaign(ctx, c.CampaignID)
	require.NoError(t, err)
	require.Equal(t, int64(900_000_000), got.SpentBudget)
}

func TestConcurrentClaimsNeverOverspend(t *testing.T) {
	svc := newTestService(t)
	c := seedCampaign(t, svc, 100, 500, nil) // room for 5 claims
	ctx := context.Background()

	const subjects = 20
	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0

	for i := 0; i < subjects; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := svc.RecordClaim(ctx, fmt.Sprintf("subject-%d", n), c.CampaignID, evidence())
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	require.Equal(t, 5, succeeded)

	got, err := svc.GetCampaign(ctx, c.CampaignID)
	require.NoError(t, err)
	require.Equal(t, int64(500), got.SpentBudget)

	var count int64
	require.NoError(t, svc.db.Model(&ClaimEntry{}).
		Where("campaign_id = ?", c.CampaignID).Count(&count).Error)
	require.Equal(t, int64(5), count)
}

func TestConcurrentDuplicateClaims(t *testing.T) {
	svc := newTestService(t)
	c := seedCampaign(t, svc, 100, 1000, nil)
	ctx := context.Background()

	const attempts = 10
	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.RecordClaim(ctx, "subject-1", c.CampaignID, evidence()); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 1, succeeded)

	got, err := svc.GetCampaign(ctx, c.CampaignID)
	require.NoError(t, err)
	require.Equal(t, int64(100), got.SpentBudget)
}

func TestDeactivateRequiresOwner(t *testing.T) {
	svc := newTestService(t)
	c := seedCampaign(t, svc, 100, 1000, nil)

	_, err := svc.DeactivateCampaign(context.Background(), "intruder", c.CampaignID)
	var be errutil.BaseError
	require.True(t, errors.As(err, &be))
	require.Equal(t, errutil.StatusForbidden, be.Code)
}

func TestUniqueClaimIndexBackstop(t *testing.T) {
	svc := newTestService(t)
	c := seedCampaign(t, svc, 100, 1000, nil)

	// simulate a racing writer inserting the same (campaign, subject, seq)
	require.NoError(t, svc.db.Create(&ClaimEntry{
		ClaimID: "racer", CampaignID: c.CampaignID, SubjectID: "subject-1", Seq: 1,
		Platform: "twitter", PostURL: "u", RewardAmount: 100, Status: ClaimStatusVerified,
	}).Error)

	err := svc.db.Create(&ClaimEntry{
		ClaimID: "loser", CampaignID: c.CampaignID, SubjectID: "subject-1", Seq: 1,
		Platform: "twitter", PostURL: "u", RewardAmount: 100, Status: ClaimStatusVerified,
	}).Error
	require.ErrorIs(t, err, gorm.ErrDuplicatedKey)
}

func intPtr(v int) *int { return &v }
