package campaign

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"sharemint-core/pkg/db/option"
	"sharemint-core/pkg/errutil"
	"sharemint-core/pkg/repository"
	"sharemint-core/pkg/sequence"
)

// Machine-readable reasons on claim rejections.
const (
	ReasonCampaignNotFound = "CampaignNotFound"
	ReasonCampaignInactive = "CampaignInactive"
	ReasonBudgetExhausted  = "BudgetExhausted"
	ReasonLimitReached     = "LimitReached"
	ReasonAlreadyClaimed   = "AlreadyClaimed"
)

type Service struct {
	db   *gorm.DB
	node *snowflake.Node
	seq  sequence.Generator

	campaigns repository.Repository[Campaign]
	claims    repository.Repository[ClaimEntry]

	now func() time.Time
}

type ServiceParams struct {
	fx.In

	DB   *gorm.DB
	Node *snowflake.Node
	Seq  sequence.Generator
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:        p.DB,
		node:      p.Node,
		seq:       p.Seq,
		campaigns: repository.ProvideStore[Campaign](p.DB),
		claims:    repository.ProvideStore[ClaimEntry](p.DB),
		now:       time.Now,
	}
}

type CreateCampaignInput struct {
	OwnerID          string
	Name             string
	Description      string
	RewardAmount     int64
	TotalBudget      int64
	MaxSharesPerUser *int
	Metadata         map[string]any
	ExpiresAt        *time.Time
}

func (s *Service) CreateCampaign(ctx context.Context, in CreateCampaignInput) (*Campaign, error) {
	if in.Name == "" {
		return nil, errutil.ValidationFailed("campaign name is required", nil)
	}
	if in.RewardAmount <= 0 {
		return nil, errutil.ValidationFailed("reward amount must be positive", nil)
	}
	if in.TotalBudget <= 0 {
		return nil, errutil.ValidationFailed("total budget must be positive", nil)
	}
	if in.RewardAmount > in.TotalBudget {
		return nil, errutil.ValidationFailed("reward amount exceeds total budget", nil)
	}
	if in.MaxSharesPerUser != nil && *in.MaxSharesPerUser < 1 {
		return nil, errutil.ValidationFailed("max shares per user must be at least 1", nil)
	}
	if in.ExpiresAt != nil && !in.ExpiresAt.After(s.now()) {
		return nil, errutil.ValidationFailed("expiry must be in the future", nil)
	}

	code := ""
	if s.seq != nil {
		generated, err := s.seq.NextCampaignCode(ctx)
		if err != nil {
			zap.L().Warn("campaign code generation failed", zap.Error(err))
		} else {
			code = generated
		}
	}

	c := &Campaign{
		CampaignID:       s.node.Generate().String(),
		Code:             code,
		OwnerID:          in.OwnerID,
		Name:             in.Name,
		Description:      in.Description,
		RewardAmount:     in.RewardAmount,
		TotalBudget:      in.TotalBudget,
		MaxSharesPerUser: in.MaxSharesPerUser,
		IsActive:         true,
		ExpiresAt:        in.ExpiresAt,
	}
	if in.Metadata != nil {
		raw, err := json.Marshal(in.Metadata)
		if err != nil {
			return nil, errutil.ValidationFailed("metadata is not serializable", err, errutil.WithErr(err))
		}
		c.Metadata = raw
	}

	if err := s.campaigns.Create(ctx, c); err != nil {
		zap.L().Error("failed to create campaign", zap.Error(err))
		return nil, errutil.Internal("failed to create campaign", err, errutil.WithErr(err))
	}
	return c, nil
}

func (s *Service) GetCampaign(ctx context.Context, campaignID string) (*Campaign, error) {
	c, err := s.campaigns.FindOne(ctx, &Campaign{CampaignID: campaignID})
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, errutil.NotFound("campaign not found", nil,
			errutil.WithReason(ReasonCampaignNotFound))
	}
	return c, nil
}

func (s *Service) ListCampaigns(ctx context.Context, ownerID string, opts ...option.QueryOption) ([]*Campaign, error) {
	return s.campaigns.Find(ctx, &Campaign{OwnerID: ownerID}, opts...)
}

// DeactivateCampaign stops further claims. Recorded claims stay payable.
func (s *Service) DeactivateCampaign(ctx context.Context, ownerID, campaignID string) (*Campaign, error) {
	c, err := s.GetCampaign(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if c.OwnerID != ownerID {
		return nil, errutil.Forbidden("only the campaign owner can deactivate it", nil)
	}
	if !c.IsActive {
		return c, nil
	}

	if err := s.campaigns.Update(ctx, campaignID, map[string]any{"is_active": false}); err != nil {
		return nil, err
	}
	c.IsActive = false
	return c, nil
}

func (s *Service) ListClaims(ctx context.Context, subjectID string, opts ...option.QueryOption) ([]*ClaimEntry, error) {
	return s.claims.Find(ctx, &ClaimEntry{SubjectID: subjectID}, opts...)
}

// RecordClaim applies the crediting rules atomically: the campaign row is
// locked, activity and per-subject limits re-checked under the lock, the
// budget debited with a conditional update, and the claim inserted with the
// next per-subject ordinal. Either every step lands or none do.
func (s *Service) RecordClaim(ctx context.Context, subjectID, campaignID string, ev Evidence) (*ClaimEntry, error) {
	if subjectID == "" {
		return nil, errutil.Unauthorized("claim requires a subject", nil)
	}
	if ev.Platform == "" || ev.PostURL == "" {
		return nil, errutil.ValidationFailed("platform and post_url are required", nil)
	}

	var entry *ClaimEntry
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var c Campaign
		err := option.LockingUpdate(tx).
			Where("campaign_id = ?", campaignID).
			First(&c).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errutil.NotFound("campaign not found", err,
				errutil.WithReason(ReasonCampaignNotFound))
		}
		if err != nil {
			return err
		}

		now := s.now()
		if !c.Active(now) {
			return errutil.BadRequest("campaign is not accepting claims", nil,
				errutil.WithReason(ReasonCampaignInactive))
		}

		var count int64
		if err := tx.Model(&ClaimEntry{}).
			Where("campaign_id = ? AND subject_id = ?", campaignID, subjectID).
			Count(&count).Error; err != nil {
			return err
		}
		limit := c.ShareLimit()
		if count >= int64(limit) {
			if limit == 1 {
				return errutil.BadRequest("subject already claimed this campaign", nil,
					errutil.WithReason(ReasonAlreadyClaimed))
			}
			return errutil.BadRequest("per-subject share limit reached", nil,
				errutil.WithReason(ReasonLimitReached))
		}

		res := tx.Model(&Campaign{}).
			Where("campaign_id = ? AND spent_budget + ? <= total_budget", campaignID, c.RewardAmount).
			Update("spent_budget", gorm.Expr("spent_budget + ?", c.RewardAmount))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errutil.BadRequest("campaign budget exhausted", nil,
				errutil.WithReason(ReasonBudgetExhausted))
		}

		entry = &ClaimEntry{
			ClaimID:      s.node.Generate().String(),
			CampaignID:   campaignID,
			SubjectID:    subjectID,
			Seq:          int(count) + 1,
			Platform:     ev.Platform,
			PostURL:      ev.PostURL,
			RewardAmount: c.RewardAmount,
			Status:       ClaimStatusVerified,
			VerifiedAt:   now,
		}
		if ev.Metadata != nil {
			raw, merr := json.Marshal(ev.Metadata)
			if merr != nil {
				return errutil.ValidationFailed("evidence metadata is not serializable", merr, errutil.WithErr(merr))
			}
			entry.Evidence = raw
		}

		if err := tx.Create(entry).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return errutil.BadRequest("claim already recorded", err,
					errutil.WithReason(ReasonAlreadyClaimed))
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	span := trace.SpanFromContext(ctx)
	zap.L().Info("claim recorded",
		zap.String("trace_id", span.SpanContext().TraceID().String()),
		zap.String("campaign_id", campaignID),
		zap.String("subject_id", subjectID),
		zap.String("claim_id", entry.ClaimID),
		zap.Int64("reward_amount", entry.RewardAmount),
	)
	return entry, nil
}
