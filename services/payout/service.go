package payout

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"

	"sharemint-core/pkg/config"
	"sharemint-core/pkg/errutil"
	"sharemint-core/pkg/repository"
	"sharemint-core/pkg/sequence"
	"sharemint-core/pkg/solana"
	"sharemint-core/services/campaign"
	"sharemint-core/services/wallet"
)

const (
	ReasonNothingToSettle    = "NothingToSettle"
	ReasonSettlementInFlight = "SettlementInFlight"
)

const maxSubmitAttempts = 3

// A transfer that has not reached the chain within this window never will:
// the signed message expires. Reconcile writes such settlements off so their
// claims become settleable again.
const submittedTTL = 2 * time.Minute

// Service moves verified claim rewards on chain. Per (subject, campaign) at
// most one settlement is in flight: concurrent callers collapse through
// singleflight, restarts are guarded by the SUBMITTED settlement row.
type Service struct {
	db     *gorm.DB
	node   *snowflake.Node
	seq    sequence.Generator
	escrow *solana.Keypair

	gateway solana.Gateway
	wallets *wallet.Service

	settlements repository.Repository[Settlement]
	claims      repository.Repository[campaign.ClaimEntry]

	group          singleflight.Group
	confirmTimeout time.Duration
	now            func() time.Time
}

type ServiceParams struct {
	fx.In

	DB      *gorm.DB
	Node    *snowflake.Node
	Seq     sequence.Generator
	Config  *config.Config
	Gateway solana.Gateway
	Wallets *wallet.Service
}

func NewService(p ServiceParams) (*Service, error) {
	if p.Config.Escrow.SecretKey == "" {
		return nil, fmt.Errorf("escrow secret key is not configured")
	}
	escrow, err := solana.KeypairFromBase58(p.Config.Escrow.SecretKey)
	if err != nil {
		return nil, fmt.Errorf("escrow secret key: %w", err)
	}

	return &Service{
		db:             p.DB,
		node:           p.Node,
		seq:            p.Seq,
		escrow:         escrow,
		gateway:        p.Gateway,
		wallets:        p.Wallets,
		settlements:    repository.ProvideStore[Settlement](p.DB),
		claims:         repository.ProvideStore[campaign.ClaimEntry](p.DB),
		confirmTimeout: p.Config.Chain.ConfirmTimeout,
		now:            time.Now,
	}, nil
}

// Settle pays out every verified, unclaimed reward the subject holds in the
// campaign as a single transfer to payoutAddress. An empty payoutAddress
// falls back to the subject's bound wallet.
func (s *Service) Settle(ctx context.Context, subjectID, campaignID, payoutAddress string) (*SettlementResult, error) {
	key := subjectID + ":" + campaignID
	v, err, _ := s.group.Do(key, func() (any, error) {
		return s.settle(ctx, subjectID, campaignID, payoutAddress)
	})
	if err != nil {
		return nil, err
	}
	return v.(*SettlementResult), nil
}

func (s *Service) settle(ctx context.Context, subjectID, campaignID, payoutAddress string) (*SettlementResult, error) {
	span := trace.SpanFromContext(ctx)
	log := zap.L().With(
		zap.String("trace_id", span.SpanContext().TraceID().String()),
		zap.String("subject_id", subjectID),
		zap.String("campaign_id", campaignID),
	)

	inFlight, err := s.settlements.Count(ctx, &Settlement{
		SubjectID:  subjectID,
		CampaignID: campaignID,
		Status:     SettlementSubmitted,
	})
	if err != nil {
		return nil, err
	}
	if inFlight > 0 {
		return nil, errutil.Conflict("a settlement for this campaign is still in flight", nil,
			errutil.WithReason(ReasonSettlementInFlight))
	}

	if payoutAddress == "" {
		binding, err := s.wallets.BindingFor(ctx, subjectID)
		if err != nil {
			return nil, err
		}
		if binding == nil {
			return nil, errutil.BadRequest("subject has no bound payout wallet", nil)
		}
		payoutAddress = binding.Address
	}
	if _, err := solana.DecodeAddress(payoutAddress); err != nil {
		return nil, errutil.ValidationFailed("payout address is not a valid account key", err,
			errutil.WithErr(err))
	}

	pending, err := s.claims.Find(ctx, &campaign.ClaimEntry{
		SubjectID:  subjectID,
		CampaignID: campaignID,
		Status:     campaign.ClaimStatusVerified,
	})
	if err != nil {
		return nil, err
	}
	if len(pending) == 0 {
		return nil, errutil.BadRequest("no verified claims to settle", nil,
			errutil.WithReason(ReasonNothingToSettle))
	}

	var total int64
	ids := make([]string, 0, len(pending))
	for _, entry := range pending {
		total += entry.RewardAmount
		ids = append(ids, entry.ClaimID)
	}

	settlementID := s.node.Generate().String()
	code := ""
	if s.seq != nil {
		generated, err := s.seq.NextSettlementCode(ctx)
		if err != nil {
			log.Warn("settlement code generation failed", zap.Error(err))
		} else {
			code = generated
		}
	}
	transfer, err := solana.SignTransfer(s.escrow, solana.TransferInstruction{
		From:      s.escrow.Address(),
		To:        payoutAddress,
		Lamports:  total,
		Reference: settlementID,
	})
	if err != nil {
		return nil, err
	}

	rawIDs, err := json.Marshal(ids)
	if err != nil {
		return nil, err
	}
	signature := transfer.Signature

	// The signature is known before broadcast, so the settlement row is
	// written first: a crash anywhere after this point leaves a SUBMITTED
	// row the in-flight guard sees and the reconcile sweep can resolve.
	settlement := &Settlement{
		SettlementID:  settlementID,
		Code:          code,
		SubjectID:     subjectID,
		CampaignID:    campaignID,
		PayoutAddress: payoutAddress,
		Amount:        total,
		ClaimIDs:      rawIDs,
		Signature:     signature,
		Status:        SettlementSubmitted,
	}
	if err := s.settlements.Create(ctx, settlement); err != nil {
		return nil, errutil.Internal("failed to record settlement", err, errutil.WithErr(err))
	}

	if _, err := s.submit(ctx, transfer); err != nil {
		// broadcast state is unknowable here; the row stays SUBMITTED and
		// the reconcile sweep settles its fate by signature
		log.Error("transfer submission failed",
			zap.String("settlement_id", settlementID),
			zap.String("signature", signature),
			zap.Error(err),
		)
		return nil, errutil.BadGateway("transfer submission failed", err, errutil.WithErr(err))
	}

	confirmCtx, cancel := context.WithTimeout(ctx, s.confirmTimeout)
	defer cancel()
	status, err := s.gateway.Confirm(confirmCtx, signature)
	if err != nil {
		return nil, errutil.BadGateway("confirmation failed", err, errutil.WithErr(err))
	}

	switch status {
	case solana.StatusConfirmed:
		if err := s.finalize(ctx, settlement, SettlementConfirmed); err != nil {
			return nil, err
		}
	case solana.StatusFailed:
		if err := s.settlements.Update(ctx, settlementID, map[string]any{"status": SettlementFailed}); err != nil {
			return nil, err
		}
		return nil, errutil.BadGateway("transfer rejected on chain", nil)
	default:
		// outcome unknown, leave SUBMITTED for the reconcile sweep
		log.Warn("settlement confirmation timed out",
			zap.String("settlement_id", settlementID),
			zap.String("signature", signature),
		)
	}

	return &SettlementResult{
		SettlementID: settlementID,
		Code:         code,
		Signature:    signature,
		Amount:       total,
		ClaimCount:   len(ids),
		Status:       settlement.Status,
	}, nil
}

// submit retries transient submission errors but never after the gateway has
// acknowledged a signature.
func (s *Service) submit(ctx context.Context, transfer *solana.SignedTransfer) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= maxSubmitAttempts; attempt++ {
		signature, err := s.gateway.Submit(ctx, transfer)
		if err == nil {
			return signature, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return "", lastErr
}

// finalize marks the settlement's claims as paid and advances the settlement
// state. The claim update is conditioned on is_claimed so it can be replayed
// by the reconciler without double-applying.
func (s *Service) finalize(ctx context.Context, settlement *Settlement, status SettlementStatus) error {
	var ids []string
	if err := json.Unmarshal(settlement.ClaimIDs, &ids); err != nil {
		return err
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.now()
		res := tx.Model(&campaign.ClaimEntry{}).
			Where("claim_id IN ? AND is_claimed = ?", ids, false).
			Updates(map[string]any{
				"is_claimed":           true,
				"status":               campaign.ClaimStatusClaimed,
				"claimed_at":           now,
				"settlement_signature": settlement.Signature,
			})
		if res.Error != nil {
			return res.Error
		}

		return tx.Model(&Settlement{}).
			Where("settlement_id = ?", settlement.SettlementID).
			Update("status", status).Error
	})
	if err != nil {
		return err
	}

	settlement.Status = status
	zap.L().Info("settlement finalized",
		zap.String("settlement_id", settlement.SettlementID),
		zap.String("signature", settlement.Signature),
		zap.Int64("amount", settlement.Amount),
		zap.String("status", string(status)),
	)
	return nil
}

// Reconcile resolves settlements left in SUBMITTED by a crash or confirmation
// timeout. Confirmed transfers get their claim updates replayed; rejected
// ones are marked failed so the claims become settleable again.
func (s *Service) Reconcile(ctx context.Context) error {
	stuck, err := s.settlements.Find(ctx, &Settlement{Status: SettlementSubmitted})
	if err != nil {
		return err
	}

	for _, settlement := range stuck {
		confirmCtx, cancel := context.WithTimeout(ctx, s.confirmTimeout)
		status, err := s.gateway.Confirm(confirmCtx, settlement.Signature)
		cancel()
		if err != nil {
			zap.L().Warn("reconcile status check failed",
				zap.String("settlement_id", settlement.SettlementID),
				zap.Error(err),
			)
			continue
		}

		switch status {
		case solana.StatusConfirmed:
			if err := s.finalize(ctx, settlement, SettlementReconciled); err != nil {
				zap.L().Error("reconcile finalize failed",
					zap.String("settlement_id", settlement.SettlementID),
					zap.Error(err),
				)
			}
		case solana.StatusFailed:
			if err := s.settlements.Update(ctx, settlement.SettlementID,
				map[string]any{"status": SettlementFailed}); err != nil {
				return err
			}
		default:
			if s.now().Sub(settlement.CreatedAt) > submittedTTL {
				// submitted but never seen on chain; the transfer expired
				zap.L().Warn("writing off expired settlement",
					zap.String("settlement_id", settlement.SettlementID),
					zap.String("signature", settlement.Signature),
				)
				if err := s.settlements.Update(ctx, settlement.SettlementID,
					map[string]any{"status": SettlementFailed}); err != nil {
					return err
				}
				continue
			}
			// still unknown, try again next sweep
		}
	}
	return nil
}

// Sweep settles every (subject, campaign) pair that has verified unclaimed
// claims and a bound payout wallet.
func (s *Service) Sweep(ctx context.Context) error {
	type pair struct {
		SubjectID  string
		CampaignID string
	}
	var pairs []pair
	err := s.db.WithContext(ctx).
		Model(&campaign.ClaimEntry{}).
		Select("DISTINCT subject_id, campaign_id").
		Where("status = ? AND is_claimed = ?", campaign.ClaimStatusVerified, false).
		Scan(&pairs).Error
	if err != nil {
		return err
	}

	for _, p := range pairs {
		binding, err := s.wallets.BindingFor(ctx, p.SubjectID)
		if err != nil {
			return err
		}
		if binding == nil {
			continue
		}
		if _, err := s.Settle(ctx, p.SubjectID, p.CampaignID, binding.Address); err != nil {
			zap.L().Warn("sweep settlement failed",
				zap.String("subject_id", p.SubjectID),
				zap.String("campaign_id", p.CampaignID),
				zap.Error(err),
			)
		}
	}
	return nil
}
