package wallet

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"sharemint-core/pkg/config"
	"sharemint-core/pkg/errutil"
	"sharemint-core/pkg/repository"
	"sharemint-core/pkg/solana"
)

// Machine-readable reasons carried on 401 responses. Clients must treat all
// of them as terminal for the presented challenge.
const (
	ReasonInvalidFormat      = "InvalidFormat"
	ReasonExpired            = "Expired"
	ReasonReplayDetected     = "ReplayDetected"
	ReasonSignatureInvalid   = "SignatureInvalid"
	ReasonAddressDecodeError = "AddressDecodeError"
)

type Challenge struct {
	Message   string    `json:"message"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Service verifies wallet ownership through signed challenges and maintains
// subject-to-address bindings.
type Service struct {
	bindings repository.Repository[WalletBinding]
	nonces   NonceStore

	purpose string
	window  time.Duration
	margin  time.Duration
	now     func() time.Time
}

type ServiceParams struct {
	fx.In

	DB     *gorm.DB
	Redis  *redis.Client `optional:"true"`
	Config *config.Config
}

func NewService(p ServiceParams) *Service {
	var nonces NonceStore
	if p.Config.Challenge.NonceStore == "redis" && p.Redis != nil {
		nonces = NewRedisNonceStore(p.Redis)
	} else {
		nonces = NewDBNonceStore(p.DB)
	}
	return &Service{
		bindings: repository.ProvideStore[WalletBinding](p.DB),
		nonces:   nonces,
		purpose:  p.Config.Challenge.Purpose,
		window:   p.Config.Challenge.FreshnessWindow,
		margin:   p.Config.Challenge.NonceMargin,
		now:      time.Now,
	}
}

// NewChallenge issues a fresh challenge message for the wallet to sign.
func (s *Service) NewChallenge() Challenge {
	issued := s.now()
	return Challenge{
		Message:   fmt.Sprintf("%s:%d:%s", s.purpose, issued.UnixMilli(), uuid.NewString()),
		ExpiresAt: issued.Add(s.window),
	}
}

// Verify proves that the caller controls address by checking a detached
// ed25519 signature over a fresh, unused challenge message. The nonce is
// consumed before the signature is checked, so a failed attempt burns its
// challenge.
func (s *Service) Verify(ctx context.Context, address, signatureB58, message string) (*Identity, error) {
	issued, nonce, err := s.parseMessage(message)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if now.Sub(issued) > s.window || issued.Sub(now) > s.margin {
		return nil, errutil.Unauthorized("challenge expired", nil,
			errutil.WithReason(ReasonExpired))
	}

	expiresAt := issued.Add(s.window + s.margin)
	if err := s.nonces.Consume(ctx, nonce, address, expiresAt); err != nil {
		if errors.Is(err, ErrNonceUsed) {
			zap.L().Warn("challenge replay detected",
				zap.String("address", address),
				zap.String("nonce", nonce),
			)
			return nil, errutil.Unauthorized("challenge already used", nil,
				errutil.WithReason(ReasonReplayDetected))
		}
		return nil, errutil.Internal("replay guard unavailable", err, errutil.WithErr(err))
	}

	if _, err := solana.DecodeAddress(address); err != nil {
		return nil, errutil.Unauthorized("address is not a valid account key", err,
			errutil.WithReason(ReasonAddressDecodeError))
	}

	sig, err := solana.DecodeSignature(signatureB58)
	if err != nil {
		return nil, errutil.Unauthorized("signature is malformed", err,
			errutil.WithReason(ReasonSignatureInvalid))
	}

	ok, err := solana.VerifyDetached(address, []byte(message), sig)
	if err != nil || !ok {
		zap.L().Warn("signature verification failed", zap.String("address", address))
		return nil, errutil.Unauthorized("signature does not match address", err,
			errutil.WithReason(ReasonSignatureInvalid))
	}

	identity := &Identity{Address: address}
	binding, err := s.bindings.FindOne(ctx, &WalletBinding{Address: address})
	if err != nil {
		return nil, errutil.Internal("binding lookup failed", err, errutil.WithErr(err))
	}
	if binding != nil {
		identity.SubjectID = binding.SubjectID
		identity.Bound = true
	}
	return identity, nil
}

// Bind records address as the canonical payout address for subjectID.
// Rebinding to the same address is a no-op; any other conflict is rejected.
func (s *Service) Bind(ctx context.Context, subjectID, address string) error {
	existing, err := s.bindings.FindOne(ctx, &WalletBinding{SubjectID: subjectID})
	if err != nil {
		return err
	}
	if existing != nil {
		if existing.Address == address {
			return nil
		}
		return errutil.Conflict("subject already has a bound wallet", nil)
	}

	err = s.bindings.Create(ctx, &WalletBinding{
		SubjectID: subjectID,
		Address:   address,
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return errutil.Conflict("wallet is bound to another subject", err)
	}
	return err
}

// BindingFor returns the payout binding for a subject, or nil when unbound.
func (s *Service) BindingFor(ctx context.Context, subjectID string) (*WalletBinding, error) {
	return s.bindings.FindOne(ctx, &WalletBinding{SubjectID: subjectID})
}

// PurgeExpiredNonces drops consumed nonces past their replay horizon.
func (s *Service) PurgeExpiredNonces(ctx context.Context) (int64, error) {
	return s.nonces.PurgeExpired(ctx, s.now())
}

func (s *Service) parseMessage(message string) (time.Time, string, error) {
	invalid := func() error {
		return errutil.Unauthorized("challenge message is malformed", nil,
			errutil.WithReason(ReasonInvalidFormat))
	}

	parts := strings.Split(message, ":")
	if len(parts) != 3 {
		return time.Time{}, "", invalid()
	}
	if parts[0] != s.purpose || parts[2] == "" {
		return time.Time{}, "", invalid()
	}

	ms, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil || ms <= 0 {
		return time.Time{}, "", invalid()
	}
	return time.UnixMilli(ms), parts[2], nil
}
