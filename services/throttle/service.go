package throttle

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"sharemint-core/pkg/config"
	"sharemint-core/pkg/errutil"
)

const ReasonLocked = "Locked"

var Module = fx.Module("throttle.module",
	fx.Provide(NewService),
)

// Result is the outcome of recording one verification attempt.
type Result struct {
	Allowed     bool
	Remaining   int
	LockedUntil time.Time
}

// Service gates wallet verification behind a consecutive-failure lockout.
// Once a subject crosses the failure budget it is rejected outright until the
// lockout window elapses, after which the counter starts fresh.
type Service struct {
	store       Store
	maxAttempts int
	lockout     time.Duration
	now         func() time.Time
}

type ServiceParams struct {
	fx.In

	DB     *gorm.DB
	Redis  *redis.Client `optional:"true"`
	Config *config.Config
}

func NewService(p ServiceParams) *Service {
	var store Store
	if p.Config.Throttle.Store == "redis" && p.Redis != nil {
		store = NewRedisStore(p.Redis, p.Config.Throttle.LockoutDuration)
	} else {
		store = NewDBStore(p.DB)
	}
	return &Service{
		store:       store,
		maxAttempts: p.Config.Throttle.MaxAttempts,
		lockout:     p.Config.Throttle.LockoutDuration,
		now:         time.Now,
	}
}

// Check rejects the subject while its lockout is in force. Locked subjects do
// not accumulate further failures.
func (s *Service) Check(ctx context.Context, subjectID string) error {
	st, err := s.store.State(ctx, subjectID)
	if err != nil {
		return errutil.Internal("throttle state unavailable", err, errutil.WithErr(err))
	}
	if st.Locked(s.now()) {
		return s.lockedError(subjectID, st)
	}
	return nil
}

// RecordAttempt applies one verification outcome to the subject's state.
// A success deletes the record. A failure increments the counter and engages
// the lockout on the final allowed attempt. Attempts made while locked are
// rejected without incrementing.
func (s *Service) RecordAttempt(ctx context.Context, subjectID string, succeeded bool) (Result, error) {
	if succeeded {
		if err := s.store.Reset(ctx, subjectID); err != nil {
			return Result{}, err
		}
		return Result{Allowed: true, Remaining: s.maxAttempts}, nil
	}

	st, err := s.store.State(ctx, subjectID)
	if err != nil {
		return Result{}, err
	}

	now := s.now()
	if st.Locked(now) {
		return Result{LockedUntil: st.LockedUntil}, s.lockedError(subjectID, st)
	}
	if !st.LockedUntil.IsZero() {
		// expired lockout, counter starts over
		if err := s.store.Reset(ctx, subjectID); err != nil {
			return Result{}, err
		}
	}

	// the store increments atomically; the returned count is authoritative
	// even when callers in other processes race this one
	failures, err := s.store.Increment(ctx, subjectID)
	if err != nil {
		return Result{}, err
	}

	var lockedUntil time.Time
	if failures >= s.maxAttempts {
		lockedUntil = now.Add(s.lockout)
		if err := s.store.Lock(ctx, subjectID, lockedUntil); err != nil {
			return Result{}, err
		}
		zap.L().Warn("lockout engaged",
			zap.String("subject_id", subjectID),
			zap.Int("failures", failures),
			zap.Time("locked_until", lockedUntil),
		)
	}

	remaining := s.maxAttempts - failures
	if remaining < 0 {
		remaining = 0
	}
	return Result{
		Allowed:     lockedUntil.IsZero(),
		Remaining:   remaining,
		LockedUntil: lockedUntil,
	}, nil
}

func (s *Service) lockedError(subjectID string, st State) error {
	zap.L().Warn("subject locked out",
		zap.String("subject_id", subjectID),
		zap.Time("locked_until", st.LockedUntil),
	)
	return errutil.TooManyRequest("too many failed attempts", nil,
		errutil.WithReason(ReasonLocked),
		errutil.WithDetails(errutil.Detail{
			Field:   "locked_until",
			Message: st.LockedUntil.UTC().Format(time.RFC3339),
		}),
	)
}
