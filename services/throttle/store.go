package throttle

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"sharemint-core/pkg/rediskey"
)

// Store persists per-subject throttle state. Increment must be atomic with
// respect to concurrent callers in other processes and returns the
// post-increment count, which drives the lockout decision.
type Store interface {
	State(ctx context.Context, subjectID string) (State, error)
	Increment(ctx context.Context, subjectID string) (int, error)
	Lock(ctx context.Context, subjectID string, until time.Time) error
	Reset(ctx context.Context, subjectID string) error
}

type dbStore struct {
	db *gorm.DB
}

func NewDBStore(db *gorm.DB) Store {
	return &dbStore{db: db}
}

func (s *dbStore) State(ctx context.Context, subjectID string) (State, error) {
	var rec AttemptRecord
	err := s.db.WithContext(ctx).
		Where("subject_id = ?", subjectID).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return State{}, nil
	}
	if err != nil {
		return State{}, err
	}

	st := State{Failures: rec.AttemptCount}
	if rec.LockedUntil != nil {
		st.LockedUntil = *rec.LockedUntil
	}
	return st, nil
}

func (s *dbStore) Increment(ctx context.Context, subjectID string) (int, error) {
	rec := AttemptRecord{SubjectID: subjectID, AttemptCount: 1}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "subject_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"attempt_count":   gorm.Expr("attempt_count + 1"),
				"last_attempt_at": time.Now(),
			}),
		}).
		Create(&rec).Error
	if err != nil {
		return 0, err
	}

	// re-read after the relative update; a concurrent increment can only
	// raise the count, never hide one
	var out AttemptRecord
	if err := s.db.WithContext(ctx).
		Where("subject_id = ?", subjectID).
		First(&out).Error; err != nil {
		return 0, err
	}
	return out.AttemptCount, nil
}

func (s *dbStore) Lock(ctx context.Context, subjectID string, until time.Time) error {
	return s.db.WithContext(ctx).
		Model(&AttemptRecord{}).
		Where("subject_id = ?", subjectID).
		Update("locked_until", until).Error
}

func (s *dbStore) Reset(ctx context.Context, subjectID string) error {
	return s.db.WithContext(ctx).
		Where("subject_id = ?", subjectID).
		Delete(&AttemptRecord{}).Error
}

type redisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisStore keeps throttle state in Redis. The entry expires on its own
// after ttl, which doubles as the stale-counter cleanup.
func NewRedisStore(rdb *redis.Client, ttl time.Duration) Store {
	return &redisStore{rdb: rdb, ttl: ttl}
}

func (s *redisStore) State(ctx context.Context, subjectID string) (State, error) {
	key := rediskey.BuildLockoutKey(subjectID)
	fields, err := s.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return State{}, err
	}
	if len(fields) == 0 {
		return State{}, nil
	}

	var st State
	if v, ok := fields["failures"]; ok {
		st.Failures, _ = strconv.Atoi(v)
	}
	if v, ok := fields["locked_until"]; ok && v != "" {
		if unix, err := strconv.ParseInt(v, 10, 64); err == nil && unix > 0 {
			st.LockedUntil = time.UnixMilli(unix)
		}
	}
	return st, nil
}

func (s *redisStore) Increment(ctx context.Context, subjectID string) (int, error) {
	key := rediskey.BuildLockoutKey(subjectID)

	pipe := s.rdb.TxPipeline()
	incr := pipe.HIncrBy(ctx, key, "failures", 1)
	pipe.Expire(ctx, key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return int(incr.Val()), nil
}

func (s *redisStore) Lock(ctx context.Context, subjectID string, until time.Time) error {
	key := rediskey.BuildLockoutKey(subjectID)

	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, key, "locked_until", until.UnixMilli())
	pipe.Expire(ctx, key, s.ttl)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *redisStore) Reset(ctx context.Context, subjectID string) error {
	return s.rdb.Del(ctx, rediskey.BuildLockoutKey(subjectID)).Err()
}
