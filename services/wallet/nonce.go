package wallet

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"sharemint-core/pkg/rediskey"
)

// ErrNonceUsed signals that a challenge nonce was already consumed.
var ErrNonceUsed = errors.New("nonce already consumed")

// NonceStore consumes challenge nonces exactly once. Consume must be an
// atomic insert-or-fail: two concurrent calls with the same nonce may see at
// most one success.
type NonceStore interface {
	Consume(ctx context.Context, nonce, address string, expiresAt time.Time) error
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

type dbNonceStore struct {
	db *gorm.DB
}

// NewDBNonceStore backs the replay guard with the primary database. The
// unique primary key on nonce makes the insert the atomicity point, and rows
// survive restarts.
func NewDBNonceStore(db *gorm.DB) NonceStore {
	return &dbNonceStore{db: db}
}

func (s *dbNonceStore) Consume(ctx context.Context, nonce, address string, expiresAt time.Time) error {
	err := s.db.WithContext(ctx).Create(&ReplayNonce{
		Nonce:     nonce,
		Address:   address,
		ExpiresAt: expiresAt,
	}).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrNonceUsed
	}
	return err
}

func (s *dbNonceStore) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("expires_at < ?", now).
		Delete(&ReplayNonce{})
	return res.RowsAffected, res.Error
}

type redisNonceStore struct {
	rdb *redis.Client
}

// NewRedisNonceStore backs the replay guard with Redis SETNX. Expiry is the
// key TTL, so PurgeExpired has nothing to do.
func NewRedisNonceStore(rdb *redis.Client) NonceStore {
	return &redisNonceStore{rdb: rdb}
}

func (s *redisNonceStore) Consume(ctx context.Context, nonce, address string, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		ttl = time.Second
	}

	ok, err := s.rdb.SetNX(ctx, rediskey.BuildNonceKey(nonce), address, ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrNonceUsed
	}
	return nil
}

func (s *redisNonceStore) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	return 0, nil
}
