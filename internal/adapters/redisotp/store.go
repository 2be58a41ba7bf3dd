package redisotp

// Package redisotp stores one-time login codes in Redis. A code lives under
// a per-phone key with a TTL and is consumed atomically on verification, so
// each code is usable at most once.

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/phonegate/phonegate/internal/domain/identity"
)

const (
	defaultTTL    = 5 * time.Minute
	defaultPrefix = "otp:"
	codeDigits    = 6
)

// Store issues and verifies one-time codes backed by Redis.
type Store struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewStore creates a code store with the default key prefix and TTL.
func NewStore(client redis.UniversalClient) *Store {
	return &Store{client: client, prefix: defaultPrefix, ttl: defaultTTL}
}

// NewStoreWithOptions creates a code store with a custom key prefix and TTL.
func NewStoreWithOptions(client redis.UniversalClient, prefix string, ttl time.Duration) *Store {
	if prefix == "" {
		prefix = defaultPrefix
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Store{client: client, prefix: prefix, ttl: ttl}
}

// Issue generates a fresh numeric code for the phone and stores it under the
// phone's key, replacing any earlier unconsumed code.
func (s *Store) Issue(ctx context.Context, phone string) (string, error) {
	code, err := randomCode()
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}

	key := s.key(phone)
	if err := s.client.Set(ctx, key, code, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("store code: %w", err)
	}
	return code, nil
}

// Verify consumes the stored code for the phone and compares it against the
// presented one. The stored code is deleted whether or not it matches, so a
// wrong guess burns the code.
func (s *Store) Verify(ctx context.Context, phone, code string) (bool, error) {
	stored, err := s.client.GetDel(ctx, s.key(phone)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("redis getdel: %w", err)
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(code)) == 1, nil
}

func (s *Store) key(phone string) string {
	return s.prefix + identity.NormalizePhone(phone)
}

// randomCode draws a uniformly random zero-padded numeric code.
func randomCode() (string, error) {
	limit := big.NewInt(1)
	for i := 0; i < codeDigits; i++ {
		limit.Mul(limit, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", codeDigits, n), nil
}
