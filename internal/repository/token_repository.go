package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/campusops/attendance-engine/internal/models"
	appErrors "github.com/campusops/attendance-engine/pkg/errors"
)

// tokenRetention keeps expired token keys around briefly so validation can
// distinguish "expired" from "never issued".
const tokenRetention = 10 * time.Minute

// TokenRepository stores rotating QR tokens in Redis. The current pointer
// and every issued token live under session-scoped keys, so purging a
// session destroys all of its tokens at once.
type TokenRepository struct {
	client *redis.Client
	logger *zap.Logger
}

// NewTokenRepository constructs a token repository.
func NewTokenRepository(client *redis.Client, logger *zap.Logger) *TokenRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TokenRepository{client: client, logger: logger}
}

func currentKey(sessionID string) string {
	return fmt.Sprintf("qr:current:%s", sessionID)
}

func tokenKey(sessionID, token string) string {
	return fmt.Sprintf("qr:token:%s:%s", sessionID, token)
}

// SetCurrent stores a freshly minted token as the session's current token
// and registers it for validation lookups.
func (r *TokenRepository) SetCurrent(ctx context.Context, token models.QRToken) error {
	payload, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("marshal qr token: %w", err)
	}
	ttl := time.Until(token.ExpiresAt) + tokenRetention

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, currentKey(token.SessionID), payload, ttl)
	pipe.Set(ctx, tokenKey(token.SessionID, token.Token), payload, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store qr token for session %s: %w", token.SessionID, err)
	}
	return nil
}

// GetCurrent returns the session's current token, or ErrCacheMiss.
func (r *TokenRepository) GetCurrent(ctx context.Context, sessionID string) (*models.QRToken, error) {
	return r.get(ctx, currentKey(sessionID))
}

// Find returns a specific issued token (current or superseded), or
// ErrCacheMiss when it was never issued or has aged out of retention.
func (r *TokenRepository) Find(ctx context.Context, sessionID, token string) (*models.QRToken, error) {
	return r.get(ctx, tokenKey(sessionID, token))
}

func (r *TokenRepository) get(ctx context.Context, key string) (*models.QRToken, error) {
	raw, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, appErrors.ErrCacheMiss
		}
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	var token models.QRToken
	if err := json.Unmarshal(raw, &token); err != nil {
		return nil, fmt.Errorf("unmarshal qr token at %s: %w", key, err)
	}
	return &token, nil
}

// Purge destroys every token owned by the session. Called when the session
// leaves the active state.
func (r *TokenRepository) Purge(ctx context.Context, sessionID string) error {
	if err := r.client.Del(ctx, currentKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("delete current token for %s: %w", sessionID, err)
	}

	pattern := tokenKey(sessionID, "*")
	iter := r.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		if err := r.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("delete token %s: %w", iter.Val(), err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan tokens for %s: %w", sessionID, err)
	}
	return nil
}
