package validation

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/gosight/visittrack/internal/config"
)

var (
	ErrInvalidToken  = errors.New("invalid access token")
	ErrTokenNotFound = errors.New("access token not recognised for pixel")
)

// TokenStore looks up the pixel a hashed access token belongs to.
type TokenStore interface {
	PixelForToken(ctx context.Context, tokenHash string) (string, error)
}

// PostgresTokens reads the pixel_tokens table.
type PostgresTokens struct {
	db *pgxpool.Pool
}

func NewPostgresTokens(ctx context.Context, dsn string) (*PostgresTokens, error) {
	db, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &PostgresTokens{db: db}, nil
}

func (p *PostgresTokens) PixelForToken(ctx context.Context, tokenHash string) (string, error) {
	var pixelID string
	err := p.db.QueryRow(ctx, `
		SELECT pixel_id FROM pixel_tokens
		WHERE token_hash = $1 AND is_active = true
		AND (expires_at IS NULL OR expires_at > NOW())
	`, tokenHash).Scan(&pixelID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrTokenNotFound
	}
	if err != nil {
		return "", err
	}

	// Update last used
	go p.db.Exec(context.Background(), `
		UPDATE pixel_tokens
		SET last_used_at = NOW(), request_count = request_count + 1
		WHERE token_hash = $1
	`, tokenHash)

	return pixelID, nil
}

func (p *PostgresTokens) Close() {
	p.db.Close()
}

// Validator checks partner credentials on incoming beacons and applies a
// per-pixel rate limit. Both lookups go through Redis.
type Validator struct {
	tokens TokenStore
	redis  *redis.Client
	limit  int
}

func NewValidator(tokens TokenStore, rdb *redis.Client, cfg config.RateLimitConfig) *Validator {
	return &Validator{
		tokens: tokens,
		redis:  rdb,
		limit:  cfg.RequestsPerSecond,
	}
}

// ValidateAccessToken confirms that token is active and issued for pixelID.
func (v *Validator) ValidateAccessToken(ctx context.Context, token, pixelID string) error {
	if len(token) < 12 || pixelID == "" {
		return ErrInvalidToken
	}

	hash := sha256.Sum256([]byte(token))
	tokenHash := hex.EncodeToString(hash[:])

	// Check cache first
	cacheKey := "pixeltoken:" + tokenHash
	if cached, err := v.redis.Get(ctx, cacheKey).Result(); err == nil {
		if cached != pixelID {
			return ErrTokenNotFound
		}
		return nil
	}

	owner, err := v.tokens.PixelForToken(ctx, tokenHash)
	if err != nil {
		return err
	}

	// Cache for 5 minutes
	v.redis.Set(ctx, cacheKey, owner, 5*time.Minute)

	if owner != pixelID {
		return ErrTokenNotFound
	}
	return nil
}

// CheckRateLimit reports whether another request for pixelID fits in the
// current one-second window. Redis errors allow the request.
func (v *Validator) CheckRateLimit(ctx context.Context, pixelID string) bool {
	key := "ratelimit:" + pixelID

	// Increment counter
	count, err := v.redis.Incr(ctx, key).Result()
	if err != nil {
		return true // Allow on error
	}

	// Set expiry on first request
	if count == 1 {
		v.redis.Expire(ctx, key, time.Second)
	}

	return count <= int64(v.limit)
}

func (v *Validator) Close() {
	if v.redis != nil {
		v.redis.Close()
	}
}
