package validation

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosight/visittrack/internal/config"
)

type fakeTokens struct {
	pixels  map[string]string
	lookups int
}

func (f *fakeTokens) PixelForToken(_ context.Context, tokenHash string) (string, error) {
	f.lookups++
	pixel, ok := f.pixels[tokenHash]
	if !ok {
		return "", ErrTokenNotFound
	}
	return pixel, nil
}

func hashOf(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func setupValidator(t *testing.T, limit int) (*Validator, *fakeTokens, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	tokens := &fakeTokens{pixels: map[string]string{
		hashOf("token-abcdef-123"): "pixel-1",
	}}
	v := NewValidator(tokens, redis.NewClient(&redis.Options{Addr: mr.Addr()}), config.RateLimitConfig{RequestsPerSecond: limit})
	t.Cleanup(v.Close)
	return v, tokens, mr
}

func TestValidateAccessToken(t *testing.T) {
	v, _, _ := setupValidator(t, 10)
	ctx := context.Background()

	tests := []struct {
		name    string
		token   string
		pixel   string
		wantErr error
	}{
		{name: "valid", token: "token-abcdef-123", pixel: "pixel-1"},
		{name: "short token", token: "short", pixel: "pixel-1", wantErr: ErrInvalidToken},
		{name: "missing pixel", token: "token-abcdef-123", pixel: "", wantErr: ErrInvalidToken},
		{name: "unknown token", token: "token-unknown-999", pixel: "pixel-1", wantErr: ErrTokenNotFound},
		{name: "wrong pixel", token: "token-abcdef-123", pixel: "pixel-2", wantErr: ErrTokenNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.ValidateAccessToken(ctx, tt.token, tt.pixel)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestValidateAccessTokenUsesCache(t *testing.T) {
	v, tokens, mr := setupValidator(t, 10)
	ctx := context.Background()

	require.NoError(t, v.ValidateAccessToken(ctx, "token-abcdef-123", "pixel-1"))
	require.NoError(t, v.ValidateAccessToken(ctx, "token-abcdef-123", "pixel-1"))
	assert.Equal(t, 1, tokens.lookups)
	assert.True(t, mr.Exists("pixeltoken:"+hashOf("token-abcdef-123")))

	assert.ErrorIs(t, v.ValidateAccessToken(ctx, "token-abcdef-123", "pixel-9"), ErrTokenNotFound)
	assert.Equal(t, 1, tokens.lookups)
}

func TestCheckRateLimit(t *testing.T) {
	v, _, mr := setupValidator(t, 2)
	ctx := context.Background()

	assert.True(t, v.CheckRateLimit(ctx, "pixel-1"))
	assert.True(t, v.CheckRateLimit(ctx, "pixel-1"))
	assert.False(t, v.CheckRateLimit(ctx, "pixel-1"))
	assert.True(t, v.CheckRateLimit(ctx, "pixel-2"))

	mr.FastForward(2 * time.Second)
	assert.True(t, v.CheckRateLimit(ctx, "pixel-1"))
}

func TestCheckRateLimitAllowsOnRedisError(t *testing.T) {
	v, _, mr := setupValidator(t, 1)
	mr.Close()

	assert.True(t, v.CheckRateLimit(context.Background(), "pixel-1"))
	assert.True(t, v.CheckRateLimit(context.Background(), "pixel-1"))
}
