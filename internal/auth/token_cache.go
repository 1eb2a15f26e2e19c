package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"ms-ordering/internal/clock"

	"github.com/go-redis/redis/v8"
)

// TokenExpiryBuffer: identities are dropped from the cache this long before
// their token expires.
const TokenExpiryBuffer = 30 * time.Second

// RedisTokenCache keeps verified identities in Redis, keyed by a hash of
// the raw token, so each token is only verified once per expiry.
type RedisTokenCache struct {
	Client *redis.Client
	clock  clock.Clock
}

func NewRedisTokenCache(client *redis.Client, clk clock.Clock) *RedisTokenCache {
	return &RedisTokenCache{Client: client, clock: clk}
}

func tokenKey(rawToken string) string {
	sum := sha256.Sum256([]byte(rawToken))
	return "auth_token:" + hex.EncodeToString(sum[:])
}

// Get returns the cached identity, or nil when the token is unknown.
func (c *RedisTokenCache) Get(ctx context.Context, rawToken string) (*Identity, error) {
	raw, err := c.Client.Get(ctx, tokenKey(rawToken)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get cached token: %w", err)
	}

	var id Identity
	if err := json.Unmarshal([]byte(raw), &id); err != nil {
		return nil, fmt.Errorf("unmarshal cached token: %w", err)
	}
	if !c.clock.Now().Add(TokenExpiryBuffer).Before(id.ExpiresAt) {
		return nil, nil
	}
	return &id, nil
}

// Set caches id until shortly before it expires. Identities too close to
// expiry are not cached.
func (c *RedisTokenCache) Set(ctx context.Context, rawToken string, id Identity) error {
	ttl := id.ExpiresAt.Sub(c.clock.Now()) - TokenExpiryBuffer
	if ttl <= 0 {
		return nil
	}
	raw, err := json.Marshal(id)
	if err != nil {
		return fmt.Errorf("marshal token cache: %w", err)
	}
	if err := c.Client.Set(ctx, tokenKey(rawToken), raw, ttl).Err(); err != nil {
		return fmt.Errorf("cache token: %w", err)
	}
	return nil
}

// CachingVerifier consults the cache before delegating to next. Cache
// failures fall through to next.
type CachingVerifier struct {
	next  Verifier
	cache *RedisTokenCache
}

func NewCachingVerifier(next Verifier, cache *RedisTokenCache) *CachingVerifier {
	return &CachingVerifier{next: next, cache: cache}
}

func (v *CachingVerifier) Verify(ctx context.Context, rawToken string) (Identity, error) {
	if id, err := v.cache.Get(ctx, rawToken); err == nil && id != nil {
		return *id, nil
	}
	id, err := v.next.Verify(ctx, rawToken)
	if err != nil {
		return Identity{}, err
	}
	_ = v.cache.Set(ctx, rawToken, id)
	return id, nil
}
