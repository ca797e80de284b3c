package predict

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ImageClassifier is what the caching decorator wraps.
type ImageClassifier interface {
	ModelID() string
	Classes() []string
	PredictBytes(data []byte) (Prediction, error)
}

// CachingClassifier decorates an ImageClassifier with a Redis cache keyed
// by model id and image content hash. With a nil client every call goes
// straight to the classifier.
type CachingClassifier struct {
	inner     ImageClassifier
	rdb       *redis.Client
	ttl       time.Duration
	namespace string
}

// NewCachingClassifier wraps inner. ttl <= 0 defaults to 24 hours and an
// empty namespace to "reefscan".
func NewCachingClassifier(rdb *redis.Client, ttl time.Duration, inner ImageClassifier, namespace string) *CachingClassifier {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if namespace == "" {
		namespace = "reefscan"
	}
	return &CachingClassifier{
		inner:     inner,
		rdb:       rdb,
		ttl:       ttl,
		namespace: namespace,
	}
}

// Classes returns the wrapped classifier's class list.
func (c *CachingClassifier) Classes() []string { return c.inner.Classes() }

// Classify returns the prediction for an encoded image, consulting the
// cache first. Cache failures never fail the call.
func (c *CachingClassifier) Classify(ctx context.Context, data []byte) (Prediction, error) {
	if c.rdb == nil {
		return c.inner.PredictBytes(data)
	}

	key := c.cacheKey(data)
	if b, err := c.rdb.Get(ctx, key).Bytes(); err == nil && len(b) > 0 {
		var out Prediction
		if err := json.Unmarshal(b, &out); err == nil {
			return out, nil
		}
		_ = c.rdb.Del(ctx, key).Err()
	}

	out, err := c.inner.PredictBytes(data)
	if err != nil {
		return Prediction{}, err
	}

	if b, err := json.Marshal(out); err == nil {
		_ = c.rdb.Set(ctx, key, b, c.ttl).Err()
	}
	return out, nil
}

func (c *CachingClassifier) cacheKey(data []byte) string {
	sum := sha256.Sum256(data)
	return fmt.Sprintf("%s:pred:%s:%s", c.namespace, c.inner.ModelID(), hex.EncodeToString(sum[:]))
}

// DialRedis connects to Redis and checks the connection with a ping.
func DialRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis %s: %w", addr, err)
	}
	return rdb, nil
}
