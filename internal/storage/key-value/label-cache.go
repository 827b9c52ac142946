package key_value

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type labelInternal struct {
	Label        string    `json:"label"`
	ClassifiedAt time.Time `json:"classified_at"`
}

// LabelCache stores classifier labels in redis so that restarts and
// several bot replicas share them.
type LabelCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewLabelCache(rdb *redis.Client, ttl time.Duration) *LabelCache {
	return &LabelCache{
		rdb: rdb,
		ttl: ttl,
	}
}

func (l *LabelCache) GetLabel(ctx context.Context, digest string) (string, bool, error) {
	raw, err := l.rdb.Get(ctx, getLabelKey(digest)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to get label %s: %w", digest, err)
	}
	var labelInt labelInternal
	if err = json.Unmarshal([]byte(raw), &labelInt); err != nil {
		return "", false, fmt.Errorf("failed to unmarshal label %s: %w", digest, err)
	}
	return labelInt.Label, true, nil
}

func (l *LabelCache) SetLabel(ctx context.Context, digest, label string) error {
	labelJSON, err := json.Marshal(
		labelInternal{
			Label:        label,
			ClassifiedAt: time.Now().UTC(),
		},
	)
	if err != nil {
		return fmt.Errorf("failed to marshal label: %w", err)
	}
	key := getLabelKey(digest)
	if err = l.rdb.Set(ctx, key, labelJSON, l.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save label %s: %w", key, err)
	}
	return nil
}

func getLabelKey(digest string) string {
	return fmt.Sprintf("label_%v", digest)
}
