package in_memory

import (
	"context"
	"sync"
)

const defaultLabelCacheSize = 1024

// LabelCache keeps the most recent labels per image digest. When full, the
// oldest entry is evicted.
type LabelCache struct {
	mu      sync.RWMutex
	labels  map[string]string
	order   []string
	maxSize int
}

func NewLabelCache(maxSize int) *LabelCache {
	if maxSize <= 0 {
		maxSize = defaultLabelCacheSize
	}
	return &LabelCache{
		labels:  make(map[string]string),
		order:   make([]string, 0, maxSize),
		maxSize: maxSize,
	}
}

func (l *LabelCache) GetLabel(_ context.Context, digest string) (string, bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	label, ok := l.labels[digest]
	return label, ok, nil
}

func (l *LabelCache) SetLabel(_ context.Context, digest, label string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.labels[digest]; !ok {
		if len(l.order) >= l.maxSize {
			oldest := l.order[0]
			l.order = l.order[1:]
			delete(l.labels, oldest)
		}
		l.order = append(l.order, digest)
	}
	l.labels[digest] = label
	return nil
}
