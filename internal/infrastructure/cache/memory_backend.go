package cache

import (
	"container/list"
	"context"
	"fmt"
	"path"
	"sync"
	"time"

	"go.uber.org/zap"
)

// MemoryBackend is an in-process Backend with LRU eviction and per-key TTL.
// It is meant for single-instance development and tests; locks taken
// through SetIfAbsent are only visible inside this process.
type MemoryBackend struct {
	mu          sync.Mutex
	items       map[string]*memoryItem
	lruList     *list.List
	maxItems    int
	maxMemory   int64
	currentSize int64
	now         func() time.Time

	hits      int64
	misses    int64
	evictions int64

	stopCh    chan struct{}
	closeOnce sync.Once
	logger    *zap.Logger
}

type memoryItem struct {
	key        string
	value      []byte
	size       int64
	expiry     time.Time
	lruElement *list.Element
}

// MemoryStats holds backend statistics.
type MemoryStats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Items     int
	Size      int64
	HitRate   float64
}

// MemoryOption customises a MemoryBackend.
type MemoryOption func(*MemoryBackend)

// WithClock replaces time.Now, which lets tests move time forward.
func WithClock(now func() time.Time) MemoryOption {
	return func(b *MemoryBackend) {
		b.now = now
	}
}

// NewMemoryBackend creates a backend bounded by item count and bytes.
func NewMemoryBackend(maxItems int, maxMemory int64, logger *zap.Logger, opts ...MemoryOption) *MemoryBackend {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &MemoryBackend{
		items:     make(map[string]*memoryItem),
		lruList:   list.New(),
		maxItems:  maxItems,
		maxMemory: maxMemory,
		now:       time.Now,
		stopCh:    make(chan struct{}),
		logger:    logger,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *MemoryBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, &BackendError{Op: "get", Key: key, Err: err}
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	item := b.live(key)
	if item == nil {
		b.misses++
		return nil, false, nil
	}
	b.lruList.MoveToFront(item.lruElement)
	b.hits++

	value := make([]byte, len(item.value))
	copy(value, item.value)
	return value, true, nil
}

func (b *MemoryBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := validateTTL("set", key, ttl); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return &BackendError{Op: "set", Key: key, Err: err}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.store(key, value, ttl)
}

func (b *MemoryBackend) SetMulti(ctx context.Context, items ...Item) error {
	for _, it := range items {
		if err := validateTTL("set_multi", it.Key, it.TTL); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return &BackendError{Op: "set_multi", Err: err}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	// All or nothing: refuse the batch before writing any of it.
	for _, it := range items {
		if err := b.fits(it.Key, it.Value); err != nil {
			return err
		}
	}
	for _, it := range items {
		if err := b.store(it.Key, it.Value, it.TTL); err != nil {
			return err
		}
	}
	return nil
}

func (b *MemoryBackend) SetIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	if err := validateTTL("set_if_absent", key, ttl); err != nil {
		return false, err
	}
	if err := ctx.Err(); err != nil {
		return false, &BackendError{Op: "set_if_absent", Key: key, Err: err}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.live(key) != nil {
		return false, nil
	}
	if err := b.store(key, value, ttl); err != nil {
		return false, err
	}
	return true, nil
}

func (b *MemoryBackend) Delete(ctx context.Context, keys ...string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, &BackendError{Op: "delete", Err: err}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	var n int64
	for _, key := range keys {
		if item := b.live(key); item != nil {
			b.removeItem(item)
			n++
		}
	}
	return n, nil
}

func (b *MemoryBackend) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, &BackendError{Op: "exists", Key: key, Err: err}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.live(key) != nil, nil
}

func (b *MemoryBackend) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if err := validateTTL("expire", key, ttl); err != nil {
		return false, err
	}
	if err := ctx.Err(); err != nil {
		return false, &BackendError{Op: "expire", Key: key, Err: err}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	item := b.live(key)
	if item == nil {
		return false, nil
	}
	item.expiry = b.now().Add(ttl)
	return true, nil
}

// Scan snapshots matching keys under the lock, then hands them out in
// batches without holding it.
func (b *MemoryBackend) Scan(ctx context.Context, pattern string, fn func(keys []string) error) error {
	const batchSize = 100

	b.mu.Lock()
	now := b.now()
	matched := make([]string, 0)
	for key, item := range b.items {
		if !now.Before(item.expiry) {
			continue
		}
		if ok, err := path.Match(pattern, key); err == nil && ok {
			matched = append(matched, key)
		}
	}
	b.mu.Unlock()

	for start := 0; start < len(matched); start += batchSize {
		if err := ctx.Err(); err != nil {
			return &BackendError{Op: "scan", Key: pattern, Err: err}
		}
		end := start + batchSize
		if end > len(matched) {
			end = len(matched)
		}
		if err := fn(matched[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (b *MemoryBackend) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return &BackendError{Op: "ping", Err: err}
	}
	return nil
}

// Close stops the cleanup loop if one was started.
func (b *MemoryBackend) Close() error {
	b.closeOnce.Do(func() { close(b.stopCh) })
	return nil
}

// Stats returns backend statistics.
func (b *MemoryBackend) Stats() MemoryStats {
	b.mu.Lock()
	defer b.mu.Unlock()

	hitRate := float64(0)
	if total := b.hits + b.misses; total > 0 {
		hitRate = float64(b.hits) / float64(total)
	}
	return MemoryStats{
		Hits:      b.hits,
		Misses:    b.misses,
		Evictions: b.evictions,
		Items:     len(b.items),
		Size:      b.currentSize,
		HitRate:   hitRate,
	}
}

// StartCleanup removes expired items every interval until Close.
func (b *MemoryBackend) StartCleanup(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				b.cleanupExpired()
			case <-b.stopCh:
				return
			}
		}
	}()
}

func (b *MemoryBackend) cleanupExpired() {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	removed := 0
	for _, item := range b.items {
		if now.After(item.expiry) {
			b.removeItem(item)
			removed++
		}
	}
	if removed > 0 {
		b.logger.Debug("Removed expired cache entries", zap.Int("count", removed))
	}
}

// live returns the unexpired item for key, dropping it if it has expired.
// Must be called with the lock held.
func (b *MemoryBackend) live(key string) *memoryItem {
	item, ok := b.items[key]
	if !ok {
		return nil
	}
	if !b.now().Before(item.expiry) {
		b.removeItem(item)
		return nil
	}
	return item
}

// fits reports whether one entry can ever be stored under the memory limit.
func (b *MemoryBackend) fits(key string, value []byte) error {
	size := int64(len(key) + len(value))
	if b.maxMemory > 0 && size > b.maxMemory {
		b.logger.Warn("Item too large for cache",
			zap.String("key", key),
			zap.Int64("size", size),
			zap.Int64("max_memory", b.maxMemory),
		)
		return fmt.Errorf("%q is %d bytes, limit %d: %w", key, size, b.maxMemory, ErrValueTooLarge)
	}
	return nil
}

// store must be called with the lock held. Oversized entries are refused
// and leave any existing value in place.
func (b *MemoryBackend) store(key string, value []byte, ttl time.Duration) error {
	if err := b.fits(key, value); err != nil {
		return err
	}
	size := int64(len(key) + len(value))
	if existing, ok := b.items[key]; ok {
		b.removeItem(existing)
	}
	for b.overCapacity(size) && b.lruList.Len() > 0 {
		oldest := b.lruList.Back()
		b.removeItem(oldest.Value.(*memoryItem))
		b.evictions++
	}

	item := &memoryItem{
		key:    key,
		value:  make([]byte, len(value)),
		size:   size,
		expiry: b.now().Add(ttl),
	}
	copy(item.value, value)
	item.lruElement = b.lruList.PushFront(item)
	b.items[key] = item
	b.currentSize += size
	return nil
}

func (b *MemoryBackend) overCapacity(incoming int64) bool {
	if b.maxMemory > 0 && b.currentSize+incoming > b.maxMemory {
		return true
	}
	return b.maxItems > 0 && len(b.items) >= b.maxItems
}

func (b *MemoryBackend) removeItem(item *memoryItem) {
	if item.lruElement != nil {
		b.lruList.Remove(item.lruElement)
	}
	delete(b.items, item.key)
	b.currentSize -= item.size
}
