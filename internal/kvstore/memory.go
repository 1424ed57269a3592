package kvstore

import (
	"context"
	"sync"
	"time"
)

type memoryEntry[V any] struct {
	value     V
	expiresAt time.Time
}

// MemoryTable はプロセス内のmapを使用したTable実装。
// テーブル全体を1つのロックで保護し、Upsertの読み取りから書き込みまでを排他的に実行する。
type MemoryTable[V any] struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry[V]
	now     func() time.Time
}

// NewMemoryTable はMemoryTableを生成する。nowがnilの場合はtime.Nowを使用する。
func NewMemoryTable[V any](now func() time.Time) *MemoryTable[V] {
	if now == nil {
		now = time.Now
	}
	return &MemoryTable[V]{
		entries: make(map[string]memoryEntry[V]),
		now:     now,
	}
}

// Get は有効なエントリを取得する。
func (t *MemoryTable[V]) Get(_ context.Context, key string) (V, bool, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	e, ok := t.entries[key]
	if !ok || expired(e.expiresAt, t.now()) {
		var zero V
		return zero, false, nil
	}
	return e.value, true, nil
}

// Upsert はロックを保持したままfnを実行し、結果を書き込む。
func (t *MemoryTable[V]) Upsert(_ context.Context, key string, fn UpdateFunc[V]) (V, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	current, ok := t.entries[key]
	exists := ok && !expired(current.expiresAt, now)
	if !exists {
		var zero V
		current.value = zero
	}

	next, expiresAt := fn(current.value, exists, now)
	t.entries[key] = memoryEntry[V]{value: next, expiresAt: expiresAt}

	return next, nil
}

// Set はエントリを置き換える。
func (t *MemoryTable[V]) Set(_ context.Context, key string, value V, ttl time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if ttl <= 0 {
		delete(t.entries, key)
		return nil
	}
	t.entries[key] = memoryEntry[V]{value: value, expiresAt: t.now().Add(ttl)}
	return nil
}

// Delete はエントリを削除する。
func (t *MemoryTable[V]) Delete(_ context.Context, key string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.entries, key)
	return nil
}

// Sweep は期限切れのエントリを削除する。
func (t *MemoryTable[V]) Sweep(_ context.Context) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	removed := 0
	for key, e := range t.entries {
		if expired(e.expiresAt, now) {
			delete(t.entries, key)
			removed++
		}
	}
	return removed, nil
}

// Len は期限切れを含む保持中のエントリ数を返す。
// テストおよびメトリクス用。
func (t *MemoryTable[V]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// compile-time interface check
var _ Table[int] = (*MemoryTable[int])(nil)
