package kvstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// retryBackoffStep は競合時の待ち時間の単位。試行回数に応じて最大maxRetryBackoffSteps倍まで伸ばす。
const (
	retryBackoffStep     = 100 * time.Microsecond
	maxRetryBackoffSteps = 20
)

// ErrUpsertConflict は競合が解消する前にコンテキストが終了したことを表す。
var ErrUpsertConflict = errors.New("kvstore: upsert did not complete before the context ended")

// redisEnvelope はRedisに保存する値と有効期限。
type redisEnvelope[V any] struct {
	Value     V         `json:"value"`
	ExpiresAt time.Time `json:"expires_at"`
}

// RedisTable はRedisを使用したTable実装。
// 複数のプロセスインスタンスでレート制限・CSRFの状態を共有する場合に使用する。
// エントリの削除はRedisのキー有効期限に任せるため、Sweepは何もしない。
type RedisTable[V any] struct {
	client    redis.UniversalClient
	keyPrefix string
	now       func() time.Time
}

// NewRedisTable はRedisTableを生成する。
// keyPrefixはテーブルごとに異なる値を指定すること（例: "storefront:ratelimit:"）。
func NewRedisTable[V any](client redis.UniversalClient, keyPrefix string, now func() time.Time) *RedisTable[V] {
	if now == nil {
		now = time.Now
	}
	return &RedisTable[V]{
		client:    client,
		keyPrefix: keyPrefix,
		now:       now,
	}
}

func (t *RedisTable[V]) key(k string) string {
	return fmt.Sprintf("%s%s", t.keyPrefix, k)
}

// Get は有効なエントリを取得する。
func (t *RedisTable[V]) Get(ctx context.Context, key string) (V, bool, error) {
	var zero V

	raw, err := t.client.Get(ctx, t.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return zero, false, nil
	}
	if err != nil {
		return zero, false, fmt.Errorf("failed to get %s: %w", key, err)
	}

	env, err := decodeEnvelope[V](raw)
	if err != nil {
		return zero, false, err
	}
	if expired(env.ExpiresAt, t.now()) {
		return zero, false, nil
	}
	return env.Value, true, nil
}

// Upsert はWATCHによる楽観的トランザクションでfnを実行する。
// 他のクライアントが同じキーを先に更新した場合はfnを再実行する。
// 競合は各ラウンドで必ず1つのクライアントが成功するため、ctxが終了するまで再試行する。
func (t *RedisTable[V]) Upsert(ctx context.Context, key string, fn UpdateFunc[V]) (V, error) {
	var result V
	k := t.key(key)

	txf := func(tx *redis.Tx) error {
		now := t.now()

		var current V
		exists := false

		raw, err := tx.Get(ctx, k).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return err
		default:
			env, err := decodeEnvelope[V](raw)
			if err != nil {
				return err
			}
			if !expired(env.ExpiresAt, now) {
				current = env.Value
				exists = true
			}
		}

		next, expiresAt := fn(current, exists, now)
		ttl := expiresAt.Sub(now)

		encoded, err := json.Marshal(redisEnvelope[V]{Value: next, ExpiresAt: expiresAt})
		if err != nil {
			return fmt.Errorf("failed to encode entry: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if ttl <= 0 {
				pipe.Del(ctx, k)
				return nil
			}
			pipe.Set(ctx, k, encoded, ttl)
			return nil
		})
		if err != nil {
			return err
		}

		result = next
		return nil
	}

	for attempt := 0; ; attempt++ {
		err := t.client.Watch(ctx, txf, k)
		if err == nil {
			return result, nil
		}
		if !errors.Is(err, redis.TxFailedErr) {
			var zero V
			return zero, fmt.Errorf("failed to upsert %s: %w", key, err)
		}
		if err := waitRetry(ctx, attempt); err != nil {
			var zero V
			return zero, fmt.Errorf("%w: %s: %w", ErrUpsertConflict, key, err)
		}
	}
}

// waitRetry は競合後の再試行まで待つ。ctxが先に終了した場合はそのエラーを返す。
func waitRetry(ctx context.Context, attempt int) error {
	timer := time.NewTimer(time.Duration(min(attempt, maxRetryBackoffSteps)+1) * retryBackoffStep)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Set はエントリをSET PXで置き換える。読み取りを伴わないため競合しない。
func (t *RedisTable[V]) Set(ctx context.Context, key string, value V, ttl time.Duration) error {
	if ttl <= 0 {
		return t.Delete(ctx, key)
	}

	encoded, err := json.Marshal(redisEnvelope[V]{Value: value, ExpiresAt: t.now().Add(ttl)})
	if err != nil {
		return fmt.Errorf("failed to encode entry: %w", err)
	}
	if err := t.client.Set(ctx, t.key(key), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	return nil
}

// Delete はエントリを削除する。
func (t *RedisTable[V]) Delete(ctx context.Context, key string) error {
	if err := t.client.Del(ctx, t.key(key)).Err(); err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

// Sweep は何もしない。期限切れのキーはRedisが削除する。
func (t *RedisTable[V]) Sweep(_ context.Context) (int, error) {
	return 0, nil
}

func decodeEnvelope[V any](raw []byte) (redisEnvelope[V], error) {
	var env redisEnvelope[V]
	if err := json.Unmarshal(raw, &env); err != nil {
		return env, fmt.Errorf("failed to decode entry: %w", err)
	}
	return env, nil
}

// compile-time interface check
var _ Table[int] = (*RedisTable[int])(nil)
