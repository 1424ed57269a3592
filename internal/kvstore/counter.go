package kvstore

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Window は固定ウィンドウのカウンタとリセット時刻。
type Window struct {
	Count     int       `json:"count"`
	ResetTime time.Time `json:"reset_time"`
}

// Counter は固定ウィンドウのカウンタをキー単位で原子的に加算するストア。
type Counter interface {
	// Increment はkeyのカウンタを1加算し、加算後のウィンドウを返す。
	// キーが存在しないかリセット時刻を過ぎている場合は、現在時刻から始まる長さwindowの新しいウィンドウを作る。
	// 同一キーへの同時呼び出しでも加算は失われない。
	Increment(ctx context.Context, key string, window time.Duration) (Window, error)

	// Delete はkeyのウィンドウを破棄する。
	Delete(ctx context.Context, key string) error

	Sweeper
}

// TableCounter はTableのUpsertでカウンタを加算するCounter実装。
// MemoryTableと組み合わせて単一プロセス構成で使用する。
type TableCounter struct {
	table Table[Window]
}

// NewTableCounter はTableCounterを生成する。
func NewTableCounter(table Table[Window]) *TableCounter {
	return &TableCounter{table: table}
}

// Increment はUpsertの中でウィンドウの更新と加算を行う。
func (c *TableCounter) Increment(ctx context.Context, key string, window time.Duration) (Window, error) {
	return c.table.Upsert(ctx, key, func(cur Window, exists bool, now time.Time) (Window, time.Time) {
		if !exists || !now.Before(cur.ResetTime) {
			fresh := Window{Count: 1, ResetTime: now.Add(window)}
			return fresh, fresh.ResetTime
		}
		cur.Count++
		return cur, cur.ResetTime
	})
}

// Delete はウィンドウを破棄する。
func (c *TableCounter) Delete(ctx context.Context, key string) error {
	return c.table.Delete(ctx, key)
}

// Sweep は期限切れのウィンドウを削除する。
func (c *TableCounter) Sweep(ctx context.Context) (int, error) {
	return c.table.Sweep(ctx)
}

// incrementScript はINCRと有効期限の設定を1つのスクリプトで実行する。
// 有効期限のないキー（新規作成直後）にだけPEXPIREを設定するため、ウィンドウは最初の加算時刻に固定される。
// 戻り値は {加算後の値, 残りミリ秒}。
var incrementScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
	ttl = tonumber(ARGV[1])
end
return {count, ttl}
`)

// RedisCounter はRedisのLuaスクリプトでカウンタを加算するCounter実装。
// 読み取りから書き込みまでをサーバー側で1回で実行するため、同一キーへの同時加算でも競合エラーにならない。
// ウィンドウの削除はキーの有効期限に任せる。
type RedisCounter struct {
	client    redis.UniversalClient
	keyPrefix string
	now       func() time.Time
}

// NewRedisCounter はRedisCounterを生成する。nowがnilの場合はtime.Nowを使用する。
func NewRedisCounter(client redis.UniversalClient, keyPrefix string, now func() time.Time) *RedisCounter {
	if now == nil {
		now = time.Now
	}
	return &RedisCounter{
		client:    client,
		keyPrefix: keyPrefix,
		now:       now,
	}
}

func (c *RedisCounter) key(k string) string {
	return c.keyPrefix + k
}

// Increment はスクリプトでカウンタを加算し、残り有効期間からリセット時刻を求める。
func (c *RedisCounter) Increment(ctx context.Context, key string, window time.Duration) (Window, error) {
	windowMs := max(window.Milliseconds(), 1)

	res, err := incrementScript.Run(ctx, c.client, []string{c.key(key)}, windowMs).Int64Slice()
	if err != nil {
		return Window{}, fmt.Errorf("failed to increment %s: %w", key, err)
	}
	if len(res) != 2 {
		return Window{}, fmt.Errorf("failed to increment %s: unexpected reply %v", key, res)
	}

	return Window{
		Count:     int(res[0]),
		ResetTime: c.now().Add(time.Duration(res[1]) * time.Millisecond),
	}, nil
}

// Delete はウィンドウを破棄する。
func (c *RedisCounter) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, c.key(key)).Err(); err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

// Sweep は何もしない。期限切れのキーはRedisが削除する。
func (c *RedisCounter) Sweep(_ context.Context) (int, error) {
	return 0, nil
}

// compile-time interface check
var (
	_ Counter = (*TableCounter)(nil)
	_ Counter = (*RedisCounter)(nil)
)
