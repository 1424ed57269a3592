// Package kvstore はレート制限・CSRFトークンなどの期限付きエントリを保持するテーブルを提供する。
//
// テーブルはキー単位の原子的な更新（Upsert）を提供し、期限切れのエントリは
// Sweepの実行有無にかかわらずGet/Upsertから不可視になる。
// 単一プロセス構成ではMemoryTable、複数インスタンス構成ではRedisTableを使用する。
package kvstore

import (
	"context"
	"time"
)

// UpdateFunc はUpsertで実行する更新関数。
// currentとexistsには現在の有効なエントリ（期限切れは存在しない扱い）が渡される。
// 戻り値のexpiresAtが新しいエントリの有効期限になる。
// RedisTableでは競合時に再実行されるため、副作用を持たせてはならない。
// 単純な置き換えにはSetを、カウンタの加算にはCounterを使う。
type UpdateFunc[V any] func(current V, exists bool, now time.Time) (next V, expiresAt time.Time)

// Table は期限付きエントリを保持するキーバリューテーブルのインターフェース。
type Table[V any] interface {
	// Get は有効なエントリを取得する。存在しないか期限切れの場合はexists=falseを返す。
	Get(ctx context.Context, key string) (value V, exists bool, err error)

	// Upsert はキーに対する読み取り・判定・書き込みを1つの原子的な操作として実行する。
	Upsert(ctx context.Context, key string, fn UpdateFunc[V]) (V, error)

	// Set は現在の値に関係なくエントリを置き換え、テーブルの現在時刻からttl後を有効期限とする。
	// ttlが0以下の場合はエントリを削除する。
	Set(ctx context.Context, key string, value V, ttl time.Duration) error

	// Delete はエントリを削除する。存在しない場合もエラーにしない。
	Delete(ctx context.Context, key string) error

	// Sweep は期限切れのエントリを削除し、削除件数を返す。
	// メモリ使用量を抑えるためだけの処理であり、正しさはSweepに依存しない。
	Sweep(ctx context.Context) (int, error)
}

// Sweeper は期限切れエントリの定期削除に必要なインターフェース。
type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
}

// expired は有効期限を過ぎているかを判定する。now == expiresAt も期限切れとする。
func expired(expiresAt, now time.Time) bool {
	return !now.Before(expiresAt)
}
