// Package sweep は期限切れエントリの定期削除ジョブを提供する。
// レート制限テーブルとCSRFトークンテーブルのメモリ使用量を抑えるためのもので、
// 各テーブルの正しさはこのジョブの実行有無に依存しない。
package sweep

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/hitoshi/storefront/internal/kvstore"
	"github.com/hitoshi/storefront/internal/metrics"
)

// Job は名前付きテーブルの期限切れエントリを削除するジョブ。
type Job struct {
	tables  map[string]kvstore.Sweeper
	logger  *slog.Logger
	metrics metrics.Recorder
}

// NewJob は新しいJobを生成する。
func NewJob(logger *slog.Logger, recorder metrics.Recorder) *Job {
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	return &Job{
		tables:  make(map[string]kvstore.Sweeper),
		logger:  logger,
		metrics: recorder,
	}
}

// Register はスイープ対象のテーブルを登録する。Start前に呼び出すこと。
func (j *Job) Register(name string, table kvstore.Sweeper) {
	j.tables[name] = table
}

// Run は登録された全テーブルを1回スイープする。
// あるテーブルの失敗は他のテーブルの処理を妨げない。
func (j *Job) Run(ctx context.Context) error {
	start := time.Now()

	names := make([]string, 0, len(j.tables))
	for name := range j.tables {
		names = append(names, name)
	}
	sort.Strings(names)

	var errs []error
	total := 0
	for _, name := range names {
		removed, err := j.tables[name].Sweep(ctx)
		if err != nil {
			j.logger.Error("failed to sweep table",
				slog.String("table", name),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("sweep %s: %w", name, err))
			continue
		}
		total += removed
		j.metrics.RecordSweep(name, removed)
	}

	j.logger.Debug("sweep completed",
		slog.Int("removed", total),
		slog.Int("tables", len(names)),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)

	return errors.Join(errs...)
}

// Start はintervalごとにRunを実行する。ctxがキャンセルされるまでブロックする。
func (j *Job) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// エラーはRun内でログ出力済み
			_ = j.Run(ctx)
		}
	}
}
