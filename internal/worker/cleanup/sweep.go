// Package cleanup は広告から参照されなくなった画像を削除するジョブを提供する。
// 画像保存と広告レコードの書き込みは同一トランザクションではないため、
// レコード作成に失敗した画像が残ることがある。このジョブが定期的に回収する。
package cleanup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/adboard/internal/asset"
	"github.com/hitoshi/adboard/internal/metrics"
)

// ObjectStore は保存済み画像の列挙と削除のインターフェース。asset.Backendが満たす。
type ObjectStore interface {
	List(ctx context.Context) ([]asset.Object, error)
	Stat(ctx context.Context, name string) (asset.Object, error)
	Delete(ctx context.Context, name string) error
}

// ReferenceLister は広告から参照されている画像名を返すインターフェース。
type ReferenceLister interface {
	ListImageNames(ctx context.Context) ([]string, error)
	IsImageReferenced(ctx context.Context, name string) (bool, error)
}

// TempFileCleaner は書き込み途中で残った一時ファイルを削除できる保存先が実装する。
// asset.FSBackendが満たす。
type TempFileCleaner interface {
	RemoveStaleTemp(ctx context.Context, before time.Time) (int, error)
}

// SweepJob は孤立した画像の削除ジョブ。
// 猶予期間より新しい画像は、作成中の広告のものである可能性があるため削除しない。
// 保存先が一時ファイルを持つ場合、猶予期間を過ぎた一時ファイルも削除する。
// 冪等: 削除対象がない場合でもエラーにならない。
type SweepJob struct {
	objects ObjectStore
	refs    ReferenceLister
	logger  *slog.Logger
	metrics metrics.MetricsCollector
	Grace   time.Duration // 削除対象とする最終更新からの経過時間（デフォルト: 24時間）
	now     func() time.Time
}

// NewSweepJob は新しいSweepJobを生成する。collectorがnilの場合はメトリクスを記録しない。
func NewSweepJob(objects ObjectStore, refs ReferenceLister, logger *slog.Logger, collector metrics.MetricsCollector) *SweepJob {
	return &SweepJob{
		objects: objects,
		refs:    refs,
		logger:  logger,
		metrics: collector,
		Grace:   24 * time.Hour,
		now:     time.Now,
	}
}

// Run は参照されていない画像のうち猶予期間を過ぎたものを削除し、削除件数を返す。
// 個々の削除失敗はログに記録して処理を継続する。
func (j *SweepJob) Run(ctx context.Context) (int, error) {
	start := j.now()

	// 先に画像を列挙し、その後に参照を取得する。
	// 列挙後に作成された広告の参照も含まれるため、参照中の画像を誤って削除しない。
	objects, err := j.objects.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("画像一覧の取得に失敗: %w", err)
	}

	names, err := j.refs.ListImageNames(ctx)
	if err != nil {
		return 0, fmt.Errorf("画像参照一覧の取得に失敗: %w", err)
	}
	referenced := make(map[string]struct{}, len(names))
	for _, n := range names {
		referenced[n] = struct{}{}
	}

	cutoff := start.Add(-j.Grace)
	deleted, failed := 0, 0
	for _, obj := range objects {
		if err := ctx.Err(); err != nil {
			return deleted, err
		}
		if !asset.ValidName(obj.Name) {
			continue
		}
		if _, ok := referenced[obj.Name]; ok {
			continue
		}
		if obj.ModTime.After(cutoff) {
			continue
		}

		// 一覧取得後に参照や上書きが発生している場合があるため、削除直前に再確認する。
		ok, err := j.stillOrphaned(ctx, obj.Name, cutoff)
		if err != nil {
			failed++
			j.logger.Error("孤立画像の再確認に失敗しました",
				slog.String("image", obj.Name),
				slog.String("error", err.Error()),
			)
			continue
		}
		if !ok {
			continue
		}

		if err := j.objects.Delete(ctx, obj.Name); err != nil {
			failed++
			j.logger.Error("孤立画像の削除に失敗しました",
				slog.String("image", obj.Name),
				slog.String("error", err.Error()),
			)
			continue
		}
		deleted++
		j.logger.Info("孤立画像を削除しました",
			slog.String("image", obj.Name),
			slog.Int64("size", obj.Size),
		)
	}

	if j.metrics != nil && deleted > 0 {
		j.metrics.RecordAssetsSwept(deleted)
	}

	tempRemoved := 0
	if cleaner, ok := j.objects.(TempFileCleaner); ok {
		tempRemoved, err = cleaner.RemoveStaleTemp(ctx, cutoff)
		if err != nil {
			j.logger.Error("一時ファイルの削除に失敗しました",
				slog.String("error", err.Error()),
			)
		}
	}

	j.logger.Info("画像クリーンアップジョブが完了しました",
		slog.Int("scanned_count", len(objects)),
		slog.Int("referenced_count", len(referenced)),
		slog.Int("deleted_count", deleted),
		slog.Int("failed_count", failed),
		slog.Int("temp_removed_count", tempRemoved),
		slog.Duration("grace", j.Grace),
		slog.Float64("duration_ms", float64(j.now().Sub(start).Milliseconds())),
	)
	return deleted, nil
}

// stillOrphaned は画像が現時点でも猶予期間を過ぎた未参照の画像かを確認する。
// 既に削除済みの画像はfalseを返す。
func (j *SweepJob) stillOrphaned(ctx context.Context, name string, cutoff time.Time) (bool, error) {
	current, err := j.objects.Stat(ctx, name)
	if errors.Is(err, asset.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("画像情報の取得に失敗: %w", err)
	}
	if current.ModTime.After(cutoff) {
		j.logger.Debug("再確認で更新済みの画像をスキップしました", slog.String("image", name))
		return false, nil
	}

	referenced, err := j.refs.IsImageReferenced(ctx, name)
	if err != nil {
		return false, fmt.Errorf("画像参照の確認に失敗: %w", err)
	}
	if referenced {
		j.logger.Debug("再確認で参照中の画像をスキップしました", slog.String("image", name))
		return false, nil
	}
	return true, nil
}

// Start は指定間隔のティッカーでジョブを繰り返し実行する。
// 起動直後に1回実行し、コンテキストがキャンセルされるまで継続する。
func (j *SweepJob) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	j.logger.Info("画像クリーンアップスケジューラを開始しました",
		slog.Duration("interval", interval),
		slog.Duration("grace", j.Grace),
	)

	j.runAndLog(ctx)

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("画像クリーンアップスケジューラを停止しました")
			return
		case <-ticker.C:
			j.runAndLog(ctx)
		}
	}
}

func (j *SweepJob) runAndLog(ctx context.Context) {
	if _, err := j.Run(ctx); err != nil {
		j.logger.Error("画像クリーンアップジョブの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}
}
