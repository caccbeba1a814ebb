package autosave

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"
)

// Reconcile 合并各来源的草稿并按时间倒序排列
// 单个来源失败时记录日志并跳过，返回其余来源的结果以及合并后的错误
func Reconcile(ctx context.Context, logger *zap.Logger, stores ...DraftStore) ([]Draft, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var (
		drafts []Draft
		errs   []error
	)
	for _, store := range stores {
		if store == nil {
			continue
		}
		list, err := store.List(ctx)
		if err != nil {
			logger.Warn("List drafts failed", zap.String("source", string(store.Source())), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", store.Source(), err))
			continue
		}
		drafts = append(drafts, list...)
	}
	sort.SliceStable(drafts, func(i, j int) bool {
		return drafts[i].Timestamp.After(drafts[j].Timestamp)
	})
	return drafts, errors.Join(errs...)
}
