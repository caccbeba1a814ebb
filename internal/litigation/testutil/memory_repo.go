package testutil

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cci-legal/litigation/internal/litigation/entity"
	"github.com/cci-legal/litigation/internal/litigation/repository"
)

// MemoryDraftRepo 内存版草稿仓库，语义与repository.DraftRepository一致
type MemoryDraftRepo struct {
	mu     sync.Mutex
	drafts map[string]entity.Draft // id -> draft

	// 设置后所有方法返回该错误
	Err error
}

// NewMemoryDraftRepo 创建内存仓库
func NewMemoryDraftRepo() *MemoryDraftRepo {
	return &MemoryDraftRepo{drafts: make(map[string]entity.Draft)}
}

// Put 直接写入一条草稿
func (r *MemoryDraftRepo) Put(d entity.Draft) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.drafts[d.ID] = d
}

// All 返回全部草稿（按更新时间倒序）
func (r *MemoryDraftRepo) All() []entity.Draft {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sorted(func(entity.Draft) bool { return true })
}

func (r *MemoryDraftRepo) sorted(match func(entity.Draft) bool) []entity.Draft {
	var out []entity.Draft
	for _, d := range r.drafts {
		if match(d) {
			out = append(out, d)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out
}

func (r *MemoryDraftRepo) FindByKey(ctx context.Context, userID, draftKey string) (*entity.Draft, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	for _, d := range r.drafts {
		if d.UserID == userID && d.DraftKey == draftKey {
			return &d, nil
		}
	}
	return nil, nil
}

func (r *MemoryDraftRepo) FindLatestByKeyPrefix(ctx context.Context, userID, prefix string) (*entity.Draft, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	list := r.sorted(func(d entity.Draft) bool {
		return d.UserID == userID && strings.HasPrefix(d.DraftKey, prefix)
	})
	if len(list) == 0 {
		return nil, nil
	}
	return &list[0], nil
}

func (r *MemoryDraftRepo) FindByID(ctx context.Context, userID, id string) (*entity.Draft, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	d, ok := r.drafts[id]
	if !ok || d.UserID != userID {
		return nil, nil
	}
	return &d, nil
}

func (r *MemoryDraftRepo) Upsert(ctx context.Context, draft *entity.Draft) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return false, r.Err
	}
	for id, existing := range r.drafts {
		if existing.UserID == draft.UserID && existing.DraftKey == draft.DraftKey {
			existing.DraftType = draft.DraftType
			existing.Title = draft.Title
			existing.FormData = draft.FormData
			existing.CaseID = draft.CaseID
			existing.IsAutoSaved = draft.IsAutoSaved
			existing.UpdatedAt = draft.UpdatedAt
			r.drafts[id] = existing
			*draft = existing
			return false, nil
		}
	}
	r.drafts[draft.ID] = *draft
	return true, nil
}

func (r *MemoryDraftRepo) Create(ctx context.Context, draft *entity.Draft) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.drafts[draft.ID] = *draft
	return nil
}

func (r *MemoryDraftRepo) ListByUser(ctx context.Context, userID, draftType string, includeAutoSaved bool, limit int) ([]entity.Draft, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	list := r.sorted(func(d entity.Draft) bool {
		if d.UserID != userID {
			return false
		}
		if draftType != "" && d.DraftType != draftType {
			return false
		}
		return includeAutoSaved || !d.IsAutoSaved
	})
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}

func (r *MemoryDraftRepo) DeleteByID(ctx context.Context, userID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	d, ok := r.drafts[id]
	if !ok || d.UserID != userID {
		return repository.ErrNotFound
	}
	delete(r.drafts, id)
	return nil
}

func (r *MemoryDraftRepo) DeleteByKey(ctx context.Context, userID, draftKey string) (int64, error) {
	return r.deleteWhere(func(d entity.Draft) bool {
		return d.UserID == userID && d.DraftKey == draftKey
	})
}

func (r *MemoryDraftRepo) DeleteAutoSavedBefore(ctx context.Context, userID string, cutoff time.Time) (int64, error) {
	return r.deleteWhere(func(d entity.Draft) bool {
		return d.UserID == userID && d.IsAutoSaved && d.UpdatedAt.Before(cutoff)
	})
}

func (r *MemoryDraftRepo) TrimAutoSaved(ctx context.Context, userID string, keep int) (int64, error) {
	r.mu.Lock()
	if r.Err != nil {
		r.mu.Unlock()
		return 0, r.Err
	}
	list := r.sorted(func(d entity.Draft) bool { return d.UserID == userID && d.IsAutoSaved })
	r.mu.Unlock()
	if len(list) <= keep {
		return 0, nil
	}
	ids := make([]string, 0, len(list)-keep)
	for _, d := range list[keep:] {
		ids = append(ids, d.ID)
	}
	return r.DeleteByIDs(ctx, ids)
}

func (r *MemoryDraftRepo) FindExpired(ctx context.Context, autoSaved bool, cutoff time.Time) ([]entity.Draft, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	list := r.sorted(func(d entity.Draft) bool {
		return d.IsAutoSaved == autoSaved && d.UpdatedAt.Before(cutoff)
	})
	// 与数据库实现一致：最旧的在前
	for i, j := 0, len(list)-1; i < j; i, j = i+1, j-1 {
		list[i], list[j] = list[j], list[i]
	}
	return list, nil
}

func (r *MemoryDraftRepo) DeleteByIDs(ctx context.Context, ids []string) (int64, error) {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return r.deleteWhere(func(d entity.Draft) bool { return set[d.ID] })
}

func (r *MemoryDraftRepo) deleteWhere(match func(entity.Draft) bool) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return 0, r.Err
	}
	var n int64
	for id, d := range r.drafts {
		if match(d) {
			delete(r.drafts, id)
			n++
		}
	}
	return n, nil
}
