package repository

import (
	"context"
	"errors"
	"time"

	"github.com/cci-legal/litigation/internal/litigation/entity"
	"gorm.io/gorm"
)

// DraftRepository 草稿仓库
type DraftRepository struct {
	db *gorm.DB
}

// NewDraftRepository 创建草稿仓库
func NewDraftRepository(db *gorm.DB) *DraftRepository {
	return &DraftRepository{db: db}
}

// FindByKey 根据draft_key查找用户草稿
func (r *DraftRepository) FindByKey(ctx context.Context, userID, draftKey string) (*entity.Draft, error) {
	var draft entity.Draft
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND draft_key = ?", userID, draftKey).
		First(&draft).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil // 没有草稿不算错误
		}
		return nil, err
	}
	return &draft, nil
}

// FindLatestByKeyPrefix 查找key前缀匹配的最新草稿
func (r *DraftRepository) FindLatestByKeyPrefix(ctx context.Context, userID, prefix string) (*entity.Draft, error) {
	var draft entity.Draft
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND draft_key LIKE ?", userID, prefix+"%").
		Order("updated_at DESC").
		First(&draft).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &draft, nil
}

// FindByID 根据ID查找用户草稿
func (r *DraftRepository) FindByID(ctx context.Context, userID, id string) (*entity.Draft, error) {
	var draft entity.Draft
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND id = ?", userID, id).
		First(&draft).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &draft, nil
}

// Upsert 按(user_id, draft_key)创建或覆盖草稿，返回是否新建
func (r *DraftRepository) Upsert(ctx context.Context, draft *entity.Draft) (bool, error) {
	created := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing entity.Draft
		err := tx.Where("user_id = ? AND draft_key = ?", draft.UserID, draft.DraftKey).
			First(&existing).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				created = true
				return tx.Create(draft).Error
			}
			return err
		}
		existing.DraftType = draft.DraftType
		existing.Title = draft.Title
		existing.FormData = draft.FormData
		existing.CaseID = draft.CaseID
		existing.IsAutoSaved = draft.IsAutoSaved
		existing.UpdatedAt = draft.UpdatedAt
		if err := tx.Save(&existing).Error; err != nil {
			return err
		}
		*draft = existing
		return nil
	})
	return created, err
}

// Create 创建草稿
func (r *DraftRepository) Create(ctx context.Context, draft *entity.Draft) error {
	return r.db.WithContext(ctx).Create(draft).Error
}

// ListByUser 列出用户草稿（按更新时间倒序）
func (r *DraftRepository) ListByUser(ctx context.Context, userID, draftType string, includeAutoSaved bool, limit int) ([]entity.Draft, error) {
	var drafts []entity.Draft
	query := r.db.WithContext(ctx).Where("user_id = ?", userID)
	if draftType != "" {
		query = query.Where("draft_type = ?", draftType)
	}
	if !includeAutoSaved {
		query = query.Where("is_auto_saved = ?", false)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Order("updated_at DESC").Find(&drafts).Error
	return drafts, err
}

// DeleteByID 删除用户的指定草稿
func (r *DraftRepository) DeleteByID(ctx context.Context, userID, id string) error {
	result := r.db.WithContext(ctx).
		Where("user_id = ? AND id = ?", userID, id).
		Delete(&entity.Draft{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteByKey 按draft_key删除用户草稿
func (r *DraftRepository) DeleteByKey(ctx context.Context, userID, draftKey string) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("user_id = ? AND draft_key = ?", userID, draftKey).
		Delete(&entity.Draft{})
	return result.RowsAffected, result.Error
}

// DeleteAutoSavedBefore 删除用户早于cutoff的自动保存草稿
func (r *DraftRepository) DeleteAutoSavedBefore(ctx context.Context, userID string, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("user_id = ? AND is_auto_saved = ? AND updated_at < ?", userID, true, cutoff).
		Delete(&entity.Draft{})
	return result.RowsAffected, result.Error
}

// TrimAutoSaved 只保留用户最新的keep条自动保存草稿
func (r *DraftRepository) TrimAutoSaved(ctx context.Context, userID string, keep int) (int64, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&entity.Draft{}).
		Where("user_id = ? AND is_auto_saved = ?", userID, true).
		Order("updated_at DESC").
		Offset(keep).
		Pluck("id", &ids).Error
	if err != nil {
		return 0, err
	}
	return r.DeleteByIDs(ctx, ids)
}

// FindExpired 查找早于cutoff的草稿（全体用户）
func (r *DraftRepository) FindExpired(ctx context.Context, autoSaved bool, cutoff time.Time) ([]entity.Draft, error) {
	var drafts []entity.Draft
	err := r.db.WithContext(ctx).
		Where("is_auto_saved = ? AND updated_at < ?", autoSaved, cutoff).
		Order("updated_at ASC").
		Find(&drafts).Error
	return drafts, err
}

// DeleteByIDs 批量删除草稿
func (r *DraftRepository) DeleteByIDs(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	result := r.db.WithContext(ctx).Where("id IN ?", ids).Delete(&entity.Draft{})
	return result.RowsAffected, result.Error
}
