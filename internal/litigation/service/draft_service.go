package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cci-legal/litigation/internal/config"
	"github.com/cci-legal/litigation/internal/litigation/entity"
	"github.com/cci-legal/litigation/internal/litigation/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// 错误定义
var (
	ErrDraftNotFound    = errors.New("draft not found")
	ErrInvalidDraftType = errors.New("invalid draft type")
	ErrDraftKeyRequired = errors.New("draft_key is required")
	ErrFormDataRequired = errors.New("form_data is required")
)

// DraftRepo 草稿持久化接口
type DraftRepo interface {
	FindByKey(ctx context.Context, userID, draftKey string) (*entity.Draft, error)
	FindLatestByKeyPrefix(ctx context.Context, userID, prefix string) (*entity.Draft, error)
	FindByID(ctx context.Context, userID, id string) (*entity.Draft, error)
	Upsert(ctx context.Context, draft *entity.Draft) (bool, error)
	Create(ctx context.Context, draft *entity.Draft) error
	ListByUser(ctx context.Context, userID, draftType string, includeAutoSaved bool, limit int) ([]entity.Draft, error)
	DeleteByID(ctx context.Context, userID, id string) error
	DeleteByKey(ctx context.Context, userID, draftKey string) (int64, error)
	DeleteAutoSavedBefore(ctx context.Context, userID string, cutoff time.Time) (int64, error)
	TrimAutoSaved(ctx context.Context, userID string, keep int) (int64, error)
	FindExpired(ctx context.Context, autoSaved bool, cutoff time.Time) ([]entity.Draft, error)
	DeleteByIDs(ctx context.Context, ids []string) (int64, error)
}

// DraftNotifier 草稿变更通知
type DraftNotifier interface {
	PublishDraftUpdate(userID, draftKey, action string)
}

// DraftService 草稿服务
type DraftService struct {
	repo     DraftRepo
	notifier DraftNotifier
	cfg      config.DraftConfig
	logger   *zap.Logger
	now      func() time.Time
}

// NewDraftService 创建草稿服务
func NewDraftService(repo DraftRepo, notifier DraftNotifier, cfg config.DraftConfig, logger *zap.Logger) *DraftService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DraftService{
		repo:     repo,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// AutoSaveInput 自动保存请求
type AutoSaveInput struct {
	CaseID    *string      `json:"case_id"`
	FormData  entity.JSONB `json:"form_data"`
	DraftType string       `json:"draft_type"`
	Title     string       `json:"title"`
}

// AutoSaveResult 自动保存结果
type AutoSaveResult struct {
	DraftKey  string    `json:"draft_key"`
	DraftID   string    `json:"draft_id"`
	Timestamp time.Time `json:"timestamp"`
	Created   bool      `json:"created"`
}

// ManualDraftInput 手动保存请求
type ManualDraftInput struct {
	Title     string       `json:"title"`
	FormData  entity.JSONB `json:"form_data"`
	DraftType string       `json:"draft_type"`
	CaseID    *string      `json:"case_id"`
}

// AutoSaveKey 自动保存草稿的key，每个用户每个案件(或新建表单)只有一条
func AutoSaveKey(draftType, userID string, caseID *string) string {
	if caseID != nil && *caseID != "" {
		return fmt.Sprintf("%s_%s_%s_edit", draftType, userID, *caseID)
	}
	return fmt.Sprintf("%s_%s_new", draftType, userID)
}

func newID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}

func normalizeDraftType(t string) (string, error) {
	if t == "" {
		return entity.DraftTypeCase, nil
	}
	if !entity.ValidDraftType(t) {
		return "", fmt.Errorf("%w: %s", ErrInvalidDraftType, t)
	}
	return t, nil
}

func normalizeCaseID(caseID *string) *string {
	if caseID == nil || strings.TrimSpace(*caseID) == "" {
		return nil
	}
	v := strings.TrimSpace(*caseID)
	return &v
}

// AutoSave 创建或覆盖用户的自动保存草稿
func (s *DraftService) AutoSave(ctx context.Context, userID string, input *AutoSaveInput) (*AutoSaveResult, error) {
	draftType, err := normalizeDraftType(input.DraftType)
	if err != nil {
		return nil, err
	}
	if input.FormData == nil {
		input.FormData = entity.JSONB{}
	}
	caseID := normalizeCaseID(input.CaseID)

	title := strings.TrimSpace(input.Title)
	if title == "" {
		title = entity.DefaultTitle(draftType, caseID)
	}

	now := s.now()
	draft := &entity.Draft{
		ID:          newID(),
		UserID:      userID,
		DraftType:   draftType,
		Title:       title,
		FormData:    input.FormData,
		CaseID:      caseID,
		DraftKey:    AutoSaveKey(draftType, userID, caseID),
		IsAutoSaved: true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	created, err := s.repo.Upsert(ctx, draft)
	if err != nil {
		return nil, fmt.Errorf("upsert draft: %w", err)
	}

	// 只保留最新的若干条自动保存草稿
	if keep := s.cfg.KeepAutoSavedPerUser; keep > 0 {
		if n, err := s.repo.TrimAutoSaved(ctx, userID, keep); err != nil {
			s.logger.Error("Trim auto-saved drafts failed", zap.String("user_id", userID), zap.Error(err))
		} else if n > 0 {
			s.logger.Info("Trimmed auto-saved drafts", zap.String("user_id", userID), zap.Int64("deleted", n))
		}
	}

	action := "updated"
	if created {
		action = "created"
	}
	s.logger.Info("Auto-save "+action,
		zap.String("user_id", userID),
		zap.String("draft_key", draft.DraftKey))
	s.notify(userID, draft.DraftKey, "auto_saved")

	return &AutoSaveResult{
		DraftKey:  draft.DraftKey,
		DraftID:   draft.ID,
		Timestamp: draft.UpdatedAt,
		Created:   created,
	}, nil
}

// GetDraft 按key或案件获取草稿；都未提供时返回最新的新建草稿
func (s *DraftService) GetDraft(ctx context.Context, userID, draftKey, caseID, draftType string) (*entity.Draft, error) {
	draftType, err := normalizeDraftType(draftType)
	if err != nil {
		return nil, err
	}

	var draft *entity.Draft
	switch {
	case draftKey != "":
		draft, err = s.repo.FindByKey(ctx, userID, draftKey)
	case caseID != "":
		draft, err = s.repo.FindByKey(ctx, userID, AutoSaveKey(draftType, userID, &caseID))
	default:
		draft, err = s.repo.FindLatestByKeyPrefix(ctx, userID, AutoSaveKey(draftType, userID, nil))
	}
	if err != nil {
		return nil, fmt.Errorf("find draft: %w", err)
	}
	if draft != nil {
		draft.Annotate(s.now())
	}
	return draft, nil
}

// ListUserDrafts 列出用户草稿
func (s *DraftService) ListUserDrafts(ctx context.Context, userID, draftType string, includeAutoSaved bool, limit int) ([]entity.Draft, error) {
	draftType, err := normalizeDraftType(draftType)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 20
	}
	if maxDrafts := s.cfg.MaxDraftsPerUser; maxDrafts > 0 && limit > maxDrafts {
		limit = maxDrafts
	}

	drafts, err := s.repo.ListByUser(ctx, userID, draftType, includeAutoSaved, limit)
	if err != nil {
		return nil, fmt.Errorf("list drafts: %w", err)
	}
	now := s.now()
	for i := range drafts {
		drafts[i].Annotate(now)
	}
	return drafts, nil
}

// SaveManualDraft 用户手动保存草稿，每次生成新记录
func (s *DraftService) SaveManualDraft(ctx context.Context, userID string, input *ManualDraftInput) (*entity.Draft, error) {
	draftType, err := normalizeDraftType(input.DraftType)
	if err != nil {
		return nil, err
	}
	if input.FormData == nil {
		return nil, ErrFormDataRequired
	}
	title := strings.TrimSpace(input.Title)
	if title == "" {
		title = "Manual Draft"
	}

	now := s.now()
	id := newID()
	draft := &entity.Draft{
		ID:          id,
		UserID:      userID,
		DraftType:   draftType,
		Title:       title,
		FormData:    input.FormData,
		CaseID:      normalizeCaseID(input.CaseID),
		DraftKey:    fmt.Sprintf("%s_%s_%s", draftType, userID, id[:8]),
		IsAutoSaved: false,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Create(ctx, draft); err != nil {
		return nil, fmt.Errorf("create draft: %w", err)
	}
	draft.Annotate(now)
	s.notify(userID, draft.DraftKey, "manual_saved")
	return draft, nil
}

// DeleteDraft 删除用户的指定草稿，返回被删除的草稿
func (s *DraftService) DeleteDraft(ctx context.Context, userID, id string) (*entity.Draft, error) {
	draft, err := s.repo.FindByID(ctx, userID, id)
	if err != nil {
		return nil, fmt.Errorf("find draft: %w", err)
	}
	if draft == nil {
		return nil, ErrDraftNotFound
	}
	if err := s.repo.DeleteByID(ctx, userID, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrDraftNotFound
		}
		return nil, fmt.Errorf("delete draft: %w", err)
	}
	s.notify(userID, draft.DraftKey, "deleted")
	return draft, nil
}

// ClearAutoSave 按key清除自动保存草稿（表单最终提交后调用）
func (s *DraftService) ClearAutoSave(ctx context.Context, userID, draftKey string) error {
	if draftKey == "" {
		return ErrDraftKeyRequired
	}
	n, err := s.repo.DeleteByKey(ctx, userID, draftKey)
	if err != nil {
		return fmt.Errorf("clear draft: %w", err)
	}
	if n == 0 {
		return ErrDraftNotFound
	}
	s.notify(userID, draftKey, "cleared")
	return nil
}

// CleanupUserDrafts 删除用户超过daysOld天的自动保存草稿
func (s *DraftService) CleanupUserDrafts(ctx context.Context, userID string, daysOld int) (int64, error) {
	if daysOld <= 0 {
		daysOld = s.cfg.AutoSaveRetentionDays
	}
	if daysOld <= 0 {
		daysOld = 7
	}
	cutoff := s.now().AddDate(0, 0, -daysOld)
	n, err := s.repo.DeleteAutoSavedBefore(ctx, userID, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup drafts: %w", err)
	}
	if n > 0 {
		s.notify(userID, "", "cleanup")
	}
	return n, nil
}

func (s *DraftService) notify(userID, draftKey, action string) {
	if s.notifier != nil {
		s.notifier.PublishDraftUpdate(userID, draftKey, action)
	}
}
