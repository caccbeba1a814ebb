package autosave

import (
	"context"
	"time"
)

// DraftStore 一种草稿来源
type DraftStore interface {
	Source() Source
	List(ctx context.Context) ([]Draft, error)
	Delete(ctx context.Context, d Draft) error
}

// AutoSaveRequest 自动保存请求
type AutoSaveRequest struct {
	CaseID    *string        `json:"case_id"`
	FormData  map[string]any `json:"form_data"`
	DraftType string         `json:"draft_type"`
	Title     string         `json:"title"`
}

// AutoSaveResponse 自动保存结果
type AutoSaveResponse struct {
	DraftKey  string    `json:"draft_key"`
	DraftID   string    `json:"draft_id"`
	Timestamp time.Time `json:"timestamp"`
	Created   bool      `json:"created"`
}

// ManualDraftRequest 手动保存请求
type ManualDraftRequest struct {
	Title     string         `json:"title"`
	FormData  map[string]any `json:"form_data"`
	DraftType string         `json:"draft_type"`
	CaseID    *string        `json:"case_id"`
}

// RemoteStore 远端草稿服务
// 删除不存在的草稿时返回包装了 ErrDraftNotFound 的错误
type RemoteStore interface {
	AutoSave(ctx context.Context, req AutoSaveRequest) (AutoSaveResponse, error)
	ListDrafts(ctx context.Context, draftType string, limit int) ([]Draft, error)
	GetDraft(ctx context.Context, draftKey, caseID, draftType string) (*Draft, error)
	DeleteDraft(ctx context.Context, id string) error
	SaveManualDraft(ctx context.Context, req ManualDraftRequest) (Draft, error)
	ClearAutoSave(ctx context.Context, draftKey string) error
	Cleanup(ctx context.Context, daysOld int) (int64, error)
}

// remoteSource 把远端某一类型的草稿适配为DraftStore
type remoteSource struct {
	store     RemoteStore
	draftType string
	limit     int
}

// NewRemoteSource 远端草稿来源，最多列出limit条draftType类型的草稿
func NewRemoteSource(store RemoteStore, draftType string, limit int) DraftStore {
	return &remoteSource{store: store, draftType: draftType, limit: limit}
}

func (r *remoteSource) Source() Source { return SourceRemote }

func (r *remoteSource) List(ctx context.Context) ([]Draft, error) {
	return r.store.ListDrafts(ctx, r.draftType, r.limit)
}

func (r *remoteSource) Delete(ctx context.Context, d Draft) error {
	return r.store.DeleteDraft(ctx, d.ID)
}
