package autosave

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cci-legal/litigation/internal/shared/apiclient"
)

// remoteDraft 后端返回的草稿结构
type remoteDraft struct {
	ID           string         `json:"id"`
	DraftKey     string         `json:"draft_key"`
	Title        string         `json:"title"`
	FormData     map[string]any `json:"form_data"`
	CaseID       *string        `json:"case_id"`
	UpdatedAt    time.Time      `json:"updated_at"`
	IsAutoSaved  bool           `json:"is_auto_saved"`
	AgeInMinutes int            `json:"age_in_minutes"`
	IsRecent     bool           `json:"is_recent"`
}

func (r remoteDraft) toDraft() Draft {
	return Draft{
		Source:       SourceRemote,
		ID:           r.ID,
		DraftKey:     r.DraftKey,
		Title:        r.Title,
		Timestamp:    r.UpdatedAt,
		FormData:     r.FormData,
		CaseID:       r.CaseID,
		IsAutoSaved:  r.IsAutoSaved,
		AgeInMinutes: r.AgeInMinutes,
		IsRecent:     r.IsRecent,
	}
}

// RemoteDrafts 基于REST API的远端草稿存储
type RemoteDrafts struct {
	client *apiclient.Client
}

// NewRemoteDrafts 创建远端草稿存储
func NewRemoteDrafts(client *apiclient.Client) *RemoteDrafts {
	return &RemoteDrafts{client: client}
}

var _ RemoteStore = (*RemoteDrafts)(nil)

func notFound(err error, what string) error {
	if apiclient.IsNotFound(err) {
		return fmt.Errorf("%w: %s (%v)", ErrDraftNotFound, what, err)
	}
	return err
}

func (r *RemoteDrafts) AutoSave(ctx context.Context, req AutoSaveRequest) (AutoSaveResponse, error) {
	var resp AutoSaveResponse
	if err := r.client.Do(ctx, http.MethodPost, "/drafts/auto_save", nil, req, &resp); err != nil {
		return AutoSaveResponse{}, err
	}
	return resp, nil
}

func (r *RemoteDrafts) ListDrafts(ctx context.Context, draftType string, limit int) ([]Draft, error) {
	q := url.Values{}
	q.Set("draft_type", draftType)
	q.Set("include_auto_saved", "true")
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var resp struct {
		Drafts []remoteDraft `json:"drafts"`
	}
	if err := r.client.Do(ctx, http.MethodGet, "/drafts/list_user_drafts", q, nil, &resp); err != nil {
		return nil, err
	}
	drafts := make([]Draft, 0, len(resp.Drafts))
	for _, d := range resp.Drafts {
		drafts = append(drafts, d.toDraft())
	}
	return drafts, nil
}

// GetDraft 按key或案件获取草稿，不存在时返回nil
func (r *RemoteDrafts) GetDraft(ctx context.Context, draftKey, caseID, draftType string) (*Draft, error) {
	q := url.Values{}
	switch {
	case draftKey != "":
		q.Set("draft_key", draftKey)
	case caseID != "":
		q.Set("case_id", caseID)
		q.Set("draft_type", draftType)
	default:
		q.Set("draft_type", draftType)
	}
	var resp struct {
		Draft *remoteDraft `json:"draft"`
	}
	if err := r.client.Do(ctx, http.MethodGet, "/drafts/get_draft", q, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Draft == nil {
		return nil, nil
	}
	d := resp.Draft.toDraft()
	return &d, nil
}

func (r *RemoteDrafts) DeleteDraft(ctx context.Context, id string) error {
	err := r.client.Do(ctx, http.MethodDelete, "/drafts/"+url.PathEscape(id)+"/delete_draft", nil, nil, nil)
	return notFound(err, id)
}

func (r *RemoteDrafts) SaveManualDraft(ctx context.Context, req ManualDraftRequest) (Draft, error) {
	var resp struct {
		Draft remoteDraft `json:"draft"`
	}
	if err := r.client.Do(ctx, http.MethodPost, "/drafts/save_manual_draft", nil, req, &resp); err != nil {
		return Draft{}, err
	}
	return resp.Draft.toDraft(), nil
}

func (r *RemoteDrafts) ClearAutoSave(ctx context.Context, draftKey string) error {
	q := url.Values{"draft_key": {draftKey}}
	err := r.client.Do(ctx, http.MethodDelete, "/drafts/clear_auto_save", q, nil, nil)
	return notFound(err, draftKey)
}

func (r *RemoteDrafts) Cleanup(ctx context.Context, daysOld int) (int64, error) {
	q := url.Values{}
	if daysOld > 0 {
		q.Set("days_old", strconv.Itoa(daysOld))
	}
	var resp struct {
		Deleted int64 `json:"deleted"`
	}
	if err := r.client.Do(ctx, http.MethodDelete, "/drafts/cleanup_drafts", q, nil, &resp); err != nil {
		return 0, err
	}
	return resp.Deleted, nil
}
