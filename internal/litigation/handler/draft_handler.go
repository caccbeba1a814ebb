package handler

import (
	"errors"

	"github.com/cci-legal/litigation/internal/litigation/service"
	"github.com/gin-gonic/gin"
)

// DraftHandler 草稿处理器
type DraftHandler struct {
	svc *service.DraftService
}

// NewDraftHandler 创建草稿处理器
func NewDraftHandler(svc *service.DraftService) *DraftHandler {
	return &DraftHandler{svc: svc}
}

func (h *DraftHandler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrDraftNotFound):
		NotFound(c, "Draft not found")
	case errors.Is(err, service.ErrInvalidDraftType),
		errors.Is(err, service.ErrDraftKeyRequired),
		errors.Is(err, service.ErrFormDataRequired):
		BadRequest(c, err.Error())
	default:
		InternalError(c, err.Error())
	}
}

// AutoSave POST /drafts/auto_save
func (h *DraftHandler) AutoSave(c *gin.Context) {
	var req service.AutoSaveInput
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "Invalid request: "+err.Error())
		return
	}

	result, err := h.svc.AutoSave(c.Request.Context(), GetUserID(c), &req)
	if err != nil {
		h.fail(c, err)
		return
	}
	Success(c, result)
}

// GetDraft GET /drafts/get_draft?draft_key=&case_id=&draft_type=
func (h *DraftHandler) GetDraft(c *gin.Context) {
	draft, err := h.svc.GetDraft(c.Request.Context(), GetUserID(c),
		c.Query("draft_key"), c.Query("case_id"), c.Query("draft_type"))
	if err != nil {
		h.fail(c, err)
		return
	}
	Success(c, gin.H{"draft": draft})
}

// ListUserDrafts GET /drafts/list_user_drafts?draft_type=&include_auto_saved=&limit=
func (h *DraftHandler) ListUserDrafts(c *gin.Context) {
	drafts, err := h.svc.ListUserDrafts(c.Request.Context(), GetUserID(c),
		c.Query("draft_type"),
		queryBool(c, "include_auto_saved", true),
		queryInt(c, "limit", 20))
	if err != nil {
		h.fail(c, err)
		return
	}
	Success(c, gin.H{"drafts": drafts, "count": len(drafts)})
}

// SaveManualDraft POST /drafts/save_manual_draft
func (h *DraftHandler) SaveManualDraft(c *gin.Context) {
	var req service.ManualDraftInput
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "Invalid request: "+err.Error())
		return
	}

	draft, err := h.svc.SaveManualDraft(c.Request.Context(), GetUserID(c), &req)
	if err != nil {
		h.fail(c, err)
		return
	}
	Created(c, gin.H{"draft": draft})
}

// DeleteDraft DELETE /drafts/:id/delete_draft
func (h *DraftHandler) DeleteDraft(c *gin.Context) {
	draft, err := h.svc.DeleteDraft(c.Request.Context(), GetUserID(c), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	Success(c, gin.H{"deleted": true, "id": draft.ID, "draft_key": draft.DraftKey})
}

// ClearAutoSave DELETE /drafts/clear_auto_save?draft_key=
func (h *DraftHandler) ClearAutoSave(c *gin.Context) {
	draftKey := c.Query("draft_key")
	if err := h.svc.ClearAutoSave(c.Request.Context(), GetUserID(c), draftKey); err != nil {
		h.fail(c, err)
		return
	}
	Success(c, gin.H{"cleared": true, "draft_key": draftKey})
}

// CleanupDrafts DELETE /drafts/cleanup_drafts?days_old=7
func (h *DraftHandler) CleanupDrafts(c *gin.Context) {
	daysOld := queryInt(c, "days_old", 0)
	if daysOld < 0 {
		BadRequest(c, "days_old must be positive")
		return
	}
	n, err := h.svc.CleanupUserDrafts(c.Request.Context(), GetUserID(c), daysOld)
	if err != nil {
		h.fail(c, err)
		return
	}
	Success(c, gin.H{"deleted": n})
}
