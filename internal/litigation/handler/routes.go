package handler

import (
	"github.com/cci-legal/litigation/internal/middleware"
	"github.com/gin-gonic/gin"
)

// maxDraftBody 单个草稿请求体上限
const maxDraftBody = 2 << 20

// Register 在已鉴权的 /api/v1 分组下注册草稿相关路由
func (h *Handlers) Register(api *gin.RouterGroup) {
	drafts := api.Group("/drafts", middleware.BodyLimit(maxDraftBody))
	{
		drafts.POST("/auto_save", h.Draft.AutoSave)
		drafts.GET("/get_draft", h.Draft.GetDraft)
		drafts.GET("/list_user_drafts", h.Draft.ListUserDrafts)
		drafts.POST("/save_manual_draft", h.Draft.SaveManualDraft)
		drafts.DELETE("/:id/delete_draft", h.Draft.DeleteDraft)
		drafts.DELETE("/clear_auto_save", h.Draft.ClearAutoSave)
		drafts.DELETE("/cleanup_drafts", h.Draft.CleanupDrafts)
	}

	// SSE (token 可通过 query 传递)
	api.GET("/sse/events", h.SSE.Stream)

	admin := api.Group("/admin", middleware.RequireRole("admin"))
	{
		admin.POST("/drafts/cleanup", h.Admin.Cleanup)
		admin.GET("/drafts/stale/export", h.Admin.ExportStale)
	}
}
