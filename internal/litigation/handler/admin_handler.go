package handler

import (
	"github.com/cci-legal/litigation/internal/litigation/service"
	"github.com/gin-gonic/gin"
)

// AdminHandler 草稿管理（保留策略清理）
type AdminHandler struct {
	cleanup *service.CleanupService
}

func NewAdminHandler(cleanup *service.CleanupService) *AdminHandler {
	return &AdminHandler{cleanup: cleanup}
}

func cleanupOptions(c *gin.Context) (service.CleanupOptions, bool) {
	opts := service.CleanupOptions{
		Scope:   c.DefaultQuery("draft_type", service.CleanupAll),
		DaysOld: queryInt(c, "days_old", 0),
		DryRun:  queryBool(c, "dry_run", false),
		Force:   true,
	}
	switch opts.Scope {
	case service.CleanupAuto, service.CleanupManual, service.CleanupAll:
	default:
		BadRequest(c, "draft_type must be auto, manual or all")
		return opts, false
	}
	if opts.DaysOld < 0 {
		BadRequest(c, "days_old must be positive")
		return opts, false
	}
	return opts, true
}

// Cleanup POST /admin/drafts/cleanup?dry_run=&draft_type=&days_old=
func (h *AdminHandler) Cleanup(c *gin.Context) {
	opts, ok := cleanupOptions(c)
	if !ok {
		return
	}
	report, err := h.cleanup.Run(c.Request.Context(), opts)
	if err != nil {
		InternalError(c, err.Error())
		return
	}
	Success(c, gin.H{
		"scope":         report.Scope,
		"dry_run":       report.DryRun,
		"matched":       len(report.Drafts),
		"deleted":       report.Deleted,
		"auto_cutoff":   report.AutoCutoff,
		"manual_cutoff": report.ManualCutoff,
		"drafts":        report.Drafts,
	})
}

// ExportStale GET /admin/drafts/stale/export
func (h *AdminHandler) ExportStale(c *gin.Context) {
	opts, ok := cleanupOptions(c)
	if !ok {
		return
	}
	report, err := h.cleanup.Collect(c.Request.Context(), opts)
	if err != nil {
		InternalError(c, err.Error())
		return
	}

	f, filename, err := h.cleanup.ExportReport(report)
	if err != nil {
		InternalError(c, "export report: "+err.Error())
		return
	}
	defer f.Close()

	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", "attachment; filename=\""+filename+"\"")
	c.Header("Content-Transfer-Encoding", "binary")

	if err := f.Write(c.Writer); err != nil {
		InternalError(c, "write excel: "+err.Error())
	}
}
