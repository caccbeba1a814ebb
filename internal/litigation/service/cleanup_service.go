package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/cci-legal/litigation/internal/config"
	"github.com/cci-legal/litigation/internal/litigation/entity"
	"github.com/redis/go-redis/v9"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

// 清理范围
const (
	CleanupAuto   = "auto"
	CleanupManual = "manual"
	CleanupAll    = "all"
)

const (
	cleanupLockKey    = "drafts:cleanup:lock"
	cleanupLastRunKey = "drafts:cleanup:last_run"
	cleanupLockTTL    = 10 * time.Minute
)

// CleanupOptions 清理参数
type CleanupOptions struct {
	Scope   string // auto | manual | all
	DaysOld int    // 覆盖配置中的保留天数，0表示使用配置
	DryRun  bool
	Force   bool // 忽略 enable_auto_cleanup
}

// CleanupReport 清理结果
type CleanupReport struct {
	Scope        string         `json:"scope"`
	AutoCutoff   *time.Time     `json:"auto_cutoff,omitempty"`
	ManualCutoff *time.Time     `json:"manual_cutoff,omitempty"`
	Drafts       []entity.Draft `json:"drafts"`
	Deleted      int64          `json:"deleted"`
	DryRun       bool           `json:"dry_run"`
	Skipped      bool           `json:"skipped"`
}

// CleanupService 过期草稿清理服务
type CleanupService struct {
	repo    DraftRepo
	rdb     redis.Cmdable
	cfg     config.DraftConfig
	logger  *zap.Logger
	now     func() time.Time
	mu      sync.Mutex
	lastRun time.Time
}

// NewCleanupService 创建清理服务，rdb为nil时仅在本进程内去重
func NewCleanupService(repo DraftRepo, rdb redis.Cmdable, cfg config.DraftConfig, logger *zap.Logger) *CleanupService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CleanupService{
		repo:   repo,
		rdb:    rdb,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

func (s *CleanupService) retentionDays(override, configured, fallback int) int {
	if override > 0 {
		return override
	}
	if configured > 0 {
		return configured
	}
	return fallback
}

// Collect 查找按保留策略应当删除的草稿
func (s *CleanupService) Collect(ctx context.Context, opts CleanupOptions) (*CleanupReport, error) {
	scope := opts.Scope
	if scope == "" {
		scope = CleanupAll
	}
	if scope != CleanupAuto && scope != CleanupManual && scope != CleanupAll {
		return nil, fmt.Errorf("invalid cleanup scope: %s", scope)
	}

	now := s.now()
	report := &CleanupReport{Scope: scope, DryRun: opts.DryRun}

	if scope == CleanupAuto || scope == CleanupAll {
		cutoff := now.AddDate(0, 0, -s.retentionDays(opts.DaysOld, s.cfg.AutoSaveRetentionDays, 7))
		drafts, err := s.repo.FindExpired(ctx, true, cutoff)
		if err != nil {
			return nil, fmt.Errorf("find expired auto-saved drafts: %w", err)
		}
		report.AutoCutoff = &cutoff
		report.Drafts = append(report.Drafts, drafts...)
	}
	if scope == CleanupManual || scope == CleanupAll {
		cutoff := now.AddDate(0, 0, -s.retentionDays(opts.DaysOld, s.cfg.ManualDraftRetentionDays, 30))
		drafts, err := s.repo.FindExpired(ctx, false, cutoff)
		if err != nil {
			return nil, fmt.Errorf("find expired manual drafts: %w", err)
		}
		report.ManualCutoff = &cutoff
		report.Drafts = append(report.Drafts, drafts...)
	}

	for i := range report.Drafts {
		report.Drafts[i].Annotate(now)
	}
	return report, nil
}

// Run 执行一次清理
func (s *CleanupService) Run(ctx context.Context, opts CleanupOptions) (*CleanupReport, error) {
	if !s.cfg.EnableAutoCleanup && !opts.Force {
		s.logger.Warn("Auto cleanup is disabled, use force to override")
		return &CleanupReport{Scope: opts.Scope, DryRun: opts.DryRun, Skipped: true}, nil
	}

	report, err := s.Collect(ctx, opts)
	if err != nil {
		return nil, err
	}
	if opts.DryRun || len(report.Drafts) == 0 {
		return report, nil
	}

	ids := make([]string, 0, len(report.Drafts))
	for _, d := range report.Drafts {
		ids = append(ids, d.ID)
	}
	deleted, err := s.repo.DeleteByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("delete expired drafts: %w", err)
	}
	report.Deleted = deleted

	s.logger.Info("Draft cleanup completed",
		zap.String("scope", report.Scope),
		zap.Int("matched", len(report.Drafts)),
		zap.Int64("deleted", deleted))
	return report, nil
}

// RunScheduled 到期时执行清理；多实例部署下通过redis锁保证只有一个实例执行
func (s *CleanupService) RunScheduled(ctx context.Context) (*CleanupReport, error) {
	now := s.now()
	period := s.cfg.CleanupPeriod()

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.lastRun.IsZero() && now.Sub(s.lastRun) < period {
		return nil, nil
	}

	if s.rdb != nil {
		if last, err := s.rdb.Get(ctx, cleanupLastRunKey).Result(); err == nil {
			if ts, perr := strconv.ParseInt(last, 10, 64); perr == nil && now.Sub(time.Unix(ts, 0)) < period {
				s.lastRun = time.Unix(ts, 0)
				return nil, nil
			}
		} else if !errors.Is(err, redis.Nil) {
			s.logger.Warn("Read cleanup marker failed", zap.Error(err))
		}

		ok, err := s.rdb.SetNX(ctx, cleanupLockKey, strconv.FormatInt(now.Unix(), 10), cleanupLockTTL).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire cleanup lock: %w", err)
		}
		if !ok {
			s.logger.Debug("Draft cleanup running on another instance")
			return nil, nil
		}
		defer s.rdb.Del(context.WithoutCancel(ctx), cleanupLockKey)
	}

	report, err := s.Run(ctx, CleanupOptions{Scope: CleanupAll})
	if err != nil {
		return nil, err
	}

	s.lastRun = now
	if s.rdb != nil {
		if err := s.rdb.Set(ctx, cleanupLastRunKey, strconv.FormatInt(now.Unix(), 10), 0).Err(); err != nil {
			s.logger.Warn("Write cleanup marker failed", zap.Error(err))
		}
	}
	return report, nil
}

// Start 启动后台清理循环，ctx取消时退出
func (s *CleanupService) Start(ctx context.Context, checkEvery time.Duration) {
	if checkEvery <= 0 {
		checkEvery = time.Hour
	}
	go func() {
		if s.cfg.CleanupOnStartup {
			s.runScheduledLogged(ctx)
		} else {
			s.mu.Lock()
			s.lastRun = s.now()
			s.mu.Unlock()
		}

		ticker := time.NewTicker(checkEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.runScheduledLogged(ctx)
			}
		}
	}()
}

func (s *CleanupService) runScheduledLogged(ctx context.Context) {
	if _, err := s.RunScheduled(ctx); err != nil {
		s.logger.Error("Scheduled draft cleanup failed", zap.Error(err))
	}
}

var staleReportHeaders = []string{
	"Draft Key", "Title", "User", "Draft Type", "Case ID", "Auto Saved", "Last Updated", "Age (days)",
}

// ExportReport 将清理报告导出为xlsx
func (s *CleanupService) ExportReport(report *CleanupReport) (*excelize.File, string, error) {
	f := excelize.NewFile()
	sheet := "Stale Drafts"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, "", err
	}

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 11},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#D9E1F2"}},
		Border: []excelize.Border{
			{Type: "bottom", Color: "000000", Style: 1},
		},
	})

	for i, h := range staleReportHeaders {
		col, _ := excelize.ColumnNumberToName(i + 1)
		cell := col + "1"
		f.SetCellValue(sheet, cell, h)
		f.SetCellStyle(sheet, cell, cell, headerStyle)
	}

	now := s.now()
	for idx, d := range report.Drafts {
		row := idx + 2
		caseID := ""
		if d.CaseID != nil {
			caseID = *d.CaseID
		}
		autoSaved := "No"
		if d.IsAutoSaved {
			autoSaved = "Yes"
		}
		f.SetCellValue(sheet, fmt.Sprintf("A%d", row), d.DraftKey)
		f.SetCellValue(sheet, fmt.Sprintf("B%d", row), d.Title)
		f.SetCellValue(sheet, fmt.Sprintf("C%d", row), d.UserID)
		f.SetCellValue(sheet, fmt.Sprintf("D%d", row), d.DraftType)
		f.SetCellValue(sheet, fmt.Sprintf("E%d", row), caseID)
		f.SetCellValue(sheet, fmt.Sprintf("F%d", row), autoSaved)
		f.SetCellValue(sheet, fmt.Sprintf("G%d", row), d.UpdatedAt.Format("02-01-2006 15:04"))
		f.SetCellValue(sheet, fmt.Sprintf("H%d", row), int(now.Sub(d.UpdatedAt).Hours()/24))
	}

	summaryRow := len(report.Drafts) + 3
	boldStyle, _ := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	f.SetCellValue(sheet, fmt.Sprintf("A%d", summaryRow), "Total")
	f.SetCellValue(sheet, fmt.Sprintf("B%d", summaryRow), len(report.Drafts))
	f.SetCellStyle(sheet, fmt.Sprintf("A%d", summaryRow), fmt.Sprintf("B%d", summaryRow), boldStyle)
	f.SetColWidth(sheet, "A", "B", 32)

	filename := fmt.Sprintf("stale_drafts_%s.xlsx", now.Format("20060102"))
	return f, filename, nil
}
