package autosave

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cci-legal/litigation/internal/shared/pubsub"
	"go.uber.org/zap"
)

const (
	DefaultInterval    = 30 * time.Second
	DefaultRetryDelay  = 5 * time.Second
	DefaultRemoteLimit = 10
	DefaultDraftType   = "case"
)

// SnapshotFunc 返回表单当前的字段值
type SnapshotFunc func() map[string]any

// Options 会话配置
type Options struct {
	DraftType   string
	CaseID      *string
	Title       string
	Interval    time.Duration
	RetryDelay  time.Duration
	RemoteLimit int // 恢复时最多列出的远端草稿数

	Remote RemoteStore
	Backup *LocalStore // 可为nil，此时不做本地备份
	Logger *zap.Logger
	Now    func() time.Time
}

func (o *Options) setDefaults() {
	if o.DraftType == "" {
		o.DraftType = DefaultDraftType
	}
	if o.Interval <= 0 {
		o.Interval = DefaultInterval
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = DefaultRetryDelay
	}
	if o.RemoteLimit <= 0 {
		o.RemoteLimit = DefaultRemoteLimit
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// Session 单个表单的自动保存会话
//
// 状态: clean -> dirty -> saving -> saved|error。保存失败时保持dirty并安排一次重试；
// 保存过程中的新编辑会在下一轮被保存。同一会话同时最多只有一个远端写入。
type Session struct {
	formID   string
	snapshot SnapshotFunc
	logger   *zap.Logger
	events   *pubsub.Broker[Event]

	mu         sync.Mutex
	opts       Options
	dirty      bool
	editSeq    uint64 // 每次MarkDirty递增
	saving     bool
	lastSave   time.Time
	currentKey string
	started    bool
	active     bool
	closed     bool
	epoch      uint64 // Start/Close时递增，用于丢弃过期的保存结果
	loopCtx    context.Context
	cancelLoop context.CancelFunc
	retryTimer *time.Timer
}

// New 创建会话；调用Start后才开始自动保存
func New(formID string, snapshot SnapshotFunc, opts Options) (*Session, error) {
	if strings.TrimSpace(formID) == "" {
		return nil, errors.New("form id is required")
	}
	if snapshot == nil {
		return nil, errors.New("snapshot function is required")
	}
	if opts.Remote == nil {
		return nil, errors.New("remote store is required")
	}
	opts.setDefaults()
	return &Session{
		formID:   formID,
		snapshot: snapshot,
		logger:   opts.Logger.With(zap.String("form_id", formID)),
		events:   pubsub.NewBroker[Event](),
		opts:     opts,
	}, nil
}

// FormID 会话绑定的表单
func (s *Session) FormID() string { return s.formID }

// Subscribe 订阅会话事件，ctx取消或会话关闭时通道关闭
func (s *Session) Subscribe(ctx context.Context) <-chan pubsub.Event[Event] {
	return s.events.Subscribe(ctx)
}

// Start 启动会话：停止之前的定时器，扫描可恢复草稿，然后开始周期保存。
// 重复调用会替换而不是叠加定时器。
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.stopLocked()
	s.epoch++
	s.loopCtx, s.cancelLoop = context.WithCancel(ctx)
	s.started = true
	s.active = true
	loopCtx, interval := s.loopCtx, s.opts.Interval
	s.mu.Unlock()

	s.recover(ctx)

	go s.run(loopCtx, interval)
	s.publishStatus(PhaseStarted)
	s.logger.Info("Autosave started", zap.Duration("interval", interval))
	return nil
}

// stopLocked 停止定时保存与待执行的重试
func (s *Session) stopLocked() {
	if s.cancelLoop != nil {
		s.cancelLoop()
		s.cancelLoop = nil
	}
	if s.retryTimer != nil {
		s.retryTimer.Stop()
		s.retryTimer = nil
	}
	s.active = false
}

func (s *Session) run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.performAutoSave(ctx, false)
		}
	}
}

// recover 启动时的草稿恢复扫描，只通知不加载
func (s *Session) recover(ctx context.Context) {
	drafts, err := s.AvailableDrafts(ctx)
	if err != nil {
		s.logger.Warn("Draft recovery scan incomplete", zap.Error(err))
	}
	if len(drafts) == 0 {
		return
	}
	s.publish(Event{
		Type:     EventDraftsRecovered,
		Status:   s.Status(),
		Recovery: &Recovery{Drafts: drafts, MostRecent: drafts[0]},
	})
}

// MarkDirty 表单有未保存的修改
func (s *Session) MarkDirty() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.dirty = true
	s.editSeq++
	s.mu.Unlock()
	s.publishStatus(PhaseDirty)
}

// MarkClean 清除脏标记并释放绑定的远端草稿
func (s *Session) MarkClean() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.dirty = false
	s.currentKey = ""
	s.mu.Unlock()
	s.publishStatus(PhaseClean)
}

// ForceSave 立即保存；不脏、正在保存或未启动时不做任何I/O并返回Saved=false
func (s *Session) ForceSave(ctx context.Context) (SaveResult, error) {
	return s.performAutoSave(ctx, false)
}

func (s *Session) performAutoSave(ctx context.Context, isRetry bool) (SaveResult, error) {
	if ctx.Err() != nil {
		return SaveResult{}, nil
	}

	s.mu.Lock()
	if s.closed || !s.started || !s.dirty || s.saving {
		s.mu.Unlock()
		return SaveResult{}, nil
	}
	s.saving = true
	epoch, seq := s.epoch, s.editSeq
	req := AutoSaveRequest{
		CaseID:    s.opts.CaseID,
		DraftType: s.opts.DraftType,
		Title:     s.opts.Title,
	}
	s.mu.Unlock()

	s.publishStatus(PhaseSaving)

	data := s.snapshot()
	s.writeBackup(data, req.CaseID)

	req.FormData = data
	if req.Title == "" {
		req.Title = s.defaultTitle(req.CaseID)
	}
	resp, err := s.opts.Remote.AutoSave(ctx, req)

	s.mu.Lock()
	s.saving = false
	if s.closed || s.epoch != epoch {
		closed := s.closed
		s.mu.Unlock()
		s.logger.Debug("Discarding stale autosave result", zap.Bool("closed", closed))
		if closed {
			return SaveResult{}, ErrClosed
		}
		return SaveResult{}, nil
	}

	if err != nil {
		retrying := false
		if !isRetry {
			s.scheduleRetryLocked(epoch)
			retrying = true
		}
		s.mu.Unlock()

		s.logger.Warn("Autosave failed", zap.Bool("retry", isRetry), zap.Bool("retrying", retrying), zap.Error(err))
		s.publishStatus(PhaseError)
		s.publish(Event{
			Type:     EventSaveFailed,
			Status:   s.Status(),
			Err:      err,
			FormData: data,
			Retrying: retrying,
		})
		return SaveResult{}, fmt.Errorf("autosave %s: %w", s.formID, err)
	}

	s.currentKey = resp.DraftKey
	s.lastSave = resp.Timestamp
	if s.lastSave.IsZero() {
		s.lastSave = s.opts.Now()
	}
	// 保存期间有新的编辑则保持dirty
	s.dirty = s.editSeq != seq
	if s.retryTimer != nil {
		s.retryTimer.Stop()
		s.retryTimer = nil
	}
	result := SaveResult{
		Saved:     true,
		DraftKey:  s.currentKey,
		Timestamp: s.lastSave,
		Data:      data,
	}
	s.mu.Unlock()

	s.logger.Debug("Autosave completed", zap.String("draft_key", result.DraftKey))
	s.publishStatus(PhaseSaved)
	s.publish(Event{Type: EventSaved, Status: s.Status(), Result: &result})
	return result, nil
}

// scheduleRetryLocked 安排一次延迟重试；重试本身失败后不再安排
func (s *Session) scheduleRetryLocked(epoch uint64) {
	if s.retryTimer != nil {
		s.retryTimer.Stop()
	}
	ctx := s.loopCtx
	s.retryTimer = time.AfterFunc(s.opts.RetryDelay, func() {
		s.mu.Lock()
		stale := s.closed || s.epoch != epoch
		if !stale {
			s.retryTimer = nil
		}
		s.mu.Unlock()
		if stale || ctx == nil {
			return
		}
		s.performAutoSave(ctx, true)
	})
}

func (s *Session) defaultTitle(caseID *string) string {
	if caseID != nil && *caseID != "" {
		return "Draft for Case " + *caseID
	}
	return "New Case Draft - " + s.opts.Now().Format("02/01/2006 15:04:05")
}

// writeBackup 写本地备份，失败只记录日志
func (s *Session) writeBackup(data map[string]any, caseID *string) bool {
	if s.opts.Backup == nil {
		return false
	}
	err := s.opts.Backup.Put(Backup{
		FormID:    s.formID,
		Data:      data,
		Timestamp: s.opts.Now(),
		CaseID:    caseID,
		Version:   backupVersion,
	})
	if err != nil {
		s.logger.Error("Local backup failed", zap.Error(err))
		return false
	}
	return true
}

func (s *Session) stores() []DraftStore {
	s.mu.Lock()
	draftType, limit := s.opts.DraftType, s.opts.RemoteLimit
	s.mu.Unlock()

	stores := []DraftStore{NewRemoteSource(s.opts.Remote, draftType, limit)}
	if s.opts.Backup != nil {
		stores = append(stores, NewLocalSource(s.opts.Backup, s.formID, s.opts.Now))
	}
	return stores
}

func (s *Session) checkOpen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

// AvailableDrafts 合并远端与本地备份中可恢复的草稿，最新的在前。
// 某个来源失败时仍返回其余来源的草稿。
func (s *Session) AvailableDrafts(ctx context.Context) ([]Draft, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	return Reconcile(ctx, s.logger, s.stores()...)
}

// LoadDraft 返回草稿的表单数据，调用方用它整体替换表单
func (s *Session) LoadDraft(d Draft) map[string]any {
	return d.FormData
}

// DeleteDraft 删除草稿；远端草稿不存在时返回包装的ErrDraftNotFound
func (s *Session) DeleteDraft(ctx context.Context, d Draft) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	for _, store := range s.stores() {
		if store.Source() != d.Source {
			continue
		}
		if err := store.Delete(ctx, d); err != nil {
			return fmt.Errorf("delete %s draft: %w", d.Source, err)
		}
		return nil
	}
	return fmt.Errorf("no store for draft source %q", d.Source)
}

// SaveManualDraft 用户手动保存，不影响dirty与当前绑定的草稿。formData为nil时使用当前快照
func (s *Session) SaveManualDraft(ctx context.Context, title string, formData map[string]any) (Draft, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return Draft{}, ErrEmptyTitle
	}
	if err := s.checkOpen(); err != nil {
		return Draft{}, err
	}
	if formData == nil {
		formData = s.snapshot()
	}

	s.mu.Lock()
	req := ManualDraftRequest{
		Title:     title,
		FormData:  formData,
		DraftType: s.opts.DraftType,
		CaseID:    s.opts.CaseID,
	}
	s.mu.Unlock()

	d, err := s.opts.Remote.SaveManualDraft(ctx, req)
	if err != nil {
		return Draft{}, fmt.Errorf("save manual draft: %w", err)
	}
	d.Source = SourceRemote
	return d, nil
}

// ClearCurrentDraft 删除当前绑定的远端自动保存草稿（表单最终提交后调用）。
// 远端已不存在时视为已清除。
func (s *Session) ClearCurrentDraft(ctx context.Context) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	s.mu.Lock()
	key := s.currentKey
	s.mu.Unlock()
	if key == "" {
		return nil
	}

	err := s.opts.Remote.ClearAutoSave(ctx, key)
	switch {
	case errors.Is(err, ErrDraftNotFound):
		s.logger.Info("Autosave draft already gone", zap.String("draft_key", key))
	case err != nil:
		return fmt.Errorf("clear draft %s: %w", key, err)
	}

	s.mu.Lock()
	if s.currentKey == key {
		s.currentKey = ""
	}
	s.dirty = false
	s.mu.Unlock()
	s.publishStatus(PhaseClean)
	return nil
}

// CleanupOldDrafts 删除当前用户超过daysOld天的自动保存草稿
func (s *Session) CleanupOldDrafts(ctx context.Context, daysOld int) (int64, error) {
	if err := s.checkOpen(); err != nil {
		return 0, err
	}
	n, err := s.opts.Remote.Cleanup(ctx, daysOld)
	if err != nil {
		return 0, fmt.Errorf("cleanup drafts: %w", err)
	}
	return n, nil
}

// UpdateOptions 更新绑定的案件与标题（如新建表单首次提交后）
func (s *Session) UpdateOptions(caseID *string, title string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opts.CaseID = caseID
	if title != "" {
		s.opts.Title = title
	}
}

// Status 当前状态
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusLocked()
}

func (s *Session) statusLocked() Status {
	return Status{
		FormID:          s.formID,
		IsDirty:         s.dirty,
		IsAutoSaving:    s.saving,
		LastSaveTime:    s.lastSave,
		CurrentDraftKey: s.currentKey,
		IsActive:        s.active,
	}
}

// Flush 有未保存修改时同步写一次本地备份，返回是否有未保存修改。
// 宿主在退出前调用，并据返回值提示用户。
func (s *Session) Flush() bool {
	s.mu.Lock()
	dirty, caseID := s.dirty, s.opts.CaseID
	s.mu.Unlock()
	if !dirty {
		return false
	}
	s.writeBackup(s.snapshot(), caseID)
	return true
}

// Close 停止定时器与重试并关闭所有订阅，之后不再发布事件。
// 进行中的保存不会被中断，但其结果会被丢弃。
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.stopLocked()
	s.epoch++
	s.closed = true
	status := s.statusLocked()
	s.mu.Unlock()

	s.publish(Event{Type: EventStatus, Phase: PhaseStopped, Status: status})
	s.events.Close()
	s.logger.Info("Autosave stopped", zap.Bool("dirty", status.IsDirty))
}

func (s *Session) publishStatus(phase string) {
	s.publish(Event{Type: EventStatus, Phase: phase, Status: s.Status()})
}

func (s *Session) publish(ev Event) {
	if s.events.Publish(pubsub.UpdatedEvent, ev) {
		s.logger.Debug("Slow subscriber dropped event", zap.String("type", string(ev.Type)))
	}
}
