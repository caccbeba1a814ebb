// Package autosave 表单草稿自动保存与恢复
//
// 每个表单实例对应一个 Session：周期性地把脏数据写入本地备份与远端草稿，
// 并在启动时合并两端可恢复的草稿供调用方选择。
package autosave

import (
	"errors"
	"time"
)

// Source 草稿来源
type Source string

const (
	SourceRemote      Source = "remote"
	SourceLocalBackup Source = "local_backup"
)

// RecentWindow 草稿在该时间内更新视为最近
const RecentWindow = 60 * time.Minute

var (
	ErrEmptyTitle    = errors.New("draft title is required")
	ErrDraftNotFound = errors.New("draft not found")
	ErrNotStarted    = errors.New("autosave session not started")
	ErrClosed        = errors.New("autosave session closed")
)

// Draft 可恢复的草稿
type Draft struct {
	Source       Source         `json:"source"`
	ID           string         `json:"id,omitempty"`
	DraftKey     string         `json:"draft_key,omitempty"`
	Title        string         `json:"title"`
	Timestamp    time.Time      `json:"timestamp"`
	FormData     map[string]any `json:"form_data"`
	CaseID       *string        `json:"case_id,omitempty"`
	IsAutoSaved  bool           `json:"is_auto_saved"`
	AgeInMinutes int            `json:"age_in_minutes"`
	IsRecent     bool           `json:"is_recent"`
}

func (d *Draft) annotate(now time.Time) {
	age := now.Sub(d.Timestamp)
	if age < 0 {
		age = 0
	}
	d.AgeInMinutes = int(age / time.Minute)
	d.IsRecent = age <= RecentWindow
}

// Status 会话状态快照
type Status struct {
	FormID          string    `json:"form_id"`
	IsDirty         bool      `json:"is_dirty"`
	IsAutoSaving    bool      `json:"is_auto_saving"`
	LastSaveTime    time.Time `json:"last_save_time"`
	CurrentDraftKey string    `json:"current_draft_key"`
	IsActive        bool      `json:"is_active"`
}

// EventType 会话事件类型
type EventType string

const (
	EventStatus          EventType = "status"
	EventSaved           EventType = "saved"
	EventSaveFailed      EventType = "save_failed"
	EventDraftsRecovered EventType = "drafts_recovered"
)

// 状态事件的阶段
const (
	PhaseStarted = "started"
	PhaseStopped = "stopped"
	PhaseDirty   = "dirty"
	PhaseClean   = "clean"
	PhaseSaving  = "saving"
	PhaseSaved   = "saved"
	PhaseError   = "error"
)

// SaveResult 一次自动保存的结果；Saved为false表示未执行（不脏、正在保存或未启动）
type SaveResult struct {
	Saved     bool
	DraftKey  string
	Timestamp time.Time
	Data      map[string]any
}

// Recovery 启动时发现的可恢复草稿
type Recovery struct {
	Drafts     []Draft
	MostRecent Draft
}

// Event 会话事件，按Type区分携带的字段
type Event struct {
	Type   EventType
	Phase  string
	Status Status

	Result   *SaveResult    // EventSaved
	Err      error          // EventSaveFailed
	FormData map[string]any // EventSaveFailed 时的快照
	Retrying bool           // EventSaveFailed 后是否已安排重试

	Recovery *Recovery // EventDraftsRecovered
}
