package entity

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// 草稿类型
const (
	DraftTypeCase  = "case"
	DraftTypeUser  = "user"
	DraftTypeOther = "other"
)

// RecentDraftWindow 草稿在该时间内更新视为最近
const RecentDraftWindow = 60 * time.Minute

// JSONB JSONB类型
type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("failed to scan JSONB: %v", value)
	}
	return json.Unmarshal(bytes, j)
}

// Draft 表单草稿（自动保存或手动保存）
type Draft struct {
	ID          string    `json:"id" gorm:"primaryKey;size:32"`
	UserID      string    `json:"user_id" gorm:"size:32;not null;index:idx_drafts_user_type;index:idx_drafts_user_case"`
	DraftType   string    `json:"draft_type" gorm:"size:10;not null;default:case;index:idx_drafts_user_type"`
	Title       string    `json:"title" gorm:"size:200;not null"`
	FormData    JSONB     `json:"form_data" gorm:"type:jsonb;not null"`
	CaseID      *string   `json:"case_id" gorm:"size:50;index:idx_drafts_user_case"`
	DraftKey    string    `json:"draft_key" gorm:"size:100;not null;uniqueIndex"`
	IsAutoSaved bool      `json:"is_auto_saved" gorm:"not null;default:true"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" gorm:"index"`

	// 非数据库字段
	AgeInMinutes int  `json:"age_in_minutes" gorm:"-"`
	IsRecent     bool `json:"is_recent" gorm:"-"`
}

func (Draft) TableName() string {
	return "drafts"
}

// Annotate 填充草稿的年龄相关字段
func (d *Draft) Annotate(now time.Time) {
	age := now.Sub(d.UpdatedAt)
	if age < 0 {
		age = 0
	}
	d.AgeInMinutes = int(age / time.Minute)
	d.IsRecent = age <= RecentDraftWindow
}

// DefaultTitle 未提供标题时的默认标题
func DefaultTitle(draftType string, caseID *string) string {
	if caseID != nil && *caseID != "" {
		return "Draft for Case " + *caseID
	}
	switch draftType {
	case DraftTypeUser:
		return "New User Draft"
	case DraftTypeOther:
		return "New Other Draft"
	default:
		return "New Case Draft"
	}
}

// ValidDraftType 校验草稿类型
func ValidDraftType(t string) bool {
	switch t {
	case DraftTypeCase, DraftTypeUser, DraftTypeOther:
		return true
	}
	return false
}
