package autosave

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// BackupKeyPrefix 本地备份key前缀
const BackupKeyPrefix = "cci_backup_draft_"

const (
	backupVersion     = 1
	defaultMaxBackups = 5
)

// Backup 本地备份内容
type Backup struct {
	FormID    string         `json:"formId"`
	Data      map[string]any `json:"data"`
	Timestamp time.Time      `json:"timestamp"`
	CaseID    *string        `json:"caseId"`
	Version   int            `json:"version"`
}

// LocalStore 基于sqlite的本地键值备份，每个表单一条
type LocalStore struct {
	mu         sync.Mutex
	db         *sql.DB
	maxBackups int
}

// OpenLocalStore 打开(或创建)本地备份库，maxBackups为所有表单合计保留的最大备份数
func OpenLocalStore(path string, maxBackups int) (*LocalStore, error) {
	if maxBackups <= 0 {
		maxBackups = defaultMaxBackups
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open backup store: %w", err)
	}
	db.SetMaxOpenConns(1)

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS kv (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init backup store: %w", err)
		}
	}
	return &LocalStore{db: db, maxBackups: maxBackups}, nil
}

// Close 关闭备份库
func (s *LocalStore) Close() error {
	return s.db.Close()
}

func backupKey(formID string) string {
	return BackupKeyPrefix + formID
}

// Put 覆盖写入表单的备份，并清理超出上限的旧备份
func (s *LocalStore) Put(b Backup) error {
	if b.Version == 0 {
		b.Version = backupVersion
	}
	value, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("encode backup: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.Exec(
		`INSERT INTO kv(key, value, updated_at) VALUES(?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		backupKey(b.FormID), string(value), b.Timestamp.UnixMilli())
	if err != nil {
		return fmt.Errorf("write backup: %w", err)
	}
	if _, err := s.pruneLocked(s.maxBackups); err != nil {
		return fmt.Errorf("prune backups: %w", err)
	}
	return nil
}

// Get 读取表单备份，不存在时返回nil
func (s *LocalStore) Get(formID string) (*Backup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var value string
	err := s.db.QueryRow(`SELECT value FROM kv WHERE key = ?`, backupKey(formID)).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read backup: %w", err)
	}
	var b Backup
	if err := json.Unmarshal([]byte(value), &b); err != nil {
		return nil, fmt.Errorf("decode backup %s: %w", formID, err)
	}
	return &b, nil
}

// Remove 删除表单备份
func (s *LocalStore) Remove(formID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.Exec(`DELETE FROM kv WHERE key = ?`, backupKey(formID)); err != nil {
		return fmt.Errorf("remove backup: %w", err)
	}
	return nil
}

// List 列出全部备份（最新的在前），无法解析的条目被跳过
func (s *LocalStore) List() ([]Backup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.entriesLocked()
	if err != nil {
		return nil, err
	}
	var out []Backup
	for _, e := range entries {
		var b Backup
		if json.Unmarshal([]byte(e.value), &b) == nil {
			out = append(out, b)
		}
	}
	return out, nil
}

// Prune 只保留最新的keep条备份，返回删除数量
func (s *LocalStore) Prune(keep int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pruneLocked(keep)
}

type kvEntry struct {
	key   string
	value string
	ts    int64
}

// entriesLocked 按备份内容中的时间戳倒序返回所有条目，时间戳无法解析的视为最旧
func (s *LocalStore) entriesLocked() ([]kvEntry, error) {
	rows, err := s.db.Query(`SELECT key, value FROM kv WHERE key LIKE ?`, BackupKeyPrefix+"%")
	if err != nil {
		return nil, fmt.Errorf("list backups: %w", err)
	}
	defer rows.Close()

	var entries []kvEntry
	for rows.Next() {
		var e kvEntry
		if err := rows.Scan(&e.key, &e.value); err != nil {
			return nil, err
		}
		var b Backup
		if json.Unmarshal([]byte(e.value), &b) == nil && !b.Timestamp.IsZero() {
			e.ts = b.Timestamp.UnixNano()
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].ts > entries[j].ts })
	return entries, nil
}

func (s *LocalStore) pruneLocked(keep int) (int, error) {
	if keep <= 0 {
		return 0, nil
	}
	entries, err := s.entriesLocked()
	if err != nil {
		return 0, err
	}
	if len(entries) <= keep {
		return 0, nil
	}
	removed := 0
	for _, e := range entries[keep:] {
		if _, err := s.db.Exec(`DELETE FROM kv WHERE key = ?`, e.key); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// localSource 把单个表单的本地备份适配为DraftStore
type localSource struct {
	store  *LocalStore
	formID string
	now    func() time.Time
}

// NewLocalSource 表单formID的本地备份来源
func NewLocalSource(store *LocalStore, formID string, now func() time.Time) DraftStore {
	if now == nil {
		now = time.Now
	}
	return &localSource{store: store, formID: formID, now: now}
}

func (l *localSource) Source() Source { return SourceLocalBackup }

func (l *localSource) List(ctx context.Context) ([]Draft, error) {
	b, err := l.store.Get(l.formID)
	if err != nil || b == nil {
		return nil, err
	}
	d := Draft{
		Source:    SourceLocalBackup,
		Title:     "Local backup (" + b.FormID + ")",
		Timestamp: b.Timestamp,
		FormData:  b.Data,
		CaseID:    b.CaseID,
	}
	d.annotate(l.now())
	return []Draft{d}, nil
}

func (l *localSource) Delete(ctx context.Context, d Draft) error {
	return l.store.Remove(l.formID)
}
