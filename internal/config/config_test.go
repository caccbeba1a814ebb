package config

import (
	"os"
	"testing"
	"time"
)

func TestLoadDefaultsAndEnv(t *testing.T) {
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatalf("Chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
	t.Setenv("SERVER_PORT", "9100")
	t.Setenv("API_BASE_URL", "http://cases.local/api/v1")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9100 {
		t.Errorf("Expected port 9100, got %d", cfg.Server.Port)
	}
	if cfg.Client.BaseURL != "http://cases.local/api/v1" {
		t.Errorf("Expected base url from env, got %s", cfg.Client.BaseURL)
	}
	if cfg.Draft.AutoSaveInterval != 30*time.Second {
		t.Errorf("Expected 30s interval, got %v", cfg.Draft.AutoSaveInterval)
	}
	if cfg.Draft.MaxLocalDrafts != 5 {
		t.Errorf("Expected 5 local drafts, got %d", cfg.Draft.MaxLocalDrafts)
	}
	if cfg.Draft.AutoSaveRetentionDays != 7 || cfg.Draft.ManualDraftRetentionDays != 30 {
		t.Errorf("Unexpected retention: %+v", cfg.Draft)
	}
}

func TestCleanupPeriod(t *testing.T) {
	cases := map[string]time.Duration{
		"":        24 * time.Hour,
		"daily":   24 * time.Hour,
		"weekly":  7 * 24 * time.Hour,
		"monthly": 30 * 24 * time.Hour,
	}
	for schedule, want := range cases {
		got := DraftConfig{CleanupSchedule: schedule}.CleanupPeriod()
		if got != want {
			t.Errorf("schedule %q: expected %v, got %v", schedule, want, got)
		}
	}
}
