package cli

import (
	"bytes"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cci-legal/litigation/internal/autosave"
	"github.com/cci-legal/litigation/internal/config"
	"github.com/cci-legal/litigation/internal/litigation/handler"
	"github.com/cci-legal/litigation/internal/litigation/service"
	"github.com/cci-legal/litigation/internal/litigation/sse"
	"github.com/cci-legal/litigation/internal/litigation/testutil"
)

type cliEnv struct {
	repo       *testutil.MemoryDraftRepo
	baseArgs   []string
	backupPath string
	dir        string
}

func setupCLI(t *testing.T) *cliEnv {
	t.Helper()
	repo := testutil.NewMemoryDraftRepo()
	hub := sse.NewHub(nil)
	cfg := config.DraftConfig{MaxDraftsPerUser: 50, KeepAutoSavedPerUser: 10, AutoSaveRetentionDays: 7}
	svc := &service.Services{
		Draft:   service.NewDraftService(repo, hub, cfg, nil),
		Cleanup: service.NewCleanupService(repo, nil, cfg, nil),
	}
	router := testutil.SetupRouter()
	handler.NewHandlers(svc, hub).Register(testutil.AuthGroup(router, "/api/v1"))
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	backupPath := filepath.Join(dir, "backup.db")
	token := testutil.GenerateTestToken("u1", "Advocate", nil)
	return &cliEnv{
		repo:       repo,
		backupPath: backupPath,
		dir:        dir,
		baseArgs:   []string{"--base-url", srv.URL + "/api/v1", "--token", token, "--backup", backupPath},
	}
}

func (e *cliEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	cmd := NewRootCommand(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs(append(append([]string{}, e.baseArgs...), args...))
	err := cmd.Execute()
	return buf.String(), err
}

func TestSaveListAndDelete(t *testing.T) {
	env := setupCLI(t)
	formPath := filepath.Join(env.dir, "form.json")
	require.NoError(t, os.WriteFile(formPath, []byte(`{"case_type":"WP","case_number":"12"}`), 0644))

	out, err := env.run(t, "save", "--title", "Before hearing", "-f", formPath)
	require.NoError(t, err)
	require.Contains(t, out, "Saved draft")

	all := env.repo.All()
	require.Len(t, all, 1)
	require.Equal(t, "WP", all[0].FormData["case_type"])
	require.False(t, all[0].IsAutoSaved)

	out, err = env.run(t, "list")
	require.NoError(t, err)
	require.Contains(t, out, "Before hearing")
	require.Contains(t, out, "remote")

	out, err = env.run(t, "delete", all[0].ID)
	require.NoError(t, err)
	require.Contains(t, out, "Deleted draft")
	require.Empty(t, env.repo.All())

	_, err = env.run(t, "delete", all[0].ID)
	require.ErrorIs(t, err, autosave.ErrDraftNotFound)
}

func TestSaveRequiresTitle(t *testing.T) {
	env := setupCLI(t)
	formPath := filepath.Join(env.dir, "form.json")
	require.NoError(t, os.WriteFile(formPath, []byte(`{}`), 0644))

	_, err := env.run(t, "save", "-f", formPath)
	require.ErrorIs(t, err, autosave.ErrEmptyTitle)
	require.Empty(t, env.repo.All())
}

func TestRestoreFromLocalBackup(t *testing.T) {
	env := setupCLI(t)
	store, err := autosave.OpenLocalStore(env.backupPath, 5)
	require.NoError(t, err)
	require.NoError(t, store.Put(autosave.Backup{
		FormID:    "case_new",
		Data:      map[string]any{"case_year": "2024"},
		Timestamp: time.Now().Add(-time.Minute),
	}))
	require.NoError(t, store.Close())

	outPath := filepath.Join(env.dir, "restored.json")
	out, err := env.run(t, "restore", "--form", "case_new", "-o", outPath)
	require.NoError(t, err)
	require.Contains(t, out, "local_backup")

	data, err := readForm(outPath)
	require.NoError(t, err)
	require.Equal(t, "2024", data["case_year"])

	out, err = env.run(t, "delete", "--local", "case_new")
	require.NoError(t, err)
	require.Contains(t, out, "Deleted local backup")

	_, err = env.run(t, "restore", "--form", "case_new", "-o", outPath)
	require.ErrorIs(t, err, autosave.ErrDraftNotFound)
}

func TestClearAndCleanup(t *testing.T) {
	env := setupCLI(t)
	out, err := env.run(t, "clear", "case_u1_new")
	require.NoError(t, err)
	require.Contains(t, out, "already cleared")

	out, err = env.run(t, "cleanup", "--days", "7")
	require.NoError(t, err)
	require.Contains(t, out, "Deleted 0 remote drafts")
}

func TestDeleteRequiresTarget(t *testing.T) {
	env := setupCLI(t)
	_, err := env.run(t, "delete")
	require.Error(t, err)
}

func TestReadForm(t *testing.T) {
	dir := t.TempDir()
	empty := filepath.Join(dir, "empty.json")
	require.NoError(t, os.WriteFile(empty, nil, 0644))
	data, err := readForm(empty)
	require.NoError(t, err)
	require.Empty(t, data)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{"), 0644))
	_, err = readForm(bad)
	require.Error(t, err)

	_, err = readForm(filepath.Join(dir, "missing.json"))
	require.Error(t, err)
}

func TestFileFormKeepsLastSnapshot(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "form.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"a":"1"}`), 0644))

	f := &fileForm{path: path, logger: zap.NewNop()}
	require.Equal(t, "1", f.snapshot()["a"])

	require.NoError(t, os.WriteFile(path, []byte(`{"a":`), 0644))
	require.Equal(t, "1", f.snapshot()["a"])
}
