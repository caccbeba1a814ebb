package autosave

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cci-legal/litigation/internal/config"
	"github.com/cci-legal/litigation/internal/litigation/entity"
	"github.com/cci-legal/litigation/internal/litigation/handler"
	"github.com/cci-legal/litigation/internal/litigation/service"
	"github.com/cci-legal/litigation/internal/litigation/sse"
	"github.com/cci-legal/litigation/internal/litigation/testutil"
	"github.com/cci-legal/litigation/internal/shared/apiclient"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newDraftServer 启动带内存仓库的草稿服务，返回以userID身份访问的远端存储
func newDraftServer(t *testing.T, userID string) (*RemoteDrafts, *testutil.MemoryDraftRepo) {
	remote, repo, _ := startDraftServer(t, userID)
	return remote, repo
}

func startDraftServer(t *testing.T, userID string) (*RemoteDrafts, *testutil.MemoryDraftRepo, string) {
	t.Helper()
	repo := testutil.NewMemoryDraftRepo()
	hub := sse.NewHub(nil)
	cfg := config.DraftConfig{
		MaxDraftsPerUser:         50,
		KeepAutoSavedPerUser:     10,
		AutoSaveRetentionDays:    7,
		ManualDraftRetentionDays: 30,
	}
	svc := &service.Services{
		Draft:   service.NewDraftService(repo, hub, cfg, nil),
		Cleanup: service.NewCleanupService(repo, nil, cfg, nil),
	}
	router := testutil.SetupRouter()
	handler.NewHandlers(svc, hub).Register(testutil.AuthGroup(router, "/api/v1"))

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	token := testutil.GenerateTestToken(userID, "Advocate", []string{"advocate"})
	baseURL := srv.URL + "/api/v1"
	return NewRemoteDrafts(apiclient.NewClient(baseURL, token, 5*time.Second)), repo, baseURL
}

func entityAutoDraft(userID, key string) entity.Draft {
	return entity.Draft{
		ID:          key,
		UserID:      userID,
		DraftType:   entity.DraftTypeCase,
		Title:       key,
		DraftKey:    key,
		IsAutoSaved: true,
	}
}

func TestRemoteDraftsLifecycle(t *testing.T) {
	remote, repo := newDraftServer(t, "u1")
	ctx := context.Background()

	resp, err := remote.AutoSave(ctx, AutoSaveRequest{
		FormData:  map[string]any{"case_type": "WP"},
		DraftType: "case",
		Title:     "New Case Draft",
	})
	require.NoError(t, err)
	assert.Equal(t, "case_u1_new", resp.DraftKey)
	assert.True(t, resp.Created)
	assert.False(t, resp.Timestamp.IsZero())

	resp2, err := remote.AutoSave(ctx, AutoSaveRequest{
		FormData:  map[string]any{"case_type": "CRL"},
		DraftType: "case",
	})
	require.NoError(t, err)
	assert.Equal(t, resp.DraftKey, resp2.DraftKey)
	assert.False(t, resp2.Created)
	assert.Len(t, repo.All(), 1)

	got, err := remote.GetDraft(ctx, resp.DraftKey, "", "case")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, SourceRemote, got.Source)
	assert.Equal(t, "CRL", got.FormData["case_type"])
	assert.True(t, got.IsAutoSaved)

	missing, err := remote.GetDraft(ctx, "case_u1_nope", "", "case")
	require.NoError(t, err)
	assert.Nil(t, missing)

	manual, err := remote.SaveManualDraft(ctx, ManualDraftRequest{
		Title:     "Before hearing",
		FormData:  map[string]any{"case_type": "WP"},
		DraftType: "case",
	})
	require.NoError(t, err)
	assert.Equal(t, "Before hearing", manual.Title)
	assert.False(t, manual.IsAutoSaved)
	assert.NotEmpty(t, manual.ID)

	drafts, err := remote.ListDrafts(ctx, "case", DefaultRemoteLimit)
	require.NoError(t, err)
	require.Len(t, drafts, 2)
	for _, d := range drafts {
		assert.Equal(t, SourceRemote, d.Source)
		assert.False(t, d.Timestamp.IsZero())
	}

	require.NoError(t, remote.DeleteDraft(ctx, manual.ID))
	err = remote.DeleteDraft(ctx, manual.ID)
	assert.ErrorIs(t, err, ErrDraftNotFound)

	require.NoError(t, remote.ClearAutoSave(ctx, resp.DraftKey))
	err = remote.ClearAutoSave(ctx, resp.DraftKey)
	assert.ErrorIs(t, err, ErrDraftNotFound)
	assert.Empty(t, repo.All())
}

func TestRemoteDraftsCleanup(t *testing.T) {
	remote, repo := newDraftServer(t, "u1")
	testutil.SeedDraft(t, repo, entityAutoDraft("u1", "case_u1_old"), 10*24*time.Hour)
	testutil.SeedDraft(t, repo, entityAutoDraft("u1", "case_u1_fresh"), time.Hour)

	n, err := remote.Cleanup(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	require.Len(t, repo.All(), 1)
	assert.Equal(t, "case_u1_fresh", repo.All()[0].DraftKey)
}

func TestRemoteDraftsUnauthorized(t *testing.T) {
	_, _, baseURL := startDraftServer(t, "u1")
	remote := NewRemoteDrafts(apiclient.NewClient(baseURL, "bad-token", time.Second))

	_, err := remote.ListDrafts(context.Background(), "case", 10)
	require.Error(t, err)
	var apiErr *apiclient.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 401, apiErr.Status)
}

func TestSessionAgainstServer(t *testing.T) {
	remote, repo := newDraftServer(t, "u1")
	backup := openTestStore(t, 5)
	form := newFormState(map[string]any{"case_type": "WP", "case_number": "12", "case_year": "2024"})

	s := newTestSession(t, "case_new", form, Options{Remote: remote, Backup: backup})
	require.NoError(t, s.Start(context.Background()))
	s.MarkDirty()

	res, err := s.ForceSave(context.Background())
	require.NoError(t, err)
	require.True(t, res.Saved)
	assert.Equal(t, "case_u1_new", res.DraftKey)
	assert.Equal(t, "case_u1_new", s.Status().CurrentDraftKey)

	drafts, err := s.AvailableDrafts(context.Background())
	require.NoError(t, err)
	require.Len(t, drafts, 2)
	sources := map[Source]bool{}
	for _, d := range drafts {
		sources[d.Source] = true
		assert.Equal(t, "12", s.LoadDraft(d)["case_number"])
	}
	assert.True(t, sources[SourceRemote])
	assert.True(t, sources[SourceLocalBackup])

	require.NoError(t, s.ClearCurrentDraft(context.Background()))
	assert.Empty(t, repo.All())
	assert.Empty(t, s.Status().CurrentDraftKey)
}
