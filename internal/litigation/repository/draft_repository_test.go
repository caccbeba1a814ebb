package repository_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cci-legal/litigation/internal/litigation/entity"
	"github.com/cci-legal/litigation/internal/litigation/repository"
	"github.com/cci-legal/litigation/internal/litigation/testutil"
)

func newDraft(id, userID, key string, auto bool, age time.Duration) *entity.Draft {
	ts := time.Now().Add(-age)
	return &entity.Draft{
		ID: id, UserID: userID, DraftType: entity.DraftTypeCase, Title: "T " + id,
		FormData: entity.JSONB{"id": id}, DraftKey: key, IsAutoSaved: auto,
		CreatedAt: ts, UpdatedAt: ts,
	}
}

func TestDraftRepositoryUpsertAndFind(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := repository.NewRepositories(db).Draft
	ctx := context.Background()

	d := newDraft("d1", "u1", "case_u1_new", true, time.Minute)
	created, err := repo.Upsert(ctx, d)
	if err != nil || !created {
		t.Fatalf("Expected create, got %v, %v", created, err)
	}

	update := newDraft("d2", "u1", "case_u1_new", true, 0)
	update.FormData = entity.JSONB{"case_number": "12"}
	created, err = repo.Upsert(ctx, update)
	if err != nil || created {
		t.Fatalf("Expected update, got %v, %v", created, err)
	}
	if update.ID != "d1" {
		t.Errorf("Expected existing id kept, got %s", update.ID)
	}

	found, err := repo.FindByKey(ctx, "u1", "case_u1_new")
	if err != nil || found == nil {
		t.Fatalf("FindByKey: %v, %v", found, err)
	}
	if found.FormData["case_number"] != "12" {
		t.Errorf("Expected jsonb form data replaced, got %v", found.FormData)
	}

	missing, err := repo.FindByKey(ctx, "u2", "case_u1_new")
	if err != nil || missing != nil {
		t.Errorf("Expected nil for other user, got %v, %v", missing, err)
	}
}

func TestDraftRepositoryTrimAndExpire(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := repository.NewDraftRepository(db)
	ctx := context.Background()

	for i, age := range []time.Duration{time.Hour, 2 * time.Hour, 3 * time.Hour} {
		d := newDraft(string(rune('a'+i)), "u1", "k"+string(rune('a'+i)), true, age)
		if err := repo.Create(ctx, d); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}
	repo.Create(ctx, newDraft("m", "u1", "km", false, 40*24*time.Hour))

	n, err := repo.TrimAutoSaved(ctx, "u1", 2)
	if err != nil || n != 1 {
		t.Fatalf("Expected 1 trimmed, got %d, %v", n, err)
	}
	if d, _ := repo.FindByID(ctx, "u1", "c"); d != nil {
		t.Error("Expected oldest auto-save trimmed")
	}

	expired, err := repo.FindExpired(ctx, false, time.Now().AddDate(0, 0, -30))
	if err != nil || len(expired) != 1 || expired[0].ID != "m" {
		t.Fatalf("Expected manual draft expired, got %v, %v", expired, err)
	}

	if err := repo.DeleteByID(ctx, "u2", "m"); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for other user, got %v", err)
	}
	list, _ := repo.ListByUser(ctx, "u1", entity.DraftTypeCase, true, 10)
	if len(list) != 3 || list[0].ID != "a" {
		t.Errorf("Expected 3 drafts newest first, got %v", list)
	}
}
