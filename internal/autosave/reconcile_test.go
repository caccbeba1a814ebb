package autosave

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticStore struct {
	source Source
	drafts []Draft
	err    error
}

func (s staticStore) Source() Source { return s.source }

func (s staticStore) List(ctx context.Context) ([]Draft, error) { return s.drafts, s.err }

func (s staticStore) Delete(ctx context.Context, d Draft) error { return nil }

func TestReconcileOrdersNewestFirst(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	remote := staticStore{source: SourceRemote, drafts: []Draft{
		{Source: SourceRemote, ID: "r1", Timestamp: t0},
		{Source: SourceRemote, ID: "r2", Timestamp: t0.Add(2 * time.Minute)},
	}}
	local := staticStore{source: SourceLocalBackup, drafts: []Draft{
		{Source: SourceLocalBackup, Timestamp: t0.Add(time.Minute)},
	}}

	drafts, err := Reconcile(context.Background(), nil, remote, local)
	require.NoError(t, err)
	require.Len(t, drafts, 3)
	assert.Equal(t, "r2", drafts[0].ID)
	assert.Equal(t, SourceLocalBackup, drafts[1].Source)
	assert.Equal(t, "r1", drafts[2].ID)
}

func TestReconcileSkipsFailingStore(t *testing.T) {
	remote := staticStore{source: SourceRemote, err: errUnavailable}
	local := staticStore{source: SourceLocalBackup, drafts: []Draft{
		{Source: SourceLocalBackup, Timestamp: time.Now()},
	}}

	drafts, err := Reconcile(context.Background(), nil, remote, nil, local)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errUnavailable))
	require.Len(t, drafts, 1)
	assert.Equal(t, SourceLocalBackup, drafts[0].Source)
}

func TestReconcileEmpty(t *testing.T) {
	drafts, err := Reconcile(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, drafts)
}
