package autosave

import (
	"context"
	"errors"
	"sync"
	"time"
)

var errUnavailable = errors.New("service unavailable")

// fakeRemote 内存版远端，记录调用并可注入失败或阻塞
type fakeRemote struct {
	mu sync.Mutex

	autoSaveCalls int
	requests      []AutoSaveRequest
	resp          AutoSaveResponse
	autoSaveErr   error // 持续失败
	failNext      int   // 接下来的N次失败
	entered       chan struct{}
	release       chan struct{}

	drafts    []Draft
	listErr   error
	deleted   []string
	deleteErr error

	manual    []ManualDraftRequest
	manualErr error

	cleared  []string
	clearErr error

	cleanupDays []int
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		resp: AutoSaveResponse{
			DraftKey:  "case_u1_new",
			DraftID:   "id-1",
			Timestamp: time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC),
		},
	}
}

// blockAutoSave 让之后的AutoSave阻塞，直到release被关闭
func (f *fakeRemote) blockAutoSave() (entered <-chan struct{}, release chan struct{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entered = make(chan struct{}, 8)
	f.release = make(chan struct{})
	return f.entered, f.release
}

func (f *fakeRemote) setAutoSaveErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.autoSaveErr = err
}

func (f *fakeRemote) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.autoSaveCalls
}

func (f *fakeRemote) lastRequest() AutoSaveRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

func (f *fakeRemote) AutoSave(ctx context.Context, req AutoSaveRequest) (AutoSaveResponse, error) {
	f.mu.Lock()
	f.autoSaveCalls++
	f.requests = append(f.requests, req)
	entered, release := f.entered, f.release
	err := f.autoSaveErr
	if err == nil && f.failNext > 0 {
		f.failNext--
		err = errUnavailable
	}
	resp := f.resp
	f.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
	}
	if release != nil {
		<-release
	}
	if err != nil {
		return AutoSaveResponse{}, err
	}
	return resp, nil
}

func (f *fakeRemote) ListDrafts(ctx context.Context, draftType string, limit int) ([]Draft, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]Draft, len(f.drafts))
	copy(out, f.drafts)
	return out, nil
}

func (f *fakeRemote) GetDraft(ctx context.Context, draftKey, caseID, draftType string) (*Draft, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, d := range f.drafts {
		if d.DraftKey == draftKey {
			d := d
			return &d, nil
		}
	}
	return nil, nil
}

func (f *fakeRemote) DeleteDraft(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeRemote) SaveManualDraft(ctx context.Context, req ManualDraftRequest) (Draft, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.manual = append(f.manual, req)
	if f.manualErr != nil {
		return Draft{}, f.manualErr
	}
	return Draft{
		ID:        "manual-1",
		DraftKey:  "case_u1_manual1",
		Title:     req.Title,
		Timestamp: time.Now(),
		FormData:  req.FormData,
		CaseID:    req.CaseID,
	}, nil
}

func (f *fakeRemote) ClearAutoSave(ctx context.Context, draftKey string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleared = append(f.cleared, draftKey)
	return f.clearErr
}

func (f *fakeRemote) Cleanup(ctx context.Context, daysOld int) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleanupDays = append(f.cleanupDays, daysOld)
	return 3, nil
}
