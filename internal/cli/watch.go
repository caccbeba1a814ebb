package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/cci-legal/litigation/internal/autosave"
	"github.com/cci-legal/litigation/internal/watcher"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// fileForm 以文件内容作为表单快照，读取失败时沿用上一次成功的内容
type fileForm struct {
	path   string
	logger *zap.Logger

	mu   sync.Mutex
	last map[string]any
}

func (f *fileForm) snapshot() map[string]any {
	data, err := readForm(f.path)
	f.mu.Lock()
	defer f.mu.Unlock()
	if err != nil {
		f.logger.Warn("Read form failed, using last snapshot", zap.Error(err))
		if f.last == nil {
			return map[string]any{}
		}
		return f.last
	}
	f.last = data
	return data
}

func newWatchCommand(a *app) *cobra.Command {
	var (
		formID      string
		caseID      string
		title       string
		interval    time.Duration
		clearOnExit bool
	)
	cmd := &cobra.Command{
		Use:   "watch <form.json>",
		Short: "Auto-save a form file while it is being edited",
		Long: `Watches a JSON form file and auto-saves it to the server at a fixed interval
whenever it has changed. On exit any unsaved change is written to the local backup
and one final save is attempted.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if formID == "" {
				formID = "case_new"
				if caseID != "" {
					formID = "case_" + caseID
				}
			}
			if interval <= 0 {
				interval = a.cfg.Draft.AutoSaveInterval
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.watch(ctx, args[0], formID, caseID, title, interval, clearOnExit)
		},
	}
	cmd.Flags().StringVar(&formID, "form", "", "form id (default case_new or case_<case>)")
	cmd.Flags().StringVar(&caseID, "case", "", "case id when editing an existing case")
	cmd.Flags().StringVar(&title, "title", "", "draft title")
	cmd.Flags().DurationVar(&interval, "interval", 0, "auto-save interval (default draft.auto_save_interval)")
	cmd.Flags().BoolVar(&clearOnExit, "clear-on-exit", false, "clear the auto-saved draft on exit when everything is saved")
	return cmd
}

func (a *app) watch(ctx context.Context, path, formID, caseID, title string, interval time.Duration, clearOnExit bool) error {
	backups, err := a.localStore()
	if err != nil {
		return err
	}
	form := &fileForm{path: path, logger: a.logger}

	session, err := autosave.New(formID, form.snapshot, autosave.Options{
		CaseID:     optionalString(caseID),
		Title:      title,
		Interval:   interval,
		RetryDelay: a.cfg.Draft.RetryDelay,
		Remote:     a.remote,
		Backup:     backups,
		Logger:     a.logger,
	})
	if err != nil {
		return err
	}
	defer session.Close()

	w, err := watcher.New(watcher.Config{Path: path, DebounceDur: 200 * time.Millisecond})
	if err != nil {
		return err
	}
	defer func() { _ = w.Stop() }()

	changes := w.Broker().Subscribe(ctx)
	events := session.Subscribe(ctx)
	if err := w.Start(); err != nil {
		return err
	}
	if err := session.Start(ctx); err != nil {
		return err
	}
	a.printf("Watching %s as %s (every %s), Ctrl+C to stop\n", path, formID, interval)

	for {
		select {
		case <-ctx.Done():
			return a.finish(session, clearOnExit)
		case ev, ok := <-changes:
			if !ok {
				changes = nil
				continue
			}
			switch ev.Payload.Type {
			case watcher.FileChanged:
				session.MarkDirty()
			case watcher.WatcherError:
				a.logger.Warn("Watch error", zap.Error(ev.Payload.Error))
			}
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			a.report(ev.Payload)
		}
	}
}

func (a *app) report(ev autosave.Event) {
	switch ev.Type {
	case autosave.EventSaved:
		a.printf("[%s] saved %s\n", ev.Result.Timestamp.Local().Format("15:04:05"), ev.Result.DraftKey)
	case autosave.EventSaveFailed:
		if ev.Retrying {
			a.printf("Save failed, retrying: %v\n", ev.Err)
		} else {
			a.printf("Save failed, kept in local backup: %v\n", ev.Err)
		}
	case autosave.EventDraftsRecovered:
		d := ev.Recovery.MostRecent
		a.printf("Found %d recoverable drafts, most recent: %s %q (%s ago)\n",
			len(ev.Recovery.Drafts), d.Source, d.Title, formatAge(d))
	}
}

// finish 退出前写本地备份并尝试最后一次保存
func (a *app) finish(session *autosave.Session, clearOnExit bool) error {
	if !session.Flush() {
		if clearOnExit {
			ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Client.Timeout)
			defer cancel()
			if err := session.ClearCurrentDraft(ctx); err != nil {
				return err
			}
		}
		a.printf("All changes saved\n")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Client.Timeout)
	defer cancel()
	_, err := session.ForceSave(ctx)
	if err != nil || session.Status().IsDirty {
		a.printf("Unsaved changes kept in local backup %s\n", a.cfg.Client.BackupPath)
	}
	if err != nil {
		return fmt.Errorf("final save: %w", err)
	}
	if !session.Status().IsDirty {
		a.printf("All changes saved\n")
	}
	return nil
}
