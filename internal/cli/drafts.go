package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/cci-legal/litigation/internal/autosave"
	"github.com/spf13/cobra"
)

// readForm 读取JSON格式的表单文件
func readForm(path string) (map[string]any, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading form: %w", err)
	}
	data := map[string]any{}
	if len(raw) == 0 {
		return data, nil
	}
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("parsing form %s: %w", path, err)
	}
	return data, nil
}

// writeForm 以缩进JSON写出表单数据
func writeForm(path string, data map[string]any) error {
	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(raw, '\n'), 0644)
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// collect 合并远端草稿与formID的本地备份
func (a *app) collect(cmd *cobra.Command, draftType string, limit int, formID string) ([]autosave.Draft, error) {
	stores := []autosave.DraftStore{autosave.NewRemoteSource(a.remote, draftType, limit)}
	if formID != "" {
		local, err := a.localStore()
		if err != nil {
			return nil, err
		}
		stores = append(stores, autosave.NewLocalSource(local, formID, time.Now))
	}
	return autosave.Reconcile(cmd.Context(), a.logger, stores...)
}

func newListCommand(a *app) *cobra.Command {
	var (
		draftType string
		limit     int
		formID    string
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recoverable drafts, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			drafts, err := a.collect(cmd, draftType, limit, formID)
			if err != nil && len(drafts) == 0 {
				return err
			}
			if err != nil {
				a.printf("Warning: %v\n", err)
			}
			if len(drafts) == 0 {
				a.printf("No drafts found\n")
				return nil
			}

			tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "SOURCE\tID\tKEY\tTITLE\tAGE\tAUTO")
			for _, d := range drafts {
				auto := "-"
				if d.Source == autosave.SourceRemote {
					auto = fmt.Sprintf("%t", d.IsAutoSaved)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", d.Source, d.ID, d.DraftKey, d.Title, formatAge(d), auto)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&draftType, "type", autosave.DefaultDraftType, "draft type: case, user or other")
	cmd.Flags().IntVar(&limit, "limit", autosave.DefaultRemoteLimit, "maximum remote drafts")
	cmd.Flags().StringVar(&formID, "form", "", "also include the local backup of this form")
	return cmd
}

func newShowCommand(a *app) *cobra.Command {
	var (
		key       string
		caseID    string
		draftType string
	)
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print a remote draft's form data as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := a.remote.GetDraft(cmd.Context(), key, caseID, draftType)
			if err != nil {
				return err
			}
			if d == nil {
				return autosave.ErrDraftNotFound
			}
			enc := json.NewEncoder(a.out)
			enc.SetIndent("", "  ")
			return enc.Encode(d)
		},
	}
	cmd.Flags().StringVar(&key, "key", "", "draft key")
	cmd.Flags().StringVar(&caseID, "case", "", "case id")
	cmd.Flags().StringVar(&draftType, "type", autosave.DefaultDraftType, "draft type")
	return cmd
}

func newSaveCommand(a *app) *cobra.Command {
	var (
		title     string
		file      string
		caseID    string
		draftType string
	)
	cmd := &cobra.Command{
		Use:   "save",
		Short: "Save a form file as a named manual draft",
		RunE: func(cmd *cobra.Command, args []string) error {
			if title == "" {
				return autosave.ErrEmptyTitle
			}
			data, err := readForm(file)
			if err != nil {
				return err
			}
			d, err := a.remote.SaveManualDraft(cmd.Context(), autosave.ManualDraftRequest{
				Title:     title,
				FormData:  data,
				DraftType: draftType,
				CaseID:    optionalString(caseID),
			})
			if err != nil {
				return err
			}
			a.printf("Saved draft %s (%s)\n", d.DraftKey, d.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "draft title")
	cmd.Flags().StringVarP(&file, "file", "f", "", "form JSON file")
	cmd.Flags().StringVar(&caseID, "case", "", "case id")
	cmd.Flags().StringVar(&draftType, "type", autosave.DefaultDraftType, "draft type")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newDeleteCommand(a *app) *cobra.Command {
	var localForm string
	cmd := &cobra.Command{
		Use:   "delete [draft-id]",
		Short: "Delete a remote draft by id, or a form's local backup with --local",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if localForm != "" {
				local, err := a.localStore()
				if err != nil {
					return err
				}
				src := autosave.NewLocalSource(local, localForm, time.Now)
				if err := src.Delete(cmd.Context(), autosave.Draft{Source: autosave.SourceLocalBackup}); err != nil {
					return err
				}
				a.printf("Deleted local backup for %s\n", localForm)
				return nil
			}
			if len(args) == 0 {
				return errors.New("draft id or --local is required")
			}
			if err := a.remote.DeleteDraft(cmd.Context(), args[0]); err != nil {
				return err
			}
			a.printf("Deleted draft %s\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&localForm, "local", "", "form id whose local backup to delete")
	return cmd
}

func newClearCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "clear <draft-key>",
		Short: "Clear an auto-saved draft after the form was submitted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			err := a.remote.ClearAutoSave(cmd.Context(), args[0])
			if errors.Is(err, autosave.ErrDraftNotFound) {
				a.printf("Draft %s already cleared\n", args[0])
				return nil
			}
			if err != nil {
				return err
			}
			a.printf("Cleared draft %s\n", args[0])
			return nil
		},
	}
}

func newCleanupCommand(a *app) *cobra.Command {
	var (
		days  int
		local int
	)
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete your auto-saved drafts older than --days",
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := a.remote.Cleanup(cmd.Context(), days)
			if err != nil {
				return err
			}
			a.printf("Deleted %d remote drafts\n", n)

			if local > 0 {
				store, err := a.localStore()
				if err != nil {
					return err
				}
				removed, err := store.Prune(local)
				if err != nil {
					return err
				}
				a.printf("Pruned %d local backups\n", removed)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&days, "days", 0, "age threshold in days (server default when 0)")
	cmd.Flags().IntVar(&local, "keep-local", 0, "also keep only this many local backups")
	return cmd
}

func newRestoreCommand(a *app) *cobra.Command {
	var (
		formID    string
		out       string
		draftType string
	)
	cmd := &cobra.Command{
		Use:   "restore",
		Short: "Write the most recent draft of a form to a file",
		RunE: func(cmd *cobra.Command, args []string) error {
			drafts, err := a.collect(cmd, draftType, autosave.DefaultRemoteLimit, formID)
			if len(drafts) == 0 {
				if err != nil {
					return err
				}
				return autosave.ErrDraftNotFound
			}
			d := drafts[0]
			if err := writeForm(out, d.FormData); err != nil {
				return err
			}
			a.printf("Restored %s draft %q to %s\n", d.Source, d.Title, out)
			return nil
		},
	}
	cmd.Flags().StringVar(&formID, "form", "", "form id")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file")
	cmd.Flags().StringVar(&draftType, "type", autosave.DefaultDraftType, "draft type")
	_ = cmd.MarkFlagRequired("form")
	_ = cmd.MarkFlagRequired("out")
	return cmd
}
