// Package cli draftctl 命令行：管理远端草稿与本地备份，并为表单文件运行自动保存
package cli

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/cci-legal/litigation/internal/autosave"
	"github.com/cci-legal/litigation/internal/config"
	"github.com/cci-legal/litigation/internal/shared/apiclient"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// app 命令共享的依赖，在PersistentPreRunE中初始化
type app struct {
	out     io.Writer
	cfg     *config.Config
	logger  *zap.Logger
	remote  *autosave.RemoteDrafts
	backups *autosave.LocalStore

	baseURL    string
	token      string
	backupPath string
	verbose    bool
}

// NewRootCommand 创建draftctl根命令
func NewRootCommand(out io.Writer) *cobra.Command {
	a := &app{out: out}

	root := &cobra.Command{
		Use:           "draftctl",
		Short:         "Manage litigation form drafts",
		Long:          `Lists, restores and cleans up auto-saved and manual drafts, and runs the auto-save loop for a form file.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.close()
		},
	}
	root.SetOut(out)

	flags := root.PersistentFlags()
	flags.StringVar(&a.baseURL, "base-url", "", "API base URL (overrides client.base_url)")
	flags.StringVar(&a.token, "token", "", "bearer token (overrides client.token)")
	flags.StringVar(&a.backupPath, "backup", "", "local backup database path (overrides client.backup_path)")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(
		newListCommand(a),
		newShowCommand(a),
		newSaveCommand(a),
		newDeleteCommand(a),
		newClearCommand(a),
		newCleanupCommand(a),
		newRestoreCommand(a),
		newWatchCommand(a),
	)
	return root
}

// Execute 运行draftctl
func Execute() {
	if err := NewRootCommand(os.Stdout).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func (a *app) init() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if a.baseURL != "" {
		cfg.Client.BaseURL = a.baseURL
	}
	if a.token != "" {
		cfg.Client.Token = a.token
	}
	if a.backupPath != "" {
		cfg.Client.BackupPath = a.backupPath
	}
	a.cfg = cfg

	zapCfg := zap.NewDevelopmentConfig()
	zapCfg.OutputPaths = []string{"stderr"}
	if !a.verbose {
		zapCfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	}
	if a.logger, err = zapCfg.Build(); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	client := apiclient.NewClient(cfg.Client.BaseURL, cfg.Client.Token, cfg.Client.Timeout)
	a.remote = autosave.NewRemoteDrafts(client)
	return nil
}

// localStore 按需打开本地备份库
func (a *app) localStore() (*autosave.LocalStore, error) {
	if a.backups != nil {
		return a.backups, nil
	}
	store, err := autosave.OpenLocalStore(a.cfg.Client.BackupPath, a.cfg.Draft.MaxLocalDrafts)
	if err != nil {
		return nil, err
	}
	a.backups = store
	return store, nil
}

func (a *app) close() {
	if a.backups != nil {
		_ = a.backups.Close()
		a.backups = nil
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}

func (a *app) printf(format string, args ...any) {
	fmt.Fprintf(a.out, format, args...)
}

func formatAge(d autosave.Draft) string {
	if d.AgeInMinutes < 60 {
		return fmt.Sprintf("%dm", d.AgeInMinutes)
	}
	age := time.Duration(d.AgeInMinutes) * time.Minute
	if age < 48*time.Hour {
		return fmt.Sprintf("%dh", int(age.Hours()))
	}
	return fmt.Sprintf("%dd", int(age.Hours()/24))
}
