package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/yungbote/neurobridge-kt/internal/kt/ckpt"
	"github.com/yungbote/neurobridge-kt/internal/platform/envutil"
	"github.com/yungbote/neurobridge-kt/internal/platform/gcp"
	"github.com/yungbote/neurobridge-kt/internal/platform/logger"
	"github.com/yungbote/neurobridge-kt/internal/registry"
)

var rootCmd = &cobra.Command{
	Use:           "ktctl",
	Short:         "Train, inspect and query knowledge-tracing models",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		_ = godotenv.Load()
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.String("log-mode", "", "log mode: development or production (default $LOG_MODE)")
	pf.String("registry-driver", "", "snapshot registry driver: sqlite or postgres (default $KT_REGISTRY_DRIVER)")
	pf.String("registry-dsn", "", "snapshot registry DSN (default $KT_REGISTRY_DSN)")

	rootCmd.AddCommand(trainCmd)
	rootCmd.AddCommand(predictCmd)
	rootCmd.AddCommand(datasetCmd)
	rootCmd.AddCommand(snapshotsCmd)
	rootCmd.AddCommand(workerCmd)
}

func flagOrEnv(cmd *cobra.Command, flag, env string) string {
	if v, _ := cmd.Flags().GetString(flag); strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return envutil.String(env, "")
}

func newLogger(cmd *cobra.Command) (*logger.Logger, error) {
	mode := flagOrEnv(cmd, "log-mode", "LOG_MODE")
	if mode == "" {
		mode = "development"
	}
	log, err := logger.New(mode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return log, nil
}

// openRegistry returns nil when no registry is configured.
func openRegistry(cmd *cobra.Command, log *logger.Logger) (registry.SnapshotRepo, *gorm.DB, error) {
	driver := flagOrEnv(cmd, "registry-driver", "KT_REGISTRY_DRIVER")
	if driver == "" {
		return nil, nil, nil
	}
	db, err := registry.Open(driver, flagOrEnv(cmd, "registry-dsn", "KT_REGISTRY_DSN"))
	if err != nil {
		return nil, nil, fmt.Errorf("open registry: %w", err)
	}
	return registry.NewSnapshotRepo(db, log), db, nil
}

func requireRegistry(cmd *cobra.Command, log *logger.Logger) (registry.SnapshotRepo, func(), error) {
	repo, db, err := openRegistry(cmd, log)
	if err != nil {
		return nil, nil, err
	}
	if repo == nil {
		return nil, nil, fmt.Errorf("no registry configured: set --registry-driver and --registry-dsn")
	}
	return repo, closeDB(db), nil
}

func closeDB(db *gorm.DB) func() {
	return func() {
		if db == nil {
			return
		}
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
}

// objectsFor opens GCS only when one of uris needs it.
func objectsFor(ctx context.Context, log *logger.Logger, uris ...string) (ckpt.Objects, func(), error) {
	for _, u := range uris {
		if gcp.IsURI(u) {
			store, err := gcp.NewObjectStore(ctx, log)
			if err != nil {
				return nil, nil, fmt.Errorf("object storage: %w", err)
			}
			return store, func() { _ = store.Close() }, nil
		}
	}
	return nil, func() {}, nil
}
