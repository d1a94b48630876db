package main

import (
	"github.com/spf13/cobra"

	"github.com/yungbote/neurobridge-kt/internal/kt/pipeline"
	"github.com/yungbote/neurobridge-kt/internal/platform/gcp"
	"github.com/yungbote/neurobridge-kt/internal/platform/shutdown"
	"github.com/yungbote/neurobridge-kt/internal/temporalx"
	"github.com/yungbote/neurobridge-kt/internal/temporalx/temporalworker"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the Temporal worker that executes kt_train workflows",
	RunE: func(cmd *cobra.Command, _ []string) error {
		log, err := newLogger(cmd)
		if err != nil {
			return err
		}
		defer log.Sync()

		ctx, stop := shutdown.NotifyContext(cmd.Context())
		defer stop()

		repo, db, err := openRegistry(cmd, log)
		if err != nil {
			return err
		}
		defer closeDB(db)()

		runner := pipeline.NewRunner(log, nil, repo)
		if objects, err := gcp.NewObjectStore(ctx, log); err != nil {
			log.Warn("object storage unavailable; gs:// outputs will fail", "error", err)
		} else {
			defer objects.Close()
			runner = pipeline.NewRunner(log, objects, repo)
		}

		cfg, err := temporalx.LoadConfig()
		if err != nil {
			return err
		}
		tc, err := temporalx.NewClient(ctx, log, cfg)
		if err != nil {
			return err
		}
		defer tc.Close()

		w, err := temporalworker.NewRunner(log, tc, cfg, runner)
		if err != nil {
			return err
		}
		return w.Run(ctx)
	},
}
