package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/yungbote/neurobridge-kt/internal/platform/dbctx"
)

var snapshotsCmd = &cobra.Command{
	Use:   "snapshots",
	Short: "List and activate registered checkpoints",
}

var snapshotsListCmd = &cobra.Command{
	Use:   "list <model-key>",
	Short: "List snapshots of a model key, newest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		log, err := newLogger(cmd)
		if err != nil {
			return err
		}
		repo, closeFn, err := requireRegistry(cmd, log)
		if err != nil {
			return err
		}
		defer closeFn()

		limit, _ := cmd.Flags().GetInt("limit")
		rows, err := repo.ListByKey(dbctx.Context{Ctx: cmd.Context()}, args[0], limit)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "VERSION\tACTIVE\tEPOCH\tAUC\tLOSS\tID\tURI")
		for _, s := range rows {
			active := ""
			if s.Active {
				active = "*"
			}
			fmt.Fprintf(tw, "%d\t%s\t%d\t%.4f\t%.4f\t%s\t%s\n", s.Version, active, s.Epoch, s.AUC, s.LossMean, s.ID, s.URI)
		}
		return tw.Flush()
	},
}

var snapshotsActivateCmd = &cobra.Command{
	Use:   "activate <snapshot-id>",
	Short: "Make a snapshot the active one for its key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid snapshot id: %w", err)
		}
		log, err := newLogger(cmd)
		if err != nil {
			return err
		}
		repo, closeFn, err := requireRegistry(cmd, log)
		if err != nil {
			return err
		}
		defer closeFn()

		dbc := dbctx.Context{Ctx: cmd.Context()}
		if err := repo.SetActiveByID(dbc, id); err != nil {
			return err
		}
		s, err := repo.GetByID(dbc, id)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "activated %s version %d (%s)\n", s.ModelKey, s.Version, s.URI)
		return nil
	},
}

func init() {
	snapshotsListCmd.Flags().Int("limit", 50, "maximum rows")
	snapshotsCmd.AddCommand(snapshotsListCmd, snapshotsActivateCmd)
}
