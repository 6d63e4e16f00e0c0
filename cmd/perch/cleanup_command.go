package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"perch/internal/ipc"
)

func newCleanupCommand(ctx *commandContext) *cobra.Command {
	var (
		days      int
		completed bool
		failed    bool
		missed    bool
		dryRun    bool
	)

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete old terminal jobs and instance history",
		Long: "Deletes one-time jobs and recording instances older than the retention " +
			"window. With no status flags, completed, failed, and missed records are all eligible.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Cleanup(ipc.CleanupRequest{
					RetentionDays: days,
					Completed:     completed,
					Failed:        failed,
					Missed:        missed,
					DryRun:        dryRun,
				})
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				verb := "deleted"
				if resp.DryRun {
					verb = "would delete"
				}
				fmt.Fprintf(out, "%s %d jobs and %d instances older than %s\n",
					verb, resp.JobsDeleted, resp.InstancesDeleted,
					resp.Cutoff.Local().Format("2006-01-02"))
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&days, "days", 0, "retention window in days (default: configured value)")
	cmd.Flags().BoolVar(&completed, "completed", false, "include completed records")
	cmd.Flags().BoolVar(&failed, "failed", false, "include failed records")
	cmd.Flags().BoolVar(&missed, "missed", false, "include missed records")
	cmd.Flags().BoolVarP(&dryRun, "dry-run", "n", false, "report counts without deleting")

	return cmd
}
