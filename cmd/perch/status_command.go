package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"perch/internal/ipc"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon and capture status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Status()
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "perchd: running (db %s)\n", resp.DBPath)
				fmt.Fprintf(out, "armed triggers: %d\n", resp.ArmedCount)
				printSession(cmd, resp.Audio)
				printSession(cmd, resp.Video)
				if len(resp.PendingJobs) > 0 {
					fmt.Fprintln(out, "pending jobs:")
					for _, job := range resp.PendingJobs {
						fmt.Fprintf(out, "  %d %s (%s), next %s\n",
							job.ID, job.Name, job.Schedule, formatTime(job.NextFire))
					}
				}
				return nil
			})
		},
	}
}
