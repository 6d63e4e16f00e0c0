package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"perch/internal/ipc"
	"perch/internal/schedule"
)

func newInstancesCommand(ctx *commandContext) *cobra.Command {
	var (
		from   string
		to     string
		ensure int64
	)

	cmd := &cobra.Command{
		Use:   "instances",
		Short: "Show recording history for recurring jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			now := time.Now()
			if to == "" {
				to = schedule.OccurrenceDate(now)
			}
			if from == "" {
				from = schedule.OccurrenceDate(now.AddDate(0, 0, -7))
			}

			return ctx.withClient(func(client *ipc.Client) error {
				out := cmd.OutOrStdout()
				if ensure != 0 {
					resp, err := client.InstanceEnsure(ensure, to)
					if err != nil {
						return err
					}
					switch {
					case resp.Instance == nil:
						fmt.Fprintf(out, "nothing to backfill for job %d on %s\n", ensure, to)
					case resp.WasCreated:
						fmt.Fprintf(out, "backfilled job %d on %s as %s\n", ensure, to, resp.Instance.Status)
					default:
						fmt.Fprintf(out, "instance already recorded: job %d on %s is %s\n",
							ensure, to, resp.Instance.Status)
					}
					return nil
				}

				resp, err := client.Instances(from, to)
				if err != nil {
					return err
				}
				if len(resp.Instances) == 0 {
					fmt.Fprintf(out, "no instances between %s and %s\n", from, to)
					return nil
				}
				rows := make([][]string, 0, len(resp.Instances))
				for _, inst := range resp.Instances {
					rows = append(rows, []string{
						inst.Date,
						strconv.FormatInt(inst.JobID, 10),
						inst.Status,
						formatTime(inst.StartedAt),
						formatTime(inst.CompletedAt),
						inst.Notes,
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"DATE", "JOB", "STATUS", "STARTED", "COMPLETED", "NOTES"},
					rows,
					[]columnAlignment{alignLeft, alignRight, alignLeft, alignLeft, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&from, "from", "", "range start, YYYY-MM-DD (default: 7 days ago)")
	cmd.Flags().StringVar(&to, "to", "", "range end, YYYY-MM-DD (default: today)")
	cmd.Flags().Int64Var(&ensure, "ensure", 0, "backfill the instance for this job id on the --to date")

	return cmd
}
