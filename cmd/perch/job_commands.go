package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"perch/internal/ipc"
)

func newJobCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "job",
		Short: "Manage capture jobs",
	}
	cmd.AddCommand(newJobAddCommand(ctx))
	cmd.AddCommand(newJobListCommand(ctx))
	cmd.AddCommand(newJobShowCommand(ctx))
	cmd.AddCommand(newJobUpdateCommand(ctx))
	cmd.AddCommand(newJobRemoveCommand(ctx))
	return cmd
}

func newJobAddCommand(ctx *commandContext) *cobra.Command {
	var (
		duration      int
		notes         string
		start         string
		recurrence    string
		at            string
		days          string
		dayOfMonth    int
		allowOverride bool
		video         bool
	)

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Create a one-time or recurring capture job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pattern, err := parsePatternFlags(recurrence, at, days, dayOfMonth)
			if err != nil {
				return err
			}
			startAt, err := parseStartTime(start)
			if err != nil {
				return err
			}
			if pattern == nil && startAt == nil {
				return fmt.Errorf("either --start (one-time) or --recurrence (recurring) is required")
			}

			req := ipc.JobCreateRequest{
				Name:            args[0],
				DurationSeconds: duration,
				Notes:           notes,
				IsRecurring:     pattern != nil,
				Pattern:         pattern,
				StartAt:         startAt,
				AllowOverride:   allowOverride,
				CaptureVideo:    video,
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.JobCreate(req)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "created job %d (%s), fires %s\n",
					resp.Job.ID, resp.Job.Name, resp.Job.Schedule)
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&duration, "duration", "d", 3600, "capture duration in seconds")
	cmd.Flags().StringVar(&notes, "notes", "", "free-form notes")
	cmd.Flags().StringVar(&start, "start", "", "one-time start (\"2006-01-02 15:04\", local time)")
	cmd.Flags().StringVar(&recurrence, "recurrence", "", "recurrence kind: daily, weekly, or monthly")
	cmd.Flags().StringVar(&at, "at", "", "recurring time of day, HH:MM")
	cmd.Flags().StringVar(&days, "days", "", "weekly: comma-separated weekdays (sun,mon,... or 0-6)")
	cmd.Flags().IntVar(&dayOfMonth, "day-of-month", 0, "monthly: day of month, 1-31")
	cmd.Flags().BoolVar(&allowOverride, "allow-override", false, "permit durations above the default ceiling")
	cmd.Flags().BoolVar(&video, "video", false, "also capture the camera stream")

	return cmd
}

func newJobListCommand(ctx *commandContext) *cobra.Command {
	var pendingOnly bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List capture jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.JobList(pendingOnly)
				if err != nil {
					return err
				}
				if len(resp.Jobs) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "no jobs")
					return nil
				}
				rows := make([][]string, 0, len(resp.Jobs))
				for _, job := range resp.Jobs {
					rows = append(rows, []string{
						strconv.FormatInt(job.ID, 10),
						job.Name,
						formatDuration(job.DurationSeconds),
						job.Schedule,
						job.Status,
						yesNo(job.CaptureVideo),
						formatTime(job.NextFire),
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"ID", "NAME", "DURATION", "SCHEDULE", "STATUS", "VIDEO", "NEXT FIRE"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignRight, alignLeft, alignLeft, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&pendingOnly, "pending", false, "show only jobs that can still fire")
	return cmd
}

func newJobShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one job in detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseJobID(args[0])
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.JobGet(id)
				if err != nil {
					return err
				}
				job := resp.Job
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Job %d: %s\n", job.ID, job.Name)
				fmt.Fprintf(out, "  duration:       %s\n", formatDuration(job.DurationSeconds))
				fmt.Fprintf(out, "  schedule:       %s\n", job.Schedule)
				fmt.Fprintf(out, "  status:         %s\n", job.Status)
				fmt.Fprintf(out, "  video:          %s\n", yesNo(job.CaptureVideo))
				fmt.Fprintf(out, "  allow override: %s\n", yesNo(job.AllowOverride))
				fmt.Fprintf(out, "  created:        %s\n", job.CreatedAt.Local().Format(startTimeLayout))
				fmt.Fprintf(out, "  next fire:      %s\n", formatTime(job.NextFire))
				fmt.Fprintf(out, "  last executed:  %s\n", formatTime(job.LastExecutedAt))
				if job.Notes != "" {
					fmt.Fprintf(out, "  notes:          %s\n", job.Notes)
				}
				return nil
			})
		},
	}
}

func newJobUpdateCommand(ctx *commandContext) *cobra.Command {
	var (
		name          string
		duration      int
		notes         string
		start         string
		recurrence    string
		at            string
		days          string
		dayOfMonth    int
		allowOverride bool
		video         bool
	)

	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update fields on a job; unset flags keep their stored values",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseJobID(args[0])
			if err != nil {
				return err
			}

			req := ipc.JobUpdateRequest{ID: id}
			if cmd.Flags().Changed("name") {
				req.Name = &name
			}
			if cmd.Flags().Changed("duration") {
				req.DurationSeconds = &duration
			}
			if cmd.Flags().Changed("notes") {
				req.Notes = &notes
			}
			if cmd.Flags().Changed("start") {
				startAt, err := parseStartTime(start)
				if err != nil {
					return err
				}
				req.StartAt = startAt
			}
			if cmd.Flags().Changed("recurrence") {
				pattern, err := parsePatternFlags(recurrence, at, days, dayOfMonth)
				if err != nil {
					return err
				}
				req.Pattern = pattern
			}
			if cmd.Flags().Changed("allow-override") {
				req.AllowOverride = &allowOverride
			}
			if cmd.Flags().Changed("video") {
				req.CaptureVideo = &video
			}

			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.JobUpdate(req)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "updated job %d, fires %s\n", resp.Job.ID, resp.Job.Schedule)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "new job name")
	cmd.Flags().IntVarP(&duration, "duration", "d", 0, "new capture duration in seconds")
	cmd.Flags().StringVar(&notes, "notes", "", "new notes")
	cmd.Flags().StringVar(&start, "start", "", "new one-time start (\"2006-01-02 15:04\")")
	cmd.Flags().StringVar(&recurrence, "recurrence", "", "new recurrence kind")
	cmd.Flags().StringVar(&at, "at", "", "recurring time of day, HH:MM")
	cmd.Flags().StringVar(&days, "days", "", "weekly: comma-separated weekdays")
	cmd.Flags().IntVar(&dayOfMonth, "day-of-month", 0, "monthly: day of month")
	cmd.Flags().BoolVar(&allowOverride, "allow-override", false, "permit durations above the default ceiling")
	cmd.Flags().BoolVar(&video, "video", false, "also capture the camera stream")

	return cmd
}

func newJobRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>",
		Short: "Delete a job; its instance history stays until cleanup",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseJobID(args[0])
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				if _, err := client.JobDelete(id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "removed job %d\n", id)
				return nil
			})
		},
	}
}
