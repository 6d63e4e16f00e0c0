package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"perch/internal/ipc"
)

func newTemplateCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "template",
		Short: "Manage reusable capture presets",
	}
	cmd.AddCommand(newTemplateAddCommand(ctx))
	cmd.AddCommand(newTemplateListCommand(ctx))
	cmd.AddCommand(newTemplateShowCommand(ctx))
	cmd.AddCommand(newTemplateUpdateCommand(ctx))
	cmd.AddCommand(newTemplateRemoveCommand(ctx))
	cmd.AddCommand(newTemplateApplyCommand(ctx))
	return cmd
}

func newTemplateAddCommand(ctx *commandContext) *cobra.Command {
	var (
		duration      int
		notes         string
		recurrence    string
		at            string
		days          string
		dayOfMonth    int
		allowOverride bool
		video         bool
	)

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Create a capture preset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pattern, err := parsePatternFlags(recurrence, at, days, dayOfMonth)
			if err != nil {
				return err
			}
			req := ipc.TemplateCreateRequest{
				Name:            args[0],
				DurationSeconds: duration,
				Pattern:         pattern,
				AllowOverride:   allowOverride,
				CaptureVideo:    video,
				Notes:           notes,
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.TemplateCreate(req)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "created template %d (%s)\n",
					resp.Template.ID, resp.Template.Summary)
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&duration, "duration", "d", 3600, "capture duration in seconds")
	cmd.Flags().StringVar(&notes, "notes", "", "free-form notes, copied onto jobs")
	cmd.Flags().StringVar(&recurrence, "recurrence", "", "recurrence kind: daily, weekly, or monthly (omit for one-time)")
	cmd.Flags().StringVar(&at, "at", "", "recurring time of day, HH:MM")
	cmd.Flags().StringVar(&days, "days", "", "weekly: comma-separated weekdays (sun,mon,... or 0-6)")
	cmd.Flags().IntVar(&dayOfMonth, "day-of-month", 0, "monthly: day of month, 1-31")
	cmd.Flags().BoolVar(&allowOverride, "allow-override", false, "permit durations above the default ceiling")
	cmd.Flags().BoolVar(&video, "video", false, "preset also captures the camera stream")

	return cmd
}

func newTemplateListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List capture presets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.TemplateList()
				if err != nil {
					return err
				}
				if len(resp.Templates) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "no templates")
					return nil
				}
				rows := make([][]string, 0, len(resp.Templates))
				for _, tpl := range resp.Templates {
					rule := "one-time"
					if tpl.Pattern != nil {
						rule = ipc.PatternFromWire(tpl.Pattern).Describe()
					}
					rows = append(rows, []string{
						strconv.FormatInt(tpl.ID, 10),
						tpl.Name,
						formatDuration(tpl.DurationSeconds),
						rule,
						yesNo(tpl.CaptureVideo),
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"ID", "NAME", "DURATION", "SCHEDULE", "VIDEO"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignRight, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}
}

func newTemplateShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one preset in detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseJobID(args[0])
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.TemplateGet(id)
				if err != nil {
					return err
				}
				tpl := resp.Template
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Template %d: %s\n", tpl.ID, tpl.Name)
				fmt.Fprintf(out, "  summary:        %s\n", tpl.Summary)
				fmt.Fprintf(out, "  duration:       %s\n", formatDuration(tpl.DurationSeconds))
				fmt.Fprintf(out, "  video:          %s\n", yesNo(tpl.CaptureVideo))
				fmt.Fprintf(out, "  allow override: %s\n", yesNo(tpl.AllowOverride))
				fmt.Fprintf(out, "  created:        %s\n", tpl.CreatedAt.Local().Format(startTimeLayout))
				fmt.Fprintf(out, "  updated:        %s\n", tpl.UpdatedAt.Local().Format(startTimeLayout))
				if tpl.Notes != "" {
					fmt.Fprintf(out, "  notes:          %s\n", tpl.Notes)
				}
				return nil
			})
		},
	}
}

func newTemplateUpdateCommand(ctx *commandContext) *cobra.Command {
	var (
		name          string
		duration      int
		notes         string
		recurrence    string
		at            string
		days          string
		dayOfMonth    int
		allowOverride bool
		video         bool
	)

	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update fields on a preset; unset flags keep their stored values",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseJobID(args[0])
			if err != nil {
				return err
			}

			req := ipc.TemplateUpdateRequest{ID: id}
			if cmd.Flags().Changed("name") {
				req.Name = &name
			}
			if cmd.Flags().Changed("duration") {
				req.DurationSeconds = &duration
			}
			if cmd.Flags().Changed("notes") {
				req.Notes = &notes
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
				resp, err := client.TemplateUpdate(req)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "updated template %d (%s)\n",
					resp.Template.ID, resp.Template.Summary)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "new preset name")
	cmd.Flags().IntVarP(&duration, "duration", "d", 0, "new capture duration in seconds")
	cmd.Flags().StringVar(&notes, "notes", "", "new notes")
	cmd.Flags().StringVar(&recurrence, "recurrence", "", "new recurrence kind")
	cmd.Flags().StringVar(&at, "at", "", "recurring time of day, HH:MM")
	cmd.Flags().StringVar(&days, "days", "", "weekly: comma-separated weekdays")
	cmd.Flags().IntVar(&dayOfMonth, "day-of-month", 0, "monthly: day of month")
	cmd.Flags().BoolVar(&allowOverride, "allow-override", false, "permit durations above the default ceiling")
	cmd.Flags().BoolVar(&video, "video", false, "preset also captures the camera stream")

	return cmd
}

func newTemplateRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>",
		Short: "Delete a preset; jobs created from it are untouched",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseJobID(args[0])
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				if _, err := client.TemplateDelete(id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "removed template %d\n", id)
				return nil
			})
		},
	}
}

func newTemplateApplyCommand(ctx *commandContext) *cobra.Command {
	var (
		name  string
		start string
	)

	cmd := &cobra.Command{
		Use:   "apply <id>",
		Short: "Create a job from a preset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseJobID(args[0])
			if err != nil {
				return err
			}
			startAt, err := parseStartTime(start)
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.TemplateApply(ipc.TemplateApplyRequest{
					ID:      id,
					JobName: name,
					StartAt: startAt,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "created job %d (%s), fires %s\n",
					resp.Job.ID, resp.Job.Name, resp.Job.Schedule)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "job name (default: the preset's name)")
	cmd.Flags().StringVar(&start, "start", "", "one-time start (\"2006-01-02 15:04\", local time; one-time presets only)")

	return cmd
}
