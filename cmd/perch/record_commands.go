package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"perch/internal/ipc"
)

func newRecordCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "record",
		Short: "Start, stop, and inspect manual captures",
	}
	cmd.AddCommand(newRecordStartCommand(ctx))
	cmd.AddCommand(newRecordStopCommand(ctx))
	cmd.AddCommand(newRecordStatusCommand(ctx))
	return cmd
}

func newRecordStartCommand(ctx *commandContext) *cobra.Command {
	var (
		duration      int
		allowOverride bool
		video         bool
	)

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a capture now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.RecordStart(ipc.RecordStartRequest{
					Class:           captureClass(video),
					DurationSeconds: duration,
					AllowOverride:   allowOverride,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s capture started, session %s (pid %d)\n",
					captureClass(video), resp.SessionID, resp.PID)
				for _, path := range resp.OutputFiles {
					fmt.Fprintf(cmd.OutOrStdout(), "  -> %s\n", path)
				}
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&duration, "duration", "d", 3600, "capture duration in seconds")
	cmd.Flags().BoolVar(&allowOverride, "allow-override", false, "permit durations above the default ceiling")
	cmd.Flags().BoolVar(&video, "video", false, "capture the camera stream instead of audio")

	return cmd
}

func newRecordStopCommand(ctx *commandContext) *cobra.Command {
	var video bool

	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the running capture",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.RecordStop(captureClass(video))
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if !resp.Stopped {
					fmt.Fprintf(out, "no %s capture running\n", captureClass(video))
					return nil
				}
				if resp.Succeeded {
					fmt.Fprintln(out, "capture stopped")
				} else {
					fmt.Fprintf(out, "capture stopped with error: %s\n", resp.Error)
				}
				for _, path := range resp.OutputFiles {
					fmt.Fprintf(out, "  -> %s\n", path)
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&video, "video", false, "stop the camera capture instead of audio")
	return cmd
}

func newRecordStatusCommand(ctx *commandContext) *cobra.Command {
	var video bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the current capture session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.RecordStatus(captureClass(video))
				if err != nil {
					return err
				}
				printSession(cmd, resp.Session)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&video, "video", false, "show the camera capture instead of audio")
	return cmd
}

func printSession(cmd *cobra.Command, session ipc.SessionPayload) {
	out := cmd.OutOrStdout()
	if !session.Active {
		fmt.Fprintf(out, "%s: idle\n", session.Class)
		return
	}
	fmt.Fprintf(out, "%s: recording (session %s, pid %d)\n", session.Class, session.SessionID, session.PID)
	fmt.Fprintf(out, "  elapsed:   %s of %s\n",
		formatDuration(session.ElapsedSeconds), formatDuration(session.DurationSeconds))
	fmt.Fprintf(out, "  remaining: %s\n", formatDuration(session.RemainingSeconds))
	if session.JobID != 0 {
		fmt.Fprintf(out, "  job:       %d (%s)\n", session.JobID, session.JobName)
	}
	if len(session.OutputFiles) > 0 {
		fmt.Fprintf(out, "  outputs:   %s\n", strings.Join(session.OutputFiles, ", "))
	}
}
