package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"perch/internal/ipc"
)

func newStorageCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "storage",
		Short: "Show recording disk capacity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Storage()
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "recordings: %s\n", resp.Path)
				fmt.Fprintf(out, "  total: %s\n", humanize.IBytes(uint64(resp.TotalBytes)))
				fmt.Fprintf(out, "  used:  %s\n", humanize.IBytes(uint64(resp.UsedBytes)))
				fmt.Fprintf(out, "  free:  %s (~%.1f hours of audio)\n",
					humanize.IBytes(uint64(resp.FreeBytes)), resp.EstimatedHours)
				return nil
			})
		},
	}
}
