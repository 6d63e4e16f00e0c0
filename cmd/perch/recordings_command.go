package main

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

type recordingFile struct {
	path    string
	size    int64
	modTime time.Time
}

func newRecordingsCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "recordings",
		Short: "List captured files, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			files := collectRecordings(cfg.Paths.RecordingsDir)
			files = append(files, collectRecordings(cfg.Paths.VideoDir)...)
			sort.Slice(files, func(i, j int) bool {
				return files[i].modTime.After(files[j].modTime)
			})
			if limit > 0 && len(files) > limit {
				files = files[:limit]
			}

			out := cmd.OutOrStdout()
			if len(files) == 0 {
				fmt.Fprintln(out, "no recordings")
				return nil
			}
			rows := make([][]string, 0, len(files))
			for _, f := range files {
				rows = append(rows, []string{
					f.modTime.Local().Format(startTimeLayout),
					humanize.IBytes(uint64(f.size)),
					f.path,
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"MODIFIED", "SIZE", "PATH"},
				rows,
				[]columnAlignment{alignLeft, alignRight, alignLeft},
			))
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum files to list (0 for all)")
	return cmd
}

func collectRecordings(root string) []recordingFile {
	var files []recordingFile
	_ = filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil || entry.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".wav", ".mp4":
		default:
			return nil
		}
		info, err := entry.Info()
		if err != nil {
			return nil
		}
		files = append(files, recordingFile{path: path, size: info.Size(), modTime: info.ModTime()})
		return nil
	})
	return files
}
