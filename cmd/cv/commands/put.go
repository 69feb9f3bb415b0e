package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"chunkvault/pkg/catalog"
	"chunkvault/pkg/ignore"
	"chunkvault/pkg/ingester"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var (
	putIgnore    []string
	putShowStats bool
)

var putCmd = &cobra.Command{
	Use:   "put <path>...",
	Short: "Chunk files or directories into the store",
	Long: `Cut every file under the given paths into content-defined chunks,
write new chunks to the store and print one recipe id per file.
Paths matched by .cvignore (in each directory argument) are skipped.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if CV == nil {
			return fmt.Errorf("app not initialized")
		}
		out := cmd.OutOrStdout()

		// Ctrl-C 时停止 ingest 并关闭 writer，队列里剩下的 chunk 直接丢弃
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		start := time.Now()
		w := CV.NewWriter()
		ing, err := CV.NewIngester(w)
		if err != nil {
			w.Close()
			return err
		}

		// 1. 所有文件共用一个 writer，写入会话只有一次
		var entries []ingester.FileEntry
		for _, target := range args {
			matcher, err := ignore.NewMatcher(target, putIgnore...)
			if err != nil {
				// target 是文件时没有 .cvignore，只用默认规则
				matcher, err = ignore.NewMatcher(filepath.Dir(target), putIgnore...)
				if err != nil {
					w.Close()
					return err
				}
			}
			found, err := ing.IngestPaths(ctx, target, matcher)
			if err != nil {
				w.Close()
				if errors.Is(err, context.Canceled) {
					return fmt.Errorf("interrupted, pending chunks discarded")
				}
				return fmt.Errorf("failed to ingest %s: %w", target, err)
			}
			entries = append(entries, found...)
		}

		// 2. 等待所有 chunk 落盘
		summary := w.OnProcessComplete()

		// 3. recipe 和 catalog 只在 chunk 都写完之后更新
		var total int64
		for _, e := range entries {
			if _, err := ingester.SaveRecipe(ctx, CV.FS, CV.ChunkRoot, e.Recipe); err != nil {
				return err
			}
			if CV.Catalog != nil {
				err := CV.Catalog.RecordFile(ctx, catalog.FileEntry{
					Path:     e.Path,
					RecipeID: e.Recipe.ID(),
					Size:     e.Recipe.TotalSize,
				})
				if err != nil {
					return err
				}
			}
			total += e.Recipe.TotalSize
			fmt.Fprintf(out, "%s  %s\n", e.Recipe.ID(), e.Path)
		}
		if CV.Catalog != nil {
			if _, err := CV.Catalog.RecordSummary(ctx, summary, CV.ChunkRoot); err != nil {
				return fmt.Errorf("failed to record session: %w", err)
			}
		}

		unique := summary.UniqueRecords()
		var deduped int
		for _, r := range summary.Records() {
			if r.Deduped {
				deduped++
			}
		}
		fmt.Fprintf(out, "Stored %d files (%s) as %d chunks (%d already present, %s on disk) in %s\n",
			len(entries), humanize.IBytes(uint64(total)), len(unique), deduped,
			humanize.IBytes(uint64(summary.TotalOutputSize())), time.Since(start).Round(time.Millisecond))

		if putShowStats {
			return CV.Stats.Report(out)
		}
		return nil
	},
}

func init() {
	putCmd.Flags().StringSliceVar(&putIgnore, "ignore", nil, "extra ignore patterns (gitignore syntax)")
	putCmd.Flags().BoolVar(&putShowStats, "stats", false, "print writer statistics")
	rootCmd.AddCommand(putCmd)
}
