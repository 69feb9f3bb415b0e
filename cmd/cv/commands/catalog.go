package commands

import (
	"fmt"
	"io"
	"text/tabwriter"

	"chunkvault/pkg/catalog"
	"chunkvault/pkg/types"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var sessionsLimit int

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Query the chunk catalog",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// 子命令覆盖了 root 的 hook，要手动调一次
		if err := rootCmd.PersistentPreRunE(cmd, args); err != nil {
			return err
		}
		if CV.Catalog == nil {
			return fmt.Errorf("catalog is disabled (catalog.type=none)")
		}
		return nil
	},
}

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List write sessions, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		sessions, err := CV.Catalog.ListSessions(cmd.Context(), sessionsLimit)
		if err != nil {
			return err
		}
		if len(sessions) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No sessions yet.")
			return nil
		}
		return printSessions(sessions, cmd.OutOrStdout())
	},
}

var chunkCmd = &cobra.Command{
	Use:   "chunk <chunk-id>",
	Short: "Show where a chunk is stored",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := types.ParseChunkID(args[0])
		if err != nil {
			return fmt.Errorf("invalid chunk id '%s': %w", args[0], err)
		}
		entry, err := CV.Catalog.GetChunk(cmd.Context(), id)
		if err != nil {
			return err
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 1, ' ', 0)
		fmt.Fprintf(tw, "ID:\t%s\n", entry.ID)
		fmt.Fprintf(tw, "File:\t%s\n", entry.Filename)
		fmt.Fprintf(tw, "Root:\t%s\n", entry.Root)
		fmt.Fprintf(tw, "Size:\t%s (%d bytes)\n", humanize.IBytes(uint64(entry.Size)), entry.Size)
		fmt.Fprintf(tw, "Rolling:\t%016X\n", entry.RollingHash)
		fmt.Fprintf(tw, "SHA1:\t%s\n", entry.SHA)
		fmt.Fprintf(tw, "Feature:\t%s\n", entry.FeatureLevel)
		fmt.Fprintf(tw, "Updated:\t%s\n", entry.UpdatedAt.Local().Format("Mon Jan 2 15:04:05 2006 -0700"))
		return tw.Flush()
	},
}

var fileCmd = &cobra.Command{
	Use:   "file <path>",
	Short: "Show the recipe recorded for a path",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		entry, err := CV.Catalog.LookupFile(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s  %s  %s  %s\n",
			entry.RecipeID, humanize.IBytes(uint64(entry.Size)), humanize.Time(entry.UpdatedAt), entry.Path)
		return nil
	},
}

func printSessions(sessions []catalog.Session, w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCREATED\tRECORDS\tUNIQUE\tDEDUPED\tWRITTEN\tROOT")
	for _, s := range sessions {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%d\t%d\t%s\t%s\n",
			s.ID, humanize.Time(s.CreatedAt), s.Stats.Records, s.Stats.Unique, s.Stats.Deduped,
			humanize.IBytes(uint64(s.Stats.OutputBytes)), s.Root)
	}
	return tw.Flush()
}

func init() {
	sessionsCmd.Flags().IntVarP(&sessionsLimit, "limit", "n", 20, "max sessions to show, 0 for all")
	catalogCmd.AddCommand(sessionsCmd, chunkCmd, fileCmd)
	rootCmd.AddCommand(catalogCmd)
}
