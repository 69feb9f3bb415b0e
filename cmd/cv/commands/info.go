package commands

import (
	"fmt"
	"strings"

	"chunkvault/pkg/core"
	"chunkvault/pkg/exporter"
	"chunkvault/pkg/serialization"
	"chunkvault/pkg/storage"

	"github.com/spf13/cobra"
)

var (
	infoRecipe  bool
	infoVerbose bool
)

var infoCmd = &cobra.Command{
	Use:   "info <chunk-file|recipe-id>",
	Short: "Show a chunk header or a recipe",
	Long: `Print the header of a chunk file (path inside the store), or with
--recipe the contents of a recipe.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if CV == nil {
			return fmt.Errorf("app not initialized")
		}
		ctx := cmd.Context()
		out := cmd.OutOrStdout()

		if infoRecipe {
			recipe, err := resolveRecipe(ctx, args[0])
			if err != nil {
				return err
			}
			return exporter.PrintRecipe(recipe, infoVerbose, out)
		}

		// 只读 header，不校验 payload
		size, err := CV.FS.GetFileSize(ctx, args[0])
		if err != nil {
			return fmt.Errorf("failed to stat %s: %w", args[0], err)
		}
		r, err := CV.FS.CreateReader(ctx, args[0])
		if err != nil {
			return err
		}
		defer r.Close()
		header, err := core.ReadHeader(r, size)
		if err != nil {
			return fmt.Errorf("%s: %w", args[0], err)
		}

		fmt.Fprintf(out, "File: %s (%d bytes)\n", args[0], size)
		return exporter.PrintHeader(*header, out)
	},
}

var verifyCmd = &cobra.Command{
	Use:   "verify <recipe-id|path|chunk-file>...",
	Short: "Load chunks and check their hashes",
	Long: `Verify every chunk referenced by the given recipes. An argument ending in
.chunk is loaded directly as a single chunk file.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if CV == nil {
			return fmt.Errorf("app not initialized")
		}
		ctx := cmd.Context()
		out := cmd.OutOrStdout()
		exp := CV.NewExporter()

		failures := 0
		for _, arg := range args {
			if isChunkFile(arg) {
				_, result := CV.Serializer.LoadFromFile(ctx, arg)
				fmt.Fprintf(out, "%s  %s\n", result, arg)
				if result != serialization.LoadSuccess {
					failures++
				}
				continue
			}

			recipe, err := resolveRecipe(ctx, arg)
			if err != nil {
				return err
			}
			failed, err := exp.VerifyRecipe(ctx, recipe)
			if err != nil {
				return err
			}
			for _, f := range failed {
				fmt.Fprintf(out, "FAIL  %s chunk %d: %v\n", arg, f.Index, f.Err)
			}
			if len(failed) == 0 {
				fmt.Fprintf(out, "OK  %s (%d chunks)\n", arg, len(recipe.Chunks))
			}
			failures += len(failed)
		}

		if failures > 0 {
			return fmt.Errorf("%d chunk(s) failed verification", failures)
		}
		return nil
	},
}

var injectHashCmd = &cobra.Command{
	Use:   "inject-hash <chunk-file>...",
	Short: "Add a SHA1 to chunk files that only carry a rolling hash",
	Long: `Load each chunk (verifying its rolling hash), compute the SHA1 of the
payload and rewrite the header at the latest version. Payload bytes are kept.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if CV == nil {
			return fmt.Errorf("app not initialized")
		}
		ctx := cmd.Context()
		out := cmd.OutOrStdout()

		for _, name := range args {
			data, err := storage.ReadFile(ctx, CV.FS, name)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", name, err)
			}
			access, result := CV.Serializer.LoadFromMemory(data)
			if access == nil {
				return fmt.Errorf("%s: load failed: %s", name, result)
			}
			header := access.Header()
			if header.HashFlags.Has(core.HashSha1) {
				fmt.Fprintf(out, "skip  %s (already has sha1)\n", name)
				continue
			}

			sha := core.Sha1(access.Payload())
			updated, err := serialization.InjectShaToChunkData(data, sha)
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			if err := storage.WriteFile(ctx, CV.FS, name, updated); err != nil {
				return fmt.Errorf("failed to write %s: %w", name, err)
			}
			fmt.Fprintf(out, "sha1  %s  %s\n", sha, name)
		}
		return nil
	},
}

func isChunkFile(name string) bool {
	return strings.HasSuffix(name, ".chunk")
}

func init() {
	infoCmd.Flags().BoolVar(&infoRecipe, "recipe", false, "argument is a recipe id or a catalog path")
	infoCmd.Flags().BoolVarP(&infoVerbose, "verbose", "v", false, "list every chunk of the recipe")
	rootCmd.AddCommand(infoCmd, verifyCmd, injectHashCmd)
}
