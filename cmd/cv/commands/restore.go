package commands

import (
	"context"
	"errors"
	"fmt"

	"chunkvault/pkg/catalog"
	"chunkvault/pkg/core"

	"github.com/spf13/cobra"
)

var restoreOutput string

var restoreCmd = &cobra.Command{
	Use:   "restore <recipe-id|path>",
	Short: "Reassemble a file from its chunks",
	Long: `Load every chunk of a recipe, verify it and write the file.
The argument is a recipe id, or a path recorded in the catalog by 'cv put'.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if CV == nil {
			return fmt.Errorf("app not initialized")
		}
		ctx := cmd.Context()

		recipe, err := resolveRecipe(ctx, args[0])
		if err != nil {
			return err
		}

		exp := CV.NewExporter()
		if restoreOutput == "" || restoreOutput == "-" {
			return exp.RestoreFile(ctx, recipe, cmd.OutOrStdout())
		}
		if err := exp.RestoreToPath(ctx, recipe, restoreOutput); err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Restored %d bytes to %s\n", recipe.TotalSize, restoreOutput)
		return nil
	},
}

// resolveRecipe 先把参数当成 catalog 里的路径，找不到再当 recipe id
func resolveRecipe(ctx context.Context, arg string) (*core.FileRecipe, error) {
	id := arg
	if CV.Catalog != nil {
		entry, err := CV.Catalog.LookupFile(ctx, arg)
		switch {
		case err == nil:
			id = entry.RecipeID
		case !errors.Is(err, catalog.ErrFileNotFound):
			return nil, err
		}
	}
	return CV.NewExporter().LoadRecipe(ctx, id)
}

func init() {
	restoreCmd.Flags().StringVarP(&restoreOutput, "output", "o", "-", "output file, '-' for stdout")
	rootCmd.AddCommand(restoreCmd)
}
