package commands

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"chunkvault/pkg/config"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a chunkvault repository",
	Long:  `Create an empty chunkvault repository with a default config.yaml, or leave an existing one untouched.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		repoPath := viper.GetString(config.KeyRepoPath)
		if repoPath == "" {
			return fmt.Errorf("repo path not set")
		}

		// 1. 检查是否已存在
		if _, err := os.Stat(repoPath); err == nil {
			fmt.Fprintf(out, "chunkvault repository already exists in %s\n", repoPath)
			return nil
		} else if !errors.Is(err, fs.ErrNotExist) {
			return err
		}

		// 2. 创建目录和配置模板
		if err := os.MkdirAll(repoPath, 0755); err != nil {
			return fmt.Errorf("failed to create repo directory: %w", err)
		}
		cfgPath := filepath.Join(repoPath, "config.yaml")
		if err := os.WriteFile(cfgPath, []byte(config.DefaultFileContent()), 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", cfgPath, err)
		}

		fmt.Fprintf(out, "Initialized empty chunkvault repository in %s\n", repoPath)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
