package commands

import (
	"fmt"
	"os"

	"chunkvault/pkg/app"
	"chunkvault/pkg/config"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	// 全局应用实例，供子命令使用
	CV *app.App
)

var rootCmd = &cobra.Command{
	Use:           "cv",
	Short:         "chunkvault: content-addressed chunk storage",
	SilenceUsage:  true,
	SilenceErrors: true,
	// PersistentPreRunE 会在所有子命令执行前运行
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// init 就是去创建环境的；测试里可能已经注入了 CV
		if cmd.Name() == "init" || CV != nil {
			return nil
		}

		var err error
		CV, err = app.NewApp(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to initialize chunkvault: %w\n(Did you run 'cv init'?)", err)
		}
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if CV == nil {
			return nil
		}
		err := CV.Close()
		CV = nil
		return err
	},
}

// Execute 是入口
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is ./.cv/config.yaml or $HOME/.cv/config.yaml)")
	flags.String("repo", "", "repository directory (default ./.cv)")
	flags.String("storage-path", "", "directory to store chunks (disk storage)")
	flags.String("log-level", "", "log level: debug, info, warn, error")
	flags.Bool("no-color", false, "disable colored log output")

	// 用户既可以在 yaml 里写，也可以用参数覆盖
	mustBind(config.KeyRepoPath, "repo")
	mustBind(config.KeyStoragePath, "storage-path")
	mustBind(config.KeyLogLevel, "log-level")
	mustBind(config.KeyLogNoColor, "no-color")
}

func mustBind(key, flag string) {
	if err := viper.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
		fmt.Fprintln(os.Stderr, "Failed to bind flag:", err)
		os.Exit(1)
	}
}

// initConfig 读取配置文件和环境变量
func initConfig() {
	if err := config.Load(cfgFile); err != nil {
		fmt.Fprintln(os.Stderr, "Config error:", err)
		os.Exit(1)
	}
}
