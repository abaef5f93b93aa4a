package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/keshon/basicbot/internal/config"
	"github.com/keshon/basicbot/internal/version"
	"github.com/spf13/cobra"

	_ "github.com/keshon/basicbot/internal/extension/core"
	_ "github.com/keshon/basicbot/internal/extension/info"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var opts runOptions

	root := &cobra.Command{
		Use:   version.AppName,
		Short: version.AppDescription,
		Long: `Connects to Discord and serves prefix commands from hot-reloadable
extensions. The owner can load, unload and reload extensions, reload the
config and evaluate debug expressions without restarting.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			opts.console = cmd.ErrOrStderr()
			return run(ctx, opts)
		},
	}
	root.Flags().StringVar(&opts.configPath, "config", config.DefaultPath, "path to the config document")
	root.Flags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file with environment overrides")

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), versionLine())
		},
	})

	return root
}

func versionLine() string {
	line := version.AppName
	for _, part := range []string{version.BuildDate, version.GoVersion, version.Commit} {
		if part != "" {
			line += " " + part
		}
	}
	return line
}
