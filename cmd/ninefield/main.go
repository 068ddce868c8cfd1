// Command ninefield runs the governed nine-field decision engine.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/danielpatrickdp/adaptive-state/ninefield/internal/config"
	"github.com/danielpatrickdp/adaptive-state/ninefield/internal/logging"
)

// #region root
type rootOptions struct {
	configPath string
	logLevel   string
	verbose    bool
	small      bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "ninefield",
		Short:         "Governed nine-field decision engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "YAML config overlaid on the defaults")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", envOr("NINEFIELD_LOG_LEVEL", "info"), "debug, info, warn or error")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "human-readable console logging")
	root.PersistentFlags().BoolVar(&opts.small, "small", false, "use the reduced model widths when no config file is given")

	root.AddCommand(newRunCmd(opts))
	root.AddCommand(newInspectCmd())
	root.AddCommand(newServePolicyCmd(opts))
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// #endregion root

// #region helpers
func (o *rootOptions) loadConfig() (config.Config, error) {
	if o.configPath != "" {
		return config.Load(o.configPath)
	}
	if o.small {
		return config.Small(), nil
	}
	return config.Default(), nil
}

func (o *rootOptions) logger() (*zap.Logger, error) {
	return logging.New(o.logLevel, o.verbose)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// #endregion helpers
