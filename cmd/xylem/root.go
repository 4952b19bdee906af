package main

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/catkin/xylem/internal/version"
	"github.com/catkin/xylem/pkg/config"
	"github.com/catkin/xylem/pkg/core"
	"github.com/catkin/xylem/pkg/logging"
)

var (
	verbosity  int
	configPath string
	osOverride string

	rootCmd = &cobra.Command{
		Use:   "xylem",
		Short: "Resolve logical dependency keys to native packages",
		Long: `xylem resolves package manager agnostic dependency keys (like "boost")
to the native packages of the current operating system, driven by
layered, OS and version conditioned rule files.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logging.SetupLogger(verbosity)
			log.Debug().Str("command", cmd.Name()).Msg("Command started")
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func init() {
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v",
		"Increase verbosity (-v INFO, -vv DEBUG, -vvv TRACE)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"Config file (default is "+config.UserConfigPath()+")")
	rootCmd.PersistentFlags().StringVar(&osOverride, "os", "",
		"Override OS detection as name[:version][&feature1,feature2]")

	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(lookupCmd)
	rootCmd.AddCommand(keysCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

// newSystem loads configuration and assembles the resolution system,
// applying command line overrides on top of the config file.
func newSystem() (*core.System, error) {
	cfg, err := config.LoadFrom(configPath)
	if err != nil {
		return nil, err
	}
	if osOverride != "" {
		cfg.OSOverride = osOverride
	}
	return core.NewSystem(cfg), nil
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("xylem version %s\n", version.Version)
		fmt.Printf("  commit: %s\n", version.Commit)
		fmt.Printf("  built:  %s\n", version.Date)
	},
}
