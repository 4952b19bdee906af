package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/catkin/xylem/pkg/config"
	"github.com/catkin/xylem/pkg/errors"
)

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Rebuild the rules database from the configured sources",
	Long: `Reads all rule files from the sources directory in precedence order,
expands and merges them, and atomically replaces the cached database
snapshot that resolve and lookup query.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		system, err := newSystem()
		if err != nil {
			return err
		}
		db, buildErrs, err := system.Update()
		if err != nil {
			return err
		}
		for _, buildErr := range buildErrs {
			fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", buildErr)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "updated database with %d keys (%d problems)\n",
			len(db.Keys), len(buildErrs))
		return nil
	},
}

var resolveCmd = &cobra.Command{
	Use:   "resolve <key>...",
	Short: "Resolve keys to an installer and native packages",
	Long: `Resolves each key against the cached database for the current (or
overridden) platform and prints the arbitrated installer and package
list. Failures for one key do not stop resolution of the others.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		system, err := newSystem()
		if err != nil {
			return err
		}
		db, err := system.LoadDatabase()
		if err != nil {
			return err
		}
		platform, features, err := system.Platform()
		if err != nil {
			return err
		}
		ictx, err := system.InstallerContext(platform)
		if err != nil {
			return err
		}

		outcomes := system.ResolveAll(db, args, platform, features, ictx)
		failed := 0
		for _, outcome := range outcomes {
			if outcome.Err != nil {
				failed++
				fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", outcome.Key, outcome.Err)
				continue
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s: %s\n",
				outcome.Key, outcome.Resolution.Installer,
				strings.Join(outcome.Resolution.Packages, " "))
		}
		if failed > 0 {
			return errors.Newf(errors.ErrNoResolution,
				"%d of %d keys failed to resolve", failed, len(outcomes))
		}
		return nil
	},
}

var lookupCmd = &cobra.Command{
	Use:   "lookup <key>",
	Short: "Show all installer rules applicable to a key",
	Long: `Prints the full installer dict the OS resolver produces for a key on
the current platform, before installer arbitration. Useful for
debugging rule files.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		system, err := newSystem()
		if err != nil {
			return err
		}
		db, err := system.LoadDatabase()
		if err != nil {
			return err
		}
		platform, features, err := system.Platform()
		if err != nil {
			return err
		}
		dict, err := system.Lookup(db, args[0], platform, features)
		if err != nil {
			return err
		}
		if len(dict) == 0 {
			fmt.Fprintf(cmd.OutOrStdout(),
				"%s: no rule for %s\n", args[0], platform)
			return nil
		}
		raw := make(map[string]interface{}, len(dict))
		for name, rule := range dict {
			raw[name] = map[string]interface{}{"packages": rule.Packages}
		}
		out, err := yaml.Marshal(map[string]interface{}{args[0]: raw})
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), string(out))
		return nil
	},
}

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "List all keys resolvable on the current platform",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		system, err := newSystem()
		if err != nil {
			return err
		}
		db, err := system.LoadDatabase()
		if err != nil {
			return err
		}
		platform, _, err := system.Platform()
		if err != nil {
			return err
		}
		for _, key := range system.Keys(db, platform) {
			fmt.Fprintln(cmd.OutOrStdout(), key)
		}
		return nil
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage xylem configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter config file with the effective defaults",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configPath
		if err := config.WriteDefault(path); err != nil {
			return err
		}
		if path == "" {
			path = config.UserConfigPath()
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configInitCmd)
}
