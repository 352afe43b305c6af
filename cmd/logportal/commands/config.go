package commands

import (
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"

	"github.com/SpatiumPortae/logportal/cmd/logportal/config"
	"github.com/alecthomas/chroma/quick"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/exp/slices"
)

func Config() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "View and configure options",
	}
	configCmd.AddCommand(
		configPathCmd(),
		configViewCmd(),
		configGetCmd(),
		configSetCmd(),
		configEditCmd(),
		configResetCmd(),
	)
	return configCmd
}

func configKeys() []string {
	var keys []string
	for k := range config.GetDefault().Map() {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func validateConfigKey(key string) error {
	if !slices.Contains(configKeys(), key) {
		return fmt.Errorf("unknown config key %q, expected one of: %s", key, strings.Join(configKeys(), ", "))
	}
	return nil
}

func completeConfigKeys(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if len(args) > 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	return configKeys(), cobra.ShellCompDirectiveNoFileComp
}

func configPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Output the path of the config file",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(viper.ConfigFileUsed())
		},
	}
}

func configViewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "view",
		Short: "View the configured options",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath := viper.ConfigFileUsed()
			contents, err := os.ReadFile(configPath)
			if err != nil {
				return fmt.Errorf("config file (%s) could not be read: %w", configPath, err)
			}
			if err := quick.Highlight(os.Stdout, string(contents), "yaml", "terminal256", "onedark"); err != nil {
				// Failed to highlight output, output un-highlighted config file contents.
				fmt.Println(string(contents))
			}
			return nil
		},
	}
}

func configGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:               "get <key>",
		Short:             "Output the value of an option",
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: completeConfigKeys,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateConfigKey(args[0]); err != nil {
				return err
			}
			value := fmt.Sprint(viper.Get(args[0]))
			if config.IsDefault(args[0]) {
				value += " (default)"
			}
			fmt.Println(value)
			return nil
		},
	}
}

func configSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:               "set <key> <value>",
		Short:             "Set an option in the configuration file",
		Args:              cobra.ExactArgs(2),
		ValidArgsFunction: completeConfigKeys,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateConfigKey(args[0]); err != nil {
				return err
			}
			viper.Set(args[0], args[1])
			if err := viper.WriteConfig(); err != nil {
				return fmt.Errorf("config file (%s) could not be written: %w", viper.ConfigFileUsed(), err)
			}
			return nil
		},
	}
}

func configEditCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "edit",
		Short: "Edit the configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath := viper.ConfigFileUsed()
			// Strip arguments from editor variable -- allows exec.Command to lookup the editor executable correctly.
			editor, _, _ := strings.Cut(os.Getenv("EDITOR"), " ")
			if len(editor) == 0 {
				//lint:ignore ST1005 error string is command output
				return fmt.Errorf(
					"Could not find default editor (is the $EDITOR variable set?)\nOptionally you can open the file (%s) manually", configPath,
				)
			}

			editorCmd := exec.Command(editor, configPath)
			editorCmd.Stdin = os.Stdin
			editorCmd.Stdout = os.Stdout
			editorCmd.Stderr = os.Stderr
			if err := editorCmd.Run(); err != nil {
				return fmt.Errorf("failed to open file (%s) in editor (%s): %w", configPath, editor, err)
			}
			return nil
		},
	}
}

func configResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Reset to the default configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath := viper.ConfigFileUsed()
			if err := os.WriteFile(configPath, config.GetDefault().Yaml(), 0644); err != nil {
				return fmt.Errorf("config file (%s) could not be written to: %w", configPath, err)
			}
			return nil
		},
	}
}
