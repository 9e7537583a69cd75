package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/ploston/dael/internal/style"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// configCmd is the `config show|get|set` subcommand tree spec.md §6 names:
// a CLI-side counterpart to the config_get/config_set built-ins
// (internal/tooling/builtin.go), operating on the configuration file on
// disk rather than one execution's in-memory snapshot. New command tree —
// the teacher has no layered config file of its own to inspect this way.
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect or edit the loaded configuration file",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the fully resolved configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		w := cmd.OutOrStdout()
		if loadedConfig == nil || loadedConfig.SourceFile == "" {
			style.Warning(w, "no configuration file loaded (configuration mode); showing built-in defaults only")
		}
		switch viper.GetString("output") {
		case "yaml":
			style.PrintYAML(w, loadedConfig)
		default:
			style.PrintJSON(w, loadedConfig)
		}
		return nil
	},
}

var configGetCmd = &cobra.Command{
	Use:   "get <path>",
	Short: "Read a dotted-path value from the loaded configuration",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tree, err := configAsMap()
		if err != nil {
			style.Error(cmd.OutOrStderr(), err.Error())
			return err
		}
		v, ok := getDottedPath(tree, args[0])
		if !ok {
			err := fmt.Errorf("config path %q is not set", args[0])
			style.Error(cmd.OutOrStderr(), err.Error())
			return err
		}
		w := cmd.OutOrStdout()
		if viper.GetString("output") == "yaml" {
			style.PrintYAML(w, v)
		} else {
			style.PrintJSON(w, v)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <path> <value>",
	Short: "Write a dotted-path value and persist it to the configuration file",
	Long: `Write a dotted-path value into the loaded configuration file and save
it back to disk. Requires a configuration file to already be loaded
(--config, $DAEL_CONFIG, ./dael-config.yaml, or ~/.dael/config.yaml); in
configuration mode there is no file to persist to.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if loadedConfig == nil || loadedConfig.SourceFile == "" {
			err := fmt.Errorf("no configuration file loaded; nothing to persist \"%s\" into", args[0])
			style.Error(cmd.OutOrStderr(), err.Error())
			return err
		}

		tree, err := configAsMap()
		if err != nil {
			style.Error(cmd.OutOrStderr(), err.Error())
			return err
		}
		setDottedPath(tree, args[0], coerceInputValue(args[1]))

		out, err := yaml.Marshal(tree)
		if err != nil {
			style.Error(cmd.OutOrStderr(), fmt.Sprintf("encoding configuration: %v", err))
			return err
		}
		if err := os.WriteFile(loadedConfig.SourceFile, out, 0o644); err != nil {
			style.Error(cmd.OutOrStderr(), fmt.Sprintf("writing %s: %v", loadedConfig.SourceFile, err))
			return err
		}
		style.Success(cmd.OutOrStdout(), fmt.Sprintf("set %s in %s", args[0], loadedConfig.SourceFile))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)
}

// configAsMap round-trips the typed Config back to a generic map via YAML,
// the same representation config_get/config_set operate on inside an
// execution (internal/execctx.ExecutionContext.config).
func configAsMap() (map[string]interface{}, error) {
	raw, err := yaml.Marshal(loadedConfig)
	if err != nil {
		return nil, fmt.Errorf("encoding loaded configuration: %w", err)
	}
	var tree map[string]interface{}
	if err := yaml.Unmarshal(raw, &tree); err != nil {
		return nil, fmt.Errorf("decoding loaded configuration: %w", err)
	}
	if tree == nil {
		tree = map[string]interface{}{}
	}
	return tree, nil
}

func getDottedPath(tree map[string]interface{}, path string) (interface{}, bool) {
	keys := strings.Split(path, ".")
	var current interface{} = tree
	for _, k := range keys {
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		current, ok = m[k]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

func setDottedPath(tree map[string]interface{}, path string, value interface{}) {
	keys := strings.Split(path, ".")
	current := tree
	for _, k := range keys[:len(keys)-1] {
		next, exists := current[k]
		nextMap, ok := next.(map[string]interface{})
		if !exists || !ok {
			nextMap = make(map[string]interface{})
			current[k] = nextMap
		}
		current = nextMap
	}
	current[keys[len(keys)-1]] = value
}
