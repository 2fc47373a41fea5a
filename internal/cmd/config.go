package cmd

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/Iron-Ham/taskscope/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or modify taskscope configuration",
	Long: `View or modify taskscope configuration.

Without arguments, displays the current configuration.
Use subcommands to modify settings or create a config file.`,
	RunE: runConfigShow,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE:  runConfigShow,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Set a configuration value in the config file.

Keys use dot notation, e.g.:
  taskscope config set api.base_url https://tasks.example.com
  taskscope config set search.debounce_ms 150
  taskscope config set realtime.channels ops,releases

List values are comma separated. Run "taskscope config show" to see every key.`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a default config file",
	Long:  `Create a default config file at ~/.config/taskscope/config.yaml with all available options.`,
	RunE:  runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show the config file path",
	RunE:  runConfigPath,
}

var (
	configShowYAML  bool
	configInitForce bool
)

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)

	configShowCmd.Flags().BoolVar(&configShowYAML, "yaml", false, "Print only the YAML document")
	configInitCmd.Flags().BoolVarP(&configInitForce, "force", "f", false, "Overwrite an existing config file")
}

// keyKind is the value type of a settable key.
type keyKind int

const (
	kindString keyKind = iota
	kindInt
	kindBool
	kindList
)

var settableKeys = map[string]keyKind{
	"api.base_url":                kindString,
	"api.timeout_ms":              kindInt,
	"api.token":                   kindString,
	"realtime.enabled":            kindBool,
	"realtime.url":                kindString,
	"realtime.connection_type":    kindString,
	"realtime.channels":           kindList,
	"realtime.subscribe_patterns": kindList,
	"realtime.reconnect_delay_ms": kindInt,
	"search.debounce_ms":          kindInt,
	"search.page_size":            kindInt,
	"search.sort_field":           kindString,
	"search.sort_direction":       kindString,
	"search.invalidation":         kindString,
	"logging.enabled":             kindBool,
	"logging.level":               kindString,
	"logging.dir":                 kindString,
	"metrics.enabled":             kindBool,
	"metrics.address":             kindString,
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Never print the token.
	shown := *cfg
	if shown.API.Token != "" {
		shown.API.Token = "********"
	}
	data, err := yaml.Marshal(&shown)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if !configShowYAML {
		if used := viper.ConfigFileUsed(); used != "" {
			fmt.Fprintf(out, "# Config file: %s\n", used)
		} else {
			fmt.Fprintln(out, "# Config file: (none - using defaults)")
		}
	}
	_, err = out.Write(data)
	return err
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	key, raw := args[0], args[1]

	kind, ok := settableKeys[key]
	if !ok {
		return fmt.Errorf("unknown configuration key: %s\nValid keys: %s", key, strings.Join(sortedKeys(), ", "))
	}
	value, err := parseValue(kind, raw)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}

	path := targetConfigFile()
	doc, err := readConfigDoc(path)
	if err != nil {
		return err
	}
	setNested(doc, key, value)

	if err := validateDoc(doc); err != nil {
		return err
	}
	if err := writeConfigDoc(path, doc); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %v\n", key, value)
	fmt.Fprintf(cmd.OutOrStdout(), "Config saved to %s\n", path)
	return nil
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := targetConfigFile()

	if _, err := os.Stat(path); err == nil && !configInitForce {
		return fmt.Errorf("config file already exists at %s\nUse 'taskscope config set' to modify values or --force to overwrite", path)
	}

	data, err := yaml.Marshal(config.Default())
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	var buf bytes.Buffer
	buf.WriteString("# taskscope configuration\n")
	buf.WriteString("# Environment variables override any key: TASKSCOPE_<SECTION>_<KEY>,\n")
	buf.WriteString("# e.g. TASKSCOPE_API_BASE_URL for api.base_url.\n\n")
	buf.Write(data)

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Created config file at %s\n", path)
	fmt.Fprintln(cmd.OutOrStdout(), "Edit this file to customize taskscope's behavior.")
	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	if used := viper.ConfigFileUsed(); used != "" {
		fmt.Fprintf(out, "Active config: %s\n", used)
	} else {
		fmt.Fprintf(out, "Default path: %s (not created)\n", config.ConfigFile())
	}

	fmt.Fprintln(out, "\nSearch paths:")
	fmt.Fprintf(out, "  1. %s\n", config.ConfigFile())
	fmt.Fprintln(out, "  2. ./config.yaml (current directory)")
	fmt.Fprintln(out, "\nEnvironment variables: TASKSCOPE_* (e.g., TASKSCOPE_SEARCH_DEBOUNCE_MS)")
	return nil
}

// targetConfigFile is the file set and init write to: the --config file
// when given, else the default location.
func targetConfigFile() string {
	if f := viper.GetString("config"); f != "" {
		return f
	}
	return config.ConfigFile()
}

func parseValue(kind keyKind, raw string) (any, error) {
	switch kind {
	case kindInt:
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("expected integer")
		}
		return n, nil
	case kindBool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("expected true or false")
		}
		return b, nil
	case kindList:
		items := []string{}
		for _, item := range strings.Split(raw, ",") {
			if item = strings.TrimSpace(item); item != "" {
				items = append(items, item)
			}
		}
		return items, nil
	default:
		return raw, nil
	}
}

func readConfigDoc(path string) (map[string]any, error) {
	doc := map[string]any{}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return doc, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if doc == nil {
		doc = map[string]any{}
	}
	return doc, nil
}

func writeConfigDoc(path string, doc map[string]any) error {
	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// setNested stores value under a dotted key, creating sections as needed.
func setNested(doc map[string]any, key string, value any) {
	parts := strings.Split(key, ".")
	m := doc
	for _, p := range parts[:len(parts)-1] {
		next, ok := m[p].(map[string]any)
		if !ok {
			next = map[string]any{}
			m[p] = next
		}
		m = next
	}
	m[parts[len(parts)-1]] = value
}

// validateDoc checks doc layered over the defaults.
func validateDoc(doc map[string]any) error {
	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	cfg := config.Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(cfg); err != nil && err != io.EOF {
		return fmt.Errorf("invalid config: %w", err)
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return config.ValidationErrors(errs)
	}
	return nil
}

func sortedKeys() []string {
	keys := make([]string, 0, len(settableKeys))
	for k := range settableKeys {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
