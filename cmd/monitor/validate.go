package main

import (
	"fmt"
	"os"
	"reflect"
	"sort"
	"strings"

	"github.com/Allen-B1/monitor-v3/internal/config"
	"github.com/Allen-B1/monitor-v3/internal/usage"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	validateDump     bool
	validateSnapshot string
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long: `Validate the Monitor configuration file for syntax and semantic errors.
With --snapshot, also check that a stored snapshot file decodes.`,
	RunE: runValidate,
}

func init() {
	validateCmd.Flags().BoolVar(&validateDump, "dump", false, "Dump full configuration with non-default values highlighted")
	validateCmd.Flags().StringVar(&validateSnapshot, "snapshot", "", "Snapshot file to decode")
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Configuration validation failed: %v\n", err)
		return err
	}

	unknownKeys, err := findUnknownKeys(configPath)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "⚠️  Warning: Could not check for unknown keys: %v\n", err)
	}

	_, _ = fmt.Fprintf(os.Stdout, "✅ Configuration is valid: %s\n", configPath)

	if len(unknownKeys) > 0 {
		red := color.New(color.FgRed, color.Bold)
		fmt.Fprintln(os.Stdout)
		red.Fprintf(os.Stdout, "⚠️  WARNING: Found %d unknown configuration key(s):\n", len(unknownKeys))
		for _, key := range unknownKeys {
			red.Fprintf(os.Stdout, "   - %s\n", key)
		}
		fmt.Fprintln(os.Stdout, "\nThese keys will be ignored and may indicate typos or deprecated settings.")
	}

	if validateDump {
		_, _ = fmt.Fprintln(os.Stdout, "\n"+strings.Repeat("=", 80))
		_, _ = fmt.Fprintln(os.Stdout, "FULL CONFIGURATION (values different from defaults are highlighted)")
		_, _ = fmt.Fprintln(os.Stdout, strings.Repeat("=", 80))
		dumpSection("", reflect.ValueOf(*cfg), reflect.ValueOf(*config.Defaults()))
	}

	if validateSnapshot != "" {
		if err := checkSnapshot(validateSnapshot); err != nil {
			fmt.Fprintf(os.Stderr, "❌ Snapshot validation failed: %v\n", err)
			return err
		}
	}

	return nil
}

// findUnknownKeys loads the config file and checks for unknown keys
func findUnknownKeys(configPath string) ([]string, error) {
	v := viper.New()
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	known := config.KnownKeys()
	unknown := []string{}
	for _, key := range v.AllKeys() {
		if !known[key] && !strings.HasPrefix(key, "client.site_rules.") {
			unknown = append(unknown, key)
		}
	}
	sort.Strings(unknown)

	return unknown, nil
}

// dumpSection prints every leaf of a config struct by its mapstructure key,
// highlighting values that differ from the defaults.
func dumpSection(prefix string, value, defaults reflect.Value) {
	highlight := color.New(color.FgYellow, color.Bold)
	typ := value.Type()

	for i := 0; i < typ.NumField(); i++ {
		field := typ.Field(i)
		key := field.Tag.Get("mapstructure")
		if prefix != "" {
			key = prefix + "." + key
		}

		current := value.Field(i)
		def := defaults.Field(i)

		if current.Kind() == reflect.Struct {
			dumpSection(key, current, def)
			continue
		}

		line := fmt.Sprintf("%-36s %v", key, formatValue(key, current))
		if reflect.DeepEqual(current.Interface(), def.Interface()) {
			fmt.Fprintln(os.Stdout, line)
		} else {
			highlight.Fprintln(os.Stdout, line)
		}
	}
}

func formatValue(key string, v reflect.Value) interface{} {
	if strings.HasSuffix(key, "password") && v.String() != "" {
		return "********"
	}
	if v.Kind() == reflect.String && v.String() == "" {
		return `""`
	}
	return v.Interface()
}

// checkSnapshot decodes a snapshot file and prints what it holds.
func checkSnapshot(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	snap, err := usage.DecodeSnapshot(data)
	if err != nil {
		return err
	}

	accounts := make([]string, 0, len(snap))
	for account := range snap {
		accounts = append(accounts, account)
	}
	sort.Strings(accounts)

	_, _ = fmt.Fprintf(os.Stdout, "✅ Snapshot is valid: %s (%d account(s))\n", path, len(accounts))
	for _, account := range accounts {
		state := snap[account]
		fmt.Fprintf(os.Stdout, "   - %s: %d device(s)\n", account, len(state.DeviceIDs()))
	}
	return nil
}
