package main

import (
	"fmt"
	"os"

	"github.com/Allen-B1/monitor-v3/internal/activity"
	"github.com/Allen-B1/monitor-v3/internal/config"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var checkCmd = &cobra.Command{
	Use:   "check PROCESS TITLE",
	Short: "Show how a window would be classified",
	Long:  `Show the open and active usage keys the client would record for a window.`,
	Example: `  monitor check firefox "Never Gonna Give You Up - YouTube — Mozilla Firefox"
  monitor check code "main.go - monitor-v3 - Visual Studio Code"`,
	Args: cobra.ExactArgs(2),
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	registry, err := buildRegistry(cfg.Client.SiteRules)
	if err != nil {
		return err
	}

	builder, err := activity.NewBuilder(registry, 1)
	if err != nil {
		return err
	}

	info := activity.WindowInfo{Process: args[0], Title: args[1]}
	open, active := builder.Keys(info)

	cyan := color.New(color.FgCyan, color.Bold)
	green := color.New(color.FgGreen, color.Bold)
	yellow := color.New(color.FgYellow)

	fmt.Fprintln(os.Stdout)
	cyan.Fprintln(os.Stdout, "Window")
	fmt.Fprintf(os.Stdout, "  Process:    %s\n", info.Process)
	fmt.Fprintf(os.Stdout, "  Title:      %s\n", info.Title)
	fmt.Fprintln(os.Stdout)
	cyan.Fprintln(os.Stdout, "Keys")
	fmt.Fprint(os.Stdout, "  Open:       ")
	green.Fprintln(os.Stdout, open.String())
	fmt.Fprint(os.Stdout, "  Active:     ")
	green.Fprintln(os.Stdout, active.String())
	if !active.HasSubprogram() {
		yellow.Fprintln(os.Stdout, "  (no subprogram rule matched)")
	}

	return nil
}
