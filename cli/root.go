// Package cli implements the forgecli command surface: project and data
// file management, training control, and the live training monitor TUI.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ollaforge/forgecli/api"
	"github.com/ollaforge/forgecli/config"
)

// Version is stamped at build time.
var Version = "dev"

var serverFlag string

var rootCmd = &cobra.Command{
	Use:   "forgecli",
	Short: "Terminal front end for the OllaForge fine-tuning backend",
	Long: `forgecli manages fine-tuning projects on a local OllaForge backend:
create projects, upload JSONL training data, start and cancel training
jobs, and watch running jobs live in the terminal.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	Version:       Version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverFlag, "server", "", "Backend base URL (overrides config)")

	rootCmd.AddCommand(projectsCmd)
	rootCmd.AddCommand(filesCmd)
	rootCmd.AddCommand(trainCmd)
	rootCmd.AddCommand(presetsCmd)
	rootCmd.AddCommand(mcpCmd)
	rootCmd.AddCommand(configCmd)
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// loadConfig loads the user configuration, applying the --server override
// without persisting it.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if serverFlag != "" {
		cfg.Server.URL = serverFlag
	}
	return cfg, nil
}

// newAPIClient builds the REST client from configuration and flags.
func newAPIClient() (*api.Client, *config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	return api.NewClient(cfg.Server.URL), cfg, nil
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage forgecli configuration",
}

var configSetServerCmd = &cobra.Command{
	Use:   "set-server <url>",
	Short: "Set and persist the backend URL",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		if err := cfg.SetServerURL(args[0]); err != nil {
			return err
		}
		fmt.Printf("Backend URL set to %s\n", args[0])
		return nil
	},
}

var configSetModelCmd = &cobra.Command{
	Use:   "set-model <model>",
	Short: "Set and persist the default base model",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		if err := cfg.SetDefaultModel(args[0]); err != nil {
			return err
		}
		fmt.Printf("Default model set to %s\n", args[0])
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		fmt.Printf("Server URL:     %s\n", cfg.Server.URL)
		fmt.Printf("Default model:  %s\n", orNone(cfg.Defaults.Model))
		fmt.Printf("Quantization:   %s\n", orNone(cfg.Defaults.Quantization))
		return nil
	},
}

func init() {
	configCmd.AddCommand(configSetServerCmd)
	configCmd.AddCommand(configSetModelCmd)
	configCmd.AddCommand(configShowCmd)
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
