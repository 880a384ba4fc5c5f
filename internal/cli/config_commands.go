package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/vaultsync/vaultsync/internal/api"
	"github.com/vaultsync/vaultsync/internal/config"
)

// newConfigCmd creates the 'config' command group.
func newConfigCmd() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage vaultsync configuration",
		Long: `Configuration management commands for vaultsync.

Commands:
  init  - Interactive configuration setup
  show  - Display current configuration
  test  - Test server connection
  path  - Show configuration file path`,
	}

	configCmd.AddCommand(newConfigInitCmd())
	configCmd.AddCommand(newConfigShowCmd())
	configCmd.AddCommand(newConfigTestCmd())
	configCmd.AddCommand(newConfigPathCmd())

	return configCmd
}

// newConfigInitCmd creates the 'config init' command.
func newConfigInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize configuration interactively",
		Long: `Interactive configuration setup for vaultsync.

Use --force to overwrite existing configuration.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath := cfgFile
			if configPath == "" {
				var err error
				configPath, err = config.DefaultConfigPath()
				if err != nil {
					return err
				}
			}

			if !force {
				if _, err := os.Stat(configPath); err == nil {
					fmt.Printf("Configuration already exists at: %s\n", configPath)
					fmt.Println("Use --force to overwrite or run 'config show' to view current config.")
					return nil
				}
			}

			fmt.Println("vaultsync Configuration Setup")
			fmt.Println("=============================")
			fmt.Println()

			reader := bufio.NewReader(os.Stdin)
			cfg := config.New()

			var serverURL string
			for serverURL == "" {
				fmt.Print("Server URL (required): ")
				input, _ := reader.ReadString('\n')
				serverURL = strings.TrimSpace(input)
				if serverURL == "" {
					fmt.Println("  Error: server URL is required")
				}
			}
			cfg.ServerURL = serverURL

			var username string
			for username == "" {
				fmt.Print("Username (required): ")
				input, _ := reader.ReadString('\n')
				username = strings.TrimSpace(input)
				if username == "" {
					fmt.Println("  Error: username is required")
				}
			}
			cfg.Username = username

			var appPassword string
			for appPassword == "" {
				fmt.Print("App password (required): ")
				input, _ := reader.ReadString('\n')
				appPassword = strings.TrimSpace(input)
				if appPassword == "" {
					fmt.Println("  Error: app password is required")
				}
			}
			cfg.AppPassword = appPassword

			if err := config.Save(cfg, configPath); err != nil {
				return fmt.Errorf("failed to save configuration: %w", err)
			}

			fmt.Println()
			fmt.Printf("Configuration saved to: %s\n", configPath)
			fmt.Println("Run 'vaultsync config test' to verify the connection.")
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite existing configuration")
	return cmd
}

// newConfigShowCmd creates the 'config show' command.
func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			fmt.Println("Current configuration:")
			fmt.Printf("  Server URL:          %s\n", cfg.ServerURL)
			fmt.Printf("  Username:            %s\n", cfg.Username)
			fmt.Printf("  App password:        %s\n", maskSecret(cfg.AppPassword))
			fmt.Printf("  Temp directory:      %s\n", tempDirLabel(cfg.Upload.TempDir))
			fmt.Printf("  Lock retry delay:    %s\n", cfg.LockRetryDelay())
			fmt.Printf("  Lock retry ceiling:  %s\n", cfg.LockRetryCeiling())
			fmt.Printf("  Call timeout:        %s\n", cfg.CallTimeout())
			return nil
		},
	}
}

// newConfigTestCmd creates the 'config test' command.
func newConfigTestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "test",
		Short: "Test server connection",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			client, err := api.NewClient(cfg)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(GetContext(), cfg.CallTimeout())
			defer cancel()

			fmt.Printf("Testing connection to %s...\n", cfg.ServerURL)
			start := time.Now()
			encrypted, err := client.FolderEncryptionStatus(ctx, "/")
			if err != nil {
				return fmt.Errorf("connection test failed: %w", err)
			}

			fmt.Printf("Connection OK (%s)\n", time.Since(start).Round(time.Millisecond))
			if encrypted {
				fmt.Println("Root folder is end-to-end encrypted.")
			}
			return nil
		},
	}
}

// newConfigPathCmd creates the 'config path' command.
func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath := cfgFile
			if configPath == "" {
				var err error
				configPath, err = config.DefaultConfigPath()
				if err != nil {
					return err
				}
			}
			fmt.Println(configPath)
			return nil
		},
	}
}

func maskSecret(s string) string {
	if s == "" {
		return "(not set)"
	}
	if len(s) <= 4 {
		return "****"
	}
	return s[:2] + strings.Repeat("*", len(s)-4) + s[len(s)-2:]
}

func tempDirLabel(dir string) string {
	if dir == "" {
		return os.TempDir() + " (system default)"
	}
	return dir
}
