package main

import (
	"fmt"
	"os"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
)

var configShowReveal bool

func init() {
	configShowCmd.Flags().BoolVar(&configShowReveal, "reveal", false, "Show the access token unmasked")
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage portal CLI configuration",
	Long:  "View or modify the portal CLI configuration stored in ~/.portal/config.toml.\nPORTAL_BASE_URL, PORTAL_ACCESS_TOKEN and PORTAL_LOG_LEVEL override the file at runtime.",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the current configuration file",
	Long:  "Print ~/.portal/config.toml with the access token masked. Pass --reveal to show it in full.",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := configPath()
		if err != nil {
			return err
		}
		if _, err := os.Stat(path); os.IsNotExist(err) {
			fmt.Println("No configuration file found. Run 'portal init <access-token>' to create one.")
			return nil
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		data, err := renderConfig(cfg, configShowReveal)
		if err != nil {
			return err
		}
		fmt.Print(string(data))
		return nil
	},
}

// renderConfig encodes cfg as TOML for display. Unless reveal is set the
// access token is masked.
func renderConfig(cfg *Config, reveal bool) ([]byte, error) {
	shown := *cfg
	if !reveal && shown.Auth.AccessToken != "" {
		shown.Auth.AccessToken = maskKey(shown.Auth.AccessToken)
	}
	data, err := toml.Marshal(&shown)
	if err != nil {
		return nil, fmt.Errorf("cannot marshal config: %w", err)
	}
	return data, nil
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long:  "Set a configuration value using dot notation.\nExample: portal config set default.base_url https://portal.example.edu",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		if err := setConfigValue(cfg, key, value); err != nil {
			return err
		}

		if err := saveConfig(cfg); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}

		if key == "auth.access_token" {
			value = maskKey(value)
		}
		fmt.Printf("Set %s = %s\n", key, value)
		return nil
	},
}
