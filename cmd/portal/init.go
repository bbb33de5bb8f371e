package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var (
	initBaseURL string
	initOffline bool
)

func init() {
	initCmd.Flags().StringVar(&initBaseURL, "base-url", "", "Portal API base URL")
	initCmd.Flags().BoolVar(&initOffline, "no-verify", false, "Store the token without checking it against the portal")
	rootCmd.AddCommand(initCmd)
}

var initCmd = &cobra.Command{
	Use:   "init <access-token>",
	Short: "Store a portal access token in ~/.portal/config.toml",
	Long:  "Initialize the portal CLI by storing your access token. Unless --no-verify is set, the token is\nchecked against /api/users/me and the user's id and name are stored alongside it.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		token := args[0]

		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		if exp, ok := tokenExpiry(token); ok && time.Now().After(exp) {
			return fmt.Errorf("token expired at %s", exp.Local().Format(time.RFC1123))
		}

		cfg.Auth.AccessToken = token
		if initBaseURL != "" {
			cfg.Default.BaseURL = initBaseURL
		}

		if !initOffline {
			log, err := newLogger(cfg.Default.LogLevel)
			if err != nil {
				return fmt.Errorf("failed to build logger: %w", err)
			}
			defer log.Sync()

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			me, err := newClient(cfg, token, log).Chat().Users.Me(ctx)
			if err != nil {
				return apiError("verify token", err)
			}
			cfg.Auth.UserID = me.ID.String()
			cfg.Auth.UserName = me.Name
		}

		if err := saveConfig(cfg); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}

		path, _ := configPath()
		if cfg.Auth.UserName != "" {
			fmt.Printf("Logged in as %s. Token saved to %s\n", cfg.Auth.UserName, path)
		} else {
			fmt.Printf("Token saved to %s\n", path)
		}
		return nil
	},
}
