package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show current configuration and session status",
	Long:  "Display the effective configuration and, if a token is set, check it against the portal.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadEffectiveConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		fmt.Println("Configuration:")
		fmt.Printf("  Base URL:    %s\n", valueOrDefault(cfg.Default.BaseURL, "(default)"))
		fmt.Printf("  Log level:   %s\n", valueOrDefault(cfg.Default.LogLevel, "(default)"))
		if cfg.Default.RateLimitRPS > 0 {
			fmt.Printf("  Rate limit:  %.1f req/s\n", cfg.Default.RateLimitRPS)
		}

		fmt.Println()
		fmt.Println("Auth:")
		if cfg.Auth.UserName != "" {
			fmt.Printf("  User:        %s (%s)\n", cfg.Auth.UserName, cfg.Auth.UserID)
		}
		if cfg.Auth.AccessToken == "" {
			fmt.Println("  Token:       (not set)")
			return nil
		}
		fmt.Printf("  Token:       %s\n", maskKey(cfg.Auth.AccessToken))
		if exp, ok := tokenExpiry(cfg.Auth.AccessToken); ok {
			state := "valid"
			if time.Now().After(exp) {
				state = "expired"
			}
			fmt.Printf("  Expires:     %s (%s)\n", exp.Local().Format(time.RFC1123), state)
		}

		log, err := newLogger(cfg.Default.LogLevel)
		if err != nil {
			return fmt.Errorf("failed to build logger: %w", err)
		}
		defer log.Sync()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		fmt.Println()
		fmt.Println("Live status:")
		chat := newClient(cfg, cfg.Auth.AccessToken, log).Chat()
		me, err := chat.Users.Me(ctx)
		if err != nil {
			fmt.Printf("  %v\n", apiError("fetch account", err))
			return nil
		}
		fmt.Printf("  Name:          %s\n", me.Name)
		fmt.Printf("  Role:          %s\n", valueOrDefault(me.Role, "(unknown)"))

		convs, err := chat.Conversations.List(ctx)
		if err != nil {
			fmt.Printf("  %v\n", apiError("list conversations", err))
			return nil
		}
		fmt.Printf("  Conversations: %d\n", len(convs))
		return nil
	},
}
