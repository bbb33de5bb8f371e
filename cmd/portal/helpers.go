package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	portal "github.com/campus-portal/portal/sdk/golang"
)

// session bundles what every chat command needs.
type session struct {
	cfg    *Config
	client *portal.Client
	log    *zap.Logger
}

// getSession creates a portal client authenticated with the stored token.
func getSession() *session {
	cfg, err := loadEffectiveConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if cfg.Auth.AccessToken == "" {
		fmt.Fprintln(os.Stderr, "No access token. Run 'portal init <access-token>' first.")
		os.Exit(1)
	}
	log, err := newLogger(cfg.Default.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build logger: %v\n", err)
		os.Exit(1)
	}
	return &session{cfg: cfg, client: newClient(cfg, cfg.Auth.AccessToken, log), log: log}
}

func newClient(cfg *Config, token string, log *zap.Logger) *portal.Client {
	opts := []portal.ClientOption{portal.WithLogger(log)}
	if cfg.Default.BaseURL != "" {
		opts = append(opts, portal.WithBaseURL(cfg.Default.BaseURL))
	}
	if cfg.Default.RateLimitRPS > 0 {
		opts = append(opts, portal.WithRateLimit(cfg.Default.RateLimitRPS, 1))
	}
	return portal.NewClient(token, opts...)
}

// engine builds a sync engine whose auth-error path drops the stored token.
func (s *session) engine(opts portal.SyncOptions) *portal.SyncEngine {
	opts.Logger = s.log
	opts.Tokens = configTokenStore{}
	if opts.OnAuthError == nil {
		opts.OnAuthError = func() {
			fmt.Fprintln(os.Stderr, "Session expired. Run 'portal init <access-token>' to log in again.")
		}
	}
	return portal.NewSyncEngine(s.client.Chat(), &opts)
}

// configTokenStore clears the token saved in the config file.
type configTokenStore struct{}

func (configTokenStore) ClearToken() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cfg.Auth.AccessToken = ""
	return saveConfig(cfg)
}

// tokenExpiry reads the exp claim of a JWT access token without verifying
// it. ok is false for opaque tokens and tokens without an exp claim.
func tokenExpiry(token string) (exp time.Time, ok bool) {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

// apiError turns SDK errors into short CLI messages.
func apiError(action string, err error) error {
	var apiErr *portal.APIError
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == 401 {
			return fmt.Errorf("%s: session rejected (HTTP 401); run 'portal init' again", action)
		}
		return fmt.Errorf("%s: API error: %s", action, apiErr.Error())
	}
	return fmt.Errorf("%s: request failed: %w", action, err)
}

// parseIDs splits a comma-separated id list.
func parseIDs(s string) []portal.ServerID {
	var out []portal.ServerID
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, portal.ServerID(part))
		}
	}
	return out
}

// maskKey shows the first 6 and last 4 characters of a token.
func maskKey(key string) string {
	if len(key) <= 10 {
		return strings.Repeat("*", len(key))
	}
	return key[:6] + "..." + key[len(key)-4:]
}

func valueOrDefault(val, def string) string {
	if val == "" {
		return def
	}
	return val
}

func authorLabel(m portal.Message) string {
	if m.AuthorName != "" {
		return m.AuthorName
	}
	return "user " + m.AuthorID.String()
}

func titleOf(c portal.Conversation) string {
	if c.Title != "" {
		return c.Title
	}
	names := make([]string, 0, len(c.Participants))
	for _, p := range c.Participants {
		names = append(names, valueOrDefault(p.Name, p.ID.String()))
	}
	if len(names) == 0 {
		return "(untitled)"
	}
	return strings.Join(names, ", ")
}
