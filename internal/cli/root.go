// Package cli holds the studio command line: the gateway server and one-shot
// chat commands against the backend.
package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"ugc-studio/internal/client"
	"ugc-studio/internal/config"
	"ugc-studio/internal/utils"
	"ugc-studio/pkg/logger"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	version = "dev"

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:           "studio",
	Short:         "UGC Studio chat client",
	Long:          `UGC Studio talks to the chat backend: it serves the browser gateway and can send messages, list chats and print history from the terminal.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return loadConfig(cmd)
	},
}

// Execute runs the root command. It is called once by main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringP("config", "c", "./configs/config.yaml", "config file path")
	rootCmd.PersistentFlags().String("api", "", "backend base url (overrides studio.api_base_url)")
	rootCmd.PersistentFlags().String("session", "", "session id sent as X-Session-Id")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")
}

func loadConfig(cmd *cobra.Command) error {
	path, _ := cmd.Flags().GetString("config")
	c, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if api, _ := cmd.Flags().GetString("api"); api != "" {
		c.Studio.APIBaseURL = api
	}
	if session, _ := cmd.Flags().GetString("session"); session != "" {
		c.Studio.SessionID = session
	}
	level := c.Log.Level
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		level = "debug"
	}

	if err := logger.Init(level, c.Log.Format); err != nil {
		return fmt.Errorf("failed to init logger: %w", err)
	}
	// stdout carries chat output.
	logger.SetOutput(os.Stderr)

	cfg = c
	return nil
}

// sessionID returns the configured session id, or one persisted in the user
// config dir so every run of the CLI shares the same history listing.
func sessionID() string {
	if cfg.Studio.SessionID != "" {
		return cfg.Studio.SessionID
	}

	dir, err := os.UserConfigDir()
	if err != nil {
		return uuid.NewString()
	}
	path := filepath.Join(dir, "ugc-studio", "session")
	if data, err := os.ReadFile(path); err == nil {
		if id := strings.TrimSpace(string(data)); id != "" {
			return id
		}
	}

	id := uuid.NewString()
	if err := os.MkdirAll(filepath.Dir(path), 0700); err == nil {
		if err := os.WriteFile(path, []byte(id+"\n"), 0600); err != nil {
			logger.Warnf("Failed to persist session id: %v", err)
		}
	}
	return id
}

func newAPIClient(session string) *client.APIClient {
	return client.NewAPIClient(cfg.Studio.APIBaseURL, session, utils.NewHTTPClient(cfg.Studio.HTTPTimeout))
}
