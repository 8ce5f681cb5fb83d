package main

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/zhouzirui/agentlink/internal/config"
	"github.com/zhouzirui/agentlink/internal/logging"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type rootFlags struct {
	configPath string
	baseURL    string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:          "agentlink",
		Short:        "Live conversational client for an agent service",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&flags.configPath, "config", "", "YAML config file")
	root.PersistentFlags().StringVar(&flags.baseURL, "base-url", "", "agent service URL (overrides AGENTLINK_BASE_URL)")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "log level (overrides AGENTLINK_LOG_LEVEL)")

	root.AddCommand(newChatCmd(flags), newWatchCmd(flags))
	return root
}

// loadClientConfig applies .env, the config file, the environment and flags,
// in that order of increasing precedence, then configures logging.
func loadClientConfig(flags *rootFlags) (config.ClientConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("no .env file, using process environment")
	}

	var (
		cfg *config.Config
		err error
	)
	if flags.configPath != "" {
		cfg, err = config.LoadFile(flags.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return config.ClientConfig{}, err
	}

	client := cfg.Client
	if flags.baseURL != "" {
		client.BaseURL = flags.baseURL
		if client.HeartbeatURL, err = config.HeartbeatURLFor(flags.baseURL); err != nil {
			return config.ClientConfig{}, err
		}
	}
	if flags.logLevel != "" {
		client.LogLevel = flags.logLevel
	}
	if err := logging.Setup(client.LogLevel, client.PrettyLogs); err != nil {
		return config.ClientConfig{}, err
	}
	return client, nil
}
