package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/zhouzirui/agentlink/internal/config"
	"github.com/zhouzirui/agentlink/internal/logging"
	"github.com/zhouzirui/agentlink/internal/server"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		logLevel   string
		pretty     bool
	)

	root := &cobra.Command{
		Use:          "agentd",
		Short:        "Reference agent server speaking the agentlink protocol",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (overrides AGENTD_LOG_LEVEL)")
	root.PersistentFlags().BoolVar(&pretty, "pretty", false, "human-readable logs")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := godotenv.Load(); err != nil {
				log.Debug().Err(err).Msg("no .env file, using process environment")
			}

			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			level := cfg.Server.LogLevel
			if logLevel != "" {
				level = logLevel
			}
			if err := logging.Setup(level, pretty); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			srv, err := server.New(ctx, *cfg)
			if err != nil {
				return err
			}
			defer srv.Close()

			return srv.Run(ctx)
		},
	}
	root.AddCommand(serve)
	return root
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}
