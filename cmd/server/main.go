package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/matheusnogalha/draft-os/internal/bootstrap"
	"github.com/matheusnogalha/draft-os/internal/infra/setup"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "draft-os",
		Short:         "draft-os manuscript server",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	cmd.AddCommand(newServeCommand())
	cmd.AddCommand(newMigrateCommand())
	return cmd
}

func newServeCommand() *cobra.Command {
	var port string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP/WebSocket server and the background worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := bootstrap.LoadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if port != "" {
				cfg.ServerPort = port
			}

			app, err := bootstrap.NewApp(cfg)
			if err != nil {
				return fmt.Errorf("failed to initialize application: %w", err)
			}
			if err := app.Start(); err != nil {
				app.Shutdown()
				return err
			}

			// 设置优雅关闭
			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			<-quit
			logrus.Info("Shutdown signal received...")

			app.Shutdown()
			return nil
		},
	}
	cmd.Flags().StringVar(&port, "port", "", "listen port (overrides SERVER_PORT)")
	return cmd
}

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := bootstrap.LoadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			log := bootstrap.NewLogger(cfg)

			db, err := setup.InitDB(cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName)
			if err != nil {
				return fmt.Errorf("failed to init DB: %w", err)
			}
			if sqlDB, err := db.DB(); err == nil {
				defer sqlDB.Close()
			}
			if err := setup.MigrateDB(db); err != nil {
				return fmt.Errorf("failed to migrate DB: %w", err)
			}
			log.Info("Database migrated")
			return nil
		},
	}
}
