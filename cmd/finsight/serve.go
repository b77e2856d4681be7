package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"finsight/internal/web"
)

func newServeCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the dashboard read API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if port > 0 {
				cfg.Web.Port = port
			}

			p, err := buildProvider(cfg)
			if err != nil {
				return err
			}
			st, err := buildStore(cfg)
			if err != nil {
				return err
			}

			server := web.NewServer(st, p, cfg.Trading.UserID)

			errChan := make(chan error, 1)
			go func() {
				errChan <- server.Start(cfg.Web.Port)
			}()

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

			select {
			case err := <-errChan:
				if err != nil && err != http.ErrServerClosed {
					return fmt.Errorf("server: %w", err)
				}
				return nil
			case <-sigChan:
				fmt.Println("\nShutting down...")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				return server.Shutdown(shutdownCtx)
			}
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "listen port (default from config)")

	return cmd
}
