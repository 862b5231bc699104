package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/brainsh/brain/internal/api"
	"github.com/brainsh/brain/internal/auth"
	"github.com/brainsh/brain/internal/db"
	"github.com/brainsh/brain/internal/events"
)

// newServeCmd creates the serve command for the API server.
func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		Long: `Start the brain API server.

The server provides:
  • Task queries and section extraction under /api/v1
  • A websocket event feed at /api/v1/events/ws
  • The MCP endpoint at /mcp (OAuth-guarded when ENABLE_AUTH is set)
  • The OAuth 2.1 authorization endpoints

Example:
  brain serve              # Listen on the configured host:port
  brain serve --port 4000  # Override the port`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.Port, _ = cmd.Flags().GetInt("port")
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			database, err := db.Open(ctx, cfg.DSN())
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer database.Close()

			store := auth.NewStore(database)
			store.StartCleanup(ctx, time.Hour)

			pub := events.NewMemoryPublisher()
			defer pub.Close()

			fleet, svc, err := buildFleet(cfg, pub, nil)
			if err != nil {
				return err
			}
			defer fleet.StopAll()

			server := api.New(api.Options{
				Config:    cfg,
				Service:   svc,
				Fleet:     fleet,
				Store:     store,
				Publisher: pub,
			})

			fmt.Printf("Starting API server on %s\n", cfg.ListenAddr())
			fmt.Println("Press Ctrl+C to stop")

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			go func() {
				<-sigCh
				fmt.Println("\nShutting down...")
				shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
				defer done()
				_ = server.Shutdown(shutdownCtx)
				cancel()
			}()

			return server.Start()
		},
	}

	cmd.Flags().IntP("port", "p", 3333, "port to listen on")
	return cmd
}
