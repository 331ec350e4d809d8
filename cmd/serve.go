package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/facepass/facepass/internal/config"
	"github.com/facepass/facepass/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the attendance API server",
	Long: `Start the FacePass HTTP server.
The server exposes enrollment, identification, analysis and attendance
endpoints under /api/v1 and keeps the enrolled gallery in memory, loaded
from the configured store at startup.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "Port to listen on (overrides FACEPASS_PORT)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	if port := mustGetInt(cmd, "port"); port != 0 {
		cfg.Server.Port = port
	}

	ctx := cmd.Context()
	eng, store, err := buildEngine(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	fmt.Printf("Gallery loaded with %d enrolled identities\n", eng.Gallery().Size())

	server := web.NewServer(cfg, eng, store)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		fmt.Printf("Received %s, shutting down\n", sig)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
