package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/telcobridge/telcobridge/internal/config"
	"github.com/telcobridge/telcobridge/internal/server"
)

// NewServeCmd creates the serve command
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the token broker",
		Long: `Start the telcobridge HTTP server.

The server will:
  - Accept token requests on POST /api/demo/token
  - Publish verification keys on /.well-known/jwks.json
  - Expose health on /healthz and metrics on /metrics

Configuration precedence (highest to lowest):
  1. Command-line flags
  2. Environment variables (TELCOBRIDGE_*)
  3. Configuration file`,
		RunE: runServe,
	}

	// One flag per scalar config field, derived from the config struct
	config.RegisterFlags(cmd.Flags())

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	configPath := configFile
	if configPath == "" {
		configPath = os.Getenv("TELCOBRIDGE_CONFIG")
	}
	if configPath == "" {
		configPath = "./configs/telcobridge.yaml"
	}

	loader := config.NewLoaderWithFlags(configPath, cmd.Flags())
	cfg, err := loader.Get()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	provider := config.NewProvider(cfg)
	defer provider.Close()

	brokerService, err := provider.BrokerService()
	if err != nil {
		return fmt.Errorf("failed to build broker: %w", err)
	}

	material, err := provider.KeyMaterial()
	if err != nil {
		return fmt.Errorf("failed to load key material: %w", err)
	}

	shutdownTimeout, err := provider.ShutdownTimeout()
	if err != nil {
		return err
	}

	srv := server.New(server.Config{
		Port:            provider.HTTPPort(),
		Issuer:          brokerService,
		Material:        material,
		ShutdownTimeout: shutdownTimeout,
		Logger:          provider.Logger(),
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	fmt.Println("telcobridge is running")
	fmt.Printf("  Token endpoint: http://localhost:%d/api/demo/token\n", provider.HTTPPort())
	fmt.Printf("  Config:         %s\n", configPath)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-sigCh:
	}

	fmt.Println("\nShutting down...")

	if err := srv.Stop(ctx); err != nil {
		return fmt.Errorf("error during shutdown: %w", err)
	}

	fmt.Println("Shutdown complete")
	return nil
}
