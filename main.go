// Package main implements the Azure DevOps work item MCP (Model Context Protocol) server.
//
// The server lets an MCP client query, aggregate and update Azure DevOps work items.
// Query results are shaped to fit the client's context: field references in WIQL
// are repaired, identity objects are compacted, and large results are returned as
// grouped summaries or paginated windows.
//
// The server communicates using the MCP protocol over stdio. Logs go to stderr.
//
// Configuration is provided through environment variables (or CONFIG_FILE):
//   - AZDO_ORG_URL: Organization URL, e.g. https://dev.azure.com/contoso (required)
//   - AZDO_PAT: Personal access token (required unless AZDO_BEARER_TOKEN is set) // pragma: allowlist secret
//   - AZDO_BEARER_TOKEN: Microsoft Entra ID access token
//   - AZDO_PROJECT: Default project for tools called without one
//   - LOG_LEVEL: debug, info, warn or error
//   - ENVIRONMENT: (Optional) Set to "production" for production logging
//
// Example usage:
//
//	export AZDO_ORG_URL="https://dev.azure.com/contoso"
//	export AZDO_PAT="<your-token>"
//	./devops-mcp
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sirforce/devops-mcp/internal/config"
	"github.com/sirforce/devops-mcp/internal/server"
	"github.com/sirforce/devops-mcp/internal/tracing"
)

// Build information - set at build time via ldflags
// -X main.version=... -X main.commit=... -X main.builtBy=...
var (
	version = "dev"     // e.g., "v0.4.0" or "dev"
	commit  = "unknown" // Git commit SHA
	builtBy = "manual"  // "goreleaser" or "manual"
)

func main() {
	// Load .env file if it exists (optional, for development)
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := initLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync() // Ignore error on cleanup
	}()

	if err := cfg.Validate(); err != nil {
		logger.Fatal("Invalid configuration", zap.Error(err))
	}

	shutdownTracing, err := tracing.InitOTel(tracing.OTelConfig{
		ServiceName:    "devops-mcp",
		ServiceVersion: version,
		Environment:    os.Getenv("ENVIRONMENT"),
		Enabled:        cfg.EnableTracing,
	})
	if err != nil {
		logger.Fatal("Failed to initialize tracing", zap.Error(err))
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn("Failed to flush traces", zap.Error(err))
		}
	}()

	logger.Info("Starting Azure DevOps MCP Server",
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("built_by", builtBy),
		zap.String("organization_url", cfg.OrganizationURL),
		zap.String("project", cfg.Project),
	)

	mcpServer, err := server.New(cfg, logger, version)
	if err != nil {
		logger.Fatal("Failed to create MCP server", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- mcpServer.Start(ctx)
	}()

	select {
	case sig := <-sigChan:
		logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
	case err := <-serverDone:
		if err != nil {
			logger.Error("Server error", zap.Error(err))
		}
		return
	}

	logger.Info("Initiating graceful shutdown", zap.Duration("timeout", cfg.ShutdownTimeout))
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	select {
	case <-serverDone:
		logger.Info("Server shutdown complete")
	case <-shutdownCtx.Done():
		logger.Warn("Shutdown timeout exceeded, forcing exit",
			zap.Duration("timeout", cfg.ShutdownTimeout))
	}

	// Allow a brief moment for final cleanup
	time.Sleep(100 * time.Millisecond)
}

// initLogger builds a production logger when ENVIRONMENT=production and a
// development logger otherwise. Both write to stderr; stdout carries MCP.
func initLogger(cfg *config.Config) (*zap.Logger, error) {
	var zcfg zap.Config
	if os.Getenv("ENVIRONMENT") == "production" {
		zcfg = zap.NewProductionConfig()
	} else {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.OutputPaths = []string{"stderr"}
	zcfg.ErrorOutputPaths = []string{"stderr"}

	if cfg.LogLevel != "" {
		level, err := zapcore.ParseLevel(cfg.LogLevel)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
		}
		zcfg.Level = zap.NewAtomicLevelAt(level)
	}
	if cfg.LogFormat == "json" || cfg.LogFormat == "console" {
		zcfg.Encoding = cfg.LogFormat
	}
	return zcfg.Build()
}
