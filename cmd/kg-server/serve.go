package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/zcsabbagh/knowledge-graph-mcp/internal/server/api"
	"github.com/zcsabbagh/knowledge-graph-mcp/internal/server/mcp"
)

var (
	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Serve the knowledge graph over HTTP or MCP",
	}

	serveHTTPCmd = &cobra.Command{
		Use:   "http",
		Short: "Serve the JSON HTTP API",
		RunE:  runHTTP,
	}

	serveMCPCmd = &cobra.Command{
		Use:   "mcp",
		Short: "Serve the MCP tools on stdin/stdout",
		RunE:  runMCP,
	}
)

func runHTTP(cmd *cobra.Command, args []string) error {
	logger := newLogger(os.Stdout)
	ctx := cmd.Context()

	svc, closeStore, err := openService(ctx, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	// HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.HTTP.Port,
		Handler:      api.New(svc, logger).Routes(),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	// Start server in goroutine
	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting knowledge graph server", "addr", "http://localhost:"+cfg.HTTP.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		logger.Error("Server failed", "error", err)
		return err
	case <-quit:
	}

	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
		return err
	}

	logger.Info("Server exited")
	return nil
}

func runMCP(cmd *cobra.Command, args []string) error {
	// stdout carries the protocol
	logger := newLogger(os.Stderr)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc, closeStore, err := openService(ctx, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	return mcp.Run(ctx, svc, logger)
}
