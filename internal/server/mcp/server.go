// Package mcp exposes the knowledge graph operations as Model Context
// Protocol tools over stdio.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	mcp "github.com/metoro-io/mcp-golang"
	"github.com/metoro-io/mcp-golang/transport/stdio"

	"github.com/zcsabbagh/knowledge-graph-mcp/internal/server/ctxlog"
	"github.com/zcsabbagh/knowledge-graph-mcp/internal/server/service"
)

// ErrTerminal is returned when stdin is an interactive terminal rather than
// a pipe from an MCP client.
var ErrTerminal = errors.New("MCP server mode requires stdin/stdout to be connected (not a terminal)")

// Run serves the tools on stdin/stdout until ctx is cancelled. Nothing but
// protocol traffic may be written to stdout, so logger must write elsewhere.
func Run(ctx context.Context, svc *service.Service, logger *slog.Logger) error {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return fmt.Errorf("stat stdin: %w", err)
	}
	if stat.Mode()&os.ModeCharDevice != 0 {
		return ErrTerminal
	}

	server := mcp.NewServer(stdio.NewStdioServerTransport())
	t := &tools{ctx: ctxlog.WithLogger(ctx, logger), svc: svc}
	if err := t.register(server); err != nil {
		return fmt.Errorf("failed to register tools: %w", err)
	}

	logger.Info("MCP server ready, serving requests")
	if err := server.Serve(); err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	// Serve returns once the transport is running; requests are handled
	// in background goroutines.
	<-ctx.Done()
	logger.Info("MCP server stopping")
	return nil
}
