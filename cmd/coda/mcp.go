package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/felixgeelhaar/coda/internal/config"
	"github.com/felixgeelhaar/coda/internal/daemon"
	mcpserver "github.com/felixgeelhaar/coda/internal/mcp"
	"github.com/spf13/cobra"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve MCP tools on stdio (or HTTP with --http)",
	RunE: func(cmd *cobra.Command, args []string) error {
		// stdout carries the protocol
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))

		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		srv, err := daemon.NewServer(ctx, daemon.ServerConfig{Config: cfg, Version: Version})
		if err != nil {
			return fmt.Errorf("create services: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		m := mcpserver.NewServer(mcpserver.Config{
			Exercises: srv.Engine(),
			Concepts:  srv.Provider(),
			Learners:  srv.Codas(),
			Version:   Version,
		})

		if addr, _ := cmd.Flags().GetString("http"); addr != "" {
			return m.ServeHTTP(ctx, addr)
		}
		return m.ServeStdio(ctx)
	},
}

func init() {
	mcpCmd.Flags().String("http", "", "Serve MCP over HTTP on this address instead of stdio")
}
