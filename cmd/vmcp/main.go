// Package main is the entry point for the MCP aggregating gateway.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/mcpvgw/vgateway/cmd/vmcp/app"
	"github.com/mcpvgw/vgateway/pkg/logger"
)

func main() {
	logger.Initialize()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	defer cancel()

	if err := app.NewRootCmd().ExecuteContext(ctx); err != nil {
		logger.Errorf("error executing command: %v", err)
		os.Exit(1)
	}
}
