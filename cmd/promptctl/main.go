// Command promptctl loads prompt manifests, executes them against configured
// providers and generates typed Go wrappers.
//
// Usage:
//
//	promptctl -c promptctl.yaml list
//	promptctl -c promptctl.yaml run greet --var role=pirate --var target=Ann
//	promptctl -c promptctl.yaml gen --package prompts --out prompts/prompts_gen.go
//	promptctl schema > promptctl.schema.json
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd(deps{}).ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
