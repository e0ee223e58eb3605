// Package main provides the taxpadi CLI: ad-hoc tax computations and read
// access to record chains, audit trails, and owner summaries.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/taxpadi/taxpadi/internal/platform/config"
	"github.com/taxpadi/taxpadi/internal/tools/taxpadicli"
)

func main() {
	cfg, err := taxpadicli.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		config.Exitf("parse flags: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := taxpadicli.Run(ctx, cfg, os.Stdout, os.Stderr); err != nil {
		config.Exitf("Error: %v", err)
	}
}
