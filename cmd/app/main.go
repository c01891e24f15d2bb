// Package main provides the entry point for the cloud-sync engine CLI.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"
)

func main() {
	cmd := &cli.Command{
		Name:    "cloud-sync",
		Usage:   "PrivStack cloud-sync engine",
		Version: "1.0.0",
		Commands: []*cli.Command{
			generateKeypairCommand(),
			recoverKeypairCommand(),
			bootstrapWorkspaceCommand(),
			runCommand(),
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.Any("error", err))
		os.Exit(1)
	}
}
