package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"

	"github.com/nhle/tempmail/internal/model"
)

var version = "dev"

func main() {
	_ = godotenv.Load()

	cmd := &cli.Command{
		Name:    "tempmail",
		Usage:   "Disposable email inbox in your terminal",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   model.DefaultConfigPath(),
				Usage:   "path to the YAML configuration file",
				Sources: cli.EnvVars("TEMPMAIL_CONFIG"),
			},
		},
		Action: runAction,
		Commands: []*cli.Command{
			addressCommand,
			inboxCommand,
			readCommand,
			qrCommand,
			resetCommand,
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("tempmail failed", "err", err)
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
