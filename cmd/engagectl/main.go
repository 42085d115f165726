package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"
	"github.com/charmbracelet/log"

	"example.com/engagement/internal/config"
	"example.com/engagement/internal/logger"
)

var CLI struct {
	Env string `help:"Optional .env file loaded before the environment." type:"path"`

	Migrate MigrateCmd `cmd:"" help:"Apply pending Postgres migrations."`
	Seed    SeedCmd    `cmd:"" help:"Install the default achievement catalogue."`
	DLQ     struct {
		Replay DLQReplayCmd `cmd:"" help:"Run one dead-letter retry pass."`
	} `cmd:"" name:"dlq" help:"Manage the dead-letter queue."`
	Notify NotifyCmd `cmd:"" help:"Send a system alert to a user."`
	Token  TokenCmd  `cmd:"" help:"Mint a bearer token for local testing."`
}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name("engagectl"),
		kong.Description("Operational tooling for the engagement service"),
		kong.UsageOnError(),
	)

	cfg := config.Load()
	if CLI.Env != "" {
		loaded, err := config.LoadFile(CLI.Env)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	lg, err := logger.New(logger.Config{Level: cfg.LogLevel, File: cfg.LogFile, Prefix: "engagectl"})
	if err != nil {
		log.Fatal("failed to build logger", "err", err)
	}

	appCtx := &Context{Config: cfg, Logger: lg, Out: os.Stdout}
	if err := ctx.Run(appCtx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
