package main

import (
	"context"
	"errors"
	"log"
	"os"

	"github.com/dmitrijs2005/chatgate/internal/cli"
	"github.com/dmitrijs2005/chatgate/internal/logging"
	"github.com/dmitrijs2005/chatgate/internal/server"
	"github.com/dmitrijs2005/chatgate/internal/server/config"
)

func main() {

	ctx := context.Background()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("%v", err)
	}

	// stdout carries command output, so logs go to stderr
	logger := logging.NewJSONLogger(os.Stderr, cfg.LogLevel)

	core, err := server.NewCore(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("%v", err)
	}

	cmd, args := cli.SplitCommand(os.Args[1:])
	app := cli.NewApp(core.Users, core.Tokens, os.Stdin, os.Stdout)

	err = app.Run(ctx, cmd, args)
	_ = core.Close()

	if err != nil {
		if !errors.Is(err, cli.ErrUsage) {
			log.Printf("%v", err)
		}
		os.Exit(1)
	}
}
