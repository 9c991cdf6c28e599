package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/roach88/outpack/internal/cli"
)

func main() {
	os.Exit(run())
}

func run() int {
	// A .env file may set OUTPACK_ROOT; a missing file is not an error.
	_ = godotenv.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cli.NewRootCommand().ExecuteContext(ctx); err != nil {
		return cli.GetExitCode(err)
	}
	return cli.ExitSuccess
}
