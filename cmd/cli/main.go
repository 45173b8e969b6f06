package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/specialistvlad/stalegrid/internal/app"
	"github.com/specialistvlad/stalegrid/internal/cli"
	"github.com/specialistvlad/stalegrid/internal/hcl"
)

// main is the entrypoint for the stalegrid application.
func main() {
	// Use a minimal logger until the full one is configured.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Stdout, os.Stderr, os.Args[1:])
	stop()

	// The real main function handles errors and exit codes.
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.ExitCode(err))
	}
}

// run encapsulates the main application logic for easier testing and error
// handling. Plans, exports and usage go to outW; logs go to logW.
func run(ctx context.Context, outW, logW io.Writer, args []string) (err error) {
	appConfig, shouldExit, err := cli.Parse(args, outW)
	if err != nil {
		return err
	}
	if shouldExit {
		return nil
	}

	// Module registration panics on duplicate handler names.
	defer func() {
		if r := recover(); r != nil {
			err = &cli.ExitError{Code: cli.ExitUsage, Message: fmt.Sprintf("application startup panicked: %v", r)}
		}
	}()

	// Instantiate the concrete HCL loader to pass to the app.
	loader := hcl.NewLoader()
	stalegridApp := app.NewApp(logW, appConfig, loader)
	stalegridApp.SetOutput(outW)

	return stalegridApp.Run(ctx)
}
