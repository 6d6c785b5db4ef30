package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"moviesnow/internal/console"
	"moviesnow/internal/platform/config"
	"moviesnow/internal/platform/logger"
	"moviesnow/pkg/apierror"
)

// main parses the global flags, builds the app, and hands the remaining
// arguments to the command dispatcher.
func main() {
	config.LoadDotenv()
	cfg := config.ClientFromEnv()

	fs := flag.NewFlagSet("moviesnow", flag.ExitOnError)
	baseURL := fs.String("base-url", cfg.BaseURL, "API base URL")
	credentials := fs.String("credentials", cfg.CredentialsPath, "credentials file path")
	jsonOut := fs.Bool("json", false, "machine-readable output")
	verbose := fs.Bool("verbose", cfg.Verbose, "debug logging")
	_ = fs.Parse(os.Args[1:])

	cfg.BaseURL = *baseURL
	cfg.CredentialsPath = *credentials

	app, err := console.NewApp(cfg,
		console.WithJSONOutput(*jsonOut),
		console.WithAppLogger(logger.NewText(os.Stderr, *verbose)),
	)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := app.Run(ctx, fs.Args()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCode(err))
	}
}

// exitCode maps the error taxonomy to shell conventions: usage errors
// exit 2, everything else 1.
func exitCode(err error) int {
	if apierror.HasCode(err, apierror.CodeInvalidInput) || apierror.HasCode(err, apierror.CodeValidation) {
		return 2
	}
	return 1
}
