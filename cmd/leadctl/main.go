// main.go - Admin control tool for leadpulse
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"leadpulse/internal"
)

const (
	defaultShutdownTimeout = 30 * time.Second
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment and defaults")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "leadctl",
		Short:         "Administrative commands for the leadpulse service",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	root.AddCommand(
		newMigrateCommand(),
		newReportCommand(),
		newCleanupCommand(),
		newStatusCommand(),
		newHashKeyCommand(),
	)
	return root
}

// withApp initializes the application, runs fn and releases everything the
// application opened.
func withApp(fn func(app *internal.Application) error) error {
	app, err := internal.NewApp()
	if err != nil {
		return err
	}

	defer func() {
		if err := app.Services.Close(); err != nil {
			log.Printf("Warning: Failed to close services: %v", err)
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
		defer cancel()
		if err := app.Shutdown(shutdownCtx); err != nil {
			log.Printf("Warning: Cleanup error: %v", err)
		}
	}()

	return fn(app)
}
