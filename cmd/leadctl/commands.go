package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/term"

	"leadpulse/internal"
	"leadpulse/internal/reports"
	"leadpulse/internal/timeframe"
)

// minAPIKeyLength guards against trivially guessable report keys.
const minAPIKeyLength = 16

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Creates or updates the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(app *internal.Application) error {
				if err := app.DBManager.MigrateDatabase(); err != nil {
					return fmt.Errorf("failed to run migrations: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Migrations completed")
				return nil
			})
		},
	}
}

type reportOptions struct {
	days string
	from string
	to   string
	tz   string
	xlsx string
}

func newReportCommand() *cobra.Command {
	opts := &reportOptions{}

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Prints the attribution and funnel reports as JSON or writes them to an .xlsx file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := timeframe.NewParser().Parse(timeframe.ParserParams{
				Days:     opts.days,
				FromDate: opts.from,
				ToDate:   opts.to,
				Tz:       opts.tz,
			})
			if err != nil {
				return fmt.Errorf("invalid range: %w", err)
			}

			return withApp(func(app *internal.Application) error {
				summary, err := app.Services.Reports.Build(cmd.Context(), r)
				if err != nil {
					return err
				}
				if opts.xlsx != "" {
					return writeWorkbookFile(opts.xlsx, summary)
				}
				return writeJSON(cmd.OutOrStdout(), summary)
			})
		},
	}

	cmd.Flags().StringVar(&opts.days, "days", "", "number of days ending today")
	cmd.Flags().StringVar(&opts.from, "from", "", "first day (YYYY-MM-DD)")
	cmd.Flags().StringVar(&opts.to, "to", "", "last day (YYYY-MM-DD)")
	cmd.Flags().StringVar(&opts.tz, "tz", "UTC", "IANA timezone the dates are in")
	cmd.Flags().StringVar(&opts.xlsx, "xlsx", "", "write an .xlsx workbook to this path instead of JSON")
	return cmd
}

func writeJSON(w io.Writer, summary *reports.Summary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(summary)
}

func writeWorkbookFile(path string, summary *reports.Summary) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := reports.WriteWorkbook(f, summary); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func newCleanupCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Deletes events older than the retention period",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(app *internal.Application) error {
				return app.Scheduler.RunCleanup()
			})
		},
	}
}

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Shows database connectivity and row counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(app *internal.Application) error {
				out := cmd.OutOrStdout()
				counts, err := app.DBManager.RowCounts()
				if err != nil {
					return fmt.Errorf("database error: %w", err)
				}

				fmt.Fprintln(out, "System Status:")
				fmt.Fprintln(out, "- Database: Connected")
				for _, c := range counts {
					fmt.Fprintf(out, "- %s: %d\n", c.Table, c.Rows)
				}

				sqlDB, err := app.DBManager.GetConnection().DB()
				if err != nil {
					return fmt.Errorf("failed to get SQL DB: %w", err)
				}
				fmt.Fprintf(out, "- Open Connections: %d\n", sqlDB.Stats().OpenConnections)
				return nil
			})
		},
	}
}

func newHashKeyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-key",
		Short: "Hashes a reports API key for LEADPULSE_REPORTS_API_KEY_HASH",
		Long:  "Reads an API key from the terminal (or stdin when piped) and prints its bcrypt hash.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := readAPIKey(cmd.InOrStdin(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			hash, err := hashAPIKey(key)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}

// readAPIKey reads the key without echo when in is a terminal, otherwise it
// reads the first line.
func readAPIKey(in io.Reader, prompt io.Writer) (string, error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(prompt, "Enter reports API key: ")
		keyBytes, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(prompt)
		if err != nil {
			return "", fmt.Errorf("failed to read key: %w", err)
		}
		return strings.TrimSpace(string(keyBytes)), nil
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read key: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func hashAPIKey(key string) (string, error) {
	if len(key) < minAPIKeyLength {
		return "", fmt.Errorf("API key must be at least %d characters", minAPIKeyLength)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash key: %w", err)
	}
	return string(hash), nil
}
