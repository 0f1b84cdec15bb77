package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/terra-clan/dataset-validator/internal/cache"
	"github.com/terra-clan/dataset-validator/internal/datasets"
	"github.com/terra-clan/dataset-validator/internal/models"
	"github.com/terra-clan/dataset-validator/internal/storage"
	"github.com/terra-clan/dataset-validator/internal/validation"
)

// errFindingsPresent makes the process exit non-zero without printing anything more
var errFindingsPresent = errors.New("dataset has validation errors")

const (
	formatText = "text"
	formatJSON = "json"
)

type validateOptions struct {
	parallel bool
	severity string
	entity   string
	check    string
	format   string
}

func newValidateCommand() *cobra.Command {
	var opts validateOptions
	cmd := &cobra.Command{
		Use:   "validate <path>",
		Short: "Validate a dataset file or bundle directory",
		Long: "Validate a dataset file (YAML or JSON holding clients, workers, tasks and rules)\n" +
			"or a bundle directory with one file per collection. Exits 1 when errors are found.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd.OutOrStdout(), args[0], opts)
		},
	}
	cmd.Flags().BoolVar(&opts.parallel, "parallel", false, "Run checks concurrently")
	cmd.Flags().StringVar(&opts.severity, "severity", "", "Only print findings of this severity (error|warning)")
	cmd.Flags().StringVar(&opts.entity, "entity", "", "Only print findings for this collection (clients|workers|tasks)")
	cmd.Flags().StringVar(&opts.check, "check", "", "Only print findings from this check")
	cmd.Flags().StringVarP(&opts.format, "format", "o", formatText, "Output format (text|json)")
	return cmd
}

func runValidate(out io.Writer, path string, opts validateOptions) error {
	if opts.format != formatText && opts.format != formatJSON {
		return fmt.Errorf("unknown format %q", opts.format)
	}
	severity := models.Severity(opts.severity)
	if severity != "" && severity != models.SeverityError && severity != models.SeverityWarning {
		return fmt.Errorf("unknown severity %q", opts.severity)
	}

	entry, err := datasets.LoadPath(path)
	if err != nil {
		return err
	}

	engine := validation.New(validation.WithParallel(opts.parallel))
	findings := engine.Validate(entry.Dataset)
	summary := validation.Summarize(findings)

	shown := models.FindingFilter{
		Severity: severity,
		Entity:   models.EntityKind(opts.entity),
		Check:    opts.check,
	}.Apply(findings)

	switch opts.format {
	case formatJSON:
		if shown == nil {
			shown = []models.Finding{}
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		err = enc.Encode(struct {
			Dataset  string             `json:"dataset"`
			Summary  validation.Summary `json:"summary"`
			Findings []models.Finding   `json:"findings"`
		}{entry.Name, summary, shown})
	default:
		err = printFindings(out, entry.Name, summary, shown)
	}
	if err != nil {
		return err
	}

	if summary.Errors > 0 {
		return errFindingsPresent
	}
	return nil
}

func printFindings(out io.Writer, name string, summary validation.Summary, findings []models.Finding) error {
	if len(findings) > 0 {
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "SEVERITY\tCHECK\tENTITY\tID\tFIELD\tMESSAGE")
		for _, f := range findings {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
				f.Severity, f.Check, f.Entity, f.EntityID, dash(f.Field), f.Message)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		fmt.Fprintln(out)
	}

	_, err := fmt.Fprintf(out, "%s: %d error(s), %d warning(s), score %d\n",
		name, summary.Errors, summary.Warnings, summary.Score)
	return err
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func newChecksCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "checks",
		Short: "List validation checks in reporting order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			for _, name := range validation.CheckNames() {
				if _, err := fmt.Fprintln(cmd.OutOrStdout(), name); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func newMigrateCommand() *cobra.Command {
	var (
		dsn     string
		dir     string
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending SQL migrations to the run database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if dsn == "" {
				return errors.New("a database DSN is required (--dsn or DATABASE_DSN)")
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			if err := storage.MigrateFromDSN(ctx, dsn, dir); err != nil {
				return err
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return err
		},
	}
	cmd.Flags().StringVar(&dsn, "dsn", os.Getenv("DATABASE_DSN"), "PostgreSQL connection string")
	cmd.Flags().StringVar(&dir, "dir", "./migrations", "Directory holding .sql migrations")
	cmd.Flags().DurationVar(&timeout, "timeout", time.Minute, "Overall migration timeout")
	return cmd
}

func newCacheCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the Redis findings cache",
	}
	cmd.AddCommand(newCacheFlushCommand())
	return cmd
}

func newCacheFlushCommand() *cobra.Command {
	var opts cache.Options
	cmd := &cobra.Command{
		Use:   "flush",
		Short: "Delete every cached finding list",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
			defer cancel()

			client, err := cache.Connect(ctx, opts)
			if err != nil {
				return err
			}
			defer client.Close()

			n, err := cache.NewFindingsCache(client, 0).Flush(ctx)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%d cached result(s) removed\n", n)
			return err
		},
	}
	cmd.Flags().StringVar(&opts.Address, "redis", envOr("REDIS_ADDRESS", "localhost:6379"), "Redis address")
	cmd.Flags().StringVar(&opts.Password, "password", os.Getenv("REDIS_PASSWORD"), "Redis password")
	cmd.Flags().IntVar(&opts.DB, "db", 0, "Redis database number")
	return cmd
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
