// Package cli implements billingctl, the operator command line.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/netline-isp/billing/internal/ar"
	"github.com/netline-isp/billing/jobs"
)

// Billing runs invoice operations.
type Billing interface {
	GenerateInvoices(ctx context.Context, in ar.GenerateInput) (ar.GenerateResult, error)
	MarkOverdue(ctx context.Context, in ar.MarkOverdueInput) (ar.MarkOverdueResult, error)
}

// Chart seeds the chart of accounts.
type Chart interface {
	SeedChart(ctx context.Context) (int, error)
}

// Migrator applies schema migrations.
type Migrator interface {
	Up() error
	Down(steps int) error
}

// Queue triggers and inspects background jobs.
type Queue interface {
	Trigger(ctx context.Context, name string) (string, error)
	Stats(ctx context.Context) (QueueStats, error)
}

// Backend is the set of services commands run against.
type Backend struct {
	Billing   Billing
	Chart     Chart
	Integrity jobs.IntegrityChecker
	Queue     Queue
	Close     func()
}

// Opener connects a Backend lazily so that migrate works against an empty database.
type Opener func(ctx context.Context) (*Backend, error)

// ErrIntegrity is returned when the integrity check finds inconsistencies.
var ErrIntegrity = errors.New("ledger integrity check failed")

// NewRootCommand builds the billingctl command tree.
func NewRootCommand(open Opener, migrator Migrator) *cobra.Command {
	root := &cobra.Command{
		Use:           "billingctl",
		Short:         "Operate the ISP billing and ledger service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newMigrateCommand(migrator),
		newSeedChartCommand(open),
		newGenerateCommand(open),
		newMarkOverdueCommand(open),
		newIntegrityCommand(open),
		newJobsCommand(open),
	)
	return root
}

func withBackend(cmd *cobra.Command, open Opener, fn func(*Backend) error) error {
	backend, err := open(cmd.Context())
	if err != nil {
		return err
	}
	if backend.Close != nil {
		defer backend.Close()
	}
	return fn(backend)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newMigrateCommand(migrator Migrator) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back database migrations",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := migrator.Up(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	})
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			steps, _ := cmd.Flags().GetInt("steps")
			if err := migrator.Down(steps); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "rolled back %d migration(s)\n", steps)
			return nil
		},
	}
	down.Flags().Int("steps", 1, "number of migrations to roll back")
	cmd.AddCommand(down)
	return cmd
}

func newSeedChartCommand(open Opener) *cobra.Command {
	return &cobra.Command{
		Use:   "seed-chart",
		Short: "Insert the default chart of accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withBackend(cmd, open, func(b *Backend) error {
				inserted, err := b.Chart.SeedChart(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "seeded %d account(s)\n", inserted)
				return nil
			})
		},
	}
}

func newGenerateCommand(open Opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate invoices for a billing period",
		Example: `  billingctl generate --start 2024-01-01 --end 2024-01-31
  billingctl generate --start 2024-01-01 --end 2024-01-07 --cycle weekly --due-days 3`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			start, _ := cmd.Flags().GetString("start")
			end, _ := cmd.Flags().GetString("end")
			cycle, _ := cmd.Flags().GetString("cycle")
			in := ar.GenerateInput{
				PeriodStart:  start,
				PeriodEnd:    end,
				BillingCycle: ar.BillingCycle(strings.ToLower(cycle)),
				Actor:        "billingctl",
			}
			if cmd.Flags().Changed("due-days") {
				days, _ := cmd.Flags().GetInt("due-days")
				in.DueDays = &days
			}
			return withBackend(cmd, open, func(b *Backend) error {
				res, err := b.Billing.GenerateInvoices(cmd.Context(), in)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), res)
			})
		},
	}
	cmd.Flags().String("start", "", "period start (YYYY-MM-DD)")
	cmd.Flags().String("end", "", "period end (YYYY-MM-DD)")
	cmd.Flags().String("cycle", "", "billing cycle (monthly or weekly)")
	cmd.Flags().Int("due-days", 0, "days until the invoice is due")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("end")
	return cmd
}

func newMarkOverdueCommand(open Opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mark-overdue",
		Short: "Move past-due invoices to overdue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			suspend, _ := cmd.Flags().GetBool("suspend")
			return withBackend(cmd, open, func(b *Backend) error {
				res, err := b.Billing.MarkOverdue(cmd.Context(), ar.MarkOverdueInput{
					SuspendAccounts: suspend,
					Actor:           "billingctl",
				})
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), res)
			})
		},
	}
	cmd.Flags().Bool("suspend", false, "suspend the customers of overdue invoices")
	return cmd
}

func newIntegrityCommand(open Opener) *cobra.Command {
	return &cobra.Command{
		Use:   "integrity",
		Short: "Check that the general ledger balances",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withBackend(cmd, open, func(b *Backend) error {
				report, err := b.Integrity.CheckIntegrity(cmd.Context())
				if err != nil {
					return err
				}
				if err := printJSON(cmd.OutOrStdout(), report); err != nil {
					return err
				}
				if !report.OK() {
					return fmt.Errorf("%w: %s", ErrIntegrity, report.Error())
				}
				return nil
			})
		},
	}
}

func newJobsCommand(open Opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Trigger or inspect background jobs",
	}
	cmd.AddCommand(&cobra.Command{
		Use:       "trigger <task>",
		Short:     "Enqueue a maintenance job",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{jobs.TaskGLIntegrity, jobs.TaskIdempotencyCleanup},
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd, open, func(b *Backend) error {
				id, err := b.Queue.Trigger(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "enqueued %s (%s)\n", args[0], id)
				return nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Show default queue counters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withBackend(cmd, open, func(b *Backend) error {
				stats, err := b.Queue.Stats(cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), stats)
			})
		},
	})
	return cmd
}
