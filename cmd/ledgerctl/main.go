// Command ledgerctl administers the ledger database: schema migrations,
// summaries, recalculation and the years on file for a client.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"estudio/internal/backend"
	"estudio/internal/cli"
	"estudio/internal/config"
	"estudio/internal/core"
	applog "estudio/internal/log"
	"estudio/internal/services"
	"estudio/internal/storage"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type app struct {
	cfg    *config.Config
	logger *applog.Logger
	dbPath string
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:          "ledgerctl",
		Short:        "Administer the billing ledger",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := cli.Bootstrap(applog.ComponentCLI)
			if err != nil {
				return err
			}
			if a.dbPath != "" {
				cfg.SQLiteDBPath = a.dbPath
			}
			a.cfg, a.logger = cfg, logger
			return nil
		},
	}
	root.PersistentFlags().StringVar(&a.dbPath, "db", "", "SQLite database path (default $SQLITE_DB_PATH)")

	root.AddCommand(migrateCmd(a), summaryCmd(a), recalcCmd(a), yearsCmd(a))
	return root
}

func migrateCmd(a *app) *cobra.Command {
	var statusOnly bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !statusOnly {
				if err := storage.RunMigrations(a.cfg.SQLiteDBPath); err != nil {
					return err
				}
			}
			version, dirty, err := storage.MigrationVersion(a.cfg.SQLiteDBPath)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema version %d (dirty: %t) at %s\n", version, dirty, a.cfg.SQLiteDBPath)
			return nil
		},
	}
	cmd.Flags().BoolVar(&statusOnly, "status", false, "Only print the current schema version")
	return cmd
}

type ledgerFlags struct {
	clientID int64
	year     int
}

func (f *ledgerFlags) register(cmd *cobra.Command, withYear bool) {
	cmd.Flags().Int64Var(&f.clientID, "client", 0, "Client ID")
	_ = cmd.MarkFlagRequired("client")
	if withYear {
		cmd.Flags().IntVar(&f.year, "year", time.Now().Year(), "Fiscal year")
	}
}

func summaryCmd(a *app) *cobra.Command {
	var f ledgerFlags
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Print the totals of a client's ledger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withLedgers(cmd.Context(), func(ledgers *services.LedgerService) error {
				sum, err := ledgers.Summary(cmd.Context(), f.clientID, f.year)
				if err != nil {
					return err
				}
				return printSummary(cmd.OutOrStdout(), sum)
			})
		},
	}
	f.register(cmd, true)
	return cmd
}

func recalcCmd(a *app) *cobra.Command {
	var f ledgerFlags
	cmd := &cobra.Command{
		Use:   "recalc",
		Short: "Recalculate and persist a client's ledger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withLedgers(cmd.Context(), func(ledgers *services.LedgerService) error {
				l, err := ledgers.Recalculate(cmd.Context(), f.clientID, f.year)
				if err != nil {
					return err
				}
				w := cmd.OutOrStdout()
				tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "MONTH\tDUE\tPAID\tBALANCE\tPAID?")
				for _, o := range l.Obligations {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%t\n", o.MonthName(), o.AmountDue, o.AmountPaid, o.Balance, o.IsPaid)
				}
				if err := tw.Flush(); err != nil {
					return err
				}
				return printSummary(w, l.Summary())
			})
		},
	}
	f.register(cmd, true)
	return cmd
}

func yearsCmd(a *app) *cobra.Command {
	var f ledgerFlags
	cmd := &cobra.Command{
		Use:   "years",
		Short: "List the fiscal years on file for a client",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withLedgers(cmd.Context(), func(ledgers *services.LedgerService) error {
				years, err := ledgers.AvailableYears(cmd.Context(), f.clientID)
				if err != nil {
					return err
				}
				for _, y := range years {
					fmt.Fprintln(cmd.OutOrStdout(), y)
				}
				return nil
			})
		},
	}
	f.register(cmd, false)
	return cmd
}

// withLedgers opens the SQLite store without the broker or the export;
// administrative changes are not published as ledger events.
func (a *app) withLedgers(ctx context.Context, fn func(*services.LedgerService) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	bc, err := backend.FromAppConfig(a.cfg)
	if err != nil {
		return err
	}
	bc.Type = backend.SQLiteBackend
	bc.AMQPURL = ""
	bc.Sheets.SpreadsheetID = ""

	res, err := backend.NewFactory(a.logger).CreateBackend(ctx, bc)
	if err != nil {
		return err
	}
	defer func() {
		if err := res.Cleanup(); err != nil {
			a.logger.Warn("Closing store failed", applog.FieldError, err.Error())
		}
	}()
	return fn(services.NewLedgerService(res.Store, res.Store, services.WithLogger(a.logger)))
}

func printSummary(w io.Writer, s core.Summary) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "client\t%d\n", s.ClientID)
	fmt.Fprintf(tw, "year\t%d\n", s.Year)
	fmt.Fprintf(tw, "monthly fee\t%s\n", s.MonthlyFee)
	fmt.Fprintf(tw, "annual fee\t%s\n", s.AnnualFee)
	fmt.Fprintf(tw, "annual cap\t%s\n", s.AnnualCap)
	fmt.Fprintf(tw, "total due\t%s\n", s.TotalDue)
	fmt.Fprintf(tw, "total paid\t%s\n", s.TotalPaid)
	fmt.Fprintf(tw, "balance\t%s\n", s.TotalBalance)
	fmt.Fprintf(tw, "paid / pending\t%d / %d\n", s.PaidCount, s.PendingCount)
	return tw.Flush()
}
