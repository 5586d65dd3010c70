package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/assefaz/stockledger/internal/catalog"
	"github.com/assefaz/stockledger/internal/ledger"
	"github.com/assefaz/stockledger/internal/platform/db"
	"github.com/assefaz/stockledger/internal/shared"
)

func historyCmd(cfg *ctlConfig) *cobra.Command {
	var location string
	cmd := &cobra.Command{
		Use:       "history outflows|inflows",
		Short:     "Print the grouped batch history of one location",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"outflows", "inflows"},
		RunE: func(cmd *cobra.Command, args []string) error {
			loc, err := shared.ParseLocation(location)
			if err != nil {
				return err
			}
			tz, err := time.LoadLocation(cfg.Timezone)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			pool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: 2})
			if err != nil {
				return err
			}
			defer pool.Close()

			dir, err := catalog.NewService(catalog.NewRepository(pool), catalog.ServiceConfig{}).Directory(ctx, loc)
			if err != nil {
				return err
			}
			repo := ledger.NewRepository(pool)
			switch args[0] {
			case "outflows":
				rows, err := repo.ListOutflows(ctx, loc)
				if err != nil {
					return err
				}
				return printOutflows(cmd.OutOrStdout(), ledger.GroupByBatch(rows, tz), dir)
			case "inflows":
				rows, err := repo.ListInflows(ctx, loc)
				if err != nil {
					return err
				}
				return printInflows(cmd.OutOrStdout(), ledger.GroupByBatch(rows, tz), dir)
			default:
				return fmt.Errorf("unknown history %q, want outflows or inflows", args[0])
			}
		},
	}
	cmd.Flags().StringVar(&location, "location", string(shared.LocationSede), "sede or 506")
	return cmd
}

func printOutflows(out io.Writer, batches []ledger.Batch[ledger.OutflowEntry], dir catalog.Directory) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, b := range batches {
		first := b.Rows[0]
		fmt.Fprintf(w, "%s\t%s %s\t%s\t%s\ttotal %d\n",
			b.Key, first.Date, first.Time, dir.SectorName(first.SectorID), dir.OperatorName(first.OperatorID), b.TotalQuantity())
		for _, row := range b.Rows {
			fmt.Fprintf(w, "\t%d\t%s\t%d\t\n", row.LineNo, dir.ProductName(row.ProductID), row.Quantity)
		}
	}
	return w.Flush()
}

func printInflows(out io.Writer, batches []ledger.Batch[ledger.InflowEntry], dir catalog.Directory) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, b := range batches {
		first := b.Rows[0]
		fmt.Fprintf(w, "%s\t%s %s\t%s\ttotal %d\n",
			b.Key, first.Date, first.Time, dir.OperatorName(first.OperatorID), b.TotalQuantity())
		for _, row := range b.Rows {
			fmt.Fprintf(w, "\t%d\t%s\t%d\t%s\n", row.LineNo, dir.ProductName(row.ProductID), row.Quantity, row.UnitPrice.StringFixed(2))
		}
	}
	return w.Flush()
}
