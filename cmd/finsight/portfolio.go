package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"finsight/internal/store"
)

func newPortfolioCmd() *cobra.Command {
	var showOrders int

	cmd := &cobra.Command{
		Use:   "portfolio",
		Short: "Show positions, cash and recent orders",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			st, err := buildStore(cfg)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if err := printPortfolio(ctx, os.Stdout, st, cfg.Trading.UserID); err != nil {
				return err
			}

			if showOrders > 0 {
				return printOrders(ctx, os.Stdout, st, cfg.Trading.UserID, showOrders)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&showOrders, "orders", 0, "also show the N most recent orders")

	return cmd
}

func printPortfolio(ctx context.Context, w io.Writer, st store.Store, userID string) error {
	summary, err := st.GetSummary(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			fmt.Fprintln(w, "No portfolio yet. Run a trade first.")
			return nil
		}
		return fmt.Errorf("loading portfolio: %w", err)
	}

	positions, err := st.ListPositions(ctx, userID)
	if err != nil {
		return fmt.Errorf("loading positions: %w", err)
	}

	if len(positions) == 0 {
		fmt.Fprintln(w, "No open positions.")
	} else {
		table := tablewriter.NewTable(w,
			tablewriter.WithHeader([]string{"Symbol", "Qty", "Basis", "Value", "P/L", "P/L %"}),
		)

		for _, p := range positions {
			table.Append([]string{
				p.Symbol,
				fmt.Sprintf("%d", p.Quantity),
				fmt.Sprintf("$%.2f", p.CostBasis),
				fmt.Sprintf("$%.2f", p.MarketValue),
				fmt.Sprintf("%+.2f", p.UnrealizedPL),
				fmt.Sprintf("%+.2f%%", p.UnrealizedPct),
			})
		}

		table.Render()
	}

	fmt.Fprintf(w, "\nCash: $%.2f | Equity: $%.2f | Total: $%.2f\n",
		summary.Cash, summary.Equity, summary.Cash+summary.Equity)
	return nil
}

func printOrders(ctx context.Context, w io.Writer, st store.Store, userID string, limit int) error {
	orders, err := st.ListOrders(ctx, userID, limit)
	if err != nil {
		return fmt.Errorf("loading orders: %w", err)
	}
	if len(orders) == 0 {
		fmt.Fprintln(w, "\nNo orders yet.")
		return nil
	}

	fmt.Fprintln(w)
	table := tablewriter.NewTable(w,
		tablewriter.WithHeader([]string{"Time", "Side", "Qty", "Symbol", "Price", "Status", "Note"}),
	)

	for _, o := range orders {
		note := o.Note
		if len(note) > 40 {
			note = note[:40] + "..."
		}

		table.Append([]string{
			o.CreatedAt.Format("2006-01-02 15:04"),
			string(o.Side),
			fmt.Sprintf("%d", o.Quantity),
			o.Symbol,
			fmt.Sprintf("$%.2f", o.Price),
			string(o.Status),
			note,
		})
	}

	table.Render()
	return nil
}
