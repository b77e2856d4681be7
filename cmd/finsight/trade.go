package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"finsight/internal/broker"
	"finsight/internal/engine"
	"finsight/internal/intent"
	"finsight/pkg/model"
)

func newTradeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trade <buy|sell> <quantity> <symbol>",
		Short: "Execute a paper trade",
		Long: `Executes a market order against the paper gateway. Accepts either
positional arguments or a quoted instruction:

  finsight trade buy 10 AAPL
  finsight trade "sell 5 shares of TSLA"`,
		Args: cobra.RangeArgs(1, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			side, qty, symbol, err := parseTradeArgs(cmd.Context(), args)
			if err != nil {
				return err
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			p, err := buildProvider(cfg)
			if err != nil {
				return err
			}
			st, err := buildStore(cfg)
			if err != nil {
				return err
			}

			eng := engine.New(st, p, broker.NewPaperGateway(p))
			ctx := cmd.Context()

			if err := eng.EnsureAccount(ctx, cfg.Trading.UserID, cfg.Trading.StartingCash); err != nil {
				return fmt.Errorf("preparing account: %w", err)
			}

			order, err := eng.Execute(ctx, engine.TradeRequest{
				UserID:   cfg.Trading.UserID,
				Symbol:   symbol,
				Quantity: qty,
				Side:     side,
			})
			if err != nil {
				return describeTradeError(err)
			}

			fmt.Printf("%s %d %s @ $%.2f (order %s)\n",
				strings.ToUpper(string(order.Side)), order.Quantity, order.Symbol,
				order.Price, order.OrderID)
			return nil
		},
	}

	return cmd
}

// parseTradeArgs accepts "buy 10 AAPL" as three arguments or a single
// free-text instruction run through the pattern resolver
func parseTradeArgs(ctx context.Context, args []string) (model.OrderSide, int64, string, error) {
	if len(args) == 1 {
		resolved, err := intent.NewResolver(nil).Resolve(ctx, args[0])
		if err != nil {
			return "", 0, "", fmt.Errorf("could not parse trade instruction %q (try: buy 10 AAPL)", args[0])
		}
		side := model.OrderSideBuy
		if resolved.Action == intent.ActionSell {
			side = model.OrderSideSell
		}
		return side, resolved.Quantity, resolved.Symbol, nil
	}

	if len(args) != 3 {
		return "", 0, "", fmt.Errorf("expected <buy|sell> <quantity> <symbol>")
	}

	side := model.OrderSide(strings.ToLower(args[0]))
	if side != model.OrderSideBuy && side != model.OrderSideSell {
		return "", 0, "", fmt.Errorf("side must be buy or sell, got %q", args[0])
	}

	qty, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil || qty <= 0 {
		return "", 0, "", fmt.Errorf("quantity must be a positive whole number, got %q", args[1])
	}

	return side, qty, strings.ToUpper(args[2]), nil
}

// describeTradeError keeps rejection output human-readable while still
// failing the command
func describeTradeError(err error) error {
	var funds *engine.InsufficientFundsError
	if errors.As(err, &funds) {
		return fmt.Errorf("rejected: need $%.2f but only $%.2f available", funds.Required, funds.Available)
	}

	var shares *engine.InsufficientSharesError
	if errors.As(err, &shares) {
		return fmt.Errorf("rejected: asked to sell %d shares of %s but only %d held",
			shares.Requested, shares.Symbol, shares.Held)
	}

	var price *engine.PriceUnavailableError
	if errors.As(err, &price) {
		return fmt.Errorf("rejected: no current price for %s", price.Symbol)
	}

	return err
}
