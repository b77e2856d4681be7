package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"finsight/internal/predictor"
)

func newPredictCmd() *cobra.Command {
	var (
		symbolList string
		workers    int
		format     string
	)

	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Predict 7-day price moves for a set of symbols",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if workers > 0 {
				cfg.Predict.Workers = workers
			}

			if symbolList == "" {
				return fmt.Errorf("--symbols is required")
			}
			symbols := splitSymbols(symbolList)

			p, err := buildProvider(cfg)
			if err != nil {
				return err
			}
			st, err := buildStore(cfg)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
			go func() {
				<-sigChan
				fmt.Println("\nInterrupted. Stopping predictions...")
				cancel()
			}()

			o := predictor.NewOrchestrator(p, st, cfg.Predict.Workers, cfg.Predict.Timeout)

			bar := progressbar.NewOptions(len(symbols),
				progressbar.OptionEnableColorCodes(true),
				progressbar.OptionShowCount(),
				progressbar.OptionSetWidth(40),
				progressbar.OptionSetDescription("Predicting"),
				progressbar.OptionSetTheme(progressbar.Theme{
					Saucer:        "[green]█[reset]",
					SaucerHead:    "[green]█[reset]",
					SaucerPadding: "░",
					BarStart:      "[",
					BarEnd:        "]",
				}),
			)
			o.SetProgressCallback(func(done, total int) {
				bar.Set(done)
			})

			result, err := o.Run(ctx, symbols)
			if err != nil {
				return fmt.Errorf("predicting: %w", err)
			}

			bar.Finish()
			fmt.Println()

			if format == "json" {
				encoder := json.NewEncoder(os.Stdout)
				encoder.SetIndent("", "  ")
				return encoder.Encode(result)
			}
			return outputPredictionsTable(result)
		},
	}

	cmd.Flags().StringVar(&symbolList, "symbols", "", "comma-separated list of symbols to predict")
	cmd.Flags().IntVar(&workers, "workers", 0, "number of parallel workers (default from config)")
	cmd.Flags().StringVar(&format, "format", "table", "output format: table, json")

	return cmd
}

func splitSymbols(list string) []string {
	var symbols []string
	for _, s := range strings.Split(list, ",") {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s != "" {
			symbols = append(symbols, s)
		}
	}
	return symbols
}

func outputPredictionsTable(result *predictor.RunResult) error {
	if len(result.Predictions) == 0 {
		fmt.Println("No predictions produced.")
	} else {
		table := tablewriter.NewTable(os.Stdout,
			tablewriter.WithHeader([]string{"Symbol", "Last", "Predicted", "Confidence", "Risk", "Recommendation"}),
		)

		for _, p := range result.Predictions {
			table.Append([]string{
				p.Symbol,
				fmt.Sprintf("$%.2f", p.Features.LastClose),
				fmt.Sprintf("$%.2f", p.PredictedPrice),
				fmt.Sprintf("%d%%", p.Confidence),
				string(p.Risk),
				string(p.Recommendation),
			})
		}

		table.Render()
	}

	if len(result.Skips) > 0 {
		fmt.Printf("\nSkipped %d symbol(s):\n", len(result.Skips))
		for _, skip := range result.Skips {
			fmt.Printf("  %s: %s\n", skip.Symbol, skip.Reason)
		}
	}

	fmt.Printf("\nPredicted %d of %d symbols in %s\n",
		len(result.Predictions), len(result.Predictions)+len(result.Skips),
		result.Duration.Round(time.Millisecond))
	return nil
}
