package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"google.golang.org/genai"

	"finsight/internal/broker"
	"finsight/internal/engine"
	"finsight/internal/intent"
	"finsight/internal/provider"
	"finsight/internal/store"
	"finsight/pkg/model"
)

func newAssistCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "assist [message]",
		Short: "Chat with the finance assistant",
		Long: `Starts an interactive session. Plain trade instructions like
"buy 5 shares of AAPL" execute directly; anything else is classified by
Gemini. Type 'bye' to exit.`,
		RunE: func(cmd *cobra.Command, args []string) error {
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

			ctx := cmd.Context()

			var classifier *intent.GeminiClassifier
			if cfg.API.GeminiKey != "" {
				client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: cfg.API.GeminiKey})
				if err != nil {
					return fmt.Errorf("initializing Gemini client: %w", err)
				}
				classifier = intent.NewGeminiClassifier(client)
			}

			eng := engine.New(st, p, broker.NewPaperGateway(p))
			if err := eng.EnsureAccount(ctx, cfg.Trading.UserID, cfg.Trading.StartingCash); err != nil {
				return fmt.Errorf("preparing account: %w", err)
			}

			a := &assistant{
				resolver:   newAssistResolver(classifier),
				classifier: classifier,
				engine:     eng,
				provider:   p,
				store:      st,
				userID:     cfg.Trading.UserID,
				w:          os.Stdout,
				r:          bufio.NewReader(os.Stdin),
			}
			return a.run(ctx, strings.Join(args, " "))
		},
	}

	return cmd
}

func newAssistResolver(c *intent.GeminiClassifier) *intent.Resolver {
	if c == nil {
		// Pattern-only mode: plain trades still work without an API key
		return intent.NewResolver(nil)
	}
	return intent.NewResolver(c)
}

type assistant struct {
	resolver   *intent.Resolver
	classifier *intent.GeminiClassifier
	engine     *engine.Engine
	provider   provider.Provider
	store      store.Store
	userID     string
	w          io.Writer
	r          *bufio.Reader
}

const assistPrompt = "assist> "

// run is the REPL loop. An initial message, when given, is handled first.
func (a *assistant) run(ctx context.Context, initial string) error {
	fmt.Fprintln(a.w, "Finsight assistant. Type 'bye' to exit.")

	pending := strings.TrimSpace(initial)
	for {
		var input string
		if pending != "" {
			input, pending = pending, ""
			fmt.Fprintf(a.w, "%s%s\n", assistPrompt, input)
		} else {
			fmt.Fprint(a.w, assistPrompt)
			line, err := a.r.ReadString('\n')
			if err != nil {
				if err == io.EOF {
					return nil // Clean exit on Ctrl+D
				}
				return err
			}
			input = strings.TrimSpace(line)
		}

		if input == "" {
			continue
		}
		if input == "bye" {
			return nil
		}

		if err := a.handle(ctx, input); err != nil {
			fmt.Fprintf(a.w, "%v\n", err)
		}
	}
}

func (a *assistant) handle(ctx context.Context, input string) error {
	resolved, err := a.resolver.Resolve(ctx, input)
	if err != nil {
		var perr *intent.IntentParseError
		if errors.As(err, &perr) {
			return fmt.Errorf("sorry, I couldn't work out what to do with that (%s)", perr.Reason)
		}
		return err
	}

	switch resolved.Action {
	case intent.ActionBuy, intent.ActionSell:
		return a.trade(ctx, resolved)

	case intent.ActionGetPrice:
		quote, err := a.provider.GetQuote(ctx, resolved.Symbol)
		if err != nil {
			return fmt.Errorf("no quote for %s: %w", resolved.Symbol, err)
		}
		fmt.Fprintf(a.w, "%s: $%.2f (%+.2f%%)\n", quote.Symbol, quote.Price, quote.ChangePercent)
		return nil

	case intent.ActionGetPortfolio:
		return printPortfolio(ctx, a.w, a.store, a.userID)

	case intent.ActionGeneral:
		if a.classifier == nil {
			fmt.Fprintln(a.w, "I can only handle trades, quotes and portfolio questions without a GEMINI_API_KEY.")
			return nil
		}
		answer, err := a.classifier.Advise(ctx, input)
		if err != nil {
			return err
		}
		fmt.Fprintln(a.w, answer)
		return nil
	}

	return fmt.Errorf("unhandled action %s", resolved.Action)
}

func (a *assistant) trade(ctx context.Context, resolved *intent.Intent) error {
	side := model.OrderSideBuy
	if resolved.Action == intent.ActionSell {
		side = model.OrderSideSell
	}

	order, err := a.engine.Execute(ctx, engine.TradeRequest{
		UserID:   a.userID,
		Symbol:   resolved.Symbol,
		Quantity: resolved.Quantity,
		Side:     side,
	})
	if err != nil {
		return describeTradeError(err)
	}

	fmt.Fprintf(a.w, "Done: %s %d %s @ $%.2f\n",
		side, order.Quantity, order.Symbol, order.Price)
	return nil
}
