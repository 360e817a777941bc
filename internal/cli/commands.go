package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"SpotTradeBot/internal/models"
	"SpotTradeBot/internal/operations/backtest"
	"SpotTradeBot/internal/operations/price"
	"SpotTradeBot/internal/repositories"
	"SpotTradeBot/internal/services/regime"
	"SpotTradeBot/internal/services/risk"
	"SpotTradeBot/internal/services/strategy"
)

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:          "spotbot",
		Short:        "Regime-aware spot trading bot",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML configuration file (environment overrides it)")

	load := func() (*app, error) { return newApp(configPath) }

	rootCmd.AddCommand(newRunCmd(load))
	rootCmd.AddCommand(newBacktestCmd(load))
	rootCmd.AddCommand(newTradesCmd(load))
	rootCmd.AddCommand(newMarketsCmd(load))

	return rootCmd
}

type appLoader func() (*app, error)

func newRunCmd(load appLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the trading bot and its control API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := load()
			if err != nil {
				return err
			}
			defer a.Close()
			return runBot(cmd.Context(), a)
		},
	}
}

func newBacktestCmd(load appLoader) *cobra.Command {
	var (
		symbol string
		days   int
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "backtest",
		Short: "Replay recent candles through the strategy on a paper account",
		Long: `Download the last --days of klines for --symbol, store them in the candle
store and replay them bar by bar through the live signal, sizing and position code.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if days <= 0 {
				return fmt.Errorf("--days must be positive")
			}
			a, err := load()
			if err != nil {
				return err
			}
			defer a.Close()

			results, err := runBacktest(cmd.Context(), a, strings.ToUpper(symbol), days)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(results)
			}
			printResults(cmd.OutOrStdout(), results)
			return nil
		},
	}

	cmd.Flags().StringVar(&symbol, "symbol", "BTCUSDT", "Symbol to replay")
	cmd.Flags().IntVar(&days, "days", 30, "Number of days to replay")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the full results as JSON")
	return cmd
}

func newTradesCmd(load appLoader) *cobra.Command {
	var (
		symbol string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "trades",
		Short: "Show the trade history, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := load()
			if err != nil {
				return err
			}
			defer a.Close()

			symbol = strings.ToUpper(symbol)
			logs, err := a.trades.History(cmd.Context(), symbol, limit)
			if err != nil {
				return err
			}
			profit, err := a.trades.RealizedProfit(cmd.Context(), symbol)
			if err != nil {
				return err
			}
			printTrades(cmd.OutOrStdout(), logs, profit)
			return nil
		},
	}

	cmd.Flags().StringVar(&symbol, "symbol", "", "Only this symbol (all when empty)")
	cmd.Flags().IntVar(&limit, "limit", repositories.DefaultHistoryLimit, "Maximum number of entries")
	return cmd
}

func newMarketsCmd(load appLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "markets",
		Short: "List tradable symbols for the configured quote asset",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := load()
			if err != nil {
				return err
			}
			defer a.Close()

			markets, err := a.exchange.Markets(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "SYMBOL\tBASE\tQUOTE")
			for _, m := range markets {
				fmt.Fprintf(w, "%s\t%s\t%s\n", m.Symbol, m.BaseAsset, m.QuoteAsset)
			}
			return w.Flush()
		},
	}
}

// runBacktest fetches the replay range plus a warm-up prefix, stores it and
// replays the stored series.
func runBacktest(ctx context.Context, a *app, symbol string, days int) (*backtest.BacktestResults, error) {
	cfg := a.cfg
	interval := cfg.Exchange.Interval
	step, err := price.IntervalDuration(interval)
	if err != nil {
		return nil, err
	}

	end := time.Now().UTC().Truncate(step)
	start := end.Add(-time.Duration(days) * 24 * time.Hour).Add(-time.Duration(cfg.Strategy.MinBars) * step)

	fetcher := price.NewFetcher(a.exchange, a.log)
	fetched, err := fetcher.FetchRange(ctx, symbol, interval, start, end)
	if err != nil {
		return nil, fmt.Errorf("fetch klines: %w", err)
	}
	if err := a.candles.UpsertBatch(ctx, fetched); err != nil {
		return nil, fmt.Errorf("store klines: %w", err)
	}
	// The bar opening at end is still forming.
	candles, err := a.candles.Find(ctx, symbol, interval, start, end.Add(-time.Millisecond))
	if err != nil {
		return nil, fmt.Errorf("load klines: %w", err)
	}

	btCfg := backtest.NewConfig(symbol)
	btCfg.Interval = interval
	btCfg.InitialBalance = cfg.Trading.PaperCapital
	btCfg.FeeRate = cfg.Trading.PaperFeeRate
	btCfg.MinOrderNotional = cfg.Trading.MinOrderNotional
	btCfg.Window = cfg.Exchange.CandleCount
	btCfg.Warmup = cfg.Strategy.MinBars

	classifier := regime.NewClassifier(regimeConfig(cfg.Strategy), a.log)
	engine := backtest.NewEngine(
		classifier,
		strategy.NewSignalEngine(classifier, strategyParams(cfg.Strategy), a.log),
		risk.NewSizer(riskConfig(cfg.Trading)),
		btCfg,
		a.log,
	)
	return engine.RunBacktest(ctx, candles)
}

func printResults(out io.Writer, r *backtest.BacktestResults) {
	fmt.Fprintln(out, "=== Backtest Results ===")
	fmt.Fprintf(out, "Total Trades:      %d\n", r.TotalTrades)
	fmt.Fprintf(out, "Winning Trades:    %d (%.2f%%)\n", r.WinningTrades, r.WinRate*100)
	fmt.Fprintf(out, "Losing Trades:     %d\n", r.LosingTrades)
	fmt.Fprintf(out, "Signals:           %d (%d rejected by sizer)\n", r.Signals, r.SizingRejections)
	fmt.Fprintf(out, "Average PnL:       %.2f\n", r.AveragePnL)
	fmt.Fprintf(out, "Max Drawdown:      %.2f%%\n", r.MaxDrawdown*100)
	fmt.Fprintf(out, "Final Balance:     %.2f\n", r.FinalBalance)
	fmt.Fprintf(out, "Sharpe Ratio:      %.2f\n", r.SharpeRatio)

	if len(r.Trades) == 0 {
		return
	}
	fmt.Fprintln(out)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ENTRY\tEXIT\tTACTIC\tENTRY PRICE\tEXIT PRICE\tPNL\tREASON")
	for _, t := range r.Trades {
		fmt.Fprintf(w, "%s\t%s\t%s\t%.4f\t%.4f\t%.2f\t%s\n",
			t.EntryTime.Format(time.DateTime), t.ExitTime.Format(time.DateTime),
			t.Tactic, t.EntryPrice, t.ExitPrice, t.PnL, t.Reason)
	}
	w.Flush()
}

func printTrades(out io.Writer, logs []models.TradeLog, realized float64) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tSYMBOL\tSIDE\tPRICE\tQUANTITY\tPROFIT\tSTRATEGY\tREASON")
	for _, l := range logs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%.4f\t%.8f\t%.2f\t%s\t%s\n",
			l.Timestamp.Format(time.DateTime), l.Symbol, l.Side, l.Price, l.Quantity, l.Profit, l.Strategy, l.Reason)
	}
	w.Flush()
	fmt.Fprintf(out, "\nRealized profit: %.2f\n", realized)
}
