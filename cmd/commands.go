package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"auto-trader/internal/storage"
	"auto-trader/internal/strategy/database"
	"auto-trader/internal/strategy/engine"
	"auto-trader/pkg/config"
	"auto-trader/pkg/logger"
	"auto-trader/pkg/types"
)

var (
	cfg *types.Config

	evalSymbols    []string
	holdQuantity   float64
	holdPrice      float64
	holdHeld       bool
	importSymbol   string
	decisionLimit  int
	commandTimeout = 5 * time.Minute

	rootCmd = &cobra.Command{
		Use:   "auto-trader",
		Short: "Daily BUY/SELL/HOLD signal evaluator over precomputed indicators",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load()
			if err != nil {
				return fmt.Errorf("加载配置失败: %w", err)
			}
			if _, err := logger.Init(cfg.Log); err != nil {
				return fmt.Errorf("初始化日志失败: %w", err)
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = zap.L().Sync()
		},
		RunE: runServe,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduled evaluator until interrupted",
		RunE:  runServe,
	}

	evaluateCmd = &cobra.Command{
		Use:   "evaluate",
		Short: "Evaluate every configured symbol once and print the signals",
		RunE:  runEvaluate,
	}

	holdingsCmd = &cobra.Command{
		Use:   "holdings",
		Short: "Inspect or update the holdings snapshot",
	}

	holdingsGetCmd = &cobra.Command{
		Use:   "get SYMBOL...",
		Short: "Show holdings and the latest cached signal",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runHoldingsGet,
	}

	holdingsSetCmd = &cobra.Command{
		Use:   "set SYMBOL",
		Short: "Record the holdings snapshot for a symbol",
		Args:  cobra.ExactArgs(1),
		RunE:  runHoldingsSet,
	}

	importCmd = &cobra.Command{
		Use:   "import FILE",
		Short: "Load a precomputed indicator CSV into the indicator table",
		Args:  cobra.ExactArgs(1),
		RunE:  runImport,
	}

	decisionsCmd = &cobra.Command{
		Use:   "decisions SYMBOL",
		Short: "List the most recent audited evaluations for a symbol",
		Args:  cobra.ExactArgs(1),
		RunE:  runDecisions,
	}
)

func init() {
	evaluateCmd.Flags().StringSliceVar(&evalSymbols, "symbols", nil, "override strategy.symbols")

	holdingsSetCmd.Flags().Float64Var(&holdQuantity, "qty", 0, "position quantity")
	holdingsSetCmd.Flags().Float64Var(&holdPrice, "price", 0, "average entry price")
	holdingsSetCmd.Flags().BoolVar(&holdHeld, "held", true, "whether a position is open")

	importCmd.Flags().StringVar(&importSymbol, "symbol", "", "symbol the rows belong to")
	_ = importCmd.MarkFlagRequired("symbol")

	decisionsCmd.Flags().IntVar(&decisionLimit, "limit", 20, "number of rows")

	holdingsCmd.AddCommand(holdingsGetCmd, holdingsSetCmd)
	rootCmd.AddCommand(serveCmd, evaluateCmd, holdingsCmd, importCmd, decisionsCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	app, err := NewApp(cfg)
	if err != nil {
		return err
	}
	app.Start()
	app.WaitForShutdown()
	app.Stop()
	return nil
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	if len(evalSymbols) > 0 {
		cfg.Strategy.Symbols = normalizeSymbols(evalSymbols)
	}

	app, err := NewApp(cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
	defer cancel()

	results := app.engine.EvaluateAll(ctx)
	printResults(results)
	zap.L().Info("📊 评估完成", zap.Stringer("stats", app.engine.Stats()))
	return nil
}

func runHoldingsGet(cmd *cobra.Command, args []string) error {
	state := storage.NewStateManager(cfg.Redis)
	defer state.Close()

	ctx := cmd.Context()
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SYMBOL\tHELD\tQTY\tAVG PRICE\tLAST SIGNAL\tTRADE DATE")
	for _, symbol := range normalizeSymbols(args) {
		h, err := state.Holdings(ctx, symbol)
		if err != nil {
			return err
		}
		last, ok, err := state.LatestSignal(ctx, symbol)
		if err != nil {
			return err
		}
		signal, date := "-", "-"
		if ok {
			signal, date = last.Signal.String(), last.TradeDate.Format("2006-01-02")
		}
		fmt.Fprintf(w, "%s\t%t\t%g\t%g\t%s\t%s\n", symbol, h.Held, h.Quantity, h.AveragePrice, signal, date)
	}
	return w.Flush()
}

func runHoldingsSet(cmd *cobra.Command, args []string) error {
	if holdQuantity < 0 || holdPrice < 0 {
		return errors.New("qty 和 price 不能为负数")
	}

	state := storage.NewStateManager(cfg.Redis)
	defer state.Close()
	if !state.RedisEnabled() {
		zap.L().Warn("⚠️ 未连接Redis，持仓快照只在本进程内有效")
	}

	symbols := normalizeSymbols(args)
	if len(symbols) == 0 {
		return errors.New("标的不能为空")
	}
	symbol := symbols[0]
	h := types.Holdings{Held: holdHeld, Quantity: holdQuantity, AveragePrice: holdPrice}
	if err := state.SetHoldings(cmd.Context(), symbol, h); err != nil {
		return err
	}
	zap.L().Info("✅ 持仓已更新",
		zap.String("symbol", symbol),
		zap.Bool("held", h.Held),
		zap.Float64("qty", h.Quantity),
		zap.Float64("price", h.AveragePrice))
	return nil
}

func runImport(cmd *cobra.Command, args []string) error {
	symbols := normalizeSymbols([]string{importSymbol})
	if len(symbols) == 0 {
		return errors.New("标的不能为空")
	}

	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	series, err := database.ReadIndicatorCSV(f)
	if err != nil {
		return fmt.Errorf("解析 %s 失败: %w", args[0], err)
	}

	db, err := database.NewManager(cfg.Database.MySQL)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.SaveIndicatorBars(cmd.Context(), symbols[0], series); err != nil {
		return err
	}
	zap.L().Info("✅ 指标导入完成",
		zap.String("symbol", symbols[0]),
		zap.Int("rows", series.Len()))
	return nil
}

func runDecisions(cmd *cobra.Command, args []string) error {
	symbols := normalizeSymbols(args)
	if len(symbols) == 0 {
		return errors.New("标的不能为空")
	}

	db, err := database.NewManager(cfg.Database.MySQL)
	if err != nil {
		return err
	}
	defer db.Close()

	decisions, err := db.GetDecisions(cmd.Context(), symbols[0], decisionLimit)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "EVALUATED AT\tTRADE DATE\tSIGNAL\tVARIANT\tHELD\tERROR")
	for _, d := range decisions {
		signal, date := d.Signal, "-"
		if signal == "" {
			signal = "-"
		}
		if d.TradeDate != nil {
			date = d.TradeDate.Format("2006-01-02")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\t%s\n",
			d.CreatedAt.Format(time.DateTime), date, signal, d.Variant, d.Held, d.ErrorKind)
	}
	return w.Flush()
}

func printResults(results []engine.Result) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SYMBOL\tSIGNAL\tPREVIOUS\tTRADE DATE\tCLOSE\tRSI\tVOL RATIO\tERROR")
	for _, r := range results {
		if r.Err != nil {
			fmt.Fprintf(w, "%s\t-\t-\t-\t-\t-\t-\t%v\n", r.Symbol, r.Err)
			continue
		}
		e := r.Event
		prev := "-"
		if e.PreviousSignal.Valid() {
			prev = e.PreviousSignal.String()
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.2f\t%.2f\t%.2f\t\n",
			r.Symbol, e.Signal, prev, e.TradeDate.Format("2006-01-02"), e.Close, e.RSI, e.VolumeRatio)
	}
	_ = w.Flush()
}

func normalizeSymbols(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}
