package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"SignalScanner/internal/api"
	"SignalScanner/internal/heartbeat"
	"SignalScanner/internal/model"
	"SignalScanner/internal/notifier"
	"SignalScanner/internal/recorder"

	"github.com/dustin/go-humanize"
	"github.com/sourcegraph/conc"
	"github.com/spf13/cobra"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the scanner, HTTP API and Telegram bot until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := configFrom(cmd)
			if err != nil {
				return err
			}
			cfg, err := loadConfig(path)
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			a.log.Info().Str("config", path).Int("workers", cfg.Scanner.Workers).
				Dur("interval", cfg.Scanner.Interval).Msg("SignalScanner starting")

			if err := a.sched.RegisterAll(); err != nil {
				return fmt.Errorf("register cron tasks: %w", err)
			}
			a.sched.Start()
			defer a.sched.Stop()

			var wg conc.WaitGroup
			defer wg.Wait()

			srv := api.NewServer(a.rec, a.registry, cfg.Heartbeat.StaleAfter, cfg.API.FeedInterval, a.log)
			wg.Go(func() {
				if err := srv.Run(ctx, cfg.API.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
					a.log.Error().Err(err).Msg("api server stopped")
					cancel()
				}
			})

			if a.telegram != nil {
				cmds := &notifier.Commands{Recorder: a.rec, StaleAfter: cfg.Heartbeat.StaleAfter}
				wg.Go(func() { a.telegram.StartPolling(ctx, cmds.Handle) })
				a.log.Info().Msg("telegram polling started")
			} else {
				a.log.Info().Msg("telegram not configured, notifications disabled")
			}

			if cfg.Scanner.RunOnStart {
				a.log.Info().Msg("run_on_start enabled, scanning now")
				wg.Go(func() { a.sched.RunCycle(ctx) })
			}

			<-ctx.Done()
			a.log.Info().Msg("shutdown signal received, stopping...")
			return nil
		},
	}
}

func newScanOnceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scan-once",
		Short: "Run a single scan cycle and print its report",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := configFrom(cmd)
			if err != nil {
				return err
			}
			cfg, err := loadConfig(path)
			if err != nil {
				return err
			}
			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			defer a.sched.Stop()

			rep := a.sched.RunCycle(ctx)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Cycle finished in %s\n", rep.FinishedAt.Sub(rep.StartedAt).Round(time.Millisecond))
			fmt.Fprintf(out, "  Symbols:  %d (%d units, %d skipped)\n", rep.Symbols, rep.Units, rep.Skipped)
			fmt.Fprintf(out, "  Signals:  %d (%d accepted, %d rejected)\n", rep.Signals, rep.Accepted, rep.Rejected)
			fmt.Fprintf(out, "  Errors:   %d\n", rep.Errors)
			if rep.Stopped {
				fmt.Fprintln(out, "  Stopped before all symbols were scanned")
			}
			return nil
		},
	}
}

func newSignalsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "signals",
		Short: "Summarize recent signals and closed-trade performance",
		Example: `  scanner signals
  scanner signals --hours 72 --limit 500`,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := configFrom(cmd)
			if err != nil {
				return err
			}
			cfg, err := loadConfig(path)
			if err != nil {
				return err
			}
			rec, _, logCloser, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer logCloser.Close()
			defer rec.Close()

			hours, _ := cmd.Flags().GetInt("hours")
			limit, _ := cmd.Flags().GetInt("limit")
			ctx := cmd.Context()

			signals, err := rec.RecentSignals(ctx, time.Now().Add(-time.Duration(hours)*time.Hour), limit)
			if err != nil {
				return err
			}
			trades, err := rec.ClosedTrades(ctx, 100000)
			if err != nil {
				return err
			}
			printSignals(cmd, signals, hours)
			printPerformance(cmd, recorder.Summarize(trades))
			return nil
		},
	}
	cmd.Flags().Int("hours", 24, "look-back window in hours")
	cmd.Flags().Int("limit", 1000, "maximum signals to read")
	return cmd
}

func printSignals(cmd *cobra.Command, signals []model.Signal, hours int) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Signals in the last %dh: %d\n", hours, len(signals))
	type group struct {
		strategy model.StrategyKind
		market   model.MarketClass
	}
	counts := map[group]map[model.SignalKind]int{}
	for _, s := range signals {
		g := group{s.Strategy, s.Market}
		if counts[g] == nil {
			counts[g] = map[model.SignalKind]int{}
		}
		counts[g][s.Kind]++
	}
	groups := make([]group, 0, len(counts))
	for g := range counts {
		groups = append(groups, g)
	}
	sort.Slice(groups, func(i, j int) bool {
		if groups[i].strategy != groups[j].strategy {
			return groups[i].strategy < groups[j].strategy
		}
		return groups[i].market < groups[j].market
	})
	for _, g := range groups {
		c := counts[g]
		fmt.Fprintf(out, "  %-8s %-6s long %d/%d  short %d/%d (entry/exit)\n",
			g.strategy.Label(), g.market,
			c[model.SignalLongEntry], c[model.SignalLongExit],
			c[model.SignalShortEntry], c[model.SignalShortExit])
	}
	if len(signals) > 0 {
		fmt.Fprintf(out, "  Latest: %s %s %s (%s)\n", signals[0].Symbol, signals[0].Strategy.Label(),
			signals[0].Kind, humanize.Time(signals[0].Timestamp))
	}
}

func printPerformance(cmd *cobra.Command, perf []recorder.Performance) {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "\nClosed-trade performance:")
	if len(perf) == 0 {
		fmt.Fprintln(out, "  No closed trades yet")
		return
	}
	for _, p := range perf {
		fmt.Fprintf(out, "  %-8s trades %d  win rate %.1f%%  pnl $%s  avg %.2f%%  best %.2f%%  worst %.2f%%\n",
			p.Strategy.Label(), p.TotalTrades, p.WinRate, humanize.CommafWithDigits(p.TotalPnLUSD, 2),
			p.AvgPnLPct, p.BestPnLPct, p.WorstPnLPct)
	}
}

func newCleanupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete signals older than the retention period",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := configFrom(cmd)
			if err != nil {
				return err
			}
			cfg, err := loadConfig(path)
			if err != nil {
				return err
			}
			rec, _, logCloser, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer logCloser.Close()
			defer rec.Close()

			retention := cfg.Database.SignalRetention
			if days, _ := cmd.Flags().GetInt("days"); days > 0 {
				retention = time.Duration(days) * 24 * time.Hour
			}
			if retention <= 0 {
				return fmt.Errorf("no retention configured; pass --days")
			}
			n, err := rec.PruneSignals(cmd.Context(), time.Now().Add(-retention))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s signals older than %s\n",
				humanize.Comma(n), humanize.Time(time.Now().Add(-retention)))
			return nil
		},
	}
	cmd.Flags().Int("days", 0, "retention in days (default: database.signal_retention)")
	return cmd
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report scanner liveness from the heartbeat file; exits non-zero when stale",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := configFrom(cmd)
			if err != nil {
				return err
			}
			cfg, err := loadConfig(path)
			if err != nil {
				return err
			}
			b, err := heartbeat.Load(cfg.Heartbeat.File)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			now := time.Now()
			if b.LastScan.IsZero() {
				fmt.Fprintln(out, "offline: no completed scan recorded")
				return errStale
			}
			state := "online"
			if b.Stale(now, cfg.Heartbeat.StaleAfter) {
				state = "offline"
			}
			fmt.Fprintf(out, "%s: last scan %s (%d symbols, %d signals, %d errors)\n",
				state, humanize.Time(b.LastScan), b.Symbols, b.Signals, b.Errors)
			if state == "offline" {
				return errStale
			}
			return nil
		},
	}
}

var errStale = errors.New("heartbeat is stale")
