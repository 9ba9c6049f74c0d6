package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	ossignal "os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/evdnx/gaptrader/config"
	"github.com/evdnx/gaptrader/engine"
	"github.com/evdnx/gaptrader/executor"
	"github.com/evdnx/gaptrader/feed"
	"github.com/evdnx/gaptrader/indicator"
	"github.com/evdnx/gaptrader/journal"
	"github.com/evdnx/gaptrader/logger"
	"github.com/evdnx/gaptrader/metrics"
	"github.com/evdnx/gaptrader/position"
	"github.com/evdnx/gaptrader/risk"
	"github.com/evdnx/gaptrader/session"
	"github.com/evdnx/gaptrader/signal"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to YAML configuration")
	paper := flag.Bool("paper", true, "run against the in-memory paper gateway")
	paperEquity := flag.Float64("paper-equity", 10_000, "starting equity in paper mode")
	flag.Parse()

	if err := run(*configPath, *paper, *paperEquity); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath string, paper bool, paperEquity float64) error {
	// .env is optional; real deployments set the variables directly.
	_ = godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log, err := logger.NewZapLogger()
	if err != nil {
		return err
	}

	var gw executor.Gateway
	if paper {
		gw = executor.NewPaperGateway(paperEquity)
		log.Info("paper_gateway", logger.Float64("equity", paperEquity))
	} else {
		creds, err := config.CredentialsFromEnv()
		if err != nil {
			return err
		}
		return fmt.Errorf("no live gateway wired for server %s; run with -paper", creds.Server)
	}

	sched, err := session.NewScheduler(cfg.Session)
	if err != nil {
		return err
	}

	var jrnl journal.Writer = journal.Nop{}
	if cfg.Journal.Enabled {
		jrnl, err = journal.NewCSVWriter(cfg.Journal.Filename)
		if err != nil {
			return err
		}
		defer jrnl.Close()
	}

	ctx, stop := ossignal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	wsFeed := feed.NewWSFeed(cfg.FeedURL, log)
	wsFeed.Connect(ctx)
	defer wsFeed.Close()

	if cfg.MetricsAddr != "" {
		srv := metrics.Serve(cfg.MetricsAddr)
		defer srv.Close()
		log.Info("metrics_listening", logger.String("addr", cfg.MetricsAddr))
	}

	eq, err := gw.AccountEquity(ctx)
	if err != nil {
		return fmt.Errorf("initial equity: %w", err)
	}
	startEquity, _ := eq.Float64()

	orch := engine.NewOrchestrator(
		cfg, log, wsFeed, gw,
		indicator.NewEngine(cfg),
		signal.NewGenerator(cfg),
		risk.NewManager(cfg, log, startEquity),
		position.NewManager(cfg, log),
		sched, jrnl,
	)

	log.Info("engine_started",
		logger.Int("symbols", len(cfg.Symbols)),
		logger.Int("timeframes", len(cfg.Timeframes)),
		logger.Int("poll_seconds", cfg.PollSeconds))
	orch.Run(ctx)
	log.Info("engine_stopped")
	return nil
}
