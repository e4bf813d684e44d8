package main

import (
	"context"
	"errors"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"syscall"

	"TradeSentinel/internal/broker"
	"TradeSentinel/internal/config"
	"TradeSentinel/internal/engine"
	"TradeSentinel/internal/ledger"
	"TradeSentinel/internal/monitor"
	"TradeSentinel/internal/notifier"
	"TradeSentinel/internal/position"
	"TradeSentinel/internal/risk"
	"TradeSentinel/internal/scheduler"
	"TradeSentinel/internal/strategy"
	"TradeSentinel/internal/trade"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("[INFO] TradeSentinel starting...")

	// Load config
	cfgPath := "configs/config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		cfgPath = v
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("[FATAL] load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("[FATAL] config validation: %v", err)
	}

	// Broker gateway: the REST bridge when configured, otherwise the
	// in-memory mock for dry runs.
	var gw broker.Gateway
	var source broker.CandleSource
	if cfg.Broker.BaseURL != "" {
		bridge := broker.NewBridgeClient(cfg.Broker.BaseURL, cfg.Broker.APIKey, cfg.Proxy, cfg.Broker.ConnectRetries)
		gw, source = bridge, bridge
	} else {
		mock := broker.NewMockGateway()
		gw, source = mock, mock
		log.Println("[WARN] no broker configured, running against the mock gateway")
	}
	log.Printf("[INFO] broker gateway: %s", gw.Name())

	// Audit ledger: JSONL and SQLite fan out when both are configured.
	var sinks []ledger.Ledger
	if cfg.Ledger.JSONLPath != "" {
		jl, err := ledger.NewJSONLLedger(cfg.Ledger.JSONLPath)
		if err != nil {
			log.Fatalf("[FATAL] init jsonl ledger: %v", err)
		}
		defer jl.Close()
		sinks = append(sinks, jl)
	}
	if cfg.Ledger.SQLitePath != "" {
		sl, err := ledger.NewSQLiteLedger(cfg.Ledger.SQLitePath)
		if err != nil {
			log.Printf("[WARN] init sqlite ledger failed, continuing without it: %v", err)
		} else {
			defer sl.Close()
			sinks = append(sinks, sl)
		}
	}
	var audit ledger.Ledger
	switch len(sinks) {
	case 0:
		audit = ledger.NewNoopLedger()
	case 1:
		audit = sinks[0]
	default:
		audit = ledger.NewMultiLedger(sinks...)
	}

	// Rebuild the registry from the audit log so a restart does not orphan
	// tracked positions. The first monitor cycle reconciles the result
	// against the broker's live book.
	registry := position.NewRegistry()
	if cfg.Ledger.JSONLPath != "" {
		if events, err := ledger.ReadJSONL(cfg.Ledger.JSONLPath); err == nil {
			replayed := ledger.ReplayPositions(events)
			for _, p := range replayed {
				registry.Track(p)
			}
			if len(replayed) > 0 {
				log.Printf("[INFO] replayed %d open position(s) from audit log", len(replayed))
			}
		} else if !errors.Is(err, fs.ErrNotExist) {
			log.Printf("[WARN] audit log replay failed: %v", err)
		}
	}

	// Operator notifier
	var notify notifier.Notifier
	var telegram *notifier.TelegramNotifier
	if cfg.Notifier.BotToken != "" && cfg.Notifier.ChatID != "" {
		telegram = notifier.NewTelegramNotifier(cfg.Notifier.BotToken, cfg.Notifier.ChatID, cfg.Proxy)
		notify = telegram
	} else {
		notify = notifier.NewLogNotifier()
		log.Println("[WARN] no Telegram credentials, operator alerts go to the log")
	}

	catalog := strategy.Enabled(cfg)
	if len(catalog) == 0 {
		log.Println("[WARN] no strategies enabled in config, running the full catalog")
		catalog = strategy.Catalog
	}
	log.Printf("[INFO] %d strategies active, symbol %s", len(catalog), cfg.Session.Symbol)

	riskMgr := risk.NewManager(cfg.Session.MoneyLimit, cfg.Session.RiskPerTradePct, cfg.Session.DailyProfitLimit)
	trades := trade.NewManager(gw, registry, audit, notify)
	analyzer := strategy.NewAnalyzer(catalog, cfg.Session.MaxOrdersPerCandle)
	mon := monitor.New(cfg, gw, registry, riskMgr, trades, analyzer, audit, notify)
	eng := engine.New(cfg, source, gw, analyzer, riskMgr, trades, mon, audit)

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sched := scheduler.New(ctx, cfg, eng, mon, trades, registry, riskMgr, gw, notify)
	if err := sched.RegisterAll(cfg.Monitor.Interval); err != nil {
		log.Fatalf("[FATAL] register cron tasks: %v", err)
	}
	sched.Start()

	if telegram != nil {
		go telegram.StartPolling(ctx, sched.HandleCommand)
		log.Println("[INFO] Telegram polling started")
	}

	log.Println("[INFO] TradeSentinel is running. Press Ctrl+C to stop.")

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("[INFO] shutdown signal received, stopping...")
	sched.Stop()
	cancel()
	log.Println("[INFO] TradeSentinel stopped")
}
