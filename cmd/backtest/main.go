package main

import (
	"flag"
	"log"
	"os"

	"TradeSentinel/internal/backtest"
	"TradeSentinel/internal/config"
	"TradeSentinel/internal/strategy"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	var (
		cfgPath  = flag.String("config", "configs/config.yaml", "config file")
		file     = flag.String("file", "", "candle history CSV (required)")
		hold     = flag.Int("hold", 0, "hold horizon in candles (overrides config)")
		pipSize  = flag.Float64("pip-size", 0.0001, "price size of one pip")
		pipValue = flag.Float64("pip-value", 0, "value of one pip per lot (overrides config)")
	)
	flag.Parse()

	if *file == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("[FATAL] load config: %v", err)
	}
	if *hold == 0 {
		*hold = cfg.Backtest.HoldPeriod
	}
	if *pipValue == 0 {
		*pipValue = cfg.Backtest.PipValue
	}

	candles, err := backtest.LoadCSV(*file)
	if err != nil {
		log.Fatalf("[FATAL] %v", err)
	}
	log.Printf("[INFO] loaded %d candles from %s", len(candles), *file)

	catalog := strategy.Enabled(cfg)
	if len(catalog) == 0 {
		catalog = strategy.Catalog
	}
	log.Printf("[INFO] simulating %d strategies, hold=%d candles", len(catalog), *hold)

	engine := backtest.New(catalog, *hold, *pipSize, *pipValue)
	summary, err := engine.Run(candles)
	if err != nil {
		log.Fatalf("[FATAL] backtest: %v", err)
	}

	backtest.WriteReport(os.Stdout, summary)
}
