package scheduler

import (
	"context"
	"fmt"
	"log"

	"github.com/robfig/cron/v3"

	"TradeSentinel/internal/broker"
	"TradeSentinel/internal/config"
	"TradeSentinel/internal/engine"
	"TradeSentinel/internal/monitor"
	"TradeSentinel/internal/notifier"
	"TradeSentinel/internal/position"
	"TradeSentinel/internal/risk"
	"TradeSentinel/internal/trade"
)

// dailySummaryCron fires shortly before the trading day ends, server time.
const dailySummaryCron = "0 55 23 * * *"

// Scheduler drives the session: the entry engine and the position monitor
// run on every tick, and the account summary goes out once a day.
type Scheduler struct {
	Cron     *cron.Cron
	Engine   *engine.Engine
	Monitor  *monitor.Monitor
	Trades   *trade.Manager
	Registry *position.Registry
	RiskMgr  *risk.Manager
	Gateway  broker.Gateway
	Notifier notifier.Notifier
	Symbol   string
	Ctx      context.Context
}

func New(ctx context.Context, cfg *config.Config, eng *engine.Engine, mon *monitor.Monitor, trades *trade.Manager, reg *position.Registry, riskMgr *risk.Manager, gw broker.Gateway, n notifier.Notifier) *Scheduler {
	return &Scheduler{
		// Skip a tick rather than stack it: a slow close protocol must not
		// race a second supervision pass over the same book.
		Cron:     cron.New(cron.WithSeconds(), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		Engine:   eng,
		Monitor:  mon,
		Trades:   trades,
		Registry: reg,
		RiskMgr:  riskMgr,
		Gateway:  gw,
		Notifier: n,
		Symbol:   cfg.Session.Symbol,
		Ctx:      ctx,
	}
}

// RegisterAll wires the tick and summary jobs. interval is a duration string
// like "2s" fed to cron's @every descriptor.
func (s *Scheduler) RegisterAll(interval string) error {
	if _, err := s.Cron.AddFunc("@every "+interval, s.tick); err != nil {
		return fmt.Errorf("register tick task: %w", err)
	}
	if _, err := s.Cron.AddFunc(dailySummaryCron, s.dailySummary); err != nil {
		return fmt.Errorf("register daily summary: %w", err)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	log.Println("[INFO] scheduler started")
}

// Stop drains the scheduler: no new ticks fire, running jobs complete, and
// any in-flight broker operation finishes before this returns.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	s.Trades.Wait()
	log.Println("[INFO] scheduler stopped")
}

// tick runs one supervision pass before evaluating fresh candles, so exits
// and the profit cap act on the book before any new entry is taken.
func (s *Scheduler) tick() {
	s.Monitor.Cycle(s.Ctx)
	s.Engine.Tick(s.Ctx)
}

func (s *Scheduler) dailySummary() {
	log.Println("[INFO] sending daily summary")
	if err := s.Notifier.Send(s.statusReport()); err != nil {
		log.Printf("[ERROR] send daily summary: %v", err)
	}
}

func (s *Scheduler) statusReport() string {
	acct, err := s.Gateway.Account()
	if err != nil {
		return fmt.Sprintf("account unavailable: %v", err)
	}
	return notifier.FormatDailySummary(s.Symbol, acct, s.RiskMgr.DayProfit(acct.Equity), s.Registry.Len(), s.RiskMgr.Capped())
}

// HandleCommand processes an operator command and returns a reply.
func (s *Scheduler) HandleCommand(command string) string {
	switch command {
	case "/status":
		return s.statusReport()
	case "/positions":
		return notifier.FormatPositions(s.Registry.Snapshot())
	case "/closeall":
		go func() {
			if err := s.Trades.CloseAll(s.Ctx, "operator_request"); err != nil {
				log.Printf("[ERROR] operator close all: %v", err)
			}
		}()
		return "Closing all positions…"
	default:
		return "Commands:\n• /status\n• /positions\n• /closeall"
	}
}
