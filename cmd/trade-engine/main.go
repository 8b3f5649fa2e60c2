package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/joho/godotenv"

	"github.com/ducminhle1904/leverage-trade-engine/internal/breaker"
	"github.com/ducminhle1904/leverage-trade-engine/internal/config"
	"github.com/ducminhle1904/leverage-trade-engine/internal/exchange/adapters"
	"github.com/ducminhle1904/leverage-trade-engine/internal/executor"
	"github.com/ducminhle1904/leverage-trade-engine/internal/journal"
	"github.com/ducminhle1904/leverage-trade-engine/internal/logger"
	"github.com/ducminhle1904/leverage-trade-engine/internal/monitoring"
	"github.com/ducminhle1904/leverage-trade-engine/internal/notifications"
	"github.com/ducminhle1904/leverage-trade-engine/internal/pricefeed"
	"github.com/ducminhle1904/leverage-trade-engine/internal/risk"
	"github.com/ducminhle1904/leverage-trade-engine/internal/safety"
	"github.com/ducminhle1904/leverage-trade-engine/internal/session"
	"github.com/ducminhle1904/leverage-trade-engine/internal/sizing"
	"github.com/ducminhle1904/leverage-trade-engine/internal/storage"
	"github.com/ducminhle1904/leverage-trade-engine/pkg/types"
)

func main() {
	var (
		envFile = flag.String("env", ".env", "Environment file path (default: .env)")
		symbols = flag.String("symbols", "BTCUSDT", "Comma-separated symbols to stream prices for")
		demo    = flag.Bool("demo", false, "Use demo trading environment - paper trading")
	)
	flag.Parse()

	if err := loadEnvFile(*envFile); err != nil {
		log.Printf("Warning: Could not load .env file (%v), checking environment variables...", err)
	}

	fmt.Println("🚀 Trade Engine Starting...")

	cfg := config.Load()
	if *demo {
		cfg.Exchange.Demo = true
		cfg.Exchange.Testnet = false
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	engineLog, err := logger.NewLogger("engine")
	if err != nil {
		log.Fatalf("Failed to open log file: %v", err)
	}
	defer engineLog.Close()

	venue, err := adapters.NewExchange(cfg)
	if err != nil {
		log.Fatalf("Failed to create exchange client: %v", err)
	}

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		log.Fatalf("Failed to open trade store: %v", err)
	}

	notifier := buildNotifier(cfg)

	symbolList := splitSymbols(*symbols)
	feed := pricefeed.New(pricefeed.Config{
		URL:              cfg.Feed.WSURL,
		Symbols:          symbolList,
		HeartbeatEvery:   cfg.Feed.HeartbeatEvery,
		HeartbeatTimeout: cfg.Feed.HeartbeatTimeout,
		ReconnectBackoff: cfg.Feed.ReconnectBackoff,
		StaleTickAfter:   cfg.Feed.StaleTickAfter,
	}, venue, engineLog)
	if notifier != nil {
		feed.WithNotifier(notifier)
	}

	sessions := session.NewManager()
	blocks := session.NewBlockRegistry()
	book := executor.NewPositionBook()
	locks := safety.NewSymbolLocks()
	health := monitoring.NewHealthTracker()

	gate := risk.NewGate(risk.Limits{
		MaxDailyLossPct:          cfg.Risk.MaxDailyLossPct,
		MinMarginRatio:           cfg.Risk.MinMarginRatio,
		MaxPairExposurePct:       cfg.Risk.MaxPairExposurePct,
		MaxCorrelatedExposurePct: cfg.Risk.MaxCorrelatedExposurePct,
		MaxVolatilityPct:         cfg.Risk.MaxVolatilityPct,
	}, "USDT", venue, venue, store, book, engineLog)

	sizer := sizing.NewSizer(sizing.Caps{
		MaxPairExposurePct: cfg.Risk.MaxPairExposurePct,
		MaxPositionPct:     cfg.Risk.MaxPositionSizePct,
		GlobalMaxLeverage:  cfg.Risk.GlobalMaxLeverage,
	}, venue, sessions, book, engineLog)

	exec := executor.New(executor.Settings{
		DuplicateLookback:    cfg.Executor.DuplicateLookback,
		OpposingFlowRatio:    cfg.Executor.OpposingFlowRatio,
		ModifyMinDistancePct: cfg.Executor.ModifyMinDistancePct,
		QuoteAsset:           "USDT",
	}, venue, gate, sizer, feed, sessions, blocks, store, closeJournal{store}, book, locks, health, notifier, engineLog)

	monitor := executor.NewMonitor(exec, cfg.Executor.MonitorInterval, cfg.Executor.AdverseDriftPct, engineLog)

	circuitBreaker := breaker.New(breaker.Limits{
		MaxAccountDrawdown: cfg.Breaker.MaxAccountDrawdown,
		MaxVolatilityPct:   cfg.Breaker.VolatilityPct,
		MaxAPILatency:      cfg.Breaker.MaxAPILatency,
		MaxRecentErrors:    cfg.Breaker.MaxRecentErrors,
		MinFillSuccessRate: cfg.Breaker.MinFillSuccessRate,
		Cooldown:           cfg.Breaker.CooldownDuration,
	}, "USDT", cfg.Breaker.Interval, venue, venue, exec, book, health, blocks, notifier, engineLog)

	printStartupSummary(cfg, symbolList, venue.GetName())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	feed.Start(ctx)
	monitor.Start(ctx)
	circuitBreaker.Start(ctx)
	go trackFeedState(ctx, feed)

	go func() {
		if err := monitoring.ServeMetrics(cfg.Monitoring.PrometheusPort); err != nil {
			log.Printf("Metrics server stopped: %v", err)
		}
	}()
	go func() {
		if err := health.ServeHealth(cfg.Monitoring.HealthPort, func() map[string]interface{} {
			return map[string]interface{}{
				"feed_state":     string(feed.State()),
				"open_positions": len(book.OpenPositions()),
				"active_blocks":  len(blocks.Active(time.Now())),
			}
		}); err != nil {
			log.Printf("Health server stopped: %v", err)
		}
	}()

	go readSignals(ctx, exec, engineLog)

	if notifier != nil {
		if err := notifier.Notify(notifications.SeverityInfo, "Trade engine started",
			fmt.Sprintf("Streaming %s on %s", strings.Join(symbolList, ", "), venue.GetName())); err != nil {
			log.Printf("Failed to send startup notification: %v", err)
		}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	fmt.Println("\n🛑 Shutdown signal received...")

	cancel()
	feed.Stop()

	exportJournal(store, cfg.Storage.JournalDir)
	fmt.Println("✅ Engine stopped")
}

// closeJournal bridges the executor's close events into the store.
type closeJournal struct {
	store *storage.Store
}

func (j closeJournal) RecordClose(event executor.CloseEvent) error {
	return j.store.RecordClose(storage.CloseEvent{
		PositionID: event.PositionID,
		Symbol:     event.Symbol,
		PnL:        event.PnL,
		Reason:     event.Reason,
		ClosedAt:   event.ClosedAt,
	})
}

// readSignals consumes newline-delimited JSON signals from stdin and runs
// them through the executor. Rejections are normal operation and only
// logged; the loop never stops on a bad signal.
func readSignals(ctx context.Context, exec *executor.Executor, engineLog *logger.Logger) {
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 64*1024), 64*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var sig types.Signal
		if err := json.Unmarshal([]byte(line), &sig); err != nil {
			engineLog.Warning("unparseable signal dropped: %v", err)
			continue
		}
		sig.ReceivedAt = time.Now().UTC()

		position, err := exec.Execute(ctx, sig)
		if err != nil {
			engineLog.Info("signal %s %s %s rejected: %v",
				sig.Symbol, sig.Direction, sig.Strategy, err)
			continue
		}
		engineLog.Status("position %s opened from %s signal", position.ID, sig.Strategy)

		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

// trackFeedState mirrors the feed state machine into the metrics gauge.
func trackFeedState(ctx context.Context, feed *pricefeed.Feed) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			monitoring.SetFeedState(string(feed.State()))
		}
	}
}

func exportJournal(store *storage.Store, dir string) {
	path, err := journal.NewExcelExporter(store).ExportDaily(dir)
	if err != nil {
		log.Printf("Journal export failed: %v", err)
		return
	}
	fmt.Printf("📊 Trade journal written to %s\n", path)
}

func buildNotifier(cfg *config.Config) notifications.Notifier {
	var multi notifications.Multi
	if cfg.Notifications.SlackWebhookURL != "" {
		multi = append(multi, notifications.NewSlackNotifier(cfg.Notifications.SlackWebhookURL))
	}
	if cfg.Notifications.TelegramToken != "" && cfg.Notifications.TelegramChatID != "" {
		multi = append(multi, notifications.NewTelegramNotifier(
			cfg.Notifications.TelegramToken, cfg.Notifications.TelegramChatID))
	}
	if len(multi) == 0 {
		return nil
	}
	return multi
}

func printStartupSummary(cfg *config.Config, symbols []string, venueName string) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle("ENGINE CONFIGURATION")
	t.SetStyle(table.StyleRounded)

	t.AppendRows([]table.Row{
		{"🏪 Exchange", venueName},
		{"📊 Symbols", strings.Join(symbols, ", ")},
		{"🔧 Environment", environmentString(cfg)},
	})
	t.AppendSeparator()
	t.AppendRows([]table.Row{
		{"💰 Max Daily Loss", fmt.Sprintf("%.1f%%", cfg.Risk.MaxDailyLossPct)},
		{"📉 Max Drawdown", fmt.Sprintf("%.1f%%", cfg.Breaker.MaxAccountDrawdown)},
		{"🌊 Max Volatility", fmt.Sprintf("%.1f%%", cfg.Risk.MaxVolatilityPct)},
		{"🔗 Pair Exposure", fmt.Sprintf("%.1f%%", cfg.Risk.MaxPairExposurePct)},
		{"⚖️ Max Leverage", fmt.Sprintf("%.0fx", cfg.Risk.GlobalMaxLeverage)},
	})
	t.AppendSeparator()
	t.AppendRows([]table.Row{
		{"📈 Metrics Port", cfg.Monitoring.PrometheusPort},
		{"❤️ Health Port", cfg.Monitoring.HealthPort},
	})

	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, WidthMin: 18, WidthMax: 18, Align: text.AlignLeft},
		{Number: 2, WidthMin: 30, WidthMax: 40, Align: text.AlignLeft},
	})
	t.Render()
	fmt.Println()
}

func environmentString(cfg *config.Config) string {
	switch {
	case cfg.Exchange.Demo:
		return "DEMO (paper trading)"
	case cfg.Exchange.Testnet:
		return "TESTNET"
	default:
		return "MAINNET (live funds)"
	}
}

func loadEnvFile(envFile string) error {
	if _, err := os.Stat(envFile); err == nil {
		return godotenv.Load(envFile)
	}
	return fmt.Errorf("env file %s not found", envFile)
}

func splitSymbols(list string) []string {
	var out []string
	for _, s := range strings.Split(list, ",") {
		if s = strings.TrimSpace(strings.ToUpper(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}
