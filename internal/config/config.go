package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config is the process-wide engine configuration, loaded from the
// environment. Strategy-level settings (leverage, risk %, timing windows)
// live in internal/strategy; everything here is account- or process-scoped.
type Config struct {
	Environment string
	LogLevel    string

	Exchange struct {
		Name      string
		APIKey    string
		APISecret string
		Testnet   bool
		Demo      bool
		Category  string // linear, inverse
	}

	Feed struct {
		WSURL            string
		HeartbeatEvery   time.Duration
		HeartbeatTimeout time.Duration
		ReconnectBackoff time.Duration
		StaleTickAfter   time.Duration
	}

	Risk struct {
		MaxDailyLossPct          float64 // % of balance allowed as realized daily loss
		MinMarginRatio           float64 // available / required margin floor
		MaxPairExposurePct       float64 // % of balance per symbol
		MaxCorrelatedExposurePct float64 // % of balance per correlation group
		MaxVolatilityPct         float64 // ATR/price ceiling, percent
		MaxPositionSizePct       float64 // % of balance per single position
		GlobalMaxLeverage        float64
	}

	Executor struct {
		DuplicateLookback    time.Duration
		OpposingFlowRatio    float64 // opposing book volume multiple that rejects entry
		ModifyMinDistancePct float64 // minimum SL/TP distance from price on modify
		AdverseDriftPct      float64 // resting-order drift that triggers a cancel sweep
		MonitorInterval      time.Duration
	}

	Breaker struct {
		Interval            time.Duration
		MaxAccountDrawdown  float64 // percent of balance
		VolatilityPct       float64 // ATR/price ceiling, percent
		MaxAPILatency       time.Duration
		MaxRecentErrors     int
		MinFillSuccessRate  float64
		CooldownDuration    time.Duration
		EmergencySlippage   float64
	}

	Monitoring struct {
		PrometheusPort int
		HealthPort     int
	}

	Notifications struct {
		SlackWebhookURL string
		TelegramToken   string
		TelegramChatID  string
	}

	Storage struct {
		DataDir    string
		JournalDir string
	}
}

// Load builds the configuration from environment variables, applying the
// engine's defaults for anything unset.
func Load() *Config {
	cfg := &Config{
		Environment: getEnv("ENV", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
	}

	cfg.Exchange.Name = getEnv("EXCHANGE_NAME", "bybit")
	cfg.Exchange.APIKey = getEnv("EXCHANGE_API_KEY", "")
	cfg.Exchange.APISecret = getEnv("EXCHANGE_API_SECRET", "")
	cfg.Exchange.Testnet = getEnvBool("EXCHANGE_TESTNET", true)
	cfg.Exchange.Demo = getEnvBool("EXCHANGE_DEMO", false)
	cfg.Exchange.Category = getEnv("EXCHANGE_CATEGORY", "linear")

	cfg.Feed.WSURL = getEnv("FEED_WS_URL", "wss://stream.bybit.com/v5/public/linear")
	cfg.Feed.HeartbeatEvery = getEnvDuration("FEED_HEARTBEAT_INTERVAL", 15*time.Second)
	cfg.Feed.HeartbeatTimeout = getEnvDuration("FEED_HEARTBEAT_TIMEOUT", 30*time.Second)
	cfg.Feed.ReconnectBackoff = getEnvDuration("FEED_RECONNECT_BACKOFF", 5*time.Second)
	cfg.Feed.StaleTickAfter = getEnvDuration("FEED_STALE_TICK_AFTER", time.Minute)

	cfg.Risk.MaxDailyLossPct = getEnvFloat("MAX_DAILY_LOSS_PERCENTAGE", 3)
	cfg.Risk.MinMarginRatio = getEnvFloat("MIN_MARGIN_RATIO", 1.5)
	cfg.Risk.MaxPairExposurePct = getEnvFloat("MAX_PAIR_EXPOSURE_PERCENTAGE", 30)
	cfg.Risk.MaxCorrelatedExposurePct = getEnvFloat("MAX_CORRELATED_EXPOSURE_PERCENTAGE", 50)
	cfg.Risk.MaxVolatilityPct = getEnvFloat("MAX_VOLATILITY_PERCENTAGE", 5)
	cfg.Risk.MaxPositionSizePct = getEnvFloat("MAX_POSITION_SIZE_PERCENTAGE", 20)
	cfg.Risk.GlobalMaxLeverage = getEnvFloat("GLOBAL_MAX_LEVERAGE", 100)

	cfg.Executor.DuplicateLookback = getEnvDuration("DUPLICATE_LOOKBACK", time.Hour)
	cfg.Executor.OpposingFlowRatio = getEnvFloat("OPPOSING_FLOW_RATIO", 1.5)
	cfg.Executor.ModifyMinDistancePct = getEnvFloat("MODIFY_MIN_DISTANCE_PERCENTAGE", 1)
	cfg.Executor.AdverseDriftPct = getEnvFloat("ADVERSE_DRIFT_PERCENTAGE", 5)
	cfg.Executor.MonitorInterval = getEnvDuration("POSITION_MONITOR_INTERVAL", 5*time.Second)

	cfg.Breaker.Interval = getEnvDuration("BREAKER_INTERVAL", time.Minute)
	cfg.Breaker.MaxAccountDrawdown = getEnvFloat("MAX_ACCOUNT_DRAWDOWN", 10)
	cfg.Breaker.VolatilityPct = getEnvFloat("BREAKER_VOLATILITY_PERCENTAGE", 8)
	cfg.Breaker.MaxAPILatency = getEnvDuration("BREAKER_MAX_API_LATENCY", 3*time.Second)
	cfg.Breaker.MaxRecentErrors = getEnvInt("BREAKER_MAX_RECENT_ERRORS", 10)
	cfg.Breaker.MinFillSuccessRate = getEnvFloat("BREAKER_MIN_FILL_SUCCESS_RATE", 0.8)
	cfg.Breaker.CooldownDuration = getEnvDuration("BREAKER_COOLDOWN", time.Hour)
	cfg.Breaker.EmergencySlippage = getEnvFloat("BREAKER_EMERGENCY_SLIPPAGE", 0.05)

	cfg.Monitoring.PrometheusPort = getEnvInt("PROMETHEUS_PORT", 8080)
	cfg.Monitoring.HealthPort = getEnvInt("HEALTH_PORT", 8081)

	cfg.Notifications.SlackWebhookURL = getEnv("SLACK_WEBHOOK_URL", "")
	cfg.Notifications.TelegramToken = getEnv("TELEGRAM_TOKEN", "")
	cfg.Notifications.TelegramChatID = getEnv("TELEGRAM_CHAT_ID", "")

	cfg.Storage.DataDir = getEnv("DATA_DIR", "data")
	cfg.Storage.JournalDir = getEnv("JOURNAL_DIR", "journal")

	return cfg
}

// Validate checks that the configuration is internally consistent. It is
// called once at startup; a failure here is fatal.
func (c *Config) Validate() error {
	if c.Exchange.APIKey == "" || c.Exchange.APISecret == "" {
		return fmt.Errorf("exchange credentials are required (EXCHANGE_API_KEY / EXCHANGE_API_SECRET)")
	}
	if c.Risk.MaxDailyLossPct <= 0 || c.Risk.MaxDailyLossPct > 100 {
		return fmt.Errorf("MAX_DAILY_LOSS_PERCENTAGE must be in (0, 100], got %.2f", c.Risk.MaxDailyLossPct)
	}
	if c.Risk.MinMarginRatio < 1 {
		return fmt.Errorf("MIN_MARGIN_RATIO must be >= 1, got %.2f", c.Risk.MinMarginRatio)
	}
	if c.Risk.GlobalMaxLeverage < 1 {
		return fmt.Errorf("GLOBAL_MAX_LEVERAGE must be >= 1, got %.2f", c.Risk.GlobalMaxLeverage)
	}
	if c.Executor.OpposingFlowRatio <= 1 {
		return fmt.Errorf("OPPOSING_FLOW_RATIO must be > 1, got %.2f", c.Executor.OpposingFlowRatio)
	}
	if c.Feed.HeartbeatTimeout <= c.Feed.HeartbeatEvery {
		return fmt.Errorf("FEED_HEARTBEAT_TIMEOUT must exceed FEED_HEARTBEAT_INTERVAL")
	}
	if c.Breaker.MinFillSuccessRate < 0 || c.Breaker.MinFillSuccessRate > 1 {
		return fmt.Errorf("BREAKER_MIN_FILL_SUCCESS_RATE must be in [0, 1], got %.2f", c.Breaker.MinFillSuccessRate)
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseBool(val); err == nil {
			return parsed
		}
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseFloat(val, 64); err == nil {
			return parsed
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
	}
	return defaultVal
}
