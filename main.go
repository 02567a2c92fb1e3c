package main

import (
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"ema-hedger-bot/execution"
	"ema-hedger-bot/indicators"
	"ema-hedger-bot/marketdata"
	"ema-hedger-bot/strategy"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// AppConfig is the top-level configuration, loaded from a YAML file and
// overridable through environment variables.
type AppConfig struct {
	CandleFile  string           `yaml:"candle_file"`
	LogLevel    string           `yaml:"log_level"`
	StatusEvery int              `yaml:"status_every"`
	Strategy    strategy.Config  `yaml:"strategy"`
	Ledger      execution.Config `yaml:"ledger"`
}

func defaultAppConfig() AppConfig {
	return AppConfig{
		CandleFile:  "candles.jsonl",
		LogLevel:    "info",
		StatusEvery: 500,
		Strategy:    strategy.DefaultConfig(),
		Ledger:      execution.DefaultConfig(),
	}
}

func loadConfig() (AppConfig, error) {
	config := defaultAppConfig()

	path := os.Getenv("CONFIG_FILE")
	if path == "" {
		path = "config.yaml"
	}
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, &config); err != nil {
			return config, err
		}
	}

	if v := os.Getenv("CANDLE_FILE"); v != "" {
		config.CandleFile = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		config.LogLevel = v
	}
	if v := os.Getenv("EMA_PERIOD"); v != "" {
		if period, err := strconv.Atoi(v); err == nil && period > 0 {
			config.Strategy.EMAPeriod = period
		}
	}
	if v := os.Getenv("ORDER_NOTIONAL"); v != "" {
		if notional, err := decimal.NewFromString(v); err == nil && notional.Sign() > 0 {
			config.Strategy.OrderNotional = notional
		}
	}
	if v := os.Getenv("AVERAGING_TRIGGER_PERCENT"); v != "" {
		if trigger, err := decimal.NewFromString(v); err == nil && trigger.Sign() > 0 {
			config.Strategy.AveragingTriggerPercent = trigger
		}
	}
	if v := os.Getenv("INITIAL_BALANCE"); v != "" {
		if balance, err := decimal.NewFromString(v); err == nil && balance.Sign() > 0 {
			config.Ledger.InitialBalance = balance
		}
	}
	return config, nil
}

func buildLogger(level string) (*zap.Logger, error) {
	zapConfig := zap.NewProductionConfig()
	if parsed, err := zap.ParseAtomicLevel(level); err == nil {
		zapConfig.Level = parsed
	}
	return zapConfig.Build()
}

func main() {
	// Missing .env is fine, the environment itself still applies.
	_ = godotenv.Load()

	config, err := loadConfig()
	if err != nil {
		panic(err)
	}

	logger, err := buildLogger(config.LogLevel)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	logger.Info("Starting EMA hedger bot",
		zap.String("candleFile", config.CandleFile),
		zap.Int("emaPeriod", config.Strategy.EMAPeriod),
		zap.String("orderNotional", config.Strategy.OrderNotional.String()),
		zap.String("averagingTriggerPercent", config.Strategy.AveragingTriggerPercent.String()),
		zap.String("initialBalance", config.Ledger.InitialBalance.String()))

	ema := indicators.NewEMAEngine()
	ledger := execution.NewPositionLedger(config.Ledger, logger)
	engine := strategy.NewStrategyEngine(config.Strategy, ema, ledger, logger)

	file, err := os.Open(config.CandleFile)
	if err != nil {
		logger.Fatal("Cannot open candle file",
			zap.String("path", config.CandleFile),
			zap.Error(err))
	}
	defer file.Close()
	source := marketdata.NewReaderSource(file)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	processed := 0
replay:
	for {
		select {
		case sig := <-stop:
			logger.Info("Shutdown signal received", zap.String("signal", sig.String()))
			break replay
		default:
		}

		candle, ok := source.Next()
		if !ok {
			break
		}
		engine.ProcessCandle(candle)
		processed++

		if config.StatusEvery > 0 && processed%config.StatusEvery == 0 {
			stats := engine.GetStats()
			logger.Info("Replay progress",
				zap.Int("candles", processed),
				zap.Int("totalOrders", stats.TotalOrders),
				zap.String("balance", stats.Balance.String()))
		}
	}

	logger.Info("Replay finished",
		zap.Int("candles", processed),
		zap.Int("skippedLines", source.Skipped()))
	engine.LogStats()
}
