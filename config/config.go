package config

import (
	"fmt"
	"log"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"trading-bands/internal/indicator"
	"trading-bands/internal/model"
	"trading-bands/pkg/kraken"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration. It is built once by Load and
// passed by value or pointer into constructors; nothing mutates it afterwards.
type Config struct {
	// Market
	Pairs        []string      `yaml:"pairs"`
	OHLCInterval time.Duration `yaml:"ohlc_interval"` // bar width requested from the exchange
	OHLCLimit    int           `yaml:"ohlc_limit"`    // bars fetched per cycle

	// Indicators
	SMAPeriod  int     `yaml:"sma_period"`
	ATRPeriod  int     `yaml:"atr_period"`
	RSIPeriod  int     `yaml:"rsi_period"`
	BollingerK float64 `yaml:"bollinger_k"`
	KeltnerK   float64 `yaml:"keltner_k"`

	// Strategy
	VolatilityThreshold float64 `yaml:"volatility_threshold"` // percent of close
	TrailingMargin      float64 `yaml:"trailing_margin"`      // fraction, 0.03 = 3%
	RiskFraction        float64 `yaml:"risk_fraction"`        // fraction of quote balance per buy

	// Scheduling
	PollInterval   time.Duration `yaml:"poll_interval"`
	CallTimeout    time.Duration `yaml:"call_timeout"`
	ReportInterval time.Duration `yaml:"report_interval"` // 0 disables the trade report

	// Paper trading
	DryRun            bool    `yaml:"dry_run"`
	PaperBaseBalance  float64 `yaml:"paper_base_balance"`
	PaperQuoteBalance float64 `yaml:"paper_quote_balance"`

	// Kraken credentials
	KrakenAPIKey     string `yaml:"kraken_api_key"`
	KrakenPrivateKey string `yaml:"kraken_private_key"`
	KrakenOTPSecret  string `yaml:"kraken_otp_secret"`
	KrakenBaseURL    string `yaml:"kraken_base_url"`

	// Notifications
	EmailSMTPServer  string `yaml:"email_smtp_server"`
	EmailPort        int    `yaml:"email_port"`
	EmailAddress     string `yaml:"email_address"`
	EmailPassword    string `yaml:"email_password"`
	EmailTo          string `yaml:"email_to"` // defaults to EmailAddress
	TelegramBotToken string `yaml:"telegram_bot_token"`
	TelegramChatID   string `yaml:"telegram_chat_id"`
	WebhookURL       string `yaml:"webhook_url"`

	// Infrastructure
	RedisAddr     string `yaml:"redis_addr"` // empty disables publishing
	RedisPassword string `yaml:"redis_password"`
	SQLitePath    string `yaml:"sqlite_path"`
	HTTPAddr      string `yaml:"http_addr"` // empty disables the status API

	// Logging
	LogLevel      string `yaml:"log_level"`
	LogFile       string `yaml:"log_file"` // empty logs to stdout only
	LogMaxSizeMB  int    `yaml:"log_max_size_mb"`
	LogMaxBackups int    `yaml:"log_max_backups"`
	LogMaxAgeDays int    `yaml:"log_max_age_days"`
}

// ConfigError reports invalid or missing configuration. It is fatal at startup.
type ConfigError struct {
	Problems []string
}

func (e *ConfigError) Error() string {
	return "invalid configuration: " + strings.Join(e.Problems, "; ")
}

// Default returns the built-in configuration before any file or environment
// overrides.
func Default() *Config {
	p := indicator.DefaultParams()
	return &Config{
		Pairs:        []string{"XBT/USD"},
		OHLCInterval: time.Minute,
		OHLCLimit:    100,

		SMAPeriod:  p.SMAPeriod,
		ATRPeriod:  p.ATRPeriod,
		RSIPeriod:  p.RSIPeriod,
		BollingerK: p.BollingerK,
		KeltnerK:   p.KeltnerK,

		VolatilityThreshold: 1.5,
		TrailingMargin:      0.03,
		RiskFraction:        0.05,

		PollInterval:   60 * time.Second,
		CallTimeout:    15 * time.Second,
		ReportInterval: 24 * time.Hour,

		PaperQuoteBalance: 10000,

		KrakenBaseURL: "https://api.kraken.com",

		EmailSMTPServer: "smtp.gmail.com",
		EmailPort:       587,

		SQLitePath: "data/trades.db",
		HTTPAddr:   ":9090",

		LogLevel:      "info",
		LogMaxSizeMB:  50,
		LogMaxBackups: 5,
		LogMaxAgeDays: 30,
	}
}

// Option overrides a loaded value before validation (command-line flags).
type Option func(*Config)

// WithDryRun forces paper trading regardless of DRY_RUN.
func WithDryRun() Option {
	return func(c *Config) { c.DryRun = true }
}

// Load builds the configuration from defaults, an optional YAML file and the
// environment, in increasing precedence, then applies opts and validates it.
// path may be empty; CONFIG_FILE is consulted in that case.
func Load(path string, opts ...Option) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, &ConfigError{Problems: []string{fmt.Sprintf("read %s: %v", path, err)}}
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, &ConfigError{Problems: []string{fmt.Sprintf("parse %s: %v", path, err)}}
		}
		log.Printf("[config] loaded %s", path)
	}

	env := &envReader{}
	env.setList("PAIRS", &cfg.Pairs)
	env.setDuration("OHLC_INTERVAL", &cfg.OHLCInterval)
	env.setInt("OHLC_LIMIT", &cfg.OHLCLimit)

	env.setInt("SMA_PERIOD", &cfg.SMAPeriod)
	env.setInt("ATR_PERIOD", &cfg.ATRPeriod)
	env.setInt("RSI_PERIOD", &cfg.RSIPeriod)
	env.setFloat("BOLLINGER_K", &cfg.BollingerK)
	env.setFloat("KELTNER_K", &cfg.KeltnerK)

	env.setFloat("VOLATILITY_THRESHOLD", &cfg.VolatilityThreshold)
	env.setFloat("TRAILING_MARGIN", &cfg.TrailingMargin)
	env.setFloat("RISK_FRACTION", &cfg.RiskFraction)

	env.setDuration("POLL_INTERVAL", &cfg.PollInterval)
	env.setDuration("CALL_TIMEOUT", &cfg.CallTimeout)
	env.setDuration("REPORT_INTERVAL", &cfg.ReportInterval)

	env.setBool("DRY_RUN", &cfg.DryRun)
	env.setFloat("PAPER_BASE_BALANCE", &cfg.PaperBaseBalance)
	env.setFloat("PAPER_QUOTE_BALANCE", &cfg.PaperQuoteBalance)

	env.setString("KRAKEN_API_KEY", &cfg.KrakenAPIKey)
	env.setString("KRAKEN_PRIVATE_KEY", &cfg.KrakenPrivateKey)
	env.setString("KRAKEN_OTP_SECRET", &cfg.KrakenOTPSecret)
	env.setString("KRAKEN_BASE_URL", &cfg.KrakenBaseURL)

	env.setString("EMAIL_SMTP_SERVER", &cfg.EmailSMTPServer)
	env.setInt("EMAIL_PORT", &cfg.EmailPort)
	env.setString("EMAIL_ADDRESS", &cfg.EmailAddress)
	env.setString("EMAIL_PASSWORD", &cfg.EmailPassword)
	env.setString("EMAIL_TO", &cfg.EmailTo)
	env.setString("TELEGRAM_BOT_TOKEN", &cfg.TelegramBotToken)
	env.setString("TELEGRAM_CHAT_ID", &cfg.TelegramChatID)
	env.setString("WEBHOOK_URL", &cfg.WebhookURL)

	env.setString("REDIS_ADDR", &cfg.RedisAddr)
	env.setString("REDIS_PASSWORD", &cfg.RedisPassword)
	env.setString("SQLITE_PATH", &cfg.SQLitePath)
	env.setString("HTTP_ADDR", &cfg.HTTPAddr)

	env.setString("LOG_LEVEL", &cfg.LogLevel)
	env.setString("LOG_FILE", &cfg.LogFile)
	env.setInt("LOG_MAX_SIZE_MB", &cfg.LogMaxSizeMB)
	env.setInt("LOG_MAX_BACKUPS", &cfg.LogMaxBackups)
	env.setInt("LOG_MAX_AGE_DAYS", &cfg.LogMaxAgeDays)

	if len(env.problems) > 0 {
		return nil, &ConfigError{Problems: env.problems}
	}
	if cfg.EmailTo == "" {
		cfg.EmailTo = cfg.EmailAddress
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks ranges and required credentials. It returns *ConfigError.
func (c *Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if len(c.Pairs) == 0 {
		add("at least one pair is required")
	}
	for _, p := range c.Pairs {
		if _, err := model.ParsePair(p); err != nil {
			add("%v", err)
		}
	}
	if c.OHLCInterval < time.Minute || c.OHLCInterval%time.Minute != 0 {
		add("ohlc_interval must be a whole number of minutes, got %s", c.OHLCInterval)
	} else if !kraken.ValidInterval(int(c.OHLCInterval / time.Minute)) {
		add("ohlc_interval %s is not a Kraken bar width (1m 5m 15m 30m 1h 4h 1d 1w 15d)", c.OHLCInterval)
	}

	params := c.IndicatorParams()
	if err := params.Validate(); err != nil {
		add("%v", err)
	} else if c.OHLCLimit < params.MinBars() {
		add("ohlc_limit %d is below the %d bars the indicators need", c.OHLCLimit, params.MinBars())
	}

	if c.VolatilityThreshold < 0 || !finite(c.VolatilityThreshold) {
		add("volatility_threshold must be >= 0, got %g", c.VolatilityThreshold)
	}
	if c.TrailingMargin < 0 || c.TrailingMargin >= 1 || !finite(c.TrailingMargin) {
		add("trailing_margin must be in [0,1), got %g", c.TrailingMargin)
	}
	if c.RiskFraction <= 0 || c.RiskFraction > 1 || !finite(c.RiskFraction) {
		add("risk_fraction must be in (0,1], got %g", c.RiskFraction)
	}

	if c.PollInterval <= 0 {
		add("poll_interval must be positive")
	}
	if c.CallTimeout <= 0 {
		add("call_timeout must be positive")
	}
	if c.ReportInterval < 0 {
		add("report_interval must not be negative")
	}

	if c.PaperBaseBalance < 0 || c.PaperQuoteBalance < 0 {
		add("paper balances must not be negative")
	}
	if !c.DryRun {
		if c.KrakenAPIKey == "" {
			add("KRAKEN_API_KEY is required for live trading")
		}
		if c.KrakenPrivateKey == "" {
			add("KRAKEN_PRIVATE_KEY is required for live trading")
		}
	}
	if c.EmailAddress != "" && c.EmailPassword == "" {
		add("EMAIL_PASSWORD is required when EMAIL_ADDRESS is set")
	}
	if (c.TelegramBotToken == "") != (c.TelegramChatID == "") {
		add("TELEGRAM_BOT_TOKEN and TELEGRAM_CHAT_ID must be set together")
	}

	if len(problems) > 0 {
		return &ConfigError{Problems: problems}
	}
	return nil
}

// IndicatorParams returns the indicator engine parameters.
func (c *Config) IndicatorParams() indicator.Params {
	return indicator.Params{
		SMAPeriod:  c.SMAPeriod,
		ATRPeriod:  c.ATRPeriod,
		RSIPeriod:  c.RSIPeriod,
		BollingerK: c.BollingerK,
		KeltnerK:   c.KeltnerK,
	}
}

// ParsedPairs returns Pairs as model.Pair values. Call after Validate.
func (c *Config) ParsedPairs() []model.Pair {
	out := make([]model.Pair, 0, len(c.Pairs))
	for _, s := range c.Pairs {
		p, err := model.ParsePair(s)
		if err != nil {
			log.Printf("[config] skipping invalid pair: %q", s)
			continue
		}
		out = append(out, p)
	}
	return out
}

// HasCredentials reports whether private Kraken endpoints can be called.
func (c *Config) HasCredentials() bool {
	return c.KrakenAPIKey != "" && c.KrakenPrivateKey != ""
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// envReader applies environment overrides and collects parse failures.
type envReader struct {
	problems []string
}

func (r *envReader) fail(key, v string, err error) {
	r.problems = append(r.problems, fmt.Sprintf("%s=%q: %v", key, v, err))
}

func (r *envReader) setString(key string, dst *string) {
	if v := getEnv(key, ""); v != "" {
		*dst = v
	}
}

func (r *envReader) setList(key string, dst *[]string) {
	v := getEnv(key, "")
	if v == "" {
		return
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	*dst = out
}

func (r *envReader) setInt(key string, dst *int) {
	v := getEnv(key, "")
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.fail(key, v, err)
		return
	}
	*dst = n
}

func (r *envReader) setFloat(key string, dst *float64) {
	v := getEnv(key, "")
	if v == "" {
		return
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		r.fail(key, v, err)
		return
	}
	*dst = f
}

func (r *envReader) setBool(key string, dst *bool) {
	v := getEnv(key, "")
	if v == "" {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.fail(key, v, err)
		return
	}
	*dst = b
}

func (r *envReader) setDuration(key string, dst *time.Duration) {
	v := getEnv(key, "")
	if v == "" {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.fail(key, v, err)
		return
	}
	*dst = d
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}
