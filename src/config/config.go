package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type AppConfig struct {
	DatabasePath string
	LogLevel     string

	// Exchange API
	BinanceBaseURL   string
	BinanceAPIKey    string
	BinanceAPISecret string
	Channels         []string // e.g. "spot/BTCEUR,deposit,withdrawal"

	// Rate budget and backoff
	RequestsPerMinute int
	WindowDays        int
	BackoffBase       time.Duration
	BackoffCap        time.Duration
	MaxRetries        int

	// Jurisdiction parameters
	TaxRate           float64
	AnnualExemption   float64
	TaxYearStartMonth int
	TaxYearStartDay   int

	// Reconciliation
	ReconQuantityTolerance float64
	ReconValueTolerance    float64
	ReconTimeWindow        time.Duration
	ReconPreferredOrigin   string

	// Batch run
	ImportDir  string
	RatesPath  string
	ReportPath string
	SyncStart  string // RFC3339, start of the first ever sync
}

var Cfg *AppConfig

func LoadConfig() {
	if err := godotenv.Load(); err != nil {
		log.Println("Info: no .env file found, relying on OS environment variables and defaults.")
	} else {
		log.Println(".env file loaded successfully.")
	}

	log.Println("Loading application configuration...")

	preferredOrigin := getEnv("RECON_PREFERRED_ORIGIN", "file")
	if preferredOrigin != "file" && preferredOrigin != "api" {
		log.Printf("WARNING: Invalid RECON_PREFERRED_ORIGIN '%s'. Using 'file'.", preferredOrigin)
		preferredOrigin = "file"
	}

	startMonth := getEnvAsInt("TAX_YEAR_START_MONTH", 1)
	startDay := getEnvAsInt("TAX_YEAR_START_DAY", 1)
	if startMonth < 1 || startMonth > 12 || startDay < 1 || startDay > 31 {
		log.Printf("WARNING: Invalid tax year boundary %d/%d. Using calendar years.", startMonth, startDay)
		startMonth, startDay = 1, 1
	}

	Cfg = &AppConfig{
		DatabasePath: getEnv("DATABASE_PATH", "./cryptofolio.db"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),

		BinanceBaseURL:   getEnv("BINANCE_BASE_URL", "https://api.binance.com"),
		BinanceAPIKey:    getEnv("BINANCE_API_KEY", ""),
		BinanceAPISecret: getEnv("BINANCE_API_SECRET", ""),
		Channels:         splitList(getEnv("SYNC_CHANNELS", "spot/BTCEUR,deposit,withdrawal")),

		RequestsPerMinute: getEnvAsInt("REQUESTS_PER_MINUTE", 1200),
		WindowDays:        getEnvAsInt("FETCH_WINDOW_DAYS", 90),
		BackoffBase:       getEnvAsDuration("BACKOFF_BASE", time.Second),
		BackoffCap:        getEnvAsDuration("BACKOFF_CAP", time.Minute),
		MaxRetries:        getEnvAsInt("BACKOFF_MAX_RETRIES", 5),

		TaxRate:           getEnvAsFloat("TAX_RATE", 0.33),
		AnnualExemption:   getEnvAsFloat("ANNUAL_EXEMPTION", 1270),
		TaxYearStartMonth: startMonth,
		TaxYearStartDay:   startDay,

		ReconQuantityTolerance: getEnvAsFloat("RECON_QUANTITY_TOLERANCE", 0.00000001),
		ReconValueTolerance:    getEnvAsFloat("RECON_VALUE_TOLERANCE", 0.01),
		ReconTimeWindow:        getEnvAsDuration("RECON_TIME_WINDOW", 5*time.Minute),
		ReconPreferredOrigin:   preferredOrigin,

		ImportDir:  getEnv("IMPORT_DIR", ""),
		RatesPath:  getEnv("RATES_PATH", ""),
		ReportPath: getEnv("REPORT_PATH", ""),
		SyncStart:  getEnv("SYNC_START", "2017-01-01T00:00:00Z"),
	}

	log.Printf("Configuration loaded: DBPath=%s, LogLevel=%s, Channels=%v, TaxRate=%.2f, Exemption=%.2f",
		Cfg.DatabasePath, Cfg.LogLevel, Cfg.Channels, Cfg.TaxRate, Cfg.AnnualExemption)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	log.Printf("Invalid integer value for %s ('%s'), using default: %d", key, valueStr, fallback)
	return fallback
}

func getEnvAsFloat(key string, fallback float64) float64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	log.Printf("Invalid float value for %s ('%s'), using default: %f", key, valueStr, fallback)
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	log.Printf("Invalid duration value for %s ('%s'), using default: %s", key, valueStr, fallback.String())
	return fallback
}
