// Package config loads process-wide credentials from the environment (via
// godotenv, as the teacher's config/loader.go does) and per-market strategy
// layouts from a YAML file — the teacher only ever ran one hard-coded
// strategy, this engine runs N independent markets.
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Credentials holds exchange API credentials and process-wide risk knobs,
// the direct descendant of the teacher's Config struct.
type Credentials struct {
	APIKey             string
	APISecret          string
	IsTestnet          bool
	MaxConcurrent      int
	TotalNotionalLimit float64
	MetricsPort        int
}

// LoadCredentials reads .env (warning, not failing, if absent) then the
// environment, matching the teacher's LoadConfig.
func LoadCredentials() *Credentials {
	if err := godotenv.Load(); err != nil {
		log.Println("warning: .env file not found, relying on system environment variables")
	}

	apiKey := os.Getenv("BINANCE_API_KEY")
	apiSecret := os.Getenv("BINANCE_API_SECRET")
	if apiSecret == "" {
		apiSecret = os.Getenv("BINANCE_SECRET_KEY")
	}
	if apiKey == "" || apiSecret == "" {
		log.Println("critical: Binance credentials missing")
	}

	return &Credentials{
		APIKey:             apiKey,
		APISecret:          apiSecret,
		IsTestnet:          os.Getenv("BINANCE_TESTNET") == "true",
		MaxConcurrent:      envInt("MAX_CONCURRENT_TRADES", 3),
		TotalNotionalLimit: envFloat("TOTAL_NOTIONAL_LIMIT", 2000.0),
		MetricsPort:        envInt("METRICS_PORT", 9090),
	}
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

// IndicatorSpec is one entry of a market's indicator configuration list.
type IndicatorSpec struct {
	Kind      string `yaml:"kind"`
	TimeFrame string `yaml:"timeframe"`
	Length    int    `yaml:"length,omitempty"`
	Periods   int    `yaml:"periods,omitempty"`
	Smoothing int    `yaml:"smoothing,omitempty"`
	KSm       int    `yaml:"k_smoothing,omitempty"`
	DSm       int    `yaml:"d_smoothing,omitempty"`
	DiLength  int    `yaml:"di_length,omitempty"`
	Short     int    `yaml:"short,omitempty"`
	Long      int    `yaml:"long,omitempty"`
}

// MarketSpec is one market the bot should run at startup.
type MarketSpec struct {
	Asset         string          `yaml:"asset"`
	MarginAlloc   float64         `yaml:"margin_alloc"` // fraction 0..1 of total_on_chain
	Strategy      string          `yaml:"strategy"`
	TimeFrame     string          `yaml:"timeframe"`
	Leverage      int             `yaml:"leverage"`
	Indicators    []IndicatorSpec `yaml:"indicators,omitempty"`
}

// MarketsFile is the top-level shape of the per-market YAML config.
type MarketsFile struct {
	Markets []MarketSpec `yaml:"markets"`
}

// LoadMarkets reads the per-market strategy/indicator layout from a YAML
// file.
func LoadMarkets(path string) (*MarketsFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading markets file: %w", err)
	}
	var mf MarketsFile
	if err := yaml.Unmarshal(data, &mf); err != nil {
		return nil, fmt.Errorf("config: parsing markets file: %w", err)
	}
	return &mf, nil
}
