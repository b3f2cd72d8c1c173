package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Источники котировок
const (
	MarketSourceSimulator = "simulator"
	MarketSourceWS        = "ws"
)

// Источники снимков счетов
const (
	SnapshotSourceHTTP = "http"
	SnapshotSourceDB   = "db"
)

// Config содержит всю конфигурацию приложения
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Market   MarketConfig
	Risk     RiskConfig
	Logging  LoggingConfig
}

// ServerConfig - настройки HTTP сервера
type ServerConfig struct {
	Port            int
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	CORSOrigins     []string
}

// DatabaseConfig - настройки подключения к БД
type DatabaseConfig struct {
	Enabled         bool
	Driver          string
	Host            string
	Port            int
	Name            string
	User            string
	Password        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// MarketConfig - котировки и агрегация свечей
type MarketConfig struct {
	Source      string   // simulator | ws
	Instruments []string // подписка; пусто = всё, что пришлёт источник

	CandlePeriod time.Duration // длина периода свечи, кратна секунде
	MaxCandles   int           // сколько закрытых свечей хранить на инструмент
	Shards       int           // количество воркеров агрегатора
	ShardBuffer  int           // ёмкость канала воркера

	// WebSocket источник
	FeedURL          string
	HistoryURL       string
	HistoryLookback  time.Duration
	WSReconnectDelay time.Duration
	WSPingInterval   time.Duration
	WSReadTimeout    time.Duration

	// Симулятор
	SimInterval time.Duration
	SimSeed     int64

	PersistCandles bool // сохранять закрытые свечи в БД
}

// RiskConfig - мониторинг просадки счетов
type RiskConfig struct {
	PollInterval       time.Duration
	FetchTimeout       time.Duration
	SnapshotSource     string // http | db
	AccountServiceURL  string
	RequestsPerSecond  float64
	PersistAssessments bool
}

// LoggingConfig - настройки логирования
type LoggingConfig struct {
	Level       string
	Format      string
	Output      string
	Development bool
}

// Load загружает конфигурацию из переменных окружения
//
// Если рядом лежит .env (или файл из ENV_FILE), он подгружается первым;
// уже выставленные переменные окружения не перезаписываются
func Load() (*Config, error) {
	if err := loadDotEnv(getEnv("ENV_FILE", ".env")); err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnvAsInt("SERVER_PORT", 8080),
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			CORSOrigins:     getEnvAsSlice("CORS_ORIGINS", []string{"*"}),
		},
		Database: DatabaseConfig{
			Enabled:         getEnvAsBool("DB_ENABLED", false),
			Driver:          getEnv("DB_DRIVER", "postgres"),
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnvAsInt("DB_PORT", 5432),
			Name:            getEnv("DB_NAME", "propdesk"),
			User:            getEnv("DB_USER", "user"),
			Password:        getEnv("DB_PASSWORD", "password"),
			SSLMode:         getEnv("DB_SSL_MODE", "disable"),
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
		},
		Market: MarketConfig{
			Source:      strings.ToLower(getEnv("MARKET_SOURCE", MarketSourceSimulator)),
			Instruments: getEnvAsSlice("MARKET_INSTRUMENTS", []string{"NIFTY", "BANKNIFTY"}),

			CandlePeriod: getEnvAsDuration("MARKET_CANDLE_PERIOD", 1*time.Second),
			MaxCandles:   getEnvAsInt("MARKET_MAX_CANDLES", 1000),
			Shards:       getEnvAsInt("MARKET_SHARDS", 8),
			ShardBuffer:  getEnvAsInt("MARKET_SHARD_BUFFER", 256),

			FeedURL:          getEnv("MARKET_FEED_URL", ""),
			HistoryURL:       getEnv("MARKET_HISTORY_URL", ""),
			HistoryLookback:  getEnvAsDuration("MARKET_HISTORY_LOOKBACK", 1*time.Hour),
			WSReconnectDelay: getEnvAsDuration("WS_RECONNECT_DELAY", 1*time.Second),
			WSPingInterval:   getEnvAsDuration("WS_PING_INTERVAL", 15*time.Second),
			WSReadTimeout:    getEnvAsDuration("WS_READ_TIMEOUT", 30*time.Second),

			SimInterval: getEnvAsDuration("MARKET_SIM_INTERVAL", 250*time.Millisecond),
			SimSeed:     int64(getEnvAsInt("MARKET_SIM_SEED", 0)),

			PersistCandles: getEnvAsBool("MARKET_PERSIST_CANDLES", false),
		},
		Risk: RiskConfig{
			PollInterval:       getEnvAsDuration("RISK_POLL_INTERVAL", 5*time.Second),
			FetchTimeout:       getEnvAsDuration("RISK_FETCH_TIMEOUT", 3*time.Second),
			SnapshotSource:     strings.ToLower(getEnv("RISK_SNAPSHOT_SOURCE", SnapshotSourceHTTP)),
			AccountServiceURL:  getEnv("RISK_ACCOUNT_SERVICE_URL", "http://localhost:9000"),
			RequestsPerSecond:  getEnvAsFloat("RISK_REQUESTS_PER_SECOND", 2),
			PersistAssessments: getEnvAsBool("RISK_PERSIST_ASSESSMENTS", false),
		},
		Logging: LoggingConfig{
			Level:       getEnv("LOG_LEVEL", "info"),
			Format:      getEnv("LOG_FORMAT", "json"),
			Output:      getEnv("LOG_OUTPUT", ""),
			Development: getEnvAsBool("LOG_DEVELOPMENT", false),
		},
	}

	// Таймаут опроса строго меньше интервала, иначе циклы наложатся
	if cfg.Risk.FetchTimeout >= cfg.Risk.PollInterval {
		cfg.Risk.FetchTimeout = cfg.Risk.PollInterval * 4 / 5
	}

	if err := cfg.validateRanges(); err != nil {
		return nil, err
	}

	if err := cfg.validateSources(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func loadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// validateRanges проверяет числовые диапазоны параметров
func (c *Config) validateRanges() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return fmt.Errorf("DB_PORT must be between 1 and 65535, got %d", c.Database.Port)
	}

	if c.Market.CandlePeriod < time.Second || c.Market.CandlePeriod%time.Second != 0 {
		return fmt.Errorf("MARKET_CANDLE_PERIOD must be a whole number of seconds, got %v", c.Market.CandlePeriod)
	}

	if c.Market.MaxCandles < 1 {
		return fmt.Errorf("MARKET_MAX_CANDLES must be positive, got %d", c.Market.MaxCandles)
	}

	if c.Market.Shards < 1 || c.Market.Shards > 256 {
		return fmt.Errorf("MARKET_SHARDS must be between 1 and 256, got %d", c.Market.Shards)
	}

	if c.Market.ShardBuffer < 1 {
		return fmt.Errorf("MARKET_SHARD_BUFFER must be positive, got %d", c.Market.ShardBuffer)
	}

	if c.Market.SimInterval <= 0 {
		return fmt.Errorf("MARKET_SIM_INTERVAL must be positive, got %v", c.Market.SimInterval)
	}

	if c.Market.WSReadTimeout <= 0 {
		return fmt.Errorf("WS_READ_TIMEOUT must be positive, got %v", c.Market.WSReadTimeout)
	}

	if c.Risk.PollInterval < 100*time.Millisecond {
		return fmt.Errorf("RISK_POLL_INTERVAL must be at least 100ms, got %v", c.Risk.PollInterval)
	}

	if c.Risk.FetchTimeout <= 0 {
		return fmt.Errorf("RISK_FETCH_TIMEOUT must be positive, got %v", c.Risk.FetchTimeout)
	}

	if c.Risk.RequestsPerSecond <= 0 {
		return fmt.Errorf("RISK_REQUESTS_PER_SECOND must be positive, got %v", c.Risk.RequestsPerSecond)
	}

	return nil
}

// validateSources проверяет согласованность источников данных
func (c *Config) validateSources() error {
	switch c.Market.Source {
	case MarketSourceSimulator:
	case MarketSourceWS:
		if c.Market.FeedURL == "" {
			return fmt.Errorf("MARKET_FEED_URL is required when MARKET_SOURCE=ws")
		}
	default:
		return fmt.Errorf("MARKET_SOURCE must be %q or %q, got %q", MarketSourceSimulator, MarketSourceWS, c.Market.Source)
	}

	switch c.Risk.SnapshotSource {
	case SnapshotSourceHTTP:
		if c.Risk.AccountServiceURL == "" {
			return fmt.Errorf("RISK_ACCOUNT_SERVICE_URL is required when RISK_SNAPSHOT_SOURCE=http")
		}
	case SnapshotSourceDB:
		if !c.Database.Enabled {
			return fmt.Errorf("RISK_SNAPSHOT_SOURCE=db requires DB_ENABLED=true")
		}
	default:
		return fmt.Errorf("RISK_SNAPSHOT_SOURCE must be %q or %q, got %q", SnapshotSourceHTTP, SnapshotSourceDB, c.Risk.SnapshotSource)
	}

	if !c.Database.Enabled && (c.Market.PersistCandles || c.Risk.PersistAssessments) {
		return fmt.Errorf("MARKET_PERSIST_CANDLES and RISK_PERSIST_ASSESSMENTS require DB_ENABLED=true")
	}

	return nil
}

// Addr возвращает адрес для http.Server
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DSN возвращает строку подключения к базе данных
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

// DSNWithoutPassword возвращает строку подключения без пароля (для логирования)
func (d DatabaseConfig) DSNWithoutPassword() string {
	return fmt.Sprintf("host=%s port=%d user=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Name, d.SSLMode)
}

// Вспомогательные функции для чтения переменных окружения

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsSlice читает список через запятую, пустые элементы отбрасываются
func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
