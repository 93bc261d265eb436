package config

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the typed view of the service configuration.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Ledger   LedgerConfig
	JWT      JWTConfig
	Audit    AuditConfig
	Log      LogConfig
	Store    StoreConfig
}

type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
	IdempotencyTTL  time.Duration
}

type DatabaseConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DSN renders the lib/pq connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

func (c RedisConfig) Addr() string {
	return net.JoinHostPort(c.Host, c.Port)
}

type LedgerConfig struct {
	ReversalWindow time.Duration
	// SystemCashIBANs maps a currency code to the IBAN of its system cash account.
	SystemCashIBANs map[string]string
	BankBIC         string
	BankName        string
	ClearingMember  string
	EntryPageSize   int
}

type JWTConfig struct {
	SecretKey string
}

type AuditConfig struct {
	BufferSize int
	RedisKey   string
}

type LogConfig struct {
	Level string
	Env   string
}

type StoreConfig struct {
	Driver string
}

var envBindings = map[string]string{
	"database.host":     "DATABASE_HOST",
	"database.port":     "DATABASE_PORT",
	"database.user":     "DATABASE_USER",
	"database.password": "DATABASE_PASSWORD",
	"database.name":     "DATABASE_NAME",
	"database.ssl_mode": "DATABASE_SSL_MODE",

	"redis.host":     "REDIS_HOST",
	"redis.port":     "REDIS_PORT",
	"redis.password": "REDIS_PASSWORD",
	"redis.db":       "REDIS_DB",

	"jwt.secret_key": "JWT_SECRET_KEY",

	"server.port":             "PORT",
	"server.allowed_origins":  "ALLOWED_ORIGINS",
	"ledger.reversal_window":  "LEDGER_REVERSAL_WINDOW",
	"ledger.bank_bic":         "LEDGER_BANK_BIC",
	"ledger.bank_name":        "LEDGER_BANK_NAME",
	"ledger.clearing_member":  "LEDGER_CLEARING_MEMBER",
	"audit.buffer_size":       "AUDIT_BUFFER_SIZE",
	"log.level":               "LOG_LEVEL",
	"log.env":                 "APP_ENV",
	"store.driver":            "STORE_DRIVER",
	"server.idempotency_ttl":  "IDEMPOTENCY_TTL",
	"server.request_timeout":  "REQUEST_TIMEOUT",
	"server.shutdown_timeout": "SHUTDOWN_TIMEOUT",
	"ledger.entry_page_size":  "LEDGER_ENTRY_PAGE_SIZE",
	"audit.redis_key":         "AUDIT_REDIS_KEY",
	"server.read_timeout":     "SERVER_READ_TIMEOUT",
	"server.write_timeout":    "SERVER_WRITE_TIMEOUT",
}

func setDefaults() {
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.read_timeout", 15*time.Second)
	viper.SetDefault("server.write_timeout", 15*time.Second)
	viper.SetDefault("server.request_timeout", 60*time.Second)
	viper.SetDefault("server.shutdown_timeout", 30*time.Second)
	viper.SetDefault("server.allowed_origins", "*")
	viper.SetDefault("server.idempotency_ttl", 24*time.Hour)

	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", "5432")
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.password", "password")
	viper.SetDefault("database.name", "ledger")
	viper.SetDefault("database.ssl_mode", "disable")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", 5*time.Minute)

	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", "6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)

	viper.SetDefault("ledger.reversal_window", 30*time.Minute)
	viper.SetDefault("ledger.system_cash_ibans", map[string]string{
		"TRY": "TR00SYSCASHTRY0000000000001",
		"USD": "TR00SYSCASHUSD0000000000002",
		"EUR": "TR00SYSCASHEUR0000000000003",
		"GBP": "TR00SYSCASHGBP0000000000004",
	})
	viper.SetDefault("ledger.bank_bic", "RURLTRISXXX")
	viper.SetDefault("ledger.bank_name", "RuralPay")
	viper.SetDefault("ledger.clearing_member", "00061")
	viper.SetDefault("ledger.entry_page_size", 50)

	viper.SetDefault("audit.buffer_size", 1024)
	viper.SetDefault("audit.redis_key", "ledger:audit")

	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.env", "production")
	viper.SetDefault("store.driver", "postgres")
}

// Load reads the optional .env file, binds environment overrides and returns the
// typed configuration. A missing .env file is not an error.
func Load(path string) (*Config, error) {
	viper.SetConfigFile(path)
	viper.SetConfigType("env")
	viper.AutomaticEnv()

	for key, env := range envBindings {
		if err := viper.BindEnv(key, env); err != nil {
			return nil, err
		}
	}
	setDefaults()

	// .env is optional; defaults and environment cover every key.
	_ = viper.ReadInConfig()

	return FromViper(), nil
}

// FromViper builds a Config from whatever is currently loaded into viper.
func FromViper() *Config {
	setDefaults()

	cashIBANs := make(map[string]string)
	for currency, iban := range viper.GetStringMapString("ledger.system_cash_ibans") {
		cashIBANs[strings.ToUpper(currency)] = iban
	}

	return &Config{
		Server: ServerConfig{
			Port:            viper.GetString("server.port"),
			ReadTimeout:     viper.GetDuration("server.read_timeout"),
			WriteTimeout:    viper.GetDuration("server.write_timeout"),
			RequestTimeout:  viper.GetDuration("server.request_timeout"),
			ShutdownTimeout: viper.GetDuration("server.shutdown_timeout"),
			AllowedOrigins:  splitList(viper.GetString("server.allowed_origins")),
			IdempotencyTTL:  viper.GetDuration("server.idempotency_ttl"),
		},
		Database: DatabaseConfig{
			Host:            viper.GetString("database.host"),
			Port:            viper.GetString("database.port"),
			User:            viper.GetString("database.user"),
			Password:        viper.GetString("database.password"),
			Name:            viper.GetString("database.name"),
			SSLMode:         viper.GetString("database.ssl_mode"),
			MaxOpenConns:    viper.GetInt("database.max_open_conns"),
			MaxIdleConns:    viper.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: viper.GetDuration("database.conn_max_lifetime"),
		},
		Redis: RedisConfig{
			Host:     viper.GetString("redis.host"),
			Port:     viper.GetString("redis.port"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		Ledger: LedgerConfig{
			ReversalWindow:  viper.GetDuration("ledger.reversal_window"),
			SystemCashIBANs: cashIBANs,
			BankBIC:         viper.GetString("ledger.bank_bic"),
			BankName:        viper.GetString("ledger.bank_name"),
			ClearingMember:  viper.GetString("ledger.clearing_member"),
			EntryPageSize:   viper.GetInt("ledger.entry_page_size"),
		},
		JWT: JWTConfig{
			SecretKey: viper.GetString("jwt.secret_key"),
		},
		Audit: AuditConfig{
			BufferSize: viper.GetInt("audit.buffer_size"),
			RedisKey:   viper.GetString("audit.redis_key"),
		},
		Log: LogConfig{
			Level: viper.GetString("log.level"),
			Env:   viper.GetString("log.env"),
		},
		Store: StoreConfig{
			Driver: strings.ToLower(viper.GetString("store.driver")),
		},
	}
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
