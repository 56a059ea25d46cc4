// internal/config/config.go
//
// 從環境變數（本機開發時可由 .env 提供）載入設定。
// 每個鍵都有預設值，只有 JWT_SECRET 與 ADMIN_PASSWORD_HASH 必填。
package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"

	"github.com/PAD-934/ATMsimulatorbank-sub000/internal/bank"
)

// Config holds all configuration for the ATM service.
type Config struct {
	DataDir             string `mapstructure:"DATA_DIR"`
	AccountsFile        string `mapstructure:"ACCOUNTS_FILE"`
	TransactionsFile    string `mapstructure:"TRANSACTIONS_FILE"`
	DeletedAccountsFile string `mapstructure:"DELETED_ACCOUNTS_FILE"`

	ServerHost     string `mapstructure:"SERVER_HOST"`
	ServerPort     string `mapstructure:"SERVER_PORT"`
	AllowRemote    bool   `mapstructure:"ALLOW_REMOTE"`
	AllowedOrigins string `mapstructure:"ALLOWED_ORIGINS"`

	JWTSecret          string        `mapstructure:"JWT_SECRET"`
	SessionTTL         time.Duration `mapstructure:"SESSION_TTL"`
	AdminUsername      string        `mapstructure:"ADMIN_USERNAME"`
	AdminPasswordHash  string        `mapstructure:"ADMIN_PASSWORD_HASH"`
	LoginRatePerMinute int           `mapstructure:"LOGIN_RATE_PER_MINUTE"`

	RestorePinPolicy  string `mapstructure:"RESTORE_PIN_POLICY"`
	DefaultRestorePin string `mapstructure:"DEFAULT_RESTORE_PIN"`

	RabbitMQURL    string `mapstructure:"RABBITMQ_URL"`
	EventsExchange string `mapstructure:"EVENTS_EXCHANGE"`

	BackupSchedule string `mapstructure:"BACKUP_SCHEDULE"`
	BackupDir      string `mapstructure:"BACKUP_DIR"`
	BackupKeep     int    `mapstructure:"BACKUP_KEEP"`

	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogFormat string `mapstructure:"LOG_FORMAT"`
}

var defaults = map[string]any{
	"DATA_DIR":              "./data",
	"ACCOUNTS_FILE":         "accounts.txt",
	"TRANSACTIONS_FILE":     "transactions.txt",
	"DELETED_ACCOUNTS_FILE": "deleted_accounts.txt",
	"SERVER_HOST":           "127.0.0.1",
	"SERVER_PORT":           "8080",
	"ALLOW_REMOTE":          false,
	"ALLOWED_ORIGINS":       "http://localhost:3000",
	"SESSION_TTL":           "15m",
	"ADMIN_USERNAME":        "admin",
	"LOGIN_RATE_PER_MINUTE": 30,
	"RESTORE_PIN_POLICY":    "preserve",
	"DEFAULT_RESTORE_PIN":   "0000",
	"EVENTS_EXCHANGE":       "atm_events",
	"BACKUP_DIR":            "./data/backups",
	"BACKUP_KEEP":           7,
	"LOG_LEVEL":             "info",
	"LOG_FORMAT":            "text",
}

// 沒有預設值、但需要出現在 Unmarshal 結果中的鍵。
var required = []string{"JWT_SECRET", "ADMIN_PASSWORD_HASH", "RABBITMQ_URL", "BACKUP_SCHEDULE"}

// LoadConfig reads configuration from environment variables.
func LoadConfig() (*Config, error) {
	for k, v := range defaults {
		viper.SetDefault(k, v)
	}
	viper.AutomaticEnv()

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	for k := range defaults {
		_ = viper.BindEnv(k)
	}
	for _, k := range required {
		_ = viper.BindEnv(k)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	var errs []error
	if strings.TrimSpace(c.JWTSecret) == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	} else if len(c.JWTSecret) < 16 {
		errs = append(errs, errors.New("JWT_SECRET must be at least 16 characters"))
	}
	if strings.TrimSpace(c.AdminPasswordHash) == "" {
		errs = append(errs, errors.New("ADMIN_PASSWORD_HASH is required"))
	} else if _, err := bcrypt.Cost([]byte(c.AdminPasswordHash)); err != nil {
		errs = append(errs, fmt.Errorf("ADMIN_PASSWORD_HASH is not a bcrypt hash: %w", err))
	}
	if c.SessionTTL <= 0 {
		errs = append(errs, errors.New("SESSION_TTL must be positive"))
	}
	if c.LoginRatePerMinute <= 0 {
		errs = append(errs, errors.New("LOGIN_RATE_PER_MINUTE must be positive"))
	}
	if _, err := bank.ParseRestorePolicy(c.RestorePinPolicy); err != nil {
		errs = append(errs, fmt.Errorf("RESTORE_PIN_POLICY must be preserve or reset: %w", err))
	}
	if !bank.ValidPin(c.DefaultRestorePin) {
		errs = append(errs, errors.New("DEFAULT_RESTORE_PIN must be exactly 4 digits"))
	}
	if c.BackupKeep < 1 {
		errs = append(errs, errors.New("BACKUP_KEEP must be at least 1"))
	}
	if !c.AllowRemote && !isLoopback(c.ServerHost) {
		errs = append(errs, fmt.Errorf("SERVER_HOST %q is not a loopback address; set ALLOW_REMOTE=true to expose the service", c.ServerHost))
	}
	return errors.Join(errs...)
}

// Addr 回傳 http.Server 使用的監聽位址。
func (c *Config) Addr() string {
	return net.JoinHostPort(c.ServerHost, c.ServerPort)
}

// Origins 將逗號分隔的 ALLOWED_ORIGINS 拆成清單。
func (c *Config) Origins() []string {
	var out []string
	for _, o := range strings.Split(c.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
