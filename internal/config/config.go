package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Business   BusinessConfig   `yaml:"business"`
	Wizard     WizardConfig     `yaml:"wizard"`
	Database   DatabaseConfig   `yaml:"database"`
	Backup     BackupConfig     `yaml:"backup"`
	Redis      RedisConfig      `yaml:"redis"`
	API        APIConfig        `yaml:"api"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging"`
	Telegram   TelegramConfig   `yaml:"telegram"`
	Google     GoogleConfig     `yaml:"google"`
	Catalog    CatalogConfig    `yaml:"catalog"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

// BusinessConfig describes the salon itself: opening days, bookable start
// times and the money rules shown to customers.
type BusinessConfig struct {
	Name                string   `yaml:"name"`
	Location            string   `yaml:"location"`
	Timezone            string   `yaml:"timezone"`
	OpenDays            []string `yaml:"open_days"`
	FirstSlot           string   `yaml:"first_slot"`
	LastSlot            string   `yaml:"last_slot"`
	SlotIntervalMinutes int      `yaml:"slot_interval_minutes"`
	BookingHorizonDays  int      `yaml:"booking_horizon_days"`
	DepositPercentage   float64  `yaml:"deposit_percentage"`
	CalendarDomain      string   `yaml:"calendar_domain"`
	ProdID              string   `yaml:"prod_id"`
}

type WizardConfig struct {
	SessionTTLMinutes int `yaml:"session_ttl_minutes"`
	SubmitLockSeconds int `yaml:"submit_lock_seconds"`
	SubmitTimeoutSecs int `yaml:"submit_timeout_seconds"`
}

type DatabaseConfig struct {
	Driver   string         `yaml:"driver"`
	Path     string         `yaml:"path"`
	Postgres PostgresConfig `yaml:"postgres"`
}

type PostgresConfig struct {
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	User           string `yaml:"user"`
	Password       string `yaml:"password"`
	DBName         string `yaml:"dbname"`
	SSLMode        string `yaml:"sslmode"`
	MaxConnections int    `yaml:"max_connections"`
}

// DSN renders the lib/pq connection string.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.DBName, p.SSLMode)
}

type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Schedule      string `yaml:"schedule"`
	RetentionDays int    `yaml:"retention_days"`
	StoragePath   string `yaml:"storage_path"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type APIConfig struct {
	HTTP      APIHTTPConfig      `yaml:"http"`
	GRPC      APIGRPCConfig      `yaml:"grpc"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
	CORS      APICORSConfig      `yaml:"cors"`
}

type APIHTTPConfig struct {
	Port int `yaml:"port"`
}

type APIGRPCConfig struct {
	Enabled    bool `yaml:"enabled"`
	Port       int  `yaml:"port"`
	Reflection bool `yaml:"reflection"`
}

type APIAuthConfig struct {
	Enabled      bool           `yaml:"enabled"`
	HeaderAPIKey string         `yaml:"header_api_key"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
}

type APIClientKey struct {
	Key         string   `yaml:"key"`
	Name        string   `yaml:"name"`
	Permissions []string `yaml:"permissions"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type APICORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
	// DebugBurst caps debug and trace entries per second. Zero keeps all.
	DebugBurst int `yaml:"debug_burst"`
}

type TelegramConfig struct {
	Enabled      bool    `yaml:"enabled"`
	BotToken     string  `yaml:"bot_token"`
	StaffChatIDs []int64 `yaml:"staff_chat_ids"`
	Debug        bool    `yaml:"debug"`
}

type GoogleConfig struct {
	CredentialsFile           string `yaml:"credentials_file"`
	AppointmentsSpreadsheetID string `yaml:"appointments_spreadsheet_id"`
	SheetName                 string `yaml:"sheet_name"`
	// ResyncOnStart rewrites the ledger from the datastore at startup.
	ResyncOnStart bool `yaml:"resync_on_start"`
}

// Enabled reports whether the appointments ledger sheet is configured.
func (g GoogleConfig) Enabled() bool {
	return g.CredentialsFile != "" && g.AppointmentsSpreadsheetID != ""
}

type CatalogConfig struct {
	SeedFile string `yaml:"seed_file"`
}

func Load(configPath string) (*Config, error) {
	// .env is optional in hosted environments
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

var validDays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite3":
		if c.Database.Path == "" {
			return errors.New("database path is required")
		}
	case "postgres":
		if c.Database.Postgres.Host == "" || c.Database.Postgres.DBName == "" {
			return errors.New("postgres host and dbname are required")
		}
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}

	if c.Telegram.Enabled && (c.Telegram.BotToken == "" || c.Telegram.BotToken == "YOUR_BOT_TOKEN_HERE") {
		return errors.New("telegram bot token is required when telegram is enabled")
	}

	if _, err := time.LoadLocation(c.Business.Timezone); err != nil {
		return fmt.Errorf("invalid business timezone %q: %w", c.Business.Timezone, err)
	}

	if _, err := c.Business.OpenWeekdays(); err != nil {
		return err
	}

	if c.Business.DepositPercentage <= 0 || c.Business.DepositPercentage > 1 {
		return fmt.Errorf("deposit_percentage must be in (0, 1], got %v", c.Business.DepositPercentage)
	}

	return nil
}

// OpenWeekdays converts the configured day names into weekdays.
func (b BusinessConfig) OpenWeekdays() ([]time.Weekday, error) {
	days := make([]time.Weekday, 0, len(b.OpenDays))
	for _, name := range b.OpenDays {
		day, ok := validDays[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			return nil, fmt.Errorf("unknown open day %q", name)
		}
		days = append(days, day)
	}
	return days, nil
}

func (w WizardConfig) SessionTTL() time.Duration {
	return time.Duration(w.SessionTTLMinutes) * time.Minute
}

func (w WizardConfig) SubmitLockTTL() time.Duration {
	return time.Duration(w.SubmitLockSeconds) * time.Second
}

func (w WizardConfig) SubmitTimeout() time.Duration {
	return time.Duration(w.SubmitTimeoutSecs) * time.Second
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "smarterdog"
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite3"
	}
	if c.Database.Postgres.Port == 0 {
		c.Database.Postgres.Port = 5432
	}
	if c.Database.Postgres.SSLMode == "" {
		c.Database.Postgres.SSLMode = "disable"
	}
	if c.API.GRPC.Port == 0 {
		c.API.GRPC.Port = 8081
	}
	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8080
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}

	// Salon defaults
	if c.Business.Name == "" {
		c.Business.Name = "Smarter Dog Grooming Salon"
	}
	if c.Business.Timezone == "" {
		c.Business.Timezone = "Europe/London"
	}
	if len(c.Business.OpenDays) == 0 {
		c.Business.OpenDays = []string{"monday", "tuesday", "wednesday"}
	}
	if c.Business.FirstSlot == "" {
		c.Business.FirstSlot = "08:30"
	}
	if c.Business.LastSlot == "" {
		c.Business.LastSlot = "14:00"
	}
	if c.Business.SlotIntervalMinutes <= 0 {
		c.Business.SlotIntervalMinutes = 30
	}
	if c.Business.BookingHorizonDays <= 0 {
		c.Business.BookingHorizonDays = 56
	}
	if c.Business.DepositPercentage == 0 {
		c.Business.DepositPercentage = 0.5
	}
	if c.Business.CalendarDomain == "" {
		c.Business.CalendarDomain = "smarterdog.co.uk"
	}
	if c.Business.ProdID == "" {
		c.Business.ProdID = "-//Smarter Dog//Booking System//EN"
	}

	if c.Wizard.SessionTTLMinutes <= 0 {
		c.Wizard.SessionTTLMinutes = 60
	}
	if c.Wizard.SubmitLockSeconds <= 0 {
		c.Wizard.SubmitLockSeconds = 30
	}
	if c.Wizard.SubmitTimeoutSecs <= 0 {
		c.Wizard.SubmitTimeoutSecs = 10
	}

	if c.Backup.Schedule == "" {
		c.Backup.Schedule = "24h"
	}
	if c.Backup.StoragePath == "" {
		c.Backup.StoragePath = "./data/backups"
	}

	if c.Google.SheetName == "" {
		c.Google.SheetName = "Appointments"
	}
}
