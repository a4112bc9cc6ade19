// Package config loads the service configuration from the environment,
// an optional .env file, and an optional config.yaml.
package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"amerifund/internal/logger"
)

type Config struct {
	App      AppConfig      `mapstructure:"app"`
	DB       DBConfig       `mapstructure:"db"`
	Redis    RedisConfig    `mapstructure:"redis"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	Loan     LoanConfig     `mapstructure:"loan"`
	Upload   UploadConfig   `mapstructure:"upload"`
	SMTP     SMTPConfig     `mapstructure:"smtp"`
	Notify   NotifyConfig   `mapstructure:"notify"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	BankLink BankLinkConfig `mapstructure:"banklink"`
	Log      logger.Config  `mapstructure:"log"`
}

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Env         string `mapstructure:"env"`
	Port        string `mapstructure:"port"`
	CORSOrigins string `mapstructure:"cors_origins"`
}

type DBConfig struct {
	Host            string        `mapstructure:"host"`
	Port            string        `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
}

type RedisConfig struct {
	Host       string        `mapstructure:"host"`
	Port       string        `mapstructure:"port"`
	Password   string        `mapstructure:"password"`
	DB         int           `mapstructure:"db"`
	SessionTTL time.Duration `mapstructure:"session_ttl"`
	UserTTL    time.Duration `mapstructure:"user_ttl"`
}

type JWTConfig struct {
	Secret     string        `mapstructure:"secret"`
	Issuer     string        `mapstructure:"issuer"`
	AccessTTL  time.Duration `mapstructure:"access_ttl"`
	RefreshTTL time.Duration `mapstructure:"refresh_ttl"`
}

type LoanConfig struct {
	MinAmount float64 `mapstructure:"min_amount"`
	MaxAmount float64 `mapstructure:"max_amount"`
}

// UploadConfig selects the artifact backend: "local" writes under Dir,
// "s3" writes to Bucket under Prefix.
type UploadConfig struct {
	Backend  string `mapstructure:"backend"`
	Dir      string `mapstructure:"dir"`
	MaxBytes int64  `mapstructure:"max_bytes"`
	Bucket   string `mapstructure:"bucket"`
	Prefix   string `mapstructure:"prefix"`
	Region   string `mapstructure:"region"`
	Endpoint string `mapstructure:"endpoint"`
}

type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

// NotifyConfig picks the transport for notification mail: smtp, kafka or log.
type NotifyConfig struct {
	Transport  string `mapstructure:"transport"`
	AdminEmail string `mapstructure:"admin_email"`
}

type KafkaConfig struct {
	Brokers    []string `mapstructure:"brokers"`
	Topic      string   `mapstructure:"topic"`
	MaxRetries int      `mapstructure:"max_retries"`
}

type BankLinkConfig struct {
	Latency     time.Duration `mapstructure:"latency"`
	LogoBaseURL string        `mapstructure:"logo_base_url"`
	LinkTTL     time.Duration `mapstructure:"link_ttl"`
}

// LoadEnv loads variables from a .env file if present.
func LoadEnv() {
	if err := godotenv.Load(); err != nil {
		logger.Log.Debug("no .env file found", zap.Error(err))
	}
}

// Load builds the configuration from defaults, config.yaml and the
// environment. Environment keys use underscores, e.g. DB_HOST, LOAN_MIN_AMOUNT.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var notFound viper.ConfigFileNotFoundError
	if err := v.ReadInConfig(); err != nil && !errors.As(err, &notFound) {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if cfg.Loan.MinAmount > cfg.Loan.MaxAmount {
		return nil, errors.New("loan.min_amount must not exceed loan.max_amount")
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "AmeriFund Loan")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "3000")
	v.SetDefault("app.cors_origins", "http://localhost:5173")

	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", "5432")
	v.SetDefault("db.user", "postgres")
	v.SetDefault("db.password", "postgres")
	v.SetDefault("db.name", "amerifund")
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("db.max_idle_conns", 10)
	v.SetDefault("db.max_open_conns", 100)
	v.SetDefault("db.conn_max_lifetime", time.Hour)
	v.SetDefault("db.conn_max_idle_time", 30*time.Minute)

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", "6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.session_ttl", 24*time.Hour)
	v.SetDefault("redis.user_ttl", time.Hour)

	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.issuer", "amerifund-api")
	v.SetDefault("jwt.access_ttl", 15*time.Minute)
	v.SetDefault("jwt.refresh_ttl", 7*24*time.Hour)

	v.SetDefault("loan.min_amount", 5000.0)
	v.SetDefault("loan.max_amount", 800000.0)

	v.SetDefault("upload.backend", "local")
	v.SetDefault("upload.dir", "uploads")
	v.SetDefault("upload.max_bytes", 16*1024*1024)
	v.SetDefault("upload.bucket", "")
	v.SetDefault("upload.prefix", "applications")
	v.SetDefault("upload.region", "us-east-1")
	v.SetDefault("upload.endpoint", "")

	v.SetDefault("smtp.host", "smtp.gmail.com")
	v.SetDefault("smtp.port", 465)
	v.SetDefault("smtp.username", "")
	v.SetDefault("smtp.password", "")
	v.SetDefault("smtp.from", "")

	v.SetDefault("notify.transport", "log")
	v.SetDefault("notify.admin_email", "")

	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "loan-notifications")
	v.SetDefault("kafka.max_retries", 3)

	v.SetDefault("banklink.latency", time.Second)
	v.SetDefault("banklink.logo_base_url", "https://logo.clearbit.com/")
	v.SetDefault("banklink.link_ttl", 30*time.Minute)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 10)
	v.SetDefault("log.max_age_days", 30)
}

// IsProduction checks if the app runs in production mode.
func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}

// MinLoanAmount and MaxLoanAmount expose the loan bounds as decimals.
func (c *Config) MinLoanAmount() decimal.Decimal { return decimal.NewFromFloat(c.Loan.MinAmount) }
func (c *Config) MaxLoanAmount() decimal.Decimal { return decimal.NewFromFloat(c.Loan.MaxAmount) }

// GetEnv returns an environment variable or a default value.
func GetEnv(key, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	return defaultVal
}
