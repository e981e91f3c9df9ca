package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Routing   RoutingConfig   `mapstructure:"routing"`
	Providers ProvidersConfig `mapstructure:"providers"`
	FX        FXConfig        `mapstructure:"fx"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type StorageConfig struct {
	Driver string       `mapstructure:"driver"`
	SQLite SQLiteConfig `mapstructure:"sqlite"`
}

type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

type RoutingConfig struct {
	ReferenceCurrency    string        `mapstructure:"reference_currency"`
	BusinessTimezone     string        `mapstructure:"business_timezone"`
	BusinessDayStartHour int           `mapstructure:"business_day_start_hour"`
	HealthTTL            time.Duration `mapstructure:"health_ttl"`
	BreakerThreshold     int           `mapstructure:"breaker_threshold"`
	CheckoutTTL          time.Duration `mapstructure:"checkout_ttl"`
}

type ProvidersConfig struct {
	BaseURL       string        `mapstructure:"base_url"`
	ChargeTimeout time.Duration `mapstructure:"charge_timeout"`
}

type FXConfig struct {
	URL          string        `mapstructure:"url"`
	TTL          time.Duration `mapstructure:"ttl"`
	FetchTimeout time.Duration `mapstructure:"fetch_timeout"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func Load(path string) (*Config, error) {
	if path != "" {
		viper.SetConfigFile(path)
	} else {
		viper.SetConfigName("payroute")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("/etc/payroute")
	}

	setDefaults()

	viper.AutomaticEnv()
	viper.SetEnvPrefix("PAYROUTE")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", 30*time.Second)
	viper.SetDefault("server.write_timeout", 30*time.Second)

	viper.SetDefault("storage.driver", "sqlite")
	viper.SetDefault("storage.sqlite.path", "./data/payroute.db")

	viper.SetDefault("routing.reference_currency", "BRL")
	viper.SetDefault("routing.business_timezone", "America/Sao_Paulo")
	viper.SetDefault("routing.business_day_start_hour", 6)
	viper.SetDefault("routing.health_ttl", 15*time.Minute)
	viper.SetDefault("routing.breaker_threshold", 2)
	viper.SetDefault("routing.checkout_ttl", 24*time.Hour)

	viper.SetDefault("providers.base_url", "http://localhost:9000")
	viper.SetDefault("providers.charge_timeout", 30*time.Second)

	viper.SetDefault("fx.url", "http://localhost:9100/rates")
	viper.SetDefault("fx.ttl", 24*time.Hour)
	viper.SetDefault("fx.fetch_timeout", 10*time.Second)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
}
