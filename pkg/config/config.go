package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server      ServerConfig
	SQLite      SQLiteConfig
	Redis       RedisConfig
	ObjectStore ObjectStoreConfig
	Ingest      IngestConfig
	Logging     LoggingConfig
}

type ServerConfig struct {
	Host                string
	Port                int
	ReadTimeout         int
	WriteTimeout        int
	BodyLimit           int
	AllowedOrigins      []string
	Environment         string
	MaxBatchesPerMinute int
}

type SQLiteConfig struct {
	Path string
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
	TTLSec   int
}

type ObjectStoreConfig struct {
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	FetchTimeoutSec int
	MaxObjectBytes  int64
}

type IngestConfig struct {
	SecretToken string
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/valgdash")

	viper.SetEnvPrefix("VALGDASH")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.readTimeout", 30)
	viper.SetDefault("server.writeTimeout", 30)
	viper.SetDefault("server.bodyLimit", 10485760)
	viper.SetDefault("server.allowedOrigins", []string{"http://localhost:3000"})
	viper.SetDefault("server.environment", "development")
	viper.SetDefault("server.maxBatchesPerMinute", 30)

	viper.SetDefault("sqlite.path", "./data/valgdash.db")

	viper.SetDefault("redis.enabled", false)
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.ttlSec", 300)

	viper.SetDefault("objectstore.region", "us-east-1")
	viper.SetDefault("objectstore.fetchTimeoutSec", 60)
	viper.SetDefault("objectstore.maxObjectBytes", 10*1024*1024)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.outputPath", "stdout")
}
