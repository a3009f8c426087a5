package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App      AppConfig      `yaml:"app"`
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Storage  StorageConfig  `yaml:"storage"`
	Gateway  GatewayConfig  `yaml:"gateway"`
	Workers  WorkersConfig  `yaml:"workers"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type AppConfig struct {
	Name    string `yaml:"name" validate:"required"`
	Version string `yaml:"version"`
	Env     string `yaml:"env" validate:"oneof=development staging production test"`
}

type ServerConfig struct {
	Port            int           `yaml:"port" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Host               string        `yaml:"host" validate:"required"`
	Port               int           `yaml:"port" validate:"min=1,max=65535"`
	User               string        `yaml:"user" validate:"required"`
	Password           string        `yaml:"password"`
	Name               string        `yaml:"name" validate:"required"`
	Charset            string        `yaml:"charset"`
	ParseTime          *bool         `yaml:"parse_time"`
	Loc                string        `yaml:"loc"`
	MaxConnections     int           `yaml:"max_connections"`
	MaxIdleConnections int           `yaml:"max_idle_connections"`
	ConnectionLifetime time.Duration `yaml:"connection_lifetime"`
}

type RedisConfig struct {
	Host        string        `yaml:"host" validate:"required"`
	Port        int           `yaml:"port" validate:"min=1,max=65535"`
	Password    string        `yaml:"password"`
	DB          int           `yaml:"db"`
	PoolSize    int           `yaml:"pool_size"`
	RecalcQueue string        `yaml:"recalc_queue"`
	ImportQueue string        `yaml:"import_queue"`
	DLQSuffix   string        `yaml:"dlq_suffix"`
	RowsTTL     time.Duration `yaml:"rows_ttl"`
}

type StorageConfig struct {
	S3              S3Config `yaml:"s3"`
	ArchivePayloads bool     `yaml:"archive_payloads"`
	ArchivePrefix   string   `yaml:"archive_prefix"`
}

type S3Config struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket" validate:"required"`
	Region    string `yaml:"region"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// GatewayConfig describes the school-management GraphQL API that owns results.
type GatewayConfig struct {
	BaseURL         string        `yaml:"base_url" validate:"required,url"`
	GraphQLEndpoint string        `yaml:"graphql_endpoint"`
	AuthEndpoint    string        `yaml:"auth_endpoint"`
	Username        string        `yaml:"username"`
	Password        string        `yaml:"password"`
	Timeout         time.Duration `yaml:"timeout"`
	RetryAttempts   int           `yaml:"retry_attempts" validate:"min=0,max=10"`
	RetryDelay      time.Duration `yaml:"retry_delay"`
}

type WorkersConfig struct {
	Recalc RecalcWorkerConfig `yaml:"recalc"`
	Import ImportWorkerConfig `yaml:"import"`
}

type RecalcWorkerConfig struct {
	Count int `yaml:"count" validate:"min=1"`
}

type ImportWorkerConfig struct {
	Count   int `yaml:"count" validate:"min=1"`
	MaxRows int `yaml:"max_rows"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func Load() (*Config, error) {
	// .env is optional; it only feeds the overrides below.
	_ = godotenv.Load()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	config.applyEnv()
	config.applyDefaults()

	if err := validator.New().Struct(&config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

func (c *Config) applyEnv() {
	overrides := map[string]*string{
		"DB_PASSWORD":      &c.Database.Password,
		"REDIS_PASSWORD":   &c.Redis.Password,
		"GATEWAY_PASSWORD": &c.Gateway.Password,
		"S3_ACCESS_KEY":    &c.Storage.S3.AccessKey,
		"S3_SECRET_KEY":    &c.Storage.S3.SecretKey,
	}
	for env, target := range overrides {
		if v, ok := os.LookupEnv(env); ok {
			*target = v
		}
	}
}

func (c *Config) applyDefaults() {
	if c.App.Env == "" {
		c.App.Env = "development"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Database.Port == 0 {
		c.Database.Port = 3306
	}
	// Timestamps are scanned into time.Time.
	if c.Database.ParseTime == nil {
		parseTime := true
		c.Database.ParseTime = &parseTime
	}
	if c.Database.Charset == "" {
		c.Database.Charset = "utf8mb4"
	}
	if c.Database.Loc == "" {
		c.Database.Loc = "UTC"
	}
	if c.Redis.Port == 0 {
		c.Redis.Port = 6379
	}
	if c.Redis.RecalcQueue == "" {
		c.Redis.RecalcQueue = "results:recalc"
	}
	if c.Redis.ImportQueue == "" {
		c.Redis.ImportQueue = "results:import"
	}
	if c.Redis.DLQSuffix == "" {
		c.Redis.DLQSuffix = ":dlq"
	}
	if c.Redis.RowsTTL == 0 {
		c.Redis.RowsTTL = 12 * time.Hour
	}
	if c.Storage.ArchivePrefix == "" {
		c.Storage.ArchivePrefix = "archive"
	}
	if c.Gateway.GraphQLEndpoint == "" {
		c.Gateway.GraphQLEndpoint = "/graphql"
	}
	if c.Gateway.Timeout == 0 {
		c.Gateway.Timeout = 30 * time.Second
	}
	if c.Gateway.RetryAttempts == 0 {
		c.Gateway.RetryAttempts = 3
	}
	if c.Gateway.RetryDelay == 0 {
		c.Gateway.RetryDelay = time.Second
	}
	if c.Workers.Recalc.Count == 0 {
		c.Workers.Recalc.Count = 4
	}
	if c.Workers.Import.Count == 0 {
		c.Workers.Import.Count = 2
	}
	if c.Workers.Import.MaxRows == 0 {
		c.Workers.Import.MaxRows = 2000
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// MySQL DSN format: [username[:password]@][protocol[(address)]]/dbname[?param1=value1&...&paramN=valueN]
func (c *Config) DatabaseDSN() string {
	parseTime := c.Database.ParseTime == nil || *c.Database.ParseTime
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=%t&loc=%s",
		c.Database.User, c.Database.Password, c.Database.Host, c.Database.Port,
		c.Database.Name, c.Database.Charset, parseTime, c.Database.Loc)
}

func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func (c *Config) GraphQLURL() string {
	return c.Gateway.BaseURL + c.Gateway.GraphQLEndpoint
}
