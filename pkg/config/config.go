package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	App        AppConfig        `mapstructure:"app"`
	DB         DBConfig         `mapstructure:"db"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Kafka      KafkaConfig      `mapstructure:"kafka"`
	Log        LogConfig        `mapstructure:"log"`
	Tracing    TracingConfig    `mapstructure:"tracing"`
	Reconciler ReconcilerConfig `mapstructure:"reconciler"`
	Chains     ChainsConfig     `mapstructure:"chains"`
}

type AppConfig struct {
	Env      string `mapstructure:"env"`
	HttpPort string `mapstructure:"http_port"`
}

type DBConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
}

// DSN 返回 gorm postgres 驱动使用的连接串
func (c DBConfig) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC",
		c.Host, c.User, c.Password, c.Name, c.Port)
}

// URL 返回 golang-migrate 使用的连接串
func (c DBConfig) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.User, c.Password, c.Host, c.Port, c.Name)
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	MQType   string `mapstructure:"mq_type"` // "redis" or "kafka"
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
}

type LogConfig struct {
	File       string `mapstructure:"file"` // 为空时只输出到 stdout
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

type TracingConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	CollectorURL string  `mapstructure:"collector_url"`
	SampleRate   float64 `mapstructure:"sample_rate"`
	Insecure     bool    `mapstructure:"insecure"`
}

// ReconcilerConfig 对账引擎参数
type ReconcilerConfig struct {
	PollInterval      time.Duration `mapstructure:"poll_interval"`
	AmountTolerance   float64       `mapstructure:"amount_tolerance"`
	BatchSize         int           `mapstructure:"batch_size"`
	RPCTimeout        time.Duration `mapstructure:"rpc_timeout"`
	NetworkTimeout    time.Duration `mapstructure:"network_timeout"`
	MaxChunksPerCycle int           `mapstructure:"max_chunks_per_cycle"`
	UseLock           bool          `mapstructure:"use_lock"`
}

type ChainsConfig struct {
	Tron TronConfig `mapstructure:"tron"`
	BSC  EVMConfig  `mapstructure:"bsc"`
}

// ScanConfig 是两条链共用的扫描参数
type ScanConfig struct {
	TokenDecimals    int32 `mapstructure:"token_decimals"`
	MinConfirmations int   `mapstructure:"min_confirmations"` // 钱包未配置时的默认值
	StartBlock       int64 `mapstructure:"start_block"`
	InitialLookback  int64 `mapstructure:"initial_lookback"`
}

type TronConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	APIURL   string `mapstructure:"api_url"`
	APIKey   string `mapstructure:"api_key"`
	PageSize int    `mapstructure:"page_size"`
	MaxPages int    `mapstructure:"max_pages"`

	ScanConfig `mapstructure:",squash"`
}

type EVMConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	RpcUrl    string `mapstructure:"rpc_url"`
	ChunkSize int64  `mapstructure:"chunk_size"`

	ScanConfig `mapstructure:",squash"`
}

var Global Config

func Init() {
	// .env 只用于本地开发，不存在时忽略
	if err := godotenv.Load(); err == nil {
		log.Printf("Loaded environment from .env")
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// 环境变量设置: RECONCILER_BATCH_SIZE -> reconciler.batch_size
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Printf("Warning: Config file not found, using defaults and environment variables")
		} else {
			log.Fatalf("Fatal error config file: %s \n", err)
		}
	}

	if err := viper.Unmarshal(&Global); err != nil {
		log.Fatalf("Unable to decode into struct, %v", err)
	}

	if err := Global.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	log.Printf("Configuration loaded successfully. Env: %s", Global.App.Env)
}

// Validate 检查会让引擎无法工作的配置
func (c Config) Validate() error {
	r := c.Reconciler
	if r.AmountTolerance < 0 || r.AmountTolerance >= 1 {
		return fmt.Errorf("reconciler.amount_tolerance must be in [0,1), got %v", r.AmountTolerance)
	}
	if r.BatchSize <= 0 {
		return fmt.Errorf("reconciler.batch_size must be positive")
	}
	if r.PollInterval <= 0 {
		return fmt.Errorf("reconciler.poll_interval must be positive")
	}
	if c.Chains.Tron.Enabled && c.Chains.Tron.APIURL == "" {
		return fmt.Errorf("chains.tron.api_url is required when tron is enabled")
	}
	if c.Chains.BSC.Enabled && c.Chains.BSC.RpcUrl == "" {
		return fmt.Errorf("chains.bsc.rpc_url is required when bsc is enabled")
	}
	return nil
}

func setDefaults() {
	viper.SetDefault("app.env", "development")
	viper.SetDefault("app.http_port", "8080")

	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.user", "wallet_user")
	viper.SetDefault("db.password", "wallet_password")
	viper.SetDefault("db.name", "wallet_db")

	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.mq_type", "redis")

	viper.SetDefault("kafka.brokers", []string{"localhost:9092"})

	viper.SetDefault("log.max_size_mb", 100)
	viper.SetDefault("log.max_backups", 7)
	viper.SetDefault("log.max_age_days", 30)

	viper.SetDefault("tracing.enabled", false)
	viper.SetDefault("tracing.collector_url", "localhost:4317")
	viper.SetDefault("tracing.sample_rate", 1.0)

	viper.SetDefault("reconciler.poll_interval", 30*time.Second)
	viper.SetDefault("reconciler.amount_tolerance", 0.05)
	viper.SetDefault("reconciler.batch_size", 50)
	viper.SetDefault("reconciler.rpc_timeout", 15*time.Second)
	viper.SetDefault("reconciler.network_timeout", 2*time.Minute)
	viper.SetDefault("reconciler.max_chunks_per_cycle", 50)
	viper.SetDefault("reconciler.use_lock", true)

	viper.SetDefault("chains.tron.enabled", true)
	viper.SetDefault("chains.tron.api_url", "https://api.trongrid.io")
	viper.SetDefault("chains.tron.page_size", 50)
	viper.SetDefault("chains.tron.max_pages", 4)
	viper.SetDefault("chains.tron.token_decimals", 6)
	viper.SetDefault("chains.tron.min_confirmations", 19)

	viper.SetDefault("chains.bsc.enabled", true)
	viper.SetDefault("chains.bsc.rpc_url", "https://bsc-dataseed.binance.org")
	viper.SetDefault("chains.bsc.chunk_size", 1000)
	viper.SetDefault("chains.bsc.token_decimals", 18)
	viper.SetDefault("chains.bsc.min_confirmations", 15)
	viper.SetDefault("chains.bsc.initial_lookback", 5000)
}
