package global

import (
	"strings"
	"sync"
	"time"

	"PPDirect/logger"

	"github.com/spf13/viper"
)

type MongoConfig struct {
	URI      string `mapstructure:"uri"`
	Database string `mapstructure:"database"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

type NatsConfig struct {
	URL     string `mapstructure:"url"`
	Subject string `mapstructure:"subject"`
}

type JWTConfig struct {
	Secret string        `mapstructure:"secret"`
	TTL    time.Duration `mapstructure:"ttl"`
}

type WSConfig struct {
	AuthTimeout time.Duration `mapstructure:"auth_timeout"`
}

type AppConfig struct {
	HTTPAddr        string        `mapstructure:"http_addr"`
	NodeID          int64         `mapstructure:"node_id"`
	Mongo           MongoConfig   `mapstructure:"mongo"`
	Redis           RedisConfig   `mapstructure:"redis"`
	Nats            NatsConfig    `mapstructure:"nats"`
	JWT             JWTConfig     `mapstructure:"jwt"`
	WS              WSConfig      `mapstructure:"ws"`
	SummaryCacheTTL time.Duration `mapstructure:"summary_cache_ttl"`
}

var (
	cfg     AppConfig
	cfgOnce sync.Once
)

// Load 读取 config.yaml（可缺省）并叠加 PPDIRECT_* 环境变量
func Load(path string) *AppConfig {
	cfgOnce.Do(func() {
		v := viper.New()
		v.SetDefault("http_addr", ":8080")
		v.SetDefault("node_id", 1)
		v.SetDefault("mongo.uri", "mongodb://127.0.0.1:27017")
		v.SetDefault("mongo.database", "devlovers")
		v.SetDefault("redis.addr", "")
		v.SetDefault("redis.db", 0)
		v.SetDefault("redis.pool_size", 16)
		v.SetDefault("nats.url", "")
		v.SetDefault("nats.subject", "ppdirect.messages.new")
		v.SetDefault("jwt.secret", "")
		v.SetDefault("jwt.ttl", 2*time.Hour)
		v.SetDefault("ws.auth_timeout", 30*time.Second)
		v.SetDefault("summary_cache_ttl", 60*time.Second)

		v.SetEnvPrefix("PPDIRECT")
		v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
		v.AutomaticEnv()

		if path != "" {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				// 配置文件允许缺省；环境变量/默认值兜底
				logger.Warnf("[config] read %s: %v (using env/defaults)", path, err)
			}
		}

		if err := v.Unmarshal(&cfg); err != nil {
			logger.Errorf("[config] unmarshal failed: %v", err)
		}
	})
	return &cfg
}

// Config 返回已加载的配置；未显式 Load 时按默认路径加载
func Config() *AppConfig {
	return Load("config.yaml")
}
