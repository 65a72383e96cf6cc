package config

import (
	"time"

	"github.com/spf13/viper"

	pkgconfig "github.com/reservo/chat-service/pkg/config"
	"github.com/reservo/chat-service/pkg/database"
	"github.com/reservo/chat-service/pkg/log"
)

type Config struct {
	Server    ServerConfig
	WebSocket WebSocketConfig
	Database  database.Config
	Redis     RedisConfig
	Auth      AuthConfig
	Typing    TypingConfig
	Log       log.Config
}

type ServerConfig struct {
	Host string
	Port int
}

type WebSocketConfig struct {
	PingInterval   time.Duration `mapstructure:"ping_interval"`
	PongWait       time.Duration `mapstructure:"pong_wait"`
	WriteWait      time.Duration `mapstructure:"write_wait"`
	MaxMessageSize int64         `mapstructure:"max_message_size"`
	SendBufferSize int           `mapstructure:"send_buffer_size"`
}

type RedisConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Address     string        `mapstructure:"address"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	CachePrefix string        `mapstructure:"cache_prefix"`
	CacheTTL    time.Duration `mapstructure:"cache_ttl"`
}

type AuthConfig struct {
	RequireToken  bool          `mapstructure:"require_token"`
	Secret        string        `mapstructure:"secret"`
	TokenDuration time.Duration `mapstructure:"token_duration"`
	Issuer        string        `mapstructure:"issuer"`
}

type TypingConfig struct {
	// TTL is how long a typing indicator stays live without a refresh
	// before the server emits typing:stop on the typist's behalf.
	// Zero disables the sweeper.
	TTL           time.Duration `mapstructure:"ttl"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

func Load() (*Config, error) {
	v, err := pkgconfig.Load("./config", "config")
	if err != nil {
		return nil, err
	}

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8090)
	v.SetDefault("websocket.ping_interval", "30s")
	v.SetDefault("websocket.pong_wait", "60s")
	v.SetDefault("websocket.write_wait", "10s")
	v.SetDefault("websocket.max_message_size", 65536)
	v.SetDefault("websocket.send_buffer_size", 256)
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.file_path", "./chat.db")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_idle_conns", 4)
	v.SetDefault("database.max_open_conns", 16)
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.cache_prefix", "chat:history")
	v.SetDefault("redis.cache_ttl", "60s")
	v.SetDefault("auth.require_token", false)
	v.SetDefault("auth.secret", "")
	v.SetDefault("auth.token_duration", "24h")
	v.SetDefault("auth.issuer", "reservo-chat")
	v.SetDefault("typing.ttl", "8s")
	v.SetDefault("typing.sweep_interval", "1s")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.service_name", "chat-service")

	v.BindEnv("server.port", "PORT")
	v.BindEnv("database.driver", "DB_DRIVER")
	v.BindEnv("database.host", "DB_HOST")
	v.BindEnv("database.port", "DB_PORT")
	v.BindEnv("database.user", "DB_USER")
	v.BindEnv("database.password", "DB_PASSWORD")
	v.BindEnv("database.db_name", "DB_NAME")
	v.BindEnv("database.file_path", "DB_FILE_PATH")
	v.BindEnv("redis.enabled", "REDIS_ENABLED")
	v.BindEnv("redis.address", "REDIS_ADDRESS")
	v.BindEnv("redis.password", "REDIS_PASSWORD")
	v.BindEnv("auth.require_token", "AUTH_REQUIRE_TOKEN")
	v.BindEnv("auth.secret", "AUTH_SECRET")
	v.BindEnv("log.level", "LOG_LEVEL")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Viper leaves duration strings alone when the target field was set
	// via defaults; parse them explicitly.
	cfg.WebSocket.PingInterval = parseDuration(v, "websocket.ping_interval", 30*time.Second)
	cfg.WebSocket.PongWait = parseDuration(v, "websocket.pong_wait", 60*time.Second)
	cfg.WebSocket.WriteWait = parseDuration(v, "websocket.write_wait", 10*time.Second)
	cfg.Redis.CacheTTL = parseDuration(v, "redis.cache_ttl", 60*time.Second)
	cfg.Auth.TokenDuration = parseDuration(v, "auth.token_duration", 24*time.Hour)
	cfg.Typing.TTL = parseDuration(v, "typing.ttl", 8*time.Second)
	cfg.Typing.SweepInterval = parseDuration(v, "typing.sweep_interval", time.Second)

	return &cfg, nil
}

func parseDuration(v *viper.Viper, key string, defaultVal time.Duration) time.Duration {
	d, err := time.ParseDuration(v.GetString(key))
	if err != nil {
		return defaultVal
	}
	return d
}
