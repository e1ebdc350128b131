package config

import "time"

type Config struct {
	Service     *ServiceConfig
	Redis       *RedisConfig
	Postgres    *PostgresConfig
	Chat        *ChatConfig
	Media       *MediaConfig
	Relay       *RelayConfig
	Logger      *LoggerConfig
	Tracer      *TracerConfig
	SecretToken string
	StoreDriver string
}

type ServiceConfig struct {
	Name            string
	Env             string
	Add             string
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
}

type RedisConfig struct {
	URL          string
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolSize     int
	MinIdleConns int
	PingTimeout  time.Duration
}

type PostgresConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PingTimeout     time.Duration
	Migrate         bool
}

// ChatConfig holds the per-connection liveness and buffering knobs.
type ChatConfig struct {
	HeartbeatInterval time.Duration
	ReadTimeout       time.Duration
	WriteWait         time.Duration
	SendBuffer        int
	MaxFrameBytes     int64
	PresenceTTL       time.Duration
}

type MediaConfig struct {
	CloudName    string
	APIKey       string
	APISecret    string
	BaseURL      string
	MaxFileBytes int64
	Timeout      time.Duration
}

type RelayConfig struct {
	Enabled bool
	Prefix  string
}

type LoggerConfig struct {
	Level  string
	Format string
}

type TracerConfig struct {
	Address string
}
