package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Wyydra/agentcall/internal/core/domain"
	"github.com/spf13/viper"
)

const EnvPrefix = "AGENTCALL"

const (
	DefaultListenAddr      = ":3000"
	DefaultShutdown        = 5 * time.Second
	DefaultMaxMessageBytes = int64(64 * 1024)
	DefaultPingInterval    = 20 * time.Second
	DefaultIdleTimeout     = 60 * time.Second
	DefaultSendQueue       = 256
	DefaultRelayURL        = "ws://localhost:3000/ws"
	DefaultSTUNServer      = "stun:stun.l.google.com:19302"
	DefaultSaveTimeout     = 5 * time.Second
)

type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Log     LogConfig     `mapstructure:"log"`
	Peer    PeerConfig    `mapstructure:"peer"`
	WebRTC  WebRTCConfig  `mapstructure:"webrtc"`
	Summary SummaryConfig `mapstructure:"summary"`
	Redis   RedisConfig   `mapstructure:"redis"`
}

type ServerConfig struct {
	Listen          string        `mapstructure:"listen"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxMessageBytes int64         `mapstructure:"max_message_bytes"`
	PingInterval    time.Duration `mapstructure:"ping_interval"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	SendQueue       int           `mapstructure:"send_queue"`
	StaticDir       string        `mapstructure:"static_dir"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type PeerConfig struct {
	RelayURL string `mapstructure:"relay_url"`
	Role     string `mapstructure:"role"`
	Label    string `mapstructure:"label"`
	// Engine selects the negotiation primitive: "pion" or the in-process "memory".
	Engine string `mapstructure:"engine"`
}

type WebRTCConfig struct {
	ICEServers []string `mapstructure:"ice_servers"`
}

type SummaryConfig struct {
	Store       string        `mapstructure:"store"`
	SaveTimeout time.Duration `mapstructure:"save_timeout"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Key      string `mapstructure:"key"`
}

// New returns a viper instance with defaults and AGENTCALL_* environment
// overrides (server.listen => AGENTCALL_SERVER_LISTEN).
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.listen", DefaultListenAddr)
	v.SetDefault("server.allowed_origins", []string{})
	v.SetDefault("server.shutdown_timeout", DefaultShutdown)
	v.SetDefault("server.max_message_bytes", DefaultMaxMessageBytes)
	v.SetDefault("server.ping_interval", DefaultPingInterval)
	v.SetDefault("server.idle_timeout", DefaultIdleTimeout)
	v.SetDefault("server.send_queue", DefaultSendQueue)
	v.SetDefault("server.static_dir", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetDefault("peer.relay_url", DefaultRelayURL)
	v.SetDefault("peer.role", "client")
	v.SetDefault("peer.label", "")
	v.SetDefault("peer.engine", "pion")

	v.SetDefault("webrtc.ice_servers", []string{DefaultSTUNServer})

	v.SetDefault("summary.store", "memory")
	v.SetDefault("summary.save_timeout", DefaultSaveTimeout)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key", "agentcall:summaries")
}

// Load reads the optional config file, applies overrides and validates.
func Load(v *viper.Viper, file string) (Config, error) {
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", file, err)
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Server.Listen) == "" {
		errs = append(errs, errors.New("server.listen must not be empty"))
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("server.shutdown_timeout must be positive"))
	}
	if c.Server.MaxMessageBytes <= 0 {
		errs = append(errs, errors.New("server.max_message_bytes must be positive"))
	}
	if c.Server.PingInterval <= 0 || c.Server.IdleTimeout <= c.Server.PingInterval {
		errs = append(errs, errors.New("server.idle_timeout must be longer than a positive server.ping_interval"))
	}
	if c.Server.SendQueue <= 0 {
		errs = append(errs, errors.New("server.send_queue must be positive"))
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format %q: want console or json", c.Log.Format))
	}
	if _, err := domain.ParseRole(c.Peer.Role); err != nil {
		errs = append(errs, fmt.Errorf("peer.role: %w", err))
	}
	switch c.Peer.Engine {
	case "pion", "memory":
	default:
		errs = append(errs, fmt.Errorf("peer.engine %q: want pion or memory", c.Peer.Engine))
	}
	if c.Summary.SaveTimeout <= 0 {
		errs = append(errs, errors.New("summary.save_timeout must be positive"))
	}
	switch c.Summary.Store {
	case "memory":
	case "redis":
		if c.Redis.Addr == "" {
			errs = append(errs, errors.New("redis.addr is required when summary.store is redis"))
		}
	default:
		errs = append(errs, fmt.Errorf("summary.store %q: want memory or redis", c.Summary.Store))
	}
	return errors.Join(errs...)
}
