package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const EnvPrefix = "BROADCAST"

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Player    PlayerConfig    `mapstructure:"player"`
	Pushover  PushoverConfig  `mapstructure:"pushover"`
	MQTT      MQTTConfig      `mapstructure:"mqtt"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
}

type StorageConfig struct {
	FilePath string `mapstructure:"file_path"`
	Watch    bool   `mapstructure:"watch"`
}

type SchedulerConfig struct {
	TickInterval time.Duration `mapstructure:"tick_interval"`
}

type PlayerConfig struct {
	Command      string        `mapstructure:"command"`
	Args         []string      `mapstructure:"args"`
	ProbeCommand string        `mapstructure:"probe_command"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

type PushoverConfig struct {
	Token string `mapstructure:"token"`
	User  string `mapstructure:"user"`
}

// Enabled reports whether both credentials are set.
func (p PushoverConfig) Enabled() bool {
	return p.Token != "" && p.User != ""
}

type MQTTConfig struct {
	Broker      string `mapstructure:"broker"`
	ClientID    string `mapstructure:"client_id"`
	TopicPrefix string `mapstructure:"topic_prefix"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", ":8080")
	v.SetDefault("storage.file_path", "data/schedule.json")
	v.SetDefault("storage.watch", false)
	v.SetDefault("scheduler.tick_interval", time.Second)
	v.SetDefault("player.command", "ffplay")
	v.SetDefault("player.args", []string{"-nodisp", "-autoexit", "-loglevel", "quiet"})
	v.SetDefault("player.probe_command", "ffprobe")
	v.SetDefault("player.poll_interval", 100*time.Millisecond)
	v.SetDefault("player.idle_timeout", time.Second)
	v.SetDefault("pushover.token", "")
	v.SetDefault("pushover.user", "")
	v.SetDefault("mqtt.broker", "")
	v.SetDefault("mqtt.client_id", "broadcast-scheduler")
	v.SetDefault("mqtt.topic_prefix", "broadcast")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
}

// LoadConfig reads path (if it exists), then .env, then BROADCAST_* variables.
// A missing config file is not an error; every key has a default.
func LoadConfig(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				var notFound viper.ConfigFileNotFoundError
				if !errors.As(err, &notFound) {
					return nil, fmt.Errorf("failed to read config %s: %w", path, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if cfg.Scheduler.TickInterval <= 0 {
		return nil, fmt.Errorf("scheduler.tick_interval must be positive, got %s", cfg.Scheduler.TickInterval)
	}
	return &cfg, nil
}
