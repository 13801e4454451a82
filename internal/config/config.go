package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	LogLevel   string `yaml:"log-level" env:"LOG_LEVEL" env-default:"info"`
	HTTPPort   string `yaml:"http-port" env:"HTTP_PORT" env-default:"9090"`
	SocketPort string `yaml:"socket-port" env:"SOCKET_PORT" env-default:"8080"`
	Redis      Redis  `yaml:"redis"`
	Game       Game   `yaml:"game"`
	Bot        Bot    `yaml:"bot"`
}

type Redis struct {
	Enabled bool   `yaml:"enabled" env:"REDIS_ENABLED" env-default:"false"`
	Host    string `yaml:"host" env:"REDIS_HOST" env-default:"localhost"`
	Port    string `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
}

type Game struct {
	InactivityTimeout time.Duration `yaml:"inactivity-timeout" env:"GAME_INACTIVITY_TIMEOUT" env-default:"10m"`
	ResetDelay        time.Duration `yaml:"reset-delay" env:"GAME_RESET_DELAY" env-default:"3s"`
	WinSize           int           `yaml:"win-size" env:"GAME_WIN_SIZE" env-default:"3"`
	QueueKind         string        `yaml:"queue-kind" env:"GAME_QUEUE_KIND" env-default:"tictactoe"`
}

// Bot configures the santorini-bot opponent. An empty MoveServiceURL selects the built-in mover.
type Bot struct {
	MoveServiceURL string        `yaml:"move-service-url" env:"BOT_MOVE_SERVICE_URL"`
	Timeout        time.Duration `yaml:"timeout" env:"BOT_TIMEOUT" env-default:"5s"`
}

// Load reads the YAML file at path and applies environment overrides.
func Load(path string) (*Config, error) {
	config := &Config{}

	if err := cleanenv.ReadConfig(path, config); err != nil {
		return nil, fmt.Errorf("unable to load config file: %w", err)
	}

	return config, nil
}

// MustLoad is Load that panics on error.
func MustLoad(path string) *Config {
	config, err := Load(path)
	if err != nil {
		panic(err)
	}

	return config
}
