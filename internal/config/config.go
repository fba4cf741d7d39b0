// Package config loads the service configuration from a YAML file and the
// environment, and watches the file for tag-name changes.
package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"

	"sprintboard/internal/board"
	"sprintboard/internal/logger"
	"sprintboard/internal/util"
)

// DefaultPath is used when SPRINTBOARD_CONFIG is not set.
const DefaultPath = "config/sprintboard.yaml"

type HTTPCfg struct {
	Addr            string        `yaml:"addr" env:"HTTP_ADDR" env-default:":8080"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"HTTP_SHUTDOWN_TIMEOUT" env-default:"10s"`
}

type DatabaseCfg struct {
	Path string `yaml:"path" env:"DB_PATH" env-default:"data/sprintboard.db"`
}

type LogCfg struct {
	Env string `yaml:"env" env:"APP_ENV" env-default:"development"`
}

type ResolverCfg struct {
	CacheSize    int           `yaml:"cache_size" env:"RESOLVER_CACHE_SIZE" env-default:"256"`
	CacheTTL     time.Duration `yaml:"cache_ttl" env:"RESOLVER_CACHE_TTL" env-default:"5m"`
	FetchTimeout time.Duration `yaml:"fetch_timeout" env:"RESOLVER_FETCH_TIMEOUT" env-default:"10s"`
}

type BoardCfg struct {
	Tags         board.TagNames `yaml:"tags"`
	FetchTimeout time.Duration  `yaml:"fetch_timeout" env:"BOARD_FETCH_TIMEOUT" env-default:"10s"`
}

type Config struct {
	HTTP     HTTPCfg     `yaml:"http"`
	Database DatabaseCfg `yaml:"database"`
	Log      LogCfg      `yaml:"log"`
	Resolver ResolverCfg `yaml:"resolver"`
	Board    BoardCfg    `yaml:"board"`
}

// Path returns the config file location from SPRINTBOARD_CONFIG.
func Path() string {
	return util.ExpandPath(util.EnvOrDefault("SPRINTBOARD_CONFIG", DefaultPath))
}

// Load reads an optional .env file, then path (when it exists), then the
// environment. Environment variables win over the file.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	var cfg Config
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := cleanenv.ReadConfig(path, &cfg); err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
			return cfg.normalize(), nil
		}
	}
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read config from environment: %w", err)
	}
	return cfg.normalize(), nil
}

func (c *Config) normalize() *Config {
	c.Database.Path = util.ExpandPath(c.Database.Path)
	return c
}

// BoardOptions converts the board and resolver sections for the coordinator.
func (c *Config) BoardOptions() board.Options {
	opts := board.Options{TagNames: c.Board.Tags, FetchTimeout: c.Board.FetchTimeout}
	opts.Resolver.CacheSize = c.Resolver.CacheSize
	opts.Resolver.CacheTTL = c.Resolver.CacheTTL
	opts.Resolver.FetchTimeout = c.Resolver.FetchTimeout
	return opts
}

// Watch reloads path whenever it is written or replaced and passes the new
// configuration to onChange. It blocks until ctx is done. A file that fails
// to parse is logged and skipped.
func Watch(ctx context.Context, path string, log *logger.Logger, onChange func(*Config)) error {
	if log == nil {
		log = logger.Nop()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve config path: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	defer watcher.Close()

	// Editors replace files by rename, so watch the directory.
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			log.Debugw("config file changed", "event", event.Op.String(), "file", event.Name)
			cfg, err := Load(abs)
			if err != nil {
				log.Warnw("config reload failed, keeping previous values", "error", err)
				continue
			}
			onChange(cfg)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Errorw("fsnotify error", "error", err)
		}
	}
}
