// Package config loads process configuration via viper (SPEC_FULL.md
// §4.K): defaults, then an optional file, then HOSTESS_-prefixed
// environment variables, in increasing priority. A fsnotify watch
// hot-reloads the subset of settings safe to change live.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config is the process-wide settings snapshot. Listen address, mailbox
// size, and AMQP URL are read once at startup; LogLevel, IdleGraceMinutes,
// and TombstoneCacheSize are re-read on every hot reload (see Reloadable).
type Config struct {
	HTTP      HTTPConfig
	Instances InstancesConfig
	EventBus  EventBusConfig
	LogLevel  string
}

type HTTPConfig struct {
	Addr string
}

type InstancesConfig struct {
	MailboxSize        int
	IdleGraceMinutes   int
	TombstoneCacheSize int
}

type EventBusConfig struct {
	AMQPURL string
}

func (c Config) IdleGrace() time.Duration {
	return time.Duration(c.Instances.IdleGraceMinutes) * time.Minute
}

// Reloadable is the subset of Config fields it is safe to mutate on a live
// process without restarting listeners or reconnecting backends.
type Reloadable struct {
	LogLevel           string
	IdleGraceMinutes   int
	TombstoneCacheSize int
}

func (c Config) reloadable() Reloadable {
	return Reloadable{
		LogLevel:           c.LogLevel,
		IdleGraceMinutes:   c.Instances.IdleGraceMinutes,
		TombstoneCacheSize: c.Instances.TombstoneCacheSize,
	}
}

// Loader owns the viper instance backing a loaded Config, so its file (if
// any) can subsequently be watched for hot reload.
type Loader struct {
	v *viper.Viper
}

// Load builds a Config from defaults, an optional file at path (ignored
// if empty or missing), and HOSTESS_-prefixed environment variables.
func Load(path string) (*Config, *Loader, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("HOSTESS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !errors.Is(err, fs.ErrNotExist) {
				return nil, nil, fmt.Errorf("config: read %s: %w", path, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	return &cfg, &Loader{v: v}, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("instances.mailboxsize", 1024)
	v.SetDefault("instances.idlegraceminutes", 0)
	v.SetDefault("instances.tombstonecachesize", 256)
	v.SetDefault("eventbus.amqpurl", "")
	v.SetDefault("loglevel", "info")
}

// Watcher hot-reloads the Reloadable subset of Config whenever the
// backing file changes, publishing the latest snapshot via Current. Its
// Level is a live slog.LevelVar, so a logger built against it (see
// config.NewLogger) changes verbosity without being rebuilt.
type Watcher struct {
	current atomic.Pointer[Reloadable]
	level   slog.LevelVar
}

// Watch starts watching the loader's config file (a no-op if Load was
// called with an empty path) and returns a Watcher whose Current() always
// reflects the latest reload.
func (l *Loader) Watch(initial Config) *Watcher {
	w := &Watcher{}
	r := initial.reloadable()
	w.current.Store(&r)
	w.level.Set(parseLevel(initial.LogLevel))

	l.v.OnConfigChange(func(_ fsnotify.Event) {
		level := l.v.GetString("loglevel")
		w.current.Store(&Reloadable{
			LogLevel:           level,
			IdleGraceMinutes:   l.v.GetInt("instances.idlegraceminutes"),
			TombstoneCacheSize: l.v.GetInt("instances.tombstonecachesize"),
		})
		w.level.Set(parseLevel(level))
	})
	l.v.WatchConfig()

	return w
}

// Current returns the latest reloaded settings.
func (w *Watcher) Current() Reloadable {
	return *w.current.Load()
}

// Level returns the live level var backing loggers built with NewLogger;
// it updates in place on every hot reload.
func (w *Watcher) Level() *slog.LevelVar {
	return &w.level
}
