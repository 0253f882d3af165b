// Package log provides the process-wide structured logger.
package log

import (
	"sync"

	pkglog "firestige.xyz/tcpedit/pkg/log"
)

// Logger is the public plugin logger; the logrus adapter implements it.
type Logger = pkglog.Logger

const (
	DefaultPattern = "%time [%level][%field] %msg\n"
	DefaultTime    = "2006-01-02 15:04:05.000"
)

// Config configures the global logger.
type Config struct {
	Level   string     `mapstructure:"level"`
	Pattern string     `mapstructure:"pattern"`
	Time    string     `mapstructure:"time"`
	File    FileConfig `mapstructure:"file"`
}

// FileConfig enables a rotating log file next to stdout.
type FileConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

var (
	mu     sync.RWMutex
	logger Logger
)

func init() {
	_ = initByConfig(&Config{Level: "info"})
}

func GetLogger() Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// Init replaces the global logger. It may be called again, e.g. after a
// config reload or from tests.
func Init(cfg *Config) error {
	return initByConfig(cfg)
}
