package logging

import (
	"io"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	defaultMaxSizeMB  = 100
	defaultMaxBackups = 3
	defaultMaxAgeDays = 28
)

// writer resolves the log destination: a rotating file when File is set,
// otherwise Output, otherwise stderr.
func (cfg Config) writer() io.Writer {
	if cfg.File != "" {
		return &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    orDefault(cfg.MaxSizeMB, defaultMaxSizeMB),
			MaxBackups: orDefault(cfg.MaxBackups, defaultMaxBackups),
			MaxAge:     orDefault(cfg.MaxAgeDays, defaultMaxAgeDays),
			Compress:   cfg.Compress,
		}
	}
	if cfg.Output != nil {
		return cfg.Output
	}
	return os.Stderr
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
