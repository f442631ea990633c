// Copyright 2025 The Burrow Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package servenv holds the pieces of server environment shared by
// every binary: structured logging configured through flags.
package servenv

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/burrowdb/burrow/go/viperutil"

	"github.com/spf13/pflag"
)

// Logger owns the logging configuration of one binary.
type Logger struct {
	logLevel  viperutil.Value[string]
	logFormat viperutil.Value[string]
	logOutput viperutil.Value[string]

	loggerOnce sync.Once
	loggerMu   sync.Mutex
	logger     *slog.Logger
}

// NewLogger declares the logging configuration values on the given
// registry.
func NewLogger(reg *viperutil.Registry) *Logger {
	return &Logger{
		logLevel: viperutil.Configure(reg, "log-level", viperutil.Options[string]{
			Default:  "info",
			FlagName: "log-level",
		}),
		logFormat: viperutil.Configure(reg, "log-format", viperutil.Options[string]{
			Default:  "json",
			FlagName: "log-format",
		}),
		logOutput: viperutil.Configure(reg, "log-output", viperutil.Options[string]{
			Default:  "stderr",
			FlagName: "log-output",
		}),
	}
}

// RegisterFlags registers logging-related command line flags.
// This must be called before parsing flags.
func (lg *Logger) RegisterFlags(fs *pflag.FlagSet) {
	fs.String("log-level", lg.logLevel.Default(), "Log level (debug, info, warn, error)")
	fs.String("log-format", lg.logFormat.Default(), "Log format (json, text)")
	fs.String("log-output", lg.logOutput.Default(), "Log output (stdout, stderr, or file path)")
	viperutil.BindFlags(fs, lg.logLevel, lg.logFormat, lg.logOutput)
}

// SetupLogging initializes the logger from the configured values and
// installs it as the slog default. It should be called once, after
// flags are parsed and before any logging occurs.
func (lg *Logger) SetupLogging() {
	lg.loggerOnce.Do(func() {
		var level slog.Level
		levelStr := lg.logLevel.Get()
		switch strings.ToLower(levelStr) {
		case "debug":
			level = slog.LevelDebug
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		default:
			level = slog.LevelInfo
		}

		var output io.Writer
		outputStr := lg.logOutput.Get()
		switch strings.ToLower(outputStr) {
		case "stdout":
			output = os.Stdout
		case "stderr", "":
			output = os.Stderr
		default:
			file, err := os.OpenFile(outputStr, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err != nil {
				output = os.Stderr
			} else {
				output = file
			}
		}

		var handler slog.Handler
		switch strings.ToLower(lg.logFormat.Get()) {
		case "text":
			handler = slog.NewTextHandler(output, &slog.HandlerOptions{Level: level})
		default:
			handler = slog.NewJSONHandler(output, &slog.HandlerOptions{Level: level})
		}

		newLogger := slog.New(handler)
		slog.SetDefault(newLogger)

		lg.loggerMu.Lock()
		lg.logger = newLogger
		lg.loggerMu.Unlock()

		newLogger.Debug("logging initialized",
			"level", levelStr,
			"format", lg.logFormat.Get(),
			"output", outputStr,
		)
	})
}

// GetLogger returns the configured logger instance, or the slog
// default if SetupLogging has not run yet.
func (lg *Logger) GetLogger() *slog.Logger {
	lg.loggerMu.Lock()
	defer lg.loggerMu.Unlock()
	if lg.logger == nil {
		return slog.Default()
	}
	return lg.logger
}
