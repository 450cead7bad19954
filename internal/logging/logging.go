/*
 * Copyright 2025 SREDiag Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package logging holds the process wide zap logger used by every dscore package.
//
// The level is taken from DSCORE_LOG_LEVEL, which accepts zap level names or the
// legacy numeric levels (0 trace, 1 debug, 2 info, 3 warn, 4 error, 5 off). Setting
// DSCORE_DEBUG_MODE switches to the development encoder. The default is warn.
package logging

import (
	"os"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	envLogLevel  = "DSCORE_LOG_LEVEL"
	envDebugMode = "DSCORE_DEBUG_MODE"
)

var (
	mu     sync.RWMutex
	logger *zap.Logger
)

// Logger returns the process logger, building it from the environment on first use.
func Logger() *zap.Logger {
	mu.RLock()
	l := logger
	mu.RUnlock()
	if l != nil {
		return l
	}

	mu.Lock()
	defer mu.Unlock()
	if logger == nil {
		logger = fromEnv()
	}
	return logger
}

// SetLogger replaces the process logger. A nil logger discards all output.
func SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	mu.Lock()
	logger = l
	mu.Unlock()
}

// New builds a logger writing to stderr at level.
func New(level zapcore.Level, development bool) *zap.Logger {
	cfg := zap.NewProductionConfig()
	if development {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	l, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return l
}

func fromEnv() *zap.Logger {
	level, ok := ParseLevel(os.Getenv(envLogLevel))
	if !ok {
		level = zapcore.WarnLevel
	}
	if level > zapcore.FatalLevel {
		return zap.NewNop()
	}
	return New(level, os.Getenv(envDebugMode) != "")
}

// ParseLevel understands zap level names and the legacy numeric levels. Level
// "off" (or 5) is reported as a level above fatal.
func ParseLevel(s string) (zapcore.Level, bool) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return 0, false
	}
	if s == "off" {
		return zapcore.FatalLevel + 1, true
	}
	if n, err := strconv.Atoi(s); err == nil {
		switch {
		case n <= 1:
			// zap has no trace level
			return zapcore.DebugLevel, true
		case n == 2:
			return zapcore.InfoLevel, true
		case n == 3:
			return zapcore.WarnLevel, true
		case n == 4:
			return zapcore.ErrorLevel, true
		default:
			return zapcore.FatalLevel + 1, true
		}
	}
	level, err := zapcore.ParseLevel(s)
	if err != nil {
		return 0, false
	}
	return level, true
}
