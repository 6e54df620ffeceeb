// Copyright 2026 AeroSync Project Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package logutil

import (
	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// DefaultLogLevel is used when the config does not name one.
const DefaultLogLevel = "info"

// LogConfig carries the log section of the scheduler config.
type LogConfig struct {
	// Level is one of debug, info, warn, error, fatal.
	Level string `toml:"level" json:"level"`
	// Format is one of json, text.
	Format string `toml:"format" json:"format"`
	// File, when set, redirects output away from stderr.
	File string `toml:"file" json:"file"`
}

// InitLogger initializes the process-global logger shared by every
// package of the module.
func InitLogger(cfg *LogConfig) error {
	level := cfg.Level
	if level == "" {
		level = DefaultLogLevel
	}
	pc := &log.Config{
		Level:  level,
		Format: cfg.Format,
	}
	if cfg.File != "" {
		pc.File = log.FileLogConfig{Filename: cfg.File}
	}
	logger, props, err := log.InitLogger(pc)
	if err != nil {
		return errors.Trace(err)
	}
	log.ReplaceGlobals(logger, props)
	return nil
}

// BgLogger returns the logger for background and internal use.
func BgLogger() *zap.Logger {
	return log.L()
}

// SetLevel changes the global log level at runtime.
func SetLevel(level string) error {
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return errors.Trace(err)
	}
	log.SetLevel(l)
	return nil
}
