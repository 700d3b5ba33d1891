// Copyright 2025 Kadir Pekel
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

package main

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/llamafarm/llamafarm-core/pkg/config"
	"github.com/llamafarm/llamafarm-core/pkg/logger"
)

const (
	logLevelEnvVar  = "LOG_LEVEL"
	logFileEnvVar   = "LOG_FILE"
	logJSONEnvVar   = "LOG_JSON_FORMAT"
	defaultLogLevel = "info"
)

// loggingState carries the CLI-flag/env-var-resolved settings forward so
// reconcileProjectLogger can apply a loaded project's config.yaml logger
// section as the next-lowest priority tier once it's known, per
// pkg/config.LoggerConfig's documented CLI > env > config file > default
// order. Empty fields mean "nothing at that tier set it".
type loggingState struct {
	level, file, format string
	jsonFormat          bool
	cleanup             func()
}

// initLogging applies the CLI-flag/env-var tiers immediately, so logging
// works before (and during) project config loading. LOG_JSON_FORMAT opts
// into a structured JSON handler instead of logger's text-based
// simple/verbose formats, for deployments that feed logs to a collector
// expecting one JSON object per line.
func initLogging(cliLevel, cliFile, cliFormat string) (*loggingState, error) {
	st := &loggingState{
		level:  firstNonEmpty(cliLevel, os.Getenv(logLevelEnvVar)),
		file:   firstNonEmpty(cliFile, os.Getenv(logFileEnvVar)),
		format: cliFormat,
	}
	st.jsonFormat, _ = strconv.ParseBool(os.Getenv(logJSONEnvVar))

	cleanup, err := st.apply()
	if err != nil {
		return nil, err
	}
	st.cleanup = cleanup
	return st, nil
}

// reconcileProjectLogger fills in any of level/file/format the CLI/env
// tiers left unset from proj, then reapplies — the lowest-priority tier in
// pkg/config.LoggerConfig's documented order. Called once a project's
// config.yaml is loaded, necessarily after initLogging since --config must
// be resolved first.
func (st *loggingState) reconcileProjectLogger(proj config.LoggerConfig) error {
	st.level = firstNonEmpty(st.level, proj.Level)
	st.file = firstNonEmpty(st.file, proj.File)
	st.format = firstNonEmpty(st.format, proj.Format)

	if st.cleanup != nil {
		st.cleanup()
	}
	cleanup, err := st.apply()
	if err != nil {
		return err
	}
	st.cleanup = cleanup
	return nil
}

func (st *loggingState) apply() (func(), error) {
	levelStr := firstNonEmpty(st.level, defaultLogLevel)
	level, err := logger.ParseLevel(levelStr)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", levelStr, err)
	}

	var output *os.File
	var cleanup func()
	if st.file != "" {
		f, cleanupFn, err := logger.OpenLogFile(st.file)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		output, cleanup = f, cleanupFn
	} else {
		output = os.Stderr
	}

	if st.jsonFormat {
		handler := slog.NewJSONHandler(output, &slog.HandlerOptions{Level: level})
		slog.SetDefault(slog.New(handler))
	} else {
		logger.Init(level, output, firstNonEmpty(st.format, "simple"))
	}
	return cleanup, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
