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

// Command llamafarmd is the core daemon: it loads a project's config.yaml,
// stands up the universal model runtime's HTTP surface and the multi-project
// control-plane surface, and serves both until signalled to stop.
//
// Usage:
//
//	llamafarmd serve --config project/config.yaml
//	llamafarmd version
package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"

	llamafarmcore "github.com/llamafarm/llamafarm-core"
	"github.com/llamafarm/llamafarm-core/pkg/config"
)

// CLI defines the command-line interface.
type CLI struct {
	Version VersionCmd `cmd:"" help:"Show version information."`
	Serve   ServeCmd   `cmd:"" help:"Start the runtime and control-plane HTTP servers."`

	LogLevel  string `help:"Log level (debug, info, warn, error). Falls back to LOG_LEVEL, then the loaded project's logger.level, then info."`
	LogFile   string `help:"Log file path (empty = stderr). Falls back to LOG_FILE, then the project's logger.file."`
	LogFormat string `help:"Log format (simple, verbose, or custom). Falls back to the project's logger.format, then simple; LOG_JSON_FORMAT=true switches output to JSON."`
}

// VersionCmd prints the build version.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Println(llamafarmcore.GetVersion().String())
	return nil
}

func main() {
	_ = config.LoadEnvFiles()

	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("llamafarmd"),
		kong.Description("LlamaFarm core daemon"),
		kong.UsageOnError(),
	)

	logState, err := initLogging(cli.LogLevel, cli.LogFile, cli.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logging: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if logState.cleanup != nil {
			logState.cleanup()
		}
	}()

	err = ctx.Run(&cli, logState)
	ctx.FatalIfErrorf(err)
}
