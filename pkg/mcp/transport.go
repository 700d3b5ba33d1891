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

package mcp

import (
	"context"
	"fmt"

	"github.com/llamafarm/llamafarm-core/pkg/config"
)

// dialTransport branches on the configured transport and opens the matching
// session type. Configuration invariants (stdio needs command, http/sse need
// base_url) are already enforced by config.ProjectConfig.Validate; this is a
// defensive second check at session-open time.
func dialTransport(ctx context.Context, cfg config.MCPServerConfig) (session, error) {
	switch cfg.Transport {
	case config.TransportStdio:
		if cfg.Command == "" {
			return nil, fmt.Errorf("stdio transport requires command")
		}
		return dialStdio(ctx, cfg)
	case config.TransportHTTP, config.TransportSSE:
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("%s transport requires base_url", cfg.Transport)
		}
		return dialHTTP(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported transport %q", cfg.Transport)
	}
}
