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
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/llamafarm/llamafarm-core/pkg/anomaly"
	"github.com/llamafarm/llamafarm-core/pkg/api"
	"github.com/llamafarm/llamafarm-core/pkg/config"
	"github.com/llamafarm/llamafarm-core/pkg/mcp"
	"github.com/llamafarm/llamafarm-core/pkg/modelcache"
	"github.com/llamafarm/llamafarm-core/pkg/observability"
	"github.com/llamafarm/llamafarm-core/pkg/polarsbuffer"
	"github.com/llamafarm/llamafarm-core/pkg/ragclient"
	"github.com/llamafarm/llamafarm-core/pkg/runtime"
)

// Environment variables governing process-wide behavior that has no natural
// home in a project's config.yaml. Named in the core's ambient-stack spec.
const (
	envModelUnloadTimeout   = "MODEL_UNLOAD_TIMEOUT"
	envCleanupCheckInterval = "CLEANUP_CHECK_INTERVAL"
	envDataDir              = "LF_DATA_DIR"
	envOTLPEndpoint         = "OTEL_EXPORTER_OTLP_ENDPOINT"

	defaultModelUnloadTimeout   = 300 * time.Second
	defaultCleanupCheckInterval = 30 * time.Second
)

// ServeCmd starts the runtime HTTP server (chat/embeddings/models/anomaly/
// polars/files, for the loaded project) alongside the control-plane HTTP
// server (project config/dataset/RAG-query management across every project
// under ProjectsRoot, defaulting to {LF_DATA_DIR}/projects).
type ServeCmd struct {
	Config       string `short:"c" help:"Path to a project's config.yaml." type:"path" required:""`
	Addr         string `help:"Runtime HTTP server listen address." default:":8080"`
	APIAddr      string `name:"api-addr" help:"Control-plane HTTP server listen address." default:":8090"`
	ProjectsRoot string `name:"projects-root" help:"Root directory containing {namespace}/{project} project directories for the control-plane server. Defaults to {LF_DATA_DIR}/projects." type:"path"`

	RAGRepoDir string `name:"rag-repo-dir" help:"Working directory for the external RAG search subprocess." type:"path"`
}

func dataDir() string {
	if dir := os.Getenv(envDataDir); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".llamafarm"
	}
	return filepath.Join(home, ".llamafarm")
}

func envDuration(name string, def time.Duration) time.Duration {
	raw := os.Getenv(name)
	if raw == "" {
		return def
	}
	seconds, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return time.Duration(seconds) * time.Second
}

func (c *ServeCmd) Run(cli *CLI, logState *loggingState) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("llamafarmd: shutdown signal received")
		cancel()
	}()

	projectsRoot := c.ProjectsRoot
	if projectsRoot == "" {
		projectsRoot = filepath.Join(dataDir(), "projects")
	}

	store, err := config.NewProjectStore(c.Config)
	if err != nil {
		return fmt.Errorf("llamafarmd: %w", err)
	}
	defer store.Close()

	project, err := store.Load(ctx)
	if err != nil {
		return fmt.Errorf("llamafarmd: loading project config: %w", err)
	}
	projectDir := filepath.Dir(c.Config)
	if err := logState.reconcileProjectLogger(project.Logger); err != nil {
		return fmt.Errorf("llamafarmd: %w", err)
	}
	slog.Info("llamafarmd: project loaded", "name", project.Name, "namespace", project.Namespace, "models", len(project.Runtime.Models))

	cache := modelcache.New(
		modelcache.WithTTL(envDuration(envModelUnloadTimeout, defaultModelUnloadTimeout)),
		modelcache.WithPollInterval(envDuration(envCleanupCheckInterval, defaultCleanupCheckInterval)),
	)

	anomalyMgr := anomaly.NewManager(anomaly.NewDefaultBackendFactory())
	polarsMgr := polarsbuffer.NewManager()

	obsCfg := &observability.Config{Tracing: observability.TracingConfig{Enabled: true}}
	if endpoint := os.Getenv(envOTLPEndpoint); endpoint != "" {
		obsCfg.Tracing.Exporter = "otlp"
		obsCfg.Tracing.Endpoint = endpoint
	} else {
		obsCfg.Tracing.Exporter = "stdout"
	}
	obs, err := observability.NewManager(ctx, obsCfg)
	if err != nil {
		return fmt.Errorf("llamafarmd: initializing observability: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := obs.Shutdown(shutdownCtx); err != nil {
			slog.Warn("llamafarmd: observability shutdown", "error", err)
		}
	}()

	var ragSearcher *ragclient.Client
	if c.RAGRepoDir != "" {
		ragSearcher = ragclient.New(ragclient.WithRAGRepoDir(c.RAGRepoDir))
	}

	var tools []mcp.BoundTool
	if project.MCP != nil && len(project.MCP.Servers) > 0 {
		svc := mcp.NewService(project.MCP.Servers)
		factory := mcp.NewToolFactory(svc)
		tools = factory.CreateAllTools(ctx)
		slog.Info("llamafarmd: MCP tools bound", "count", len(tools))
	}

	runtimeOpts := []runtime.Option{
		runtime.WithAddr(c.Addr),
		runtime.WithProject(project, projectDir),
		runtime.WithModelCache(cache),
		runtime.WithAnomalyManager(anomalyMgr),
		runtime.WithPolarsManager(polarsMgr),
		runtime.WithTools(tools),
		runtime.WithObservability(obs),
	}
	if ragSearcher != nil {
		runtimeOpts = append(runtimeOpts, runtime.WithRAG(ragSearcher))
	}
	rt := runtime.New(runtimeOpts...)

	g, gCtx := errgroup.WithContext(ctx)

	store.Loader().SetOnChange(func(updated *config.ProjectConfig) {
		rt.UpdateProject(updated)
	})
	g.Go(func() error {
		if err := store.Loader().Watch(gCtx); err != nil && gCtx.Err() == nil {
			return fmt.Errorf("llamafarmd: watching project config: %w", err)
		}
		return nil
	})

	if err := os.MkdirAll(projectsRoot, 0o755); err != nil {
		return fmt.Errorf("llamafarmd: creating projects root %q: %w", projectsRoot, err)
	}
	apiOpts := []api.Option{api.WithProjectsRoot(projectsRoot)}
	if ragSearcher != nil {
		apiOpts = append(apiOpts, api.WithRAG(ragSearcher))
	}
	a := api.New(apiOpts...)
	apiSrv := &http.Server{
		Addr:         c.APIAddr,
		Handler:      a.Router(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	g.Go(func() error {
		return rt.Start(gCtx)
	})

	g.Go(func() error {
		slog.Info("llamafarmd: control-plane server starting", "address", c.APIAddr, "projects_root", projectsRoot)
		errCh := make(chan error, 1)
		go func() {
			if err := apiSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errCh <- err
			}
			close(errCh)
		}()
		select {
		case err := <-errCh:
			return err
		case <-gCtx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return apiSrv.Shutdown(shutdownCtx)
		}
	})

	fmt.Printf("\nllamafarmd ready\n")
	fmt.Printf("   Runtime:       http://%s\n", c.Addr)
	fmt.Printf("   Control plane: http://%s\n", c.APIAddr)
	fmt.Println("Press Ctrl+C to stop")

	return g.Wait()
}
