package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/ploston/dael/internal/config"
	"github.com/ploston/dael/internal/engine"
	"github.com/ploston/dael/internal/obs"
	"github.com/ploston/dael/internal/sandbox"
	"github.com/ploston/dael/internal/tooling"
	"github.com/ploston/dael/internal/workflow"
	"github.com/rs/zerolog/log"
)

// runtime bundles the process-wide collaborators every command that talks
// to tools or runs workflows needs: the workflow registry, the tool
// registry and invoker, the sandbox, and the engine built on top of them.
// Built once from the configuration the root command's PersistentPreRunE
// already loaded, mirroring the teacher's server.New wiring
// (internal/server/server.go) but targeting the Tool Registry/Invoker/
// Engine split instead of a bespoke REST API.
type runtime struct {
	cfg       *config.Config
	mode      config.Mode
	workflows *workflow.Registry
	tools     *tooling.Registry
	invoker   *tooling.Invoker
	sandbox   *sandbox.Sandbox
	engine    *engine.Engine
}

// buildRuntime constructs the collaborators from the already-loaded
// configuration (loadedConfig/configMode), wiring the MCP backends named
// by mcp.servers and the workflow directory named by workflows.directory,
// then refreshes the tool registry so its first snapshot is populated.
func buildRuntime(ctx context.Context) (*runtime, error) {
	cfg := loadedConfig
	if cfg == nil {
		cfg = &config.Config{}
	}
	logger := obs.ComponentLogger(log.Logger, cfg.Logging, "runtime")

	workflows := workflow.NewRegistry(logger)
	if cfg.Workflows.Directory != "" {
		if err := workflows.LoadDir(cfg.Workflows.Directory); err != nil {
			return nil, fmt.Errorf("loading workflow directory %q: %w", cfg.Workflows.Directory, err)
		}
	}

	backends := make([]tooling.Backend, 0, len(cfg.MCP.Servers))
	for id, server := range cfg.MCP.Servers {
		backend, err := tooling.NewBackend(tooling.ServerConfig{
			ID:         id,
			Command:    server.Command,
			Args:       server.Args,
			Env:        server.Env,
			URL:        server.URL,
			AuthHeader: server.AuthHeader,
			Timeout:    time.Duration(server.Timeout) * time.Second,
		})
		if err != nil {
			return nil, fmt.Errorf("configuring mcp server %q: %w", id, err)
		}
		backends = append(backends, backend)
	}

	// python_exec's own sandbox needs an Invoker, and an Invoker needs a
	// Registry that in turn lists python_exec among its builtins — wire a
	// bootstrap registry/invoker first (everything but python_exec) so the
	// sandbox it hands to python_exec can still reach every other tool,
	// then rebuild the registry a second time with python_exec included.
	configBuiltins := tooling.NewConfigBuiltins(cfg.SourceFile, nil)
	bootstrapRegistry := tooling.NewRegistry(logger, configBuiltins, workflows, backends)
	if err := bootstrapRegistry.Refresh(ctx); err != nil {
		return nil, fmt.Errorf("refreshing tool registry: %w", err)
	}
	bootstrapInvoker := tooling.NewInvoker(bootstrapRegistry, logger)
	pythonExec := tooling.NewPythonExec(sandbox.New(&tooling.SandboxInvoker{Inv: bootstrapInvoker}))

	builtins := append([]tooling.Builtin{pythonExec}, configBuiltins...)
	toolRegistry := tooling.NewRegistry(logger, builtins, workflows, backends)
	if configMode == config.ModeRunning {
		toolRegistry.SetMode(tooling.ModeRunning)
	} else {
		toolRegistry.SetMode(tooling.ModeConfiguration)
	}
	if err := toolRegistry.Refresh(ctx); err != nil {
		return nil, fmt.Errorf("refreshing tool registry: %w", err)
	}

	invoker := tooling.NewInvoker(toolRegistry, logger)
	sb := sandbox.New(&tooling.SandboxInvoker{Inv: invoker})

	engConfig := engine.DefaultConfig()
	if cfg.Execution.MaxConcurrent > 0 {
		engConfig.MaxConcurrent = cfg.Execution.MaxConcurrent
	}
	if cfg.Execution.DefaultTimeout > 0 {
		engConfig.DefaultTimeout = time.Duration(cfg.Execution.DefaultTimeout) * time.Second
	}
	if cfg.Execution.Retry.MaxAttempts > 0 {
		engConfig.DefaultRetry = workflow.Retry{
			MaxAttempts:       cfg.Execution.Retry.MaxAttempts,
			BackoffMultiplier: cfg.Execution.Retry.BackoffMultiplier,
		}
	}

	eng := engine.New(workflows, invoker, sb, engConfig, logger)
	invoker.SetWorkflowRunner(eng)

	return &runtime{
		cfg:       cfg,
		mode:      configMode,
		workflows: workflows,
		tools:     toolRegistry,
		invoker:   invoker,
		sandbox:   sb,
		engine:    eng,
	}, nil
}
