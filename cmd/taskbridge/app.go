package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/taskbridge/taskbridge/pkg/audit"
	"github.com/taskbridge/taskbridge/pkg/config"
	"github.com/taskbridge/taskbridge/pkg/errors"
	"github.com/taskbridge/taskbridge/pkg/llm"
	"github.com/taskbridge/taskbridge/pkg/orchestrator"
	"github.com/taskbridge/taskbridge/pkg/resilience"
	"github.com/taskbridge/taskbridge/pkg/taskserver"
	"github.com/taskbridge/taskbridge/pkg/telemetry"
	"github.com/taskbridge/taskbridge/pkg/tools"
)

// app holds everything a command needs: config, logging, telemetry, and
// lazily-created clients.
type app struct {
	flags   globalFlags
	cfg     *config.Config
	logger  *slog.Logger
	metrics *telemetry.LoopMetrics

	taskClient *taskserver.Client
	auditStore audit.Store
	shutdown   telemetry.ShutdownFunc
}

func newApp(flags globalFlags) (*app, error) {
	cfg, err := config.Load(flags.ConfigPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	level := cfg.Log.Level
	if flags.Verbose {
		level = "debug"
	}
	logger := telemetry.ConfigureSlog(os.Stderr, level, cfg.Log.Format)
	slog.SetDefault(logger)

	shutdown, err := telemetry.Init("taskbridge", version, telemetry.Config{
		Exporter:     cfg.Telemetry.Exporter,
		OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
		OTLPInsecure: cfg.Telemetry.OTLPInsecure,
	})
	if err != nil {
		return nil, err
	}

	metrics, err := telemetry.NewLoopMetrics()
	if err != nil {
		logger.Warn("metrics init failed", "error", err.Error())
	}

	return &app{
		flags:    flags,
		cfg:      cfg,
		logger:   logger,
		metrics:  metrics,
		shutdown: shutdown,
	}, nil
}

// Close releases the task-server connection, the audit store, and flushes
// telemetry.
func (a *app) Close(ctx context.Context) {
	if a.taskClient != nil {
		if err := a.taskClient.Close(); err != nil {
			a.logger.Warn("task server close failed", "error", err.Error())
		}
	}
	if a.auditStore != nil {
		_ = a.auditStore.Close()
	}
	if a.shutdown != nil {
		_ = resilience.WithTimeout(ctx, resilience.TimeoutConfig{Duration: 5 * time.Second},
			func(ctx context.Context) error { return a.shutdown(ctx) })
	}
}

// connect spawns the task server child process on first use.
func (a *app) connect() (*taskserver.Client, error) {
	if a.taskClient != nil {
		return a.taskClient, nil
	}
	client, err := taskserver.NewStdioClient(
		a.cfg.Server.Command,
		a.cfg.Server.Args,
		taskserver.WithTimeout(a.cfg.Server.RequestTimeout),
		taskserver.WithRetry(a.cfg.Server.MaxRetries, a.cfg.Server.RetryDelay),
	)
	if err != nil {
		return nil, err
	}
	a.taskClient = client
	return client, nil
}

// openAudit opens the configured audit store. Without a configured path
// events stay in memory for the lifetime of the process.
func (a *app) openAudit() (audit.Store, error) {
	if a.auditStore != nil {
		return a.auditStore, nil
	}
	if a.cfg.Audit.Path == "" {
		a.auditStore = audit.NewMemoryStore()
		return a.auditStore, nil
	}
	store, err := audit.OpenSQLite(a.cfg.Audit.Path)
	if err != nil {
		return nil, errors.New(errors.CodeConfiguration, "failed to open audit store", err).
			WithContext("path", a.cfg.Audit.Path)
	}
	a.auditStore = store
	return store, nil
}

// provider builds the configured chat provider wrapped with retries.
func (a *app) provider() (llm.Provider, error) {
	if err := a.cfg.ValidateChat(); err != nil {
		return nil, err
	}

	var base llm.Provider
	switch a.cfg.Chat.Provider {
	case "openai":
		base = llm.NewOpenAI(a.cfg.Chat.APIKey,
			llm.WithOpenAIModel(a.cfg.Chat.Model),
			llm.WithOpenAIBaseURL(a.cfg.Chat.BaseURL),
		)
	default:
		base = llm.NewDeepSeek(a.cfg.Chat.APIKey, a.cfg.Chat.BaseURL)
	}

	retry := resilience.DefaultRetryConfig()
	retry.MaxAttempts = a.cfg.Server.MaxRetries
	if retry.MaxAttempts < 1 {
		retry.MaxAttempts = 1
	}
	retry.InitialDelay = a.cfg.Server.RetryDelay
	return llm.NewRetryingProvider(base, retry), nil
}

// orchestratorFor wires the loop: catalog (with or without server-side tool
// discovery), dispatcher with audit recording, provider, and budgets.
func (a *app) orchestratorFor(ctx context.Context, withDiscovery bool) (*orchestrator.Orchestrator, error) {
	client, err := a.connect()
	if err != nil {
		return nil, err
	}

	var registry *tools.Registry
	if withDiscovery {
		registry, err = tools.BuildCatalog(ctx, client)
	} else {
		registry, err = tools.StaticCatalog(client)
	}
	if err != nil {
		return nil, err
	}

	store, err := a.openAudit()
	if err != nil {
		return nil, err
	}
	dispatcher := tools.NewDispatcher(registry,
		tools.WithRecorder(audit.NewRecorder(store, a.logger)),
		tools.WithMetrics(a.metrics),
		tools.WithLogger(a.logger),
	)

	provider, err := a.provider()
	if err != nil {
		return nil, err
	}

	return orchestrator.New(provider, registry, dispatcher,
		orchestrator.WithModel(a.cfg.Chat.Model),
		orchestrator.WithSampling(a.cfg.Chat.Temperature, a.cfg.Chat.MaxTokens),
		orchestrator.WithMaxIterations(a.cfg.Loop.MaxIterations),
		orchestrator.WithDeadline(a.cfg.Loop.Deadline),
		orchestrator.WithLogger(a.logger),
		orchestrator.WithMetrics(a.metrics),
	)
}
