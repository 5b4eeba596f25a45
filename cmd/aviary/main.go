package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/redis/go-redis/v9"

	"github.com/aviary-ai/aviary/pkg/a2a"
	"github.com/aviary-ai/aviary/pkg/auth"
	"github.com/aviary-ai/aviary/pkg/chat"
	"github.com/aviary-ai/aviary/pkg/config"
	"github.com/aviary-ai/aviary/pkg/httpapi"
	"github.com/aviary-ai/aviary/pkg/llms"
	"github.com/aviary-ai/aviary/pkg/logger"
	"github.com/aviary-ai/aviary/pkg/queue"
	"github.com/aviary-ai/aviary/pkg/ratelimit"
	"github.com/aviary-ai/aviary/pkg/scheduler"
	"github.com/aviary-ai/aviary/pkg/store"
	"github.com/aviary-ai/aviary/pkg/tools"
	"github.com/aviary-ai/aviary/pkg/workflow"
)

const version = "0.1.0"

var cli struct {
	LogLevel string `help:"Log level (debug, info, warn, error). Overrides LOG_LEVEL." default:""`

	Serve     ServeCmd     `cmd:"" default:"1" help:"Run the HTTP API server."`
	Worker    WorkerCmd    `cmd:"" help:"Run the workflow queue worker."`
	Scheduler SchedulerCmd `cmd:"" help:"Run the schedule trigger reconciler."`
	Migrate   MigrateCmd   `cmd:"" help:"Apply the database schema."`
	Version   VersionCmd   `cmd:"" help:"Print the version."`
}

func main() {
	ktx := kong.Parse(&cli,
		kong.Name("aviary"),
		kong.Description("Multi-tenant agent orchestration platform."),
		kong.UsageOnError(),
	)

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "aviary: %v\n", err)
		os.Exit(1)
	}
	if cli.LogLevel != "" {
		cfg.LogLevel = cli.LogLevel
	}
	logger.Init(logger.ParseLevel(cfg.LogLevel), os.Stderr)

	if err := ktx.Run(cfg); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func openStore(ctx context.Context, cfg *config.Config) (*store.Store, error) {
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	return store.New(ctx, cfg.DatabaseURL)
}

// buildProviders registers every LLM provider with a configured API key.
func buildProviders() *llms.Registry {
	providers := llms.NewRegistry()
	if key := config.GetProviderAPIKey("openai"); key != "" {
		_ = providers.RegisterProvider("openai", llms.NewOpenAIProvider(key, ""))
	}
	if key := config.GetProviderAPIKey("anthropic"); key != "" {
		_ = providers.RegisterProvider("anthropic", llms.NewAnthropicProvider(key, ""))
	}
	return providers
}

// buildTools assembles the builtin tool catalog and the chat service,
// which need each other: invoke_agent delegates back into the service.
func buildTools(cfg *config.Config, st *store.Store, providers *llms.Registry) (*tools.Registry, *chat.Service) {
	toolRegistry := tools.NewRegistry()
	_ = toolRegistry.RegisterTool(tools.NewWebSearchTool(tools.MockSearchProvider{}))
	_ = toolRegistry.RegisterTool(tools.NewHTTPRequestTool())
	_ = toolRegistry.RegisterTool(tools.NewCommandTool([]string{"echo", "date", "uptime"}, "", 0))

	chatService := chat.NewService(st, st, providers, toolRegistry,
		chat.WithLimits(cfg.MaxToolIterations, cfg.MaxToolCallsPerTurn, cfg.ToolTimeout))
	_ = toolRegistry.RegisterTool(tools.NewInvokeAgentTool(chatService))

	return toolRegistry, chatService
}

type ServeCmd struct {
	Addr string `help:"Listen address. Overrides HTTP_ADDR." default:""`
}

func (c *ServeCmd) Run(cfg *config.Config) error {
	ctx, cancel := signalContext()
	defer cancel()

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	redisOpt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("invalid redis url: %w", err)
	}
	redisClient := redis.NewClient(redisOpt)
	defer func() { _ = redisClient.Close() }()

	queueClient, err := queue.NewClient(cfg.RedisURL, cfg.TaskTimeLimit)
	if err != nil {
		return err
	}
	defer func() { _ = queueClient.Close() }()

	providers := buildProviders()
	_, chatService := buildTools(cfg, st, providers)

	a2aServer := a2a.NewServer(a2a.NewTaskStoreManager(0), chatService, cfg.TaskTimeLimit)

	apiServer := httpapi.NewServer(httpapi.Config{
		AppName:     cfg.AppName,
		BaseURL:     cfg.A2ABaseURL,
		CORSOrigins: cfg.CORSOrigins,
	}, st, queueClient, ratelimit.NewRedisLimiter(redisClient), auth.NewValidator(st), a2aServer)

	addr := cfg.HTTPAddr
	if c.Addr != "" {
		addr = c.Addr
	}
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           apiServer.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	slog.Info("HTTP server listening", "addr", addr, "version", version)
	if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type WorkerCmd struct {
	Concurrency int `help:"Concurrent jobs per worker process. Overrides WORKER_CONCURRENCY." default:"0"`
}

func (c *WorkerCmd) Run(cfg *config.Config) error {
	ctx, cancel := signalContext()
	defer cancel()

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	providers := buildProviders()
	toolRegistry, chatService := buildTools(cfg, st, providers)

	engine := workflow.NewEngine(chatService, toolRegistry)
	handler := queue.NewHandler(st, engine)

	concurrency := cfg.WorkerConcurrency
	if c.Concurrency > 0 {
		concurrency = c.Concurrency
	}
	worker, err := queue.NewWorker(cfg.RedisURL, concurrency, handler)
	if err != nil {
		return err
	}

	go func() {
		<-ctx.Done()
		worker.Shutdown()
	}()

	slog.Info("worker started", "concurrency", concurrency, "version", version)
	return worker.Run()
}

type SchedulerCmd struct{}

func (c *SchedulerCmd) Run(cfg *config.Config) error {
	ctx, cancel := signalContext()
	defer cancel()

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	queueClient, err := queue.NewClient(cfg.RedisURL, cfg.TaskTimeLimit)
	if err != nil {
		return err
	}
	defer func() { _ = queueClient.Close() }()

	return scheduler.New(st, queueClient, cfg.SchedulerInterval).Run(ctx)
}

type MigrateCmd struct{}

func (c *MigrateCmd) Run(cfg *config.Config) error {
	ctx, cancel := signalContext()
	defer cancel()

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.Migrate(ctx); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	slog.Info("database schema applied")
	return nil
}

type VersionCmd struct{}

func (c *VersionCmd) Run(cfg *config.Config) error {
	fmt.Println("aviary " + version)
	return nil
}
