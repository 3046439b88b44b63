// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package orchestrator assembles the GebeyaKart conversation service:
// the marketplace store, the login machine, the intent classifier, the
// tool registry, the agent loop, and the HTTP surface, plus tracing and
// metrics. Construct with New and block on Run.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sashabaranov/go-openai"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/jinterlante1206/GebeyaKart/services/llm"
	"github.com/jinterlante1206/GebeyaKart/services/orchestrator/agent"
	"github.com/jinterlante1206/GebeyaKart/services/orchestrator/datatypes"
	"github.com/jinterlante1206/GebeyaKart/services/orchestrator/flows"
	"github.com/jinterlante1206/GebeyaKart/services/orchestrator/handlers"
	"github.com/jinterlante1206/GebeyaKart/services/orchestrator/intent"
	"github.com/jinterlante1206/GebeyaKart/services/orchestrator/login"
	"github.com/jinterlante1206/GebeyaKart/services/orchestrator/middleware"
	"github.com/jinterlante1206/GebeyaKart/services/orchestrator/observability"
	"github.com/jinterlante1206/GebeyaKart/services/orchestrator/routes"
	"github.com/jinterlante1206/GebeyaKart/services/orchestrator/session"
	"github.com/jinterlante1206/GebeyaKart/services/orchestrator/store"
	"github.com/jinterlante1206/GebeyaKart/services/orchestrator/tools"
)

// Service is the orchestrator lifecycle contract.
type Service interface {
	// Run starts the HTTP server and blocks until shutdown or error.
	Run() error

	// Router returns the underlying Gin engine for testing.
	Router() *gin.Engine
}

// Config holds orchestrator configuration. Zero values select defaults.
type Config struct {
	// Port is the HTTP server port. Default: 12210.
	Port int

	// LLMBackend selects the model provider: "openai" or "ollama".
	// Default: "ollama".
	LLMBackend string

	// WeaviateURL enables the knowledge base when set.
	// Example: "http://localhost:8080".
	WeaviateURL string

	// OTelEndpoint is the OpenTelemetry collector endpoint.
	// Default: "gebeya-otel-collector:4317".
	OTelEndpoint string

	// DisableMetrics skips Prometheus metric registration. Tests that
	// build several services in one process want this.
	DisableMetrics bool

	// GinMode sets the Gin framework mode ("debug", "release", "test").
	GinMode string

	// BadgerPath is the marketplace database directory. Empty selects
	// an in-memory database, which is what tests want.
	BadgerPath string

	// SkipCatalogSeed leaves the marketplace empty instead of loading
	// the bundled produce catalog.
	SkipCatalogSeed bool

	// SessionTTL evicts sessions idle longer than this. Default: 24h.
	SessionTTL time.Duration

	// TurnTimeout bounds one conversational turn. Default: 60s.
	TurnTimeout time.Duration

	// MaxIterations bounds model and tool calls per turn. Default: 30.
	MaxIterations int

	// RateLimitRPS and RateLimitBurst configure the per-client limiter.
	RateLimitRPS   float64
	RateLimitBurst int
}

type service struct {
	config         Config
	router         *gin.Engine
	llmClient      llm.LLMClient
	weaviateClient *weaviate.Client
	db             *store.DB
	sessions       *session.ShardedStore
	sweeper        *session.Sweeper
	tracerCleanup  func(context.Context)
}

var _ Service = (*service)(nil)

// New builds a ready-to-run orchestrator. The Weaviate and OTel
// collaborators are optional; the service degrades without them.
func New(cfg Config) (Service, error) {
	s := &service{config: applyConfigDefaults(cfg)}

	cleanup, err := s.initTracer()
	if err != nil {
		// Tracing is not worth failing startup over.
		slog.Warn("Tracer initialization failed, continuing without export", "error", err)
	} else {
		s.tracerCleanup = cleanup
	}

	if !s.config.DisableMetrics {
		observability.InitMetrics()
	}

	if err := s.initStore(); err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to initialize marketplace store: %w", err)
	}

	if err := s.initWeaviate(); err != nil {
		slog.Warn("Weaviate initialization failed, retrieval runs in lightweight mode", "error", err)
	}

	if err := s.initLLMClient(); err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to initialize LLM client: %w", err)
	}

	if err := s.initRouter(); err != nil {
		s.cleanup()
		return nil, err
	}

	return s, nil
}

// Run starts the HTTP server and blocks until a shutdown signal or a
// fatal server error. Shutdown drains in-flight turns.
func (s *service) Run() error {
	defer s.cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s.sweeper.Start()

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", s.config.Port),
		Handler: s.router,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("Starting orchestrator server", "port", s.config.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		slog.Info("Shutting down orchestrator server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.TurnTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func (s *service) Router() *gin.Engine {
	return s.router
}

func applyConfigDefaults(cfg Config) Config {
	if cfg.Port == 0 {
		cfg.Port = 12210
	}
	if cfg.LLMBackend == "" {
		cfg.LLMBackend = "ollama"
	}
	if cfg.OTelEndpoint == "" {
		cfg.OTelEndpoint = "gebeya-otel-collector:4317"
	}
	if cfg.SessionTTL == 0 {
		cfg.SessionTTL = session.DefaultSessionTTL
	}
	if cfg.TurnTimeout == 0 {
		cfg.TurnTimeout = handlers.DefaultTurnTimeout
	}
	if cfg.MaxIterations == 0 {
		cfg.MaxIterations = agent.DefaultMaxIterations
	}
	if cfg.RateLimitRPS == 0 {
		cfg.RateLimitRPS = middleware.DefaultRequestsPerSecond
	}
	if cfg.RateLimitBurst == 0 {
		cfg.RateLimitBurst = middleware.DefaultBurst
	}
	return cfg
}

// initTracer wires the OTLP trace exporter over gRPC.
func (s *service) initTracer() (func(context.Context), error) {
	ctx := context.Background()

	conn, err := grpc.NewClient(s.config.OTelEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC connection: %w", err)
	}

	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("gebeya-orchestrator")))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(sdktrace.NewBatchSpanProcessor(traceExporter)))

	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("Failed to shutdown OTLP exporter", "error", err)
		}
	}, nil
}

// initStore opens the marketplace database and seeds the catalog.
func (s *service) initStore() error {
	cfg := store.DefaultConfig()
	cfg.Path = s.config.BadgerPath
	if s.config.BadgerPath == "" {
		cfg = store.InMemoryConfig()
		slog.Info("No database path configured, using in-memory marketplace store")
	}

	db, err := store.OpenDB(cfg)
	if err != nil {
		return err
	}
	s.db = db

	if !s.config.SkipCatalogSeed {
		market := store.NewMarketplace(db)
		if err := market.SeedCatalog(context.Background(), slog.Default()); err != nil {
			return fmt.Errorf("failed to seed catalog: %w", err)
		}
	}
	return nil
}

// initWeaviate connects the optional knowledge base.
func (s *service) initWeaviate() error {
	weaviateURL := strings.Trim(s.config.WeaviateURL, "\"' ")
	if weaviateURL == "" {
		slog.Info("Weaviate URL not configured, knowledge retrieval disabled")
		return nil
	}

	parsedURL, err := url.Parse(weaviateURL)
	if err != nil || parsedURL.Scheme == "" || parsedURL.Host == "" {
		return fmt.Errorf("invalid Weaviate URL: %s", weaviateURL)
	}

	s.weaviateClient, err = weaviate.NewClient(weaviate.Config{
		Host:   parsedURL.Host,
		Scheme: parsedURL.Scheme,
	})
	if err != nil {
		return fmt.Errorf("failed to create Weaviate client: %w", err)
	}

	datatypes.EnsureKnowledgeSchema(s.weaviateClient)
	slog.Info("Weaviate client initialized", "url", weaviateURL)
	return nil
}

func (s *service) initLLMClient() error {
	var err error
	switch s.config.LLMBackend {
	case "openai":
		s.llmClient, err = llm.NewOpenAIClient()
		slog.Info("Using OpenAI LLM backend")
	case "ollama":
		s.llmClient, err = llm.NewOllamaClient()
		slog.Info("Using Ollama LLM backend")
	default:
		slog.Warn("Unknown LLM backend, defaulting to ollama", "backend", s.config.LLMBackend)
		s.llmClient, err = llm.NewOllamaClient()
	}
	return err
}

// initRouter assembles the conversation pipeline and the route table.
func (s *service) initRouter() error {
	if s.config.GinMode != "" {
		gin.SetMode(s.config.GinMode)
	}

	market := store.NewMarketplace(s.db)
	router := flows.NewRouter(market, s.llmClient, slog.Default())
	classifier := intent.NewClassifier(s.llmClient, slog.Default())
	search := tools.NewVectorSearchTool(s.weaviateClient)

	registry, err := tools.NewRegistry(
		tools.NewClassifierTool(classifier),
		tools.NewDataAccessTool(market),
		search,
		tools.NewDateResolverTool(s.llmClient),
		tools.NewImageGenTool(initImageClient()),
		tools.NewFlashSaleTool(market),
	)
	if err != nil {
		return fmt.Errorf("failed to build tool registry: %w", err)
	}

	s.sessions = session.NewStore(session.SystemClock)
	s.sweeper = session.NewSweeper(s.sessions, s.config.SessionTTL, 0, slog.Default())

	loop := agent.NewLoop(registry, router, s.llmClient, s.config.MaxIterations, slog.Default())
	fsm := login.NewFSM(market, router.SupplierDashboard, slog.Default())

	s.router = gin.New()
	s.router.Use(gin.Recovery())
	routes.SetupRoutes(s.router, routes.Deps{
		Loop:        loop,
		Sessions:    s.sessions,
		FSM:         fsm,
		Weaviate:    s.weaviateClient,
		Search:      search,
		Limiter:     middleware.NewRateLimiter(s.config.RateLimitRPS, s.config.RateLimitBurst),
		TurnTimeout: s.config.TurnTimeout,
	})
	return nil
}

// initImageClient builds the DALL-E client when a key is available.
// Image generation is a nice-to-have; the tool degrades without it.
func initImageClient() *openai.Client {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		slog.Info("OPENAI_API_KEY not set, image generation disabled")
		return nil
	}
	return openai.NewClient(apiKey)
}

func (s *service) cleanup() {
	if s.sweeper != nil {
		s.sweeper.Stop()
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			slog.Warn("Marketplace store close error", "error", err)
		}
	}
	if s.tracerCleanup != nil {
		s.tracerCleanup(context.Background())
	}
}
