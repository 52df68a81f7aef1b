package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	glog "github.com/labstack/gommon/log"

	"github.com/xiaot623/dalia/internal/adapter/alphavantage"
	"github.com/xiaot623/dalia/internal/adapter/llm"
	"github.com/xiaot623/dalia/internal/adapter/trading212"
	"github.com/xiaot623/dalia/internal/agent"
	"github.com/xiaot623/dalia/internal/chat"
	"github.com/xiaot623/dalia/internal/config"
	"github.com/xiaot623/dalia/internal/metrics"
	store "github.com/xiaot623/dalia/internal/repository"
	"github.com/xiaot623/dalia/internal/service"
	"github.com/xiaot623/dalia/internal/tools"
	handler "github.com/xiaot623/dalia/internal/transport/http"
	"github.com/xiaot623/dalia/policy"
)

const upstreamTimeout = 30 * time.Second

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	log.Printf("Starting dalia backend...")
	log.Printf("HTTP Port: %d", cfg.HTTPPort)
	log.Printf("Database: %s", cfg.DatabaseURL)
	log.Printf("LLM URL: %s (model %s)", cfg.LLMBaseURL, cfg.ModelID)
	log.Printf("Frontend origin: %s", cfg.FrontendOrigin)

	// Initialize store
	db, err := store.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to initialize store: %v", err)
	}
	defer db.Close()

	// Initialize LLM client
	llmClient := llm.NewLLMClient(cfg.Mode, cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMTimeout)

	// Initialize upstream clients; tools stay registered without them
	var broker tools.Trading212API
	if cfg.Trading212Configured() {
		client, err := trading212.NewClient(cfg.Trading212BaseURL, cfg.Trading212APIKey, cfg.Trading212APISecret, upstreamTimeout)
		if err != nil {
			log.Fatalf("Failed to initialize Trading 212 client: %v", err)
		}
		broker = client
	} else {
		log.Printf("WARN: Trading 212 credentials not set, brokerage tools will be blocked")
	}

	var market tools.AlphaVantageAPI
	if cfg.AlphaVantageConfigured() {
		client, err := alphavantage.NewClient(cfg.AlphaVantageBaseURL, cfg.AlphaVantageAPIKey, upstreamTimeout)
		if err != nil {
			log.Fatalf("Failed to initialize Alpha Vantage client: %v", err)
		}
		market = client
	} else {
		log.Printf("WARN: Alpha Vantage API key not set, market data tools will fail")
	}

	registry := tools.NewRegistry()
	if err := tools.RegisterTrading212(registry, broker); err != nil {
		log.Fatalf("Failed to register Trading 212 tools: %v", err)
	}
	if err := tools.RegisterAlphaVantage(registry, market); err != nil {
		log.Fatalf("Failed to register Alpha Vantage tools: %v", err)
	}

	// Initialize policy engine
	ctx := context.Background()
	policyEngine, err := policy.NewEngine(ctx, policy.DefaultPolicy)
	if err != nil {
		log.Fatalf("Failed to initialize policy engine: %v", err)
	}

	// Initialize agent and sessions
	m := metrics.New()
	assistant := agent.New(db, llmClient, registry, policyEngine, m, agent.Config{
		Model:                cfg.ModelID,
		HistoryRuns:          cfg.HistoryRuns,
		MaxToolRounds:        cfg.MaxToolRounds,
		Timeout:              cfg.AgentTimeout,
		Trading212Configured: cfg.Trading212Configured(),
	})
	sessions := chat.NewRegistry(assistant, cfg.StreamBuffer)
	m.RegisterSessionGauge(func() float64 { return float64(sessions.Len()) })

	// Initialize service
	svc := service.New(db, sessions, broker, market, m)

	// Create Echo server
	server := handler.NewServer(svc, handler.Options{
		FrontendOrigin: cfg.FrontendOrigin,
		ChatRateLimit:  float64(cfg.ChatRateLimit),
	})
	server.Logger.SetLevel(logLevel(cfg.LogLevel))

	go func() {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		if err := server.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	log.Printf("API started on port %d", cfg.HTTPPort)

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down dalia backend...")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Failed to shutdown server gracefully: %v", err)
	}

	log.Println("dalia backend stopped")
}

func logLevel(level string) glog.Lvl {
	switch strings.ToLower(level) {
	case "debug":
		return glog.DEBUG
	case "warn", "warning":
		return glog.WARN
	case "error":
		return glog.ERROR
	case "off":
		return glog.OFF
	default:
		return glog.INFO
	}
}
