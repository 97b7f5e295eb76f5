package main

import (
	"context"
	"fmt"
	"log"

	"procurement-assistant/config"
	"procurement-assistant/handlers"
	"procurement-assistant/logger"
	"procurement-assistant/repository"
	"procurement-assistant/service"

	"github.com/gin-gonic/gin"
	"github.com/google/generative-ai-go/genai"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/api/option"
)

func main() {
	foundEnv := config.LoadDotEnv()

	settings, err := config.LoadSettings()
	if err != nil {
		log.Fatalf("Failed to load settings: %v", err)
	}

	appLog, err := logger.New(settings.LogMode)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer appLog.Sync()
	if !foundEnv {
		appLog.Warn("No .env file found, using environment variables")
	}

	tables, err := config.LoadTables(settings.RulesPath)
	if err != nil {
		appLog.Fatal("Failed to load rule tables", "path", settings.RulesPath, "error", err)
	}
	systemPrompt, err := config.LoadSystemPrompt(settings.SystemPromptPath)
	if err != nil {
		appLog.Fatal("Failed to load system prompt", "path", settings.SystemPromptPath, "error", err)
	}

	// Initialize database connection
	db, err := initPostgres(settings.DatabaseURL, appLog)
	if err != nil {
		appLog.Fatal("Failed to initialize Postgres", "error", err)
	}
	defer db.Close()

	completer, err := initCompleter(settings, appLog)
	if err != nil {
		appLog.Fatal("Failed to initialize completion backend", "provider", settings.LLMProvider, "error", err)
	}

	// Initialize repositories
	chunkRepo := repository.NewChunkRepository(db)
	overrideRepo := repository.NewOverrideRepository(db)
	answerLogRepo := repository.NewAnswerLogRepository(db)
	feedbackRepo := repository.NewFeedbackRepository(db)
	banRepo := repository.NewBanRepository(db)

	// Initialize services
	answerService, err := service.NewAnswerService(
		service.AnswerWithTables(tables),
		service.AnswerWithChunkSearcher(chunkRepo),
		service.AnswerWithChunkFetcher(chunkRepo),
		service.AnswerWithOverrideSearcher(overrideRepo),
		service.AnswerWithCompleter(completer),
		service.AnswerWithSink(answerLogRepo),
		service.AnswerWithSystemPrompt(systemPrompt),
		service.AnswerWithMaxHistoryPairs(settings.MaxHistoryPairs),
		service.AnswerWithLogger(appLog),
	)
	if err != nil {
		appLog.Fatal("Failed to initialize answer service", "error", err)
	}
	guard := service.NewAccessGuard(banRepo, settings.RateLimitInterval, settings.RateLimitBurst)

	// Initialize handlers
	answerHandler := handlers.NewAnswerHandler(answerService, guard, appLog)
	feedbackHandler := handlers.NewFeedbackHandler(feedbackRepo, appLog)

	r := gin.Default()

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status": "ok",
		})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	{
		api.POST("/answer", answerHandler.Answer)
		api.POST("/feedback", feedbackHandler.CreateFeedback)
	}

	appLog.Info("Server starting", "port", settings.Port, "provider", settings.LLMProvider)
	if err := r.Run(":" + settings.Port); err != nil {
		appLog.Fatal("Failed to start server", "error", err)
	}
}

func initPostgres(connString string, appLog *logger.Logger) (*pgxpool.Pool, error) {
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	appLog.Info("Postgres connection established")
	return pool, nil
}

// initCompleter builds the configured model backend wrapped in the retry policy
func initCompleter(settings *config.Settings, appLog *logger.Logger) (service.Completer, error) {
	var next service.Completer
	switch settings.LLMProvider {
	case config.ProviderGemini:
		client, err := genai.NewClient(context.Background(), option.WithAPIKey(settings.GeminiAPIKey))
		if err != nil {
			return nil, err
		}
		next = service.NewGeminiCompleter(client, settings.GeminiModel, settings.CompletionMaxTokens)
		appLog.Info("Gemini client initialized", "model", settings.GeminiModel)
	case config.ProviderOpenAI:
		client := service.NewOpenAIClient(settings.OpenAIAPIKey, settings.OpenAIBaseURL)
		next = service.NewOpenAICompleter(client, settings.OpenAIModel, settings.CompletionMaxTokens)
		appLog.Info("OpenAI client initialized", "model", settings.OpenAIModel)
	default:
		return nil, fmt.Errorf("unknown provider %q", settings.LLMProvider)
	}

	return service.NewRetryingCompleter(
		next,
		settings.CompletionMaxAttempts,
		settings.CompletionTimeout,
		settings.CompletionBackoff,
		appLog,
	), nil
}
