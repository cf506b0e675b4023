package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"

	"chat-api/handler"
	"chat-api/internal/config"
	"chat-api/internal/integrations/bedrock"
	"chat-api/internal/integrations/openai"
	"chat-api/internal/integrations/paramstore"
	"chat-api/internal/logging"
	"chat-api/internal/repository"
	"chat-api/internal/usecase"
)

func main() {
	ctx := context.Background()

	// ---- Configuration (read only here) ----
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "err", err)
		os.Exit(1)
	}
	logger := logging.New(os.Stdout, cfg.LogLevel)
	slog.SetDefault(logger)

	// ---- AWS SDK config ----
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		fatal(logger, "failed to load AWS config", err)
	}

	// ---- Clients ----
	store, err := repository.New(awsdynamodb.NewFromConfig(awsCfg), cfg.TableName)
	if err != nil {
		fatal(logger, "failed to create turn store", err)
	}

	var params *paramstore.Client
	if cfg.Provider == config.ProviderOpenAI || cfg.SystemPromptParam != "" {
		params, err = paramstore.New(awsssm.NewFromConfig(awsCfg))
		if err != nil {
			fatal(logger, "failed to create SSM client", err)
		}
	}

	backend, err := newBackend(cfg, awsCfg, params)
	if err != nil {
		fatal(logger, "failed to create inference backend", err)
	}

	// ---- Handler ----
	var opts []usecase.Option
	if cfg.SystemPromptParam != "" {
		opts = append(opts, usecase.WithSystemPrompt(params, cfg.SystemPromptParam))
	}
	chatService, err := usecase.NewChatService(store, backend, cfg.Model(), cfg.MemoryLimit, opts...)
	if err != nil {
		fatal(logger, "failed to create chat service", err)
	}

	h, err := handler.NewHandler(chatService, logger)
	if err != nil {
		fatal(logger, "failed to create handler", err)
	}

	logger.Info("chat handler ready",
		"table", cfg.TableName,
		"provider", cfg.Provider,
		"model", cfg.Model(),
		"memory_limit", cfg.MemoryLimit,
	)
	lambda.Start(h.Handle)
}

func newBackend(cfg *config.Config, awsCfg aws.Config, params *paramstore.Client) (usecase.Backend, error) {
	if cfg.Provider == config.ProviderOpenAI {
		return openai.NewClient(params, cfg.OpenAIParamPrefix, openai.WithBaseURL(cfg.OpenAIBaseURL))
	}
	return bedrock.New(bedrockruntime.NewFromConfig(awsCfg))
}

func fatal(logger *slog.Logger, msg string, err error) {
	logger.Error(msg, "err", err)
	os.Exit(1)
}
