package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"

	"text-adapter/handler"
	"text-adapter/internal/config"
	"text-adapter/internal/integrations/deepseek"
	"text-adapter/internal/integrations/mail"
	"text-adapter/internal/integrations/paramstore"
	"text-adapter/internal/integrations/textometr"
	"text-adapter/internal/repository"
	"text-adapter/internal/telemetry"
	"text-adapter/internal/usecase"
)

const serviceName = "text-adapter"

func main() {
	ctx := context.Background()

	// ---- Configuration (read only here) ----
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()})))

	if cfg.TracingEnabled {
		shutdown, err := telemetry.InitTracer(serviceName)
		if err != nil {
			slog.Error("failed to init tracer", "err", err)
			os.Exit(1)
		}
		defer func() { _ = shutdown(context.Background()) }()
	}

	// ---- AWS SDK config ----
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		slog.Error("failed to load AWS config", "err", err)
		os.Exit(1)
	}

	// ---- Credentials ----
	apiKey := cfg.DeepSeekAPIKey
	if apiKey == "" {
		params, err := paramstore.New(awsssm.NewFromConfig(awsCfg))
		if err != nil {
			slog.Error("failed to create SSM client", "err", err)
			os.Exit(1)
		}
		apiKey, err = params.GetToken(ctx, cfg.DeepSeekAPIKeyParam)
		if err != nil {
			slog.Error("failed to resolve DeepSeek API key", "param", cfg.DeepSeekAPIKeyParam, "err", err)
			os.Exit(1)
		}
	}

	// ---- Clients ----
	llm, err := deepseek.NewClient(apiKey,
		deepseek.WithBaseURL(cfg.DeepSeekBaseURL),
		deepseek.WithModel(cfg.DeepSeekModel),
		deepseek.WithMaxTokens(cfg.DeepSeekMaxTokens),
		deepseek.WithTemperature(cfg.DeepSeekTemperature),
		deepseek.WithIdleTimeout(cfg.DeepSeekTimeout),
		deepseek.WithHTTPClient(telemetry.NewStreamingHTTPClient("deepseek.chat", cfg.DeepSeekTimeout)),
	)
	if err != nil {
		slog.Error("failed to create DeepSeek client", "err", err)
		os.Exit(1)
	}

	analyzer, err := textometr.NewClient(cfg.TextometrURL,
		textometr.WithHTTPClient(telemetry.NewHTTPClient("textometr.analyze", cfg.TextometrTimeout)),
	)
	if err != nil {
		slog.Error("failed to create Textometr client", "err", err)
		os.Exit(1)
	}

	users, err := repository.New(awsdynamodb.NewFromConfig(awsCfg), cfg.UsersTable)
	if err != nil {
		slog.Error("failed to create user repository", "err", err)
		os.Exit(1)
	}

	sender, err := mail.NewSender(cfg.SendGridAPIKey, cfg.MailFromName, cfg.MailFromEmail)
	if err != nil {
		slog.Error("failed to create mail sender", "err", err)
		os.Exit(1)
	}

	// ---- Services ----
	adaptService, err := usecase.NewAdaptService(llm, analyzer, cfg.CompletionAttempts)
	if err != nil {
		slog.Error("failed to create adapt service", "err", err)
		os.Exit(1)
	}
	accountService, err := usecase.NewAccountService(users, sender, cfg.VerificationTTL)
	if err != nil {
		slog.Error("failed to create account service", "err", err)
		os.Exit(1)
	}

	// ---- Handler ----
	h, err := handler.NewHandler(adaptService, accountService)
	if err != nil {
		slog.Error("failed to create handler", "err", err)
		os.Exit(1)
	}

	lambda.Start(h.Handle)
}
