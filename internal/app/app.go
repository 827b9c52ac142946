package app

import (
	"context"
	"fmt"
	"io"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/chzyer/readline"
	"github.com/iamvkosarev/vision-chat-bot/config"
	"github.com/iamvkosarev/vision-chat-bot/internal/integrations/paramstore"
	"github.com/iamvkosarev/vision-chat-bot/internal/observability"
	in_memory "github.com/iamvkosarev/vision-chat-bot/internal/storage/in-memory"
	key_value "github.com/iamvkosarev/vision-chat-bot/internal/storage/key-value"
	"github.com/iamvkosarev/vision-chat-bot/internal/usecase"
	"github.com/iamvkosarev/vision-chat-bot/pkg/local"
	"github.com/redis/go-redis/v9"
)

const labelCacheSize = 1024

// RunBot serves the Telegram front-end until ctx is done.
func RunBot(ctx context.Context, cfg *config.Config) error {
	if cfg.Telegram.TelegramAPIToken == "" {
		return fmt.Errorf("telegram api token is not set")
	}
	sessions, cleanup, err := newChatSessions(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	bot, err := api.NewBotAPI(cfg.Telegram.TelegramAPIToken)
	if err != nil {
		return fmt.Errorf("failed to create new bot: %w", err)
	}
	observability.Logger().Info("authorized on account", "user_name", bot.Self.UserName)

	telegramUsecase, err := usecase.NewTelegramUsecase(
		cfg.Telegram, local.ParseLanguage(cfg.Language), usecase.TelegramUsecaseDeps{
			Bot:      bot,
			Sessions: sessions,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to create telegram usecase: %w", err)
	}

	go sessions.Run(ctx)
	defer sessions.CloseAll()
	return telegramUsecase.Run(ctx)
}

// RunConsole drives a single session from the terminal.
func RunConsole(ctx context.Context, cfg *config.Config, out io.Writer) error {
	sessions, cleanup, err := newChatSessions(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	rl, err := readline.New("> ")
	if err != nil {
		return fmt.Errorf("failed to create readline: %w", err)
	}
	defer func() {
		_ = rl.Close()
	}()

	console := usecase.NewConsoleUsecase(
		usecase.ConsoleUsecaseDeps{
			Sessions: sessions,
		}, cfg.Camera, out,
	)
	return console.Run(ctx, rl)
}

func newChatSessions(ctx context.Context, cfg *config.Config) (*usecase.ChatSessionUsecase, func(), error) {
	language := local.ParseLanguage(cfg.Language)

	generator, err := newGenerator(ctx, cfg, language)
	if err != nil {
		return nil, nil, err
	}

	labelCache, cleanup := newLabelCache(cfg)
	classifier := usecase.NewClassifierUsecase(
		usecase.ClassifierUsecaseDeps{
			Model: usecase.NewExecVisionModel(cfg.Classifier),
			Cache: labelCache,
		}, language, cfg.Classifier.Timeout,
	)

	sessions := usecase.NewChatSessionUsecase(
		usecase.ChatSessionUsecaseDeps{
			SessionStorage: in_memory.NewSessionStorage[*usecase.Session](),
			Conversation: usecase.ConversationUsecaseDeps{
				Classifier: classifier,
				Generator:  generator,
			},
		}, language, cfg.Telegram.SessionIdleTimeout,
	)
	return sessions, cleanup, nil
}

func newGenerator(ctx context.Context, cfg *config.Config, language local.Language) (*usecase.GenerationUsecase, error) {
	apiKey, err := resolveAPIKey(ctx, cfg.Generation)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve generation api key: %w", err)
	}

	var backend usecase.GenerationBackend
	switch cfg.Generation.Backend {
	case config.BackendOpenAI:
		backend = usecase.NewOpenAIUsecase(cfg.Generation, apiKey)
	default:
		backend, err = usecase.NewGeminiUsecase(ctx, cfg.Generation, apiKey)
		if err != nil {
			return nil, err
		}
	}
	observability.Logger().Info(
		"generation backend ready",
		"backend", cfg.Generation.Backend,
		"model", cfg.Generation.Model,
		"max_output_tokens", cfg.Generation.MaxOutputTokens,
	)

	return usecase.NewGenerationUsecase(
		usecase.GenerationUsecaseDeps{
			Backend: backend,
		}, cfg.Generation, language,
	), nil
}

func resolveAPIKey(ctx context.Context, cfg config.Generation) (string, error) {
	if cfg.APIKey != "" || cfg.APIKeyParameter == "" {
		return paramstore.ResolveSecret(ctx, nil, cfg.APIKey, cfg.APIKeyParameter)
	}
	store, err := paramstore.NewFromEnv(ctx)
	if err != nil {
		return "", err
	}
	return paramstore.ResolveSecret(ctx, store, cfg.APIKey, cfg.APIKeyParameter)
}

func newLabelCache(cfg *config.Config) (usecase.LabelCache, func()) {
	if cfg.Redis.Endpoint == "" {
		return in_memory.NewLabelCache(labelCacheSize), func() {}
	}
	rdb := redis.NewClient(
		&redis.Options{
			Addr: cfg.Redis.Endpoint,
		},
	)
	return key_value.NewLabelCache(rdb, cfg.Redis.LabelTTL), func() {
		_ = rdb.Close()
	}
}
