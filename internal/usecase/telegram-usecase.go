package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/iamvkosarev/vision-chat-bot/config"
	"github.com/iamvkosarev/vision-chat-bot/internal/model"
	"github.com/iamvkosarev/vision-chat-bot/internal/observability"
	"github.com/iamvkosarev/vision-chat-bot/pkg/local"
	"github.com/sourcegraph/conc"
)

const (
	CommandStart = "start"
	CommandHelp  = "help"
	CommandNew   = "new"
	CommandAsk   = "ask"

	callbackAsk = "ask"
)

var (
	MessageServerError = local.NewSet(
		"Something wrong with me. Try later",
		local.NewTrans(local.Rus, "Что-то пошло не так. Попробуйте позже"),
	)
	MessageUserNoAccess = local.NewSet(
		"You are not allowed to use this bot",
		local.NewTrans(local.Rus, "У вас нет доступа к этому боту"),
	)
	MessageCommandStart = local.NewSet(
		"Send me a photo and I will tell you what is on it. Tap the button under the answer or use /ask to learn more about it. Any text is sent to the assistant as is.",
		local.NewTrans(local.Rus, "Пришлите фото, и я скажу, что на нём. Нажмите кнопку под ответом или /ask, чтобы узнать больше. Любой текст отправляется ассистенту как есть."),
	)
	MessageCommandHelp = local.NewSet(
		"Send a photo to classify it, add a caption to ask about the photo. Use /ask to ask about the last label and /new to start over.",
		local.NewTrans(local.Rus, "Пришлите фото для классификации, добавьте подпись, чтобы спросить о нём. /ask спросит о последней метке, /new начнёт заново."),
	)
	MessageCommandUnknown = local.NewSet(
		"I don't know that command",
		local.NewTrans(local.Rus, "Я не знаю такой команды"),
	)
	MessageNewSession = local.NewSet(
		"Started a new conversation",
		local.NewTrans(local.Rus, "Начат новый диалог"),
	)
	MessageNothingToAsk = local.NewSet(
		"Send a photo first, there is nothing classified to ask about",
		local.NewTrans(local.Rus, "Сначала пришлите фото, спрашивать пока не о чем"),
	)
	MessageImageDownloadFailed = local.NewSet(
		"Failed to download your photo. Try again",
		local.NewTrans(local.Rus, "Не удалось скачать фото. Попробуйте ещё раз"),
	)
	MessageUnsupported = local.NewSet(
		"Send a photo or a text message",
		local.NewTrans(local.Rus, "Пришлите фото или текст"),
	)
	MessageClassifiedFormat = local.NewSet(
		"Classification: %s",
		local.NewTrans(local.Rus, "Классификация: %s"),
	)
)

// TelegramBot is the part of *api.BotAPI used by the bot front-end.
type TelegramBot interface {
	FileURLResolver
	Send(c api.Chattable) (api.Message, error)
	Request(c api.Chattable) (*api.APIResponse, error)
	GetUpdatesChan(config api.UpdateConfig) api.UpdatesChannel
	StopReceivingUpdates()
}

type TelegramUsecaseDeps struct {
	Bot      TelegramBot
	Sessions *ChatSessionUsecase
	// optional, used to download photos
	HTTPClient *http.Client
}

type TelegramUsecase struct {
	TelegramUsecaseDeps
	cfg          config.Telegram
	language     local.Language
	allowedUsers map[int64]struct{}
	replies      *conc.WaitGroup
}

func NewTelegramUsecase(
	cfg config.Telegram,
	language local.Language,
	deps TelegramUsecaseDeps,
) (*TelegramUsecase, error) {
	allowedUsers := make(map[int64]struct{}, len(cfg.AllowedTelegramID))
	for _, userID := range cfg.AllowedTelegramID {
		allowedUsers[userID] = struct{}{}
	}

	_, err := deps.Bot.Request(
		api.NewSetMyCommands(
			[]api.BotCommand{
				{
					Command:     CommandHelp,
					Description: "Get help",
				},
				{
					Command:     CommandNew,
					Description: "Clear the conversation and start over",
				},
				{
					Command:     CommandAsk,
					Description: "Ask about the last classified photo",
				},
			}...,
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to set bot commands: %w", err)
	}

	return &TelegramUsecase{
		TelegramUsecaseDeps: deps,
		cfg:                 cfg,
		language:            language,
		allowedUsers:        allowedUsers,
		replies:             conc.NewWaitGroup(),
	}, nil
}

// Run reads updates until ctx is done or the update channel closes, then
// waits for pending replies.
func (t *TelegramUsecase) Run(ctx context.Context) error {
	u := api.NewUpdate(0)
	u.Timeout = 60

	updates := t.Bot.GetUpdatesChan(u)
	defer t.replies.Wait()

	for {
		select {
		case <-ctx.Done():
			t.Bot.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			t.HandleUpdate(ctx, update)
		}
	}
}

func (t *TelegramUsecase) HandleUpdate(ctx context.Context, update api.Update) {
	logger := observability.LoggerFromContext(ctx)
	if update.Message != nil {
		if err := t.handleMessage(ctx, update.Message); err != nil {
			logger.Error("error handling message", "error", err, "chat_id", update.Message.Chat.ID)
		}
	}
	if update.CallbackQuery != nil {
		if err := t.handleCallbackQuery(ctx, update.CallbackQuery); err != nil {
			logger.Error("error handling callback query", "error", err)
		}
	}
}

func (t *TelegramUsecase) handleCallbackQuery(ctx context.Context, query *api.CallbackQuery) error {
	chatID := query.Message.Chat.ID
	if _, err := t.Bot.Request(api.NewCallback(query.ID, "")); err != nil {
		return fmt.Errorf("failed to request callback: %w", err)
	}
	if !t.isAllowed(chatID) {
		t.sendMessageAndHandleErr(chatID, MessageUserNoAccess.Text(t.language))
		return nil
	}
	if query.Data != callbackAsk {
		return nil
	}
	return t.askAboutClassification(ctx, chatID)
}

func (t *TelegramUsecase) handleMessage(ctx context.Context, message *api.Message) error {
	chatID := message.Chat.ID

	if !t.isAllowed(chatID) {
		t.sendMessageAndHandleErr(chatID, MessageUserNoAccess.Text(t.language))
		return nil
	}

	if message.IsCommand() {
		var answerText string
		switch message.Command() {
		case CommandStart:
			answerText = MessageCommandStart.Text(t.language)
		case CommandHelp:
			answerText = MessageCommandHelp.Text(t.language)
		case CommandNew:
			t.Sessions.ResetSession(chatID)
			answerText = MessageNewSession.Text(t.language)
		case CommandAsk:
			return t.askAboutClassification(ctx, chatID)
		default:
			answerText = MessageCommandUnknown.Text(t.language)
		}
		t.sendMessageAndHandleErr(chatID, answerText)
		return nil
	}

	if len(message.Photo) > 0 {
		return t.handlePhoto(ctx, chatID, message)
	}

	if strings.TrimSpace(message.Text) == "" {
		t.sendMessageAndHandleErr(chatID, MessageUnsupported.Text(t.language))
		return nil
	}

	session := t.Sessions.GetSession(chatID)
	turn, err := session.SubmitText(ctx, message.Text)
	if err != nil {
		t.sendMessageAndHandleErr(chatID, MessageServerError.Text(t.language))
		return fmt.Errorf("failed to submit text: %w", err)
	}
	t.replyWhenDone(ctx, chatID, turn)
	return nil
}

func (t *TelegramUsecase) handlePhoto(ctx context.Context, chatID int64, message *api.Message) error {
	// sizes are sorted from the smallest to the largest
	photo := message.Photo[len(message.Photo)-1]
	source := NewTelegramPhotoSource(t.Bot, photo.FileID, t.HTTPClient)
	payload, err := source.Acquire(ctx)
	if err != nil {
		t.sendMessageAndHandleErr(chatID, MessageImageDownloadFailed.Text(t.language))
		return fmt.Errorf("failed to acquire photo: %w", err)
	}

	session := t.Sessions.GetSession(chatID)
	pending, err := session.SubmitImage(ctx, payload)
	if err != nil {
		t.sendMessageAndHandleErr(chatID, MessageServerError.Text(t.language))
		return fmt.Errorf("failed to submit photo: %w", err)
	}
	t.replies.Go(
		func() {
			<-pending.Done()
			if pending.Superseded() {
				return
			}
			result, _ := pending.Wait(context.Background())
			t.sendClassification(chatID, result)
		},
	)

	if strings.TrimSpace(message.Caption) == "" {
		return nil
	}
	turn, err := session.SubmitPrompt(ctx, message.Caption, &payload)
	if err != nil {
		t.sendMessageAndHandleErr(chatID, MessageServerError.Text(t.language))
		return fmt.Errorf("failed to submit caption: %w", err)
	}
	t.replyWhenDone(ctx, chatID, turn)
	return nil
}

func (t *TelegramUsecase) askAboutClassification(ctx context.Context, chatID int64) error {
	session := t.Sessions.GetSession(chatID)
	turn, err := session.AskAboutClassification(ctx)
	if err != nil {
		if errors.Is(err, ErrShortcutUnavailable) {
			t.sendMessageAndHandleErr(chatID, MessageNothingToAsk.Text(t.language))
			return nil
		}
		t.sendMessageAndHandleErr(chatID, MessageServerError.Text(t.language))
		return fmt.Errorf("failed to ask about classification: %w", err)
	}
	t.sendMessageAndHandleErr(chatID, turn.Question.Content)
	t.replyWhenDone(ctx, chatID, turn)
	return nil
}

func (t *TelegramUsecase) replyWhenDone(ctx context.Context, chatID int64, turn *Turn) {
	if _, err := t.Bot.Request(api.NewChatAction(chatID, api.ChatTyping)); err != nil {
		observability.LoggerFromContext(ctx).Warn("failed to send chat action", "error", err)
	}
	t.replies.Go(
		func() {
			answer, err := turn.Wait(context.WithoutCancel(ctx))
			if err != nil {
				return
			}
			t.sendMessageAndHandleErr(chatID, answer.Content)
		},
	)
}

func (t *TelegramUsecase) sendClassification(chatID int64, result model.ClassifyResult) {
	if !result.OK() {
		t.sendMessageAndHandleErr(chatID, result.Failure.Message)
		return
	}
	msg := api.NewMessage(chatID, MessageClassifiedFormat.Format(t.language, result.Label))
	msg.ReplyMarkup = api.NewInlineKeyboardMarkup(
		api.NewInlineKeyboardRow(
			api.NewInlineKeyboardButtonData(model.ShortcutPrompt(result.Label), callbackAsk),
		),
	)
	if _, err := t.sendToBot(msg); err != nil {
		observability.Logger().Error("failed to send classification", "error", err, "chat_id", chatID)
	}
}

func (t *TelegramUsecase) isAllowed(chatID int64) bool {
	if !t.cfg.IsNotPublic {
		return true
	}
	_, ok := t.allowedUsers[chatID]
	return ok
}

func (t *TelegramUsecase) sendMessageAndHandleErr(chatID int64, message string) api.Message {
	msg, err := t.sendMessage(chatID, message)
	if err != nil {
		observability.Logger().Error("failed to send new message to bot", "error", err, "chat_id", chatID)
	}
	return msg
}

func (t *TelegramUsecase) sendMessage(chatID int64, message string) (api.Message, error) {
	return t.sendToBot(api.NewMessage(chatID, message))
}

func (t *TelegramUsecase) sendToBot(c api.Chattable) (api.Message, error) {
	return t.Bot.Send(c)
}
