package usecase

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/iamvkosarev/vision-chat-bot/config"
	"github.com/iamvkosarev/vision-chat-bot/pkg/local"
	"github.com/stretchr/testify/require"
)

type fakeBot struct {
	mu       sync.Mutex
	sent     []api.Chattable
	requests []api.Chattable
	fileURL  string
	updates  chan api.Update
}

func (f *fakeBot) Send(c api.Chattable) (api.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, c)
	return api.Message{MessageID: len(f.sent)}, nil
}

func (f *fakeBot) Request(c api.Chattable) (*api.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, c)
	return &api.APIResponse{Ok: true}, nil
}

func (f *fakeBot) GetUpdatesChan(_ api.UpdateConfig) api.UpdatesChannel {
	return f.updates
}

func (f *fakeBot) StopReceivingUpdates() {}

func (f *fakeBot) GetFileDirectURL(_ string) (string, error) {
	return f.fileURL, nil
}

func (f *fakeBot) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	texts := make([]string, 0, len(f.sent))
	for _, c := range f.sent {
		if msg, ok := c.(api.MessageConfig); ok {
			texts = append(texts, msg.Text)
		}
	}
	return texts
}

func (f *fakeBot) messageWithText(text string) (api.MessageConfig, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.sent {
		if msg, ok := c.(api.MessageConfig); ok && msg.Text == text {
			return msg, true
		}
	}
	return api.MessageConfig{}, false
}

type telegramFixture struct {
	bot        *fakeBot
	generator  *fakeGenerator
	classifier *fakeClassifier
	telegram   *TelegramUsecase
}

func newTelegramFixture(t *testing.T, cfg config.Telegram) *telegramFixture {
	imageData := testJPEG(t)
	srv := httptest.NewServer(
		http.HandlerFunc(
			func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write(imageData)
			},
		),
	)
	t.Cleanup(srv.Close)

	bot := &fakeBot{fileURL: srv.URL + "/photo.jpg", updates: make(chan api.Update)}
	generator := newFakeGenerator()
	classifier := newFakeClassifier(classified("beagle"))
	sessions := newTestChatSessions(classifier, generator, time.Hour)
	t.Cleanup(sessions.CloseAll)

	telegram, err := NewTelegramUsecase(
		cfg, local.Eng, TelegramUsecaseDeps{
			Bot:        bot,
			Sessions:   sessions,
			HTTPClient: srv.Client(),
		},
	)
	require.NoError(t, err)
	return &telegramFixture{bot: bot, generator: generator, classifier: classifier, telegram: telegram}
}

func (f *telegramFixture) handle(t *testing.T, raw string) {
	var update api.Update
	require.NoError(t, json.Unmarshal([]byte(raw), &update))
	f.telegram.HandleUpdate(testContext(t), update)
	f.telegram.replies.Wait()
}

const (
	updateText = `{"update_id":1,"message":{"message_id":1,"date":0,"chat":{"id":7,"type":"private"},"text":"hello"}}`
	updateAsk  = `{"update_id":2,"message":{"message_id":2,"date":0,"chat":{"id":7,"type":"private"},"text":"/ask",` +
		`"entities":[{"type":"bot_command","offset":0,"length":4}]}}`
	updateStart = `{"update_id":3,"message":{"message_id":3,"date":0,"chat":{"id":7,"type":"private"},"text":"/start",` +
		`"entities":[{"type":"bot_command","offset":0,"length":6}]}}`
	updatePhoto = `{"update_id":4,"message":{"message_id":4,"date":0,"chat":{"id":7,"type":"private"},` +
		`"photo":[{"file_id":"small","file_unique_id":"s","width":90,"height":90},` +
		`{"file_id":"big","file_unique_id":"b","width":800,"height":800}],"caption":"what breed?"}}`
	updateCallback = `{"update_id":5,"callback_query":{"id":"q1","from":{"id":7,"is_bot":false,"first_name":"A"},` +
		`"message":{"message_id":5,"date":0,"chat":{"id":7,"type":"private"}},"data":"ask"}}`
)

func TestTelegram_TextMessageGetsAnswer(t *testing.T) {
	f := newTelegramFixture(t, config.Telegram{})

	f.handle(t, updateText)

	require.Equal(t, []string{"answer: hello"}, f.bot.texts())
	require.Equal(t, []string{"hello"}, f.generator.Prompts())
}

func TestTelegram_StartCommand(t *testing.T) {
	f := newTelegramFixture(t, config.Telegram{})

	f.handle(t, updateStart)

	require.Equal(t, []string{MessageCommandStart.Text(local.Eng)}, f.bot.texts())
	require.Empty(t, f.generator.Prompts())
}

func TestTelegram_PrivateBotRejectsStrangers(t *testing.T) {
	f := newTelegramFixture(t, config.Telegram{IsNotPublic: true, AllowedTelegramID: []int64{42}})

	f.handle(t, updateText)

	require.Equal(t, []string{MessageUserNoAccess.Text(local.Eng)}, f.bot.texts())
	require.Empty(t, f.generator.Prompts())
}

func TestTelegram_AskBeforePhoto(t *testing.T) {
	f := newTelegramFixture(t, config.Telegram{})

	f.handle(t, updateAsk)

	require.Equal(t, []string{MessageNothingToAsk.Text(local.Eng)}, f.bot.texts())
	require.Empty(t, f.generator.Prompts())
}

func TestTelegram_PhotoThenShortcut(t *testing.T) {
	f := newTelegramFixture(t, config.Telegram{IsNotPublic: true, AllowedTelegramID: []int64{7}})

	f.handle(t, updatePhoto)

	classification, ok := f.bot.messageWithText("Classification: beagle")
	require.True(t, ok)
	markup, ok := classification.ReplyMarkup.(api.InlineKeyboardMarkup)
	require.True(t, ok)
	require.Equal(t, "What is a beagle?", markup.InlineKeyboard[0][0].Text)
	require.Contains(t, f.bot.texts(), "answer: what breed?")

	f.generator.mu.Lock()
	require.Len(t, f.generator.images, 1)
	require.NotNil(t, f.generator.images[0])
	f.generator.mu.Unlock()

	f.handle(t, updateCallback)

	texts := f.bot.texts()
	require.Contains(t, texts, "What is a beagle?")
	require.Contains(t, texts, "answer: What is a beagle?")
	require.Equal(t, []string{"what breed?", "What is a beagle?"}, f.generator.Prompts())
}

func TestTelegram_RunStopsWhenUpdatesClose(t *testing.T) {
	f := newTelegramFixture(t, config.Telegram{})

	done := make(chan error, 1)
	go func() {
		done <- f.telegram.Run(context.Background())
	}()

	var update api.Update
	require.NoError(t, json.Unmarshal([]byte(updateText), &update))
	f.bot.updates <- update
	close(f.bot.updates)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(testTimeout):
		t.Fatal("run did not stop")
	}
	require.Equal(t, []string{"answer: hello"}, f.bot.texts())
}
