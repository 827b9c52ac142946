package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"
	"github.com/iamvkosarev/vision-chat-bot/config"
	"github.com/iamvkosarev/vision-chat-bot/internal/model"
)

const (
	consoleChatID = 0

	consoleCommandImage   = "/image"
	consoleCommandCamera  = "/camera"
	consoleCommandAsk     = "/ask"
	consoleCommandNew     = "/new"
	consoleCommandHistory = "/history"
	consoleCommandState   = "/state"
	consoleCommandHelp    = "/help"

	consoleHelp = `/image <path>  classify an image file
/camera        capture and classify a camera frame
/ask           ask the assistant about the last label
/new           start a new conversation
/history       print the conversation
/state         print the classification state
anything else is sent to the assistant`
)

type LineReader interface {
	Readline() (string, error)
}

type ConsoleUsecaseDeps struct {
	Sessions *ChatSessionUsecase
}

// ConsoleUsecase drives a single session from a terminal. Every command waits
// for its result before the next line is read.
type ConsoleUsecase struct {
	ConsoleUsecaseDeps
	camera config.Camera
	out    io.Writer
}

func NewConsoleUsecase(deps ConsoleUsecaseDeps, camera config.Camera, out io.Writer) *ConsoleUsecase {
	return &ConsoleUsecase{
		ConsoleUsecaseDeps: deps,
		camera:             camera,
		out:                out,
	}
}

func (c *ConsoleUsecase) Run(ctx context.Context, rl LineReader) error {
	defer c.Sessions.CloseAll()
	for {
		if ctx.Err() != nil {
			return nil
		}
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, readline.ErrInterrupt) {
				return nil
			}
			return fmt.Errorf("failed to read line: %w", err)
		}
		if err = c.HandleLine(ctx, line); err != nil {
			c.printf("error: %v\n", err)
		}
	}
}

func (c *ConsoleUsecase) HandleLine(ctx context.Context, line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	command, argument, _ := strings.Cut(line, " ")
	argument = strings.TrimSpace(argument)

	session := c.Sessions.GetSession(consoleChatID)
	switch command {
	case consoleCommandImage:
		if argument == "" {
			return errors.New("usage: /image <path>")
		}
		return c.classify(ctx, session, NewGallerySource(argument))
	case consoleCommandCamera:
		return c.classify(ctx, session, NewCameraSource(c.camera))
	case consoleCommandAsk:
		turn, err := session.AskAboutClassification(ctx)
		if err != nil {
			return err
		}
		c.printMessage(turn.Question)
		return c.waitTurn(ctx, turn)
	case consoleCommandNew:
		c.Sessions.ResetSession(consoleChatID)
		c.printf("started a new conversation\n")
		return nil
	case consoleCommandHistory:
		for _, message := range session.Transcript() {
			c.printMessage(message)
		}
		return nil
	case consoleCommandState:
		state := session.State()
		classification := session.Classification()
		c.printf(
			"phase: %s, label: %s, can ask: %t, in flight: %d\n",
			state.Phase, classification.Label, classification.Available, state.InFlightGenerations,
		)
		return nil
	case consoleCommandHelp:
		c.printf("%s\n", consoleHelp)
		return nil
	}

	turn, err := session.SubmitText(ctx, line)
	if err != nil {
		return err
	}
	return c.waitTurn(ctx, turn)
}

func (c *ConsoleUsecase) classify(ctx context.Context, session *Session, source ImageSource) error {
	pending, err := session.AcquireAndSubmit(ctx, source)
	if err != nil {
		return err
	}
	result, err := pending.Wait(ctx)
	if err != nil {
		return err
	}
	if !result.OK() {
		c.printf("%s\n", result.Failure.Message)
		return nil
	}
	c.printf("classification: %s (type /ask for %q)\n", result.Label, model.ShortcutPrompt(result.Label))
	return nil
}

func (c *ConsoleUsecase) waitTurn(ctx context.Context, turn *Turn) error {
	answer, err := turn.Wait(ctx)
	if err != nil {
		return err
	}
	c.printMessage(answer)
	return nil
}

func (c *ConsoleUsecase) printMessage(message model.Message) {
	c.printf("%s: %s\n", message.Sender, message.Content)
}

func (c *ConsoleUsecase) printf(format string, a ...any) {
	_, _ = fmt.Fprintf(c.out, format, a...)
}
