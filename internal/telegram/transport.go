// Package telegram carries the chat transport: outbound replies with reply
// keyboards and inbound text routed into the conversation engine.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	tele "gopkg.in/telebot.v3"

	"torrentcast/internal/domain/ports"
)

// Dispatcher consumes inbound messages. *menu.Router satisfies it.
type Dispatcher interface {
	Dispatch(ctx context.Context, user ports.UserID, text string) error
}

// Transport owns the Telegram bot connection.
type Transport struct {
	bot    *tele.Bot
	logger *slog.Logger
}

var _ ports.Sender = (*Transport)(nil)

type Options struct {
	// PollTimeout is the long-poll timeout, default 10s.
	PollTimeout time.Duration
	// Offline skips the initial getMe call; used by tests.
	Offline bool
}

func New(token string, logger *slog.Logger, opts Options) (*Transport, error) {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := opts.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	bot, err := tele.NewBot(tele.Settings{
		Token:   token,
		Poller:  &tele.LongPoller{Timeout: timeout},
		Offline: opts.Offline,
		OnError: func(err error, c tele.Context) {
			logger.Error("telegram handler error", slog.String("error", err.Error()))
		},
	})
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	return &Transport{bot: bot, logger: logger}, nil
}

// Attach routes every inbound text message into the dispatcher. Dispatch
// errors have already produced a user-visible reply where one was possible,
// so they are only logged here.
func (t *Transport) Attach(ctx context.Context, d Dispatcher) {
	t.bot.Handle(tele.OnText, func(c tele.Context) error {
		user := ports.UserID(c.Sender().ID)
		if err := d.Dispatch(ctx, user, c.Text()); err != nil {
			t.logger.Error("dispatch failed",
				slog.Int64("userId", int64(user)),
				slog.String("error", err.Error()))
		}
		return nil
	})
}

// Start begins long polling and blocks until Stop.
func (t *Transport) Start() { t.bot.Start() }

func (t *Transport) Stop() { t.bot.Stop() }

func (t *Transport) Send(ctx context.Context, user ports.UserID, reply ports.Reply) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := t.bot.Send(tele.ChatID(user), reply.Text, buildMarkup(reply)); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}

func buildMarkup(reply ports.Reply) *tele.ReplyMarkup {
	markup := &tele.ReplyMarkup{}
	if reply.RemoveKeyboard {
		markup.RemoveKeyboard = true
		return markup
	}
	if len(reply.Keyboard) == 0 {
		return markup
	}
	markup.ResizeKeyboard = true
	markup.OneTimeKeyboard = true
	rows := make([][]tele.ReplyButton, 0, len(reply.Keyboard))
	for _, row := range reply.Keyboard {
		buttons := make([]tele.ReplyButton, 0, len(row))
		for _, label := range row {
			buttons = append(buttons, tele.ReplyButton{Text: label})
		}
		rows = append(rows, buttons)
	}
	markup.ReplyKeyboard = rows
	return markup
}
