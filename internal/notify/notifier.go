package notify

import (
	"context"
	"fmt"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// Notifier: пассивные уведомления (исполнения, докупка комиссии).
type Notifier interface {
	Send(msg string)
	Sendf(format string, args ...any)
}

type Config struct {
	Token  string
	ChatID int64
}

// New: Telegram, если заданы токен и чат, иначе только лог.
func New(cfg Config, log *zap.Logger) (Notifier, error) {
	if cfg.Token == "" || cfg.ChatID == 0 {
		return NewLog(log), nil
	}
	return NewTelegram(cfg.Token, cfg.ChatID, log)
}

// Telegram отправляет сообщения из своей горутины, чтобы не тормозить вызывающего.
type Telegram struct {
	bot    *tgbot.BotAPI
	chatID int64
	log    *zap.Logger
	queue  chan string
}

func NewTelegram(token string, chatID int64, log *zap.Logger) (*Telegram, error) {
	b, err := tgbot.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	return newTelegram(b, chatID, log), nil
}

func newTelegram(b *tgbot.BotAPI, chatID int64, log *zap.Logger) *Telegram {
	if log == nil {
		log = zap.NewNop()
	}
	return &Telegram{
		bot:    b,
		chatID: chatID,
		log:    log.Named("telegram"),
		queue:  make(chan string, 256),
	}
}

func (t *Telegram) Send(msg string) {
	if t == nil || t.bot == nil || t.chatID == 0 {
		return
	}
	select {
	case t.queue <- msg:
	default:
		t.log.Warn("notification dropped, queue is full", zap.String("msg", msg))
	}
}

func (t *Telegram) Sendf(format string, args ...any) { t.Send(fmt.Sprintf(format, args...)) }

// Run вычитывает очередь до отмены ctx.
func (t *Telegram) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-t.queue:
			if _, err := t.bot.Send(tgbot.NewMessage(t.chatID, msg)); err != nil {
				t.log.Warn("send failed", zap.Error(err))
			}
		}
	}
}

// Log: заглушка, пишет уведомления в лог.
type Log struct {
	log *zap.Logger
}

func NewLog(log *zap.Logger) *Log {
	if log == nil {
		log = zap.NewNop()
	}
	return &Log{log: log.Named("notify")}
}

func (l *Log) Send(msg string)                  { l.log.Info(msg) }
func (l *Log) Sendf(format string, args ...any) { l.log.Info(fmt.Sprintf(format, args...)) }
