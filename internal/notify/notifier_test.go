package notify

import (
	"testing"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewFallsBackToLog(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)

	n, err := New(Config{}, zap.New(core))
	require.NoError(t, err)
	require.IsType(t, &Log{}, n)

	n.Sendf("filled %s %.2f", "BTCUSDT", 20.0)
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "filled BTCUSDT 20.00", logs.All()[0].Message)
}

func TestTelegramSendWithoutBotIsNoop(t *testing.T) {
	tg := newTelegram(nil, 1, zap.NewNop())
	tg.Send("ignored")
	assert.Equal(t, 0, len(tg.queue))
}

func TestTelegramSendDropsWhenQueueFull(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	tg := newTelegram(&tgbot.BotAPI{}, 1, zap.New(core))

	for i := 0; i < cap(tg.queue)+1; i++ {
		tg.Sendf("msg %d", i)
	}
	assert.Equal(t, cap(tg.queue), len(tg.queue))
	assert.Equal(t, 1, logs.Len())
}
