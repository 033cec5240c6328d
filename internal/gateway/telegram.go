package gateway

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pavel/operon/internal/agent"
	"github.com/pavel/operon/internal/memory"
)

type TelegramGateway struct {
	Bot    *tgbotapi.BotAPI
	Loop   *agent.Loop
	Orch   *agent.Orchestrator
	Memory *memory.Manager

	// ownerChat, when non-zero, restricts the gateway to one chat.
	ownerChat int64
}

func NewTelegramGateway(token string, ownerChat int64, loop *agent.Loop, orch *agent.Orchestrator, mem *memory.Manager) (*TelegramGateway, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}

	log.Printf("Authorized on account %s", bot.Self.UserName)

	return &TelegramGateway{
		Bot:       bot,
		Loop:      loop,
		Orch:      orch,
		Memory:    mem,
		ownerChat: ownerChat,
	}, nil
}

func (tg *TelegramGateway) Start() error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := tg.Bot.GetUpdatesChan(u)

	for update := range updates {
		if update.Message == nil {
			continue
		}

		log.Printf("[%s] %s", update.Message.From.UserName, update.Message.Text)

		// Tasks run for minutes; handle each message on its own goroutine
		// so /status stays responsive while a task is in flight.
		go tg.handle(update.Message)
	}
	return nil
}

func (tg *TelegramGateway) handle(msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	if tg.ownerChat != 0 && chatID != tg.ownerChat {
		tg.reply(chatID, "Access denied.")
		return
	}

	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}

	switch {
	case text == "/start":
		tg.reply(chatID, "Operon готов к работе.\nОтправь мне задачу на естественном языке.")
		return
	case text == "/status":
		tg.reply(chatID, renderStats(tg.Memory))
		return
	}

	multi := false
	if strings.HasPrefix(text, multiCommand) {
		multi = true
		text = strings.TrimSpace(strings.TrimPrefix(text, multiCommand))
		if text == "" {
			tg.reply(chatID, "Использование: /multi <задача>")
			return
		}
	}

	ackID := tg.reply(chatID, fmt.Sprintf("Принял задачу: %s\nВыполняю...", clip(text, 80)))

	ctx := context.Background()
	var response string
	if multi && tg.Orch != nil {
		response = renderOrchestration(tg.Orch.Run(ctx, text), 3000)
	} else {
		response = renderTask(tg.Loop.Run(ctx, text), 3000)
	}

	tg.edit(chatID, ackID, response)
}

// reply sends a message and returns its ID for later edits, 0 on failure.
func (tg *TelegramGateway) reply(chatID int64, text string) int {
	sent, err := tg.Bot.Send(tgbotapi.NewMessage(chatID, text))
	if err != nil {
		log.Printf("Error sending to %d: %v", chatID, err)
		return 0
	}
	return sent.MessageID
}

// edit replaces the acknowledgement with the final result, falling back to
// a fresh message when the edit is rejected.
func (tg *TelegramGateway) edit(chatID int64, messageID int, text string) {
	if messageID != 0 {
		if _, err := tg.Bot.Send(tgbotapi.NewEditMessageText(chatID, messageID, text)); err == nil {
			return
		}
	}
	tg.reply(chatID, text)
}

func (tg *TelegramGateway) Send(chatID string, text string) error {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil || id == 0 {
		return fmt.Errorf("invalid chat ID: %s", chatID)
	}

	msg := tgbotapi.NewMessage(id, clip(text, 4000))
	msg.ParseMode = "Markdown" // Enable markdown for better alerts
	_, err = tg.Bot.Send(msg)
	return err
}

func (tg *TelegramGateway) Stop() error {
	tg.Bot.StopReceivingUpdates()
	return nil
}
