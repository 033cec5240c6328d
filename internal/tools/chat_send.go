package tools

import (
	"context"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const NameChatSend = "chat_send"

// ChatSender is the slice of the telegram bot API this tool needs.
// *tgbotapi.BotAPI satisfies it.
type ChatSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// ChatSendTool delivers results to a chat mid-task, before the final
// summary lands. Messages go to the owner chat unless the step names
// another chat_id.
type ChatSendTool struct {
	Bot           ChatSender
	DefaultChatID int64
}

func NewChatSendTool(bot ChatSender, defaultChatID int64) *ChatSendTool {
	return &ChatSendTool{Bot: bot, DefaultChatID: defaultChatID}
}

func (c *ChatSendTool) Name() string {
	return NameChatSend
}

func (c *ChatSendTool) Description() string {
	return "Send a message to the user's chat. " +
		"Use to deliver results, reports, or notifications to the user."
}

func (c *ChatSendTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"text": map[string]any{
				"type":        "string",
				"description": "Message text to send",
			},
			"chat_id": map[string]any{
				"type":        "string",
				"description": "Chat ID to send to (default: the owner chat)",
			},
		},
		"required": []string{"text"},
	}
}

func (c *ChatSendTool) Execute(ctx context.Context, input map[string]any) (Result, error) {
	text, _ := input["text"].(string)
	if text == "" {
		return Result{Error: "text is required", ExitCode: 1}, nil
	}

	chatID := c.DefaultChatID
	switch v := input["chat_id"].(type) {
	case string:
		if id, err := strconv.ParseInt(v, 10, 64); err == nil && id != 0 {
			chatID = id
		}
	case float64:
		if v != 0 {
			chatID = int64(v)
		}
	}

	if c.Bot == nil || chatID == 0 {
		return Result{Error: "chat delivery is not configured", ExitCode: 1}, nil
	}

	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = "Markdown"
	if _, err := c.Bot.Send(msg); err != nil {
		// Telegram rejects malformed markdown; retry as plain text.
		plain := tgbotapi.NewMessage(chatID, text)
		if _, err := c.Bot.Send(plain); err != nil {
			return Result{Error: err.Error(), ExitCode: 1}, nil
		}
	}
	return Result{Output: "Message sent successfully"}, nil
}
