package gateway

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/pavel/operon/internal/agent"
	"github.com/pavel/operon/internal/memory"
)

// Discord caps messages at 2000 characters; leave headroom for the header.
const discordMaxChars = 1800

type DiscordGateway struct {
	Session *discordgo.Session
	Loop    *agent.Loop
	Orch    *agent.Orchestrator
	Memory  *memory.Manager

	// ownerChannel, when set, restricts the gateway to one channel.
	ownerChannel string
	done         chan struct{}
}

func NewDiscordGateway(token string, ownerChannel string, loop *agent.Loop, orch *agent.Orchestrator, mem *memory.Manager) (*DiscordGateway, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, err
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentMessageContent

	return &DiscordGateway{
		Session:      session,
		Loop:         loop,
		Orch:         orch,
		Memory:       mem,
		ownerChannel: ownerChannel,
		done:         make(chan struct{}),
	}, nil
}

// Start opens the websocket session and blocks until Stop, matching the
// telegram gateway's contract.
func (dg *DiscordGateway) Start() error {
	dg.Session.AddHandler(dg.onMessage)
	if err := dg.Session.Open(); err != nil {
		return err
	}
	log.Printf("Authorized on account %s", dg.Session.State.User.Username)
	<-dg.done
	return nil
}

func (dg *DiscordGateway) onMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author.ID == s.State.User.ID || m.Author.Bot {
		return
	}
	if dg.ownerChannel != "" && m.ChannelID != dg.ownerChannel {
		return
	}

	text := strings.TrimSpace(m.Content)
	if text == "" {
		return
	}
	log.Printf("[%s] %s", m.Author.Username, text)

	switch {
	case text == "/start":
		dg.send(m.ChannelID, "Operon готов к работе.\nОтправь мне задачу на естественном языке.")
		return
	case text == "/status":
		dg.send(m.ChannelID, renderStats(dg.Memory))
		return
	}

	multi := false
	if strings.HasPrefix(text, multiCommand) {
		multi = true
		text = strings.TrimSpace(strings.TrimPrefix(text, multiCommand))
		if text == "" {
			dg.send(m.ChannelID, "Использование: /multi <задача>")
			return
		}
	}

	ackID := dg.send(m.ChannelID, fmt.Sprintf("Принял задачу: %s\nВыполняю...", clip(text, 80)))

	// discordgo handlers already run on their own goroutine.
	ctx := context.Background()
	var response string
	if multi && dg.Orch != nil {
		response = renderOrchestration(dg.Orch.Run(ctx, text), discordMaxChars)
	} else {
		response = renderTask(dg.Loop.Run(ctx, text), discordMaxChars)
	}

	dg.edit(m.ChannelID, ackID, response)
}

func (dg *DiscordGateway) send(channelID, text string) string {
	sent, err := dg.Session.ChannelMessageSend(channelID, clip(text, discordMaxChars))
	if err != nil {
		log.Printf("Error sending to %s: %v", channelID, err)
		return ""
	}
	return sent.ID
}

func (dg *DiscordGateway) edit(channelID, messageID, text string) {
	if messageID != "" {
		if _, err := dg.Session.ChannelMessageEdit(channelID, messageID, clip(text, discordMaxChars)); err == nil {
			return
		}
	}
	dg.send(channelID, text)
}

func (dg *DiscordGateway) Send(chatID string, text string) error {
	_, err := dg.Session.ChannelMessageSend(chatID, clip(text, discordMaxChars))
	return err
}

func (dg *DiscordGateway) Stop() error {
	close(dg.done)
	return dg.Session.Close()
}
