package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bwmarrin/discordgo"

	"lumen-hq/relay/pkg/trees"
)

// PlatformDiscord is the Platform name of the Discord adapter.
const PlatformDiscord = "discord"

// DiscordPlatform delivers Discord messages to the service and posts status
// messages. Text longer than DiscordMessageLimit is split across several
// messages; the returned id is always the first chunk's, which is the one
// later edits target.
type DiscordPlatform struct {
	session *discordgo.Session
	logger  *slog.Logger

	mu      sync.Mutex
	open    bool
	handler IncomingHandler
}

// NewDiscordPlatform builds the adapter. The gateway connection is opened
// on Start.
func NewDiscordPlatform(token string, logger *slog.Logger) (*DiscordPlatform, error) {
	if logger == nil {
		logger = slog.Default()
	}
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("creating discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentMessageContent

	p := &DiscordPlatform{session: session, logger: logger.With("component", "messaging.discord")}
	session.AddHandler(p.handleMessageCreate)
	return p, nil
}

func (p *DiscordPlatform) Name() string {
	return PlatformDiscord
}

// Start opens the gateway connection and blocks until the context is
// cancelled or Stop is called.
func (p *DiscordPlatform) Start(ctx context.Context, handler IncomingHandler) error {
	p.mu.Lock()
	p.handler = handler
	p.mu.Unlock()

	if err := p.session.Open(); err != nil {
		return fmt.Errorf("opening discord gateway: %w", err)
	}
	p.mu.Lock()
	p.open = true
	p.mu.Unlock()
	p.logger.Info("discord gateway connected")

	<-ctx.Done()
	return p.Stop()
}

func (p *DiscordPlatform) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.open {
		return nil
	}
	p.open = false
	if err := p.session.Close(); err != nil {
		return fmt.Errorf("closing discord gateway: %w", err)
	}
	p.logger.Info("discord gateway closed")
	return nil
}

func (p *DiscordPlatform) handleMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot || m.Content == "" {
		return
	}

	p.mu.Lock()
	handler := p.handler
	p.mu.Unlock()
	if handler == nil {
		return
	}

	incoming := trees.IncomingMessage{
		Platform:  PlatformDiscord,
		ChatID:    m.ChannelID,
		UserID:    m.Author.ID,
		Username:  m.Author.Username,
		MessageID: m.ID,
		Text:      m.Content,
		Timestamp: m.Timestamp.UTC(),
	}
	if m.ReferencedMessage != nil {
		incoming.ReplyToID = m.ReferencedMessage.ID
	}
	handler(context.Background(), incoming)
}

func (p *DiscordPlatform) SendMessage(ctx context.Context, chatID, replyToID, text string) (string, error) {
	chunks := SplitMessage(text, DiscordMessageLimit)

	var first *discordgo.Message
	var err error
	if replyToID != "" {
		ref := &discordgo.MessageReference{MessageID: replyToID, ChannelID: chatID}
		first, err = p.session.ChannelMessageSendReply(chatID, chunks[0], ref, discordgo.WithContext(ctx))
	} else {
		first, err = p.session.ChannelMessageSend(chatID, chunks[0], discordgo.WithContext(ctx))
	}
	if err != nil {
		return "", fmt.Errorf("discord send: %w", err)
	}

	for _, chunk := range chunks[1:] {
		if _, err := p.session.ChannelMessageSend(chatID, chunk, discordgo.WithContext(ctx)); err != nil {
			return first.ID, fmt.Errorf("discord send continuation: %w", err)
		}
	}
	return first.ID, nil
}

// EditMessage replaces messageID with the first chunk of text; overflow is
// posted as fresh messages after it.
func (p *DiscordPlatform) EditMessage(ctx context.Context, chatID, messageID, text string) error {
	chunks := SplitMessage(text, DiscordMessageLimit)

	if _, err := p.session.ChannelMessageEdit(chatID, messageID, chunks[0], discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("discord edit: %w", err)
	}
	for _, chunk := range chunks[1:] {
		if _, err := p.session.ChannelMessageSend(chatID, chunk, discordgo.WithContext(ctx)); err != nil {
			return fmt.Errorf("discord send continuation: %w", err)
		}
	}
	return nil
}

func (p *DiscordPlatform) DeleteMessage(ctx context.Context, chatID, messageID string) error {
	if err := p.session.ChannelMessageDelete(chatID, messageID, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("discord delete: %w", err)
	}
	return nil
}
