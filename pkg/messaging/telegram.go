package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"lumen-hq/relay/pkg/trees"
)

// PlatformTelegram is the Platform name of the Telegram adapter.
const PlatformTelegram = "telegram"

// TelegramPlatform delivers Telegram messages to the service and posts
// status messages in MarkdownV2.
type TelegramPlatform struct {
	bot    *bot.Bot
	logger *slog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	handler IncomingHandler
}

// NewTelegramPlatform builds the adapter. The token is validated on Start,
// not here.
func NewTelegramPlatform(token string, logger *slog.Logger) (*TelegramPlatform, error) {
	if logger == nil {
		logger = slog.Default()
	}
	p := &TelegramPlatform{logger: logger.With("component", "messaging.telegram")}

	b, err := bot.New(token,
		bot.WithDefaultHandler(p.handleUpdate),
		bot.WithSkipGetMe(),
	)
	if err != nil {
		return nil, fmt.Errorf("creating telegram bot: %w", err)
	}
	p.bot = b
	return p, nil
}

func (p *TelegramPlatform) Name() string {
	return PlatformTelegram
}

// Start begins long polling and blocks until the context is cancelled or
// Stop is called.
func (p *TelegramPlatform) Start(ctx context.Context, handler IncomingHandler) error {
	ctx, cancel := context.WithCancel(ctx)
	p.mu.Lock()
	p.cancel = cancel
	p.handler = handler
	p.mu.Unlock()

	p.logger.Info("telegram polling started")
	p.bot.Start(ctx)
	p.logger.Info("telegram polling stopped")
	return nil
}

func (p *TelegramPlatform) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	return nil
}

// handleUpdate drops anything that is not a plain user text message.
// Updates arriving before Start installed the handler are ignored.
func (p *TelegramPlatform) handleUpdate(ctx context.Context, b *bot.Bot, update *models.Update) {
	msg := update.Message
	if msg == nil || msg.From == nil || msg.From.IsBot || msg.Text == "" {
		return
	}

	p.mu.Lock()
	handler := p.handler
	p.mu.Unlock()
	if handler == nil {
		return
	}

	incoming := trees.IncomingMessage{
		Platform:  PlatformTelegram,
		ChatID:    strconv.FormatInt(msg.Chat.ID, 10),
		UserID:    strconv.FormatInt(msg.From.ID, 10),
		Username:  msg.From.Username,
		MessageID: strconv.Itoa(msg.ID),
		Text:      msg.Text,
		Timestamp: time.Unix(int64(msg.Date), 0).UTC(),
	}
	if msg.ReplyToMessage != nil {
		incoming.ReplyToID = strconv.Itoa(msg.ReplyToMessage.ID)
	}
	handler(ctx, incoming)
}

// SendMessage posts MarkdownV2 text. When Telegram rejects the formatting
// the send is retried as plain text so the user still sees the content.
func (p *TelegramPlatform) SendMessage(ctx context.Context, chatID, replyToID, text string) (string, error) {
	chat, err := parseTelegramChatID(chatID)
	if err != nil {
		return "", err
	}

	params := &bot.SendMessageParams{
		ChatID:    chat,
		Text:      text,
		ParseMode: models.ParseModeMarkdown,
	}
	if replyToID != "" {
		replyID, err := strconv.Atoi(replyToID)
		if err != nil {
			return "", fmt.Errorf("bad telegram message id %q: %w", replyToID, err)
		}
		params.ReplyParameters = &models.ReplyParameters{MessageID: replyID}
	}

	sent, err := p.bot.SendMessage(ctx, params)
	if err != nil {
		p.logger.Warn("markdown send rejected, retrying plain", "error", err)
		params.ParseMode = ""
		sent, err = p.bot.SendMessage(ctx, params)
		if err != nil {
			return "", fmt.Errorf("telegram send: %w", err)
		}
	}
	return strconv.Itoa(sent.ID), nil
}

func (p *TelegramPlatform) EditMessage(ctx context.Context, chatID, messageID, text string) error {
	chat, err := parseTelegramChatID(chatID)
	if err != nil {
		return err
	}
	msgID, err := strconv.Atoi(messageID)
	if err != nil {
		return fmt.Errorf("bad telegram message id %q: %w", messageID, err)
	}

	params := &bot.EditMessageTextParams{
		ChatID:    chat,
		MessageID: msgID,
		Text:      text,
		ParseMode: models.ParseModeMarkdown,
	}
	if _, err := p.bot.EditMessageText(ctx, params); err != nil {
		p.logger.Warn("markdown edit rejected, retrying plain", "error", err)
		params.ParseMode = ""
		if _, err := p.bot.EditMessageText(ctx, params); err != nil {
			return fmt.Errorf("telegram edit: %w", err)
		}
	}
	return nil
}

func (p *TelegramPlatform) DeleteMessage(ctx context.Context, chatID, messageID string) error {
	chat, err := parseTelegramChatID(chatID)
	if err != nil {
		return err
	}
	msgID, err := strconv.Atoi(messageID)
	if err != nil {
		return fmt.Errorf("bad telegram message id %q: %w", messageID, err)
	}
	if _, err := p.bot.DeleteMessage(ctx, &bot.DeleteMessageParams{ChatID: chat, MessageID: msgID}); err != nil {
		return fmt.Errorf("telegram delete: %w", err)
	}
	return nil
}

func parseTelegramChatID(chatID string) (int64, error) {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("bad telegram chat id %q: %w", chatID, err)
	}
	return id, nil
}
