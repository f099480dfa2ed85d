package messaging

import (
	"context"

	"lumen-hq/relay/pkg/trees"
)

// IncomingHandler receives every user message a platform delivers.
type IncomingHandler func(ctx context.Context, msg trees.IncomingMessage)

// Platform is a chat front-end the service can receive messages from and
// post status updates to. All ids are strings; adapters convert to their
// native id types at the edge.
type Platform interface {
	// Name identifies the platform ("telegram", "discord"). It matches
	// IncomingMessage.Platform on every message the adapter delivers.
	Name() string

	// Start connects and delivers incoming user messages to handler until
	// ctx is cancelled or Stop is called.
	Start(ctx context.Context, handler IncomingHandler) error

	// Stop disconnects. Safe to call more than once.
	Stop() error

	// SendMessage posts text to a chat, optionally as a reply, and returns
	// the new message's id.
	SendMessage(ctx context.Context, chatID, replyToID, text string) (string, error)

	// EditMessage replaces the text of a previously sent message.
	EditMessage(ctx context.Context, chatID, messageID, text string) error

	// DeleteMessage removes a previously sent message.
	DeleteMessage(ctx context.Context, chatID, messageID string) error
}
