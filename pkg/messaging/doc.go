// Package messaging connects chat platforms to conversation trees.
//
// A Platform adapter (Telegram, Discord) turns native updates into
// trees.IncomingMessage values and posts status messages back. The Service
// owns a trees.Manager: every user message gets a status placeholder and a
// tree node, replies branch the conversation at the replied-to node, and
// the node's provider job replays the branch as chat history. Status
// messages are edited in place as the node is queued, started, and
// finished, so the placeholder ends up holding the model's reply.
//
// Markdown handling is per platform: Telegram requires MarkdownV2 escaping
// with separate rules for prose, code entities, and link URLs; Discord
// renders standard markdown natively but caps messages at 2000 characters,
// so long replies are split at newline boundaries.
package messaging
