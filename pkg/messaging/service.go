package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"lumen-hq/relay/pkg/api"
	"lumen-hq/relay/pkg/providers"
	"lumen-hq/relay/pkg/telemetry"
	"lumen-hq/relay/pkg/trees"
)

// Status texts shown to users while their message moves through the queue.
const (
	statusQueuedNew  = "Thinking..."
	statusProcessing = "Processing..."

	// defaultMaxTokens bounds replies requested on behalf of chat users.
	defaultMaxTokens = 4096

	// statusEditTimeout bounds the platform call made from a drain-loop
	// callback.
	statusEditTimeout = 30 * time.Second
)

// Service bridges chat platforms and conversation trees. Each incoming
// message becomes a tree node with a status message the service keeps
// editing as the node is queued, started, and finished.
type Service struct {
	registry *providers.Registry
	manager  *trees.Manager
	logger   *slog.Logger

	mu        sync.Mutex
	platforms map[string]Platform
	stops     []context.CancelFunc
}

// NewService builds the service and its conversation manager. metrics may
// be nil.
func NewService(registry *providers.Registry, metrics *telemetry.Collector, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		registry:  registry,
		logger:    logger.With("component", "messaging.service"),
		platforms: map[string]Platform{},
	}
	s.manager = trees.NewManager(metrics, logger, trees.Hooks{
		QueueUpdate:   s.onQueueUpdate,
		NodeStarted:   s.onNodeStarted,
		NodeCompleted: s.onNodeCompleted,
		NodeFailed:    s.onNodeFailed,
	})
	return s
}

// Manager exposes the conversation manager for persistence wiring.
func (s *Service) Manager() *trees.Manager {
	return s.manager
}

// RegisterPlatform adds a platform. Must be called before Start.
func (s *Service) RegisterPlatform(p Platform) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.platforms[p.Name()] = p
}

// Start launches every registered platform. Platform run loops live on
// their own goroutines; Start returns immediately.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, platform := range s.platforms {
		runCtx, cancel := context.WithCancel(ctx)
		s.stops = append(s.stops, cancel)
		go func(name string, platform Platform) {
			if err := platform.Start(runCtx, s.HandleMessage); err != nil {
				s.logger.Error("platform stopped with error", "platform", name, "error", err)
			}
		}(name, platform)
		s.logger.Info("platform started", "platform", name)
	}
}

// Stop shuts down every platform and waits for in-flight jobs to settle.
func (s *Service) Stop() {
	s.mu.Lock()
	for _, cancel := range s.stops {
		cancel()
	}
	s.stops = nil
	platforms := make([]Platform, 0, len(s.platforms))
	for _, p := range s.platforms {
		platforms = append(platforms, p)
	}
	s.mu.Unlock()

	for _, p := range platforms {
		if err := p.Stop(); err != nil {
			s.logger.Warn("platform stop failed", "platform", p.Name(), "error", err)
		}
	}
	s.manager.Wait()
}

// HandleMessage is the IncomingHandler for every platform: it posts a
// status placeholder, attaches the message to a conversation tree, and
// submits the provider job.
func (s *Service) HandleMessage(ctx context.Context, msg trees.IncomingMessage) {
	platform, ok := s.platformFor(msg.Platform)
	if !ok {
		s.logger.Error("message from unregistered platform", "platform", msg.Platform)
		return
	}

	statusID, err := platform.SendMessage(ctx, msg.ChatID, msg.MessageID,
		s.renderStatus(msg.Platform, statusQueuedNew))
	if err != nil {
		s.logger.Error("status placeholder send failed",
			"platform", msg.Platform, "chat", msg.ChatID, "error", err)
		return
	}

	nodeID := uuid.NewString()
	var tree *trees.MessageTree
	if msg.ReplyToID != "" {
		tree, err = s.manager.AddChild(msg.ReplyToID, nodeID, msg, statusID)
		if err != nil {
			// Reply to an untracked message starts a fresh conversation.
			s.logger.Debug("reply parent unknown, starting new tree",
				"reply_to", msg.ReplyToID)
			tree, err = s.manager.CreateTree(nodeID, msg, statusID)
		}
	} else {
		tree, err = s.manager.CreateTree(nodeID, msg, statusID)
	}
	if err != nil {
		s.logger.Error("attaching message failed", "error", err)
		s.editStatus(msg.Platform, msg.ChatID, statusID,
			s.renderStatus(msg.Platform, "Error: could not start the conversation"))
		return
	}

	s.manager.Submit(tree, nodeID, func(jobCtx context.Context, node *trees.MessageNode) error {
		return s.runNode(jobCtx, tree, node)
	})
}

// runNode replays the branch as conversation history, calls the default
// provider, and records the reply on the node.
func (s *Service) runNode(ctx context.Context, tree *trees.MessageTree, node *trees.MessageNode) error {
	adapter := s.registry.Default()

	req := &api.MessagesRequest{
		Model:     adapter.Config().DefaultModel,
		MaxTokens: defaultMaxTokens,
	}
	for _, ancestor := range tree.Path(node.NodeID) {
		req.Messages = append(req.Messages, api.Message{
			Role:    api.RoleUser,
			Content: api.Text(ancestor.Incoming.Text),
		})
		if ancestor.NodeID != node.NodeID && ancestor.ResponseText != "" {
			req.Messages = append(req.Messages, api.Message{
				Role:    api.RoleAssistant,
				Content: api.Text(ancestor.ResponseText),
			})
		}
	}

	resp, err := adapter.Complete(ctx, req)
	if err != nil {
		return err
	}

	text := responseText(resp)
	if text == "" {
		return fmt.Errorf("provider returned an empty reply")
	}
	tree.SetResponse(node.NodeID, text)
	return nil
}

// responseText concatenates the text blocks of a reply.
func responseText(resp *api.MessagesResponse) string {
	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return strings.TrimSpace(sb.String())
}

func (s *Service) onQueueUpdate(tree *trees.MessageTree) {
	for _, id := range tree.NodeIDs() {
		pos := tree.QueuePosition(id)
		if pos == 0 {
			continue
		}
		node, ok := tree.Node(id)
		if !ok || node.StatusMessageID == "" {
			continue
		}
		text := fmt.Sprintf("Queued (position %d)...", pos)
		s.editStatus(node.Incoming.Platform, node.Incoming.ChatID, node.StatusMessageID,
			s.renderStatus(node.Incoming.Platform, text))
	}
}

func (s *Service) onNodeStarted(tree *trees.MessageTree, nodeID string) {
	node, ok := tree.Node(nodeID)
	if !ok || node.StatusMessageID == "" {
		return
	}
	s.editStatus(node.Incoming.Platform, node.Incoming.ChatID, node.StatusMessageID,
		s.renderStatus(node.Incoming.Platform, statusProcessing))
}

func (s *Service) onNodeCompleted(tree *trees.MessageTree, nodeID string) {
	node, ok := tree.Node(nodeID)
	if !ok || node.StatusMessageID == "" {
		return
	}
	text := node.ResponseText
	if text == "" {
		text = "Done."
	}
	s.editStatus(node.Incoming.Platform, node.Incoming.ChatID, node.StatusMessageID,
		s.renderResponse(node.Incoming.Platform, text))
}

func (s *Service) onNodeFailed(tree *trees.MessageTree, nodeID string, err error) {
	node, ok := tree.Node(nodeID)
	if !ok || node.StatusMessageID == "" {
		return
	}
	// The recorded message is final; the raw error may carry transport
	// detail the user does not need.
	text := "Error: " + node.ErrorMessage
	s.editStatus(node.Incoming.Platform, node.Incoming.ChatID, node.StatusMessageID,
		s.renderStatus(node.Incoming.Platform, text))
}

// editStatus edits one status message with its own timeout. Edit failures
// are logged and swallowed; the conversation state is already correct.
func (s *Service) editStatus(platformName, chatID, messageID, text string) {
	platform, ok := s.platformFor(platformName)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), statusEditTimeout)
	defer cancel()
	if err := platform.EditMessage(ctx, chatID, messageID, text); err != nil {
		s.logger.Warn("status edit failed",
			"platform", platformName, "chat", chatID, "message", messageID, "error", err)
	}
}

// renderStatus formats service-generated status text for a platform.
func (s *Service) renderStatus(platformName, text string) string {
	if platformName == PlatformTelegram {
		return EscapeMDV2(text)
	}
	return text
}

// renderResponse formats a model reply for a platform.
func (s *Service) renderResponse(platformName, text string) string {
	if platformName == PlatformTelegram {
		return RenderMDV2(text)
	}
	return RenderDiscord(text)
}

func (s *Service) platformFor(name string) (Platform, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.platforms[name]
	return p, ok
}
