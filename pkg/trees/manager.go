package trees

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"lumen-hq/relay/pkg/telemetry"
)

// Hooks are the front-end notifications the manager forwards out of the
// drain loop. All are optional.
type Hooks struct {
	// QueueUpdate fires when a node joined a queue instead of starting.
	QueueUpdate func(tree *MessageTree)

	// NodeStarted fires when a node enters IN_PROGRESS.
	NodeStarted func(tree *MessageTree, nodeID string)

	// NodeCompleted fires when a node's job succeeded.
	NodeCompleted func(tree *MessageTree, nodeID string)

	// NodeFailed fires after a node was marked ERROR (including
	// cancellation). The node's recorded error message is already final.
	NodeFailed func(tree *MessageTree, nodeID string, err error)
}

// Manager is the facade over trees, repository, and processor. All
// node/branch/tree cancellation policy lives here.
type Manager struct {
	repo    *Repository
	proc    *Processor
	metrics *telemetry.Collector
	logger  *slog.Logger
	hooks   Hooks
}

// NewManager wires a repository and processor together. metrics may be nil.
func NewManager(metrics *telemetry.Collector, logger *slog.Logger, hooks Hooks) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		repo:    NewRepository(),
		metrics: metrics,
		logger:  logger.With("component", "trees.manager"),
		hooks:   hooks,
	}
	m.proc = NewProcessor(ProcessorCallbacks{
		QueueUpdate: hooks.QueueUpdate,
		NodeStarted: func(tree *MessageTree, nodeID string) {
			m.publishGauges()
			if hooks.NodeStarted != nil {
				hooks.NodeStarted(tree, nodeID)
			}
		},
		NodeCompleted: func(tree *MessageTree, nodeID string) {
			m.publishGauges()
			if hooks.NodeCompleted != nil {
				hooks.NodeCompleted(tree, nodeID)
			}
		},
		NodeError: m.handleJobError,
	}, logger)
	return m
}

// Repository exposes the underlying index for read paths.
func (m *Manager) Repository() *Repository {
	return m.repo
}

// Wait blocks until all drain loops are idle. Used at shutdown.
func (m *Manager) Wait() {
	m.proc.Wait()
}

// CreateTree registers a new conversation rooted at a fresh top-level
// message.
func (m *Manager) CreateTree(rootID string, incoming IncomingMessage, statusMessageID string) (*MessageTree, error) {
	tree := NewTree(rootID, incoming, statusMessageID)
	if err := m.repo.RegisterTree(tree); err != nil {
		return nil, err
	}
	m.logger.Info("conversation tree created", "root", rootID, "platform", incoming.Platform)
	return tree, nil
}

// AddChild attaches a reply under the node the user replied to. replyToID
// may be a node id or a status-message id.
func (m *Manager) AddChild(replyToID, nodeID string, incoming IncomingMessage, statusMessageID string) (*MessageTree, error) {
	parentID, tree, ok := m.repo.ResolveParentNodeID(replyToID)
	if !ok {
		return nil, fmt.Errorf("no conversation found for message %s", replyToID)
	}
	if err := tree.AddNode(nodeID, incoming, statusMessageID, parentID); err != nil {
		return nil, err
	}
	m.repo.RegisterNode(nodeID, statusMessageID, tree.RootID())
	return tree, nil
}

// Submit hands a node to the tree's serial processor. Reports whether the
// node was queued behind earlier work.
func (m *Manager) Submit(tree *MessageTree, nodeID string, job Job) (queued bool) {
	queued = m.proc.EnqueueAndStart(tree, nodeID, job)
	m.publishGauges()
	return queued
}

// handleJobError is the processor's error callback: it owns the ERROR
// transition for a failed or cancelled job and the propagation to pending
// children.
func (m *Manager) handleJobError(tree *MessageTree, nodeID string, err error) {
	message := err.Error()
	if errors.Is(err, context.Canceled) {
		message = MsgCancelledByUser
	}
	m.markNodeError(tree, nodeID, message, true)
	m.publishGauges()
	if m.hooks.NodeFailed != nil {
		m.hooks.NodeFailed(tree, nodeID, err)
	}
}

// CancelTree cancels everything in a tree: the running task, the queue, and
// any leftover non-terminal node. The processing flag stays with the drain
// loop; it is released once the interrupted job has unwound, so a reply
// submitted right after the cancel queues behind it instead of racing a
// second loop.
func (m *Manager) CancelTree(rootID string) error {
	tree, ok := m.repo.TreeByRoot(rootID)
	if !ok {
		return fmt.Errorf("tree %s not found", rootID)
	}

	// Drain first so the loop has nothing left to dequeue once the running
	// job is interrupted.
	tree.DrainQueueAndMarkCancelled()
	current := tree.CurrentNodeID()
	if current != "" {
		// Mark before cancelling so the drain loop's error path sees a
		// terminal node and does not overwrite the message.
		tree.UpdateState(current, StateError, MsgCancelledByUser)
	}
	tree.CancelCurrentTask()

	// Anything still live was neither running nor queued; it is stale.
	stale := tree.MarkAllActiveError(MsgStaleTask)

	m.logger.Info("tree cancelled", "root", rootID, "stale", len(stale))
	m.publishGauges()
	return nil
}

// CancelNode cancels one node: a running node's job is interrupted and its
// pending descendants fail with a parent-failed message, a queued node is
// removed from the queue. Terminal nodes are left alone.
func (m *Manager) CancelNode(nodeID string) error {
	tree, ok := m.repo.TreeFor(nodeID)
	if !ok {
		return fmt.Errorf("node %s not found", nodeID)
	}
	node, ok := tree.Node(nodeID)
	if !ok {
		return fmt.Errorf("node %s not found", nodeID)
	}
	if node.State.Terminal() {
		return nil
	}

	if tree.IsCurrentNode(nodeID) {
		// Mark and propagate here, before the cancel: the job's error path
		// sees a terminal node and leaves descendants alone.
		m.markNodeError(tree, nodeID, MsgCancelledByUser, true)
		tree.CancelCurrentTask()
	} else {
		tree.RemoveFromQueue(nodeID)
		tree.UpdateState(nodeID, StateError, MsgCancelledByUser)
	}
	m.publishGauges()
	return nil
}

// CancelBranch cancels a node and every descendant that has not already
// finished.
func (m *Manager) CancelBranch(branchID string) error {
	tree, ok := m.repo.TreeFor(branchID)
	if !ok {
		return fmt.Errorf("node %s not found", branchID)
	}

	// Queued descendants go first; interrupting the running one last keeps
	// the drain loop from picking up a sibling we are about to remove.
	running := ""
	for _, id := range tree.Descendants(branchID) {
		node, ok := tree.Node(id)
		if !ok || node.State.Terminal() {
			continue
		}
		if tree.IsCurrentNode(id) {
			running = id
			continue
		}
		tree.RemoveFromQueue(id)
		tree.UpdateState(id, StateError, MsgCancelledByUser)
	}
	if running != "" {
		tree.UpdateState(running, StateError, MsgCancelledByUser)
		tree.CancelCurrentTask()
	}
	m.publishGauges()
	return nil
}

// RemoveBranch detaches a subtree and unregisters it. Removing the root
// removes the whole tree. Returns the removed nodes in topological order,
// the owning root id, and whether the entire tree went away.
func (m *Manager) RemoveBranch(branchID string) (removed []*MessageNode, rootID string, removedTree bool, err error) {
	tree, ok := m.repo.TreeFor(branchID)
	if !ok {
		return nil, "", false, fmt.Errorf("node %s not found", branchID)
	}
	rootID = tree.RootID()

	if branchID == rootID {
		if err := m.CancelTree(rootID); err != nil {
			return nil, rootID, false, err
		}
		for _, id := range tree.Descendants(rootID) {
			if node, ok := tree.Node(id); ok {
				removed = append(removed, node)
			}
		}
		m.repo.RemoveTree(rootID)
		m.publishGauges()
		return removed, rootID, true, nil
	}

	if err := m.CancelBranch(branchID); err != nil {
		return nil, rootID, false, err
	}
	removed, err = tree.RemoveBranch(branchID)
	if err != nil {
		return nil, rootID, false, err
	}
	m.repo.UnregisterNodes(removed)
	m.publishGauges()
	return removed, rootID, false, nil
}

// MarkNodeError moves a node to ERROR and, when propagate is set, fails
// every still-pending descendant with a parent-failed message. A node that
// is already terminal keeps its state and nothing propagates.
func (m *Manager) MarkNodeError(nodeID, message string, propagate bool) error {
	tree, ok := m.repo.TreeFor(nodeID)
	if !ok {
		return fmt.Errorf("node %s not found", nodeID)
	}
	m.markNodeError(tree, nodeID, message, propagate)
	m.publishGauges()
	return nil
}

func (m *Manager) markNodeError(tree *MessageTree, nodeID, message string, propagate bool) {
	// A node that is already terminal was failed by a cancel path that did
	// its own propagation; failing pending descendants again here would hit
	// replies submitted after that cancel.
	if !tree.UpdateState(nodeID, StateError, message) {
		return
	}
	if !propagate {
		return
	}
	childMessage := MsgParentFailedPrefix + message
	for _, id := range tree.Descendants(nodeID) {
		if id == nodeID {
			continue
		}
		node, ok := tree.Node(id)
		if !ok || node.State != StatePending {
			continue
		}
		tree.RemoveFromQueue(id)
		tree.UpdateState(id, StateError, childMessage)
	}
}

// CleanupStaleNodes fails every non-terminal node in every tree. Run once
// after loading persisted state: no task survives a restart.
func (m *Manager) CleanupStaleNodes() int {
	total := 0
	for _, tree := range m.repo.Trees() {
		total += len(tree.MarkAllActiveError(MsgLostOnRestart))
		tree.FinishProcessing()
	}
	if total > 0 {
		m.logger.Info("stale nodes cleaned up", "count", total)
	}
	m.publishGauges()
	return total
}

// Snapshot captures every tree and the node index for persistence.
func (m *Manager) Snapshot() *Snapshot {
	snap := &Snapshot{
		Trees:      map[string]TreeSnapshot{},
		NodeToTree: m.repo.IndexSnapshot(),
	}
	for _, tree := range m.repo.Trees() {
		snap.Trees[tree.RootID()] = tree.Snapshot()
	}
	return snap
}

// Restore replaces all state from a snapshot and immediately fails the
// stale nodes it carried.
func (m *Manager) Restore(snap *Snapshot) {
	if snap == nil {
		return
	}
	restored := make([]*MessageTree, 0, len(snap.Trees))
	for _, treeSnap := range snap.Trees {
		restored = append(restored, RestoreTree(treeSnap))
	}
	m.repo.RestoreState(restored, snap.NodeToTree)
	m.CleanupStaleNodes()
}

func (m *Manager) publishGauges() {
	if m.metrics == nil {
		return
	}
	depth, active := 0, 0
	for _, tree := range m.repo.Trees() {
		depth += tree.QueueLen()
		if tree.Processing() {
			active++
		}
	}
	m.metrics.SetQueueDepth(depth)
	m.metrics.SetActiveTasks(active)
}
