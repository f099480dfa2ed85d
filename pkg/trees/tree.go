package trees

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MessageTree owns the nodes of one conversation thread and serializes all
// work on them. Every mutation happens under the tree's mutex; the mutex is
// never held across upstream I/O.
type MessageTree struct {
	mu sync.Mutex

	rootID        string
	nodes         map[string]*MessageNode
	queue         []string
	currentNodeID string
	cancelCurrent context.CancelFunc
	processing    bool
}

// NewTree creates a tree whose root is the given message, in state PENDING.
func NewTree(rootID string, incoming IncomingMessage, statusMessageID string) *MessageTree {
	t := &MessageTree{
		rootID: rootID,
		nodes:  map[string]*MessageNode{},
	}
	t.nodes[rootID] = newNode(rootID, incoming, statusMessageID, "")
	return t
}

// RootID returns the id of the tree's root node.
func (t *MessageTree) RootID() string {
	return t.rootID
}

// AddNode attaches a new PENDING node under an existing parent.
func (t *MessageTree) AddNode(nodeID string, incoming IncomingMessage, statusMessageID, parentID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.nodes[nodeID]; exists {
		return fmt.Errorf("node %s already in tree %s", nodeID, t.rootID)
	}
	parent, ok := t.nodes[parentID]
	if !ok {
		return fmt.Errorf("parent %s not in tree %s", parentID, t.rootID)
	}

	t.nodes[nodeID] = newNode(nodeID, incoming, statusMessageID, parentID)
	parent.ChildrenIDs = append(parent.ChildrenIDs, nodeID)
	return nil
}

// Node returns a copy of the node, safe to use without the tree mutex.
func (t *MessageTree) Node(nodeID string) (*MessageNode, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	node, ok := t.nodes[nodeID]
	if !ok {
		return nil, false
	}
	return node.clone(), true
}

// HasNode reports whether the id names a node of this tree.
func (t *MessageTree) HasNode(nodeID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.nodes[nodeID]
	return ok
}

// UpdateState applies a state transition, recording the error message and
// completion time where appropriate. Illegal transitions (including any
// transition out of a terminal state) are ignored and reported false, which
// makes repeated cancels harmless.
func (t *MessageTree) UpdateState(nodeID string, state NodeState, errorMessage string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	node, ok := t.nodes[nodeID]
	if !ok {
		return false
	}
	return t.setStateLocked(node, state, errorMessage)
}

func (t *MessageTree) setStateLocked(node *MessageNode, state NodeState, errorMessage string) bool {
	if !node.State.canTransition(state) {
		return false
	}
	node.State = state
	if state == StateError {
		node.ErrorMessage = errorMessage
	}
	if state.Terminal() {
		now := time.Now().UTC()
		node.CompletedAt = &now
	}
	return true
}

// SetResponse records the assistant's reply on a node so descendants can
// replay it as context. Reports false for unknown ids.
func (t *MessageTree) SetResponse(nodeID, text string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	node, ok := t.nodes[nodeID]
	if !ok {
		return false
	}
	node.ResponseText = text
	return true
}

// Path returns copies of the nodes from the root down to nodeID, inclusive.
// Unknown ids yield nil.
func (t *MessageTree) Path(nodeID string) []*MessageNode {
	t.mu.Lock()
	defer t.mu.Unlock()

	node, ok := t.nodes[nodeID]
	if !ok {
		return nil
	}
	var rev []*MessageNode
	for {
		rev = append(rev, node.clone())
		if node.ParentID == "" {
			break
		}
		parent, ok := t.nodes[node.ParentID]
		if !ok {
			break
		}
		node = parent
	}
	for i, j := 0, len(rev)-1; i < j; i, j = i+1, j-1 {
		rev[i], rev[j] = rev[j], rev[i]
	}
	return rev
}

// StartImmediately claims the tree for nodeID when it is idle: no drain
// loop running and nothing queued. On success the node is IN_PROGRESS and
// the caller must spawn the drain loop. Otherwise the node joins the queue
// and the method reports false.
func (t *MessageTree) StartImmediately(nodeID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	node, ok := t.nodes[nodeID]
	if !ok || node.State != StatePending {
		return false
	}
	if !t.processing && len(t.queue) == 0 {
		t.processing = true
		t.currentNodeID = nodeID
		t.setStateLocked(node, StateInProgress, "")
		return true
	}
	t.queue = append(t.queue, nodeID)
	return false
}

// DequeueNext pops the queue head, marks it IN_PROGRESS, and makes it the
// current node. Entries that are no longer PENDING (cancelled while queued)
// are skipped.
func (t *MessageTree) DequeueNext() (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for len(t.queue) > 0 {
		nodeID := t.queue[0]
		t.queue = t.queue[1:]
		node, ok := t.nodes[nodeID]
		if !ok || node.State != StatePending {
			continue
		}
		t.currentNodeID = nodeID
		t.setStateLocked(node, StateInProgress, "")
		return nodeID, true
	}
	return "", false
}

// QueueLen returns the number of queued node ids.
func (t *MessageTree) QueueLen() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.queue)
}

// QueuePosition returns the 1-based queue position of nodeID, or 0 when it
// is not queued.
func (t *MessageTree) QueuePosition(nodeID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, id := range t.queue {
		if id == nodeID {
			return i + 1
		}
	}
	return 0
}

// SetCurrentCancel installs the cancel function of the running job.
func (t *MessageTree) SetCurrentCancel(cancel context.CancelFunc) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cancelCurrent = cancel
}

// ClearCurrentTask drops the cancel function and current-node pointer after
// nodeID's job finishes, whatever its outcome. The clear only applies while
// nodeID is still the current node, so a job that returns late cannot wipe
// the handle of whatever is running now.
func (t *MessageTree) ClearCurrentTask(nodeID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.currentNodeID != nodeID {
		return false
	}
	t.cancelCurrent = nil
	t.currentNodeID = ""
	return true
}

// CancelCurrentTask cancels the running job, reporting whether one existed.
func (t *MessageTree) CancelCurrentTask() bool {
	t.mu.Lock()
	cancel := t.cancelCurrent
	t.cancelCurrent = nil
	t.mu.Unlock()

	if cancel == nil {
		return false
	}
	cancel()
	return true
}

// CurrentNodeID returns the id of the IN_PROGRESS node, or "".
func (t *MessageTree) CurrentNodeID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.currentNodeID
}

// IsCurrentNode reports whether nodeID is the node being processed.
func (t *MessageTree) IsCurrentNode(nodeID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.currentNodeID != "" && t.currentNodeID == nodeID
}

// Processing reports whether a drain loop owns the tree.
func (t *MessageTree) Processing() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.processing
}

// FinishProcessing releases the tree. Only the drain loop that owns the
// tree may call this while it is alive; stale-state cleanup after a restart
// is the one other caller, when no loops exist yet.
func (t *MessageTree) FinishProcessing() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.processing = false
	t.currentNodeID = ""
	t.cancelCurrent = nil
}

// RemoveFromQueue deletes nodeID from the pending queue, reporting whether
// it was present.
func (t *MessageTree) RemoveFromQueue(nodeID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, id := range t.queue {
		if id == nodeID {
			t.queue = append(t.queue[:i], t.queue[i+1:]...)
			return true
		}
	}
	return false
}

// DrainQueueAndMarkCancelled empties the queue, marking every drained node
// ERROR with the user-cancel message, and returns the drained ids in order.
func (t *MessageTree) DrainQueueAndMarkCancelled() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	drained := t.queue
	t.queue = nil
	for _, nodeID := range drained {
		if node, ok := t.nodes[nodeID]; ok {
			t.setStateLocked(node, StateError, MsgCancelledByUser)
		}
	}
	return drained
}

// MarkAllActiveError forces every non-terminal node to ERROR with the given
// message, returning the affected ids. Used by tree-level cancel and by
// stale-state cleanup after a restart.
func (t *MessageTree) MarkAllActiveError(message string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var marked []string
	for nodeID, node := range t.nodes {
		if node.State.Terminal() {
			continue
		}
		t.setStateLocked(node, StateError, message)
		marked = append(marked, nodeID)
	}
	return marked
}

// Descendants returns the subtree rooted at nodeID in topological order,
// starting with nodeID itself. Unknown ids yield nil.
func (t *MessageTree) Descendants(nodeID string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.descendantsLocked(nodeID)
}

func (t *MessageTree) descendantsLocked(nodeID string) []string {
	node, ok := t.nodes[nodeID]
	if !ok {
		return nil
	}
	out := []string{nodeID}
	for _, child := range node.ChildrenIDs {
		out = append(out, t.descendantsLocked(child)...)
	}
	return out
}

// RemoveBranch detaches the subtree rooted at branchID: the branch root is
// unlinked from its parent, every node of the subtree leaves the node map
// and the queue, and copies of the removed nodes are returned in
// topological order. Removing the tree root is the caller's business; this
// method refuses it.
func (t *MessageTree) RemoveBranch(branchID string) ([]*MessageNode, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if branchID == t.rootID {
		return nil, fmt.Errorf("branch %s is the tree root", branchID)
	}
	branch, ok := t.nodes[branchID]
	if !ok {
		return nil, fmt.Errorf("branch %s not in tree %s", branchID, t.rootID)
	}

	if parent, ok := t.nodes[branch.ParentID]; ok {
		for i, id := range parent.ChildrenIDs {
			if id == branchID {
				parent.ChildrenIDs = append(parent.ChildrenIDs[:i], parent.ChildrenIDs[i+1:]...)
				break
			}
		}
	}

	ids := t.descendantsLocked(branchID)
	removed := make([]*MessageNode, 0, len(ids))
	inBranch := make(map[string]bool, len(ids))
	for _, id := range ids {
		inBranch[id] = true
		if node, ok := t.nodes[id]; ok {
			removed = append(removed, node.clone())
			delete(t.nodes, id)
		}
	}

	kept := t.queue[:0]
	for _, id := range t.queue {
		if !inBranch[id] {
			kept = append(kept, id)
		}
	}
	t.queue = kept

	return removed, nil
}

// FindNodeByStatusMessage resolves a status-message id back to the node it
// belongs to, so replies to the relay's own placeholder thread correctly.
func (t *MessageTree) FindNodeByStatusMessage(statusMessageID string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for nodeID, node := range t.nodes {
		if node.StatusMessageID != "" && node.StatusMessageID == statusMessageID {
			return nodeID, true
		}
	}
	return "", false
}

// NodeIDs returns every node id in the tree.
func (t *MessageTree) NodeIDs() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	ids := make([]string, 0, len(t.nodes))
	for id := range t.nodes {
		ids = append(ids, id)
	}
	return ids
}

// TreeSnapshot is the serialized form of a tree. Cancel functions and the
// processing flag are runtime-only and never persisted; any PENDING or
// IN_PROGRESS node in a loaded snapshot is stale by definition.
type TreeSnapshot struct {
	RootID        string                  `json:"root_id"`
	Nodes         map[string]*MessageNode `json:"nodes"`
	Queue         []string                `json:"queue"`
	CurrentNodeID string                  `json:"current_node_id,omitempty"`
}

// Snapshot captures the tree's persistent state.
func (t *MessageTree) Snapshot() TreeSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	nodes := make(map[string]*MessageNode, len(t.nodes))
	for id, node := range t.nodes {
		nodes[id] = node.clone()
	}
	return TreeSnapshot{
		RootID:        t.rootID,
		Nodes:         nodes,
		Queue:         append([]string(nil), t.queue...),
		CurrentNodeID: t.currentNodeID,
	}
}

// RestoreTree rebuilds a tree from a snapshot. The caller is expected to
// run stale-node cleanup afterwards.
func RestoreTree(snap TreeSnapshot) *MessageTree {
	nodes := make(map[string]*MessageNode, len(snap.Nodes))
	for id, node := range snap.Nodes {
		nodes[id] = node.clone()
	}
	return &MessageTree{
		rootID:        snap.RootID,
		nodes:         nodes,
		queue:         append([]string(nil), snap.Queue...),
		currentNodeID: snap.CurrentNodeID,
	}
}
