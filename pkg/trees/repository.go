package trees

import (
	"fmt"
	"sync"
)

// Repository indexes every live tree by root id and every node id (plus the
// root's status-message id) back to its root. It owns only the maps; trees
// own their nodes.
type Repository struct {
	mu         sync.RWMutex
	trees      map[string]*MessageTree
	nodeToTree map[string]string
}

// NewRepository returns an empty repository.
func NewRepository() *Repository {
	return &Repository{
		trees:      map[string]*MessageTree{},
		nodeToTree: map[string]string{},
	}
}

// RegisterTree adds a new tree and indexes its root. The root's status
// message is indexed too so replies to the relay's placeholder resolve.
func (r *Repository) RegisterTree(tree *MessageTree) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rootID := tree.RootID()
	if _, exists := r.trees[rootID]; exists {
		return fmt.Errorf("tree %s already registered", rootID)
	}
	r.trees[rootID] = tree
	r.nodeToTree[rootID] = rootID
	if root, ok := tree.Node(rootID); ok && root.StatusMessageID != "" {
		r.nodeToTree[root.StatusMessageID] = rootID
	}
	return nil
}

// RegisterNode indexes a node id (and its status-message id, when present)
// under its tree's root.
func (r *Repository) RegisterNode(nodeID, statusMessageID, rootID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nodeToTree[nodeID] = rootID
	if statusMessageID != "" {
		r.nodeToTree[statusMessageID] = rootID
	}
}

// TreeByRoot returns the tree with the given root id.
func (r *Repository) TreeByRoot(rootID string) (*MessageTree, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tree, ok := r.trees[rootID]
	return tree, ok
}

// TreeFor resolves any indexed id (node or status message) to its tree.
func (r *Repository) TreeFor(anyID string) (*MessageTree, bool) {
	r.mu.RLock()
	rootID, ok := r.nodeToTree[anyID]
	if !ok {
		r.mu.RUnlock()
		return nil, false
	}
	tree, ok := r.trees[rootID]
	r.mu.RUnlock()
	return tree, ok
}

// ResolveParentNodeID maps an id a user replied to onto a real node id:
// either the id itself, or the node whose status message carries it.
func (r *Repository) ResolveParentNodeID(anyID string) (nodeID string, tree *MessageTree, ok bool) {
	tree, ok = r.TreeFor(anyID)
	if !ok {
		return "", nil, false
	}
	if tree.HasNode(anyID) {
		return anyID, tree, true
	}
	if nodeID, found := tree.FindNodeByStatusMessage(anyID); found {
		return nodeID, tree, true
	}
	return "", nil, false
}

// RemoveTree drops a tree and every index entry pointing at it.
func (r *Repository) RemoveTree(rootID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.trees[rootID]; !ok {
		return
	}
	delete(r.trees, rootID)
	for id, root := range r.nodeToTree {
		if root == rootID {
			delete(r.nodeToTree, id)
		}
	}
}

// UnregisterNodes drops index entries for detached nodes and their status
// messages.
func (r *Repository) UnregisterNodes(nodes []*MessageNode) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, node := range nodes {
		delete(r.nodeToTree, node.NodeID)
		if node.StatusMessageID != "" {
			delete(r.nodeToTree, node.StatusMessageID)
		}
	}
}

// Trees returns every registered tree.
func (r *Repository) Trees() []*MessageTree {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*MessageTree, 0, len(r.trees))
	for _, tree := range r.trees {
		out = append(out, tree)
	}
	return out
}

// IndexSnapshot copies the node-to-root index for persistence.
func (r *Repository) IndexSnapshot() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]string, len(r.nodeToTree))
	for id, root := range r.nodeToTree {
		out[id] = root
	}
	return out
}

// RestoreState replaces the repository contents with deserialized trees and
// their index. Used once at startup, before any traffic.
func (r *Repository) RestoreState(restored []*MessageTree, index map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.trees = make(map[string]*MessageTree, len(restored))
	for _, tree := range restored {
		r.trees[tree.RootID()] = tree
	}
	r.nodeToTree = make(map[string]string, len(index))
	for id, root := range index {
		r.nodeToTree[id] = root
	}
}

// TreeCount returns the number of registered trees.
func (r *Repository) TreeCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.trees)
}
