package trees

import "time"

// NodeState is the lifecycle state of a conversation node.
type NodeState string

// Node lifecycle states. Transitions are monotone: PENDING to IN_PROGRESS
// to one of the terminal states; a PENDING node may also jump straight to
// ERROR on a tree-level cancel or parent failure.
const (
	StatePending    NodeState = "pending"
	StateInProgress NodeState = "in_progress"
	StateCompleted  NodeState = "completed"
	StateError      NodeState = "error"
)

// Stable error messages recorded on cancelled or orphaned nodes. Clients
// match on these strings, so they never change.
const (
	MsgCancelledByUser = "Cancelled by user"
	MsgStaleTask       = "Stale task cleaned up"
	MsgLostOnRestart   = "Lost during server restart"

	// MsgParentFailedPrefix precedes the parent's error message when a
	// failure propagates to pending children.
	MsgParentFailedPrefix = "Parent failed: "
)

// Terminal reports whether the state admits no further transitions.
func (s NodeState) Terminal() bool {
	return s == StateCompleted || s == StateError
}

// canTransition reports whether moving from s to next is legal.
func (s NodeState) canTransition(next NodeState) bool {
	switch s {
	case StatePending:
		return next == StateInProgress || next == StateError
	case StateInProgress:
		return next == StateCompleted || next == StateError
	default:
		return false
	}
}

// IncomingMessage is the platform-independent form of a user message
// entering the queue. The messaging front-ends build one per received
// message; the tree stores it so a job can be replayed after inspection.
type IncomingMessage struct {
	Platform  string    `json:"platform"`
	ChatID    string    `json:"chat_id"`
	UserID    string    `json:"user_id"`
	Username  string    `json:"username,omitempty"`
	MessageID string    `json:"message_id"`
	ReplyToID string    `json:"reply_to_id,omitempty"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// MessageNode is one message in a conversation tree. Parent and children
// links are by id; every traversal goes through the owning tree.
type MessageNode struct {
	NodeID          string          `json:"node_id"`
	Incoming        IncomingMessage `json:"incoming"`
	StatusMessageID string          `json:"status_message_id,omitempty"`
	State           NodeState       `json:"state"`
	ParentID        string          `json:"parent_id,omitempty"`
	ChildrenIDs     []string        `json:"children_ids,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty"`
	ErrorMessage    string          `json:"error_message,omitempty"`

	// ResponseText is the assistant's reply for a completed node. Later
	// nodes in the same branch replay it as conversation context.
	ResponseText string `json:"response_text,omitempty"`
}

func newNode(nodeID string, incoming IncomingMessage, statusMessageID, parentID string) *MessageNode {
	return &MessageNode{
		NodeID:          nodeID,
		Incoming:        incoming,
		StatusMessageID: statusMessageID,
		State:           StatePending,
		ParentID:        parentID,
		CreatedAt:       time.Now().UTC(),
	}
}

// clone returns a copy safe to hand out while the tree mutex is released.
func (n *MessageNode) clone() *MessageNode {
	out := *n
	out.ChildrenIDs = append([]string(nil), n.ChildrenIDs...)
	if n.CompletedAt != nil {
		t := *n.CompletedAt
		out.CompletedAt = &t
	}
	return &out
}
