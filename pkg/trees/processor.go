package trees

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Job is the unit of work run for one node: typically a provider round trip
// plus delivery of the reply. The context is cancelled by node, branch, or
// tree cancellation; a cancelled job must return the context's error rather
// than swallow it.
type Job func(ctx context.Context, node *MessageNode) error

// ProcessorCallbacks are fired from the drain loop. All are optional. They
// run outside the tree mutex, so they may call back into the tree.
type ProcessorCallbacks struct {
	// QueueUpdate fires when a node was queued rather than started, so
	// front-ends can render queue positions.
	QueueUpdate func(tree *MessageTree)

	// NodeStarted fires when a node enters IN_PROGRESS.
	NodeStarted func(tree *MessageTree, nodeID string)

	// NodeCompleted fires after a job returns nil and the node is COMPLETED.
	NodeCompleted func(tree *MessageTree, nodeID string)

	// NodeError fires after a job returns an error. The handler owns the
	// ERROR transition (and any propagation to children); when absent the
	// processor marks the node itself.
	NodeError func(tree *MessageTree, nodeID string, err error)
}

// Processor drives the per-tree drain loops. It is the only component that
// starts jobs; a tree never has more than one loop, and a loop never runs
// two jobs at once, which together give per-tree FIFO execution.
type Processor struct {
	callbacks ProcessorCallbacks
	logger    *slog.Logger
	wg        sync.WaitGroup
}

// NewProcessor builds a processor with the given callbacks.
func NewProcessor(callbacks ProcessorCallbacks, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		callbacks: callbacks,
		logger:    logger.With("component", "trees.processor"),
	}
}

// EnqueueAndStart submits a node. When the tree is idle the node runs
// immediately on a fresh drain loop and the method reports false; otherwise
// the node joins the FIFO queue and the method reports true.
func (p *Processor) EnqueueAndStart(tree *MessageTree, nodeID string, job Job) (queued bool) {
	if tree.StartImmediately(nodeID) {
		p.wg.Add(1)
		go p.drain(tree, nodeID, job)
		return false
	}
	p.logger.Debug("node queued",
		"tree", tree.RootID(),
		"node", nodeID,
		"queue_len", tree.QueueLen(),
	)
	if p.callbacks.QueueUpdate != nil {
		p.callbacks.QueueUpdate(tree)
	}
	return true
}

// Wait blocks until every drain loop has exited. Intended for shutdown and
// tests; submitting work concurrently with Wait is a caller bug.
func (p *Processor) Wait() {
	p.wg.Wait()
}

// drain runs nodes until the queue is empty. The first node is already
// IN_PROGRESS when the loop starts.
func (p *Processor) drain(tree *MessageTree, firstNodeID string, job Job) {
	defer p.wg.Done()

	nodeID := firstNodeID
	for {
		p.runOne(tree, nodeID, job)

		next, ok := tree.DequeueNext()
		if !ok {
			tree.FinishProcessing()
			p.logger.Debug("tree drained", "tree", tree.RootID())
			return
		}
		nodeID = next
	}
}

func (p *Processor) runOne(tree *MessageTree, nodeID string, job Job) {
	node, ok := tree.Node(nodeID)
	if !ok {
		return
	}

	if p.callbacks.NodeStarted != nil {
		p.callbacks.NodeStarted(tree, nodeID)
	}

	ctx, cancel := context.WithCancel(context.Background())
	tree.SetCurrentCancel(cancel)

	err := p.invoke(ctx, node, job)

	tree.ClearCurrentTask(nodeID)
	cancel()

	if err != nil {
		p.logger.Warn("node job failed",
			"tree", tree.RootID(),
			"node", nodeID,
			"error", err,
		)
		if p.callbacks.NodeError != nil {
			p.callbacks.NodeError(tree, nodeID, err)
		} else {
			tree.UpdateState(nodeID, StateError, err.Error())
		}
		return
	}

	tree.UpdateState(nodeID, StateCompleted, "")
	if p.callbacks.NodeCompleted != nil {
		p.callbacks.NodeCompleted(tree, nodeID)
	}
}

// invoke shields the drain loop from a panicking job; one poisoned node
// must not kill the whole tree.
func (p *Processor) invoke(ctx context.Context, node *MessageNode, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panic: %v", r)
		}
	}()
	return job(ctx, node)
}
