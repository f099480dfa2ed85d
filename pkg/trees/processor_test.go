package trees

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestProcessorRunsIdleTreeImmediately(t *testing.T) {
	tree := NewTree("R", incoming("root"), "")
	proc := NewProcessor(ProcessorCallbacks{}, nil)

	ran := false
	queued := proc.EnqueueAndStart(tree, "R", func(ctx context.Context, node *MessageNode) error {
		ran = true
		if node.NodeID != "R" {
			t.Errorf("job node = %q, want R", node.NodeID)
		}
		return nil
	})
	if queued {
		t.Error("EnqueueAndStart() = queued on an idle tree")
	}
	proc.Wait()

	if !ran {
		t.Fatal("job never ran")
	}
	node, _ := tree.Node("R")
	if node.State != StateCompleted {
		t.Errorf("R state = %q, want completed", node.State)
	}
	if tree.Processing() {
		t.Error("Processing() = true after drain")
	}
}

func TestProcessorFIFOOrder(t *testing.T) {
	tree := buildTree(t)
	proc := NewProcessor(ProcessorCallbacks{}, nil)

	release := make(chan struct{})
	var mu sync.Mutex
	var order []string

	job := func(ctx context.Context, node *MessageNode) error {
		if node.NodeID == "R" {
			<-release
		}
		mu.Lock()
		order = append(order, node.NodeID)
		mu.Unlock()
		return nil
	}

	if queued := proc.EnqueueAndStart(tree, "R", job); queued {
		t.Fatal("R queued on idle tree")
	}
	for _, id := range []string{"A", "B", "C"} {
		if queued := proc.EnqueueAndStart(tree, id, job); !queued {
			t.Fatalf("%s ran immediately while R holds the tree", id)
		}
	}
	close(release)
	proc.Wait()

	want := []string{"R", "A", "B", "C"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestProcessorSingleInProgress(t *testing.T) {
	tree := buildTree(t)
	proc := NewProcessor(ProcessorCallbacks{}, nil)

	job := func(ctx context.Context, node *MessageNode) error {
		inProgress := 0
		for _, id := range tree.NodeIDs() {
			if n, ok := tree.Node(id); ok && n.State == StateInProgress {
				inProgress++
			}
		}
		if inProgress != 1 {
			t.Errorf("%d nodes IN_PROGRESS during %s, want exactly 1", inProgress, node.NodeID)
		}
		return nil
	}

	proc.EnqueueAndStart(tree, "R", job)
	proc.EnqueueAndStart(tree, "A", job)
	proc.EnqueueAndStart(tree, "C", job)
	proc.Wait()
}

func TestProcessorJobErrorMarksNode(t *testing.T) {
	tree := buildTree(t)
	proc := NewProcessor(ProcessorCallbacks{}, nil)

	proc.EnqueueAndStart(tree, "R", func(ctx context.Context, node *MessageNode) error {
		return errors.New("upstream exploded")
	})
	proc.Wait()

	node, _ := tree.Node("R")
	if node.State != StateError || node.ErrorMessage != "upstream exploded" {
		t.Errorf("R = %q/%q", node.State, node.ErrorMessage)
	}
}

func TestProcessorErrorDoesNotStopQueue(t *testing.T) {
	tree := buildTree(t)
	proc := NewProcessor(ProcessorCallbacks{}, nil)

	job := func(ctx context.Context, node *MessageNode) error {
		if node.NodeID == "R" {
			return errors.New("boom")
		}
		return nil
	}
	proc.EnqueueAndStart(tree, "R", job)
	proc.EnqueueAndStart(tree, "A", job)
	proc.Wait()

	if node, _ := tree.Node("A"); node.State != StateCompleted {
		t.Errorf("A state = %q, queue must continue past a failed node", node.State)
	}
}

func TestProcessorRecoversPanic(t *testing.T) {
	tree := buildTree(t)
	proc := NewProcessor(ProcessorCallbacks{}, nil)

	job := func(ctx context.Context, node *MessageNode) error {
		if node.NodeID == "R" {
			panic("poisoned node")
		}
		return nil
	}
	proc.EnqueueAndStart(tree, "R", job)
	proc.EnqueueAndStart(tree, "A", job)
	proc.Wait()

	r, _ := tree.Node("R")
	if r.State != StateError {
		t.Errorf("R state = %q, want error after panic", r.State)
	}
	a, _ := tree.Node("A")
	if a.State != StateCompleted {
		t.Errorf("A state = %q, want completed after recovered panic", a.State)
	}
}

func TestProcessorCancellationSurfacesError(t *testing.T) {
	tree := NewTree("R", incoming("root"), "")

	var gotErr error
	var cbTree *MessageTree
	proc := NewProcessor(ProcessorCallbacks{
		NodeError: func(tr *MessageTree, nodeID string, err error) {
			cbTree, gotErr = tr, err
			tr.UpdateState(nodeID, StateError, MsgCancelledByUser)
		},
	}, nil)

	started := make(chan struct{})
	proc.EnqueueAndStart(tree, "R", func(ctx context.Context, node *MessageNode) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	})

	<-started
	if !tree.CancelCurrentTask() {
		t.Fatal("CancelCurrentTask() = false with a running job")
	}
	proc.Wait()

	if !errors.Is(gotErr, context.Canceled) {
		t.Errorf("NodeError err = %v, want context.Canceled", gotErr)
	}
	if cbTree != tree {
		t.Error("NodeError fired with the wrong tree")
	}
	node, _ := tree.Node("R")
	if node.State != StateError || node.ErrorMessage != MsgCancelledByUser {
		t.Errorf("R = %q/%q", node.State, node.ErrorMessage)
	}
}

func TestProcessorQueueUpdateCallback(t *testing.T) {
	tree := buildTree(t)

	updates := make(chan int, 4)
	proc := NewProcessor(ProcessorCallbacks{
		QueueUpdate: func(tr *MessageTree) {
			updates <- tr.QueueLen()
		},
	}, nil)

	release := make(chan struct{})
	job := func(ctx context.Context, node *MessageNode) error {
		if node.NodeID == "R" {
			<-release
		}
		return nil
	}

	proc.EnqueueAndStart(tree, "R", job)
	proc.EnqueueAndStart(tree, "A", job)
	proc.EnqueueAndStart(tree, "C", job)

	if got := <-updates; got != 1 {
		t.Errorf("first QueueUpdate len = %d, want 1", got)
	}
	select {
	case got := <-updates:
		if got != 2 {
			t.Errorf("second QueueUpdate len = %d, want 2", got)
		}
	case <-time.After(time.Second):
		t.Fatal("second QueueUpdate never fired")
	}

	close(release)
	proc.Wait()
}
