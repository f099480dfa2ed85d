// Package trees models reply-threaded conversations as trees with strictly
// serial per-tree processing.
//
// A MessageTree owns its nodes and a FIFO queue; at most one node per tree
// is ever IN_PROGRESS. The Repository indexes nodes (and the relay's own
// status messages) back to their root. The Processor runs one drain loop
// per busy tree; the Manager layers cancellation policy on top: individual
// nodes, whole branches, or the entire tree, each leaving affected nodes in
// a terminal ERROR state with a stable message.
//
// State survives restarts through best-effort snapshots (JSON file or
// SQLite); anything PENDING or IN_PROGRESS in a loaded snapshot is failed
// as lost, since tasks do not outlive the process.
package trees
