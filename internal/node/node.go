// Package node defines the vertices of the execution graph and their
// run-state bookkeeping. Planning creates nodes; only the executor mutates
// their state, through atomics so workers never need a shared lock.
package node

import (
	"sync"
	"sync/atomic"

	"github.com/vk/flowmake/internal/job"
)

// Kind distinguishes job nodes from pre-existing leaf files.
type Kind int

const (
	// JobNode is a unit of work producing one or more output files.
	JobNode Kind = iota
	// FileNode is an on-disk file with no producing rule, a graph leaf.
	FileNode
)

// State is the execution state of a node.
type State int32

const (
	// Pending indicates the node is waiting for its dependencies.
	Pending State = iota
	// Running indicates a worker is currently executing the node.
	Running
	// Done indicates the node's command completed successfully.
	Done
	// UpToDate indicates the node was skipped because its outputs are fresh.
	UpToDate
	// Failed indicates the node failed, or was skipped after an upstream failure.
	Failed
)

// Node is a single vertex in the execution graph: either one concrete job or
// a leaf input file.
type Node struct {
	id   string
	Kind Kind

	// Job is the work description. It is nil for FileNode leaves.
	Job *job.Job
	// Path is the file path of a FileNode leaf. Empty for job nodes.
	Path string

	// Error stores the failure that put the node in the Failed state.
	Error error

	// depCount counts unmet dependencies; a node is ready at zero.
	depCount atomic.Int32
	// consumerCount counts pending jobs that read this node's outputs, used
	// to decide when temporary outputs can be removed.
	consumerCount atomic.Int32
	state         atomic.Int32
	cleanupOnce   sync.Once
}

// NewJobNode creates a node wrapping a concrete job.
func NewJobNode(j *job.Job) *Node {
	return &Node{id: j.ID(), Kind: JobNode, Job: j}
}

// NewFileNode creates a leaf node for an existing source file.
func NewFileNode(path string) *Node {
	return &Node{id: "file:" + path, Kind: FileNode, Path: path}
}

// ID returns the node's unique identifier.
func (n *Node) ID() string { return n.id }

// SetDepCount initializes the unmet-dependency counter.
func (n *Node) SetDepCount(count int32) { n.depCount.Store(count) }

// DepCount returns the current number of unmet dependencies.
func (n *Node) DepCount() int32 { return n.depCount.Load() }

// DecrementDepCount marks one dependency satisfied, returning the new count.
func (n *Node) DecrementDepCount() int32 { return n.depCount.Add(-1) }

// SetConsumerCount initializes the pending-consumer counter.
func (n *Node) SetConsumerCount(count int32) { n.consumerCount.Store(count) }

// DecrementConsumerCount marks one consumer finished, returning the new count.
func (n *Node) DecrementConsumerCount() int32 { return n.consumerCount.Add(-1) }

// SetState atomically sets the node's execution state.
func (n *Node) SetState(s State) { n.state.Store(int32(s)) }

// GetState atomically reads the node's execution state.
func (n *Node) GetState() State { return State(n.state.Load()) }

// TryStart claims the node for execution, transitioning Pending to Running.
// It fails when the node was already claimed or skipped, which can happen
// when a node reaches the ready pool after an upstream failure skipped it.
func (n *Node) TryStart() bool {
	return n.state.CompareAndSwap(int32(Pending), int32(Running))
}

// TryFinish transitions Pending directly to a terminal state, for nodes that
// complete without running (leaf files, up-to-date jobs).
func (n *Node) TryFinish(s State) bool {
	return n.state.CompareAndSwap(int32(Pending), int32(s))
}

// Skip marks a still-pending node failed with err and decrements the run
// WaitGroup. It returns false when the node was already claimed or skipped,
// so every node settles its WaitGroup slot exactly once.
func (n *Node) Skip(err error, wg *sync.WaitGroup) bool {
	if !n.state.CompareAndSwap(int32(Pending), int32(Failed)) {
		return false
	}
	n.Error = err
	wg.Done()
	return true
}

// Cleanup runs f exactly once, guarding temp-output removal.
func (n *Node) Cleanup(f func()) { n.cleanupOnce.Do(f) }
