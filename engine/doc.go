// Package engine executes workflow graphs. It loads a workflow, sorts
// its nodes, and folds the run context strictly sequentially through
// the node executors, recording the outcome on an execution record.
//
// The engine performs a single execution pass. Run-level retries are
// the worker pool's concern: a transient node failure surfaces as an
// error from Execute and the task is redelivered; step checkpoints make
// the replay skip already-completed side effects. A non-retriable
// failure (or an exhausted retry budget) ends in Fail, which writes the
// terminal FAILED record keyed by the (event, workflow) pair.
//
// This package exists to break the import cycle: the root weave package
// defines Entity (imported by graph, execution, etc.) and so cannot
// import those packages back. The engine package sits above all
// subsystem packages and below the application layer.
package engine
