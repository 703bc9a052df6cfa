// Package ext defines the extension system for Weave.
//
// Extensions are notified of lifecycle events and can react to them —
// recording metrics, streaming status to clients, writing audit logs.
// Each lifecycle hook is a separate interface so extensions opt in only
// to the events they care about.
//
// # Implementing an Extension
//
//	type MyExtension struct{}
//
//	func (e *MyExtension) Name() string { return "my-extension" }
//
//	// Opt in to specific hooks by implementing their interfaces.
//	func (e *MyExtension) OnExecutionCompleted(ctx context.Context, exec *execution.Execution, elapsed time.Duration) error {
//	    log.Printf("execution %s completed in %s", exec.ID, elapsed)
//	    return nil
//	}
//
// # Execution Lifecycle Hooks
//
//   - [ExecutionStarted] — the engine began running a workflow
//   - [NodeCompleted] — a node's durable step finished successfully
//   - [NodeFailed] — a node's durable step failed
//   - [ExecutionCompleted] — the run finished successfully
//   - [ExecutionFailed] — the run failed terminally
//
// # Task Lifecycle Hooks
//
//   - [TaskEnqueued] — a run request was accepted into the queue
//   - [TaskRetrying] — a run failed but will be redelivered
//
// # Other Hooks
//
//   - [ScheduleFired] — a schedule entry triggered a workflow
//   - [Shutdown] — the engine is shutting down gracefully
//
// The [Registry] fans out each event to all registered extensions that
// implement the corresponding hook interface.
package ext
