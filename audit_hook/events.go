package audithook

// Audit event actions. Each constant corresponds to one ext lifecycle hook
// and becomes the Action field of the audit event.
const (
	ActionTaskEnqueued       = "task.enqueued"
	ActionTaskRetrying       = "task.retrying"
	ActionExecutionStarted   = "execution.started"
	ActionExecutionCompleted = "execution.completed"
	ActionExecutionFailed    = "execution.failed"
	ActionNodeCompleted      = "execution.node_completed"
	ActionNodeFailed         = "execution.node_failed"
	ActionScheduleFired      = "schedule.fired"
)

// Audit event categories group related actions.
const (
	CategoryTask      = "weave.task"
	CategoryExecution = "weave.execution"
	CategorySchedule  = "weave.schedule"
)

// Resource types used as the Resource field in audit events.
const (
	ResourceTask      = "task"
	ResourceExecution = "execution"
	ResourceSchedule  = "schedule_entry"
)

// AllActions returns every action this extension can emit.
func AllActions() []string {
	return []string{
		ActionTaskEnqueued,
		ActionTaskRetrying,
		ActionExecutionStarted,
		ActionExecutionCompleted,
		ActionExecutionFailed,
		ActionNodeCompleted,
		ActionNodeFailed,
		ActionScheduleFired,
	}
}
