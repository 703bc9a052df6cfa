package redis

// Redis key naming conventions. All keys are prefixed with "weave:" to
// avoid collisions.

const keyPrefix = "weave:"

// ── Workflow keys ──

// workflowKey returns the key for a workflow entity: weave:workflow:{id}
func workflowKey(id string) string { return keyPrefix + "workflow:" + id }

// workflowIDsKey is the Set tracking all workflow IDs for enumeration.
const workflowIDsKey = keyPrefix + "workflow_ids"

// ── Execution keys ──

// executionKey returns the key for an execution entity: weave:execution:{id}
func executionKey(id string) string { return keyPrefix + "execution:" + id }

// executionIDsKey is the Set tracking all execution IDs for enumeration.
const executionIDsKey = keyPrefix + "execution_ids"

// executionByEventKey is the Hash mapping "{eventID}:{workflowID}" to
// the execution ID; HSetNX on it enforces run-level idempotency.
const executionByEventKey = keyPrefix + "execution_by_event"

// ── Checkpoint keys ──

// checkpointKey returns the key for a step checkpoint:
// weave:checkpoint:{executionID}:{step}
func checkpointKey(executionID, stepName string) string {
	return keyPrefix + "checkpoint:" + executionID + ":" + stepName
}

// checkpointIndexKey returns the Set key tracking an execution's
// checkpointed step names.
func checkpointIndexKey(executionID string) string {
	return keyPrefix + "checkpoint_idx:" + executionID
}

// ── Task keys ──

// taskKey returns the key for a task entity: weave:task:{id}
func taskKey(id string) string { return keyPrefix + "task:" + id }

// taskIDsKey is the Set tracking all task IDs for enumeration.
const taskIDsKey = keyPrefix + "task_ids"

// queueKey returns the Sorted Set key for a queue: weave:queue:{name}
func queueKey(name string) string { return keyPrefix + "queue:" + name }

// queueNamesKey is the Set tracking every queue name seen, so a
// dequeue over all queues knows where to look.
const queueNamesKey = keyPrefix + "queues"

// ── Credential keys ──

// credentialKey returns the key for a credential entity: weave:credential:{id}
func credentialKey(id string) string { return keyPrefix + "credential:" + id }

// credentialIDsKey is the Set tracking all credential IDs for enumeration.
const credentialIDsKey = keyPrefix + "credential_ids"

// ── Schedule keys ──

// scheduleKey returns the key for a schedule entry: weave:schedule:{id}
func scheduleKey(id string) string { return keyPrefix + "schedule:" + id }

// scheduleIDsKey is the Set tracking all schedule entry IDs.
const scheduleIDsKey = keyPrefix + "schedule_ids"

// scheduleNamesKey maps entry names to IDs for duplicate detection.
const scheduleNamesKey = keyPrefix + "schedule_names"

// scheduleLockKey returns the firing-lock key for a schedule entry.
// The lock value is the holding worker's ID; expiry is the lock TTL.
func scheduleLockKey(id string) string { return keyPrefix + "schedule_lock:" + id }
