// Package weave provides a durable execution engine for node-based
// workflow graphs. A workflow is a directed graph of typed nodes
// (triggers and actions); each run threads a single accumulating
// context through the nodes in dependency order, executing node-type
// specific logic inside replay-safe durable steps and recording the
// run's lifecycle as an Execution.
//
// Weave is designed as a library, not a service. Configure a store,
// register node executors, and trigger workflows:
//
//	eng := engine.New(st, reg, engine.WithLogger(logger))
//	ing := trigger.NewIngress(st, trigger.WithRunner(eng))
//	eventID, err := ing.Trigger(ctx, workflowID, initialData)
//
// # Architecture
//
// Weave follows a composable store pattern where each subsystem
// (graph, execution, step, credential, task, schedule) defines its own
// store interface. A single backend (memory, redis, bun, postgres,
// mongo) implements all of them.
//
// All entity IDs use TypeID — type-prefixed, K-sortable, UUIDv7-based
// identifiers. Node IDs inside a graph are caller-supplied strings.
package weave
