// Package audithook is a weave extension that bridges lifecycle events
// to an audit trail backend.
//
// The extension implements every ext lifecycle hook and translates each
// event into a structured [AuditEvent] delivered through a caller-supplied
// [Recorder]. The Recorder interface is deliberately tiny so any audit
// backend can be bridged with a [RecorderFunc] adapter.
//
// Audit failures never propagate: a Recorder error is logged and the
// workflow pipeline continues.
package audithook
