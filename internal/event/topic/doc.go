// Package topic provides hierarchical topics for the event bus.
//
// Topics use dot-separated segments such as "supervisor.state.changed".
// Subscription patterns may use "*" to match exactly one segment and "**"
// to match zero or more segments:
//
//	supervisor.*       matches supervisor.started, not supervisor.state.changed
//	log.**             matches log, log.record.appended, log.buffer.cleared
//	*.state.changed    matches supervisor.state.changed
package topic
