// Package event provides in-process messaging for devpilot.
//
// Two mechanisms are offered:
//
//   - Broadcaster[T] is a typed fan-out used by the supervisor and the log
//     classifier. Publishing never blocks; a slow subscriber loses its oldest
//     pending values instead of stalling the producer.
//   - Bus routes type-erased events by hierarchical topic to handlers. The
//     application coordinator forwards component notifications onto the bus
//     so views and watchers can react without referencing the components.
//
// # Event Topics
//
//	supervisor.state.changed   - a supervisor state transition
//	log.record.appended        - a record entered the log buffer
//	log.buffer.cleared         - the log buffer was emptied
//	watch.file.changed         - a watched source file was saved
//
// # Delivery
//
// Publish is asynchronous and ordered: a single worker drains the queue, so
// handlers see events in publish order. PublishSync delivers in the caller's
// goroutine. Handler panics are recovered and reported through the
// WithErrorHandler option.
//
// # Thread Safety
//
// All exported types are safe for concurrent use.
package event
