// Package process supervises a single interactive toolchain process.
//
// A Supervisor launches one child at a time from a RunSpec, streams its
// stdout and stderr into a LogSink, writes commands to its stdin, and tears
// it down deterministically.
//
// # Features
//
//   - Executable resolution through an injectable Resolver: ordered
//     candidate directories, then a PATH lookup, then CommandNotFoundError
//   - Environment inherited from the host with tool directories prepended
//     to PATH and optional dotenv files merged in
//   - Three pipes per child; two read loops that block on the pipe and
//     exit on EOF, pipe closure or cancellation
//   - Process-group kill so tool-spawned children do not outlive a run
//   - Hot reload and hot restart for tools that accept them
//
// # State Machine
//
//	Idle --Start--> Starting --spawned--> Running --Stop--> Stopping --> Idle
//	Starting --resolve/spawn error--> Failed
//	Running --nonzero exit or signal--> Failed
//	Running --exit 0--> Idle
//	Failed --Start--> Starting
//
// Stop is a no-op outside Running, which also makes a second concurrent Stop
// a no-op. Stop writes the RunSpec's QuitToken when one is set, waits up to
// the grace period for the child to exit, then force-kills it, closes the
// pipes and ends Idle even if the kill fails.
//
// # Thread Safety
//
// All Supervisor methods are safe for concurrent use. Transitions are
// delivered to Subscribe channels in order; a slow subscriber drops its
// oldest pending transitions instead of blocking the supervisor.
package process
