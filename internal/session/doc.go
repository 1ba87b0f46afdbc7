// Package session implements the research session engine.
//
// A session is a multi-turn, tool-augmented research conversation. The
// package is organized around a small set of collaborators:
//
//   - Store: authoritative repository of sessions. All mutations go
//     through it; it enforces the status state machine, keeps history
//     timestamps monotonic, and owns the per-session recipient lists.
//     Sessions are sharded so unrelated sessions never contend.
//
//   - Runner: the research loop driver, one cooperative loop per
//     session. Each iteration reloads the session, checks termination,
//     compacts history when it grows past the token threshold, runs one
//     LLM turn, and dispatches the requested tools sequentially. At
//     most one driver per session is active at a time.
//
//   - Service: the external surface used by the HTTP server and the
//     CLI. It creates sessions, feeds user input, and exposes
//     interrupt/terminate controls.
//
// # Status state machine
//
//	pending ──start──► running
//	running ──needs-compact──► compacting ──► running
//	running ──final-answer──► awaiting_input ──user input──► running
//	running ──timeout──► timeout
//	running ──interrupt──► interrupted
//	running ──fatal error──► error
//	any non-terminal ──terminate──► terminated
//
// Illegal transitions are rejected by the store; the driver treats a
// rejection as "someone else already terminated us" and exits cleanly.
//
// # Failure semantics
//
// LLM, store, and configuration errors end the loop and settle the
// session on the error status. Tool failures are data, not control
// flow: they are appended to history as system entries and the next
// turn lets the model react to them. Compaction failures merely skip
// compaction for one iteration.
package session
