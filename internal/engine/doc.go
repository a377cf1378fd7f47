// Package engine implements the workflow execution engine
//
// The Engine walks a compiled stage graph for one session at a time,
// merging each stage's partial update into the session state, persisting
// it, and publishing progress events. A traversal halts when a stage asks
// for human input, and Resume merges answers and continues from the
// paused stage
package engine
