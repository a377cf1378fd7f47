// Package api defines the state and wire types shared by the workflow engine
//
// This package contains the per-session workflow state, stage results,
// partial updates, streamed events, and the HTTP request/response shapes
package api
