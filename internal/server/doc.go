// Package server implements the HTTP API of the workflow service
//
// This package provides REST endpoints for submitting, inspecting,
// resuming and clearing sessions, plus a WebSocket that streams the live
// events of one session
package server
