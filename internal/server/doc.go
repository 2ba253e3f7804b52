// Package server implements the HTTP surface of the workflow runner
//
// It exposes endpoints for triggering runs, reading persisted run records
// and workflow definitions, fetching failure screenshots, and streaming run
// events over WebSocket
package server
