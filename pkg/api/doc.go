// Package api defines the core data types shared by the workflow runner
//
// This package contains workflow definitions, run configuration, step and
// run results, persisted run records, run events, and HTTP messages
package api
