// Package runner is the root of the workflow execution engine module
package runner

const (
	Name    = "workflow-runner"
	Version = "0.1.0"
)
