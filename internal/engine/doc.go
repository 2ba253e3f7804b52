// Package engine executes workflow definitions against an automation target
//
// A run acquires a target, optionally authenticates a session, walks the
// definition's step tree (sequential steps, conditional branches, and loops)
// and reduces the recorded step results into a single RunResult that is
// persisted and published to observers
package engine
