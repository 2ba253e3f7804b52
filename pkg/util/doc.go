// Package util provides common utility functions and data structures
//
// This package includes a generic set, JSON path lookup over arbitrary
// values, and list coercion used by the variable resolver
package util
