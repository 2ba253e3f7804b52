package api

type (
	// Args represents a map of named variable values
	Args map[Name]any

	// Name is a string identifier for variables
	Name string
)
