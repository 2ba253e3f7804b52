package api

// Metadata contains additional context recorded alongside step results
type Metadata map[string]any

const (
	MetaLoopIndex  = "loop_index"
	MetaLoopVar    = "loop_variable"
	MetaLoopCount  = "loop_count"
	MetaRule       = "rule"
	MetaRuleResult = "rule_result"
	MetaTarget     = "target"
	MetaTimeout    = "timeout_ms"
)
