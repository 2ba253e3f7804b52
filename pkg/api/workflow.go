package api

import (
	"errors"
	"fmt"
	"strings"

	"github.com/richvergo/subtract-sub005/pkg/util"
)

type (
	// ActionKind identifies what a step does against the automation target
	ActionKind string

	// RuleLanguage identifies how a conditional rule is evaluated
	RuleLanguage string

	// WorkflowDefinition is the immutable, declarative description of an
	// automation sequence
	WorkflowDefinition struct {
		Login     *LoginRequirement `json:"login,omitempty" yaml:"login,omitempty"`
		ID        WorkflowID        `json:"id" yaml:"id"`
		Name      string            `json:"name,omitempty" yaml:"name,omitempty"`
		Steps     []*Step           `json:"steps" yaml:"steps"`
		Variables []*VariableSpec   `json:"variables,omitempty" yaml:"variables,omitempty"`
		Settings  Settings          `json:"settings" yaml:"settings"`
	}

	// Step is a tagged variant: the Kind determines which of the remaining
	// fields are meaningful. Conditional steps carry a Rule and Then/Else
	// branches, loop steps carry a LoopSpec
	Step struct {
		Rule     *Rule      `json:"rule,omitempty" yaml:"rule,omitempty"`
		Loop     *LoopSpec  `json:"loop,omitempty" yaml:"loop,omitempty"`
		ID       StepID     `json:"id" yaml:"id"`
		Kind     ActionKind `json:"kind" yaml:"kind"`
		Target   string     `json:"target,omitempty" yaml:"target,omitempty"`
		Value    string     `json:"value,omitempty" yaml:"value,omitempty"`
		Capture  Name       `json:"capture,omitempty" yaml:"capture,omitempty"`
		Then     []*Step    `json:"then,omitempty" yaml:"then,omitempty"`
		Else     []*Step    `json:"else,omitempty" yaml:"else,omitempty"`
		Timeout  int64      `json:"timeout,omitempty" yaml:"timeout,omitempty"`
		Optional bool       `json:"optional,omitempty" yaml:"optional,omitempty"`
	}

	// Rule is a boolean condition evaluated against the run's variables.
	// Compare rules use Variable, Operator and Value; script rules use Script
	Rule struct {
		Value    any          `json:"value,omitempty" yaml:"value,omitempty"`
		Language RuleLanguage `json:"language,omitempty" yaml:"language,omitempty"`
		Script   string       `json:"script,omitempty" yaml:"script,omitempty"`
		Variable Name         `json:"variable,omitempty" yaml:"variable,omitempty"`
		Operator string       `json:"operator,omitempty" yaml:"operator,omitempty"`
	}

	// LoopSpec names a list-typed variable to iterate and the variable each
	// element is bound to while the body runs
	LoopSpec struct {
		Source Name    `json:"source" yaml:"source"`
		As     Name    `json:"as" yaml:"as"`
		Body   []*Step `json:"body" yaml:"body"`
	}

	// VariableSpec declares a workflow variable. Static variables carry a
	// Value; dynamic variables are captured from the output of Source
	VariableSpec struct {
		Value   any    `json:"value,omitempty" yaml:"value,omitempty"`
		Name    Name   `json:"name" yaml:"name"`
		Source  StepID `json:"source,omitempty" yaml:"source,omitempty"`
		Dynamic bool   `json:"dynamic,omitempty" yaml:"dynamic,omitempty"`
	}

	// Settings are the workflow-level execution settings
	Settings struct {
		Timeout           int64 `json:"timeout,omitempty" yaml:"timeout,omitempty"`
		RetryAttempts     int   `json:"retry_attempts,omitempty" yaml:"retry_attempts,omitempty"`
		ScreenshotOnError bool  `json:"screenshot_on_error,omitempty" yaml:"screenshot_on_error,omitempty"`
		Headless          bool  `json:"headless,omitempty" yaml:"headless,omitempty"`
	}

	// LoginRequirement describes how to establish an authenticated session
	// on the automation target before any workflow step runs
	LoginRequirement struct {
		URL              string `json:"url" yaml:"url"`
		CredentialsRef   string `json:"credentials_ref" yaml:"credentials_ref"`
		UsernameSelector string `json:"username_selector,omitempty" yaml:"username_selector,omitempty"`
		PasswordSelector string `json:"password_selector,omitempty" yaml:"password_selector,omitempty"`
		SubmitSelector   string `json:"submit_selector,omitempty" yaml:"submit_selector,omitempty"`
		SuccessMarker    string `json:"success_marker,omitempty" yaml:"success_marker,omitempty"`
	}
)

const (
	ActionNavigate    ActionKind = "navigate"
	ActionClick       ActionKind = "click"
	ActionType        ActionKind = "type"
	ActionWait        ActionKind = "wait"
	ActionExtract     ActionKind = "extract"
	ActionConditional ActionKind = "conditional"
	ActionLoop        ActionKind = "loop"

	// ActionLoopEnter and ActionLoopExit only appear in step results
	ActionLoopEnter ActionKind = "loop_enter"
	ActionLoopExit  ActionKind = "loop_exit"

	RuleLangCompare RuleLanguage = "compare"
	RuleLangExpr    RuleLanguage = "expr"
	RuleLangLua     RuleLanguage = "lua"
	RuleLangAle     RuleLanguage = "ale"

	DefaultUsernameSelector = `input[name="username"]`
	DefaultPasswordSelector = `input[type="password"]`
	DefaultSubmitSelector   = `button[type="submit"]`
)

const (
	Second int64 = 1000
	Minute       = Second * 60
)

var (
	ErrWorkflowIDEmpty      = errors.New("workflow ID empty")
	ErrWorkflowNoSteps      = errors.New("workflow has no steps")
	ErrStepIDEmpty          = errors.New("step ID empty")
	ErrStepIDDuplicate      = errors.New("duplicate step ID")
	ErrInvalidActionKind    = errors.New("invalid action kind")
	ErrStepTargetRequired   = errors.New("step target required")
	ErrWaitTargetOrValue    = errors.New("wait step requires target or value")
	ErrRuleRequired         = errors.New("conditional step requires a rule")
	ErrLoopRequired         = errors.New("loop step requires a loop spec")
	ErrLoopSourceEmpty      = errors.New("loop source empty")
	ErrLoopVariableEmpty    = errors.New("loop variable empty")
	ErrInvalidRuleLanguage  = errors.New("invalid rule language")
	ErrRuleScriptEmpty      = errors.New("rule script empty")
	ErrRuleVariableEmpty    = errors.New("rule variable empty")
	ErrInvalidRuleOperator  = errors.New("invalid rule operator")
	ErrNegativeTimeout      = errors.New("timeout cannot be negative")
	ErrNegativeRetries      = errors.New("retry attempts cannot be negative")
	ErrLoginURLEmpty        = errors.New("login URL empty")
	ErrLoginCredentialsRef  = errors.New("login credentials reference empty")
	ErrVariableNameEmpty    = errors.New("variable name empty")
	ErrDynamicSourceMissing = errors.New("dynamic variable requires a source step")
	ErrDynamicSourceUnknown = errors.New("dynamic variable source step not found")
)

var (
	validActionKinds = util.SetOf(
		ActionNavigate,
		ActionClick,
		ActionType,
		ActionWait,
		ActionExtract,
		ActionConditional,
		ActionLoop,
	)

	targetedActionKinds = util.SetOf(
		ActionNavigate,
		ActionClick,
		ActionType,
		ActionExtract,
	)

	validRuleLanguages = util.SetOf(
		RuleLangCompare,
		RuleLangExpr,
		RuleLangLua,
		RuleLangAle,
	)

	// CompareOperators lists the operators understood by compare rules
	CompareOperators = util.SetOf(
		"==", "!=", ">", ">=", "<", "<=", "contains", "exists", "not_exists",
	)
)

// Validate checks the structure of the workflow definition, including every
// nested step, variable declaration, and the login requirement
func (w *WorkflowDefinition) Validate() error {
	if w.ID == "" {
		return ErrWorkflowIDEmpty
	}
	if len(w.Steps) == 0 {
		return ErrWorkflowNoSteps
	}
	if err := w.Settings.Validate(); err != nil {
		return err
	}
	if w.Login != nil {
		if err := w.Login.Validate(); err != nil {
			return err
		}
	}
	seen := util.Set[StepID]{}
	if err := validateSteps(w.Steps, seen); err != nil {
		return err
	}

	for _, v := range w.Variables {
		if err := v.Validate(); err != nil {
			return err
		}
		if v.Dynamic && w.GetStep(v.Source) == nil {
			return fmt.Errorf("%w: %s", ErrDynamicSourceUnknown, v.Source)
		}
	}
	return nil
}

// GetStep finds a step anywhere in the definition tree
func (w *WorkflowDefinition) GetStep(id StepID) *Step {
	return findStep(w.Steps, id)
}

// StepCount returns the number of declared steps, including nested ones
func (w *WorkflowDefinition) StepCount() int {
	return countSteps(w.Steps)
}

// Validate checks a single step and its children for structural errors
func (s *Step) Validate() error {
	if s.ID == "" {
		return ErrStepIDEmpty
	}
	if !validActionKinds.Contains(s.Kind) {
		return fmt.Errorf("%w: %s", ErrInvalidActionKind, s.Kind)
	}
	if s.Timeout < 0 {
		return fmt.Errorf("%w: step %s", ErrNegativeTimeout, s.ID)
	}
	if targetedActionKinds.Contains(s.Kind) && s.Target == "" {
		return fmt.Errorf("%w: step %s", ErrStepTargetRequired, s.ID)
	}

	switch s.Kind {
	case ActionWait:
		if s.Target == "" && s.Value == "" {
			return fmt.Errorf("%w: step %s", ErrWaitTargetOrValue, s.ID)
		}
	case ActionConditional:
		if s.Rule == nil {
			return fmt.Errorf("%w: step %s", ErrRuleRequired, s.ID)
		}
		if err := s.Rule.Validate(); err != nil {
			return fmt.Errorf("step %s: %w", s.ID, err)
		}
	case ActionLoop:
		if s.Loop == nil {
			return fmt.Errorf("%w: step %s", ErrLoopRequired, s.ID)
		}
		if s.Loop.Source == "" {
			return fmt.Errorf("%w: step %s", ErrLoopSourceEmpty, s.ID)
		}
		if s.Loop.As == "" {
			return fmt.Errorf("%w: step %s", ErrLoopVariableEmpty, s.ID)
		}
	}
	return nil
}

// Children returns every directly nested step sequence of this step
func (s *Step) Children() [][]*Step {
	switch s.Kind {
	case ActionConditional:
		return [][]*Step{s.Then, s.Else}
	case ActionLoop:
		if s.Loop != nil {
			return [][]*Step{s.Loop.Body}
		}
	}
	return nil
}

// EffectiveLanguage returns the rule language, defaulting to compare
func (r *Rule) EffectiveLanguage() RuleLanguage {
	if r.Language == "" {
		return RuleLangCompare
	}
	return r.Language
}

// Validate checks that the rule is well formed for its language
func (r *Rule) Validate() error {
	lang := r.EffectiveLanguage()
	if !validRuleLanguages.Contains(lang) {
		return fmt.Errorf("%w: %s", ErrInvalidRuleLanguage, lang)
	}
	if lang != RuleLangCompare {
		if strings.TrimSpace(r.Script) == "" {
			return ErrRuleScriptEmpty
		}
		return nil
	}
	if r.Variable == "" {
		return ErrRuleVariableEmpty
	}
	if !CompareOperators.Contains(r.Operator) {
		return fmt.Errorf("%w: %q, want one of %v",
			ErrInvalidRuleOperator, r.Operator, util.Sorted(CompareOperators),
		)
	}
	return nil
}

// String renders the rule the way it is recorded in run metadata
func (r *Rule) String() string {
	if r.EffectiveLanguage() != RuleLangCompare {
		return fmt.Sprintf("%s: %s", r.Language, r.Script)
	}
	switch r.Operator {
	case "exists", "not_exists":
		return fmt.Sprintf("%s %s", r.Variable, r.Operator)
	default:
		return fmt.Sprintf("%s %s %v", r.Variable, r.Operator, r.Value)
	}
}

// Validate checks the variable declaration
func (v *VariableSpec) Validate() error {
	if v.Name == "" {
		return ErrVariableNameEmpty
	}
	if v.Dynamic && v.Source == "" {
		return fmt.Errorf("%w: %s", ErrDynamicSourceMissing, v.Name)
	}
	return nil
}

// Validate checks the workflow-level settings
func (s Settings) Validate() error {
	if s.Timeout < 0 {
		return ErrNegativeTimeout
	}
	if s.RetryAttempts < 0 {
		return ErrNegativeRetries
	}
	return nil
}

// Validate checks the login requirement
func (l *LoginRequirement) Validate() error {
	if l.URL == "" {
		return ErrLoginURLEmpty
	}
	if l.CredentialsRef == "" {
		return ErrLoginCredentialsRef
	}
	return nil
}

// Selectors returns the username, password, and submit selectors, falling
// back to common defaults
func (l *LoginRequirement) Selectors() (string, string, string) {
	user := l.UsernameSelector
	if user == "" {
		user = DefaultUsernameSelector
	}
	pass := l.PasswordSelector
	if pass == "" {
		pass = DefaultPasswordSelector
	}
	submit := l.SubmitSelector
	if submit == "" {
		submit = DefaultSubmitSelector
	}
	return user, pass, submit
}

func validateSteps(steps []*Step, seen util.Set[StepID]) error {
	for _, step := range steps {
		if step == nil {
			return ErrStepIDEmpty
		}
		if err := step.Validate(); err != nil {
			return err
		}
		if seen.Contains(step.ID) {
			return fmt.Errorf("%w: %s", ErrStepIDDuplicate, step.ID)
		}
		seen.Add(step.ID)
		for _, children := range step.Children() {
			if err := validateSteps(children, seen); err != nil {
				return err
			}
		}
	}
	return nil
}

func findStep(steps []*Step, id StepID) *Step {
	for _, step := range steps {
		if step.ID == id {
			return step
		}
		for _, children := range step.Children() {
			if found := findStep(children, id); found != nil {
				return found
			}
		}
	}
	return nil
}

func countSteps(steps []*Step) int {
	res := len(steps)
	for _, step := range steps {
		for _, children := range step.Children() {
			res += countSteps(children)
		}
	}
	return res
}
