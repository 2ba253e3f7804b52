package helpers

import (
	"context"
	"fmt"
	"sync"

	"github.com/richvergo/subtract-sub005/internal/target"
	"github.com/richvergo/subtract-sub005/pkg/util"
)

type (
	// MockTarget is a scripted in-memory implementation of target.Target.
	// Every call is recorded; failures, blocking, and panics can be scripted
	// per action and selector
	MockTarget struct {
		calls      []Call
		scripts    map[string]*script
		texts      map[string]string
		present    util.Set[string]
		screenshot []byte
		shots      int
		closed     int
		mu         sync.Mutex
	}

	// Call records one interaction with a MockTarget
	Call struct {
		Action   Action
		Selector string
		Value    string
	}

	// Action names a MockTarget method
	Action string

	// MockProvider hands out a single MockTarget
	MockProvider struct {
		Target   *MockTarget
		err      error
		opts     []target.Options
		acquired int
		mu       sync.Mutex
	}

	script struct {
		err       error
		panicMsg  string
		remaining int
		block     bool
	}
)

const (
	ActionNavigate   Action = "navigate"
	ActionClick      Action = "click"
	ActionType       Action = "type"
	ActionExtract    Action = "extract"
	ActionWaitFor    Action = "wait_for"
	ActionExists     Action = "exists"
	ActionScreenshot Action = "screenshot"
)

// PNG is the image returned by MockTarget screenshots
var PNG = []byte("\x89PNG\r\n\x1a\nmock")

var _ target.Target = (*MockTarget)(nil)

// NewMockTarget creates a MockTarget on which every action succeeds
func NewMockTarget() *MockTarget {
	return &MockTarget{
		scripts:    map[string]*script{},
		texts:      map[string]string{},
		present:    util.Set[string]{},
		screenshot: PNG,
	}
}

// FailTimes makes the next n calls of action on sel fail with err
func (m *MockTarget) FailTimes(action Action, sel string, n int, err error) {
	m.setScript(action, sel, &script{err: err, remaining: n})
}

// FailAlways makes every call of action on sel fail with err
func (m *MockTarget) FailAlways(action Action, sel string, err error) {
	m.setScript(action, sel, &script{err: err, remaining: -1})
}

// Block makes calls of action on sel wait until their context is done
func (m *MockTarget) Block(action Action, sel string) {
	m.setScript(action, sel, &script{block: true, remaining: -1})
}

// PanicOn makes calls of action on sel panic
func (m *MockTarget) PanicOn(action Action, sel string) {
	m.setScript(action, sel, &script{
		panicMsg:  fmt.Sprintf("scripted panic: %s %s", action, sel),
		remaining: -1,
	})
}

// SetText sets the text returned when extracting sel
func (m *MockTarget) SetText(sel, text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.texts[sel] = text
}

// SetPresent marks sel as present for Exists checks
func (m *MockTarget) SetPresent(sel string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.present.Add(sel)
}

// Calls returns every recorded call in order
func (m *MockTarget) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Call(nil), m.calls...)
}

// CallsFor returns the recorded calls of a single action
func (m *MockTarget) CallsFor(action Action) []Call {
	var res []Call
	for _, c := range m.Calls() {
		if c.Action == action {
			res = append(res, c)
		}
	}
	return res
}

// Screenshots returns how many screenshots were taken
func (m *MockTarget) Screenshots() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.shots
}

// CloseCount returns how many times Close was called
func (m *MockTarget) CloseCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *MockTarget) Navigate(ctx context.Context, url string) error {
	return m.invoke(ctx, Call{Action: ActionNavigate, Selector: url})
}

func (m *MockTarget) Click(ctx context.Context, sel string) error {
	return m.invoke(ctx, Call{Action: ActionClick, Selector: sel})
}

func (m *MockTarget) Type(ctx context.Context, sel, text string) error {
	return m.invoke(ctx, Call{Action: ActionType, Selector: sel, Value: text})
}

func (m *MockTarget) Extract(ctx context.Context, sel string) (string, error) {
	if err := m.invoke(ctx, Call{Action: ActionExtract, Selector: sel}); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	text, ok := m.texts[sel]
	if !ok {
		return "", fmt.Errorf("%w: %s", target.ErrElementNotFound, sel)
	}
	return text, nil
}

func (m *MockTarget) WaitFor(ctx context.Context, sel string) error {
	return m.invoke(ctx, Call{Action: ActionWaitFor, Selector: sel})
}

func (m *MockTarget) Exists(ctx context.Context, sel string) (bool, error) {
	if err := m.invoke(ctx, Call{Action: ActionExists, Selector: sel}); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.present.Contains(sel), nil
}

func (m *MockTarget) Screenshot(ctx context.Context) ([]byte, error) {
	if err := m.invoke(ctx, Call{Action: ActionScreenshot}); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shots++
	return m.screenshot, nil
}

func (m *MockTarget) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed++
	return nil
}

func (m *MockTarget) setScript(action Action, sel string, s *script) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scripts[scriptKey(action, sel)] = s
}

func (m *MockTarget) invoke(ctx context.Context, c Call) error {
	m.mu.Lock()
	m.calls = append(m.calls, c)
	s := m.scripts[scriptKey(c.Action, c.Selector)]
	var active script
	if s != nil && s.remaining != 0 {
		active = *s
		if s.remaining > 0 {
			s.remaining--
		}
	}
	m.mu.Unlock()

	switch {
	case active.panicMsg != "":
		panic(active.panicMsg)
	case active.block:
		<-ctx.Done()
		return ctx.Err()
	case active.err != nil:
		return active.err
	default:
		return ctx.Err()
	}
}

func scriptKey(action Action, sel string) string {
	return string(action) + ":" + sel
}

// NewMockProvider creates a provider handing out t
func NewMockProvider(t *MockTarget) *MockProvider {
	return &MockProvider{Target: t}
}

// SetError makes every Acquire fail with err
func (p *MockProvider) SetError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

// Acquire returns the provider's MockTarget
func (p *MockProvider) Acquire(
	_ context.Context, opts target.Options,
) (target.Target, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	p.acquired++
	p.opts = append(p.opts, opts)
	return p.Target, nil
}

// Acquired returns how many targets were handed out
func (p *MockProvider) Acquired() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.acquired
}

// Options returns the options of every Acquire call
func (p *MockProvider) Options() []target.Options {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]target.Options(nil), p.opts...)
}
