package engine_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/richvergo/subtract-sub005/internal/assert/helpers"
	"github.com/richvergo/subtract-sub005/internal/engine"
	"github.com/richvergo/subtract-sub005/internal/store"
	"github.com/richvergo/subtract-sub005/internal/target"
	"github.com/richvergo/subtract-sub005/pkg/api"
)

var testLogin = &api.LoginRequirement{
	URL:              "https://portal.test/login",
	CredentialsRef:   "portal",
	UsernameSelector: "#user",
	PasswordSelector: "#pass",
	SubmitSelector:   "#go",
	SuccessMarker:    "#dashboard",
}

func newSession(t *testing.T, tgt target.Target) *engine.Session {
	t.Helper()
	s := engine.NewSession(store.StaticCredentials{
		"portal": {Username: "ada", Password: "secret"},
	}, helpers.TestRetryPolicy, time.Second)
	require.NoError(t, s.Initialize(context.Background(), tgt))
	return s
}

func TestSessionAuthenticate(t *testing.T) {
	tgt := helpers.NewMockTarget()
	s := newSession(t, tgt)

	outcome, err := s.Authenticate(context.Background(), testLogin)
	require.NoError(t, err)
	assert.Equal(t, engine.OutcomeSuccess, outcome)

	calls := tgt.Calls()
	var actions []helpers.Action
	for _, c := range calls {
		actions = append(actions, c.Action)
	}
	assert.Equal(t, []helpers.Action{
		helpers.ActionNavigate,
		helpers.ActionExists,
		helpers.ActionType,
		helpers.ActionType,
		helpers.ActionClick,
		helpers.ActionWaitFor,
	}, actions)
	assert.Equal(t, "#user", calls[2].Selector)
	assert.Equal(t, "secret", calls[3].Value)
	assert.Equal(t, "#go", calls[4].Selector)
}

func TestSessionAlreadyAuthenticated(t *testing.T) {
	tgt := helpers.NewMockTarget()
	tgt.SetPresent("#dashboard")
	s := newSession(t, tgt)

	ok, err := s.IsAuthenticated(context.Background(), testLogin)
	require.NoError(t, err)
	assert.True(t, ok)

	outcome, err := s.Authenticate(context.Background(), testLogin)
	require.NoError(t, err)
	assert.Equal(t, engine.OutcomeSuccess, outcome)
	assert.Empty(t, tgt.CallsFor(helpers.ActionType))
}

func TestSessionOutcomes(t *testing.T) {
	t.Run("unreachable", func(t *testing.T) {
		tgt := helpers.NewMockTarget()
		tgt.FailAlways(helpers.ActionNavigate, testLogin.URL,
			target.ErrUnreachable,
		)
		outcome, err := newSession(t, tgt).Authenticate(
			context.Background(), testLogin,
		)
		assert.ErrorIs(t, err, target.ErrUnreachable)
		assert.Equal(t, engine.OutcomeTargetUnreachable, outcome)
	})

	t.Run("marker missing", func(t *testing.T) {
		tgt := helpers.NewMockTarget()
		tgt.FailAlways(helpers.ActionWaitFor, "#dashboard",
			target.ErrElementNotFound,
		)
		outcome, err := newSession(t, tgt).Authenticate(
			context.Background(), testLogin,
		)
		assert.Error(t, err)
		assert.Equal(t, engine.OutcomeCredentialsInvalid, outcome)
	})

	t.Run("unknown credentials", func(t *testing.T) {
		tgt := helpers.NewMockTarget()
		login := *testLogin
		login.CredentialsRef = "other"
		outcome, err := newSession(t, tgt).Authenticate(
			context.Background(), &login,
		)
		assert.ErrorIs(t, err, store.ErrCredentialsNotFound)
		assert.Equal(t, engine.OutcomeCredentialsInvalid, outcome)
		assert.Empty(t, tgt.Calls())
	})

	t.Run("form failure", func(t *testing.T) {
		tgt := helpers.NewMockTarget()
		tgt.FailAlways(helpers.ActionClick, "#go", target.ErrClosed)
		outcome, err := newSession(t, tgt).Authenticate(
			context.Background(), testLogin,
		)
		assert.ErrorIs(t, err, target.ErrClosed)
		assert.Equal(t, engine.OutcomeUnknown, outcome)
		assert.Len(t, tgt.CallsFor(helpers.ActionClick), 1)
	})
}

func TestSessionInitialize(t *testing.T) {
	s := engine.NewSession(nil, helpers.TestRetryPolicy, time.Second)

	_, err := s.Authenticate(context.Background(), testLogin)
	assert.ErrorIs(t, err, engine.ErrSessionNotInitialized)

	first := helpers.NewMockTarget()
	require.NoError(t, s.Initialize(context.Background(), first))
	require.NoError(t, s.Initialize(context.Background(), first))
	assert.ErrorIs(t,
		s.Initialize(context.Background(), helpers.NewMockTarget()),
		engine.ErrSessionTargetChanged,
	)

	outcome, err := s.Authenticate(context.Background(), testLogin)
	assert.ErrorIs(t, err, engine.ErrNoCredentialStore)
	assert.Equal(t, engine.OutcomeCredentialsInvalid, outcome)
}
