package api

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActionRegistry(t *testing.T) {
	ctx := context.Background()
	r := NewActionRegistry()

	require.NoError(t, r.Register("math", "double", func(_ context.Context, in map[string]any) (map[string]any, error) {
		n, _ := in["n"].(int)
		return map[string]any{"n": n * 2}, nil
	}))
	r.MustRegister("math", "boom", func(context.Context, map[string]any) (map[string]any, error) {
		panic("kaboom")
	})
	r.MustRegister("math", "err", func(context.Context, map[string]any) (map[string]any, error) {
		return nil, errors.New("bad input")
	})

	assert.Error(t, r.Register("math", "double", func(context.Context, map[string]any) (map[string]any, error) { return nil, nil }))
	assert.Error(t, r.Register("", "x", func(context.Context, map[string]any) (map[string]any, error) { return nil, nil }))
	assert.Error(t, r.Register("m", "x", nil))

	res := r.Dispatch(ctx, "math", "double", map[string]any{"n": 21})
	require.True(t, res.Success)
	assert.Equal(t, 42, res.Output["n"])

	res = r.Dispatch(ctx, "math", "boom", nil)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "kaboom")

	res = r.Dispatch(ctx, "math", "err", nil)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "bad input")

	res = r.Dispatch(ctx, "math", "missing", nil)
	assert.False(t, res.Success)

	assert.Equal(t, []string{"math.boom", "math.double", "math.err"}, r.Actions())
}

func TestDispatcherFunc(t *testing.T) {
	var d Dispatcher = DispatcherFunc(func(_ context.Context, module, action string, _ map[string]any) DispatchResult {
		if module == "ok" {
			return Succeeded(map[string]any{"action": action})
		}
		return Failed("module %s refused", module)
	})

	res := d.Dispatch(context.Background(), "ok", "go", nil)
	assert.True(t, res.Success)
	assert.Equal(t, "go", res.Output["action"])

	res = d.Dispatch(context.Background(), "no", "go", nil)
	assert.False(t, res.Success)
	assert.Equal(t, "module no refused", res.Error)
}

func TestSessionUpdate_Apply(t *testing.T) {
	s := NewSession("s1")
	s.Name = "before"
	s.Metadata["keep"] = 1

	name := "after"
	status := SessionCancelled
	SessionUpdate{Name: &name, Status: &status}.Apply(s)

	assert.Equal(t, "after", s.Name)
	assert.Equal(t, SessionCancelled, s.Status)
	assert.Equal(t, 1, s.Metadata["keep"], "nil metadata leaves the map untouched")

	clone := s.Clone()
	clone.Metadata["keep"] = 2
	assert.Equal(t, 1, s.Metadata["keep"])

	assert.True(t, SessionActive.Valid())
	assert.False(t, SessionStatus("DONE").Valid())
}

func TestErrorFamilies(t *testing.T) {
	assert.ErrorIs(t, ErrSessionNotFound, ErrNotFound)
	assert.ErrorIs(t, ErrProjectNotFound, ErrNotFound)
	assert.ErrorIs(t, ErrCyclicDependency, ErrValidation)
	assert.ErrorIs(t, ErrProjectExists, ErrValidation)
	assert.NotErrorIs(t, ErrCapacityExceeded, ErrValidation)
}

func TestSafeDispatch(t *testing.T) {
	d := DispatcherFunc(func(context.Context, string, string, map[string]any) DispatchResult {
		panic("oops")
	})
	res := SafeDispatch(context.Background(), d, "m", "a", nil)
	assert.False(t, res.Success)
	assert.Equal(t, "m.a panicked: oops", res.Error)

	ok := SafeDispatch(context.Background(), NewActionRegistry(), "m", "a", nil)
	assert.False(t, ok.Success, "unknown action is a failed result, not a panic")
}
