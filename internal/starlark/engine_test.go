package starlark

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/leapstack-labs/leapcalc/internal/testutil"
	"github.com/leapstack-labs/leapcalc/pkg/core"
	"github.com/leapstack-labs/leapcalc/pkg/units"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const rectangleScript = `
def initialise():
    print("rectangle ready")

def defaults():
    return {"a": qty(1, "cm"), "b": qty(1, "cm")}

def calculate(params):
    a, b = params["a"], params["b"]
    if a > qty(1, "m"):
        calculation_failed("a is larger than 1 m")
    print("calculating", a)
    return {"A": (a * b).to("cm^2"), "P": 2 * (a + b)}
`

const counterScript = `
def defaults():
    return {"x": qty(1)}

def calculate(params, state):
    state["calls"] = state.get("calls", 0) + 1
    return {"calls": state["calls"]}
`

func load(t *testing.T, src string, opts ...Option) (*Engine, *units.Registry) {
	t.Helper()
	reg := units.NewRegistry()
	opts = append([]Option{WithLogger(testutil.NewTestLogger(t))}, opts...)
	e, err := LoadSource("engine.star", []byte(src), reg, opts...)
	require.NoError(t, err)
	return e, reg
}

func TestEngine_Calculate(t *testing.T) {
	e, reg := load(t, rectangleScript)
	var out bytes.Buffer
	require.NoError(t, e.Initialise(context.Background(), &out))
	assert.Equal(t, "rectangle ready\n", out.String())

	params, err := e.DefaultParameters()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, params.Keys())

	require.NoError(t, params.Set(core.Path{"a"}, reg.MustQuantity(3, "cm")))
	res, err := e.Calculate(context.Background(), params)
	require.NoError(t, err)

	area, err := res.Quantity(core.Path{"A"})
	require.NoError(t, err)
	assert.Equal(t, "3 cm^2", area.Format(10))
	perimeter, err := res.Quantity(core.Path{"P"})
	require.NoError(t, err)
	assert.Equal(t, "8 cm", perimeter.Format(10))
	assert.Contains(t, out.String(), "calculating 3 cm")

	// stateless engines keep no state
	state, err := e.InternalState()
	require.NoError(t, err)
	assert.Nil(t, state)
}

func TestEngine_CalculationFailed(t *testing.T) {
	e, reg := load(t, rectangleScript)
	params, err := e.DefaultParameters()
	require.NoError(t, err)
	require.NoError(t, params.Set(core.Path{"a"}, reg.MustQuantity(2, "m")))

	_, err = e.Calculate(context.Background(), params)
	var cf *core.CalculationFailed
	require.ErrorAs(t, err, &cf)
	assert.Equal(t, "a is larger than 1 m", cf.Message)

	// the thread went back to the pool without the failure marker
	require.NoError(t, params.Set(core.Path{"a"}, reg.MustQuantity(2, "cm")))
	_, err = e.Calculate(context.Background(), params)
	assert.NoError(t, err)
}

func TestEngine_ScriptError(t *testing.T) {
	e, _ := load(t, `
def defaults():
    return {"a": qty(1, "m")}

def calculate(params):
    return {"bad": params["missing"]}
`)
	params, err := e.DefaultParameters()
	require.NoError(t, err)
	_, err = e.Calculate(context.Background(), params)
	require.Error(t, err)
	var cf *core.CalculationFailed
	assert.NotErrorAs(t, err, &cf)
}

func TestEngine_BadResult(t *testing.T) {
	e, _ := load(t, `
def defaults():
    return {}

def calculate(params):
    return {"s": "text"}
`)
	_, err := e.Calculate(context.Background(), core.NewStructure())
	var cf *core.CalculationFailed
	require.ErrorAs(t, err, &cf)
	assert.Contains(t, cf.Message, "unsupported value")
}

func TestEngine_State(t *testing.T) {
	e, _ := load(t, counterScript)
	params, err := e.DefaultParameters()
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err = e.Calculate(context.Background(), params)
		require.NoError(t, err)
	}
	state, err := e.InternalState()
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"calls": 2.0}, state)

	require.NoError(t, e.SetInternalState(map[string]any{"calls": 10.0}))
	res, err := e.Calculate(context.Background(), params)
	require.NoError(t, err)
	calls, err := res.Quantity(core.Path{"calls"})
	require.NoError(t, err)
	assert.Equal(t, 11.0, calls.Value)

	assert.Error(t, e.SetInternalState([]any{1.0}))
}

func TestEngine_Cancel(t *testing.T) {
	e, _ := load(t, `
def defaults():
    return {}

def calculate(params):
    n = 0
    while True:
        n += 1
    return {}
`, WithPoolSize(1))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := e.Calculate(ctx, core.NewStructure())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Zero(t, e.pool.Size(), "cancelled thread returned to pool")
}

func TestLoad_Errors(t *testing.T) {
	reg := units.NewRegistry()

	_, err := LoadSource("x.star", []byte(`def defaults():
    return {}
`), reg)
	assert.ErrorIs(t, err, ErrMissingFunction)

	_, err = LoadSource("x.star", []byte("calculate = 1\ndef defaults():\n    return {}\n"), reg)
	assert.ErrorContains(t, err, "not a function")

	_, err = LoadSource("x.star", []byte("def defaults(:\n"), reg)
	assert.Error(t, err)

	_, err = Load(filepath.Join(t.TempDir(), "missing.star"), reg)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.star")
	require.NoError(t, os.WriteFile(path, []byte(rectangleScript), 0o600))

	e, err := Load(path, units.NewRegistry())
	require.NoError(t, err)
	params, err := e.DefaultParameters()
	require.NoError(t, err)
	assert.Equal(t, 2, params.NumLeaves())
}
