package scenario

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/leapstack-labs/leapcalc/pkg/core"
	"github.com/leapstack-labs/leapcalc/pkg/units"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sample(reg *units.Registry) *Scenario {
	s := New(core.NewStructure().
		Put("a", reg.MustQuantity(1, "cm")).
		Put("b", reg.MustQuantity(2, "cm")))
	s.Results = core.NewStructure().Put("A", reg.MustQuantity(2, "cm^2"))
	s.InternalState = map[string]any{"x0": []any{1.0, 2.0}}
	return s
}

func TestSetParam_ClearsResults(t *testing.T) {
	reg := units.NewRegistry()
	s := sample(reg)
	require.True(t, s.HasResults())
	before := s.Modified

	require.NoError(t, s.SetParam(core.Path{"a"}, reg.MustQuantity(3, "cm")))

	assert.False(t, s.HasResults())
	assert.True(t, s.Modified.After(before))
	q, err := s.Parameters.Quantity(core.Path{"a"})
	require.NoError(t, err)
	assert.Equal(t, 3.0, q.Value)
}

func TestSetParam_ModifiedStrictlyIncreases(t *testing.T) {
	reg := units.NewRegistry()
	s := sample(reg)
	// a timestamp in the future forces the clock to lag behind
	s.Modified = time.Now().UTC().Add(time.Hour)
	prev := s.Modified

	for range 3 {
		require.NoError(t, s.SetParam(core.Path{"b"}, reg.MustQuantity(1, "m")))
		assert.True(t, s.Modified.After(prev))
		prev = s.Modified
	}
}

func TestSetParam_MissingParent(t *testing.T) {
	reg := units.NewRegistry()
	s := sample(reg)
	err := s.SetParam(core.Path{"x", "y"}, reg.MustQuantity(1, "m"))
	assert.ErrorIs(t, err, core.ErrKeyNotFound)
	assert.True(t, s.HasResults())
}

func TestClone_Independent(t *testing.T) {
	reg := units.NewRegistry()
	s := sample(reg)

	c, err := s.Clone()
	require.NoError(t, err)
	require.NoError(t, c.SetParam(core.Path{"a"}, reg.MustQuantity(9, "cm")))
	c.InternalState.(map[string]any)["x0"].([]any)[0] = 42.0

	q, err := s.Parameters.Quantity(core.Path{"a"})
	require.NoError(t, err)
	assert.Equal(t, 1.0, q.Value)
	assert.True(t, s.HasResults())
	assert.Equal(t, 1.0, s.InternalState.(map[string]any)["x0"].([]any)[0])
}

func TestClone_WithoutState(t *testing.T) {
	reg := units.NewRegistry()
	s := New(core.NewStructure().Put("a", reg.MustQuantity(1, "cm")))
	require.Nil(t, s.InternalState)

	c, err := s.Clone()
	require.NoError(t, err)
	assert.Nil(t, c.InternalState)
	assert.True(t, c.Parameters.Equal(s.Parameters))
	assert.Equal(t, s.Modified, c.Modified)
}

func TestSerialize_RoundTrip(t *testing.T) {
	reg := units.NewRegistry()
	s := sample(reg)

	raw, err := json.Marshal(s.Serialize())
	require.NoError(t, err)

	var d Data
	require.NoError(t, json.Unmarshal(raw, &d))
	back, err := Deserialize(reg, d)
	require.NoError(t, err)

	assert.True(t, s.Parameters.Equal(back.Parameters))
	assert.True(t, s.Results.Equal(back.Results))
	assert.True(t, s.Modified.Equal(back.Modified))
	assert.Equal(t, s.InternalState, back.InternalState)
}

func TestSerialize_Keys(t *testing.T) {
	reg := units.NewRegistry()
	raw, err := json.Marshal(sample(reg).Serialize())
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(raw, &m))
	assert.ElementsMatch(t, []string{"parameters", "state", "results", "modified"}, keys(m))
	assert.Equal(t, map[string]any{"a": "1 cm", "b": "2 cm"}, m["parameters"])
}

func TestDeserialize_Errors(t *testing.T) {
	reg := units.NewRegistry()
	d := sample(reg).Serialize()
	d.Modified = "yesterday"
	_, err := Deserialize(reg, d)
	assert.ErrorContains(t, err, "modified")
}

func TestIsBuiltin(t *testing.T) {
	assert.True(t, IsBuiltin(Default))
	assert.True(t, IsBuiltin(Current))
	assert.True(t, IsBuiltin(Converged))
	assert.False(t, IsBuiltin("my case"))
}

func keys(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
