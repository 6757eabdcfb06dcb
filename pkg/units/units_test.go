package units

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseUnit(t *testing.T) {
	reg := NewRegistry()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"empty is dimensionless", "", ""},
		{"base unit", "m", "m"},
		{"prefixed", "cm", "cm"},
		{"micro variants", "um", "µm"},
		{"alias", "°C", "degC"},
		{"compound", "W/(m^2*K)", "W/(m^2*K)"},
		{"python power", "kg*m/s**2", "kg*m/s^2"},
		{"superscript", "m²", "m^2"},
		{"negative exponent", "m^-1", "1/m"},
		{"juxtaposition", "N m", "N*m"},
		{"middle dot", "kW·h", "kW*h"},
		{"merges symbols", "m*m/m", "m"},
		{"reciprocal", "1/s", "1/s"},
		{"cancels to dimensionless", "m/m", ""},
		{"percent", "%", "%"},
		{"prefixed alias", "ml", "mL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := reg.ParseUnit(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, u.String())
		})
	}
}

func TestParseUnit_Errors(t *testing.T) {
	reg := NewRegistry()

	t.Run("syntax", func(t *testing.T) {
		for _, input := range []string{"m/", "m^x", "(m", "m)", "2m", "m^1.5", "#"} {
			_, err := reg.ParseUnit(input)
			var se *SyntaxError
			assert.True(t, errors.As(err, &se), "input %q: %v", input, err)
		}
	})

	t.Run("undefined", func(t *testing.T) {
		_, err := reg.ParseUnit("furlong")
		var ue *UndefinedUnitError
		require.True(t, errors.As(err, &ue))
		assert.Equal(t, "furlong", ue.Name)
	})

	t.Run("non-prefixable", func(t *testing.T) {
		_, err := reg.ParseUnit("kmin")
		var ue *UndefinedUnitError
		assert.True(t, errors.As(err, &ue))
	})
}

func TestQuantity_To(t *testing.T) {
	reg := NewRegistry()

	tests := []struct {
		name  string
		from  Quantity
		to    string
		value float64
	}{
		{"length", reg.MustQuantity(3, "cm"), "m", 0.03},
		{"energy", reg.MustQuantity(1, "kWh"), "MJ", 3.6},
		{"pressure", reg.MustQuantity(1, "bar"), "kPa", 100},
		{"celsius to kelvin", reg.MustQuantity(20, "degC"), "K", 293.15},
		{"celsius to fahrenheit", reg.MustQuantity(100, "degC"), "degF", 212},
		{"compound", reg.MustQuantity(1, "W/(m^2*K)"), "kW/(m^2*K)", 1e-3},
		{"percent", reg.MustQuantity(87, "%"), "", 0.87},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.from.To(reg.MustParseUnit(tt.to))
			require.NoError(t, err)
			assert.InDelta(t, tt.value, got.Value, 1e-9)
			assert.Equal(t, reg.MustParseUnit(tt.to).String(), got.Unit.String())
		})
	}
}

func TestQuantity_ToIncompatible(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.MustQuantity(1, "m").To(reg.MustParseUnit("s"))

	var de *DimensionalityError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, "m", de.From)
	assert.Equal(t, "s", de.To)
	assert.Contains(t, err.Error(), "[length]")
}

func TestQuantity_Arithmetic(t *testing.T) {
	reg := NewRegistry()

	t.Run("add converts operand", func(t *testing.T) {
		got, err := reg.MustQuantity(1, "m").Add(reg.MustQuantity(50, "cm"))
		require.NoError(t, err)
		assert.InDelta(t, 1.5, got.Value, 1e-12)
		assert.Equal(t, "m", got.Unit.String())
	})

	t.Run("add to absolute temperature", func(t *testing.T) {
		got, err := reg.MustQuantity(20, "degC").Add(reg.MustQuantity(5, "K"))
		require.NoError(t, err)
		assert.InDelta(t, 25, got.Value, 1e-12)
	})

	t.Run("sub incompatible", func(t *testing.T) {
		_, err := reg.MustQuantity(1, "m").Sub(reg.MustQuantity(1, "s"))
		assert.Error(t, err)
	})

	t.Run("mul and div", func(t *testing.T) {
		area := reg.MustQuantity(2, "m").Mul(reg.MustQuantity(3, "m"))
		assert.Equal(t, "6 m^2", area.String())

		speed := reg.MustQuantity(10, "m").Div(reg.MustQuantity(2, "s"))
		assert.Equal(t, "5 m/s", speed.String())
	})

	t.Run("ratio", func(t *testing.T) {
		r, err := reg.MustQuantity(1, "m").Ratio(reg.MustQuantity(10, "cm"))
		require.NoError(t, err)
		assert.InDelta(t, 10, r, 1e-12)
	})

	t.Run("compare", func(t *testing.T) {
		c, err := reg.MustQuantity(1, "m").Compare(reg.MustQuantity(99, "cm"))
		require.NoError(t, err)
		assert.Equal(t, 1, c)
	})
}

func TestQuantity_Float(t *testing.T) {
	reg := NewRegistry()

	f, err := reg.MustQuantity(87, "%").Float()
	require.NoError(t, err)
	assert.InDelta(t, 0.87, f, 1e-12)

	_, err = reg.MustQuantity(1, "m").Float()
	assert.ErrorIs(t, err, ErrNotDimensionless)
}

func TestParseQuantity(t *testing.T) {
	reg := NewRegistry()

	tests := []struct {
		input string
		value float64
		unit  string
	}{
		{"1.5 kW", 1.5, "kW"},
		{"100", 100, ""},
		{"-3e2 Pa", -300, "Pa"},
		{"kg", 1, "kg"},
		{"  9 cm ", 9, "cm"},
		{"5 1/s", 5, "1/s"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			q, err := reg.ParseQuantity(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.value, q.Value)
			assert.Equal(t, tt.unit, q.Unit.String())
		})
	}
}

func TestQuantity_StringRoundTrip(t *testing.T) {
	reg := NewRegistry()
	q := reg.MustQuantity(1.0/3.0, "W/(m^2*K)")

	back, err := reg.ParseQuantity(q.String())
	require.NoError(t, err)
	assert.InDelta(t, q.Value, back.Value, 1e-13)
	assert.True(t, q.Unit.Equal(back.Unit))
}

func TestUnit_Pretty(t *testing.T) {
	reg := NewRegistry()
	assert.Equal(t, "W/(m²·K)", reg.MustParseUnit("W/(m^2*K)").Pretty())
	assert.Equal(t, "1/s", reg.MustParseUnit("s^-1").Pretty())
}

func TestUnit_Dimension(t *testing.T) {
	reg := NewRegistry()
	assert.True(t, reg.MustParseUnit("kg*m/s^2").IsCompatibleWith(reg.MustParseUnit("N")))
	assert.True(t, reg.MustParseUnit("%").IsDimensionless())
	assert.Equal(t, "[length]^2*[mass]*[time]^-3", reg.MustParseUnit("W").Dimension().String())
}
