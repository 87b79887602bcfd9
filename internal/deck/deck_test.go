package deck

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestByName(t *testing.T) {
	d, ok := ByName("")
	require.True(t, ok)
	assert.Equal(t, "fibonacci", d.Name)

	d, ok = ByName("tshirt")
	require.True(t, ok)
	assert.True(t, d.Contains("XL"))

	_, ok = ByName("tarot")
	assert.False(t, ok)
}

func TestContains(t *testing.T) {
	assert.True(t, Fibonacci.Contains("13"))
	assert.True(t, Fibonacci.Contains("coffee"))
	assert.False(t, Fibonacci.Contains("4"))
}

func TestNumericValue(t *testing.T) {
	f, ok := NumericValue("21")
	require.True(t, ok)
	assert.Equal(t, 21.0, f)

	_, ok = NumericValue("?")
	assert.False(t, ok)
	_, ok = NumericValue("coffee")
	assert.False(t, ok)
	_, ok = NumericValue("XL")
	assert.False(t, ok)
}

func TestCustom(t *testing.T) {
	values := []string{"1", "2", "3"}
	d := Custom(values)
	assert.Equal(t, "custom", d.Name)
	assert.True(t, d.Contains("2"))

	// The deck owns its copy of the value list.
	values[0] = "mutated"
	assert.True(t, d.Contains("1"))
}
