package settings

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFloatCommaRoundTrip(t *testing.T) {
	types := DefaultTypeRegistry()

	value, err := types.ValueFromString("float", "3,14")
	require.NoError(t, err)
	reference, err := types.ValueFromString("float", "3.14")
	require.NoError(t, err)
	require.Equal(t, reference, value)

	s, err := types.ValueToString("float", value)
	require.NoError(t, err)
	require.Equal(t, "3.14", s)

	// Subsequent round trips are stable.
	again, err := types.ValueFromString("float", s)
	require.NoError(t, err)
	require.Equal(t, value, again)
}

func TestUnknownTypeFails(t *testing.T) {
	types := DefaultTypeRegistry()

	_, err := types.ValueFromString("matrix", "1")
	var typeErr *UnknownTypeError
	require.True(t, errors.As(err, &typeErr))
	require.Equal(t, "matrix", typeErr.Type)

	_, err = types.ValueToString("matrix", 1)
	require.True(t, errors.As(err, &typeErr))
}

func TestIntAndBoolConversion(t *testing.T) {
	types := DefaultTypeRegistry()

	value, err := types.ValueFromString("int", " 42 ")
	require.NoError(t, err)
	require.Equal(t, 42, value)

	_, err = types.ValueFromString("int", "forty-two")
	require.Error(t, err)

	value, err = types.ValueFromString("bool", "True")
	require.NoError(t, err)
	require.Equal(t, true, value)

	s, err := types.ValueToString("bool", true)
	require.NoError(t, err)
	require.Equal(t, "true", s)
}

func TestPassThroughTypes(t *testing.T) {
	types := DefaultTypeRegistry()

	value, err := types.ValueFromString("str", "plain")
	require.NoError(t, err)
	require.Equal(t, "plain", value)

	s, err := types.ValueToString("enum", "choice")
	require.NoError(t, err)
	require.Equal(t, "choice", s)
}

func TestRegisterOverrides(t *testing.T) {
	types := NewTypeRegistry()
	types.Register("custom", nil, nil)
	require.True(t, types.Has("custom"))
	require.False(t, types.Has("other"))

	types.Register("custom", func(s string) (any, error) { return s + "!", nil }, nil)
	value, err := types.ValueFromString("custom", "hey")
	require.NoError(t, err)
	require.Equal(t, "hey!", value)
}
