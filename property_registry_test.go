package settings

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPropertyRegistryQueries(t *testing.T) {
	registry := NewPropertyRegistry()
	registry.Add("label", PropertyKindTranslatedString, PropertyRequired(), PropertyReadOnly())
	registry.Add("value", PropertyKindFunction)

	require.True(t, registry.Has("label"))
	require.False(t, registry.Has("unknown"))
	require.True(t, registry.IsRequired("label"))
	require.False(t, registry.IsRequired("value"))
	require.True(t, registry.IsReadOnly("label"))
	require.False(t, registry.IsReadOnly("unknown"))

	def, ok := registry.Definition("value")
	require.True(t, ok)
	require.Equal(t, PropertyKindFunction, def.Kind)
}

func TestPropertyRegistryNamesByKind(t *testing.T) {
	registry := NewPropertyRegistry()
	registry.Add("label", PropertyKindTranslatedString)
	registry.Add("value", PropertyKindFunction)
	registry.Add("enabled", PropertyKindFunction)

	require.Equal(t, []string{"label", "value", "enabled"}, registry.Names(0))
	require.Equal(t, []string{"value", "enabled"}, registry.Names(PropertyKindFunction))
	require.Empty(t, registry.Names(PropertyKindString))
}

func TestPropertyRegistryReRegistrationKeepsPosition(t *testing.T) {
	registry := NewPropertyRegistry()
	registry.Add("first", PropertyKindAny)
	registry.Add("second", PropertyKindAny)
	registry.Add("first", PropertyKindString, PropertyRequired())

	require.Equal(t, []string{"first", "second"}, registry.Names(0))
	require.True(t, registry.IsRequired("first"))
	def, _ := registry.Definition("first")
	require.Equal(t, PropertyKindString, def.Kind)
}

func TestDefaultPropertyRegistryTable(t *testing.T) {
	registry := DefaultPropertyRegistry()

	for _, name := range []string{"label", "type", "description"} {
		require.True(t, registry.IsRequired(name), name)
	}
	require.False(t, registry.IsRequired("default_value"))

	functions := registry.Names(PropertyKindFunction)
	require.Equal(t, []string{
		"value", "enabled",
		"minimum_value", "maximum_value",
		"minimum_value_warning", "maximum_value_warning",
	}, functions)

	require.False(t, registry.IsReadOnly("value"))
	require.True(t, registry.IsReadOnly("type"))
}
