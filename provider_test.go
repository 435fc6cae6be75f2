package settings

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type providerFixture struct {
	registry   *Registry
	definition *DefinitionContainer
	user       *InstanceContainer
	stack      *ContainerStack
}

func newProviderFixture(t *testing.T) *providerFixture {
	t.Helper()
	f := &providerFixture{
		registry:   NewRegistry(),
		definition: newMachineDefinition(t, "test_printer"),
		user:       NewInstanceContainer("user_settings"),
	}
	f.stack = NewContainerStack("machine_stack", WithStackRegistry(f.registry))
	require.NoError(t, f.stack.AddContainer(f.definition))
	require.NoError(t, f.stack.AddContainer(f.user))
	require.NoError(t, f.registry.AddContainer(f.definition))
	require.NoError(t, f.registry.AddContainer(f.user))
	require.NoError(t, f.registry.AddContainer(f.stack))
	return f
}

func (f *providerFixture) newProvider(key string, watched ...string) *SettingPropertyProvider {
	provider := NewSettingPropertyProvider(f.registry)
	provider.SetWatchedProperties(watched)
	provider.SetKey(key)
	provider.SetStackID("machine_stack")
	return provider
}

func TestProviderResolvesWatchedProperties(t *testing.T) {
	f := newProviderFixture(t)
	provider := f.newProvider("wall_thickness", "value", "enabled")

	require.Same(t, f.stack, provider.Stack())
	require.Equal(t, "machine_stack", provider.StackID())
	require.Equal(t, []string{"value", "enabled"}, provider.WatchedProperties())

	// value computes from the expression, enabled from its own expression.
	values := provider.Properties()
	require.Equal(t, "0.8", values["value"])
	require.Equal(t, "true", values["enabled"])

	// The expression layer lives in the definition container at index 1.
	require.Equal(t, []int{1}, provider.StackLevels())
}

func TestProviderFallsBackToDefaultValue(t *testing.T) {
	f := newProviderFixture(t)
	provider := f.newProvider("layer_height", "value")

	require.Equal(t, "0.1", provider.Properties()["value"])
}

func TestProviderReactsToUserOverrides(t *testing.T) {
	f := newProviderFixture(t)
	provider := f.newProvider("wall_thickness", "value")

	var changes, levelChanges int
	provider.SubscribePropertiesChanged(func() { changes++ })
	provider.SubscribeStackLevelsChanged(func() { levelChanges++ })

	provider.SetPropertyValue("value", 0.9)
	require.Equal(t, "0.9", provider.Properties()["value"])
	require.Equal(t, 1, changes)
	require.Equal(t, []int{0, 1}, provider.StackLevels())
	require.Equal(t, 1, levelChanges)

	// Writing the same value again is a no-op.
	provider.SetPropertyValue("value", 0.9)
	require.Equal(t, 1, changes)

	// Overrides track their dependencies: changing layer_height recomputes
	// the expression only while the override is absent.
	provider.RemoveFromContainer(0)
	require.Equal(t, "0.8", provider.Properties()["value"])
	require.Equal(t, []int{1}, provider.StackLevels())
}

func TestProviderRecomputesOnUpdateAfterDependencyChange(t *testing.T) {
	f := newProviderFixture(t)
	provider := f.newProvider("wall_thickness", "value")
	require.Equal(t, "0.8", provider.Properties()["value"])

	// wall_thickness itself is untouched; its expression input changes. The
	// change event arrives for layer_height, so the cached string holds until
	// the next full update of this provider.
	layerHeight := f.newProvider("layer_height", "value")
	layerHeight.SetPropertyValue("value", 0.2)
	require.Equal(t, "0.8", provider.Properties()["value"])

	provider.SetWatchedProperties([]string{"value", "enabled"})
	require.Equal(t, "1.6", provider.Properties()["value"])
}

func TestProviderRejectsUnwatchedWrites(t *testing.T) {
	f := newProviderFixture(t)
	provider := f.newProvider("wall_thickness", "value")

	provider.SetPropertyValue("enabled", false)
	_, ok := f.user.Property("wall_thickness", "enabled")
	require.False(t, ok)
}

func TestProviderRejectsWritesToDefinitionLayer(t *testing.T) {
	f := newProviderFixture(t)
	provider := f.newProvider("wall_thickness", "value")
	provider.SetStoreIndex(1)
	require.Equal(t, 1, provider.StoreIndex())

	provider.SetPropertyValue("value", 0.9)
	_, ok := f.user.Value("wall_thickness")
	require.False(t, ok)
	require.Equal(t, "0.8", provider.Properties()["value"])
}

func TestProviderPropertyValueReadsSpecificLevel(t *testing.T) {
	f := newProviderFixture(t)
	provider := f.newProvider("wall_thickness", "value")
	provider.SetPropertyValue("value", 0.9)

	value, ok := provider.PropertyValue("value", 0)
	require.True(t, ok)
	require.Equal(t, 0.9, value)

	raw, ok := provider.PropertyValue("value", 1)
	require.True(t, ok)
	_, isExpression := raw.(Expression)
	require.True(t, isExpression)

	_, ok = provider.PropertyValue("value", 5)
	require.False(t, ok)
}

func TestProviderIsValueUsed(t *testing.T) {
	f := newProviderFixture(t)
	provider := f.newProvider("layer_height", "value")

	var invalidations int
	provider.SubscribeIsValueUsedChanged(func() { invalidations++ })

	// wall_thickness computes from layer_height and is not overridden.
	require.True(t, provider.IsValueUsed())

	// Overriding the dependent cuts the link and invalidates the cache.
	f.user.SetProperty("wall_thickness", "value", 1.2)
	require.Equal(t, 1, invalidations)
	require.False(t, provider.IsValueUsed())

	f.user.RemoveInstance("wall_thickness")
	require.Equal(t, 2, invalidations)
	require.True(t, provider.IsValueUsed())
}

func TestProviderWithoutDependentsIsAlwaysUsed(t *testing.T) {
	f := newProviderFixture(t)
	provider := f.newProvider("machine_width", "value")
	require.True(t, provider.IsValueUsed())
}

func TestProviderRebindsStacks(t *testing.T) {
	f := newProviderFixture(t)
	provider := f.newProvider("wall_thickness", "value")

	other := NewContainerStack("other_stack")
	otherUser := NewInstanceContainer("other_user")
	otherUser.SetProperty("wall_thickness", "value", 2.0)
	require.NoError(t, other.AddContainer(otherUser))
	require.NoError(t, f.registry.AddContainer(other))
	require.NoError(t, f.registry.AddContainer(otherUser))

	provider.SetStackID("other_stack")
	require.Same(t, other, provider.Stack())

	// The old stack no longer feeds the provider.
	var changes int
	provider.SubscribePropertiesChanged(func() { changes++ })
	f.user.SetProperty("wall_thickness", "value", 0.4)
	require.Zero(t, changes)
}
