package settings

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInstanceContainerSetProperty(t *testing.T) {
	container := NewInstanceContainer("user_settings")

	container.SetProperty("layer_height", "value", 0.25)

	value, ok := container.Value("layer_height")
	require.True(t, ok)
	require.Equal(t, 0.25, value)

	// Storing a value marks the setting as user-overridden.
	state, ok := container.Property("layer_height", "state")
	require.True(t, ok)
	require.Equal(t, InstanceStateUser, state)

	_, ok = container.Value("wall_thickness")
	require.False(t, ok)
}

func TestInstanceContainerNonValuePropertyDoesNotMarkState(t *testing.T) {
	container := NewInstanceContainer("user_settings")
	container.SetProperty("support_enable", "enabled", false)

	_, ok := container.Property("support_enable", "state")
	require.False(t, ok)
	_, ok = container.Value("support_enable")
	require.False(t, ok)
}

func TestInstanceContainerNotifiesSubscribers(t *testing.T) {
	container := NewInstanceContainer("user_settings")

	var events []PropertyEvent
	token := container.SubscribePropertyChanged(func(event PropertyEvent) {
		events = append(events, event)
	})

	container.SetProperty("layer_height", "value", 0.25)
	require.Equal(t, []PropertyEvent{{Key: "layer_height", Property: "value"}}, events)

	container.UnsubscribePropertyChanged(token)
	container.SetProperty("layer_height", "value", 0.3)
	require.Len(t, events, 1)
}

func TestInstanceContainerRemoveInstance(t *testing.T) {
	container := NewInstanceContainer("user_settings")
	container.SetProperty("layer_height", "value", 0.25)
	container.SetProperty("wall_thickness", "value", 1.2)

	var events []PropertyEvent
	container.SubscribePropertyChanged(func(event PropertyEvent) {
		events = append(events, event)
	})

	container.RemoveInstance("layer_height")
	_, ok := container.Value("layer_height")
	require.False(t, ok)
	require.Equal(t, []string{"wall_thickness"}, container.Keys())
	require.Equal(t, []PropertyEvent{{Key: "layer_height", Property: "value"}}, events)

	// Removing an absent instance warns and emits nothing.
	container.RemoveInstance("layer_height")
	require.Len(t, events, 1)
}

func TestInstanceContainerSerializeRoundTrip(t *testing.T) {
	container := NewInstanceContainer("user_settings")
	container.SetName("My Overrides")
	container.SetMetadataEntry("type", "user")
	container.SetProperty("layer_height", "value", 0.25)
	container.SetProperty("infill_density", "value", 40)
	container.SetProperty("support_enable", "enabled", false)

	serialized, err := container.Serialize()
	require.NoError(t, err)

	loaded := NewInstanceContainer("placeholder")
	require.NoError(t, loaded.Deserialize(serialized))

	require.Equal(t, "user_settings", loaded.ID())
	require.Equal(t, "My Overrides", loaded.Name())
	require.Equal(t, map[string]string{"type": "user"}, loaded.Metadata())
	require.Equal(t, []string{"layer_height", "infill_density"}, loaded.Keys())

	// Values come back as strings; type conversion is the caller's concern.
	value, ok := loaded.Value("layer_height")
	require.True(t, ok)
	require.Equal(t, "0.25", value)
	state, ok := loaded.Property("layer_height", "state")
	require.True(t, ok)
	require.Equal(t, InstanceStateUser, state)

	// Only the "value" property persists.
	_, ok = loaded.Property("support_enable", "enabled")
	require.False(t, ok)
}

func TestInstanceContainerDeserializeVersionMismatch(t *testing.T) {
	container := NewInstanceContainer("user_settings")
	err := container.Deserialize("[general]\nversion = 1\nname = Old\nid = old\n")
	require.ErrorIs(t, err, ErrIncorrectVersion)
}

func TestInstanceContainerDeserializeMissingGeneral(t *testing.T) {
	container := NewInstanceContainer("user_settings")
	err := container.Deserialize("[values]\nlayer_height = 0.2\n")
	require.ErrorIs(t, err, ErrInvalidContainerStack)
}
